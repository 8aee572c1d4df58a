// Package checkout implements the client-side upgrade flow.
//
// A Flow moves through
//
//	idle -> opening -> modal_open -> form_filled -> submitting -> idle
//
// and falls back from submitting to form_filled when the subscribe call
// fails. The card is validated locally with billing.ValidateCard before any
// network call, using the same rules the server applies. A downgrade to the
// free plan skips the form and is submitted from modal_open.
package checkout
