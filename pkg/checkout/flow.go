package checkout

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jonboulle/clockwork"

	"github.com/platinummonkey/swapmeet/pkg/billing"
	"github.com/platinummonkey/swapmeet/pkg/client"
	"github.com/platinummonkey/swapmeet/pkg/observability"
)

// State is a step of the upgrade flow
type State string

const (
	StateIdle       State = "idle"
	StateOpening    State = "opening"
	StateModalOpen  State = "modal_open"
	StateFormFilled State = "form_filled"
	StateSubmitting State = "submitting"
)

var (
	// ErrSamePlan is returned when opening the flow for the plan already in force
	ErrSamePlan = errors.New("you are already on this plan")

	// ErrPlanNotFound is returned when the target is missing from the active catalog
	ErrPlanNotFound = errors.New("that plan is not available")

	// ErrInvalidState is returned for a transition the current state does not allow
	ErrInvalidState = errors.New("invalid checkout state")
)

// User-visible failure messages
const (
	MessageQuota   = "You have reached the limit of your current plan."
	MessageSignIn  = "Please sign in again to continue."
	MessagePayment = "Payment failed. Please check your card and try again."
)

// PaymentForm is what the user typed into the upgrade modal
type PaymentForm struct {
	CardNumber string
	CardExpiry string
	CardCVV    string
	CardName   string
}

func (f PaymentForm) paymentData() billing.PaymentData {
	return billing.PaymentData{
		CardNumber: f.CardNumber,
		CardExpiry: f.CardExpiry,
		CardCVV:    f.CardCVV,
		CardName:   f.CardName,
	}
}

// Flow drives one upgrade from plan selection to confirmed subscription
type Flow struct {
	api    client.BillingAPI
	usage  *client.UsageTracker
	clock  clockwork.Clock
	logger *observability.Logger

	mu      sync.Mutex
	state   State
	target  *billing.Plan
	current *client.Me
	form    PaymentForm
	message string
}

// NewFlow creates an idle flow. usage, clock and logger may be nil.
func NewFlow(api client.BillingAPI, usage *client.UsageTracker, clock clockwork.Clock, logger *observability.Logger) *Flow {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	return &Flow{
		api:    api,
		usage:  usage,
		clock:  clock,
		logger: logger,
		state:  StateIdle,
	}
}

// Open loads the catalog and selects targetCode. The flow stays idle when
// the target is unknown or already the caller's plan.
func (f *Flow) Open(ctx context.Context, targetCode string) error {
	f.mu.Lock()
	if f.state != StateIdle {
		f.mu.Unlock()
		return fmt.Errorf("%w: cannot open from %s", ErrInvalidState, f.state)
	}
	f.state = StateOpening
	f.mu.Unlock()

	me, target, err := f.load(ctx, targetCode)

	f.mu.Lock()
	defer f.mu.Unlock()
	if err != nil {
		f.state = StateIdle
		return err
	}
	f.state = StateModalOpen
	f.target = target
	f.current = me
	f.form = PaymentForm{}
	f.message = ""
	return nil
}

// load finds the target plan and the caller's current plan. Called without f.mu.
func (f *Flow) load(ctx context.Context, targetCode string) (*client.Me, *billing.Plan, error) {
	plans, err := f.api.ListPlans(ctx)
	if err != nil {
		f.setMessage("Plans are unavailable right now. Please try again later.")
		return nil, nil, fmt.Errorf("failed to load plans: %w", err)
	}

	var target *billing.Plan
	for i := range plans {
		if plans[i].Code == targetCode {
			target = &plans[i]
			break
		}
	}
	if target == nil {
		f.setMessage(ErrPlanNotFound.Error())
		return nil, nil, ErrPlanNotFound
	}

	me, err := f.api.EffectivePlan(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to resolve current plan: %w", err)
	}
	if me.Plan.Code == target.Code {
		f.setMessage(ErrSamePlan.Error())
		return nil, nil, ErrSamePlan
	}
	return me, target, nil
}

// Fill records the form contents
func (f *Flow) Fill(form PaymentForm) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.state != StateModalOpen && f.state != StateFormFilled {
		return fmt.Errorf("%w: cannot fill from %s", ErrInvalidState, f.state)
	}
	f.form = form
	f.state = StateFormFilled
	return nil
}

// Submit validates the card locally, then subscribes. A local validation
// failure makes no network call. On a failed subscribe the card number and
// CVV are cleared while name and expiry are kept. A downgrade to the free
// plan takes no card and may be submitted straight from the open modal.
func (f *Flow) Submit(ctx context.Context) error {
	f.mu.Lock()
	downgrade := f.target != nil && f.target.Code == billing.FreePlanCode
	from := f.state
	if from != StateFormFilled && !(downgrade && from == StateModalOpen) {
		f.mu.Unlock()
		return fmt.Errorf("%w: cannot submit from %s", ErrInvalidState, f.state)
	}

	var payment billing.PaymentData
	if !downgrade {
		payment = f.form.paymentData()
		if err := billing.ValidateCard(payment, f.clock.Now()); err != nil {
			f.message = err.Error()
			f.mu.Unlock()
			return err
		}
	}

	f.state = StateSubmitting
	target := f.target
	f.mu.Unlock()

	if err := f.api.Subscribe(ctx, target.Code, payment); err != nil {
		f.mu.Lock()
		f.state = from
		f.form.CardNumber = ""
		f.form.CardCVV = ""
		f.message = failureMessage(err)
		f.mu.Unlock()

		f.logger.WithError(err).WithField("plan", target.Code).Warn("upgrade failed")
		return err
	}

	me, err := f.api.EffectivePlan(ctx)
	if err != nil {
		f.logger.WithError(err).Warn("failed to re-resolve plan after upgrade")
	}
	if f.usage != nil {
		if err := f.usage.Refresh(ctx); err != nil {
			f.logger.WithError(err).Warn("failed to refresh usage after upgrade")
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = StateIdle
	f.target = nil
	f.form = PaymentForm{}
	f.message = ""
	if me != nil {
		f.current = me
	}
	return nil
}

// Close abandons the flow. It is a no-op while a request is in flight.
func (f *Flow) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.state == StateSubmitting || f.state == StateOpening {
		return
	}
	f.state = StateIdle
	f.target = nil
	f.form = PaymentForm{}
	f.message = ""
}

// State returns the current step
func (f *Flow) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Form returns the form as currently held
func (f *Flow) Form() PaymentForm {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.form
}

// Message is the text to show the user, empty when there is nothing to report
func (f *Flow) Message() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.message
}

// Target is the plan being purchased, nil outside the modal
func (f *Flow) Target() *billing.Plan {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.target
}

// Current is the last effective plan seen by the flow
func (f *Flow) Current() *client.Me {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current
}

func (f *Flow) setMessage(msg string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.message = msg
}

func failureMessage(err error) string {
	var ve *billing.ValidationError
	switch {
	case billing.IsQuotaExceeded(err):
		return MessageQuota
	case errors.As(err, &ve):
		return ve.Message
	case errors.Is(err, client.ErrUnauthorized):
		return MessageSignIn
	case errors.Is(err, billing.ErrAlreadyOnPlan):
		return ErrSamePlan.Error()
	case errors.Is(err, billing.ErrPlanNotFound):
		return ErrPlanNotFound.Error()
	default:
		return MessagePayment
	}
}
