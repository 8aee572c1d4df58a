package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/platinummonkey/swapmeet/pkg/auth"
	"github.com/platinummonkey/swapmeet/pkg/billing"
	"github.com/platinummonkey/swapmeet/pkg/httputil"
)

// BillingAPI is the billing surface used by the checkout flow and the usage tracker
type BillingAPI interface {
	ListPlans(ctx context.Context) ([]billing.Plan, error)
	EffectivePlan(ctx context.Context) (*Me, error)
	CheckQuota(ctx context.Context, ct billing.CreditType) (billing.QuotaStatus, error)
	UseCredit(ctx context.Context, ct billing.CreditType, listingID *int64) (int, error)
	Subscribe(ctx context.Context, planCode string, payment billing.PaymentData) error
	Cancel(ctx context.Context) error
}

// Me is the caller's effective plan as returned by GET /billing/me
type Me struct {
	Subscription *billing.SubscriptionSummary `json:"subscription"`
	Plan         billing.Plan                 `json:"effective_plan"`
}

// Config configures a Client
type Config struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
	Clock      clockwork.Clock
	CacheTTL   time.Duration
}

// Client talks to the billing REST API
type Client struct {
	baseURL     string
	httpClient  *http.Client
	currentUser *TTLCache[*auth.Identity]

	mu    sync.RWMutex
	token string
}

var _ BillingAPI = (*Client)(nil)

// NewClient creates a new API client
func NewClient(cfg Config) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: 10 * time.Second,
		}
	}

	return &Client{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		httpClient:  httpClient,
		currentUser: NewTTLCache[*auth.Identity](cfg.CacheTTL, cfg.Clock),
		token:       cfg.Token,
	}
}

// SetToken switches the session and forgets the cached user
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
	c.currentUser.Invalidate()
}

// Logout drops the session token and the cached user
func (c *Client) Logout() {
	c.SetToken("")
}

// CurrentUser returns the signed-in identity, reusing a recent lookup
func (c *Client) CurrentUser(ctx context.Context) (*auth.Identity, error) {
	return c.currentUser.Get(ctx, func(ctx context.Context) (*auth.Identity, error) {
		var identity auth.Identity
		if err := c.do(ctx, http.MethodGet, "/auth/me", nil, &identity, ""); err != nil {
			return nil, err
		}
		return &identity, nil
	})
}

// InvalidateCurrentUser forces the next CurrentUser call to hit the server
func (c *Client) InvalidateCurrentUser() {
	c.currentUser.Invalidate()
}

// ListPlans fetches the active catalog
func (c *Client) ListPlans(ctx context.Context) ([]billing.Plan, error) {
	var resp struct {
		Plans []billing.Plan `json:"plans"`
	}
	if err := c.do(ctx, http.MethodGet, "/billing/plans", nil, &resp, ""); err != nil {
		return nil, err
	}
	return resp.Plans, nil
}

// EffectivePlan fetches the caller's plan and subscription
func (c *Client) EffectivePlan(ctx context.Context) (*Me, error) {
	var me Me
	if err := c.do(ctx, http.MethodGet, "/billing/me", nil, &me, ""); err != nil {
		return nil, err
	}
	return &me, nil
}

// CheckQuota reports remaining credits without spending any
func (c *Client) CheckQuota(ctx context.Context, ct billing.CreditType) (billing.QuotaStatus, error) {
	var status billing.QuotaStatus
	if err := c.do(ctx, http.MethodPost, "/billing/quota/"+url.PathEscape(string(ct)), nil, &status, ct); err != nil {
		return billing.QuotaStatus{}, err
	}
	return status, nil
}

// UseCredit spends one credit and returns what remains
func (c *Client) UseCredit(ctx context.Context, ct billing.CreditType, listingID *int64) (int, error) {
	body := struct {
		Type      billing.CreditType `json:"type"`
		ListingID *int64             `json:"listing_id,omitempty"`
	}{Type: ct, ListingID: listingID}

	var resp struct {
		Remaining int `json:"remaining"`
	}
	if err := c.do(ctx, http.MethodPost, "/billing/use-credit", body, &resp, ct); err != nil {
		return 0, err
	}
	return resp.Remaining, nil
}

// Subscribe moves the caller onto planCode
func (c *Client) Subscribe(ctx context.Context, planCode string, payment billing.PaymentData) error {
	body := struct {
		PaymentData billing.PaymentData `json:"payment_data"`
	}{PaymentData: payment}

	if err := c.do(ctx, http.MethodPost, "/billing/subscribe/"+url.PathEscape(planCode), body, nil, ""); err != nil {
		return err
	}
	c.currentUser.Invalidate()
	return nil
}

// Cancel ends the caller's paid subscription
func (c *Client) Cancel(ctx context.Context) error {
	if err := c.do(ctx, http.MethodPost, "/billing/cancel", nil, nil, ""); err != nil {
		return err
	}
	c.currentUser.Invalidate()
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}, ct billing.CreditType) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.mu.RLock()
	token := c.token
	c.mu.RUnlock()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeError(resp, ct)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	return nil
}

// decodeError turns an error envelope back into the billing error it came from
func decodeError(resp *http.Response, ct billing.CreditType) error {
	var envelope httputil.ErrorResponse
	// a body that is not an envelope still yields an APIError below
	_ = json.NewDecoder(resp.Body).Decode(&envelope)

	if resp.StatusCode == http.StatusUnauthorized {
		return &UnauthorizedError{Redirect: envelope.Redirect}
	}

	switch envelope.Error {
	case httputil.CodeQuotaExceeded:
		return &billing.QuotaExceededError{CreditType: ct}
	case httputil.CodeInvalidPayment:
		return &billing.ValidationError{Field: envelope.Field, Message: envelope.Message}
	case httputil.CodeInvalidCreditType:
		return billing.ErrInvalidCreditType
	case httputil.CodePlanNotFound:
		return billing.ErrPlanNotFound
	case httputil.CodeAlreadyOnPlan:
		return billing.ErrAlreadyOnPlan
	case httputil.CodeNoSubscription:
		return billing.ErrNoActiveSubscription
	case httputil.CodeConflict:
		return billing.ErrSubscriptionConflict
	case httputil.CodeCatalogUnavailable:
		return billing.ErrCatalogUnavailable
	}

	return &APIError{StatusCode: resp.StatusCode, Code: envelope.Error, Message: envelope.Message}
}
