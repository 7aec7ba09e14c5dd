package regtank

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/time/rate"
)

// Config holds the settings needed to talk to the verification vendor
type Config struct {
	BaseURL           string
	TokenURL          string
	ClientID          string
	ClientSecret      string
	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
}

// Observer is notified after every vendor call
type Observer func(op string, err error, d time.Duration)

// Option customizes a Client
type Option func(*Client)

// WithHTTPClient replaces the OAuth2-authenticated HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithObserver installs a call observer, typically a metrics hook
func WithObserver(obs Observer) Option {
	return func(c *Client) {
		c.observer = obs
	}
}

// Client is the verification vendor API client. It is constructed once at
// process start and injected into the services that need it.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	observer   Observer
}

// NewClient creates a vendor client authenticated with OAuth2 client credentials
func NewClient(cfg Config, opts ...Option) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 5
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 10
	}

	c := &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}

	if cfg.ClientID != "" {
		cc := clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
		}
		// The token endpoint gets the same timeout as API calls
		tokenCtx := context.WithValue(context.Background(), oauth2.HTTPClient, &http.Client{Timeout: timeout})
		c.httpClient = cc.Client(tokenCtx)
		c.httpClient.Timeout = timeout
	} else {
		c.httpClient = &http.Client{Timeout: timeout}
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// CreateIndividualOnboarding starts an individual onboarding flow
func (c *Client) CreateIndividualOnboarding(ctx context.Context, req IndividualOnboardingRequest) (*OnboardingResponse, error) {
	var resp OnboardingResponse
	raw, err := c.do(ctx, "create_individual_onboarding", http.MethodPost, "/v3/onboarding/indv/request", req, &resp)
	if err != nil {
		return nil, err
	}
	resp.Raw = raw
	return &resp, nil
}

// CreateCorporateOnboarding starts a corporate onboarding flow
func (c *Client) CreateCorporateOnboarding(ctx context.Context, req CorporateOnboardingRequest) (*OnboardingResponse, error) {
	var resp OnboardingResponse
	raw, err := c.do(ctx, "create_corporate_onboarding", http.MethodPost, "/v3/onboarding/corp/request", req, &resp)
	if err != nil {
		return nil, err
	}
	resp.Raw = raw
	return &resp, nil
}

// GetOnboardingDetails fetches the vendor's current status for a flow
func (c *Client) GetOnboardingDetails(ctx context.Context, kind Kind, requestID string) (*OnboardingDetails, error) {
	var details OnboardingDetails
	path := fmt.Sprintf("/v3/onboarding/%s/query?requestId=%s", kind, url.QueryEscape(requestID))
	raw, err := c.do(ctx, "get_onboarding_details", http.MethodGet, path, nil, &details)
	if err != nil {
		return nil, err
	}
	details.Raw = raw
	return &details, nil
}

// RestartOnboarding issues a fresh verify link for an existing flow
func (c *Client) RestartOnboarding(ctx context.Context, kind Kind, requestID string) (*OnboardingResponse, error) {
	var resp OnboardingResponse
	body := map[string]string{"requestId": requestID}
	raw, err := c.do(ctx, "restart_onboarding", http.MethodPost, fmt.Sprintf("/v3/onboarding/%s/restart", kind), body, &resp)
	if err != nil {
		return nil, err
	}
	resp.Raw = raw
	if resp.RequestID == "" {
		resp.RequestID = requestID
	}
	return &resp, nil
}

// SetWebhookPreferences registers the webhook endpoint with the vendor
func (c *Client) SetWebhookPreferences(ctx context.Context, prefs WebhookPreferences) error {
	_, err := c.do(ctx, "set_webhook_preferences", http.MethodPost, "/v3/settings/webhook", prefs, nil)
	return err
}

// SetOnboardingSettings configures the vendor-side flow for a kind
func (c *Client) SetOnboardingSettings(ctx context.Context, kind Kind, settings OnboardingSettings) error {
	_, err := c.do(ctx, "set_onboarding_settings", http.MethodPost, fmt.Sprintf("/v3/onboarding/%s/setting", kind), settings, nil)
	return err
}

// vendorErrorBody is the error envelope returned by the vendor
type vendorErrorBody struct {
	Code    string `json:"code"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (c *Client) do(ctx context.Context, op, method, path string, body interface{}, out interface{}) (raw json.RawMessage, err error) {
	start := time.Now()
	defer func() {
		if c.observer != nil {
			c.observer(op, err, time.Since(start))
		}
	}()

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &VendorError{Op: op, Code: CodeRateLimited, Message: "rate limiter wait failed", Err: err}
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal %s payload: %w", op, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		code := CodeTransport
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			code = CodeTimeout
		} else if ue, ok := err.(*url.Error); ok && ue.Timeout() {
			code = CodeTimeout
		}
		return nil, &VendorError{Op: op, Code: code, Message: "request failed", Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &VendorError{Op: op, Code: CodeTransport, Message: "failed to read response body", Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		verr := &VendorError{Op: op, StatusCode: resp.StatusCode, Code: http.StatusText(resp.StatusCode), Message: string(respBody)}
		var eb vendorErrorBody
		if json.Unmarshal(respBody, &eb) == nil {
			if eb.Code != "" {
				verr.Code = eb.Code
			} else if eb.Error != "" {
				verr.Code = eb.Error
			}
			if eb.Message != "" {
				verr.Message = eb.Message
			}
		}
		return nil, verr
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return nil, &VendorError{Op: op, StatusCode: resp.StatusCode, Code: CodeBadResponse, Message: "failed to decode response", Err: err}
		}
	}

	return json.RawMessage(respBody), nil
}
