// Package lahza wraps the Lahza payment gateway's transaction API.
//
// The gateway exposes two calls this server depends on: initialize, which
// opens a hosted checkout and returns a redirect URL, and verify, which
// reports the authoritative transaction status for a reference. Amounts on
// the wire are in the smallest currency unit.
package lahza

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/masterco/lahza-server/internal/circuitbreaker"
	"github.com/masterco/lahza-server/internal/httputil"
	"github.com/masterco/lahza-server/internal/logger"
)

// Client talks to the Lahza transaction API. It is stateless; all payment
// state lives in the payments repository.
type Client struct {
	baseURL    string
	secretKey  string
	httpClient *http.Client
	breaker    *circuitbreaker.Manager
}

// Config holds gateway client settings.
type Config struct {
	BaseURL   string
	SecretKey string
	Timeout   time.Duration
}

// NewClient builds a gateway client. A nil breaker disables circuit breaking.
func NewClient(cfg Config, breaker *circuitbreaker.Manager) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if breaker == nil {
		breaker = circuitbreaker.NewManager(circuitbreaker.Config{Enabled: false})
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		secretKey:  cfg.SecretKey,
		httpClient: httputil.NewClient(timeout),
		breaker:    breaker,
	}
}

// InitializeRequest is the purchase intent sent to the gateway.
type InitializeRequest struct {
	Email       string
	AmountMinor int64
	Currency    string
	Reference   string
	Mobile      string
	FirstName   string
	LastName    string
	Metadata    map[string]any
	CallbackURL string
}

// InitializeResult carries the fields needed to redirect the customer to the
// hosted checkout page.
type InitializeResult struct {
	Reference        string
	AuthorizationURL string
	AccessCode       string
	TransactionID    string
}

// envelope is the common Lahza response shape. The top-level status flag is
// the API call status; the transaction status lives inside data.
type envelope struct {
	Status  bool           `json:"status"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data"`
}

// Initialize opens a transaction and returns the authorization URL the
// customer is redirected to.
func (c *Client) Initialize(ctx context.Context, req InitializeRequest) (InitializeResult, error) {
	if c.secretKey == "" {
		return InitializeResult{}, newError(CategoryConfig, "secret key is not configured", nil)
	}

	payload := map[string]any{
		"email":    req.Email,
		"amount":   req.AmountMinor,
		"currency": strings.ToUpper(req.Currency),
	}
	if req.Reference != "" {
		payload["ref"] = req.Reference
	}
	if req.Mobile != "" {
		payload["mobile"] = req.Mobile
	}
	if req.FirstName != "" {
		payload["firstName"] = req.FirstName
	}
	if req.LastName != "" {
		payload["lastName"] = req.LastName
	}
	if len(req.Metadata) > 0 {
		payload["metadata"] = req.Metadata
	}
	if req.CallbackURL != "" {
		payload["callback_url"] = req.CallbackURL
	}

	log := logger.FromContext(ctx)
	log.Info().
		Str("reference", req.Reference).
		Str("email", logger.RedactEmail(req.Email)).
		Msg("lahza.initialize")

	data, err := c.post(ctx, "/transaction/initialize", payload)
	if err != nil {
		return InitializeResult{}, err
	}

	result := InitializeResult{
		Reference:        stringField(data, "reference"),
		AuthorizationURL: stringField(data, "authorization_url"),
		AccessCode:       stringField(data, "access_code"),
		TransactionID:    stringField(data, "id"),
	}
	if result.Reference == "" {
		result.Reference = req.Reference
	}
	return result, nil
}

// Verify fetches the authoritative transaction payload for a reference. The
// returned map contains at least "status"; amount, currency, customer and
// card fields are present once the gateway has them.
func (c *Client) Verify(ctx context.Context, reference string) (map[string]any, error) {
	if c.secretKey == "" {
		return nil, newError(CategoryConfig, "secret key is not configured", nil)
	}

	log := logger.FromContext(ctx)
	log.Info().
		Str("reference", reference).
		Msg("lahza.verify")

	return c.get(ctx, "/transaction/verify/"+url.PathEscape(reference))
}

func (c *Client) post(ctx context.Context, path string, payload map[string]any) (map[string]any, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, newError(CategoryDecode, "encode request body", err)
	}

	result, err := c.breaker.Execute(circuitbreaker.ServiceLahzaAPI, func() (any, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
		if err != nil {
			return nil, newError(CategoryNetwork, "build request", err)
		}
		req.Header.Set("Content-Type", "application/json")
		return c.do(req)
	})
	if err != nil {
		return nil, err
	}
	return result.(map[string]any), nil
}

func (c *Client) get(ctx context.Context, path string) (map[string]any, error) {
	result, err := c.breaker.Execute(circuitbreaker.ServiceLahzaAPI, func() (any, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
		if err != nil {
			return nil, newError(CategoryNetwork, "build request", err)
		}
		return c.do(req)
	})
	if err != nil {
		return nil, err
	}
	return result.(map[string]any), nil
}

// do executes the request and unwraps the Lahza response envelope.
func (c *Client) do(req *http.Request) (map[string]any, error) {
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, newError(CategoryNetwork, "call gateway", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, newError(CategoryNetwork, "read response", err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, newError(CategoryDecode, "invalid response from gateway", err)
	}

	if resp.StatusCode >= 400 || !env.Status {
		message := env.Message
		if message == "" {
			message = fmt.Sprintf("gateway returned status %d", resp.StatusCode)
		}
		return nil, newError(CategoryAPI, message, nil)
	}

	if env.Data == nil {
		// Some responses flatten fields at the top level.
		var flat map[string]any
		if err := json.Unmarshal(raw, &flat); err != nil {
			return nil, newError(CategoryDecode, "invalid response from gateway", err)
		}
		return flat, nil
	}
	return env.Data, nil
}

func stringField(data map[string]any, key string) string {
	switch v := data[key].(type) {
	case string:
		return v
	case float64:
		return fmt.Sprintf("%.0f", v)
	case json.Number:
		return v.String()
	default:
		return ""
	}
}
