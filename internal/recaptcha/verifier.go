// Package recaptcha verifies Google reCAPTCHA tokens for checkout abuse
// protection.
package recaptcha

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/masterco/lahza-server/internal/circuitbreaker"
	"github.com/masterco/lahza-server/internal/httputil"
)

// ErrInvalidToken means Google evaluated the token and rejected it.
var ErrInvalidToken = errors.New("recaptcha: token rejected")

// ErrUnavailable means the verification service could not be reached or gave
// an unusable answer. Callers should surface a retryable error, not a
// rejection.
var ErrUnavailable = errors.New("recaptcha: verification unavailable")

// Verifier checks a client-supplied captcha token.
type Verifier interface {
	// Verify returns nil for a valid token, ErrInvalidToken for a rejected
	// one, and ErrUnavailable when no verdict could be obtained.
	Verify(ctx context.Context, token, remoteIP string) error

	// Enabled reports whether verification is enforced.
	Enabled() bool
}

// Config holds verification settings.
type Config struct {
	Enabled   bool
	SecretKey string
	VerifyURL string
	Timeout   time.Duration
}

// HTTPVerifier calls Google's siteverify endpoint.
type HTTPVerifier struct {
	secretKey  string
	verifyURL  string
	httpClient *http.Client
	breaker    *circuitbreaker.Manager
}

// NewHTTPVerifier builds a verifier. A nil breaker disables circuit breaking.
func NewHTTPVerifier(cfg Config, breaker *circuitbreaker.Manager) *HTTPVerifier {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if breaker == nil {
		breaker = circuitbreaker.NewManager(circuitbreaker.Config{Enabled: false})
	}
	return &HTTPVerifier{
		secretKey:  cfg.SecretKey,
		verifyURL:  cfg.VerifyURL,
		httpClient: httputil.NewClient(timeout),
		breaker:    breaker,
	}
}

func (v *HTTPVerifier) Enabled() bool { return true }

type siteverifyResponse struct {
	Success    bool     `json:"success"`
	Score      float64  `json:"score"`
	ErrorCodes []string `json:"error-codes"`
}

func (v *HTTPVerifier) Verify(ctx context.Context, token, remoteIP string) error {
	if token == "" {
		return ErrInvalidToken
	}
	if v.secretKey == "" {
		return fmt.Errorf("%w: secret key not configured", ErrUnavailable)
	}

	form := url.Values{}
	form.Set("secret", v.secretKey)
	form.Set("response", token)
	if remoteIP != "" {
		form.Set("remoteip", remoteIP)
	}

	result, err := v.breaker.Execute(circuitbreaker.ServiceRecaptcha, func() (any, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.verifyURL, strings.NewReader(form.Encode()))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		resp, err := v.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		if err != nil {
			return nil, err
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("siteverify returned status %d", resp.StatusCode)
		}

		var verdict siteverifyResponse
		if err := json.Unmarshal(body, &verdict); err != nil {
			return nil, fmt.Errorf("decode siteverify response: %w", err)
		}
		return verdict, nil
	})
	if err != nil {
		log.Warn().Err(err).Msg("recaptcha verification unreachable")
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	verdict := result.(siteverifyResponse)
	if !verdict.Success {
		log.Info().Strs("error_codes", verdict.ErrorCodes).Msg("recaptcha token rejected")
		return ErrInvalidToken
	}
	return nil
}

// Disabled is a no-op verifier used when captcha enforcement is off.
type Disabled struct{}

func (Disabled) Verify(context.Context, string, string) error { return nil }
func (Disabled) Enabled() bool                                { return false }

// New picks the right verifier for the configuration.
func New(cfg Config, breaker *circuitbreaker.Manager) Verifier {
	if !cfg.Enabled {
		return Disabled{}
	}
	return NewHTTPVerifier(cfg, breaker)
}
