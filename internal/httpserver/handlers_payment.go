package httpserver

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	apperrors "github.com/masterco/lahza-server/internal/errors"
	"github.com/masterco/lahza-server/internal/logger"
	"github.com/masterco/lahza-server/internal/payments"
	"github.com/masterco/lahza-server/internal/reconcile"
	"github.com/masterco/lahza-server/pkg/responders"
)

const maxBodyBytes = 1 << 20

type initializeRequest struct {
	Email          string          `json:"email"`
	FirstName      string          `json:"firstName"`
	LastName       string          `json:"lastName"`
	FullName       string          `json:"fullName"`
	Mobile         string          `json:"mobile"`
	Address        string          `json:"address"`
	Amount         decimal.Decimal `json:"amount"`
	Currency       string          `json:"currency"`
	OfferType      string          `json:"offerType"`
	OfferName      string          `json:"offerName"`
	Source         string          `json:"source"`
	PagePath       string          `json:"pagePath"`
	RecaptchaToken string          `json:"recaptchaToken"`
	Metadata       map[string]any  `json:"metadata"`
}

func (s *handlers) initializePayment(w http.ResponseWriter, r *http.Request) {
	var req initializeRequest
	if err := decodeJSON(r, &req); err != nil {
		apperrors.WriteSimpleError(w, apperrors.ErrCodeInvalidField, "request body is not valid JSON")
		return
	}

	out, err := s.service.Initialize(r.Context(), reconcile.InitializeInput{
		Email:          req.Email,
		FirstName:      req.FirstName,
		LastName:       req.LastName,
		FullName:       req.FullName,
		Mobile:         req.Mobile,
		Address:        req.Address,
		Amount:         req.Amount,
		Currency:       req.Currency,
		OfferType:      req.OfferType,
		OfferName:      req.OfferName,
		Source:         req.Source,
		PagePath:       req.PagePath,
		RecaptchaToken: req.RecaptchaToken,
		RemoteIP:       r.RemoteAddr,
		Metadata:       req.Metadata,
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	responders.OK(w, map[string]any{
		"success":          true,
		"reference":        out.Reference,
		"authorizationUrl": out.AuthorizationURL,
		"accessCode":       out.AccessCode,
	})
}

type verifyRequest struct {
	Reference string `json:"reference"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	Mobile    string `json:"mobile"`
}

func (s *handlers) verifyPayment(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if r.Method == http.MethodPost {
		// Body is optional; the redirect flow carries everything in the query.
		_ = decodeJSON(r, &req)
	}
	if ref := r.URL.Query().Get("reference"); ref != "" {
		req.Reference = ref
	}
	if req.Email == "" {
		req.Email = r.URL.Query().Get("email")
	}

	out, err := s.service.Verify(r.Context(), reconcile.VerifyInput{
		Reference: req.Reference,
		Seed: payments.PlaceholderSeed{
			Name:   req.Name,
			Email:  req.Email,
			Mobile: req.Mobile,
			Source: chi.URLParam(r, "source"),
		},
		EntryPoint: "verify",
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	resp := map[string]any{
		"success":   out.Status == string(payments.StatusSuccess),
		"status":    out.Status,
		"reference": out.Reference,
	}
	if out.Status == string(payments.StatusSuccess) {
		resp["amount"] = out.Amount
		resp["currency"] = out.Currency
		resp["email"] = out.Email
		if out.TransactionID != "" {
			resp["transactionId"] = out.TransactionID
		}
	}
	if out.Message != "" {
		resp["message"] = out.Message
	}
	responders.OK(w, resp)
}

func (s *handlers) handleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		apperrors.WriteSimpleError(w, apperrors.ErrCodeInvalidField, "could not read webhook body")
		return
	}

	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		apperrors.WriteSimpleError(w, apperrors.ErrCodeInvalidField, "webhook body is not valid JSON")
		return
	}

	out, err := s.service.Webhook(r.Context(), payload)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	responders.OK(w, map[string]any{
		"success":   true,
		"reference": out.Reference,
		"status":    out.Status,
	})
}

func (s *handlers) listOffers(w http.ResponseWriter, _ *http.Request) {
	responders.OK(w, map[string]any{"offers": s.catalog.List()})
}

func (s *handlers) health(w http.ResponseWriter, _ *http.Request) {
	responders.OK(w, map[string]any{
		"status":         "ok",
		"uptime_seconds": int(time.Since(serverStartTime).Seconds()),
	})
}

// writeServiceError maps orchestrator errors onto the standard error body.
func (s *handlers) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	log := logger.FromContext(r.Context())
	var svcErr *reconcile.Error
	if errors.As(err, &svcErr) {
		log.Warn().
			Err(err).
			Str("code", string(svcErr.Code)).
			Msg("payment request rejected")
		apperrors.WriteSimpleError(w, svcErr.Code, svcErr.Message)
		return
	}

	log.Error().Err(err).Msg("payment request failed")
	apperrors.WriteSimpleError(w, apperrors.ErrCodeInternalError, "internal error")
}

func decodeJSON(r *http.Request, dst any) error {
	defer func() {
		_, _ = io.Copy(io.Discard, r.Body)
	}()
	return json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(dst)
}
