// Package reconcile orchestrates the three payment entry points: initialize,
// verify and webhook. All three converge on the same payment record, in any
// order and redundantly; the orchestrator's job is to keep that convergence
// idempotent and to never let a transient gateway hiccup turn into a
// prematurely failed payment.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	apperrors "github.com/masterco/lahza-server/internal/errors"
	"github.com/masterco/lahza-server/internal/lahza"
	"github.com/masterco/lahza-server/internal/logger"
	"github.com/masterco/lahza-server/internal/metrics"
	"github.com/masterco/lahza-server/internal/money"
	"github.com/masterco/lahza-server/internal/offers"
	"github.com/masterco/lahza-server/internal/payments"
	"github.com/masterco/lahza-server/internal/recaptcha"
	"github.com/masterco/lahza-server/internal/settings"
)

// Gateway is the outbound payment API surface the orchestrator needs.
type Gateway interface {
	Initialize(ctx context.Context, req lahza.InitializeRequest) (lahza.InitializeResult, error)
	Verify(ctx context.Context, reference string) (map[string]any, error)
}

// ReceiptQueue accepts receipts for asynchronous delivery.
type ReceiptQueue interface {
	Enqueue(rec payments.Record) bool
}

// Service wires the entry points to their collaborators.
type Service struct {
	repo          payments.Repository
	gateway       Gateway
	captcha       recaptcha.Verifier
	receipts      ReceiptQueue
	settings      settings.Repository
	offers        *offers.Catalog
	metrics       *metrics.Metrics
	publicBaseURL string
}

// Config holds orchestrator settings.
type Config struct {
	// PublicBaseURL is the externally reachable base of this server, used to
	// build gateway callback URLs.
	PublicBaseURL string
}

// NewService builds the orchestrator. A nil catalog means no server-side
// price list; request amounts are used as submitted.
func NewService(
	cfg Config,
	repo payments.Repository,
	gateway Gateway,
	captcha recaptcha.Verifier,
	receipts ReceiptQueue,
	settingsRepo settings.Repository,
	catalog *offers.Catalog,
	m *metrics.Metrics,
) *Service {
	if captcha == nil {
		captcha = recaptcha.Disabled{}
	}
	if catalog == nil {
		catalog = offers.Empty()
	}
	if m == nil {
		m = metrics.New()
	}
	return &Service{
		repo:          repo,
		gateway:       gateway,
		captcha:       captcha,
		receipts:      receipts,
		settings:      settingsRepo,
		offers:        catalog,
		metrics:       m,
		publicBaseURL: strings.TrimRight(cfg.PublicBaseURL, "/"),
	}
}

var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// InitializeInput is a purchase intent from a checkout page.
type InitializeInput struct {
	Email     string
	FirstName string
	LastName  string
	FullName  string
	Mobile    string
	Address   string

	Amount   decimal.Decimal
	Currency string

	OfferType string
	OfferName string

	Source   string
	PagePath string

	RecaptchaToken string
	RemoteIP       string

	Metadata map[string]any
}

// InitializeOutput is what the checkout page needs to redirect the customer.
type InitializeOutput struct {
	Reference        string `json:"reference"`
	AuthorizationURL string `json:"authorizationUrl"`
	AccessCode       string `json:"accessCode,omitempty"`
	TransactionID    string `json:"transactionId,omitempty"`
}

// Initialize validates a purchase intent, creates a pending record and opens
// a gateway transaction. A gateway failure leaves the pending record in place
// as evidence of the attempt.
func (s *Service) Initialize(ctx context.Context, input InitializeInput) (InitializeOutput, error) {
	log := logger.FromContext(ctx)

	if err := s.checkCaptcha(ctx, input.RecaptchaToken, input.RemoteIP); err != nil {
		return InitializeOutput{}, err
	}

	sale, err := s.settings.GetActive(ctx)
	if err != nil {
		return InitializeOutput{}, wrapError(apperrors.ErrCodeInternalError, "sale settings unavailable", err)
	}
	if !sale.CheckoutEnabled {
		return InitializeOutput{}, newError(apperrors.ErrCodeInvalidField, "checkout is currently disabled")
	}

	email := strings.TrimSpace(input.Email)
	if email == "" {
		return InitializeOutput{}, newError(apperrors.ErrCodeMissingField, "email is required")
	}
	if !emailPattern.MatchString(email) {
		return InitializeOutput{}, newError(apperrors.ErrCodeInvalidEmail, "email address is not valid")
	}

	source := s.resolveSource(input.Source, input.PagePath, sale)

	amount := input.Amount
	currency := input.Currency
	offerName := input.OfferName
	if input.OfferType != "" {
		if offer, ok := s.offers.Get(input.OfferType); ok {
			if !offer.AvailableFor(source) {
				return InitializeOutput{}, newError(apperrors.ErrCodeInvalidField,
					fmt.Sprintf("offer %q is not available on this channel", offer.Type))
			}
			// Catalog prices are authoritative; submitted amounts are ignored
			// for catalog offers so a tampered client cannot set its own price.
			amount = offer.Amount
			if offer.Currency != "" {
				currency = offer.Currency
			}
			offerName = offer.Name
		}
	}

	if !amount.IsPositive() {
		return InitializeOutput{}, newError(apperrors.ErrCodeInvalidAmount, "amount must be greater than zero")
	}
	currency, err = normalizeCurrency(currency, sale.DefaultCurrency)
	if err != nil {
		return InitializeOutput{}, newError(apperrors.ErrCodeInvalidField, err.Error())
	}

	reference, err := s.freshReference(ctx, source)
	if err != nil {
		return InitializeOutput{}, err
	}

	metadata := make(map[string]any, len(input.Metadata)+2)
	for k, v := range input.Metadata {
		metadata[k] = v
	}
	if input.PagePath != "" {
		metadata["pagePath"] = input.PagePath
	}

	rec, err := s.repo.Create(ctx, payments.CreateParams{
		Reference: reference,
		Name:      customerName(input),
		Email:     email,
		Mobile:    normalizeMobile(input.Mobile),
		Address:   strings.TrimSpace(input.Address),
		Amount:    amount,
		Currency:  currency,
		OfferType: input.OfferType,
		OfferName: offerName,
		Source:    source,
		Metadata:  metadata,
	})
	if err != nil {
		if errors.Is(err, payments.ErrDuplicateReference) {
			return InitializeOutput{}, wrapError(apperrors.ErrCodeDuplicateReference, "payment reference collision", err)
		}
		return InitializeOutput{}, wrapError(apperrors.ErrCodeDatabaseError, "could not create payment record", err)
	}

	started := time.Now()
	result, err := s.gateway.Initialize(ctx, lahza.InitializeRequest{
		Email:       email,
		AmountMinor: money.ToMinorUnits(amount),
		Currency:    currency,
		Reference:   reference,
		Mobile:      rec.Mobile,
		FirstName:   strings.TrimSpace(input.FirstName),
		LastName:    strings.TrimSpace(input.LastName),
		Metadata: map[string]any{
			"source":    source,
			"offerType": input.OfferType,
		},
		CallbackURL: s.callbackURL(source, reference),
	})
	if err != nil {
		s.metrics.ObserveGatewayCall("initialize", started, string(lahza.CategoryOf(err)))
		log.Error().Err(err).Str("reference", reference).Msg("gateway initialize failed, record stays pending")
		return InitializeOutput{}, translateGatewayError(err)
	}
	s.metrics.ObserveGatewayCall("initialize", started, "")

	if result.TransactionID != "" {
		if err := s.repo.SetTransactionID(ctx, reference, result.TransactionID); err != nil {
			log.Warn().Err(err).Str("reference", reference).Msg("could not store transaction id")
		}
	}

	s.metrics.PaymentsInitialized.WithLabelValues(source).Inc()
	log.Info().
		Str("reference", reference).
		Str("source", source).
		Str("email", logger.RedactEmail(email)).
		Msg("payment initialized")

	return InitializeOutput{
		Reference:        reference,
		AuthorizationURL: result.AuthorizationURL,
		AccessCode:       result.AccessCode,
		TransactionID:    result.TransactionID,
	}, nil
}

// VerifyInput identifies the record to reconcile. Seed fields are used only
// if a placeholder has to be created.
type VerifyInput struct {
	Reference string
	Seed      payments.PlaceholderSeed

	// EntryPoint labels metrics: "verify" for the synchronous endpoint,
	// "webhook" for webhook-triggered reconciliation.
	EntryPoint string
}

// VerifyOutput reports the record state after reconciliation.
type VerifyOutput struct {
	Reference     string          `json:"reference"`
	Status        string          `json:"status"`
	Amount        decimal.Decimal `json:"amount,omitempty"`
	Currency      string          `json:"currency,omitempty"`
	Email         string          `json:"email,omitempty"`
	TransactionID string          `json:"transactionId,omitempty"`
	Message       string          `json:"message,omitempty"`
}

// Verify fetches the authoritative gateway status for a reference and
// transitions the record accordingly. Gateway failures report pending; the
// caller is expected to poll.
func (s *Service) Verify(ctx context.Context, input VerifyInput) (VerifyOutput, error) {
	log := logger.FromContext(ctx)

	reference := strings.TrimSpace(input.Reference)
	if reference == "" {
		return VerifyOutput{}, newError(apperrors.ErrCodeMissingReference, "reference is required")
	}
	entryPoint := input.EntryPoint
	if entryPoint == "" {
		entryPoint = "verify"
	}

	rec, created, err := s.repo.FindOrCreatePlaceholder(ctx, reference, input.Seed)
	if err != nil {
		return VerifyOutput{}, wrapError(apperrors.ErrCodeDatabaseError, "could not load payment record", err)
	}
	if created {
		s.metrics.PlaceholdersCreated.Inc()
		log.Info().Str("reference", reference).Msg("placeholder record created ahead of initialize")
	}

	started := time.Now()
	payload, err := s.gateway.Verify(ctx, reference)
	if err != nil {
		s.metrics.ObserveGatewayCall("verify", started, string(lahza.CategoryOf(err)))
		log.Warn().Err(err).Str("reference", reference).Msg("gateway verify failed, reporting pending")
		return VerifyOutput{
			Reference: reference,
			Status:    string(payments.StatusPending),
			Message:   "verification is still in progress, please retry shortly",
		}, nil
	}
	s.metrics.ObserveGatewayCall("verify", started, "")

	return s.applyGatewayPayload(ctx, rec, payload, entryPoint)
}

// applyGatewayPayload folds an authoritative verify payload into the record.
func (s *Service) applyGatewayPayload(ctx context.Context, rec payments.Record, payload map[string]any, entryPoint string) (VerifyOutput, error) {
	log := logger.FromContext(ctx)
	reference := rec.Reference

	status, _ := payments.ExtractStatus(payload)

	switch {
	case payments.IsSuccessStatus(status):
		updated, err := s.repo.MarkSuccess(ctx, reference, payload)
		if err != nil {
			return VerifyOutput{}, wrapError(apperrors.ErrCodeDatabaseError, "could not record payment success", err)
		}
		s.metrics.PaymentsSucceeded.WithLabelValues(entryPoint).Inc()
		s.enqueueReceipt(ctx, updated)
		log.Info().
			Str("reference", reference).
			Str("entry_point", entryPoint).
			Msg("payment confirmed")
		return successOutput(updated), nil

	case strings.EqualFold(strings.TrimSpace(status), string(payments.StatusPending)):
		if _, err := s.repo.CacheGatewayResponse(ctx, reference, payload); err != nil {
			log.Warn().Err(err).Str("reference", reference).Msg("could not cache gateway response")
		}
		return VerifyOutput{
			Reference: reference,
			Status:    string(payments.StatusPending),
		}, nil

	default:
		updated, err := s.repo.MarkFailed(ctx, reference, status)
		if err != nil {
			if errors.Is(err, payments.ErrAlreadySucceeded) {
				// A contradictory late signal after a recorded success. Keep
				// the success and make noise; flipping state here would lose a
				// real payment.
				log.Error().
					Str("reference", reference).
					Str("late_status", status).
					Msg("ignoring failure signal for an already-successful payment")
				return successOutput(updated), nil
			}
			return VerifyOutput{}, wrapError(apperrors.ErrCodeDatabaseError, "could not record payment failure", err)
		}
		s.metrics.PaymentsFailed.WithLabelValues(entryPoint).Inc()
		log.Info().
			Str("reference", reference).
			Str("gateway_status", status).
			Msg("payment failed")
		return VerifyOutput{
			Reference: reference,
			Status:    status,
		}, nil
	}
}

// WebhookOutput acknowledges a webhook delivery.
type WebhookOutput struct {
	Reference string `json:"reference"`
	Status    string `json:"status"`
}

// Webhook processes an asynchronous gateway callback. The payload shape
// varies by event type, so extraction is tolerant; money fields are never
// trusted from the webhook body itself, only from a follow-up verify call.
func (s *Service) Webhook(ctx context.Context, payload map[string]any) (WebhookOutput, error) {
	log := logger.FromContext(ctx)

	reference, ok := payments.ExtractReference(payload)
	if !ok {
		s.metrics.WebhooksReceived.WithLabelValues("missing_reference").Inc()
		return WebhookOutput{}, newError(apperrors.ErrCodeMissingReference, "webhook payload carries no reference")
	}
	status, _ := payments.ExtractStatus(payload)

	rec, err := s.repo.GetByReference(ctx, reference)
	if errors.Is(err, payments.ErrNotFound) {
		// The webhook raced ahead of everything else. Reconstruct from an
		// authoritative verify; if the gateway is unreachable the 404 lets it
		// redeliver later.
		verified, verr := s.gateway.Verify(ctx, reference)
		if verr != nil {
			s.metrics.WebhooksReceived.WithLabelValues("unknown_reference").Inc()
			log.Warn().Err(verr).Str("reference", reference).Msg("webhook for unknown reference, verify failed")
			return WebhookOutput{}, wrapError(apperrors.ErrCodePaymentNotFound, "unknown payment reference", verr)
		}
		seed := placeholderSeedFrom(verified)
		if rec, _, err = s.repo.FindOrCreatePlaceholder(ctx, reference, seed); err != nil {
			return WebhookOutput{}, wrapError(apperrors.ErrCodeDatabaseError, "could not create payment record", err)
		}
		s.metrics.PlaceholdersCreated.Inc()
	} else if err != nil {
		return WebhookOutput{}, wrapError(apperrors.ErrCodeDatabaseError, "could not load payment record", err)
	}

	switch {
	case payments.IsSuccessStatus(status):
		started := time.Now()
		authoritative, verr := s.gateway.Verify(ctx, reference)
		if verr != nil {
			s.metrics.ObserveGatewayCall("verify", started, string(lahza.CategoryOf(verr)))
			s.metrics.WebhooksReceived.WithLabelValues("verify_failed").Inc()
			log.Warn().Err(verr).Str("reference", reference).Msg("webhook success signal but verify failed, caching body")
			if _, err := s.repo.CacheGatewayResponse(ctx, reference, payload); err != nil {
				log.Warn().Err(err).Str("reference", reference).Msg("could not cache webhook payload")
			}
			return WebhookOutput{Reference: reference, Status: string(rec.Status)}, nil
		}
		s.metrics.ObserveGatewayCall("verify", started, "")

		out, err := s.applyGatewayPayload(ctx, rec, authoritative, "webhook")
		if err != nil {
			return WebhookOutput{}, err
		}
		s.metrics.WebhooksReceived.WithLabelValues("success").Inc()
		return WebhookOutput{Reference: reference, Status: out.Status}, nil

	case payments.IsFailureStatus(status):
		updated, err := s.repo.MarkFailed(ctx, reference, status)
		if err != nil {
			if errors.Is(err, payments.ErrAlreadySucceeded) {
				log.Error().
					Str("reference", reference).
					Str("late_status", status).
					Msg("ignoring webhook failure for an already-successful payment")
				s.metrics.WebhooksReceived.WithLabelValues("late_failure").Inc()
				return WebhookOutput{Reference: reference, Status: string(updated.Status)}, nil
			}
			return WebhookOutput{}, wrapError(apperrors.ErrCodeDatabaseError, "could not record payment failure", err)
		}
		s.metrics.WebhooksReceived.WithLabelValues("failure").Inc()
		s.metrics.PaymentsFailed.WithLabelValues("webhook").Inc()
		return WebhookOutput{Reference: reference, Status: string(updated.Status)}, nil

	default:
		// Inconclusive event; keep the raw body for later reconciliation.
		updated, err := s.repo.CacheGatewayResponse(ctx, reference, payload)
		if err != nil {
			return WebhookOutput{}, wrapError(apperrors.ErrCodeDatabaseError, "could not cache webhook payload", err)
		}
		s.metrics.WebhooksReceived.WithLabelValues("cached").Inc()
		return WebhookOutput{Reference: reference, Status: string(updated.Status)}, nil
	}
}

func (s *Service) checkCaptcha(ctx context.Context, token, remoteIP string) error {
	if !s.captcha.Enabled() {
		return nil
	}
	if token == "" {
		return newError(apperrors.ErrCodeCaptchaInvalid, "captcha token is required")
	}
	err := s.captcha.Verify(ctx, token, remoteIP)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, recaptcha.ErrInvalidToken):
		return newError(apperrors.ErrCodeCaptchaInvalid, "captcha verification failed")
	default:
		return wrapError(apperrors.ErrCodeCaptchaUnavailable, "captcha verification is temporarily unavailable", err)
	}
}

// freshReference generates a reference and confirms it is unused. Collisions
// are practically impossible with 128-bit tokens; the loop is a loud failure
// path, not an expected one.
func (s *Service) freshReference(ctx context.Context, source string) (string, error) {
	for attempt := 0; attempt < 5; attempt++ {
		reference := payments.NewReference(source)
		_, err := s.repo.GetByReference(ctx, reference)
		if errors.Is(err, payments.ErrNotFound) {
			return reference, nil
		}
		if err != nil {
			return "", wrapError(apperrors.ErrCodeDatabaseError, "could not check reference uniqueness", err)
		}
	}
	return "", newError(apperrors.ErrCodeInternalError, "could not generate a unique payment reference")
}

func (s *Service) resolveSource(explicit, pagePath string, sale settings.Settings) string {
	if explicit == "" && pagePath == "" && sale.ActiveSale != "" {
		return payments.DeriveSource(sale.ActiveSale, "")
	}
	return payments.DeriveSource(explicit, pagePath)
}

// callbackURL points the gateway redirect at the verify endpoint of the
// originating channel, with the reference pre-bound.
func (s *Service) callbackURL(source, reference string) string {
	if s.publicBaseURL == "" {
		return ""
	}
	return fmt.Sprintf("%s/payment/verify/%s?reference=%s", s.publicBaseURL, source, reference)
}

func (s *Service) enqueueReceipt(ctx context.Context, rec payments.Record) {
	if s.receipts == nil {
		return
	}
	if s.receipts.Enqueue(rec) {
		s.metrics.ReceiptsQueued.Inc()
	} else {
		s.metrics.ReceiptsDropped.Inc()
		log := logger.FromContext(ctx)
		log.Error().
			Str("reference", rec.Reference).
			Msg("receipt could not be queued")
	}
}

func successOutput(rec payments.Record) VerifyOutput {
	return VerifyOutput{
		Reference:     rec.Reference,
		Status:        string(payments.StatusSuccess),
		Amount:        rec.Amount,
		Currency:      rec.Currency,
		Email:         rec.Email,
		TransactionID: rec.TransactionID,
	}
}

func placeholderSeedFrom(payload map[string]any) payments.PlaceholderSeed {
	seed := payments.PlaceholderSeed{}
	if email, ok := payments.FirstString(payload, "customer.email", "data.customer.email"); ok {
		seed.Email = email
	}
	if name, ok := payments.FirstString(payload, "customer.name", "data.customer.name"); ok {
		seed.Name = name
	}
	return seed
}

func customerName(input InitializeInput) string {
	first := strings.TrimSpace(input.FirstName)
	last := strings.TrimSpace(input.LastName)
	if first != "" || last != "" {
		return strings.TrimSpace(first + " " + last)
	}
	return strings.TrimSpace(input.FullName)
}

// normalizeMobile trims separators and converts a 00 international prefix to
// +. Anything else passes through untouched; the gateway revalidates.
func normalizeMobile(mobile string) string {
	mobile = strings.TrimSpace(mobile)
	mobile = strings.NewReplacer(" ", "", "-", "", "(", "", ")", "").Replace(mobile)
	if strings.HasPrefix(mobile, "00") {
		mobile = "+" + mobile[2:]
	}
	return mobile
}

func normalizeCurrency(currency, fallback string) (string, error) {
	if strings.TrimSpace(currency) == "" {
		currency = fallback
	}
	return money.NormalizeCurrency(currency)
}

func translateGatewayError(err error) *Error {
	switch lahza.CategoryOf(err) {
	case lahza.CategoryTimeout:
		return wrapError(apperrors.ErrCodeGatewayTimeout, "the payment provider timed out, please try again", err)
	case lahza.CategoryNetwork:
		return wrapError(apperrors.ErrCodeNetworkError, "could not reach the payment provider, please try again", err)
	case lahza.CategoryConfig:
		return wrapError(apperrors.ErrCodeConfigError, "payment processing is misconfigured", err)
	default:
		return wrapError(apperrors.ErrCodeGatewayError, "the payment provider rejected the request", err)
	}
}
