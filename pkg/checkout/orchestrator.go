package checkout

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"

	"encore.app/pkg/authn"
	"encore.app/pkg/cart"
	"encore.app/pkg/config"
	"encore.app/pkg/errs"
	"encore.app/pkg/logger"
	"encore.app/pkg/metrics"
	"encore.app/pkg/payment"
)

// giftPlaceholderProductID substitutes synthetic gift identifiers in
// the order payload; the order backend has no catalog entry for them.
// The original identifier travels in the line's reference field.
const giftPlaceholderProductID = "00000000-0000-0000-0000-000000000000"

// PaymentInitiator abstracts the two payment-initiation calls.
type PaymentInitiator interface {
	CreateCardSession(ctx context.Context, payload *payment.OrderPayload) (*payment.InitResult, error)
	CreateBankTransferOrder(ctx context.Context, payload *payment.OrderPayload) (*payment.InitResult, error)
}

// SubmitInput is one checkout submission.
type SubmitInput struct {
	SessionID  string
	Cart       *cart.View
	Customer   CustomerInfo
	Method     string
	AuthHeader string // optional bearer token, advisory identity only
}

// Result is a submission outcome. Duplicate marks a submission
// suppressed because another one for the same session is still in
// flight; it is not an error.
type Result struct {
	Duplicate   bool        `json:"duplicate,omitempty"`
	Reference   string      `json:"reference,omitempty"`
	RedirectURL string      `json:"redirectUrl,omitempty"`
	FieldErrors FieldErrors `json:"fieldErrors,omitempty"`
}

// Orchestrator serializes submissions per session and dispatches the
// selected payment method.
type Orchestrator struct {
	mu       sync.Mutex
	inFlight map[string]bool

	payments PaymentInitiator
}

// NewOrchestrator creates a checkout orchestrator.
func NewOrchestrator(payments PaymentInitiator) *Orchestrator {
	return &Orchestrator{
		inFlight: make(map[string]bool),
		payments: payments,
	}
}

// Submit validates and dispatches one checkout. A second submission for
// the same session while one is in flight is silently suppressed with
// Duplicate=true. The in-flight flag is released on every exit path.
func (o *Orchestrator) Submit(ctx context.Context, in *SubmitInput) (*Result, error) {
	o.mu.Lock()
	if o.inFlight[in.SessionID] {
		o.mu.Unlock()
		metrics.CheckoutSubmissionsTotal.WithLabelValues("duplicate").Inc()
		logger.Debug(ctx, "duplicate submission suppressed", logger.Fields{"session_id": in.SessionID})
		return &Result{Duplicate: true}, nil
	}
	o.inFlight[in.SessionID] = true
	o.mu.Unlock()

	defer func() {
		o.mu.Lock()
		delete(o.inFlight, in.SessionID)
		o.mu.Unlock()
	}()

	result, err := o.submit(ctx, in)
	if err != nil {
		return result, err
	}
	metrics.CheckoutSubmissionsTotal.WithLabelValues("succeeded").Inc()
	return result, nil
}

func (o *Orchestrator) submit(ctx context.Context, in *SubmitInput) (*Result, error) {
	if in.Cart == nil || in.Cart.IsEmpty() {
		metrics.CheckoutSubmissionsTotal.WithLabelValues("invalid").Inc()
		return nil, errs.E(ctx, errs.ChkEmptyCart, "cart is empty")
	}
	if in.Method != payment.MethodCard && in.Method != payment.MethodBankTransfer {
		metrics.CheckoutSubmissionsTotal.WithLabelValues("invalid").Inc()
		return nil, errs.E(ctx, errs.PayInvalidRequest, "unknown payment method")
	}

	settings := config.GetSettings()
	if settings != nil && !settings.PaymentsEnabled {
		metrics.CheckoutSubmissionsTotal.WithLabelValues("invalid").Inc()
		return nil, errs.E(ctx, errs.PayMethodDisabled, "payments are currently disabled")
	}

	customer := in.Customer

	// An account token overrides the typed email. The token is decoded
	// without signature verification; it steers convenience only, the
	// order backend re-authenticates.
	if email := authn.EmailFromBearer(in.AuthHeader); email != "" {
		if !strings.EqualFold(email, strings.TrimSpace(customer.Email)) {
			logger.Warn(ctx, "form email overridden by account email", logger.Fields{
				"session_id": in.SessionID,
			})
		}
		customer.Email = email
	}

	if v := customer.Validate(); !v.Valid {
		metrics.CheckoutSubmissionsTotal.WithLabelValues("invalid").Inc()
		return &Result{FieldErrors: v.Errors},
			errs.EDetails(ctx, errs.ChkValidationFailed, "customer information is invalid", map[string]any{
				"errors":       v.Errors,
				"firstInvalid": v.FirstInvalid,
			})
	}

	payload := buildPayload(in, &customer, settings)

	metrics.PaymentInitTotal.WithLabelValues(in.Method).Inc()

	var initResult *payment.InitResult
	var err error
	switch in.Method {
	case payment.MethodCard:
		initResult, err = o.payments.CreateCardSession(ctx, payload)
	case payment.MethodBankTransfer:
		initResult, err = o.payments.CreateBankTransferOrder(ctx, payload)
	}
	if err != nil {
		metrics.CheckoutSubmissionsTotal.WithLabelValues("failed").Inc()
		if initErr, ok := err.(*payment.InitError); ok && len(initErr.Fields) > 0 {
			// Remote rejections attributed to form fields flow back
			// into the form.
			fe := FieldErrors{}
			for _, f := range initErr.Fields {
				fe[f.Field] = f.Message
			}
			return &Result{FieldErrors: fe},
				errs.EDetails(ctx, errs.ChkValidationFailed, "order was rejected", fe)
		}
		logger.LogError(ctx, err, "payment initiation failed", logger.Fields{
			"session_id": in.SessionID,
			"method":     in.Method,
		})
		return nil, errs.E(ctx, errs.PayInitFailed, "payment could not be initiated")
	}

	logger.Info(ctx, "checkout submitted", logger.Fields{
		"session_id": in.SessionID,
		"method":     in.Method,
		"reference":  initResult.Reference,
	})
	return &Result{Reference: initResult.Reference, RedirectURL: initResult.RedirectURL}, nil
}

// buildPayload transforms the cart view into the order payload. Gift
// lines keep their quantity but swap the synthetic identifier for the
// backend placeholder, preserving the original as a reference.
func buildPayload(in *SubmitInput, customer *CustomerInfo, settings *config.SystemSettings) *payment.OrderPayload {
	view := in.Cart

	lines := make([]payment.OrderLine, 0, len(view.Items))
	for _, it := range view.Items {
		line := payment.OrderLine{
			ProductID: it.ProductID,
			VariantID: it.VariantID,
			Name:      it.Name,
			UnitPrice: it.UnitPrice,
			Quantity:  it.Quantity,
			IsGift:    it.IsGift,
		}
		if it.IsGift {
			line.ProductID = giftPlaceholderProductID
			line.ReferenceID = it.ProductID
			line.UnitPrice = 0
		}
		lines = append(lines, line)
	}

	amount := view.EstimatedTotal
	currency := "EUR"
	if settings != nil {
		currency = settings.PaymentsCurrency
	}
	if view.Totals != nil {
		amount = view.Totals.Total
		if view.Totals.Currency != "" {
			currency = view.Totals.Currency
		}
	}

	return &payment.OrderPayload{
		Reference:  uuid.New().String(),
		Lines:      lines,
		Amount:     amount,
		Currency:   currency,
		Email:      customer.Email,
		FirstName:  customer.FirstName,
		LastName:   customer.LastName,
		Phone:      customer.Phone,
		Address:    customer.Address,
		City:       customer.City,
		PostalCode: customer.PostalCode,
		Country:    customer.Country,
		PromoCode:  view.PromoCode,
		Credential: strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(in.AuthHeader), "Bearer ")),
	}
}
