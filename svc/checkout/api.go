package checkout

import (
	"context"
	"strings"
	"time"

	"encore.app/coredb"
	"encore.app/pkg/audit"
	chk "encore.app/pkg/checkout"
	"encore.app/pkg/config"
	"encore.app/pkg/errs"
	"encore.app/pkg/logger"
	"encore.app/pkg/payment"
	"encore.app/pkg/ratelimit"
	cartapi "encore.app/svc/cart"
)

//encore:service
type Service struct {
	orchestrator *chk.Orchestrator
	limiter      *ratelimit.RateLimiter
}

func initService() (*Service, error) {
	cfg := config.Initialize(coredb.DB, 30*time.Second)
	settings := cfg.GetSettings()

	limit := ratelimit.CheckoutRateLimit
	if settings.CheckoutRateLimitPerMinute > 0 {
		limit.MaxAttempts = settings.CheckoutRateLimitPerMinute
	}
	limiter := ratelimit.NewRateLimiter(limit)
	limiter.EnableAutoCleanup(10 * time.Minute)

	payments := payment.NewClient(settings.PaymentsCardURL, settings.PaymentsTransferURL)

	return &Service{
		orchestrator: chk.NewOrchestrator(payments),
		limiter:      limiter,
	}, nil
}

// SubmitRequest is one checkout submission.
type SubmitRequest struct {
	SessionID     string `header:"X-Cart-Session"`
	Authorization string `header:"Authorization"`

	Method   string           `json:"method"` // card | bank_transfer
	Customer chk.CustomerInfo `json:"customer"`
}

// SubmitResponse is the submission outcome. Duplicate submissions are
// suppressed, not failed.
type SubmitResponse struct {
	Duplicate   bool   `json:"duplicate,omitempty"`
	Reference   string `json:"reference,omitempty"`
	RedirectURL string `json:"redirectUrl,omitempty"`
}

// Submit validates the cart and customer, initiates payment and, on
// success, clears the cart and its durable snapshots.
//
//encore:api public method=POST path=/checkout/submit
func (s *Service) Submit(ctx context.Context, req *SubmitRequest) (*SubmitResponse, error) {
	sessionID := strings.TrimSpace(req.SessionID)
	if sessionID == "" {
		return nil, errs.E(ctx, errs.CartSessionRequired, "cart session header is required")
	}
	ctx = logger.WithSessionID(ctx, sessionID)

	if settings := config.GetSettings(); settings != nil && settings.AppMaintenanceMode {
		return nil, errs.E(ctx, errs.ServiceUnavailable, "le paiement est temporairement indisponible, merci de réessayer plus tard")
	}

	key := ratelimit.SessionKey("checkout", sessionID)
	if err := s.limiter.RecordAttempt(key); err != nil {
		retryIn := int(s.limiter.GetTimeUntilReset(key).Seconds())
		return nil, errs.EDetails(ctx, errs.ChkRateLimitExceeded, "too many checkout attempts", map[string]any{
			"retryInSeconds": retryIn,
		})
	}

	cartResp, err := cartapi.GetCart(ctx, &cartapi.GetCartParams{SessionID: sessionID})
	if err != nil {
		return nil, err
	}

	result, err := s.orchestrator.Submit(ctx, &chk.SubmitInput{
		SessionID:  sessionID,
		Cart:       cartResp.Cart,
		Customer:   req.Customer,
		Method:     req.Method,
		AuthHeader: req.Authorization,
	})
	if err != nil {
		// Field attribution travels in the error details.
		return nil, err
	}

	if result.Duplicate {
		return &SubmitResponse{Duplicate: true}, nil
	}

	// The order now lives with the payment backend; drop the cart and
	// its snapshots so a revisit starts clean.
	if _, err := cartapi.ClearCart(ctx, &cartapi.ClearCartParams{SessionID: sessionID}); err != nil {
		logger.Warn(ctx, "failed to clear cart after submission", logger.Fields{"error": err.Error()})
	}
	s.limiter.Reset(key)

	if _, err := audit.LogAction(ctx, coredb.DB, "checkout.submit", "order", result.Reference,
		map[string]interface{}{
			"method": req.Method,
			"items":  len(cartResp.Cart.Items),
		},
		audit.WithSession(sessionID),
		audit.WithEmail(req.Customer.Email),
	); err != nil {
		logger.Warn(ctx, "audit write failed", logger.Fields{"error": err.Error()})
	}

	return &SubmitResponse{
		Reference:   result.Reference,
		RedirectURL: result.RedirectURL,
	}, nil
}
