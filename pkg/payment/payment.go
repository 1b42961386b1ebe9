// Package payment implements the two payment-initiation endpoints:
// hosted card capture and manual bank transfer. On success exactly one
// redirect target is returned: the hosted payment page for cards, the
// transfer-instructions page for bank transfers.
package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"encore.app/pkg/config"
)

var secrets struct {
	HostedPayAPIKey string //encore:secret
}

// Payment methods accepted by the checkout orchestrator.
const (
	MethodCard         = "card"
	MethodBankTransfer = "bank_transfer"
)

// OrderLine is one backend-compatible order line.
type OrderLine struct {
	ProductID   string  `json:"productId"`
	VariantID   string  `json:"variantId,omitempty"`
	Name        string  `json:"name"`
	UnitPrice   float64 `json:"unitPrice"`
	Quantity    int     `json:"quantity"`
	IsGift      bool    `json:"isGift,omitempty"`
	ReferenceID string  `json:"referenceId,omitempty"` // original synthetic id for substituted gift lines
}

// OrderPayload is the transformed order+payment payload.
type OrderPayload struct {
	Reference  string            `json:"reference"`
	Lines      []OrderLine       `json:"lines"`
	Amount     float64           `json:"amount"`
	Currency   string            `json:"currency"`
	Email      string            `json:"email"`
	FirstName  string            `json:"firstName"`
	LastName   string            `json:"lastName"`
	Phone      string            `json:"phone"`
	Address    string            `json:"address"`
	City       string            `json:"city"`
	PostalCode string            `json:"postalCode"`
	Country    string            `json:"country"`
	PromoCode  string            `json:"promoCode,omitempty"`
	Credential string            `json:"-"` // raw bearer credential, forwarded via header
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// InitResult is a successful initiation.
type InitResult struct {
	Reference   string `json:"reference"`
	RedirectURL string `json:"redirectUrl"`
}

// FieldError is a remote validation failure attributed to one field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// InitError is a failed initiation, optionally field-attributed.
type InitError struct {
	Message string       `json:"message"`
	Fields  []FieldError `json:"fields,omitempty"`
}

func (e *InitError) Error() string {
	if len(e.Fields) > 0 {
		return fmt.Sprintf("payment init rejected: %s (field %s)", e.Message, e.Fields[0].Field)
	}
	return "payment init failed: " + e.Message
}

// Client calls the payment initiation services.
type Client struct {
	cardURL     string
	transferURL string
	http        *http.Client
}

// NewClient creates a payment client for the two initiation endpoints.
func NewClient(cardURL, transferURL string) *Client {
	return &Client{
		cardURL:     cardURL,
		transferURL: transferURL,
		http:        &http.Client{Timeout: 15 * time.Second},
	}
}

func inTestMode() bool {
	settings := config.GetSettings()
	return settings == nil || settings.PaymentsTestMode
}

// CreateCardSession initiates a hosted card payment and returns the
// hosted payment page URL.
func (c *Client) CreateCardSession(ctx context.Context, payload *OrderPayload) (*InitResult, error) {
	if secrets.HostedPayAPIKey == "" && inTestMode() {
		ref := fmt.Sprintf("test_%d", time.Now().UTC().UnixNano())
		return &InitResult{Reference: ref, RedirectURL: "https://sandbox.hostedpay.example/pay/" + ref}, nil
	}
	return c.initiate(ctx, c.cardURL, payload)
}

// CreateBankTransferOrder registers a bank transfer order and returns
// the transfer-instructions page URL.
func (c *Client) CreateBankTransferOrder(ctx context.Context, payload *OrderPayload) (*InitResult, error) {
	if secrets.HostedPayAPIKey == "" && inTestMode() {
		ref := fmt.Sprintf("test_%d", time.Now().UTC().UnixNano())
		return &InitResult{Reference: ref, RedirectURL: "https://shop.example/transfer/" + ref}, nil
	}
	return c.initiate(ctx, c.transferURL, payload)
}

type initiateResp struct {
	Reference   string `json:"reference"`
	RedirectURL string `json:"redirectUrl"`
	Message     string `json:"message"`
	Errors      []struct {
		Field   string `json:"field"`
		Message string `json:"message"`
	} `json:"errors"`
}

func (c *Client) initiate(ctx context.Context, url string, payload *OrderPayload) (*InitResult, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(secrets.HostedPayAPIKey, "")
	if cred := strings.TrimSpace(payload.Credential); cred != "" {
		req.Header.Set("Authorization", "Bearer "+cred)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnprocessableEntity || resp.StatusCode == http.StatusBadRequest {
		var out initiateResp
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return nil, &InitError{Message: resp.Status}
		}
		initErr := &InitError{Message: out.Message}
		for _, fe := range out.Errors {
			initErr.Fields = append(initErr.Fields, FieldError{Field: fe.Field, Message: fe.Message})
		}
		return nil, initErr
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &InitError{Message: fmt.Sprintf("payment init failed: %s", resp.Status)}
	}

	var out initiateResp
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	if out.Reference == "" || out.RedirectURL == "" {
		return nil, &InitError{Message: "payment response missing fields"}
	}
	return &InitResult{Reference: out.Reference, RedirectURL: out.RedirectURL}, nil
}
