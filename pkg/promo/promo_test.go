package promo

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestValidateMapsVerdict(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		resp := map[string]any{
			"success":  true,
			"valid":    req.Code == "ETE2026",
			"code":     req.Code,
			"discount": 5.00,
			"type":     TypeFixed,
			"message":  "ok",
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	client := NewClient(srv.URL)

	result, err := client.Validate(context.Background(), &Request{Code: "ETE2026", CartTotal: 40})
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if !result.Applied {
		t.Error("valid code not applied")
	}
	if result.Discount != 5.00 {
		t.Errorf("Discount = %v, want 5", result.Discount)
	}

	// success=true but valid=false must not apply.
	result, err = client.Validate(context.Background(), &Request{Code: "EXPIRED", CartTotal: 40})
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if result.Applied {
		t.Error("invalid code applied")
	}
}

func TestValidateServiceError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	if _, err := NewClient(srv.URL).Validate(context.Background(), &Request{Code: "X"}); err == nil {
		t.Error("Validate succeeded on server error")
	}
}
