package lahza

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func decodeJSONBody(t *testing.T, r *http.Request, target any) {
	t.Helper()
	if err := json.NewDecoder(r.Body).Decode(target); err != nil {
		t.Fatalf("decode request body: %v", err)
	}
}

func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(Config{BaseURL: srv.URL, SecretKey: "sk_test_key"}, nil)
}

func TestInitialize_Success(t *testing.T) {
	var gotAuth string
	var gotBody map[string]any
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/transaction/initialize" {
			t.Errorf("path = %q", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		decodeJSONBody(t, r, &gotBody)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":true,"data":{"reference":"CK-ABC","authorization_url":"https://checkout.lahza.io/pay/abc","access_code":"ac_123"}}`))
	})

	result, err := client.Initialize(context.Background(), InitializeRequest{
		Email:       "a@b.com",
		AmountMinor: 2500,
		Currency:    "usd",
		Reference:   "CK-ABC",
		FirstName:   "Ada",
		CallbackURL: "https://site.example/checkout/payment/verify?reference=CK-ABC",
	})
	if err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if gotAuth != "Bearer sk_test_key" {
		t.Errorf("auth header = %q", gotAuth)
	}
	if gotBody["ref"] != "CK-ABC" {
		t.Errorf("ref = %v", gotBody["ref"])
	}
	if gotBody["currency"] != "USD" {
		t.Errorf("currency = %v", gotBody["currency"])
	}
	if gotBody["amount"].(float64) != 2500 {
		t.Errorf("amount = %v", gotBody["amount"])
	}
	if result.AuthorizationURL != "https://checkout.lahza.io/pay/abc" {
		t.Errorf("authorization url = %q", result.AuthorizationURL)
	}
	if result.AccessCode != "ac_123" {
		t.Errorf("access code = %q", result.AccessCode)
	}
}

func TestInitialize_MissingSecretKey(t *testing.T) {
	client := NewClient(Config{BaseURL: "https://api.lahza.io"}, nil)
	_, err := client.Initialize(context.Background(), InitializeRequest{Email: "a@b.com", AmountMinor: 100})
	var gwErr *Error
	if !errors.As(err, &gwErr) || gwErr.Category != CategoryConfig {
		t.Fatalf("expected config error, got %v", err)
	}
}

func TestInitialize_APIRefusal(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":false,"message":"Invalid amount"}`))
	})

	_, err := client.Initialize(context.Background(), InitializeRequest{Email: "a@b.com", AmountMinor: 100})
	var gwErr *Error
	if !errors.As(err, &gwErr) {
		t.Fatalf("expected gateway error, got %v", err)
	}
	if gwErr.Category != CategoryAPI {
		t.Errorf("category = %q", gwErr.Category)
	}
	if gwErr.Message != "Invalid amount" {
		t.Errorf("message = %q", gwErr.Message)
	}
}

func TestInitialize_NonJSONResponse(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>gateway down</html>"))
	})

	_, err := client.Initialize(context.Background(), InitializeRequest{Email: "a@b.com", AmountMinor: 100})
	if CategoryOf(err) != CategoryDecode {
		t.Fatalf("expected decode error, got %v", err)
	}
}

func TestInitialize_HTTPError(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"status":false}`))
	})

	_, err := client.Initialize(context.Background(), InitializeRequest{Email: "a@b.com", AmountMinor: 100})
	if CategoryOf(err) != CategoryAPI {
		t.Fatalf("expected api error, got %v", err)
	}
}

func TestVerify_ReturnsTransactionData(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/transaction/verify/CK-ABC" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if r.Method != http.MethodGet {
			t.Errorf("method = %q", r.Method)
		}
		w.Write([]byte(`{"status":true,"data":{"status":"success","amount":2500,"currency":"USD","id":90210,"customer":{"email":"a@b.com"}}}`))
	})

	data, err := client.Verify(context.Background(), "CK-ABC")
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if data["status"] != "success" {
		t.Errorf("status = %v", data["status"])
	}
	if data["amount"].(float64) != 2500 {
		t.Errorf("amount = %v", data["amount"])
	}
}

func TestVerify_NetworkError(t *testing.T) {
	// Closed server to force a connection failure.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()
	client := NewClient(Config{BaseURL: srv.URL, SecretKey: "sk"}, nil)

	_, err := client.Verify(context.Background(), "CK-ABC")
	var gwErr *Error
	if !errors.As(err, &gwErr) {
		t.Fatalf("expected gateway error, got %v", err)
	}
	if gwErr.Category != CategoryNetwork && gwErr.Category != CategoryTimeout {
		t.Errorf("category = %q", gwErr.Category)
	}
}
