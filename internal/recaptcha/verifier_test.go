package recaptcha

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestVerifier(serverURL string) *HTTPVerifier {
	return NewHTTPVerifier(Config{
		Enabled:   true,
		SecretKey: "test-secret",
		VerifyURL: serverURL,
	}, nil)
}

func TestVerify_ValidToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		if got := r.PostForm.Get("secret"); got != "test-secret" {
			t.Errorf("secret = %q", got)
		}
		if got := r.PostForm.Get("response"); got != "tok-1" {
			t.Errorf("response = %q", got)
		}
		if got := r.PostForm.Get("remoteip"); got != "203.0.113.9" {
			t.Errorf("remoteip = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success": true, "score": 0.9}`))
	}))
	defer server.Close()

	v := newTestVerifier(server.URL)
	if err := v.Verify(context.Background(), "tok-1", "203.0.113.9"); err != nil {
		t.Fatalf("Verify: %v", err)
	}
}

func TestVerify_RejectedToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success": false, "error-codes": ["invalid-input-response"]}`))
	}))
	defer server.Close()

	v := newTestVerifier(server.URL)
	if err := v.Verify(context.Background(), "bad-token", ""); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("error = %v, want ErrInvalidToken", err)
	}
}

func TestVerify_EmptyToken(t *testing.T) {
	v := newTestVerifier("http://unused.invalid")
	if err := v.Verify(context.Background(), "", ""); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("error = %v, want ErrInvalidToken", err)
	}
}

func TestVerify_ServiceUnreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	v := newTestVerifier(server.URL)
	if err := v.Verify(context.Background(), "tok-1", ""); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("error = %v, want ErrUnavailable", err)
	}
}

func TestVerify_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	v := newTestVerifier(server.URL)
	if err := v.Verify(context.Background(), "tok-1", ""); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("error = %v, want ErrUnavailable", err)
	}
}

func TestVerify_MissingSecret(t *testing.T) {
	v := NewHTTPVerifier(Config{Enabled: true, VerifyURL: "http://unused.invalid"}, nil)
	if err := v.Verify(context.Background(), "tok-1", ""); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("error = %v, want ErrUnavailable", err)
	}
}

func TestNew_DisabledConfig(t *testing.T) {
	v := New(Config{Enabled: false}, nil)
	if v.Enabled() {
		t.Error("disabled config produced an enforcing verifier")
	}
	if err := v.Verify(context.Background(), "", ""); err != nil {
		t.Errorf("disabled verifier returned %v", err)
	}
}
