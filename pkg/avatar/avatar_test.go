package avatar

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func testConfig(url string) Config {
	return Config{
		URL:               url,
		Token:             "test-token",
		CurrentSigningKey: "current-key",
		NextSigningKey:    "next-key",
	}
}

func TestStartCall(t *testing.T) {
	t.Parallel()

	var gotAuth string
	var gotReq startCallRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/calls" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(Call{ID: "call-1", SessionID: gotReq.SessionID, JoinURL: "wss://join"})
	}))
	defer srv.Close()

	client, err := NewClient(testConfig(srv.URL))
	if err != nil {
		t.Fatalf("NewClient error = %v", err)
	}

	call, err := client.StartCall(context.Background(), "sess-1", "5551234567", "caller has two appointments")
	if err != nil {
		t.Fatalf("StartCall error = %v", err)
	}
	if call.ID != "call-1" || call.SessionID != "sess-1" {
		t.Fatalf("unexpected call %+v", call)
	}
	if gotAuth != "Bearer test-token" {
		t.Fatalf("unexpected auth header %q", gotAuth)
	}
	if gotReq.Phone != "5551234567" || gotReq.ContextPrompt == "" {
		t.Fatalf("unexpected request payload %+v", gotReq)
	}
}

func TestStartCallSurfacesHTTPErrors(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	client, _ := NewClient(testConfig(srv.URL))
	if _, err := client.StartCall(context.Background(), "sess-1", "", ""); err == nil {
		t.Fatal("expected error for non-2xx response")
	}
}

func TestVerifyWebhookAcceptsEitherKey(t *testing.T) {
	t.Parallel()

	client, _ := NewClient(testConfig("http://provider.local"))
	body := []byte(`{"tool":"book_appointment"}`)

	if err := client.VerifyWebhook(sign("current-key", body), body); err != nil {
		t.Fatalf("current key rejected: %v", err)
	}
	// Key rotation window: the next key is valid too.
	if err := client.VerifyWebhook(sign("next-key", body), body); err != nil {
		t.Fatalf("next key rejected: %v", err)
	}
}

func TestVerifyWebhookRejectsBadSignatures(t *testing.T) {
	t.Parallel()

	client, _ := NewClient(testConfig("http://provider.local"))
	body := []byte(`{"tool":"book_appointment"}`)

	if err := client.VerifyWebhook(sign("wrong-key", body), body); !errors.Is(err, ErrBadSignature) {
		t.Fatalf("expected ErrBadSignature, got %v", err)
	}
	if err := client.VerifyWebhook("", body); !errors.Is(err, ErrBadSignature) {
		t.Fatalf("expected ErrBadSignature for empty signature, got %v", err)
	}
	if err := client.VerifyWebhook(sign("current-key", body), []byte("tampered")); !errors.Is(err, ErrBadSignature) {
		t.Fatalf("expected ErrBadSignature for tampered body, got %v", err)
	}
}

func TestNewClientValidatesConfig(t *testing.T) {
	t.Parallel()

	if _, err := NewClient(Config{Token: "t", CurrentSigningKey: "k"}); err == nil {
		t.Fatal("expected error for missing url")
	}
	if _, err := NewClient(Config{URL: "http://provider.local", Token: "t"}); err == nil {
		t.Fatal("expected error for missing signing key")
	}
}
