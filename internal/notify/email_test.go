package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNewEmailRelayRequiresCredentials(t *testing.T) {
	if _, err := NewEmailRelay(EmailConfig{ServiceID: "s", TemplateID: "t"}); err == nil {
		t.Fatal("missing public key accepted")
	}
	if _, err := NewEmailRelay(EmailConfig{ServiceID: "s", TemplateID: "t", PublicKey: "k"}); err != nil {
		t.Fatalf("complete config rejected: %v", err)
	}
}

func TestEmailRelayPostsTemplateParams(t *testing.T) {
	var got emailPayload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Fatalf("method %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Fatalf("content type %q", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode payload: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	relay, err := NewEmailRelay(EmailConfig{
		Endpoint:   server.URL,
		ServiceID:  "svc",
		TemplateID: "tpl",
		PublicKey:  "key",
	})
	if err != nil {
		t.Fatalf("NewEmailRelay: %v", err)
	}

	err = relay.Notify(context.Background(), Notification{
		ToEmail:         "grantee@example.com",
		FromDisplayName: "Owner",
		CredentialTitle: "GitHub",
	})
	if err != nil {
		t.Fatalf("Notify: %v", err)
	}

	if got.ServiceID != "svc" || got.TemplateID != "tpl" || got.UserID != "key" {
		t.Fatalf("payload credentials: %+v", got)
	}
	params := got.TemplateParams
	if params["to_email"] != "grantee@example.com" || params["from_name"] != "Owner" || params["password_title"] != "GitHub" {
		t.Fatalf("template params: %v", params)
	}
}

func TestEmailRelayReportsHTTPFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad key", http.StatusForbidden)
	}))
	defer server.Close()

	relay, err := NewEmailRelay(EmailConfig{Endpoint: server.URL, ServiceID: "s", TemplateID: "t", PublicKey: "k"})
	if err != nil {
		t.Fatalf("NewEmailRelay: %v", err)
	}
	if err := relay.Notify(context.Background(), Notification{ToEmail: "x@example.com"}); err == nil {
		t.Fatal("expected error on non-2xx response")
	}
}

func TestNoopRelay(t *testing.T) {
	if err := (Noop{}).Notify(context.Background(), Notification{}); err != nil {
		t.Fatalf("Noop.Notify: %v", err)
	}
}
