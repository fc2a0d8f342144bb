package notify

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dmartins/storefront-core/internal/domain"
)

func newTestHandler(emailURL string) *ReceiptHandler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewReceiptHandler(NewReceiptClient(emailURL, http.DefaultClient), logger)
}

func eventPayload(t *testing.T) []byte {
	t.Helper()

	payload, err := json.Marshal(domain.TicketCreatedEvent{
		TicketCode:  "TICKET-AAA-000001",
		ShopperID:   "shopper-1",
		AmountCents: 122500,
		Lines: []domain.TicketLine{
			{ProductID: "PROD-001", Title: "Notebook", Quantity: 1, PriceCents: 120000},
			{ProductID: "PROD-002", Title: "Mouse", Quantity: 1, PriceCents: 2500},
		},
		PurchaseDate: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("failed to marshal event: %v", err)
	}
	return payload
}

func TestReceiptHandler_Handle(t *testing.T) {
	ctx := context.Background()

	t.Run("sends a receipt for a valid event", func(t *testing.T) {
		var got map[string]string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/send" {
				t.Errorf("unexpected path %q", r.URL.Path)
			}
			if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
				t.Errorf("failed to decode send request: %v", err)
			}
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		if err := newTestHandler(server.URL).Handle(ctx, eventPayload(t)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if got["to"] != "shopper-1@example.com" {
			t.Errorf("unexpected recipient %q", got["to"])
		}
		if !strings.Contains(got["subject"], "TICKET-AAA-000001") {
			t.Errorf("subject must reference the ticket, got %q", got["subject"])
		}
		if !strings.Contains(got["body"], "1 x Notebook @ $1200.00") {
			t.Errorf("body must list the lines, got %q", got["body"])
		}
		if !strings.Contains(got["body"], "Total: $1225.00") {
			t.Errorf("body must state the total, got %q", got["body"])
		}
	})

	t.Run("delivery failure commits the message anyway", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer server.Close()

		if err := newTestHandler(server.URL).Handle(ctx, eventPayload(t)); err != nil {
			t.Fatalf("delivery failure must not surface, got %v", err)
		}
	})

	t.Run("malformed payloads are dropped", func(t *testing.T) {
		if err := newTestHandler("http://unused").Handle(ctx, []byte("{not json")); err != nil {
			t.Fatalf("malformed payload must be dropped, got %v", err)
		}
	})
}
