package checkout

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/dmartins/storefront-core/internal/domain"
	"github.com/dmartins/storefront-core/internal/identity"
	"github.com/dmartins/storefront-core/internal/ledger"
)

type Handler struct {
	service *Service
	logger  *slog.Logger
}

func NewHandler(service *Service, logger *slog.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
	}
}

func (h *Handler) HandleCheckout(w http.ResponseWriter, r *http.Request) {
	shopperID := identity.ShopperID(r)

	ticket, err := h.service.Checkout(r.Context(), shopperID)
	if err != nil {
		var stockErr *domain.InsufficientStockError
		switch {
		case errors.Is(err, ErrEmptyCart):
			h.writeError(w, http.StatusBadRequest, err.Error())
		case errors.As(err, &stockErr):
			h.writeError(w, http.StatusConflict, stockErr.Error())
		case errors.Is(err, ErrTicketCodeCollision):
			h.writeError(w, http.StatusConflict, err.Error())
		default:
			h.logger.Error("checkout failed", "error", err, "shopper_id", shopperID)
			h.writeError(w, http.StatusInternalServerError, "internal server error")
		}
		return
	}

	h.writeJSON(w, http.StatusCreated, ticket)
}

func (h *Handler) HandleListTickets(w http.ResponseWriter, r *http.Request) {
	shopperID := identity.ShopperID(r)

	tickets, err := h.service.TicketsByPurchaser(r.Context(), shopperID)
	if err != nil {
		h.logger.Error("failed to list tickets", "error", err, "shopper_id", shopperID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.writeJSON(w, http.StatusOK, tickets)
}

func (h *Handler) HandleGetTicket(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")
	if code == "" {
		h.writeError(w, http.StatusBadRequest, "missing ticket code")
		return
	}

	ticket, err := h.service.TicketByCode(r.Context(), code)
	if err != nil {
		h.logger.Error("failed to get ticket", "error", err, "code", code)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if ticket == nil {
		h.writeError(w, http.StatusNotFound, "ticket not found")
		return
	}

	h.writeJSON(w, http.StatusOK, ticket)
}

type updateStatusRequest struct {
	Status domain.TicketStatus `json:"status"`
}

func (h *Handler) HandleUpdateTicketStatus(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")
	if code == "" {
		h.writeError(w, http.StatusBadRequest, "missing ticket code")
		return
	}

	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ticket, err := h.service.UpdateTicketStatus(r.Context(), code, req.Status)
	if err != nil {
		switch {
		case errors.Is(err, ledger.ErrTicketNotFound):
			h.writeError(w, http.StatusNotFound, "ticket not found")
		case errors.Is(err, ledger.ErrIllegalTransition):
			h.writeError(w, http.StatusConflict, err.Error())
		default:
			h.logger.Error("failed to update ticket status", "error", err, "code", code)
			h.writeError(w, http.StatusInternalServerError, "internal server error")
		}
		return
	}

	h.logger.Info("ticket status updated", "code", code, "status", ticket.Status)
	h.writeJSON(w, http.StatusOK, ticket)
}

func (h *Handler) HandleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Stats(r.Context())
	if err != nil {
		h.logger.Error("failed to compute purchase stats", "error", err)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
