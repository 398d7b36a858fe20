package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/zoravur/orderfeed/internal/common"
	"github.com/zoravur/orderfeed/internal/logutil"
	"github.com/zoravur/orderfeed/internal/order"
	"github.com/zoravur/orderfeed/internal/service"
)

const maxBodyBytes = 1 << 16

type Handler struct {
	orders *service.Orders
}

type createOrderRequest struct {
	MenuURL string `json:"menu_url"`
}

// stateRequest takes the state by name ("closed") or number (2).
type stateRequest struct {
	State json.RawMessage `json:"state"`
}

// addEntryRequest takes the price either as raw millicents or as a euro
// string such as "9.50".
type addEntryRequest struct {
	Buyer           string `json:"buyer"`
	Food            string `json:"food"`
	PriceMillicents *int64 `json:"price_millicents"`
	Price           string `json:"price"`
}

type paidRequest struct {
	Paid *bool `json:"paid"`
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	list, err := h.orders.ListOrders(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	id, err := common.ParseID("order_id", chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	snap, err := h.orders.GetOrder(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	snap, err := h.orders.CreateOrder(r.Context(), strings.TrimSpace(req.MenuURL))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, snap)
}

func (h *Handler) updateState(w http.ResponseWriter, r *http.Request) {
	id, err := common.ParseID("order_id", chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req stateRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	var name string
	if err := json.Unmarshal(req.State, &name); err != nil {
		name = string(req.State)
	}
	next, err := order.ParseState(name)
	if err != nil {
		writeError(w, r, err)
		return
	}
	snap, err := h.orders.UpdateState(r.Context(), id, next)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *Handler) addEntry(w http.ResponseWriter, r *http.Request) {
	id, err := common.ParseID("order_id", chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req addEntryRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	var price order.Millicents
	switch {
	case req.PriceMillicents != nil:
		price, err = order.FromRaw(*req.PriceMillicents)
	case req.Price != "":
		price, err = order.ParseEuro(req.Price)
	default:
		err = &order.ValidationError{Field: "price", Reason: "required"}
	}
	if err != nil {
		writeError(w, r, err)
		return
	}

	snap, err := h.orders.AddEntry(r.Context(), id, order.NewEntry{Buyer: req.Buyer, Food: req.Food, Price: price})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *Handler) removeEntry(w http.ResponseWriter, r *http.Request) {
	id, entryID, err := entryPath(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	snap, err := h.orders.RemoveEntry(r.Context(), id, entryID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *Handler) setEntryPaid(w http.ResponseWriter, r *http.Request) {
	id, entryID, err := entryPath(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req paidRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Paid == nil {
		writeError(w, r, &order.ValidationError{Field: "paid", Reason: "required"})
		return
	}
	snap, err := h.orders.SetEntryPaid(r.Context(), id, entryID, *req.Paid)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func entryPath(r *http.Request) (order.ID, order.ID, error) {
	id, err := common.ParseID("order_id", chi.URLParam(r, "id"))
	if err != nil {
		return 0, 0, err
	}
	entryID, err := common.ParseID("entry_id", chi.URLParam(r, "entryID"))
	if err != nil {
		return 0, 0, err
	}
	return id, entryID, nil
}

func decode(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return &order.ValidationError{Field: "body", Reason: fmt.Sprintf("invalid JSON: %v", err)}
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// httpStatus maps the service error taxonomy onto HTTP.
func httpStatus(err error) int {
	switch {
	case errors.Is(err, order.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, order.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrShuttingDown):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := httpStatus(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		logutil.L(r.Context()).Error("request failed", zap.Error(err))
		msg = "internal error"
	}
	writeJSON(w, status, map[string]string{"error": msg})
}
