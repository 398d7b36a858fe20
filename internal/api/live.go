package api

import (
	"net/http"

	"github.com/zoravur/orderfeed/internal/service"
)

type liveView struct {
	Orders        any    `json:"orders"`
	Subscriptions int    `json:"subscriptions"`
	Delivered     uint64 `json:"delivered"`
	Dropped       uint64 `json:"dropped"`
}

// handleLiveOrders shows which orders are being watched, for debugging.
func handleLiveOrders(w http.ResponseWriter, r *http.Request, reg *service.Registry) {
	st := reg.Stats()
	writeJSON(w, http.StatusOK, liveView{
		Orders:        reg.View(),
		Subscriptions: st.Active,
		Delivered:     st.Delivered,
		Dropped:       st.Dropped,
	})
}
