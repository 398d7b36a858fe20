package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/zoravur/orderfeed/internal/common"
	"github.com/zoravur/orderfeed/internal/logutil"
	"github.com/zoravur/orderfeed/internal/order"
	"github.com/zoravur/orderfeed/internal/protocol"
	"github.com/zoravur/orderfeed/internal/service"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxMessageSize = 4096
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// streamOrder subscribes before upgrading, so an unknown order is a plain
// 404, then pushes one SNAPSHOT frame per change until either side goes
// away.
func (h *Handler) streamOrder(w http.ResponseWriter, r *http.Request) {
	id, err := common.ParseID("order_id", chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	sub, err := h.orders.OpenStream(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer sub.Close()

	log := logutil.L(r.Context()).With(zap.Int64("order_id", id))
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn("upgrade error", zap.Error(err))
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(logutil.WithLogger(r.Context(), log))
	defer cancel()

	out := make(chan protocol.Message, 4)
	d := &protocol.Dispatcher{
		Send: func(m protocol.Message) error {
			select {
			case out <- m:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
		Resync: func(ctx context.Context) (any, error) {
			return h.orders.GetOrder(ctx, id)
		},
	}

	go readLoop(ctx, cancel, conn, d)
	writeLoop(ctx, conn, sub, out)
	log.Debug("stream closed")
}

// readLoop feeds client frames to the dispatcher and cancels ctx when the
// connection breaks.
func readLoop(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, d *protocol.Dispatcher) {
	defer cancel()
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logutil.L(ctx).Debug("ws read error", zap.Error(err))
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		if err := d.HandleMessage(ctx, raw); err != nil {
			return
		}
	}
}

// writeLoop is the only writer of conn.
func writeLoop(ctx context.Context, conn *websocket.Conn, sub *service.Stream, out <-chan protocol.Message) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	// newest snapshot sent so far; a resync reply never goes backwards
	var last order.Snapshot
	for {
		var msg protocol.Message
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-sub.C():
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
					time.Now().Add(writeWait))
				return
			}
			if snap.Rev <= last.Rev {
				continue
			}
			last = snap
			msg = protocol.Snapshot(snap)
		case m := <-out:
			if s, ok := m.Data.(order.Snapshot); ok {
				if s.Rev < last.Rev {
					m.Data = last
				} else {
					last = s
				}
			}
			msg = m
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
			continue
		}

		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(msg); err != nil {
			logutil.L(ctx).Debug("ws write error", zap.Error(err))
			return
		}
	}
}
