package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/zoravur/orderfeed/internal/common"
	"github.com/zoravur/orderfeed/internal/order"
	"github.com/zoravur/orderfeed/internal/protocol"
	"github.com/zoravur/orderfeed/internal/rpc"
)

type httpBackend struct {
	base   string
	client *http.Client
}

func newHTTPBackend(addr string) *httpBackend {
	base := addr
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	return &httpBackend{base: strings.TrimRight(base, "/"), client: &http.Client{Timeout: 10 * time.Second}}
}

func (h *httpBackend) Close() error { return nil }

func (h *httpBackend) do(ctx context.Context, method, path string, body, out any) error {
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, h.base+path, r)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := h.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		switch resp.StatusCode {
		case http.StatusNotFound:
			return fmt.Errorf("%w: %s", order.ErrNotFound, e.Error)
		case http.StatusBadRequest:
			return fmt.Errorf("%w: %s", order.ErrInvalidArgument, e.Error)
		default:
			return fmt.Errorf("server returned %s: %s", resp.Status, e.Error)
		}
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (h *httpBackend) snapshot(ctx context.Context, method, path string, body any) (order.Snapshot, error) {
	var s order.Snapshot
	err := h.do(ctx, method, path, body, &s)
	return s, err
}

func orderPath(id order.ID, rest ...string) string {
	return "/api/orders/" + strings.Join(append([]string{common.FormatID(id)}, rest...), "/")
}

func (h *httpBackend) List(ctx context.Context) ([]order.Snapshot, error) {
	var list []order.Snapshot
	err := h.do(ctx, http.MethodGet, "/api/orders", nil, &list)
	return list, err
}

func (h *httpBackend) Get(ctx context.Context, id order.ID) (order.Snapshot, error) {
	return h.snapshot(ctx, http.MethodGet, orderPath(id), nil)
}

func (h *httpBackend) Create(ctx context.Context, menuURL string) (order.Snapshot, error) {
	return h.snapshot(ctx, http.MethodPost, "/api/orders", map[string]string{"menu_url": menuURL})
}

func (h *httpBackend) Add(ctx context.Context, id order.ID, e order.NewEntry) (order.Snapshot, error) {
	return h.snapshot(ctx, http.MethodPost, orderPath(id, "entries"), map[string]any{
		"buyer":            e.Buyer,
		"food":             e.Food,
		"price_millicents": e.Price.Raw(),
	})
}

func (h *httpBackend) Remove(ctx context.Context, id, entryID order.ID) (order.Snapshot, error) {
	return h.snapshot(ctx, http.MethodDelete, orderPath(id, "entries", common.FormatID(entryID)), nil)
}

func (h *httpBackend) Pay(ctx context.Context, id, entryID order.ID, paid bool) (order.Snapshot, error) {
	return h.snapshot(ctx, http.MethodPut, orderPath(id, "entries", common.FormatID(entryID), "paid"), map[string]bool{"paid": paid})
}

func (h *httpBackend) State(ctx context.Context, id order.ID, next order.State) (order.Snapshot, error) {
	return h.snapshot(ctx, http.MethodPut, orderPath(id, "state"), map[string]string{"state": next.String()})
}

func (h *httpBackend) Watch(ctx context.Context, id order.ID, fn func(order.Snapshot)) error {
	u, err := url.Parse(h.base + orderPath(id, "stream"))
	if err != nil {
		return err
	}
	u.Scheme = strings.Replace(u.Scheme, "http", "ws", 1)

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return fmt.Errorf("%w: order %d", order.ErrNotFound, id)
		}
		return err
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	for {
		var msg struct {
			Type string          `json:"type"`
			Data json.RawMessage `json:"data"`
		}
		if err := conn.ReadJSON(&msg); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				return nil
			}
			return err
		}
		if msg.Type != protocol.TypeSnapshot {
			continue
		}
		var snap order.Snapshot
		if err := json.Unmarshal(msg.Data, &snap); err != nil {
			return err
		}
		fn(snap)
	}
}

type grpcBackend struct {
	c *rpc.Client
}

func (g *grpcBackend) Close() error { return g.c.Close() }

func (g *grpcBackend) List(ctx context.Context) ([]order.Snapshot, error) { return g.c.GetOrders(ctx) }

func (g *grpcBackend) Get(ctx context.Context, id order.ID) (order.Snapshot, error) {
	return g.c.GetOrder(ctx, id)
}

func (g *grpcBackend) Create(ctx context.Context, menuURL string) (order.Snapshot, error) {
	return g.c.CreateOrder(ctx, menuURL)
}

func (g *grpcBackend) Add(ctx context.Context, id order.ID, e order.NewEntry) (order.Snapshot, error) {
	return g.c.AddOrderEntry(ctx, id, e)
}

func (g *grpcBackend) Remove(ctx context.Context, id, entryID order.ID) (order.Snapshot, error) {
	return g.c.RemoveOrderEntry(ctx, id, entryID)
}

func (g *grpcBackend) Pay(ctx context.Context, id, entryID order.ID, paid bool) (order.Snapshot, error) {
	return g.c.SetOrderEntryPaid(ctx, id, entryID, paid)
}

func (g *grpcBackend) State(ctx context.Context, id order.ID, next order.State) (order.Snapshot, error) {
	return g.c.UpdateOrderState(ctx, id, next)
}

func (g *grpcBackend) Watch(ctx context.Context, id order.ID, fn func(order.Snapshot)) error {
	stream, err := g.c.StreamOrderUpdates(ctx, id)
	if err != nil {
		return err
	}
	for {
		snap, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		fn(snap)
	}
}
