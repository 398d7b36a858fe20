package protocol

import (
	"context"

	"go.uber.org/zap"

	"github.com/zoravur/orderfeed/internal/logutil"
)

// Dispatcher answers client frames on a stream connection. Send must be
// safe to call from the read loop; it queues the frame for the single
// writer of the connection.
type Dispatcher struct {
	Send func(Message) error
	// Resync is called for RESYNC frames and returns a fresh snapshot.
	Resync func(ctx context.Context) (any, error)
}

// HandleMessage handles one frame received over the connection. Only a
// failure to send ends the connection; bad frames get an ERROR reply.
func (d *Dispatcher) HandleMessage(ctx context.Context, raw []byte) error {
	msg, err := DecodeMessage(raw)
	if err != nil {
		logutil.L(ctx).Debug("bad client frame", zap.Error(err))
		return d.Send(Error("", "invalid message"))
	}

	switch msg.Type {
	case TypePing:
		return d.Send(Message{Type: TypePong, ID: msg.ID})

	case TypeResync:
		if d.Resync == nil {
			return d.Send(Error(msg.ID, "resync not supported"))
		}
		snap, err := d.Resync(ctx)
		if err != nil {
			logutil.L(ctx).Warn("resync failed", zap.Error(err))
			return d.Send(Error(msg.ID, "resync failed"))
		}
		return d.Send(Message{Type: TypeSnapshot, ID: msg.ID, Data: snap})

	default:
		return d.Send(Error(msg.ID, "unknown message type "+msg.Type))
	}
}
