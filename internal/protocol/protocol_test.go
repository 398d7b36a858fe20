package protocol

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct{ sent []Message }

func (r *recorder) send(m Message) error {
	r.sent = append(r.sent, m)
	return nil
}

func TestDecodeMessage(t *testing.T) {
	msg, err := DecodeMessage([]byte(`{"type":"ping","id":"a1"}`))
	require.NoError(t, err)
	assert.Equal(t, Message{Type: TypePing, ID: "a1"}, msg)

	_, err = DecodeMessage([]byte(`{"id":"a1"}`))
	assert.Error(t, err)
	_, err = DecodeMessage([]byte(`nope`))
	assert.Error(t, err)
}

func TestSnapshotFrameShape(t *testing.T) {
	b, err := json.Marshal(Snapshot(map[string]int{"id": 7}))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"SNAPSHOT","data":{"id":7}}`, string(b))
}

func TestDispatcher(t *testing.T) {
	ctx := context.Background()
	rec := &recorder{}
	resyncs := 0
	d := &Dispatcher{
		Send: rec.send,
		Resync: func(context.Context) (any, error) {
			resyncs++
			if resyncs > 1 {
				return nil, errors.New("db down")
			}
			return "snap", nil
		},
	}

	require.NoError(t, d.HandleMessage(ctx, []byte(`{"type":"PING","id":"1"}`)))
	require.NoError(t, d.HandleMessage(ctx, []byte(`{"type":"resync","id":"2"}`)))
	require.NoError(t, d.HandleMessage(ctx, []byte(`{"type":"RESYNC","id":"3"}`)))
	require.NoError(t, d.HandleMessage(ctx, []byte(`{"type":"SUBSCRIBE"}`)))
	require.NoError(t, d.HandleMessage(ctx, []byte(`garbage`)))

	require.Len(t, rec.sent, 5)
	assert.Equal(t, Message{Type: TypePong, ID: "1"}, rec.sent[0])
	assert.Equal(t, Message{Type: TypeSnapshot, ID: "2", Data: "snap"}, rec.sent[1])
	assert.Equal(t, TypeError, rec.sent[2].Type)
	assert.Equal(t, "3", rec.sent[2].ID)
	assert.Equal(t, TypeError, rec.sent[3].Type)
	assert.Equal(t, TypeError, rec.sent[4].Type)
}

func TestDispatcherSendFailureEndsConnection(t *testing.T) {
	boom := errors.New("closed")
	d := &Dispatcher{Send: func(Message) error { return boom }}
	assert.ErrorIs(t, d.HandleMessage(context.Background(), []byte(`{"type":"PING"}`)), boom)
}
