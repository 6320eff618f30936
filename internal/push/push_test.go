package push

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	msgs   []kafka.Message
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { w.closed = true; return nil }

func TestKafkaDispatcher_KeysByToken(t *testing.T) {
	w := &fakeWriter{}
	d := &KafkaDispatcher{writer: w}

	err := d.Dispatch(context.Background(), Message{Token: "tok-1", Title: "t", Body: "b", Data: map[string]string{"type": "follow"}})
	require.NoError(t, err)
	require.Len(t, w.msgs, 1)
	assert.Equal(t, "tok-1", string(w.msgs[0].Key))

	var got Message
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &got))
	assert.Equal(t, "follow", got.Data["type"])

	require.NoError(t, d.Close())
	assert.True(t, w.closed)
}

func TestNewKafkaDispatcher_RequiresBrokers(t *testing.T) {
	_, err := NewKafkaDispatcher(nil, "topic")
	assert.Error(t, err)
}
