package natsadapter

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RobertNikolasTorres/GeoSentinelPro/internal/logic"
	"github.com/RobertNikolasTorres/GeoSentinelPro/internal/notify"
)

func TestSubject(t *testing.T) {
	assert.Equal(t, "geosentinel.notifications.entry", Subject(notify.Notification{EventType: logic.EventEntry}))
	assert.Equal(t, "geosentinel.notifications.exit", Subject(notify.Notification{EventType: logic.EventExit}))
}

func TestPublisherRoundTrip(t *testing.T) {
	// Requires a running NATS server; set NATS_URL (e.g. nats://localhost:4222).
	url := os.Getenv("NATS_URL")
	if url == "" {
		t.Skip("env NATS_URL not set")
	}

	sub, err := nats.Connect(url)
	require.NoError(t, err)
	defer sub.Close()
	msgs := make(chan *nats.Msg, 1)
	s, err := sub.ChanSubscribe(SubjectPrefix+">", msgs)
	require.NoError(t, err)
	defer s.Unsubscribe()
	require.NoError(t, sub.Flush())

	p, err := NewPublisher(url, false)
	require.NoError(t, err)
	defer p.Close()

	n := notify.FromEvent(logic.Event{
		Timestamp:    time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
		Type:         logic.EventExit,
		GeofenceID:   "work",
		GeofenceName: "Work",
	})
	require.NoError(t, p.Notify(context.Background(), n))

	select {
	case m := <-msgs:
		assert.Equal(t, "geosentinel.notifications.exit", m.Subject)
		var got notify.Payload
		require.NoError(t, json.Unmarshal(m.Data, &got))
		assert.Equal(t, "Left Work", got.Notification.Title)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for notification")
	}
}
