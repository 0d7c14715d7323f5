package notify

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/saloneworks/tax-compliance-backend/internal/domain/compliance"
)

func newTestNotifier(t *testing.T) (*RedisNotifier, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewRedisNotifier(client, zaptest.NewLogger(t)), mr
}

func TestRedisNotifier_PublishesAlerts(t *testing.T) {
	notifier, mr := newTestNotifier(t)
	trackerID := uuid.New()

	sub := mr.NewSubscriber()
	defer sub.Close()
	sub.Subscribe(AlertChannel)

	// drain before publishing: miniredis delivers synchronously, so an
	// unread subscriber channel would block Notify itself
	received := make(chan miniredis.PubsubMessage, 1)
	go func() {
		received <- <-sub.Messages()
	}()

	alerts := []compliance.Alert{{
		Type:       compliance.AlertStatusChange,
		Severity:   compliance.SeverityCritical,
		TrackerID:  trackerID,
		FromStatus: compliance.StatusAtRisk,
		ToStatus:   compliance.StatusPenaltyApplied,
		Message:    "penalty applied",
	}}
	actions := []compliance.Action{{
		Type:        compliance.ActionFileReturn,
		TrackerID:   trackerID,
		Description: "file the outstanding return",
	}}

	require.NoError(t, notifier.Notify(context.Background(), alerts, actions))

	var got miniredis.PubsubMessage
	select {
	case got = <-received:
	case <-time.After(time.Second):
		t.Fatal("no message published")
	}
	assert.Equal(t, AlertChannel, got.Channel)

	var msg message
	require.NoError(t, json.Unmarshal([]byte(got.Message), &msg))
	require.Len(t, msg.Alerts, 1)
	require.Len(t, msg.Actions, 1)
	assert.Equal(t, trackerID, msg.Alerts[0].TrackerID)
	assert.Equal(t, compliance.SeverityCritical, msg.Alerts[0].Severity)
}

func TestRedisNotifier_SkipsEmptyBatch(t *testing.T) {
	notifier, mr := newTestNotifier(t)

	sub := mr.NewSubscriber()
	defer sub.Close()
	sub.Subscribe(AlertChannel)

	require.NoError(t, notifier.Notify(context.Background(), nil, nil))

	select {
	case msg := <-sub.Messages():
		t.Fatalf("unexpected message: %v", msg)
	default:
	}
}
