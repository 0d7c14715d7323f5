package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/saloneworks/tax-compliance-backend/internal/domain/compliance"
)

// AlertChannel is the pub/sub channel delivery workers subscribe to.
const AlertChannel = "compliance:alerts"

type message struct {
	Alerts  []compliance.Alert  `json:"alerts"`
	Actions []compliance.Action `json:"actions"`
}

// RedisNotifier publishes evaluation alerts to a Redis channel for the
// downstream delivery workers (SMS, email, in-app). Publishing is
// fire-and-forget from the engine's point of view.
type RedisNotifier struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisNotifier creates a notifier backed by Redis pub/sub
func NewRedisNotifier(client *redis.Client, logger *zap.Logger) *RedisNotifier {
	return &RedisNotifier{
		client: client,
		logger: logger,
	}
}

// Notify publishes the batch of alerts and actions as a single message
func (n *RedisNotifier) Notify(ctx context.Context, alerts []compliance.Alert, actions []compliance.Action) error {
	if len(alerts) == 0 && len(actions) == 0 {
		return nil
	}

	payload, err := json.Marshal(message{Alerts: alerts, Actions: actions})
	if err != nil {
		return fmt.Errorf("marshaling alert message: %w", err)
	}

	if err := n.client.Publish(ctx, AlertChannel, payload).Err(); err != nil {
		return fmt.Errorf("publishing alerts: %w", err)
	}

	n.logger.Debug("alerts published",
		zap.Int("alert_count", len(alerts)),
		zap.Int("action_count", len(actions)))
	return nil
}
