package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/saloneworks/tax-compliance-backend/internal/domain/compliance"
)

// RuleCache keeps rule-set snapshots in Redis so batch evaluation does not
// hit the rule store once per tracker. Entries are keyed by tax type and
// rule-set version; a version bump naturally invalidates old snapshots once
// their TTL lapses.
type RuleCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewRuleCache creates a rule snapshot cache
func NewRuleCache(client *redis.Client, ttl time.Duration, logger *zap.Logger) *RuleCache {
	return &RuleCache{
		client: client,
		ttl:    ttl,
		logger: logger,
	}
}

// cachedRule pairs the rule with the envelope form of its basis so the
// snapshot round-trips losslessly through JSON.
type cachedRule struct {
	compliance.PenaltyRule
	Basis compliance.BasisEnvelope `json:"basis"`
}

func snapshotKey(taxType compliance.TaxType, version string) string {
	return fmt.Sprintf("ruleset:%s:%s", version, taxType)
}

// Get returns the cached snapshot for a tax type and rule-set version, or
// nil on a miss. Corrupt entries are dropped and treated as a miss.
func (c *RuleCache) Get(ctx context.Context, taxType compliance.TaxType, version string) ([]*compliance.PenaltyRule, error) {
	key := snapshotKey(taxType, version)

	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading rule snapshot %s: %w", key, err)
	}

	var cached []cachedRule
	if err := json.Unmarshal(data, &cached); err != nil {
		c.logger.Warn("dropping corrupt rule snapshot",
			zap.String("key", key),
			zap.Error(err))
		c.client.Del(ctx, key)
		return nil, nil
	}

	rules := make([]*compliance.PenaltyRule, 0, len(cached))
	for _, cr := range cached {
		basis, err := cr.Basis.Decode()
		if err != nil {
			c.logger.Warn("dropping corrupt rule snapshot",
				zap.String("key", key),
				zap.Error(err))
			c.client.Del(ctx, key)
			return nil, nil
		}
		rule := cr.PenaltyRule
		rule.Basis = basis
		rules = append(rules, &rule)
	}
	return rules, nil
}

// Set stores a snapshot for a tax type and rule-set version
func (c *RuleCache) Set(ctx context.Context, taxType compliance.TaxType, version string, rules []*compliance.PenaltyRule) error {
	cached := make([]cachedRule, 0, len(rules))
	for _, r := range rules {
		env, err := compliance.EncodeBasis(r.Basis)
		if err != nil {
			return fmt.Errorf("encoding rule %s: %w", r.ID, err)
		}
		cached = append(cached, cachedRule{PenaltyRule: *r, Basis: env})
	}

	data, err := json.Marshal(cached)
	if err != nil {
		return fmt.Errorf("marshaling rule snapshot: %w", err)
	}

	key := snapshotKey(taxType, version)
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("writing rule snapshot %s: %w", key, err)
	}
	return nil
}

// Invalidate removes the snapshot for a tax type and rule-set version
func (c *RuleCache) Invalidate(ctx context.Context, taxType compliance.TaxType, version string) error {
	return c.client.Del(ctx, snapshotKey(taxType, version)).Err()
}
