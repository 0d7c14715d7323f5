package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/saloneworks/tax-compliance-backend/internal/domain/compliance"
	"github.com/saloneworks/tax-compliance-backend/internal/domain/values"
)

func newTestCache(t *testing.T) (*RuleCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRuleCache(client, time.Hour, zaptest.NewLogger(t)), mr
}

func sampleRules(t *testing.T) []*compliance.PenaltyRule {
	t.Helper()
	corporate := compliance.CategoryCorporate
	maxDays := 365
	minAmount := values.MustNewMoneyFromFloat(500, "SLE")
	dailyRate := values.MustNewRate(0.1)

	return []*compliance.PenaltyRule{
		{
			ID:              uuid.MustParse("3f1c9a10-0000-4000-8000-000000000001"),
			Name:            "income-tax-late-filing",
			TaxType:         compliance.TaxTypeIncomeTax,
			PenaltyType:     compliance.PenaltyTypeLateFiling,
			Basis:           compliance.FixedRateBasis{Rate: values.MustNewRate(5)},
			MinimumAmount:   &minAmount,
			GracePeriodDays: 7,
			EffectiveFrom:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
			Active:          true,
			Priority:        10,
			RuleSetVersion:  "FA2024",
		},
		{
			ID:              uuid.MustParse("3f1c9a10-0000-4000-8000-000000000002"),
			Name:            "income-tax-interest",
			TaxType:         compliance.TaxTypeIncomeTax,
			PenaltyType:     compliance.PenaltyTypeInterest,
			Category:        &corporate,
			Basis:           compliance.TimeAccrualBasis{DailyRate: &dailyRate, MaximumDays: &maxDays},
			GracePeriodDays: 15,
			EffectiveFrom:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
			Active:          true,
			Priority:        20,
			RuleSetVersion:  "FA2024",
		},
		{
			ID:             uuid.MustParse("3f1c9a10-0000-4000-8000-000000000003"),
			Name:           "income-tax-non-filing",
			TaxType:        compliance.TaxTypeIncomeTax,
			PenaltyType:    compliance.PenaltyTypeNonFiling,
			Basis:          compliance.FixedAmountBasis{Amount: values.MustNewMoneyFromFloat(10000, "SLE")},
			EffectiveFrom:  time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
			Active:         true,
			RuleSetVersion: "FA2024",
		},
	}
}

func TestRuleCache_RoundTrip(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()
	rules := sampleRules(t)

	require.NoError(t, cache.Set(ctx, compliance.TaxTypeIncomeTax, "FA2024", rules))

	got, err := cache.Get(ctx, compliance.TaxTypeIncomeTax, "FA2024")
	require.NoError(t, err)
	require.Len(t, got, 3)

	assert.Equal(t, rules[0].ID, got[0].ID)
	assert.Equal(t, compliance.BasisFixedRate, got[0].Basis.Kind())
	require.NotNil(t, got[0].MinimumAmount)
	assert.True(t, got[0].MinimumAmount.Equal(*rules[0].MinimumAmount))

	accrual, ok := got[1].Basis.(compliance.TimeAccrualBasis)
	require.True(t, ok)
	require.NotNil(t, accrual.DailyRate)
	assert.Nil(t, accrual.MonthlyRate)
	require.NotNil(t, accrual.MaximumDays)
	assert.Equal(t, 365, *accrual.MaximumDays)
	require.NotNil(t, got[1].Category)
	assert.Equal(t, compliance.CategoryCorporate, *got[1].Category)

	fixed, ok := got[2].Basis.(compliance.FixedAmountBasis)
	require.True(t, ok)
	assert.True(t, fixed.Amount.Equal(values.MustNewMoneyFromFloat(10000, "SLE")))
}

func TestRuleCache_MissReturnsNil(t *testing.T) {
	cache, _ := newTestCache(t)

	got, err := cache.Get(context.Background(), compliance.TaxTypeGST, "FA2024")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRuleCache_VersionsAreIndependent(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, compliance.TaxTypeIncomeTax, "FA2024", sampleRules(t)))

	got, err := cache.Get(ctx, compliance.TaxTypeIncomeTax, "FA2025")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRuleCache_CorruptEntryTreatedAsMiss(t *testing.T) {
	cache, mr := newTestCache(t)
	ctx := context.Background()

	mr.Set(snapshotKey(compliance.TaxTypeIncomeTax, "FA2024"), "not json")

	got, err := cache.Get(ctx, compliance.TaxTypeIncomeTax, "FA2024")
	require.NoError(t, err)
	assert.Nil(t, got)

	// entry is dropped so the caller repopulates it
	assert.False(t, mr.Exists(snapshotKey(compliance.TaxTypeIncomeTax, "FA2024")))
}

func TestRuleCache_Invalidate(t *testing.T) {
	cache, mr := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, compliance.TaxTypeIncomeTax, "FA2024", sampleRules(t)))
	require.NoError(t, cache.Invalidate(ctx, compliance.TaxTypeIncomeTax, "FA2024"))

	assert.False(t, mr.Exists(snapshotKey(compliance.TaxTypeIncomeTax, "FA2024")))
}

func TestRuleCache_RespectsTTL(t *testing.T) {
	cache, mr := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, compliance.TaxTypeIncomeTax, "FA2024", sampleRules(t)))

	mr.FastForward(2 * time.Hour)

	got, err := cache.Get(ctx, compliance.TaxTypeIncomeTax, "FA2024")
	require.NoError(t, err)
	assert.Nil(t, got)
}
