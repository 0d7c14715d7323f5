package compliance

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/saloneworks/tax-compliance-backend/internal/domain/compliance"
	"github.com/saloneworks/tax-compliance-backend/internal/domain/errors"
	"github.com/saloneworks/tax-compliance-backend/internal/domain/values"
	"github.com/saloneworks/tax-compliance-backend/internal/service/evaluation"
)

type mockTrackerRepo struct {
	mock.Mock
}

func (m *mockTrackerRepo) GetByID(ctx context.Context, id uuid.UUID) (*compliance.Tracker, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*compliance.Tracker), args.Error(1)
}

func (m *mockTrackerRepo) ListIDs(ctx context.Context) ([]uuid.UUID, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]uuid.UUID), args.Error(1)
}

func (m *mockTrackerRepo) Save(ctx context.Context, tracker *compliance.Tracker) error {
	args := m.Called(ctx, tracker)
	return args.Error(0)
}

type mockPenaltyRepo struct {
	mock.Mock
}

func (m *mockPenaltyRepo) FindByTracker(ctx context.Context, trackerID uuid.UUID) ([]compliance.Penalty, error) {
	args := m.Called(ctx, trackerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]compliance.Penalty), args.Error(1)
}

func (m *mockPenaltyRepo) ReplaceForTracker(ctx context.Context, trackerID uuid.UUID, penalties []compliance.Penalty) error {
	args := m.Called(ctx, trackerID, penalties)
	return args.Error(0)
}

type mockRuleRepo struct {
	mock.Mock
}

func (m *mockRuleRepo) GetByID(ctx context.Context, id uuid.UUID) (*compliance.PenaltyRule, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*compliance.PenaltyRule), args.Error(1)
}

func (m *mockRuleRepo) FindActive(ctx context.Context, taxType compliance.TaxType, asOf time.Time) ([]*compliance.PenaltyRule, error) {
	args := m.Called(ctx, taxType, asOf)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*compliance.PenaltyRule), args.Error(1)
}

func (m *mockRuleRepo) FindByRuleSetVersion(ctx context.Context, version string) ([]*compliance.PenaltyRule, error) {
	args := m.Called(ctx, version)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*compliance.PenaltyRule), args.Error(1)
}

func (m *mockRuleRepo) SaveAll(ctx context.Context, rules []*compliance.PenaltyRule) error {
	args := m.Called(ctx, rules)
	return args.Error(0)
}

type mockRuleCache struct {
	mock.Mock
}

func (m *mockRuleCache) Get(ctx context.Context, taxType compliance.TaxType, version string) ([]*compliance.PenaltyRule, error) {
	args := m.Called(ctx, taxType, version)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*compliance.PenaltyRule), args.Error(1)
}

func (m *mockRuleCache) Set(ctx context.Context, taxType compliance.TaxType, version string, rules []*compliance.PenaltyRule) error {
	args := m.Called(ctx, taxType, version, rules)
	return args.Error(0)
}

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) Notify(ctx context.Context, alerts []compliance.Alert, actions []compliance.Action) error {
	args := m.Called(ctx, alerts, actions)
	return args.Error(0)
}

type fixture struct {
	trackers  *mockTrackerRepo
	penalties *mockPenaltyRepo
	rules     *mockRuleRepo
	cache     *mockRuleCache
	notifier  *mockNotifier
	service   *Service
}

func newFixture(t *testing.T) *fixture {
	f := &fixture{
		trackers:  new(mockTrackerRepo),
		penalties: new(mockPenaltyRepo),
		rules:     new(mockRuleRepo),
		cache:     new(mockRuleCache),
		notifier:  new(mockNotifier),
	}
	logger := zaptest.NewLogger(t)
	evaluator := evaluation.NewEvaluator(logger, evaluation.DefaultScorerConfig())
	f.service = NewService(
		f.trackers, f.penalties, f.rules, f.cache, f.notifier,
		evaluator, logger, ServiceConfig{RuleSetVersion: "FA2024"},
	)
	return f
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

var (
	trackerID = uuid.MustParse("11111111-1111-1111-1111-111111111111")
	clientID  = uuid.MustParse("22222222-2222-2222-2222-222222222222")
	ruleID    = uuid.MustParse("33333333-3333-3333-3333-333333333333")
)

func overdueTracker() *compliance.Tracker {
	return &compliance.Tracker{
		ID:       trackerID,
		ClientID: clientID,
		Obligation: compliance.Obligation{
			TrackerID:      trackerID,
			ClientID:       clientID,
			TaxType:        compliance.TaxTypeIncomeTax,
			TaxYear:        2023,
			Category:       compliance.CategoryCorporate,
			FilingDueDate:  date(2024, time.January, 31),
			PaymentDueDate: date(2024, time.January, 31),
			TaxLiability:   values.MustNewMoneyFromFloat(100000, values.SLE),
			AmountPaid:     values.Zero(values.SLE),
		},
		Version: 1,
	}
}

func lateFilingRule() *compliance.PenaltyRule {
	min := values.MustNewMoneyFromFloat(500, values.SLE)
	return &compliance.PenaltyRule{
		ID:              ruleID,
		Name:            "income-tax-late-filing",
		TaxType:         compliance.TaxTypeIncomeTax,
		PenaltyType:     compliance.PenaltyTypeLateFiling,
		Basis:           compliance.FixedRateBasis{Rate: values.MustNewRate(5)},
		MinimumAmount:   &min,
		GracePeriodDays: 7,
		EffectiveFrom:   date(2024, time.January, 1),
		Active:          true,
		RuleSetVersion:  "FA2024",
	}
}

func TestService_EvaluateTracker(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	asOf := date(2024, time.February, 10)

	f.trackers.On("GetByID", ctx, trackerID).Return(overdueTracker(), nil)
	f.cache.On("Get", ctx, compliance.TaxTypeIncomeTax, "FA2024").Return(nil, nil)
	f.rules.On("FindActive", ctx, compliance.TaxTypeIncomeTax, asOf).
		Return([]*compliance.PenaltyRule{lateFilingRule()}, nil)
	f.cache.On("Set", ctx, compliance.TaxTypeIncomeTax, "FA2024", mock.Anything).Return(nil)
	f.penalties.On("FindByTracker", ctx, trackerID).Return(nil, nil)
	f.penalties.On("ReplaceForTracker", ctx, trackerID, mock.Anything).Return(nil)
	f.trackers.On("Save", ctx, mock.Anything).Return(nil)
	f.notifier.On("Notify", ctx, mock.Anything, mock.Anything).Return(nil)

	result, err := f.service.EvaluateTracker(ctx, trackerID, asOf)
	require.NoError(t, err)

	// 10 days late, 5% of 100,000 = 5,000
	require.Len(t, result.Penalties, 1)
	assert.True(t, result.Penalties[0].Amount.Equal(values.MustNewMoneyFromFloat(5000, values.SLE)))
	f.trackers.AssertExpectations(t)
	f.penalties.AssertExpectations(t)
	f.notifier.AssertExpectations(t)
}

func TestService_EvaluateTracker_CacheHit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	asOf := date(2024, time.February, 10)

	f.trackers.On("GetByID", ctx, trackerID).Return(overdueTracker(), nil)
	f.cache.On("Get", ctx, compliance.TaxTypeIncomeTax, "FA2024").
		Return([]*compliance.PenaltyRule{lateFilingRule()}, nil)
	f.penalties.On("FindByTracker", ctx, trackerID).Return(nil, nil)
	f.penalties.On("ReplaceForTracker", ctx, trackerID, mock.Anything).Return(nil)
	f.trackers.On("Save", ctx, mock.Anything).Return(nil)
	f.notifier.On("Notify", ctx, mock.Anything, mock.Anything).Return(nil)

	_, err := f.service.EvaluateTracker(ctx, trackerID, asOf)
	require.NoError(t, err)

	f.rules.AssertNotCalled(t, "FindActive", mock.Anything, mock.Anything, mock.Anything)
}

func TestService_EvaluateTracker_NotFound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.trackers.On("GetByID", ctx, trackerID).Return(nil, errors.ErrTrackerNotFound)

	_, err := f.service.EvaluateTracker(ctx, trackerID, date(2024, time.February, 10))
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeNotFound))
}

func TestService_EvaluateTracker_RetriesOnStaleVersion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	asOf := date(2024, time.February, 10)

	f.trackers.On("GetByID", ctx, trackerID).Return(overdueTracker(), nil)
	f.cache.On("Get", ctx, compliance.TaxTypeIncomeTax, "FA2024").
		Return([]*compliance.PenaltyRule{lateFilingRule()}, nil)
	f.penalties.On("FindByTracker", ctx, trackerID).Return(nil, nil)
	f.penalties.On("ReplaceForTracker", ctx, trackerID, mock.Anything).Return(nil)
	f.trackers.On("Save", ctx, mock.Anything).Return(errors.ErrStaleTrackerVersion).Once()
	f.trackers.On("Save", ctx, mock.Anything).Return(nil).Once()
	f.notifier.On("Notify", ctx, mock.Anything, mock.Anything).Return(nil)

	_, err := f.service.EvaluateTracker(ctx, trackerID, asOf)
	require.NoError(t, err)

	f.trackers.AssertNumberOfCalls(t, "Save", 2)
}

func TestService_GetCompliance_ReturnsStoredResult(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tracker := overdueTracker()
	tracker.LastResult = &compliance.Result{
		TrackerID: trackerID,
		Status:    compliance.StatusPenaltyApplied,
	}
	f.trackers.On("GetByID", ctx, trackerID).Return(tracker, nil)

	result, err := f.service.GetCompliance(ctx, trackerID)
	require.NoError(t, err)
	assert.Equal(t, compliance.StatusPenaltyApplied, result.Status)

	f.penalties.AssertNotCalled(t, "FindByTracker", mock.Anything, mock.Anything)
}

func TestService_ApplyPayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	paidAt := date(2024, time.March, 1)

	penalty := compliance.Penalty{
		ID:          uuid.MustParse("44444444-4444-4444-4444-444444444444"),
		TrackerID:   trackerID,
		RuleID:      ruleID,
		PenaltyType: compliance.PenaltyTypeLateFiling,
		Amount:      values.MustNewMoneyFromFloat(5000, values.SLE),
		AmountPaid:  values.Zero(values.SLE),
		PenaltyDate: date(2024, time.February, 10),
		DueDate:     date(2024, time.January, 31),
	}

	f.trackers.On("GetByID", ctx, trackerID).Return(overdueTracker(), nil)
	f.cache.On("Get", ctx, compliance.TaxTypeIncomeTax, "FA2024").
		Return([]*compliance.PenaltyRule{lateFilingRule()}, nil)
	f.penalties.On("FindByTracker", ctx, trackerID).
		Return([]compliance.Penalty{penalty}, nil)
	f.penalties.On("ReplaceForTracker", ctx, trackerID, mock.MatchedBy(func(ps []compliance.Penalty) bool {
		// the 3,000 payment lands on the penalty ledger first
		return len(ps) >= 1 && ps[0].AmountPaid.Equal(values.MustNewMoneyFromFloat(3000, values.SLE))
	})).Return(nil)
	f.penalties.On("ReplaceForTracker", ctx, trackerID, mock.Anything).Return(nil)
	f.trackers.On("Save", ctx, mock.Anything).Return(nil)
	f.notifier.On("Notify", ctx, mock.Anything, mock.Anything).Return(nil)

	result, err := f.service.ApplyPayment(ctx, trackerID, values.MustNewMoneyFromFloat(3000, values.SLE), paidAt)
	require.NoError(t, err)
	require.NotNil(t, result)
}

func TestService_ApplyPayment_RejectsNonPositive(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.ApplyPayment(context.Background(), trackerID,
		values.Zero(values.SLE), date(2024, time.March, 1))
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
}

func TestService_ApplyPayment_RejectsCurrencyMismatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.trackers.On("GetByID", ctx, trackerID).Return(overdueTracker(), nil)

	_, err := f.service.ApplyPayment(ctx, trackerID,
		values.MustNewMoneyFromFloat(1000, values.USD), date(2024, time.March, 1))
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
}

func TestService_WaivePenalty(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	penaltyID := uuid.MustParse("44444444-4444-4444-4444-444444444444")
	penalty := compliance.Penalty{
		ID:          penaltyID,
		TrackerID:   trackerID,
		RuleID:      ruleID,
		PenaltyType: compliance.PenaltyTypeLateFiling,
		Amount:      values.MustNewMoneyFromFloat(5000, values.SLE),
		AmountPaid:  values.Zero(values.SLE),
		PenaltyDate: date(2024, time.February, 10),
		DueDate:     date(2024, time.January, 31),
	}

	f.trackers.On("GetByID", ctx, trackerID).Return(overdueTracker(), nil)
	f.cache.On("Get", ctx, compliance.TaxTypeIncomeTax, "FA2024").
		Return([]*compliance.PenaltyRule{lateFilingRule()}, nil)
	f.penalties.On("FindByTracker", ctx, trackerID).
		Return([]compliance.Penalty{penalty}, nil)
	f.penalties.On("ReplaceForTracker", ctx, trackerID, mock.MatchedBy(func(ps []compliance.Penalty) bool {
		return len(ps) == 1 && ps[0].Waived && ps[0].WaiverReason == "first offence"
	})).Return(nil).Once()
	f.penalties.On("ReplaceForTracker", ctx, trackerID, mock.Anything).Return(nil)
	f.trackers.On("Save", ctx, mock.Anything).Return(nil)
	f.notifier.On("Notify", ctx, mock.Anything, mock.Anything).Return(nil)

	_, err := f.service.WaivePenalty(ctx, trackerID, penaltyID, "first offence")
	require.NoError(t, err)
}

func TestService_WaivePenalty_UnknownPenalty(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.penalties.On("FindByTracker", ctx, trackerID).Return(nil, nil)

	_, err := f.service.WaivePenalty(ctx, trackerID,
		uuid.MustParse("99999999-9999-9999-9999-999999999999"), "reason")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeNotFound))
}
