package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/saloneworks/tax-compliance-backend/internal/api/rest"
	"github.com/saloneworks/tax-compliance-backend/internal/domain/compliance"
	"github.com/saloneworks/tax-compliance-backend/internal/infrastructure/cache"
	"github.com/saloneworks/tax-compliance-backend/internal/infrastructure/config"
	"github.com/saloneworks/tax-compliance-backend/internal/infrastructure/database"
	"github.com/saloneworks/tax-compliance-backend/internal/infrastructure/notify"
	"github.com/saloneworks/tax-compliance-backend/internal/infrastructure/ruleset"
	"github.com/saloneworks/tax-compliance-backend/internal/infrastructure/telemetry"
	"github.com/saloneworks/tax-compliance-backend/internal/service/batch"
	compliancesvc "github.com/saloneworks/tax-compliance-backend/internal/service/compliance"
	"github.com/saloneworks/tax-compliance-backend/internal/service/evaluation"
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		log.Fatalf("api: %v", err)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger, err := telemetry.SetupLogger(cfg.LogLevel, cfg.Environment)
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := database.NewPool(ctx, cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	redisClient, err := cache.NewClient(ctx, cfg.Redis)
	if err != nil {
		return fmt.Errorf("connecting to redis: %w", err)
	}
	defer redisClient.Close()

	ruleRepo := database.NewRuleRepository(pool)
	trackerRepo := database.NewTrackerRepository(pool)
	penaltyRepo := database.NewPenaltyRepository(pool)
	ruleCache := cache.NewRuleCache(redisClient, cfg.Redis.SnapshotTTL, logger)

	if err := seedRules(ctx, cfg, ruleRepo, ruleCache, logger); err != nil {
		return fmt.Errorf("loading rule set: %w", err)
	}

	evaluator := evaluation.NewEvaluator(logger, evaluation.ScorerConfig{
		DecayDays:        cfg.Evaluation.DecayDays,
		AtRiskWindowDays: cfg.Evaluation.AtRiskWindowDays,
		GraceDays:        cfg.Evaluation.GraceDays,
	})
	notifier := notify.NewRedisNotifier(redisClient, logger)

	complianceService := compliancesvc.NewService(
		trackerRepo,
		penaltyRepo,
		ruleRepo,
		ruleCache,
		notifier,
		evaluator,
		logger,
		compliancesvc.ServiceConfig{RuleSetVersion: cfg.RuleSet.Version},
	)

	batchService := batch.NewService(complianceService, trackerRepo, logger, batch.Config{
		Schedule: cfg.Batch.Schedule,
		Workers:  cfg.Batch.Workers,
	})
	if err := batchService.Start(); err != nil {
		return fmt.Errorf("starting batch scheduler: %w", err)
	}
	defer func() {
		if err := batchService.Stop(context.Background()); err != nil {
			logger.Warn("batch scheduler stop", zap.Error(err))
		}
	}()

	handler := rest.NewHandler(complianceService, logger)
	server := rest.NewServer(cfg.Server, handler, logger, map[string]rest.Pinger{
		"database": pool,
		"redis":    redisPinger{client: redisClient},
	})

	logger.Info("starting tax compliance api",
		zap.String("version", cfg.Version),
		zap.String("environment", cfg.Environment),
		zap.Int("port", cfg.Server.Port))

	return server.Start(ctx)
}

// seedRules loads the versioned rule-set file, persists it, and warms
// the snapshot cache by invalidating any stale entries.
func seedRules(ctx context.Context, cfg *config.Config, repo *database.RuleRepository, ruleCache *cache.RuleCache, logger *zap.Logger) error {
	rs, err := ruleset.NewLoader().Load(cfg.RuleSet.Path)
	if err != nil {
		return err
	}
	if rs.Version != cfg.RuleSet.Version {
		logger.Warn("rule-set file version differs from configured version",
			zap.String("file_version", rs.Version),
			zap.String("configured_version", cfg.RuleSet.Version))
	}

	if err := repo.SaveAll(ctx, rs.Rules); err != nil {
		return err
	}
	taxTypes := []compliance.TaxType{
		compliance.TaxTypeIncomeTax,
		compliance.TaxTypeGST,
		compliance.TaxTypePayrollTax,
		compliance.TaxTypeExciseDuty,
	}
	for _, tt := range taxTypes {
		if err := ruleCache.Invalidate(ctx, tt, rs.Version); err != nil {
			logger.Warn("invalidating rule snapshot cache",
				zap.String("tax_type", string(tt)), zap.Error(err))
		}
	}

	logger.Info("rule set loaded",
		zap.String("version", rs.Version),
		zap.String("currency", rs.Currency),
		zap.Int("rules", len(rs.Rules)))
	return nil
}

// redisPinger adapts the redis client to the health-probe interface
type redisPinger struct {
	client *redis.Client
}

func (p redisPinger) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}
