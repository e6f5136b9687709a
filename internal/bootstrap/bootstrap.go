package bootstrap

import (
	"commission-engine/internal/config"
	"commission-engine/internal/observability"
	"commission-engine/internal/store"
	"commission-engine/internal/store/memstore"
	"context"
	"fmt"
	"strings"

	affiliatesHandler "commission-engine/internal/affiliates/handler"
	affiliatesProcessor "commission-engine/internal/affiliates/processor"
	authHandler "commission-engine/internal/auth/handler"
	authProcessor "commission-engine/internal/auth/processor"
	billingHandler "commission-engine/internal/billing/handler"
	billingProcessor "commission-engine/internal/billing/processor"
	kafkaClient "commission-engine/internal/clients/kafka"
	"commission-engine/internal/clients/mail"
	redisClient "commission-engine/internal/clients/redis"
	commissionsHandler "commission-engine/internal/commissions/handler"
	commissionsProcessor "commission-engine/internal/commissions/processor"
	"commission-engine/internal/email"
	"commission-engine/internal/events"
	"commission-engine/internal/jobs"
	"commission-engine/internal/leaderboard"
	payoutsHandler "commission-engine/internal/payouts/handler"
	payoutsProcessor "commission-engine/internal/payouts/processor"
	poolsHandler "commission-engine/internal/pools/handler"
	poolsProcessor "commission-engine/internal/pools/processor"
	rewardsHandler "commission-engine/internal/rewards/handler"
	rewardsProcessor "commission-engine/internal/rewards/processor"

	"github.com/hibiken/asynq"
)

// Dependencies holds all initialized application dependencies
type Dependencies struct {
	// Core
	Store  store.Repository
	Logger *observability.Logger

	// Processors, shared with the worker binaries
	Affiliates  *affiliatesProcessor.AffiliateProcessor
	Rewards     *rewardsProcessor.RewardProcessor
	Commissions *commissionsProcessor.CommissionProcessor
	Pools       *poolsProcessor.PoolProcessor
	Payouts     *payoutsProcessor.PayoutProcessor

	// Handlers
	AuthHandler       authHandler.Handler
	AffiliateHandler  affiliatesHandler.Handler
	CommissionHandler commissionsHandler.Handler
	RewardHandler     rewardsHandler.Handler
	PoolHandler       poolsHandler.Handler
	PayoutHandler     payoutsHandler.Handler
	BillingHandler    billingHandler.Handler

	// Clients (for cleanup)
	DB            *store.Store
	RedisClient   *redisClient.Client
	KafkaProducer *kafkaClient.Producer
	JobClient     *jobs.Client
}

// Initialize sets up all application dependencies. Redis, Kafka, Stripe and
// Resend are optional; the features backed by them switch off when their
// settings are empty.
func Initialize(ctx context.Context, cfg *config.Config, logger *observability.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Logger: logger,
	}

	// Initialize store
	switch cfg.StoreDriver {
	case config.StoreDriverMemory:
		logger.Warn(ctx, "using in-memory store, data is lost on restart")
		deps.Store = memstore.New()
	default:
		db, err := store.New(cfg.Database.ConnectionString(), logger)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		deps.DB = db
		deps.Store = db
	}

	// Initialize Redis: distribution lock, live ranking and job queue
	var err error
	deps.RedisClient, err = redisClient.NewClient(cfg.Redis, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	var (
		locker  poolsProcessor.Locker
		ticker  commissionsProcessor.ProfitTicker
		ranking poolsProcessor.LiveRanking
	)
	if deps.RedisClient.IsEnabled() {
		live := leaderboard.NewRedisLeaderboardService(deps.RedisClient, logger)
		locker = deps.RedisClient
		ticker = live
		ranking = live
	}

	// Initialize Kafka producer for outbound domain events
	var publisher *events.Publisher
	if cfg.Kafka.Brokers != "" {
		deps.KafkaProducer = kafkaClient.NewProducer(kafkaClient.ProducerConfig{
			Brokers: strings.Split(cfg.Kafka.Brokers, ","),
			Topic:   cfg.Kafka.EventsTopic,
		}, logger)
		publisher = events.NewPublisher(deps.KafkaProducer, logger)
	} else {
		logger.Info(ctx, "Kafka is disabled, domain events will not be published")
	}

	// Initialize email service
	var notifier payoutsProcessor.Notifier
	if cfg.Services.ResendAPIKey != "" {
		mailClient, err := mail.NewResendClient(cfg.Services.ResendAPIKey, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create resend client: %w", err)
		}
		notifier = email.New(mailClient, cfg.Services.DefaultEmailSender, cfg.Services.WebAppURI, logger)
	}

	// Initialize processors
	affiliates := affiliatesProcessor.New(deps.Store, logger)
	rewards := rewardsProcessor.New(deps.Store, logger)
	deps.Affiliates = &affiliates
	deps.Rewards = &rewards

	var commissionEvents commissionsProcessor.EventPublisher
	var poolEvents poolsProcessor.EventPublisher
	var payoutEvents payoutsProcessor.EventPublisher
	if publisher != nil {
		commissionEvents = publisher
		poolEvents = publisher
		payoutEvents = publisher
	}

	commissions := commissionsProcessor.New(deps.Store, deps.Rewards, deps.Affiliates, commissionEvents, ticker, logger)
	deps.Commissions = &commissions

	pools := poolsProcessor.New(deps.Store, locker, ranking, poolEvents, poolsProcessor.Config{
		LotteryActivationYear: cfg.Engine.LotteryActivationYear,
		SnapshotTopN:          cfg.Engine.SnapshotTopN,
		SnapshotLookback:      cfg.Engine.SnapshotLookback,
		SnapshotRetention:     cfg.Engine.SnapshotRetention,
	}, logger)
	deps.Pools = &pools

	var provider payoutsProcessor.Provider
	if cfg.Services.StripeSecretKey != "" {
		provider = payoutsProcessor.NewStripeProvider(cfg.Services.StripeSecretKey, logger)
	} else {
		logger.Warn(ctx, "Stripe is disabled, payouts will fail until a secret key is set")
	}
	payouts := payoutsProcessor.New(deps.Store, deps.Commissions, provider, payoutEvents, notifier, payoutsProcessor.Config{
		MinPayout: cfg.Engine.MinPayout,
		Currency:  cfg.Engine.PayoutCurrency,
	}, logger)
	deps.Payouts = &payouts

	// Initialize job client for admin backfills
	var backfill poolsHandler.Backfiller
	if cfg.Redis.Addr != "" {
		deps.JobClient = jobs.NewClient(RedisClientOpt(cfg.Redis), logger)
		backfill = deps.JobClient
	}

	// Initialize auth processor and handler
	authProc := authProcessor.New(deps.Store, authProcessor.AuthConfig{
		JWTSecret: cfg.Auth.JWTSecret,
	}, logger)
	deps.AuthHandler = authHandler.New(authProc, logger)

	// Initialize billing processor and handler
	billingProc := billingProcessor.New(cfg.Services.StripeWebhookSecret, deps.Commissions, logger)
	deps.BillingHandler = billingHandler.New(billingProc, logger)

	// Initialize domain handlers
	deps.AffiliateHandler = affiliatesHandler.New(affiliates, logger)
	deps.CommissionHandler = commissionsHandler.New(commissions, logger)
	deps.RewardHandler = rewardsHandler.New(rewards, logger)
	deps.PoolHandler = poolsHandler.New(pools, backfill, logger)
	deps.PayoutHandler = payoutsHandler.New(payouts, logger)

	return deps, nil
}

// RedisClientOpt converts the Redis settings for asynq
func RedisClientOpt(cfg config.RedisConfig) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
}

// Cleanup closes all resources that need cleanup
func (d *Dependencies) Cleanup() {
	ctx := context.Background()
	if d.JobClient != nil {
		if err := d.JobClient.Close(); err != nil {
			d.Logger.Error(ctx, "failed to close job client", err)
		}
	}
	if d.KafkaProducer != nil {
		if err := d.KafkaProducer.Close(); err != nil {
			d.Logger.Error(ctx, "failed to close kafka producer", err)
		}
	}
	if d.RedisClient != nil {
		if err := d.RedisClient.Close(); err != nil {
			d.Logger.Error(ctx, "failed to close redis client", err)
		}
	}
	if d.DB != nil {
		if err := d.DB.Close(); err != nil {
			d.Logger.Error(ctx, "failed to close database", err)
		}
	}
}
