package leaderboard

import (
	"commission-engine/internal/clients/redis"
	"commission-engine/internal/observability"
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// keyTTL keeps a day's ranking around long enough for the next day's
// distribution and late dashboard reads
const keyTTL = 72 * time.Hour

var hundred = decimal.NewFromInt(100)

// RedisLeaderboardService keeps the live daily profit ranking in a Redis ZSET
// keyed by date. Scores are whole cents.
type RedisLeaderboardService struct {
	redis  *redis.Client
	logger *observability.Logger
}

// Entry is an affiliate's position in a day's ranking
type Entry struct {
	Rank        int             `json:"rank"`
	AffiliateID uuid.UUID       `json:"affiliate_id"`
	Profit      decimal.Decimal `json:"profit"`
}

// NewRedisLeaderboardService creates a new Redis-based leaderboard service
func NewRedisLeaderboardService(redis *redis.Client, logger *observability.Logger) *RedisLeaderboardService {
	return &RedisLeaderboardService{
		redis:  redis,
		logger: logger,
	}
}

// Key is the sorted set holding one UTC day's ranking
func Key(date time.Time) string {
	return fmt.Sprintf("ranked-pool:%s", date.UTC().Format(time.DateOnly))
}

// IsEnabled reports whether a Redis connection backs the service
func (s *RedisLeaderboardService) IsEnabled() bool {
	return s != nil && s.redis.IsEnabled()
}

// IncrementDailyProfit adds profit to the affiliate's score for date. It is a
// no-op when Redis is disabled.
func (s *RedisLeaderboardService) IncrementDailyProfit(ctx context.Context, date time.Time, affiliateID uuid.UUID, amount decimal.Decimal) error {
	if !s.IsEnabled() {
		return nil
	}

	ctx = observability.WithFields(ctx,
		observability.Field{Key: "affiliate_id", Value: affiliateID.String()},
		observability.Field{Key: "date", Value: date.Format(time.DateOnly)},
	)

	key := Key(date)
	cents := amount.Mul(hundred).Round(0).InexactFloat64()
	if _, err := s.redis.ZIncrBy(ctx, key, cents, affiliateID.String()); err != nil {
		s.logger.Error(ctx, "failed to increment daily profit in Redis", err)
		return fmt.Errorf("failed to increment daily profit: %w", err)
	}
	if err := s.redis.Expire(ctx, key, keyTTL); err != nil {
		s.logger.Error(ctx, "failed to set ranking expiry", err)
		return fmt.Errorf("failed to set ranking expiry: %w", err)
	}
	return nil
}

// GetTopN returns the top affiliates for date, highest profit first
func (s *RedisLeaderboardService) GetTopN(ctx context.Context, date time.Time, limit int) ([]Entry, error) {
	if !s.IsEnabled() {
		return nil, fmt.Errorf("Redis is not enabled")
	}

	ctx = observability.WithFields(ctx,
		observability.Field{Key: "date", Value: date.Format(time.DateOnly)},
		observability.Field{Key: "limit", Value: limit},
	)

	results, err := s.redis.ZRevRangeWithScores(ctx, Key(date), 0, int64(limit-1))
	if err != nil {
		s.logger.Error(ctx, "failed to get top N from Redis", err)
		return nil, fmt.Errorf("failed to get top affiliates: %w", err)
	}

	entries := make([]Entry, 0, len(results))
	for _, result := range results {
		member, _ := result.Member.(string)
		affiliateID, err := uuid.Parse(member)
		if err != nil {
			s.logger.Warn(ctx, "skipping malformed ranking member")
			continue
		}
		entries = append(entries, Entry{
			Rank:        len(entries) + 1,
			AffiliateID: affiliateID,
			Profit:      decimal.NewFromFloat(result.Score).Div(hundred).Round(2),
		})
	}

	return entries, nil
}
