package events

import (
	"commission-engine/internal/clients/kafka"
	"commission-engine/internal/observability"
	poolsProcessor "commission-engine/internal/pools/processor"
	"commission-engine/internal/store"
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// EventWriter is satisfied by *kafka.Producer
type EventWriter interface {
	PublishEvent(ctx context.Context, event kafka.EventMessage) error
	PublishEvents(ctx context.Context, events []kafka.EventMessage) error
}

// Publisher handles publishing domain events to Kafka
type Publisher struct {
	writer EventWriter
	logger *observability.Logger
	now    func() time.Time
}

// NewPublisher creates a new event publisher
func NewPublisher(writer EventWriter, logger *observability.Logger) *Publisher {
	return &Publisher{
		writer: writer,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (p *Publisher) event(eventType, key string, data map[string]interface{}) kafka.EventMessage {
	return kafka.EventMessage{
		ID:        uuid.New().String(),
		Type:      eventType,
		Key:       key,
		Data:      data,
		Timestamp: p.now().Format(time.RFC3339),
	}
}

func commissionData(c store.Commission) map[string]interface{} {
	data := map[string]interface{}{
		"commission_id": c.ID.String(),
		"affiliate_id":  c.AffiliateID.String(),
		"kind":          c.Kind,
		"status":        c.Status,
		"amount":        c.Amount.StringFixed(2),
		"profit":        c.Profit.StringFixed(2),
	}
	if c.OrderRef != nil {
		data["order_ref"] = *c.OrderRef
	}
	if c.ParentCommissionID != nil {
		data["parent_commission_id"] = c.ParentCommissionID.String()
	}
	return data
}

// PublishCommissionRecorded publishes a commission.recorded event
func (p *Publisher) PublishCommissionRecorded(ctx context.Context, c store.Commission) error {
	return p.writer.PublishEvent(ctx, p.event(TypeCommissionRecorded, c.AffiliateID.String(), commissionData(c)))
}

// PublishCommissionConfirmed publishes a commission.confirmed event
func (p *Publisher) PublishCommissionConfirmed(ctx context.Context, c store.Commission) error {
	return p.writer.PublishEvent(ctx, p.event(TypeCommissionConfirmed, c.AffiliateID.String(), commissionData(c)))
}

// PublishCommissionCancelled publishes a commission.cancelled event
func (p *Publisher) PublishCommissionCancelled(ctx context.Context, c store.Commission) error {
	return p.writer.PublishEvent(ctx, p.event(TypeCommissionCancelled, c.AffiliateID.String(), commissionData(c)))
}

// PublishRankedPoolDistributed publishes the day's summary followed by a
// commission.recorded event per paid rank
func (p *Publisher) PublishRankedPoolDistributed(ctx context.Context, result poolsProcessor.RankedResult) error {
	date := result.Date.Format(time.DateOnly)
	rankings := make([]map[string]interface{}, 0, len(result.Rankings))
	batch := []kafka.EventMessage{}
	for _, r := range result.Rankings {
		rankings = append(rankings, map[string]interface{}{
			"rank":         r.Rank,
			"affiliate_id": r.AffiliateID.String(),
			"profit":       r.Profit.StringFixed(2),
			"share":        r.Share.StringFixed(2),
		})
		if r.CommissionID == nil {
			continue
		}
		batch = append(batch, p.event(TypeCommissionRecorded, r.AffiliateID.String(), map[string]interface{}{
			"commission_id": r.CommissionID.String(),
			"affiliate_id":  r.AffiliateID.String(),
			"kind":          store.CommissionKindRankedPool,
			"status":        store.CommissionStatusConfirmed,
			"amount":        r.Share.StringFixed(2),
			"order_ref":     poolsProcessor.RankedOrderRef(result.Date),
		}))
	}

	summary := p.event(TypeRankedPoolDistributed, date, map[string]interface{}{
		"date":               date,
		"total_profit":       result.TotalProfit.StringFixed(2),
		"pool_amount":        result.PoolAmount.StringFixed(2),
		"distributed_amount": result.DistributedAmount.StringFixed(2),
		"rankings":           rankings,
	})
	return p.writer.PublishEvents(ctx, append([]kafka.EventMessage{summary}, batch...))
}

// PublishLotteryPoolDistributed publishes the year's summary followed by a
// commission.recorded event per winner
func (p *Publisher) PublishLotteryPoolDistributed(ctx context.Context, result poolsProcessor.LotteryResult) error {
	year := strconv.Itoa(result.Year)
	shares := make([]map[string]interface{}, 0, len(result.Shares))
	batch := []kafka.EventMessage{}
	for _, s := range result.Shares {
		shares = append(shares, map[string]interface{}{
			"affiliate_id": s.AffiliateID.String(),
			"points":       s.Points,
			"share":        s.Share.StringFixed(2),
		})
		if s.CommissionID == nil {
			continue
		}
		batch = append(batch, p.event(TypeCommissionRecorded, s.AffiliateID.String(), map[string]interface{}{
			"commission_id": s.CommissionID.String(),
			"affiliate_id":  s.AffiliateID.String(),
			"kind":          store.CommissionKindLotteryPool,
			"status":        store.CommissionStatusConfirmed,
			"amount":        s.Share.StringFixed(2),
			"order_ref":     poolsProcessor.LotteryOrderRef(result.Year),
		}))
	}

	summary := p.event(TypeLotteryPoolDistributed, year, map[string]interface{}{
		"year":               result.Year,
		"pot_amount":         result.PotAmount.StringFixed(2),
		"total_points":       result.TotalPoints,
		"distributed_amount": result.DistributedAmount.StringFixed(2),
		"shares":             shares,
	})
	return p.writer.PublishEvents(ctx, append([]kafka.EventMessage{summary}, batch...))
}

// PublishPayoutSettled publishes a payout.settled event
func (p *Publisher) PublishPayoutSettled(ctx context.Context, request store.PayoutRequest, commissionIDs []uuid.UUID) error {
	ids := make([]string, len(commissionIDs))
	for i, id := range commissionIDs {
		ids[i] = id.String()
	}
	data := map[string]interface{}{
		"payout_request_id": request.ID.String(),
		"affiliate_id":      request.AffiliateID.String(),
		"amount":            request.Amount.StringFixed(2),
		"currency":          request.Currency,
		"commission_ids":    ids,
	}
	if request.ExternalID != nil {
		data["external_id"] = *request.ExternalID
	}
	return p.writer.PublishEvent(ctx, p.event(TypePayoutSettled, request.AffiliateID.String(), data))
}
