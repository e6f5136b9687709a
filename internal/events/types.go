package events

// Payment events consumed from the payments topic
const (
	TypeSaleCompleted    = "sale.completed"
	TypePaymentConfirmed = "payment.confirmed"
	TypePaymentRefunded  = "payment.refunded"
)

// Engine events published to the events topic
const (
	TypeCommissionRecorded     = "commission.recorded"
	TypeCommissionConfirmed    = "commission.confirmed"
	TypeCommissionCancelled    = "commission.cancelled"
	TypeRankedPoolDistributed  = "pool.ranked.distributed"
	TypeLotteryPoolDistributed = "pool.lottery.distributed"
	TypePayoutSettled          = "payout.settled"
)
