package store

// Affiliate ENUMs
const (
	AffiliateStatusActive    = "active"
	AffiliateStatusSuspended = "suspended"
	AffiliateStatusInactive  = "inactive"
)

const (
	CommissionModeCash     = "cash"
	CommissionModeDiscount = "discount"
)

// Commission ENUMs
const (
	CommissionStatusPending   = "pending"
	CommissionStatusConfirmed = "confirmed"
	CommissionStatusPaid      = "paid"
	CommissionStatusCancelled = "cancelled"
)

const (
	CommissionKindSale        = "sale"
	CommissionKindMLMLevel1   = "mlm_level1"
	CommissionKindMLMLevel2   = "mlm_level2"
	CommissionKindRankedPool  = "ranked_pool"
	CommissionKindLotteryPool = "lottery_pool"
)

// Reward points ENUMs
const (
	RewardSourceSale         = "sale"
	RewardSourceSelfPurchase = "self_purchase"
	RewardSourceBonus        = "bonus"
	RewardSourceAdjustment   = "adjustment"
)

// Payout request ENUMs
const (
	PayoutStatusPending    = "pending"
	PayoutStatusProcessing = "processing"
	PayoutStatusPaid       = "paid"
	PayoutStatusFailed     = "failed"
)

// Annual pot contribution reasons
const (
	PotContributionReasonSale = "sale"
)
