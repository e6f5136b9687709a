// Package split divides a single sale's profit between the referring
// affiliate, the upline, the two bonus pools and the platform.
package split

import (
	"errors"
	"math"

	"github.com/shopspring/decimal"
)

var ErrNonFiniteProfit = errors.New("profit must be a finite number")

var (
	EmployeeDiscountRate = decimal.RequireFromString("0.42")
	AffiliateRate        = decimal.RequireFromString("0.42")
	Level1Rate           = decimal.RequireFromString("0.02")
	Level2Rate           = decimal.RequireFromString("0.01")
	RankedPoolRate       = decimal.RequireFromString("0.08")
	LotteryPoolRate      = decimal.RequireFromString("0.03")

	// PointsDivisor is the profit required to earn one reward point.
	PointsDivisor = decimal.NewFromInt(10)
)

// Input holds the profit and the flags that pick the calculation branch.
type Input struct {
	Profit             decimal.Decimal
	IsEmployeeDiscount bool
	HasReferrer        bool
	HasLevel1Upline    bool
	HasLevel2Upline    bool
}

// Breakdown is the result of a split. Amounts are unrounded; persistence
// rounds to cents.
type Breakdown struct {
	Profit              decimal.Decimal `json:"profit"`
	EmployeeDiscount    decimal.Decimal `json:"employee_discount"`
	AdjustedProfit      decimal.Decimal `json:"adjusted_profit"`
	AffiliateCommission decimal.Decimal `json:"affiliate_commission"`
	MLMLevel1           decimal.Decimal `json:"mlm_level1"`
	MLMLevel2           decimal.Decimal `json:"mlm_level2"`
	RankedPoolShare     decimal.Decimal `json:"ranked_pool_share"`
	LotteryPoolShare    decimal.Decimal `json:"lottery_pool_share"`
	Company             decimal.Decimal `json:"company"`
	RewardPoints        int64           `json:"reward_points"`
}

// Calculate is pure; identical inputs always produce identical breakdowns.
func Calculate(in Input) Breakdown {
	b := Breakdown{
		Profit:              in.Profit,
		EmployeeDiscount:    decimal.Zero,
		AffiliateCommission: decimal.Zero,
		MLMLevel1:           decimal.Zero,
		MLMLevel2:           decimal.Zero,
	}

	adjusted := in.Profit
	if in.IsEmployeeDiscount {
		b.EmployeeDiscount = in.Profit.Mul(EmployeeDiscountRate)
		adjusted = in.Profit.Sub(b.EmployeeDiscount)
	}
	b.AdjustedProfit = adjusted

	if in.HasReferrer {
		b.AffiliateCommission = adjusted.Mul(AffiliateRate)
		if in.HasLevel1Upline {
			b.MLMLevel1 = adjusted.Mul(Level1Rate)
			// level 2 never pays without level 1
			if in.HasLevel2Upline {
				b.MLMLevel2 = adjusted.Mul(Level2Rate)
			}
		}
	}

	b.RankedPoolShare = adjusted.Mul(RankedPoolRate)
	b.LotteryPoolShare = adjusted.Mul(LotteryPoolRate)

	b.Company = adjusted.
		Sub(b.AffiliateCommission).
		Sub(b.MLMLevel1).
		Sub(b.MLMLevel2).
		Sub(b.RankedPoolShare).
		Sub(b.LotteryPoolShare)

	b.RewardPoints = Points(adjusted)
	return b
}

// Points returns floor(amount / 10), never negative.
func Points(amount decimal.Decimal) int64 {
	if !amount.IsPositive() {
		return 0
	}
	return amount.Div(PointsDivisor).Floor().IntPart()
}

// Persistable reports whether the caller may write ledger rows for this
// breakdown. Non-positive adjusted profit is preview-only.
func (b Breakdown) Persistable() bool {
	return b.AdjustedProfit.IsPositive()
}

// Total sums every slice of the breakdown. It equals Profit exactly.
func (b Breakdown) Total() decimal.Decimal {
	return b.EmployeeDiscount.
		Add(b.AffiliateCommission).
		Add(b.MLMLevel1).
		Add(b.MLMLevel2).
		Add(b.RankedPoolShare).
		Add(b.LotteryPoolShare).
		Add(b.Company)
}

// ProfitFromFloat converts a float amount at the system boundary.
func ProfitFromFloat(f float64) (decimal.Decimal, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return decimal.Zero, ErrNonFiniteProfit
	}
	return decimal.NewFromFloat(f), nil
}

// Cents rounds an amount to 2 decimal places, half away from zero.
func Cents(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}
