package split

import (
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestCalculate_Conservation(t *testing.T) {
	profits := []string{"0.01", "9.99", "95", "100", "1234.56", "77777.77"}
	for _, p := range profits {
		for mask := 0; mask < 16; mask++ {
			in := Input{
				Profit:             d(p),
				IsEmployeeDiscount: mask&1 != 0,
				HasReferrer:        mask&2 != 0,
				HasLevel1Upline:    mask&4 != 0,
				HasLevel2Upline:    mask&8 != 0,
			}
			b := Calculate(in)
			assert.True(t, b.Total().Equal(in.Profit), "profit %s mask %d: total %s", p, mask, b.Total())
		}
	}
}

func TestCalculate_Determinism(t *testing.T) {
	in := Input{Profit: d("333.33"), HasReferrer: true, HasLevel1Upline: true, HasLevel2Upline: true}
	assert.Equal(t, Calculate(in), Calculate(in))
}

func TestCalculate_Branches(t *testing.T) {
	tests := []struct {
		name   string
		in     Input
		expect Breakdown
	}{
		{
			name: "direct sale feeds pools and company only",
			in:   Input{Profit: d("100")},
			expect: Breakdown{
				AdjustedProfit:      d("100"),
				AffiliateCommission: d("0"),
				MLMLevel1:           d("0"),
				MLMLevel2:           d("0"),
				RankedPoolShare:     d("8"),
				LotteryPoolShare:    d("3"),
				Company:             d("89"),
				RewardPoints:        10,
			},
		},
		{
			name: "referred sale with two uplines",
			in:   Input{Profit: d("100"), HasReferrer: true, HasLevel1Upline: true, HasLevel2Upline: true},
			expect: Breakdown{
				AdjustedProfit:      d("100"),
				AffiliateCommission: d("42"),
				MLMLevel1:           d("2"),
				MLMLevel2:           d("1"),
				RankedPoolShare:     d("8"),
				LotteryPoolShare:    d("3"),
				Company:             d("44"),
				RewardPoints:        10,
			},
		},
		{
			name: "level 2 without level 1 pays nothing",
			in:   Input{Profit: d("100"), HasReferrer: true, HasLevel2Upline: true},
			expect: Breakdown{
				AdjustedProfit:      d("100"),
				AffiliateCommission: d("42"),
				MLMLevel1:           d("0"),
				MLMLevel2:           d("0"),
				RankedPoolShare:     d("8"),
				LotteryPoolShare:    d("3"),
				Company:             d("47"),
				RewardPoints:        10,
			},
		},
		{
			name: "employee discount applies before every split",
			in:   Input{Profit: d("100"), IsEmployeeDiscount: true, HasReferrer: true},
			expect: Breakdown{
				AdjustedProfit:      d("58"),
				AffiliateCommission: d("24.36"),
				MLMLevel1:           d("0"),
				MLMLevel2:           d("0"),
				RankedPoolShare:     d("4.64"),
				LotteryPoolShare:    d("1.74"),
				Company:             d("27.26"),
				RewardPoints:        5,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := Calculate(tt.in)
			assert.True(t, tt.expect.AdjustedProfit.Equal(b.AdjustedProfit), "adjusted %s", b.AdjustedProfit)
			assert.True(t, tt.expect.AffiliateCommission.Equal(b.AffiliateCommission), "affiliate %s", b.AffiliateCommission)
			assert.True(t, tt.expect.MLMLevel1.Equal(b.MLMLevel1), "level1 %s", b.MLMLevel1)
			assert.True(t, tt.expect.MLMLevel2.Equal(b.MLMLevel2), "level2 %s", b.MLMLevel2)
			assert.True(t, tt.expect.RankedPoolShare.Equal(b.RankedPoolShare), "ranked %s", b.RankedPoolShare)
			assert.True(t, tt.expect.LotteryPoolShare.Equal(b.LotteryPoolShare), "lottery %s", b.LotteryPoolShare)
			assert.True(t, tt.expect.Company.Equal(b.Company), "company %s", b.Company)
			assert.Equal(t, tt.expect.RewardPoints, b.RewardPoints)
		})
	}
}

func TestCalculate_RewardPointsUseAdjustedProfit(t *testing.T) {
	assert.Equal(t, int64(9), Calculate(Input{Profit: d("95.00")}).RewardPoints)
	assert.Equal(t, int64(0), Calculate(Input{Profit: d("9.99")}).RewardPoints)
	// 100 * 0.58 = 58 -> 5 points, not 10
	assert.Equal(t, int64(5), Calculate(Input{Profit: d("100"), IsEmployeeDiscount: true}).RewardPoints)
}

func TestCalculate_NonPositiveProfitIsPreviewOnly(t *testing.T) {
	b := Calculate(Input{Profit: d("-50"), HasReferrer: true})
	assert.False(t, b.Persistable())
	assert.Equal(t, int64(0), b.RewardPoints)
	assert.True(t, b.Company.IsNegative())

	assert.False(t, Calculate(Input{Profit: decimal.Zero}).Persistable())
	assert.True(t, Calculate(Input{Profit: d("0.01")}).Persistable())
}

func TestProfitFromFloat(t *testing.T) {
	_, err := ProfitFromFloat(math.NaN())
	assert.ErrorIs(t, err, ErrNonFiniteProfit)

	_, err = ProfitFromFloat(math.Inf(1))
	assert.ErrorIs(t, err, ErrNonFiniteProfit)

	p, err := ProfitFromFloat(12.5)
	require.NoError(t, err)
	assert.True(t, p.Equal(d("12.5")))
}

func TestCents(t *testing.T) {
	assert.Equal(t, "0.13", Cents(d("0.125")).StringFixed(2))
	assert.Equal(t, "33.33", Cents(d("33.333")).StringFixed(2))
}
