package risk

import "github.com/sawpanic/solrun/internal/domain"

// SizeTrade returns the amount actually traded for an admitted signal:
// the smallest of the signal's suggestion, the balance-scaled risk
// budget, and the policy hard cap. Never negative; a zero result means
// the trade is skipped, it is not an error.
func SizeTrade(suggested, balanceSOL float64, policy domain.TradingPolicy) float64 {
	size := suggested
	if riskCap := balanceSOL * policy.RiskFraction; riskCap < size {
		size = riskCap
	}
	if policy.MaxTradeAmount < size {
		size = policy.MaxTradeAmount
	}
	if size < 0 {
		return 0
	}
	return size
}
