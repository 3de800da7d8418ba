package domain

import "fmt"

// TradingPolicy holds the risk limits a trading loop operates under.
// The loop owns one policy instance for its lifetime.
type TradingPolicy struct {
	MaxTradeAmount     float64 `yaml:"max_trade_amount" json:"max_trade_amount"`
	MaxDailyTrades     int     `yaml:"max_daily_trades" json:"max_daily_trades"`
	RiskFraction       float64 `yaml:"risk_fraction" json:"risk_fraction"`
	StopLossFraction   float64 `yaml:"stop_loss_fraction" json:"stop_loss_fraction"`
	TakeProfitFraction float64 `yaml:"take_profit_fraction" json:"take_profit_fraction"`
	MinConfidence      float64 `yaml:"min_confidence" json:"min_confidence"`
	TradingEnabled     bool    `yaml:"trading_enabled" json:"trading_enabled"`
}

// DefaultTradingPolicy returns the conservative stock policy: trading
// disabled, 0.01 token per trade, 5 trades per day, 2% of balance at risk.
func DefaultTradingPolicy() TradingPolicy {
	return TradingPolicy{
		MaxTradeAmount:     0.01,
		MaxDailyTrades:     5,
		RiskFraction:       0.02,
		StopLossFraction:   0.05,
		TakeProfitFraction: 0.10,
		MinConfidence:      0.7,
		TradingEnabled:     false,
	}
}

// Validate ensures the policy invariants hold.
func (p TradingPolicy) Validate() error {
	if p.MaxTradeAmount <= 0 {
		return fmt.Errorf("max_trade_amount must be positive, got %f", p.MaxTradeAmount)
	}
	if p.MaxDailyTrades <= 0 {
		return fmt.Errorf("max_daily_trades must be positive, got %d", p.MaxDailyTrades)
	}
	if p.RiskFraction <= 0 || p.RiskFraction > 1 {
		return fmt.Errorf("risk_fraction must be in (0,1], got %f", p.RiskFraction)
	}
	if p.StopLossFraction <= 0 || p.StopLossFraction >= 1 {
		return fmt.Errorf("stop_loss_fraction must be in (0,1), got %f", p.StopLossFraction)
	}
	if p.TakeProfitFraction <= 0 {
		return fmt.Errorf("take_profit_fraction must be positive, got %f", p.TakeProfitFraction)
	}
	if p.MinConfidence <= 0 || p.MinConfidence > 1 {
		return fmt.Errorf("min_confidence must be in (0,1], got %f", p.MinConfidence)
	}
	return nil
}
