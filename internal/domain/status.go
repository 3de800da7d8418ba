package domain

import "time"

// AgentStatus is the trading loop's externally visible state, served by
// the control API and refreshed at cycle boundaries.
type AgentStatus struct {
	Running         bool      `json:"running"`
	TradingEnabled  bool      `json:"trading_enabled"`
	WalletConnected bool      `json:"wallet_connected"`
	CycleCount      int       `json:"cycle_count"`
	LastCycleAt     time.Time `json:"last_cycle_at"`
	DailyTrades     int       `json:"daily_trades"`
	MaxDailyTrades  int       `json:"max_daily_trades"`
	OpenPositions   int       `json:"open_positions"`
}
