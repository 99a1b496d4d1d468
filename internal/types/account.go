package types

// AccountInfo represents the broker's account state at the current mark:
// cash, equity, margin usage and cumulative P&L.
type AccountInfo struct {
	// Balance is the current cash balance (excluding unrealized P&L)
	Balance float64 `json:"balance" yaml:"balance"`
	// Equity is the total account value (balance + unrealized P&L)
	Equity float64 `json:"equity" yaml:"equity"`
	// BuyingPower is margin-available capital times leverage
	BuyingPower float64 `json:"buying_power" yaml:"buying_power"`
	// RealizedPnL is the total realized profit/loss from closed trades
	RealizedPnL float64 `json:"realized_pnl" yaml:"realized_pnl"`
	// UnrealizedPnL is the total unrealized profit/loss from open trades
	UnrealizedPnL float64 `json:"unrealized_pnl" yaml:"unrealized_pnl"`
	// TotalFees is the total commission paid so far
	TotalFees float64 `json:"total_fees" yaml:"total_fees"`
	// MarginUsed is the capital reserved against open exposure
	MarginUsed float64 `json:"margin_used" yaml:"margin_used"`
}
