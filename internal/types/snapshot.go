package types

// StateSnapshot is a pure, side-effect-free serialization of the engine and
// broker state for external consumers such as a UI. CurrentTime is "-" until
// the first step has executed.
type StateSnapshot struct {
	CurrentTime string  `yaml:"current_time" json:"current_time"`
	Progress    float64 `yaml:"progress" json:"progress"`
	StepIndex   int     `yaml:"step_index" json:"step_index"`
	TotalSteps  int     `yaml:"total_steps" json:"total_steps"`
	Finished    bool    `yaml:"finished" json:"finished"`

	Cash   float64 `yaml:"cash" json:"cash"`
	Equity float64 `yaml:"equity" json:"equity"`

	// Position is the signed net size summed across every instrument;
	// Positions carries the per-instrument breakdown.
	Position      float64            `yaml:"position" json:"position"`
	Positions     map[string]float64 `yaml:"positions" json:"positions"`
	PendingOrders int                `yaml:"pending_orders" json:"pending_orders"`
	OpenTrades    int                `yaml:"open_trades" json:"open_trades"`
	ClosedTrades  int                `yaml:"closed_trades" json:"closed_trades"`
}
