package types

import "github.com/backcast-lab/backcast/pkg/errors"

// PositionCloser enqueues proportional reducing orders for every open trade
// of an instrument. Implemented by the broker.
type PositionCloser interface {
	ClosePosition(code string, portion float64) error
}

// Position is the derived aggregate of all open trades for one instrument:
// the signed sum of their sizes plus unrealized P&L at the current mark
// price. It is computed on demand and never stored.
type Position struct {
	Code string  `yaml:"code" json:"code"`
	Size float64 `yaml:"size" json:"size"`
	// PL is the unrealized profit at the mark price used to derive the
	// position; PLPct is PL relative to the open entry notional.
	PL    float64 `yaml:"pl" json:"pl"`
	PLPct float64 `yaml:"pl_pct" json:"pl_pct"`

	closer PositionCloser
}

// NewPosition builds a derived position bound to the broker that computed it.
func NewPosition(code string, size, pl, plPct float64, closer PositionCloser) Position {
	return Position{
		Code:   code,
		Size:   size,
		PL:     pl,
		PLPct:  plPct,
		closer: closer,
	}
}

// Exists reports whether any exposure is open. A zero-valued Position (before
// the run starts, or when flat) reports false.
func (p Position) Exists() bool {
	return p.Size != 0
}

// IsLong reports whether the net exposure is long.
func (p Position) IsLong() bool {
	return p.Size > 0
}

// IsShort reports whether the net exposure is short.
func (p Position) IsShort() bool {
	return p.Size < 0
}

// Close enqueues reducing orders for portion of every open trade of this
// instrument. Portion must be in (0, 1].
func (p Position) Close(portion float64) error {
	if !p.Exists() {
		return nil
	}

	if p.closer == nil {
		return errors.New(errors.ErrCodeInternal, "position is not bound to a broker")
	}

	return p.closer.ClosePosition(p.Code, portion)
}
