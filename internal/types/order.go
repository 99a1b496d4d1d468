package types

import (
	"math"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/moznion/go-optional"

	"github.com/backcast-lab/backcast/pkg/errors"
)

// OrderKind distinguishes strategy-submitted orders from broker-generated
// bracket (stop-loss/take-profit) children.
type OrderKind string

// OrderIntent distinguishes orders that open new exposure from orders that
// reduce an existing trade.
type OrderIntent string

type OrderStatus string

// TradeEvent identifies the direction of an opening fill reported to trade
// callbacks.
type TradeEvent string

const (
	OrderKindPlain      OrderKind = "PLAIN"
	OrderKindContingent OrderKind = "CONTINGENT"
)

const (
	OrderIntentOpen   OrderIntent = "OPEN"
	OrderIntentReduce OrderIntent = "REDUCE"
)

const (
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusFilled    OrderStatus = "FILLED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
	OrderStatusRejected  OrderStatus = "REJECTED"
)

const (
	TradeEventBuy  TradeEvent = "BUY"
	TradeEventSell TradeEvent = "SELL"
)

// Rejection reasons passed to the diagnostic hook when the broker drops an
// order without filling it.
const (
	RejectReasonInsufficientMargin string = "insufficient_margin"
	RejectReasonZeroSize           string = "zero_size"
	RejectReasonExclusive          string = "exclusive_orders"
)

// OrderCanceller removes a pending order from the broker's book.
// Implemented by the broker; orders hold it so Cancel works standalone.
type OrderCanceller interface {
	CancelOrder(orderID string) bool
}

// Order is a request to transact Size units of an instrument. Size is signed:
// positive buys (long), negative sells (short). Sizes with |size| < 1 are
// interpreted by the broker as a fraction of margin-available buying power.
//
// Orders fill on bars after the bar on which they were placed (next-bar
// execution), except market orders under trade-on-close which fill at the
// placement bar's close. The ordering of StopLoss/TakeProfit relative to the
// size sign is the caller's responsibility; inverted brackets are not
// rejected.
type Order struct {
	ID   string  `yaml:"id" json:"id"`
	Code string  `yaml:"code" json:"code" validate:"required"`
	Size float64 `yaml:"size" json:"size" validate:"required"`
	// Limit converts the order into a limit order filled at Limit or better.
	Limit optional.Option[float64] `yaml:"limit" json:"limit"`
	// Stop converts the order into a stop order armed when the price crosses
	// Stop. When Limit is also set the stop trigger converts it into a limit
	// order.
	Stop optional.Option[float64] `yaml:"stop" json:"stop"`
	// StopLoss and TakeProfit spawn contingent child orders owned by the
	// trade created when this order fills.
	StopLoss   optional.Option[float64] `yaml:"stop_loss" json:"stop_loss"`
	TakeProfit optional.Option[float64] `yaml:"take_profit" json:"take_profit"`
	// Tag is opaque strategy bookkeeping propagated to the resulting trade.
	Tag string `yaml:"tag" json:"tag"`

	Kind   OrderKind   `yaml:"kind" json:"kind" validate:"required,oneof=PLAIN CONTINGENT"`
	Intent OrderIntent `yaml:"intent" json:"intent" validate:"required,oneof=OPEN REDUCE"`
	// ParentTradeID links a contingent order to the trade that owns it.
	// Resolved by ID lookup, never by object identity.
	ParentTradeID string `yaml:"parent_trade_id" json:"parent_trade_id"`
	// ReduceTradeID names the trade a reduce order shrinks.
	ReduceTradeID string `yaml:"reduce_trade_id" json:"reduce_trade_id"`

	Status OrderStatus `yaml:"status" json:"status"`
	// PlacedAt is the engine time at submission; PlacedAtIndex the step
	// cursor, used to enforce next-bar execution.
	PlacedAt      time.Time `yaml:"placed_at" json:"placed_at"`
	PlacedAtIndex int       `yaml:"placed_at_index" json:"placed_at_index"`

	FillPrice optional.Option[float64]   `yaml:"fill_price" json:"fill_price"`
	FilledAt  optional.Option[time.Time] `yaml:"filled_at" json:"filled_at"`

	canceller OrderCanceller
}

// IsLong reports whether the order increases long exposure.
func (o *Order) IsLong() bool {
	return o.Size > 0
}

// IsShort reports whether the order increases short exposure.
func (o *Order) IsShort() bool {
	return o.Size < 0
}

// IsContingent reports whether the order is a broker-generated SL/TP child.
func (o *Order) IsContingent() bool {
	return o.Kind == OrderKindContingent
}

// Bind attaches the broker's canceller so Cancel can remove the order from
// the pending book. Called by the broker when the order is accepted.
func (o *Order) Bind(c OrderCanceller) {
	o.canceller = c
}

// Cancel removes the order from the broker's pending book. It is a no-op
// returning false once the order has been filled or cancelled, or when the
// order was never accepted by a broker.
func (o *Order) Cancel() bool {
	if o.canceller == nil || o.Status != OrderStatusPending {
		return false
	}

	return o.canceller.CancelOrder(o.ID)
}

// Validate validates the Order struct.
func (o *Order) Validate() error {
	validate := validator.New()
	if err := validate.Struct(o); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidOrder, "invalid order", err)
	}

	if math.IsNaN(o.Size) || math.IsInf(o.Size, 0) {
		return errors.New(errors.ErrCodeInvalidSize, "order size must be finite")
	}

	if o.Kind == OrderKindContingent && o.ParentTradeID == "" {
		return errors.New(errors.ErrCodeInvalidOrder, "contingent order requires a parent trade id")
	}

	if o.Intent == OrderIntentReduce && o.ReduceTradeID == "" {
		return errors.New(errors.ErrCodeInvalidOrder, "reduce order requires a trade id")
	}

	return nil
}
