package types

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/moznion/go-optional"
	"github.com/stretchr/testify/assert"

	"github.com/backcast-lab/backcast/pkg/errors"
)

func validOrder() Order {
	return Order{
		ID:            uuid.New().String(),
		Code:          "AAPL",
		Size:          10,
		Limit:         optional.None[float64](),
		Stop:          optional.None[float64](),
		StopLoss:      optional.None[float64](),
		TakeProfit:    optional.None[float64](),
		Kind:          OrderKindPlain,
		Intent:        OrderIntentOpen,
		Status:        OrderStatusPending,
		PlacedAt:      time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
		PlacedAtIndex: 0,
	}
}

func TestOrderValidate(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(o *Order)
		shouldError bool
		code        errors.ErrorCode
	}{
		{
			name:        "valid market order",
			mutate:      func(o *Order) {},
			shouldError: false,
		},
		{
			name: "valid limit order with brackets",
			mutate: func(o *Order) {
				o.Limit = optional.Some(99.5)
				o.StopLoss = optional.Some(95.0)
				o.TakeProfit = optional.Some(110.0)
			},
			shouldError: false,
		},
		{
			name:        "missing code",
			mutate:      func(o *Order) { o.Code = "" },
			shouldError: true,
			code:        errors.ErrCodeInvalidOrder,
		},
		{
			name:        "zero size",
			mutate:      func(o *Order) { o.Size = 0 },
			shouldError: true,
			code:        errors.ErrCodeInvalidOrder,
		},
		{
			name:        "unknown kind",
			mutate:      func(o *Order) { o.Kind = OrderKind("WEIRD") },
			shouldError: true,
			code:        errors.ErrCodeInvalidOrder,
		},
		{
			name: "contingent without parent trade",
			mutate: func(o *Order) {
				o.Kind = OrderKindContingent
			},
			shouldError: true,
			code:        errors.ErrCodeInvalidOrder,
		},
		{
			name: "reduce without trade id",
			mutate: func(o *Order) {
				o.Intent = OrderIntentReduce
			},
			shouldError: true,
			code:        errors.ErrCodeInvalidOrder,
		},
		{
			name: "contingent with parent trade",
			mutate: func(o *Order) {
				o.Kind = OrderKindContingent
				o.Intent = OrderIntentReduce
				o.ParentTradeID = uuid.New().String()
				o.ReduceTradeID = o.ParentTradeID
			},
			shouldError: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			order := validOrder()
			tt.mutate(&order)

			err := order.Validate()
			if tt.shouldError {
				assert.Error(t, err)
				if tt.code != 0 {
					assert.True(t, errors.HasCode(err, tt.code))
				}
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestOrderDirection(t *testing.T) {
	buy := validOrder()
	assert.True(t, buy.IsLong())
	assert.False(t, buy.IsShort())

	sell := validOrder()
	sell.Size = -5
	assert.True(t, sell.IsShort())
	assert.False(t, sell.IsLong())
}

func TestOrderIsContingent(t *testing.T) {
	order := validOrder()
	assert.False(t, order.IsContingent())

	order.Kind = OrderKindContingent
	order.ParentTradeID = uuid.New().String()
	assert.True(t, order.IsContingent())
}

type recordingCanceller struct {
	cancelled []string
}

func (c *recordingCanceller) CancelOrder(orderID string) bool {
	c.cancelled = append(c.cancelled, orderID)
	return true
}

func TestOrderCancel(t *testing.T) {
	canceller := &recordingCanceller{}

	order := validOrder()
	order.Bind(canceller)

	assert.True(t, order.Cancel())
	assert.Equal(t, []string{order.ID}, canceller.cancelled)
}

func TestOrderCancelUnbound(t *testing.T) {
	order := validOrder()
	assert.False(t, order.Cancel())
}

func TestOrderCancelAfterFill(t *testing.T) {
	canceller := &recordingCanceller{}

	order := validOrder()
	order.Bind(canceller)
	order.Status = OrderStatusFilled

	// Cancel is a no-op once the order has left the pending state
	assert.False(t, order.Cancel())
	assert.Empty(t, canceller.cancelled)
}
