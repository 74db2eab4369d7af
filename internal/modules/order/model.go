// README: Order aggregate and lifecycle status definitions.
package order

import (
	"time"

	"github.com/shopspring/decimal"

	"expo/internal/types"
)

type Status string

const (
	StatusPending       Status = "pending"
	StatusWaitingBuffer Status = "waiting_buffer"
	StatusReady         Status = "ready"
	StatusDispatched    Status = "dispatched"
	StatusClosed        Status = "closed"
	StatusCancelled     Status = "cancelled"
)

type OrderType string

const (
	TypeDelivery OrderType = "delivery"
	TypeTakeaway OrderType = "takeaway"
	TypeDineIn   OrderType = "dine_in"
	TypeCounter  OrderType = "counter"
)

type Order struct {
	ID            types.ID
	ExternalRef   *string
	CustomerName  string
	Address       string
	Lat           *float64
	Lng           *float64
	Total         decimal.Decimal
	OrderType     OrderType
	Status        Status
	StatusVersion int
	Urgent        bool
	NotifyError   *string
	CreatedAt     time.Time
	ReadyAt       *time.Time
	DispatchedAt  *time.Time
}

type Event struct {
	ID         int64
	OrderID    types.ID
	FromStatus Status
	ToStatus   Status
	ActorType  string
	ActorID    *types.ID
	CreatedAt  time.Time
}

// AllowedTransitions represents the order lifecycle as code. Forward-only,
// except that cancel/close terminate from any non-terminal state. pending →
// ready is the urgency bypass: it never touches waiting_buffer.
var AllowedTransitions = map[Status][]Status{
	StatusPending:       {StatusWaitingBuffer, StatusReady, StatusCancelled, StatusClosed},
	StatusWaitingBuffer: {StatusReady, StatusCancelled, StatusClosed},
	StatusReady:         {StatusDispatched, StatusCancelled, StatusClosed},
	StatusDispatched:    {StatusClosed},
}

func CanTransition(from, to Status) bool {
	next, ok := AllowedTransitions[from]
	if !ok {
		return false
	}
	for _, s := range next {
		if s == to {
			return true
		}
	}
	return false
}

func ValidOrderType(t OrderType) bool {
	switch t {
	case TypeDelivery, TypeTakeaway, TypeDineIn, TypeCounter:
		return true
	}
	return false
}
