// README: Order item aggregate and production status definitions.
package item

import (
	"time"

	"expo/internal/types"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusInPrep    Status = "in_prep"
	StatusInOven    Status = "in_oven"
	StatusReady     Status = "ready"
	StatusCancelled Status = "cancelled"
)

type Item struct {
	ID              types.ID
	OrderID         types.ID
	Sector          *types.Sector
	Product         string
	Quantity        int
	Notes           string
	Flavors         string
	EdgeType        string
	Status          Status
	ClaimedBy       *types.ID
	ClaimedAt       *time.Time
	OvenEntryAt     *time.Time
	EstimatedExitAt *time.Time
	ReadyAt         *time.Time
	CreatedAt       time.Time
}

// AllowedTransitions represents the item production flow as code.
// in_prep → pending is a claim release; ready → ready absorbs the benign
// re-mark race between tablets. Oven entry is one-way: there is no pull-back.
var AllowedTransitions = map[Status][]Status{
	StatusPending: {StatusInPrep, StatusCancelled},
	StatusInPrep:  {StatusPending, StatusInOven, StatusReady, StatusCancelled},
	StatusInOven:  {StatusReady, StatusCancelled},
	StatusReady:   {StatusReady},
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

// InOvenCycle reports whether the item passed through the oven on its way to
// ready. Sibling gating treats these separately from sector-only items.
func (i Item) InOvenCycle() bool {
	return i.OvenEntryAt != nil
}
