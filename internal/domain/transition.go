package domain

type TransitionPolicy interface {
	Allowed(from, to OrderStatus) bool
}

// AnyTransition lets any status be set from any other status.
type AnyTransition struct{}

func (AnyTransition) Allowed(from, to OrderStatus) bool { return true }

// GuardedTransitions follows CART -> PENDING -> ONWAY -> DELIVERED -> CONFIRMED,
// with CONFIRMED also reachable straight from PENDING.
type GuardedTransitions struct{}

var guardedGraph = map[OrderStatus][]OrderStatus{
	StatusCart:      {StatusPending},
	StatusPending:   {StatusOnway, StatusConfirmed},
	StatusOnway:     {StatusDelivered},
	StatusDelivered: {StatusConfirmed},
}

func (GuardedTransitions) Allowed(from, to OrderStatus) bool {
	if from == to {
		return true
	}
	for _, next := range guardedGraph[from] {
		if next == to {
			return true
		}
	}
	return false
}
