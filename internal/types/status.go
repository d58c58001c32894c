package types

import (
	"fmt"
	"strings"
)

// OrderKind tells the engine how a leg participates in its plan group.
type OrderKind int

const (
	KindUnknown OrderKind = iota
	KindEntry             // initial entry, starts OPEN
	KindDCA               // averaging-down entry, index 1..N
	KindStoploss
	KindTakeProfit // index 1..N matches the signal target list
	KindMoonbag
)

func (k OrderKind) String() string {
	switch k {
	case KindEntry:
		return "entry"
	case KindDCA:
		return "dca"
	case KindStoploss:
		return "stoploss"
	case KindTakeProfit:
		return "take_profit"
	case KindMoonbag:
		return "moonbag"
	default:
		return "unknown"
	}
}

// IsEntryLeg reports whether the leg adds to a position when it fills.
func (k OrderKind) IsEntryLeg() bool { return k == KindEntry || k == KindDCA }

// IsExitLeg reports whether the leg reduces or closes a position.
func (k OrderKind) IsExitLeg() bool {
	return k == KindStoploss || k == KindTakeProfit || k == KindMoonbag
}

// OrderStatus is the order lifecycle state. Transitions form a DAG with no
// back-edges; see CanTransition.
type OrderStatus int

const (
	StatusUnknown OrderStatus = iota
	StatusPending
	StatusOpen
	StatusExecuted
	StatusCancelled
	StatusClosed
)

func (s OrderStatus) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusOpen:
		return "open"
	case StatusExecuted:
		return "executed"
	case StatusCancelled:
		return "cancelled"
	case StatusClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// ParseOrderStatus maps the wire form back to the enum.
func ParseOrderStatus(raw string) (OrderStatus, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "pending":
		return StatusPending, nil
	case "open":
		return StatusOpen, nil
	case "executed":
		return StatusExecuted, nil
	case "cancelled":
		return StatusCancelled, nil
	case "closed":
		return StatusClosed, nil
	default:
		return StatusUnknown, fmt.Errorf("invalid order status: %q", raw)
	}
}

// Terminal reports whether no further transition is allowed.
func (s OrderStatus) Terminal() bool {
	return s == StatusExecuted || s == StatusCancelled || s == StatusClosed
}

var orderTransitions = map[OrderStatus][]OrderStatus{
	StatusPending: {StatusOpen, StatusCancelled, StatusClosed},
	StatusOpen:    {StatusExecuted, StatusCancelled, StatusClosed},
}

// CanTransition validates a single status edge. Terminal states absorb;
// self-transitions are rejected so callers cannot mask lost updates.
func CanTransition(from, to OrderStatus) bool {
	for _, next := range orderTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition returns to if the edge is valid, else an error naming both ends.
func Transition(from, to OrderStatus) (OrderStatus, error) {
	if !CanTransition(from, to) {
		return from, fmt.Errorf("illegal order transition %s -> %s", from, to)
	}
	return to, nil
}

// PositionStatus is the position lifecycle state.
type PositionStatus int

const (
	PositionUnknown PositionStatus = iota
	PositionOpen
	PositionClosed
)

func (s PositionStatus) String() string {
	switch s {
	case PositionOpen:
		return "open"
	case PositionClosed:
		return "closed"
	default:
		return "unknown"
	}
}
