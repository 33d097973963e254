package order

import (
	"fmt"
	"slices"
	"time"

	"github.com/go-faster/errors"
)

// ErrHistoryNotFromPending is returned by ReplayHistory when the oldest entry
// is not PENDING.
var ErrHistoryNotFromPending = errors.New("history must start at PENDING")

// transitions maps a status to the statuses it may move to next. Every
// status has an entry, terminal ones map to nil.
var transitions = map[Status][]Status{
	StatusPending:        {StatusConfirmed, StatusCancelled},
	StatusConfirmed:      {StatusProcessing, StatusCancelled},
	StatusProcessing:     {StatusShipped, StatusCancelled},
	StatusShipped:        {StatusOutForDelivery, StatusDelivered},
	StatusOutForDelivery: {StatusDelivered, StatusReturned},
	StatusDelivered:      {StatusReturned},
	StatusCancelled:      nil,
	StatusReturned:       {StatusRefunded},
	StatusRefunded:       nil,
}

// IsValidTransition reports whether an order in current may move to target.
func IsValidTransition(current, target Status) bool {
	return slices.Contains(transitions[current], target)
}

// AllowedTransitions returns the statuses reachable from current in one step.
func AllowedTransitions(current Status) []Status {
	return slices.Clone(transitions[current])
}

// CanCancel reports whether the business allows cancelling an order in s.
// It is independent of the transition table.
func CanCancel(s Status) bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusProcessing:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether s ends the normal lifecycle. RETURNED is not
// terminal since it still leads to REFUNDED; DELIVERED is, although it can
// move to RETURNED. Callers depend on this exact set.
func IsTerminal(s Status) bool {
	switch s {
	case StatusDelivered, StatusCancelled, StatusRefunded:
		return true
	default:
		return false
	}
}

// Describe returns a one-line human description of s.
func Describe(s Status) string {
	switch s {
	case StatusPending:
		return "Order placed and awaiting confirmation"
	case StatusConfirmed:
		return "Order confirmed by the seller"
	case StatusProcessing:
		return "Order is being packed"
	case StatusShipped:
		return "Order handed over to the courier"
	case StatusOutForDelivery:
		return "Order is out for delivery"
	case StatusDelivered:
		return "Order delivered to the customer"
	case StatusCancelled:
		return "Order cancelled"
	case StatusReturned:
		return "Order returned by the customer"
	case StatusRefunded:
		return "Payment refunded to the customer"
	default:
		return "Unknown status"
	}
}

// StatusEntry is one record of the status history.
type StatusEntry struct {
	Status    Status
	Timestamp time.Time
	Notes     string
}

// TimelineEntry is a history entry decorated for display.
type TimelineEntry struct {
	Status      Status
	Description string
	Timestamp   time.Time
	Notes       string
}

// BuildTimeline sorts a copy of history by timestamp and decorates each entry
// with its description. Entries with equal timestamps keep their input order.
func BuildTimeline(history []StatusEntry) []TimelineEntry {
	sorted := sortedHistory(history)

	timeline := make([]TimelineEntry, len(sorted))
	for i, e := range sorted {
		timeline[i] = TimelineEntry{
			Status:      e.Status,
			Description: Describe(e.Status),
			Timestamp:   e.Timestamp,
			Notes:       e.Notes,
		}
	}
	return timeline
}

func sortedHistory(history []StatusEntry) []StatusEntry {
	sorted := slices.Clone(history)
	slices.SortStableFunc(sorted, func(a, b StatusEntry) int {
		return a.Timestamp.Compare(b.Timestamp)
	})
	return sorted
}

// InvalidTransitionError reports a status change that the lifecycle forbids.
type InvalidTransitionError struct {
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid status transition from %s to %s", e.From, e.To)
}

// ReplayHistory checks that history, taken in timestamp order, starts at
// PENDING and only makes legal moves. It returns the first offending step.
func ReplayHistory(history []StatusEntry) error {
	sorted := sortedHistory(history)
	if len(sorted) == 0 {
		return nil
	}
	if sorted[0].Status != StatusPending {
		return errors.Wrapf(ErrHistoryNotFromPending, "first entry is %s", sorted[0].Status)
	}
	for i := 1; i < len(sorted); i++ {
		from, to := sorted[i-1].Status, sorted[i].Status
		if !IsValidTransition(from, to) {
			return &InvalidTransitionError{From: from, To: to}
		}
	}
	return nil
}
