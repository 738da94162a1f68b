package types

type PaymentStatus string

const (
	PaymentStatusCreated  PaymentStatus = "created"
	PaymentStatusPending  PaymentStatus = "pending"
	PaymentStatusFailed   PaymentStatus = "failed"
	PaymentStatusCaptured PaymentStatus = "captured"
	PaymentStatusRefunded PaymentStatus = "refunded"
)

// statusRank orders statuses for monotonic transitions. A write only applies
// when the new status outranks the stored one; equal or lower ranks are
// silent no-ops so out-of-order deliveries cannot regress an attempt.
var statusRank = map[PaymentStatus]int{
	PaymentStatusCreated:  0,
	PaymentStatusPending:  1,
	PaymentStatusFailed:   2,
	PaymentStatusCaptured: 3,
	PaymentStatusRefunded: 4,
}

func (s PaymentStatus) Valid() bool {
	_, ok := statusRank[s]
	return ok
}

func (s PaymentStatus) Terminal() bool {
	return s == PaymentStatusCaptured || s == PaymentStatusRefunded
}

// PredecessorsOf returns the statuses a row may hold for a transition into s
// to apply. Refunded is only reachable from captured.
func PredecessorsOf(s PaymentStatus) []PaymentStatus {
	if s == PaymentStatusRefunded {
		return []PaymentStatus{PaymentStatusCaptured}
	}
	rank, ok := statusRank[s]
	if !ok {
		return nil
	}
	var prev []PaymentStatus
	for st, r := range statusRank {
		if r < rank && st != PaymentStatusRefunded {
			prev = append(prev, st)
		}
	}
	return prev
}
