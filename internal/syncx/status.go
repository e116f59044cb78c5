package syncx

import "strings"

type Status string

const (
	StatusPending   Status = "pending"
	StatusPaid      Status = "paid"
	StatusFulfilled Status = "fulfilled"
	StatusCancelled Status = "cancelled"
)

// aliases partners use for the same canonical state
var statusAliases = map[string]Status{
	"pending":    StatusPending,
	"open":       StatusPending,
	"new":        StatusPending,
	"paid":       StatusPaid,
	"payment_ok": StatusPaid,
	"fulfilled":  StatusFulfilled,
	"complete":   StatusFulfilled,
	"completed":  StatusFulfilled,
	"shipped":    StatusFulfilled,
	"cancelled":  StatusCancelled,
	"canceled":   StatusCancelled,
	"void":       StatusCancelled,
}

// NormalizeStatus maps a raw partner status onto the canonical set.
// Unrecognized values pass through lowercased; field updates are
// last-write-wins, so an unknown status must not be rejected.
func NormalizeStatus(raw string) Status {
	s := strings.ToLower(strings.TrimSpace(raw))
	if canonical, ok := statusAliases[s]; ok {
		return canonical
	}
	return Status(s)
}
