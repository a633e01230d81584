package enums

import "fmt"

// EarningStatus captures reversal state for a creator earning. Earnings are
// append-only; reversals flip the status, never delete the row.
type EarningStatus string

const (
	// EarningStatusAccrued is the normal state: counted toward payouts.
	EarningStatusAccrued EarningStatus = "accrued"
	// EarningStatusVoided marks an unpaid earning reversed before payout.
	EarningStatusVoided EarningStatus = "voided"
	// EarningStatusClawback marks an already-paid earning whose purchase was
	// refunded; recovery happens outside this system.
	EarningStatusClawback EarningStatus = "clawback"
)

var validEarningStatuses = []EarningStatus{
	EarningStatusAccrued,
	EarningStatusVoided,
	EarningStatusClawback,
}

// String implements fmt.Stringer.
func (s EarningStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is known.
func (s EarningStatus) IsValid() bool {
	for _, candidate := range validEarningStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseEarningStatus converts raw input into an EarningStatus.
func ParseEarningStatus(value string) (EarningStatus, error) {
	for _, candidate := range validEarningStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid earning status %q", value)
}
