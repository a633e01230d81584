package enums

import "fmt"

// PurchaseStatus tracks the lifecycle of a buyer's claim on an item.
type PurchaseStatus string

const (
	PurchaseStatusPending       PurchaseStatus = "pending"
	PurchaseStatusActive        PurchaseStatus = "active"
	PurchaseStatusPastDue       PurchaseStatus = "past_due"
	PurchaseStatusCanceling     PurchaseStatus = "canceling"
	PurchaseStatusCanceled      PurchaseStatus = "canceled"
	PurchaseStatusRefunded      PurchaseStatus = "refunded"
	PurchaseStatusPaymentFailed PurchaseStatus = "payment_failed"
)

var validPurchaseStatuses = []PurchaseStatus{
	PurchaseStatusPending,
	PurchaseStatusActive,
	PurchaseStatusPastDue,
	PurchaseStatusCanceling,
	PurchaseStatusCanceled,
	PurchaseStatusRefunded,
	PurchaseStatusPaymentFailed,
}

// String implements fmt.Stringer.
func (s PurchaseStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is known.
func (s PurchaseStatus) IsValid() bool {
	for _, candidate := range validPurchaseStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions are allowed.
func (s PurchaseStatus) IsTerminal() bool {
	switch s {
	case PurchaseStatusCanceled, PurchaseStatusRefunded, PurchaseStatusPaymentFailed:
		return true
	default:
		return false
	}
}

// ParsePurchaseStatus converts raw input into a PurchaseStatus.
func ParsePurchaseStatus(value string) (PurchaseStatus, error) {
	for _, candidate := range validPurchaseStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid purchase status %q", value)
}

// PurchaseKind distinguishes single charges from recurring subscriptions.
type PurchaseKind string

const (
	PurchaseKindOneOff       PurchaseKind = "one_off"
	PurchaseKindSubscription PurchaseKind = "subscription"
)

var validPurchaseKinds = []PurchaseKind{
	PurchaseKindOneOff,
	PurchaseKindSubscription,
}

// String implements fmt.Stringer.
func (k PurchaseKind) String() string {
	return string(k)
}

// IsValid reports whether the value is known.
func (k PurchaseKind) IsValid() bool {
	for _, candidate := range validPurchaseKinds {
		if candidate == k {
			return true
		}
	}
	return false
}

// ParsePurchaseKind converts raw input into a PurchaseKind.
func ParsePurchaseKind(value string) (PurchaseKind, error) {
	for _, candidate := range validPurchaseKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid purchase kind %q", value)
}
