package enums

import "fmt"

// OutboxAggregateType maps to the aggregate_type enum in Postgres.
type OutboxAggregateType string

const (
	AggregatePayout    OutboxAggregateType = "payout"
	AggregatePayoutRun OutboxAggregateType = "payout_run"
	AggregateEarning   OutboxAggregateType = "creator_earning"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregatePayout,
	AggregatePayoutRun,
	AggregateEarning,
}

// IsValid reports whether the value matches the canonical aggregate_type enum.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType maps to the event_type enum in Postgres.
type OutboxEventType string

const (
	EventPayoutRunCompleted     OutboxEventType = "payout_run_completed"
	EventPayoutPaid             OutboxEventType = "payout_paid"
	EventPayoutFailed           OutboxEventType = "payout_failed"
	EventEarningClawbackFlagged OutboxEventType = "earning_clawback_flagged"
)

var validOutboxEventTypes = []OutboxEventType{
	EventPayoutRunCompleted,
	EventPayoutPaid,
	EventPayoutFailed,
	EventEarningClawbackFlagged,
}

// IsValid reports whether the value matches the canonical event_type enum.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid outbox event type %q", value)
}
