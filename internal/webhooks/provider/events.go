package provider

import (
	"encoding/json"
	"time"

	"github.com/stripe/stripe-go/v84"

	pkgerrors "github.com/creatorpay/creatorpay-backend/pkg/errors"
)

// ProviderStripe is the provider label stored on dedupe rows.
const ProviderStripe = "stripe"

// Event types the reconciler reacts to. Everything else is acknowledged
// untouched so the provider stops redelivering.
const (
	eventCheckoutCompleted    = "checkout.session.completed"
	eventInvoicePaid          = "invoice.paid"
	eventInvoicePaymentFailed = "invoice.payment_failed"
	eventSubscriptionUpdated  = "customer.subscription.updated"
	eventSubscriptionDeleted  = "customer.subscription.deleted"
	eventChargeRefunded       = "charge.refunded"
	eventDisputeCreated       = "charge.dispute.created"
	eventTransferCreated      = "transfer.created"
	eventTransferFailed       = "transfer.failed"
)

// billingReasonSubscriptionCreate marks the invoice issued at checkout time;
// its earning is accrued by the checkout handler, not the renewal path.
const billingReasonSubscriptionCreate = "subscription_create"

type checkoutSessionPayload struct {
	ID            string            `json:"id"`
	Customer      string            `json:"customer"`
	PaymentIntent string            `json:"payment_intent"`
	Subscription  string            `json:"subscription"`
	AmountTotal   int64             `json:"amount_total"`
	Currency      string            `json:"currency"`
	Created       int64             `json:"created"`
	ExpiresAt     int64             `json:"expires_at"`
	Metadata      map[string]string `json:"metadata"`
}

type invoicePayload struct {
	ID            string `json:"id"`
	Subscription  string `json:"subscription"`
	BillingReason string `json:"billing_reason"`
	AmountPaid    int64  `json:"amount_paid"`
	Currency      string `json:"currency"`
	Created       int64  `json:"created"`
}

type subscriptionPayload struct {
	ID                string `json:"id"`
	Status            string `json:"status"`
	CancelAtPeriodEnd bool   `json:"cancel_at_period_end"`
	CurrentPeriodEnd  int64  `json:"current_period_end"`
	CanceledAt        int64  `json:"canceled_at"`
	EndedAt           int64  `json:"ended_at"`
}

type chargePayload struct {
	ID       string `json:"id"`
	Refunded bool   `json:"refunded"`
}

type disputePayload struct {
	ID     string `json:"id"`
	Charge string `json:"charge"`
	Reason string `json:"reason"`
}

type transferPayload struct {
	ID       string            `json:"id"`
	Metadata map[string]string `json:"metadata"`
}

func decodePayload(event *stripe.Event, out any) error {
	if event == nil || event.Data == nil || len(event.Data.Raw) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "event payload missing")
	}
	if err := json.Unmarshal(event.Data.Raw, out); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode event payload")
	}
	return nil
}

func unixTime(sec int64) time.Time {
	if sec <= 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}
