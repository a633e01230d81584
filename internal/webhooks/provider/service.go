package provider

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"
	"gorm.io/gorm"

	"github.com/creatorpay/creatorpay-backend/internal/earnings"
	"github.com/creatorpay/creatorpay-backend/internal/purchases"
	"github.com/creatorpay/creatorpay-backend/pkg/db"
	"github.com/creatorpay/creatorpay-backend/pkg/db/models"
	"github.com/creatorpay/creatorpay-backend/pkg/enums"
	pkgerrors "github.com/creatorpay/creatorpay-backend/pkg/errors"
	"github.com/creatorpay/creatorpay-backend/pkg/logger"
)

// errReplay marks a duplicate delivery so the transaction rolls back and the
// event is acknowledged without side effects.
var errReplay = errors.New("webhook event already processed")

type settlementService interface {
	ConfirmTransfer(ctx context.Context, tx *gorm.DB, payoutID uuid.UUID, transferRef string, occurredAt time.Time) error
	FailTransfer(ctx context.Context, tx *gorm.DB, payoutID uuid.UUID, reason string) error
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// ServiceParams wires the webhook reconciler dependencies.
type ServiceParams struct {
	Purchases         purchases.Service
	Earnings          earnings.Service
	Settlement        settlementService
	Repo              Repository
	TransactionRunner txRunner
	Logger            *logger.Logger
}

// Service turns verified provider events into ledger writes. Each event runs
// in one transaction holding the dedupe row and every side effect, so a
// replay either collides on the dedupe insert or sees nothing committed.
type Service struct {
	purchases  purchases.Service
	earnings   earnings.Service
	settlement settlementService
	repo       Repository
	txRunner   txRunner
	logg       *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Purchases == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "purchase service required")
	}
	if params.Earnings == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "earnings service required")
	}
	if params.Settlement == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "settlement service required")
	}
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "webhook repo required")
	}
	if params.TransactionRunner == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	return &Service{
		purchases:  params.Purchases,
		earnings:   params.Earnings,
		settlement: params.Settlement,
		repo:       params.Repo,
		txRunner:   params.TransactionRunner,
		logg:       params.Logger,
	}, nil
}

func (s *Service) HandleEvent(ctx context.Context, event *stripe.Event) error {
	if event == nil || event.ID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "event id required")
	}

	var handler func(ctx context.Context, tx *gorm.DB, event *stripe.Event) error
	switch string(event.Type) {
	case eventCheckoutCompleted:
		handler = s.handleCheckoutCompleted
	case eventInvoicePaid:
		handler = s.handleInvoicePaid
	case eventInvoicePaymentFailed:
		handler = s.handleInvoicePaymentFailed
	case eventSubscriptionUpdated:
		handler = s.handleSubscriptionUpdated
	case eventSubscriptionDeleted:
		handler = s.handleSubscriptionDeleted
	case eventChargeRefunded:
		handler = s.handleChargeRefunded
	case eventDisputeCreated:
		handler = s.handleDisputeCreated
	case eventTransferCreated:
		handler = s.handleTransferCreated
	case eventTransferFailed:
		handler = s.handleTransferFailed
	default:
		return nil
	}

	err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.recordDelivery(ctx, tx, event); err != nil {
			return err
		}
		return handler(ctx, tx, event)
	})
	if errors.Is(err, errReplay) {
		logCtx := s.logg.WithField(ctx, "provider_event_id", event.ID)
		s.logg.Info(logCtx, "duplicate webhook delivery ignored")
		return nil
	}
	return err
}

// recordDelivery inserts the durable dedupe row. A unique violation means an
// earlier delivery already committed.
func (s *Service) recordDelivery(ctx context.Context, tx *gorm.DB, event *stripe.Event) error {
	row := &models.WebhookEvent{
		ID:              uuid.New(),
		Provider:        ProviderStripe,
		ProviderEventID: event.ID,
		EventType:       string(event.Type),
		ProcessedAt:     time.Now().UTC(),
	}
	if err := s.repo.WithTx(tx).Insert(ctx, row); err != nil {
		if db.IsUniqueViolation(err, "ux_webhook_events_provider_event") {
			return errReplay
		}
		return err
	}
	return nil
}

func (s *Service) handleCheckoutCompleted(ctx context.Context, tx *gorm.DB, event *stripe.Event) error {
	var session checkoutSessionPayload
	if err := decodePayload(event, &session); err != nil {
		return err
	}

	chargeRef := session.PaymentIntent
	if chargeRef == "" {
		chargeRef = session.ID
	}

	meta, err := parseCheckoutMetadata(session.Metadata)
	if err != nil {
		return err
	}

	currency, err := enums.ParseCurrency(session.Currency)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "checkout currency")
	}

	kind := enums.PurchaseKindOneOff
	var subscriptionRef *string
	if session.Subscription != "" {
		kind = enums.PurchaseKindSubscription
		subscriptionRef = &session.Subscription
	}

	purchase, err := s.purchases.WithTx(tx).UpsertFromCheckout(ctx, purchases.UpsertInput{
		TenantID:                meta.tenantID,
		BuyerID:                 meta.buyerID,
		ItemID:                  meta.itemID,
		CreatorID:               meta.creatorID,
		RevenueShareBps:         meta.revenueShareBps,
		ExternalCustomerRef:     session.Customer,
		ExternalChargeRef:       chargeRef,
		ExternalSubscriptionRef: subscriptionRef,
		Currency:                currency,
		AmountMinor:             session.AmountTotal,
		Kind:                    kind,
		StartsAt:                unixTime(session.Created),
	})
	if err != nil {
		return err
	}

	_, err = s.earnings.WithTx(tx).Record(ctx, earnings.RecordInput{
		CreatorID:       purchase.CreatorID,
		ItemID:          purchase.ItemID,
		PurchaseID:      purchase.ID,
		DedupeKey:       chargeRef,
		GrossMinor:      session.AmountTotal,
		Currency:        currency,
		RevenueShareBps: purchase.RevenueShareBps,
		EarnedAt:        unixTime(session.Created),
	})
	return err
}

func (s *Service) handleInvoicePaid(ctx context.Context, tx *gorm.DB, event *stripe.Event) error {
	var invoice invoicePayload
	if err := decodePayload(event, &invoice); err != nil {
		return err
	}
	if invoice.Subscription == "" {
		// One-off invoices carry no recurring claim to renew.
		return nil
	}
	if invoice.BillingReason == billingReasonSubscriptionCreate {
		// The checkout handler already accrued this cycle's earning.
		return nil
	}

	purchase, err := s.purchases.WithTx(tx).MarkRenewed(ctx, invoice.Subscription)
	if err != nil {
		return s.ackUnknownRef(ctx, err, "subscription_ref", invoice.Subscription)
	}

	currency := purchase.Currency
	if parsed, parseErr := enums.ParseCurrency(invoice.Currency); parseErr == nil {
		currency = parsed
	}

	_, err = s.earnings.WithTx(tx).Record(ctx, earnings.RecordInput{
		CreatorID:       purchase.CreatorID,
		ItemID:          purchase.ItemID,
		PurchaseID:      purchase.ID,
		DedupeKey:       invoice.ID,
		GrossMinor:      invoice.AmountPaid,
		Currency:        currency,
		RevenueShareBps: purchase.RevenueShareBps,
		EarnedAt:        unixTime(invoice.Created),
	})
	return err
}

func (s *Service) handleInvoicePaymentFailed(ctx context.Context, tx *gorm.DB, event *stripe.Event) error {
	var invoice invoicePayload
	if err := decodePayload(event, &invoice); err != nil {
		return err
	}
	if invoice.Subscription == "" {
		return nil
	}

	scoped := s.purchases.WithTx(tx)
	purchase, err := scoped.MarkRenewed(ctx, invoice.Subscription)
	if err != nil {
		return s.ackUnknownRef(ctx, err, "subscription_ref", invoice.Subscription)
	}
	_, err = scoped.MarkStatus(ctx, purchase, enums.PurchaseStatusPastDue, nil)
	return err
}

func (s *Service) handleSubscriptionUpdated(ctx context.Context, tx *gorm.DB, event *stripe.Event) error {
	var sub subscriptionPayload
	if err := decodePayload(event, &sub); err != nil {
		return err
	}

	scoped := s.purchases.WithTx(tx)
	purchase, err := scoped.MarkRenewed(ctx, sub.ID)
	if err != nil {
		return s.ackUnknownRef(ctx, err, "subscription_ref", sub.ID)
	}

	target := enums.PurchaseStatusActive
	switch {
	case sub.Status == "canceled":
		target = enums.PurchaseStatusCanceled
	case sub.CancelAtPeriodEnd:
		target = enums.PurchaseStatusCanceling
	}

	var expiresAt *time.Time
	if end := unixTime(sub.CurrentPeriodEnd); !end.IsZero() {
		expiresAt = &end
	}

	_, err = scoped.MarkStatus(ctx, purchase, target, expiresAt)
	return err
}

func (s *Service) handleSubscriptionDeleted(ctx context.Context, tx *gorm.DB, event *stripe.Event) error {
	var sub subscriptionPayload
	if err := decodePayload(event, &sub); err != nil {
		return err
	}

	scoped := s.purchases.WithTx(tx)
	purchase, err := scoped.MarkRenewed(ctx, sub.ID)
	if err != nil {
		return s.ackUnknownRef(ctx, err, "subscription_ref", sub.ID)
	}

	now := time.Now().UTC()
	_, err = scoped.MarkStatus(ctx, purchase, enums.PurchaseStatusCanceled, &now)
	return err
}

func (s *Service) handleChargeRefunded(ctx context.Context, tx *gorm.DB, event *stripe.Event) error {
	var charge chargePayload
	if err := decodePayload(event, &charge); err != nil {
		return err
	}
	return s.reverse(ctx, tx, charge.ID)
}

func (s *Service) handleDisputeCreated(ctx context.Context, tx *gorm.DB, event *stripe.Event) error {
	var dispute disputePayload
	if err := decodePayload(event, &dispute); err != nil {
		return err
	}
	return s.reverse(ctx, tx, dispute.Charge)
}

// reverse flips the purchase to refunded and reverses its earnings in the
// same transaction.
func (s *Service) reverse(ctx context.Context, tx *gorm.DB, chargeRef string) error {
	if chargeRef == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "charge reference required")
	}
	purchase, err := s.purchases.WithTx(tx).MarkRefunded(ctx, chargeRef)
	if err != nil {
		return s.ackUnknownRef(ctx, err, "charge_ref", chargeRef)
	}
	_, err = s.earnings.WithTx(tx).Reverse(ctx, purchase.ID)
	return err
}

func (s *Service) handleTransferCreated(ctx context.Context, tx *gorm.DB, event *stripe.Event) error {
	transfer, payoutID, err := s.decodeTransfer(ctx, event)
	if err != nil || payoutID == uuid.Nil {
		return err
	}
	err = s.settlement.ConfirmTransfer(ctx, tx, payoutID, transfer.ID, unixTime(event.Created))
	return s.ackUnknownRef(ctx, err, "payout_id", payoutID.String())
}

func (s *Service) handleTransferFailed(ctx context.Context, tx *gorm.DB, event *stripe.Event) error {
	transfer, payoutID, err := s.decodeTransfer(ctx, event)
	if err != nil || payoutID == uuid.Nil {
		return err
	}
	err = s.settlement.FailTransfer(ctx, tx, payoutID, "transfer failed: "+transfer.ID)
	return s.ackUnknownRef(ctx, err, "payout_id", payoutID.String())
}

// decodeTransfer extracts the payout id planted in the transfer metadata at
// creation time. Transfers without it belong to some other system and are
// acknowledged untouched.
func (s *Service) decodeTransfer(ctx context.Context, event *stripe.Event) (*transferPayload, uuid.UUID, error) {
	var transfer transferPayload
	if err := decodePayload(event, &transfer); err != nil {
		return nil, uuid.Nil, err
	}
	raw, ok := transfer.Metadata["payout_id"]
	if !ok || raw == "" {
		logCtx := s.logg.WithField(ctx, "transfer_ref", transfer.ID)
		s.logg.Info(logCtx, "transfer without payout metadata ignored")
		return &transfer, uuid.Nil, nil
	}
	payoutID, err := uuid.Parse(raw)
	if err != nil {
		logCtx := s.logg.WithField(ctx, "transfer_ref", transfer.ID)
		s.logg.Warn(logCtx, "transfer carries malformed payout id, ignoring")
		return &transfer, uuid.Nil, nil
	}
	return &transfer, payoutID, nil
}

// ackUnknownRef downgrades a missing-reference failure to an acknowledged
// no-op. The dedupe row still commits so the provider stops redelivering an
// event this system can never apply.
func (s *Service) ackUnknownRef(ctx context.Context, err error, field, value string) error {
	if err == nil {
		return nil
	}
	if coded := pkgerrors.As(err); coded != nil && coded.Code() == pkgerrors.CodeNotFound {
		logCtx := s.logg.WithField(ctx, field, value)
		s.logg.Warn(logCtx, "webhook references unknown record, acknowledged")
		return nil
	}
	return err
}

type checkoutMetadata struct {
	tenantID        uuid.UUID
	buyerID         uuid.UUID
	itemID          uuid.UUID
	creatorID       uuid.UUID
	revenueShareBps uint16
}

func parseCheckoutMetadata(meta map[string]string) (*checkoutMetadata, error) {
	out := &checkoutMetadata{}
	ids := []struct {
		key    string
		target *uuid.UUID
	}{
		{"tenant_id", &out.tenantID},
		{"buyer_id", &out.buyerID},
		{"item_id", &out.itemID},
		{"creator_id", &out.creatorID},
	}
	for _, field := range ids {
		raw, ok := meta[field.key]
		if !ok || raw == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "checkout metadata missing "+field.key)
		}
		parsed, err := uuid.Parse(raw)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "checkout metadata "+field.key)
		}
		*field.target = parsed
	}

	rawBps, ok := meta["revenue_share_bps"]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "checkout metadata missing revenue_share_bps")
	}
	bps, err := strconv.ParseUint(rawBps, 10, 16)
	if err != nil || bps > 10000 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "checkout metadata revenue_share_bps out of range")
	}
	out.revenueShareBps = uint16(bps)
	return out, nil
}
