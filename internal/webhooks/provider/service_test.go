package provider

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v84"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/creatorpay/creatorpay-backend/internal/earnings"
	"github.com/creatorpay/creatorpay-backend/internal/purchases"
	"github.com/creatorpay/creatorpay-backend/pkg/db/models"
	"github.com/creatorpay/creatorpay-backend/pkg/enums"
	"github.com/creatorpay/creatorpay-backend/pkg/logger"
)

func setupProviderTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	statements := []string{
		`CREATE TABLE IF NOT EXISTS purchases (
  id TEXT PRIMARY KEY,
  tenant_id TEXT NOT NULL,
  buyer_id TEXT NOT NULL,
  item_id TEXT NOT NULL,
  creator_id TEXT NOT NULL,
  revenue_share_bps INTEGER NOT NULL,
  external_customer_ref TEXT,
  external_charge_ref TEXT NOT NULL,
  external_subscription_ref TEXT,
  currency TEXT NOT NULL,
  amount_minor INTEGER NOT NULL,
  kind TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'pending',
  starts_at DATETIME NOT NULL,
  expires_at DATETIME,
  fingerprint TEXT NOT NULL,
  created_at DATETIME,
  updated_at DATETIME
);`,
		`CREATE UNIQUE INDEX IF NOT EXISTS ux_purchases_charge_ref ON purchases(external_charge_ref);`,
		`CREATE TABLE IF NOT EXISTS creator_earnings (
  id TEXT PRIMARY KEY,
  creator_id TEXT NOT NULL,
  item_id TEXT NOT NULL,
  purchase_id TEXT NOT NULL,
  dedupe_key TEXT NOT NULL,
  gross_minor INTEGER NOT NULL,
  fee_minor INTEGER NOT NULL,
  net_minor INTEGER NOT NULL,
  revenue_share_bps INTEGER NOT NULL,
  currency TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'accrued',
  earned_at DATETIME NOT NULL,
  paid_out INTEGER NOT NULL DEFAULT 0,
  payout_id TEXT,
  created_at DATETIME,
  updated_at DATETIME
);`,
		`CREATE UNIQUE INDEX IF NOT EXISTS ux_earnings_dedupe_key ON creator_earnings(dedupe_key);`,
		`CREATE TABLE IF NOT EXISTS webhook_events (
  id TEXT PRIMARY KEY,
  provider TEXT NOT NULL,
  provider_event_id TEXT NOT NULL,
  event_type TEXT NOT NULL,
  processed_at DATETIME NOT NULL,
  created_at DATETIME
);`,
		`CREATE UNIQUE INDEX IF NOT EXISTS ux_webhook_events_provider_event ON webhook_events(provider, provider_event_id);`,
	}
	for _, stmt := range statements {
		require.NoError(t, db.Exec(stmt).Error)
	}
	return db
}

type providerTxRunner struct {
	db *gorm.DB
}

func (r *providerTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	tx := r.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return tx.Error
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit().Error
}

type fakeSettlement struct {
	confirmed []uuid.UUID
	failed    []uuid.UUID
	refs      []string
	reasons   []string
	err       error
}

func (f *fakeSettlement) ConfirmTransfer(ctx context.Context, tx *gorm.DB, payoutID uuid.UUID, transferRef string, occurredAt time.Time) error {
	if f.err != nil {
		return f.err
	}
	f.confirmed = append(f.confirmed, payoutID)
	f.refs = append(f.refs, transferRef)
	return nil
}

func (f *fakeSettlement) FailTransfer(ctx context.Context, tx *gorm.DB, payoutID uuid.UUID, reason string) error {
	if f.err != nil {
		return f.err
	}
	f.failed = append(f.failed, payoutID)
	f.reasons = append(f.reasons, reason)
	return nil
}

type providerFixture struct {
	db         *gorm.DB
	settlement *fakeSettlement
	svc        *Service
}

func newProviderFixture(t *testing.T) *providerFixture {
	t.Helper()

	db := setupProviderTestDB(t)
	logg := logger.New(logger.Options{ServiceName: "webhooks-test"})

	purchaseSvc, err := purchases.NewService(purchases.NewRepository(db), logg)
	require.NoError(t, err)
	earningSvc, err := earnings.NewService(earnings.NewRepository(db), nil, logg)
	require.NoError(t, err)

	settlement := &fakeSettlement{}
	svc, err := NewService(ServiceParams{
		Purchases:         purchaseSvc,
		Earnings:          earningSvc,
		Settlement:        settlement,
		Repo:              NewRepository(db),
		TransactionRunner: &providerTxRunner{db: db},
		Logger:            logg,
	})
	require.NoError(t, err)

	return &providerFixture{db: db, settlement: settlement, svc: svc}
}

func newEvent(t *testing.T, id, eventType string, payload any) *stripe.Event {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	return &stripe.Event{
		ID:      id,
		Type:    stripe.EventType(eventType),
		Created: time.Now().Unix(),
		Data:    &stripe.EventData{Raw: raw},
	}
}

func checkoutPayload(chargeRef, subscriptionRef string) map[string]any {
	payload := map[string]any{
		"id":             "cs_test_1",
		"customer":       "cus_123",
		"payment_intent": chargeRef,
		"amount_total":   10000,
		"currency":       "usd",
		"created":        time.Date(2026, 7, 10, 12, 0, 0, 0, time.UTC).Unix(),
		"metadata": map[string]string{
			"tenant_id":         uuid.NewString(),
			"buyer_id":          uuid.NewString(),
			"item_id":           uuid.NewString(),
			"creator_id":        uuid.NewString(),
			"revenue_share_bps": "7000",
		},
	}
	if subscriptionRef != "" {
		payload["subscription"] = subscriptionRef
	}
	return payload
}

func (f *providerFixture) handle(t *testing.T, event *stripe.Event) {
	t.Helper()
	require.NoError(t, f.svc.HandleEvent(context.Background(), event))
}

func TestCheckoutCompletedRecordsPurchaseAndEarning(t *testing.T) {
	f := newProviderFixture(t)

	f.handle(t, newEvent(t, "evt_1", eventCheckoutCompleted, checkoutPayload("pi_123", "")))

	var purchase models.Purchase
	require.NoError(t, f.db.First(&purchase, "external_charge_ref = ?", "pi_123").Error)
	assert.Equal(t, enums.PurchaseStatusActive, purchase.Status)
	assert.Equal(t, enums.PurchaseKindOneOff, purchase.Kind)
	assert.Equal(t, int64(10000), purchase.AmountMinor)

	var earning models.CreatorEarning
	require.NoError(t, f.db.First(&earning, "dedupe_key = ?", "pi_123").Error)
	assert.Equal(t, int64(7000), earning.NetMinor)
	assert.Equal(t, int64(3000), earning.FeeMinor)
	assert.Equal(t, purchase.ID, earning.PurchaseID)

	var dedupe models.WebhookEvent
	require.NoError(t, f.db.First(&dedupe, "provider_event_id = ?", "evt_1").Error)
	assert.Equal(t, ProviderStripe, dedupe.Provider)
}

func TestReplayedDeliveryIsIgnored(t *testing.T) {
	f := newProviderFixture(t)
	payload := checkoutPayload("pi_123", "")

	f.handle(t, newEvent(t, "evt_1", eventCheckoutCompleted, payload))
	f.handle(t, newEvent(t, "evt_1", eventCheckoutCompleted, payload))

	var count int64
	require.NoError(t, f.db.Model(&models.CreatorEarning{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestDuplicateChargeUnderNewEventID(t *testing.T) {
	f := newProviderFixture(t)
	payload := checkoutPayload("pi_123", "")

	f.handle(t, newEvent(t, "evt_1", eventCheckoutCompleted, payload))
	f.handle(t, newEvent(t, "evt_2", eventCheckoutCompleted, payload))

	var purchaseCount, earningCount int64
	require.NoError(t, f.db.Model(&models.Purchase{}).Count(&purchaseCount).Error)
	require.NoError(t, f.db.Model(&models.CreatorEarning{}).Count(&earningCount).Error)
	assert.Equal(t, int64(1), purchaseCount)
	assert.Equal(t, int64(1), earningCount)
}

func TestInvoicePaidSkipsCreationInvoice(t *testing.T) {
	f := newProviderFixture(t)
	f.handle(t, newEvent(t, "evt_1", eventCheckoutCompleted, checkoutPayload("pi_123", "sub_123")))

	f.handle(t, newEvent(t, "evt_2", eventInvoicePaid, map[string]any{
		"id":             "in_create",
		"subscription":   "sub_123",
		"billing_reason": "subscription_create",
		"amount_paid":    10000,
		"currency":       "usd",
	}))

	var count int64
	require.NoError(t, f.db.Model(&models.CreatorEarning{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestInvoicePaidAccruesRenewal(t *testing.T) {
	f := newProviderFixture(t)
	f.handle(t, newEvent(t, "evt_1", eventCheckoutCompleted, checkoutPayload("pi_123", "sub_123")))

	f.handle(t, newEvent(t, "evt_2", eventInvoicePaid, map[string]any{
		"id":             "in_renew",
		"subscription":   "sub_123",
		"billing_reason": "subscription_cycle",
		"amount_paid":    10000,
		"currency":       "usd",
		"created":        time.Date(2026, 8, 10, 12, 0, 0, 0, time.UTC).Unix(),
	}))

	var renewal models.CreatorEarning
	require.NoError(t, f.db.First(&renewal, "dedupe_key = ?", "in_renew").Error)
	assert.Equal(t, int64(7000), renewal.NetMinor)

	// Redelivery of the renewal under a fresh event id still accrues once.
	f.handle(t, newEvent(t, "evt_3", eventInvoicePaid, map[string]any{
		"id":             "in_renew",
		"subscription":   "sub_123",
		"billing_reason": "subscription_cycle",
		"amount_paid":    10000,
		"currency":       "usd",
	}))

	var count int64
	require.NoError(t, f.db.Model(&models.CreatorEarning{}).Where("dedupe_key = ?", "in_renew").Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestInvoicePaymentFailedMarksPastDue(t *testing.T) {
	f := newProviderFixture(t)
	f.handle(t, newEvent(t, "evt_1", eventCheckoutCompleted, checkoutPayload("pi_123", "sub_123")))

	f.handle(t, newEvent(t, "evt_2", eventInvoicePaymentFailed, map[string]any{
		"id":           "in_fail",
		"subscription": "sub_123",
	}))

	var purchase models.Purchase
	require.NoError(t, f.db.First(&purchase, "external_charge_ref = ?", "pi_123").Error)
	assert.Equal(t, enums.PurchaseStatusPastDue, purchase.Status)
}

func TestSubscriptionUpdatedSyncsStatusAndExpiry(t *testing.T) {
	f := newProviderFixture(t)
	f.handle(t, newEvent(t, "evt_1", eventCheckoutCompleted, checkoutPayload("pi_123", "sub_123")))

	periodEnd := time.Date(2026, 9, 10, 0, 0, 0, 0, time.UTC)
	f.handle(t, newEvent(t, "evt_2", eventSubscriptionUpdated, map[string]any{
		"id":                   "sub_123",
		"status":               "active",
		"cancel_at_period_end": true,
		"current_period_end":   periodEnd.Unix(),
	}))

	var purchase models.Purchase
	require.NoError(t, f.db.First(&purchase, "external_charge_ref = ?", "pi_123").Error)
	assert.Equal(t, enums.PurchaseStatusCanceling, purchase.Status)
	require.NotNil(t, purchase.ExpiresAt)
	assert.Equal(t, periodEnd.Unix(), purchase.ExpiresAt.Unix())
}

func TestSubscriptionDeletedCancels(t *testing.T) {
	f := newProviderFixture(t)
	f.handle(t, newEvent(t, "evt_1", eventCheckoutCompleted, checkoutPayload("pi_123", "sub_123")))

	f.handle(t, newEvent(t, "evt_2", eventSubscriptionDeleted, map[string]any{
		"id":     "sub_123",
		"status": "canceled",
	}))

	var purchase models.Purchase
	require.NoError(t, f.db.First(&purchase, "external_charge_ref = ?", "pi_123").Error)
	assert.Equal(t, enums.PurchaseStatusCanceled, purchase.Status)
	assert.NotNil(t, purchase.ExpiresAt)
}

func TestChargeRefundedReversesEarnings(t *testing.T) {
	f := newProviderFixture(t)
	f.handle(t, newEvent(t, "evt_1", eventCheckoutCompleted, checkoutPayload("pi_123", "")))

	f.handle(t, newEvent(t, "evt_2", eventChargeRefunded, map[string]any{
		"id":       "pi_123",
		"refunded": true,
	}))

	var purchase models.Purchase
	require.NoError(t, f.db.First(&purchase, "external_charge_ref = ?", "pi_123").Error)
	assert.Equal(t, enums.PurchaseStatusRefunded, purchase.Status)

	var earning models.CreatorEarning
	require.NoError(t, f.db.First(&earning, "dedupe_key = ?", "pi_123").Error)
	assert.Equal(t, enums.EarningStatusVoided, earning.Status)
}

func TestDisputeCreatedReversesEarnings(t *testing.T) {
	f := newProviderFixture(t)
	f.handle(t, newEvent(t, "evt_1", eventCheckoutCompleted, checkoutPayload("pi_123", "")))

	f.handle(t, newEvent(t, "evt_2", eventDisputeCreated, map[string]any{
		"id":     "dp_1",
		"charge": "pi_123",
		"reason": "fraudulent",
	}))

	var purchase models.Purchase
	require.NoError(t, f.db.First(&purchase, "external_charge_ref = ?", "pi_123").Error)
	assert.Equal(t, enums.PurchaseStatusRefunded, purchase.Status)
}

func TestUnknownChargeRefAcknowledged(t *testing.T) {
	f := newProviderFixture(t)

	f.handle(t, newEvent(t, "evt_1", eventChargeRefunded, map[string]any{
		"id": "pi_unknown",
	}))

	// The dedupe row commits so the provider stops redelivering.
	var count int64
	require.NoError(t, f.db.Model(&models.WebhookEvent{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestTransferCreatedConfirmsSettlement(t *testing.T) {
	f := newProviderFixture(t)
	payoutID := uuid.New()

	f.handle(t, newEvent(t, "evt_1", eventTransferCreated, map[string]any{
		"id":       "tr_123",
		"metadata": map[string]string{"payout_id": payoutID.String()},
	}))

	require.Len(t, f.settlement.confirmed, 1)
	assert.Equal(t, payoutID, f.settlement.confirmed[0])
	assert.Equal(t, []string{"tr_123"}, f.settlement.refs)
}

func TestTransferFailedRoutesToSettlement(t *testing.T) {
	f := newProviderFixture(t)
	payoutID := uuid.New()

	f.handle(t, newEvent(t, "evt_1", eventTransferFailed, map[string]any{
		"id":       "tr_123",
		"metadata": map[string]string{"payout_id": payoutID.String()},
	}))

	require.Len(t, f.settlement.failed, 1)
	assert.Equal(t, payoutID, f.settlement.failed[0])
}

func TestTransferWithoutPayoutMetadataIgnored(t *testing.T) {
	f := newProviderFixture(t)

	f.handle(t, newEvent(t, "evt_1", eventTransferCreated, map[string]any{
		"id": "tr_foreign",
	}))

	assert.Empty(t, f.settlement.confirmed)
	assert.Empty(t, f.settlement.failed)
}

func TestUnsupportedEventTypeAcknowledged(t *testing.T) {
	f := newProviderFixture(t)

	f.handle(t, newEvent(t, "evt_1", "payment_method.attached", map[string]any{"id": "pm_1"}))

	var count int64
	require.NoError(t, f.db.Model(&models.WebhookEvent{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestInvalidMetadataRollsBackDedupe(t *testing.T) {
	f := newProviderFixture(t)

	payload := checkoutPayload("pi_123", "")
	payload["metadata"] = map[string]string{"tenant_id": "not-a-uuid"}

	err := f.svc.HandleEvent(context.Background(), newEvent(t, "evt_1", eventCheckoutCompleted, payload))
	require.Error(t, err)

	// Nothing committed: the provider retry can succeed after a fix.
	var count int64
	require.NoError(t, f.db.Model(&models.WebhookEvent{}).Count(&count).Error)
	assert.Zero(t, count)
}
