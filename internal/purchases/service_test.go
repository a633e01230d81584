package purchases

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/creatorpay/creatorpay-backend/pkg/db/models"
	"github.com/creatorpay/creatorpay-backend/pkg/enums"
	pkgerrors "github.com/creatorpay/creatorpay-backend/pkg/errors"
	"github.com/creatorpay/creatorpay-backend/pkg/logger"
)

func setupPurchasesTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	schema := `
CREATE TABLE IF NOT EXISTS purchases (
  id TEXT PRIMARY KEY,
  tenant_id TEXT NOT NULL,
  buyer_id TEXT NOT NULL,
  item_id TEXT NOT NULL,
  creator_id TEXT NOT NULL,
  revenue_share_bps INTEGER NOT NULL,
  external_customer_ref TEXT,
  external_charge_ref TEXT NOT NULL UNIQUE,
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
);`
	require.NoError(t, db.Exec(schema).Error)
	return db
}

func newPurchaseService(t *testing.T, db *gorm.DB) Service {
	t.Helper()

	svc, err := NewService(NewRepository(db), logger.New(logger.Options{ServiceName: "test"}))
	require.NoError(t, err)
	return svc
}

func upsertInput(mutate func(*UpsertInput)) UpsertInput {
	input := UpsertInput{
		TenantID:            uuid.New(),
		BuyerID:             uuid.New(),
		ItemID:              uuid.New(),
		CreatorID:           uuid.New(),
		RevenueShareBps:     7000,
		ExternalCustomerRef: "cus_" + uuid.NewString()[:8],
		ExternalChargeRef:   "ch_" + uuid.NewString(),
		Currency:            enums.CurrencyUSD,
		AmountMinor:         1500,
		Kind:                enums.PurchaseKindOneOff,
		StartsAt:            time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC),
	}
	if mutate != nil {
		mutate(&input)
	}
	return input
}

func TestUpsertFromCheckoutCreatesActive(t *testing.T) {
	db := setupPurchasesTestDB(t)
	svc := newPurchaseService(t, db)
	ctx := context.Background()

	input := upsertInput(nil)
	purchase, err := svc.UpsertFromCheckout(ctx, input)
	require.NoError(t, err)

	assert.Equal(t, enums.PurchaseStatusActive, purchase.Status)
	assert.Equal(t, input.ExternalChargeRef, purchase.ExternalChargeRef)
	assert.Equal(t, input.CreatorID, purchase.CreatorID)
	assert.NotEmpty(t, purchase.Fingerprint)
}

func TestUpsertFromCheckoutReplay(t *testing.T) {
	db := setupPurchasesTestDB(t)
	svc := newPurchaseService(t, db)
	ctx := context.Background()

	input := upsertInput(nil)
	first, err := svc.UpsertFromCheckout(ctx, input)
	require.NoError(t, err)

	second, err := svc.UpsertFromCheckout(ctx, input)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	var count int64
	require.NoError(t, db.Model(&models.Purchase{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestUpsertFromCheckoutPromotesPending(t *testing.T) {
	db := setupPurchasesTestDB(t)
	svc := newPurchaseService(t, db)
	ctx := context.Background()

	input := upsertInput(nil)
	first, err := svc.UpsertFromCheckout(ctx, input)
	require.NoError(t, err)

	require.NoError(t, db.Model(&models.Purchase{}).
		Where("id = ?", first.ID).
		Update("status", enums.PurchaseStatusPending).Error)

	replayed, err := svc.UpsertFromCheckout(ctx, input)
	require.NoError(t, err)
	assert.Equal(t, enums.PurchaseStatusActive, replayed.Status)

	var stored models.Purchase
	require.NoError(t, db.First(&stored, "id = ?", first.ID).Error)
	assert.Equal(t, enums.PurchaseStatusActive, stored.Status)
}

func TestUpsertFromCheckoutValidation(t *testing.T) {
	db := setupPurchasesTestDB(t)
	svc := newPurchaseService(t, db)
	ctx := context.Background()

	cases := []struct {
		name   string
		mutate func(*UpsertInput)
	}{
		{"missing charge ref", func(in *UpsertInput) { in.ExternalChargeRef = "" }},
		{"unknown currency", func(in *UpsertInput) { in.Currency = enums.Currency("xyz") }},
		{"unknown kind", func(in *UpsertInput) { in.Kind = enums.PurchaseKind("weekly") }},
		{"negative amount", func(in *UpsertInput) { in.AmountMinor = -1 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.UpsertFromCheckout(ctx, upsertInput(tc.mutate))
			require.Error(t, err)
			assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())
		})
	}
}

func TestMarkStatusTransitions(t *testing.T) {
	db := setupPurchasesTestDB(t)
	svc := newPurchaseService(t, db)
	ctx := context.Background()

	purchase, err := svc.UpsertFromCheckout(ctx, upsertInput(func(in *UpsertInput) {
		in.Kind = enums.PurchaseKindSubscription
		sub := "sub_" + uuid.NewString()[:8]
		in.ExternalSubscriptionRef = &sub
	}))
	require.NoError(t, err)

	changed, err := svc.MarkStatus(ctx, purchase, enums.PurchaseStatusPastDue, nil)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, enums.PurchaseStatusPastDue, purchase.Status)

	// Recovery back to active is allowed.
	changed, err = svc.MarkStatus(ctx, purchase, enums.PurchaseStatusActive, nil)
	require.NoError(t, err)
	assert.True(t, changed)

	// Repeating the current status is a no-op, not an error.
	changed, err = svc.MarkStatus(ctx, purchase, enums.PurchaseStatusActive, nil)
	require.NoError(t, err)
	assert.False(t, changed)

	// Active cannot jump straight back to pending.
	changed, err = svc.MarkStatus(ctx, purchase, enums.PurchaseStatusPending, nil)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, enums.PurchaseStatusActive, purchase.Status)
}

func TestMarkStatusUpdatesExpiry(t *testing.T) {
	db := setupPurchasesTestDB(t)
	svc := newPurchaseService(t, db)
	ctx := context.Background()

	purchase, err := svc.UpsertFromCheckout(ctx, upsertInput(nil))
	require.NoError(t, err)

	expiresAt := time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC)
	changed, err := svc.MarkStatus(ctx, purchase, enums.PurchaseStatusCanceling, &expiresAt)
	require.NoError(t, err)
	assert.True(t, changed)
	require.NotNil(t, purchase.ExpiresAt)
	assert.True(t, purchase.ExpiresAt.Equal(expiresAt))
}

func TestMarkRefunded(t *testing.T) {
	db := setupPurchasesTestDB(t)
	svc := newPurchaseService(t, db)
	ctx := context.Background()

	input := upsertInput(nil)
	purchase, err := svc.UpsertFromCheckout(ctx, input)
	require.NoError(t, err)

	refunded, err := svc.MarkRefunded(ctx, input.ExternalChargeRef)
	require.NoError(t, err)
	assert.Equal(t, purchase.ID, refunded.ID)
	assert.Equal(t, enums.PurchaseStatusRefunded, refunded.Status)

	// Refunding twice returns the same terminal row.
	again, err := svc.MarkRefunded(ctx, input.ExternalChargeRef)
	require.NoError(t, err)
	assert.Equal(t, enums.PurchaseStatusRefunded, again.Status)

	_, err = svc.MarkRefunded(ctx, "ch_unknown")
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.As(err).Code())
}

func TestMarkRenewed(t *testing.T) {
	db := setupPurchasesTestDB(t)
	svc := newPurchaseService(t, db)
	ctx := context.Background()

	sub := "sub_" + uuid.NewString()[:8]
	purchase, err := svc.UpsertFromCheckout(ctx, upsertInput(func(in *UpsertInput) {
		in.Kind = enums.PurchaseKindSubscription
		in.ExternalSubscriptionRef = &sub
	}))
	require.NoError(t, err)

	resolved, err := svc.MarkRenewed(ctx, sub)
	require.NoError(t, err)
	assert.Equal(t, purchase.ID, resolved.ID)

	_, err = svc.MarkRenewed(ctx, "sub_missing")
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.As(err).Code())

	_, err = svc.MarkRenewed(ctx, "")
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())
}

func TestStatusByBuyerItemReturnsLatest(t *testing.T) {
	db := setupPurchasesTestDB(t)
	svc := newPurchaseService(t, db)
	ctx := context.Background()

	buyerID := uuid.New()
	itemID := uuid.New()

	older, err := svc.UpsertFromCheckout(ctx, upsertInput(func(in *UpsertInput) {
		in.BuyerID = buyerID
		in.ItemID = itemID
	}))
	require.NoError(t, err)
	require.NoError(t, db.Model(&models.Purchase{}).
		Where("id = ?", older.ID).
		Update("created_at", time.Now().Add(-48*time.Hour)).Error)

	newer, err := svc.UpsertFromCheckout(ctx, upsertInput(func(in *UpsertInput) {
		in.BuyerID = buyerID
		in.ItemID = itemID
	}))
	require.NoError(t, err)

	found, err := svc.StatusByBuyerItem(ctx, buyerID, itemID)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, newer.ID, found.ID)

	missing, err := svc.StatusByBuyerItem(ctx, uuid.New(), itemID)
	require.NoError(t, err)
	assert.Nil(t, missing)

	_, err = svc.StatusByBuyerItem(ctx, uuid.Nil, itemID)
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())
}
