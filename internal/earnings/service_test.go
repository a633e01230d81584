package earnings

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
	"github.com/creatorpay/creatorpay-backend/pkg/outbox"
)

func setupEarningsTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	schema := `
CREATE TABLE IF NOT EXISTS creator_earnings (
  id TEXT PRIMARY KEY,
  creator_id TEXT NOT NULL,
  item_id TEXT NOT NULL,
  purchase_id TEXT NOT NULL,
  dedupe_key TEXT NOT NULL UNIQUE,
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
);`
	require.NoError(t, db.Exec(schema).Error)
	return db
}

type fakeEmitter struct {
	events []outbox.DomainEvent
}

func (f *fakeEmitter) Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error {
	f.events = append(f.events, event)
	return nil
}

func newTestService(t *testing.T, db *gorm.DB, emitter outboxEmitter) Service {
	t.Helper()

	svc, err := NewService(NewRepository(db), emitter, logger.New(logger.Options{ServiceName: "test"}))
	require.NoError(t, err)
	return svc
}

func recordInput(mutate func(*RecordInput)) RecordInput {
	input := RecordInput{
		CreatorID:       uuid.New(),
		ItemID:          uuid.New(),
		PurchaseID:      uuid.New(),
		DedupeKey:       "ch_" + uuid.NewString(),
		GrossMinor:      1000,
		Currency:        enums.CurrencyUSD,
		RevenueShareBps: 7000,
		EarnedAt:        time.Date(2026, 7, 10, 12, 0, 0, 0, time.UTC),
	}
	if mutate != nil {
		mutate(&input)
	}
	return input
}

func TestRecordSplitsGross(t *testing.T) {
	db := setupEarningsTestDB(t)
	svc := newTestService(t, db, nil)
	ctx := context.Background()

	earning, err := svc.Record(ctx, recordInput(nil))
	require.NoError(t, err)

	assert.Equal(t, int64(1000), earning.GrossMinor)
	assert.Equal(t, int64(300), earning.FeeMinor)
	assert.Equal(t, int64(700), earning.NetMinor)
	assert.Equal(t, int64(1000), earning.FeeMinor+earning.NetMinor)
	assert.Equal(t, enums.EarningStatusAccrued, earning.Status)
	assert.False(t, earning.PaidOut)
	assert.Nil(t, earning.PayoutID)
}

func TestRecordReplaysStoredRow(t *testing.T) {
	db := setupEarningsTestDB(t)
	svc := newTestService(t, db, nil)
	ctx := context.Background()

	input := recordInput(nil)
	first, err := svc.Record(ctx, input)
	require.NoError(t, err)

	// Same dedupe key with a different amount must not create a second row.
	input.GrossMinor = 9999
	second, err := svc.Record(ctx, input)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, int64(1000), second.GrossMinor)

	var count int64
	require.NoError(t, db.Model(&models.CreatorEarning{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestRecordValidation(t *testing.T) {
	db := setupEarningsTestDB(t)
	svc := newTestService(t, db, nil)
	ctx := context.Background()

	cases := []struct {
		name   string
		mutate func(*RecordInput)
	}{
		{"missing creator", func(in *RecordInput) { in.CreatorID = uuid.Nil }},
		{"missing purchase", func(in *RecordInput) { in.PurchaseID = uuid.Nil }},
		{"missing dedupe key", func(in *RecordInput) { in.DedupeKey = "" }},
		{"negative gross", func(in *RecordInput) { in.GrossMinor = -1 }},
		{"unknown currency", func(in *RecordInput) { in.Currency = enums.Currency("xyz") }},
		{"share above 100 percent", func(in *RecordInput) { in.RevenueShareBps = 10001 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Record(ctx, recordInput(tc.mutate))
			require.Error(t, err)
			assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())
		})
	}
}

func TestRecordZeroGross(t *testing.T) {
	db := setupEarningsTestDB(t)
	svc := newTestService(t, db, nil)
	ctx := context.Background()

	earning, err := svc.Record(ctx, recordInput(func(in *RecordInput) { in.GrossMinor = 0 }))
	require.NoError(t, err)
	assert.Zero(t, earning.FeeMinor)
	assert.Zero(t, earning.NetMinor)
}

func TestReverseVoidsUnpaid(t *testing.T) {
	db := setupEarningsTestDB(t)
	svc := newTestService(t, db, nil)
	ctx := context.Background()

	input := recordInput(nil)
	earning, err := svc.Record(ctx, input)
	require.NoError(t, err)

	result, err := svc.Reverse(ctx, input.PurchaseID)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Voided)
	assert.Equal(t, 0, result.Clawbacks)

	var stored models.CreatorEarning
	require.NoError(t, db.First(&stored, "id = ?", earning.ID).Error)
	assert.Equal(t, enums.EarningStatusVoided, stored.Status)

	// A second reversal finds nothing accrued and changes nothing.
	again, err := svc.Reverse(ctx, input.PurchaseID)
	require.NoError(t, err)
	assert.Zero(t, again.Voided)
	assert.Zero(t, again.Clawbacks)
}

func TestReverseFlagsPaidForClawback(t *testing.T) {
	db := setupEarningsTestDB(t)
	emitter := &fakeEmitter{}
	svc := newTestService(t, db, emitter)
	ctx := context.Background()

	input := recordInput(nil)
	earning, err := svc.Record(ctx, input)
	require.NoError(t, err)

	payoutID := uuid.New()
	require.NoError(t, db.Model(&models.CreatorEarning{}).
		Where("id = ?", earning.ID).
		Updates(map[string]any{"paid_out": true, "payout_id": payoutID}).Error)

	var result ReverseResult
	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		var txErr error
		result, txErr = svc.WithTx(tx).Reverse(ctx, input.PurchaseID)
		return txErr
	}))

	assert.Equal(t, 0, result.Voided)
	assert.Equal(t, 1, result.Clawbacks)

	var stored models.CreatorEarning
	require.NoError(t, db.First(&stored, "id = ?", earning.ID).Error)
	assert.Equal(t, enums.EarningStatusClawback, stored.Status)
	assert.True(t, stored.PaidOut)

	require.Len(t, emitter.events, 1)
	assert.Equal(t, enums.EventEarningClawbackFlagged, emitter.events[0].EventType)
	assert.Equal(t, earning.ID, emitter.events[0].AggregateID)
}

func TestSummaryByCreator(t *testing.T) {
	db := setupEarningsTestDB(t)
	svc := newTestService(t, db, nil)
	ctx := context.Background()

	creatorID := uuid.New()
	from := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	inWindow := from.Add(48 * time.Hour)

	record := func(mutate func(*RecordInput)) *models.CreatorEarning {
		input := recordInput(func(in *RecordInput) {
			in.CreatorID = creatorID
			in.EarnedAt = inWindow
		})
		if mutate != nil {
			mutate(&input)
		}
		earning, err := svc.Record(ctx, input)
		require.NoError(t, err)
		return earning
	}

	record(nil)
	record(nil)
	record(func(in *RecordInput) { in.Currency = enums.CurrencyEUR })
	record(func(in *RecordInput) { in.EarnedAt = to.Add(time.Hour) })
	voided := record(nil)
	paid := record(nil)
	record(func(in *RecordInput) { in.CreatorID = uuid.New() })

	require.NoError(t, db.Model(&models.CreatorEarning{}).
		Where("id = ?", voided.ID).
		Update("status", enums.EarningStatusVoided).Error)
	require.NoError(t, db.Model(&models.CreatorEarning{}).
		Where("id = ?", paid.ID).
		Updates(map[string]any{"paid_out": true, "payout_id": uuid.New()}).Error)

	rows, err := svc.SummaryByCreator(ctx, creatorID, from, to)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, enums.CurrencyEUR, rows[0].Currency)
	assert.Equal(t, int64(1), rows[0].EarningCount)
	assert.Equal(t, int64(700), rows[0].UnpaidMinor)

	assert.Equal(t, enums.CurrencyUSD, rows[1].Currency)
	assert.Equal(t, int64(3), rows[1].EarningCount)
	assert.Equal(t, int64(3000), rows[1].GrossMinor)
	assert.Equal(t, int64(900), rows[1].FeeMinor)
	assert.Equal(t, int64(2100), rows[1].NetMinor)
	assert.Equal(t, int64(1400), rows[1].UnpaidMinor)
}

func TestSummaryByCreatorValidation(t *testing.T) {
	db := setupEarningsTestDB(t)
	svc := newTestService(t, db, nil)
	ctx := context.Background()

	_, err := svc.SummaryByCreator(ctx, uuid.Nil, time.Time{}, time.Now())
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())

	now := time.Now().UTC()
	_, err = svc.SummaryByCreator(ctx, uuid.New(), now, now.Add(-time.Hour))
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())
}
