package payouts

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/creatorpay/creatorpay-backend/internal/creators"
	"github.com/creatorpay/creatorpay-backend/pkg/db/models"
	"github.com/creatorpay/creatorpay-backend/pkg/enums"
	pkgerrors "github.com/creatorpay/creatorpay-backend/pkg/errors"
	"github.com/creatorpay/creatorpay-backend/pkg/logger"
	"github.com/creatorpay/creatorpay-backend/pkg/outbox"
	"github.com/creatorpay/creatorpay-backend/pkg/pagination"
)

func paginationParams(limit int, cursor string) pagination.Params {
	return pagination.Params{Limit: limit, Cursor: cursor}
}

type gormTxRunner struct {
	db *gorm.DB
}

func (r *gormTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
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

type fakeCreatorRepo struct {
	rows map[uuid.UUID]*models.Creator
}

func (f *fakeCreatorRepo) WithTx(tx *gorm.DB) creators.Repository { return f }
func (f *fakeCreatorRepo) Create(ctx context.Context, creator *models.Creator) error {
	f.rows[creator.ID] = creator
	return nil
}
func (f *fakeCreatorRepo) Update(ctx context.Context, creator *models.Creator) error {
	f.rows[creator.ID] = creator
	return nil
}
func (f *fakeCreatorRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.Creator, error) {
	return f.rows[id], nil
}
func (f *fakeCreatorRepo) ListPayable(ctx context.Context) ([]models.Creator, error) {
	var out []models.Creator
	for _, creator := range f.rows {
		if creator.Payable() {
			out = append(out, *creator)
		}
	}
	return out, nil
}

type fakeTransferClient struct {
	payable     bool
	payableErr  error
	transferErr error
	calls       []TransferInput
}

func (f *fakeTransferClient) CreateTransfer(ctx context.Context, input TransferInput) (string, error) {
	f.calls = append(f.calls, input)
	if f.transferErr != nil {
		return "", f.transferErr
	}
	return "tr_" + input.PayoutID[:8], nil
}

func (f *fakeTransferClient) AccountPayable(ctx context.Context, accountRef string) (bool, error) {
	if f.payableErr != nil {
		return false, f.payableErr
	}
	return f.payable, nil
}

type fakeEmitter struct {
	events []outbox.DomainEvent
}

func (f *fakeEmitter) Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error {
	f.events = append(f.events, event)
	return nil
}

func (f *fakeEmitter) byType(eventType enums.OutboxEventType) []outbox.DomainEvent {
	var out []outbox.DomainEvent
	for _, event := range f.events {
		if event.EventType == eventType {
			out = append(out, event)
		}
	}
	return out
}

type serviceFixture struct {
	db        *gorm.DB
	repo      Repository
	creators  *fakeCreatorRepo
	transfers *fakeTransferClient
	emitter   *fakeEmitter
	store     *fakeObjectStore
	svc       Service
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()

	db := setupPayoutsTestDB(t)
	repo := NewRepository(db)
	creatorRepo := &fakeCreatorRepo{rows: map[uuid.UUID]*models.Creator{}}
	transfers := &fakeTransferClient{payable: true}
	emitter := &fakeEmitter{}
	store := &fakeObjectStore{bucket: "cp-reports"}
	logg := logger.New(logger.Options{ServiceName: "payouts-test"})

	svc, err := NewService(ServiceParams{
		DB:              &gormTxRunner{db: db},
		Repo:            repo,
		Creators:        creatorRepo,
		Transfers:       transfers,
		Reporter:        NewReporter(store, "payout-reports", time.Hour, logg),
		Outbox:          emitter,
		Logger:          logg,
		MinimumMinor:    5000,
		TransferTimeout: time.Second,
	})
	require.NoError(t, err)

	return &serviceFixture{
		db:        db,
		repo:      repo,
		creators:  creatorRepo,
		transfers: transfers,
		emitter:   emitter,
		store:     store,
		svc:       svc,
	}
}

func (f *serviceFixture) addCreator(t *testing.T, override *int64) *models.Creator {
	t.Helper()
	creator := &models.Creator{
		ID:                     uuid.New(),
		TenantID:               uuid.New(),
		DisplayName:            "Test Creator",
		AccountRef:             "acct_" + uuid.NewString()[:8],
		Verified:               true,
		MinPayoutMinorOverride: override,
	}
	f.creators.rows[creator.ID] = creator
	return creator
}

var testPeriodStart = time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
var testPeriodEnd = time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

func runOpts() RunOptions {
	return RunOptions{PeriodStart: testPeriodStart, PeriodEnd: testPeriodEnd}
}

func TestRunRejectsOpenPeriod(t *testing.T) {
	f := newServiceFixture(t)

	_, err := f.svc.Run(context.Background(), RunOptions{
		PeriodStart: time.Now().Add(-time.Hour),
		PeriodEnd:   time.Now().Add(time.Hour),
	})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())
}

func TestRunSettlesEligibleCreator(t *testing.T) {
	f := newServiceFixture(t)
	creator := f.addCreator(t, nil)
	newEarning(t, f.db, creator.ID, 4000, testPeriodStart.Add(time.Hour), nil)
	newEarning(t, f.db, creator.ID, 3000, testPeriodStart.Add(2*time.Hour), nil)

	summary, err := f.svc.Run(context.Background(), runOpts())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.PayoutsCreated)
	assert.Equal(t, 1, summary.PayoutsPaid)
	assert.Equal(t, 0, summary.PayoutsFailed)
	assert.Equal(t, int64(7000), summary.TotalNetMinor)

	require.Len(t, f.transfers.calls, 1)
	assert.Equal(t, int64(7000), f.transfers.calls[0].AmountMinor)
	assert.Equal(t, creator.AccountRef, f.transfers.calls[0].AccountRef)

	var payout models.Payout
	require.NoError(t, f.db.First(&payout, "creator_id = ?", creator.ID).Error)
	assert.Equal(t, enums.PayoutStatusPaid, payout.Status)
	require.NotNil(t, payout.ExternalTransferRef)
	require.NotNil(t, payout.ReportURL)

	var earned []models.CreatorEarning
	require.NoError(t, f.db.Find(&earned, "payout_id = ?", payout.ID).Error)
	require.Len(t, earned, 2)
	for _, earning := range earned {
		assert.True(t, earning.PaidOut)
	}

	paid := f.emitter.byType(enums.EventPayoutPaid)
	require.Len(t, paid, 1)
	completed := f.emitter.byType(enums.EventPayoutRunCompleted)
	require.Len(t, completed, 1)
}

func TestRunSkipsBelowThreshold(t *testing.T) {
	f := newServiceFixture(t)
	creator := f.addCreator(t, nil)
	newEarning(t, f.db, creator.ID, 4999, testPeriodStart.Add(time.Hour), nil)

	summary, err := f.svc.Run(context.Background(), runOpts())
	require.NoError(t, err)
	assert.Equal(t, 0, summary.PayoutsCreated)
	assert.Equal(t, 1, summary.CreatorsSkipped)
	assert.Empty(t, f.transfers.calls)
}

func TestRunHonorsCreatorOverride(t *testing.T) {
	f := newServiceFixture(t)
	override := int64(1000)
	creator := f.addCreator(t, &override)
	newEarning(t, f.db, creator.ID, 1500, testPeriodStart.Add(time.Hour), nil)

	summary, err := f.svc.Run(context.Background(), runOpts())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.PayoutsPaid)
}

func TestRunDryRunWritesNothing(t *testing.T) {
	f := newServiceFixture(t)
	creator := f.addCreator(t, nil)
	newEarning(t, f.db, creator.ID, 9000, testPeriodStart.Add(time.Hour), nil)

	opts := runOpts()
	opts.DryRun = true
	summary, err := f.svc.Run(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.PayoutsCreated)
	assert.Equal(t, int64(9000), summary.TotalNetMinor)
	assert.Empty(t, f.transfers.calls)

	var count int64
	require.NoError(t, f.db.Model(&models.Payout{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestRunTransferFailureReleasesEarnings(t *testing.T) {
	f := newServiceFixture(t)
	creator := f.addCreator(t, nil)
	earning := newEarning(t, f.db, creator.ID, 9000, testPeriodStart.Add(time.Hour), nil)
	f.transfers.transferErr = errors.New("rail unavailable")

	summary, err := f.svc.Run(context.Background(), runOpts())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.PayoutsCreated)
	assert.Equal(t, 1, summary.PayoutsFailed)
	assert.Equal(t, 0, summary.PayoutsPaid)

	var payout models.Payout
	require.NoError(t, f.db.First(&payout, "creator_id = ?", creator.ID).Error)
	assert.Equal(t, enums.PayoutStatusFailed, payout.Status)

	var stored models.CreatorEarning
	require.NoError(t, f.db.First(&stored, "id = ?", earning.ID).Error)
	assert.Nil(t, stored.PayoutID)
	assert.False(t, stored.PaidOut)

	failed := f.emitter.byType(enums.EventPayoutFailed)
	require.Len(t, failed, 1)
}

func TestRunUnpayableAccountFailsPayout(t *testing.T) {
	f := newServiceFixture(t)
	creator := f.addCreator(t, nil)
	newEarning(t, f.db, creator.ID, 9000, testPeriodStart.Add(time.Hour), nil)
	f.transfers.payable = false

	summary, err := f.svc.Run(context.Background(), runOpts())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.PayoutsFailed)
	assert.Empty(t, f.transfers.calls)

	var payout models.Payout
	require.NoError(t, f.db.First(&payout, "creator_id = ?", creator.ID).Error)
	assert.Equal(t, enums.PayoutStatusFailed, payout.Status)
}

func TestRunGroupsByCurrency(t *testing.T) {
	f := newServiceFixture(t)
	creator := f.addCreator(t, nil)
	newEarning(t, f.db, creator.ID, 6000, testPeriodStart.Add(time.Hour), nil)
	newEarning(t, f.db, creator.ID, 8000, testPeriodStart.Add(time.Hour), func(e *models.CreatorEarning) {
		e.Currency = enums.CurrencyEUR
	})

	summary, err := f.svc.Run(context.Background(), runOpts())
	require.NoError(t, err)
	assert.Equal(t, 2, summary.PayoutsCreated)
	assert.Equal(t, 2, summary.PayoutsPaid)

	var count int64
	require.NoError(t, f.db.Model(&models.Payout{}).Count(&count).Error)
	assert.Equal(t, int64(2), count)
}

func TestRunSingleCreatorScope(t *testing.T) {
	f := newServiceFixture(t)
	target := f.addCreator(t, nil)
	other := f.addCreator(t, nil)
	newEarning(t, f.db, target.ID, 9000, testPeriodStart.Add(time.Hour), nil)
	newEarning(t, f.db, other.ID, 9000, testPeriodStart.Add(time.Hour), nil)

	opts := runOpts()
	opts.CreatorID = &target.ID
	summary, err := f.svc.Run(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.PayoutsPaid)
	require.Len(t, f.transfers.calls, 1)
	assert.Equal(t, target.AccountRef, f.transfers.calls[0].AccountRef)
}

func TestConfirmTransferMarksPaid(t *testing.T) {
	f := newServiceFixture(t)
	creator := f.addCreator(t, nil)
	payout := newPayout(t, f.db, creator.ID, time.Now().UTC())
	earning := newEarning(t, f.db, creator.ID, 7000, testPeriodStart.Add(time.Hour), func(e *models.CreatorEarning) {
		e.PayoutID = &payout.ID
	})

	runner := &gormTxRunner{db: f.db}
	err := runner.WithTx(context.Background(), func(tx *gorm.DB) error {
		return f.svc.ConfirmTransfer(context.Background(), tx, payout.ID, "tr_async", time.Now().UTC())
	})
	require.NoError(t, err)

	stored, err := f.repo.FindByID(context.Background(), payout.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.PayoutStatusPaid, stored.Status)

	var paidEarning models.CreatorEarning
	require.NoError(t, f.db.First(&paidEarning, "id = ?", earning.ID).Error)
	assert.True(t, paidEarning.PaidOut)
}

func TestEmitMissingReportsBackfillsWebhookConfirmed(t *testing.T) {
	f := newServiceFixture(t)
	creator := f.addCreator(t, nil)
	payout := newPayout(t, f.db, creator.ID, time.Now().UTC())
	newEarning(t, f.db, creator.ID, 7000, testPeriodStart.Add(time.Hour), func(e *models.CreatorEarning) {
		e.PayoutID = &payout.ID
	})

	runner := &gormTxRunner{db: f.db}
	err := runner.WithTx(context.Background(), func(tx *gorm.DB) error {
		return f.svc.ConfirmTransfer(context.Background(), tx, payout.ID, "tr_async", time.Now().UTC())
	})
	require.NoError(t, err)

	// The webhook transaction marks the payout paid without a report.
	stored, err := f.repo.FindByID(context.Background(), payout.ID)
	require.NoError(t, err)
	require.Equal(t, enums.PayoutStatusPaid, stored.Status)
	require.Nil(t, stored.ReportURL)

	emitted, err := f.svc.EmitMissingReports(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, emitted)

	stored, err = f.repo.FindByID(context.Background(), payout.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.ReportURL)
	assert.Contains(t, *stored.ReportURL, payout.ID.String())

	_, ok := f.store.objects["cp-reports/payout-reports/"+payout.ID.String()+".csv"]
	assert.True(t, ok)

	emitted, err = f.svc.EmitMissingReports(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, emitted)
}

func TestFailTransferOverridesPaid(t *testing.T) {
	f := newServiceFixture(t)
	creator := f.addCreator(t, nil)
	payout := newPayout(t, f.db, creator.ID, time.Now().UTC())
	earning := newEarning(t, f.db, creator.ID, 7000, testPeriodStart.Add(time.Hour), func(e *models.CreatorEarning) {
		e.PayoutID = &payout.ID
		e.PaidOut = true
	})
	_, err := f.repo.MarkPaid(context.Background(), payout.ID, "tr_async", time.Now().UTC())
	require.NoError(t, err)

	runner := &gormTxRunner{db: f.db}
	err = runner.WithTx(context.Background(), func(tx *gorm.DB) error {
		return f.svc.FailTransfer(context.Background(), tx, payout.ID, "account closed")
	})
	require.NoError(t, err)

	stored, err := f.repo.FindByID(context.Background(), payout.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.PayoutStatusFailed, stored.Status)

	var released models.CreatorEarning
	require.NoError(t, f.db.First(&released, "id = ?", earning.ID).Error)
	assert.Nil(t, released.PayoutID)
	assert.False(t, released.PaidOut)

	failed := f.emitter.byType(enums.EventPayoutFailed)
	require.Len(t, failed, 1)
}

func TestCancelPendingPayout(t *testing.T) {
	f := newServiceFixture(t)
	creator := f.addCreator(t, nil)
	payout := newPayout(t, f.db, creator.ID, time.Now().UTC())
	earning := newEarning(t, f.db, creator.ID, 7000, testPeriodStart.Add(time.Hour), func(e *models.CreatorEarning) {
		e.PayoutID = &payout.ID
	})

	canceled, err := f.svc.Cancel(context.Background(), payout.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.PayoutStatusFailed, canceled.Status)

	var released models.CreatorEarning
	require.NoError(t, f.db.First(&released, "id = ?", earning.ID).Error)
	assert.Nil(t, released.PayoutID)
}

func TestCancelRejectsIssuedTransfer(t *testing.T) {
	f := newServiceFixture(t)
	creator := f.addCreator(t, nil)
	payout := newPayout(t, f.db, creator.ID, time.Now().UTC())
	require.NoError(t, f.repo.SetTransferRef(context.Background(), payout.ID, "tr_live"))

	_, err := f.svc.Cancel(context.Background(), payout.ID)
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeStateConflict, pkgerrors.As(err).Code())
}

func TestCancelRejectsPaidPayout(t *testing.T) {
	f := newServiceFixture(t)
	creator := f.addCreator(t, nil)
	payout := newPayout(t, f.db, creator.ID, time.Now().UTC())
	_, err := f.repo.MarkPaid(context.Background(), payout.ID, "tr_live", time.Now().UTC())
	require.NoError(t, err)

	_, err = f.svc.Cancel(context.Background(), payout.ID)
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeStateConflict, pkgerrors.As(err).Code())
}

func TestHistoryPaginates(t *testing.T) {
	f := newServiceFixture(t)
	creator := f.addCreator(t, nil)
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		newPayout(t, f.db, creator.ID, base.Add(time.Duration(i)*time.Hour))
	}

	page, next, err := f.svc.History(context.Background(), creator.ID, paginationParams(2, ""))
	require.NoError(t, err)
	require.Len(t, page, 2)
	require.NotEmpty(t, next)

	page, next, err = f.svc.History(context.Background(), creator.ID, paginationParams(2, next))
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Empty(t, next)
}

func TestFormatMinor(t *testing.T) {
	assert.Equal(t, "70.00", formatMinor(7000))
	assert.Equal(t, "0.05", formatMinor(5))
	assert.Equal(t, "-3.50", formatMinor(-350))
}
