package payouts

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/creatorpay/creatorpay-backend/internal/creators"
	"github.com/creatorpay/creatorpay-backend/pkg/db/models"
	"github.com/creatorpay/creatorpay-backend/pkg/enums"
	pkgerrors "github.com/creatorpay/creatorpay-backend/pkg/errors"
	"github.com/creatorpay/creatorpay-backend/pkg/logger"
	"github.com/creatorpay/creatorpay-backend/pkg/metrics"
	"github.com/creatorpay/creatorpay-backend/pkg/outbox"
	"github.com/creatorpay/creatorpay-backend/pkg/outbox/payloads"
	"github.com/creatorpay/creatorpay-backend/pkg/pagination"
)

// reportSweepLimit caps how many payouts one report sweep pass touches.
const reportSweepLimit = 100

// RunOptions scope one settlement run.
type RunOptions struct {
	PeriodStart time.Time
	PeriodEnd   time.Time
	// DryRun computes what the run would pay without writing payouts or
	// calling the payment rail.
	DryRun bool
	// CreatorID restricts the run to a single creator when set.
	CreatorID *uuid.UUID
}

// RunSummary reports what one settlement run did.
type RunSummary struct {
	RunID           uuid.UUID
	PeriodStart     time.Time
	PeriodEnd       time.Time
	PayoutsCreated  int
	PayoutsPaid     int
	PayoutsFailed   int
	CreatorsSkipped int
	TotalNetMinor   int64
	DryRun          bool
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service runs settlement and reacts to the payment rail's verdicts.
type Service interface {
	// Run executes one settlement pass over the given closed period. A
	// persistence failure aborts the remaining creators; payouts already
	// committed stand and are reported in the summary.
	Run(ctx context.Context, opts RunOptions) (*RunSummary, error)
	// ConfirmTransfer applies an asynchronous transfer confirmation inside
	// the caller's transaction.
	ConfirmTransfer(ctx context.Context, tx *gorm.DB, payoutID uuid.UUID, transferRef string, occurredAt time.Time) error
	// FailTransfer applies an asynchronous transfer failure inside the
	// caller's transaction. The rail's verdict is authoritative: it moves
	// even an already-paid payout to failed and releases its earnings.
	FailTransfer(ctx context.Context, tx *gorm.DB, payoutID uuid.UUID, reason string) error
	// EmitMissingReports uploads remittance reports for paid payouts that
	// have none attached and returns how many it produced. Payouts
	// confirmed through the webhook path are marked paid inside that
	// event's transaction, so their report is produced here afterwards.
	EmitMissingReports(ctx context.Context) (int, error)
	// Cancel voids a pending payout that has no transfer reference yet and
	// returns its earnings to the eligible pool.
	Cancel(ctx context.Context, payoutID uuid.UUID) (*models.Payout, error)
	FindByID(ctx context.Context, payoutID uuid.UUID) (*models.Payout, error)
	// History lists a creator's payouts newest first with cursor pagination.
	History(ctx context.Context, creatorID uuid.UUID, params pagination.Params) ([]models.Payout, string, error)
}

// ServiceParams wires the payout service dependencies.
type ServiceParams struct {
	DB              txRunner
	Repo            Repository
	Creators        creators.Repository
	Transfers       TransferClient
	Reporter        *Reporter
	Outbox          outboxEmitter
	Metrics         *metrics.PayoutRunMetrics
	Logger          *logger.Logger
	MinimumMinor    int64
	TransferTimeout time.Duration
}

type service struct {
	db        txRunner
	repo      Repository
	creators  creators.Repository
	transfers TransferClient
	reporter  *Reporter
	outbox    outboxEmitter
	metrics   *metrics.PayoutRunMetrics
	logg      *logger.Logger

	minimumMinor    int64
	transferTimeout time.Duration
}

// NewService constructs the settlement service.
func NewService(params ServiceParams) (Service, error) {
	if params.DB == nil {
		return nil, fmt.Errorf("db client required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("payout repository required")
	}
	if params.Creators == nil {
		return nil, fmt.Errorf("creator repository required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	timeout := params.TransferTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &service{
		db:              params.DB,
		repo:            params.Repo,
		creators:        params.Creators,
		transfers:       params.Transfers,
		reporter:        params.Reporter,
		outbox:          params.Outbox,
		metrics:         params.Metrics,
		logg:            params.Logger,
		minimumMinor:    params.MinimumMinor,
		transferTimeout: timeout,
	}, nil
}

func (s *service) Run(ctx context.Context, opts RunOptions) (*RunSummary, error) {
	if err := validateRunOptions(opts); err != nil {
		return nil, err
	}

	mode := "live"
	if opts.DryRun {
		mode = "dry_run"
	}
	started := time.Now()
	defer func() {
		s.metrics.ObserveRunDuration(mode, time.Since(started))
	}()

	summary := &RunSummary{
		RunID:       uuid.New(),
		PeriodStart: opts.PeriodStart,
		PeriodEnd:   opts.PeriodEnd,
		DryRun:      opts.DryRun,
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"run_id":       summary.RunID.String(),
		"period_start": opts.PeriodStart.Format(time.RFC3339),
		"period_end":   opts.PeriodEnd.Format(time.RFC3339),
		"dry_run":      opts.DryRun,
	})
	s.logg.Info(logCtx, "payout run started")

	candidates, err := s.candidates(ctx, opts)
	if err != nil {
		return summary, err
	}

	for i := range candidates {
		creator := candidates[i]
		if err := s.settleCreator(ctx, summary, &creator, opts); err != nil {
			s.logg.Error(logCtx, "payout run aborted", err)
			s.completeRun(ctx, summary)
			return summary, err
		}
	}

	s.completeRun(ctx, summary)
	s.logg.Info(s.logg.WithFields(logCtx, map[string]any{
		"payouts_created":  summary.PayoutsCreated,
		"payouts_paid":     summary.PayoutsPaid,
		"payouts_failed":   summary.PayoutsFailed,
		"creators_skipped": summary.CreatorsSkipped,
		"total_net_minor":  summary.TotalNetMinor,
	}), "payout run completed")
	return summary, nil
}

func validateRunOptions(opts RunOptions) error {
	if opts.PeriodStart.IsZero() || opts.PeriodEnd.IsZero() {
		return pkgerrors.New(pkgerrors.CodeValidation, "settlement period is required")
	}
	if !opts.PeriodEnd.After(opts.PeriodStart) {
		return pkgerrors.New(pkgerrors.CodeValidation, "period end must be after period start")
	}
	if opts.PeriodEnd.After(time.Now()) {
		return pkgerrors.New(pkgerrors.CodeValidation, "settlement period must be closed")
	}
	return nil
}

func (s *service) candidates(ctx context.Context, opts RunOptions) ([]models.Creator, error) {
	if opts.CreatorID != nil {
		creator, err := s.creators.FindByID(ctx, *opts.CreatorID)
		if err != nil {
			return nil, err
		}
		if creator == nil {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "creator not found")
		}
		return []models.Creator{*creator}, nil
	}
	return s.creators.ListPayable(ctx)
}

// settleCreator works one creator's eligible earnings, one payout per
// currency. Returned errors are persistence failures that abort the run;
// rail failures are absorbed into the summary.
func (s *service) settleCreator(ctx context.Context, summary *RunSummary, creator *models.Creator, opts RunOptions) error {
	logCtx := s.logg.WithCreatorID(ctx, creator.ID.String())

	if !creator.Payable() {
		summary.CreatorsSkipped++
		s.metrics.IncSkipped("not_payable")
		s.logg.Warn(logCtx, "creator not payable, skipping")
		return nil
	}

	earnings, err := s.repo.SelectUnpaid(ctx, creator.ID, opts.PeriodStart, opts.PeriodEnd)
	if err != nil {
		return err
	}
	if len(earnings) == 0 {
		return nil
	}

	threshold := s.minimumMinor
	if creator.MinPayoutMinorOverride != nil {
		threshold = *creator.MinPayoutMinorOverride
	}

	for _, group := range groupByCurrency(earnings) {
		if group.NetMinor < threshold {
			summary.CreatorsSkipped++
			s.metrics.IncSkipped("below_threshold")
			continue
		}
		if opts.DryRun {
			summary.PayoutsCreated++
			summary.TotalNetMinor += group.NetMinor
			continue
		}
		if err := s.settleGroup(logCtx, summary, creator, group, opts); err != nil {
			return err
		}
	}
	return nil
}

type earningGroup struct {
	Currency   enums.Currency
	GrossMinor int64
	NetMinor   int64
	IDs        []uuid.UUID
}

func groupByCurrency(earnings []models.CreatorEarning) []earningGroup {
	byCurrency := make(map[enums.Currency]*earningGroup)
	order := make([]enums.Currency, 0, 2)
	for i := range earnings {
		earning := earnings[i]
		group, ok := byCurrency[earning.Currency]
		if !ok {
			group = &earningGroup{Currency: earning.Currency}
			byCurrency[earning.Currency] = group
			order = append(order, earning.Currency)
		}
		group.GrossMinor += earning.GrossMinor
		group.NetMinor += earning.NetMinor
		group.IDs = append(group.IDs, earning.ID)
	}
	groups := make([]earningGroup, 0, len(order))
	for _, currency := range order {
		groups = append(groups, *byCurrency[currency])
	}
	return groups
}

func (s *service) settleGroup(ctx context.Context, summary *RunSummary, creator *models.Creator, group earningGroup, opts RunOptions) error {
	payout := &models.Payout{
		ID:          uuid.New(),
		CreatorID:   creator.ID,
		Currency:    group.Currency,
		PeriodStart: opts.PeriodStart,
		PeriodEnd:   opts.PeriodEnd,
		GrossMinor:  group.GrossMinor,
		NetMinor:    group.NetMinor,
		Status:      enums.PayoutStatusPending,
	}

	// Reserve before any external call. The conditional claim is the only
	// guard against concurrent runs; a short count means another run got
	// there first, so the whole group is rolled back and retried next cycle.
	claimConflict := false
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.Create(ctx, payout); err != nil {
			return err
		}
		claimed, err := repo.ClaimEarnings(ctx, payout.ID, group.IDs)
		if err != nil {
			return err
		}
		if claimed != int64(len(group.IDs)) {
			claimConflict = true
			return fmt.Errorf("claimed %d of %d earnings", claimed, len(group.IDs))
		}
		return nil
	})
	if err != nil {
		if claimConflict {
			summary.CreatorsSkipped++
			s.metrics.IncSkipped("claim_conflict")
			s.logg.Warn(s.logg.WithField(ctx, "currency", group.Currency.String()), "earning claim contention, deferring group")
			return nil
		}
		return err
	}

	summary.PayoutsCreated++
	summary.TotalNetMinor += group.NetMinor
	s.metrics.IncPayout("created")
	logCtx := s.logg.WithPayoutID(ctx, payout.ID.String())

	transferRef, transferErr := s.issueTransfer(logCtx, creator, payout)
	if transferErr != nil {
		summary.PayoutsFailed++
		s.metrics.IncPayout("failed")
		return s.failLocally(logCtx, payout, transferErr.Error())
	}

	if err := s.finalizePaid(logCtx, payout, transferRef); err != nil {
		return err
	}
	summary.PayoutsPaid++
	s.metrics.IncPayout("paid")
	s.metrics.AddNetMinor(group.Currency.String(), group.NetMinor)

	s.emitReport(logCtx, payout)
	return nil
}

// issueTransfer calls the payment rail with a bounded timeout. The payout id
// rides along as idempotency key, so a timed-out attempt retried by a later
// run cannot double-pay.
func (s *service) issueTransfer(ctx context.Context, creator *models.Creator, payout *models.Payout) (string, error) {
	if s.transfers == nil {
		return "", pkgerrors.New(pkgerrors.CodeDependency, "transfer client unavailable")
	}

	callCtx, cancel := context.WithTimeout(ctx, s.transferTimeout)
	defer cancel()

	payable, err := s.transfers.AccountPayable(callCtx, creator.AccountRef)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "verify connected account")
	}
	if !payable {
		return "", pkgerrors.New(pkgerrors.CodeStateConflict, "connected account cannot receive transfers")
	}

	ref, err := s.transfers.CreateTransfer(callCtx, TransferInput{
		PayoutID:    payout.ID.String(),
		AccountRef:  creator.AccountRef,
		AmountMinor: payout.NetMinor,
		Currency:    payout.Currency.String(),
	})
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create transfer")
	}
	return ref, nil
}

// failLocally records a synchronous transfer failure: the payout moves to
// failed and its earnings return to the eligible pool.
func (s *service) failLocally(ctx context.Context, payout *models.Payout, reason string) error {
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		changed, err := repo.MarkFailed(ctx, payout.ID, reason)
		if err != nil {
			return err
		}
		if !changed {
			return nil
		}
		if _, err := repo.ReleaseEarnings(ctx, payout.ID); err != nil {
			return err
		}
		return s.emitFailed(ctx, tx, payout, reason)
	})
	if err != nil {
		return err
	}
	s.logg.Warn(s.logg.WithField(ctx, "reason", reason), "payout failed, earnings released")
	return nil
}

func (s *service) finalizePaid(ctx context.Context, payout *models.Payout, transferRef string) error {
	paidAt := time.Now().UTC()
	return s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		changed, err := repo.MarkPaid(ctx, payout.ID, transferRef, paidAt)
		if err != nil {
			return err
		}
		if !changed {
			// An async failure landed between transfer and commit; its
			// verdict wins.
			return nil
		}
		count, err := repo.MarkEarningsPaid(ctx, payout.ID)
		if err != nil {
			return err
		}
		return s.emitPaid(ctx, tx, payout, transferRef, int(count), paidAt)
	})
}

// emitReport uploads the remittance CSV after the payout commits. Failures
// here are logged, never fatal: the payout already settled and the report
// sweep picks it up later.
func (s *service) emitReport(ctx context.Context, payout *models.Payout) bool {
	if s.reporter == nil {
		return false
	}
	earnings, err := s.repo.ListEarnings(ctx, payout.ID)
	if err != nil {
		s.logg.Error(ctx, "list earnings for payout report", err)
		return false
	}
	url, err := s.reporter.Emit(ctx, payout.ID, earnings)
	if err != nil {
		s.logg.Error(ctx, "emit payout report", err)
		return false
	}
	if url == "" {
		return false
	}
	if err := s.repo.SetReportURL(ctx, payout.ID, url); err != nil {
		s.logg.Error(ctx, "store payout report url", err)
		return false
	}
	return true
}

func (s *service) EmitMissingReports(ctx context.Context) (int, error) {
	if s.reporter == nil {
		return 0, nil
	}
	payouts, err := s.repo.ListPaidMissingReport(ctx, reportSweepLimit)
	if err != nil {
		return 0, err
	}
	emitted := 0
	for i := range payouts {
		if err := ctx.Err(); err != nil {
			return emitted, err
		}
		if s.emitReport(s.logg.WithPayoutID(ctx, payouts[i].ID.String()), &payouts[i]) {
			emitted++
		}
	}
	return emitted, nil
}

func (s *service) completeRun(ctx context.Context, summary *RunSummary) {
	if s.outbox == nil {
		return
	}
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPayoutRunCompleted,
			AggregateType: enums.AggregatePayoutRun,
			AggregateID:   summary.RunID,
			Data: payloads.PayoutRunCompletedEvent{
				RunID:           summary.RunID,
				PeriodStart:     summary.PeriodStart,
				PeriodEnd:       summary.PeriodEnd,
				PayoutsCreated:  summary.PayoutsCreated,
				PayoutsPaid:     summary.PayoutsPaid,
				PayoutsFailed:   summary.PayoutsFailed,
				CreatorsSkipped: summary.CreatorsSkipped,
				TotalNetMinor:   summary.TotalNetMinor,
				TotalNetDisplay: formatMinor(summary.TotalNetMinor),
				DryRun:          summary.DryRun,
				CompletedAt:     time.Now().UTC(),
			},
		})
	})
	if err != nil {
		s.logg.Error(ctx, "emit payout run completion", err)
	}
}

// formatMinor renders a minor-unit amount for notification text. All
// supported currencies carry two decimal places.
func formatMinor(amount int64) string {
	return decimal.NewFromInt(amount).Shift(-2).StringFixed(2)
}

func (s *service) ConfirmTransfer(ctx context.Context, tx *gorm.DB, payoutID uuid.UUID, transferRef string, occurredAt time.Time) error {
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "transaction required")
	}
	repo := s.repo.WithTx(tx)
	payout, err := repo.FindByID(ctx, payoutID)
	if err != nil {
		return err
	}
	if payout == nil {
		return pkgerrors.New(pkgerrors.CodeNotFound, "payout not found")
	}
	if payout.Status == enums.PayoutStatusPaid {
		return nil
	}
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}
	changed, err := repo.MarkPaid(ctx, payoutID, transferRef, occurredAt)
	if err != nil {
		return err
	}
	if !changed {
		// Already failed; a late confirmation does not resurrect it.
		s.logg.Warn(s.logg.WithPayoutID(ctx, payoutID.String()), "transfer confirmation for non-pending payout ignored")
		return nil
	}
	count, err := repo.MarkEarningsPaid(ctx, payoutID)
	if err != nil {
		return err
	}
	payout.Status = enums.PayoutStatusPaid
	return s.emitPaid(ctx, tx, payout, transferRef, int(count), occurredAt)
}

func (s *service) FailTransfer(ctx context.Context, tx *gorm.DB, payoutID uuid.UUID, reason string) error {
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "transaction required")
	}
	repo := s.repo.WithTx(tx)
	payout, err := repo.FindByID(ctx, payoutID)
	if err != nil {
		return err
	}
	if payout == nil {
		return pkgerrors.New(pkgerrors.CodeNotFound, "payout not found")
	}
	wasPaid := payout.Status == enums.PayoutStatusPaid
	changed, err := repo.MarkFailed(ctx, payoutID, reason)
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}
	if _, err := repo.ReleaseEarnings(ctx, payoutID); err != nil {
		return err
	}
	if wasPaid {
		s.logg.Error(s.logg.WithPayoutID(ctx, payoutID.String()), "paid payout reversed by transfer failure", nil)
	}
	return s.emitFailed(ctx, tx, payout, reason)
}

func (s *service) Cancel(ctx context.Context, payoutID uuid.UUID) (*models.Payout, error) {
	if payoutID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payout id is required")
	}
	var canceled *models.Payout
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		payout, err := repo.FindByID(ctx, payoutID)
		if err != nil {
			return err
		}
		if payout == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "payout not found")
		}
		if payout.Status != enums.PayoutStatusPending {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "only pending payouts can be canceled")
		}
		if payout.ExternalTransferRef != nil {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "transfer already issued for payout")
		}
		const reason = "canceled by operator"
		if _, err := repo.MarkFailed(ctx, payoutID, reason); err != nil {
			return err
		}
		if _, err := repo.ReleaseEarnings(ctx, payoutID); err != nil {
			return err
		}
		if err := s.emitFailed(ctx, tx, payout, reason); err != nil {
			return err
		}
		canceled = payout
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.repo.FindByID(ctx, canceled.ID)
}

func (s *service) FindByID(ctx context.Context, payoutID uuid.UUID) (*models.Payout, error) {
	if payoutID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payout id is required")
	}
	payout, err := s.repo.FindByID(ctx, payoutID)
	if err != nil {
		return nil, err
	}
	if payout == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payout not found")
	}
	return payout, nil
}

func (s *service) History(ctx context.Context, creatorID uuid.UUID, params pagination.Params) ([]models.Payout, string, error) {
	if creatorID == uuid.Nil {
		return nil, "", pkgerrors.New(pkgerrors.CodeValidation, "creator id is required")
	}
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}

	limit := pagination.NormalizeLimit(params.Limit)
	var cursorCreatedAt *time.Time
	var cursorID *uuid.UUID
	if cursor != nil {
		cursorCreatedAt = &cursor.CreatedAt
		cursorID = &cursor.ID
	}

	rows, err := s.repo.ListByCreator(ctx, creatorID, pagination.LimitWithBuffer(params.Limit), cursorCreatedAt, cursorID)
	if err != nil {
		return nil, "", err
	}

	next := ""
	if len(rows) > limit {
		rows = rows[:limit]
		last := rows[len(rows)-1]
		next = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}
	return rows, next, nil
}

func (s *service) emitPaid(ctx context.Context, tx *gorm.DB, payout *models.Payout, transferRef string, earningCount int, paidAt time.Time) error {
	if s.outbox == nil {
		return nil
	}
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventPayoutPaid,
		AggregateType: enums.AggregatePayout,
		AggregateID:   payout.ID,
		Data: payloads.PayoutPaidEvent{
			PayoutID:            payout.ID,
			CreatorID:           payout.CreatorID,
			Currency:            payout.Currency,
			NetMinor:            payout.NetMinor,
			EarningCount:        earningCount,
			ExternalTransferRef: transferRef,
			PaidAt:              paidAt,
		},
	})
}

func (s *service) emitFailed(ctx context.Context, tx *gorm.DB, payout *models.Payout, reason string) error {
	if s.outbox == nil {
		return nil
	}
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventPayoutFailed,
		AggregateType: enums.AggregatePayout,
		AggregateID:   payout.ID,
		Data: payloads.PayoutFailedEvent{
			PayoutID:      payout.ID,
			CreatorID:     payout.CreatorID,
			Currency:      payout.Currency,
			NetMinor:      payout.NetMinor,
			FailureReason: reason,
			FailedAt:      time.Now().UTC(),
		},
	})
}
