package application

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	billing "housing-ledger/internal/billing/domain"
	"housing-ledger/internal/billing/notify"
	"housing-ledger/internal/observability/metrics"
)

const defaultGenerationWorkers = 4

// GenerationResult summarises one generation run.
type GenerationResult struct {
	Period  time.Time
	Created int
	Skipped int
	Errors  int
}

type accountOutcome int

const (
	outcomeSkipped accountOutcome = iota
	outcomeCreated
)

// BillGenerationJob turns metered consumption and fixed fees into one bill
// per account and period.
type BillGenerationJob struct {
	uow      billing.UnitOfWork
	tariffs  TariffProvider
	fees     FeeSchedule
	renderer DocumentRenderer
	notifier Notifier
	clock    Clock
	logger   *zap.Logger
	workers  int
	newID    func() string
}

// GenerationOption configures the job.
type GenerationOption func(*BillGenerationJob)

// WithGenerationWorkers bounds the number of accounts processed concurrently.
func WithGenerationWorkers(n int) GenerationOption {
	return func(j *BillGenerationJob) {
		if n > 0 {
			j.workers = n
		}
	}
}

// WithDocumentRenderer renders a document after each created bill.
func WithDocumentRenderer(renderer DocumentRenderer) GenerationOption {
	return func(j *BillGenerationJob) {
		j.renderer = renderer
	}
}

// WithGenerationNotifier notifies account owners about new bills.
func WithGenerationNotifier(notifier Notifier) GenerationOption {
	return func(j *BillGenerationJob) {
		j.notifier = notifier
	}
}

// WithGenerationClock overrides the clock.
func WithGenerationClock(clock Clock) GenerationOption {
	return func(j *BillGenerationJob) {
		if clock != nil {
			j.clock = clock
		}
	}
}

// WithGenerationLogger sets the logger.
func WithGenerationLogger(logger *zap.Logger) GenerationOption {
	return func(j *BillGenerationJob) {
		if logger != nil {
			j.logger = logger
		}
	}
}

// NewBillGenerationJob constructs the job. A nil tariffs provider prices
// consumption from the ledger's tariffs inside each account's unit of work.
func NewBillGenerationJob(uow billing.UnitOfWork, tariffs TariffProvider, fees FeeSchedule, opts ...GenerationOption) (*BillGenerationJob, error) {
	if uow == nil {
		return nil, errors.New("bill generation: nil unit of work")
	}
	j := &BillGenerationJob{
		uow:     uow,
		tariffs: tariffs,
		fees:    fees,
		clock:   SystemClock{},
		logger:  zap.NewNop(),
		workers: defaultGenerationWorkers,
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(j)
	}
	return j, nil
}

// GenerateBills bills every account for period, or for the current month when
// period is nil. Account failures are counted, logged and never abort the run.
// The error is non-nil only when the account list cannot be loaded or ctx ends.
func (j *BillGenerationJob) GenerateBills(ctx context.Context, period *time.Time, force bool) (GenerationResult, error) {
	start := time.Now()
	target := billing.MonthStart(j.clock.Now())
	if period != nil {
		if period.IsZero() {
			return GenerationResult{}, billing.ErrInvalidPeriod
		}
		target = billing.MonthStart(*period)
	}
	result := GenerationResult{Period: target}
	logger := j.logger.With(zap.String("period", billing.FormatPeriod(target)), zap.Bool("force", force))

	var accounts []billing.Account
	err := j.uow.ReadOnly(ctx, func(ctx context.Context, ledger billing.Ledger) error {
		var err error
		accounts, err = ledger.Accounts().List(ctx)
		return err
	})
	if err != nil {
		metrics.ObserveBillGenerate(metrics.ResultError, time.Since(start))
		return result, errors.Wrap(err, "list accounts")
	}

	var created, skipped, failed atomic.Int64
	var g errgroup.Group
	g.SetLimit(j.workers)
	for _, account := range accounts {
		g.Go(func() error {
			outcome, err := j.processAccount(ctx, account, target, force)
			switch {
			case err != nil:
				failed.Add(1)
				logger.Warn("bill generation failed", zap.String("account_id", account.ID), zap.Error(err))
			case outcome == outcomeCreated:
				created.Add(1)
			default:
				skipped.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	result.Created = int(created.Load())
	result.Skipped = int(skipped.Load())
	result.Errors = int(failed.Load())
	metrics.AddBillOutcomes(result.Created, result.Skipped, result.Errors)
	metrics.ObserveBillGenerate(metrics.ResultSuccess, time.Since(start))
	logger.Info("bill generation finished",
		zap.Int("created", result.Created),
		zap.Int("skipped", result.Skipped),
		zap.Int("errors", result.Errors),
		zap.Duration("elapsed", time.Since(start)),
	)
	if err := ctx.Err(); err != nil {
		return result, err
	}
	return result, nil
}

func (j *BillGenerationJob) processAccount(ctx context.Context, account billing.Account, period time.Time, force bool) (outcome accountOutcome, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = errors.Newf("panic while billing account %s: %v", account.ID, p)
		}
	}()

	var bill *billing.Bill
	err = j.uow.Do(ctx, func(ctx context.Context, ledger billing.Ledger) error {
		exists, err := ledger.Bills().Exists(ctx, account.ID, period)
		if err != nil {
			return err
		}
		if exists {
			return nil
		}
		readings, err := ledger.Readings().ListForPeriod(ctx, account.ID, period)
		if err != nil {
			return err
		}
		if !force && hasUnvalidated(readings) {
			j.logger.Debug("skipping account with unvalidated readings", zap.String("account_id", account.ID))
			return nil
		}
		items, err := j.buildItems(ctx, ledger, account, period, readings)
		if err != nil {
			return err
		}
		if len(items) == 0 {
			return nil
		}
		candidate, err := billing.NewBill(j.newID(), account.ID, period, items, j.clock.Now())
		if err != nil {
			return err
		}
		if err := ledger.Bills().Create(ctx, candidate); err != nil {
			if errors.Is(err, billing.ErrDuplicateBill) {
				return nil
			}
			return err
		}
		bill = candidate
		return nil
	})
	if err != nil {
		return outcomeSkipped, err
	}
	if bill == nil {
		return outcomeSkipped, nil
	}

	j.afterCreate(ctx, account, *bill)
	return outcomeCreated, nil
}

// buildItems prices metered consumption and appends the fixed per-area fees.
// Consumption is the latest reading of the period minus the latest reading
// before it; a missing prior reading counts as zero.
func (j *BillGenerationJob) buildItems(ctx context.Context, ledger billing.Ledger, account billing.Account, period time.Time, readings []billing.Reading) ([]billing.BillItem, error) {
	latest := make(map[string]billing.Reading)
	var services []string
	for _, reading := range readings {
		current, seen := latest[reading.Service]
		if !seen {
			services = append(services, reading.Service)
		}
		if !seen || !reading.RecordedAt.Before(current.RecordedAt) {
			latest[reading.Service] = reading
		}
	}

	items := make([]billing.BillItem, 0, len(services))
	for _, service := range services {
		current := latest[service]
		baseline := decimal.Zero
		prior, err := ledger.Readings().LatestBefore(ctx, account.ID, service, period)
		if err != nil {
			return nil, err
		}
		if prior != nil {
			baseline = prior.Value
		}
		consumption := current.Value.Sub(baseline)
		if consumption.IsNegative() {
			return nil, errors.Wrapf(billing.ErrMalformedReading, "service %s: reading %s below previous %s", service, current.Value, baseline)
		}
		tariff, err := j.tariffFor(ctx, ledger, service, period)
		if err != nil {
			return nil, err
		}
		item, err := billing.NewBillItem(service, tariff, consumption)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}

	if j.fees != nil && account.Area.IsPositive() {
		fees, err := j.fees.FixedFees(ctx)
		if err != nil {
			return nil, err
		}
		for _, fee := range fees {
			item, err := billing.NewBillItem(fee.Service, fee.RatePerArea, account.Area)
			if err != nil {
				return nil, err
			}
			items = append(items, item)
		}
	}
	return items, nil
}

func (j *BillGenerationJob) tariffFor(ctx context.Context, ledger billing.Ledger, service string, period time.Time) (decimal.Decimal, error) {
	if j.tariffs != nil {
		return j.tariffs.TariffFor(ctx, service, period)
	}
	return ledger.Tariffs().TariffFor(ctx, service, period)
}

// afterCreate runs the post-commit side effects. Their failures never undo the bill.
func (j *BillGenerationJob) afterCreate(ctx context.Context, account billing.Account, bill billing.Bill) {
	logger := j.logger.With(zap.String("account_id", account.ID), zap.String("bill_id", bill.ID))
	if j.renderer != nil {
		ref, err := j.renderer.RenderBill(ctx, account, bill)
		metrics.IncDocumentRender("pdf", metrics.Result(err))
		if err != nil {
			logger.Warn("bill document render failed", zap.Error(err))
		} else if err := j.uow.Do(ctx, func(ctx context.Context, ledger billing.Ledger) error {
			return ledger.Bills().AttachDocument(ctx, bill.ID, ref)
		}); err != nil {
			logger.Warn("attach bill document failed", zap.Error(err))
		}
	}
	if j.notifier != nil {
		msg := notify.Message{
			Event:     notify.EventBillCreated,
			AccountID: account.ID,
			UserID:    account.OwnerUserID,
			Subject:   fmt.Sprintf("New bill for %s", billing.FormatPeriod(bill.Period)),
			Fields: map[string]string{
				"account": account.Number,
				"period":  billing.FormatPeriod(bill.Period),
				"amount":  billing.FormatMoney(bill.TotalAmount),
				"bill_id": bill.ID,
			},
		}
		if err := j.notifier.Notify(ctx, msg); err != nil {
			logger.Warn("bill notification failed", zap.Error(err))
		}
	}
}

func hasUnvalidated(readings []billing.Reading) bool {
	for _, reading := range readings {
		if !reading.Validated {
			return true
		}
	}
	return false
}
