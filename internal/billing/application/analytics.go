package application

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	billing "housing-ledger/internal/billing/domain"
	"housing-ledger/internal/observability/metrics"
)

const defaultTopDebtors = 10

var hundred = decimal.NewFromInt(100)

// AnalyticsService computes collection analytics over the whole ledger.
type AnalyticsService struct {
	uow    billing.UnitOfWork
	topN   int
	logger *zap.Logger
}

// NewAnalyticsService constructs the service.
func NewAnalyticsService(uow billing.UnitOfWork, logger *zap.Logger) (*AnalyticsService, error) {
	if uow == nil {
		return nil, errors.New("analytics service: nil unit of work")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AnalyticsService{uow: uow, topN: defaultTopDebtors, logger: logger}, nil
}

// GetAnalytics aggregates the inclusive day range [from, to].
func (s *AnalyticsService) GetAnalytics(ctx context.Context, from, to time.Time) (billing.AnalyticsResult, error) {
	start := time.Now()
	from = billing.DayStart(from)
	to = billing.DayStart(to)
	if from.After(to) {
		return billing.AnalyticsResult{}, errors.Wrapf(billing.ErrInvalidRange, "from %s, to %s", billing.FormatDay(from), billing.FormatDay(to))
	}
	end := to.AddDate(0, 0, 1)

	result := billing.AnalyticsResult{From: from, To: to}
	err := s.uow.ReadOnly(ctx, func(ctx context.Context, ledger billing.Ledger) error {
		query := ledger.Query()
		var err error
		if result.TotalCharged, err = query.SumCharged(ctx, from, to); err != nil {
			return errors.Wrap(err, "total charged")
		}
		if result.TotalCollected, err = query.SumCollected(ctx, from, end); err != nil {
			return errors.Wrap(err, "total collected")
		}
		chargedToDate, err := query.SumCharged(ctx, time.Time{}, to)
		if err != nil {
			return errors.Wrap(err, "charged to date")
		}
		collectedToDate, err := query.SumCollected(ctx, time.Time{}, end)
		if err != nil {
			return errors.Wrap(err, "collected to date")
		}
		result.TotalDebt = billing.NonNegative(chargedToDate.Sub(collectedToDate))

		daily, err := query.DailyCollected(ctx, from, end)
		if err != nil {
			return errors.Wrap(err, "daily collected")
		}
		result.DailySeries = densify(from, to, daily)

		debts, err := query.AccountDebts(ctx, to, end)
		if err != nil {
			return errors.Wrap(err, "account debts")
		}
		result.TopDebtors = topDebtors(debts, s.topN)
		return nil
	})
	metrics.ObserveAnalytics(metrics.Result(err), time.Since(start))
	if err != nil {
		return billing.AnalyticsResult{}, err
	}
	result.CollectionPercent = collectionPercent(result.TotalCollected, result.TotalCharged)
	s.logger.Debug("analytics computed",
		zap.String("from", billing.FormatDay(from)),
		zap.String("to", billing.FormatDay(to)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return result, nil
}

func collectionPercent(collected, charged decimal.Decimal) decimal.Decimal {
	if !charged.IsPositive() {
		return decimal.Zero
	}
	return collected.Mul(hundred).DivRound(charged, 2)
}

// densify returns one point per day in [from, to], filling gaps with zero.
func densify(from, to time.Time, daily []billing.DailyAmount) []billing.DailyAmount {
	byDay := make(map[time.Time]decimal.Decimal, len(daily))
	for _, point := range daily {
		day := billing.DayStart(point.Day)
		byDay[day] = byDay[day].Add(point.Amount)
	}
	var series []billing.DailyAmount
	for day := from; !day.After(to); day = day.AddDate(0, 0, 1) {
		series = append(series, billing.DailyAmount{Day: day, Amount: byDay[day]})
	}
	return series
}

func topDebtors(debts []billing.AccountDebt, limit int) []billing.Debtor {
	result := make([]billing.Debtor, 0, limit)
	for _, debt := range debts {
		if len(result) == limit {
			break
		}
		amount := debt.Debt()
		if !amount.IsPositive() {
			continue
		}
		result = append(result, billing.Debtor{
			AccountID:     debt.AccountID,
			AccountNumber: debt.AccountNumber,
			Address:       debt.Address,
			OwnerName:     debt.OwnerName,
			DebtAmount:    amount,
		})
	}
	return result
}
