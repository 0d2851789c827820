package pricing

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/shopspring/decimal"

	billing "housing-ledger/internal/billing/domain"
)

// StaticTariffProvider resolves unit prices from an in-process tariff table.
type StaticTariffProvider struct {
	tariffs map[string][]billing.Tariff
}

// NewStaticTariffProvider constructs the provider. Tariffs of one service are
// ordered by EffectiveFrom.
func NewStaticTariffProvider(tariffs []billing.Tariff) (*StaticTariffProvider, error) {
	p := &StaticTariffProvider{tariffs: make(map[string][]billing.Tariff)}
	for _, tariff := range tariffs {
		service := strings.TrimSpace(tariff.Service)
		if service == "" {
			return nil, errors.New("tariff provider: empty service")
		}
		if tariff.PricePerUnit.IsNegative() {
			return nil, errors.Wrapf(billing.ErrNegativeValue, "tariff %s", service)
		}
		tariff.Service = service
		tariff.EffectiveFrom = billing.DayStart(tariff.EffectiveFrom)
		p.tariffs[service] = append(p.tariffs[service], tariff)
	}
	for service := range p.tariffs {
		list := p.tariffs[service]
		sort.Slice(list, func(i, j int) bool { return list[i].EffectiveFrom.Before(list[j].EffectiveFrom) })
	}
	return p, nil
}

// TariffFor returns the latest price effective on or before period.
func (p *StaticTariffProvider) TariffFor(_ context.Context, service string, period time.Time) (decimal.Decimal, error) {
	if p == nil {
		return decimal.Zero, errors.New("tariff provider: nil provider")
	}
	list := p.tariffs[service]
	period = billing.MonthStart(period)
	for i := len(list) - 1; i >= 0; i-- {
		if !list[i].EffectiveFrom.After(period) {
			return list[i].PricePerUnit, nil
		}
	}
	return decimal.Zero, errors.Wrapf(billing.ErrTariffNotFound, "service %s, period %s", service, billing.FormatPeriod(period))
}

// FeeSchedule is the fixed per-area fee list applied to every account.
type FeeSchedule struct {
	fees []billing.FixedFee
}

// NewFeeSchedule constructs a schedule.
func NewFeeSchedule(fees []billing.FixedFee) (*FeeSchedule, error) {
	out := make([]billing.FixedFee, 0, len(fees))
	for _, fee := range fees {
		fee.Service = strings.TrimSpace(fee.Service)
		if fee.Service == "" {
			return nil, errors.New("fee schedule: empty service")
		}
		if fee.RatePerArea.IsNegative() {
			return nil, errors.Wrapf(billing.ErrNegativeValue, "fee %s", fee.Service)
		}
		out = append(out, fee)
	}
	return &FeeSchedule{fees: out}, nil
}

// FixedFees returns the configured fees.
func (s *FeeSchedule) FixedFees(_ context.Context) ([]billing.FixedFee, error) {
	if s == nil {
		return nil, nil
	}
	return append([]billing.FixedFee(nil), s.fees...), nil
}
