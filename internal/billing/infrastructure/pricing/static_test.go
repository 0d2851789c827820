package pricing

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	billing "housing-ledger/internal/billing/domain"
)

func TestStaticTariffProvider_PicksLatestEffective(t *testing.T) {
	provider, err := NewStaticTariffProvider([]billing.Tariff{
		{Service: "water", PricePerUnit: decimal.RequireFromString("3.50"), EffectiveFrom: time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)},
		{Service: "water", PricePerUnit: decimal.RequireFromString("4.10"), EffectiveFrom: time.Date(2024, time.July, 1, 0, 0, 0, 0, time.UTC)},
	})
	require.NoError(t, err)

	ctx := context.Background()
	price, err := provider.TariffFor(ctx, "water", time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Equal(t, "3.5", price.String())

	price, err = provider.TariffFor(ctx, "water", time.Date(2024, time.July, 20, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Equal(t, "4.1", price.String())

	_, err = provider.TariffFor(ctx, "water", time.Date(2023, time.December, 1, 0, 0, 0, 0, time.UTC))
	require.ErrorIs(t, err, billing.ErrTariffNotFound)

	_, err = provider.TariffFor(ctx, "gas", time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC))
	require.ErrorIs(t, err, billing.ErrTariffNotFound)
}

func TestStaticTariffProvider_RejectsNegativePrice(t *testing.T) {
	_, err := NewStaticTariffProvider([]billing.Tariff{{Service: "water", PricePerUnit: decimal.NewFromInt(-1)}})
	require.ErrorIs(t, err, billing.ErrInvalidArgument)
}

func TestFeeSchedule(t *testing.T) {
	schedule, err := NewFeeSchedule([]billing.FixedFee{{Service: " maintenance ", RatePerArea: decimal.RequireFromString("25.5")}})
	require.NoError(t, err)
	fees, err := schedule.FixedFees(context.Background())
	require.NoError(t, err)
	require.Len(t, fees, 1)
	require.Equal(t, "maintenance", fees[0].Service)

	_, err = NewFeeSchedule([]billing.FixedFee{{Service: ""}})
	require.Error(t, err)
}
