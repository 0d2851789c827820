package http

import (
	"time"

	billingapp "housing-ledger/internal/billing/application"
	billing "housing-ledger/internal/billing/domain"
)

type paymentDTO struct {
	ID            string  `json:"id"`
	AccountID     string  `json:"account_id"`
	BillID        *string `json:"bill_id"`
	Amount        string  `json:"amount"`
	Date          string  `json:"date"`
	Status        string  `json:"status"`
	Method        string  `json:"method"`
	TransactionID string  `json:"transaction_id"`
	IsTest        bool    `json:"is_test"`
	PaidAt        *string `json:"paid_at,omitempty"`
	CancelledAt   *string `json:"cancelled_at,omitempty"`
}

func toPaymentDTO(p billing.Payment) paymentDTO {
	dto := paymentDTO{
		ID:            p.ID,
		AccountID:     p.AccountID,
		Amount:        billing.FormatMoney(p.Amount),
		Date:          p.Date.UTC().Format(time.RFC3339),
		Status:        string(p.Status),
		Method:        string(p.Method),
		TransactionID: p.TransactionID,
		IsTest:        p.IsTest,
		PaidAt:        optionalTime(p.PaidAt),
		CancelledAt:   optionalTime(p.CancelledAt),
	}
	if p.BillID != "" {
		billID := p.BillID
		dto.BillID = &billID
	}
	return dto
}

func toPaymentDTOs(payments []billing.Payment) []paymentDTO {
	result := make([]paymentDTO, 0, len(payments))
	for _, p := range payments {
		result = append(result, toPaymentDTO(p))
	}
	return result
}

type billItemDTO struct {
	ServiceName string `json:"service_name"`
	Tariff      string `json:"tariff"`
	Consumption string `json:"consumption"`
	Amount      string `json:"amount"`
}

type billDTO struct {
	ID          string        `json:"id"`
	AccountID   string        `json:"account_id"`
	Period      string        `json:"period"`
	TotalAmount string        `json:"total_amount"`
	CreatedAt   string        `json:"created_at"`
	HasDocument bool          `json:"has_document"`
	Items       []billItemDTO `json:"items"`
}

func toBillDTO(b billing.Bill) billDTO {
	items := make([]billItemDTO, 0, len(b.Items))
	for _, item := range b.Items {
		items = append(items, billItemDTO{
			ServiceName: item.ServiceName,
			Tariff:      item.Tariff.String(),
			Consumption: item.Consumption.String(),
			Amount:      billing.FormatMoney(item.Amount),
		})
	}
	return billDTO{
		ID:          b.ID,
		AccountID:   b.AccountID,
		Period:      billing.FormatPeriod(b.Period),
		TotalAmount: billing.FormatMoney(b.TotalAmount),
		CreatedAt:   b.CreatedAt.UTC().Format(time.RFC3339),
		HasDocument: b.DocumentRef != "",
		Items:       items,
	}
}

type balanceDTO struct {
	AccountID       string `json:"account_id"`
	AsOf            string `json:"as_of"`
	Charged         string `json:"charged"`
	Collected       string `json:"collected"`
	Debt            string `json:"debt"`
	AvailableCredit string `json:"available_credit"`
}

func toBalanceDTO(b billing.Balance) balanceDTO {
	return balanceDTO{
		AccountID:       b.AccountID,
		AsOf:            b.AsOf.UTC().Format(time.RFC3339),
		Charged:         billing.FormatMoney(b.Charged),
		Collected:       billing.FormatMoney(b.Collected),
		Debt:            billing.FormatMoney(b.Debt),
		AvailableCredit: billing.FormatMoney(b.AvailableCredit),
	}
}

type generationDTO struct {
	Period  string `json:"period"`
	Created int    `json:"created"`
	Skipped int    `json:"skipped"`
	Errors  int    `json:"errors"`
}

func toGenerationDTO(r billingapp.GenerationResult) generationDTO {
	return generationDTO{
		Period:  billing.FormatPeriod(r.Period),
		Created: r.Created,
		Skipped: r.Skipped,
		Errors:  r.Errors,
	}
}

type dailyDTO struct {
	Date   string `json:"date"`
	Amount string `json:"amount"`
}

type debtorDTO struct {
	AccountID     string `json:"account_id"`
	AccountNumber string `json:"account_number"`
	Address       string `json:"address"`
	OwnerName     string `json:"owner_name"`
	DebtAmount    string `json:"debt_amount"`
}

type analyticsDTO struct {
	From              string      `json:"from"`
	To                string      `json:"to"`
	TotalCharged      string      `json:"total_charged"`
	TotalCollected    string      `json:"total_collected"`
	CollectionPercent string      `json:"collection_percent"`
	TotalDebt         string      `json:"total_debt"`
	DailySeries       []dailyDTO  `json:"daily_series"`
	TopDebtors        []debtorDTO `json:"top_debtors"`
}

func toAnalyticsDTO(r billing.AnalyticsResult) analyticsDTO {
	series := make([]dailyDTO, 0, len(r.DailySeries))
	for _, point := range r.DailySeries {
		series = append(series, dailyDTO{Date: billing.FormatDay(point.Day), Amount: billing.FormatMoney(point.Amount)})
	}
	debtors := make([]debtorDTO, 0, len(r.TopDebtors))
	for _, d := range r.TopDebtors {
		debtors = append(debtors, debtorDTO{
			AccountID:     d.AccountID,
			AccountNumber: d.AccountNumber,
			Address:       d.Address,
			OwnerName:     d.OwnerName,
			DebtAmount:    billing.FormatMoney(d.DebtAmount),
		})
	}
	return analyticsDTO{
		From:              billing.FormatDay(r.From),
		To:                billing.FormatDay(r.To),
		TotalCharged:      billing.FormatMoney(r.TotalCharged),
		TotalCollected:    billing.FormatMoney(r.TotalCollected),
		CollectionPercent: r.CollectionPercent.StringFixed(2),
		TotalDebt:         billing.FormatMoney(r.TotalDebt),
		DailySeries:       series,
		TopDebtors:        debtors,
	}
}

func optionalTime(t time.Time) *string {
	if t.IsZero() {
		return nil
	}
	value := t.UTC().Format(time.RFC3339)
	return &value
}
