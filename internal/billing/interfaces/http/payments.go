package http

import (
	"net/http"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"housing-ledger/internal/audit"
	billingapp "housing-ledger/internal/billing/application"
	billing "housing-ledger/internal/billing/domain"
)

const paymentsPrefix = "/payments"

// PaymentsHandler serves the resident payment API under /payments.
type PaymentsHandler struct {
	payments *billingapp.PaymentService
	balances *billingapp.BalanceCalculator
	audit    auditor
	logger   *zap.Logger
}

// NewPaymentsHandler constructs a handler.
func NewPaymentsHandler(payments *billingapp.PaymentService, balances *billingapp.BalanceCalculator, auditLogger audit.Logger, logger *zap.Logger) (*PaymentsHandler, error) {
	if payments == nil {
		return nil, errors.New("payments handler: nil payment service")
	}
	if balances == nil {
		return nil, errors.New("payments handler: nil balance calculator")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PaymentsHandler{
		payments: payments,
		balances: balances,
		audit:    auditor{logger: auditLogger, log: logger},
		logger:   logger,
	}, nil
}

// ServeHTTP dispatches /payments routes.
func (h *PaymentsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimSuffix(r.URL.Path, "/")
	switch path {
	case paymentsPrefix:
		if r.Method != http.MethodPost {
			methodNotAllowed(w)
			return
		}
		h.handleCreate(w, r)
		return
	case paymentsPrefix + "/mine":
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		h.handleListMine(w, r)
		return
	case paymentsPrefix + "/balance":
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		h.handleBalance(w, r)
		return
	case paymentsPrefix + "/init":
		if r.Method != http.MethodPost {
			methodNotAllowed(w)
			return
		}
		h.handleInit(w, r)
		return
	}

	rest := strings.TrimPrefix(path, paymentsPrefix+"/")
	if rest == path || rest == "" {
		notFound(w)
		return
	}
	parts := strings.Split(rest, "/")
	switch {
	case len(parts) == 1 && r.Method == http.MethodGet:
		h.handleGet(w, r, parts[0])
	case len(parts) == 2 && parts[1] == "cancel" && r.Method == http.MethodPost:
		h.handleCancel(w, r, parts[0])
	case len(parts) <= 2:
		methodNotAllowed(w)
	default:
		notFound(w)
	}
}

func (h *PaymentsHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		BillID string          `json:"bill_id"`
		Amount decimal.Decimal `json:"amount"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.BillID) == "" {
		writeError(w, http.StatusBadRequest, billing.KindInvalidArgument, "bill_id is required")
		return
	}
	payment, err := h.payments.CreatePayment(r.Context(), actorFrom(r), req.BillID, req.Amount)
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}
	h.audit.record(r, "payment.create", "payment", payment.ID, payment.AccountID, map[string]any{
		"bill_id": payment.BillID,
		"amount":  billing.FormatMoney(payment.Amount),
	})
	writeJSON(w, http.StatusCreated, toPaymentDTO(*payment))
}

func (h *PaymentsHandler) handleInit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Amount decimal.Decimal `json:"amount"`
		Method string          `json:"method"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	topUp, err := h.payments.InitPayment(r.Context(), actorFrom(r), req.Amount, billing.PaymentMethod(strings.TrimSpace(req.Method)))
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}
	h.audit.record(r, "payment.init", "payment", topUp.Payment.ID, topUp.Payment.AccountID, map[string]any{
		"method": string(topUp.Payment.Method),
		"amount": billing.FormatMoney(topUp.Payment.Amount),
	})
	writeJSON(w, http.StatusCreated, map[string]any{
		"payment":      toPaymentDTO(topUp.Payment),
		"redirect_url": topUp.RedirectURL,
	})
}

func (h *PaymentsHandler) handleListMine(w http.ResponseWriter, r *http.Request) {
	payments, err := h.payments.ListMine(r.Context(), actorFrom(r))
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toPaymentDTOs(payments))
}

func (h *PaymentsHandler) handleBalance(w http.ResponseWriter, r *http.Request) {
	accountID := strings.TrimSpace(r.URL.Query().Get("account_id"))
	balance, err := h.balances.GetBalanceForActor(r.Context(), actorFrom(r), accountID)
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toBalanceDTO(balance))
}

func (h *PaymentsHandler) handleGet(w http.ResponseWriter, r *http.Request, id string) {
	payment, err := h.payments.GetPayment(r.Context(), actorFrom(r), id)
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toPaymentDTO(*payment))
}

func (h *PaymentsHandler) handleCancel(w http.ResponseWriter, r *http.Request, id string) {
	payment, err := h.payments.CancelPayment(r.Context(), actorFrom(r), id)
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}
	h.audit.record(r, "payment.cancel", "payment", payment.ID, payment.AccountID, nil)
	writeJSON(w, http.StatusOK, toPaymentDTO(*payment))
}
