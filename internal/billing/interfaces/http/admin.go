package http

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"housing-ledger/internal/audit"
	billingapp "housing-ledger/internal/billing/application"
	billing "housing-ledger/internal/billing/domain"
	"housing-ledger/internal/billing/interfaces/documents"
	"housing-ledger/internal/observability/metrics"
)

const (
	adminPrefix  = "/admin"
	xlsxMimeType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// AdminHandler serves staff operations under /admin.
type AdminHandler struct {
	payments  *billingapp.PaymentService
	generator billingapp.BillGenerator
	analytics *billingapp.AnalyticsService
	audit     auditor
	logger    *zap.Logger
}

// NewAdminHandler constructs a handler.
func NewAdminHandler(payments *billingapp.PaymentService, generator billingapp.BillGenerator, analytics *billingapp.AnalyticsService, auditLogger audit.Logger, logger *zap.Logger) (*AdminHandler, error) {
	if payments == nil {
		return nil, errors.New("admin handler: nil payment service")
	}
	if generator == nil {
		return nil, errors.New("admin handler: nil bill generator")
	}
	if analytics == nil {
		return nil, errors.New("admin handler: nil analytics service")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AdminHandler{
		payments:  payments,
		generator: generator,
		analytics: analytics,
		audit:     auditor{logger: auditLogger, log: logger},
		logger:    logger,
	}, nil
}

// ServeHTTP dispatches /admin routes.
func (h *AdminHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimSuffix(r.URL.Path, "/")
	switch path {
	case adminPrefix + "/bills/generate":
		if r.Method != http.MethodPost {
			methodNotAllowed(w)
			return
		}
		h.handleGenerate(w, r)
		return
	case adminPrefix + "/analytics":
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		h.handleAnalytics(w, r)
		return
	case adminPrefix + "/analytics/export.xlsx":
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		h.handleExport(w, r)
		return
	}

	if strings.HasPrefix(path, adminPrefix+"/payments/") {
		parts := strings.Split(strings.TrimPrefix(path, adminPrefix+"/payments/"), "/")
		if len(parts) == 2 && parts[0] != "" && parts[1] == "confirm" {
			if r.Method != http.MethodPost {
				methodNotAllowed(w)
				return
			}
			h.handleConfirm(w, r, parts[0])
			return
		}
	}
	notFound(w)
}

func (h *AdminHandler) handleConfirm(w http.ResponseWriter, r *http.Request, id string) {
	payment, err := h.payments.ConfirmPayment(r.Context(), id)
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}
	h.audit.record(r, "payment.confirm", "payment", payment.ID, payment.AccountID, map[string]any{
		"amount":         billing.FormatMoney(payment.Amount),
		"transaction_id": payment.TransactionID,
	})
	writeJSON(w, http.StatusOK, toPaymentDTO(*payment))
}

func (h *AdminHandler) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Period string `json:"period"`
		Force  bool   `json:"force"`
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, billing.KindInvalidArgument, "invalid body")
		return
	}
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, &req); err != nil {
			writeError(w, http.StatusBadRequest, billing.KindInvalidArgument, "invalid json")
			return
		}
	}

	var period *time.Time
	if strings.TrimSpace(req.Period) != "" {
		parsed, err := billing.ParsePeriod(req.Period)
		if err != nil {
			respondServiceError(w, h.logger, err)
			return
		}
		period = &parsed
	}
	result, err := h.generator.GenerateBills(r.Context(), period, req.Force)
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}
	h.audit.record(r, "bills.generate", "billing_period", billing.FormatPeriod(result.Period), "", map[string]any{
		"force":   req.Force,
		"created": result.Created,
		"skipped": result.Skipped,
		"errors":  result.Errors,
	})
	writeJSON(w, http.StatusOK, toGenerationDTO(result))
}

func (h *AdminHandler) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	from, to, ok := parseRange(w, r)
	if !ok {
		return
	}
	result, err := h.analytics.GetAnalytics(r.Context(), from, to)
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toAnalyticsDTO(result))
}

func (h *AdminHandler) handleExport(w http.ResponseWriter, r *http.Request) {
	var exportErr error
	defer func() {
		metrics.IncDocumentRender("xlsx", metrics.Result(exportErr))
	}()

	from, to, ok := parseRange(w, r)
	if !ok {
		exportErr = billing.ErrInvalidArgument
		return
	}
	result, err := h.analytics.GetAnalytics(r.Context(), from, to)
	if err != nil {
		exportErr = err
		respondServiceError(w, h.logger, err)
		return
	}
	content, err := documents.BuildAnalyticsXLSX(result)
	if err != nil {
		exportErr = err
		respondServiceError(w, h.logger, errors.Wrap(err, "build analytics xlsx"))
		return
	}
	h.audit.record(r, "analytics.export", "analytics", billing.FormatDay(from)+"_"+billing.FormatDay(to), "", map[string]any{
		"from": billing.FormatDay(from),
		"to":   billing.FormatDay(to),
	})
	filename := "analytics-" + billing.FormatDay(from) + "-" + billing.FormatDay(to) + ".xlsx"
	w.Header().Set("Content-Type", xlsxMimeType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(content)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(content)
}

// parseRange reads the required from/to query parameters as YYYY-MM-DD days.
func parseRange(w http.ResponseWriter, r *http.Request) (time.Time, time.Time, bool) {
	query := r.URL.Query()
	from, err := billing.ParseDay(query.Get("from"))
	if err != nil {
		writeError(w, http.StatusBadRequest, billing.KindInvalidArgument, err.Error())
		return time.Time{}, time.Time{}, false
	}
	to, err := billing.ParseDay(query.Get("to"))
	if err != nil {
		writeError(w, http.StatusBadRequest, billing.KindInvalidArgument, err.Error())
		return time.Time{}, time.Time{}, false
	}
	return from, to, true
}
