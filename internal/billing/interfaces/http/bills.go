package http

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	billingapp "housing-ledger/internal/billing/application"
	"housing-ledger/internal/billing/interfaces/documents"
	"housing-ledger/internal/observability/metrics"
)

const billsPrefix = "/bills"

// DocumentStore opens previously rendered bill documents.
type DocumentStore interface {
	Open(ref string) ([]byte, error)
}

// BillsHandler serves bill reads and bill documents under /bills.
type BillsHandler struct {
	bills     *billingapp.BillQueryService
	documents DocumentStore
	logger    *zap.Logger
}

// NewBillsHandler constructs a handler. A nil store renders every document on demand.
func NewBillsHandler(bills *billingapp.BillQueryService, store DocumentStore, logger *zap.Logger) (*BillsHandler, error) {
	if bills == nil {
		return nil, errors.New("bills handler: nil bill query service")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BillsHandler{bills: bills, documents: store, logger: logger}, nil
}

// ServeHTTP dispatches /bills routes.
func (h *BillsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	path := strings.TrimSuffix(r.URL.Path, "/")
	if path == billsPrefix+"/mine" {
		h.handleListMine(w, r)
		return
	}
	rest := strings.TrimPrefix(path, billsPrefix+"/")
	parts := strings.Split(rest, "/")
	if rest != path && len(parts) == 2 && parts[0] != "" && parts[1] == "document.pdf" {
		h.handleDocument(w, r, parts[0])
		return
	}
	notFound(w)
}

func (h *BillsHandler) handleListMine(w http.ResponseWriter, r *http.Request) {
	bills, err := h.bills.ListMine(r.Context(), actorFrom(r))
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}
	result := make([]billDTO, 0, len(bills))
	for _, bill := range bills {
		result = append(result, toBillDTO(bill))
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *BillsHandler) handleDocument(w http.ResponseWriter, r *http.Request, billID string) {
	start := time.Now()
	bill, account, err := h.bills.GetBill(r.Context(), actorFrom(r), billID)
	if err != nil {
		respondServiceError(w, h.logger, err)
		return
	}

	var content []byte
	if h.documents != nil && bill.DocumentRef != "" {
		content, err = h.documents.Open(bill.DocumentRef)
		if err != nil {
			h.logger.Warn("stored bill document unavailable, rendering", zap.String("bill_id", bill.ID), zap.Error(err))
			content = nil
		}
	}
	if content == nil {
		content, err = documents.BuildBillPDF(*account, *bill)
		metrics.IncDocumentRender("pdf", metrics.Result(err))
		if err != nil {
			respondServiceError(w, h.logger, errors.Wrap(err, "render bill pdf"))
			return
		}
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="bill-`+bill.ID+`.pdf"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(content)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(content)
	h.logger.Debug("bill document served", zap.String("bill_id", bill.ID), zap.Duration("elapsed", time.Since(start)))
}
