package http

import (
	"encoding/json"
	"net/http"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"housing-ledger/internal/audit"
	"housing-ledger/internal/auth"
	billingapp "housing-ledger/internal/billing/application"
	billing "housing-ledger/internal/billing/domain"
)

const maxBodyBytes = 1 << 20

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, kind billing.Kind, message string) {
	writeJSON(w, status, errorResponse{Error: string(kind), Message: message})
}

// respondServiceError maps the ledger error taxonomy onto HTTP status codes.
// Internal errors are logged and never echoed to the client.
func respondServiceError(w http.ResponseWriter, logger *zap.Logger, err error) {
	if err == nil {
		return
	}
	kind := billing.KindOf(err)
	switch kind {
	case billing.KindNotFound:
		writeError(w, http.StatusNotFound, kind, err.Error())
	case billing.KindForbidden:
		writeError(w, http.StatusForbidden, kind, "forbidden")
	case billing.KindInvalidArgument, billing.KindInvalidState:
		writeError(w, http.StatusBadRequest, kind, err.Error())
	default:
		logger.Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, billing.KindInternal, "internal error")
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, billing.KindInvalidArgument, "invalid json")
		return false
	}
	return true
}

func actorFrom(r *http.Request) billingapp.Actor {
	ctx := r.Context()
	return billingapp.Actor{
		UserID: auth.SubjectFromContext(ctx),
		Staff:  auth.IsStaff(auth.RoleFromContext(ctx)),
	}
}

// auditor records ledger mutations made over HTTP.
type auditor struct {
	logger audit.Logger
	log    *zap.Logger
}

func (a auditor) record(r *http.Request, action, resourceType, resourceID, accountID string, meta map[string]any) {
	if a.logger == nil {
		return
	}
	payload, err := json.Marshal(meta)
	if err != nil {
		a.log.Warn("encode audit metadata", zap.String("action", action), zap.Error(err))
		payload = nil
	}
	err = a.logger.Log(r.Context(), audit.Entry{
		Actor:        auth.SubjectFromContext(r.Context()),
		Role:         string(auth.RoleFromContext(r.Context())),
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		AccountID:    accountID,
		Metadata:     payload,
		IP:           audit.ClientIP(r),
		UserAgent:    r.UserAgent(),
	})
	if err != nil {
		a.log.Warn("audit log failed", zap.String("action", action), zap.Error(errors.WithStack(err)))
	}
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, billing.KindInvalidArgument, "method not allowed")
}

func notFound(w http.ResponseWriter) {
	writeError(w, http.StatusNotFound, billing.KindNotFound, "route not found")
}
