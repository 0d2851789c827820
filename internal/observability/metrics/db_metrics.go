package metrics

import (
	"database/sql"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

func registerDBMetrics(db *sql.DB, logger *zap.Logger) {
	prometheus.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: metricPrefix + "payments_pending",
			Help: "Payments awaiting confirmation",
		},
		func() float64 {
			return queryCount(db, logger, "SELECT COUNT(*) FROM payments WHERE status = 'pending'")
		},
	))

	prometheus.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: metricPrefix + "accounts_in_debt",
			Help: "Accounts whose billed total exceeds collected payments",
		},
		func() float64 {
			return queryCount(db, logger, `
SELECT COUNT(*) FROM (
	SELECT a.id
	FROM accounts a
	LEFT JOIN (SELECT account_id, SUM(total_amount) AS total FROM bills GROUP BY account_id) c ON c.account_id = a.id
	LEFT JOIN (SELECT account_id, SUM(amount) AS total FROM payments WHERE status = 'paid' AND is_test = FALSE GROUP BY account_id) p ON p.account_id = a.id
	WHERE COALESCE(c.total, 0) - COALESCE(p.total, 0) > 0
) debtors`)
		},
	))
}

func queryCount(db *sql.DB, logger *zap.Logger, query string) float64 {
	if db == nil {
		return 0
	}
	var count int64
	if err := db.QueryRow(query).Scan(&count); err != nil {
		if logger != nil {
			logger.Warn("metrics query failed", zap.Error(err))
		}
		return 0
	}
	if count < 0 {
		return 0
	}
	return float64(count)
}
