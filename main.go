package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"housing-ledger/internal/audit"
	"housing-ledger/internal/auth"
	billingapp "housing-ledger/internal/billing/application"
	billing "housing-ledger/internal/billing/domain"
	"housing-ledger/internal/billing/infrastructure/memory"
	"housing-ledger/internal/billing/infrastructure/postgres"
	"housing-ledger/internal/billing/infrastructure/pricing"
	"housing-ledger/internal/billing/interfaces/documents"
	billinghttp "housing-ledger/internal/billing/interfaces/http"
	"housing-ledger/internal/billing/notify"
	"housing-ledger/internal/config"
	"housing-ledger/internal/logging"
	"housing-ledger/internal/observability/metrics"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		zap.NewExample().Fatal("config error", zap.Error(err))
	}
	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		uow         billing.UnitOfWork
		auditLogger audit.Logger
		tariffs     billingapp.TariffProvider
		db          *sql.DB
	)
	if cfg.DatabaseURL != "" {
		db, err = sql.Open("pgx", cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("db open error", zap.Error(err))
		}
		defer db.Close()
		if err := db.PingContext(ctx); err != nil {
			logger.Fatal("db ping error", zap.Error(err))
		}
		store, err := postgres.NewStore(db)
		if err != nil {
			logger.Fatal("ledger store error", zap.Error(err))
		}
		uow = store
		auditLogger = audit.NewRepository(db)
	} else {
		logger.Warn("DATABASE_URL not set, using in-memory ledger",
			zap.Int("seed_accounts", len(cfg.Accounts)),
			zap.Int("seed_readings", len(cfg.Readings)),
		)
		store := memory.NewStore()
		for _, account := range cfg.Accounts {
			store.AddAccount(account)
		}
		for _, reading := range cfg.Readings {
			store.AddReading(reading)
		}
		uow = store
		auditLogger = &audit.MemoryLogger{}
	}
	if len(cfg.Tariffs) > 0 {
		static, err := pricing.NewStaticTariffProvider(cfg.Tariffs)
		if err != nil {
			logger.Fatal("tariff config error", zap.Error(err))
		}
		tariffs = static
	}
	metrics.Init(db, logger)

	fees, err := pricing.NewFeeSchedule(cfg.FixedFees)
	if err != nil {
		logger.Fatal("fixed fee config error", zap.Error(err))
	}
	renderer, err := documents.NewBillPDFRenderer(cfg.DocumentsRoot)
	if err != nil {
		logger.Fatal("document store error", zap.Error(err))
	}
	notifier := buildNotifier(cfg, logger)

	job, err := billingapp.NewBillGenerationJob(uow, tariffs, fees,
		billingapp.WithGenerationWorkers(cfg.GenerationWorkers),
		billingapp.WithDocumentRenderer(renderer),
		billingapp.WithGenerationNotifier(notifier),
		billingapp.WithGenerationLogger(logger.Named("generation")),
	)
	if err != nil {
		logger.Fatal("bill generation job error", zap.Error(err))
	}
	payments, err := billingapp.NewPaymentService(uow, billingapp.PaymentSettings{
		TestMode:        cfg.Payments.TestMode,
		RedirectBaseURL: cfg.Payments.RedirectBaseURL,
		TopUpMethods:    cfg.Payments.TopUpMethods,
		TopUpMaxAmount:  cfg.Payments.TopUpMaxAmount,
	}, billingapp.WithPaymentNotifier(notifier), billingapp.WithPaymentLogger(logger.Named("payments")))
	if err != nil {
		logger.Fatal("payment service error", zap.Error(err))
	}
	balances, err := billingapp.NewBalanceCalculator(uow, billingapp.SystemClock{})
	if err != nil {
		logger.Fatal("balance calculator error", zap.Error(err))
	}
	analytics, err := billingapp.NewAnalyticsService(uow, logger.Named("analytics"))
	if err != nil {
		logger.Fatal("analytics service error", zap.Error(err))
	}
	bills, err := billingapp.NewBillQueryService(uow)
	if err != nil {
		logger.Fatal("bill query service error", zap.Error(err))
	}

	paymentsHandler, err := billinghttp.NewPaymentsHandler(payments, balances, auditLogger, logger)
	if err != nil {
		logger.Fatal("payments handler error", zap.Error(err))
	}
	adminHandler, err := billinghttp.NewAdminHandler(payments, job, analytics, auditLogger, logger)
	if err != nil {
		logger.Fatal("admin handler error", zap.Error(err))
	}
	billsHandler, err := billinghttp.NewBillsHandler(bills, renderer, logger)
	if err != nil {
		logger.Fatal("bills handler error", zap.Error(err))
	}

	if cfg.Schedule.Enabled {
		scheduler, err := billingapp.NewScheduler(job, cfg.Schedule.Day, cfg.Schedule.At, logger.Named("scheduler"))
		if err != nil {
			logger.Fatal("bill scheduler error", zap.Error(err))
		}
		go scheduler.Start(ctx)
	}

	policy := auth.NewDefaultPolicy("/healthz", "/metrics")
	authMiddleware := auth.NewMiddleware([]byte(cfg.JWTSecret), policy)

	mux := http.NewServeMux()
	mux.Handle("/payments", paymentsHandler)
	mux.Handle("/payments/", paymentsHandler)
	mux.Handle("/bills/", billsHandler)
	mux.Handle("/admin/", adminHandler)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           loggingMiddleware(authMiddleware.Wrap(mux), logger.Named("http")),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("http shutdown error", zap.Error(err))
		}
	}()

	logger.Info("http listening", zap.String("addr", cfg.HTTPAddr))
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal("http server error", zap.Error(err))
	}
	logger.Info("http server stopped")
}

func buildNotifier(cfg config.Config, logger *zap.Logger) billingapp.Notifier {
	senders := []notify.Sender{notify.NewLogNotifier(logger.Named("notify"))}
	if cfg.Notify.WebhookURL != "" {
		channel, err := notify.NewWebhookChannel(cfg.Notify.WebhookURL,
			notify.WithTimeout(cfg.Notify.Timeout),
			notify.WithRetries(cfg.Notify.Retries),
		)
		if err != nil {
			logger.Fatal("notify webhook error", zap.Error(err))
		}
		tpl, err := notify.NewTemplate(cfg.Notify.Template)
		if err != nil {
			logger.Fatal("notify template error", zap.Error(err))
		}
		webhook, err := notify.NewNotifier(channel, tpl, notify.WithDedupeWindow(cfg.Notify.DedupeWindow))
		if err != nil {
			logger.Fatal("notifier error", zap.Error(err))
		}
		senders = append(senders, webhook)
	}
	return notify.NewMultiNotifier(senders...)
}

func loggingMiddleware(next http.Handler, logger *zap.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		resp := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(resp, r)
		elapsed := time.Since(start)
		metrics.ObserveHTTP(routeLabel(r.URL.Path), resp.status, elapsed)
		logger.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", resp.status),
			zap.Duration("elapsed", elapsed),
		)
	})
}

// routeLabel collapses identifiers out of a path to keep metric cardinality bounded.
func routeLabel(path string) string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	switch {
	case len(parts) == 0 || parts[0] == "":
		return "/"
	case parts[0] == "payments" && len(parts) >= 2 && !isStaticSegment(parts[1]):
		parts[1] = ":id"
	case parts[0] == "bills" && len(parts) >= 2 && parts[1] != "mine":
		parts[1] = ":id"
	case parts[0] == "admin" && len(parts) >= 3 && parts[1] == "payments":
		parts[2] = ":id"
	}
	return "/" + strings.Join(parts, "/")
}

func isStaticSegment(segment string) bool {
	switch segment {
	case "mine", "balance", "init":
		return true
	}
	return false
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
