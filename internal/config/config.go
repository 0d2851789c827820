package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	billing "housing-ledger/internal/billing/domain"
)

// Config is the service configuration.
type Config struct {
	DatabaseURL       string
	HTTPAddr          string
	JWTSecret         string
	LogLevel          string
	LogFormat         string
	DocumentsRoot     string
	GenerationWorkers int
	Payments          PaymentsConfig
	Notify            NotifyConfig
	Schedule          ScheduleConfig
	Tariffs           []billing.Tariff
	FixedFees         []billing.FixedFee
	// Accounts and Readings seed the in-memory ledger when DATABASE_URL is unset.
	Accounts []billing.Account
	Readings []billing.Reading
}

// PaymentsConfig holds payment policies.
type PaymentsConfig struct {
	TestMode        bool
	RedirectBaseURL string
	TopUpMethods    []billing.PaymentMethod
	TopUpMaxAmount  decimal.Decimal
}

// NotifyConfig configures the webhook notification channel.
type NotifyConfig struct {
	WebhookURL   string
	Template     string
	Timeout      time.Duration
	Retries      int
	DedupeWindow time.Duration
}

// ScheduleConfig configures monthly bill generation.
type ScheduleConfig struct {
	Enabled bool
	Day     int
	At      string
}

// fileConfig is the BILLING_CONFIG yaml layout. Money values are strings so
// they reach decimal parsing without a float round trip.
type fileConfig struct {
	Tariffs []struct {
		Service       string `yaml:"service"`
		Price         string `yaml:"price"`
		EffectiveFrom string `yaml:"effective_from"`
	} `yaml:"tariffs"`
	FixedFees []struct {
		Service     string `yaml:"service"`
		RatePerArea string `yaml:"rate_per_area"`
	} `yaml:"fixed_fees"`
	Payments struct {
		TopUpMethods   []string `yaml:"topup_methods"`
		TopUpMaxAmount string   `yaml:"topup_max_amount"`
	} `yaml:"payments"`
	Notify struct {
		Template string `yaml:"template"`
	} `yaml:"notify"`
	Accounts []struct {
		ID          string `yaml:"id"`
		Number      string `yaml:"number"`
		OwnerUserID string `yaml:"owner_user_id"`
		OwnerName   string `yaml:"owner_name"`
		Area        string `yaml:"area"`
		Address     string `yaml:"address"`
	} `yaml:"accounts"`
	Readings []struct {
		AccountID string `yaml:"account_id"`
		Service   string `yaml:"service"`
		Period    string `yaml:"period"`
		Value     string `yaml:"value"`
	} `yaml:"readings"`
}

// Load reads an optional .env file, the environment and the optional
// BILLING_CONFIG yaml file. Environment values win over file values.
func Load() (Config, error) {
	if path := getenvDefault("ENV_FILE", ".env"); fileExists(path) {
		if err := godotenv.Load(path); err != nil {
			return Config{}, errors.Wrapf(err, "config: load %s", path)
		}
	}

	cfg := Config{
		DatabaseURL:       getenvDefault("DATABASE_URL", getenvDefault("PG_DSN", "")),
		HTTPAddr:          getenvDefault("HTTP_ADDR", ":8080"),
		JWTSecret:         getenvDefault("AUTH_JWT_SECRET", getenvDefault("JWT_SECRET", "")),
		LogLevel:          getenvDefault("LOG_LEVEL", "info"),
		LogFormat:         getenvDefault("LOG_FORMAT", "json"),
		DocumentsRoot:     getenvDefault("DOCUMENTS_ROOT", "var/documents"),
		GenerationWorkers: getenvIntDefault("BILLING_GENERATION_WORKERS", 4),
		Payments: PaymentsConfig{
			TestMode:        getenvBoolDefault("PAYMENTS_TEST_MODE", false),
			RedirectBaseURL: getenvDefault("PAYMENT_REDIRECT_BASE_URL", "/checkout"),
		},
		Notify: NotifyConfig{
			WebhookURL:   os.Getenv("NOTIFY_WEBHOOK_URL"),
			Timeout:      getenvDuration("NOTIFY_TIMEOUT", 10*time.Second),
			Retries:      getenvIntDefault("NOTIFY_RETRIES", 2),
			DedupeWindow: getenvDuration("NOTIFY_DEDUPE_WINDOW", 10*time.Minute),
		},
		Schedule: ScheduleConfig{
			Enabled: getenvBoolDefault("BILLING_SCHEDULE_ENABLED", false),
			Day:     getenvIntDefault("BILLING_SCHEDULE_DAY", 1),
			At:      getenvDefault("BILLING_SCHEDULE_AT", "03:00"),
		},
	}

	var file fileConfig
	if path := os.Getenv("BILLING_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, errors.Wrap(err, "config: read billing config")
		}
		if err := yaml.Unmarshal(data, &file); err != nil {
			return cfg, errors.Wrap(err, "config: parse billing config")
		}
	}
	if err := cfg.applyFile(file); err != nil {
		return cfg, err
	}

	if value := os.Getenv("TOPUP_MAX_AMOUNT"); value != "" {
		amount, err := decimal.NewFromString(value)
		if err != nil {
			return cfg, errors.Wrapf(err, "config: TOPUP_MAX_AMOUNT %q", value)
		}
		cfg.Payments.TopUpMaxAmount = amount
	}
	if methods := splitCSV(os.Getenv("TOPUP_METHODS")); len(methods) > 0 {
		cfg.Payments.TopUpMethods = toMethods(methods)
	}
	if tpl := os.Getenv("NOTIFY_TEMPLATE"); tpl != "" {
		cfg.Notify.Template = tpl
	}
	return cfg, cfg.validate()
}

func (c *Config) applyFile(file fileConfig) error {
	for _, t := range file.Tariffs {
		price, err := decimal.NewFromString(strings.TrimSpace(t.Price))
		if err != nil {
			return errors.Wrapf(err, "config: tariff %s price %q", t.Service, t.Price)
		}
		tariff := billing.Tariff{Service: strings.TrimSpace(t.Service), PricePerUnit: price}
		if t.EffectiveFrom != "" {
			from, err := billing.ParseDay(t.EffectiveFrom)
			if err != nil {
				return errors.Wrapf(err, "config: tariff %s", t.Service)
			}
			tariff.EffectiveFrom = from
		}
		c.Tariffs = append(c.Tariffs, tariff)
	}
	for _, f := range file.FixedFees {
		rate, err := decimal.NewFromString(strings.TrimSpace(f.RatePerArea))
		if err != nil {
			return errors.Wrapf(err, "config: fixed fee %s rate %q", f.Service, f.RatePerArea)
		}
		c.FixedFees = append(c.FixedFees, billing.FixedFee{Service: strings.TrimSpace(f.Service), RatePerArea: rate})
	}
	if len(file.Payments.TopUpMethods) > 0 {
		c.Payments.TopUpMethods = toMethods(file.Payments.TopUpMethods)
	}
	if file.Payments.TopUpMaxAmount != "" {
		amount, err := decimal.NewFromString(file.Payments.TopUpMaxAmount)
		if err != nil {
			return errors.Wrapf(err, "config: topup_max_amount %q", file.Payments.TopUpMaxAmount)
		}
		c.Payments.TopUpMaxAmount = amount
	}
	if file.Notify.Template != "" {
		c.Notify.Template = file.Notify.Template
	}
	return c.applySeed(file)
}

func (c *Config) applySeed(file fileConfig) error {
	for _, a := range file.Accounts {
		id := strings.TrimSpace(a.ID)
		if id == "" {
			return errors.New("config: seed account without id")
		}
		area := decimal.Zero
		if a.Area != "" {
			parsed, err := decimal.NewFromString(strings.TrimSpace(a.Area))
			if err != nil {
				return errors.Wrapf(err, "config: account %s area %q", id, a.Area)
			}
			area = parsed
		}
		c.Accounts = append(c.Accounts, billing.Account{
			ID:          id,
			Number:      strings.TrimSpace(a.Number),
			OwnerUserID: strings.TrimSpace(a.OwnerUserID),
			OwnerName:   a.OwnerName,
			Area:        area,
			Address:     a.Address,
		})
	}
	for _, r := range file.Readings {
		value, err := decimal.NewFromString(strings.TrimSpace(r.Value))
		if err != nil {
			return errors.Wrapf(err, "config: reading %s/%s value %q", r.AccountID, r.Service, r.Value)
		}
		period, err := billing.ParseDay(r.Period)
		if err != nil {
			return errors.Wrapf(err, "config: reading %s/%s", r.AccountID, r.Service)
		}
		c.Readings = append(c.Readings, billing.Reading{
			AccountID:  strings.TrimSpace(r.AccountID),
			Service:    strings.TrimSpace(r.Service),
			Period:     billing.MonthStart(period),
			Value:      value,
			Validated:  true,
			RecordedAt: period,
		})
	}
	return nil
}

func (c Config) validate() error {
	if c.JWTSecret == "" {
		return errors.New("config: AUTH_JWT_SECRET is required")
	}
	if c.Schedule.Day < 1 || c.Schedule.Day > 28 {
		return errors.Newf("config: BILLING_SCHEDULE_DAY %d out of range 1-28", c.Schedule.Day)
	}
	if c.GenerationWorkers < 1 {
		return errors.Newf("config: BILLING_GENERATION_WORKERS must be positive, got %d", c.GenerationWorkers)
	}
	if c.Payments.TopUpMaxAmount.IsNegative() {
		return errors.New("config: top-up limit must not be negative")
	}
	return nil
}

func toMethods(values []string) []billing.PaymentMethod {
	methods := make([]billing.PaymentMethod, 0, len(values))
	for _, value := range values {
		if value = strings.TrimSpace(value); value != "" {
			methods = append(methods, billing.PaymentMethod(value))
		}
	}
	return methods
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvIntDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvBoolDefault(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func splitCSV(value string) []string {
	if value == "" {
		return nil
	}
	var result []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			result = append(result, part)
		}
	}
	return result
}
