package application

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	billing "housing-ledger/internal/billing/domain"
)

// BillGenerator is the part of BillGenerationJob driven by the scheduler.
type BillGenerator interface {
	GenerateBills(ctx context.Context, period *time.Time, force bool) (GenerationResult, error)
}

// Scheduler triggers monthly bill generation on a fixed day and time (UTC).
type Scheduler struct {
	job     BillGenerator
	day     int
	hour    int
	minute  int
	clock   Clock
	tick    time.Duration
	logger  *zap.Logger
	lastRun time.Time
}

// NewScheduler constructs a Scheduler. day is the day of month (1-28) and
// at is an HH:MM time.
func NewScheduler(job BillGenerator, day int, at string, logger *zap.Logger) (*Scheduler, error) {
	if job == nil {
		return nil, errors.New("bill scheduler: nil job")
	}
	if day < 1 || day > 28 {
		return nil, errors.Newf("bill scheduler: day %d out of range 1-28", day)
	}
	hour, minute, err := parseDailyAt(at)
	if err != nil {
		return nil, errors.Wrapf(err, "bill scheduler: invalid time %q", at)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		job:    job,
		day:    day,
		hour:   hour,
		minute: minute,
		clock:  SystemClock{},
		tick:   time.Minute,
		logger: logger,
	}, nil
}

// Start runs the scheduler loop until ctx is done.
func (s *Scheduler) Start(ctx context.Context) {
	if s == nil || s.job == nil {
		return
	}
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := s.clock.Now().UTC()
			if s.shouldRun(now) {
				s.runOnce(ctx, now)
			}
		}
	}
}

func (s *Scheduler) shouldRun(now time.Time) bool {
	if now.Day() != s.day || now.Hour() != s.hour || now.Minute() != s.minute {
		return false
	}
	return !billing.MonthStart(now).Equal(s.lastRun)
}

func (s *Scheduler) runOnce(ctx context.Context, now time.Time) {
	period := billing.MonthStart(now)
	s.lastRun = period
	result, err := s.job.GenerateBills(ctx, &period, false)
	if err != nil {
		s.logger.Error("scheduled bill generation failed", zap.String("period", billing.FormatPeriod(period)), zap.Error(err))
		return
	}
	s.logger.Info("scheduled bill generation done",
		zap.String("period", billing.FormatPeriod(period)),
		zap.Int("created", result.Created),
		zap.Int("skipped", result.Skipped),
		zap.Int("errors", result.Errors),
	)
}

func parseDailyAt(value string) (int, int, error) {
	t, err := time.Parse("15:04", value)
	if err != nil {
		return 0, 0, err
	}
	return t.Hour(), t.Minute(), nil
}
