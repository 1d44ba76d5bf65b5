package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"fuelshift/backend/internal/domain"
	"fuelshift/backend/internal/observability"
)

type HistoryQuerier interface {
	QueryHistory(ctx context.Context, q domain.HistoryQuery) (domain.HistoryReport, error)
}

// Scheduler runs the periodic history digest.
type Scheduler struct {
	cron    *cron.Cron
	spec    string
	history HistoryQuerier
	metrics *observability.Metrics
	logger  *zap.Logger
	printer *message.Printer
}

func New(spec string, history HistoryQuerier, metrics *observability.Metrics, loc *time.Location, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if loc == nil {
		loc = time.Local
	}
	return &Scheduler{
		cron:    cron.New(cron.WithLocation(loc)),
		spec:    spec,
		history: history,
		metrics: metrics,
		logger:  logger,
		printer: message.NewPrinter(language.English),
	}
}

// Start registers the digest job and starts the cron runner. An empty
// schedule leaves the scheduler idle.
func (s *Scheduler) Start() error {
	if s.spec == "" {
		s.logger.Info("history digest disabled")
		return nil
	}
	if _, err := s.cron.AddFunc(s.spec, s.runDigest); err != nil {
		return err
	}
	s.logger.Info("starting scheduler", zap.String("digest_cron", s.spec))
	s.cron.Start()
	return nil
}

// Stop waits for a running digest to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) runDigest() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if _, err := s.Digest(ctx); err != nil {
		s.logger.Error("history digest failed", zap.Error(err))
	}
}

// Digest aggregates the trailing week of closed shifts, logs it and
// publishes it as gauges.
func (s *Scheduler) Digest(ctx context.Context) (domain.HistoryReport, error) {
	report, err := s.history.QueryHistory(ctx, domain.HistoryQuery{Period: domain.PeriodWeek})
	if err != nil {
		return domain.HistoryReport{}, err
	}

	s.metrics.RecordDigest(string(report.Period), report.TotalRevenue, report.NetVariance)
	s.logger.Info("history digest",
		zap.String("period", string(report.Period)),
		zap.Int("shifts", report.Count),
		zap.String("total_revenue", s.printer.Sprintf("%.2f", report.TotalRevenue)),
		zap.String("net_variance", s.printer.Sprintf("%.2f", report.NetVariance)),
	)
	return report, nil
}
