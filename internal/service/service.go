package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"fuelshift/backend/internal/calc"
	"fuelshift/backend/internal/domain"
	"fuelshift/backend/internal/history"
	"fuelshift/backend/internal/observability"
	"fuelshift/backend/internal/store"
	"fuelshift/backend/internal/summarizer"
	"fuelshift/backend/internal/xid"
)

var (
	ErrValidation      = errors.New("validation failed")
	ErrNoActiveShift   = errors.New("no shift in progress")
	ErrShiftInProgress = errors.New("a shift is already in progress")
	ErrNotAtSummary    = errors.New("shift can only be closed from the summary stage")
)

// Service owns the single shift session. Readings, financials and prices
// live in memory and are written through to the document store on every
// change; the store is written before the in-memory value is replaced.
type Service struct {
	docs      *store.Documents
	summaries summarizer.Summarizer
	logger    *zap.Logger
	metrics   *observability.Metrics
	loc       *time.Location
	now       func() time.Time

	mu         sync.Mutex
	state      domain.ShiftState
	stage      domain.Stage
	shiftID    string
	attendant  string
	startedAt  time.Time
	readings   []domain.NozzleReading
	financials domain.Financials
	prices     domain.Prices
	aiSummary  string

	// aiSummaryKey is the snapshot the attached narrative describes.
	aiSummaryKey string
}

func New(docs *store.Documents, summaries summarizer.Summarizer, logger *zap.Logger, metrics *observability.Metrics, loc *time.Location) *Service {
	if summaries == nil {
		summaries = summarizer.Noop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if loc == nil {
		loc = time.Local
	}
	return &Service{
		docs:       docs,
		summaries:  summaries,
		logger:     logger,
		metrics:    metrics,
		loc:        loc,
		now:        time.Now,
		state:      domain.ShiftStateIdle,
		stage:      domain.StageHome,
		readings:   domain.DefaultNozzles(),
		financials: domain.DefaultFinancials(),
		prices:     domain.DefaultPrices(),
	}
}

// Load reads the persisted readings, financials and prices into the session.
func (s *Service) Load(ctx context.Context) error {
	readings, err := s.docs.LoadReadings(ctx)
	if err != nil {
		return err
	}
	fin, err := s.docs.LoadFinancials(ctx)
	if err != nil {
		return err
	}
	prices, err := s.docs.LoadPrices(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.readings = readings
	s.financials = fin
	s.prices = prices
	return nil
}

func (s *Service) CurrentShift() domain.ShiftView {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewLocked()
}

func (s *Service) StartShift(ctx context.Context, req domain.ShiftStartRequest) (domain.ShiftView, error) {
	name := strings.TrimSpace(req.AttendantName)
	if name == "" {
		return domain.ShiftView{}, fmt.Errorf("%w: attendant name is required", ErrValidation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == domain.ShiftStateInProgress {
		return domain.ShiftView{}, ErrShiftInProgress
	}

	readings := domain.DefaultNozzles()
	fin := domain.DefaultFinancials()
	if err := s.docs.SaveReadings(ctx, readings); err != nil {
		return domain.ShiftView{}, err
	}
	if err := s.docs.SaveFinancials(ctx, fin); err != nil {
		return domain.ShiftView{}, err
	}

	s.readings = readings
	s.financials = fin
	s.state = domain.ShiftStateInProgress
	s.stage = domain.StagePetrol
	s.shiftID = uuid.NewString()
	s.attendant = name
	s.startedAt = s.now()
	s.aiSummary = ""
	s.aiSummaryKey = ""

	s.metrics.ShiftStarted()
	s.logger.Info("shift started", zap.String("shift_id", s.shiftID), zap.String("attendant", name))
	return s.viewLocked(), nil
}

// CancelShift abandons the running shift without writing a history entry.
func (s *Service) CancelShift(ctx context.Context) (domain.ShiftView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != domain.ShiftStateInProgress {
		return domain.ShiftView{}, ErrNoActiveShift
	}

	shiftID := s.shiftID
	s.resetLocked(ctx)
	s.metrics.ShiftCancelled()
	s.logger.Info("shift cancelled", zap.String("shift_id", shiftID))
	return s.viewLocked(), nil
}

func (s *Service) UpdateReading(ctx context.Context, nozzleID int, req domain.ReadingUpdateRequest) (domain.ShiftView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != domain.ShiftStateInProgress {
		return domain.ShiftView{}, ErrNoActiveShift
	}

	idx := -1
	for i, r := range s.readings {
		if r.ID == nozzleID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return domain.ShiftView{}, fmt.Errorf("nozzle %d: %w", nozzleID, store.ErrNotFound)
	}

	next := make([]domain.NozzleReading, len(s.readings))
	copy(next, s.readings)
	if req.Opening != nil {
		next[idx].Opening = calc.ClampInput(*req.Opening)
	}
	if req.Closing != nil {
		next[idx].Closing = calc.ClampInput(*req.Closing)
	}

	if err := s.docs.SaveReadings(ctx, next); err != nil {
		return domain.ShiftView{}, err
	}
	s.readings = next
	return s.viewLocked(), nil
}

func (s *Service) UpdateFinancials(ctx context.Context, req domain.FinancialsUpdateRequest) (domain.ShiftView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != domain.ShiftStateInProgress {
		return domain.ShiftView{}, ErrNoActiveShift
	}

	next := s.financials
	applyClamped(&next.Expenses, req.Expenses)
	applyClamped(&next.Credits, req.Credits)
	applyClamped(&next.Recoveries, req.Recoveries)
	applyClamped(&next.CashOnHand, req.CashOnHand)
	applyClamped(&next.TestLitersPetrol, req.TestLitersPetrol)
	applyClamped(&next.TestLitersDiesel, req.TestLitersDiesel)

	if err := s.docs.SaveFinancials(ctx, next); err != nil {
		return domain.ShiftView{}, err
	}
	s.financials = next
	return s.viewLocked(), nil
}

// AdvanceStage moves to the next entry stage, stopping at SUMMARY. Stages
// never gate business rules other than close.
func (s *Service) AdvanceStage() (domain.ShiftView, error) {
	return s.moveStage(1)
}

// RetreatStage moves back one stage, stopping at PETROL.
func (s *Service) RetreatStage() (domain.ShiftView, error) {
	return s.moveStage(-1)
}

func (s *Service) moveStage(delta int) (domain.ShiftView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != domain.ShiftStateInProgress {
		return domain.ShiftView{}, ErrNoActiveShift
	}
	next := s.stage + domain.Stage(delta)
	if next < domain.StagePetrol {
		next = domain.StagePetrol
	}
	if next > domain.StageSummary {
		next = domain.StageSummary
	}
	s.stage = next
	return s.viewLocked(), nil
}

func (s *Service) Prices() domain.Prices {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.prices
}

// UpdatePrices may be called in any state. Omitted prices keep their value;
// supplied prices must be finite and positive.
func (s *Service) UpdatePrices(ctx context.Context, req domain.PricesUpdateRequest) (domain.Prices, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.prices
	if req.Petrol != nil {
		if !calc.ValidPrice(*req.Petrol) {
			return domain.Prices{}, fmt.Errorf("%w: petrol price must be greater than zero and at most %g", ErrValidation, calc.MaxPrice)
		}
		next.Petrol = *req.Petrol
	}
	if req.Diesel != nil {
		if !calc.ValidPrice(*req.Diesel) {
			return domain.Prices{}, fmt.Errorf("%w: diesel price must be greater than zero and at most %g", ErrValidation, calc.MaxPrice)
		}
		next.Diesel = *req.Diesel
	}

	if err := s.docs.SavePrices(ctx, next); err != nil {
		return domain.Prices{}, err
	}
	s.prices = next
	s.logger.Info("prices updated", zap.Float64("petrol", next.Petrol), zap.Float64("diesel", next.Diesel))
	return next, nil
}

// GenerateSummary asks the summarizer for a narrative of the running shift.
// The lock is not held during the call. The result is attached only if the
// same shift is still in progress with unchanged figures when it arrives.
// Attached text is shown and recorded only while the figures still match.
func (s *Service) GenerateSummary(ctx context.Context) (domain.AISummaryResponse, error) {
	s.mu.Lock()
	if s.state != domain.ShiftStateInProgress {
		s.mu.Unlock()
		return domain.AISummaryResponse{}, ErrNoActiveShift
	}
	req := s.summaryRequestLocked()
	s.mu.Unlock()

	resp := domain.AISummaryResponse{ShiftID: req.ShiftID}
	text, err := s.summaries.Summarize(ctx, req)
	if err != nil {
		s.metrics.SummaryOutcome(observability.SummaryUnavailable)
		s.logger.Warn("ai summary unavailable", zap.String("shift_id", req.ShiftID), zap.Error(err))
		resp.Reason = "summary unavailable"
		return resp, nil
	}
	resp.Available = true
	resp.Text = text

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != domain.ShiftStateInProgress || s.shiftID != req.ShiftID {
		s.metrics.SummaryOutcome(observability.SummaryDropped)
		s.logger.Warn("late ai summary dropped", zap.String("shift_id", req.ShiftID))
		resp.Reason = "shift no longer in progress"
		return resp, nil
	}
	key := summarizer.SnapshotKey(req)
	if key != summarizer.SnapshotKey(s.summaryRequestLocked()) {
		s.metrics.SummaryOutcome(observability.SummaryDropped)
		s.logger.Warn("stale ai summary dropped", zap.String("shift_id", req.ShiftID))
		resp.Reason = "shift figures changed"
		return resp, nil
	}
	s.aiSummary = text
	s.aiSummaryKey = key
	resp.Attached = true
	s.metrics.SummaryOutcome(observability.SummaryGenerated)
	return resp, nil
}

// CloseShift records the running shift in the history log and returns the
// session to idle. The history write must succeed; failing to reset the
// reading and financial documents afterwards is logged only.
func (s *Service) CloseShift(ctx context.Context) (domain.HistoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != domain.ShiftStateInProgress {
		return domain.HistoryEntry{}, ErrNoActiveShift
	}
	if s.stage != domain.StageSummary {
		return domain.HistoryEntry{}, ErrNotAtSummary
	}

	now := s.now()
	summary := calc.Summarize(s.readings, s.financials, s.prices)
	entry := domain.HistoryEntry{
		ID:                xid.NewAt("entry", now),
		Date:              now.In(s.loc).Format(history.DateLayout),
		Timestamp:         now.UTC().Format(time.RFC3339Nano),
		AttendantName:     s.attendant,
		NetBillablePetrol: summary.NetBillablePetrol,
		NetBillableDiesel: summary.NetBillableDiesel,
		TotalRevenue:      summary.TotalRevenue,
		NetExpectedCash:   summary.NetExpectedCash,
		Variance:          summary.Variance,
		Status:            summary.Status,
		AISummary:         s.currentAISummaryLocked(),
	}

	entries, err := s.docs.LoadHistory(ctx)
	if err != nil {
		return domain.HistoryEntry{}, err
	}
	next := make([]domain.HistoryEntry, 0, len(entries)+1)
	next = append(next, entry)
	next = append(next, entries...)
	if err := s.docs.SaveHistory(ctx, next); err != nil {
		return domain.HistoryEntry{}, err
	}

	shiftID := s.shiftID
	s.resetLocked(ctx)
	s.metrics.ShiftClosed(entry.Variance)
	s.logger.Info("shift closed",
		zap.String("shift_id", shiftID),
		zap.String("entry_id", entry.ID),
		zap.String("attendant", entry.AttendantName),
		zap.Float64("variance", entry.Variance),
	)
	return entry, nil
}

func (s *Service) QueryHistory(ctx context.Context, q domain.HistoryQuery) (domain.HistoryReport, error) {
	entries, err := s.docs.LoadHistory(ctx)
	if err != nil {
		return domain.HistoryReport{}, err
	}
	report := history.Query(entries, q, s.now(), s.loc)
	if report.Entries == nil {
		report.Entries = []domain.HistoryEntry{}
	}
	return report, nil
}

func (s *Service) resetLocked(ctx context.Context) {
	readings := domain.DefaultNozzles()
	fin := domain.DefaultFinancials()
	if err := s.docs.SaveReadings(ctx, readings); err != nil {
		s.logger.Warn("failed to reset readings document", zap.Error(err))
	}
	if err := s.docs.SaveFinancials(ctx, fin); err != nil {
		s.logger.Warn("failed to reset financials document", zap.Error(err))
	}

	s.readings = readings
	s.financials = fin
	s.state = domain.ShiftStateIdle
	s.stage = domain.StageHome
	s.shiftID = ""
	s.attendant = ""
	s.startedAt = time.Time{}
	s.aiSummary = ""
	s.aiSummaryKey = ""
}

func (s *Service) summaryRequestLocked() domain.SummaryRequest {
	readings := make([]domain.NozzleReading, len(s.readings))
	copy(readings, s.readings)
	return domain.SummaryRequest{
		ShiftID:       s.shiftID,
		AttendantName: s.attendant,
		Readings:      readings,
		Financials:    s.financials,
		Prices:        s.prices,
		Summary:       calc.Summarize(readings, s.financials, s.prices),
	}
}

// currentAISummaryLocked returns the attached narrative if it still
// describes the session's figures.
func (s *Service) currentAISummaryLocked() string {
	if s.aiSummary == "" || s.aiSummaryKey != summarizer.SnapshotKey(s.summaryRequestLocked()) {
		return ""
	}
	return s.aiSummary
}

func (s *Service) viewLocked() domain.ShiftView {
	readings := make([]domain.NozzleReading, len(s.readings))
	copy(readings, s.readings)

	view := domain.ShiftView{
		State:         s.state,
		Stage:         s.stage,
		StageName:     s.stage.String(),
		ShiftID:       s.shiftID,
		AttendantName: s.attendant,
		Readings:      readings,
		Financials:    s.financials,
		Prices:        s.prices,
		Summary:       calc.Summarize(readings, s.financials, s.prices),
		Advisories:    calc.Advisories(readings),
		AISummary:     s.currentAISummaryLocked(),
	}
	if !s.startedAt.IsZero() {
		startedAt := s.startedAt
		view.StartedAt = &startedAt
	}
	return view
}

func applyClamped(dst *float64, v *float64) {
	if v != nil {
		*dst = calc.ClampInput(*v)
	}
}

