package service

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fuelshift/backend/internal/calc"
	"fuelshift/backend/internal/domain"
	"fuelshift/backend/internal/store"
	"fuelshift/backend/internal/store/memory"
	"fuelshift/backend/internal/summarizer"
)

var fixedNow = time.Date(2026, 3, 31, 18, 30, 0, 0, time.UTC)

func newTestService(t *testing.T, summaries summarizer.Summarizer) (*Service, *store.Documents) {
	t.Helper()
	docs := store.NewDocuments(memory.New(), nil)
	svc := New(docs, summaries, nil, nil, time.UTC)
	svc.now = func() time.Time { return fixedNow }
	require.NoError(t, svc.Load(context.Background()))
	return svc, docs
}

func ptr(v float64) *float64 { return &v }

func startShift(t *testing.T, svc *Service, name string) domain.ShiftView {
	t.Helper()
	view, err := svc.StartShift(context.Background(), domain.ShiftStartRequest{AttendantName: name})
	require.NoError(t, err)
	return view
}

func advanceToSummary(t *testing.T, svc *Service) {
	t.Helper()
	for i := 0; i < 4; i++ {
		_, err := svc.AdvanceStage()
		require.NoError(t, err)
	}
}

func enterScenario(t *testing.T, svc *Service) {
	t.Helper()
	ctx := context.Background()
	for _, id := range []int{1, 2} {
		_, err := svc.UpdateReading(ctx, id, domain.ReadingUpdateRequest{Opening: ptr(100), Closing: ptr(150)})
		require.NoError(t, err)
	}
	for _, id := range []int{3, 4} {
		_, err := svc.UpdateReading(ctx, id, domain.ReadingUpdateRequest{Opening: ptr(200), Closing: ptr(260)})
		require.NoError(t, err)
	}
	_, err := svc.UpdateFinancials(ctx, domain.FinancialsUpdateRequest{
		TestLitersPetrol: ptr(10),
		Expenses:         ptr(500),
		CashOnHand:       ptr(30000),
	})
	require.NoError(t, err)
}

func TestStartShiftRejectsBlankAttendant(t *testing.T) {
	svc, _ := newTestService(t, nil)

	_, err := svc.StartShift(context.Background(), domain.ShiftStartRequest{AttendantName: "   \t"})
	require.ErrorIs(t, err, ErrValidation)

	view := svc.CurrentShift()
	assert.Equal(t, domain.ShiftStateIdle, view.State)
	assert.Equal(t, domain.StageHome, view.Stage)
	assert.Empty(t, view.ShiftID)
}

func TestStartShiftTrimsNameAndRejectsSecondStart(t *testing.T) {
	svc, _ := newTestService(t, nil)

	view := startShift(t, svc, "  Ahmed ")
	assert.Equal(t, "Ahmed", view.AttendantName)
	assert.Equal(t, domain.StagePetrol, view.Stage)
	assert.Equal(t, "PETROL", view.StageName)
	assert.NotEmpty(t, view.ShiftID)
	require.NotNil(t, view.StartedAt)
	assert.Equal(t, domain.DefaultNozzles(), view.Readings)

	_, err := svc.StartShift(context.Background(), domain.ShiftStartRequest{AttendantName: "Bilal"})
	assert.ErrorIs(t, err, ErrShiftInProgress)
}

func TestEditsRequireActiveShift(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()

	_, err := svc.UpdateReading(ctx, 1, domain.ReadingUpdateRequest{Closing: ptr(1)})
	assert.ErrorIs(t, err, ErrNoActiveShift)
	_, err = svc.UpdateFinancials(ctx, domain.FinancialsUpdateRequest{Expenses: ptr(1)})
	assert.ErrorIs(t, err, ErrNoActiveShift)
	_, err = svc.AdvanceStage()
	assert.ErrorIs(t, err, ErrNoActiveShift)
	_, err = svc.CloseShift(ctx)
	assert.ErrorIs(t, err, ErrNoActiveShift)
	_, err = svc.CancelShift(ctx)
	assert.ErrorIs(t, err, ErrNoActiveShift)
	_, err = svc.GenerateSummary(ctx)
	assert.ErrorIs(t, err, ErrNoActiveShift)
}

func TestUpdateReadingClampsAndPersists(t *testing.T) {
	svc, docs := newTestService(t, nil)
	startShift(t, svc, "Ahmed")
	ctx := context.Background()

	view, err := svc.UpdateReading(ctx, 2, domain.ReadingUpdateRequest{Opening: ptr(-40), Closing: ptr(75.5)})
	require.NoError(t, err)
	assert.Equal(t, 0.0, view.Readings[1].Opening)
	assert.Equal(t, 75.5, view.Readings[1].Closing)

	view, err = svc.UpdateReading(ctx, 2, domain.ReadingUpdateRequest{Opening: ptr(100)})
	require.NoError(t, err)
	assert.Equal(t, 75.5, view.Readings[1].Closing)
	require.Len(t, view.Advisories, 1)
	assert.Equal(t, 2, view.Advisories[0].NozzleID)
	assert.Equal(t, domain.ClosingBelowOpeningAdvisory, view.Advisories[0].Message)
	assert.Equal(t, 0.0, view.Summary.PetrolSold)

	stored, err := docs.LoadReadings(ctx)
	require.NoError(t, err)
	assert.Equal(t, view.Readings, stored)

	_, err = svc.UpdateReading(ctx, 9, domain.ReadingUpdateRequest{Closing: ptr(1)})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestOversizedInputsCloseWithFiniteFigures(t *testing.T) {
	svc, docs := newTestService(t, nil)
	ctx := context.Background()
	startShift(t, svc, "Ahmed")

	view, err := svc.UpdateReading(ctx, 1, domain.ReadingUpdateRequest{Closing: ptr(1e307)})
	require.NoError(t, err)
	assert.Equal(t, calc.MaxInput, view.Readings[0].Closing)

	view, err = svc.UpdateFinancials(ctx, domain.FinancialsUpdateRequest{CashOnHand: ptr(math.MaxFloat64)})
	require.NoError(t, err)
	assert.Equal(t, calc.MaxInput, view.Financials.CashOnHand)

	advanceToSummary(t, svc)
	entry, err := svc.CloseShift(ctx)
	require.NoError(t, err)
	for _, v := range []float64{entry.TotalRevenue, entry.NetExpectedCash, entry.Variance} {
		assert.False(t, math.IsInf(v, 0))
		assert.False(t, math.IsNaN(v))
	}

	entries, err := docs.LoadHistory(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, entry, entries[0])
}

func TestStageSequencingSaturates(t *testing.T) {
	svc, _ := newTestService(t, nil)
	startShift(t, svc, "Ahmed")

	view, err := svc.RetreatStage()
	require.NoError(t, err)
	assert.Equal(t, domain.StagePetrol, view.Stage)

	for i := 0; i < 10; i++ {
		view, err = svc.AdvanceStage()
		require.NoError(t, err)
	}
	assert.Equal(t, domain.StageSummary, view.Stage)
	assert.Equal(t, "SUMMARY", view.StageName)

	view, err = svc.RetreatStage()
	require.NoError(t, err)
	assert.Equal(t, domain.StageFinancials, view.Stage)
}

func TestCloseShiftRequiresSummaryStage(t *testing.T) {
	svc, docs := newTestService(t, nil)
	startShift(t, svc, "Ahmed")

	_, err := svc.CloseShift(context.Background())
	require.ErrorIs(t, err, ErrNotAtSummary)

	entries, err := docs.LoadHistory(context.Background())
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.Equal(t, domain.ShiftStateInProgress, svc.CurrentShift().State)
}

func TestCloseShiftScenario(t *testing.T) {
	svc, docs := newTestService(t, nil)
	ctx := context.Background()
	_, err := svc.UpdatePrices(ctx, domain.PricesUpdateRequest{Petrol: ptr(280), Diesel: ptr(290)})
	require.NoError(t, err)

	startShift(t, svc, "Ahmed")
	enterScenario(t, svc)
	advanceToSummary(t, svc)

	view := svc.CurrentShift()
	assert.Equal(t, 100.0, view.Summary.PetrolSold)
	assert.Equal(t, 120.0, view.Summary.DieselSold)

	entry, err := svc.CloseShift(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Ahmed", entry.AttendantName)
	assert.Equal(t, "2026-03-31", entry.Date)
	assert.Equal(t, 90.0, entry.NetBillablePetrol)
	assert.Equal(t, 120.0, entry.NetBillableDiesel)
	assert.Equal(t, 60000.0, entry.TotalRevenue)
	assert.Equal(t, 59500.0, entry.NetExpectedCash)
	assert.Equal(t, -29500.0, entry.Variance)
	assert.Equal(t, domain.VarianceStatusShort, entry.Status)
	assert.Empty(t, entry.AISummary)

	entries, err := docs.LoadHistory(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, entry, entries[0])

	readings, err := docs.LoadReadings(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultNozzles(), readings)
	fin, err := docs.LoadFinancials(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultFinancials(), fin)
	prices, err := docs.LoadPrices(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.Prices{Petrol: 280, Diesel: 290}, prices)

	after := svc.CurrentShift()
	assert.Equal(t, domain.ShiftStateIdle, after.State)
	assert.Equal(t, domain.StageHome, after.Stage)
	assert.Empty(t, after.AttendantName)
}

func TestCloseShiftPrependsUniqueEntries(t *testing.T) {
	svc, docs := newTestService(t, nil)
	ctx := context.Background()

	ids := make(map[string]struct{})
	for _, name := range []string{"Ahmed", "Bilal", "Chand"} {
		startShift(t, svc, name)
		advanceToSummary(t, svc)
		entry, err := svc.CloseShift(ctx)
		require.NoError(t, err)
		ids[entry.ID] = struct{}{}
	}
	assert.Len(t, ids, 3)

	entries, err := docs.LoadHistory(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "Chand", entries[0].AttendantName)
	assert.Equal(t, "Ahmed", entries[2].AttendantName)
	assert.Equal(t, domain.VarianceStatusExcess, svc.CurrentShift().Summary.Status)
}

func TestCancelShiftDiscardsWithoutHistory(t *testing.T) {
	svc, docs := newTestService(t, nil)
	ctx := context.Background()
	startShift(t, svc, "Ahmed")
	enterScenario(t, svc)

	view, err := svc.CancelShift(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.ShiftStateIdle, view.State)
	assert.Equal(t, domain.DefaultNozzles(), view.Readings)

	entries, err := docs.LoadHistory(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestUpdatePricesValidatesAndKeepsOmitted(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()

	_, err := svc.UpdatePrices(ctx, domain.PricesUpdateRequest{Petrol: ptr(0)})
	require.ErrorIs(t, err, ErrValidation)
	_, err = svc.UpdatePrices(ctx, domain.PricesUpdateRequest{Diesel: ptr(-3)})
	require.ErrorIs(t, err, ErrValidation)
	_, err = svc.UpdatePrices(ctx, domain.PricesUpdateRequest{Petrol: ptr(1e307)})
	require.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, domain.DefaultPrices(), svc.Prices())

	prices, err := svc.UpdatePrices(ctx, domain.PricesUpdateRequest{Diesel: ptr(301.5)})
	require.NoError(t, err)
	assert.Equal(t, domain.Prices{Petrol: 280, Diesel: 301.5}, prices)
}

func TestLoadRestoresPersistedPrices(t *testing.T) {
	svc, docs := newTestService(t, nil)
	require.NoError(t, docs.SavePrices(context.Background(), domain.Prices{Petrol: 300, Diesel: 310}))

	fresh := New(docs, nil, nil, nil, time.UTC)
	require.NoError(t, fresh.Load(context.Background()))
	assert.Equal(t, domain.Prices{Petrol: 300, Diesel: 310}, fresh.Prices())
	assert.Equal(t, domain.DefaultPrices(), svc.Prices())
}

type stubSummarizer struct {
	text    string
	err     error
	called  chan struct{}
	release chan struct{}
	once    sync.Once
}

func (s *stubSummarizer) Summarize(ctx context.Context, _ domain.SummaryRequest) (string, error) {
	if s.called != nil {
		s.once.Do(func() { close(s.called) })
	}
	if s.release != nil {
		<-s.release
	}
	return s.text, s.err
}

func TestGenerateSummaryAttachesAndCarriesIntoEntry(t *testing.T) {
	svc, _ := newTestService(t, &stubSummarizer{text: "Short by 29,500."})
	ctx := context.Background()
	view := startShift(t, svc, "Ahmed")

	resp, err := svc.GenerateSummary(ctx)
	require.NoError(t, err)
	assert.True(t, resp.Available)
	assert.True(t, resp.Attached)
	assert.Equal(t, view.ShiftID, resp.ShiftID)
	assert.Equal(t, "Short by 29,500.", svc.CurrentShift().AISummary)

	advanceToSummary(t, svc)
	entry, err := svc.CloseShift(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Short by 29,500.", entry.AISummary)
}

func TestGenerateSummaryFailureIsNotAnError(t *testing.T) {
	svc, _ := newTestService(t, &stubSummarizer{err: summarizer.ErrUnavailable})
	startShift(t, svc, "Ahmed")

	resp, err := svc.GenerateSummary(context.Background())
	require.NoError(t, err)
	assert.False(t, resp.Available)
	assert.False(t, resp.Attached)
	assert.NotEmpty(t, resp.Reason)

	advanceToSummary(t, svc)
	_, err = svc.CloseShift(context.Background())
	assert.NoError(t, err)
}

func TestLateSummaryNeverAttachesToAnotherShift(t *testing.T) {
	stub := &stubSummarizer{text: "late", called: make(chan struct{}), release: make(chan struct{})}
	svc, docs := newTestService(t, stub)
	ctx := context.Background()
	startShift(t, svc, "Ahmed")

	type result struct {
		resp domain.AISummaryResponse
		err  error
	}
	done := make(chan result, 1)
	go func() {
		resp, err := svc.GenerateSummary(ctx)
		done <- result{resp, err}
	}()
	<-stub.called

	advanceToSummary(t, svc)
	entry, err := svc.CloseShift(ctx)
	require.NoError(t, err)
	assert.Empty(t, entry.AISummary)

	next := startShift(t, svc, "Bilal")
	close(stub.release)
	res := <-done

	require.NoError(t, res.err)
	assert.True(t, res.resp.Available)
	assert.False(t, res.resp.Attached)
	assert.NotEqual(t, next.ShiftID, res.resp.ShiftID)
	assert.Empty(t, svc.CurrentShift().AISummary)

	entries, err := docs.LoadHistory(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Empty(t, entries[0].AISummary)
}

func TestSummaryIsDiscardedOnceFiguresChange(t *testing.T) {
	svc, docs := newTestService(t, &stubSummarizer{text: "Drawer is in EXCESS, variance 0"})
	ctx := context.Background()
	startShift(t, svc, "Ahmed")

	resp, err := svc.GenerateSummary(ctx)
	require.NoError(t, err)
	require.True(t, resp.Attached)
	assert.Equal(t, "Drawer is in EXCESS, variance 0", svc.CurrentShift().AISummary)

	enterScenario(t, svc)
	assert.Empty(t, svc.CurrentShift().AISummary)

	advanceToSummary(t, svc)
	entry, err := svc.CloseShift(ctx)
	require.NoError(t, err)
	assert.Equal(t, -29500.0, entry.Variance)
	assert.Equal(t, domain.VarianceStatusShort, entry.Status)
	assert.Empty(t, entry.AISummary)

	entries, err := docs.LoadHistory(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Empty(t, entries[0].AISummary)
}

func TestSummaryReattachesAfterRegenerating(t *testing.T) {
	svc, _ := newTestService(t, &stubSummarizer{text: "Short by 29,500."})
	ctx := context.Background()
	startShift(t, svc, "Ahmed")

	_, err := svc.GenerateSummary(ctx)
	require.NoError(t, err)
	enterScenario(t, svc)
	require.Empty(t, svc.CurrentShift().AISummary)

	resp, err := svc.GenerateSummary(ctx)
	require.NoError(t, err)
	assert.True(t, resp.Attached)

	advanceToSummary(t, svc)
	entry, err := svc.CloseShift(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Short by 29,500.", entry.AISummary)
}

func TestSummaryInFlightDuringEditIsNotAttached(t *testing.T) {
	stub := &stubSummarizer{text: "Drawer is in EXCESS, variance 0", called: make(chan struct{}), release: make(chan struct{})}
	svc, _ := newTestService(t, stub)
	ctx := context.Background()
	startShift(t, svc, "Ahmed")

	done := make(chan domain.AISummaryResponse, 1)
	go func() {
		resp, _ := svc.GenerateSummary(ctx)
		done <- resp
	}()
	<-stub.called

	_, err := svc.UpdateFinancials(ctx, domain.FinancialsUpdateRequest{CashOnHand: ptr(100)})
	require.NoError(t, err)
	close(stub.release)
	resp := <-done

	assert.True(t, resp.Available)
	assert.False(t, resp.Attached)
	assert.Equal(t, "shift figures changed", resp.Reason)
	assert.Empty(t, svc.CurrentShift().AISummary)
}

type failingHistoryBackend struct {
	*memory.Store
}

func (b failingHistoryBackend) Put(ctx context.Context, key string, value []byte) error {
	if key == store.KeyHistory {
		return errors.New("disk full")
	}
	return b.Store.Put(ctx, key, value)
}

func TestCloseShiftKeepsSessionWhenHistoryWriteFails(t *testing.T) {
	docs := store.NewDocuments(failingHistoryBackend{memory.New()}, nil)
	svc := New(docs, nil, nil, nil, time.UTC)
	ctx := context.Background()
	startShift(t, svc, "Ahmed")
	enterScenario(t, svc)
	advanceToSummary(t, svc)

	_, err := svc.CloseShift(ctx)
	require.Error(t, err)

	view := svc.CurrentShift()
	assert.Equal(t, domain.ShiftStateInProgress, view.State)
	assert.Equal(t, -29500.0, view.Summary.Variance)
}

func TestQueryHistoryFiltersAndAggregates(t *testing.T) {
	svc, docs := newTestService(t, nil)
	ctx := context.Background()
	require.NoError(t, docs.SaveHistory(ctx, []domain.HistoryEntry{
		{ID: "c", Date: "2026-03-31", AttendantName: "Ahmed", TotalRevenue: 60000, Variance: -500},
		{ID: "b", Date: "2026-03-20", AttendantName: "bilal", TotalRevenue: 10000, Variance: 200},
		{ID: "a", Date: "2026-01-02", AttendantName: "Ahmed", TotalRevenue: 5000, Variance: 50},
	}))

	report, err := svc.QueryHistory(ctx, domain.HistoryQuery{Search: "AHM"})
	require.NoError(t, err)
	assert.Equal(t, 2, report.Count)
	assert.Equal(t, 65000.0, report.TotalRevenue)

	report, err = svc.QueryHistory(ctx, domain.HistoryQuery{Period: domain.PeriodWeek})
	require.NoError(t, err)
	require.Len(t, report.Entries, 1)
	assert.Equal(t, "c", report.Entries[0].ID)

	report, err = svc.QueryHistory(ctx, domain.HistoryQuery{Search: "nobody"})
	require.NoError(t, err)
	assert.NotNil(t, report.Entries)
	assert.Zero(t, report.Count)
}
