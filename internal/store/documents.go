package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"fuelshift/backend/internal/calc"
	"fuelshift/backend/internal/domain"
)

// Documents reads and writes the four persisted documents over a Backend.
// Missing or corrupt documents decode to their defaults.
type Documents struct {
	backend Backend
	logger  *zap.Logger
}

func NewDocuments(backend Backend, logger *zap.Logger) *Documents {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Documents{backend: backend, logger: logger}
}

func (d *Documents) LoadReadings(ctx context.Context) ([]domain.NozzleReading, error) {
	raw, err := d.load(ctx, KeyReadings)
	if err != nil {
		return nil, err
	}
	readings, ok := DecodeReadings(raw)
	d.warnFallback(KeyReadings, raw, ok)
	return readings, nil
}

func (d *Documents) SaveReadings(ctx context.Context, readings []domain.NozzleReading) error {
	return d.save(ctx, KeyReadings, readings)
}

func (d *Documents) LoadFinancials(ctx context.Context) (domain.Financials, error) {
	raw, err := d.load(ctx, KeyFinancials)
	if err != nil {
		return domain.Financials{}, err
	}
	fin, ok := DecodeFinancials(raw)
	d.warnFallback(KeyFinancials, raw, ok)
	return fin, nil
}

func (d *Documents) SaveFinancials(ctx context.Context, fin domain.Financials) error {
	return d.save(ctx, KeyFinancials, fin)
}

func (d *Documents) LoadPrices(ctx context.Context) (domain.Prices, error) {
	raw, err := d.load(ctx, KeyPrices)
	if err != nil {
		return domain.Prices{}, err
	}
	prices, ok := DecodePrices(raw)
	d.warnFallback(KeyPrices, raw, ok)
	return prices, nil
}

func (d *Documents) SavePrices(ctx context.Context, prices domain.Prices) error {
	return d.save(ctx, KeyPrices, prices)
}

func (d *Documents) LoadHistory(ctx context.Context) ([]domain.HistoryEntry, error) {
	raw, err := d.load(ctx, KeyHistory)
	if err != nil {
		return nil, err
	}
	entries, ok := DecodeHistory(raw)
	d.warnFallback(KeyHistory, raw, ok)
	return entries, nil
}

func (d *Documents) SaveHistory(ctx context.Context, entries []domain.HistoryEntry) error {
	if entries == nil {
		entries = []domain.HistoryEntry{}
	}
	return d.save(ctx, KeyHistory, entries)
}

func (d *Documents) load(ctx context.Context, key string) ([]byte, error) {
	raw, err := d.backend.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", key, err)
	}
	return raw, nil
}

func (d *Documents) save(ctx context.Context, key string, value any) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := d.backend.Put(ctx, key, payload); err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}

func (d *Documents) warnFallback(key string, raw []byte, ok bool) {
	if ok || len(raw) == 0 {
		return
	}
	d.logger.Warn("corrupt document replaced by default", zap.String("key", key), zap.Int("bytes", len(raw)))
}

// DecodeReadings returns the decoded readings and true, or the default
// nozzle layout and false when raw is empty or malformed.
func DecodeReadings(raw []byte) ([]domain.NozzleReading, bool) {
	var readings []domain.NozzleReading
	if len(raw) == 0 || json.Unmarshal(raw, &readings) != nil || len(readings) == 0 {
		return domain.DefaultNozzles(), false
	}
	seen := make(map[int]struct{}, len(readings))
	for i := range readings {
		if !readings[i].Type.Valid() {
			return domain.DefaultNozzles(), false
		}
		if _, dup := seen[readings[i].ID]; dup {
			return domain.DefaultNozzles(), false
		}
		seen[readings[i].ID] = struct{}{}
		readings[i].Opening = calc.ClampInput(readings[i].Opening)
		readings[i].Closing = calc.ClampInput(readings[i].Closing)
	}
	return readings, true
}

func DecodeFinancials(raw []byte) (domain.Financials, bool) {
	var fin domain.Financials
	if len(raw) == 0 || json.Unmarshal(raw, &fin) != nil {
		return domain.DefaultFinancials(), false
	}
	fin.Expenses = calc.ClampInput(fin.Expenses)
	fin.Credits = calc.ClampInput(fin.Credits)
	fin.Recoveries = calc.ClampInput(fin.Recoveries)
	fin.CashOnHand = calc.ClampInput(fin.CashOnHand)
	fin.TestLitersPetrol = calc.ClampInput(fin.TestLitersPetrol)
	fin.TestLitersDiesel = calc.ClampInput(fin.TestLitersDiesel)
	return fin, true
}

func DecodePrices(raw []byte) (domain.Prices, bool) {
	var prices domain.Prices
	if len(raw) == 0 || json.Unmarshal(raw, &prices) != nil {
		return domain.DefaultPrices(), false
	}
	if !calc.ValidPrice(prices.Petrol) || !calc.ValidPrice(prices.Diesel) {
		return domain.DefaultPrices(), false
	}
	return prices, true
}

func DecodeHistory(raw []byte) ([]domain.HistoryEntry, bool) {
	var entries []domain.HistoryEntry
	if len(raw) == 0 || json.Unmarshal(raw, &entries) != nil {
		return []domain.HistoryEntry{}, false
	}
	if entries == nil {
		entries = []domain.HistoryEntry{}
	}
	for i := range entries {
		if entries[i].Status == "" {
			entries[i].Status = calc.VarianceStatus(entries[i].Variance)
		}
	}
	return entries, true
}
