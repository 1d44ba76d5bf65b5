package domain

import "time"

type FuelType string

const (
	FuelPetrol FuelType = "PETROL"
	FuelDiesel FuelType = "DIESEL"
)

func (f FuelType) Valid() bool {
	return f == FuelPetrol || f == FuelDiesel
}

type NozzleReading struct {
	ID      int      `json:"id"`
	Name    string   `json:"name"`
	Type    FuelType `json:"type"`
	Opening float64  `json:"opening"`
	Closing float64  `json:"closing"`
}

type Financials struct {
	Expenses         float64 `json:"expenses"`
	Credits          float64 `json:"credits"`
	Recoveries       float64 `json:"recoveries"`
	CashOnHand       float64 `json:"cash_on_hand"`
	TestLitersPetrol float64 `json:"test_liters_petrol"`
	TestLitersDiesel float64 `json:"test_liters_diesel"`
}

type Prices struct {
	Petrol float64 `json:"petrol"`
	Diesel float64 `json:"diesel"`
}

// ShiftSummary is derived from readings, financials and prices on every read.
type ShiftSummary struct {
	PetrolSold        float64 `json:"petrol_sold"`
	DieselSold        float64 `json:"diesel_sold"`
	NetBillablePetrol float64 `json:"net_billable_petrol"`
	NetBillableDiesel float64 `json:"net_billable_diesel"`
	TotalRevenue      float64 `json:"total_revenue"`
	NetExpectedCash   float64 `json:"net_expected_cash"`
	Variance          float64 `json:"variance"`
	Status            string  `json:"status"`
}

// HistoryEntry is written once when a shift closes and never modified.
type HistoryEntry struct {
	ID                string  `json:"id"`
	Date              string  `json:"date"`
	Timestamp         string  `json:"timestamp"`
	AttendantName     string  `json:"attendant_name"`
	NetBillablePetrol float64 `json:"net_billable_petrol"`
	NetBillableDiesel float64 `json:"net_billable_diesel"`
	TotalRevenue      float64 `json:"total_revenue"`
	NetExpectedCash   float64 `json:"net_expected_cash"`
	Variance          float64 `json:"variance"`
	Status            string  `json:"status"`
	AISummary         string  `json:"ai_summary,omitempty"`
}

type Stage int

const (
	StageHome Stage = iota
	StagePetrol
	StageDiesel
	StageTests
	StageFinancials
	StageSummary
)

func (s Stage) String() string {
	switch s {
	case StagePetrol:
		return "PETROL"
	case StageDiesel:
		return "DIESEL"
	case StageTests:
		return "TESTS"
	case StageFinancials:
		return "FINANCIALS"
	case StageSummary:
		return "SUMMARY"
	default:
		return "HOME"
	}
}

type ShiftState string

const (
	ShiftStateIdle       ShiftState = "idle"
	ShiftStateInProgress ShiftState = "in_progress"
)

type Period string

const (
	PeriodAll   Period = "ALL"
	PeriodWeek  Period = "WEEK"
	PeriodMonth Period = "MONTH"
)

const (
	VarianceStatusExcess = "EXCESS"
	VarianceStatusShort  = "SHORT"
)

const ClosingBelowOpeningAdvisory = "Closing can't be less than opening"

type ReadingAdvisory struct {
	NozzleID int    `json:"nozzle_id"`
	Field    string `json:"field"`
	Message  string `json:"message"`
}

type ShiftStartRequest struct {
	AttendantName string `json:"attendant_name"`
}

type ReadingUpdateRequest struct {
	Opening *float64 `json:"opening,omitempty"`
	Closing *float64 `json:"closing,omitempty"`
}

type FinancialsUpdateRequest struct {
	Expenses         *float64 `json:"expenses,omitempty"`
	Credits          *float64 `json:"credits,omitempty"`
	Recoveries       *float64 `json:"recoveries,omitempty"`
	CashOnHand       *float64 `json:"cash_on_hand,omitempty"`
	TestLitersPetrol *float64 `json:"test_liters_petrol,omitempty"`
	TestLitersDiesel *float64 `json:"test_liters_diesel,omitempty"`
}

type PricesUpdateRequest struct {
	Petrol *float64 `json:"petrol" validate:"required,gt=0,lte=1000000"`
	Diesel *float64 `json:"diesel" validate:"required,gt=0,lte=1000000"`
}

// ShiftView is the read model of the running session. Receipt renderers
// consume it as-is.
type ShiftView struct {
	State         ShiftState        `json:"state"`
	Stage         Stage             `json:"stage"`
	StageName     string            `json:"stage_name"`
	ShiftID       string            `json:"shift_id,omitempty"`
	AttendantName string            `json:"attendant_name,omitempty"`
	StartedAt     *time.Time        `json:"started_at,omitempty"`
	Readings      []NozzleReading   `json:"readings"`
	Financials    Financials        `json:"financials"`
	Prices        Prices            `json:"prices"`
	Summary       ShiftSummary      `json:"summary"`
	Advisories    []ReadingAdvisory `json:"advisories"`
	AISummary     string            `json:"ai_summary,omitempty"`
}

type ShiftCloseResponse struct {
	Entry HistoryEntry `json:"entry"`
}

// SummaryRequest is the snapshot handed to the external summarizer.
type SummaryRequest struct {
	ShiftID       string          `json:"shift_id"`
	AttendantName string          `json:"attendant_name"`
	Readings      []NozzleReading `json:"readings"`
	Financials    Financials      `json:"financials"`
	Prices        Prices          `json:"prices"`
	Summary       ShiftSummary    `json:"summary"`
}

type AISummaryResponse struct {
	ShiftID   string `json:"shift_id"`
	Available bool   `json:"available"`
	Attached  bool   `json:"attached"`
	Text      string `json:"text,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

type HistoryQuery struct {
	Search string `json:"search"`
	Period Period `json:"period" validate:"omitempty,oneof=ALL WEEK MONTH"`
}

type HistoryReport struct {
	Period       Period         `json:"period"`
	Search       string         `json:"search"`
	Count        int            `json:"count"`
	TotalRevenue float64        `json:"total_revenue"`
	NetVariance  float64        `json:"net_variance"`
	Entries      []HistoryEntry `json:"entries"`
}
