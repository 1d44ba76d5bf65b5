package httpapi

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"fuelshift/backend/internal/calc"
	"fuelshift/backend/internal/domain"
)

var historyCSVHeader = []string{
	"id", "date", "timestamp", "attendant_name",
	"net_billable_petrol", "net_billable_diesel",
	"total_revenue", "net_expected_cash", "variance", "status", "ai_summary",
}

// writeHistoryCSV writes one row per entry followed by a totals row whose
// id cell carries the entry count. Amounts are plain two-decimal numbers.
func writeHistoryCSV(w io.Writer, report domain.HistoryReport) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(historyCSVHeader); err != nil {
		return err
	}
	for _, e := range report.Entries {
		row := []string{
			csvText(e.ID), csvText(e.Date), csvText(e.Timestamp), csvText(e.AttendantName),
			formatAmount(e.NetBillablePetrol), formatAmount(e.NetBillableDiesel),
			formatAmount(e.TotalRevenue), formatAmount(e.NetExpectedCash), formatAmount(e.Variance),
			csvText(entryStatus(e)), csvText(e.AISummary),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	totals := []string{
		fmt.Sprintf("total (%d)", report.Count), "", "", "",
		"", "", formatAmount(report.TotalRevenue), "", formatAmount(report.NetVariance), "", "",
	}
	if err := cw.Write(totals); err != nil {
		return err
	}
	cw.Flush()
	return cw.Error()
}

func entryStatus(e domain.HistoryEntry) string {
	if e.Status != "" {
		return e.Status
	}
	return calc.VarianceStatus(e.Variance)
}

func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

// csvText stops spreadsheets from evaluating free text as a formula.
func csvText(s string) string {
	if s != "" && strings.ContainsRune("=+-@\t\r", rune(s[0])) {
		return "'" + s
	}
	return s
}
