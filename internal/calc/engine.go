// Package calc derives the shift summary from raw meter readings, financial
// adjustments and the price table. It has no side effects.
package calc

import (
	"github.com/shopspring/decimal"

	"fuelshift/backend/internal/domain"
)

// Summarize computes sold volumes, billable volumes, revenue, expected cash
// and variance. Negative meter deltas and test volumes larger than sales are
// floored at zero.
func Summarize(readings []domain.NozzleReading, fin domain.Financials, prices domain.Prices) domain.ShiftSummary {
	petrolSold := decimal.Zero
	dieselSold := decimal.Zero
	for _, n := range readings {
		sold := Sold(n)
		switch n.Type {
		case domain.FuelPetrol:
			petrolSold = petrolSold.Add(sold)
		case domain.FuelDiesel:
			dieselSold = dieselSold.Add(sold)
		}
	}

	netPetrol := floorZero(petrolSold.Sub(dec(fin.TestLitersPetrol)))
	netDiesel := floorZero(dieselSold.Sub(dec(fin.TestLitersDiesel)))

	revenue := netPetrol.Mul(dec(prices.Petrol)).Add(netDiesel.Mul(dec(prices.Diesel)))
	expected := revenue.Sub(dec(fin.Expenses)).Sub(dec(fin.Credits)).Add(dec(fin.Recoveries))
	variance := dec(fin.CashOnHand).Sub(expected)

	return domain.ShiftSummary{
		PetrolSold:        petrolSold.InexactFloat64(),
		DieselSold:        dieselSold.InexactFloat64(),
		NetBillablePetrol: netPetrol.InexactFloat64(),
		NetBillableDiesel: netDiesel.InexactFloat64(),
		TotalRevenue:      revenue.InexactFloat64(),
		NetExpectedCash:   expected.InexactFloat64(),
		Variance:          variance.InexactFloat64(),
		Status:            VarianceStatus(variance.InexactFloat64()),
	}
}

// Sold returns max(0, closing - opening) for a single nozzle.
func Sold(n domain.NozzleReading) decimal.Decimal {
	return floorZero(dec(n.Closing).Sub(dec(n.Opening)))
}

// VarianceStatus labels a variance as excess (>= 0) or shortage.
func VarianceStatus(variance float64) string {
	if variance >= 0 {
		return domain.VarianceStatusExcess
	}
	return domain.VarianceStatusShort
}

// Advisories flags nozzles whose closing meter was entered below the
// opening meter. A zero closing is treated as not yet entered.
func Advisories(readings []domain.NozzleReading) []domain.ReadingAdvisory {
	advisories := make([]domain.ReadingAdvisory, 0)
	for _, n := range readings {
		if n.Closing != 0 && n.Closing < n.Opening {
			advisories = append(advisories, domain.ReadingAdvisory{
				NozzleID: n.ID,
				Field:    "closing",
				Message:  domain.ClosingBelowOpeningAdvisory,
			})
		}
	}
	return advisories
}

func dec(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v)
}

func floorZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
