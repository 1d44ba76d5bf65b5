package domain

// DefaultNozzles returns the fixed nozzle layout every shift starts with.
func DefaultNozzles() []NozzleReading {
	return []NozzleReading{
		{ID: 1, Name: "Nozzle 1", Type: FuelPetrol},
		{ID: 2, Name: "Nozzle 2", Type: FuelPetrol},
		{ID: 3, Name: "Nozzle 3", Type: FuelDiesel},
		{ID: 4, Name: "Nozzle 4", Type: FuelDiesel},
	}
}

func DefaultFinancials() Financials {
	return Financials{}
}

func DefaultPrices() Prices {
	return Prices{Petrol: 280, Diesel: 290}
}
