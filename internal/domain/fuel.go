package domain

import "time"

// FuelType is the product whose price is aggregated.
type FuelType string

const (
	FuelE5     FuelType = "e5"
	FuelE10    FuelType = "e10"
	FuelDiesel FuelType = "diesel"
)

// ParseFuelType returns the FuelType named by s.
func ParseFuelType(s string) (FuelType, bool) {
	switch FuelType(s) {
	case FuelE5, FuelE10, FuelDiesel:
		return FuelType(s), true
	}
	return "", false
}

// StationPrices is the raw aggregate a fuel-price provider returns for a
// radius search.
type StationPrices struct {
	Cheapest     float64
	Average      float64
	StationCount int
}

// FuelPrice is the resolved price per litre around a postal code.
type FuelPrice struct {
	Success       bool      `json:"success"`
	Price         float64   `json:"price"`
	CheapestPrice *float64  `json:"cheapestPrice,omitempty"`
	AveragePrice  *float64  `json:"averagePrice,omitempty"`
	StationCount  *int      `json:"stationCount,omitempty"`
	Source        string    `json:"source"`
	Timestamp     time.Time `json:"timestamp"`
}

// NewProviderFuelPrice converts a station aggregate into a FuelPrice. The
// headline price is the average, which is what surcharges are computed from.
func NewProviderFuelPrice(p StationPrices, at time.Time) FuelPrice {
	cheapest, average, count := p.Cheapest, p.Average, p.StationCount
	return FuelPrice{
		Success:       true,
		Price:         average,
		CheapestPrice: &cheapest,
		AveragePrice:  &average,
		StationCount:  &count,
		Source:        SourceProvider,
		Timestamp:     at,
	}
}

// FallbackFuelPrice is the placeholder used when no market data is available.
func FallbackFuelPrice(price float64, at time.Time) FuelPrice {
	return FuelPrice{
		Success:   true,
		Price:     price,
		Source:    SourceFallback,
		Timestamp: at,
	}
}
