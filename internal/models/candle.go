package models

import "time"

type Candle struct {
	Start  time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// Constraints are the venue limits for order quantities on a market.
type Constraints struct {
	MinQuantity       float64
	QuantityPrecision int32
}
