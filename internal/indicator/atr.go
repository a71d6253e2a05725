package indicator

import (
	"math"

	"scalper/internal/models"
)

// TrueRange is max(high-low, |high-prevClose|, |low-prevClose|).
func TrueRange(c models.Candle, prevClose float64) float64 {
	return math.Max(c.High-c.Low, math.Max(math.Abs(c.High-prevClose), math.Abs(c.Low-prevClose)))
}

// ATR needs period+1 candles (oldest first). The first period true ranges are
// averaged, any further ones are Wilder-smoothed.
func ATR(candles []models.Candle, period int) (float64, bool) {
	if period < 1 || len(candles) < period+1 {
		return 0, false
	}

	var sum float64
	for i := 1; i <= period; i++ {
		sum += TrueRange(candles[i], candles[i-1].Close)
	}
	atr := sum / float64(period)

	for i := period + 1; i < len(candles); i++ {
		tr := TrueRange(candles[i], candles[i-1].Close)
		atr = (atr*float64(period-1) + tr) / float64(period)
	}
	return atr, true
}
