package indicator

// EMA applies alpha = 2/(period+1) recursively over prices (oldest first),
// seeded with the oldest sample. Undefined until period prices are present.
func EMA(prices []float64, period int) (float64, bool) {
	if period < 1 || len(prices) < period {
		return 0, false
	}

	alpha := 2.0 / (float64(period) + 1)
	value := prices[0]
	for _, p := range prices[1:] {
		value = alpha*p + (1-alpha)*value
	}
	return value, true
}
