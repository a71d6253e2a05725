package indicator

// RSI computes the relative strength index over prices (oldest first) with
// Wilder smoothing alpha = 1/period, seeded with the first gain/loss.
// It is undefined when fewer than period prices are given.
func RSI(prices []float64, period int) (float64, bool) {
	if period < 2 || len(prices) < period {
		return 0, false
	}

	alpha := 1.0 / float64(period)
	var avgGain, avgLoss float64
	for i := 1; i < len(prices); i++ {
		gain, loss := 0.0, 0.0
		if change := prices[i] - prices[i-1]; change > 0 {
			gain = change
		} else {
			loss = -change
		}
		if i == 1 {
			avgGain, avgLoss = gain, loss
			continue
		}
		avgGain = (1-alpha)*avgGain + alpha*gain
		avgLoss = (1-alpha)*avgLoss + alpha*loss
	}

	switch {
	case avgLoss == 0 && avgGain == 0:
		return 50, true
	case avgLoss == 0:
		return 100, true
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs), true
}
