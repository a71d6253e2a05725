package decision

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// explain records why the cycle did nothing and, with EXPLAIN on, logs it.
func (e *Engine) explain(rep *Report, reason string) {
	if rep.Reason == "" {
		rep.Reason = reason
	}
	if !e.params.Explain {
		return
	}
	e.log.Info("no trade",
		zap.String("pair", rep.Pair),
		zap.String("why", reason),
		zap.String("indicators", formatIndicators(rep)),
	)
}

func (e *Engine) noSignalReason(rep *Report) string {
	var why []string
	if rep.RSI > e.params.BuySignal && rep.RSI < e.params.SellSignal {
		why = append(why, fmt.Sprintf("RSI %.2f between %.1f and %.1f", rep.RSI, e.params.BuySignal, e.params.SellSignal))
	}
	if rep.RSI <= e.params.BuySignal && rep.Price <= rep.EMA {
		why = append(why, fmt.Sprintf("RSI oversold but price %s not above EMA %s", fmtPrice(rep.Price), fmtPrice(rep.EMA)))
	}
	if rep.RSI >= e.params.SellSignal && rep.Price >= rep.EMA {
		why = append(why, fmt.Sprintf("RSI overbought but price %s not below EMA %s", fmtPrice(rep.Price), fmtPrice(rep.EMA)))
	}
	if len(why) == 0 {
		return "no signal"
	}
	return strings.Join(why, "; ")
}

func formatIndicators(rep *Report) string {
	var b strings.Builder
	if rep.RSIOK {
		fmt.Fprintf(&b, "RSI=%.2f", rep.RSI)
	} else {
		b.WriteString("RSI=n/a")
	}
	if rep.EMAOK {
		fmt.Fprintf(&b, " EMA=%s", fmtPrice(rep.EMA))
	} else {
		b.WriteString(" EMA=n/a")
	}
	if rep.ATROK {
		fmt.Fprintf(&b, " ATR=%s", fmtPrice(rep.ATR))
	}
	return b.String()
}

// fmtPrice uses 8 decimals for low priced assets.
func fmtPrice(v float64) string {
	if v < 1 {
		return fmt.Sprintf("%.8f", v)
	}
	return fmt.Sprintf("%.2f", v)
}
