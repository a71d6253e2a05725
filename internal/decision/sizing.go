package decision

import (
	"fmt"

	"github.com/shopspring/decimal"

	"scalper/internal/models"
)

// StopPrice is entry - atr*multiplier when ATR is defined, otherwise the
// fallback entry*(1+stopLossPct/100) with a negative stopLossPct.
func StopPrice(entry, atr float64, atrOK bool, multiplier, stopLossPct float64) float64 {
	if atrOK {
		return entry - atr*multiplier
	}
	return entry * (1 + stopLossPct/100)
}

// ProfitPct is the net result of selling qty at price after fees, in percent of the entry cost.
func ProfitPct(entry, price, qty, feePct float64) float64 {
	cost := entry * qty
	if cost == 0 {
		return 0
	}
	return (Profit(entry, price, qty, feePct) / cost) * 100
}

// Profit is price*qty*(1-fee/100) - entry*qty.
func Profit(entry, price, qty, feePct float64) float64 {
	return price*qty*(1-feePct/100) - entry*qty
}

// Sizing holds the inputs of the risk-based entry quantity.
type Sizing struct {
	TotalBudget   float64
	RiskPct       float64 // fraction, 0.01 = 1%
	ATR           float64
	ATRMultiplier float64
	PairBudget    float64
	MaxTrades     int
	Price         float64
}

// Quantity returns min(risk/(ATR*multiplier), (pairBudget/maxTrades)/price)
// together with both candidates. A non-positive risk per unit or price yields 0.
func (s Sizing) Quantity() (final, raw, capped float64) {
	riskPerUnit := s.ATR * s.ATRMultiplier
	if riskPerUnit <= 0 || s.Price <= 0 || s.MaxTrades < 1 {
		return 0, 0, 0
	}
	raw = s.TotalBudget * s.RiskPct / riskPerUnit
	capped = s.PairBudget / float64(s.MaxTrades) / s.Price
	final = raw
	if capped < final {
		final = capped
	}
	return final, raw, capped
}

// RoundQuantity rounds qty down to the venue precision and rejects what the
// venue would not accept. A non-empty reason means no order must be sent.
func RoundQuantity(qty float64, c models.Constraints) (float64, string) {
	if qty <= 0 {
		return 0, fmt.Sprintf("quantity %v is not positive", qty)
	}
	rounded, _ := decimal.NewFromFloat(qty).RoundDown(c.QuantityPrecision).Float64()
	if rounded <= 0 {
		return 0, fmt.Sprintf("quantity %v rounds to zero at %d decimals", qty, c.QuantityPrecision)
	}
	if rounded < c.MinQuantity {
		return 0, fmt.Sprintf("quantity %v below venue minimum %v", rounded, c.MinQuantity)
	}
	return rounded, ""
}
