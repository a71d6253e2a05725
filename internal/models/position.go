package models

import (
	"bytes"

	"github.com/bytedance/sonic"
)

// Position is an open long position. It is never mutated once recorded:
// the ledger only checks it exists or deletes it.
type Position struct {
	ID       string  `json:"id"`
	Pair     string  `json:"-"`
	Price    float64 `json:"price"`
	Quantity float64 `json:"quantity"`
	OpenedAt ISOTime `json:"timestamp"`
}

// Cost is the quote amount paid on entry.
func (p Position) Cost() float64 { return p.Price * p.Quantity }

// Positions is the per-pair value in portfolio.json. It also reads the
// legacy single-object form {"price":..,"quantity":..,"timestamp":..}.
type Positions []Position

func (ps *Positions) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '{' {
		var p Position
		if err := sonic.Unmarshal(b, &p); err != nil {
			return err
		}
		*ps = Positions{p}
		return nil
	}
	var list []Position
	if err := sonic.Unmarshal(b, &list); err != nil {
		return err
	}
	*ps = list
	return nil
}

// Portfolio maps pair -> open positions.
type Portfolio map[string]Positions

// Clone returns a deep copy so callers never share the ledger's slices.
func (p Portfolio) Clone() Portfolio {
	out := make(Portfolio, len(p))
	for pair, ps := range p {
		cp := make(Positions, len(ps))
		copy(cp, ps)
		out[pair] = cp
	}
	return out
}

// Count returns the number of open positions for pair.
func (p Portfolio) Count(pair string) int { return len(p[pair]) }
