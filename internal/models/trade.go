package models

// Trade is one line of the append-only trades journal.
type Trade struct {
	Pair      string   `json:"pair"`
	Type      Side     `json:"type"`
	Price     float64  `json:"price"`
	Quantity  float64  `json:"quantity"`
	Profit    *float64 `json:"profit"`
	Fee       *float64 `json:"fee"`
	Timestamp ISOTime  `json:"timestamp"`
}

func Float(v float64) *float64 { return &v }
