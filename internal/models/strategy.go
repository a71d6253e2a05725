package models

type Side string

const (
	SideNone Side = ""
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// PriceUpdate is one pushed price from the ticker stream.
type PriceUpdate struct {
	Pair  string
	Price float64
	At    int64 // unix ms
}
