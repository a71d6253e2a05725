package models

// Fill is what the venue reports for an executed market order.
type Fill struct {
	OrderID  string
	Price    float64 // average execution price
	Quantity float64
	Fee      float64
}
