package domain

// PlaceOrderRequest is sent to the market-access collaborator. Always built
// from a signal that already passed the risk gate — cost never exceeds the
// configured max trade size.
type PlaceOrderRequest struct {
	City     string
	Bracket  string
	Side     Side
	Price    float64
	Quantity float64
}

// OrderFill is the market-access collaborator's confirmation of a placed
// order.
type OrderFill struct {
	OrderID        string
	FilledQuantity float64
	AvgPrice       float64
}
