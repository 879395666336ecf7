package rest

// Wire types for the futures venue's REST API. Numeric fields arrive as
// quoted decimal strings.

type tickerResponse struct {
	Symbol      string  `json:"symbol"`
	LastPrice   float64 `json:"lastPrice,string"`
	MarkPrice   float64 `json:"markPrice,string"`
	FundingRate float64 `json:"fundingRate,string"`
	Timestamp   int64   `json:"ts"`
}

type positionResponse struct {
	Symbol     string  `json:"symbol"`
	Size       float64 `json:"size,string"`
	EntryPrice float64 `json:"entryPrice,string"`
	Leverage   int     `json:"leverage"`
	Margin     float64 `json:"margin,string"`
	OpenedAt   int64   `json:"openedAt"`
	UpdatedAt  int64   `json:"updatedAt"`
}

type orderRequest struct {
	Symbol     string `json:"symbol"`
	Side       string `json:"side"`
	Quantity   string `json:"quantity"`
	Leverage   int    `json:"leverage,omitempty"`
	ReduceOnly bool   `json:"reduceOnly"`
	OrderType  string `json:"orderType"`
}

type orderResponse struct {
	OrderID   string  `json:"orderId"`
	Symbol    string  `json:"symbol"`
	Side      string  `json:"side"`
	Quantity  float64 `json:"quantity,string"`
	FilledQty float64 `json:"filledQty,string"`
	AvgPrice  float64 `json:"avgPrice,string"`
	Fee       float64 `json:"fee,string"`
	Status    string  `json:"status"`
	CreatedAt int64   `json:"createdAt"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
