package broker

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"hedgexd/pkg/types"
)

// Profile is the authenticated user's Kite account profile.
type Profile struct {
	UserID    string `json:"user_id"`
	UserName  string `json:"user_name"`
	Email     string `json:"email"`
	Broker    string `json:"broker"`
}

// GetProfile returns the logged-in user's account profile.
func (c *Client) GetProfile() (*Profile, error) {
	var p Profile
	if err := c.get("/user/profile", &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// GetMargins returns the equity segment's available cash.
func (c *Client) GetMargins() (*types.Margins, error) {
	var raw struct {
		Equity struct {
			Available struct {
				Cash decimal.Decimal `json:"cash"`
			} `json:"available"`
		} `json:"equity"`
	}
	if err := c.get("/user/margins", &raw); err != nil {
		return nil, err
	}
	return &types.Margins{AvailableCash: raw.Equity.Available.Cash}, nil
}

// GetOrders returns the full order book for the day.
func (c *Client) GetOrders() ([]types.BrokerOrder, error) {
	var raw []struct {
		OrderID string `json:"order_id"`
		Status  string `json:"status"`
	}
	if err := c.get("/orders", &raw); err != nil {
		return nil, err
	}
	out := make([]types.BrokerOrder, len(raw))
	for i, r := range raw {
		out[i] = types.BrokerOrder{OrderID: r.OrderID, Status: r.Status}
	}
	return out, nil
}

// OrderHistoryEntry is one state transition in an order's lifecycle, as
// reported by Kite.
type OrderHistoryEntry struct {
	OrderID        string `json:"order_id"`
	Status         string `json:"status"`
	StatusMessage  string `json:"status_message"`
}

// GetOrderHistory returns the full status transition history for one order.
func (c *Client) GetOrderHistory(orderID string) ([]OrderHistoryEntry, error) {
	var out []OrderHistoryEntry
	if err := c.get("/orders/"+orderID, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// FillRecord is one fill reported by Kite's /trades endpoint.
type FillRecord struct {
	TradeID       string          `json:"trade_id"`
	OrderID       string          `json:"order_id"`
	TradingSymbol string          `json:"tradingsymbol"`
	Exchange      string          `json:"exchange"`
	TransactionType string        `json:"transaction_type"`
	Quantity      int32           `json:"quantity"`
	AveragePrice  decimal.Decimal `json:"average_price"`
}

// GetTrades returns all fills for the day across all orders.
func (c *Client) GetTrades() ([]FillRecord, error) {
	var out []FillRecord
	if err := c.get("/trades", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// BrokerPosition is one row of Kite's net position report.
type BrokerPosition struct {
	TradingSymbol string          `json:"tradingsymbol"`
	Exchange      string          `json:"exchange"`
	Quantity      int32           `json:"quantity"`
	AveragePrice  decimal.Decimal `json:"average_price"`
	PnL           decimal.Decimal `json:"pnl"`
}

// GetPositions returns the broker's authoritative net position report,
// used to cross-check the locally derived ledger, never as its
// replacement.
func (c *Client) GetPositions() ([]BrokerPosition, error) {
	var raw struct {
		Net []BrokerPosition `json:"net"`
	}
	if err := c.get("/portfolio/positions", &raw); err != nil {
		return nil, err
	}
	return raw.Net, nil
}

// Holding is one row of Kite's demat holdings report.
type Holding struct {
	TradingSymbol string          `json:"tradingsymbol"`
	Exchange      string          `json:"exchange"`
	Quantity      int32           `json:"quantity"`
	AveragePrice  decimal.Decimal `json:"average_price"`
}

// GetHoldings returns the user's long-term demat holdings.
func (c *Client) GetHoldings() ([]Holding, error) {
	var out []Holding
	if err := c.get("/portfolio/holdings", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Instrument is one row of Kite's instrument master dump.
type Instrument struct {
	InstrumentToken uint32 `json:"instrument_token"`
	TradingSymbol   string `json:"tradingsymbol"`
	Exchange        string `json:"exchange"`
}

// GetInstruments returns the instrument master, optionally scoped to one
// exchange. The response is CSV over HTTP in the real API; the decoded
// data field here assumes an upstream adapter has normalized it to JSON,
// matching how the rest of this client treats the `data` envelope.
func (c *Client) GetInstruments(exchange string) ([]Instrument, error) {
	path := "/instruments"
	if exchange != "" {
		path = "/instruments/" + exchange
	}
	var out []Instrument
	if err := c.get(path, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Quote is a snapshot quote for one trading symbol.
type Quote struct {
	InstrumentToken uint32          `json:"instrument_token"`
	LastPrice       decimal.Decimal `json:"last_price"`
	Volume          uint32          `json:"volume"`
}

// GetQuote returns quotes for the given "EXCHANGE:SYMBOL" identifiers.
func (c *Client) GetQuote(symbols []string) (map[string]Quote, error) {
	var out map[string]Quote
	path := "/quote?i=" + strings.Join(symbols, "&i=")
	if err := c.get(path, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Candle is one OHLCV bar from the historical data endpoint.
type Candle struct {
	Timestamp string          `json:"timestamp"`
	Open      decimal.Decimal `json:"open"`
	High      decimal.Decimal `json:"high"`
	Low       decimal.Decimal `json:"low"`
	Close     decimal.Decimal `json:"close"`
	Volume    uint32          `json:"volume"`
}

// HistoricalParams selects the instrument, interval, and date range for a
// historical candle query.
type HistoricalParams struct {
	InstrumentToken uint32
	Interval        string // "minute", "day", etc.
	FromDate        string // YYYY-MM-DD
	ToDate          string
}

// GetHistorical returns historical OHLCV candles for one instrument.
func (c *Client) GetHistorical(p HistoricalParams) ([]Candle, error) {
	path := fmt.Sprintf("/instruments/historical/%d/%s?from=%s&to=%s", p.InstrumentToken, p.Interval, p.FromDate, p.ToDate)
	var raw struct {
		Candles []Candle `json:"candles"`
	}
	if err := c.get(path, &raw); err != nil {
		return nil, err
	}
	return raw.Candles, nil
}

// PlaceOrder submits an order with product=MIS (intraday), validity=DAY,
// variety=regular unless overridden on the request. In dry-run mode the
// order is logged and not sent; the response carries an empty OrderID.
func (c *Client) PlaceOrder(ctx context.Context, req types.OrderRequest) (*types.OrderResponse, error) {
	if c.dryRun {
		c.logger.Info("dry-run: order not sent to broker",
			"symbol", req.Symbol, "side", req.Side, "qty", req.Qty)
		return &types.OrderResponse{}, nil
	}
	variety := req.Variety
	if variety == "" {
		variety = "regular"
	}
	orderType := req.OrderType
	if orderType == "" {
		orderType = "MARKET"
	}

	form := map[string]string{
		"tradingsymbol":    req.Symbol,
		"exchange":         req.Exchange,
		"transaction_type": kiteTransactionType(req.Side),
		"quantity":         fmt.Sprintf("%d", req.Qty),
		"order_type":       orderType,
		"product":          orDefault(req.Product, "MIS"),
		"validity":         orDefault(req.Validity, "DAY"),
	}
	if orderType == "LIMIT" {
		form["price"] = req.Price.String()
	}

	var result struct {
		OrderID string `json:"order_id"`
	}
	if err := c.do(ctx, "POST", "/orders/"+variety, form, &result); err != nil {
		return nil, err
	}
	return &types.OrderResponse{OrderID: result.OrderID}, nil
}

// ModifyOrder updates a pending order's price and/or quantity.
func (c *Client) ModifyOrder(ctx context.Context, variety, orderID string, price decimal.Decimal, qty int32) error {
	form := map[string]string{
		"quantity": fmt.Sprintf("%d", qty),
		"price":    price.String(),
	}
	return c.do(ctx, "PUT", "/orders/"+variety+"/"+orderID, form, nil)
}

// CancelOrder cancels a pending order.
func (c *Client) CancelOrder(ctx context.Context, orderID, variety string) error {
	return c.do(ctx, "DELETE", "/orders/"+variety+"/"+orderID, nil, nil)
}

func kiteTransactionType(side types.Side) string {
	if side == types.Sell {
		return "SELL"
	}
	return "BUY"
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
