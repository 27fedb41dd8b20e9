package execution

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"
)

// RESTBroker places signed spot orders against the exchange REST API.
// It implements BrokerClient for the live bridge.
type RESTBroker struct {
	baseURL    string
	apiKey     string
	secretKey  string
	httpClient *http.Client
	logger     zerolog.Logger
}

func NewRESTBroker(baseURL, apiKey, secretKey string, logger zerolog.Logger) *RESTBroker {
	return &RESTBroker{
		baseURL:    baseURL,
		apiKey:     apiKey,
		secretKey:  secretKey,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger.With().Str("component", "broker").Logger(),
	}
}

type brokerOrderResponse struct {
	OrderID     int64  `json:"orderId"`
	Status      string `json:"status"`
	ExecutedQty string `json:"executedQty"`
	Fills       []struct {
		Price      string `json:"price"`
		Qty        string `json:"qty"`
		Commission string `json:"commission"`
	} `json:"fills"`
}

func (b *RESTBroker) PlaceOrder(ctx context.Context, pair, side, orderType string, qty, price float64) (*BrokerOrder, error) {
	params := url.Values{}
	params.Set("symbol", pair)
	params.Set("side", side)
	params.Set("type", orderType)
	params.Set("quantity", strconv.FormatFloat(qty, 'f', -1, 64))
	if orderType == TypeLimit {
		params.Set("timeInForce", "GTC")
		params.Set("price", strconv.FormatFloat(price, 'f', -1, 64))
	}

	body, err := b.signedRequest(ctx, http.MethodPost, "/api/v3/order", params)
	if err != nil {
		return nil, fmt.Errorf("place order: %w", err)
	}

	var resp brokerOrderResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parse order response: %w", err)
	}
	return orderFromResponse(&resp), nil
}

func (b *RESTBroker) GetOrder(ctx context.Context, pair, orderID string) (*BrokerOrder, error) {
	params := url.Values{}
	params.Set("symbol", pair)
	params.Set("orderId", orderID)

	body, err := b.signedRequest(ctx, http.MethodGet, "/api/v3/order", params)
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}

	var resp struct {
		OrderID     int64  `json:"orderId"`
		Status      string `json:"status"`
		ExecutedQty string `json:"executedQty"`
		Price       string `json:"price"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parse order status: %w", err)
	}

	price, _ := strconv.ParseFloat(resp.Price, 64)
	executed, _ := strconv.ParseFloat(resp.ExecutedQty, 64)
	return &BrokerOrder{
		ID:       strconv.FormatInt(resp.OrderID, 10),
		Status:   resp.Status,
		AvgPrice: price,
		Executed: executed,
	}, nil
}

func (b *RESTBroker) CancelOrder(ctx context.Context, pair, orderID string) error {
	params := url.Values{}
	params.Set("symbol", pair)
	params.Set("orderId", orderID)

	if _, err := b.signedRequest(ctx, http.MethodDelete, "/api/v3/order", params); err != nil {
		return fmt.Errorf("cancel order: %w", err)
	}
	return nil
}

func (b *RESTBroker) signedRequest(ctx context.Context, method, path string, params url.Values) ([]byte, error) {
	params.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))
	params.Set("signature", b.sign(params.Encode()))

	req, err := http.NewRequestWithContext(ctx, method, b.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	req.URL.RawQuery = params.Encode()
	req.Header.Set("X-MBX-APIKEY", b.apiKey)

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("exchange error %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}

func (b *RESTBroker) sign(query string) string {
	mac := hmac.New(sha256.New, []byte(b.secretKey))
	mac.Write([]byte(query))
	return hex.EncodeToString(mac.Sum(nil))
}

// orderFromResponse averages fills into a single price/fee view.
func orderFromResponse(resp *brokerOrderResponse) *BrokerOrder {
	order := &BrokerOrder{
		ID:     strconv.FormatInt(resp.OrderID, 10),
		Status: resp.Status,
	}
	order.Executed, _ = strconv.ParseFloat(resp.ExecutedQty, 64)

	var notional, qty, fee float64
	for _, f := range resp.Fills {
		p, _ := strconv.ParseFloat(f.Price, 64)
		q, _ := strconv.ParseFloat(f.Qty, 64)
		c, _ := strconv.ParseFloat(f.Commission, 64)
		notional += p * q
		qty += q
		fee += c
	}
	if qty > 0 {
		order.AvgPrice = notional / qty
	}
	order.Fee = fee
	return order
}
