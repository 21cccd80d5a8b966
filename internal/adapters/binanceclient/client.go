package binanceclient

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"confluenceBot/internal/domain"
	"confluenceBot/internal/ports"

	"github.com/adshao/go-binance/v2/common"
	"github.com/adshao/go-binance/v2/futures"
)

const (
	// Base URLs
	baseURLProduction = "https://fapi.binance.com"
	baseURLTestnet    = "https://testnet.binancefuture.com"

	maxKlinesPerRequest = 1500
)

// Client implements ports.ExchangeClient and ports.MarketData on Binance USD-M futures.
type Client struct {
	futuresClient        *futures.Client
	logger               ports.Logger
	reconnectDelay       time.Duration
	maxReconnectAttempts int

	now         func() time.Time
	serveKlines func(symbol, interval string, handler futures.WsKlineHandler, errHandler futures.ErrHandler) (chan struct{}, chan struct{}, error)
}

// Config holds configuration specific to the Binance client adapter.
type Config struct {
	APIKey               string
	SecretKey            string
	UseTestnet           bool
	Logger               ports.Logger
	ReconnectDelay       time.Duration // Reconnect delay (e.g., 1 * time.Second)
	MaxReconnectAttempts int           // Max attempts before giving up
}

// New creates a new Binance client adapter.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Binance client")
	}
	if cfg.APIKey == "" || cfg.SecretKey == "" {
		cfg.Logger.Warn(context.Background(), "APIKey or SecretKey is empty. Client will only work for public endpoints.")
		// Allow creation for public endpoints, but log warning.
		// Authentication errors will occur if private endpoints are called.
	}

	client := futures.NewClient(cfg.APIKey, cfg.SecretKey)

	// Set BaseURL directly instead of using global futures.UseTestnet
	if cfg.UseTestnet {
		client.BaseURL = baseURLTestnet
		cfg.Logger.Info(context.Background(), "Binance client configured for Testnet", map[string]interface{}{"baseURL": client.BaseURL})
	} else {
		client.BaseURL = baseURLProduction
		cfg.Logger.Info(context.Background(), "Binance client configured for Production", map[string]interface{}{"baseURL": client.BaseURL})
	}

	// Default reconnect settings if not provided
	reconnectDelay := cfg.ReconnectDelay
	if reconnectDelay <= 0 {
		reconnectDelay = 1 * time.Second
	}
	maxAttempts := cfg.MaxReconnectAttempts
	if maxAttempts <= 0 {
		maxAttempts = 10
	}

	return &Client{
		futuresClient:        client,
		logger:               cfg.Logger,
		reconnectDelay:       reconnectDelay,
		maxReconnectAttempts: maxAttempts,
		now:                  time.Now,
		serveKlines:          futures.WsKlineServe,
	}, nil
}

// handleError translates common Binance API errors into standardized ports errors.
func (c *Client) handleError(ctx context.Context, err error, operation string) error {
	if err == nil {
		return nil
	}

	fields := map[string]interface{}{"operation": operation, "originalError": err.Error()}

	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		fields["apiErrorCode"] = apiErr.Code
		fields["apiErrorMessage"] = apiErr.Message

		// Map specific Binance error codes to custom errors
		var mappedErr error
		switch apiErr.Code {
		case -1003: // Too many requests
			mappedErr = ports.ErrRateLimited
		case -1021: // Timestamp for this request is outside of the recvWindow
			mappedErr = ports.ErrTimeout // Or a specific timing error
		case -1022: // Signature for this request is not valid
			mappedErr = ports.ErrAuthenticationFailed
		case -1101, -1102, -1103, -1104, -1105, -1106, -1111, -1115, -1116, -1117, -1120, -1121, -1125, -1127, -1128, -1130: // Parameter/Request format errors
			mappedErr = ports.ErrInvalidRequest
		case -2010: // New order rejected
			mappedErr = ports.ErrOrderPlacementFailed
		case -2011: // Cancel order rejected
			mappedErr = ports.ErrOrderCancelFailed
		case -2013: // Order does not exist
			mappedErr = ports.ErrOrderNotFound
		case -2014: // API-key format invalid
			mappedErr = ports.ErrInvalidAPIKeys
		case -2015: // Invalid API-key, IP, or permissions for action
			mappedErr = ports.ErrInvalidAPIKeys // Could also be PermissionDenied
		case -2019: // Margin is insufficient
			mappedErr = ports.ErrInsufficientFunds
		case -2022: // ReduceOnly Order is rejected
			mappedErr = ports.ErrOrderPlacementFailed // Or a more specific error
		case -3005: // Insufficient balance
			mappedErr = ports.ErrInsufficientFunds
		case -3041: // Position is not sufficient
			mappedErr = ports.ErrInsufficientFunds
		case -4003: // Qty not within permissible range
			mappedErr = ports.ErrInvalidRequest
		case -4014: // Price not within permissible range
			mappedErr = ports.ErrInvalidRequest
		case -4015: // Leverage is not valid
			mappedErr = ports.ErrInvalidRequest
		case -4044: // Position not found
			mappedErr = ports.ErrPositionNotFound
		case -4047: // Exceeded the maximum allowable position at current leverage.
			mappedErr = ports.ErrInsufficientFunds // Or a specific position limit error
		default:
			// General classification for unmapped API errors
			mappedErr = ports.ErrUnknown
		}
		finalErr := fmt.Errorf("%s failed: %w: %w", operation, mappedErr, err)
		c.logger.Error(ctx, err, fmt.Sprintf("%s failed with API error", operation), fields)
		return finalErr
	}

	// Handle non-API errors (network, context cancellation, etc.)
	var finalErr error
	if errors.Is(err, context.DeadlineExceeded) {
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrTimeout, err)
	} else if errors.Is(err, context.Canceled) {
		finalErr = fmt.Errorf("%s operation canceled: %w: %w", operation, ports.ErrContextCanceled, err)
	} else if strings.Contains(err.Error(), "use of closed network connection") ||
		strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "connection reset by peer") {
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrConnectionFailed, err)
	} else {
		// Default for other errors (e.g., parsing errors within the adapter)
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrUnknown, err)
	}

	c.logger.Error(ctx, err, fmt.Sprintf("%s failed", operation), fields)
	return finalErr
}

// SetServerTime synchronizes the client's time with the server's time.
func (c *Client) SetServerTime(ctx context.Context) error {
	op := "SetServerTime"
	_, err := c.futuresClient.NewSetServerTimeService().Do(ctx)
	if err != nil {
		return c.handleError(ctx, err, op)
	}
	c.logger.Debug(ctx, op+" successful")
	return nil
}

// Ping checks the connectivity to the exchange API.
func (c *Client) Ping(ctx context.Context) error {
	op := "Ping"
	err := c.futuresClient.NewPingService().Do(ctx)
	if err != nil {
		return c.handleError(ctx, fmt.Errorf("ping failed: %w", err), op)
	}
	c.logger.Debug(ctx, op+" successful")
	return nil
}

// GetKlines retrieves the most recent closed bars for the given symbol.
// The still-forming bar Binance returns last is dropped.
func (c *Client) GetKlines(ctx context.Context, symbol string, interval string, limit int) ([]*domain.Bar, error) {
	op := "GetKlines"
	binanceKlines, err := c.futuresClient.NewKlinesService().Symbol(symbol).Interval(interval).Limit(limit).Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	now := c.now()
	bars := make([]*domain.Bar, 0, len(binanceKlines))
	for _, bk := range binanceKlines {
		bar, err := translateBinanceKline(bk, symbol, interval)
		if err != nil {
			return nil, c.handleError(ctx, fmt.Errorf("failed to translate historical kline: %w", err), op)
		}
		if bar.CloseTime.After(now) {
			continue
		}
		bars = append(bars, bar)
	}
	return bars, nil
}

// GetKlinesRange fetches all closed bars for a symbol/interval between start and end time.
func (c *Client) GetKlinesRange(ctx context.Context, symbol, interval string, start, end time.Time) ([]*domain.Bar, error) {
	op := "GetKlinesRange"
	var bars []*domain.Bar
	from := start
	now := c.now()

	for {
		klines, err := c.futuresClient.NewKlinesService().
			Symbol(symbol).
			Interval(interval).
			StartTime(from.UnixMilli()).
			EndTime(end.UnixMilli()).
			Limit(maxKlinesPerRequest).
			Do(ctx)
		if err != nil {
			return nil, c.handleError(ctx, err, op)
		}
		if len(klines) == 0 {
			break
		}
		for _, bk := range klines {
			bar, err := translateBinanceKline(bk, symbol, interval)
			if err != nil {
				return nil, c.handleError(ctx, fmt.Errorf("failed to translate historical kline range: %w", err), op)
			}
			if bar.CloseTime.After(now) {
				continue
			}
			bars = append(bars, bar)
		}
		last := klines[len(klines)-1]
		// CloseTime is the last millisecond of the bar.
		from = time.UnixMilli(last.CloseTime + 1)
		if from.After(end) || len(klines) < maxKlinesPerRequest {
			break
		}
	}

	c.logger.Debug(ctx, op+" completed", map[string]interface{}{"symbol": symbol, "interval": interval, "bars": len(bars)})
	return bars, nil
}

// StreamKlines starts a WebSocket stream for K-line data and hands only
// closed bars to handler. The stream reconnects with exponential backoff
// until ctx is cancelled, stopCh is signalled or the attempts run out.
func (c *Client) StreamKlines(ctx context.Context, symbol, interval string, handler func(bar *domain.Bar), errHandler func(err error)) (doneCh chan struct{}, stopCh chan struct{}, err error) {
	op := "StreamKlines"
	fields := map[string]interface{}{"symbol": symbol, "interval": interval}
	wsCtx, cancelWs := context.WithCancel(ctx)

	binanceHandler := func(event *futures.WsKlineEvent) {
		bar, err := translateWsKline(event)
		if err != nil {
			c.logger.Error(wsCtx, err, op+": Failed to translate WebSocket kline event", fields)
			return
		}
		if !bar.IsFinal {
			return
		}
		handler(bar)
	}

	binanceErrHandler := func(err error) {
		translatedErr := c.handleError(wsCtx, err, op+" WebSocket")
		if errHandler != nil {
			errHandler(translatedErr)
		}
	}

	// Reconnection loop
	go func() {
		defer cancelWs()

		attempt := 0
		for {
			select {
			case <-wsCtx.Done():
				c.logger.Info(wsCtx, op+": Context cancelled, stopping connection attempts", fields)
				return
			default:
			}

			innerDoneCh, innerStopCh, connectErr := c.serveKlines(symbol, interval, binanceHandler, binanceErrHandler)
			if connectErr != nil {
				_ = c.handleError(wsCtx, connectErr, op+" connection attempt")
				attempt++
				if attempt >= c.maxReconnectAttempts {
					c.logger.Error(wsCtx, connectErr, op+": Max reconnection attempts exceeded, giving up", map[string]interface{}{
						"symbol": symbol, "interval": interval, "maxAttempts": c.maxReconnectAttempts,
					})
					if errHandler != nil {
						errHandler(fmt.Errorf("%s: %w: %w", op, ports.ErrConnectionFailed, connectErr))
					}
					return
				}

				delay := backoffDelay(c.reconnectDelay, attempt)
				c.logger.Info(wsCtx, op+": Connection failed, retrying", map[string]interface{}{
					"symbol": symbol, "interval": interval, "attempt": attempt + 1, "delay": delay.String(),
				})
				select {
				case <-time.After(delay):
					continue
				case <-wsCtx.Done():
					return
				}
			}

			c.logger.Info(wsCtx, op+": WebSocket connection established", fields)
			attempt = 0

			select {
			case <-innerDoneCh:
				c.logger.Warn(wsCtx, op+": WebSocket connection closed unexpectedly, reconnecting", fields)
			case <-wsCtx.Done():
				select {
				case innerStopCh <- struct{}{}:
				default:
					c.logger.Warn(wsCtx, op+": Inner WebSocket already closed", fields)
				}
				return
			}
		}
	}()

	doneCh = make(chan struct{})
	stopCh = make(chan struct{})

	go func() {
		select {
		case <-stopCh:
			c.logger.Info(ctx, op+": Received external stop signal", fields)
			cancelWs()
		case <-wsCtx.Done():
		}
	}()

	go func() {
		<-wsCtx.Done()
		close(doneCh)
	}()

	return doneCh, stopCh, nil
}

// backoffDelay doubles base per failed attempt and adds 10% jitter.
func backoffDelay(base time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 6 {
		attempt = 6
	}
	delay := base * time.Duration(1<<uint(attempt-1))
	return delay + delay/10
}

// --- Translation Helpers ---

func translateOrderResponse(order *futures.CreateOrderResponse) *ports.OrderResponse {
	if order == nil {
		return nil
	}
	price, _ := strconv.ParseFloat(order.Price, 64)
	avgPrice, _ := strconv.ParseFloat(order.AvgPrice, 64)
	origQty, _ := strconv.ParseFloat(order.OrigQuantity, 64)
	execQty, _ := strconv.ParseFloat(order.ExecutedQuantity, 64)

	return &ports.OrderResponse{
		OrderID:       order.OrderID,
		Symbol:        order.Symbol,
		ClientOrderID: order.ClientOrderID,
		Price:         price,
		AvgPrice:      avgPrice,
		OrigQuantity:  origQty,
		ExecutedQty:   execQty,
		Status:        string(order.Status),
		Type:          string(order.Type),
		Side:          string(order.Side),
		Timestamp:     time.UnixMilli(order.UpdateTime),
	}
}

func translatePositionRisk(pos *futures.PositionRisk) *ports.PositionRisk {
	if pos == nil {
		return nil
	}
	posAmt, _ := strconv.ParseFloat(pos.PositionAmt, 64)
	entryPrice, _ := strconv.ParseFloat(pos.EntryPrice, 64)
	markPrice, _ := strconv.ParseFloat(pos.MarkPrice, 64)
	unProfit, _ := strconv.ParseFloat(pos.UnRealizedProfit, 64)
	leverage, _ := strconv.Atoi(pos.Leverage)

	return &ports.PositionRisk{
		Symbol:           pos.Symbol,
		PositionAmt:      posAmt,
		EntryPrice:       entryPrice,
		MarkPrice:        markPrice,
		UnRealizedProfit: unProfit,
		Leverage:         leverage,
	}
}

type ohlcv struct {
	open, high, low, close, volume string
}

func parseOHLCV(raw ohlcv) (o, h, l, c, v float64, err error) {
	if o, err = strconv.ParseFloat(raw.open, 64); err != nil {
		return 0, 0, 0, 0, 0, fmt.Errorf("parsing open price '%s': %w", raw.open, err)
	}
	if h, err = strconv.ParseFloat(raw.high, 64); err != nil {
		return 0, 0, 0, 0, 0, fmt.Errorf("parsing high price '%s': %w", raw.high, err)
	}
	if l, err = strconv.ParseFloat(raw.low, 64); err != nil {
		return 0, 0, 0, 0, 0, fmt.Errorf("parsing low price '%s': %w", raw.low, err)
	}
	if c, err = strconv.ParseFloat(raw.close, 64); err != nil {
		return 0, 0, 0, 0, 0, fmt.Errorf("parsing close price '%s': %w", raw.close, err)
	}
	if v, err = strconv.ParseFloat(raw.volume, 64); err != nil {
		return 0, 0, 0, 0, 0, fmt.Errorf("parsing volume '%s': %w", raw.volume, err)
	}
	return o, h, l, c, v, nil
}

func translateWsKline(event *futures.WsKlineEvent) (*domain.Bar, error) {
	if event == nil {
		return nil, errors.New("received nil kline event")
	}
	k := event.Kline
	o, h, l, cl, v, err := parseOHLCV(ohlcv{k.Open, k.High, k.Low, k.Close, k.Volume})
	if err != nil {
		return nil, err
	}
	return &domain.Bar{
		OpenTime:  time.UnixMilli(k.StartTime).UTC(),
		CloseTime: time.UnixMilli(k.EndTime + 1).UTC(),
		Symbol:    k.Symbol,
		Interval:  k.Interval,
		Open:      o,
		High:      h,
		Low:       l,
		Close:     cl,
		Volume:    v,
		IsFinal:   k.IsFinal,
	}, nil
}

func translateBinanceKline(bk *futures.Kline, symbol, interval string) (*domain.Bar, error) {
	if bk == nil {
		return nil, errors.New("received nil historical kline")
	}
	o, h, l, cl, v, err := parseOHLCV(ohlcv{bk.Open, bk.High, bk.Low, bk.Close, bk.Volume})
	if err != nil {
		return nil, err
	}
	return &domain.Bar{
		OpenTime:  time.UnixMilli(bk.OpenTime).UTC(),
		CloseTime: time.UnixMilli(bk.CloseTime + 1).UTC(),
		Symbol:    symbol,
		Interval:  interval,
		Open:      o,
		High:      h,
		Low:       l,
		Close:     cl,
		Volume:    v,
		IsFinal:   true,
	}, nil
}
