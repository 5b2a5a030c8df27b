package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"livequant/internal/market"
	"livequant/internal/metrics"
)

// pollTicker is the JSON shape returned by the HTTP ticker endpoint, one
// object per symbol. Price and quantity arrive as strings, Binance style.
type pollTicker struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
	Qty    string `json:"qty"`
	Time   int64  `json:"time"`
}

func (c *Connector) runPoll(ctx context.Context, sink Sink) error {
	if c.pollBaseURL == "" {
		return fmt.Errorf("poll feed requires a base URL")
	}

	client := &http.Client{Timeout: 10 * time.Second}
	if err := c.pollOnce(ctx, client, sink); err != nil && !errors.Is(err, context.Canceled) {
		c.log.Warn().Err(err).Msg("initial ticker poll failed")
	}

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := c.pollOnce(ctx, client, sink); err != nil && !errors.Is(err, context.Canceled) {
				c.log.Warn().Err(err).Msg("ticker poll failed")
			}
		}
	}
}

func (c *Connector) pollOnce(ctx context.Context, client *http.Client, sink Sink) error {
	for _, sym := range c.snapshotSymbols() {
		if err := c.pollSymbol(ctx, client, sym, sink); err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			c.log.Warn().Err(err).Str("symbol", sym).Msg("symbol poll failed")
		}
	}
	return ctx.Err()
}

func (c *Connector) pollSymbol(ctx context.Context, client *http.Client, symbol string, sink Sink) error {
	url := fmt.Sprintf("%s/ticker?symbol=%s", c.pollBaseURL, symbol)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ticker endpoint returned %s", resp.Status)
	}

	var body pollTicker
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		metrics.MalformedMessagesTotal.WithLabelValues(ProviderPoll).Inc()
		return fmt.Errorf("decode ticker response: %w", err)
	}

	tick, ok := c.normalizePollTicker(symbol, body)
	if !ok {
		return nil
	}
	sink.Push(tick)
	metrics.TicksTotal.WithLabelValues(tick.Symbol).Inc()
	return nil
}

func (c *Connector) normalizePollTicker(symbol string, body pollTicker) (market.Tick, bool) {
	px, err := strconv.ParseFloat(body.Price, 64)
	if err != nil || px <= 0 {
		c.log.Warn().Str("symbol", symbol).Str("price", body.Price).Msg("invalid price from ticker poll")
		metrics.MalformedMessagesTotal.WithLabelValues(ProviderPoll).Inc()
		return market.Tick{}, false
	}
	qty := 0.0
	if body.Qty != "" {
		if qty, err = strconv.ParseFloat(body.Qty, 64); err != nil {
			c.log.Warn().Str("symbol", symbol).Str("qty", body.Qty).Msg("invalid quantity from ticker poll")
			metrics.MalformedMessagesTotal.WithLabelValues(ProviderPoll).Inc()
			return market.Tick{}, false
		}
	}
	ts := time.Now().UTC()
	if body.Time > 0 {
		ts = time.UnixMilli(body.Time).UTC()
	}
	if body.Symbol != "" {
		symbol = body.Symbol
	}
	return market.Tick{Symbol: symbol, Ts: ts, Price: px, Qty: qty}, true
}
