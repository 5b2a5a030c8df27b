package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"livequant/internal/market"
	"livequant/internal/metrics"
)

type binanceEnvelope struct {
	Stream string       `json:"stream"`
	Data   binanceTrade `json:"data"`
}

type binanceTrade struct {
	Symbol    string `json:"s"`
	Price     string `json:"p"`
	Quantity  string `json:"q"`
	TradeTime int64  `json:"T"`
}

func (c *Connector) runBinance(ctx context.Context, sink Sink) error {
	symbols := c.snapshotSymbols()
	if len(symbols) == 0 {
		return fmt.Errorf("binance feed requires at least one symbol")
	}

	streams := make([]string, len(symbols))
	for i, sym := range symbols {
		streams[i] = strings.ToLower(sym) + "@trade"
	}

	url := fmt.Sprintf("%s/stream?streams=%s", c.wsBaseURL, strings.Join(streams, "/"))
	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := c.consumeBinanceStream(ctx, url, sink); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.log.Warn().Err(err).Msg("binance feed disconnected, retrying")
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
			backoff = nextBackoff(backoff, maxBackoff)
			continue
		}
		return nil
	}
}

func (c *Connector) consumeBinanceStream(ctx context.Context, url string, sink Sink) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	c.log.Info().Str("provider", ProviderBinance).Strs("symbols", c.snapshotSymbols()).Msg("connected market data feed")

	conn.SetReadLimit(1 << 20)
	conn.SetReadDeadline(time.Now().Add(c.readTimeout))
	conn.SetPongHandler(func(appData string) error {
		conn.SetReadDeadline(time.Now().Add(c.readTimeout))
		return nil
	})

	pingCtx, pingCancel := context.WithCancel(ctx)
	defer pingCancel()
	// cancellation must interrupt a blocked ReadMessage, not wait out the
	// read deadline
	go func() {
		<-pingCtx.Done()
		conn.Close()
	}()
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					c.log.Warn().Err(err).Msg("binance ping failed")
					return
				}
			case <-pingCtx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		_, message, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		tick, ok := c.decodeBinanceTrade(message)
		if !ok {
			continue
		}
		sink.Push(tick)
		metrics.TicksTotal.WithLabelValues(tick.Symbol).Inc()
	}
}

// decodeBinanceTrade normalizes a raw stream message. Malformed messages are
// logged and counted, never fatal.
func (c *Connector) decodeBinanceTrade(message []byte) (market.Tick, bool) {
	var env binanceEnvelope
	if err := json.Unmarshal(message, &env); err != nil {
		c.log.Warn().Err(err).Msg("failed to decode binance message")
		metrics.MalformedMessagesTotal.WithLabelValues(ProviderBinance).Inc()
		return market.Tick{}, false
	}

	symbol := env.Data.Symbol
	if symbol == "" {
		symbol = parseStreamSymbol(env.Stream)
	}
	if symbol == "" {
		c.log.Warn().Str("stream", env.Stream).Msg("binance message missing symbol")
		metrics.MalformedMessagesTotal.WithLabelValues(ProviderBinance).Inc()
		return market.Tick{}, false
	}
	px, err := strconv.ParseFloat(env.Data.Price, 64)
	if err != nil {
		c.log.Warn().Err(err).Msg("invalid price from binance")
		metrics.MalformedMessagesTotal.WithLabelValues(ProviderBinance).Inc()
		return market.Tick{}, false
	}
	qty, err := strconv.ParseFloat(env.Data.Quantity, 64)
	if err != nil {
		c.log.Warn().Err(err).Msg("invalid quantity from binance")
		metrics.MalformedMessagesTotal.WithLabelValues(ProviderBinance).Inc()
		return market.Tick{}, false
	}

	return market.Tick{
		Symbol: strings.ToUpper(symbol),
		Ts:     time.UnixMilli(env.Data.TradeTime).UTC(),
		Price:  px,
		Qty:    qty,
	}, true
}

func parseStreamSymbol(stream string) string {
	parts := strings.Split(stream, "@")
	if len(parts) == 0 || parts[0] == "" {
		return ""
	}
	return strings.ToUpper(parts[0])
}
