package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"futures-console/internal/core"
)

type markPriceEvent struct {
	EventType string `json:"e"`
	EventTime int64  `json:"E"`
	Symbol    string `json:"s"`
	MarkPrice string `json:"p"`
}

const streamReconnectDelay = 3 * time.Second

// WatchTicker subscribes to the symbol's markPrice stream and delivers updates
// until ctx is canceled. Dial and read failures reconnect after a short delay;
// the channel closes only on ctx cancel.
func (c *Client) WatchTicker(ctx context.Context, symbol string) (<-chan core.PriceTick, error) {
	if c.wsBaseURL == "" {
		return nil, fmt.Errorf("ws base url not configured")
	}
	if symbol == "" {
		return nil, fmt.Errorf("symbol is required")
	}
	endpoint := fmt.Sprintf("%s/ws/%s@markPrice@1s", c.wsBaseURL, strings.ToLower(symbol))
	updates := make(chan core.PriceTick, 16)
	go func() {
		defer close(updates)
		for {
			if ctx.Err() != nil {
				return
			}
			conn, _, err := websocket.DefaultDialer.DialContext(ctx, endpoint, nil)
			if err != nil {
				c.log.Warn("price stream dial failed", zap.String("symbol", symbol), zap.Error(err))
				select {
				case <-ctx.Done():
					return
				case <-time.After(streamReconnectDelay):
					continue
				}
			}
			c.readPriceStream(ctx, conn, updates)
			conn.Close()
		}
	}()
	return updates, nil
}

func (c *Client) readPriceStream(ctx context.Context, conn *websocket.Conn, updates chan<- core.PriceTick) {
	// Unblock ReadMessage when the caller gives up.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				c.log.Warn("price stream read failed", zap.Error(err))
			}
			return
		}
		update, ok := parseMarkPriceEvent(message)
		if !ok {
			continue
		}
		select {
		case updates <- update:
		case <-ctx.Done():
			return
		}
	}
}

func parseMarkPriceEvent(message []byte) (core.PriceTick, bool) {
	var ev markPriceEvent
	if err := json.Unmarshal(message, &ev); err != nil {
		return core.PriceTick{}, false
	}
	if ev.EventType != "markPriceUpdate" || ev.MarkPrice == "" {
		return core.PriceTick{}, false
	}
	price, err := decimal.NewFromString(ev.MarkPrice)
	if err != nil || price.Cmp(decimal.Zero) <= 0 {
		return core.PriceTick{}, false
	}
	return core.PriceTick{
		Symbol: ev.Symbol,
		Price:  price,
		Time:   time.UnixMilli(ev.EventTime),
	}, true
}
