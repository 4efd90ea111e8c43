package rpc

import (
	"context"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
)

const reconnectDelay = 5 * time.Second

// SubscribeNewHeads opens a websocket subscription for new block heights.
// The returned channel carries head heights until ctx is cancelled; a
// fresh subscription starts from "now", it is not restartable from the past.
// On read errors the subscription reconnects after a short delay.
func (c *Client) SubscribeNewHeads(ctx context.Context) (<-chan uint64, error) {
	if c.wsURL == "" {
		return nil, fmt.Errorf("websocket endpoint not configured")
	}

	conn, err := c.dialAndSubscribe(ctx)
	if err != nil {
		return nil, err
	}

	heads := make(chan uint64, 16)

	go func() {
		defer close(heads)
		defer conn.Close()

		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			var msg newHeadsNotification
			if err := conn.ReadJSON(&msg); err != nil {
				if ctx.Err() != nil {
					return
				}
				c.logger.WithError(err).Warn("newHeads read error, reconnecting")

				conn.Close()
				select {
				case <-ctx.Done():
					return
				case <-time.After(reconnectDelay):
				}

				next, err := c.dialAndSubscribe(ctx)
				if err != nil {
					c.logger.WithError(err).Error("newHeads resubscribe failed")
					continue
				}
				conn = next
				continue
			}

			if msg.Method != "eth_subscription" {
				continue
			}

			height, err := parseHexUint(msg.Params.Result.Number)
			if err != nil {
				c.logger.WithError(err).Warn("invalid head height in notification")
				continue
			}

			select {
			case heads <- height:
			case <-ctx.Done():
				return
			}
		}
	}()

	return heads, nil
}

func (c *Client) dialAndSubscribe(ctx context.Context) (*websocket.Conn, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial: %w", err)
	}

	subscribeMsg := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "eth_subscribe",
		"params":  []interface{}{"newHeads"},
	}

	if err := conn.WriteJSON(subscribeMsg); err != nil {
		conn.Close()
		return nil, fmt.Errorf("subscribe: %w", err)
	}

	c.logger.WithField("endpoint", c.wsURL).Info("subscribed to new heads")
	return conn, nil
}
