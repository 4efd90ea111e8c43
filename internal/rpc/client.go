package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mzeeshan-dev/position-indexer/internal/classify"
	"github.com/mzeeshan-dev/position-indexer/internal/constants"
	"github.com/mzeeshan-dev/position-indexer/internal/models"
)

// ErrBlockNotFound is returned when the node does not know the requested height.
var ErrBlockNotFound = errors.New("block not found")

// positionsSelector is the 4-byte selector of positions(uint256) on the
// position manager contract; the liquidity field is the 8th return word.
const (
	positionsSelector     = "0x99fbab88"
	liquidityReturnOffset = 7
)

// Client is an HTTP client with retry and timeout support for Ethereum JSON-RPC
type Client struct {
	httpClient   *http.Client
	baseURL      string
	wsURL        string
	contract     string
	maxRetries   int
	retryBackoff time.Duration
	logger       *logrus.Logger
}

// ClientConfig holds configuration for the RPC client
type ClientConfig struct {
	BaseURL      string
	WSURL        string
	Contract     string
	Timeout      time.Duration
	MaxRetries   int
	RetryBackoff time.Duration
	Logger       *logrus.Logger
}

// NewClient creates a new RPC client with retry support
func NewClient(cfg ClientConfig) *Client {
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		baseURL:      cfg.BaseURL,
		wsURL:        cfg.WSURL,
		contract:     classify.NormalizeAddress(cfg.Contract),
		maxRetries:   cfg.MaxRetries,
		retryBackoff: cfg.RetryBackoff,
		logger:       cfg.Logger,
	}
}

// Call makes a JSON-RPC call with retry logic
func (c *Client) Call(ctx context.Context, method string, params interface{}, result interface{}) error {
	body := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
		"params":  params,
	}

	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	var lastErr error
	backoff := c.retryBackoff

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			c.logger.WithFields(logrus.Fields{
				"attempt": attempt,
				"backoff": backoff,
				"method":  method,
			}).Debug("retrying RPC call")

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2 // exponential backoff
		}

		resp, err := c.doRequest(ctx, data)
		if err != nil {
			lastErr = err
			continue
		}

		if err := json.Unmarshal(resp, result); err != nil {
			return fmt.Errorf("failed to unmarshal response: %w", err)
		}

		return nil
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

func (c *Client) doRequest(ctx context.Context, data []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL, bytes.NewBuffer(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	// Handle rate limiting
	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("rate limited (429)")
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	return body, nil
}

// CurrentHeight returns the chain head height
func (c *Client) CurrentHeight(ctx context.Context) (uint64, error) {
	var result StringResponse
	if err := c.Call(ctx, "eth_blockNumber", []interface{}{}, &result); err != nil {
		return 0, err
	}
	if result.Error != nil {
		return 0, result.Error
	}
	return parseHexUint(result.Result)
}

// BlockTimestamp returns the timestamp of the block at height
func (c *Client) BlockTimestamp(ctx context.Context, height uint64) (time.Time, error) {
	params := []interface{}{hexHeight(height), false}

	var result BlockResponse
	if err := c.Call(ctx, "eth_getBlockByNumber", params, &result); err != nil {
		return time.Time{}, err
	}
	if result.Error != nil {
		return time.Time{}, result.Error
	}
	if result.Result == nil {
		return time.Time{}, fmt.Errorf("height %d: %w", height, ErrBlockNotFound)
	}

	ts, err := parseHexUint(result.Result.Timestamp)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid block timestamp: %w", err)
	}
	return time.Unix(int64(ts), 0).UTC(), nil
}

// TransferLogs fetches the contract's Transfer logs in [fromHeight, toHeight],
// resolves block timestamps, and returns events ordered by height then
// in-block log index.
func (c *Client) TransferLogs(ctx context.Context, fromHeight, toHeight uint64) ([]*models.TransferEvent, error) {
	params := []interface{}{map[string]interface{}{
		"fromBlock": hexHeight(fromHeight),
		"toBlock":   hexHeight(toHeight),
		"address":   c.contract,
		"topics":    []string{constants.TransferTopic},
	}}

	var result LogsResponse
	if err := c.Call(ctx, "eth_getLogs", params, &result); err != nil {
		return nil, err
	}
	if result.Error != nil {
		return nil, result.Error
	}

	// One timestamp lookup per distinct block in the range.
	timestamps := make(map[uint64]time.Time)

	events := make([]*models.TransferEvent, 0, len(result.Result))
	for _, lg := range result.Result {
		if lg.Removed {
			continue
		}

		ev, err := c.decodeTransferLog(lg)
		if err != nil {
			c.logger.WithError(err).WithField("tx", shortHash(lg.TransactionHash)).Warn("skipping undecodable log")
			continue
		}

		ts, ok := timestamps[ev.Height]
		if !ok {
			ts, err = c.BlockTimestamp(ctx, ev.Height)
			if err != nil {
				return nil, fmt.Errorf("resolve timestamp for block %d: %w", ev.Height, err)
			}
			timestamps[ev.Height] = ts
		}
		ev.Timestamp = ts

		events = append(events, ev)
	}

	sort.Slice(events, func(i, j int) bool {
		if events[i].Height != events[j].Height {
			return events[i].Height < events[j].Height
		}
		return events[i].LogIndex < events[j].LogIndex
	})

	return events, nil
}

// PositionLiquidity reads the current liquidity of a position via eth_call
func (c *Client) PositionLiquidity(ctx context.Context, tokenID string) (*big.Int, error) {
	id, ok := new(big.Int).SetString(tokenID, 10)
	if !ok {
		return nil, fmt.Errorf("invalid token id %q", tokenID)
	}

	callData := positionsSelector + fmt.Sprintf("%064x", id)
	params := []interface{}{
		map[string]interface{}{"to": c.contract, "data": callData},
		"latest",
	}

	var result StringResponse
	if err := c.Call(ctx, "eth_call", params, &result); err != nil {
		return nil, err
	}
	if result.Error != nil {
		return nil, result.Error
	}

	words := strings.TrimPrefix(result.Result, "0x")
	start := liquidityReturnOffset * 64
	if len(words) < start+64 {
		return nil, fmt.Errorf("short eth_call return (%d hex chars)", len(words))
	}

	liquidity, ok := new(big.Int).SetString(words[start:start+64], 16)
	if !ok {
		return nil, fmt.Errorf("invalid liquidity word")
	}
	return liquidity, nil
}

// decodeTransferLog turns a raw indexed-topic log into a TransferEvent
func (c *Client) decodeTransferLog(lg Log) (*models.TransferEvent, error) {
	if len(lg.Topics) != 4 {
		return nil, fmt.Errorf("expected 4 topics, got %d", len(lg.Topics))
	}

	height, err := parseHexUint(lg.BlockNumber)
	if err != nil {
		return nil, fmt.Errorf("invalid block number: %w", err)
	}
	logIndex, err := parseHexUint(lg.LogIndex)
	if err != nil {
		return nil, fmt.Errorf("invalid log index: %w", err)
	}

	tokenID, ok := new(big.Int).SetString(strings.TrimPrefix(lg.Topics[3], "0x"), 16)
	if !ok {
		return nil, fmt.Errorf("invalid token id topic %q", lg.Topics[3])
	}

	return &models.TransferEvent{
		From:     topicAddress(lg.Topics[1]),
		To:       topicAddress(lg.Topics[2]),
		TokenID:  tokenID.String(),
		Height:   height,
		LogIndex: logIndex,
		TxHash:   strings.ToLower(lg.TransactionHash),
	}, nil
}

// topicAddress extracts the 20-byte address from a 32-byte indexed topic
func topicAddress(topic string) string {
	t := strings.TrimPrefix(strings.ToLower(topic), "0x")
	if len(t) < 40 {
		return "0x" + t
	}
	return "0x" + t[len(t)-40:]
}

func hexHeight(h uint64) string {
	return "0x" + strconv.FormatUint(h, 16)
}

func parseHexUint(s string) (uint64, error) {
	return strconv.ParseUint(strings.TrimPrefix(s, "0x"), 16, 64)
}

func shortHash(h string) string {
	if len(h) > 10 {
		return h[:10]
	}
	return h
}
