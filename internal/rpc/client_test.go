package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mzeeshan-dev/position-indexer/internal/constants"
)

const testContract = "0x1111111111111111111111111111111111111111"

// rpcHandler dispatches mocked JSON-RPC responses by method name.
type rpcHandler struct {
	responses map[string]func(params []json.RawMessage) interface{}
	calls     int64
}

func (h *rpcHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	atomic.AddInt64(&h.calls, 1)

	var req struct {
		Method string            `json:"method"`
		Params []json.RawMessage `json:"params"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	fn, ok := h.responses[req.Method]
	if !ok {
		http.Error(w, "unexpected method "+req.Method, http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"result":  fn(req.Params),
	})
}

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client := NewClient(ClientConfig{
		BaseURL:      srv.URL,
		Contract:     testContract,
		Timeout:      5 * time.Second,
		MaxRetries:   2,
		RetryBackoff: time.Millisecond,
	})
	return client, srv
}

func TestClient_CurrentHeight(t *testing.T) {
	handler := &rpcHandler{responses: map[string]func([]json.RawMessage) interface{}{
		"eth_blockNumber": func([]json.RawMessage) interface{} { return "0x1b4" },
	}}
	client, _ := newTestClient(t, handler)

	height, err := client.CurrentHeight(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(436), height)
}

func TestClient_RetriesServerErrors(t *testing.T) {
	var attempts int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt64(&attempts, 1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"jsonrpc":"2.0","id":1,"result":"0x10"}`)
	}))
	t.Cleanup(srv.Close)

	client := NewClient(ClientConfig{
		BaseURL:      srv.URL,
		Contract:     testContract,
		Timeout:      5 * time.Second,
		MaxRetries:   3,
		RetryBackoff: time.Millisecond,
	})

	height, err := client.CurrentHeight(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(16), height)
	assert.Equal(t, int64(3), atomic.LoadInt64(&attempts))
}

func TestClient_ExhaustedRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	t.Cleanup(srv.Close)

	client := NewClient(ClientConfig{
		BaseURL:      srv.URL,
		Contract:     testContract,
		Timeout:      time.Second,
		MaxRetries:   1,
		RetryBackoff: time.Millisecond,
	})

	_, err := client.CurrentHeight(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max retries exceeded")
}

func TestClient_BlockTimestamp(t *testing.T) {
	handler := &rpcHandler{responses: map[string]func([]json.RawMessage) interface{}{
		"eth_getBlockByNumber": func([]json.RawMessage) interface{} {
			return map[string]string{"number": "0x64", "timestamp": "0x68b8b800"}
		},
	}}
	client, _ := newTestClient(t, handler)

	ts, err := client.BlockTimestamp(context.Background(), 100)
	require.NoError(t, err)
	assert.Equal(t, time.Unix(0x68b8b800, 0).UTC(), ts)
}

func TestClient_BlockTimestamp_NotFound(t *testing.T) {
	handler := &rpcHandler{responses: map[string]func([]json.RawMessage) interface{}{
		"eth_getBlockByNumber": func([]json.RawMessage) interface{} { return nil },
	}}
	client, _ := newTestClient(t, handler)

	_, err := client.BlockTimestamp(context.Background(), 100)
	require.ErrorIs(t, err, ErrBlockNotFound)
}

func TestClient_TransferLogs(t *testing.T) {
	pad := func(addr string) string {
		return "0x000000000000000000000000" + addr[2:]
	}
	alice := "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"

	logs := []map[string]interface{}{
		{
			// Second-in-block event listed first: the client must sort.
			"blockNumber":     "0x65",
			"logIndex":        "0x2",
			"transactionHash": "0xTX2",
			"topics": []string{
				constants.TransferTopic,
				pad(constants.NullAddress),
				pad(alice),
				"0x000000000000000000000000000000000000000000000000000000000000002a",
			},
		},
		{
			"blockNumber":     "0x64",
			"logIndex":        "0x0",
			"transactionHash": "0xTX1",
			"topics": []string{
				constants.TransferTopic,
				pad(constants.NullAddress),
				pad(alice),
				"0x0000000000000000000000000000000000000000000000000000000000000007",
			},
		},
		{
			// Malformed log (missing topics) is skipped, not fatal.
			"blockNumber":     "0x64",
			"logIndex":        "0x1",
			"transactionHash": "0xTXBAD",
			"topics":          []string{constants.TransferTopic},
		},
	}

	handler := &rpcHandler{responses: map[string]func([]json.RawMessage) interface{}{
		"eth_getLogs": func([]json.RawMessage) interface{} { return logs },
		"eth_getBlockByNumber": func(params []json.RawMessage) interface{} {
			var height string
			_ = json.Unmarshal(params[0], &height)
			return map[string]string{"number": height, "timestamp": "0x100"}
		},
	}}
	client, _ := newTestClient(t, handler)

	events, err := client.TransferLogs(context.Background(), 100, 110)
	require.NoError(t, err)
	require.Len(t, events, 2)

	// Ordered by height then log index.
	assert.Equal(t, "0xtx1", events[0].TxHash)
	assert.Equal(t, uint64(100), events[0].Height)
	assert.Equal(t, "7", events[0].TokenID)
	assert.Equal(t, constants.NullAddress, events[0].From)
	assert.Equal(t, alice, events[0].To)
	assert.Equal(t, time.Unix(0x100, 0).UTC(), events[0].Timestamp)

	assert.Equal(t, "0xtx2", events[1].TxHash)
	assert.Equal(t, uint64(101), events[1].Height)
	assert.Equal(t, "42", events[1].TokenID)
}

func TestClient_PositionLiquidity(t *testing.T) {
	// positions() returns 12 ABI words; liquidity lives in word 7.
	ret := "0x"
	for i := 0; i < 12; i++ {
		word := "0000000000000000000000000000000000000000000000000000000000000000"
		if i == 7 {
			word = "00000000000000000000000000000000000000000000000000000000000f4240"
		}
		ret += word
	}

	handler := &rpcHandler{responses: map[string]func([]json.RawMessage) interface{}{
		"eth_call": func([]json.RawMessage) interface{} { return ret },
	}}
	client, _ := newTestClient(t, handler)

	liquidity, err := client.PositionLiquidity(context.Background(), "42")
	require.NoError(t, err)
	assert.Equal(t, "1000000", liquidity.String())
}

func TestClient_PositionLiquidity_BadInput(t *testing.T) {
	handler := &rpcHandler{responses: map[string]func([]json.RawMessage) interface{}{
		"eth_call": func([]json.RawMessage) interface{} { return "0x00" },
	}}
	client, _ := newTestClient(t, handler)

	_, err := client.PositionLiquidity(context.Background(), "not-a-number")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid token id")

	_, err = client.PositionLiquidity(context.Background(), "42")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "short eth_call return")
}

func TestTopicAddress(t *testing.T) {
	assert.Equal(t,
		"0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
		topicAddress("0x000000000000000000000000AAAAaaaaAAAAaaaaAAAAaaaaAAAAaaaaAAAAaaaa"))
	assert.Equal(t, "0xabc", topicAddress("0xabc"))
}

func TestParseHexUint(t *testing.T) {
	v, err := parseHexUint("0x1b4")
	require.NoError(t, err)
	assert.Equal(t, uint64(436), v)

	_, err = parseHexUint("0xzz")
	require.Error(t, err)
}
