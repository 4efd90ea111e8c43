package rpc

// RPCError represents a JSON-RPC error response
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return e.Message
}

// Log is one raw entry from eth_getLogs
type Log struct {
	Address         string   `json:"address"`
	Topics          []string `json:"topics"`
	Data            string   `json:"data"`
	BlockNumber     string   `json:"blockNumber"`
	TransactionHash string   `json:"transactionHash"`
	LogIndex        string   `json:"logIndex"`
	Removed         bool     `json:"removed"`
}

// LogsResponse is the response from eth_getLogs
type LogsResponse struct {
	Result []Log     `json:"result"`
	Error  *RPCError `json:"error"`
}

// Block carries the subset of eth_getBlockByNumber we need
type Block struct {
	Number    string `json:"number"`
	Timestamp string `json:"timestamp"`
}

// BlockResponse is the response from eth_getBlockByNumber
type BlockResponse struct {
	Result *Block    `json:"result"`
	Error  *RPCError `json:"error"`
}

// StringResponse covers calls returning a single hex quantity
// (eth_blockNumber, eth_call)
type StringResponse struct {
	Result string    `json:"result"`
	Error  *RPCError `json:"error"`
}

// newHeadsNotification is a websocket eth_subscription push message
type newHeadsNotification struct {
	Method string `json:"method"`
	Params struct {
		Subscription string `json:"subscription"`
		Result       struct {
			Number string `json:"number"`
		} `json:"result"`
	} `json:"params"`
}
