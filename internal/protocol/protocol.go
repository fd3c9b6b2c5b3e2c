package protocol

import "encoding/json"

// Request types delivered by the rollup host.
const (
	RequestAdvanceState = "advance_state"
	RequestInspectState = "inspect_state"
)

// Statuses reported back through /finish.
const (
	StatusAccept = "accept"
	StatusReject = "reject"
)

const ActionAdd = "add"

// FinishRequest is the body of POST /finish.
type FinishRequest struct {
	Status string `json:"status"`
}

// PayloadMsg is the body of POST /notice and POST /report.
type PayloadMsg struct {
	Payload string `json:"payload"`
}

// RollupRequest is what the host returns from /finish when work is pending.
type RollupRequest struct {
	RequestType string      `json:"request_type"`
	Data        RequestData `json:"data"`
}

type RequestData struct {
	Payload  string    `json:"payload"`
	Metadata *Metadata `json:"metadata,omitempty"`
}

// Metadata only accompanies advance requests.
type Metadata struct {
	MsgSender   string `json:"msg_sender"`
	EpochIndex  uint64 `json:"epoch_index"`
	InputIndex  uint64 `json:"input_index"`
	BlockNumber uint64 `json:"block_number"`
	Timestamp   uint64 `json:"timestamp"`
}

func DecodeRollupRequest(b []byte) (RollupRequest, error) {
	var r RollupRequest
	err := json.Unmarshal(b, &r)
	return r, err
}

func IsKnownRequestType(t string) bool {
	return t == RequestAdvanceState || t == RequestInspectState
}
