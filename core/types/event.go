package types

// Event represents a typed event emitted during state transitions. Data holds
// the canonical binary log line for events that have one.
type Event struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
	Data       []byte            `json:"data,omitempty"`
}

// Receipt summarises a confirmed transaction.
type Receipt struct {
	TxID      string   `json:"txId"`
	Round     uint64   `json:"confirmedRound"`
	Timestamp int64    `json:"roundTime"`
	Logs      [][]byte `json:"logs,omitempty"`
	Events    []Event  `json:"events,omitempty"`
}
