package history

// The types below mirror the transaction search response of the public chain
// indexer so existing verification tooling can read the node directly.

// IndexerResponse is the body of GET /v2/transactions.
type IndexerResponse struct {
	CurrentRound uint64               `json:"current-round"`
	NextToken    string               `json:"next-token,omitempty"`
	Transactions []IndexerTransaction `json:"transactions"`
}

// IndexerTransaction is one transaction in indexer form. Byte slices are
// base64 encoded by encoding/json.
type IndexerTransaction struct {
	ID                 string              `json:"id"`
	Sender             string              `json:"sender"`
	ConfirmedRound     uint64              `json:"confirmed-round"`
	RoundTime          int64               `json:"round-time"`
	TxType             string              `json:"tx-type"`
	ApplicationCall    *ApplicationCall    `json:"application-transaction,omitempty"`
	PaymentTransaction *PaymentTransaction `json:"payment-transaction,omitempty"`
	Logs               [][]byte            `json:"logs,omitempty"`
}

// ApplicationCall carries the application id and raw arguments.
type ApplicationCall struct {
	ApplicationID   uint64   `json:"application-id"`
	ApplicationArgs [][]byte `json:"application-args"`
}

// PaymentTransaction carries the grouped payment of an application call.
type PaymentTransaction struct {
	Receiver string `json:"receiver"`
	Amount   uint64 `json:"amount"`
}

// Method returns the selector argument of an application call.
func (t IndexerTransaction) Method() string {
	if t.ApplicationCall == nil || len(t.ApplicationCall.ApplicationArgs) == 0 {
		return ""
	}
	return string(t.ApplicationCall.ApplicationArgs[0])
}

// Indexer converts a stored row to its indexer form.
func (t Transaction) Indexer() IndexerTransaction {
	out := IndexerTransaction{
		ID:             t.TxID,
		Sender:         t.Sender,
		ConfirmedRound: t.Round,
		RoundTime:      t.RoundTime,
		TxType:         t.TxType,
		Logs:           t.Logs,
	}
	if t.AppID != 0 {
		args := t.Args
		if args == nil {
			args = [][]byte{}
		}
		out.ApplicationCall = &ApplicationCall{ApplicationID: t.AppID, ApplicationArgs: args}
	}
	if t.PaymentReceiver != "" {
		out.PaymentTransaction = &PaymentTransaction{Receiver: t.PaymentReceiver, Amount: t.PaymentAmount}
	}
	return out
}

// IndexerPage converts a query result to the response body.
func IndexerPage(rows []Transaction, next string, current uint64) IndexerResponse {
	out := IndexerResponse{
		CurrentRound: current,
		NextToken:    next,
		Transactions: make([]IndexerTransaction, 0, len(rows)),
	}
	for _, row := range rows {
		out.Transactions = append(out.Transactions, row.Indexer())
	}
	return out
}
