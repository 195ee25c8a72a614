package types

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"
	"lukechampine.com/blake3"

	"lottochain/crypto"
)

// TxType defines the purpose of a transaction.
type TxType byte

const (
	TxTypePayment TxType = 0x01 // Plain transfer of the native currency
	TxTypeAppCall TxType = 0x02 // Application call, optionally grouped with a payment
)

func (t TxType) String() string {
	switch t {
	case TxTypePayment:
		return "pay"
	case TxTypeAppCall:
		return "appl"
	default:
		return fmt.Sprintf("unknown(%d)", byte(t))
	}
}

var (
	ErrMissingSignature = errors.New("types: transaction not signed")
	ErrSenderMismatch   = errors.New("types: signing key does not match sender")
)

// Payment moves Amount micro-units from Sender to Receiver. When attached to an
// application call it executes in the same atomic unit as the call.
type Payment struct {
	Sender   crypto.Address `json:"sender"`
	Receiver crypto.Address `json:"receiver"`
	Amount   uint64         `json:"amount"`
}

// Transaction is a signed instruction submitted to the node. Args[0] of an
// application call is the operation selector.
type Transaction struct {
	Type      TxType         `json:"type"`
	AppID     uint64         `json:"appId,omitempty"`
	Sender    crypto.Address `json:"sender"`
	Nonce     uint64         `json:"nonce"`
	Args      [][]byte       `json:"args,omitempty"`
	Payment   *Payment       `json:"payment,omitempty"`
	Signature []byte         `json:"signature,omitempty"`
}

type signingPayload struct {
	Type       TxType
	AppID      uint64
	Sender     [32]byte
	Nonce      uint64
	Args       [][]byte
	HasPayment bool
	PaySender  [32]byte
	PayTo      [32]byte
	PayAmount  uint64
}

// Hash returns the blake3 digest of the RLP encoded signing fields.
func (tx *Transaction) Hash() ([]byte, error) {
	payload := signingPayload{
		Type:   tx.Type,
		AppID:  tx.AppID,
		Sender: tx.Sender,
		Nonce:  tx.Nonce,
		Args:   tx.Args,
	}
	if tx.Payment != nil {
		payload.HasPayment = true
		payload.PaySender = tx.Payment.Sender
		payload.PayTo = tx.Payment.Receiver
		payload.PayAmount = tx.Payment.Amount
	}
	encoded, err := rlp.EncodeToBytes(&payload)
	if err != nil {
		return nil, err
	}
	sum := blake3.Sum256(encoded)
	return sum[:], nil
}

// ID returns the hex transaction identifier.
func (tx *Transaction) ID() (string, error) {
	hash, err := tx.Hash()
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(hash), nil
}

// Method returns the selector of an application call.
func (tx *Transaction) Method() string {
	if len(tx.Args) == 0 {
		return ""
	}
	return string(tx.Args[0])
}

func (tx *Transaction) Sign(key *crypto.PrivateKey) error {
	if key.Address() != tx.Sender {
		return ErrSenderMismatch
	}
	hash, err := tx.Hash()
	if err != nil {
		return err
	}
	tx.Signature = key.Sign(hash)
	return nil
}

// VerifySignature checks the signature against the sender address.
func (tx *Transaction) VerifySignature() error {
	if len(tx.Signature) == 0 {
		return ErrMissingSignature
	}
	hash, err := tx.Hash()
	if err != nil {
		return err
	}
	return crypto.Verify(tx.Sender, hash, tx.Signature)
}
