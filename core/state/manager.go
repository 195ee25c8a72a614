package state

import (
	"errors"
	"fmt"
	"reflect"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"lottochain/crypto"
	"lottochain/storage/trie"
)

var (
	// ErrInsufficientBalance is returned when a debit exceeds the account
	// balance.
	ErrInsufficientBalance = errors.New("state: insufficient balance")
	// ErrBalanceOverflow is returned when a credit would wrap the balance.
	ErrBalanceOverflow = errors.New("state: balance overflow")
)

// Manager provides typed access to the ledger stored in the state trie. It
// holds no state of its own; callers construct one per transition.
type Manager struct {
	trie *trie.Trie
}

// NewManager creates a state manager operating on the provided trie.
func NewManager(tr *trie.Trie) *Manager {
	return &Manager{trie: tr}
}

var (
	balancePrefix = []byte("balance:")
	rewardPrefix  = []byte("reward:")
	noncePrefix   = []byte("nonce:")
	supplyPrefix  = []byte("supply:")
)

func prefixedKey(prefix []byte, parts ...[]byte) []byte {
	buf := append([]byte(nil), prefix...)
	for i, part := range parts {
		if i > 0 {
			buf = append(buf, ':')
		}
		buf = append(buf, part...)
	}
	return ethcrypto.Keccak256(buf)
}

func balanceKey(addr crypto.Address) []byte {
	return prefixedKey(balancePrefix, addr[:])
}

func rewardKey(assetID uint64, addr crypto.Address) []byte {
	return prefixedKey(rewardPrefix, []byte(fmt.Sprintf("%d", assetID)), addr[:])
}

func supplyKey(assetID uint64) []byte {
	return prefixedKey(supplyPrefix, []byte(fmt.Sprintf("%d", assetID)))
}

func nonceKey(addr crypto.Address) []byte {
	return prefixedKey(noncePrefix, addr[:])
}

func kvKey(key []byte) []byte {
	return ethcrypto.Keccak256(key)
}

func (m *Manager) getUint(key []byte) (uint64, error) {
	data, err := m.trie.Get(key)
	if err != nil {
		return 0, err
	}
	if len(data) == 0 {
		return 0, nil
	}
	var v uint64
	if err := rlp.DecodeBytes(data, &v); err != nil {
		return 0, err
	}
	return v, nil
}

func (m *Manager) putUint(key []byte, v uint64) error {
	if v == 0 {
		return m.trie.Delete(key)
	}
	encoded, err := rlp.EncodeToBytes(v)
	if err != nil {
		return err
	}
	return m.trie.Update(key, encoded)
}

// Balance returns the native balance of addr.
func (m *Manager) Balance(addr crypto.Address) (uint64, error) {
	return m.getUint(balanceKey(addr))
}

// SetBalance overwrites the native balance of addr.
func (m *Manager) SetBalance(addr crypto.Address, amount uint64) error {
	if addr.IsZero() {
		return fmt.Errorf("address must not be empty")
	}
	return m.putUint(balanceKey(addr), amount)
}

// Credit adds amount to the native balance of addr.
func (m *Manager) Credit(addr crypto.Address, amount uint64) error {
	balance, err := m.Balance(addr)
	if err != nil {
		return err
	}
	if balance+amount < balance {
		return ErrBalanceOverflow
	}
	return m.SetBalance(addr, balance+amount)
}

// Transfer moves amount of the native currency from one account to another.
func (m *Manager) Transfer(from, to crypto.Address, amount uint64) error {
	if amount == 0 {
		return nil
	}
	if from.IsZero() || to.IsZero() {
		return fmt.Errorf("transfer: address must not be empty")
	}
	fromBalance, err := m.Balance(from)
	if err != nil {
		return err
	}
	if fromBalance < amount {
		return fmt.Errorf("%w: %s holds %d, needs %d", ErrInsufficientBalance, from, fromBalance, amount)
	}
	if from == to {
		return nil
	}
	toBalance, err := m.Balance(to)
	if err != nil {
		return err
	}
	if toBalance+amount < toBalance {
		return ErrBalanceOverflow
	}
	if err := m.putUint(balanceKey(from), fromBalance-amount); err != nil {
		return err
	}
	return m.putUint(balanceKey(to), toBalance+amount)
}

// RewardBalance returns the reward asset holdings of addr.
func (m *Manager) RewardBalance(assetID uint64, addr crypto.Address) (uint64, error) {
	return m.getUint(rewardKey(assetID, addr))
}

// RewardSupply returns the total amount minted of the reward asset.
func (m *Manager) RewardSupply(assetID uint64) (uint64, error) {
	return m.getUint(supplyKey(assetID))
}

// MintReward issues amount of the reward asset to addr and tracks supply.
func (m *Manager) MintReward(assetID uint64, to crypto.Address, amount uint64) error {
	if amount == 0 {
		return nil
	}
	if to.IsZero() {
		return fmt.Errorf("mint: recipient must not be empty")
	}
	balance, err := m.RewardBalance(assetID, to)
	if err != nil {
		return err
	}
	supply, err := m.RewardSupply(assetID)
	if err != nil {
		return err
	}
	if balance+amount < balance || supply+amount < supply {
		return ErrBalanceOverflow
	}
	if err := m.putUint(rewardKey(assetID, to), balance+amount); err != nil {
		return err
	}
	return m.putUint(supplyKey(assetID), supply+amount)
}

// Nonce returns the next expected transaction nonce of addr.
func (m *Manager) Nonce(addr crypto.Address) (uint64, error) {
	return m.getUint(nonceKey(addr))
}

// SetNonce stores the next expected transaction nonce of addr.
func (m *Manager) SetNonce(addr crypto.Address, nonce uint64) error {
	return m.putUint(nonceKey(addr), nonce)
}

// KVPut stores the provided value under the supplied key using RLP encoding.
// The key is hashed with keccak256 before it reaches the trie.
func (m *Manager) KVPut(key []byte, value interface{}) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	return m.trie.Update(kvKey(key), encoded)
}

// KVGet decodes the value stored under key into out. The boolean reports
// whether the key existed.
func (m *Manager) KVGet(key []byte, out interface{}) (bool, error) {
	if len(key) == 0 {
		return false, fmt.Errorf("kv: key must not be empty")
	}
	data, err := m.trie.Get(kvKey(key))
	if err != nil {
		return false, err
	}
	if len(data) == 0 {
		return false, nil
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, err
	}
	return true, nil
}

// KVGetList decodes the RLP list stored under key into the slice pointed to by
// out. A missing key yields an empty slice.
func (m *Manager) KVGetList(key []byte, out interface{}) error {
	val := reflect.ValueOf(out)
	if val.Kind() != reflect.Ptr || val.IsNil() {
		return fmt.Errorf("kv: destination must be a non-nil pointer")
	}
	elem := val.Elem()
	if elem.Kind() != reflect.Slice {
		return fmt.Errorf("kv: destination must point to a slice")
	}
	found, err := m.KVGet(key, out)
	if err != nil {
		return err
	}
	if !found {
		elem.Set(reflect.MakeSlice(elem.Type(), 0, 0))
	}
	return nil
}
