package state

import (
	"encoding/binary"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
)

// Store is the key-value surface the manager reads and writes. Missing keys
// must be reported as an empty value.
type Store interface {
	Get(key []byte) ([]byte, error)
	Update(key, value []byte) error
}

// Manager maps typed escrow records onto RLP-encoded values behind hashed
// keys.
type Manager struct {
	store Store
}

// NewManager creates a state manager operating on the provided store.
func NewManager(store Store) *Manager {
	return &Manager{store: store}
}

var (
	escrowPrefix     = []byte("escrow/record/")
	escrowCounterKey = ethcrypto.Keccak256([]byte("escrow/counter"))
	escrowParamsKey  = ethcrypto.Keccak256([]byte("escrow/params"))
	arbitratorPrefix = []byte("arbitrator/record/")
	settlementPrefix = []byte("dispute/settlement/")
	balancePrefix    = []byte("bank/balance/")
	allowancePrefix  = []byte("bank/allowance/")
)

func idKey(prefix []byte, id uint64) []byte {
	buf := make([]byte, len(prefix)+8)
	copy(buf, prefix)
	binary.BigEndian.PutUint64(buf[len(prefix):], id)
	return ethcrypto.Keccak256(buf)
}

func addressKey(prefix []byte, addrs ...common.Address) []byte {
	buf := make([]byte, 0, len(prefix)+len(addrs)*common.AddressLength)
	buf = append(buf, prefix...)
	for _, addr := range addrs {
		buf = append(buf, addr.Bytes()...)
	}
	return ethcrypto.Keccak256(buf)
}

func (m *Manager) put(key []byte, value interface{}) error {
	if m == nil || m.store == nil {
		return fmt.Errorf("state: store not configured")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	return m.store.Update(key, encoded)
}

func (m *Manager) get(key []byte, out interface{}) (bool, error) {
	if m == nil || m.store == nil {
		return false, fmt.Errorf("state: store not configured")
	}
	data, err := m.store.Get(key)
	if err != nil {
		return false, err
	}
	if len(data) == 0 {
		return false, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, err
	}
	return true, nil
}

func (m *Manager) loadBigInt(key []byte) (*big.Int, error) {
	value := new(big.Int)
	ok, err := m.get(key, value)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return value, nil
}

func (m *Manager) writeBigInt(key []byte, amount *big.Int) error {
	if amount == nil {
		amount = big.NewInt(0)
	}
	if amount.Sign() < 0 {
		return fmt.Errorf("state: negative amount")
	}
	return m.put(key, amount)
}
