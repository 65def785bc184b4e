package state

import (
	"bytes"
	"errors"
	"fmt"
	"sort"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"tokenlending/crypto"
	"tokenlending/storage"
)

// Manager reads and writes account data for a single invocation. Writes are
// buffered until Commit so a failed operation leaves the store untouched.
type Manager struct {
	db      storage.Database
	pending map[string][]byte
}

// NewManager creates a state manager on top of db.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db, pending: make(map[string][]byte)}
}

var (
	accountPrefix      = []byte("account:")
	marketPrefix       = []byte("lending/market:")
	reservePrefix      = []byte("lending/reserve:")
	obligationPrefix   = []byte("lending/obligation:")
	mintPrefix         = []byte("token/mint:")
	tokenAccountPrefix = []byte("token/account:")
	pricePrefix        = []byte("oracle/price:")
	reserveIndexKey    = ethcrypto.Keccak256([]byte("lending/reserve-index"))
	errNilStateRecord  = errors.New("state: nil record")
)

func prefixedKey(prefix []byte, key crypto.Pubkey) []byte {
	buf := make([]byte, len(prefix)+crypto.PubkeyLength)
	copy(buf, prefix)
	copy(buf[len(prefix):], key[:])
	return ethcrypto.Keccak256(buf)
}

func (m *Manager) get(key []byte) ([]byte, error) {
	if value, ok := m.pending[string(key)]; ok {
		if value == nil {
			return nil, nil
		}
		return append([]byte(nil), value...), nil
	}
	value, err := m.db.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	return value, err
}

func (m *Manager) put(key, value []byte) {
	m.pending[string(key)] = append([]byte{}, value...)
}

func (m *Manager) delete(key []byte) {
	m.pending[string(key)] = nil
}

// Commit flushes buffered writes to the database in one batch.
func (m *Manager) Commit() error {
	if len(m.pending) == 0 {
		return nil
	}
	if err := m.db.WriteBatch(m.pending); err != nil {
		return fmt.Errorf("state: commit %d entries: %w", len(m.pending), err)
	}
	m.pending = make(map[string][]byte)
	return nil
}

// Discard drops buffered writes.
func (m *Manager) Discard() {
	m.pending = make(map[string][]byte)
}

// Dirty returns the number of buffered writes.
func (m *Manager) Dirty() int {
	return len(m.pending)
}

// AccountData returns the raw data stored for an account, or nil when the
// account does not exist.
func (m *Manager) AccountData(key crypto.Pubkey) ([]byte, error) {
	return m.get(prefixedKey(accountPrefix, key))
}

// PutAccountData stores raw account data.
func (m *Manager) PutAccountData(key crypto.Pubkey, data []byte) error {
	if data == nil {
		return errNilStateRecord
	}
	m.put(prefixedKey(accountPrefix, key), data)
	return nil
}

// DeleteAccountData removes an account.
func (m *Manager) DeleteAccountData(key crypto.Pubkey) {
	m.delete(prefixedKey(accountPrefix, key))
}

func (m *Manager) getRLP(key []byte, out interface{}) (bool, error) {
	data, err := m.get(key)
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

func (m *Manager) putRLP(key []byte, value interface{}) error {
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	m.put(key, encoded)
	return nil
}

func (m *Manager) loadReserveIndex() ([]crypto.Pubkey, error) {
	var list []crypto.Pubkey
	if _, err := m.getRLP(reserveIndexKey, &list); err != nil {
		return nil, err
	}
	return list, nil
}

func (m *Manager) indexReserve(key crypto.Pubkey) error {
	list, err := m.loadReserveIndex()
	if err != nil {
		return err
	}
	for _, existing := range list {
		if existing == key {
			return nil
		}
	}
	list = append(list, key)
	sort.Slice(list, func(i, j int) bool { return bytes.Compare(list[i][:], list[j][:]) < 0 })
	return m.putRLP(reserveIndexKey, list)
}

// Reserves lists every reserve key that has been stored.
func (m *Manager) Reserves() ([]crypto.Pubkey, error) {
	return m.loadReserveIndex()
}
