package state

import (
	"tokenlending/crypto"
	"tokenlending/native/lending"
)

// GetLendingMarket loads a lending market, returning nil when it does not exist.
func (m *Manager) GetLendingMarket(key crypto.Pubkey) (*lending.LendingMarket, error) {
	data, err := m.get(prefixedKey(marketPrefix, key))
	if err != nil || data == nil {
		return nil, err
	}
	return lending.UnpackLendingMarket(data)
}

// PutLendingMarket stores a lending market in its packed layout.
func (m *Manager) PutLendingMarket(key crypto.Pubkey, market *lending.LendingMarket) error {
	if market == nil {
		return errNilStateRecord
	}
	data, err := lending.PackLendingMarket(market)
	if err != nil {
		return err
	}
	m.put(prefixedKey(marketPrefix, key), data)
	return nil
}

// GetReserve loads a reserve, returning nil when it does not exist.
func (m *Manager) GetReserve(key crypto.Pubkey) (*lending.Reserve, error) {
	data, err := m.get(prefixedKey(reservePrefix, key))
	if err != nil || data == nil {
		return nil, err
	}
	return lending.UnpackReserve(data)
}

// PutReserve stores a reserve and records it in the reserve index.
func (m *Manager) PutReserve(key crypto.Pubkey, reserve *lending.Reserve) error {
	if reserve == nil {
		return errNilStateRecord
	}
	data, err := lending.PackReserve(reserve)
	if err != nil {
		return err
	}
	m.put(prefixedKey(reservePrefix, key), data)
	return m.indexReserve(key)
}

// GetObligation loads an obligation, returning nil when it does not exist.
func (m *Manager) GetObligation(key crypto.Pubkey) (*lending.Obligation, error) {
	data, err := m.get(prefixedKey(obligationPrefix, key))
	if err != nil || data == nil {
		return nil, err
	}
	return lending.UnpackObligation(data)
}

func (m *Manager) PutObligation(key crypto.Pubkey, obligation *lending.Obligation) error {
	if obligation == nil {
		return errNilStateRecord
	}
	data, err := lending.PackObligation(obligation)
	if err != nil {
		return err
	}
	m.put(prefixedKey(obligationPrefix, key), data)
	return nil
}
