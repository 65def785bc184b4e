package state

import (
	"errors"
	"fmt"

	"tokenlending/crypto"
)

// ErrNoPrice is returned when an aggregator has never been priced.
var ErrNoPrice = errors.New("oracle: no price recorded")

// PriceRecord is the latest median published for an aggregator.
type PriceRecord struct {
	Price uint64
	Slot  uint64
}

// PriceFeed serves aggregator prices out of state. It implements the lending
// engine's PriceOracle.
type PriceFeed struct {
	state *Manager
}

func NewPriceFeed(m *Manager) *PriceFeed {
	return &PriceFeed{state: m}
}

// SetPrice publishes price for aggregator at slot.
func (f *PriceFeed) SetPrice(aggregator crypto.Pubkey, price, slot uint64) error {
	if price == 0 {
		return fmt.Errorf("oracle: price for %s must be positive", aggregator)
	}
	return f.state.putRLP(prefixedKey(pricePrefix, aggregator), &PriceRecord{Price: price, Slot: slot})
}

// Latest returns the full price record for aggregator.
func (f *PriceFeed) Latest(aggregator crypto.Pubkey) (*PriceRecord, error) {
	record := new(PriceRecord)
	ok, err := f.state.getRLP(prefixedKey(pricePrefix, aggregator), record)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoPrice, aggregator)
	}
	return record, nil
}

// MedianPrice returns the latest median for aggregator.
func (f *PriceFeed) MedianPrice(aggregator crypto.Pubkey) (uint64, error) {
	record, err := f.Latest(aggregator)
	if err != nil {
		return 0, err
	}
	return record.Price, nil
}
