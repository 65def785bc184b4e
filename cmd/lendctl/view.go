package main

import (
	"encoding/json"
	"io"
	"strings"

	"tokenlending/config"
	"tokenlending/crypto"
	"tokenlending/native/lending"
)

type marketView struct {
	Market        string `json:"market"`
	Owner         string `json:"owner"`
	Authority     string `json:"authority"`
	BumpSeed      uint8  `json:"bumpSeed"`
	QuoteCurrency string `json:"quoteCurrency"`
}

type reserveView struct {
	Reserve              string `json:"reserve"`
	Market               string `json:"market"`
	LastUpdateSlot       uint64 `json:"lastUpdateSlot"`
	Stale                bool   `json:"stale"`
	LiquidityMint        string `json:"liquidityMint"`
	LiquiditySupply      string `json:"liquiditySupply"`
	FeeReceiver          string `json:"feeReceiver"`
	MedianPrice          uint64 `json:"medianPrice"`
	AvailableAmount      uint64 `json:"availableAmount"`
	BorrowedAmount       string `json:"borrowedAmount"`
	CumulativeBorrowRate string `json:"cumulativeBorrowRate"`
	Utilization          string `json:"utilization"`
	BorrowRate           string `json:"borrowRate"`
	CollateralMint       string `json:"collateralMint"`
	CollateralSupply     string `json:"collateralSupply"`
	CollateralMinted     uint64 `json:"collateralMinted"`
	ExchangeRate         string `json:"collateralExchangeRate"`
	LoanToValueRatio     uint8  `json:"loanToValueRatio"`
	LiquidationThreshold uint8  `json:"liquidationThreshold"`
	LiquidationBonus     uint8  `json:"liquidationBonus"`
	BorrowFee            string `json:"borrowFee"`
}

type obligationDepositView struct {
	Reserve     string `json:"reserve"`
	Amount      uint64 `json:"amount"`
	MarketValue string `json:"marketValue"`
}

type obligationBorrowView struct {
	Reserve              string `json:"reserve"`
	BorrowedAmount       string `json:"borrowedAmount"`
	CumulativeBorrowRate string `json:"cumulativeBorrowRate"`
	MarketValue          string `json:"marketValue"`
}

type obligationView struct {
	Obligation           string                  `json:"obligation"`
	Market               string                  `json:"market"`
	Owner                string                  `json:"owner"`
	LastUpdateSlot       uint64                  `json:"lastUpdateSlot"`
	Stale                bool                    `json:"stale"`
	Deposits             []obligationDepositView `json:"deposits"`
	Borrows              []obligationBorrowView  `json:"borrows"`
	DepositedValue       string                  `json:"depositedValue"`
	BorrowedValue        string                  `json:"borrowedValue"`
	AllowedBorrowValue   string                  `json:"allowedBorrowValue"`
	UnhealthyBorrowValue string                  `json:"unhealthyBorrowValue"`
	LoanToValue          string                  `json:"loanToValue"`
}

type accountView struct {
	Account string `json:"account"`
	Mint    string `json:"mint"`
	Owner   string `json:"owner"`
	Amount  uint64 `json:"amount"`
}

func (s *session) marketView(key crypto.Pubkey) (marketView, error) {
	market, err := s.state.GetLendingMarket(key)
	if err != nil {
		return marketView{}, err
	}
	if !market.IsInitialized() {
		return marketView{}, lending.ErrUninitializedAccount
	}
	authority, err := s.engine.MarketAuthority(key)
	if err != nil {
		return marketView{}, err
	}
	return marketView{
		Market:        key.String(),
		Owner:         market.Owner.String(),
		Authority:     authority.String(),
		BumpSeed:      market.BumpSeed,
		QuoteCurrency: strings.TrimRight(string(market.QuoteCurrency[:]), "\x00"),
	}, nil
}

func (s *session) reserveView(key crypto.Pubkey) (reserveView, error) {
	reserve, err := s.engine.Reserve(s.ctx, key)
	if err != nil {
		return reserveView{}, err
	}
	stale, err := reserve.LastUpdate.IsStale(s.slot)
	if err != nil {
		stale = true
	}
	utilization, err := reserve.Liquidity.UtilizationRate()
	if err != nil {
		return reserveView{}, err
	}
	borrowRate, err := reserve.CurrentBorrowRate()
	if err != nil {
		return reserveView{}, err
	}
	exchange, err := reserve.CollateralExchangeRate()
	if err != nil {
		return reserveView{}, err
	}
	return reserveView{
		Reserve:              key.String(),
		Market:               reserve.LendingMarket.String(),
		LastUpdateSlot:       reserve.LastUpdate.Slot,
		Stale:                stale,
		LiquidityMint:        reserve.Liquidity.MintPubkey.String(),
		LiquiditySupply:      reserve.Liquidity.SupplyPubkey.String(),
		FeeReceiver:          reserve.Liquidity.FeeReceiver.String(),
		MedianPrice:          reserve.Liquidity.MedianPrice,
		AvailableAmount:      reserve.Liquidity.AvailableAmount,
		BorrowedAmount:       reserve.Liquidity.BorrowedAmount.String(),
		CumulativeBorrowRate: reserve.Liquidity.CumulativeBorrowRate.String(),
		Utilization:          utilization.String(),
		BorrowRate:           borrowRate.String(),
		CollateralMint:       reserve.Collateral.MintPubkey.String(),
		CollateralSupply:     reserve.Collateral.SupplyPubkey.String(),
		CollateralMinted:     reserve.Collateral.MintTotalSupply,
		ExchangeRate:         exchange.Rate().String(),
		LoanToValueRatio:     reserve.Config.LoanToValueRatio,
		LiquidationThreshold: reserve.Config.LiquidationThreshold,
		LiquidationBonus:     reserve.Config.LiquidationBonus,
		BorrowFee:            config.FormatBorrowFee(reserve.Config.Fees.BorrowFeeWad),
	}, nil
}

func (s *session) obligationView(key crypto.Pubkey) (obligationView, error) {
	obligation, err := s.engine.Obligation(s.ctx, key)
	if err != nil {
		return obligationView{}, err
	}
	stale, err := obligation.LastUpdate.IsStale(s.slot)
	if err != nil {
		stale = true
	}
	ltv, err := obligation.LoanToValue()
	if err != nil {
		return obligationView{}, err
	}
	view := obligationView{
		Obligation:           key.String(),
		Market:               obligation.LendingMarket.String(),
		Owner:                obligation.Owner.String(),
		LastUpdateSlot:       obligation.LastUpdate.Slot,
		Stale:                stale,
		Deposits:             make([]obligationDepositView, 0, len(obligation.Deposits)),
		Borrows:              make([]obligationBorrowView, 0, len(obligation.Borrows)),
		DepositedValue:       obligation.DepositedValue.String(),
		BorrowedValue:        obligation.BorrowedValue.String(),
		AllowedBorrowValue:   obligation.AllowedBorrowValue.String(),
		UnhealthyBorrowValue: obligation.UnhealthyBorrowValue.String(),
		LoanToValue:          ltv.String(),
	}
	for _, deposit := range obligation.Deposits {
		view.Deposits = append(view.Deposits, obligationDepositView{
			Reserve:     deposit.DepositReserve.String(),
			Amount:      deposit.DepositedAmount,
			MarketValue: deposit.MarketValue.String(),
		})
	}
	for _, borrow := range obligation.Borrows {
		view.Borrows = append(view.Borrows, obligationBorrowView{
			Reserve:              borrow.BorrowReserve.String(),
			BorrowedAmount:       borrow.BorrowedAmount.String(),
			CumulativeBorrowRate: borrow.CumulativeBorrowRate.String(),
			MarketValue:          borrow.MarketValue.String(),
		})
	}
	return view, nil
}

func (s *session) accountView(key crypto.Pubkey) (accountView, error) {
	account, err := s.ledger.Account(key)
	if err != nil {
		return accountView{}, err
	}
	return accountView{
		Account: key.String(),
		Mint:    account.Mint.String(),
		Owner:   account.Owner.String(),
		Amount:  account.Amount,
	}, nil
}

func writeJSON(w io.Writer, value any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(value)
}
