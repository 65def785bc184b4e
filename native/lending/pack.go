package lending

import "fmt"

// Account sizes. Changing a layout breaks every account already written with
// it.
const (
	ReserveLen       = 567
	ObligationLen    = 916
	LendingMarketLen = 258

	obligationCollateralLen = 56
	obligationLiquidityLen  = 80
	obligationHeaderLen     = 140
	obligationDataLen       = ObligationLen - obligationHeaderLen
	reservePaddingLen       = 256
	marketPaddingLen        = 128
)

func checkVersion(version uint8) error {
	switch {
	case version == UninitializedVersion:
		return ErrUninitializedAccount
	case version > ProgramVersion:
		return fmt.Errorf("%w: unsupported version %d", ErrInvalidAccountData, version)
	}
	return nil
}

// PackReserve serialises r into its fixed account layout.
func PackReserve(r *Reserve) ([]byte, error) {
	w := newLayoutWriter(ReserveLen)
	w.u8(r.Version)
	w.u64(r.LastUpdate.Slot)
	w.flag(r.LastUpdate.Stale)
	w.pubkey(r.LendingMarket)

	w.pubkey(r.Liquidity.MintPubkey)
	w.u8(r.Liquidity.MintDecimals)
	w.pubkey(r.Liquidity.SupplyPubkey)
	w.pubkey(r.Liquidity.FeeReceiver)
	w.optionalPubkey(r.Liquidity.Aggregator)
	w.decimal(r.Liquidity.CumulativeBorrowRate)
	w.u64(r.Liquidity.MedianPrice)
	w.u64(r.Liquidity.AvailableAmount)
	w.decimal(r.Liquidity.BorrowedAmount)

	w.pubkey(r.Collateral.MintPubkey)
	w.u64(r.Collateral.MintTotalSupply)
	w.pubkey(r.Collateral.SupplyPubkey)

	w.u8(r.Config.OptimalUtilizationRate)
	w.u8(r.Config.MinBorrowRate)
	w.u8(r.Config.OptimalBorrowRate)
	w.u8(r.Config.MaxBorrowRate)
	w.u8(r.Config.LoanToValueRatio)
	w.u8(r.Config.LiquidationThreshold)
	w.u8(r.Config.LiquidationBonus)
	w.u64(r.Config.Fees.BorrowFeeWad)
	w.u8(r.Config.Fees.HostFeePercentage)
	w.skip(reservePaddingLen)
	return w.Bytes()
}

// UnpackReserve decodes a reserve account.
func UnpackReserve(data []byte) (*Reserve, error) {
	rd := newLayoutReader(data, ReserveLen)
	r := &Reserve{}
	r.Version = rd.u8()
	if err := rd.Err(); err != nil {
		return nil, err
	}
	if err := checkVersion(r.Version); err != nil {
		return nil, err
	}
	r.LastUpdate.Slot = rd.u64()
	r.LastUpdate.Stale = rd.flag()
	r.LendingMarket = rd.pubkey()

	r.Liquidity.MintPubkey = rd.pubkey()
	r.Liquidity.MintDecimals = rd.u8()
	r.Liquidity.SupplyPubkey = rd.pubkey()
	r.Liquidity.FeeReceiver = rd.pubkey()
	r.Liquidity.Aggregator = rd.optionalPubkey()
	r.Liquidity.CumulativeBorrowRate = rd.decimal()
	r.Liquidity.MedianPrice = rd.u64()
	r.Liquidity.AvailableAmount = rd.u64()
	r.Liquidity.BorrowedAmount = rd.decimal()

	r.Collateral.MintPubkey = rd.pubkey()
	r.Collateral.MintTotalSupply = rd.u64()
	r.Collateral.SupplyPubkey = rd.pubkey()

	r.Config.OptimalUtilizationRate = rd.u8()
	r.Config.MinBorrowRate = rd.u8()
	r.Config.OptimalBorrowRate = rd.u8()
	r.Config.MaxBorrowRate = rd.u8()
	r.Config.LoanToValueRatio = rd.u8()
	r.Config.LiquidationThreshold = rd.u8()
	r.Config.LiquidationBonus = rd.u8()
	r.Config.Fees.BorrowFeeWad = rd.u64()
	r.Config.Fees.HostFeePercentage = rd.u8()
	rd.skip(reservePaddingLen)
	if err := rd.Err(); err != nil {
		return nil, err
	}
	return r, nil
}

// PackObligation serialises o. Deposits and borrows share a fixed data
// region; positions that do not fit are rejected.
func PackObligation(o *Obligation) ([]byte, error) {
	if len(o.Deposits)+len(o.Borrows) > MaxObligationReserves {
		return nil, ErrObligationReserveLimit
	}
	if len(o.Deposits)*obligationCollateralLen+len(o.Borrows)*obligationLiquidityLen > obligationDataLen {
		return nil, ErrObligationReserveLimit
	}
	w := newLayoutWriter(ObligationLen)
	w.u8(o.Version)
	w.u64(o.LastUpdate.Slot)
	w.flag(o.LastUpdate.Stale)
	w.pubkey(o.LendingMarket)
	w.pubkey(o.Owner)
	w.decimal(o.DepositedValue)
	w.decimal(o.BorrowedValue)
	w.decimal(o.AllowedBorrowValue)
	w.decimal(o.UnhealthyBorrowValue)
	w.u8(uint8(len(o.Deposits)))
	w.u8(uint8(len(o.Borrows)))
	for _, c := range o.Deposits {
		w.pubkey(c.DepositReserve)
		w.u64(c.DepositedAmount)
		w.decimal(c.MarketValue)
	}
	for _, l := range o.Borrows {
		w.pubkey(l.BorrowReserve)
		w.decimal(l.CumulativeBorrowRate)
		w.decimal(l.BorrowedAmount)
		w.decimal(l.MarketValue)
	}
	return w.Bytes()
}

// UnpackObligation decodes an obligation account.
func UnpackObligation(data []byte) (*Obligation, error) {
	rd := newLayoutReader(data, ObligationLen)
	o := &Obligation{}
	o.Version = rd.u8()
	if err := rd.Err(); err != nil {
		return nil, err
	}
	if err := checkVersion(o.Version); err != nil {
		return nil, err
	}
	o.LastUpdate.Slot = rd.u64()
	o.LastUpdate.Stale = rd.flag()
	o.LendingMarket = rd.pubkey()
	o.Owner = rd.pubkey()
	o.DepositedValue = rd.decimal()
	o.BorrowedValue = rd.decimal()
	o.AllowedBorrowValue = rd.decimal()
	o.UnhealthyBorrowValue = rd.decimal()
	depositsLen := int(rd.u8())
	borrowsLen := int(rd.u8())
	if err := rd.Err(); err != nil {
		return nil, err
	}
	if depositsLen+borrowsLen > MaxObligationReserves ||
		depositsLen*obligationCollateralLen+borrowsLen*obligationLiquidityLen > obligationDataLen {
		return nil, fmt.Errorf("%w: %d deposits and %d borrows exceed the obligation layout", ErrInvalidAccountData, depositsLen, borrowsLen)
	}
	if depositsLen > 0 {
		o.Deposits = make([]ObligationCollateral, 0, depositsLen)
	}
	for i := 0; i < depositsLen; i++ {
		o.Deposits = append(o.Deposits, ObligationCollateral{
			DepositReserve:  rd.pubkey(),
			DepositedAmount: rd.u64(),
			MarketValue:     rd.decimal(),
		})
	}
	if borrowsLen > 0 {
		o.Borrows = make([]ObligationLiquidity, 0, borrowsLen)
	}
	for i := 0; i < borrowsLen; i++ {
		o.Borrows = append(o.Borrows, ObligationLiquidity{
			BorrowReserve:        rd.pubkey(),
			CumulativeBorrowRate: rd.decimal(),
			BorrowedAmount:       rd.decimal(),
			MarketValue:          rd.decimal(),
		})
	}
	if err := rd.Err(); err != nil {
		return nil, err
	}
	return o, nil
}

// PackLendingMarket serialises m.
func PackLendingMarket(m *LendingMarket) ([]byte, error) {
	w := newLayoutWriter(LendingMarketLen)
	w.u8(m.Version)
	w.u8(m.BumpSeed)
	w.pubkey(m.Owner)
	w.bytes32(m.QuoteCurrency)
	w.pubkey(m.TokenProgramID)
	w.pubkey(m.OracleProgramID)
	w.skip(marketPaddingLen)
	return w.Bytes()
}

// UnpackLendingMarket decodes a lending market account.
func UnpackLendingMarket(data []byte) (*LendingMarket, error) {
	rd := newLayoutReader(data, LendingMarketLen)
	m := &LendingMarket{}
	m.Version = rd.u8()
	if err := rd.Err(); err != nil {
		return nil, err
	}
	if err := checkVersion(m.Version); err != nil {
		return nil, err
	}
	m.BumpSeed = rd.u8()
	m.Owner = rd.pubkey()
	m.QuoteCurrency = rd.bytes32()
	m.TokenProgramID = rd.pubkey()
	m.OracleProgramID = rd.pubkey()
	rd.skip(marketPaddingLen)
	if err := rd.Err(); err != nil {
		return nil, err
	}
	return m, nil
}
