package lending

import "tokenlending/native/lending/wad"

// UtilizationRate returns borrowed / (available + borrowed). An empty pool has
// zero utilization.
func (l *ReserveLiquidity) UtilizationRate() (wad.Rate, error) {
	total, err := l.TotalSupply()
	if err != nil {
		return wad.Rate{}, err
	}
	if total.IsZero() {
		return wad.RateZero(), nil
	}
	ratio, err := l.BorrowedAmount.TryDiv(total)
	if err != nil {
		return wad.Rate{}, err
	}
	return ratio.TryRate()
}

// CompoundInterest applies rate, an annual rate, compounded once per slot over
// slotsElapsed slots to both the cumulative borrow rate and the borrowed
// amount.
func (l *ReserveLiquidity) CompoundInterest(rate wad.Rate, slotsElapsed uint64) error {
	slotRate, err := rate.TryDivUint64(SlotsPerYear)
	if err != nil {
		return err
	}
	growth, err := wad.RateOne().TryAdd(slotRate)
	if err != nil {
		return err
	}
	if growth, err = growth.TryPow(slotsElapsed); err != nil {
		return err
	}
	cumulative, err := l.CumulativeBorrowRate.TryMulRate(growth)
	if err != nil {
		return err
	}
	borrowed, err := l.BorrowedAmount.TryMulRate(growth)
	if err != nil {
		return err
	}
	l.CumulativeBorrowRate = cumulative
	l.BorrowedAmount = borrowed
	return nil
}

// CurrentBorrowRate evaluates the kinked rate curve at the current
// utilization. Below the optimal utilization the rate climbs from the minimum
// to the optimal borrow rate; above it the rate climbs to the maximum. With an
// optimal utilization of 100% only the lower segment is used.
func (r *Reserve) CurrentBorrowRate() (wad.Rate, error) {
	utilization, err := r.Liquidity.UtilizationRate()
	if err != nil {
		return wad.Rate{}, err
	}
	cfg := r.Config
	optimal := wad.RateFromPercent(cfg.OptimalUtilizationRate)

	if utilization.Cmp(optimal) < 0 || cfg.OptimalUtilizationRate == 100 {
		if cfg.OptimalBorrowRate < cfg.MinBorrowRate {
			return wad.Rate{}, ErrMathOverflow
		}
		normalized, err := utilization.TryDiv(optimal)
		if err != nil {
			return wad.Rate{}, err
		}
		return curveSegment(normalized, cfg.MinBorrowRate, cfg.OptimalBorrowRate)
	}

	if cfg.MaxBorrowRate < cfg.OptimalBorrowRate || cfg.OptimalUtilizationRate > 100 {
		return wad.Rate{}, ErrMathOverflow
	}
	excess, err := utilization.TrySub(optimal)
	if err != nil {
		return wad.Rate{}, err
	}
	normalized, err := excess.TryDiv(wad.RateFromPercent(100 - cfg.OptimalUtilizationRate))
	if err != nil {
		return wad.Rate{}, err
	}
	return curveSegment(normalized, cfg.OptimalBorrowRate, cfg.MaxBorrowRate)
}

// curveSegment interpolates between two whole-percent rates.
func curveSegment(normalized wad.Rate, from, to uint8) (wad.Rate, error) {
	span, err := normalized.TryMul(wad.RateFromPercent(to - from))
	if err != nil {
		return wad.Rate{}, err
	}
	return span.TryAdd(wad.RateFromPercent(from))
}

// AccrueInterest compounds the current borrow rate over the slots elapsed
// since the reserve was last updated.
func (r *Reserve) AccrueInterest(slot uint64) error {
	elapsed, err := r.LastUpdate.SlotsElapsed(slot)
	if err != nil {
		return err
	}
	if elapsed == 0 {
		return nil
	}
	rate, err := r.CurrentBorrowRate()
	if err != nil {
		return err
	}
	return r.Liquidity.CompoundInterest(rate, elapsed)
}
