package main

import (
	"errors"
	"flag"
	"fmt"
	"math"
	"sort"
	"strings"

	"tokenlending/crypto"
	"tokenlending/native/lending"
)

// request carries the arguments of one operation. Subcommands fill it from
// flags and simulate fills it from scenario steps.
type request struct {
	Op   string  `yaml:"op"`
	Slot *uint64 `yaml:"slot"`

	Market     string `yaml:"market"`
	Owner      string `yaml:"owner"`
	NewOwner   string `yaml:"newOwner"`
	Quote      string `yaml:"quote"`
	Reserve    string `yaml:"reserve"`
	Obligation string `yaml:"obligation"`

	RepayReserve    string `yaml:"repayReserve"`
	WithdrawReserve string `yaml:"withdrawReserve"`

	Account          string `yaml:"account"`
	Mint             string `yaml:"mint"`
	CollateralMint   string `yaml:"collateralMint"`
	Supply           string `yaml:"supply"`
	FeeReceiver      string `yaml:"feeReceiver"`
	CollateralSupply string `yaml:"collateralSupply"`
	Source           string `yaml:"source"`
	Destination      string `yaml:"destination"`
	Authority        string `yaml:"authority"`
	HostFeeReceiver  string `yaml:"hostFeeReceiver"`
	Aggregator       string `yaml:"aggregator"`

	Symbol   string `yaml:"symbol"`
	Amount   string `yaml:"amount"`
	Decimals uint   `yaml:"decimals"`
	Price    uint64 `yaml:"price"`

	// ExpectError makes a scenario step pass only when the operation fails
	// with an error containing this text.
	ExpectError string `yaml:"expectError"`
}

type operation struct {
	summary string
	// readOnly operations never commit.
	readOnly bool
	bind     func(fs *flag.FlagSet, r *request)
	run      func(s *session, r *request) (any, error)
}

var operations = map[string]operation{
	"init-market": {
		summary: "create a lending market",
		bind: func(fs *flag.FlagSet, r *request) {
			fs.StringVar(&r.Market, "market", "", "market account")
			fs.StringVar(&r.Owner, "owner", "", "market owner (defaults to MarketOwner from the config)")
			fs.StringVar(&r.Quote, "quote", "", "quote currency code (defaults to QuoteCurrency from the config)")
		},
		run: runInitMarket,
	},
	"set-market-owner": {
		summary: "transfer market ownership",
		bind: func(fs *flag.FlagSet, r *request) {
			fs.StringVar(&r.Market, "market", "", "market account")
			fs.StringVar(&r.Owner, "owner", "", "current owner signing the change")
			fs.StringVar(&r.NewOwner, "new-owner", "", "new market owner")
		},
		run: runSetMarketOwner,
	},
	"create-mint": {
		summary: "register a token mint in the reference ledger",
		bind: func(fs *flag.FlagSet, r *request) {
			fs.StringVar(&r.Mint, "mint", "", "mint account")
			fs.UintVar(&r.Decimals, "decimals", 0, "mint decimals")
		},
		run: runCreateMint,
	},
	"create-account": {
		summary: "open a token account",
		bind: func(fs *flag.FlagSet, r *request) {
			fs.StringVar(&r.Account, "account", "", "token account")
			fs.StringVar(&r.Mint, "mint", "", "mint of the account")
			fs.StringVar(&r.Owner, "owner", "", "account owner")
		},
		run: runCreateAccount,
	},
	"mint-to": {
		summary: "mint tokens into an account",
		bind: func(fs *flag.FlagSet, r *request) {
			fs.StringVar(&r.Account, "account", "", "token account")
			fs.StringVar(&r.Amount, "amount", "", "base units to mint")
		},
		run: runMintTo,
	},
	"set-price": {
		summary: "publish a median price for an aggregator",
		bind: func(fs *flag.FlagSet, r *request) {
			fs.StringVar(&r.Aggregator, "aggregator", "", "price aggregator")
			fs.Uint64Var(&r.Price, "price", 0, "price of one whole token in quote currency")
		},
		run: runSetPrice,
	},
	"init-reserve": {
		summary: "create a reserve with an initial deposit",
		bind: func(fs *flag.FlagSet, r *request) {
			fs.StringVar(&r.Reserve, "reserve", "", "reserve account")
			fs.StringVar(&r.Market, "market", "", "market account")
			fs.StringVar(&r.Owner, "owner", "", "market owner (defaults to MarketOwner from the config)")
			fs.StringVar(&r.Source, "source", "", "owner liquidity account funding the initial deposit")
			fs.StringVar(&r.Destination, "destination", "", "collateral account receiving the minted collateral")
			fs.StringVar(&r.Mint, "mint", "", "liquidity mint")
			fs.StringVar(&r.CollateralMint, "collateral-mint", "", "collateral mint (derived when empty)")
			fs.StringVar(&r.Supply, "supply", "", "liquidity supply account (derived when empty)")
			fs.StringVar(&r.FeeReceiver, "fee-receiver", "", "borrow fee receiver (derived when empty)")
			fs.StringVar(&r.CollateralSupply, "collateral-supply", "", "collateral supply account (derived when empty)")
			fs.StringVar(&r.Aggregator, "aggregator", "", "price aggregator")
			fs.Uint64Var(&r.Price, "price", 0, "fixed median price when no aggregator is set")
			fs.StringVar(&r.Symbol, "symbol", "", "reserve section of the config to apply")
			fs.StringVar(&r.Amount, "amount", "", "initial liquidity deposit")
		},
		run: runInitReserve,
	},
	"refresh-reserve": {
		summary: "refresh a reserve price and accrue interest",
		bind:    bindReserve,
		run:     runRefreshReserve,
	},
	"deposit": {
		summary: "deposit liquidity for collateral",
		bind:    bindTransfer,
		run:     runDeposit,
	},
	"redeem": {
		summary: "redeem collateral for liquidity",
		bind:    bindTransfer,
		run:     runRedeem,
	},
	"init-obligation": {
		summary: "create an obligation",
		bind: func(fs *flag.FlagSet, r *request) {
			fs.StringVar(&r.Obligation, "obligation", "", "obligation account")
			fs.StringVar(&r.Market, "market", "", "market account")
			fs.StringVar(&r.Owner, "owner", "", "obligation owner")
		},
		run: runInitObligation,
	},
	"refresh-obligation": {
		summary: "recompute obligation values from fresh reserves",
		bind:    bindObligation,
		run:     runRefreshObligation,
	},
	"deposit-collateral": {
		summary: "pledge collateral to an obligation",
		bind: func(fs *flag.FlagSet, r *request) {
			bindObligation(fs, r)
			fs.StringVar(&r.Reserve, "reserve", "", "reserve of the collateral")
			fs.StringVar(&r.Source, "source", "", "collateral account")
			fs.StringVar(&r.Owner, "owner", "", "obligation owner (defaults to the source owner)")
			fs.StringVar(&r.Amount, "amount", "", "collateral to pledge")
		},
		run: runDepositCollateral,
	},
	"withdraw-collateral": {
		summary: "withdraw collateral from an obligation",
		bind: func(fs *flag.FlagSet, r *request) {
			bindObligation(fs, r)
			fs.StringVar(&r.Reserve, "reserve", "", "reserve of the collateral")
			fs.StringVar(&r.Destination, "destination", "", "collateral account")
			fs.StringVar(&r.Owner, "owner", "", "obligation owner (defaults to the destination owner)")
			fs.StringVar(&r.Amount, "amount", "", `collateral to withdraw, or "all"`)
		},
		run: runWithdrawCollateral,
	},
	"borrow": {
		summary: "borrow liquidity against an obligation",
		bind: func(fs *flag.FlagSet, r *request) {
			bindObligation(fs, r)
			fs.StringVar(&r.Reserve, "reserve", "", "reserve to borrow from")
			fs.StringVar(&r.Destination, "destination", "", "liquidity account receiving the loan")
			fs.StringVar(&r.Owner, "owner", "", "obligation owner (defaults to the destination owner)")
			fs.StringVar(&r.HostFeeReceiver, "host-fee-receiver", "", "optional host fee account")
			fs.StringVar(&r.Amount, "amount", "", `liquidity to borrow, or "all"`)
		},
		run: runBorrow,
	},
	"repay": {
		summary: "repay borrowed liquidity",
		bind: func(fs *flag.FlagSet, r *request) {
			bindObligation(fs, r)
			fs.StringVar(&r.Reserve, "reserve", "", "reserve that was borrowed from")
			fs.StringVar(&r.Source, "source", "", "liquidity account paying")
			fs.StringVar(&r.Authority, "authority", "", "owner of the source account (defaults to its owner)")
			fs.StringVar(&r.Amount, "amount", "", `liquidity to repay, or "all"`)
		},
		run: runRepay,
	},
	"liquidate": {
		summary: "repay an unhealthy obligation for its collateral",
		bind: func(fs *flag.FlagSet, r *request) {
			bindObligation(fs, r)
			fs.StringVar(&r.RepayReserve, "repay-reserve", "", "reserve of the debt being repaid")
			fs.StringVar(&r.WithdrawReserve, "withdraw-reserve", "", "reserve of the collateral being seized")
			fs.StringVar(&r.Source, "source", "", "liquidator liquidity account")
			fs.StringVar(&r.Destination, "destination", "", "liquidator collateral account")
			fs.StringVar(&r.Authority, "authority", "", "owner of the source account (defaults to its owner)")
			fs.StringVar(&r.Amount, "amount", "", `liquidity to repay, or "all"`)
		},
		run: runLiquidate,
	},
	"show-reserve": {
		summary:  "print a reserve",
		readOnly: true,
		bind:     bindReserve,
		run:      runShowReserve,
	},
	"show-obligation": {
		summary:  "print an obligation",
		readOnly: true,
		bind:     bindObligation,
		run:      runShowObligation,
	},
	"show-account": {
		summary:  "print a token account",
		readOnly: true,
		bind: func(fs *flag.FlagSet, r *request) {
			fs.StringVar(&r.Account, "account", "", "token account")
		},
		run: runShowAccount,
	},
}

func operationNames() []string {
	names := make([]string, 0, len(operations))
	for name := range operations {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func bindReserve(fs *flag.FlagSet, r *request) {
	fs.StringVar(&r.Reserve, "reserve", "", "reserve account")
}

func bindObligation(fs *flag.FlagSet, r *request) {
	fs.StringVar(&r.Obligation, "obligation", "", "obligation account")
}

func bindTransfer(fs *flag.FlagSet, r *request) {
	bindReserve(fs, r)
	fs.StringVar(&r.Source, "source", "", "token account paying")
	fs.StringVar(&r.Destination, "destination", "", "token account receiving")
	fs.StringVar(&r.Authority, "authority", "", "owner of the source account (defaults to its owner)")
	fs.StringVar(&r.Amount, "amount", "", "base units")
}

func runInitMarket(s *session, r *request) (any, error) {
	market, err := parseKey("market", r.Market)
	if err != nil {
		return nil, err
	}
	owner := s.cfg.MarketOwner
	if r.Owner != "" {
		if owner, err = parseKey("owner", r.Owner); err != nil {
			return nil, err
		}
	}
	if owner.IsZero() {
		return nil, errors.New("--owner is required when MarketOwner is not configured")
	}
	code := r.Quote
	if code == "" {
		code = s.cfg.QuoteCurrency
	}
	quote, err := lending.QuoteCurrencyFromString(code)
	if err != nil {
		return nil, err
	}
	if err := s.engine.InitLendingMarket(market, owner, quote, ledgerProgramID, oracleProgramID); err != nil {
		return nil, err
	}
	return s.marketView(market)
}

func runSetMarketOwner(s *session, r *request) (any, error) {
	market, err := parseKey("market", r.Market)
	if err != nil {
		return nil, err
	}
	signer, err := parseKey("owner", r.Owner)
	if err != nil {
		return nil, err
	}
	newOwner, err := parseKey("new-owner", r.NewOwner)
	if err != nil {
		return nil, err
	}
	if err := s.engine.SetLendingMarketOwner(market, signer, newOwner); err != nil {
		return nil, err
	}
	return s.marketView(market)
}

func runCreateMint(s *session, r *request) (any, error) {
	mint, err := parseKey("mint", r.Mint)
	if err != nil {
		return nil, err
	}
	if r.Decimals > math.MaxUint8 {
		return nil, fmt.Errorf("--decimals must be at most %d", math.MaxUint8)
	}
	if err := s.ledger.CreateMint(mint, uint8(r.Decimals)); err != nil {
		return nil, err
	}
	return map[string]any{"mint": mint.String(), "decimals": r.Decimals}, nil
}

func runCreateAccount(s *session, r *request) (any, error) {
	account, err := parseKey("account", r.Account)
	if err != nil {
		return nil, err
	}
	mint, err := parseKey("mint", r.Mint)
	if err != nil {
		return nil, err
	}
	owner, err := parseKey("owner", r.Owner)
	if err != nil {
		return nil, err
	}
	if err := s.ledger.CreateAccount(account, mint, owner); err != nil {
		return nil, err
	}
	return s.accountView(account)
}

func runMintTo(s *session, r *request) (any, error) {
	account, err := parseKey("account", r.Account)
	if err != nil {
		return nil, err
	}
	amount, err := parseExactAmount("amount", r.Amount)
	if err != nil {
		return nil, err
	}
	if err := s.ledger.Mint(account, amount); err != nil {
		return nil, err
	}
	return s.accountView(account)
}

func runSetPrice(s *session, r *request) (any, error) {
	aggregator, err := parseKey("aggregator", r.Aggregator)
	if err != nil {
		return nil, err
	}
	if err := s.feed.SetPrice(aggregator, r.Price, s.slot); err != nil {
		return nil, err
	}
	return map[string]any{"aggregator": aggregator.String(), "price": r.Price, "slot": s.slot}, nil
}

func runInitReserve(s *session, r *request) (any, error) {
	reserve, err := parseKey("reserve", r.Reserve)
	if err != nil {
		return nil, err
	}
	market, err := parseKey("market", r.Market)
	if err != nil {
		return nil, err
	}
	owner := s.cfg.MarketOwner
	if r.Owner != "" {
		if owner, err = parseKey("owner", r.Owner); err != nil {
			return nil, err
		}
	}
	source, err := parseKey("source", r.Source)
	if err != nil {
		return nil, err
	}
	mint, err := parseKey("mint", r.Mint)
	if err != nil {
		return nil, err
	}
	aggregator, err := parseOptionalKey("aggregator", r.Aggregator)
	if err != nil {
		return nil, err
	}
	amount, err := parseExactAmount("amount", r.Amount)
	if err != nil {
		return nil, err
	}
	cfg, err := s.cfg.Reserve(r.Symbol)
	if err != nil {
		return nil, err
	}

	collateralMint, err := derivedKey("collateral-mint", r.CollateralMint, reserve, "collateral-mint")
	if err != nil {
		return nil, err
	}
	supply, err := derivedKey("supply", r.Supply, reserve, "liquidity-supply")
	if err != nil {
		return nil, err
	}
	feeReceiver, err := derivedKey("fee-receiver", r.FeeReceiver, reserve, "fee-receiver")
	if err != nil {
		return nil, err
	}
	collateralSupply, err := derivedKey("collateral-supply", r.CollateralSupply, reserve, "collateral-supply")
	if err != nil {
		return nil, err
	}
	destination, err := derivedKey("destination", r.Destination, reserve, "owner-collateral")
	if err != nil {
		return nil, err
	}

	mintInfo, err := s.ledger.MintInfo(mint)
	if err != nil {
		return nil, err
	}
	sourceAccount, err := s.ledger.Account(source)
	if err != nil {
		return nil, err
	}
	authority, err := s.engine.MarketAuthority(market)
	if err != nil {
		return nil, err
	}
	if err := s.ensureMint(collateralMint, mintInfo.Decimals); err != nil {
		return nil, err
	}
	for _, account := range []struct{ key, mint, owner crypto.Pubkey }{
		{supply, mint, authority},
		{feeReceiver, mint, owner},
		{collateralSupply, collateralMint, authority},
		{destination, collateralMint, sourceAccount.Owner},
	} {
		if err := s.ensureAccount(account.key, account.mint, account.owner); err != nil {
			return nil, err
		}
	}

	minted, err := s.engine.InitReserve(lending.InitReserveParams{
		Reserve:               reserve,
		LendingMarket:         market,
		MarketOwner:           owner,
		LiquidityAmount:       amount,
		SourceLiquidity:       source,
		DestinationCollateral: destination,
		LiquidityMint:         mint,
		LiquidityMintDecimals: mintInfo.Decimals,
		LiquiditySupply:       supply,
		LiquidityFeeReceiver:  feeReceiver,
		CollateralMint:        collateralMint,
		CollateralSupply:      collateralSupply,
		Aggregator:            aggregator,
		MedianPrice:           r.Price,
		Config:                cfg,
	})
	if err != nil {
		return nil, err
	}
	view, err := s.reserveView(reserve)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"reserve":               view,
		"collateralMinted":      minted,
		"destinationCollateral": destination.String(),
	}, nil
}

func runRefreshReserve(s *session, r *request) (any, error) {
	reserve, err := parseKey("reserve", r.Reserve)
	if err != nil {
		return nil, err
	}
	if err := s.engine.RefreshReserve(reserve); err != nil {
		return nil, err
	}
	return s.reserveView(reserve)
}

type transferArgs struct {
	reserve, source, destination, authority crypto.Pubkey
	amount                                  uint64
}

func (s *session) transferArgs(r *request) (transferArgs, error) {
	var args transferArgs
	var err error
	if args.reserve, err = parseKey("reserve", r.Reserve); err != nil {
		return args, err
	}
	if args.source, err = parseKey("source", r.Source); err != nil {
		return args, err
	}
	if args.destination, err = parseKey("destination", r.Destination); err != nil {
		return args, err
	}
	if args.authority, err = s.ownerOr("authority", r.Authority, args.source); err != nil {
		return args, err
	}
	args.amount, err = parseExactAmount("amount", r.Amount)
	return args, err
}

func runDeposit(s *session, r *request) (any, error) {
	args, err := s.transferArgs(r)
	if err != nil {
		return nil, err
	}
	minted, err := s.engine.DepositReserveLiquidity(lending.DepositParams{
		Reserve:               args.reserve,
		SourceLiquidity:       args.source,
		DestinationCollateral: args.destination,
		Authority:             args.authority,
		Amount:                args.amount,
	})
	if err != nil {
		return nil, err
	}
	return map[string]any{"collateralMinted": minted}, nil
}

func runRedeem(s *session, r *request) (any, error) {
	args, err := s.transferArgs(r)
	if err != nil {
		return nil, err
	}
	received, err := s.engine.RedeemReserveCollateral(lending.RedeemParams{
		Reserve:              args.reserve,
		SourceCollateral:     args.source,
		DestinationLiquidity: args.destination,
		Authority:            args.authority,
		Amount:               args.amount,
	})
	if err != nil {
		return nil, err
	}
	return map[string]any{"liquidityReceived": received}, nil
}

func runInitObligation(s *session, r *request) (any, error) {
	obligation, err := parseKey("obligation", r.Obligation)
	if err != nil {
		return nil, err
	}
	market, err := parseKey("market", r.Market)
	if err != nil {
		return nil, err
	}
	owner, err := parseKey("owner", r.Owner)
	if err != nil {
		return nil, err
	}
	if err := s.engine.InitObligation(obligation, market, owner); err != nil {
		return nil, err
	}
	return s.obligationView(obligation)
}

func runRefreshObligation(s *session, r *request) (any, error) {
	obligation, err := parseKey("obligation", r.Obligation)
	if err != nil {
		return nil, err
	}
	if err := s.engine.RefreshObligation(obligation); err != nil {
		return nil, err
	}
	return s.obligationView(obligation)
}

func runDepositCollateral(s *session, r *request) (any, error) {
	obligation, err := parseKey("obligation", r.Obligation)
	if err != nil {
		return nil, err
	}
	reserve, err := parseKey("reserve", r.Reserve)
	if err != nil {
		return nil, err
	}
	source, err := parseKey("source", r.Source)
	if err != nil {
		return nil, err
	}
	owner, err := s.ownerOr("owner", r.Owner, source)
	if err != nil {
		return nil, err
	}
	amount, err := parseExactAmount("amount", r.Amount)
	if err != nil {
		return nil, err
	}
	if err := s.engine.DepositObligationCollateral(lending.ObligationCollateralParams{
		Obligation:       obligation,
		Reserve:          reserve,
		SourceCollateral: source,
		Owner:            owner,
		Amount:           amount,
	}); err != nil {
		return nil, err
	}
	return s.obligationView(obligation)
}

func runWithdrawCollateral(s *session, r *request) (any, error) {
	obligation, err := parseKey("obligation", r.Obligation)
	if err != nil {
		return nil, err
	}
	reserve, err := parseKey("reserve", r.Reserve)
	if err != nil {
		return nil, err
	}
	destination, err := parseKey("destination", r.Destination)
	if err != nil {
		return nil, err
	}
	owner, err := s.ownerOr("owner", r.Owner, destination)
	if err != nil {
		return nil, err
	}
	amount, err := parseAmount("amount", r.Amount)
	if err != nil {
		return nil, err
	}
	withdrawn, err := s.engine.WithdrawObligationCollateral(lending.WithdrawCollateralParams{
		Obligation:            obligation,
		Reserve:               reserve,
		DestinationCollateral: destination,
		Owner:                 owner,
		Amount:                amount,
	})
	if err != nil {
		return nil, err
	}
	return map[string]any{"collateralWithdrawn": withdrawn}, nil
}

func runBorrow(s *session, r *request) (any, error) {
	obligation, err := parseKey("obligation", r.Obligation)
	if err != nil {
		return nil, err
	}
	reserve, err := parseKey("reserve", r.Reserve)
	if err != nil {
		return nil, err
	}
	destination, err := parseKey("destination", r.Destination)
	if err != nil {
		return nil, err
	}
	owner, err := s.ownerOr("owner", r.Owner, destination)
	if err != nil {
		return nil, err
	}
	host, err := parseOptionalKey("host-fee-receiver", r.HostFeeReceiver)
	if err != nil {
		return nil, err
	}
	amount, err := parseAmount("amount", r.Amount)
	if err != nil {
		return nil, err
	}
	result, err := s.engine.BorrowObligationLiquidity(lending.BorrowParams{
		Obligation:           obligation,
		Reserve:              reserve,
		DestinationLiquidity: destination,
		Owner:                owner,
		HostFeeReceiver:      host,
		Amount:               amount,
	})
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"borrowAmount":  result.BorrowAmount.String(),
		"receiveAmount": result.ReceiveAmount,
		"borrowFee":     result.BorrowFee,
		"hostFee":       result.HostFee,
	}, nil
}

func runRepay(s *session, r *request) (any, error) {
	obligation, err := parseKey("obligation", r.Obligation)
	if err != nil {
		return nil, err
	}
	reserve, err := parseKey("reserve", r.Reserve)
	if err != nil {
		return nil, err
	}
	source, err := parseKey("source", r.Source)
	if err != nil {
		return nil, err
	}
	authority, err := s.ownerOr("authority", r.Authority, source)
	if err != nil {
		return nil, err
	}
	amount, err := parseAmount("amount", r.Amount)
	if err != nil {
		return nil, err
	}
	result, err := s.engine.RepayObligationLiquidity(lending.RepayParams{
		Obligation:      obligation,
		Reserve:         reserve,
		SourceLiquidity: source,
		Authority:       authority,
		Amount:          amount,
	})
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"settleAmount": result.SettleAmount.String(),
		"repayAmount":  result.RepayAmount,
	}, nil
}

func runLiquidate(s *session, r *request) (any, error) {
	obligation, err := parseKey("obligation", r.Obligation)
	if err != nil {
		return nil, err
	}
	repayReserve, err := parseKey("repay-reserve", r.RepayReserve)
	if err != nil {
		return nil, err
	}
	withdrawReserve, err := parseKey("withdraw-reserve", r.WithdrawReserve)
	if err != nil {
		return nil, err
	}
	source, err := parseKey("source", r.Source)
	if err != nil {
		return nil, err
	}
	destination, err := parseKey("destination", r.Destination)
	if err != nil {
		return nil, err
	}
	authority, err := s.ownerOr("authority", r.Authority, source)
	if err != nil {
		return nil, err
	}
	amount, err := parseAmount("amount", r.Amount)
	if err != nil {
		return nil, err
	}
	result, err := s.engine.LiquidateObligation(lending.LiquidateParams{
		Obligation:            obligation,
		RepayReserve:          repayReserve,
		WithdrawReserve:       withdrawReserve,
		SourceLiquidity:       source,
		DestinationCollateral: destination,
		Authority:             authority,
		Amount:                amount,
	})
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"settleAmount":   result.SettleAmount.String(),
		"repayAmount":    result.RepayAmount,
		"withdrawAmount": result.WithdrawAmount,
	}, nil
}

func runShowReserve(s *session, r *request) (any, error) {
	reserve, err := parseKey("reserve", r.Reserve)
	if err != nil {
		return nil, err
	}
	return s.reserveView(reserve)
}

func runShowObligation(s *session, r *request) (any, error) {
	obligation, err := parseKey("obligation", r.Obligation)
	if err != nil {
		return nil, err
	}
	return s.obligationView(obligation)
}

func runShowAccount(s *session, r *request) (any, error) {
	account, err := parseKey("account", r.Account)
	if err != nil {
		return nil, err
	}
	return s.accountView(account)
}

// execute runs op against s and settles the session's pending writes.
func execute(s *session, name string, op operation, r *request) (any, error) {
	if err := s.ctx.Err(); err != nil {
		return nil, err
	}
	result, err := op.run(s, r)
	if op.readOnly {
		s.state.Discard()
		return result, err
	}
	if err := s.finish(name, err); err != nil {
		return nil, err
	}
	return result, nil
}

func unknownOperation(name string) error {
	return fmt.Errorf("unknown operation %q (known: %s)", name, strings.Join(operationNames(), ", "))
}
