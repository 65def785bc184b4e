package main

import (
	"context"
	"encoding/binary"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"tokenlending/config"
	"tokenlending/core/state"
	"tokenlending/crypto"
	nativecommon "tokenlending/native/common"
	"tokenlending/native/lending"
	"tokenlending/observability"
	"tokenlending/observability/logging"
	"tokenlending/storage"
)

const (
	serviceName       = "lendctl"
	envConfigPath     = "LENDCTL_CONFIG"
	defaultConfigPath = "lendctl.toml"
)

var (
	clockKey        = crypto.PubkeyFromSeed("lendctl/clock")
	ledgerProgramID = crypto.PubkeyFromSeed("lendctl/token-ledger")
	oracleProgramID = crypto.PubkeyFromSeed("lendctl/price-feed")
)

// commonFlags are accepted by every state-changing subcommand.
type commonFlags struct {
	configPath string
	slot       uint64
	slotSet    bool
}

func (c *commonFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&c.configPath, "config", stringFromEnv(envConfigPath, defaultConfigPath), "path to the lendctl TOML config")
	fs.Func("slot", "slot to execute at (defaults to the last slot used)", func(value string) error {
		slot, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid slot %q", value)
		}
		c.slot, c.slotSet = slot, true
		return nil
	})
}

// session wires one invocation: a state manager over the configured store,
// the reference token ledger and price feed, and an engine bound to them.
type session struct {
	ctx    context.Context
	id     string
	cfg    *config.Config
	db     storage.Database
	state  *state.Manager
	ledger *state.Ledger
	feed   *state.PriceFeed
	engine *lending.Engine
	logger *slog.Logger
	slot   uint64
}

func newSession(ctx context.Context, cfg *config.Config, db storage.Database, stderr io.Writer) (*session, error) {
	level, err := config.ParseLogLevel(cfg.Logging.Level)
	if err != nil {
		return nil, err
	}
	id := uuid.NewString()
	logger := logging.Setup(serviceName, cfg.Logging.Env, logging.Options{
		Level:      level,
		Output:     stderr,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
	}).With("invocation", id)

	mgr := state.NewManager(db)
	ledger := state.NewLedger(mgr)
	feed := state.NewPriceFeed(mgr)
	engine := lending.NewEngine(cfg.ProgramID)
	engine.SetState(mgr)
	engine.SetLedger(ledger)
	engine.SetOracle(feed)
	engine.SetLogger(logger)
	engine.SetRecorder(observability.LendingMetrics())
	if len(cfg.PausedModules) > 0 {
		pauses := nativecommon.NewPauseSet(cfg.PausedModules...)
		engine.SetPauses(pauses)
		logger.Warn("native modules paused by configuration", "modules", pauses.Modules())
	}

	return &session{
		ctx:    ctx,
		id:     id,
		cfg:    cfg,
		db:     db,
		state:  mgr,
		ledger: ledger,
		feed:   feed,
		engine: engine,
		logger: logger,
	}, nil
}

// openSession loads the config and opens the LevelDB store under DataDir.
func openSession(ctx context.Context, common commonFlags, stderr io.Writer) (*session, error) {
	cfg, err := config.Load(common.configPath)
	if err != nil {
		return nil, err
	}
	db, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "state"))
	if err != nil {
		return nil, fmt.Errorf("open state: %w", err)
	}
	s, err := newSession(ctx, cfg, db, stderr)
	if err != nil {
		db.Close()
		return nil, err
	}
	slot := common.slot
	if !common.slotSet {
		if slot, err = s.lastSlot(); err != nil {
			db.Close()
			return nil, err
		}
	}
	if err := s.setSlot(slot); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *session) lastSlot() (uint64, error) {
	data, err := s.state.AccountData(clockKey)
	if err != nil {
		return 0, err
	}
	if len(data) != 8 {
		return 0, nil
	}
	return binary.LittleEndian.Uint64(data), nil
}

func (s *session) setSlot(slot uint64) error {
	s.slot = slot
	s.engine.SetSlot(slot)
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], slot)
	return s.state.PutAccountData(clockKey, buf[:])
}

// finish commits the buffered writes when opErr is nil and drops them
// otherwise.
func (s *session) finish(op string, opErr error) error {
	if opErr != nil {
		s.state.Discard()
		s.logger.Warn("operation failed", "operation", op, "slot", s.slot, "error", opErr)
		return opErr
	}
	if err := s.state.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	s.logger.Info("operation committed", "operation", op, "slot", s.slot)
	return nil
}

func (s *session) close() error {
	return s.db.Close()
}

// ensureMint creates mint when it does not exist yet.
func (s *session) ensureMint(mint crypto.Pubkey, decimals uint8) error {
	if _, err := s.ledger.MintInfo(mint); err == nil {
		return nil
	} else if !errors.Is(err, state.ErrUnknownMint) {
		return err
	}
	return s.ledger.CreateMint(mint, decimals)
}

// ensureAccount opens a token account when it does not exist yet. Existing
// accounts are left for the engine to validate.
func (s *session) ensureAccount(account, mint, owner crypto.Pubkey) error {
	if _, err := s.ledger.Account(account); err == nil {
		return nil
	} else if !errors.Is(err, state.ErrUnknownTokenAccount) {
		return err
	}
	return s.ledger.CreateAccount(account, mint, owner)
}

// ownerOr returns the parsed flag value, or the owner of account when the
// flag was left empty.
func (s *session) ownerOr(name, value string, account crypto.Pubkey) (crypto.Pubkey, error) {
	if strings.TrimSpace(value) != "" {
		return parseKey(name, value)
	}
	record, err := s.ledger.Account(account)
	if err != nil {
		return crypto.Pubkey{}, err
	}
	return record.Owner, nil
}

// parseKey accepts a base58 account key, or "@label" for a key derived from
// a readable label.
func parseKey(name, value string) (crypto.Pubkey, error) {
	value = strings.TrimSpace(value)
	switch {
	case value == "":
		return crypto.Pubkey{}, fmt.Errorf("--%s is required", name)
	case strings.HasPrefix(value, "@"):
		return crypto.PubkeyFromSeed(value[1:]), nil
	}
	key, err := crypto.DecodePubkey(value)
	if err != nil {
		return crypto.Pubkey{}, fmt.Errorf("--%s: %w", name, err)
	}
	return key, nil
}

func parseOptionalKey(name, value string) (*crypto.Pubkey, error) {
	if strings.TrimSpace(value) == "" {
		return nil, nil
	}
	key, err := parseKey(name, value)
	if err != nil {
		return nil, err
	}
	return &key, nil
}

// derivedKey parses value, or derives a per-account key from base when value
// is empty.
func derivedKey(name, value string, base crypto.Pubkey, suffix string) (crypto.Pubkey, error) {
	if strings.TrimSpace(value) == "" {
		return crypto.PubkeyFromSeed(base.String() + "/" + suffix), nil
	}
	return parseKey(name, value)
}

func parseExactAmount(name, value string) (uint64, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, fmt.Errorf("--%s is required", name)
	}
	amount, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("--%s must be a whole number of base units", name)
	}
	return amount, nil
}

// parseAmount additionally accepts "all". The wire sentinel math.MaxUint64
// is read the same way.
func parseAmount(name, value string) (lending.Amount, error) {
	if strings.EqualFold(strings.TrimSpace(value), "all") {
		return lending.AllAmount(), nil
	}
	amount, err := parseExactAmount(name, value)
	if err != nil {
		return lending.Amount{}, err
	}
	return lending.AmountFromWire(amount), nil
}

func stringFromEnv(key, fallback string) string {
	trimmed := strings.TrimSpace(os.Getenv(key))
	if trimmed == "" {
		return fallback
	}
	return trimmed
}
