package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"

	"tokenlending/crypto"
	"tokenlending/native/lending"
)

const (
	EnvDataDir  = "LENDCTL_DATA_DIR"
	EnvLogLevel = "LENDCTL_LOG_LEVEL"

	defaultDataDir       = "./lend-data"
	defaultQuoteCurrency = "USD"
	defaultLogLevel      = "info"
	defaultProgramSeed   = "tokenlending-program"
)

type Config struct {
	DataDir       string        `toml:"DataDir"`
	ProgramID     crypto.Pubkey `toml:"ProgramID"`
	MarketOwner   crypto.Pubkey `toml:"MarketOwner"`
	QuoteCurrency string        `toml:"QuoteCurrency"`
	// PausedModules halts the named native modules, e.g. ["lending"].
	// Reads keep working while a module is paused.
	PausedModules []string      `toml:"PausedModules"`

	Logging         Logging                    `toml:"Logging"`
	ReserveDefaults ReserveSettings            `toml:"ReserveDefaults"`
	Reserves        map[string]ReserveSettings `toml:"Reserves"`
}

// Logging configures observability/logging.Setup.
type Logging struct {
	Level string `toml:"Level"`
	Env   string `toml:"Env"`
	// File, when set, receives a rotated copy of every log line.
	File       string `toml:"File"`
	MaxSizeMB  int    `toml:"MaxSizeMB"`
	MaxBackups int    `toml:"MaxBackups"`
}

// ReserveSettings is the operator-facing form of lending.ReserveConfig. The
// borrow fee is written as a fraction, e.g. "0.001" for 0.1%.
type ReserveSettings struct {
	OptimalUtilizationRate uint8  `toml:"OptimalUtilizationRate"`
	LoanToValueRatio       uint8  `toml:"LoanToValueRatio"`
	LiquidationBonus       uint8  `toml:"LiquidationBonus"`
	LiquidationThreshold   uint8  `toml:"LiquidationThreshold"`
	MinBorrowRate          uint8  `toml:"MinBorrowRate"`
	OptimalBorrowRate      uint8  `toml:"OptimalBorrowRate"`
	MaxBorrowRate          uint8  `toml:"MaxBorrowRate"`
	BorrowFee              string `toml:"BorrowFee"`
	HostFeePercentage      uint8  `toml:"HostFeePercentage"`
}

// ReserveConfig converts the settings into the engine's configuration and
// validates it.
func (s ReserveSettings) ReserveConfig() (lending.ReserveConfig, error) {
	fee, err := ParseBorrowFee(s.BorrowFee)
	if err != nil {
		return lending.ReserveConfig{}, err
	}
	cfg := lending.ReserveConfig{
		OptimalUtilizationRate: s.OptimalUtilizationRate,
		LoanToValueRatio:       s.LoanToValueRatio,
		LiquidationBonus:       s.LiquidationBonus,
		LiquidationThreshold:   s.LiquidationThreshold,
		MinBorrowRate:          s.MinBorrowRate,
		OptimalBorrowRate:      s.OptimalBorrowRate,
		MaxBorrowRate:          s.MaxBorrowRate,
		Fees: lending.ReserveFees{
			BorrowFeeWad:      fee,
			HostFeePercentage: s.HostFeePercentage,
		},
	}
	if err := cfg.Validate(); err != nil {
		return lending.ReserveConfig{}, err
	}
	return cfg, nil
}

// Reserve returns the merged settings for symbol: the reserve's own section
// over ReserveDefaults.
func (c *Config) Reserve(symbol string) (lending.ReserveConfig, error) {
	settings, ok := c.Reserves[symbol]
	if !ok {
		settings = c.ReserveDefaults
	}
	cfg, err := settings.ReserveConfig()
	if err != nil {
		return lending.ReserveConfig{}, fmt.Errorf("reserve %q: %w", symbol, err)
	}
	return cfg, nil
}

// ReserveSymbols lists the configured reserve sections in order.
func (c *Config) ReserveSymbols() []string {
	symbols := make([]string, 0, len(c.Reserves))
	for symbol := range c.Reserves {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)
	return symbols
}

// Quote returns the quote currency in its account form.
func (c *Config) Quote() ([32]byte, error) {
	return lending.QuoteCurrencyFromString(c.QuoteCurrency)
}

// Load loads the configuration from the given path, creating a default file
// when none exists.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg, err := createDefault(path)
		if err != nil {
			return nil, err
		}
		applyEnv(cfg)
		return cfg, cfg.Validate()
	}

	cfg := Default()
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, key := range undecoded {
			keys = append(keys, key.String())
		}
		return nil, fmt.Errorf("config file %s has unknown keys: %s", path, strings.Join(keys, ", "))
	}

	applyDefaults(cfg, meta)
	applyEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return cfg, nil
}

// Default returns the configuration written for a fresh data directory.
func Default() *Config {
	return &Config{
		DataDir:         defaultDataDir,
		ProgramID:       crypto.PubkeyFromSeed(defaultProgramSeed),
		QuoteCurrency:   defaultQuoteCurrency,
		Logging:         Logging{Level: defaultLogLevel},
		ReserveDefaults: DefaultReserveSettings(),
		Reserves:        map[string]ReserveSettings{},
	}
}

// DefaultReserveSettings mirrors a conservative stablecoin reserve.
func DefaultReserveSettings() ReserveSettings {
	return ReserveSettings{
		OptimalUtilizationRate: 80,
		LoanToValueRatio:       50,
		LiquidationBonus:       5,
		LiquidationThreshold:   55,
		MinBorrowRate:          0,
		OptimalBorrowRate:      4,
		MaxBorrowRate:          30,
		BorrowFee:              "0.001",
		HostFeePercentage:      20,
	}
}

func applyDefaults(cfg *Config, meta toml.MetaData) {
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = defaultDataDir
	}
	if cfg.ProgramID.IsZero() {
		cfg.ProgramID = crypto.PubkeyFromSeed(defaultProgramSeed)
	}
	if strings.TrimSpace(cfg.QuoteCurrency) == "" {
		cfg.QuoteCurrency = defaultQuoteCurrency
	}
	if strings.TrimSpace(cfg.Logging.Level) == "" {
		cfg.Logging.Level = defaultLogLevel
	}
	if cfg.Reserves == nil {
		cfg.Reserves = map[string]ReserveSettings{}
	}
	for symbol, override := range cfg.Reserves {
		merged := cfg.ReserveDefaults
		for _, field := range reserveFields {
			if meta.IsDefined("Reserves", symbol, field.key) {
				field.copy(&merged, override)
			}
		}
		cfg.Reserves[symbol] = merged
	}
}

var reserveFields = []struct {
	key  string
	copy func(dst *ReserveSettings, src ReserveSettings)
}{
	{"OptimalUtilizationRate", func(d *ReserveSettings, s ReserveSettings) { d.OptimalUtilizationRate = s.OptimalUtilizationRate }},
	{"LoanToValueRatio", func(d *ReserveSettings, s ReserveSettings) { d.LoanToValueRatio = s.LoanToValueRatio }},
	{"LiquidationBonus", func(d *ReserveSettings, s ReserveSettings) { d.LiquidationBonus = s.LiquidationBonus }},
	{"LiquidationThreshold", func(d *ReserveSettings, s ReserveSettings) { d.LiquidationThreshold = s.LiquidationThreshold }},
	{"MinBorrowRate", func(d *ReserveSettings, s ReserveSettings) { d.MinBorrowRate = s.MinBorrowRate }},
	{"OptimalBorrowRate", func(d *ReserveSettings, s ReserveSettings) { d.OptimalBorrowRate = s.OptimalBorrowRate }},
	{"MaxBorrowRate", func(d *ReserveSettings, s ReserveSettings) { d.MaxBorrowRate = s.MaxBorrowRate }},
	{"BorrowFee", func(d *ReserveSettings, s ReserveSettings) { d.BorrowFee = s.BorrowFee }},
	{"HostFeePercentage", func(d *ReserveSettings, s ReserveSettings) { d.HostFeePercentage = s.HostFeePercentage }},
}

func applyEnv(cfg *Config) {
	cfg.DataDir = stringFromEnv(EnvDataDir, cfg.DataDir)
	cfg.Logging.Level = stringFromEnv(EnvLogLevel, cfg.Logging.Level)
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := Default()
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}

func stringFromEnv(key, fallback string) string {
	trimmed := strings.TrimSpace(os.Getenv(key))
	if trimmed == "" {
		return fallback
	}
	return trimmed
}
