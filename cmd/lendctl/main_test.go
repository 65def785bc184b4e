package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"tokenlending/crypto"
)

type cli struct {
	t      *testing.T
	config string
}

// newCLI writes a config rooted in a temp dir. extra lines are added to the
// top-level table.
func newCLI(t *testing.T, extra ...string) *cli {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "lendctl.toml")
	contents := "DataDir = \"" + filepath.Join(dir, "data") + "\"\n" +
		"MarketOwner = \"" + crypto.PubkeyFromSeed("owner").String() + "\"\n" +
		strings.Join(extra, "\n") + "\n" +
		"[Logging]\nLevel = \"warn\"\n"
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return &cli{t: t, config: path}
}

// run executes one command and returns its exit code, stdout and stderr.
func (c *cli) run(args ...string) (int, string, string) {
	c.t.Helper()
	var stdout, stderr bytes.Buffer
	full := append([]string{args[0], "--config", c.config}, args[1:]...)
	code := run(context.Background(), full, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func (c *cli) mustRun(args ...string) map[string]any {
	c.t.Helper()
	code, stdout, stderr := c.run(args...)
	if code != 0 {
		c.t.Fatalf("%v exited %d: %s", args, code, stderr)
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(stdout), &out); err != nil {
		c.t.Fatalf("%v: decode output %q: %v", args, stdout, err)
	}
	return out
}

func TestRunUsage(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if code := run(context.Background(), nil, &stdout, &stderr); code != 1 {
		t.Fatalf("expected exit 1, got %d", code)
	}
	if !strings.Contains(stderr.String(), "init-reserve") || !strings.Contains(stderr.String(), "simulate") {
		t.Fatalf("usage missing commands: %s", stderr.String())
	}

	stderr.Reset()
	if code := run(context.Background(), []string{"bogus"}, &stdout, &stderr); code != 1 {
		t.Fatalf("expected exit 1, got %d", code)
	}
	if !strings.Contains(stderr.String(), "Unknown command: bogus") {
		t.Fatalf("unexpected output: %s", stderr.String())
	}
}

func TestFlagValidation(t *testing.T) {
	c := newCLI(t)
	cases := []struct {
		args []string
		want string
	}{
		{[]string{"create-mint"}, "--mint is required"},
		{[]string{"mint-to", "--account", "@a", "--amount", "ten"}, "--amount must be a whole number"},
		{[]string{"deposit", "--reserve", "@r", "--source", "@s", "--destination", "@d", "--authority", "@a", "--amount", "all"}, "--amount must be a whole number"},
		{[]string{"create-mint", "--mint", "@m", "--decimals", "300"}, "--decimals must be at most 255"},
		{[]string{"show-reserve", "--reserve", "not-base58!"}, "--reserve"},
		{[]string{"create-mint", "extra"}, "unexpected positional arguments"},
	}
	for _, tc := range cases {
		code, _, stderr := c.run(tc.args...)
		if code != 1 {
			t.Fatalf("%v: expected exit 1, got %d", tc.args, code)
		}
		if !strings.Contains(stderr, tc.want) {
			t.Fatalf("%v: expected %q in %q", tc.args, tc.want, stderr)
		}
	}
}

func TestParseAmount(t *testing.T) {
	for _, value := range []string{"all", " ALL ", "18446744073709551615"} {
		amount, err := parseAmount("amount", value)
		if err != nil || !amount.IsAll() {
			t.Fatalf("%q should request everything, got %v (%v)", value, amount, err)
		}
	}
	amount, err := parseAmount("amount", "18446744073709551614")
	if err != nil || amount.IsAll() || amount.Value() != 18446744073709551614 {
		t.Fatalf("unexpected exact amount %v (%v)", amount, err)
	}
	if _, err := parseAmount("amount", "18446744073709551616"); err == nil {
		t.Fatalf("expected overflow to be rejected")
	}
}

func TestReserveLifecycleOverLevelDB(t *testing.T) {
	c := newCLI(t)
	c.mustRun("create-mint", "--mint", "@usdc", "--decimals", "6")
	c.mustRun("create-account", "--account", "@owner-usdc", "--mint", "@usdc", "--owner", "@owner")
	c.mustRun("create-account", "--account", "@bob-usdc", "--mint", "@usdc", "--owner", "@bob")
	c.mustRun("mint-to", "--account", "@owner-usdc", "--amount", "2000000")
	c.mustRun("mint-to", "--account", "@bob-usdc", "--amount", "1000")

	market := c.mustRun("init-market", "--market", "@market", "--slot", "5")
	if market["owner"] != crypto.PubkeyFromSeed("owner").String() {
		t.Fatalf("market owner should default from config: %v", market)
	}
	if market["quoteCurrency"] != "USD" {
		t.Fatalf("unexpected quote currency: %v", market)
	}

	created := c.mustRun("init-reserve",
		"--reserve", "@usdc-reserve",
		"--market", "@market",
		"--source", "@owner-usdc",
		"--mint", "@usdc",
		"--collateral-mint", "@cusdc",
		"--price", "1",
		"--amount", "1000000",
	)
	if created["collateralMinted"] != float64(5_000_000) {
		t.Fatalf("unexpected collateral minted: %v", created)
	}
	c.mustRun("create-account", "--account", "@bob-cusdc", "--mint", "@cusdc", "--owner", "@bob")

	// The slot is remembered between invocations, and a freshly created
	// reserve has to be refreshed before it accepts deposits.
	code, _, stderr := c.run("deposit", "--reserve", "@usdc-reserve", "--source", "@bob-usdc", "--destination", "@bob-cusdc", "--amount", "100")
	if code != 1 || !strings.Contains(stderr, "stale") {
		t.Fatalf("expected stale reserve error, got %d: %s", code, stderr)
	}
	if balance := c.mustRun("show-account", "--account", "@bob-usdc"); balance["amount"] != float64(1000) {
		t.Fatalf("failed deposit must not move funds: %v", balance)
	}

	refreshed := c.mustRun("refresh-reserve", "--reserve", "@usdc-reserve", "--slot", "6")
	if refreshed["stale"] != false || refreshed["lastUpdateSlot"] != float64(6) {
		t.Fatalf("unexpected refreshed reserve: %v", refreshed)
	}
	deposit := c.mustRun("deposit", "--reserve", "@usdc-reserve", "--source", "@bob-usdc", "--destination", "@bob-cusdc", "--amount", "100")
	if deposit["collateralMinted"] != float64(500) {
		t.Fatalf("unexpected deposit result: %v", deposit)
	}

	c.mustRun("refresh-reserve", "--reserve", "@usdc-reserve")
	redeem := c.mustRun("redeem", "--reserve", "@usdc-reserve", "--source", "@bob-cusdc", "--destination", "@bob-usdc", "--amount", "250")
	if redeem["liquidityReceived"] != float64(50) {
		t.Fatalf("unexpected redeem result: %v", redeem)
	}

	reserve := c.mustRun("show-reserve", "--reserve", "@usdc-reserve")
	if reserve["availableAmount"] != float64(1_000_050) || reserve["collateralMinted"] != float64(5_000_250) {
		t.Fatalf("unexpected reserve state: %v", reserve)
	}
	if reserve["borrowFee"] != "0.001" {
		t.Fatalf("config defaults not applied: %v", reserve)
	}
	if balance := c.mustRun("show-account", "--account", "@bob-usdc"); balance["amount"] != float64(950) {
		t.Fatalf("unexpected bob balance: %v", balance)
	}
}

func TestPausedModuleRejectsWrites(t *testing.T) {
	c := newCLI(t, `PausedModules = ["lending"]`)
	c.mustRun("create-mint", "--mint", "@usdc")

	code, _, stderr := c.run("init-market", "--market", "@market")
	if code != 1 || !strings.Contains(stderr, "module paused: lending") {
		t.Fatalf("expected paused error, got %d: %s", code, stderr)
	}
	code, _, stderr = c.run("show-reserve", "--reserve", "@missing")
	if code != 1 || strings.Contains(stderr, "module paused: lending") || !strings.Contains(stderr, "not initialised") {
		t.Fatalf("reads should not be paused, got %d: %s", code, stderr)
	}
}

func TestSimulateScenario(t *testing.T) {
	metrics := filepath.Join(t.TempDir(), "lendctl.prom")
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"simulate", "-f", "testdata/liquidation.yaml", "--metrics-out", metrics}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("simulate exited %d: %s", code, stderr.String())
	}

	var report simulationReport
	if err := json.Unmarshal(stdout.Bytes(), &report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if report.Scenario != "sol-collateral-liquidation" || report.Invocation == "" {
		t.Fatalf("unexpected report header: %+v", report)
	}
	if len(report.Reserves) != 2 {
		t.Fatalf("expected two reserves, got %d", len(report.Reserves))
	}
	if len(report.Obligations) != 1 {
		t.Fatalf("expected one obligation, got %d", len(report.Obligations))
	}
	obligation := report.Obligations[0]
	if obligation.Owner != crypto.PubkeyFromSeed("alice").String() {
		t.Fatalf("unexpected obligation owner %s", obligation.Owner)
	}
	if len(obligation.Deposits) != 1 || obligation.Deposits[0].Amount >= 500 {
		t.Fatalf("liquidation should have seized collateral: %+v", obligation.Deposits)
	}

	var failures int
	for _, step := range report.Steps {
		if step.Error != "" {
			failures++
		}
	}
	if failures != 3 {
		t.Fatalf("expected the three scripted failures, got %d", failures)
	}

	last := report.Steps[len(report.Steps)-1].Result.(map[string]any)
	if seized := last["amount"].(float64); seized <= 0 || float64(500-obligation.Deposits[0].Amount) != seized {
		t.Fatalf("liquidator collateral %v does not match the seized deposit", seized)
	}

	data, err := os.ReadFile(metrics)
	if err != nil {
		t.Fatalf("read metrics: %v", err)
	}
	if !strings.Contains(string(data), `tokenlending_lending_operations_total{operation="liquidate_obligation",outcome="success"}`) {
		t.Fatalf("metrics missing liquidation counter:\n%s", data)
	}
}

func TestSimulateReportsUnexpectedOutcome(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	scenario := `name: wrong-expectation
steps:
  - {op: create-mint, mint: "@usdc", decimals: 6}
  - {op: create-mint, mint: "@usdc", decimals: 6, expectError: "insufficient"}
`
	if err := os.WriteFile(path, []byte(scenario), 0o644); err != nil {
		t.Fatalf("write scenario: %v", err)
	}
	var stdout, stderr bytes.Buffer
	if code := run(context.Background(), []string{"simulate", "-f", path}, &stdout, &stderr); code != 1 {
		t.Fatalf("expected exit 1, got %d", code)
	}
	if !strings.Contains(stderr.String(), "scenario failed: step 1") {
		t.Fatalf("unexpected stderr: %s", stderr.String())
	}

	if err := os.WriteFile(path, []byte("name: typo\nsteps:\n  - {op: create-mint, mintt: \"@x\"}\n"), 0o644); err != nil {
		t.Fatalf("write scenario: %v", err)
	}
	stderr.Reset()
	if code := run(context.Background(), []string{"simulate", "-f", path}, &stdout, &stderr); code != 1 {
		t.Fatalf("expected unknown field to be rejected, got %d", code)
	}
}
