package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"gopkg.in/yaml.v3"

	"tokenlending/config"
	"tokenlending/crypto"
	"tokenlending/storage"
)

// scenario is a scripted sequence of operations replayed by simulate.
type scenario struct {
	Name  string    `yaml:"name"`
	Steps []request `yaml:"steps"`
}

type stepReport struct {
	Index  int    `json:"index"`
	Op     string `json:"op"`
	Slot   uint64 `json:"slot"`
	Error  string `json:"error,omitempty"`
	Result any    `json:"result,omitempty"`
}

type simulationReport struct {
	Scenario    string           `json:"scenario"`
	Invocation  string           `json:"invocation"`
	Steps       []stepReport     `json:"steps"`
	Reserves    []reserveView    `json:"reserves"`
	Obligations []obligationView `json:"obligations"`
}

var errScenarioFailed = errors.New("scenario failed")

func loadScenario(path string) (*scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var sc scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&sc); err != nil {
		return nil, fmt.Errorf("scenario %s: %w", path, err)
	}
	if len(sc.Steps) == 0 {
		return nil, fmt.Errorf("scenario %s has no steps", path)
	}
	return &sc, nil
}

func runSimulateCommand(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("simulate", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		scenarioPath string
		configPath   string
		metricsOut   string
	)
	fs.StringVar(&scenarioPath, "f", "", "scenario YAML file")
	fs.StringVar(&configPath, "config", "", "optional lendctl TOML config supplying reserve settings")
	fs.StringVar(&metricsOut, "metrics-out", "", "write Prometheus metrics to this file when done")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if scenarioPath == "" {
		fmt.Fprintln(stderr, "Error: -f is required")
		return 1
	}

	sc, err := loadScenario(scenarioPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	cfg := config.Default()
	if configPath != "" {
		if cfg, err = config.Load(configPath); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
	}

	db := storage.NewMemDB()
	defer db.Close()
	s, err := newSession(ctx, cfg, db, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	report, simErr := simulate(s, sc)
	if metricsOut != "" {
		if err := prometheus.WriteToTextfile(metricsOut, prometheus.DefaultGatherer); err != nil {
			fmt.Fprintf(stderr, "Error: write metrics: %v\n", err)
			return 1
		}
	}
	if report != nil {
		if err := writeJSON(stdout, report); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
	}
	if simErr != nil {
		fmt.Fprintf(stderr, "Error: %v\n", simErr)
		return 1
	}
	return 0
}

// simulate replays every step, committing successful ones. A step fails the
// scenario when its outcome does not match ExpectError.
func simulate(s *session, sc *scenario) (*simulationReport, error) {
	report := &simulationReport{Scenario: sc.Name, Invocation: s.id}
	var obligations []crypto.Pubkey
	for i := range sc.Steps {
		step := &sc.Steps[i]
		op, ok := operations[step.Op]
		if !ok {
			return report, fmt.Errorf("step %d: %w", i, unknownOperation(step.Op))
		}
		slot := s.slot
		if step.Slot != nil {
			slot = *step.Slot
		}
		if err := s.setSlot(slot); err != nil {
			return report, err
		}
		result, err := execute(s, step.Op, op, step)
		entry := stepReport{Index: i, Op: step.Op, Slot: slot, Result: result}
		if err != nil {
			entry.Error = err.Error()
		}
		report.Steps = append(report.Steps, entry)

		switch {
		case step.ExpectError == "" && err != nil:
			return report, fmt.Errorf("%w: step %d (%s): %v", errScenarioFailed, i, step.Op, err)
		case step.ExpectError != "" && err == nil:
			return report, fmt.Errorf("%w: step %d (%s) succeeded, expected %q", errScenarioFailed, i, step.Op, step.ExpectError)
		case step.ExpectError != "" && !strings.Contains(err.Error(), step.ExpectError):
			return report, fmt.Errorf("%w: step %d (%s): got %v, expected %q", errScenarioFailed, i, step.Op, err, step.ExpectError)
		}
		if err == nil && step.Op == "init-obligation" {
			key, _ := parseKey("obligation", step.Obligation)
			obligations = append(obligations, key)
		}
	}

	reserves, err := s.state.Reserves()
	if err != nil {
		return report, err
	}
	for _, key := range reserves {
		view, err := s.reserveView(key)
		if err != nil {
			return report, err
		}
		report.Reserves = append(report.Reserves, view)
	}
	for _, key := range obligations {
		view, err := s.obligationView(key)
		if err != nil {
			return report, err
		}
		report.Obligations = append(report.Obligations, view)
	}
	return report, nil
}
