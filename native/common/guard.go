package common

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var ErrModulePaused = errors.New("module paused")

// PauseView reports whether a native module has been halted by its operator.
type PauseView interface {
	IsPaused(module string) bool
}

// Guard rejects calls into module while p reports it paused. The returned
// error wraps ErrModulePaused.
func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return fmt.Errorf("%w: %s", ErrModulePaused, module)
	}
	return nil
}

// PauseSet is a fixed PauseView, typically loaded from configuration.
// Module names are matched case-insensitively.
type PauseSet map[string]struct{}

// NewPauseSet returns a set pausing every named module. Blank names are
// ignored.
func NewPauseSet(modules ...string) PauseSet {
	set := make(PauseSet, len(modules))
	for _, module := range modules {
		module = normalizeModule(module)
		if module == "" {
			continue
		}
		set[module] = struct{}{}
	}
	return set
}

func (s PauseSet) IsPaused(module string) bool {
	_, ok := s[normalizeModule(module)]
	return ok
}

// Modules lists the paused modules in order.
func (s PauseSet) Modules() []string {
	modules := make([]string, 0, len(s))
	for module := range s {
		modules = append(modules, module)
	}
	sort.Strings(modules)
	return modules
}

func normalizeModule(module string) string {
	return strings.ToLower(strings.TrimSpace(module))
}
