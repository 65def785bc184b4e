package common

import (
	"errors"
	"reflect"
	"testing"
)

func TestGuard(t *testing.T) {
	if err := Guard(nil, "lending"); err != nil {
		t.Fatalf("nil view must not pause: %v", err)
	}
	set := NewPauseSet(" Lending ", "", "swap")
	if err := Guard(set, ""); err != nil {
		t.Fatalf("empty module must not pause: %v", err)
	}
	err := Guard(set, "lending")
	if !errors.Is(err, ErrModulePaused) {
		t.Fatalf("expected paused error, got %v", err)
	}
	if err.Error() != "module paused: lending" {
		t.Fatalf("unexpected message %q", err.Error())
	}
	if err := Guard(set, "escrow"); err != nil {
		t.Fatalf("escrow is not paused: %v", err)
	}
}

func TestPauseSetModules(t *testing.T) {
	set := NewPauseSet("swap", "LENDING", "  ")
	if !set.IsPaused("Lending") {
		t.Fatalf("lookups should ignore case")
	}
	if got, want := set.Modules(), []string{"lending", "swap"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("modules = %v, want %v", got, want)
	}
	if len(NewPauseSet().Modules()) != 0 {
		t.Fatalf("empty set should list nothing")
	}
}
