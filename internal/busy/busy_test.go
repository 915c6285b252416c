package busy

import (
	"errors"
	"testing"
)

func TestSetBusyRoundTrip(t *testing.T) {
	r := NewRegistry("save-config", "backup-bot")

	if err := r.SetBusy("save-config", true); err != nil {
		t.Fatalf("SetBusy(true): %v", err)
	}
	c, _ := r.Get("save-config")
	if !c.Busy || !c.SpinnerVisible || c.IconVisible || !c.Disabled {
		t.Errorf("unexpected busy state: %+v", c)
	}

	if err := r.SetBusy("save-config", false); err != nil {
		t.Fatalf("SetBusy(false): %v", err)
	}
	c, _ = r.Get("save-config")
	if c.Busy || c.SpinnerVisible || !c.IconVisible || c.Disabled {
		t.Errorf("control not restored: %+v", c)
	}
}

func TestSetBusyUnknownControl(t *testing.T) {
	r := NewRegistry("save-config")

	err := r.SetBusy("missing", true)
	if !errors.Is(err, ErrNoControl) {
		t.Errorf("expected ErrNoControl, got %v", err)
	}
	if _, ok := r.Get("missing"); ok {
		t.Error("unknown control must not be created")
	}
}

func TestAcquireRejectsBusyControl(t *testing.T) {
	r := NewRegistry("restart-bot")

	release, ok := r.Acquire("restart-bot")
	if !ok {
		t.Fatal("first acquire should succeed")
	}
	if _, ok := r.Acquire("restart-bot"); ok {
		t.Error("second acquire should fail while busy")
	}

	release()
	release() // idempotent

	c, _ := r.Get("restart-bot")
	if c.Busy {
		t.Error("control should be idle after release")
	}
	if _, ok := r.Acquire("restart-bot"); !ok {
		t.Error("acquire should succeed after release")
	}
}

func TestAcquireUnknownControlDoesNotBlock(t *testing.T) {
	r := NewRegistry()
	release, ok := r.Acquire("ghost")
	if !ok || release == nil {
		t.Fatal("unknown control should not block")
	}
	release()
}

func TestOnChange(t *testing.T) {
	r := NewRegistry("refreshLogs")
	var seen []Control
	r.OnChange(func(c Control) { seen = append(seen, c) })

	r.SetBusy("refreshLogs", true)
	r.SetBusy("refreshLogs", false)

	if len(seen) != 2 || !seen[0].Busy || seen[1].Busy {
		t.Errorf("unexpected change sequence: %+v", seen)
	}
}

func TestAllSorted(t *testing.T) {
	r := NewRegistry("b", "a", "c")
	all := r.All()
	if len(all) != 3 || all[0].ID != "a" || all[2].ID != "c" {
		t.Errorf("unexpected order: %+v", all)
	}
}
