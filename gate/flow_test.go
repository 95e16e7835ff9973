package gate

import (
	"errors"
	"testing"
)

func TestFlowHappyPath(t *testing.T) {
	f := NewFlow()
	steps := []struct {
		event Event
		want  State
	}{
		{EventValidated, StateFormValid},
		{EventPrompt, StateAwaitingPin},
		{EventConfirm, StateConfirmed},
		{EventCommit, StateCommitting},
		{EventSucceed, StateDone},
	}

	for _, s := range steps {
		got, err := f.Fire(s.event)
		if err != nil {
			t.Fatalf("%s: %v", s.event, err)
		}
		if got != s.want {
			t.Fatalf("%s: got %s, want %s", s.event, got, s.want)
		}
	}
	if !f.Terminal() {
		t.Error("flow should be terminal")
	}
	if f.Attempts() != 1 {
		t.Errorf("attempts: got %d, want 1", f.Attempts())
	}
}

func TestFlowRejectThenRetry(t *testing.T) {
	f := NewFlow()
	for _, e := range []Event{EventValidated, EventPrompt, EventReject, EventPrompt, EventReject, EventPrompt, EventConfirm} {
		if _, err := f.Fire(e); err != nil {
			t.Fatalf("%s: %v", e, err)
		}
	}
	if f.State() != StateConfirmed {
		t.Errorf("state: got %s", f.State())
	}
	if f.Attempts() != 3 {
		t.Errorf("attempts: got %d, want 3", f.Attempts())
	}
}

func TestFlowInvalidTransitions(t *testing.T) {
	tests := []struct {
		name  string
		setup []Event
		event Event
	}{
		{"pin before validation", nil, EventPrompt},
		{"commit before pin", []Event{EventValidated, EventPrompt}, EventCommit},
		{"commit after reject", []Event{EventValidated, EventPrompt, EventReject}, EventCommit},
		{"confirm twice", []Event{EventValidated, EventPrompt, EventConfirm}, EventConfirm},
		{"restart after done", []Event{EventValidated, EventPrompt, EventConfirm, EventCommit, EventSucceed}, EventValidated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewFlow()
			for _, e := range tt.setup {
				if _, err := f.Fire(e); err != nil {
					t.Fatalf("setup %s: %v", e, err)
				}
			}
			before := f.State()
			if _, err := f.Fire(tt.event); !errors.Is(err, ErrInvalidTransition) {
				t.Fatalf("got %v, want ErrInvalidTransition", err)
			}
			if f.State() != before {
				t.Errorf("state changed on invalid transition: %s -> %s", before, f.State())
			}
		})
	}
}
