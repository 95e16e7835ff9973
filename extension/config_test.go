package extension

import (
	"testing"
	"time"
)

func TestMergeWithDefaults(t *testing.T) {
	got := mergeWithDefaults(Config{Currency: "usd", PinMaxFailures: 3})
	want := DefaultConfig()
	want.Currency = "usd"
	want.PinMaxFailures = 3
	if got != want {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestMergeConfigurations(t *testing.T) {
	tests := []struct {
		name         string
		yaml, option Config
		check        func(t *testing.T, c Config)
	}{
		{
			name:   "yaml wins",
			yaml:   Config{BasePath: "/loans", SweepInterval: 10 * time.Minute},
			option: Config{BasePath: "/other", SweepInterval: time.Minute},
			check: func(t *testing.T, c Config) {
				if c.BasePath != "/loans" || c.SweepInterval != 10*time.Minute {
					t.Errorf("got %+v", c)
				}
			},
		},
		{
			name:   "options fill gaps",
			yaml:   Config{},
			option: Config{StatusCooldown: 5 * time.Second, PinWindow: time.Hour},
			check: func(t *testing.T, c Config) {
				if c.StatusCooldown != 5*time.Second || c.PinWindow != time.Hour {
					t.Errorf("got %+v", c)
				}
			},
		},
		{
			name:   "option flags override",
			yaml:   Config{},
			option: Config{DisableRoutes: true, DisableSweeper: true, AllowLatePayments: true},
			check: func(t *testing.T, c Config) {
				if !c.DisableRoutes || !c.DisableSweeper || !c.AllowLatePayments {
					t.Errorf("got %+v", c)
				}
			},
		},
		{
			name: "defaults last",
			check: func(t *testing.T, c Config) {
				if c.BasePath != "/loanbook" || c.Currency != "php" || c.SweepConcurrency != 8 {
					t.Errorf("got %+v", c)
				}
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, mergeConfigurations(tt.yaml, tt.option))
		})
	}
}

func TestBuildEngineOpts(t *testing.T) {
	e := New(WithConfig(mergeWithDefaults(Config{DisableSweeper: true})), WithLatePayments())
	if got := len(e.buildEngineOpts()); got != 7 {
		t.Errorf("options = %d, want 7", got)
	}
}
