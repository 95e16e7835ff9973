package types

import (
	"encoding/json"
	"testing"
)

func TestMoneyConstructors(t *testing.T) {
	tests := []struct {
		name     string
		money    Money
		amount   int64
		currency string
		display  string
	}{
		{"PHP", PHP(150000), 150000, "php", "₱1500.00"},
		{"USD", USD(4900), 4900, "usd", "$49.00"},
		{"New lowercases", New(250, "PHP"), 250, "php", "₱2.50"},
		{"Zero PHP", Zero("PHP"), 0, "php", "₱0.00"},
		{"Negative", PHP(-1050), -1050, "php", "₱-10.50"},
		{"Zero decimal", New(100, "jpy"), 100, "jpy", "¥100"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.money.Amount != tt.amount {
				t.Errorf("Amount: got %d, want %d", tt.money.Amount, tt.amount)
			}
			if tt.money.Currency != tt.currency {
				t.Errorf("Currency: got %s, want %s", tt.money.Currency, tt.currency)
			}
			if tt.money.String() != tt.display {
				t.Errorf("Display: got %s, want %s", tt.money.String(), tt.display)
			}
		})
	}
}

func TestMoneyArithmetic(t *testing.T) {
	tests := []struct {
		name     string
		op       func() Money
		expected Money
	}{
		{"Add", func() Money { return PHP(100).Add(PHP(200)) }, PHP(300)},
		{"Subtract", func() Money { return PHP(500).Subtract(PHP(200)) }, PHP(300)},
		{"Negate", func() Money { return PHP(100).Negate() }, PHP(-100)},
		{"Sum", func() Money { return Sum("php", PHP(100), PHP(200), PHP(300)) }, PHP(600)},
		{"Sum empty", func() Money { return Sum("php") }, PHP(0)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := tt.op()
			if !result.Equal(tt.expected) {
				t.Errorf("Got %v, want %v", result, tt.expected)
			}
		})
	}
}

func TestMoneyCurrencyMismatch(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("Expected panic for currency mismatch")
		}
	}()

	_ = PHP(100).Add(USD(100))
}

func TestMoneyComparison(t *testing.T) {
	tests := []struct {
		name    string
		a, b    Money
		less    bool
		greater bool
		equal   bool
	}{
		{"Equal", PHP(100), PHP(100), false, false, true},
		{"Less", PHP(50), PHP(100), true, false, false},
		{"Greater", PHP(200), PHP(100), false, true, false},
		{"Zero equal", PHP(0), Zero("php"), false, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.LessThan(tt.b); got != tt.less {
				t.Errorf("LessThan: got %v, want %v", got, tt.less)
			}
			if got := tt.a.GreaterThan(tt.b); got != tt.greater {
				t.Errorf("GreaterThan: got %v, want %v", got, tt.greater)
			}
			if got := tt.a.Equal(tt.b); got != tt.equal {
				t.Errorf("Equal: got %v, want %v", got, tt.equal)
			}
		})
	}
}

func TestParseMoney(t *testing.T) {
	tests := []struct {
		input    string
		currency string
		want     Money
		wantErr  bool
	}{
		{"1200", "php", PHP(120000), false},
		{"1,200.50", "php", PHP(120050), false},
		{" ₱ 75.5 ", "php", PHP(7550), false},
		{"0.01", "php", PHP(1), false},
		{"100", "jpy", New(100, "jpy"), false},
		{"1.005", "php", Money{}, true},
		{"1.5", "jpy", Money{}, true},
		{"", "php", Money{}, true},
		{"abc", "php", Money{}, true},
		{"92233720368547758.07", "php", PHP(9223372036854775807), false},
		{"92233720368547758.08", "php", Money{}, true},
		{"100000000000000000000", "php", Money{}, true},
		{"-100000000000000000000", "php", Money{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseMoney(tt.input, tt.currency)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMoneyJSON(t *testing.T) {
	data, err := json.Marshal(PHP(120050))
	if err != nil {
		t.Fatal(err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded["display"] != "₱1200.50" {
		t.Errorf("display: got %v", decoded["display"])
	}

	var back Money
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatal(err)
	}
	if !back.Equal(PHP(120050)) {
		t.Errorf("got %v", back)
	}
}
