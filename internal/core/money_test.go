package core

import (
	"encoding/json"
	"testing"
)

func TestParseDecimalToCents(t *testing.T) {
	cases := []struct {
		in  string
		out int64
		ok  bool
	}{
		{"1", 100, true},
		{"1.0", 100, true},
		{"1.23", 123, true},
		{"1,23", 123, true},
		{"0.01", 1, true},
		{"1.005", 101, true}, // half-up rounding
		{" 2.50 ", 250, true},
		{"-1", 0, false},
		{"0", 0, false},
		{"abc", 0, false},
		{"1.2.3", 0, false},
		{"", 0, false},
	}
	for _, tc := range cases {
		got, err := ParseDecimalToCents(tc.in)
		if tc.ok {
			if err != nil || got != tc.out {
				t.Fatalf("%q expected %d, got %d (err=%v)", tc.in, tc.out, got, err)
			}
		} else {
			if err == nil {
				t.Fatalf("%q expected error", tc.in)
			}
		}
	}
}

func TestMoneyString(t *testing.T) {
	cases := map[int64]string{0: "0.00", 5: "0.05", 5000: "50.00", 1234: "12.34", -250: "-2.50"}
	for cents, want := range cases {
		if got := (Money{Cents: cents}).String(); got != want {
			t.Fatalf("%d: expected %s, got %s", cents, want, got)
		}
	}
}

func TestMoneyJSON(t *testing.T) {
	var payload struct {
		Amount Money `json:"amount"`
	}
	if err := json.Unmarshal([]byte(`{"amount": 12.5}`), &payload); err != nil {
		t.Fatalf("unmarshal number: %v", err)
	}
	if payload.Amount.Cents != 1250 {
		t.Fatalf("expected 1250 cents, got %d", payload.Amount.Cents)
	}
	if err := json.Unmarshal([]byte(`{"amount": "3,20"}`), &payload); err != nil {
		t.Fatalf("unmarshal string: %v", err)
	}
	if payload.Amount.Cents != 320 {
		t.Fatalf("expected 320 cents, got %d", payload.Amount.Cents)
	}
	out, err := json.Marshal(payload)
	if err != nil || string(out) != `{"amount":3.20}` {
		t.Fatalf("unexpected marshal %s (%v)", out, err)
	}
}

func TestMoneyJSON_ZeroAndNegativeRoundTrip(t *testing.T) {
	for _, cents := range []int64{0, -250, 1} {
		in := Totals{Total: Money{Cents: cents}}
		data, err := json.Marshal(in)
		if err != nil {
			t.Fatalf("marshal %d: %v", cents, err)
		}
		var out Totals
		if err := json.Unmarshal(data, &out); err != nil {
			t.Fatalf("unmarshal %s: %v", data, err)
		}
		if out != in {
			t.Fatalf("round trip of %d gave %+v", cents, out)
		}
	}

	var m Money
	if err := json.Unmarshal([]byte(`"abc"`), &m); err != ErrInvalidAmount {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	if err := (Money{}).Validate(); err != ErrInvalidAmount {
		t.Fatalf("zero must still fail validation, got %v", err)
	}
}

func TestMoneyJSON_ZeroFilledReport(t *testing.T) {
	in := Report{
		From:  "2026-03-04",
		To:    "2026-03-10",
		Days:  []DayBucket{{Date: "2026-03-04", Label: "Wed, Mar 4"}, {Date: "2026-03-05", Label: "Thu, Mar 5", Total: Money{Cents: 700}}},
		Total: Money{Cents: 700},
	}
	data, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out Report
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal %s: %v", data, err)
	}
	if len(out.Days) != 2 || out.Days[0].Total.Cents != 0 || out.Days[1].Total.Cents != 700 {
		t.Fatalf("unexpected days %+v", out.Days)
	}
}
