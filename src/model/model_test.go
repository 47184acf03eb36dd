package model

import (
	"testing"
	"time"
)

func TestUserExchangePairList(t *testing.T) {
	cases := []struct {
		pairs string
		want  []string
	}{
		{"btc_idr", []string{"btc_idr"}},
		{"btc_idr,eth_idr", []string{"btc_idr", "eth_idr"}},
		{" btc_idr , eth_idr ,", []string{"btc_idr", "eth_idr"}},
		{"", nil},
	}

	for _, tc := range cases {
		ue := UserExchange{Pairs: tc.pairs}
		got := ue.PairList()
		if len(got) != len(tc.want) {
			t.Fatalf("PairList(%q) = %v, want %v", tc.pairs, got, tc.want)
		}
		for i := range got {
			if got[i] != tc.want[i] {
				t.Fatalf("PairList(%q) = %v, want %v", tc.pairs, got, tc.want)
			}
		}
	}
}

func TestUserExchangeHasCredentials(t *testing.T) {
	if (&UserExchange{}).HasCredentials() {
		t.Fatal("expected no credentials on an empty row")
	}
	if (&UserExchange{APIKey: "key"}).HasCredentials() {
		t.Fatal("expected key alone to be insufficient")
	}
	if !(&UserExchange{APIKey: "key", APISecret: "secret"}).HasCredentials() {
		t.Fatal("expected key+secret to count as credentials")
	}
}

func TestSignalExpiredAt(t *testing.T) {
	now := time.Date(2024, 8, 1, 12, 0, 0, 0, time.UTC)

	fresh := Signal{ValidUntil: now.Add(time.Minute)}
	if fresh.ExpiredAt(now) {
		t.Fatal("expected signal within its window not expired")
	}

	stale := Signal{ValidUntil: now.Add(-time.Minute)}
	if !stale.ExpiredAt(now) {
		t.Fatal("expected signal past its window expired")
	}

	// A zero deadline means the signal never expires.
	unbounded := Signal{}
	if unbounded.ExpiredAt(now) {
		t.Fatal("expected zero deadline to never expire")
	}
}

func TestSignalIsTerminal(t *testing.T) {
	terminal := []string{SignalStatusExecuted, SignalStatusRejected, SignalStatusExpired, SignalStatusSkipped}
	for _, status := range terminal {
		if !(&Signal{Status: status}).IsTerminal() {
			t.Fatalf("expected %s terminal", status)
		}
	}
	for _, status := range []string{SignalStatusPending, SignalStatusApproved} {
		if (&Signal{Status: status}).IsTerminal() {
			t.Fatalf("expected %s not terminal", status)
		}
	}
}

func TestOrderIsTerminal(t *testing.T) {
	terminal := []string{OrderStatusFilled, OrderStatusCancelled, OrderStatusFailed}
	for _, status := range terminal {
		if !(&Order{Status: status}).IsTerminal() {
			t.Fatalf("expected %s terminal", status)
		}
	}
	for _, status := range []string{OrderStatusPending, OrderStatusPlaced, OrderStatusPartial} {
		if (&Order{Status: status}).IsTerminal() {
			t.Fatalf("expected %s not terminal", status)
		}
	}
}

func TestOpenPositionStatuses(t *testing.T) {
	statuses := OpenPositionStatuses()
	if len(statuses) != 2 {
		t.Fatalf("unexpected open statuses: %v", statuses)
	}
	if statuses[0] != PositionStatusOpen || statuses[1] != PositionStatusPartiallyClosed {
		t.Fatalf("unexpected open statuses: %v", statuses)
	}
}
