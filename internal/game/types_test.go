package game

import (
	"encoding/json"
	"math/big"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"flipzone/internal/fairness"
)

func TestRules_Multiplier(t *testing.T) {
	rules := DefaultRules()

	tests := []struct {
		wins int
		want string
	}{
		{0, "1"},
		{1, "1.2"},
		{2, "1.44"},
		{3, "1.728"},
		{7, "3.5831808"},
		{8, "4"},
		{15, "4"},
	}

	for _, tt := range tests {
		got := rules.Multiplier(tt.wins)
		if !got.Equal(decimal.RequireFromString(tt.want)) {
			t.Errorf("Multiplier(%d) = %s, want %s", tt.wins, got, tt.want)
		}
	}
}

func TestRules_ValidBet(t *testing.T) {
	rules := DefaultRules()

	for bet, want := range map[string]bool{
		"0.09": false,
		"0.1":  true,
		"2.5":  true,
		"10":   true,
		"10.1": false,
		"-1":   false,
	} {
		if got := rules.validBet(decimal.RequireFromString(bet)); got != want {
			t.Errorf("validBet(%s) = %v, want %v", bet, got, want)
		}
	}
}

func TestSession_CloneIsDeep(t *testing.T) {
	side := fairness.Heads
	s := Session{SessionID: big.NewInt(7), LastOutcome: &side}

	c := s.clone()
	c.SessionID.SetInt64(8)
	*c.LastOutcome = fairness.Tails

	if s.SessionID.Int64() != 7 {
		t.Errorf("clone shares SessionID: %s", s.SessionID)
	}
	if *s.LastOutcome != fairness.Heads {
		t.Errorf("clone shares LastOutcome: %s", s.LastOutcome)
	}
}

func TestSession_JSON(t *testing.T) {
	side := fairness.Tails
	s := Session{
		State:        StatePlaying,
		SessionID:    big.NewInt(42),
		BetAmount:    decimal.RequireFromString("0.1"),
		Multiplier:   decimal.RequireFromString("1.728"),
		PotentialWin: decimal.RequireFromString("0.1728"),
		LastOutcome:  &side,
	}

	data, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("Failed to marshal Session: %v", err)
	}

	for _, want := range []string{`"state":"playing"`, `"session_id":42`, `"multiplier":"1.728"`, `"last_outcome":"tails"`} {
		if !strings.Contains(string(data), want) {
			t.Errorf("Session JSON %s missing %s", data, want)
		}
	}
}
