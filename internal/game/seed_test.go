package game

import (
	"crypto/sha256"
	"encoding/hex"
	"testing"
)

func TestRoundSeed_Float(t *testing.T) {
	seed := RoundSeed{ServerSeed: "server", ClientSeed: "client", Nonce: 42}

	a := seed.Float("crash")
	if a < 0 || a >= 1 {
		t.Fatalf("Float() = %v, want [0,1)", a)
	}
	if b := seed.Float("crash"); a != b {
		t.Errorf("Float() not deterministic: %v then %v", a, b)
	}
	if seed.Float("tick:1") == a {
		t.Error("Float() ignores the label")
	}

	other := seed
	other.Nonce = 43
	if other.Float("crash") == a {
		t.Error("Float() ignores the nonce")
	}
}

func TestRoundSeed_FloatRange(t *testing.T) {
	seed := NewRoundSeed(1)
	for i := 0; i < 1000; i++ {
		v := seed.Float("tick:" + string(rune('a'+i%26)) + string(rune('a'+i/26)))
		if v < 0 || v >= 1 {
			t.Fatalf("Float() = %v, want [0,1)", v)
		}
	}
}

func TestRoundSeed_Commitment(t *testing.T) {
	seed := RoundSeed{ServerSeed: "deterministic_test_seed"}
	sum := sha256.Sum256([]byte("deterministic_test_seed"))

	if got, want := seed.Commitment(), hex.EncodeToString(sum[:]); got != want {
		t.Errorf("Commitment() = %s, want %s", got, want)
	}
}

func TestGenerateSeed(t *testing.T) {
	seed1 := GenerateSeed()
	seed2 := GenerateSeed()

	if len(seed1) != 64 {
		t.Errorf("GenerateSeed() length = %d, want 64", len(seed1))
	}
	if _, err := hex.DecodeString(seed1); err != nil {
		t.Errorf("GenerateSeed() is not hex: %v", err)
	}
	if seed1 == seed2 {
		t.Error("GenerateSeed() returned the same seed twice")
	}
}

func TestNewRoundSeed(t *testing.T) {
	s := NewRoundSeed(7)
	if s.Nonce != 7 {
		t.Errorf("Nonce = %d, want 7", s.Nonce)
	}
	if s.ServerSeed == "" || s.ClientSeed == "" || s.ServerSeed == s.ClientSeed {
		t.Errorf("unexpected seeds %+v", s)
	}
}
