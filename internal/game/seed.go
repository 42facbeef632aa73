package game

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
)

// RoundSeed holds the random components a round is derived from. Every
// random draw of a round goes through Float, so a revealed seed replays it.
type RoundSeed struct {
	ServerSeed string `json:"server_seed"`
	ClientSeed string `json:"client_seed"`
	Nonce      int    `json:"nonce"`
}

// NewRoundSeed draws fresh server and client seeds for a round.
func NewRoundSeed(nonce int) RoundSeed {
	return RoundSeed{
		ServerSeed: GenerateSeed(),
		ClientSeed: GenerateSeed(),
		Nonce:      nonce,
	}
}

// Float returns a uniform value in [0,1) from
// HMAC-SHA256(serverSeed, clientSeed:nonce:label).
func (s RoundSeed) Float(label string) float64 {
	h := hmac.New(sha256.New, []byte(s.ServerSeed))
	fmt.Fprintf(h, "%s:%d:%s", s.ClientSeed, s.Nonce, label)
	sum := h.Sum(nil)

	// 52 bits fit a float64 mantissa exactly.
	v := binary.BigEndian.Uint64(sum[:8]) >> 12
	return float64(v) / float64(uint64(1)<<52)
}

// Commitment is the SHA-256 of the server seed, published before the round.
func (s RoundSeed) Commitment() string {
	return HashCommitment(s.ServerSeed)
}

// GenerateSeed returns 32 random bytes from crypto/rand, hex encoded.
func GenerateSeed() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("crypto/rand unavailable: %v", err))
	}
	return hex.EncodeToString(b)
}

// HashCommitment is the hex SHA-256 of seed.
func HashCommitment(seed string) string {
	sum := sha256.Sum256([]byte(seed))
	return hex.EncodeToString(sum[:])
}
