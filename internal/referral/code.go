// Package referral implements the referral-reward core: short shareable
// codes, the ledger that tracks who referred whom, and the credit awards
// paid out at a fixed redemption cadence.
package referral

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
)

// codeAlphabet is the character set for referral codes.
//
// Codes are meant to be read aloud and retyped, so the ambiguous glyphs
// (0/O, 1/I/L) are left out. 31 symbols over 8 positions gives ~8.5 × 10^11
// combinations — collisions are practically impossible, and the store's
// UNIQUE constraint catches the freak case anyway.
const codeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

// codeLength is the number of characters in a generated code.
const codeLength = 8

// Generator produces collision-resistant referral codes.
//
// It draws from crypto/rand, not math/rand — codes gate real money
// (credits), so they must be unguessable, not just unique.
type Generator struct {
	alphabet string
	length   int
}

// NewGenerator returns a Generator with the standard 8-character,
// unambiguous-alphabet format.
func NewGenerator() *Generator {
	return &Generator{
		alphabet: codeAlphabet,
		length:   codeLength,
	}
}

// Generate returns a new random referral code.
//
// rand.Int is used per character rather than a modulo over raw bytes so the
// distribution over the 31-symbol alphabet stays uniform.
func (g *Generator) Generate() (string, error) {
	max := big.NewInt(int64(len(g.alphabet)))

	var b strings.Builder
	b.Grow(g.length)
	for i := 0; i < g.length; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("referral: reading randomness: %w", err)
		}
		b.WriteByte(g.alphabet[n.Int64()])
	}

	return b.String(), nil
}
