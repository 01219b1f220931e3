package randstr

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

const (
	Alphabet      = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	AlphabetLabel = "alphanumeric (A-Z, a-z, 0-9)"
	DefaultLength = 6
)

// Generate returns n characters drawn uniformly from Alphabet.
func Generate(n int) (string, error) {
	if n <= 0 {
		return "", fmt.Errorf("length must be positive, got %d", n)
	}
	max := big.NewInt(int64(len(Alphabet)))
	out := make([]byte, n)
	for i := range out {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("read random: %w", err)
		}
		out[i] = Alphabet[idx.Int64()]
	}
	return string(out), nil
}
