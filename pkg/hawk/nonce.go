package hawk

import (
	"crypto/rand"
	"fmt"
)

// DefaultNonceSize is the length of nonces generated by Client.
const DefaultNonceSize = 6

const nonceAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// NewNonce returns n random alphanumeric characters.
func NewNonce(n int) (string, error) {
	if n <= 0 {
		return "", fmt.Errorf("nonce size must be positive, got %d", n)
	}

	out := make([]byte, 0, n)
	buf := make([]byte, n+n/2)
	for len(out) < n {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("failed to read random bytes: %w", err)
		}
		for _, b := range buf {
			// 248 is the largest multiple of 62 below 256; rejecting the
			// rest keeps the distribution uniform.
			if b >= 248 {
				continue
			}
			out = append(out, nonceAlphabet[int(b)%len(nonceAlphabet)])
			if len(out) == n {
				break
			}
		}
	}
	return string(out), nil
}
