package digest

import (
	"fmt"
	"io"
)

// Equal compares two MACs or digests without revealing where they differ.
//
// The loop always runs over the longer input and folds a length mismatch
// into the accumulator, so neither content nor length of expected leaks
// through an early return. Two empty inputs compare unequal: an empty MAC
// never authenticates anything.
func Equal(a, b []byte) bool {
	n := len(a)
	if len(b) > n {
		n = len(b)
	}

	var diff byte
	if len(a) != len(b) {
		diff = 1
	}
	for i := 0; i < n; i++ {
		var x, y byte
		if i < len(a) {
			x = a[i]
		}
		if i < len(b) {
			y = b[i]
		}
		diff |= x ^ y
	}

	return n > 0 && diff == 0
}

// VerifyPayload checks a received payload hash against the hash recomputed
// from body. Uses Equal for the comparison.
//
// Returns an error if:
//   - expected is empty
//   - the algorithm is unsupported
//   - reading body fails
//   - the recomputed hash does not match
func VerifyPayload(algorithm, contentType string, body io.Reader, expected []byte) error {
	if len(expected) == 0 {
		return fmt.Errorf("expected payload hash cannot be empty")
	}

	actual, err := HashPayload(algorithm, contentType, body)
	if err != nil {
		return err
	}

	if !Equal(actual, expected) {
		return fmt.Errorf("payload hash mismatch for algorithm %q: verification failed", algorithm)
	}
	return nil
}
