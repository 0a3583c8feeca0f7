package digest

import "fmt"

// Sum hashes data in one call. Use NewDigester to stream large inputs.
func Sum(algorithm string, data []byte) ([]byte, error) {
	h, err := NewDigester(algorithm)
	if err != nil {
		return nil, err
	}
	if _, err := h.Write(data); err != nil {
		return nil, fmt.Errorf("failed to hash %s input: %w", algorithm, err)
	}
	return h.Sum(nil), nil
}
