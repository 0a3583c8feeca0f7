package digest

import (
	"fmt"
	"io"

	"github.com/forcebit/hawk-go/pkg/base"
)

// HashPayload computes the Hawk payload hash of body under the given hash
// function. The body is streamed between the payload preamble and the
// trailing newline, so it is never buffered in full.
//
// Returns an error if the algorithm is unsupported or reading body fails.
func HashPayload(algorithm, contentType string, body io.Reader) ([]byte, error) {
	h, err := NewDigester(algorithm)
	if err != nil {
		return nil, fmt.Errorf("failed to create digester: %w", err)
	}

	if _, err := io.WriteString(h, base.PayloadPrefix(contentType)); err != nil {
		return nil, fmt.Errorf("failed to write payload preamble: %w", err)
	}
	if body != nil {
		if _, err := io.Copy(h, body); err != nil {
			return nil, fmt.Errorf("failed to read payload: %w", err)
		}
	}
	if _, err := io.WriteString(h, base.PayloadSuffix); err != nil {
		return nil, fmt.Errorf("failed to write payload suffix: %w", err)
	}

	return h.Sum(nil), nil
}
