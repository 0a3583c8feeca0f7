package signing

import (
	"crypto/hmac"
	"fmt"
	"hash"
	"io"
	"strings"

	"github.com/forcebit/hawk-go/pkg/base"
	"github.com/forcebit/hawk-go/pkg/digest"
)

// Cryptographer computes and validates Hawk MACs and payload hashes for one
// credential. It is immutable and safe for concurrent use.
type Cryptographer struct {
	alg     Algorithm
	key     []byte
	newHash func() hash.Hash
}

// NewCryptographer binds an algorithm to a shared key.
//
// Returns error if:
//   - the algorithm is not supported
//   - the key is empty
func NewCryptographer(alg Algorithm, key []byte) (*Cryptographer, error) {
	newHash, err := alg.NewHash()
	if err != nil {
		return nil, err
	}
	if len(key) == 0 {
		return nil, fmt.Errorf("HMAC shared key is nil or empty")
	}
	return &Cryptographer{alg: alg, key: key, newHash: newHash}, nil
}

// Algorithm returns the bound algorithm.
func (c *Cryptographer) Algorithm() Algorithm {
	return c.alg
}

// ComputeHash hashes data with the credential's hash function.
func (c *Cryptographer) ComputeHash(data []byte) []byte {
	sum, _ := digest.Sum(c.alg.HashName(), data)
	return sum
}

// ComputeHMAC computes the HMAC of data under the shared key.
func (c *Cryptographer) ComputeHMAC(data []byte) []byte {
	mac := hmac.New(c.newHash, c.key)
	mac.Write(data)
	return mac.Sum(nil)
}

// IsValidHash reports whether expected is the hash of data.
func (c *Cryptographer) IsValidHash(data, expected []byte) bool {
	return Equal(c.ComputeHash(data), expected)
}

// IsValidMAC reports whether expected is the HMAC of data.
func (c *Cryptographer) IsValidMAC(data, expected []byte) bool {
	return Equal(c.ComputeHMAC(data), expected)
}

// PayloadHash computes the hash of the payload canonical form.
func (c *Cryptographer) PayloadHash(contentType, body string) []byte {
	sum, _ := digest.HashPayload(c.alg.HashName(), contentType, strings.NewReader(body))
	return sum
}

// PayloadHashReader streams body into the payload hash.
func (c *Cryptographer) PayloadHashReader(contentType string, body io.Reader) ([]byte, error) {
	return digest.HashPayload(c.alg.HashName(), contentType, body)
}

// IsValidPayloadHash reports whether expected is the payload hash of body.
func (c *Cryptographer) IsValidPayloadHash(contentType, body string, expected []byte) bool {
	return digest.VerifyPayload(c.alg.HashName(), contentType, strings.NewReader(body), expected) == nil
}

// TimestampMAC computes the tsm value signing a server timestamp.
func (c *Cryptographer) TimestampMAC(ts int64) []byte {
	return c.ComputeHMAC([]byte(base.NormalizedTimestamp(ts)))
}

// IsValidTimestampMAC reports whether tsm signs ts under the shared key.
func (c *Cryptographer) IsValidTimestampMAC(ts int64, tsm []byte) bool {
	return c.IsValidMAC([]byte(base.NormalizedTimestamp(ts)), tsm)
}

// Equal compares two MACs or hashes in time independent of their contents
// and lengths. See digest.Equal.
func Equal(a, b []byte) bool {
	return digest.Equal(a, b)
}
