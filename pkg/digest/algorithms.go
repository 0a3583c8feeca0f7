// Package digest maps the hash functions usable by Hawk credentials to
// hash.Hash constructors and computes Hawk payload hashes over them.
//
// The Hawk set is md5, sha-1, sha-256, sha-384 and sha-512. Two additional
// functions, sha3-256 and blake2b-256, are available for deployments where
// both peers use this package; other Hawk implementations do not know them.
package digest

import (
	"crypto/md5"  //nolint:gosec // part of the Hawk algorithm set, flagged deprecated
	"crypto/sha1" //nolint:gosec // part of the Hawk algorithm set, flagged deprecated
	"crypto/sha256"
	"crypto/sha512"
	"fmt"
	"hash"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/sha3"
)

// Hash function identifiers.
const (
	AlgorithmMD5    = "md5"
	AlgorithmSHA1   = "sha-1"
	AlgorithmSHA256 = "sha-256"
	AlgorithmSHA384 = "sha-384"
	AlgorithmSHA512 = "sha-512"

	// Non-interoperable extensions.
	AlgorithmSHA3256    = "sha3-256"
	AlgorithmBLAKE2b256 = "blake2b-256"
)

// SupportedAlgorithms is the set of hash functions NewDigester accepts.
// Use O(1) lookup: _, ok := SupportedAlgorithms[algorithm].
var SupportedAlgorithms = map[string]struct{}{
	AlgorithmMD5:        {},
	AlgorithmSHA1:       {},
	AlgorithmSHA256:     {},
	AlgorithmSHA384:     {},
	AlgorithmSHA512:     {},
	AlgorithmSHA3256:    {},
	AlgorithmBLAKE2b256: {},
}

var deprecatedAlgorithms = map[string]struct{}{
	AlgorithmMD5:  {},
	AlgorithmSHA1: {},
}

// IsDeprecated reports whether the hash function is still accepted for
// interoperability but should not be chosen for new credentials.
func IsDeprecated(algorithm string) bool {
	_, ok := deprecatedAlgorithms[algorithm]
	return ok
}

// NewDigester creates a hash.Hash instance for streaming digest computation.
//
// Returns an error if the algorithm is not one of SupportedAlgorithms.
// Identifiers are case-sensitive.
func NewDigester(algorithm string) (hash.Hash, error) {
	switch algorithm {
	case AlgorithmMD5:
		return md5.New(), nil //nolint:gosec
	case AlgorithmSHA1:
		return sha1.New(), nil //nolint:gosec
	case AlgorithmSHA256:
		return sha256.New(), nil
	case AlgorithmSHA384:
		return sha512.New384(), nil
	case AlgorithmSHA512:
		return sha512.New(), nil
	case AlgorithmSHA3256:
		return sha3.New256(), nil
	case AlgorithmBLAKE2b256:
		h, err := blake2b.New256(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize BLAKE2b-256 hasher: %w", err)
		}
		return h, nil
	default:
		return nil, fmt.Errorf("unsupported algorithm %q", algorithm)
	}
}

// Constructor returns a func() hash.Hash suitable for crypto/hmac.New.
// The algorithm is validated once, so the returned constructor never fails.
func Constructor(algorithm string) (func() hash.Hash, error) {
	if _, err := NewDigester(algorithm); err != nil {
		return nil, err
	}
	return func() hash.Hash {
		h, _ := NewDigester(algorithm)
		return h
	}, nil
}

// Size returns the output size in bytes of the hash function, or 0 if the
// algorithm is unknown.
func Size(algorithm string) int {
	h, err := NewDigester(algorithm)
	if err != nil {
		return 0
	}
	return h.Size()
}
