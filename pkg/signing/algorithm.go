// Package signing implements the Hawk cryptographer: HMAC and payload hash
// computation over canonical strings, and constant-time validation of both.
//
// The algorithm set is closed. A credential names one algorithm, which is
// resolved once with ParseAlgorithm; an unknown name is a configuration
// error at credential-resolution time, never a MAC failure.
//
// Supported algorithms:
//   - sha256, sha384, sha512 (HMAC-SHA2, sha256 recommended)
//   - sha1, md5 (accepted for interoperability, deprecated)
//   - sha3-256, blake2b-256 (extensions, only understood by peers using this module)
//
// # Basic Usage
//
//	alg, _ := signing.ParseAlgorithm("sha256")
//	c, _ := signing.NewCryptographer(alg, key)
//	err := c.Sign(base.KindHeader, artifacts, target, nil)
package signing

import (
	"fmt"
	"hash"
	"strings"

	"github.com/forcebit/hawk-go/pkg/digest"
)

// Algorithm is a Hawk MAC algorithm: HMAC over one hash function.
type Algorithm int

// Supported algorithms. The zero value is invalid.
const (
	AlgorithmUnknown Algorithm = iota
	HMACMD5
	HMACSHA1
	HMACSHA256
	HMACSHA384
	HMACSHA512
	HMACSHA3256
	HMACBLAKE2b256
)

type algorithmInfo struct {
	name       string // canonical name as used by Hawk credentials
	digestName string // hash identifier in package digest
}

var algorithms = map[Algorithm]algorithmInfo{
	HMACMD5:        {"md5", digest.AlgorithmMD5},
	HMACSHA1:       {"sha1", digest.AlgorithmSHA1},
	HMACSHA256:     {"sha256", digest.AlgorithmSHA256},
	HMACSHA384:     {"sha384", digest.AlgorithmSHA384},
	HMACSHA512:     {"sha512", digest.AlgorithmSHA512},
	HMACSHA3256:    {"sha3-256", digest.AlgorithmSHA3256},
	HMACBLAKE2b256: {"blake2b-256", digest.AlgorithmBLAKE2b256},
}

// ParseAlgorithm resolves an algorithm name. Matching is case-insensitive
// and accepts the Hawk spelling ("sha256"), the hash spelling ("sha-256"),
// and the HMAC-prefixed forms ("hmac-sha256", "HMACSHA256").
//
// Returns an error if the name matches no supported algorithm.
func ParseAlgorithm(name string) (Algorithm, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	key = strings.TrimPrefix(key, "hmac")
	key = strings.TrimPrefix(key, "-")
	key = strings.ReplaceAll(key, "-", "")
	key = strings.ReplaceAll(key, "_", "")

	for alg, info := range algorithms {
		if strings.ReplaceAll(info.name, "-", "") == key {
			return alg, nil
		}
	}
	return AlgorithmUnknown, fmt.Errorf("unsupported algorithm: %q", name)
}

// String returns the canonical Hawk name, e.g. "sha256".
func (a Algorithm) String() string {
	if info, ok := algorithms[a]; ok {
		return info.name
	}
	return fmt.Sprintf("Algorithm(%d)", int(a))
}

// Valid reports whether a is a supported algorithm.
func (a Algorithm) Valid() bool {
	_, ok := algorithms[a]
	return ok
}

// Deprecated reports whether a is accepted only for interoperability.
func (a Algorithm) Deprecated() bool {
	info, ok := algorithms[a]
	return ok && digest.IsDeprecated(info.digestName)
}

// HashName returns the hash identifier understood by package digest.
func (a Algorithm) HashName() string {
	return algorithms[a].digestName
}

// NewHash returns the constructor of the underlying hash function.
func (a Algorithm) NewHash() (func() hash.Hash, error) {
	info, ok := algorithms[a]
	if !ok {
		return nil, fmt.Errorf("unsupported algorithm: %v", a)
	}
	return digest.Constructor(info.digestName)
}

// MarshalText implements encoding.TextMarshaler.
func (a Algorithm) MarshalText() ([]byte, error) {
	if !a.Valid() {
		return nil, fmt.Errorf("unsupported algorithm: %v", a)
	}
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler, so algorithms can be
// read directly from YAML and TOML configuration.
func (a *Algorithm) UnmarshalText(text []byte) error {
	alg, err := ParseAlgorithm(string(text))
	if err != nil {
		return err
	}
	*a = alg
	return nil
}

// SupportedAlgorithms returns the canonical names of all algorithms.
func SupportedAlgorithms() []string {
	names := make([]string, 0, len(algorithms))
	for alg := HMACMD5; alg <= HMACBLAKE2b256; alg++ {
		names = append(names, alg.String())
	}
	return names
}
