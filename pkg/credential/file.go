package credential

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/forcebit/hawk-go/pkg/signing"
)

// FileEntry is one credential as written in a credentials file.
//
// Key is the raw shared secret unless KeyEncoding is "base64".
type FileEntry struct {
	ID          string `yaml:"id" toml:"id"`
	Key         string `yaml:"key" toml:"key"`
	KeyEncoding string `yaml:"keyEncoding" toml:"keyEncoding"`
	Algorithm   string `yaml:"algorithm" toml:"algorithm"`
	User        string `yaml:"user" toml:"user"`
}

// File is the document layout of a credentials file:
//
//	credentials:
//	  - id: dh37fgj492je
//	    key: werxhqb98rpaxn39848xrunpaw3489ruxnpa98w4rxn
//	    algorithm: sha256
//	    user: steve
type File struct {
	Credentials []FileEntry `yaml:"credentials" toml:"credentials"`
}

// LoadFile reads a credentials file and returns a StaticResolver over it.
// Files ending in .toml are decoded as TOML, everything else as YAML.
func LoadFile(path string) (StaticResolver, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read credentials file: %w", err)
	}

	var doc File
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(string(data), &doc); err != nil {
			return nil, fmt.Errorf("decode credentials file: %w", err)
		}
	} else {
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode credentials file: %w", err)
		}
	}

	creds := make([]Credential, 0, len(doc.Credentials))
	for i, entry := range doc.Credentials {
		c, err := entry.Credential()
		if err != nil {
			return nil, fmt.Errorf("credentials[%d]: %w", i, err)
		}
		creds = append(creds, c)
	}
	return NewStaticResolver(creds...)
}

// Credential converts the entry, decoding the key and resolving the
// algorithm. An empty algorithm defaults to sha256.
func (e FileEntry) Credential() (Credential, error) {
	algName := e.Algorithm
	if algName == "" {
		algName = signing.HMACSHA256.String()
	}
	alg, err := signing.ParseAlgorithm(algName)
	if err != nil {
		return Credential{}, err
	}

	var key []byte
	switch strings.ToLower(e.KeyEncoding) {
	case "", "raw":
		key = []byte(e.Key)
	case "base64":
		key, err = base64.StdEncoding.DecodeString(e.Key)
		if err != nil {
			return Credential{}, fmt.Errorf("decode key for %q: %w", e.ID, err)
		}
	default:
		return Credential{}, fmt.Errorf("unknown key encoding %q", e.KeyEncoding)
	}

	c := Credential{ID: e.ID, Key: key, Algorithm: alg, User: e.User}
	if err := c.Validate(); err != nil {
		return Credential{}, err
	}
	return c, nil
}
