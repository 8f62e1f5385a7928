package domain

import (
	// Hash implementations used by go-digest.
	_ "crypto/sha256"
	_ "crypto/sha512"
	"regexp"
	"strings"

	godigest "github.com/opencontainers/go-digest"
)

// Algorithm is a content hash algorithm name.
type Algorithm string

const (
	SHA256 Algorithm = "sha256"
	SHA384 Algorithm = "sha384"
	SHA512 Algorithm = "sha512"
)

// algorithms is the set of supported algorithms. Adding an entry here is all
// that is needed to accept a new algorithm.
var algorithms = map[Algorithm]godigest.Algorithm{
	SHA256: godigest.SHA256,
	SHA384: godigest.SHA384,
	SHA512: godigest.SHA512,
}

var (
	algorithmRegexp = regexp.MustCompile(`^[a-z0-9]+(?:[+._-][a-z0-9]+)*$`)
	hexRegexp       = regexp.MustCompile(`^[A-Fa-f0-9]+$`)
)

// Digest identifies content by hash, in the form "<algorithm>:<hex>".
type Digest struct {
	algorithm Algorithm
	hex       string
}

// ParseDigest validates input as "<algorithm>:<hex>". The algorithm is
// case-insensitive and the hex is normalized to lowercase.
func ParseDigest(input string) (Digest, error) {
	if input == "" {
		return Digest{}, NewError(KindDigestInvalid, "digest cannot be empty")
	}

	parts := strings.Split(input, ":")
	if len(parts) != 2 {
		return Digest{}, NewError(KindDigestInvalid, "digest %q must have the form algorithm:hex", input)
	}

	algorithm, err := parseAlgorithm(parts[0])
	if err != nil {
		return Digest{}, err
	}

	hex := parts[1]
	if hex == "" {
		return Digest{}, NewError(KindDigestInvalid, "digest hex cannot be empty")
	}
	if !hexRegexp.MatchString(hex) {
		return Digest{}, NewError(KindDigestInvalid, "digest hex must match %s", hexRegexp.String())
	}

	return Digest{algorithm: algorithm, hex: strings.ToLower(hex)}, nil
}

func parseAlgorithm(input string) (Algorithm, error) {
	if input == "" {
		return "", NewError(KindDigestInvalid, "digest algorithm cannot be empty")
	}

	name := strings.ToLower(input)
	if !algorithmRegexp.MatchString(name) {
		return "", NewError(KindDigestInvalid, "digest algorithm must match %s", algorithmRegexp.String())
	}

	algorithm := Algorithm(name)
	if _, ok := algorithms[algorithm]; !ok {
		return "", NewError(KindDigestInvalid, "digest algorithm %q is not supported", input)
	}

	return algorithm, nil
}

// FromBytes computes the digest of content with the given algorithm.
func FromBytes(algorithm Algorithm, content []byte) (Digest, error) {
	alg, ok := algorithms[algorithm]
	if !ok {
		return Digest{}, NewError(KindDigestInvalid, "digest algorithm %q is not supported", algorithm)
	}
	return Digest{algorithm: algorithm, hex: alg.FromBytes(content).Encoded()}, nil
}

// SHA256Of computes the sha256 digest of content.
func SHA256Of(content []byte) Digest {
	return Digest{algorithm: SHA256, hex: godigest.SHA256.FromBytes(content).Encoded()}
}

func (d Digest) Algorithm() Algorithm { return d.algorithm }

func (d Digest) Hex() string { return d.hex }

func (d Digest) IsZero() bool { return d.algorithm == "" }

func (d Digest) String() string {
	if d.IsZero() {
		return ""
	}
	return string(d.algorithm) + ":" + d.hex
}

// Validate recomputes the hash of content and compares it to the digest.
func (d Digest) Validate(content []byte) bool {
	alg, ok := algorithms[d.algorithm]
	if !ok {
		return false
	}
	return alg.FromBytes(content).Encoded() == d.hex
}

func (d Digest) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Digest) UnmarshalText(text []byte) error {
	parsed, err := ParseDigest(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func (Digest) isReference() {}
