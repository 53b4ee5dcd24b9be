// Package identity derives the privacy-preserving dedup key of a social-login user.
//
// The raw provider identifier never leaves this package: callers receive a Key,
// a hex digest over the provider tag and the NFC-normalized identifier.
package identity

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"hash"
	"strings"

	"golang.org/x/text/unicode/norm"

	dErrors "github.com/changeuikim/vercel-kayce/pkg/domain-errors"
)

// Provider is the closed set of external identity sources.
type Provider string

const (
	ProviderGitHub Provider = "GITHUB"
	ProviderGoogle Provider = "GOOGLE"
	ProviderKakao  Provider = "KAKAO"
	ProviderNaver  Provider = "NAVER"
)

// Providers lists every known provider in display order.
var Providers = []Provider{ProviderGitHub, ProviderGoogle, ProviderKakao, ProviderNaver}

func (p Provider) String() string { return string(p) }

func (p Provider) Valid() bool {
	switch p {
	case ProviderGitHub, ProviderGoogle, ProviderKakao, ProviderNaver:
		return true
	}
	return false
}

// ParseProvider accepts a provider name in any letter case.
func ParseProvider(s string) (Provider, error) {
	p := Provider(strings.ToUpper(strings.TrimSpace(s)))
	if !p.Valid() {
		return "", dErrors.New(dErrors.CodeValidation, "unknown provider").WithMeta("provider", s)
	}
	return p, nil
}

// Key is the hashed identity stored on the user record.
type Key string

func (k Key) String() string { return string(k) }

// Short is a log-safe prefix of the key.
func (k Key) Short() string {
	if len(k) <= 12 {
		return string(k)
	}
	return string(k[:12])
}

// Hasher computes identity keys. A non-empty pepper switches the digest from
// SHA-256 to HMAC-SHA256 so keys cannot be recomputed without the secret.
type Hasher struct {
	pepper []byte
}

func NewHasher(pepper string) *Hasher {
	h := &Hasher{}
	if pepper != "" {
		h.pepper = []byte(pepper)
	}
	return h
}

// Hash derives the identity key for raw under provider. Leading and trailing
// whitespace is not part of the identity.
func (h *Hasher) Hash(raw string, provider Provider) (Key, error) {
	if !provider.Valid() {
		return "", dErrors.New(dErrors.CodeValidation, "unknown provider").WithMeta("provider", string(provider))
	}
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", dErrors.New(dErrors.CodeInvalidIdentity, "").WithMeta("provider", string(provider))
	}

	var d hash.Hash
	if len(h.pepper) > 0 {
		d = hmac.New(sha256.New, h.pepper)
	} else {
		d = sha256.New()
	}
	d.Write([]byte(provider))
	d.Write([]byte{0})
	d.Write([]byte(norm.NFC.String(trimmed)))
	return Key(hex.EncodeToString(d.Sum(nil))), nil
}

var defaultHasher = NewHasher("")

// Hash derives an identity key without a pepper.
func Hash(raw string, provider Provider) (Key, error) {
	return defaultHasher.Hash(raw, provider)
}
