// Package auth derives the per-request authentication triple required by the
// Marvel API: a timestamp, the public key and an MD5 digest of
// timestamp+private key+public key.
package auth

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"net/url"
	"strconv"
	"time"
)

// Query parameter names expected by the upstream on every call.
const (
	ParamTimestamp = "ts"
	ParamAPIKey    = "apikey"
	ParamHash      = "hash"
)

// ErrMissingCredentials is returned when either key is empty.
var ErrMissingCredentials = errors.New("marvel public and private keys are required")

// Credentials are the two static secrets issued by the upstream.
type Credentials struct {
	PublicKey  string
	PrivateKey string
}

// Validate returns ErrMissingCredentials if either key is empty.
func (c Credentials) Validate() error {
	if c.PublicKey == "" || c.PrivateKey == "" {
		return ErrMissingCredentials
	}
	return nil
}

// AuthParams is the triple attached to a single outbound request.
type AuthParams struct {
	Timestamp string
	APIKey    string
	Hash      string
}

// Apply sets ts, apikey and hash on q, overwriting existing values.
func (p AuthParams) Apply(q url.Values) {
	q.Set(ParamTimestamp, p.Timestamp)
	q.Set(ParamAPIKey, p.APIKey)
	q.Set(ParamHash, p.Hash)
}

// Values returns the triple as a fresh url.Values.
func (p AuthParams) Values() url.Values {
	q := url.Values{}
	p.Apply(q)
	return q
}

// Signer produces AuthParams. It is safe for concurrent use.
type Signer struct {
	creds Credentials
	now   func() time.Time
}

// NewSigner creates a signer for the given credentials.
func NewSigner(creds Credentials) (*Signer, error) {
	if err := creds.Validate(); err != nil {
		return nil, err
	}
	return &Signer{
		creds: creds,
		now:   time.Now,
	}, nil
}

// Sign returns the triple for the current wall-clock time.
func (s *Signer) Sign() AuthParams {
	return s.SignAt(s.now())
}

// SignAt returns the triple for t, truncated to whole seconds.
func (s *Signer) SignAt(t time.Time) AuthParams {
	ts := strconv.FormatInt(t.Unix(), 10)
	return AuthParams{
		Timestamp: ts,
		APIKey:    s.creds.PublicKey,
		Hash:      Hash(ts, s.creds.PrivateKey, s.creds.PublicKey),
	}
}

// PublicKey returns the key sent as apikey.
func (s *Signer) PublicKey() string {
	return s.creds.PublicKey
}

// Hash computes lowercase hex md5(ts + privateKey + publicKey).
func Hash(ts, privateKey, publicKey string) string {
	sum := md5.Sum([]byte(ts + privateKey + publicKey))
	return hex.EncodeToString(sum[:])
}
