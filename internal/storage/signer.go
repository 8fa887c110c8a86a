package storage

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"
)

// URLSigner produces time-limited links to stored artifacts. Links carry an
// expiry and an HMAC over bucket, key and expiry, so they can be revoked by
// rotating the secret and never outlive their TTL.
type URLSigner struct {
	secret  []byte
	baseURL string
	now     func() time.Time
}

// NewURLSigner builds a signer. baseURL is the public prefix of the serving
// endpoint, e.g. "http://localhost:8080/v1/files".
func NewURLSigner(secret, baseURL string) (*URLSigner, error) {
	if secret == "" {
		return nil, errors.New("storage: signing secret is required")
	}
	return &URLSigner{secret: []byte(secret), baseURL: baseURL, now: time.Now}, nil
}

// SignedURL returns a link to bucket/key valid for ttl.
func (s *URLSigner) SignedURL(bucket, key string, ttl time.Duration) (string, time.Time) {
	expires := s.now().Add(ttl).Unix()
	sig := s.signature(bucket, key, expires)
	u := fmt.Sprintf("%s/%s/%s?exp=%d&sig=%s", s.baseURL, url.PathEscape(bucket), key, expires, sig)
	return u, time.Unix(expires, 0)
}

// Verify checks a signature produced by SignedURL against the current time.
func (s *URLSigner) Verify(bucket, key string, expires int64, sig string) error {
	if s.now().Unix() > expires {
		return errors.New("storage: link expired")
	}
	expected := s.signature(bucket, key, expires)
	if !hmac.Equal([]byte(expected), []byte(sig)) {
		return errors.New("storage: invalid signature")
	}
	return nil
}

func (s *URLSigner) signature(bucket, key string, expires int64) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(bucket))
	mac.Write([]byte{'/'})
	mac.Write([]byte(key))
	mac.Write([]byte{'|'})
	mac.Write([]byte(strconv.FormatInt(expires, 10)))
	return hex.EncodeToString(mac.Sum(nil))
}
