package api

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

var errUnknownKID = errors.New("no signing key for kid")

// keySet holds the RSA keys published at a JWKS endpoint. A kid it has not
// seen triggers a refetch, at most once a minute unless the set is empty.
type keySet struct {
	url     string
	client  *http.Client
	refetch *rate.Limiter

	mu   sync.RWMutex
	keys map[string]*rsa.PublicKey
}

func newKeySet(url string) *keySet {
	return &keySet{
		url:     strings.TrimSpace(url),
		client:  &http.Client{Timeout: 5 * time.Second},
		refetch: rate.NewLimiter(rate.Every(time.Minute), 1),
		keys:    map[string]*rsa.PublicKey{},
	}
}

func (s *keySet) key(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	key, empty := s.lookup(kid)
	if key != nil {
		return key, nil
	}
	if !empty && !s.refetch.Allow() {
		return nil, errUnknownKID
	}
	if err := s.fetch(ctx); err != nil {
		return nil, err
	}
	if key, _ := s.lookup(kid); key != nil {
		return key, nil
	}
	return nil, errUnknownKID
}

func (s *keySet) lookup(kid string) (*rsa.PublicKey, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.keys[kid], len(s.keys) == 0
}

type jwk struct {
	Kid string `json:"kid"`
	Kty string `json:"kty"`
	N   string `json:"n"`
	E   string `json:"e"`
}

// fetch replaces the cached keys. Keys that are not RSA are ignored.
func (s *keySet) fetch(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch jwks: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch jwks: status %d", resp.StatusCode)
	}

	var doc struct {
		Keys []jwk `json:"keys"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return fmt.Errorf("decode jwks: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey, len(doc.Keys))
	for _, k := range doc.Keys {
		if k.Kid == "" || k.Kty != "RSA" {
			continue
		}
		pub, err := k.rsaPublicKey()
		if err != nil {
			continue
		}
		keys[k.Kid] = pub
	}
	if len(keys) == 0 {
		return errors.New("jwks has no usable RSA keys")
	}

	s.mu.Lock()
	s.keys = keys
	s.mu.Unlock()
	return nil
}

func (k jwk) rsaPublicKey() (*rsa.PublicKey, error) {
	n, err := base64.RawURLEncoding.DecodeString(k.N)
	if err != nil || len(n) == 0 {
		return nil, fmt.Errorf("jwk %s: bad modulus", k.Kid)
	}
	e, err := base64.RawURLEncoding.DecodeString(k.E)
	if err != nil {
		return nil, fmt.Errorf("jwk %s: bad exponent", k.Kid)
	}
	exponent := new(big.Int).SetBytes(e)
	if !exponent.IsInt64() || exponent.Int64() < 3 || exponent.Int64() > 1<<31-1 {
		return nil, fmt.Errorf("jwk %s: exponent out of range", k.Kid)
	}
	return &rsa.PublicKey{N: new(big.Int).SetBytes(n), E: int(exponent.Int64())}, nil
}
