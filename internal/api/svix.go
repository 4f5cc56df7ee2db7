package api

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const svixTolerance = 5 * time.Minute

var (
	errMissingSignatureHeaders = errors.New("missing signature headers")
	errSignatureTimestamp      = errors.New("signature timestamp outside tolerance")
	errSignatureMismatch       = errors.New("no matching signature")
)

// svixVerifier checks the signature headers Clerk attaches to webhook deliveries.
type svixVerifier struct {
	key []byte
	now func() time.Time
}

func newSvixVerifier(secret string) (*svixVerifier, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, nil
	}

	key, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(secret, "whsec_"))
	if err != nil {
		return nil, errors.New("webhook secret is not valid base64")
	}
	return &svixVerifier{key: key, now: time.Now}, nil
}

// deliveryID returns the message id of a delivery. Clerk sends svix-* headers;
// the standard webhook-* names are accepted as well.
func deliveryID(h http.Header) string {
	return svixHeader(h, "id")
}

func svixHeader(h http.Header, name string) string {
	if v := strings.TrimSpace(h.Get("svix-" + name)); v != "" {
		return v
	}
	return strings.TrimSpace(h.Get("webhook-" + name))
}

func (v *svixVerifier) verify(h http.Header, body []byte) error {
	id := svixHeader(h, "id")
	timestamp := svixHeader(h, "timestamp")
	signatures := svixHeader(h, "signature")
	if id == "" || timestamp == "" || signatures == "" {
		return errMissingSignatureHeaders
	}

	seconds, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return errSignatureTimestamp
	}
	sentAt := time.Unix(seconds, 0)
	if d := v.now().Sub(sentAt); d > svixTolerance || d < -svixTolerance {
		return errSignatureTimestamp
	}

	expected := v.sign(id, timestamp, body)
	for _, candidate := range strings.Fields(signatures) {
		version, sig, ok := strings.Cut(candidate, ",")
		if !ok || version != "v1" {
			continue
		}
		decoded, err := base64.StdEncoding.DecodeString(sig)
		if err != nil {
			continue
		}
		if hmac.Equal(decoded, expected) {
			return nil
		}
	}
	return errSignatureMismatch
}

func (v *svixVerifier) sign(id, timestamp string, body []byte) []byte {
	mac := hmac.New(sha256.New, v.key)
	mac.Write([]byte(id))
	mac.Write([]byte("."))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(body)
	return mac.Sum(nil)
}
