package wsfeed

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/cschjolb/scuff/internal/auth"
)

const testHMACSecret = "test-secret"

func newTestVerifier(t *testing.T) (*auth.HMACTokenVerifier, error) {
	t.Helper()
	return auth.NewHMACTokenVerifier(testHMACSecret, time.Second)
}

// newTestToken mints an HS256 token scoped to categories (nil means
// unrestricted), matching the "cat" claim auth.HMACTokenVerifier parses.
func newTestToken(t *testing.T, subject string, categories []string, expires time.Time) string {
	t.Helper()
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"HS256","typ":"JWT"}`))
	catsJSON, err := json.Marshal(categories)
	if err != nil {
		t.Fatalf("marshal categories: %v", err)
	}
	payload := fmt.Sprintf(`{"sub":"%s","exp":%d,"iat":%d,"cat":%s}`,
		subject, expires.Unix(), expires.Add(-time.Minute).Unix(), catsJSON)
	encodedPayload := base64.RawURLEncoding.EncodeToString([]byte(payload))
	signingInput := header + "." + encodedPayload
	mac := hmac.New(sha256.New, []byte(testHMACSecret))
	if _, err := mac.Write([]byte(signingInput)); err != nil {
		t.Fatalf("mac write: %v", err)
	}
	signature := base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
	return signingInput + "." + signature
}
