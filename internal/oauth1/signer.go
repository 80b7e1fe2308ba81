package oauth1

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Signer produces one-legged OAuth1 HMAC-SHA1 Authorization headers for
// requests signed with a consumer key pair plus a user token pair.
//
// Every call generates a fresh nonce and timestamp; providers treat reuse as
// a replay attempt.
type Signer struct {
	consumerKey    string
	consumerSecret string
	nonce          func() string
	now            func() time.Time
}

// NewSigner creates a Signer for the given consumer key pair.
func NewSigner(consumerKey, consumerSecret string) *Signer {
	return &Signer{
		consumerKey:    consumerKey,
		consumerSecret: consumerSecret,
		nonce:          newNonce,
		now:            time.Now,
	}
}

// AuthHeader returns a ready-to-use Authorization header value for a request
// with the given method and URL (which must carry no query string), signed
// with the user token pair.
func (s *Signer) AuthHeader(method, rawURL, token, tokenSecret string) string {
	return s.AuthHeaderWithParams(method, rawURL, token, tokenSecret, nil)
}

// AuthHeaderWithParams is AuthHeader for requests that carry form-body
// parameters: those participate in the signature base string but are not
// rendered into the header itself.
func (s *Signer) AuthHeaderWithParams(method, rawURL, token, tokenSecret string, form map[string]string) string {
	nonce := s.nonce()
	timestamp := fmt.Sprintf("%d", s.now().Unix())

	oauthParams := map[string]string{
		"oauth_consumer_key":     s.consumerKey,
		"oauth_nonce":            nonce,
		"oauth_signature_method": "HMAC-SHA1",
		"oauth_timestamp":        timestamp,
		"oauth_token":            token,
		"oauth_version":          "1.0",
	}

	signed := make(map[string]string, len(oauthParams)+len(form))
	for k, v := range oauthParams {
		signed[k] = v
	}
	for k, v := range form {
		signed[k] = v
	}

	base := baseString(method, rawURL, signed)
	oauthParams["oauth_signature"] = sign(base, signingKey(s.consumerSecret, tokenSecret))

	return authHeader(oauthParams)
}

// baseString builds the signature base string: the uppercased method, the
// encoded URL and the encoded sorted parameter string joined with "&".
func baseString(method, rawURL string, params map[string]string) string {
	keys := make([]string, 0, len(params))
	encoded := make(map[string]string, len(params))
	for k, v := range params {
		ek := percentEncode(k)
		encoded[ek] = percentEncode(v)
		keys = append(keys, ek)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+encoded[k])
	}
	paramString := strings.Join(pairs, "&")

	return strings.ToUpper(method) + "&" + percentEncode(rawURL) + "&" + percentEncode(paramString)
}

// signingKey joins the encoded secrets with "&". The token secret may be
// empty (it still contributes the separator).
func signingKey(consumerSecret, tokenSecret string) string {
	return percentEncode(consumerSecret) + "&" + percentEncode(tokenSecret)
}

// sign computes the base64 HMAC-SHA1 digest of the base string.
func sign(base, key string) string {
	mac := hmac.New(sha1.New, []byte(key))
	mac.Write([]byte(base))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// authHeader renders the oauth_* parameters, signature included, as an
// Authorization header value.
func authHeader(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, percentEncode(k)+`="`+percentEncode(params[k])+`"`)
	}
	return "OAuth " + strings.Join(pairs, ", ")
}

// percentEncode applies the strict RFC 3986 rule: only ALPHA, DIGIT and
// "-._~" pass through. Space becomes %20 and the sub-delims !'()* are
// escaped, unlike net/url's query encoding.
func percentEncode(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isUnreserved(c) {
			b.WriteByte(c)
		} else {
			b.WriteString(fmt.Sprintf("%%%02X", c))
		}
	}
	return b.String()
}

func isUnreserved(c byte) bool {
	return (c >= 'A' && c <= 'Z') ||
		(c >= 'a' && c <= 'z') ||
		(c >= '0' && c <= '9') ||
		c == '-' || c == '.' || c == '_' || c == '~'
}

// newNonce returns 16 random bytes hex-encoded.
func newNonce() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand never fails on supported platforms; fall back to the
		// clock rather than panic inside a request path.
		return fmt.Sprintf("%x", time.Now().UnixNano())
	}
	return hex.EncodeToString(buf)
}
