// Package auth turns bearer tokens into caller identities. The booking core
// treats the identity as an opaque string; only the API layer looks at roles.
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	RoleCustomer = "customer"
	RoleAdmin    = "admin"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpired      = errors.New("token expired")
)

// Verifier validates tokens. Modes: dev (no verify, "role:subject") and
// hmac (HS256 JWT).
type Verifier struct {
	Mode       string
	HMACSecret []byte
	SubClaim   string
	RoleClaim  string
	Now        func() time.Time
}

type Principal struct {
	Subject string
	Role    string
}

func (p Principal) IsAdmin() bool { return p.Role == RoleAdmin }

func NewVerifier(mode, secret string) (*Verifier, error) {
	mode = strings.ToLower(strings.TrimSpace(mode))
	if mode == "" {
		mode = "dev"
	}
	switch mode {
	case "dev":
	case "hmac":
		if secret == "" {
			return nil, errors.New("auth: hmac mode needs a secret")
		}
	default:
		return nil, fmt.Errorf("auth: unsupported mode %q", mode)
	}
	return &Verifier{Mode: mode, HMACSecret: []byte(secret), SubClaim: "sub", RoleClaim: "role", Now: time.Now}, nil
}

func (v *Verifier) Verify(token string) (Principal, error) {
	if v.Mode == "dev" {
		// token format: role:subject
		role, subject, ok := strings.Cut(token, ":")
		if !ok || subject == "" {
			return Principal{}, fmt.Errorf("%w: expected role:subject", ErrInvalidToken)
		}
		return principal(subject, role), nil
	}
	segs := strings.Split(token, ".")
	if len(segs) != 3 {
		return Principal{}, fmt.Errorf("%w: not a JWT", ErrInvalidToken)
	}
	headerJSON, err := b64urlDecode(segs[0])
	if err != nil {
		return Principal{}, fmt.Errorf("%w: header: %v", ErrInvalidToken, err)
	}
	payloadJSON, err := b64urlDecode(segs[1])
	if err != nil {
		return Principal{}, fmt.Errorf("%w: payload: %v", ErrInvalidToken, err)
	}
	sig, err := b64urlDecode(segs[2])
	if err != nil {
		return Principal{}, fmt.Errorf("%w: signature: %v", ErrInvalidToken, err)
	}
	var hdr struct {
		Alg string `json:"alg"`
	}
	if err := json.Unmarshal(headerJSON, &hdr); err != nil {
		return Principal{}, fmt.Errorf("%w: header: %v", ErrInvalidToken, err)
	}
	if hdr.Alg != "HS256" {
		return Principal{}, fmt.Errorf("%w: unsupported alg %q", ErrInvalidToken, hdr.Alg)
	}
	mac := hmac.New(sha256.New, v.HMACSecret)
	mac.Write([]byte(segs[0] + "." + segs[1]))
	if !hmac.Equal(mac.Sum(nil), sig) {
		return Principal{}, fmt.Errorf("%w: bad signature", ErrInvalidToken)
	}
	var claims map[string]any
	if err := json.Unmarshal(payloadJSON, &claims); err != nil {
		return Principal{}, fmt.Errorf("%w: claims: %v", ErrInvalidToken, err)
	}
	if exp, ok := claims["exp"].(float64); ok && v.Now().Unix() >= int64(exp) {
		return Principal{}, ErrExpired
	}
	sub, _ := claims[v.SubClaim].(string)
	role, _ := claims[v.RoleClaim].(string)
	if sub == "" {
		return Principal{}, fmt.Errorf("%w: missing %s claim", ErrInvalidToken, v.SubClaim)
	}
	return principal(sub, role), nil
}

func principal(subject, role string) Principal {
	role = strings.ToLower(strings.TrimSpace(role))
	if role == "" {
		role = RoleCustomer
	}
	return Principal{Subject: strings.TrimSpace(subject), Role: role}
}

// SignHS256 issues a token for claims; used by tooling and tests.
func SignHS256(secret []byte, claims map[string]any) (string, error) {
	hdr, _ := json.Marshal(map[string]string{"alg": "HS256", "typ": "JWT"})
	body, err := json.Marshal(claims)
	if err != nil {
		return "", err
	}
	input := b64urlEncode(hdr) + "." + b64urlEncode(body)
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(input))
	return input + "." + b64urlEncode(mac.Sum(nil)), nil
}

func b64urlDecode(s string) ([]byte, error) { return base64.RawURLEncoding.DecodeString(s) }

func b64urlEncode(b []byte) string { return base64.RawURLEncoding.EncodeToString(b) }
