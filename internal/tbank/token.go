// Package tbank talks to the T-Bank acquiring API: request signing, Init and notifications.
package tbank

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"sort"
	"strconv"
	"strings"
)

const (
	fieldToken    = "Token"
	fieldPassword = "Password"
)

var (
	ErrTokenMissing  = errors.New("token required")
	ErrTokenMismatch = errors.New("invalid token")
)

// Token signs the root-level scalar fields of a request. The Token field itself is
// ignored, Password is added, values are joined in key order and hashed with SHA-256.
func Token(fields map[string]any, password string) string {
	vals := make(map[string]string, len(fields)+1)
	for k, v := range fields {
		if k == fieldToken {
			continue
		}
		if s, ok := stringify(v); ok {
			vals[k] = s
		}
	}
	vals[fieldPassword] = password

	keys := make([]string, 0, len(vals))
	for k := range vals {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString(vals[k])
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// Verify checks the Token carried in fields against a freshly computed one.
func Verify(fields map[string]any, password string) error {
	got, _ := stringify(fields[fieldToken])
	if got == "" {
		return ErrTokenMissing
	}
	want := Token(fields, password)
	if subtle.ConstantTimeCompare([]byte(got), []byte(want)) != 1 {
		return ErrTokenMismatch
	}
	return nil
}

// Nested objects and arrays do not take part in signing.
func stringify(v any) (string, bool) {
	switch x := v.(type) {
	case nil:
		return "", false
	case string:
		return x, true
	case json.Number:
		return x.String(), true
	case bool:
		return strconv.FormatBool(x), true
	case int:
		return strconv.Itoa(x), true
	case int64:
		return strconv.FormatInt(x, 10), true
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), true
	default:
		return "", false
	}
}
