package logger

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
)

const redacted = "[REDACTED]"

// Keys whose values identify a person outside the pipeline. They are hashed
// rather than dropped so lines about the same person still correlate.
var identityKeys = map[string]bool{
	"id_value":      true,
	"idvalue":       true,
	"empi":          true,
	"patient_name":  true,
	"relative_name": true,
}

var secretFragments = []string{"password", "secret", "token", "authorization", "dsn"}

// redactor scrubs key/value pairs. The zero value passes everything through.
type redactor struct {
	enabled bool
	salt    string
}

func redactorFromEnv() *redactor {
	r := &redactor{enabled: true, salt: strings.TrimSpace(os.Getenv("LOG_HASH_SALT"))}
	switch strings.ToLower(strings.TrimSpace(os.Getenv("LOG_REDACTION_ENABLED"))) {
	case "0", "false", "no", "off":
		r.enabled = false
	}
	return r
}

func (r *redactor) kvs(kv []any) []any {
	if r == nil || !r.enabled || len(kv) == 0 {
		return kv
	}
	out := make([]any, 0, len(kv))
	for i := 0; i+1 < len(kv); i += 2 {
		out = append(out, kv[i], r.value(normKey(kv[i]), kv[i+1]))
	}
	if len(kv)%2 == 1 {
		out = append(out, kv[len(kv)-1])
	}
	return out
}

func (r *redactor) value(key string, v any) any {
	switch {
	case key == "":
	case isSecret(key):
		return redacted
	case identityKeys[key]:
		return r.hash(v)
	}
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, inner := range t {
			out[k] = r.value(normKey(k), inner)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, inner := range t {
			out[i] = r.value("", inner)
		}
		return out
	}
	return v
}

func (r *redactor) hash(v any) string {
	raw := asString(v)
	if raw == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(r.salt + raw))
	return "hash:" + hex.EncodeToString(sum[:])[:12]
}

func isSecret(key string) bool {
	for _, frag := range secretFragments {
		if strings.Contains(key, frag) {
			return true
		}
	}
	return false
}

func normKey(k any) string {
	return strings.ToLower(strings.TrimSpace(asString(k)))
}

func asString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	}
	return strings.TrimSpace(fmt.Sprint(v))
}
