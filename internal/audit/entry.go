// Package audit records one entry per HTTP request: who called what, how long
// it took and a redacted copy of the bodies.
package audit

import (
	"encoding/json"
	"strings"
	"time"
)

const (
	// MaxBody is the longest body text kept on an entry.
	MaxBody  = 500
	Redacted = "[REDACTED]"
)

type Entry struct {
	Timestamp      time.Time       `json:"timestamp"`
	TenantID       string          `json:"tenant_id"`
	Endpoint       string          `json:"endpoint"`
	Method         string          `json:"method"`
	APIID          string          `json:"api_id,omitempty"`
	IsAPIRequest   bool            `json:"is_api_request"`
	Request        json.RawMessage `json:"request,omitempty"`
	Response       json.RawMessage `json:"response,omitempty"`
	ResponseTimeMS int64           `json:"response_time_ms"`
	StatusCode     int             `json:"status_code"`
}

var sensitiveParts = []string{
	"password",
	"passwd",
	"token",
	"secret",
	"auth",
	"credit_card",
	"creditcard",
	"cvv",
	"api_key",
	"apikey",
}

// author is not a credential; authorization still is.
var authorWords = strings.NewReplacer("authoriz", "auth", "authoris", "auth", "author", "")

// Sensitive reports whether a field name should never reach the audit store.
// Any key containing one of sensitiveParts matches, case-insensitively, so
// "accesstoken" and "userPassword" are caught alongside "access_token".
func Sensitive(key string) bool {
	k := authorWords.Replace(strings.ToLower(key))
	for _, p := range sensitiveParts {
		if strings.Contains(k, p) {
			return true
		}
	}
	return false
}

// Redact returns a copy of v with sensitive object fields replaced.
func Redact(v any) any {
	switch x := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, val := range x {
			if Sensitive(k) {
				out[k] = Redacted
				continue
			}
			out[k] = Redact(val)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, val := range x {
			out[i] = Redact(val)
		}
		return out
	}
	return v
}

// Body turns raw request or response bytes into the stored form: JSON is
// redacted and re-encoded, anything else is kept as a JSON string. Results
// longer than MaxBody become a truncated JSON string.
func Body(raw []byte) json.RawMessage {
	if len(strings.TrimSpace(string(raw))) == 0 {
		return nil
	}
	var text string
	var v any
	if err := json.Unmarshal(raw, &v); err == nil {
		b, err := json.Marshal(Redact(v))
		if err != nil {
			return nil
		}
		if len(b) <= MaxBody {
			return b
		}
		text = string(b)
	} else {
		text = string(raw)
	}
	if len(text) > MaxBody {
		text = truncate(text, MaxBody) + "..."
	}
	b, _ := json.Marshal(text)
	return b
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8Start(s[n]) {
		n--
	}
	return s[:n]
}

func utf8Start(b byte) bool { return b&0xC0 != 0x80 }
