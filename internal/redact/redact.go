// Package redact scans pasted text for secret-shaped substrings (API
// keys, bearer tokens, URL userinfo, JWTs, VCS/service PATs) and replaces
// each occurrence with a stable, session-scoped placeholder, so an
// agent's tools can refer to the placeholder while the runtime
// substitutes the real value at execution time. Unredact reverses the
// mapping within a session.
package redact

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
)

// pattern is one secret-shaped regex this redactor recognizes.
type pattern struct {
	name string
	re   *regexp.Regexp
}

// patterns covers the common secret shapes seen across the retrieval
// pack's credential-handling code: key=value assignments, bearer/basic
// auth headers, provider-prefixed API keys, URL userinfo, JWTs, and
// VCS/service personal access tokens.
var patterns = []pattern{
	{"kv_secret", regexp.MustCompile(`(?i)\b(api[_-]?key|token|secret|password|passwd)\s*[:=]\s*['"]?([A-Za-z0-9_\-./+]{8,})['"]?`)},
	{"bearer_auth", regexp.MustCompile(`(?i)\b(Bearer|Basic)\s+([A-Za-z0-9_\-./+=]{8,})`)},
	{"anthropic_key", regexp.MustCompile(`\bsk-ant-[A-Za-z0-9_\-]{10,}\b`)},
	{"openai_key", regexp.MustCompile(`\bsk-[A-Za-z0-9]{20,}\b`)},
	{"url_userinfo", regexp.MustCompile(`://[^\s/@]+:[^\s/@]+@`)},
	{"jwt", regexp.MustCompile(`\beyJ[A-Za-z0-9_\-]+\.[A-Za-z0-9_\-]+\.[A-Za-z0-9_\-]+\b`)},
	{"github_pat", regexp.MustCompile(`\bgh[pousr]_[A-Za-z0-9]{20,}\b`)},
	{"slack_token", regexp.MustCompile(`\bxox[baprs]-[A-Za-z0-9-]{10,}\b`)},
}

// Redactor holds the session-scoped mapping between placeholders and the
// real values they stand in for. It is not safe for concurrent use without
// external synchronization.
type Redactor struct {
	valueToPlaceholder map[string]string
	placeholderToValue map[string]string
}

// New returns an empty Redactor.
func New() *Redactor {
	return &Redactor{
		valueToPlaceholder: make(map[string]string),
		placeholderToValue: make(map[string]string),
	}
}

// Redact scans s for secret-shaped substrings and replaces each with a
// stable placeholder. The same secret value always maps to the same
// placeholder within this Redactor's lifetime, so unredact(redact(s))
// recovers s within a session.
func (r *Redactor) Redact(s string) string {
	for _, p := range patterns {
		s = p.re.ReplaceAllStringFunc(s, func(match string) string {
			return r.placeholderFor(p.name, match)
		})
	}
	return s
}

// placeholderFor returns the stable placeholder for match, minting one if
// this is the first time match has been seen.
func (r *Redactor) placeholderFor(kind, match string) string {
	if ph, ok := r.valueToPlaceholder[match]; ok {
		return ph
	}
	sum := sha256.Sum256([]byte(match))
	ph := "REDACTED_" + kind + "_" + hex.EncodeToString(sum[:])[:12]
	r.valueToPlaceholder[match] = ph
	r.placeholderToValue[ph] = match
	return ph
}

// Unredact substitutes every known placeholder in s back to its real
// value. Unrecognized placeholders (from a different Redactor, or plain
// text that happens to look like one) are left untouched.
func (r *Redactor) Unredact(s string) string {
	for ph, value := range r.placeholderToValue {
		s = strings.ReplaceAll(s, ph, value)
	}
	return s
}

// Placeholders returns every placeholder minted so far, for diagnostics.
func (r *Redactor) Placeholders() []string {
	out := make([]string, 0, len(r.placeholderToValue))
	for ph := range r.placeholderToValue {
		out = append(out, ph)
	}
	return out
}
