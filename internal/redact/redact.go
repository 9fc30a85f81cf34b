// Package redact masks sensitive values in request documents before they
// reach logs.
package redact

import (
	"encoding/json"
	"regexp"
	"strings"
)

// Mask replaces every redacted value.
const Mask = "***"

// DefaultPatterns match the keys masked when no patterns are configured.
var DefaultPatterns = []string{
	`(?i)passw(or)?d`,
	`(?i)secret`,
	`(?i)token`,
	`(?i)credential`,
	`(?i)(private|access)_?key`,
}

// Redactor masks the values of JSON keys matching a set of patterns.
type Redactor struct {
	patterns []*regexp.Regexp
}

// New compiles patterns. It panics on an invalid pattern, like regexp.MustCompile.
func New(patterns ...string) *Redactor {
	r := &Redactor{patterns: make([]*regexp.Regexp, len(patterns))}
	for i, p := range patterns {
		r.patterns[i] = regexp.MustCompile(p)
	}
	return r
}

// Compile is New returning the compile error instead of panicking.
func Compile(patterns ...string) (*Redactor, error) {
	r := &Redactor{patterns: make([]*regexp.Regexp, 0, len(patterns))}
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, err
		}
		r.patterns = append(r.patterns, re)
	}
	return r, nil
}

// Document returns doc with sensitive values masked. String values holding
// a JSON object are redacted too, since request payloads often nest one.
// Input that is not a JSON object is returned unchanged.
func (r *Redactor) Document(doc string) string {
	if r == nil || len(r.patterns) == 0 {
		return doc
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(doc), &m); err != nil {
		return doc
	}
	if !r.maskMap(m) {
		return doc
	}
	out, err := json.Marshal(m)
	if err != nil {
		return doc
	}
	return string(out)
}

func (r *Redactor) matches(key string) bool {
	for _, p := range r.patterns {
		if p.MatchString(key) {
			return true
		}
	}
	return false
}

// maskMap masks m in place and reports whether anything changed.
func (r *Redactor) maskMap(m map[string]any) bool {
	changed := false
	for k, v := range m {
		if r.matches(k) {
			m[k] = Mask
			changed = true
			continue
		}
		if nv, ok := r.maskValue(v); ok {
			m[k] = nv
			changed = true
		}
	}
	return changed
}

func (r *Redactor) maskValue(v any) (any, bool) {
	switch t := v.(type) {
	case map[string]any:
		return t, r.maskMap(t)
	case []any:
		changed := false
		for i, item := range t {
			if nv, ok := r.maskValue(item); ok {
				t[i] = nv
				changed = true
			}
		}
		return t, changed
	case string:
		if !strings.HasPrefix(strings.TrimSpace(t), "{") {
			return t, false
		}
		if masked := r.Document(t); masked != t {
			return masked, true
		}
	}
	return v, false
}
