// Package session provides the Store type — the per-virtual-user session
// state described in §4.12: cookies, tokens, and scenario-extracted
// variables, isolated per user id and internally mutually exclusive.
//
// This mirrors the teacher's Session/SessionManager split (see
// session.Session, which owned a dedicated *http.Client and cookie jar per
// id under one sync.RWMutex): a Store plays the same per-id-isolation role,
// generalised from "one HTTP client's state" to "one virtual user's
// protocol-agnostic state" since sessions here span HTTP, WebSocket, TCP,
// UDP, MQTT and DB steps, not just HTTP requests.
package session

import (
	"encoding/json"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/firasghr/loadspiker-engine/jsonpath"
	"github.com/firasghr/loadspiker-engine/model"
)

// ExtractSource names where a correlation rule pulls its value from.
type ExtractSource int

const (
	SourceJSONPath ExtractSource = iota
	SourceHeader
	SourceCookie
	SourceRegexGroup1
)

// ExtractRule pulls a value out of a response and binds it into the owning
// virtual user's Store under Variable.
type ExtractRule struct {
	Source   ExtractSource
	Key      string
	Variable string
}

// Cookie is the stored shape of one Set-Cookie name=value pair.
type Cookie struct {
	Value  string
	Domain string
	Path   string
}

// Token is a stored credential with an optional expiry.
type Token struct {
	Value     string
	ExpiresAt int64 // unix seconds; zero means "does not expire"
}

// tokenPreference is the precedence order PrepareRequestHeaders uses when
// more than one token type is present, per §4.12: bearer > api_key > basic.
var tokenPreference = []string{"bearer", "api_key", "basic"}

// Store is the mutually-exclusive, per-virtual-user session state. All
// methods are safe for concurrent use; one Store never observes another
// Store's writes.
type Store struct {
	mu      sync.RWMutex
	vars    map[string]interface{}
	cookies map[string]Cookie
	tokens  map[string]Token
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		vars:    make(map[string]interface{}),
		cookies: make(map[string]Cookie),
		tokens:  make(map[string]Token),
	}
}

// Get returns the value bound under key, if any.
func (s *Store) Get(key string) (interface{}, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.vars[key]
	return v, ok
}

// Set binds value under key.
func (s *Store) Set(key string, value interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vars[key] = value
}

// SetToken stores a credential under tokenType ("bearer", "api_key",
// "basic", ...). expiresAtUnixS of zero means the token never expires.
func (s *Store) SetToken(tokenType, value string, expiresAtUnixS int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[tokenType] = Token{Value: value, ExpiresAt: expiresAtUnixS}
}

// GetToken returns the stored token for tokenType. It returns ("", false) if
// absent or expired.
func (s *Store) GetToken(tokenType string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tok, ok := s.tokens[tokenType]
	if !ok {
		return "", false
	}
	if tok.ExpiresAt != 0 && time.Now().Unix() >= tok.ExpiresAt {
		return "", false
	}
	return tok.Value, true
}

// ClearToken removes the token for tokenType. Removing an absent type is a
// no-op.
func (s *Store) ClearToken(tokenType string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, tokenType)
}

// ClearAllTokens removes every stored token, used by an unscoped logout.
func (s *Store) ClearAllTokens() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens = make(map[string]Token)
}

// SetCookie stores a cookie by name.
func (s *Store) SetCookie(name, value, domain, path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cookies[name] = Cookie{Value: value, Domain: domain, Path: path}
}

// GetCookie returns the stored cookie value for name.
func (s *Store) GetCookie(name string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.cookies[name]
	return c.Value, ok
}

// setCookieHeader matches one "Set-Cookie: name=value[; attr=...]" line.
var setCookieHeader = regexp.MustCompile(`(?i)^Set-Cookie:\s*([^=;]+)=([^;]*)`)

// AutoHandleCookies scans the newline-delimited header blob of a response
// for Set-Cookie lines and stores each name=value pair. Attributes other
// than the bare name=value (Domain, Path, Expires, ...) are ignored, per
// §4.12.
func (s *Store) AutoHandleCookies(headerBlob string) {
	for _, line := range strings.Split(headerBlob, "\n") {
		line = strings.TrimRight(line, "\r")
		m := setCookieHeader.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		s.SetCookie(strings.TrimSpace(m[1]), strings.TrimSpace(m[2]), "", "")
	}
}

// ProcessResponse applies each extract rule against record and binds the
// resulting value into this Store under rule.Variable. A rule whose source
// cannot be resolved is skipped without error — correlation is best-effort,
// matching the original's permissive behaviour.
func (s *Store) ProcessResponse(record model.ResponseRecord, rules []ExtractRule) {
	var decodedBody interface{}
	var bodyDecoded bool

	for _, rule := range rules {
		switch rule.Source {
		case SourceJSONPath:
			if !bodyDecoded {
				_ = json.Unmarshal(record.Body, &decodedBody)
				bodyDecoded = true
			}
			if v, ok := jsonpath.Get(decodedBody, rule.Key); ok {
				s.Set(rule.Variable, v)
			}
		case SourceHeader:
			if v, ok := headerValue(record.Headers, rule.Key); ok {
				s.Set(rule.Variable, v)
			}
		case SourceCookie:
			s.AutoHandleCookies(record.Headers)
			if v, ok := s.GetCookie(rule.Key); ok {
				s.Set(rule.Variable, v)
			}
		case SourceRegexGroup1:
			re, err := regexp.Compile(rule.Key)
			if err != nil {
				continue
			}
			if m := re.FindSubmatch(record.Body); len(m) >= 2 {
				s.Set(rule.Variable, string(m[1]))
			}
		}
	}
}

// headerValue looks up a header by name (case-insensitive) in a
// newline-delimited "Name: value" blob.
func headerValue(blob, name string) (string, bool) {
	for _, line := range strings.Split(blob, "\n") {
		line = strings.TrimRight(line, "\r")
		idx := strings.IndexByte(line, ':')
		if idx < 0 {
			continue
		}
		if strings.EqualFold(strings.TrimSpace(line[:idx]), name) {
			return strings.TrimSpace(line[idx+1:]), true
		}
	}
	return "", false
}

// PrepareRequestHeaders returns baseHeaders (a newline-delimited blob)
// augmented with a Cookie header built from every stored cookie and an
// Authorization header for the highest-precedence token present
// (bearer > api_key > basic, per §4.12). api_key is emitted as a plain
// header using the key's stored name, not folded into Authorization.
func (s *Store) PrepareRequestHeaders(baseHeaders string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lines := []string{}
	if baseHeaders != "" {
		lines = append(lines, baseHeaders)
	}

	if len(s.cookies) > 0 {
		pairs := make([]string, 0, len(s.cookies))
		for name, c := range s.cookies {
			pairs = append(pairs, name+"="+c.Value)
		}
		lines = append(lines, "Cookie: "+strings.Join(pairs, "; "))
	}

	for _, t := range tokenPreference {
		tok, ok := s.tokens[t]
		if !ok {
			continue
		}
		if tok.ExpiresAt != 0 && time.Now().Unix() >= tok.ExpiresAt {
			continue
		}
		switch t {
		case "bearer":
			lines = append(lines, "Authorization: Bearer "+tok.Value)
		case "basic":
			lines = append(lines, "Authorization: "+tok.Value)
		case "api_key":
			lines = append(lines, tok.Value)
		}
		break
	}

	return strings.Join(lines, "\n")
}
