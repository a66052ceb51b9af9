// Package auth implements the authentication flows that feed a virtual
// user's session store (§4.13). Each flow performs whatever network exchange
// it needs through the caller's dispatch.Engine — so token-endpoint and form
// POSTs are ordinary HTTP requests that credit the shared metrics aggregator
// like any other step — and deposits the result into a session.Store using
// the token kinds session.PrepareRequestHeaders already knows how to
// prioritise (bearer > api_key > basic).
//
// The JSON-claims handling here is grounded on the teacher's
// token/refresh.go TokenRefreshManager: same access_token/expires_in
// envelope parsing, re-pointed at session.Store instead of a package-private
// sync.RWMutex-guarded field.
package auth

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/firasghr/loadspiker-engine/dispatch"
	"github.com/firasghr/loadspiker-engine/model"
	"github.com/firasghr/loadspiker-engine/session"
)

// Result is the contract every flow returns, per §4.13.
type Result struct {
	Success  bool
	AuthType string
	Message  string
	Token    string
}

// Flow authenticates one virtual user and deposits credentials into store.
type Flow interface {
	Authenticate(engine *dispatch.Engine, userID string, store *session.Store, params map[string]string) Result
}

// FlowFunc adapts a plain function to the Flow interface, used by Custom.
type FlowFunc func(engine *dispatch.Engine, userID string, store *session.Store, params map[string]string) Result

func (f FlowFunc) Authenticate(engine *dispatch.Engine, userID string, store *session.Store, params map[string]string) Result {
	return f(engine, userID, store, params)
}

// Registry maps a name to a registered Flow, mirroring how scenario steps
// and the session.Manager are looked up by name elsewhere in the engine.
type Registry struct {
	mu    sync.RWMutex
	flows map[string]Flow
}

// NewRegistry creates an empty flow registry.
func NewRegistry() *Registry {
	return &Registry{flows: make(map[string]Flow)}
}

// Register adds or replaces the flow under name.
func (r *Registry) Register(name string, flow Flow) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.flows[name] = flow
}

// Get returns the flow registered under name.
func (r *Registry) Get(name string) (Flow, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.flows[name]
	return f, ok
}

// Authenticate looks up name and runs it, or returns a failed Result if no
// such flow is registered.
func (r *Registry) Authenticate(engine *dispatch.Engine, name, userID string, store *session.Store, params map[string]string) Result {
	flow, ok := r.Get(name)
	if !ok {
		return Result{Success: false, AuthType: name, Message: "auth: no flow registered under " + name}
	}
	return flow.Authenticate(engine, userID, store, params)
}

// Basic stores a precomputed "Authorization: Basic base64(user:pass)" under
// the session's "basic" token slot, per §4.13.
func Basic(username, password string) Flow {
	encoded := base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
	value := "Basic " + encoded
	return FlowFunc(func(_ *dispatch.Engine, _ string, store *session.Store, _ map[string]string) Result {
		store.SetToken("basic", value, 0)
		return Result{Success: true, AuthType: "basic", Token: value}
	})
}

// BearerDirect stores a caller-supplied token under "bearer" with no expiry.
func BearerDirect(token string) Flow {
	return FlowFunc(func(_ *dispatch.Engine, _ string, store *session.Store, _ map[string]string) Result {
		store.SetToken("bearer", token, 0)
		return Result{Success: true, AuthType: "bearer", Token: token}
	})
}

// tokenEnvelope is the JSON shape expected back from a token endpoint,
// matching the fields the teacher's TokenRefreshManager looked for inside a
// raw JWT's claims — here read directly off the response envelope instead.
type tokenEnvelope struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

// BearerEndpoint posts client credentials to tokenURL and stores the
// returned access_token under "bearer", with expiry derived from
// expires_in when present, per §4.13.
func BearerEndpoint(tokenURL, clientID, clientSecret string) Flow {
	return FlowFunc(func(engine *dispatch.Engine, _ string, store *session.Store, _ map[string]string) Result {
		form := url.Values{}
		form.Set("grant_type", "client_credentials")
		form.Set("client_id", clientID)
		form.Set("client_secret", clientSecret)
		return exchangeForBearer(engine, store, tokenURL, form)
	})
}

// exchangeForBearer posts form to tokenURL, parses the access_token/
// expires_in envelope, and stores it under "bearer".
func exchangeForBearer(engine *dispatch.Engine, store *session.Store, tokenURL string, form url.Values) Result {
	rec := engine.Execute(model.RequestDescriptor{
		Protocol:  model.ProtocolHTTP,
		Method:    "POST",
		URL:       tokenURL,
		Headers:   "Content-Type: application/x-www-form-urlencoded",
		Body:      []byte(form.Encode()),
		TimeoutMS: 30000,
	})
	if !rec.Success {
		return Result{Success: false, AuthType: "bearer", Message: "auth: token endpoint request failed: " + rec.ErrorMessage}
	}

	var env tokenEnvelope
	if err := json.Unmarshal(rec.Body, &env); err != nil {
		return Result{Success: false, AuthType: "bearer", Message: fmt.Sprintf("auth: decode token response: %v", err)}
	}
	if env.AccessToken == "" {
		return Result{Success: false, AuthType: "bearer", Message: "auth: token response missing access_token"}
	}

	var expiresAt int64
	if env.ExpiresIn > 0 {
		expiresAt = time.Now().Unix() + env.ExpiresIn
	}
	store.SetToken("bearer", env.AccessToken, expiresAt)
	return Result{Success: true, AuthType: "bearer", Token: env.AccessToken}
}

// APIKey stores headerName/value under the session's "api_key" slot. Per
// §4.13 this is emitted by session.PrepareRequestHeaders as a plain header,
// not folded into Authorization, so the stored value is the full header
// line rather than the bare key.
func APIKey(headerName, value string) Flow {
	line := headerName + ": " + value
	return FlowFunc(func(_ *dispatch.Engine, _ string, store *session.Store, _ map[string]string) Result {
		store.SetToken("api_key", line, 0)
		return Result{Success: true, AuthType: "api_key", Token: value}
	})
}

// Form posts fields to loginURL and succeeds when the response body
// contains successIndicator. Cookies returned by the login response are
// auto-handled into store, per §4.13.
func Form(loginURL string, fields map[string]string, successIndicator string) Flow {
	return FlowFunc(func(engine *dispatch.Engine, _ string, store *session.Store, _ map[string]string) Result {
		form := url.Values{}
		for k, v := range fields {
			form.Set(k, v)
		}
		rec := engine.Execute(model.RequestDescriptor{
			Protocol:  model.ProtocolHTTP,
			Method:    "POST",
			URL:       loginURL,
			Headers:   "Content-Type: application/x-www-form-urlencoded",
			Body:      []byte(form.Encode()),
			TimeoutMS: 30000,
		})
		store.AutoHandleCookies(rec.Headers)
		if !rec.Success {
			return Result{Success: false, AuthType: "form", Message: "auth: login request failed: " + rec.ErrorMessage}
		}
		if successIndicator != "" && !strings.Contains(string(rec.Body), successIndicator) {
			return Result{Success: false, AuthType: "form", Message: "auth: success indicator not found in login response"}
		}
		return Result{Success: true, AuthType: "form"}
	})
}

// OAuth2Code implements the two-phase authorization-code grant of §4.13. The
// first call (no "authorization_code" param) returns authURL so the caller
// can direct a user there manually — this flow cannot complete unattended,
// per Open Question (c), so callers should treat its first-phase result as
// advisory rather than retry it in a loop. The second call, made with
// params["authorization_code"] set, exchanges the code at tokenURL and
// proceeds exactly like BearerEndpoint.
func OAuth2Code(authURL, tokenURL, clientID, clientSecret, redirectURI string) Flow {
	return FlowFunc(func(engine *dispatch.Engine, _ string, store *session.Store, params map[string]string) Result {
		code, ok := params["authorization_code"]
		if !ok || code == "" {
			authorize := authURL
			if redirectURI != "" {
				sep := "?"
				if strings.Contains(authURL, "?") {
					sep = "&"
				}
				authorize = authURL + sep + "redirect_uri=" + url.QueryEscape(redirectURI) + "&client_id=" + url.QueryEscape(clientID)
			}
			return Result{Success: false, AuthType: "oauth2_code", Message: "auth: authorization required; visit authorization URL", Token: authorize}
		}

		form := url.Values{}
		form.Set("grant_type", "authorization_code")
		form.Set("code", code)
		form.Set("client_id", clientID)
		form.Set("client_secret", clientSecret)
		if redirectURI != "" {
			form.Set("redirect_uri", redirectURI)
		}
		result := exchangeForBearer(engine, store, tokenURL, form)
		result.AuthType = "oauth2_code"
		return result
	})
}

// Custom wraps a caller-supplied callback that returns the contract result
// directly, per §4.13.
func Custom(fn func(engine *dispatch.Engine, userID string, store *session.Store, params map[string]string) Result) Flow {
	return FlowFunc(fn)
}

// tokenKinds is the set of session.Store token slots any built-in flow
// writes to; IsAuthenticated/Logout with an empty kind operate over all of
// them.
var tokenKinds = []string{"bearer", "api_key", "basic"}

// IsAuthenticated reports whether store holds a present, non-expired token
// under kind. An empty kind checks whether any of the built-in token kinds
// is present and non-expired, per §4.13's "checks presence and non-expiry".
func IsAuthenticated(store *session.Store, kind string) bool {
	if kind != "" {
		_, ok := store.GetToken(kind)
		return ok
	}
	for _, k := range tokenKinds {
		if _, ok := store.GetToken(k); ok {
			return true
		}
	}
	return false
}

// Logout clears the token for kind, or every built-in token kind when kind
// is empty, per §4.13.
func Logout(store *session.Store, kind string) {
	if kind != "" {
		store.ClearToken(kind)
		return
	}
	store.ClearAllTokens()
}
