// Package script provides a zero-browser JavaScript evaluator used by the
// assertion package's Script predicate (§4.14's "a user callback" clause,
// extended to scripted predicates).
//
// Scenario authors occasionally need a predicate too dynamic to express as a
// fixed status/body/JSON-path check — a derived calculation over several
// response fields, or a bespoke success heuristic. This package evaluates
// that JavaScript in-process using the otto pure-Go interpreter, requiring
// no headless browser or external process.
//
// Architecture:
//   - Solver is the public interface; callers supply a raw JavaScript snippet
//     and receive the evaluated result as a string.
//   - VM wraps an otto.Otto interpreter. Each instance is protected by a
//     sync.Mutex so a single VM may be shared across goroutines; for maximum
//     throughput under many concurrent virtual users, give each one its own
//     VM instead of sharing.
//   - The VM is seeded with a minimal browser-like global (navigator.userAgent,
//     window, document) so scripts ported from a browser context still run
//     without ReferenceError.
package script

import (
	"fmt"
	"sync"

	"github.com/robertkrimen/otto"
)

// Solver is the interface implemented by all script evaluators.
type Solver interface {
	// Eval executes script and returns the string representation of the
	// final expression value. Returns an error on syntax or runtime errors.
	Eval(script string) (string, error)
}

// VM implements Solver using the otto pure-Go JavaScript interpreter. It is
// safe for concurrent use: a mutex serialises access to the shared
// interpreter.
type VM struct {
	vm *otto.Otto
	mu sync.Mutex
}

// New creates a VM with a browser-stub environment pre-loaded. The stub
// defines window, document, and navigator.userAgent so that scripts
// referencing these globals run without ReferenceError.
//
// Pass userAgent as the User-Agent string to expose to the JS environment.
// If empty, a generic string is used.
func New(userAgent string) (*VM, error) {
	if userAgent == "" {
		userAgent = "Mozilla/5.0 (compatible; loadspiker-engine/1.0)"
	}
	vm := otto.New()

	bootstrap := fmt.Sprintf(`
var window = this;
var document = { cookie: "" };
var navigator = { userAgent: %q };
`, userAgent)

	if _, err := vm.Run(bootstrap); err != nil {
		return nil, fmt.Errorf("script: bootstrap JS globals: %w", err)
	}
	return &VM{vm: vm}, nil
}

// Eval executes the given JavaScript snippet and returns the string
// representation of the value produced by the last expression.
//
// The method acquires the VM mutex for the duration of the call, so
// concurrent Eval invocations are serialised on the same VM. Give each
// virtual user its own VM to parallelise evaluation.
func (s *VM) Eval(script string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	val, err := s.vm.Run(script)
	if err != nil {
		return "", fmt.Errorf("script: eval: %w", err)
	}
	result, err := val.ToString()
	if err != nil {
		return "", fmt.Errorf("script: convert result to string: %w", err)
	}
	return result, nil
}

// EvalBool runs script and interprets the resulting value's JS truthiness as
// a pass/fail verdict, used by assertion.Script.
func (s *VM) EvalBool(script string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	val, err := s.vm.Run(script)
	if err != nil {
		return false, fmt.Errorf("script: eval: %w", err)
	}
	return val.ToBoolean()
}

// SetGlobal binds name to value in the VM's global scope, used to expose
// response fields (status code, body, headers) to a predicate script before
// evaluating it.
func (s *VM) SetGlobal(name string, value interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.vm.Set(name, value); err != nil {
		return fmt.Errorf("script: set global %s: %w", name, err)
	}
	return nil
}

// GetCookie retrieves the value of document.cookie from the JS environment.
// Scripts that seed cookies via document.cookie = "..." store them here;
// callers should copy the value into the session store after running.
func (s *VM) GetCookie() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	val, err := s.vm.Get("document")
	if err != nil {
		return "", fmt.Errorf("script: get document: %w", err)
	}
	cookieVal, err := val.Object().Get("cookie")
	if err != nil {
		return "", fmt.Errorf("script: get document.cookie: %w", err)
	}
	return cookieVal.String(), nil
}

// SetCookie injects a cookie string into document.cookie in the JS
// environment before running a script that expects existing cookies to be
// present.
func (s *VM) SetCookie(cookie string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	script := fmt.Sprintf("document.cookie = %q;", cookie)
	if _, err := s.vm.Run(script); err != nil {
		return fmt.Errorf("script: set document.cookie: %w", err)
	}
	return nil
}
