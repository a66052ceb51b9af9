// Package assertion implements the response-level and aggregate-level
// predicate framework of §4.14: a scenario step's response is checked
// against a list of response predicates (grouped with AND/OR), and a
// completed run's metrics.Snapshot is checked against a list of aggregate
// predicates. Both levels collect failure messages rather than aborting
// immediately, matching §7's "reported but non-fatal" treatment of
// AssertionFailed.
package assertion

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/firasghr/loadspiker-engine/jsonpath"
	"github.com/firasghr/loadspiker-engine/metrics"
	"github.com/firasghr/loadspiker-engine/model"
	"github.com/firasghr/loadspiker-engine/schema"
	"github.com/firasghr/loadspiker-engine/script"
)

func unmarshalBody(body []byte, out interface{}) error {
	return json.Unmarshal(body, out)
}

// ResponsePredicate checks one response record and reports ok plus a
// failure message (ignored when ok is true).
type ResponsePredicate func(record model.ResponseRecord) (bool, string)

// StatusEquals passes when record.StatusCode equals code.
func StatusEquals(code int) ResponsePredicate {
	return func(record model.ResponseRecord) (bool, string) {
		if record.StatusCode == code {
			return true, ""
		}
		return false, fmt.Sprintf("status: expected %d, got %d", code, record.StatusCode)
	}
}

// StatusIn passes when record.StatusCode is one of codes.
func StatusIn(codes ...int) ResponsePredicate {
	return func(record model.ResponseRecord) (bool, string) {
		for _, c := range codes {
			if record.StatusCode == c {
				return true, ""
			}
		}
		return false, fmt.Sprintf("expected status in %v, got %d", codes, record.StatusCode)
	}
}

// ResponseTimeUnder passes when the record's response time is below
// thresholdMS milliseconds.
func ResponseTimeUnder(thresholdMS int) ResponsePredicate {
	thresholdUS := uint64(thresholdMS) * 1000
	return func(record model.ResponseRecord) (bool, string) {
		if record.ResponseTimeUS < thresholdUS {
			return true, ""
		}
		return false, fmt.Sprintf("expected response time under %dms, got %dus", thresholdMS, record.ResponseTimeUS)
	}
}

// BodyContains passes when record.Body contains substr. caseSensitive
// controls whether the comparison folds case.
func BodyContains(substr string, caseSensitive bool) ResponsePredicate {
	return func(record model.ResponseRecord) (bool, string) {
		body := string(record.Body)
		ok := strings.Contains(body, substr)
		if !caseSensitive {
			ok = strings.Contains(strings.ToLower(body), strings.ToLower(substr))
		}
		if ok {
			return true, ""
		}
		return false, fmt.Sprintf("expected body to contain %q", substr)
	}
}

// BodyMatchesRegex passes when record.Body matches pattern. An invalid
// pattern always fails with a compile-error message.
func BodyMatchesRegex(pattern string) ResponsePredicate {
	re, compileErr := regexp.Compile(pattern)
	return func(record model.ResponseRecord) (bool, string) {
		if compileErr != nil {
			return false, fmt.Sprintf("invalid regex %q: %v", pattern, compileErr)
		}
		if re.Match(record.Body) {
			return true, ""
		}
		return false, fmt.Sprintf("expected body to match %q", pattern)
	}
}

// JSONPathExists passes when path resolves to any value in the JSON body.
func JSONPathExists(path string) ResponsePredicate {
	return func(record model.ResponseRecord) (bool, string) {
		var doc interface{}
		if err := unmarshalBody(record.Body, &doc); err != nil {
			return false, fmt.Sprintf("body is not valid JSON: %v", err)
		}
		if jsonpath.Exists(doc, path) {
			return true, ""
		}
		return false, fmt.Sprintf("expected JSON path %q to exist", path)
	}
}

// JSONPathEquals passes when path resolves to a value numerically/string
// equal to want, per jsonpath.Equals' numeric-tolerant comparison.
func JSONPathEquals(path string, want interface{}) ResponsePredicate {
	return func(record model.ResponseRecord) (bool, string) {
		var doc interface{}
		if err := unmarshalBody(record.Body, &doc); err != nil {
			return false, fmt.Sprintf("body is not valid JSON: %v", err)
		}
		if jsonpath.Equals(doc, path, want) {
			return true, ""
		}
		got, _ := jsonpath.Get(doc, path)
		return false, fmt.Sprintf("expected JSON path %q to equal %v, got %v", path, want, got)
	}
}

// HeaderPresent passes when name appears (case-insensitively) in the
// newline-delimited header blob.
func HeaderPresent(name string) ResponsePredicate {
	return func(record model.ResponseRecord) (bool, string) {
		if _, ok := lookupHeader(record.Headers, name); ok {
			return true, ""
		}
		return false, fmt.Sprintf("expected header %q to be present", name)
	}
}

// HeaderEquals passes when header name equals value exactly.
func HeaderEquals(name, value string) ResponsePredicate {
	return func(record model.ResponseRecord) (bool, string) {
		got, ok := lookupHeader(record.Headers, name)
		if ok && got == value {
			return true, ""
		}
		return false, fmt.Sprintf("expected header %q to equal %q, got %q", name, value, got)
	}
}

// Callback wraps a caller-supplied predicate function, per §4.14's "a user
// callback".
func Callback(fn func(model.ResponseRecord) (bool, string)) ResponsePredicate {
	return ResponsePredicate(fn)
}

// Script evaluates src against vm with the response's status code, body,
// and headers bound as globals (response_status, response_body,
// response_headers), interpreting the script's truthiness as the verdict.
// This is the "user callback" clause of §4.14 extended to scripted
// predicates, grounded on the teacher's jschallenge package (now script).
func Script(vm *script.VM, src string) ResponsePredicate {
	return func(record model.ResponseRecord) (bool, string) {
		if err := vm.SetGlobal("response_status", record.StatusCode); err != nil {
			return false, err.Error()
		}
		if err := vm.SetGlobal("response_body", string(record.Body)); err != nil {
			return false, err.Error()
		}
		if err := vm.SetGlobal("response_headers", record.Headers); err != nil {
			return false, err.Error()
		}
		ok, err := vm.EvalBool(src)
		if err != nil {
			return false, fmt.Sprintf("script predicate error: %v", err)
		}
		if ok {
			return true, ""
		}
		return false, fmt.Sprintf("script predicate %q returned false", src)
	}
}

// NoSchemaDrift passes when record.Body's field shape matches validator's
// learned baseline (or this is the first response, which establishes it).
// This is a supplemental predicate beyond spec.md §4.14 — response-shape
// regressions are a real load-testing concern the distillation dropped —
// wired to the teacher's payload package, adapted here as package schema.
func NoSchemaDrift(validator *schema.Validator) ResponsePredicate {
	return func(record model.ResponseRecord) (bool, string) {
		mismatches, err := validator.Validate(record.Body)
		if err != nil {
			return false, fmt.Sprintf("schema validation error: %v", err)
		}
		if len(mismatches) == 0 {
			return true, ""
		}
		return false, schema.FormatMismatches(mismatches)
	}
}

// GroupOp selects how a Group combines its predicates.
type GroupOp int

const (
	And GroupOp = iota
	Or
)

// Group combines predicates with AND or OR semantics, per §4.14: AND
// succeeds iff every predicate succeeds, OR succeeds iff any does.
type Group struct {
	Op         GroupOp
	Predicates []ResponsePredicate
}

// Check evaluates every predicate in g against record and returns the
// group's verdict plus the failure messages of every predicate that
// failed.
func (g Group) Check(record model.ResponseRecord) (bool, []string) {
	var failures []string
	anyOK := false
	for _, p := range g.Predicates {
		ok, msg := p(record)
		if ok {
			anyOK = true
			continue
		}
		failures = append(failures, msg)
	}
	switch g.Op {
	case Or:
		if anyOK {
			return true, nil
		}
		return false, failures
	default: // And
		return len(failures) == 0, failures
	}
}

// AggregatePredicate checks a completed run's metrics snapshot and reports
// ok plus a failure message.
type AggregatePredicate func(snap metrics.Snapshot) (bool, string)

// ThroughputAtLeast passes when snap.RequestsPerSecond >= rps.
func ThroughputAtLeast(rps float64) AggregatePredicate {
	return func(snap metrics.Snapshot) (bool, string) {
		if snap.RequestsPerSecond >= rps {
			return true, ""
		}
		return false, fmt.Sprintf("expected throughput >= %.2f rps, got %.2f", rps, snap.RequestsPerSecond)
	}
}

// AvgResponseTimeUnder passes when snap.AvgResponseTimeMS <= thresholdMS.
func AvgResponseTimeUnder(thresholdMS float64) AggregatePredicate {
	return func(snap metrics.Snapshot) (bool, string) {
		if snap.AvgResponseTimeMS <= thresholdMS {
			return true, ""
		}
		return false, fmt.Sprintf("expected avg response time <= %.2fms, got %.2fms", thresholdMS, snap.AvgResponseTimeMS)
	}
}

// MaxResponseTimeUnder passes when snap.MaxResponseTimeUS is at most
// thresholdMS milliseconds (the threshold is converted to microseconds).
func MaxResponseTimeUnder(thresholdMS float64) AggregatePredicate {
	thresholdUS := thresholdMS * 1000
	return func(snap metrics.Snapshot) (bool, string) {
		if float64(snap.MaxResponseTimeUS) <= thresholdUS {
			return true, ""
		}
		return false, fmt.Sprintf("expected max response time <= %.2fms, got %.2fms", thresholdMS, float64(snap.MaxResponseTimeUS)/1000)
	}
}

// ErrorRateBelow passes when the failed-request ratio is below
// thresholdPercent.
func ErrorRateBelow(thresholdPercent float64) AggregatePredicate {
	return func(snap metrics.Snapshot) (bool, string) {
		rate := errorRatePercent(snap)
		if rate < thresholdPercent {
			return true, ""
		}
		return false, fmt.Sprintf("expected error rate < %.2f%%, got %.2f%%", thresholdPercent, rate)
	}
}

// SuccessRateAtLeast passes when the successful-request ratio is at least
// thresholdPercent.
func SuccessRateAtLeast(thresholdPercent float64) AggregatePredicate {
	return func(snap metrics.Snapshot) (bool, string) {
		rate := 100 - errorRatePercent(snap)
		if rate >= thresholdPercent {
			return true, ""
		}
		return false, fmt.Sprintf("expected success rate >= %.2f%%, got %.2f%%", thresholdPercent, rate)
	}
}

// TotalRequestsAtLeast passes when snap.TotalRequests >= n.
func TotalRequestsAtLeast(n uint64) AggregatePredicate {
	return func(snap metrics.Snapshot) (bool, string) {
		if snap.TotalRequests >= n {
			return true, ""
		}
		return false, fmt.Sprintf("expected total requests >= %d, got %d", n, snap.TotalRequests)
	}
}

// AggregateCallback wraps a caller-supplied aggregate predicate function.
func AggregateCallback(fn func(metrics.Snapshot) (bool, string)) AggregatePredicate {
	return AggregatePredicate(fn)
}

// Run evaluates every predicate against snap and returns the overall
// verdict plus every failure message. When failFast is true, Run stops at
// the first failing predicate.
func Run(snap metrics.Snapshot, predicates []AggregatePredicate, failFast bool) (bool, []string) {
	var failures []string
	for _, p := range predicates {
		ok, msg := p(snap)
		if ok {
			continue
		}
		failures = append(failures, msg)
		if failFast {
			break
		}
	}
	return len(failures) == 0, failures
}

func errorRatePercent(snap metrics.Snapshot) float64 {
	if snap.TotalRequests == 0 {
		return 0
	}
	return float64(snap.FailedRequests) / float64(snap.TotalRequests) * 100
}

func lookupHeader(blob, name string) (string, bool) {
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
