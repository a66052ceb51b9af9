package assertion_test

import (
	"strings"
	"testing"

	"github.com/firasghr/loadspiker-engine/assertion"
	"github.com/firasghr/loadspiker-engine/metrics"
	"github.com/firasghr/loadspiker-engine/model"
	"github.com/firasghr/loadspiker-engine/schema"
	"github.com/firasghr/loadspiker-engine/script"
)

func scenarioResponse() model.ResponseRecord {
	return model.ResponseRecord{
		StatusCode:     201,
		Body:           []byte(`{"user":{"id":7}}`),
		ResponseTimeUS: 120_000,
		Headers:        "Content-Type: application/json\nX-Request-Id: abc",
	}
}

func TestResponseAssertionBatch(t *testing.T) {
	rec := scenarioResponse()
	predicates := []assertion.ResponsePredicate{
		assertion.StatusEquals(201),
		assertion.JSONPathEquals("user.id", 7),
		assertion.ResponseTimeUnder(500),
	}
	for _, p := range predicates {
		if ok, msg := p(rec); !ok {
			t.Errorf("expected predicate to pass, got failure: %s", msg)
		}
	}

	rec.StatusCode = 500
	var failures []string
	for _, p := range predicates {
		if ok, msg := p(rec); !ok {
			failures = append(failures, msg)
		}
	}
	if len(failures) != 1 || !strings.Contains(failures[0], "expected 201, got 500") {
		t.Errorf("expected exactly the status predicate to fail, got %v", failures)
	}
}

func TestStatusIn(t *testing.T) {
	rec := scenarioResponse()
	if ok, _ := assertion.StatusIn(200, 201, 202)(rec); !ok {
		t.Error("expected 201 to be in the set")
	}
	if ok, _ := assertion.StatusIn(400, 404)(rec); ok {
		t.Error("expected 201 to not be in the set")
	}
}

func TestBodyContains_CaseSensitivity(t *testing.T) {
	rec := model.ResponseRecord{Body: []byte("Hello World")}
	if ok, _ := assertion.BodyContains("Hello", true)(rec); !ok {
		t.Error("expected case-sensitive match")
	}
	if ok, _ := assertion.BodyContains("hello", true)(rec); ok {
		t.Error("expected case-sensitive mismatch")
	}
	if ok, _ := assertion.BodyContains("hello", false)(rec); !ok {
		t.Error("expected case-insensitive match")
	}
}

func TestBodyMatchesRegex(t *testing.T) {
	rec := model.ResponseRecord{Body: []byte("order-12345 confirmed")}
	if ok, _ := assertion.BodyMatchesRegex(`order-\d+`)(rec); !ok {
		t.Error("expected regex match")
	}
	if ok, _ := assertion.BodyMatchesRegex(`order-[a-z]+`)(rec); ok {
		t.Error("expected regex mismatch")
	}
}

func TestJSONPathExists(t *testing.T) {
	rec := scenarioResponse()
	if ok, _ := assertion.JSONPathExists("user.id")(rec); !ok {
		t.Error("expected user.id to exist")
	}
	if ok, _ := assertion.JSONPathExists("user.missing")(rec); ok {
		t.Error("expected user.missing to not exist")
	}
}

func TestHeaderPresentAndEquals(t *testing.T) {
	rec := scenarioResponse()
	if ok, _ := assertion.HeaderPresent("x-request-id")(rec); !ok {
		t.Error("expected header lookup to be case-insensitive")
	}
	if ok, _ := assertion.HeaderEquals("Content-Type", "application/json")(rec); !ok {
		t.Error("expected header value match")
	}
	if ok, _ := assertion.HeaderEquals("Content-Type", "text/plain")(rec); ok {
		t.Error("expected header value mismatch")
	}
}

func TestCallback(t *testing.T) {
	rec := scenarioResponse()
	p := assertion.Callback(func(r model.ResponseRecord) (bool, string) {
		return r.StatusCode < 300, "custom check failed"
	})
	if ok, _ := p(rec); !ok {
		t.Error("expected callback to pass")
	}
}

func TestScriptPredicate(t *testing.T) {
	vm, err := script.New("")
	if err != nil {
		t.Fatal(err)
	}
	rec := scenarioResponse()
	p := assertion.Script(vm, "response_status === 201")
	if ok, msg := p(rec); !ok {
		t.Errorf("expected script predicate to pass, got: %s", msg)
	}
	rec.StatusCode = 500
	if ok, _ := p(rec); ok {
		t.Error("expected script predicate to fail for status 500")
	}
}

func TestNoSchemaDrift(t *testing.T) {
	v := schema.NewValidator()
	p := assertion.NoSchemaDrift(v)
	rec := scenarioResponse()
	if ok, msg := p(rec); !ok {
		t.Errorf("expected first response to establish baseline without drift: %s", msg)
	}
	drifted := rec
	drifted.Body = []byte(`{"user":{"id":"seven"}}`)
	if ok, _ := p(drifted); ok {
		t.Error("expected type-change drift to be detected")
	}
}

func TestGroup_AND(t *testing.T) {
	rec := scenarioResponse()
	g := assertion.Group{
		Op: assertion.And,
		Predicates: []assertion.ResponsePredicate{
			assertion.StatusEquals(201),
			assertion.JSONPathEquals("user.id", 7),
		},
	}
	if ok, failures := g.Check(rec); !ok || len(failures) != 0 {
		t.Errorf("expected AND group to pass with no failures, got ok=%v failures=%v", ok, failures)
	}

	rec.StatusCode = 404
	if ok, failures := g.Check(rec); ok || len(failures) != 1 {
		t.Errorf("expected AND group to fail with 1 failure, got ok=%v failures=%v", ok, failures)
	}
}

func TestGroup_OR(t *testing.T) {
	rec := scenarioResponse()
	g := assertion.Group{
		Op: assertion.Or,
		Predicates: []assertion.ResponsePredicate{
			assertion.StatusEquals(404),
			assertion.StatusEquals(201),
		},
	}
	if ok, _ := g.Check(rec); !ok {
		t.Error("expected OR group to pass when any predicate passes")
	}

	g.Predicates = []assertion.ResponsePredicate{
		assertion.StatusEquals(404),
		assertion.StatusEquals(500),
	}
	if ok, failures := g.Check(rec); ok || len(failures) != 2 {
		t.Errorf("expected OR group to fail with both failure messages, got ok=%v failures=%v", ok, failures)
	}
}

func TestAggregatePredicates(t *testing.T) {
	snap := metrics.Snapshot{
		TotalRequests:     100,
		SuccessfulRequests: 96,
		FailedRequests:    4,
		RequestsPerSecond: 120,
		AvgResponseTimeMS: 30,
		MaxResponseTimeUS: 80_000,
	}
	predicates := []assertion.AggregatePredicate{
		assertion.ThroughputAtLeast(90),
		assertion.ErrorRateBelow(5),
		assertion.AvgResponseTimeUnder(50),
		assertion.MaxResponseTimeUnder(100),
		assertion.SuccessRateAtLeast(90),
		assertion.TotalRequestsAtLeast(100),
	}
	ok, failures := assertion.Run(snap, predicates, false)
	if !ok || len(failures) != 0 {
		t.Errorf("expected all aggregate predicates to pass, got ok=%v failures=%v", ok, failures)
	}
}

func TestRun_FailFast(t *testing.T) {
	snap := metrics.Snapshot{TotalRequests: 10, FailedRequests: 10}
	predicates := []assertion.AggregatePredicate{
		assertion.SuccessRateAtLeast(50),
		assertion.TotalRequestsAtLeast(1000),
	}
	ok, failures := assertion.Run(snap, predicates, true)
	if ok || len(failures) != 1 {
		t.Errorf("expected fail_fast to stop after first failure, got ok=%v failures=%v", ok, failures)
	}
}

func TestAggregateCallback(t *testing.T) {
	snap := metrics.Snapshot{TotalRequests: 5}
	p := assertion.AggregateCallback(func(s metrics.Snapshot) (bool, string) {
		return s.TotalRequests == 5, "mismatch"
	})
	if ok, _ := p(snap); !ok {
		t.Error("expected aggregate callback to pass")
	}
}
