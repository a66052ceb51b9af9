// Package scenario assembles the per-protocol pieces — dispatch, session,
// assertion, metrics — into the ordered-step scenario model of §4 ("a
// scenario is, to the core, an ordered list of request descriptors with
// optional per-step validators and correlation rules"). Runner plays the
// role the teacher's driver.Scheduler played in fanning work out across
// sessions, generalised from "submit a session's job closure" to "walk a
// scenario's steps, merging session state and assertions along the way."
package scenario

import (
	"github.com/firasghr/loadspiker-engine/assertion"
	"github.com/firasghr/loadspiker-engine/dispatch"
	"github.com/firasghr/loadspiker-engine/metrics"
	"github.com/firasghr/loadspiker-engine/model"
	"github.com/firasghr/loadspiker-engine/session"
	"github.com/firasghr/loadspiker-engine/worker"
)

// Step is one request in a scenario, plus the response assertions and
// correlation rules run against its result, per §4's scenario step shape.
type Step struct {
	Request    model.RequestDescriptor
	Assertions []assertion.Group
	Extracts   []session.ExtractRule
}

// Scenario is an ordered list of steps walked in sequence by one virtual
// user.
type Scenario struct {
	Name  string
	Steps []Step
}

// StepResult pairs one step's response with any assertion failures it
// produced. Failures never abort the run; they are collected for the
// caller to report, per §7's "reported but non-fatal" AssertionFailed
// treatment.
type StepResult struct {
	Record   model.ResponseRecord
	Failures []string
}

// RunResult is the outcome of walking a full scenario for one virtual user.
type RunResult struct {
	UserID string
	Steps  []StepResult
}

// Runner glues a dispatch.Engine, a session.Manager, and (for open-loop
// generation) a worker.Pool to walk scenarios on behalf of virtual users.
type Runner struct {
	Engine   *dispatch.Engine
	Sessions *session.Manager
	Pool     *worker.Pool
}

// NewRunner creates a Runner. Pool may be nil if the caller only uses
// RunSync.
func NewRunner(engine *dispatch.Engine, sessions *session.Manager, pool *worker.Pool) *Runner {
	return &Runner{Engine: engine, Sessions: sessions, Pool: pool}
}

// RunSync walks sc for userID closed-loop: each step's request is sent
// (via dispatch.Engine.Execute, which credits the shared metrics aggregator
// itself), its response merges into the user's session store, and its
// assertions run before moving on to the next step. This is the mode for
// scenarios whose later steps depend on earlier ones (login, then use the
// extracted token), per scenario 5.
func (r *Runner) RunSync(userID string, sc Scenario) RunResult {
	store := r.Sessions.GetOrCreate(userID)
	result := RunResult{UserID: userID, Steps: make([]StepResult, 0, len(sc.Steps))}

	for _, step := range sc.Steps {
		req := step.Request
		req.Headers = store.PrepareRequestHeaders(req.Headers)

		rec := r.Engine.Execute(req)
		store.ProcessResponse(rec, step.Extracts)

		var failures []string
		for _, g := range step.Assertions {
			if ok, f := g.Check(rec); !ok {
				failures = append(failures, f...)
			}
		}
		result.Steps = append(result.Steps, StepResult{Record: rec, Failures: failures})
	}
	return result
}

// EnqueueOpenLoop feeds sc's steps into the worker pool for userID without
// waiting for any response: the pool's workers execute each descriptor (and
// credit metrics) independently of this call, so throughput is decoupled
// from response time. Because no response is observed here, per-step
// extraction and assertions do not apply in open-loop mode — correlation
// chains that depend on a prior step's response need RunSync instead. The
// session's currently-known headers (as of the call) are still applied to
// every step so auth/cookie state established earlier still reaches the
// wire. Returns the first enqueue error encountered (e.g. worker.ErrQueueFull).
func (r *Runner) EnqueueOpenLoop(userID string, sc Scenario) error {
	store := r.Sessions.GetOrCreate(userID)
	for _, step := range sc.Steps {
		req := step.Request
		req.Headers = store.PrepareRequestHeaders(req.Headers)
		if err := r.Pool.Enqueue(req); err != nil {
			return err
		}
	}
	return nil
}

// RunAggregate checks snap against predicates once a run has finished,
// per §4.14's aggregate-predicate phase.
func RunAggregate(snap metrics.Snapshot, predicates []assertion.AggregatePredicate, failFast bool) (bool, []string) {
	return assertion.Run(snap, predicates, failFast)
}
