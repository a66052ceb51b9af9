// Package driver assigns scenario work to virtual users and drives the
// worker pool, playing the same role the teacher's scheduler played in
// bridging a SessionManager and a WorkerPool — generalised here from
// "submit one job closure per session" to "enqueue one scenario's steps per
// virtual user, open-loop, via a scenario.Runner."
package driver

import (
	"sync"

	"github.com/google/uuid"

	"github.com/firasghr/loadspiker-engine/scenario"
)

// NewUserIDs generates n distinct virtual-user ids. Callers that don't need
// stable, human-chosen ids (e.g. a run driven purely from VirtualUsers in
// config) can pass the result straight to NewScheduler.
func NewUserIDs(n int) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = uuid.NewString()
	}
	return ids
}

// Scheduler repeatedly drives a scenario open-loop across a fixed set of
// virtual user ids.
//
// Architecture:
//   - Start spawns a control goroutine that, every iteration, enqueues the
//     scenario once per tracked user id via the runner's worker pool. The
//     runner's pool workers execute those descriptors (and credit metrics)
//     independently of this loop, so Scheduler never blocks on responses.
//   - A stop channel allows clean shutdown: Stop closes it, which causes the
//     control goroutine to exit after the current iteration completes.
//   - Scheduler does not know what a scenario step does; it only knows how
//     to fan scenario runs out across virtual users at the pool's pace.
type Scheduler struct {
	runner  *scenario.Runner
	userIDs []string
	stopCh  chan struct{}
	once    sync.Once
}

// NewScheduler creates a Scheduler that drives sc (set by Start) across
// userIDs using runner.
func NewScheduler(runner *scenario.Runner, userIDs []string) *Scheduler {
	return &Scheduler{
		runner:  runner,
		userIDs: userIDs,
		stopCh:  make(chan struct{}),
	}
}

// Start begins continuous open-loop generation of sc. onEnqueueError, if
// non-nil, is called whenever a user id's enqueue attempt fails (e.g. the
// pool is at capacity) — the attempt is otherwise dropped, matching
// §4.11's non-blocking-when-full contract rather than stalling the whole
// loop on backpressure.
//
// Start is non-blocking: the control goroutine runs in the background
// until Stop is called.
func (d *Scheduler) Start(sc scenario.Scenario, onEnqueueError func(userID string, err error)) {
	go func() {
		for {
			select {
			case <-d.stopCh:
				return
			default:
				d.dispatchOnce(sc, onEnqueueError)
			}
		}
	}()
}

// dispatchOnce enqueues sc once for every tracked user id.
func (d *Scheduler) dispatchOnce(sc scenario.Scenario, onEnqueueError func(userID string, err error)) {
	for _, userID := range d.userIDs {
		if err := d.runner.EnqueueOpenLoop(userID, sc); err != nil && onEnqueueError != nil {
			onEnqueueError(userID, err)
		}
	}
}

// Stop signals the Scheduler to stop dispatching new iterations. It does
// not wait for in-flight work to complete; call the worker pool's Stop for
// that. Stop is idempotent.
func (d *Scheduler) Stop() {
	d.once.Do(func() {
		close(d.stopCh)
	})
}
