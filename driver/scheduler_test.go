package driver_test

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/firasghr/loadspiker-engine/dispatch"
	"github.com/firasghr/loadspiker-engine/driver"
	"github.com/firasghr/loadspiker-engine/httpadapter"
	"github.com/firasghr/loadspiker-engine/metrics"
	"github.com/firasghr/loadspiker-engine/model"
	"github.com/firasghr/loadspiker-engine/scenario"
	"github.com/firasghr/loadspiker-engine/session"
	"github.com/firasghr/loadspiker-engine/worker"
)

func TestScheduler_DispatchesAcrossUsers(t *testing.T) {
	var hits int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&hits, 1)
		w.WriteHeader(200)
	}))
	defer srv.Close()

	m := metrics.NewAggregator(2)
	engine := &dispatch.Engine{HTTP: httpadapter.New(srv.Client(), m, nil)}
	sessions := session.NewManager()
	pool := worker.NewPool(2, 32, engine)
	pool.Start()
	runner := scenario.NewRunner(engine, sessions, pool)

	sc := scenario.Scenario{
		Steps: []scenario.Step{
			{Request: model.RequestDescriptor{Protocol: model.ProtocolHTTP, Method: "GET", URL: srv.URL, TimeoutMS: 2000}},
		},
	}

	sched := driver.NewScheduler(runner, []string{"u1", "u2", "u3"})
	sched.Start(sc, nil)

	time.Sleep(100 * time.Millisecond)
	sched.Stop()
	pool.Stop()

	if atomic.LoadInt64(&hits) == 0 {
		t.Error("expected at least one request dispatched across tracked users")
	}
}

func TestNewUserIDs_DistinctAndCounted(t *testing.T) {
	ids := driver.NewUserIDs(10)
	if len(ids) != 10 {
		t.Fatalf("expected 10 ids, got %d", len(ids))
	}
	seen := make(map[string]bool, 10)
	for _, id := range ids {
		if id == "" {
			t.Fatal("generated an empty user id")
		}
		if seen[id] {
			t.Fatalf("duplicate user id %q", id)
		}
		seen[id] = true
	}
}

func TestScheduler_StopIsIdempotent(t *testing.T) {
	sessions := session.NewManager()
	runner := scenario.NewRunner(&dispatch.Engine{}, sessions, worker.NewPool(1, 1, &dispatch.Engine{}))
	sched := driver.NewScheduler(runner, []string{"u1"})
	sched.Stop()
	sched.Stop() // must not panic
}
