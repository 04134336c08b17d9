package webhooks

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestScheduler_SweepsOnInterval(t *testing.T) {
	svc := testService(t, testStore(t))

	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer server.Close()

	ep, err := svc.CreateEndpoint(context.Background(), &CreateEndpointRequest{
		Name: "hook", URL: server.URL, RetryCount: intPtr(5),
	}, "tester")
	if err != nil {
		t.Fatalf("create endpoint: %v", err)
	}
	if _, err := svc.Subscribe(context.Background(), ep.ID, &SubscribeRequest{EventType: EventSystemAlert}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if _, err := svc.Trigger(context.Background(), EventSystemAlert, map[string]any{"msg": "x"}); err != nil {
		t.Fatalf("trigger: %v", err)
	}
	first := hits.Load()

	sched := NewScheduler(svc, 20*time.Millisecond)
	sched.Start()
	defer sched.Stop()

	// The failed delivery is due immediately; the ticker should pick it up.
	deadline := time.Now().Add(2 * time.Second)
	for hits.Load() == first {
		if time.Now().After(deadline) {
			t.Fatal("scheduler never retried the failed delivery")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestScheduler_StopIsIdempotentWithoutStart(t *testing.T) {
	sched := NewScheduler(nil, 0)
	// Stop before Start must not panic
	sched.Stop()
}
