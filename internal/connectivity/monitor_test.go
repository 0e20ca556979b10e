package connectivity

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestStaticProbe(t *testing.T) {
	if Static(false).Offline() {
		t.Error("Static(false) must report online")
	}
	if !Static(true).Offline() {
		t.Error("Static(true) must report offline")
	}
}

func TestMonitorStartsOnline(t *testing.T) {
	m := NewMonitor("http://unused.invalid")
	if m.Offline() {
		t.Error("a fresh monitor must assume online until a probe says otherwise")
	}
}

func TestSetOfflineTransitions(t *testing.T) {
	m := NewMonitor("http://unused.invalid")

	var transitions []bool
	m.OnChange(func(offline bool) {
		transitions = append(transitions, offline)
	})

	m.SetOffline(true)
	m.SetOffline(true) // no transition, no callback
	m.SetOffline(false)

	if m.Offline() {
		t.Error("final state should be online")
	}
	if len(transitions) != 2 || transitions[0] != true || transitions[1] != false {
		t.Errorf("transitions = %v, want [true false]", transitions)
	}
}

func TestChangedAtAdvances(t *testing.T) {
	m := NewMonitor("http://unused.invalid")
	before := m.ChangedAt()

	time.Sleep(5 * time.Millisecond)
	m.SetOffline(true)

	if !m.ChangedAt().After(before) {
		t.Error("ChangedAt must advance on a transition")
	}

	at := m.ChangedAt()
	m.SetOffline(true)
	if !m.ChangedAt().Equal(at) {
		t.Error("ChangedAt must not move without a transition")
	}
}

func TestCheckAgainstServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	m := NewMonitor(srv.URL, WithHTTPClient(srv.Client()))
	m.SetOffline(true)

	m.check(context.Background())
	if m.Offline() {
		t.Error("a reachable endpoint must flip the monitor online")
	}

	srv.Close()
	m.check(context.Background())
	if !m.Offline() {
		t.Error("a failed probe must flip the monitor offline")
	}
}

func TestErrorStatusStillCountsAsOnline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	m := NewMonitor(srv.URL, WithHTTPClient(srv.Client()))
	m.SetOffline(true)

	m.check(context.Background())
	if m.Offline() {
		t.Error("any HTTP response means the network path is up")
	}
}
