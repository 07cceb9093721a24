package janitor

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"annotated/pkg/store"
)

type fakeConns map[string]bool

func (f fakeConns) HasConnection(id string) bool { return f[id] }

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "store.json"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func setLastSeen(t *testing.T, st *store.Store, id string, ago time.Duration) {
	t.Helper()
	ts := time.Now().UTC().Add(-ago).Format("2006-01-02T15:04:05.000Z")
	if _, err := st.UpdateSession(id, store.SessionPatch{LastSeenAt: &ts}); err != nil {
		t.Fatalf("UpdateSession: %v", err)
	}
}

// TestRunOnceSweepsIdleSessions verifies only idle, unconnected, active
// sessions are flipped inactive.
func TestRunOnceSweepsIdleSessions(t *testing.T) {
	st := openTestStore(t)

	idle, _ := st.CreateSession("", true)
	fresh, _ := st.CreateSession("", true)
	connected, _ := st.CreateSession("", true)
	already, _ := st.CreateSession("", false)

	setLastSeen(t, st, idle.ID, time.Hour)
	setLastSeen(t, st, connected.ID, time.Hour)
	setLastSeen(t, st, already.ID, time.Hour)

	conns := fakeConns{connected.ID: true}
	if err := RunOnce(st, conns, 10*time.Minute); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}

	check := func(id string, wantActive bool) {
		t.Helper()
		sess, err := st.GetSession(id)
		if err != nil {
			t.Fatalf("GetSession: %v", err)
		}
		if sess.Active != wantActive {
			t.Fatalf("session %s: active=%v, want %v", id, sess.Active, wantActive)
		}
	}
	check(idle.ID, false)
	check(fresh.ID, true)
	check(connected.ID, true)
	check(already.ID, false)
}

// TestRunOnceSkipsBadTimestamps verifies a session with an unparseable
// lastSeenAt is left alone rather than swept or failing the run.
func TestRunOnceSkipsBadTimestamps(t *testing.T) {
	st := openTestStore(t)

	sess, _ := st.CreateSession("", true)
	bad := "not-a-timestamp"
	if _, err := st.UpdateSession(sess.ID, store.SessionPatch{LastSeenAt: &bad}); err != nil {
		t.Fatalf("UpdateSession: %v", err)
	}

	if err := RunOnce(st, nil, time.Nanosecond); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	got, _ := st.GetSession(sess.ID)
	if !got.Active {
		t.Fatalf("session with bad timestamp should not be swept")
	}
}

// TestStartRejectsInvalidCron verifies an invalid expression fails fast.
func TestStartRejectsInvalidCron(t *testing.T) {
	st := openTestStore(t)

	if _, err := Start(context.Background(), st, nil, Config{Cron: "not a cron"}); err == nil {
		t.Fatalf("expected error for invalid cron expression")
	}

	cancel, err := Start(context.Background(), st, nil, Config{Cron: "* * * * *"})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	cancel()
}
