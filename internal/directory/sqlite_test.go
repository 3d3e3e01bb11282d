package directory

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	logx "creatorbot/pkg/logx"
)

func openTestStore(t *testing.T) Store {
	t.Helper()
	st, err := Open(Config{
		Path:        filepath.Join(t.TempDir(), "directory.db"),
		BusyTimeout: 2 * time.Second,
	}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestSaveUpsertAndGet(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()

	if err := st.Save(ctx, 10, Profile{Username: "alice", FirstName: "Alice"}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	// Second save with changed fields must update, not duplicate.
	if err := st.Save(ctx, 10, Profile{Username: "alice2", FirstName: "Alice", LastName: "Smith"}); err != nil {
		t.Fatalf("Save again: %v", err)
	}

	r, ok, err := st.Get(ctx, 10)
	if err != nil || !ok {
		t.Fatalf("Get: ok=%v err=%v", ok, err)
	}
	if r.Username != "alice2" || r.LastName != "Smith" {
		t.Fatalf("unexpected recipient: %+v", r)
	}
	if r.Subscribed || r.Blocked {
		t.Fatalf("new recipient must start unsubscribed and unblocked: %+v", r)
	}

	stats, err := st.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Total != 1 {
		t.Fatalf("want total 1, got %d", stats.Total)
	}
}

func TestSaveContactKeepsProfile(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()

	if err := st.Save(ctx, 20, Profile{Username: "bob", FirstName: "Bob"}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := st.SaveContact(ctx, 20, Contact{PhoneNumber: "+380501112233"}); err != nil {
		t.Fatalf("SaveContact: %v", err)
	}

	r, ok, err := st.Get(ctx, 20)
	if err != nil || !ok {
		t.Fatalf("Get: ok=%v err=%v", ok, err)
	}
	if r.Phone != "+380501112233" {
		t.Fatalf("want phone stored, got %q", r.Phone)
	}
	if r.FirstName != "Bob" {
		t.Fatalf("contact without a name must not erase the profile name, got %q", r.FirstName)
	}
}

func TestListScopes(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()

	seed := []struct {
		id         int64
		subscribed bool
		blocked    bool
	}{
		{1, true, false},
		{2, false, false},
		{3, true, true},
		{4, false, true},
		{5, true, false},
	}
	for _, u := range seed {
		if err := st.Save(ctx, u.id, Profile{}); err != nil {
			t.Fatalf("Save(%d): %v", u.id, err)
		}
		if u.subscribed {
			if err := st.SetSubscribed(ctx, u.id, true); err != nil {
				t.Fatalf("SetSubscribed(%d): %v", u.id, err)
			}
		}
		if u.blocked {
			if err := st.SetBlocked(ctx, u.id, true); err != nil {
				t.Fatalf("SetBlocked(%d): %v", u.id, err)
			}
		}
	}

	subs, err := st.List(ctx, ScopeSubscribed)
	if err != nil {
		t.Fatalf("List(subscribed): %v", err)
	}
	if got, want := subs, []int64{1, 5}; !equalIDs(got, want) {
		t.Fatalf("subscribed scope: got %v want %v", got, want)
	}

	all, err := st.List(ctx, ScopeAll)
	if err != nil {
		t.Fatalf("List(all): %v", err)
	}
	// Blocked recipients are excluded from every scope.
	if got, want := all, []int64{1, 2, 5}; !equalIDs(got, want) {
		t.Fatalf("all scope: got %v want %v", got, want)
	}

	stats, err := st.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Total != 5 || stats.Subscribed != 2 || stats.Blocked != 2 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestSetBlockedRemovesFromScopes(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()

	if err := st.Save(ctx, 7, Profile{}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := st.SetSubscribed(ctx, 7, true); err != nil {
		t.Fatalf("SetSubscribed: %v", err)
	}
	if err := st.SetBlocked(ctx, 7, true); err != nil {
		t.Fatalf("SetBlocked: %v", err)
	}

	for _, scope := range []Scope{ScopeSubscribed, ScopeAll} {
		ids, err := st.List(ctx, scope)
		if err != nil {
			t.Fatalf("List(%s): %v", scope, err)
		}
		if len(ids) != 0 {
			t.Fatalf("blocked recipient leaked into scope %s: %v", scope, ids)
		}
	}
}

func TestGetMissing(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)

	_, ok, err := st.Get(context.Background(), 404)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok {
		t.Fatal("missing recipient reported as found")
	}
}

func equalIDs(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
