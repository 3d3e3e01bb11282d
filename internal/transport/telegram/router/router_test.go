package router

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	kit "creatorbot/internal/transport"
	logx "creatorbot/pkg/logx"
	"creatorbot/pkg/tgui"
)

type nopAdapter struct{}

func (nopAdapter) Start(ctx context.Context, out chan<- kit.Update) error { return nil }
func (nopAdapter) Stop(ctx context.Context) error                         { return nil }

func (nopAdapter) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	return kit.MessageRef{}, nil
}

func (nopAdapter) SendMedia(ctx context.Context, to kit.ChatTarget, m kit.Media, opt *kit.SendOptions) (kit.MessageRef, error) {
	return kit.MessageRef{}, nil
}

func (nopAdapter) EditText(ctx context.Context, ref kit.MessageRef, text string, opt *kit.SendOptions) error {
	return nil
}

func (nopAdapter) AnswerCallback(ctx context.Context, callbackID, text string) error { return nil }

func (nopAdapter) CheckMembership(ctx context.Context, chatID, userID int64) (kit.MembershipStatus, error) {
	return kit.MemberStatusUnknown, nil
}

func TestSplitCommand(t *testing.T) {
	t.Parallel()
	cases := []struct {
		in    string
		name  string
		args  string
		isCmd bool
	}{
		{"/start", "start", "", true},
		{"/broadcast Hello world", "broadcast", "Hello world", true},
		{"/Broadcast@MyBot Hello", "broadcast", "Hello", true},
		{"  /stats  ", "stats", "", true},
		{"hello", "", "", false},
		{"/", "", "", false},
	}
	for _, tc := range cases {
		name, args, ok := splitCommand(tc.in)
		if name != tc.name || args != tc.args || ok != tc.isCmd {
			t.Fatalf("splitCommand(%q) = (%q, %q, %v), want (%q, %q, %v)",
				tc.in, name, args, ok, tc.name, tc.args, tc.isCmd)
		}
	}
}

func startRouter(t *testing.T, r *Router) chan kit.Update {
	t.Helper()
	updates := make(chan kit.Update, 16)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = r.DispatchLoop(ctx, updates)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Error("dispatch loop did not stop")
		}
	})
	return updates
}

func waitCount(t *testing.T, c *atomic.Int64, want int64) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if c.Load() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("count = %d, want %d", c.Load(), want)
}

func msgUpdate(fromID int64, text string) kit.Update {
	return kit.Update{
		Kind:    kit.UpdateMessage,
		Message: &kit.Message{ChatID: fromID, FromID: fromID, Text: text},
	}
}

func TestDispatchCommand(t *testing.T) {
	t.Parallel()
	r := New(nopAdapter{}, []int64{1}, logx.Nop())

	var calls atomic.Int64
	var gotArgs atomic.Value
	r.Register([]Command{{
		Name:   "broadcast",
		Access: AccessAdminOnly,
		Handle: func(ctx context.Context, req *Request) error {
			gotArgs.Store(req.Args)
			calls.Add(1)
			return nil
		},
	}}, nil)

	updates := startRouter(t, r)
	updates <- msgUpdate(1, "/broadcast Hello there all")
	waitCount(t, &calls, 1)
	if got := gotArgs.Load().(string); got != "Hello there all" {
		t.Fatalf("args = %q", got)
	}
}

func TestAdminOnlyDenied(t *testing.T) {
	t.Parallel()
	r := New(nopAdapter{}, []int64{1}, logx.Nop())

	var adminCalls, openCalls atomic.Int64
	r.Register([]Command{
		{Name: "broadcast", Access: AccessAdminOnly, Handle: func(ctx context.Context, req *Request) error {
			adminCalls.Add(1)
			return nil
		}},
		{Name: "start", Handle: func(ctx context.Context, req *Request) error {
			openCalls.Add(1)
			return nil
		}},
	}, nil)

	updates := startRouter(t, r)
	updates <- msgUpdate(999, "/broadcast nope")
	updates <- msgUpdate(999, "/start")
	waitCount(t, &openCalls, 1)
	if adminCalls.Load() != 0 {
		t.Fatal("admin-only command ran for a non-admin")
	}
}

func TestContactAndFallbackRouting(t *testing.T) {
	t.Parallel()
	r := New(nopAdapter{}, nil, logx.Nop())

	var contacts, plains atomic.Int64
	r.OnContact(func(ctx context.Context, msg kit.Message) { contacts.Add(1) })
	r.OnMessage(func(ctx context.Context, msg kit.Message) { plains.Add(1) })

	updates := startRouter(t, r)
	contact := msgUpdate(5, "")
	contact.Message.Contact = &kit.Contact{PhoneNumber: "+1"}
	updates <- contact
	updates <- msgUpdate(5, "just text")

	waitCount(t, &contacts, 1)
	waitCount(t, &plains, 1)
}

func TestCallbackNamespaceRouting(t *testing.T) {
	t.Parallel()
	r := New(nopAdapter{}, nil, logx.Nop())

	var calls atomic.Int64
	r.Register(nil, []CallbackRoute{{
		Namespace: "onb",
		Handle: func(ctx context.Context, req *Request) error {
			calls.Add(1)
			return nil
		},
	}})

	updates := startRouter(t, r)
	updates <- kit.Update{
		Kind:     kit.UpdateCallback,
		Callback: &kit.Callback{ID: "x", FromID: 5, ChatID: 5, Data: tgui.Data("onb", "subscribed", "")},
	}
	updates <- kit.Update{
		Kind:     kit.UpdateCallback,
		Callback: &kit.Callback{ID: "y", FromID: 5, ChatID: 5, Data: tgui.Data("other", "noop", "")},
	}
	waitCount(t, &calls, 1)
}

func TestPanicInHandlerDoesNotKillWorkers(t *testing.T) {
	t.Parallel()
	r := New(nopAdapter{}, nil, logx.Nop())

	var calls atomic.Int64
	r.Register([]Command{
		{Name: "boom", Handle: func(ctx context.Context, req *Request) error { panic("kaboom") }},
		{Name: "ok", Handle: func(ctx context.Context, req *Request) error {
			calls.Add(1)
			return nil
		}},
	}, nil)

	updates := startRouter(t, r)
	updates <- msgUpdate(5, "/boom")
	updates <- msgUpdate(5, "/ok")
	waitCount(t, &calls, 1)
}
