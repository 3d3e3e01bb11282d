package broadcast

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"creatorbot/internal/directory"
	"creatorbot/internal/eventbus"
	kit "creatorbot/internal/transport"
	logx "creatorbot/pkg/logx"
)

// fakeAdapter records sends and fails selected chat ids with a configured
// error.
type fakeAdapter struct {
	mu       sync.Mutex
	failWith map[int64]error

	texts  []sentText
	medias []sentMedia
	edits  []string
	nextID int
}

type sentText struct {
	chatID int64
	text   string
}

type sentMedia struct {
	chatID int64
	media  kit.Media
}

func newFakeAdapter() *fakeAdapter {
	return &fakeAdapter{failWith: map[int64]error{}}
}

func (f *fakeAdapter) Start(ctx context.Context, out chan<- kit.Update) error { return nil }
func (f *fakeAdapter) Stop(ctx context.Context) error                         { return nil }

func (f *fakeAdapter) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failWith[to.ChatID]; err != nil {
		return kit.MessageRef{}, err
	}
	f.nextID++
	f.texts = append(f.texts, sentText{chatID: to.ChatID, text: text})
	return kit.MessageRef{ChatID: to.ChatID, MessageID: f.nextID}, nil
}

func (f *fakeAdapter) SendMedia(ctx context.Context, to kit.ChatTarget, m kit.Media, opt *kit.SendOptions) (kit.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failWith[to.ChatID]; err != nil {
		return kit.MessageRef{}, err
	}
	f.nextID++
	f.medias = append(f.medias, sentMedia{chatID: to.ChatID, media: m})
	return kit.MessageRef{ChatID: to.ChatID, MessageID: f.nextID}, nil
}

func (f *fakeAdapter) EditText(ctx context.Context, ref kit.MessageRef, text string, opt *kit.SendOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edits = append(f.edits, text)
	return nil
}

func (f *fakeAdapter) AnswerCallback(ctx context.Context, callbackID, text string) error { return nil }

func (f *fakeAdapter) CheckMembership(ctx context.Context, chatID, userID int64) (kit.MembershipStatus, error) {
	return kit.MemberStatusLeft, nil
}

func (f *fakeAdapter) textsTo(chatID int64) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, s := range f.texts {
		if s.chatID == chatID {
			out = append(out, s.text)
		}
	}
	return out
}

func (f *fakeAdapter) lastEdit() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.edits) == 0 {
		return ""
	}
	return f.edits[len(f.edits)-1]
}

// fakeStore is an in-memory directory good enough for dispatch tests.
type fakeStore struct {
	mu      sync.Mutex
	ids     []int64
	blocked map[int64]bool
	listErr error
}

func newFakeStore(ids ...int64) *fakeStore {
	return &fakeStore{ids: ids, blocked: map[int64]bool{}}
}

func (f *fakeStore) List(ctx context.Context, scope directory.Scope) ([]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []int64
	for _, id := range f.ids {
		if !f.blocked[id] {
			out = append(out, id)
		}
	}
	return out, nil
}

func (f *fakeStore) Save(ctx context.Context, id int64, p directory.Profile) error { return nil }

func (f *fakeStore) SaveContact(ctx context.Context, id int64, c directory.Contact) error {
	return nil
}

func (f *fakeStore) SetBlocked(ctx context.Context, id int64, blocked bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.blocked[id] = blocked
	return nil
}

func (f *fakeStore) SetSubscribed(ctx context.Context, id int64, subscribed bool) error { return nil }

func (f *fakeStore) Get(ctx context.Context, id int64) (directory.Recipient, bool, error) {
	return directory.Recipient{}, false, nil
}

func (f *fakeStore) Stats(ctx context.Context) (directory.Stats, error) {
	return directory.Stats{}, nil
}

func (f *fakeStore) Close() error { return nil }

const operatorChat = int64(900)

func newTestService(t *testing.T, adapter *fakeAdapter, store *fakeStore) (*Service, <-chan eventbus.Event) {
	t.Helper()
	bus := eventbus.New()
	events, cancel := bus.Subscribe(8)
	t.Cleanup(cancel)

	svc := New(Config{Workers: 2, QueueSize: 8, RatePerSec: 1000, ProgressEvery: 2}, adapter, store, bus, logx.Nop())
	ctx, stop := context.WithCancel(context.Background())
	svc.Start(ctx)
	t.Cleanup(func() {
		svc.Stop(context.Background())
		stop()
	})
	return svc, events
}

func waitFinished(t *testing.T, events <-chan eventbus.Event) Finished {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case e := <-events:
			if e.Type == eventbus.TypeBroadcastFinished {
				return e.Data.(Finished)
			}
		case <-deadline:
			t.Fatal("timed out waiting for pass to finish")
		}
	}
}

func TestDispatchTallyWithChatNotFound(t *testing.T) {
	t.Parallel()
	adapter := newFakeAdapter()
	adapter.failWith[2] = kit.ErrChatNotFound
	store := newFakeStore(1, 2, 3)
	svc, events := newTestService(t, adapter, store)

	req, err := Parse("Hi there")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if err := svc.Enqueue(req, kit.ChatTarget{ChatID: operatorChat}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	fin := waitFinished(t, events)
	want := Tally{Total: 3, Sent: 2, Blocked: 1, Errored: 0}
	if fin.Tally != want {
		t.Fatalf("tally = %+v, want %+v", fin.Tally, want)
	}
	if fin.Tally.Attempted() != fin.Tally.Total {
		t.Fatalf("attempted %d != total %d", fin.Tally.Attempted(), fin.Tally.Total)
	}

	store.mu.Lock()
	blocked := store.blocked[2]
	store.mu.Unlock()
	if !blocked {
		t.Fatal("chat-not-found recipient was not marked blocked")
	}

	report := adapter.lastEdit()
	if !strings.Contains(report, "Success: 66.7%") {
		t.Fatalf("report missing success percentage: %q", report)
	}
	for _, got := range adapter.textsTo(1) {
		if got != "Hi there" {
			t.Fatalf("recipient text = %q", got)
		}
	}
}

func TestDispatchMediaPayload(t *testing.T) {
	t.Parallel()
	adapter := newFakeAdapter()
	store := newFakeStore(7)
	svc, events := newTestService(t, adapter, store)

	req, err := Parse("Promo https://img/x.png Buy https://shop/y")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if err := svc.Enqueue(req, kit.ChatTarget{ChatID: operatorChat}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	fin := waitFinished(t, events)
	if fin.Tally.Sent != 1 {
		t.Fatalf("tally = %+v, want 1 sent", fin.Tally)
	}

	adapter.mu.Lock()
	defer adapter.mu.Unlock()
	if len(adapter.medias) != 1 {
		t.Fatalf("media sends = %d, want 1", len(adapter.medias))
	}
	m := adapter.medias[0].media
	if m.Caption != "Promo" || m.ImageURL != "https://img/x.png" || m.ButtonLabel != "Buy" || m.ButtonURL != "https://shop/y" {
		t.Fatalf("unexpected media: %+v", m)
	}
}

func TestDispatchEmptyScope(t *testing.T) {
	t.Parallel()
	adapter := newFakeAdapter()
	store := newFakeStore()
	svc, events := newTestService(t, adapter, store)

	req := Request{Scope: directory.ScopeSubscribed, Payload: TextPayload{Text: "hi"}}
	if err := svc.Enqueue(req, kit.ChatTarget{ChatID: operatorChat}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	fin := waitFinished(t, events)
	if fin.Tally.Total != 0 || fin.Aborted {
		t.Fatalf("unexpected finish: %+v", fin)
	}

	msgs := adapter.textsTo(operatorChat)
	if len(msgs) != 1 || !strings.Contains(msgs[0], "No recipients") {
		t.Fatalf("operator messages = %v", msgs)
	}
}

func TestDispatchListErrorAbortsPass(t *testing.T) {
	t.Parallel()
	adapter := newFakeAdapter()
	store := newFakeStore(1, 2)
	store.listErr = context.DeadlineExceeded
	svc, events := newTestService(t, adapter, store)

	req := Request{Scope: directory.ScopeAll, Payload: TextPayload{Text: "hi"}}
	if err := svc.Enqueue(req, kit.ChatTarget{ChatID: operatorChat}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	fin := waitFinished(t, events)
	if !fin.Aborted || fin.Tally.Attempted() != 0 {
		t.Fatalf("unexpected finish: %+v", fin)
	}

	adapter.mu.Lock()
	defer adapter.mu.Unlock()
	if len(adapter.texts) != 1 || adapter.texts[0].chatID != operatorChat {
		t.Fatalf("want a single operator abort message, got %+v", adapter.texts)
	}
}

func TestConcurrentPassesBothComplete(t *testing.T) {
	t.Parallel()
	adapter := newFakeAdapter()
	store := newFakeStore(1, 2, 3, 4, 5)
	svc, events := newTestService(t, adapter, store)

	op := kit.ChatTarget{ChatID: operatorChat}
	for i := 0; i < 2; i++ {
		req, err := Parse("pass message all")
		if err != nil {
			t.Fatalf("Parse: %v", err)
		}
		if err := svc.Enqueue(req, op); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}

	for i := 0; i < 2; i++ {
		fin := waitFinished(t, events)
		if fin.Tally.Sent != 5 || fin.Tally.Attempted() != fin.Tally.Total {
			t.Fatalf("pass %d tally = %+v", i, fin.Tally)
		}
	}
	if got := len(adapter.textsTo(1)); got != 2 {
		t.Fatalf("recipient 1 received %d sends, want 2", got)
	}
}

func TestEnqueueNotRunning(t *testing.T) {
	t.Parallel()
	svc := New(Config{}, newFakeAdapter(), newFakeStore(), eventbus.New(), logx.Nop())
	err := svc.Enqueue(Request{Payload: TextPayload{Text: "x"}}, kit.ChatTarget{ChatID: 1})
	if err != ErrNotRunning {
		t.Fatalf("err = %v, want ErrNotRunning", err)
	}
}
