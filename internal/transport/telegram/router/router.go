// Package router dispatches inbound updates to command handlers,
// callback handlers, and the onboarding fallbacks.
package router

import (
	"context"
	"runtime"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"time"

	rtsup "creatorbot/internal/runtime/supervisor"
	kit "creatorbot/internal/transport"
	logx "creatorbot/pkg/logx"
	"creatorbot/pkg/tgui"
)

type Access int

const (
	AccessEveryone Access = iota
	AccessAdminOnly
)

type Command struct {
	Name        string // without the leading slash
	Description string
	Usage       string
	Access      Access
	Timeout     time.Duration // optional per-command override
	Handle      HandlerFunc
}

// CallbackRoute handles every callback in one namespace (see tgui.Data).
type CallbackRoute struct {
	Namespace string
	Timeout   time.Duration
	Handle    HandlerFunc
}

// MessageHandler receives non-command messages (contact cards, plain
// text) that no command claimed.
type MessageHandler func(ctx context.Context, msg kit.Message)

type Request struct {
	Update  kit.Update
	Chat    kit.ChatTarget
	FromID  int64
	Command string
	Args    string // raw text after the command, untokenized

	Adapter kit.Adapter
	Logger  logx.Logger
}

const defaultHandlerTimeout = 30 * time.Second

type Router struct {
	mu        sync.RWMutex
	commands  map[string]Command
	callbacks map[string]CallbackRoute
	onContact MessageHandler
	onMessage MessageHandler
	admins    []int64

	log     logx.Logger
	adapter kit.Adapter

	runMu   sync.Mutex
	running bool
	sup     *rtsup.Supervisor
}

func New(adapter kit.Adapter, admins []int64, log logx.Logger) *Router {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Router{
		commands:  map[string]Command{},
		callbacks: map[string]CallbackRoute{},
		admins:    append([]int64(nil), admins...),
		log:       log,
		adapter:   adapter,
	}
}

func (r *Router) Register(cmds []Command, cbs []CallbackRoute) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range cmds {
		name := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(c.Name)), "/")
		if name == "" || c.Handle == nil {
			continue
		}
		c.Name = name
		r.commands[name] = c
	}
	for _, cb := range cbs {
		if cb.Namespace == "" || cb.Handle == nil {
			continue
		}
		r.callbacks[cb.Namespace] = cb
	}
}

// OnContact sets the handler for messages carrying a contact card.
func (r *Router) OnContact(h MessageHandler) {
	r.mu.Lock()
	r.onContact = h
	r.mu.Unlock()
}

// OnMessage sets the fallback for plain messages.
func (r *Router) OnMessage(h MessageHandler) {
	r.mu.Lock()
	r.onMessage = h
	r.mu.Unlock()
}

// SetAdmins replaces the operator id list (config hot reload).
func (r *Router) SetAdmins(admins []int64) {
	r.mu.Lock()
	r.admins = append([]int64(nil), admins...)
	r.mu.Unlock()
}

func (r *Router) isAdmin(id int64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, a := range r.admins {
		if a == id {
			return true
		}
	}
	return false
}

// Commands returns the registered commands, for usage/help rendering.
func (r *Router) Commands() []Command {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Command, 0, len(r.commands))
	for _, c := range r.commands {
		out = append(out, c)
	}
	return out
}

// DispatchLoop consumes updates until ctx is cancelled or the channel
// closes. Handlers run on a bounded worker pool.
func (r *Router) DispatchLoop(ctx context.Context, updates <-chan kit.Update) error {
	workers := runtime.NumCPU()
	if workers < 2 {
		workers = 2
	}

	sup := rtsup.New(ctx,
		rtsup.WithLogger(r.log.With(logx.String("comp", "telegram.router"))),
		rtsup.WithCancelOnError(false),
	)
	r.runMu.Lock()
	r.sup = sup
	r.running = true
	r.runMu.Unlock()

	jobs := make(chan func(), 64)
	r.log.Info("dispatcher started", logx.Int("workers", workers))

	for i := 0; i < workers; i++ {
		idx := i
		sup.GoRestart("router.worker."+strconv.Itoa(idx), func(c context.Context) error {
			for {
				select {
				case <-c.Done():
					return nil
				case job, ok := <-jobs:
					if !ok {
						return nil
					}
					// Middleware already recovers; keep the worker alive
					// anyway if something slips through.
					func() {
						defer func() {
							if rec := recover(); rec != nil {
								r.log.Error("panic in router job", logx.Int("worker", idx), logx.Any("panic", rec), logx.String("stack", string(debug.Stack())))
							}
						}()
						job()
					}()
				}
			}
		},
			rtsup.WithRestartBackoff(200*time.Millisecond, 5*time.Second),
			rtsup.WithStopOnCleanExit(true),
		)
	}

	defer func() {
		r.runMu.Lock()
		r.running = false
		r.sup = nil
		r.runMu.Unlock()
		close(jobs)
		wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		_ = sup.Wait(wctx)
		cancel()
		r.log.Info("dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			job := r.buildJob(ctx, up)
			if job == nil {
				continue
			}
			select {
			case jobs <- job:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

func (r *Router) buildJob(ctx context.Context, up kit.Update) func() {
	switch up.Kind {
	case kit.UpdateMessage:
		if up.Message == nil {
			return nil
		}
		return r.messageJob(ctx, up)
	case kit.UpdateCallback:
		if up.Callback == nil {
			return nil
		}
		return r.callbackJob(ctx, up)
	}
	return nil
}

func (r *Router) messageJob(ctx context.Context, up kit.Update) func() {
	msg := *up.Message

	if msg.Contact != nil {
		r.mu.RLock()
		h := r.onContact
		r.mu.RUnlock()
		if h == nil {
			return nil
		}
		return func() { r.runFallback(ctx, "contact", h, msg) }
	}

	name, args, isCmd := splitCommand(msg.Text)
	if !isCmd {
		r.mu.RLock()
		h := r.onMessage
		r.mu.RUnlock()
		if h == nil {
			return nil
		}
		return func() { r.runFallback(ctx, "message", h, msg) }
	}

	r.mu.RLock()
	cmd, ok := r.commands[name]
	r.mu.RUnlock()
	if !ok {
		r.log.Debug("unknown command", logx.String("cmd", name), logx.Int64("from_id", msg.FromID))
		return nil
	}
	if cmd.Access == AccessAdminOnly && !r.isAdmin(msg.FromID) {
		r.log.Debug("command denied", logx.String("cmd", name), logx.Int64("from_id", msg.FromID))
		return nil
	}

	req := &Request{
		Update:  up,
		Chat:    kit.ChatTarget{ChatID: msg.ChatID},
		FromID:  msg.FromID,
		Command: name,
		Args:    args,
		Adapter: r.adapter,
		Logger:  r.log.With(logx.String("cmd", name)),
	}
	timeout := cmd.Timeout
	if timeout <= 0 {
		timeout = defaultHandlerTimeout
	}
	h := Chain(cmd.Handle, MWPanicRecover(r.log), MWRequestLog(r.log), MWTimeout(timeout))
	return func() { _ = h(ctx, req) }
}

func (r *Router) callbackJob(ctx context.Context, up kit.Update) func() {
	cb := *up.Callback
	ns, _, _ := tgui.Parse(cb.Data)

	r.mu.RLock()
	route, ok := r.callbacks[ns]
	r.mu.RUnlock()
	if !ok {
		r.log.Debug("unknown callback namespace", logx.String("ns", ns))
		return nil
	}

	req := &Request{
		Update:  up,
		Chat:    kit.ChatTarget{ChatID: cb.ChatID},
		FromID:  cb.FromID,
		Command: "cb:" + ns,
		Adapter: r.adapter,
		Logger:  r.log.With(logx.String("cb", ns)),
	}
	timeout := route.Timeout
	if timeout <= 0 {
		timeout = defaultHandlerTimeout
	}
	h := Chain(route.Handle, MWPanicRecover(r.log), MWRequestLog(r.log), MWTimeout(timeout))
	return func() { _ = h(ctx, req) }
}

func (r *Router) runFallback(ctx context.Context, kind string, h MessageHandler, msg kit.Message) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("panic in "+kind+" handler", logx.Any("panic", rec), logx.String("stack", string(debug.Stack())))
		}
	}()
	cctx, cancel := context.WithTimeout(ctx, defaultHandlerTimeout)
	defer cancel()
	h(cctx, msg)
}

// splitCommand parses "/name@bot args..." into its command name and the
// untokenized argument tail.
func splitCommand(text string) (name, args string, ok bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", "", false
	}
	head, tail, _ := strings.Cut(text[1:], " ")
	if i := strings.IndexByte(head, '@'); i >= 0 {
		head = head[:i]
	}
	head = strings.ToLower(head)
	if head == "" {
		return "", "", false
	}
	return head, strings.TrimSpace(tail), true
}
