// Package broadcast implements the operator broadcast pipeline: command
// parsing, a queued worker pool, and the sequential dispatch pass with
// per-recipient outcome classification.
package broadcast

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/time/rate"

	"creatorbot/internal/directory"
	"creatorbot/internal/eventbus"
	kit "creatorbot/internal/transport"
	logx "creatorbot/pkg/logx"
)

// ErrEmptyPayload is returned by Parse when no message text remains after
// the scope token is stripped.
var ErrEmptyPayload = errors.New("broadcast: empty payload")

// ErrQueueFull is returned by Enqueue when the job queue is saturated.
var ErrQueueFull = errors.New("broadcast: queue full")

// ErrNotRunning is returned by Enqueue before Start or after Stop.
var ErrNotRunning = errors.New("broadcast: service not running")

// Payload is either a TextPayload or a MediaPayload.
type Payload interface{ isPayload() }

// TextPayload is a plain text message, whitespace preserved.
type TextPayload struct {
	Text string
}

// MediaPayload is a captioned image with a single inline URL button.
type MediaPayload struct {
	Text        string
	ImageURL    string
	ButtonLabel string
	ButtonURL   string
}

func (TextPayload) isPayload()  {}
func (MediaPayload) isPayload() {}

// Request is one parsed broadcast command. Immutable once built; one
// request drives exactly one dispatch pass.
type Request struct {
	Payload Payload
	Scope   directory.Scope
}

// Tally holds the running counters of a single dispatch pass.
type Tally struct {
	Total   int
	Sent    int
	Blocked int
	Errored int
}

// Attempted is the number of recipients processed so far.
func (t Tally) Attempted() int { return t.Sent + t.Blocked + t.Errored }

// SuccessPercent is sent/total as a percentage, 0 when total is 0.
func (t Tally) SuccessPercent() float64 {
	if t.Total == 0 {
		return 0
	}
	return float64(t.Sent) / float64(t.Total) * 100
}

// Config controls the dispatch engine.
type Config struct {
	Workers       int
	QueueSize     int
	RatePerSec    int
	ProgressEvery int
}

type job struct {
	req      Request
	operator kit.ChatTarget
}

// Finished is published on the event bus when a dispatch pass completes.
type Finished struct {
	Scope   directory.Scope
	Tally   Tally
	Aborted bool
}

// Service owns the job queue and worker pool. Two concurrent passes
// interleave their sends; they share one rate limiter so the combined
// send rate stays within the platform limit.
type Service struct {
	mu sync.Mutex

	cfg     Config
	adapter kit.Adapter
	store   directory.Store
	bus     eventbus.Bus
	log     logx.Logger

	limiter *rate.Limiter
	queue   chan job
	stopCh  chan struct{}
	// stopDone is non-nil while a Stop() is in progress; closed when the
	// workers fully exit.
	stopDone chan struct{}

	runCtx    context.Context
	runCancel context.CancelFunc
	workerWG  sync.WaitGroup
}
