package broadcast

import (
	"context"
	"errors"
	"fmt"
	"time"

	"creatorbot/internal/eventbus"
	kit "creatorbot/internal/transport"
	logx "creatorbot/pkg/logx"
)

// dispatch runs one pass: resolve the recipient list, send to each
// recipient in order, classify outcomes, report progress and a final
// summary to the operator.
//
// Per-recipient failures never abort the pass; only a failure to resolve
// the recipient list does, reported to the operator as a single message.
func (s *Service) dispatch(ctx context.Context, j job) {
	start := time.Now()
	req := j.req

	ids, err := s.store.List(ctx, req.Scope)
	if err != nil {
		s.log.Error("recipient list failed", logx.String("scope", req.Scope.String()), logx.Err(err))
		s.notifyOperator(ctx, j.operator, fmt.Sprintf("Broadcast aborted: could not load recipients (%s scope).", req.Scope))
		s.publishFinished(req, Tally{}, true)
		return
	}
	if len(ids) == 0 {
		s.notifyOperator(ctx, j.operator, fmt.Sprintf("No recipients for scope %s.", req.Scope))
		s.publishFinished(req, Tally{}, false)
		return
	}

	tally := Tally{Total: len(ids)}
	s.log.Info("pass started", logx.String("scope", req.Scope.String()), logx.Int("total", tally.Total))

	status, statusOK := s.sendStatus(ctx, j.operator, tally)

	s.mu.Lock()
	every := s.cfg.ProgressEvery
	s.mu.Unlock()

	aborted := false
	for _, id := range ids {
		if err := s.throttle(ctx); err != nil {
			aborted = true
			break
		}
		switch outcome := s.sendOne(ctx, id, req.Payload); outcome {
		case outcomeSent:
			tally.Sent++
		case outcomeBlocked:
			tally.Blocked++
			if err := s.store.SetBlocked(ctx, id, true); err != nil {
				s.log.Warn("blocked flag write failed", logx.Int64("user_id", id), logx.Err(err))
			} else {
				s.bus.Publish(eventbus.Event{Type: eventbus.TypeRecipientBlocked, Data: id})
			}
		default:
			tally.Errored++
		}
		if statusOK && tally.Attempted()%every == 0 && tally.Attempted() < tally.Total {
			if err := s.adapter.EditText(ctx, status, progressText(tally), nil); err != nil {
				s.log.Debug("progress edit failed", logx.Err(err))
			}
		}
	}

	report := reportText(tally, aborted)
	if statusOK {
		if err := s.adapter.EditText(ctx, status, report, nil); err != nil {
			s.notifyOperator(ctx, j.operator, report)
		}
	} else {
		s.notifyOperator(ctx, j.operator, report)
	}

	fields := []logx.Field{
		logx.String("scope", req.Scope.String()),
		logx.Int("total", tally.Total),
		logx.Int("sent", tally.Sent),
		logx.Int("blocked", tally.Blocked),
		logx.Int("errored", tally.Errored),
		logx.Duration("dur", time.Since(start)),
	}
	if aborted {
		s.log.Warn("pass aborted", fields...)
	} else {
		s.log.Info("pass finished", fields...)
	}
	s.publishFinished(req, tally, aborted)
}

type outcome int

const (
	outcomeSent outcome = iota
	outcomeBlocked
	outcomeErrored
)

// sendOne makes exactly one attempt for one recipient. No retries; the
// worst-case pass duration stays bounded by the throttle alone.
func (s *Service) sendOne(ctx context.Context, id int64, p Payload) outcome {
	to := kit.ChatTarget{ChatID: id}
	var err error
	switch v := p.(type) {
	case MediaPayload:
		_, err = s.adapter.SendMedia(ctx, to, kit.Media{
			Caption:     v.Text,
			ImageURL:    v.ImageURL,
			ButtonLabel: v.ButtonLabel,
			ButtonURL:   v.ButtonURL,
		}, nil)
	case TextPayload:
		_, err = s.adapter.SendText(ctx, to, v.Text, nil)
	default:
		err = ErrEmptyPayload
	}
	if err == nil {
		return outcomeSent
	}
	if errors.Is(err, kit.ErrRecipientBlocked) || errors.Is(err, kit.ErrChatNotFound) {
		s.log.Debug("recipient unreachable", logx.Int64("user_id", id), logx.Err(err))
		return outcomeBlocked
	}
	s.log.Warn("send failed", logx.Int64("user_id", id), logx.Err(err))
	return outcomeErrored
}

func (s *Service) throttle(ctx context.Context) error {
	s.mu.Lock()
	lim := s.limiter
	s.mu.Unlock()
	return lim.Wait(ctx)
}

func (s *Service) sendStatus(ctx context.Context, operator kit.ChatTarget, t Tally) (kit.MessageRef, bool) {
	ref, err := s.adapter.SendText(ctx, operator, progressText(t), nil)
	if err != nil {
		s.log.Debug("status message failed", logx.Err(err))
		return kit.MessageRef{}, false
	}
	return ref, true
}

func (s *Service) notifyOperator(ctx context.Context, operator kit.ChatTarget, text string) {
	if _, err := s.adapter.SendText(ctx, operator, text, nil); err != nil {
		s.log.Warn("operator notify failed", logx.Err(err))
	}
}

func (s *Service) publishFinished(req Request, t Tally, aborted bool) {
	s.bus.Publish(eventbus.Event{
		Type: eventbus.TypeBroadcastFinished,
		Time: time.Now(),
		Data: Finished{Scope: req.Scope, Tally: t, Aborted: aborted},
	})
}

func progressText(t Tally) string {
	return fmt.Sprintf("Broadcast progress: %d sent, %d blocked, %d errored / %d total",
		t.Sent, t.Blocked, t.Errored, t.Total)
}

func reportText(t Tally, aborted bool) string {
	head := "Broadcast finished."
	if aborted {
		head = "Broadcast aborted before completion."
	}
	return fmt.Sprintf("%s\nTotal: %d\nSent: %d\nBlocked: %d\nErrored: %d\nSuccess: %.1f%%",
		head, t.Total, t.Sent, t.Blocked, t.Errored, t.SuccessPercent())
}
