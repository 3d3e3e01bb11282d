// Package digest posts a daily directory summary to the operator chat on
// a cron schedule.
package digest

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"creatorbot/internal/directory"
	kit "creatorbot/internal/transport"
	logx "creatorbot/pkg/logx"
)

type Config struct {
	Enabled  bool
	Spec     string // standard 5-field cron spec or @descriptor
	ChatID   int64
	Timezone string // IANA name; empty means local time
}

type Service struct {
	mu sync.Mutex

	cfg     Config
	adapter kit.Adapter
	store   directory.Store
	log     logx.Logger

	parser cron.Parser
	c      *cron.Cron
	runCtx context.Context
	cancel context.CancelFunc
}

func New(cfg Config, adapter kit.Adapter, store directory.Store, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if strings.TrimSpace(cfg.Spec) == "" {
		cfg.Spec = "0 9 * * *"
	}
	return &Service{
		cfg:     cfg,
		adapter: adapter,
		store:   store,
		log:     log,
		parser:  cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
	}
}

func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return nil
	}
	if !s.cfg.Enabled || s.cfg.ChatID == 0 {
		s.log.Debug("digest disabled")
		return nil
	}

	loc := time.Local
	if tz := strings.TrimSpace(s.cfg.Timezone); tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			return fmt.Errorf("digest timezone %q: %w", tz, err)
		}
		loc = l
	}

	s.runCtx, s.cancel = context.WithCancel(ctx)
	c := cron.New(cron.WithParser(s.parser), cron.WithLocation(loc))
	if _, err := c.AddFunc(s.cfg.Spec, s.run); err != nil {
		s.cancel()
		s.runCtx, s.cancel = nil, nil
		return fmt.Errorf("digest spec %q: %w", s.cfg.Spec, err)
	}
	c.Start()
	s.c = c
	s.log.Info("digest started", logx.String("spec", s.cfg.Spec), logx.String("tz", loc.String()))
	return nil
}

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.c
	cancel := s.cancel
	s.c = nil
	s.runCtx, s.cancel = nil, nil
	s.mu.Unlock()
	if c == nil {
		return
	}
	if cancel != nil {
		cancel()
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
}

func (s *Service) run() {
	s.mu.Lock()
	ctx := s.runCtx
	chatID := s.cfg.ChatID
	s.mu.Unlock()
	if ctx == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	stats, err := s.store.Stats(ctx)
	if err != nil {
		s.log.Warn("digest stats failed", logx.Err(err))
		return
	}
	if _, err := s.adapter.SendText(ctx, kit.ChatTarget{ChatID: chatID}, Format(stats), nil); err != nil {
		s.log.Warn("digest send failed", logx.Err(err))
	}
}

// Format renders the directory summary used by the digest and the stats
// command.
func Format(st directory.Stats) string {
	return fmt.Sprintf("Audience summary\nTotal users: %d\nSubscribed: %d\nBlocked: %d",
		st.Total, st.Subscribed, st.Blocked)
}
