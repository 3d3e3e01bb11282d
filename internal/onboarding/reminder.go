package onboarding

import (
	"context"
	"time"

	kit "creatorbot/internal/transport"
	logx "creatorbot/pkg/logx"
)

// scheduleReminder arms the one-shot follow-up for a freshly invited
// user. After the delay the membership check runs exactly once; a user
// who has not subscribed gets a single reminder message, and either way
// the region menu is shown. There is no cancellation: the timer runs to
// completion unless the process shuts down first.
func (s *Service) scheduleReminder(userID, chatID int64) {
	s.sup.Go0("onboarding.reminder", func(ctx context.Context) {
		t := time.NewTimer(s.cfg.ReminderDelay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
		s.fireReminder(ctx, userID, chatID)
	})
}

func (s *Service) fireReminder(ctx context.Context, userID, chatID int64) {
	if !s.checkSubscribed(ctx, userID) {
		opts := &kit.SendOptions{ReplyMarkupAdapter: inviteMarkup(s.cfg.ChannelInviteLink)}
		if _, err := s.adapter.SendText(ctx, kit.ChatTarget{ChatID: chatID}, msgReminder, opts); err != nil {
			s.log.Warn("reminder send failed", logx.Int64("user_id", userID), logx.Err(err))
		}
	}
	// The menu is shown regardless of the check outcome so nobody gets
	// stuck in the invite step.
	s.ShowMenu(ctx, userID, chatID)
}
