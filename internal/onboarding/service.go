// Package onboarding runs the contact-gated signup flow: ask for the
// user's contact, invite them to the channel, and show the region menu
// once the invite settles. Membership in the channel is a soft gate;
// every user eventually reaches the menu.
package onboarding

import (
	"context"
	"time"

	"creatorbot/internal/directory"
	"creatorbot/internal/eventbus"
	"creatorbot/internal/runtime/supervisor"
	kit "creatorbot/internal/transport"
	logx "creatorbot/pkg/logx"
	"creatorbot/pkg/tgui"
)

// CallbackNS is the callback-data namespace for onboarding buttons.
const CallbackNS = "onb"

// Callback actions within CallbackNS.
const (
	ActionSubscribed   = "subscribed"
	ActionOtherRegions = "other"
	ActionMainRegions  = "main"
)

const (
	msgAskContact    = "Welcome! Please share your contact to continue."
	msgAskContactBtn = "Share contact"
	msgContactAgain  = "Please use the button below to share your contact."
	msgContactThanks = "Thanks, your contact is saved."
	msgInvite        = "Subscribe to our channel so you never miss an update."
	msgReminder      = "Looks like you have not subscribed yet. Join the channel and tap the button below."
	msgNotSubscribed = "You are not subscribed yet."
	msgSubscribedYes = "Subscription confirmed!"
	btnOpenChannel   = "Open channel"
	btnConfirmSub    = "I subscribed"
)

// Config carries the channel identity and flow tunables.
type Config struct {
	ChannelID         int64
	ChannelInviteLink string
	InviteImageURL    string
	ReminderDelay     time.Duration
}

type Service struct {
	cfg      Config
	adapter  kit.Adapter
	store    directory.Store
	sessions *Sessions
	sup      *supervisor.Supervisor
	bus      eventbus.Bus
	log      logx.Logger
}

func New(cfg Config, adapter kit.Adapter, store directory.Store, sup *supervisor.Supervisor, bus eventbus.Bus, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.ReminderDelay <= 0 {
		cfg.ReminderDelay = 60 * time.Second
	}
	return &Service{
		cfg:      cfg,
		adapter:  adapter,
		store:    store,
		sessions: NewSessions(),
		sup:      sup,
		bus:      bus,
		log:      log,
	}
}

// Sessions exposes the session store for introspection in tests and stats.
func (s *Service) Sessions() *Sessions { return s.sessions }

// HandleStart begins (or restarts) onboarding for the user: persist the
// profile and ask for their contact.
func (s *Service) HandleStart(ctx context.Context, msg kit.Message) {
	err := s.store.Save(ctx, msg.FromID, directory.Profile{
		Username:     msg.FromUsername,
		FirstName:    msg.FromFirst,
		LastName:     msg.FromLast,
		LanguageCode: msg.LanguageCode,
	})
	if err != nil {
		s.log.Warn("profile save failed", logx.Int64("user_id", msg.FromID), logx.Err(err))
	}
	s.sessions.Begin(msg.FromID, msg.ChatID)
	s.askContact(ctx, msg.ChatID, msgAskContact)
}

// HandleContact advances the session on a shared contact: persist it,
// send the channel invite, and schedule the reminder.
func (s *Service) HandleContact(ctx context.Context, msg kit.Message) {
	if msg.Contact == nil {
		return
	}
	if _, ok := s.sessions.Get(msg.FromID); !ok {
		// Restart dropped the session; recreate it so the flow continues.
		s.sessions.Begin(msg.FromID, msg.ChatID)
	}

	err := s.store.SaveContact(ctx, msg.FromID, directory.Contact{
		PhoneNumber: msg.Contact.PhoneNumber,
		FirstName:   msg.Contact.FirstName,
		LastName:    msg.Contact.LastName,
	})
	if err != nil {
		s.log.Warn("contact save failed", logx.Int64("user_id", msg.FromID), logx.Err(err))
	}
	s.sessions.Advance(msg.FromID, PhaseContactReceived)

	if _, err := s.adapter.SendText(ctx, kit.ChatTarget{ChatID: msg.ChatID}, msgContactThanks,
		&kit.SendOptions{ReplyMarkupAdapter: tgui.RemoveKeyboard()}); err != nil {
		s.log.Warn("contact ack failed", logx.Int64("user_id", msg.FromID), logx.Err(err))
	}

	s.sendInvite(ctx, msg.ChatID)
	s.sessions.Advance(msg.FromID, PhaseInvited)
	s.scheduleReminder(msg.FromID, msg.ChatID)
}

// HandleMessage re-prompts for the contact when the user sends anything
// else while we are still waiting for it.
func (s *Service) HandleMessage(ctx context.Context, msg kit.Message) {
	sess, ok := s.sessions.Get(msg.FromID)
	if !ok || sess.Phase != PhaseAwaitingContact {
		return
	}
	s.askContact(ctx, msg.ChatID, msgContactAgain)
}

// HandleCallback routes onboarding button presses. Stateless on purpose:
// the buttons keep working after the session is gone.
func (s *Service) HandleCallback(ctx context.Context, cb kit.Callback) {
	_, action, _ := tgui.Parse(cb.Data)
	switch action {
	case ActionSubscribed:
		s.handleSubscribed(ctx, cb)
	case ActionOtherRegions:
		s.swapMenu(ctx, cb, otherRegionsMarkup())
	case ActionMainRegions:
		s.swapMenu(ctx, cb, mainRegionsMarkup())
	default:
		s.answer(ctx, cb.ID, "")
	}
}

func (s *Service) handleSubscribed(ctx context.Context, cb kit.Callback) {
	if s.checkSubscribed(ctx, cb.FromID) {
		s.answer(ctx, cb.ID, msgSubscribedYes)
		s.ShowMenu(ctx, cb.FromID, cb.ChatID)
		return
	}
	s.answer(ctx, cb.ID, msgNotSubscribed)
}

// checkSubscribed runs the membership check against the channel. A check
// failure counts as not subscribed; on success the subscription flag is
// written through to the directory.
func (s *Service) checkSubscribed(ctx context.Context, userID int64) bool {
	status, err := s.adapter.CheckMembership(ctx, s.cfg.ChannelID, userID)
	if err != nil {
		s.log.Warn("membership check failed", logx.Int64("user_id", userID), logx.Err(err))
		return false
	}
	if !status.Subscribed() {
		return false
	}
	if err := s.store.SetSubscribed(ctx, userID, true); err != nil {
		s.log.Warn("subscription flag write failed", logx.Int64("user_id", userID), logx.Err(err))
	}
	return true
}

// ShowMenu sends the region menu and retires the session. Safe to call
// more than once for the same user; each call independently re-sends the
// menu.
func (s *Service) ShowMenu(ctx context.Context, userID, chatID int64) {
	opts := &kit.SendOptions{ReplyMarkupAdapter: mainRegionsMarkup()}
	if _, err := s.adapter.SendText(ctx, kit.ChatTarget{ChatID: chatID}, msgMenuHeader, opts); err != nil {
		s.log.Warn("menu send failed", logx.Int64("user_id", userID), logx.Err(err))
	}
	s.sessions.Advance(userID, PhaseMenuShown)
	s.sessions.End(userID)
	s.bus.Publish(eventbus.Event{
		Type: eventbus.TypeMenuShown,
		Time: time.Now(),
		Data: userID,
	})
}

func (s *Service) askContact(ctx context.Context, chatID int64, text string) {
	opts := &kit.SendOptions{ReplyMarkupAdapter: tgui.ContactRequest(msgAskContactBtn)}
	if _, err := s.adapter.SendText(ctx, kit.ChatTarget{ChatID: chatID}, text, opts); err != nil {
		s.log.Warn("contact prompt failed", logx.Int64("chat_id", chatID), logx.Err(err))
	}
}

// sendInvite delivers the channel invite as an image with buttons, and
// falls back to a plain text invite when the media send fails.
func (s *Service) sendInvite(ctx context.Context, chatID int64) {
	to := kit.ChatTarget{ChatID: chatID}
	opts := &kit.SendOptions{ReplyMarkupAdapter: inviteMarkup(s.cfg.ChannelInviteLink)}

	if s.cfg.InviteImageURL != "" {
		_, err := s.adapter.SendMedia(ctx, to, kit.Media{
			Caption:  msgInvite,
			ImageURL: s.cfg.InviteImageURL,
		}, opts)
		if err == nil {
			return
		}
		s.log.Warn("invite media failed, falling back to text", logx.Int64("chat_id", chatID), logx.Err(err))
	}
	if _, err := s.adapter.SendText(ctx, to, msgInvite, opts); err != nil {
		s.log.Warn("invite send failed", logx.Int64("chat_id", chatID), logx.Err(err))
	}
}

func (s *Service) answer(ctx context.Context, callbackID, text string) {
	if err := s.adapter.AnswerCallback(ctx, callbackID, text); err != nil {
		s.log.Debug("callback answer failed", logx.Err(err))
	}
}

func inviteMarkup(inviteLink string) any {
	return tgui.NewInline().
		Row(tgui.URLBtn(btnOpenChannel, inviteLink)).
		Row(tgui.Btn(btnConfirmSub, tgui.Data(CallbackNS, ActionSubscribed, ""))).
		Markup()
}
