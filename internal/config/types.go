package config

type Config struct {
	Telegram   TelegramConfig    `json:"telegram"`
	Logging    LoggingConfig     `json:"logging"`
	Storage    StorageConfig     `json:"storage"`
	Broadcast  *BroadcastConfig  `json:"broadcast,omitempty"`
	Onboarding *OnboardingConfig `json:"onboarding,omitempty"`
	Digest     *DigestConfig     `json:"digest,omitempty"`
}

type TelegramConfig struct {
	Token string `json:"token"`

	// AdminUserIDs gates operator commands (/broadcast, /stats).
	AdminUserIDs []int64 `json:"admin_user_ids"`

	// ChannelID is the channel whose membership gates onboarding.
	ChannelID int64 `json:"channel_id"`
	// ChannelInviteLink is shown to users in invite/reminder messages.
	ChannelInviteLink string `json:"channel_invite_link"`

	// GroupLog is an optional chat id (as string) for the Telegram log sink.
	GroupLog string `json:"group_log,omitempty"`

	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout,omitempty"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// StorageConfig controls the recipient directory database.
//
// Example:
//
//	"storage": { "path": "./creatorbot.db" }
type StorageConfig struct {
	Path string `json:"path"`
	// BusyTimeout is a Go duration string (sqlite busy_timeout pragma).
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

// BroadcastConfig controls the dispatch engine.
//
// All durations are Go duration strings. Defaults when fields are
// omitted/zero:
//   - workers: 2
//   - queue_size: 16
//   - rate_per_sec: 10
//   - progress_every: 50
type BroadcastConfig struct {
	Workers       int `json:"workers,omitempty"`
	QueueSize     int `json:"queue_size,omitempty"`
	RatePerSec    int `json:"rate_per_sec,omitempty"`
	ProgressEvery int `json:"progress_every,omitempty"`
}

// OnboardingConfig controls the subscription-gated onboarding flow.
type OnboardingConfig struct {
	// ReminderDelay is how long after the invite the one-shot compliance
	// re-check fires. Default "60s".
	ReminderDelay string `json:"reminder_delay,omitempty"`
	// InviteImageURL is the promo image attached to the invite. When empty
	// (or when the media send fails) the invite falls back to text-only.
	InviteImageURL string `json:"invite_image_url,omitempty"`
}

// DigestConfig controls the optional scheduled stats digest.
type DigestConfig struct {
	Enabled bool `json:"enabled"`
	// Spec is a cron expression; default "0 9 * * *" (daily at 09:00).
	Spec string `json:"spec,omitempty"`
	// ChatID receives the digest; falls back to the first admin user id.
	ChatID int64 `json:"chat_id,omitempty"`
	// Timezone for the cron schedule; default local.
	Timezone string `json:"timezone,omitempty"`
}
