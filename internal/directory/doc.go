package directory

// Package directory is the recipient store for the bot.
//
// It tracks every user the bot may message (id, profile, contact details)
// together with two flags that drive broadcast scoping:
//   - subscribed: the user passed the channel-membership check
//   - blocked:    the user blocked the bot (or their chat vanished)
//
// Recipients are never deleted; blocked ones are excluded from every scope
// load but retained for audit/history.
