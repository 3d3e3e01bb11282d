package adapter

import (
	"errors"
	"fmt"
	"strings"

	tele "gopkg.in/telebot.v4"

	kit "creatorbot/internal/transport"
)

// classifySendErr wraps telebot send failures with the transport
// sentinels so callers can classify without importing telebot. The
// original error stays in the chain for logging.
func classifySendErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, tele.ErrBlockedByUser) || errors.Is(err, tele.ErrNotStartedByUser) || errors.Is(err, tele.ErrUserIsDeactivated) {
		return fmt.Errorf("%w: %w", kit.ErrRecipientBlocked, err)
	}
	if errors.Is(err, tele.ErrChatNotFound) {
		return fmt.Errorf("%w: %w", kit.ErrChatNotFound, err)
	}

	var apiErr *tele.Error
	if errors.As(err, &apiErr) {
		desc := strings.ToLower(apiErr.Description)
		switch {
		case strings.Contains(desc, "chat not found"):
			return fmt.Errorf("%w: %w", kit.ErrChatNotFound, err)
		case apiErr.Code == 401, apiErr.Code == 403:
			// Forbidden/unauthorized means the recipient shut us out.
			return fmt.Errorf("%w: %w", kit.ErrRecipientBlocked, err)
		}
	}
	return err
}
