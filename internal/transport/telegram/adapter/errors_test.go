package adapter

import (
	"errors"
	"testing"

	tele "gopkg.in/telebot.v4"

	kit "creatorbot/internal/transport"
)

func TestClassifySendErr(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name string
		in   error
		want error
	}{
		{"nil stays nil", nil, nil},
		{"blocked by user", tele.ErrBlockedByUser, kit.ErrRecipientBlocked},
		{"not started by user", tele.ErrNotStartedByUser, kit.ErrRecipientBlocked},
		{"chat not found", tele.ErrChatNotFound, kit.ErrChatNotFound},
		{
			"forbidden api error",
			&tele.Error{Code: 403, Description: "Forbidden: bot was kicked"},
			kit.ErrRecipientBlocked,
		},
		{
			"chat not found by description",
			&tele.Error{Code: 400, Description: "Bad Request: chat not found"},
			kit.ErrChatNotFound,
		},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := classifySendErr(tc.in)
			if tc.want == nil {
				if got != nil {
					t.Fatalf("got %v, want nil", got)
				}
				return
			}
			if !errors.Is(got, tc.want) {
				t.Fatalf("got %v, want wrapped %v", got, tc.want)
			}
			if tc.in != nil && !errors.Is(got, tc.in) {
				t.Fatal("original error lost from chain")
			}
		})
	}
}

func TestClassifySendErrPassesThroughOthers(t *testing.T) {
	t.Parallel()
	in := &tele.Error{Code: 400, Description: "Bad Request: message is too long"}
	got := classifySendErr(in)
	if errors.Is(got, kit.ErrRecipientBlocked) || errors.Is(got, kit.ErrChatNotFound) {
		t.Fatalf("unclassified error got a sentinel: %v", got)
	}
}

func TestSplitTelegramText(t *testing.T) {
	t.Parallel()
	if got := splitTelegramText("short", 100); len(got) != 1 || got[0] != "short" {
		t.Fatalf("short text split: %v", got)
	}

	long := ""
	for i := 0; i < 50; i++ {
		long += "0123456789\n"
	}
	chunks := splitTelegramText(long, 100)
	if len(chunks) < 2 {
		t.Fatalf("long text not split: %d chunks", len(chunks))
	}
	for i, c := range chunks {
		if len([]rune(c)) > 100 {
			t.Fatalf("chunk %d over limit: %d runes", i, len([]rune(c)))
		}
	}
}
