package broadcast

import (
	"errors"
	"testing"

	"creatorbot/internal/directory"
)

func TestParseScopeDetection(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name      string
		in        string
		wantScope directory.Scope
		wantText  string
	}{
		{
			name:      "plain text defaults to subscribed",
			in:        "Hello world",
			wantScope: directory.ScopeSubscribed,
			wantText:  "Hello world",
		},
		{
			name:      "trailing all widens scope",
			in:        "Hello world all",
			wantScope: directory.ScopeAll,
			wantText:  "Hello world",
		},
		{
			name:      "trailing all is case-insensitive",
			in:        "Hello world ALL",
			wantScope: directory.ScopeAll,
			wantText:  "Hello world",
		},
		{
			name:      "all after t.me link stays in text",
			in:        "Join https://t.me/x all",
			wantScope: directory.ScopeSubscribed,
			wantText:  "Join https://t.me/x all",
		},
		{
			name:      "all after handle stays in text",
			in:        "Follow @channel all",
			wantScope: directory.ScopeSubscribed,
			wantText:  "Follow @channel all",
		},
		{
			name:      "all after .me domain stays in text",
			in:        "See mysite.me all",
			wantScope: directory.ScopeSubscribed,
			wantText:  "See mysite.me all",
		},
		{
			name:      "interior whitespace preserved",
			in:        "line one  spaced all",
			wantScope: directory.ScopeAll,
			wantText:  "line one  spaced",
		},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			req, err := Parse(tc.in)
			if err != nil {
				t.Fatalf("Parse(%q): %v", tc.in, err)
			}
			if req.Scope != tc.wantScope {
				t.Fatalf("scope = %s, want %s", req.Scope, tc.wantScope)
			}
			p, ok := req.Payload.(TextPayload)
			if !ok {
				t.Fatalf("payload = %T, want TextPayload", req.Payload)
			}
			if p.Text != tc.wantText {
				t.Fatalf("text = %q, want %q", p.Text, tc.wantText)
			}
		})
	}
}

func TestParseMedia(t *testing.T) {
	t.Parallel()
	req, err := Parse("Promo https://img/x.png Buy https://shop/y all")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if req.Scope != directory.ScopeAll {
		t.Fatalf("scope = %s, want all", req.Scope)
	}
	m, ok := req.Payload.(MediaPayload)
	if !ok {
		t.Fatalf("payload = %T, want MediaPayload", req.Payload)
	}
	want := MediaPayload{Text: "Promo", ImageURL: "https://img/x.png", ButtonLabel: "Buy", ButtonURL: "https://shop/y"}
	if m != want {
		t.Fatalf("media = %+v, want %+v", m, want)
	}
}

func TestParseMediaButtonLinkStillWidensScope(t *testing.T) {
	t.Parallel()
	req, err := Parse("Promo https://img/x.png Join https://t.me/shop all")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if req.Scope != directory.ScopeAll {
		t.Fatalf("scope = %s, want all", req.Scope)
	}
	m, ok := req.Payload.(MediaPayload)
	if !ok {
		t.Fatalf("payload = %T, want MediaPayload", req.Payload)
	}
	if m.ButtonURL != "https://t.me/shop" {
		t.Fatalf("button url = %q", m.ButtonURL)
	}
}

func TestParseFiveTokensIsText(t *testing.T) {
	t.Parallel()
	in := "Promo https://img/x.png Buy now https://shop/y"
	req, err := Parse(in)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	p, ok := req.Payload.(TextPayload)
	if !ok {
		t.Fatalf("payload = %T, want TextPayload", req.Payload)
	}
	if p.Text != in {
		t.Fatalf("text = %q, want full input", p.Text)
	}
}

func TestParseEmpty(t *testing.T) {
	t.Parallel()
	for _, in := range []string{"", "   ", "all", "ALL"} {
		if _, err := Parse(in); !errors.Is(err, ErrEmptyPayload) {
			t.Fatalf("Parse(%q): err = %v, want ErrEmptyPayload", in, err)
		}
	}
}
