package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"creatorbot/internal/broadcast"
	"creatorbot/internal/digest"
	"creatorbot/internal/onboarding"
	kit "creatorbot/internal/transport"
	"creatorbot/internal/transport/telegram/router"
)

const broadcastUsage = "Usage:\n" +
	"/broadcast <text> — send text to subscribed users\n" +
	"/broadcast <text> all — send text to everyone\n" +
	"/broadcast <text> <image_url> <button_label> <button_url> [all] — send an image with a button"

func (a *App) registerRoutes() {
	a.rt.Register([]router.Command{
		{
			Name:        "start",
			Description: "Begin onboarding",
			Handle: func(ctx context.Context, req *router.Request) error {
				a.onb.HandleStart(ctx, *req.Update.Message)
				return nil
			},
		},
		{
			Name:        "broadcast",
			Description: "Send a message to the audience",
			Usage:       broadcastUsage,
			Access:      router.AccessAdminOnly,
			Handle:      a.handleBroadcast,
		},
		{
			Name:        "stats",
			Description: "Audience counters",
			Access:      router.AccessAdminOnly,
			Handle:      a.handleStats,
		},
		{
			Name:        "help",
			Description: "List available commands",
			Access:      router.AccessAdminOnly,
			Handle:      a.handleHelp,
		},
	}, []router.CallbackRoute{
		{
			Namespace: onboarding.CallbackNS,
			Handle: func(ctx context.Context, req *router.Request) error {
				a.onb.HandleCallback(ctx, *req.Update.Callback)
				return nil
			},
		},
	})

	a.rt.OnContact(func(ctx context.Context, msg kit.Message) {
		a.onb.HandleContact(ctx, msg)
	})
	a.rt.OnMessage(func(ctx context.Context, msg kit.Message) {
		a.onb.HandleMessage(ctx, msg)
	})
}

func (a *App) handleBroadcast(ctx context.Context, req *router.Request) error {
	breq, err := broadcast.Parse(req.Args)
	if err != nil {
		if errors.Is(err, broadcast.ErrEmptyPayload) {
			_, serr := req.Adapter.SendText(ctx, req.Chat, broadcastUsage, nil)
			return serr
		}
		return err
	}
	if err := a.bcast.Enqueue(breq, req.Chat); err != nil {
		_, serr := req.Adapter.SendText(ctx, req.Chat, "Broadcast not accepted: "+err.Error(), nil)
		if serr != nil {
			return serr
		}
		return err
	}
	return nil
}

func (a *App) handleStats(ctx context.Context, req *router.Request) error {
	stats, err := a.store.Stats(ctx)
	if err != nil {
		_, serr := req.Adapter.SendText(ctx, req.Chat, "Could not load stats.", nil)
		if serr != nil {
			return serr
		}
		return err
	}
	text := digest.Format(stats)
	if n := a.onb.Sessions().Len(); n > 0 {
		text += fmt.Sprintf("\nOnboarding in progress: %d", n)
	}
	_, err = req.Adapter.SendText(ctx, req.Chat, text, nil)
	return err
}

func (a *App) handleHelp(ctx context.Context, req *router.Request) error {
	cmds := a.rt.Commands()
	sort.Slice(cmds, func(i, j int) bool { return cmds[i].Name < cmds[j].Name })

	var b strings.Builder
	b.WriteString("Commands:\n")
	for _, c := range cmds {
		fmt.Fprintf(&b, "/%s — %s\n", c.Name, c.Description)
	}
	_, err := req.Adapter.SendText(ctx, req.Chat, strings.TrimRight(b.String(), "\n"), nil)
	return err
}
