package onboarding

import (
	"context"

	tele "gopkg.in/telebot.v4"

	kit "creatorbot/internal/transport"
	logx "creatorbot/pkg/logx"
	"creatorbot/pkg/tgui"
)

const (
	msgMenuHeader   = "Choose your region:"
	btnOtherRegions = "Other regions"
	btnBack         = "« Back"
)

type region struct {
	name string
	url  string
}

// The five biggest audiences get top-level buttons; the rest live behind
// "Other regions".
var mainRegions = []region{
	{"Kyiv", "https://t.me/creator_kyiv"},
	{"Dnipro", "https://t.me/creator_dnipro"},
	{"Kharkiv", "https://t.me/creator_kharkiv"},
	{"Odesa", "https://t.me/creator_odesa"},
	{"Lviv", "https://t.me/creator_lviv"},
}

var otherRegions = []region{
	{"Vinnytsia", "https://t.me/creator_vinnytsia"},
	{"Zaporizhzhia", "https://t.me/creator_zaporizhzhia"},
	{"Ivano-Frankivsk", "https://t.me/creator_frankivsk"},
	{"Mykolaiv", "https://t.me/creator_mykolaiv"},
	{"Poltava", "https://t.me/creator_poltava"},
	{"Sumy", "https://t.me/creator_sumy"},
	{"Ternopil", "https://t.me/creator_ternopil"},
	{"Kherson", "https://t.me/creator_kherson"},
	{"Khmelnytskyi", "https://t.me/creator_khmelnytskyi"},
	{"Cherkasy", "https://t.me/creator_cherkasy"},
	{"Chernihiv", "https://t.me/creator_chernihiv"},
	{"Chernivtsi", "https://t.me/creator_chernivtsi"},
}

func mainRegionsMarkup() *tele.ReplyMarkup {
	b := tgui.NewInline()
	for _, r := range mainRegions {
		b.Row(tgui.URLBtn(r.name, r.url))
	}
	b.Row(tgui.Btn(btnOtherRegions, tgui.Data(CallbackNS, ActionOtherRegions, "")))
	return b.Markup()
}

func otherRegionsMarkup() *tele.ReplyMarkup {
	btns := make([]tele.Btn, 0, len(otherRegions))
	for _, r := range otherRegions {
		btns = append(btns, tgui.URLBtn(r.name, r.url))
	}
	return tgui.Grid2(btns, tgui.Btn(btnBack, tgui.Data(CallbackNS, ActionMainRegions, "")))
}

// swapMenu replaces the keyboard on the menu message in place.
func (s *Service) swapMenu(ctx context.Context, cb kit.Callback, rm *tele.ReplyMarkup) {
	s.answer(ctx, cb.ID, "")
	ref := kit.MessageRef{ChatID: cb.ChatID, MessageID: cb.MessageID}
	opts := &kit.SendOptions{ReplyMarkupAdapter: rm}
	if err := s.adapter.EditText(ctx, ref, msgMenuHeader, opts); err != nil {
		s.log.Debug("menu swap failed", logx.Int64("chat_id", cb.ChatID), logx.Err(err))
	}
}
