package telegram

import (
	"context"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"

	"taskpilot/internal/engine"
)

// Bot bridges the Telegram long-poll API and the conversation engine. It
// owns nothing but the translation: updates become engine events, engine
// messages become Telegram sends.
type Bot struct {
	API    *tgbotapi.BotAPI
	Engine *engine.Engine
	Log    *logrus.Logger
}

func New(token string, eng *engine.Engine, log *logrus.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	return &Bot{API: api, Engine: eng, Log: log}, nil
}

// Run consumes updates until the context ends. Updates are handled
// sequentially; per-user ordering is what the session state machine relies
// on.
func (b *Bot) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	u.AllowedUpdates = []string{tgbotapi.UpdateTypeMessage, tgbotapi.UpdateTypeCallbackQuery}
	updates := b.API.GetUpdatesChan(u)

	go func() {
		<-ctx.Done()
		b.API.StopReceivingUpdates()
	}()

	for update := range updates {
		b.handleUpdate(ctx, update)
	}
	return ctx.Err()
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.CallbackQuery != nil:
		b.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil:
		b.handleMessage(ctx, update.Message)
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From == nil {
		return
	}
	ev := engine.Event{
		UserID:      msg.From.ID,
		ChatID:      msg.Chat.ID,
		DisplayName: displayName(msg.From),
	}
	if msg.IsCommand() {
		ev.Kind = engine.KindCommand
		ev.Command = msg.Command()
	} else {
		ev.Kind = engine.KindText
		ev.Text = msg.Text
	}
	b.deliver(b.Engine.HandleEvent(ctx, ev))
}

func (b *Bot) handleCallback(ctx context.Context, cq *tgbotapi.CallbackQuery) {
	// Acknowledge first so the client stops its spinner even when handling
	// fails.
	if _, err := b.API.Request(tgbotapi.NewCallback(cq.ID, "")); err != nil && b.Log != nil {
		b.Log.WithError(err).Warn("callback ack failed")
	}
	if cq.Message == nil {
		return
	}
	cb, err := engine.ParseCallback(cq.Data)
	if err != nil {
		if b.Log != nil {
			b.Log.WithError(err).WithField("user_id", cq.From.ID).Warn("malformed callback data")
		}
		b.deliver([]engine.Message{{ChatID: cq.Message.Chat.ID, Text: "That button didn't work, please try again."}})
		return
	}
	ev := engine.Event{
		UserID:      cq.From.ID,
		ChatID:      cq.Message.Chat.ID,
		DisplayName: displayName(cq.From),
		Kind:        engine.KindCallback,
		Callback:    cb,
	}
	b.deliver(b.Engine.HandleEvent(ctx, ev))
}

func (b *Bot) deliver(msgs []engine.Message) {
	for _, m := range msgs {
		out := tgbotapi.NewMessage(m.ChatID, m.Text)
		if m.Keyboard != nil {
			out.ReplyMarkup = renderKeyboard(m.Keyboard)
		}
		if _, err := b.API.Send(out); err != nil && b.Log != nil {
			b.Log.WithError(err).WithField("chat_id", m.ChatID).Error("message send failed")
		}
	}
}

// Send implements the scheduler's Notifier.
func (b *Bot) Send(chatID int64, text string) error {
	_, err := b.API.Send(tgbotapi.NewMessage(chatID, text))
	return err
}

func renderKeyboard(kb *engine.Keyboard) interface{} {
	if kb.Inline {
		rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(kb.Rows))
		for _, row := range kb.Rows {
			btns := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
			for _, btn := range row {
				btns = append(btns, tgbotapi.NewInlineKeyboardButtonData(btn.Label, btn.Data))
			}
			rows = append(rows, btns)
		}
		return tgbotapi.NewInlineKeyboardMarkup(rows...)
	}
	rows := make([][]tgbotapi.KeyboardButton, 0, len(kb.Rows))
	for _, row := range kb.Rows {
		btns := make([]tgbotapi.KeyboardButton, 0, len(row))
		for _, btn := range row {
			btns = append(btns, tgbotapi.NewKeyboardButton(btn.Label))
		}
		rows = append(rows, btns)
	}
	markup := tgbotapi.NewReplyKeyboard(rows...)
	markup.ResizeKeyboard = true
	markup.OneTimeKeyboard = kb.OneTime
	return markup
}

func displayName(u *tgbotapi.User) string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		name = u.UserName
	}
	return name
}
