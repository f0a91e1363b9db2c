package bot

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/m3rciful/surveybot/core/logger"
	"github.com/m3rciful/surveybot/core/telegram/callbacks"
	tghelpers "github.com/m3rciful/surveybot/core/telegram/helpers"
	"github.com/m3rciful/surveybot/core/telegram/keyboard"
	"github.com/m3rciful/surveybot/core/telegram/state"
	"github.com/m3rciful/surveybot/internal/dialog"

	tele "gopkg.in/telebot.v4"
)

// send delivers replies in order. Edits fall back to a new message when the
// update carries nothing to edit.
func (b *Bot) send(c tele.Context, replies []dialog.Reply) error {
	for _, r := range replies {
		if err := b.sendOne(c, r); err != nil {
			logger.Warn(tghelpers.BuildContext(c), "tg", "reply.failed",
				slog.String("err", err.Error()),
			)
			return err
		}
	}
	return nil
}

func (b *Bot) sendOne(c tele.Context, r dialog.Reply) error {
	if r.File != nil {
		return tghelpers.SendDocument(c, r.File.Name, r.File.Data, r.File.Caption)
	}
	rm := markup(r.Buttons)
	if r.Edit && c.Callback() != nil {
		return tghelpers.EditOrSendHTML(c, r.Text, r.HTML, rm)
	}
	if r.HTML {
		return tghelpers.SendHTML(c, r.Text, rm)
	}
	if rm != nil {
		return tghelpers.SendText(c, r.Text, &tele.SendOptions{ReplyMarkup: rm})
	}
	return tghelpers.SendText(c, r.Text)
}

func markup(rows [][]dialog.Button) *tele.ReplyMarkup {
	if len(rows) == 0 {
		return nil
	}
	out := make([][]keyboard.InlineBtn, 0, len(rows))
	for _, row := range rows {
		btns := make([]keyboard.InlineBtn, 0, len(row))
		for _, bt := range row {
			btns = append(btns, keyboard.InlineBtn{Text: bt.Text, Unique: bt.Action, Data: bt.Payload})
		}
		out = append(out, btns)
	}
	return keyboard.InlineButtonsRows(out...)
}

// onAction feeds a dialog button press to the engine.
func (b *Bot) onAction(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	ev := dialog.Event{
		Kind:    dialog.KindCallback,
		Action:  callbacks.CallbackKey(c),
		Payload: callbacks.CallbackPayload(c),
	}
	return b.send(c, b.engine.Handle(ctx, state.KeyOf(c), ev))
}

// onMessage feeds text and documents of a chat inside a flow to the engine.
func (b *Bot) onMessage(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	return b.send(c, b.engine.Handle(ctx, state.KeyOf(c), messageEvent(c)))
}

func messageEvent(c tele.Context) dialog.Event {
	msg := c.Message()
	if msg == nil || msg.Document == nil {
		return dialog.Event{Kind: dialog.KindText, Text: c.Text()}
	}
	doc := msg.Document
	return dialog.Event{Kind: dialog.KindDocument, Document: &dialog.Document{
		Name: doc.FileName,
		Size: doc.FileSize,
		Fetch: func(context.Context) ([]byte, error) {
			rc, err := c.Bot().File(&doc.File)
			if err != nil {
				return nil, fmt.Errorf("download %s: %w", doc.FileName, err)
			}
			defer rc.Close()
			data, err := io.ReadAll(io.LimitReader(rc, dialog.MaxUploadSize+1))
			if err != nil {
				return nil, fmt.Errorf("read %s: %w", doc.FileName, err)
			}
			if len(data) > dialog.MaxUploadSize {
				return nil, fmt.Errorf("%s exceeds %d bytes", doc.FileName, dialog.MaxUploadSize)
			}
			return data, nil
		},
	}}
}
