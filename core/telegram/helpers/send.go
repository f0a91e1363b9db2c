package helpers

import (
	"bytes"
	"sync/atomic"

	"github.com/m3rciful/surveybot/core/telegram/sender"

	tele "gopkg.in/telebot.v4"
)

var dispatcher atomic.Pointer[sender.Dispatcher]

// SetDispatcher routes the send helpers through d; nil sends inline.
func SetDispatcher(d *sender.Dispatcher) {
	dispatcher.Store(d)
}

func enqueue(c tele.Context, action string, run func() error) error {
	d := dispatcher.Load()
	if d == nil {
		return run()
	}
	var chatID int64
	if chat := c.Chat(); chat != nil {
		chatID = chat.ID
	}
	if err := d.Enqueue(BuildContext(c), chatID, action, run); err != nil {
		// Enqueue fails only once the dispatcher is closed.
		return run()
	}
	return nil
}

// SendText sends plain text.
func SendText(c tele.Context, text string, opts ...*tele.SendOptions) error {
	return enqueue(c, "send.text", func() error {
		if len(opts) > 0 && opts[0] != nil {
			return c.Send(text, opts[0])
		}
		return c.Send(text)
	})
}

// SendHTML sends text in HTML parse mode with an optional keyboard.
func SendHTML(c tele.Context, text string, markup ...*tele.ReplyMarkup) error {
	opts := &tele.SendOptions{ParseMode: tele.ModeHTML}
	if len(markup) > 0 {
		opts.ReplyMarkup = markup[0]
	}
	return SendText(c, text, opts)
}

// EditOrSendHTML edits the message carrying the pressed button, or sends a
// new one when there is nothing to edit.
func EditOrSendHTML(c tele.Context, text string, html bool, markup ...*tele.ReplyMarkup) error {
	opts := &tele.SendOptions{}
	if html {
		opts.ParseMode = tele.ModeHTML
	}
	if len(markup) > 0 {
		opts.ReplyMarkup = markup[0]
	}
	return enqueue(c, "edit.text", func() error {
		return c.EditOrSend(text, opts)
	})
}

// SendDocument uploads data as a named file.
func SendDocument(c tele.Context, name string, data []byte, caption string) error {
	return enqueue(c, "send.document", func() error {
		return c.Send(&tele.Document{
			File:     tele.FromReader(bytes.NewReader(data)),
			FileName: name,
			Caption:  caption,
		})
	})
}
