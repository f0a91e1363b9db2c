package dialog

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/m3rciful/surveybot/core/logger"
	"github.com/m3rciful/surveybot/core/telegram/state"
	"github.com/m3rciful/surveybot/internal/backend"
	"github.com/m3rciful/surveybot/internal/preview"
	"github.com/m3rciful/surveybot/internal/sheet"
)

// MaxUploadSize caps the attachments the bot downloads.
const MaxUploadSize = 20 << 20

var previewKinds = map[backend.Category]preview.Kind{
	backend.CategoryEngineers:  preview.KindEngineers,
	backend.CategoryCases:      preview.KindCases,
	backend.CategoryActivities: preview.KindActivities,
}

// BeginUpload starts the upload flow with the category menu.
func (e *Engine) BeginUpload(ctx context.Context, chatID int64) []Reply {
	e.begin(ctx, chatID, StateAwaitingCategory)
	return []Reply{categoryMenu("Choose what to upload:")}
}

func categoryMenu(text string) Reply {
	rows := make([][]Button, 0, len(backend.Categories))
	for _, c := range backend.Categories {
		rows = append(rows, []Button{{Text: c.Title(), Action: ActionCategory, Payload: string(c)}})
	}
	return Reply{Text: text, Buttons: rows}
}

func (e *Engine) onCategory(ctx context.Context, chatID int64, ev Event) []Reply {
	if ev.Kind != KindCallback {
		return []Reply{categoryMenu("Please choose a category with the buttons:")}
	}
	if ev.Action != ActionCategory {
		return stale()
	}
	cat, ok := backend.ParseCategory(ev.Payload)
	if !ok {
		return []Reply{categoryMenu("Unknown category. Choose what to upload:")}
	}

	if cat == backend.CategoryExport {
		e.finish(ctx, chatID)
		data, err := e.api.Export(ctx)
		if err != nil {
			logger.Warn(ctx, "dialog", "upload.export_failed",
				slog.Int64("chat_id", chatID),
				slog.String("err", err.Error()),
			)
			return []Reply{{Text: "❌ Could not fetch the export: " + reason(err)}}
		}
		name := fmt.Sprintf("export_%s.xlsx", e.now().Format("2006-01-02"))
		return []Reply{{File: &File{Name: name, Data: data, Caption: "📦 Final export"}}}
	}

	e.sessions.SetTemp(chatID, keyCategory, cat)
	e.transition(ctx, chatID, StateAwaitingFile)
	return []Reply{{Text: fmt.Sprintf("%s selected. Send the %s file:", cat.Title(), sheet.Extension)}}
}

func (e *Engine) onFile(ctx context.Context, chatID int64, ev Event) []Reply {
	cat, ok := state.Temp[backend.Category](e.sessions, chatID, keyCategory)
	if !ok {
		e.begin(ctx, chatID, StateAwaitingCategory)
		return []Reply{categoryMenu("The upload draft was lost. Choose what to upload:")}
	}
	if ev.Kind == KindCallback {
		return stale()
	}
	doc := ev.Document
	if ev.Kind != KindDocument || doc == nil {
		return []Reply{{Text: fmt.Sprintf("Please send a %s file.", sheet.Extension)}}
	}
	if !sheet.HasExtension(doc.Name) {
		return []Reply{{Text: fmt.Sprintf("Only %s files are accepted. Send the file again:", sheet.Extension)}}
	}
	if doc.Size > MaxUploadSize {
		return []Reply{{Text: "The file is too large. Send a smaller one:"}}
	}

	data, err := doc.Fetch(ctx)
	if err != nil {
		logger.Warn(ctx, "dialog", "upload.fetch_failed",
			slog.Int64("chat_id", chatID),
			slog.String("err", err.Error()),
		)
		return []Reply{{Text: "❌ Could not download the file. Send it again:"}}
	}
	table, err := sheet.Parse(data)
	if err != nil {
		logger.Info(ctx, "dialog", "upload.parse_failed",
			slog.Int64("chat_id", chatID),
			slog.String("file", doc.Name),
			slog.String("err", err.Error()),
		)
		return []Reply{{Text: "❌ The file could not be read as a spreadsheet. Send another file:"}}
	}
	if missing := sheet.Missing(table, cat.Columns()); len(missing) > 0 {
		return []Reply{{Text: fmt.Sprintf("❌ The file is missing required columns.\n\nRequired: %s\nMissing: %s\n\nFix the file and send it again:",
			strings.Join(cat.Columns(), ", "), strings.Join(missing, ", "))}}
	}

	kind, previewable := previewKinds[cat]
	if !previewable {
		res, err := e.api.Upload(ctx, cat, doc.Name, data)
		e.finish(ctx, chatID)
		return []Reply{RenderUploadResult(res, err)}
	}

	e.sessions.SetTemp(chatID, keyTable, table)
	e.sessions.SetTemp(chatID, keyFile, data)
	e.sessions.SetTemp(chatID, keyFilename, doc.Name)
	e.sessions.SetTemp(chatID, keyPage, 0)
	e.transition(ctx, chatID, StateAwaitingPreviewAction)
	return []Reply{e.previewReply(kind, table, 0, false)}
}

func (e *Engine) previewReply(kind preview.Kind, t preview.Table, page int, edit bool) Reply {
	p := preview.RenderPage(kind, t, page, e.opts.PageSize)
	return Reply{Text: p.Text, HTML: true, Edit: edit, Buttons: previewButtons(p)}
}

// previewButtons shows only the navigation that leads somewhere.
func previewButtons(p preview.Page) [][]Button {
	var nav []Button
	if p.HasPrev() {
		nav = append(nav, Button{Text: "⬅️ Back", Action: ActionPreviewPrev})
	}
	if p.HasNext() {
		nav = append(nav, Button{Text: "Next ➡️", Action: ActionPreviewNext})
	}
	var rows [][]Button
	if len(nav) > 0 {
		rows = append(rows, nav)
	}
	return append(rows, []Button{
		{Text: "✅ Send", Action: ActionPreviewSend},
		{Text: "❌ Don't send", Action: ActionPreviewDrop},
	})
}

func (e *Engine) onPreviewAction(ctx context.Context, chatID int64, ev Event) []Reply {
	if ev.Kind != KindCallback {
		return []Reply{{Text: "Use the buttons under the preview, or send /cancel."}}
	}
	cat, _ := state.Temp[backend.Category](e.sessions, chatID, keyCategory)
	table, ok := state.Temp[preview.Table](e.sessions, chatID, keyTable)
	kind, previewable := previewKinds[cat]
	if !ok || !previewable {
		e.finish(ctx, chatID)
		return []Reply{{Text: "The upload draft was lost. Run /upload again."}}
	}
	page, _ := state.Temp[int](e.sessions, chatID, keyPage)
	total := preview.TotalPages(table.Len(), e.opts.PageSize)

	switch ev.Action {
	case ActionPreviewPrev, ActionPreviewNext:
		next := page + 1
		if ev.Action == ActionPreviewPrev {
			next = page - 1
		}
		next = preview.ClampPage(next, total)
		e.sessions.SetTemp(chatID, keyPage, next)
		return []Reply{e.previewReply(kind, table, next, true)}
	case ActionPreviewSend:
		data, _ := state.Temp[[]byte](e.sessions, chatID, keyFile)
		name, _ := state.Temp[string](e.sessions, chatID, keyFilename)
		res, err := e.api.Upload(ctx, cat, name, data)
		e.finish(ctx, chatID)
		if err != nil {
			logger.Warn(ctx, "dialog", "upload.send_failed",
				slog.Int64("chat_id", chatID),
				slog.String("category", string(cat)),
				slog.String("err", err.Error()),
			)
		}
		return []Reply{RenderUploadResult(res, err)}
	case ActionPreviewDrop:
		e.finish(ctx, chatID)
		return []Reply{{Text: "❌ Upload cancelled.", Edit: true}}
	default:
		return stale()
	}
}
