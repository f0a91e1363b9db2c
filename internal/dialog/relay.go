package dialog

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/m3rciful/surveybot/core/telegram/format"
	"github.com/m3rciful/surveybot/internal/backend"
)

const msgTryLater = "❌ The server sent an unexpected response. Please try again later."

// RenderUploadResult turns the outcome of an upload into one HTML message.
func RenderUploadResult(res *backend.UploadResult, err error) Reply {
	switch {
	case errors.Is(err, backend.ErrUndecodable):
		return Reply{Text: msgTryLater}
	case err != nil:
		return Reply{Text: "❌ Upload failed: " + reason(err)}
	case res == nil:
		return Reply{Text: msgTryLater}
	}

	var b strings.Builder
	switch res.Status {
	case http.StatusCreated:
		b.WriteString("✅ " + format.Bold(format.Or(res.Message, "Data uploaded successfully.")))
		if len(res.NewUsers) > 0 {
			b.WriteString("\n\n<b>New users:</b>")
			for _, u := range res.NewUsers {
				name := strings.TrimSpace(u.LastName + " " + u.FirstName)
				fmt.Fprintf(&b, "\n• %s (%s)", format.Escape(name), format.Escape(u.Email))
			}
		}
	case http.StatusMultiStatus:
		b.WriteString("⚠️ " + format.Bold(format.Or(res.Message, "Data uploaded with issues.")))
		section(&b, "Users without an account", res.MissingUsers)
		if len(res.SerializationErrors) > 0 {
			b.WriteString("\n\n<b>Row errors:</b>")
			for _, re := range res.SerializationErrors {
				fmt.Fprintf(&b, "\n• Row %d: %s", re.Row, format.Escape(re.Errors.String()))
			}
		}
		section(&b, "Activities without cases", res.ActivitiesWithoutCases)
	case http.StatusBadRequest:
		b.WriteString("❌ <b>Validation failed</b>")
		for _, fe := range res.FieldErrors {
			b.WriteString("\n• " + format.Escape(fe.String()))
		}
	default:
		msg := res.Error
		if msg == "" {
			msg = res.Message
		}
		if msg == "" {
			msg = fmt.Sprintf("Upload failed with status %d.", res.Status)
		}
		b.WriteString("❌ " + format.Escape(msg))
	}
	return Reply{Text: b.String(), HTML: true}
}

func section(b *strings.Builder, title string, items backend.Items) {
	if len(items) == 0 {
		return
	}
	b.WriteString("\n\n<b>" + title + ":</b>\n" + format.Bullets(items))
}
