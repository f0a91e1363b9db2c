package keyboard

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInlineButtonsRows(t *testing.T) {
	assert.Nil(t, InlineButtonsRows())
	assert.Nil(t, InlineButtonsRows(nil, []InlineBtn{}))

	rm := InlineButtonsRows(
		[]InlineBtn{{Text: "Yes", Unique: "mail_confirm"}, {Text: "No", Unique: "mail_reject"}},
		nil,
		[]InlineBtn{{Text: "06.01.2025", Unique: "mail_start", Data: "2025-01-06"}},
	)
	require.NotNil(t, rm)
	require.Len(t, rm.InlineKeyboard, 2)
	assert.Len(t, rm.InlineKeyboard[0], 2)
	assert.Equal(t, "mail_start", rm.InlineKeyboard[1][0].Unique)
	assert.Equal(t, "2025-01-06", rm.InlineKeyboard[1][0].Data)
}
