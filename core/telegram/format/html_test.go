package format

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTMLFragments(t *testing.T) {
	assert.Equal(t, "<b>a &lt;b&gt;</b>", Bold("a <b>"))
	assert.Equal(t, "<i>x&amp;y</i>", Italic("x&y"))
	assert.Equal(t, "<b>Status:</b> &lt;done&gt;", Field("Status", "<done>"))
	assert.Equal(t, "• a\n• &lt;b&gt;", Bullets([]string{"a", "<b>"}))
	assert.Empty(t, Bullets(nil))
	assert.Equal(t, "dflt", Or("  ", "dflt"))
	assert.Equal(t, "v", Or("v", "dflt"))
}
