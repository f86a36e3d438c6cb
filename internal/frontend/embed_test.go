package frontend

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderDefaults(t *testing.T) {
	doc, err := Render(Options{})
	require.NoError(t, err)

	html := string(doc)
	assert.Contains(t, html, "<title>"+DefaultTitle+"</title>")
	assert.Contains(t, html, "new EventSource('/sse')")
	assert.Regexp(t, `MULTI_SOURCE_MODE =\s*false\s*;`, html)
	assert.Contains(t, html, "#1E1E1E")
}

func TestRenderMultiSource(t *testing.T) {
	doc, err := Render(Options{Title: "Agents", MultiSource: true})
	require.NoError(t, err)

	html := string(doc)
	assert.Contains(t, html, "<title>Agents</title>")
	assert.Regexp(t, `MULTI_SOURCE_MODE =\s*true\s*;`, html)
	assert.Contains(t, html, `"claude":"#CC785C"`)
}

func TestRenderEscapesTitle(t *testing.T) {
	doc, err := Render(Options{Title: "<script>alert(1)</script>"})
	require.NoError(t, err)
	assert.False(t, strings.Contains(string(doc), "<title><script>"))
}

func TestReconnectPolicyInScript(t *testing.T) {
	doc, err := Render(Options{})
	require.NoError(t, err)

	html := string(doc)
	assert.Contains(t, html, "MAX_ATTEMPTS = 10")
	assert.Contains(t, html, "Math.min(STEP_MS * attempts, MAX_DELAY_MS)")
}
