package main

import (
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/cliagent/liveview/internal/hostevent"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadHostEvents(t *testing.T) {
	input := strings.Join([]string{
		`{"category":"message","role":"user","text":"hi","session_id":"s1"}`,
		``,
		`not json`,
		`{"category":"operation","operation_type":"command","name":"ls","input":{"cmd":"ls"}}`,
	}, "\n")

	var got []hostevent.Event
	readHostEvents(strings.NewReader(input), func(ev hostevent.Event) bool {
		got = append(got, ev)
		return true
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	require.Len(t, got, 2)
	assert.Equal(t, "hi", got[0].Text)
	assert.Equal(t, "s1", got[0].Session())
	assert.Equal(t, hostevent.CategoryOperation, got[1].Category)
	assert.Equal(t, hostevent.Text(`{"cmd":"ls"}`), got[1].Input)
}
