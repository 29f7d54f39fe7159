package console

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

type echoHandler struct {
	seen []string
}

func (h *echoHandler) Handle(_ context.Context, text string) string {
	h.seen = append(h.seen, text)
	return "ok " + text
}

func TestRunPrefixesCommands(t *testing.T) {
	h := &echoHandler{}
	var out bytes.Buffer

	in := strings.NewReader("me\n\n!games\nexit\nhelp\n")
	require.NoError(t, Run(context.Background(), h, in, &out))

	require.Equal(t, []string{"/me", "!games"}, h.seen)
	require.Contains(t, out.String(), "ok /me")
	require.Contains(t, out.String(), "ok !games")
}

func TestRunStopsAtEOF(t *testing.T) {
	h := &echoHandler{}
	var out bytes.Buffer

	require.NoError(t, Run(context.Background(), h, strings.NewReader("/me"), &out))
	require.Equal(t, []string{"/me"}, h.seen)
}

type panicHandler struct {
	calls int
}

func (h *panicHandler) Handle(_ context.Context, text string) string {
	h.calls++
	if text == "/boom" {
		panic("boom")
	}
	return "ok " + text
}

func TestRunSurvivesHandlerPanic(t *testing.T) {
	h := &panicHandler{}
	var out bytes.Buffer

	in := strings.NewReader("boom\nme\n")
	require.NotPanics(t, func() {
		require.NoError(t, Run(context.Background(), h, in, &out))
	})

	require.Equal(t, 2, h.calls)
	require.Contains(t, out.String(), panicReply)
	require.Contains(t, out.String(), "ok /me")
}
