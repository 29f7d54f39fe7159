package middleware

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"
)

func TestRateLimiterSlidingWindow(t *testing.T) {
	clk := clock.NewMock()
	rl := NewRateLimiter(2, time.Minute, clk)
	defer rl.Close()

	require.True(t, rl.Allow(1))
	require.True(t, rl.Allow(1))
	require.False(t, rl.Allow(1))
	require.True(t, rl.Allow(2), "лимит считается на пользователя")

	clk.Add(time.Minute + time.Second)
	require.True(t, rl.Allow(1))
}

func TestRedactDropsArguments(t *testing.T) {
	require.Equal(t, "/signin …", redact("/signin neo@matrix.io redpill"))
	require.Equal(t, "/me", redact("/me"))
	require.Len(t, []rune(redact(string(make([]rune, 80)))), maxLoggedText+3)
}

func TestRecoverFromPanic(t *testing.T) {
	require.NotPanics(t, func() {
		defer RecoverFromPanic()
		panic("boom")
	})
}
