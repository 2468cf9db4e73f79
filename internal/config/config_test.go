package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnvDefaults(t *testing.T) {
	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.True(t, cfg.Match.StrictScore)
	assert.True(t, cfg.BracketReset)
	assert.Equal(t, 15*time.Minute, cfg.Match.CheckInOffset)
	assert.Equal(t, 1, cfg.Match.ForfeitWin)
	assert.Equal(t, 0, cfg.Match.ForfeitLoss)
	assert.Equal(t, "@every 30s", cfg.SweepSchedule)
	assert.Equal(t, []string{"*"}, cfg.CORSOrigins)
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("STRICT_SCORE_AGREEMENT", "false")
	t.Setenv("RESULT_WINDOW", "30m")
	t.Setenv("FORFEIT_SCORE", "3-0")
	t.Setenv("PUBSUB_PROJECT", "proj")
	t.Setenv("PUBSUB_TOPIC", "bracket-events")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example,")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, "9000", cfg.Port)
	assert.False(t, cfg.Match.StrictScore)
	assert.Equal(t, 30*time.Minute, cfg.Match.ResultWindow)
	assert.Equal(t, 3, cfg.Match.ForfeitWin)
	assert.Equal(t, "bracket-events", cfg.PubSub.Topic)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)
}

func TestFromEnvRejectsInvalidValues(t *testing.T) {
	testCases := []struct {
		key   string
		value string
	}{
		{key: "STRICT_SCORE_AGREEMENT", value: "maybe"},
		{key: "CHECK_IN_WINDOW", value: "ten minutes"},
		{key: "FORFEIT_SCORE", value: "win"},
		{key: "LOG_LEVEL", value: "chatty"},
		{key: "PUBSUB_PROJECT", value: "proj"},
	}

	for _, tc := range testCases {
		t.Run(tc.key, func(t *testing.T) {
			t.Setenv(tc.key, tc.value)
			_, err := FromEnv()
			assert.ErrorContains(t, err, tc.key)
		})
	}
}

func TestParseForfeitScore(t *testing.T) {
	win, loss, err := parseForfeitScore("2-2")
	require.NoError(t, err)
	assert.Equal(t, 1, win)
	assert.Equal(t, 0, loss)

	_, _, err = parseForfeitScore("-1-0")
	assert.Error(t, err)
}
