package db

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScriptsUseConfiguredFeedChannel(t *testing.T) {
	scripts, err := Scripts("stairs")
	require.NoError(t, err)
	require.NotEmpty(t, scripts)

	var notifies int
	for _, s := range scripts {
		assert.NotContains(t, s.SQL, feedChannelPlaceholder, s.Name)
		assert.NotContains(t, s.SQL, "'"+DefaultFeedChannel+"'", s.Name)
		notifies += strings.Count(s.SQL, "pg_notify('stairs',")
	}
	assert.Equal(t, 2, notifies, "оба триггера должны слать в настроенный канал")
}

func TestScriptsFallBackToDefaultChannel(t *testing.T) {
	scripts, err := Scripts("")
	require.NoError(t, err)

	for _, s := range scripts {
		assert.NotContains(t, s.SQL, feedChannelPlaceholder, s.Name)
	}
	assert.Contains(t, scripts[0].SQL, "pg_notify('"+DefaultFeedChannel+"',")
}

func TestRenderQuotesChannel(t *testing.T) {
	got := render("PERFORM pg_notify({{feed_channel}}, x)", "it's")
	assert.Equal(t, "PERFORM pg_notify('it''s', x)", got)
}
