package cli

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/oskour/internal/chat"
	"github.com/raphaelgruber/oskour/internal/config"
	"github.com/raphaelgruber/oskour/internal/models"
	"github.com/raphaelgruber/oskour/internal/storage"
)

func TestBuildFeedback(t *testing.T) {
	fb, err := buildFeedback("12", true, "")
	require.NoError(t, err)
	assert.Equal(t, 12, fb.MessageID)
	assert.Equal(t, models.RatingPositive, fb.Rating)
	assert.Nil(t, fb.Comment)

	fb, err = buildFeedback("3", false, "pas clair")
	require.NoError(t, err)
	assert.Equal(t, models.RatingNegative, fb.Rating)
	require.NotNil(t, fb.Comment)
	assert.Equal(t, "pas clair", *fb.Comment)

	_, err = buildFeedback("abc", true, "")
	assert.Error(t, err)
	_, err = buildFeedback("-1", true, "")
	assert.Error(t, err)
}

func TestParseStatusChanges(t *testing.T) {
	changes, err := parseStatusChanges([]string{"SAS", "incident", "webex", "OK"})
	require.NoError(t, err)
	assert.Equal(t, map[string]models.Status{
		"sas":   models.StatusIncident,
		"webex": models.StatusOK,
	}, changes)

	_, err = parseStatusChanges([]string{"sas"})
	assert.Error(t, err)

	_, err = parseStatusChanges([]string{"sas", "down"})
	assert.Error(t, err)
}

func TestIsFullScreen(t *testing.T) {
	parent := &cobra.Command{Use: "parent", Annotations: map[string]string{fullScreen: ""}}
	child := &cobra.Command{Use: "child"}
	parent.AddCommand(child)

	assert.True(t, isFullScreen(parent))
	assert.True(t, isFullScreen(child))
	assert.False(t, isFullScreen(&cobra.Command{Use: "plain"}))
	assert.True(t, isFullScreen(tickerCmd))
	assert.False(t, isFullScreen(statsCmd))
}

func TestOpenStore(t *testing.T) {
	ctx := context.Background()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	t.Run("memory", func(t *testing.T) {
		store, err := openStore(ctx, config.Config{Store: config.StoreMemory}, log)
		require.NoError(t, err)
		defer store.Close()
		assert.IsType(t, &storage.MemoryStore{}, store)
	})

	t.Run("file", func(t *testing.T) {
		store, err := openStore(ctx, config.Config{Store: config.StoreFile, StateDir: t.TempDir()}, log)
		require.NoError(t, err)
		defer store.Close()
		assert.IsType(t, &storage.FileStore{}, store)

		require.NoError(t, store.Set(ctx, storage.KeySessionID, "abc"))
		val, ok, err := store.Get(ctx, storage.KeySessionID)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "abc", val)
	})

	t.Run("sqlite", func(t *testing.T) {
		store, err := openStore(ctx, config.Config{Store: config.StoreSQLite, StateDir: t.TempDir()}, log)
		require.NoError(t, err)
		defer store.Close()
		assert.IsType(t, &storage.SQLiteStore{}, store)
	})
}

func TestChatConfigAppliesSettings(t *testing.T) {
	saved := cfg
	defer func() { cfg = saved }()

	cfg = config.Config{KnowledgeBase: "kb", Model: "m", TrendingLimit: 7}
	cc := chatConfig(chat.VariantAdmin)
	assert.Equal(t, "kb", cc.KnowledgeBase)
	assert.Equal(t, "m", cc.Model)
	assert.Equal(t, 7, cc.TrendingLimit)
	assert.Equal(t, models.SourceAll, cc.Source)
	assert.Equal(t, "Tendances globales", cc.TrendingTitle)
}

func TestTranscriptPrinter(t *testing.T) {
	id := 4
	var msgs []models.ChatMessage
	var out bytes.Buffer
	p := &transcriptPrinter{
		out:      &out,
		render:   func(s string) string { return s },
		messages: func() []models.ChatMessage { return msgs },
	}

	msgs = []models.ChatMessage{
		{Role: models.RoleUser, Content: "bonjour"},
		{Role: models.RoleAssistant, IsLoading: true},
	}
	p.onChange(chat.EventMessages)
	assert.Empty(t, out.String(), "user input and loading indicator are not echoed")

	msgs = []models.ChatMessage{
		{Role: models.RoleUser, Content: "bonjour"},
		{Role: models.RoleAssistant, Content: "première partie", MessageID: &id},
		{Role: models.RoleAssistant, IsLoading: true},
	}
	p.onChange(chat.EventMessages)
	p.onChange(chat.EventLoading)
	assert.Equal(t, "oskour › première partie\n", out.String())

	msgs = append(msgs[:2], models.ChatMessage{Role: models.RoleAssistant, Content: "seconde partie", MessageID: &id, IsLastInSequence: true})
	p.onChange(chat.EventMessages)
	p.onChange(chat.EventMessages)
	assert.Equal(t, 1, bytes.Count(out.Bytes(), []byte("seconde partie")))
	assert.Contains(t, out.String(), "/up ou /down")

	out.Reset()
	msgs = nil
	p.onChange(chat.EventMessages)
	msgs = []models.ChatMessage{
		{Role: models.RoleUser, Content: "encore"},
		{Role: models.RoleAssistant, Content: "nouvelle réponse"},
	}
	p.onChange(chat.EventMessages)
	assert.Equal(t, "oskour › nouvelle réponse\n", out.String())
}
