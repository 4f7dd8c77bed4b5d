package chat_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/oskour/internal/chat"
	"github.com/raphaelgruber/oskour/internal/client"
	"github.com/raphaelgruber/oskour/internal/mockapi"
	"github.com/raphaelgruber/oskour/internal/models"
	"github.com/raphaelgruber/oskour/internal/session"
	"github.com/raphaelgruber/oskour/internal/storage"
)

// fakeAPI records calls and answers with configurable functions.
type fakeAPI struct {
	mu        sync.Mutex
	send      func(req client.ChatRequest) (*client.ChatResponse, error)
	clearErr  error
	sent      []client.ChatRequest
	cleared   []string
	feedback  []models.Feedback
	trending  []models.TrendingQuestion
	refreshes int
}

func (f *fakeAPI) SendMessage(_ context.Context, req client.ChatRequest) (*client.ChatResponse, error) {
	f.mu.Lock()
	f.sent = append(f.sent, req)
	send := f.send
	f.mu.Unlock()
	return send(req)
}

func (f *fakeAPI) ClearHistory(_ context.Context, sessionID string) (*client.Ack, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleared = append(f.cleared, sessionID)
	if f.clearErr != nil {
		return nil, f.clearErr
	}
	return &client.Ack{Success: true}, nil
}

func (f *fakeAPI) SubmitFeedback(_ context.Context, fb models.Feedback) (*client.Ack, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.feedback = append(f.feedback, fb)
	return &client.Ack{Success: true}, nil
}

func (f *fakeAPI) TrendingQuestions(_ context.Context, _ int, _ bool, _ models.SourceScope) []models.TrendingQuestion {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshes++
	return append([]models.TrendingQuestion(nil), f.trending...)
}

func (f *fakeAPI) refreshCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refreshes
}

func intPtr(i int) *int { return &i }

func reply(parts ...string) func(client.ChatRequest) (*client.ChatResponse, error) {
	var id int
	var mu sync.Mutex
	return func(client.ChatRequest) (*client.ChatResponse, error) {
		mu.Lock()
		id++
		n := id
		mu.Unlock()
		resp := &client.ChatResponse{Answer: parts[0], MessageID: intPtr(n)}
		if len(parts) > 1 {
			resp.MessageParts = parts
		}
		return resp, nil
	}
}

func noDelay(context.Context, time.Duration) error { return nil }

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newController(api chat.API, opts ...chat.Option) (*chat.Controller, *session.Provider) {
	sessions := session.NewProvider(storage.NewMemoryStore(), quietLogger())
	opts = append([]chat.Option{chat.WithDelay(noDelay), chat.WithLogger(quietLogger())}, opts...)
	return chat.New(api, sessions, chat.DefaultConfig(chat.VariantUser), opts...), sessions
}

func TestSendSingleAnswer(t *testing.T) {
	api := &fakeAPI{send: reply("Bonjour !")}
	var events []chat.Event
	var mu sync.Mutex
	c, sessions := newController(api, chat.OnChange(func(e chat.Event) {
		mu.Lock()
		events = append(events, e)
		mu.Unlock()
	}))

	require.NoError(t, c.Send(context.Background(), "  Salut  "))
	c.Wait()

	msgs := c.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, models.ChatMessage{Role: models.RoleUser, Content: "Salut"}, msgs[0])
	assert.Equal(t, models.RoleAssistant, msgs[1].Role)
	assert.Equal(t, "Bonjour !", msgs[1].Content)
	assert.True(t, msgs[1].IsLastInSequence)
	assert.Equal(t, 1, *msgs[1].MessageID)
	assert.False(t, c.Loading())

	require.Len(t, api.sent, 1)
	assert.Equal(t, sessions.Current(), api.sent[0].SessionID)
	assert.Equal(t, models.SourceUser, api.sent[0].Source)
	assert.Equal(t, 1, api.refreshCount(), "trending refreshed after the exchange")

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, events, chat.EventFocusInput)
}

func TestSendMultiPartReply(t *testing.T) {
	api := &fakeAPI{send: reply("Je peux vous aider avec Artis.", "Vérifiez votre connexion.")}

	var c *chat.Controller
	var delays []time.Duration
	var duringDelay []models.ChatMessage
	c, _ = newController(api,
		chat.WithJitter(func() float64 { return 0.5 }),
		chat.WithDelay(func(_ context.Context, d time.Duration) error {
			delays = append(delays, d)
			duringDelay = c.Messages()
			return nil
		}),
	)

	require.NoError(t, c.Send(context.Background(), "Problème avec Artis"))
	c.Wait()

	require.Len(t, delays, 1, "one delay between two parts")
	assert.Equal(t, 750*time.Millisecond, delays[0])

	require.Len(t, duringDelay, 3)
	assert.Equal(t, "Je peux vous aider avec Artis.", duringDelay[1].Content)
	assert.True(t, duringDelay[2].IsLoading, "typing indicator shown while waiting")

	msgs := c.Messages()
	require.Len(t, msgs, 3)
	assert.False(t, msgs[1].IsLastInSequence)
	assert.True(t, msgs[2].IsLastInSequence)
	assert.Equal(t, "Vérifiez votre connexion.", msgs[2].Content)
	assert.Equal(t, *msgs[1].MessageID, *msgs[2].MessageID)
	assert.False(t, c.Loading())
}

func TestTypingDelayRange(t *testing.T) {
	for _, jitter := range []float64{0, 0.25, 0.999} {
		api := &fakeAPI{send: reply("a", "b", "c")}
		var got []time.Duration
		c, _ := newController(api,
			chat.WithJitter(func() float64 { return jitter }),
			chat.WithDelay(func(_ context.Context, d time.Duration) error {
				got = append(got, d)
				return nil
			}),
		)
		require.NoError(t, c.Send(context.Background(), "q"))
		c.Wait()

		require.Len(t, got, 2)
		for _, d := range got {
			assert.GreaterOrEqual(t, d, 500*time.Millisecond)
			assert.LessOrEqual(t, d, time.Second)
		}
	}
}

func TestHistoryShape(t *testing.T) {
	answers := [][]string{{"un"}, {"deux", "trois"}, {"quatre"}, {"cinq", "six", "sept"}}
	i := 0
	api := &fakeAPI{send: func(client.ChatRequest) (*client.ChatResponse, error) {
		parts := answers[i]
		i++
		return &client.ChatResponse{Answer: parts[0], MessageParts: parts, MessageID: intPtr(i)}, nil
	}}
	c, _ := newController(api)

	ctx := context.Background()
	extra := 0
	for _, parts := range answers {
		require.NoError(t, c.Send(ctx, "question"))
		extra += len(parts) - 1
	}
	c.Wait()

	msgs := c.Messages()
	assert.Len(t, msgs, 2*len(answers)+extra)

	lastPerTurn := 0
	for j, m := range msgs {
		assert.False(t, m.IsLoading)
		if m.Role == models.RoleUser {
			if j > 0 {
				assert.True(t, msgs[j-1].IsLastInSequence, "each turn ends on its last part")
			}
			continue
		}
		if m.IsLastInSequence {
			lastPerTurn++
		}
	}
	assert.Equal(t, len(answers), lastPerTurn, "exactly one last part per assistant turn")
}

func TestSendFailure(t *testing.T) {
	api := &fakeAPI{send: func(client.ChatRequest) (*client.ChatResponse, error) {
		return nil, &client.NetworkError{Op: "chat", Err: errors.New("connection refused")}
	}}
	var notified []error
	c, _ := newController(api, chat.WithNotifier(func(err error) { notified = append(notified, err) }))

	err := c.Send(context.Background(), "Bonjour")
	require.Error(t, err)
	assert.ErrorIs(t, err, client.ErrNetwork)
	c.Wait()

	msgs := c.Messages()
	require.Len(t, msgs, 1, "no partial assistant message")
	assert.Equal(t, models.RoleUser, msgs[0].Role)
	assert.False(t, c.Loading())
	assert.Len(t, notified, 1)
	assert.Equal(t, 1, api.refreshCount(), "refresh runs even after a failure")
}

func TestSendRejectsEmptyAndBusy(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	api := &fakeAPI{send: func(client.ChatRequest) (*client.ChatResponse, error) {
		close(started)
		<-release
		return &client.ChatResponse{Answer: "ok", MessageID: intPtr(1)}, nil
	}}
	c, _ := newController(api)
	ctx := context.Background()

	assert.ErrorIs(t, c.Send(ctx, "   "), chat.ErrEmptyMessage)
	assert.Empty(t, c.Messages())

	done := make(chan error, 1)
	go func() { done <- c.Send(ctx, "first") }()
	<-started

	assert.True(t, c.Loading())
	assert.ErrorIs(t, c.Send(ctx, "second"), chat.ErrBusy)
	require.Len(t, c.Messages(), 2, "user message plus loading indicator")

	close(release)
	require.NoError(t, <-done)
	c.Wait()
	assert.Len(t, c.Messages(), 2)
}

func TestNewConversationDropsLateReply(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	api := &fakeAPI{send: func(client.ChatRequest) (*client.ChatResponse, error) {
		close(started)
		<-release
		return &client.ChatResponse{Answer: "trop tard", MessageID: intPtr(1)}, nil
	}}
	c, _ := newController(api)
	ctx := context.Background()

	done := make(chan error, 1)
	go func() { done <- c.Send(ctx, "question") }()
	<-started

	require.NoError(t, c.NewConversation(ctx))
	assert.Empty(t, c.Messages())
	assert.False(t, c.Loading(), "input unlocked for the new conversation")

	close(release)
	require.NoError(t, <-done)
	c.Wait()
	assert.Empty(t, c.Messages(), "late reply is not shown")
}

func TestNewConversationResetsSession(t *testing.T) {
	api := &fakeAPI{send: reply("ok")}
	c, sessions := newController(api)
	ctx := context.Background()

	require.NoError(t, c.Send(ctx, "Bonjour"))
	c.Wait()
	previous := sessions.Current()

	require.NoError(t, c.NewConversation(ctx))
	assert.Empty(t, c.Messages())
	assert.NotEqual(t, previous, sessions.Current())
	assert.Equal(t, []string{previous}, api.cleared)
}

func TestNewConversationBackendFailure(t *testing.T) {
	api := &fakeAPI{send: reply("ok"), clearErr: &client.ServerError{Op: "clear_history", Status: 500}}
	var notified int
	c, sessions := newController(api, chat.WithNotifier(func(error) { notified++ }))
	ctx := context.Background()

	require.NoError(t, c.Send(ctx, "Bonjour"))
	c.Wait()
	previous := sessions.Current()

	err := c.NewConversation(ctx)
	assert.ErrorIs(t, err, client.ErrServer)
	assert.Equal(t, 1, notified)
	assert.Empty(t, c.Messages(), "local reset stands")
	assert.NotEqual(t, previous, sessions.Current())
}

func TestSubmitFeedback(t *testing.T) {
	api := &fakeAPI{send: func(client.ChatRequest) (*client.ChatResponse, error) {
		return &client.ChatResponse{Answer: "sans id"}, nil
	}}
	c, _ := newController(api)
	ctx := context.Background()

	require.NoError(t, c.Send(ctx, "Bonjour"))
	c.Wait()

	_, ok := c.RateableIndex()
	assert.False(t, ok)

	err := c.SubmitFeedback(ctx, 1, models.RatingPositive, nil)
	var verr *client.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "message_id", verr.Field)

	assert.ErrorIs(t, c.SubmitFeedback(ctx, 0, models.RatingPositive, nil), client.ErrValidation, "user messages cannot be rated")
	assert.ErrorIs(t, c.SubmitFeedback(ctx, 42, models.RatingPositive, nil), client.ErrValidation)
	assert.Empty(t, api.feedback, "no network call")

	api.send = reply("avec id", "suite")
	require.NoError(t, c.Send(ctx, "Encore"))
	c.Wait()

	idx, ok := c.RateableIndex()
	require.True(t, ok)
	assert.Equal(t, 4, idx, "last part of the latest reply")

	comment := "clair"
	require.NoError(t, c.SubmitFeedback(ctx, idx, models.RatingNegative, &comment))
	require.Len(t, api.feedback, 1)
	assert.Equal(t, models.Feedback{MessageID: 1, Rating: models.RatingNegative, Comment: &comment}, api.feedback[0])
}

func TestRefreshTrendingReplacesWholesale(t *testing.T) {
	api := &fakeAPI{trending: []models.TrendingQuestion{{Question: "a", Count: 3}, {Question: "b", Count: 1}}}
	c, _ := newController(api)
	ctx := context.Background()

	c.RefreshTrending(ctx)
	assert.Len(t, c.Trending(), 2)

	api.mu.Lock()
	api.trending = nil
	api.mu.Unlock()
	c.RefreshTrending(ctx)
	assert.Empty(t, c.Trending())
}

func TestRunRefreshesOnInterval(t *testing.T) {
	api := &fakeAPI{}
	sessions := session.NewProvider(storage.NewMemoryStore(), quietLogger())
	cfg := chat.DefaultConfig(chat.VariantAdmin)
	cfg.TrendingInterval = 10 * time.Millisecond
	c := chat.New(api, sessions, cfg, chat.WithLogger(quietLogger()))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return api.refreshCount() >= 3 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	<-done
}

func TestScenarioAgainstMockBackend(t *testing.T) {
	backend := mockapi.New(quietLogger())
	srv := httptest.NewServer(backend.Handler())
	defer srv.Close()

	api := client.New(srv.URL, client.WithLogger(quietLogger()))
	c, _ := newController(api)
	ctx := context.Background()

	require.NoError(t, c.Send(ctx, "Problème avec Artis"))
	c.Wait()

	msgs := c.Messages()
	require.Len(t, msgs, 3)
	assert.Contains(t, msgs[1].Content, "Problème avec Artis")
	assert.Contains(t, msgs[2].Content, "Artis")
	assert.True(t, msgs[2].IsLastInSequence)

	trending := c.Trending()
	require.Len(t, trending, 1)
	assert.Equal(t, "Problème avec Artis", trending[0].Question)

	idx, ok := c.RateableIndex()
	require.True(t, ok)
	require.NoError(t, c.SubmitFeedback(ctx, idx, models.RatingPositive, nil))
	assert.Len(t, backend.Feedback(), 1)

	require.NoError(t, c.NewConversation(ctx))
	assert.Empty(t, c.Messages())
}

func TestDefaultConfig(t *testing.T) {
	tests := []struct {
		variant chat.Variant
		source  models.SourceScope
	}{
		{chat.VariantUser, models.SourceUser},
		{chat.VariantTechnician, models.SourceAdmin},
		{chat.VariantAdmin, models.SourceAll},
	}
	for _, tt := range tests {
		cfg := chat.DefaultConfig(tt.variant)
		assert.Equal(t, tt.source, cfg.Source, tt.variant)
		assert.NotEmpty(t, cfg.TrendingTitle)
		assert.Equal(t, 5*time.Minute, cfg.TrendingInterval)
	}

	_, ok := chat.ParseVariant("guest")
	assert.False(t, ok)
}
