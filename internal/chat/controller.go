// Package chat implements the chat session controller: message sequencing, the loading
// indicator, multi-part replies, feedback and trending refresh.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/raphaelgruber/oskour/internal/client"
	"github.com/raphaelgruber/oskour/internal/models"
)

var (
	// ErrBusy is returned by Send while a previous send is still in flight.
	ErrBusy = errors.New("a message is already being answered")

	// ErrEmptyMessage is returned by Send for blank input.
	ErrEmptyMessage = errors.New("message is empty")
)

// refreshTimeout bounds background trending refreshes.
const refreshTimeout = 30 * time.Second

// API is the part of the backend client the controller uses.
type API interface {
	SendMessage(ctx context.Context, req client.ChatRequest) (*client.ChatResponse, error)
	ClearHistory(ctx context.Context, sessionID string) (*client.Ack, error)
	SubmitFeedback(ctx context.Context, fb models.Feedback) (*client.Ack, error)
	TrendingQuestions(ctx context.Context, limit int, forceUpdate bool, source models.SourceScope) []models.TrendingQuestion
}

// Sessions hands out the conversation id.
type Sessions interface {
	GetOrCreate(ctx context.Context) string
	Reset(ctx context.Context) string
}

// Event tells listeners which part of the state changed.
type Event int

const (
	EventMessages Event = iota
	EventLoading
	EventTrending
	// EventFocusInput asks the view to return focus to the input line.
	EventFocusInput
)

// Notifier shows a user-visible error.
type Notifier func(err error)

// DelayFunc waits for d or until ctx is done.
type DelayFunc func(ctx context.Context, d time.Duration) error

// Option configures a Controller.
type Option func(*Controller)

// WithDelay replaces the wait between reply parts.
func WithDelay(fn DelayFunc) Option {
	return func(c *Controller) { c.delay = fn }
}

// WithJitter replaces the source of randomness for typing delays. fn returns a value in [0, 1).
func WithJitter(fn func() float64) Option {
	return func(c *Controller) { c.jitter = fn }
}

// WithNotifier sets where user-visible errors go.
func WithNotifier(fn Notifier) Option {
	return func(c *Controller) { c.notify = fn }
}

// WithLogger sets the controller logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// OnChange registers a listener called after every state change, outside the controller lock.
func OnChange(fn func(Event)) Option {
	return func(c *Controller) { c.listeners = append(c.listeners, fn) }
}

// Controller owns one conversation. All methods are safe for concurrent use;
// network calls are made without holding the state lock.
type Controller struct {
	api       API
	sessions  Sessions
	cfg       Config
	logger    *slog.Logger
	delay     DelayFunc
	jitter    func() float64
	notify    Notifier
	listeners []func(Event)

	mu       sync.Mutex
	messages []models.ChatMessage
	loading  bool
	trending []models.TrendingQuestion
	epoch    uint64

	refreshes sync.WaitGroup
}

// New creates a controller.
func New(api API, sessions Sessions, cfg Config, opts ...Option) *Controller {
	c := &Controller{
		api:      api,
		sessions: sessions,
		cfg:      cfg,
		logger:   slog.Default(),
		delay:    sleep,
		jitter:   rand.Float64,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.notify == nil {
		c.notify = func(err error) { c.logger.Error("chat error", "error", err) }
	}
	return c
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Config returns the widget configuration.
func (c *Controller) Config() Config {
	return c.cfg
}

// Messages returns a copy of the history.
func (c *Controller) Messages() []models.ChatMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]models.ChatMessage(nil), c.messages...)
}

// Loading reports whether a reply is pending.
func (c *Controller) Loading() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loading
}

// Trending returns a copy of the last fetched trending questions.
func (c *Controller) Trending() []models.TrendingQuestion {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]models.TrendingQuestion(nil), c.trending...)
}

func (c *Controller) emit(events ...Event) {
	for _, e := range events {
		for _, fn := range c.listeners {
			fn(e)
		}
	}
}

// typingDelay draws a delay in [TypingDelayMin, TypingDelayMax].
func (c *Controller) typingDelay() time.Duration {
	lo, hi := c.cfg.TypingDelayMin, c.cfg.TypingDelayMax
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(c.jitter()*float64(hi-lo))
}

// Send posts text and appends the reply. Multi-part replies are revealed one part at a
// time with a typing delay in between; only the last part is marked IsLastInSequence.
// On failure the loading indicator is removed, the notifier is called and the error returned.
// A reply that arrives after NewConversation is dropped.
func (c *Controller) Send(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyMessage
	}

	c.mu.Lock()
	if c.loading {
		c.mu.Unlock()
		return ErrBusy
	}
	c.messages = append(c.messages,
		models.ChatMessage{Role: models.RoleUser, Content: text},
		models.ChatMessage{Role: models.RoleAssistant, IsLoading: true},
	)
	c.loading = true
	epoch := c.epoch
	c.mu.Unlock()
	c.emit(EventMessages, EventLoading)

	defer func() {
		c.refreshAsync()
		c.emit(EventFocusInput)
	}()

	resp, err := c.api.SendMessage(ctx, client.ChatRequest{
		SessionID:     c.sessions.GetOrCreate(ctx),
		Question:      text,
		KnowledgeBase: c.cfg.KnowledgeBase,
		Model:         c.cfg.Model,
		Source:        c.cfg.Source,
	})
	if err != nil {
		if !c.finish(epoch) {
			return nil
		}
		c.notify(err)
		return fmt.Errorf("send message: %w", err)
	}

	parts := resp.Parts()
	wait := true
	for i, part := range parts {
		if i > 0 && wait {
			if !c.showIndicator(epoch) {
				return nil
			}
			if err := c.delay(ctx, c.typingDelay()); err != nil {
				c.logger.Debug("typing delay interrupted, revealing remaining parts", "error", err)
				wait = false
			}
		}

		msg := models.ChatMessage{
			Role:             models.RoleAssistant,
			Content:          part,
			IsLastInSequence: i == len(parts)-1,
		}
		if resp.MessageID != nil {
			id := *resp.MessageID
			msg.MessageID = &id
		}
		if !c.commit(epoch, msg) {
			return nil
		}
	}

	c.finish(epoch)
	return nil
}

// showIndicator appends the loading message. It reports false when the conversation was reset.
func (c *Controller) showIndicator(epoch uint64) bool {
	c.mu.Lock()
	if c.epoch != epoch {
		c.mu.Unlock()
		return false
	}
	c.messages = append(c.messages, models.ChatMessage{Role: models.RoleAssistant, IsLoading: true})
	c.mu.Unlock()
	c.emit(EventMessages)
	return true
}

// commit replaces the loading message with msg. It reports false when the conversation was reset.
func (c *Controller) commit(epoch uint64, msg models.ChatMessage) bool {
	c.mu.Lock()
	if c.epoch != epoch {
		c.mu.Unlock()
		return false
	}
	c.messages = append(withoutLoading(c.messages), msg)
	c.mu.Unlock()
	c.emit(EventMessages)
	return true
}

// finish clears the loading state. It reports false when the conversation was reset.
func (c *Controller) finish(epoch uint64) bool {
	c.mu.Lock()
	if c.epoch != epoch {
		c.mu.Unlock()
		return false
	}
	c.messages = withoutLoading(c.messages)
	c.loading = false
	c.mu.Unlock()
	c.emit(EventMessages, EventLoading)
	return true
}

func withoutLoading(msgs []models.ChatMessage) []models.ChatMessage {
	out := msgs[:0]
	for _, m := range msgs {
		if !m.IsLoading {
			out = append(out, m)
		}
	}
	return out
}

// NewConversation clears the history, issues a new session id and asks the backend to
// forget the previous one. A backend failure is notified and returned; the local reset stands.
func (c *Controller) NewConversation(ctx context.Context) error {
	previous := c.sessions.GetOrCreate(ctx)

	c.mu.Lock()
	c.messages = nil
	c.loading = false
	c.epoch++
	c.mu.Unlock()

	next := c.sessions.Reset(ctx)
	c.emit(EventMessages, EventLoading, EventFocusInput)
	c.logger.Info("new conversation", "previous_session", previous, "session_id", next)

	if _, err := c.api.ClearHistory(ctx, previous); err != nil {
		c.notify(err)
		return fmt.Errorf("clear history: %w", err)
	}
	return nil
}

// RateableIndex returns the index of the most recent reply that can receive feedback:
// the last part of an assistant sequence carrying a backend id.
func (c *Controller) RateableIndex() (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.messages) - 1; i >= 0; i-- {
		m := c.messages[i]
		if m.IsLastInSequence && m.CanReceiveFeedback() {
			return i, true
		}
	}
	return 0, false
}

// SubmitFeedback rates the message at index. Messages without a backend id are rejected
// with a client.ValidationError before any network call.
func (c *Controller) SubmitFeedback(ctx context.Context, index, rating int, comment *string) error {
	c.mu.Lock()
	if index < 0 || index >= len(c.messages) {
		c.mu.Unlock()
		return &client.ValidationError{Field: "message", Reason: fmt.Sprintf("no message at index %d", index)}
	}
	msg := c.messages[index]
	c.mu.Unlock()

	if !msg.CanReceiveFeedback() {
		return &client.ValidationError{Field: "message_id", Reason: "message cannot receive feedback"}
	}

	_, err := c.api.SubmitFeedback(ctx, models.Feedback{MessageID: *msg.MessageID, Rating: rating, Comment: comment})
	if err != nil {
		if !errors.Is(err, client.ErrValidation) {
			c.notify(err)
		}
		return fmt.Errorf("submit feedback: %w", err)
	}
	c.logger.Info("feedback sent", "message_id", *msg.MessageID, "rating", rating)
	return nil
}

// RefreshTrending replaces the trending set with a fresh fetch. Failures yield an empty set.
func (c *Controller) RefreshTrending(ctx context.Context) {
	list := c.api.TrendingQuestions(ctx, c.cfg.TrendingLimit, false, c.cfg.Source)
	c.mu.Lock()
	c.trending = list
	c.mu.Unlock()
	c.emit(EventTrending)
}

func (c *Controller) refreshAsync() {
	c.refreshes.Add(1)
	go func() {
		defer c.refreshes.Done()
		ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
		defer cancel()
		c.RefreshTrending(ctx)
	}()
}

// Wait blocks until background trending refreshes have finished.
func (c *Controller) Wait() {
	c.refreshes.Wait()
}

// Run refreshes trending questions immediately and then every TrendingInterval until ctx is done.
func (c *Controller) Run(ctx context.Context) {
	c.RefreshTrending(ctx)

	interval := c.cfg.TrendingInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.RefreshTrending(ctx)
		}
	}
}
