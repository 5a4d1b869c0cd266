package chat

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"github.com/zhouzirui/jac-chat/backend/internal/model/chat"
	"github.com/zhouzirui/jac-chat/backend/internal/model/persona"
	"github.com/zhouzirui/jac-chat/backend/internal/service/completion"
)

const (
	DefaultFallbackMessage = "Something went wrong. Try again!"
	DefaultGreeting        = "Hey there! Ask Away!"
	DefaultTimeout         = 30 * time.Second

	subscriberBuffer = 32
)

var (
	ErrReplyInFlight  = errors.New("reply already in flight")
	ErrTimeout        = errors.New("completion timed out")
	ErrNoCompleter    = errors.New("completer is required")
	ErrControllerDone = errors.New("controller closed")
)

// Options configures a Controller. Everything the controller needs is passed
// in here; it never reads process configuration on its own.
type Options struct {
	Completer completion.Completer
	Personas  persona.Store
	Params    completion.Params
	Window    completion.Window
	// Timeout bounds each remote call. Zero uses DefaultTimeout, negative disables it.
	Timeout  time.Duration
	Fallback string
	Now      func() time.Time
	Logger   *zerolog.Logger
}

// Controller owns one conversation: the message log, the composer draft and
// the single outstanding completion request.
type Controller struct {
	completer completion.Completer
	params    completion.Params
	window    completion.Window
	timeout   time.Duration
	fallback  string
	now       func() time.Time
	log       zerolog.Logger

	user      chat.Author
	assistant chat.Author

	inflight *semaphore.Weighted

	mu      sync.RWMutex
	history chat.Log
	draft   string
	state   chat.State
	nextID  int64
	lastAt  time.Time
	subs    map[int]chan chat.Message
	subSeq  int
	closed  bool
}

// NewController builds a controller whose log holds the assistant greeting.
func NewController(opts Options) (*Controller, error) {
	if opts.Completer == nil {
		return nil, ErrNoCompleter
	}

	personas := opts.Personas
	if personas == nil {
		personas = persona.NewMemoryStore(persona.Seed())
	}

	params := opts.Params
	defaults := completion.DefaultParams()
	if params.Model == "" {
		params.Model = defaults.Model
	}
	if params.MaxTokens <= 0 {
		params.MaxTokens = defaults.MaxTokens
	}

	timeout := opts.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	fallback := opts.Fallback
	if fallback == "" {
		fallback = DefaultFallbackMessage
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}

	logger := log.Logger
	if opts.Logger != nil {
		logger = *opts.Logger
	}

	c := &Controller{
		completer: opts.Completer,
		params:    params,
		window:    opts.Window,
		timeout:   timeout,
		fallback:  fallback,
		now:       now,
		log:       logger.With().Str("component", "chat").Logger(),
		user:      chat.AuthorFromPersona(personas.User()),
		assistant: chat.AuthorFromPersona(personas.Assistant()),
		inflight:  semaphore.NewWeighted(1),
		state:     chat.StateIdle,
		subs:      make(map[int]chan chat.Message),
	}

	greeting := personas.Assistant().OpeningLine
	if greeting == "" {
		greeting = DefaultGreeting
	}
	c.mu.Lock()
	c.appendLocked(c.assistant, greeting)
	c.mu.Unlock()

	return c, nil
}

// Log returns the current transcript.
func (c *Controller) Log() chat.Log {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.history
}

// State reports whether a reply is outstanding.
func (c *Controller) State() chat.State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Draft returns the composer buffer.
func (c *Controller) Draft() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.draft
}

// SetDraft replaces the composer buffer.
func (c *Controller) SetDraft(text string) {
	c.mu.Lock()
	c.draft = text
	c.mu.Unlock()
}

// Subscribe streams every message appended after the call. The returned
// func unsubscribes; the channel is closed on unsubscribe, on Close, or when
// the subscriber falls a full buffer behind. In the last case Closed reports
// false and the caller should resubscribe and reread the log.
func (c *Controller) Subscribe() (<-chan chat.Message, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch := make(chan chat.Message, subscriberBuffer)
	if c.closed {
		close(ch)
		return ch, func() {}
	}

	id := c.subSeq
	c.subSeq++
	c.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			if sub, ok := c.subs[id]; ok {
				delete(c.subs, id)
				close(sub)
			}
		})
	}
}

// Closed reports whether Close has been called.
func (c *Controller) Closed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

// Close drops all subscribers. The log stays readable.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	for id, ch := range c.subs {
		delete(c.subs, id)
		close(ch)
	}
}

// Submit appends the user's message, asks the completer for a reply and
// appends it, or the fallback message when the request fails. Empty input is
// a no-op. A second Submit while a reply is outstanding gets ErrReplyInFlight
// and leaves the log untouched.
func (c *Controller) Submit(ctx context.Context, in Input) (Outcome, error) {
	msg, ok := in.(UserMessage)
	if !ok || strings.TrimSpace(msg.Text) == "" {
		return Outcome{Kind: OutcomeNoop}, nil
	}
	if !c.inflight.TryAcquire(1) {
		return Outcome{}, ErrReplyInFlight
	}
	defer c.inflight.Release(1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return Outcome{}, ErrControllerDone
	}
	user := c.appendLocked(c.user, msg.Text)
	c.draft = ""
	c.state = chat.StateAwaitingReply
	turns := toTurns(c.history.Messages())
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.state = chat.StateIdle
		c.mu.Unlock()
	}()

	outcome := Outcome{User: &user}
	content, err := c.request(ctx, turns)
	switch {
	case err == nil:
		reply := c.append(c.assistant, content)
		outcome.Kind = OutcomeReply
		outcome.Reply = &reply
	case errors.Is(err, completion.ErrNoChoices):
		outcome.Kind = OutcomeEmpty
		outcome.Cause = err
		c.log.Warn().Int64("message_id", user.ID).Msg("completion returned no choices, nothing appended")
	default:
		reply := c.append(c.assistant, c.fallback)
		outcome.Kind = OutcomeFallback
		outcome.Reply = &reply
		outcome.Cause = err
		c.log.Error().Err(err).Str("cause", outcome.CauseLabel()).Int64("message_id", user.ID).Msg("completion failed, appended fallback")
	}
	return outcome, nil
}

func (c *Controller) request(ctx context.Context, turns []completion.Turn) (string, error) {
	var (
		callCtx context.Context
		cancel  context.CancelFunc
	)
	if c.timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, c.timeout)
	} else {
		callCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	req := completion.NewRequest(c.params, c.window.Apply(turns))
	start := c.now()

	type result struct {
		resp *completion.Response
		err  error
	}
	done := make(chan result, 1)
	go func() {
		resp, err := c.completer.Complete(callCtx, req)
		done <- result{resp: resp, err: err}
	}()

	// a completer that ignores ctx must not hold the in-flight slot past the deadline
	var (
		resp *completion.Response
		err  error
	)
	select {
	case r := <-done:
		resp, err = r.resp, r.err
	case <-callCtx.Done():
		err = callCtx.Err()
	}
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return "", &timeoutError{err: err}
		}
		return "", err
	}

	content, err := resp.FirstContent()
	if err != nil {
		return "", err
	}
	c.log.Debug().
		Int("turns", len(req.Messages)).
		Int("total_tokens", resp.Usage.TotalTokens).
		Dur("elapsed", c.now().Sub(start)).
		Msg("completion received")
	return content, nil
}

func (c *Controller) append(author chat.Author, text string) chat.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.appendLocked(author, text)
}

// appendLocked replaces the log with old+m and notifies subscribers. Ids and
// timestamps are strictly increasing across the log.
func (c *Controller) appendLocked(author chat.Author, text string) chat.Message {
	c.nextID++
	at := c.now()
	if !at.After(c.lastAt) {
		at = c.lastAt.Add(time.Nanosecond)
	}
	c.lastAt = at

	m := chat.Message{
		ID:        c.nextID,
		Text:      text,
		CreatedAt: at,
		Author:    author,
	}
	c.history = c.history.Append(m)

	for id, ch := range c.subs {
		select {
		case ch <- m:
		default:
			delete(c.subs, id)
			close(ch)
			c.log.Warn().Int64("message_id", m.ID).Msg("subscriber fell behind, closing it")
		}
	}
	return m
}

// timeoutError keeps the completer's error in the chain while matching ErrTimeout.
type timeoutError struct {
	err error
}

func (e *timeoutError) Error() string {
	return ErrTimeout.Error() + ": " + e.err.Error()
}

func (e *timeoutError) Is(target error) bool { return target == ErrTimeout }

func (e *timeoutError) Unwrap() error { return e.err }

func toTurns(messages []chat.Message) []completion.Turn {
	turns := make([]completion.Turn, 0, len(messages))
	for _, m := range messages {
		turns = append(turns, completion.Turn{Role: m.Role(), Content: m.Text})
	}
	return turns
}
