package usecase

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"petadopt/internal/domain/entity"
	"petadopt/internal/infrastructure/ratelimit"
	"petadopt/pkg/errors"
	"petadopt/pkg/logger"
)

type SessionState string

const (
	StateNoConversationSelected SessionState = "no_conversation_selected"
	StateConversationLoading    SessionState = "conversation_loading"
	StateConversationActive     SessionState = "conversation_active"
)

const (
	DefaultReadReceiptThrottle  = time.Second
	DefaultUnreadDebounce       = 2 * time.Second
	DefaultDeselectRefreshDelay = 500 * time.Millisecond
)

type SessionOptions struct {
	ReadReceiptThrottle  time.Duration
	UnreadDebounce       time.Duration
	DeselectRefreshDelay time.Duration

	// OnUpdate is called, outside any session lock, after every state change.
	OnUpdate func()
}

// SessionSnapshot is the state a presentation layer renders.
type SessionSnapshot struct {
	State                 SessionState           `json:"state"`
	Conversations         []*entity.Conversation `json:"conversations"`
	CurrentConversationID *string                `json:"current_conversation_id"`
	CurrentMessages       []*entity.Message      `json:"current_messages"`
	Loading               bool                   `json:"loading"`
	Error                 *string                `json:"error"`
	TotalUnread           int                    `json:"total_unread"`
}

// MessagingSession is the per-user view over the messaging core. It keeps the
// conversation list and the open conversation live, marks incoming messages
// read at most once per throttle window and recomputes the unread total once
// the conversation list has been quiet for the debounce period.
type MessagingSession struct {
	user  *entity.User
	core  MessagingService
	clock clock.Clock
	opts  SessionOptions

	ctx    context.Context
	cancel context.CancelFunc

	subs           *subscriptionRegistry
	readThrottle   *ratelimit.Throttler
	unreadDebounce *ratelimit.Debouncer

	mu            sync.Mutex
	state         SessionState
	conversations []*entity.Conversation
	currentID     string
	messages      []*entity.Message
	loading       bool
	errMsg        string
	totalUnread   int
	marked        map[string]bool
	generation    uint64
	messagesSub   subscriptionHandle
	refreshTimer  *clock.Timer
	closed        bool
}

func NewMessagingSession(user *entity.User, core MessagingService, clk clock.Clock, opts SessionOptions) *MessagingSession {
	if clk == nil {
		clk = clock.New()
	}
	if opts.ReadReceiptThrottle <= 0 {
		opts.ReadReceiptThrottle = DefaultReadReceiptThrottle
	}
	if opts.UnreadDebounce <= 0 {
		opts.UnreadDebounce = DefaultUnreadDebounce
	}
	if opts.DeselectRefreshDelay <= 0 {
		opts.DeselectRefreshDelay = DefaultDeselectRefreshDelay
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &MessagingSession{
		user:   user,
		core:   core,
		clock:  clk,
		opts:   opts,
		ctx:    ctx,
		cancel: cancel,
		subs:   newSubscriptionRegistry(),
		state:  StateNoConversationSelected,
		marked: make(map[string]bool),
	}
	s.readThrottle = ratelimit.NewThrottler(clk, opts.ReadReceiptThrottle, s.markVisibleAsRead)
	s.unreadDebounce = ratelimit.NewDebouncer(clk, opts.UnreadDebounce, s.refreshUnread)
	return s
}

func (s *MessagingSession) User() *entity.User {
	return s.user
}

// Start opens the conversation list subscription and computes the initial
// unread total.
func (s *MessagingSession) Start(ctx context.Context) {
	sub := s.core.OnUserConversationsChange(s.ctx, s.user.ID, s.handleConversations)
	s.subs.Add(sub)

	total := s.core.GetTotalUnreadMessages(ctx, s.user.ID)
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.totalUnread = total
	s.mu.Unlock()

	s.notify()
}

// StartConversation opens the conversation with otherUserID, creating it on
// first contact.
func (s *MessagingSession) StartConversation(ctx context.Context, otherUserID string) error {
	prev, ok := s.beginLoading()
	if !ok {
		return errors.BadRequest("Session is closed", nil)
	}

	conversationID, err := s.core.GetOrCreateConversation(ctx, s.user.ID, otherUserID)
	if err != nil {
		logger.Error("StartConversation Error: User %s could not open conversation with %s: %v", s.user.ID, otherUserID, err)
		s.abortLoading(prev, err)
		return err
	}

	s.activate(ctx, conversationID)
	return nil
}

// SelectConversation opens an existing conversation the user takes part in.
func (s *MessagingSession) SelectConversation(ctx context.Context, conversationID string) error {
	prev, ok := s.beginLoading()
	if !ok {
		return errors.BadRequest("Session is closed", nil)
	}

	conversation, err := s.core.GetConversation(ctx, conversationID, s.user.ID)
	if err != nil {
		logger.Error("SelectConversation Error: User %s could not open conversation %s: %v", s.user.ID, conversationID, err)
		s.abortLoading(prev, err)
		return err
	}

	s.activate(ctx, conversation.ID)
	return nil
}

// CloseConversation deselects the open conversation. The unread total is
// refreshed after a short delay so the store can settle first.
func (s *MessagingSession) CloseConversation() {
	s.mu.Lock()
	if s.closed || s.currentID == "" {
		s.mu.Unlock()
		return
	}

	s.generation++
	handle := s.messagesSub
	s.messagesSub = 0
	s.currentID = ""
	s.messages = nil
	s.marked = make(map[string]bool)
	s.state = StateNoConversationSelected
	s.loading = false

	if s.refreshTimer != nil {
		s.refreshTimer.Stop()
	}
	s.refreshTimer = s.clock.AfterFunc(s.opts.DeselectRefreshDelay, s.refreshUnread)
	s.mu.Unlock()

	s.subs.Release(handle)
	s.notify()
}

// SendMessage sends text to the open conversation as the session user.
// Failures are recorded in the session error and returned.
func (s *MessagingSession) SendMessage(ctx context.Context, text string) error {
	if result := ValidateMessage(text); !result.Valid {
		err := errors.Validation(result.Error)
		s.setError(err)
		return err
	}

	s.mu.Lock()
	conversationID := s.currentID
	active := s.state == StateConversationActive
	s.mu.Unlock()

	if !active {
		err := errors.BadRequest("No conversation selected", nil)
		s.setError(err)
		return err
	}

	_, err := s.core.SendMessage(ctx, SendMessageInput{
		ConversationID: conversationID,
		SenderID:       s.user.ID,
		SenderName:     s.user.Name(),
		SenderType:     s.user.RoleOrDefault(),
		SenderAvatar:   s.user.AvatarURL,
		Text:           text,
	})
	if err != nil {
		s.setError(err)
		return err
	}

	s.setError(nil)
	return nil
}

func (s *MessagingSession) OtherParticipantID(conversation *entity.Conversation) string {
	if conversation == nil {
		return ""
	}
	return conversation.OtherParticipant(s.user.ID)
}

func (s *MessagingSession) Snapshot() SessionSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := SessionSnapshot{
		State:           s.state,
		Conversations:   append([]*entity.Conversation{}, s.conversations...),
		CurrentMessages: append([]*entity.Message{}, s.messages...),
		Loading:         s.loading,
		TotalUnread:     s.totalUnread,
	}
	if s.currentID != "" {
		id := s.currentID
		snap.CurrentConversationID = &id
	}
	if s.errMsg != "" {
		msg := s.errMsg
		snap.Error = &msg
	}
	return snap
}

// Close stops all timers and disposes every subscription. Safe to call more
// than once.
func (s *MessagingSession) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.generation++
	if s.refreshTimer != nil {
		s.refreshTimer.Stop()
		s.refreshTimer = nil
	}
	s.mu.Unlock()

	s.readThrottle.Stop()
	s.unreadDebounce.Stop()
	s.cancel()
	s.subs.Drain()
}

func (s *MessagingSession) beginLoading() (SessionState, bool) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return "", false
	}
	prev := s.state
	s.state = StateConversationLoading
	s.loading = true
	s.errMsg = ""
	s.mu.Unlock()

	s.notify()
	return prev, true
}

// abortLoading returns to the state held before the failed open.
func (s *MessagingSession) abortLoading(prev SessionState, err error) {
	s.mu.Lock()
	if s.state == StateConversationLoading {
		s.state = prev
	}
	s.loading = false
	s.errMsg = errors.Message(err)
	s.mu.Unlock()

	s.notify()
}

func (s *MessagingSession) activate(ctx context.Context, conversationID string) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.generation++
	gen := s.generation
	old := s.messagesSub
	s.messagesSub = 0
	s.currentID = conversationID
	s.messages = nil
	s.marked = make(map[string]bool)
	if s.refreshTimer != nil {
		s.refreshTimer.Stop()
		s.refreshTimer = nil
	}
	s.mu.Unlock()

	s.subs.Release(old)

	// The backlog is marked in one batch before the live query starts.
	s.core.MarkConversationAsRead(ctx, conversationID, s.user.ID)

	sub := s.core.OnConversationMessagesChange(s.ctx, conversationID, func(messages []*entity.Message) {
		s.handleMessages(gen, messages)
	})
	handle := s.subs.Add(sub)

	s.mu.Lock()
	if s.closed || s.generation != gen {
		s.mu.Unlock()
		s.subs.Release(handle)
		return
	}
	s.messagesSub = handle
	s.state = StateConversationActive
	s.loading = false
	s.mu.Unlock()

	s.notify()
}

func (s *MessagingSession) handleConversations(conversations []*entity.Conversation) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.conversations = conversations
	// Armed under the lock so a visible list always has a pending recount.
	s.unreadDebounce.Trigger()
	s.mu.Unlock()

	s.notify()
}

func (s *MessagingSession) handleMessages(gen uint64, messages []*entity.Message) {
	s.mu.Lock()
	if s.closed || s.generation != gen {
		s.mu.Unlock()
		return
	}
	s.messages = messages
	s.mu.Unlock()

	s.readThrottle.Trigger()
	s.notify()
}

// markVisibleAsRead is the throttled scan: every visible message from someone
// else that is still unread and not yet handled this session goes out in one
// batch.
func (s *MessagingSession) markVisibleAsRead() {
	s.mu.Lock()
	if s.closed || s.currentID == "" {
		s.mu.Unlock()
		return
	}
	conversationID := s.currentID
	var ids []string
	for _, message := range s.messages {
		if !message.IsUnreadFor(s.user.ID) || s.marked[message.ID] {
			continue
		}
		s.marked[message.ID] = true
		ids = append(ids, message.ID)
	}
	s.mu.Unlock()

	if len(ids) == 0 {
		return
	}
	s.core.MarkMessagesAsRead(s.ctx, conversationID, ids, s.user.ID)
}

func (s *MessagingSession) refreshUnread() {
	total := s.core.GetTotalUnreadMessages(s.ctx, s.user.ID)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.totalUnread = total
	s.mu.Unlock()

	s.notify()
}

func (s *MessagingSession) setError(err error) {
	s.mu.Lock()
	if err == nil {
		s.errMsg = ""
	} else {
		s.errMsg = errors.Message(err)
	}
	s.mu.Unlock()

	s.notify()
}

func (s *MessagingSession) notify() {
	if s.opts.OnUpdate != nil {
		s.opts.OnUpdate()
	}
}
