package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Manager owns the ConversationContext of every conversation. The staleness
// check and the reset that follows it run under a per-conversation lock so
// they never interleave with another invocation's Record.
type Manager struct {
	store  Store
	window time.Duration
	logger *slog.Logger
	now    func() time.Time

	mu    sync.Mutex
	locks map[string]*convLock
}

// convLock is dropped from Manager.locks once nobody holds or waits on it.
type convLock struct {
	sync.Mutex
	refs int
}

// NewManager creates a new context manager
func NewManager(store Store, window time.Duration, logger *slog.Logger) *Manager {
	if window <= 0 {
		window = DefaultInactivityWindow
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		store:  store,
		window: window,
		logger: logger,
		now:    time.Now,
		locks:  make(map[string]*convLock),
	}
}

// SetClock replaces the time source.
func (m *Manager) SetClock(now func() time.Time) {
	m.now = now
}

func contextKey(conversationID string) string {
	return fmt.Sprintf("context:%s", conversationID)
}

func (m *Manager) lock(conversationID string) func() {
	m.mu.Lock()
	l, ok := m.locks[conversationID]
	if !ok {
		l = &convLock{}
		m.locks[conversationID] = l
	}
	l.refs++
	m.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		m.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(m.locks, conversationID)
		}
		m.mu.Unlock()
	}
}

// lockCount reports how many conversations currently have a lock entry.
func (m *Manager) lockCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.locks)
}

// Begin returns the context a new model call chain should start from. A
// stale context is deleted first and an empty one returned.
func (m *Manager) Begin(ctx context.Context, conversationID string) (ConversationContext, error) {
	unlock := m.lock(conversationID)
	defer unlock()

	cc, err := m.load(ctx, conversationID)
	if err != nil {
		return ConversationContext{}, err
	}
	if !cc.Stale(m.now(), m.window) {
		return cc, nil
	}

	if cc.PreviousResponseID != "" {
		m.logger.Info("conversation context expired",
			"conversation", conversationID,
			"last_interaction", cc.LastInteractionAt,
			"response_id", cc.PreviousResponseID)
	}
	if err := m.store.Delete(ctx, contextKey(conversationID)); err != nil {
		return ConversationContext{}, fmt.Errorf("failed to reset context: %w", err)
	}
	return ConversationContext{}, nil
}

// Record stores the handle of the latest model response and stamps the
// interaction time.
func (m *Manager) Record(ctx context.Context, conversationID, responseID, kind string) (ConversationContext, error) {
	return m.update(ctx, conversationID, kind, func(cc *ConversationContext) {
		cc.PreviousResponseID = responseID
	})
}

// Touch stamps the interaction time after a model call whose response
// cannot be continued from. A live handle is kept; a stale one is cleared.
func (m *Manager) Touch(ctx context.Context, conversationID, kind string) (ConversationContext, error) {
	return m.update(ctx, conversationID, kind, nil)
}

func (m *Manager) update(ctx context.Context, conversationID, kind string, apply func(*ConversationContext)) (ConversationContext, error) {
	unlock := m.lock(conversationID)
	defer unlock()

	now := m.now()
	cc, err := m.load(ctx, conversationID)
	if err != nil {
		return ConversationContext{}, err
	}
	if cc.Stale(now, m.window) {
		cc = ConversationContext{}
	}
	if cc.ConversationStartedAt.IsZero() {
		cc.ConversationStartedAt = now
	}
	if apply != nil {
		apply(&cc)
	}
	cc.LastInteractionAt = now
	cc.LastInteractionKind = kind

	data, err := json.Marshal(cc)
	if err != nil {
		return ConversationContext{}, fmt.Errorf("failed to marshal context: %w", err)
	}
	if err := m.store.Set(ctx, contextKey(conversationID), data); err != nil {
		return ConversationContext{}, err
	}

	m.logger.Debug("conversation context recorded",
		"conversation", conversationID, "response_id", cc.PreviousResponseID, "kind", kind)
	return cc, nil
}

// Load returns the stored context as is, without a staleness check.
func (m *Manager) Load(ctx context.Context, conversationID string) (ConversationContext, error) {
	unlock := m.lock(conversationID)
	defer unlock()
	return m.load(ctx, conversationID)
}

// Reset clears the context of a conversation.
func (m *Manager) Reset(ctx context.Context, conversationID string) error {
	unlock := m.lock(conversationID)
	defer unlock()
	return m.store.Delete(ctx, contextKey(conversationID))
}

func (m *Manager) load(ctx context.Context, conversationID string) (ConversationContext, error) {
	data, err := m.store.Get(ctx, contextKey(conversationID))
	if errors.Is(err, ErrKeyNotFound) {
		return ConversationContext{}, nil
	}
	if err != nil {
		return ConversationContext{}, fmt.Errorf("failed to load context: %w", err)
	}
	var cc ConversationContext
	if err := json.Unmarshal(data, &cc); err != nil {
		return ConversationContext{}, fmt.Errorf("failed to parse context: %w", err)
	}
	return cc, nil
}

// Close closes the underlying store
func (m *Manager) Close() error {
	if closer, ok := m.store.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}
