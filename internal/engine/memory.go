package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/quitaai/cobranca-ai-platform/pkg/logging"
)

// Well-known extracted-fact keys.
const (
	FactHardshipReason   = "hardship_reason"
	FactPreferredPayment = "preferred_payment_method"
	FactPromisedDate     = "promised_payment_date"
)

// emotionalTimelineLength bounds the per-sender emotional timeline.
const emotionalTimelineLength = 20

// ErrLockTimeout is returned when a sender's context lock cannot be
// acquired in time. The caller may retry the turn.
var ErrLockTimeout = errors.New("engine: sender context lock timeout")

// ErrStoreClosed is returned after the store has been shut down.
var ErrStoreClosed = errors.New("engine: memory store closed")

// ConversationContext is the per-sender state owned exclusively by the
// MemoryStore. Callers only ever see snapshots or short-lived handles.
type ConversationContext struct {
	Sender              string            `json:"sender"`
	Name                string            `json:"name,omitempty"`
	OpenAmountCents     int64             `json:"open_amount_cents,omitempty"`
	DueDate             time.Time         `json:"due_date,omitempty"`
	State               BillingState      `json:"state"`
	LastIntent          Intent            `json:"last_intent,omitempty"`
	LastTemplateID      string            `json:"last_template_id,omitempty"`
	History             []Turn            `json:"history,omitempty"`
	EmotionalTimeline   []EmotionalState  `json:"emotional_timeline,omitempty"`
	Facts               map[string]string `json:"facts,omitempty"`
	NegotiationAttempts int               `json:"negotiation_attempts"`
	CreatedAt           time.Time         `json:"created_at"`
	UpdatedAt           time.Time         `json:"updated_at"`
}

// ContextSnapshot is the read-only view handed to the ensemble and the
// response generator.
type ContextSnapshot struct {
	Sender              string
	Name                string
	OpenAmountCents     int64
	DueDate             time.Time
	State               BillingState
	LastIntent          Intent
	LastTemplateID      string
	LastEmotion         Emotion
	HistoryLen          int
	NegotiationAttempts int
	Facts               map[string]string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// TurnUpdate describes the mutations applied after one completed turn.
type TurnUpdate struct {
	Turn                 Turn
	Emotion              EmotionalState
	Facts                map[string]string
	State                BillingState
	TemplateID           string
	IncrementNegotiation bool
}

// ContextPersister persists context snapshots across restarts. Load returns
// (nil, nil) when the sender has no stored context.
type ContextPersister interface {
	Load(ctx context.Context, sender string) (*ConversationContext, error)
	Save(ctx context.Context, snapshot *ConversationContext) error
	Delete(ctx context.Context, sender string) error
}

// MemoryStoreConfig tunes the store.
type MemoryStoreConfig struct {
	HistoryLength int
	TTL           time.Duration
	SweepInterval time.Duration
	LockTimeout   time.Duration
}

// MemoryStoreOption configures optional collaborators.
type MemoryStoreOption func(*MemoryStore)

// WithPersister attaches a ContextPersister for cross-restart hydration.
func WithPersister(p ContextPersister) MemoryStoreOption {
	return func(s *MemoryStore) { s.persister = p }
}

// WithEvictionHook registers a callback invoked with each evicted sender.
func WithEvictionHook(fn func(sender string)) MemoryStoreOption {
	return func(s *MemoryStore) { s.onEvict = fn }
}

// MemoryStore owns all ConversationContext instances. It is safe for
// concurrent use; turns for the same sender are serialized by a per-sender
// lock while different senders proceed in parallel.
type MemoryStore struct {
	cfg       MemoryStoreConfig
	logger    *logging.Logger
	persister ContextPersister
	onEvict   func(sender string)

	mu      sync.RWMutex
	entries map[string]*contextEntry
	closed  bool

	done chan struct{}
	wg   sync.WaitGroup
}

type contextEntry struct {
	sem     chan struct{}
	ctx     *ConversationContext
	evicted bool
}

// NewMemoryStore creates the store and, when SweepInterval > 0, starts the
// background eviction sweep.
func NewMemoryStore(cfg MemoryStoreConfig, logger *logging.Logger, opts ...MemoryStoreOption) *MemoryStore {
	if cfg.HistoryLength <= 0 {
		cfg.HistoryLength = 30
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 24 * time.Hour
	}
	if cfg.LockTimeout <= 0 {
		cfg.LockTimeout = 5 * time.Second
	}
	if logger == nil {
		logger = logging.Default()
	}

	s := &MemoryStore{
		cfg:     cfg,
		logger:  logger,
		entries: make(map[string]*contextEntry),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	if cfg.SweepInterval > 0 {
		s.wg.Add(1)
		go s.runSweeper()
	}
	return s
}

// Close stops the eviction sweep. Contexts remain readable until the
// process exits.
func (s *MemoryStore) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	close(s.done)
	s.wg.Wait()
}

// Len returns the number of live contexts.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Acquire locks the sender's context, creating (or hydrating) it on first
// contact. The returned handle must be released by the same goroutine.
func (s *MemoryStore) Acquire(ctx context.Context, sender, name string) (*ContextHandle, error) {
	for {
		entry, err := s.entryFor(sender)
		if err != nil {
			return nil, err
		}

		select {
		case entry.sem <- struct{}{}:
		case <-time.After(s.cfg.LockTimeout):
			return nil, ErrLockTimeout
		case <-ctx.Done():
			return nil, ctx.Err()
		}

		if entry.evicted {
			// Lost the race against the sweeper; fetch a fresh entry.
			<-entry.sem
			continue
		}

		if entry.ctx == nil {
			entry.ctx = s.hydrate(ctx, sender)
		}
		if name != "" && entry.ctx.Name == "" {
			entry.ctx.Name = name
		}
		return &ContextHandle{store: s, entry: entry}, nil
	}
}

func (s *MemoryStore) entryFor(sender string) (*contextEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrStoreClosed
	}
	entry, ok := s.entries[sender]
	if !ok {
		entry = &contextEntry{sem: make(chan struct{}, 1)}
		s.entries[sender] = entry
	}
	return entry, nil
}

func (s *MemoryStore) hydrate(ctx context.Context, sender string) *ConversationContext {
	if s.persister != nil {
		loadCtx, cancel := context.WithTimeout(ctx, s.cfg.LockTimeout)
		stored, err := s.persister.Load(loadCtx, sender)
		cancel()
		if err != nil {
			s.logger.Warn("context hydration failed, starting fresh", "sender", sender, "error", err)
		} else if stored != nil {
			return stored
		}
	}
	now := time.Now().UTC()
	return &ConversationContext{
		Sender:    sender,
		State:     StatePending,
		Facts:     make(map[string]string),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Peek returns a snapshot without mutating anything. The second return is
// false when the sender has no live context.
func (s *MemoryStore) Peek(ctx context.Context, sender string) (ContextSnapshot, bool, error) {
	s.mu.RLock()
	entry, ok := s.entries[sender]
	s.mu.RUnlock()
	if !ok {
		return ContextSnapshot{}, false, nil
	}

	select {
	case entry.sem <- struct{}{}:
	case <-time.After(s.cfg.LockTimeout):
		return ContextSnapshot{}, false, ErrLockTimeout
	case <-ctx.Done():
		return ContextSnapshot{}, false, ctx.Err()
	}
	defer func() { <-entry.sem }()

	if entry.evicted || entry.ctx == nil {
		return ContextSnapshot{}, false, nil
	}
	return snapshotOf(entry.ctx), true, nil
}

// Delete removes the sender's context and its persisted copy.
func (s *MemoryStore) Delete(ctx context.Context, sender string) error {
	s.mu.Lock()
	entry, ok := s.entries[sender]
	if ok {
		delete(s.entries, sender)
	}
	s.mu.Unlock()
	if !ok {
		return nil
	}

	select {
	case entry.sem <- struct{}{}:
	case <-time.After(s.cfg.LockTimeout):
		return ErrLockTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
	entry.evicted = true
	<-entry.sem

	if s.persister != nil {
		if err := s.persister.Delete(ctx, sender); err != nil {
			s.logger.Warn("failed to delete persisted context", "sender", sender, "error", err)
		}
	}
	return nil
}

// EvictExpired removes every context idle for longer than the TTL and
// returns how many were evicted. Contexts locked by an in-flight turn are
// skipped and picked up on the next sweep.
func (s *MemoryStore) EvictExpired(ctx context.Context) int {
	s.mu.RLock()
	senders := make([]string, 0, len(s.entries))
	for sender := range s.entries {
		senders = append(senders, sender)
	}
	s.mu.RUnlock()

	cutoff := time.Now().UTC().Add(-s.cfg.TTL)
	evicted := 0
	for _, sender := range senders {
		s.mu.RLock()
		entry, ok := s.entries[sender]
		s.mu.RUnlock()
		if !ok {
			continue
		}

		// Never block on a busy sender; the sweep must not hold a lock
		// longer than a single eviction check.
		select {
		case entry.sem <- struct{}{}:
		default:
			continue
		}

		expired := entry.ctx != nil && entry.ctx.UpdatedAt.Before(cutoff)
		if expired {
			entry.evicted = true
			s.mu.Lock()
			delete(s.entries, sender)
			s.mu.Unlock()
		}
		<-entry.sem

		if expired {
			evicted++
			if s.persister != nil {
				if err := s.persister.Delete(ctx, sender); err != nil {
					s.logger.Warn("failed to delete persisted context", "sender", sender, "error", err)
				}
			}
			if s.onEvict != nil {
				s.onEvict(sender)
			}
		}
	}
	return evicted
}

func (s *MemoryStore) runSweeper() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			if n := s.EvictExpired(context.Background()); n > 0 {
				s.logger.Debug("evicted idle conversation contexts", "count", n)
			}
		}
	}
}

// ContextHandle is a short-lived guarded reference to one sender's context.
type ContextHandle struct {
	store    *MemoryStore
	entry    *contextEntry
	dirty    bool
	released bool
}

// Snapshot returns a copy safe to read after release.
func (h *ContextHandle) Snapshot() ContextSnapshot {
	return snapshotOf(h.entry.ctx)
}

// SetBilling records the open amount and due date for the sender, typically
// filled from the campaign spreadsheet on first contact.
func (h *ContextHandle) SetBilling(amountCents int64, due time.Time) {
	c := h.entry.ctx
	if amountCents > 0 {
		c.OpenAmountCents = amountCents
	}
	if !due.IsZero() {
		c.DueDate = due
	}
	c.UpdatedAt = time.Now().UTC()
	h.dirty = true
}

// Update applies one turn's mutations: bounded history and timeline
// appends, last-write-wins fact merge, state transition bookkeeping.
func (h *ContextHandle) Update(u TurnUpdate) {
	c := h.entry.ctx

	c.History = append(c.History, u.Turn)
	if over := len(c.History) - h.store.cfg.HistoryLength; over > 0 {
		c.History = append(c.History[:0], c.History[over:]...)
	}

	c.EmotionalTimeline = append(c.EmotionalTimeline, u.Emotion)
	if over := len(c.EmotionalTimeline) - emotionalTimelineLength; over > 0 {
		c.EmotionalTimeline = append(c.EmotionalTimeline[:0], c.EmotionalTimeline[over:]...)
	}

	if c.Facts == nil {
		c.Facts = make(map[string]string, len(u.Facts))
	}
	for k, v := range u.Facts {
		c.Facts[k] = v
	}

	if u.State != "" {
		c.State = u.State
	}
	if u.TemplateID != "" {
		c.LastTemplateID = u.TemplateID
	}
	if u.IncrementNegotiation {
		c.NegotiationAttempts++
	}
	c.LastIntent = u.Turn.Intent
	c.UpdatedAt = time.Now().UTC()
	h.dirty = true
}

// Release unlocks the sender and, when the context changed, persists a copy
// in the background so the hot path never blocks on I/O.
func (h *ContextHandle) Release() {
	if h.released {
		return
	}
	h.released = true

	var persistCopy *ConversationContext
	if h.dirty && h.store.persister != nil && !h.entry.evicted {
		persistCopy = cloneContext(h.entry.ctx)
	}
	<-h.entry.sem

	if persistCopy != nil {
		store := h.store

		// The add must not race a concurrent Close already waiting on the
		// group; once the store is closed, save inline instead.
		store.mu.RLock()
		closed := store.closed
		if !closed {
			store.wg.Add(1)
		}
		store.mu.RUnlock()

		if closed {
			store.persist(persistCopy)
			return
		}
		go func() {
			defer store.wg.Done()
			store.persist(persistCopy)
		}()
	}
}

func (s *MemoryStore) persist(c *ConversationContext) {
	saveCtx, cancel := context.WithTimeout(context.Background(), s.cfg.LockTimeout)
	defer cancel()
	if err := s.persister.Save(saveCtx, c); err != nil {
		s.logger.Warn("failed to persist conversation context",
			"sender", c.Sender, "error", err)
	}
}

func snapshotOf(c *ConversationContext) ContextSnapshot {
	snap := ContextSnapshot{
		Sender:              c.Sender,
		Name:                c.Name,
		OpenAmountCents:     c.OpenAmountCents,
		DueDate:             c.DueDate,
		State:               c.State,
		LastIntent:          c.LastIntent,
		LastTemplateID:      c.LastTemplateID,
		HistoryLen:          len(c.History),
		NegotiationAttempts: c.NegotiationAttempts,
		Facts:               make(map[string]string, len(c.Facts)),
		CreatedAt:           c.CreatedAt,
		UpdatedAt:           c.UpdatedAt,
	}
	for k, v := range c.Facts {
		snap.Facts[k] = v
	}
	if n := len(c.EmotionalTimeline); n > 0 {
		snap.LastEmotion = c.EmotionalTimeline[n-1].Emotion
	}
	return snap
}

func cloneContext(c *ConversationContext) *ConversationContext {
	clone := *c
	clone.History = append([]Turn(nil), c.History...)
	clone.EmotionalTimeline = append([]EmotionalState(nil), c.EmotionalTimeline...)
	clone.Facts = make(map[string]string, len(c.Facts))
	for k, v := range c.Facts {
		clone.Facts[k] = v
	}
	return &clone
}
