package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"chatwallet/internal/models"
	"chatwallet/internal/store"

	"go.uber.org/zap"
)

const DefaultTTL = 10 * time.Minute

// Records is the subset of the record store backing sessions.
type Records interface {
	ReplaceSession(ctx context.Context, params store.SessionParams) (*models.Session, error)
	GetSession(ctx context.Context, handle string) (*models.Session, error)
	UpdateSession(ctx context.Context, handle string, update store.SessionUpdate) (*models.Session, error)
	CompareAndSwapSessionStep(ctx context.Context, handle string, expected, next models.ConversationStep) error
	DeleteSession(ctx context.Context, handle string) error
	DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error)
}

// Store manages at most one live session per handle. Expiry is lazy: every
// read treats an expired session as absent and deletes it.
type Store struct {
	records Records
	ttl     time.Duration
	now     func() time.Time
}

func NewStore(records Records, cfg models.SessionConfig) *Store {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{records: records, ttl: ttl, now: time.Now}
}

// WithClock replaces the time source, for tests.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

// CreateParams describes a new session. A zero TTL uses the store default.
type CreateParams struct {
	Handle    string
	AccountId string
	Step      models.ConversationStep
	Context   models.FlowContext
	TTL       time.Duration
}

// Patch is applied by Update. A nil Step keeps the current step and the
// context patch is merged with FlowContext.Merge.
type Patch struct {
	Step    models.ConversationStep
	Context models.FlowContext
	TTL     time.Duration
}

// Create replaces any existing session for the handle with a fresh one.
func (s *Store) Create(ctx context.Context, params CreateParams) (*models.Session, error) {
	if params.Step == nil {
		params.Step = models.StepIdle
	}
	sess, err := s.records.ReplaceSession(ctx, store.SessionParams{
		Handle:    params.Handle,
		AccountId: params.AccountId,
		Step:      params.Step,
		Context:   params.Context,
		ExpiresAt: s.expiry(params.TTL),
	})
	if err != nil {
		return nil, fmt.Errorf("unable to create session: %w", err)
	}
	return sess, nil
}

// Get returns the live session for handle, or nil when there is none.
func (s *Store) Get(ctx context.Context, handle string) (*models.Session, error) {
	sess, err := s.records.GetSession(ctx, handle)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("unable to get session: %w", err)
	}
	if sess.Expired(s.now()) {
		if err := s.records.DeleteSession(ctx, handle); err != nil {
			return nil, fmt.Errorf("unable to delete expired session: %w", err)
		}
		zap.L().Debug("Expired session removed on read", zap.String("session_id", sess.Id))
		return nil, nil
	}
	return sess, nil
}

// Update applies patch to the live session and extends its expiry. It fails
// with store.ErrNotFound when no live session exists.
func (s *Store) Update(ctx context.Context, handle string, patch Patch) (*models.Session, error) {
	current, err := s.Get(ctx, handle)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, store.ErrNotFound
	}

	step := current.Step
	if patch.Step != nil {
		step = patch.Step
	}
	sess, err := s.records.UpdateSession(ctx, handle, store.SessionUpdate{
		Step:      step,
		Context:   current.Context.Merge(patch.Context),
		ExpiresAt: s.expiry(patch.TTL),
	})
	if err != nil {
		return nil, fmt.Errorf("unable to update session: %w", err)
	}
	return sess, nil
}

// Reset recreates the session at IDLE with an empty context.
func (s *Store) Reset(ctx context.Context, handle, accountId string) (*models.Session, error) {
	return s.Create(ctx, CreateParams{Handle: handle, AccountId: accountId, Step: models.StepIdle})
}

// Claim atomically moves the session from expected to next. Only one caller
// can win for a given step; the others get store.ErrStepMismatch.
func (s *Store) Claim(ctx context.Context, handle string, expected, next models.ConversationStep) error {
	return s.records.CompareAndSwapSessionStep(ctx, handle, expected, next)
}

// Delete removes the session; deleting an absent session is not an error.
func (s *Store) Delete(ctx context.Context, handle string) error {
	return s.records.DeleteSession(ctx, handle)
}

// Sweep deletes every expired session and returns how many were removed.
func (s *Store) Sweep(ctx context.Context) (int64, error) {
	count, err := s.records.DeleteExpiredSessions(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("unable to sweep sessions: %w", err)
	}
	return count, nil
}

func (s *Store) expiry(ttl time.Duration) time.Time {
	if ttl <= 0 {
		ttl = s.ttl
	}
	return s.now().Add(ttl).UTC()
}
