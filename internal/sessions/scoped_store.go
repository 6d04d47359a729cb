package sessions

import (
	"context"
	"sync"
	"time"

	"github.com/cocodeai/cocode/pkg/models"
)

// ScopedStore wraps a Store and provides session key scoping plus expiry.
type ScopedStore struct {
	store      Store
	keyBuilder *SessionKeyBuilder
	expiry     *SessionExpiry
	cfg        ScopeConfig
	mu         sync.Mutex // Protects atomic GetOrCreateScoped operations
}

// NewScopedStore creates a new ScopedStore wrapping the given store.
func NewScopedStore(store Store, cfg ScopeConfig) *ScopedStore {
	return &ScopedStore{
		store:      store,
		keyBuilder: NewSessionKeyBuilder(cfg),
		expiry:     NewSessionExpiry(cfg),
		cfg:        cfg,
	}
}

// NewScopedStoreWithLocation creates a ScopedStore with a specific timezone for expiry.
func NewScopedStoreWithLocation(store Store, cfg ScopeConfig, loc *time.Location) *ScopedStore {
	return &ScopedStore{
		store:      store,
		keyBuilder: NewSessionKeyBuilder(cfg),
		expiry:     NewSessionExpiryWithLocation(cfg, loc),
		cfg:        cfg,
	}
}

// GetOrCreateScoped gets or creates a session for an agent working in a
// workspace, optionally sub-scoped to a thread/branch. This operation is
// atomic to prevent race conditions between the expiry check and create.
func (s *ScopedStore) GetOrCreateScoped(
	ctx context.Context,
	agentID string,
	workspaceID string,
	threadID string,
) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := s.keyBuilder.BuildKey(agentID, workspaceID, threadID)

	session, err := s.store.GetByKey(ctx, key)
	if err == nil && session != nil {
		if s.expiry.CheckExpiry(session, workspaceID) {
			if delErr := s.store.Delete(ctx, session.ID); delErr != nil {
				return nil, delErr
			}
			return s.createNewSession(ctx, key, agentID, workspaceID)
		}
		return session, nil
	}

	return s.createNewSession(ctx, key, agentID, workspaceID)
}

// createNewSession creates a new session with the given parameters.
func (s *ScopedStore) createNewSession(
	ctx context.Context,
	key string,
	agentID string,
	workspaceID string,
) (*models.Session, error) {
	return s.store.GetOrCreate(ctx, key, agentID, workspaceID)
}

// GetSessionWithExpiryCheck retrieves a session and checks if it should be expired.
// Returns (session, shouldReset, error).
func (s *ScopedStore) GetSessionWithExpiryCheck(ctx context.Context, id string) (*models.Session, bool, error) {
	session, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, false, err
	}

	shouldReset := s.expiry.CheckExpiry(session, session.WorkspaceID)
	return session, shouldReset, nil
}

// BuildKey generates a session key using the configured scoping rules.
func (s *ScopedStore) BuildKey(agentID string, workspaceID string, threadID string) string {
	return s.keyBuilder.BuildKey(agentID, workspaceID, threadID)
}

// CheckExpiry checks if a session should be reset based on expiry configuration.
func (s *ScopedStore) CheckExpiry(session *models.Session) bool {
	if session == nil {
		return false
	}
	return s.expiry.CheckExpiry(session, session.WorkspaceID)
}

// GetNextResetTime returns the next scheduled reset time for the given workspace.
func (s *ScopedStore) GetNextResetTime(workspaceID string) time.Time {
	return s.expiry.GetNextResetTime(workspaceID)
}

// Store returns the underlying store for direct access when needed.
func (s *ScopedStore) Store() Store {
	return s.store
}

// Delegate methods to underlying store

func (s *ScopedStore) Create(ctx context.Context, session *models.Session) error {
	return s.store.Create(ctx, session)
}

func (s *ScopedStore) Get(ctx context.Context, id string) (*models.Session, error) {
	return s.store.Get(ctx, id)
}

func (s *ScopedStore) Update(ctx context.Context, session *models.Session) error {
	return s.store.Update(ctx, session)
}

func (s *ScopedStore) Delete(ctx context.Context, id string) error {
	return s.store.Delete(ctx, id)
}

func (s *ScopedStore) GetByKey(ctx context.Context, key string) (*models.Session, error) {
	return s.store.GetByKey(ctx, key)
}

func (s *ScopedStore) GetOrCreate(ctx context.Context, key string, agentID string, workspaceID string) (*models.Session, error) {
	return s.store.GetOrCreate(ctx, key, agentID, workspaceID)
}

func (s *ScopedStore) List(ctx context.Context, agentID string, opts ListOptions) ([]*models.Session, error) {
	return s.store.List(ctx, agentID, opts)
}

func (s *ScopedStore) AppendMessage(ctx context.Context, sessionID string, msg *models.Message) error {
	return s.store.AppendMessage(ctx, sessionID, msg)
}

func (s *ScopedStore) GetHistory(ctx context.Context, sessionID string, limit int) ([]*models.Message, error) {
	return s.store.GetHistory(ctx, sessionID, limit)
}

// SessionKeyWithScoping builds a session key using scoping configuration.
func SessionKeyWithScoping(agentID string, workspaceID string, threadID string, cfg ScopeConfig) string {
	builder := NewSessionKeyBuilder(cfg)
	return builder.BuildKey(agentID, workspaceID, threadID)
}
