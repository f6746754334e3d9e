package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/liliang-cn/leadgen/internal/domain"
)

// StorageKey is the fixed key under which the session id is persisted
const StorageKey = "leadgen_session_id"

const (
	suffixLen      = 9
	suffixAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
)

// Store is the persistent key/value storage backing the session id
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
}

// Manager owns the installation's session identifier. The id is resolved
// once, lazily, and never changes for the lifetime of the storage.
type Manager struct {
	store  Store
	logger *zap.Logger
	now    func() time.Time

	mu sync.Mutex
	id string
}

// NewManager creates a session manager over store
func NewManager(store Store, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// GetOrCreateSessionID returns the persisted session id, creating and
// persisting one on first use. Storage failures never surface: the
// manager falls back to an id that lives only for this process.
func (m *Manager) GetOrCreateSessionID(ctx context.Context) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.id != "" {
		return m.id
	}

	stored, err := m.store.Get(ctx, StorageKey)
	switch {
	case err == nil && stored != "":
		m.id = stored
		return m.id
	case err != nil && !errors.Is(err, domain.ErrNotFound):
		m.id = NewID(m.now())
		m.logger.Warn("Session storage unreadable, using in-memory session id",
			zap.String("session_id", m.id),
			zap.Error(err),
		)
		return m.id
	}

	id := NewID(m.now())
	if err := m.store.Set(ctx, StorageKey, id); err != nil {
		m.logger.Warn("Failed to persist session id, it will not survive a restart",
			zap.String("session_id", id),
			zap.Error(err),
		)
	} else {
		m.logger.Info("Created session", zap.String("session_id", id))
	}

	m.id = id
	return m.id
}

// NewID generates a session id of the form session_<unix millis>_<suffix>
func NewID(now time.Time) string {
	random := uuid.New()

	var b strings.Builder
	b.Grow(suffixLen)
	for i := 0; i < suffixLen; i++ {
		b.WriteByte(suffixAlphabet[int(random[i])%len(suffixAlphabet)])
	}

	return fmt.Sprintf("session_%d_%s", now.UnixMilli(), b.String())
}
