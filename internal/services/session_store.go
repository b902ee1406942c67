package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/uptrace/bun"

	"github.com/lapig-ufg/pasto-legal/internal/resolution"
)

// SessionStore persists the resolution state of each conversation. Load
// returns a fresh IDLE state for unknown conversations. Returned states are
// private copies; changes only take effect through Save.
type SessionStore interface {
	Load(ctx context.Context, conversationID string) (*resolution.State, error)
	Save(ctx context.Context, conversationID string, state *resolution.State) error
}

const DefaultSessionCacheSize = 1024

// MemorySessionStore keeps the most recently used conversations in memory.
// Evicted conversations start over from IDLE.
type MemorySessionStore struct {
	cache *lru.Cache[string, *resolution.State]
}

func NewMemorySessionStore(size int) (*MemorySessionStore, error) {
	if size <= 0 {
		size = DefaultSessionCacheSize
	}
	cache, err := lru.New[string, *resolution.State](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create session cache: %w", err)
	}
	return &MemorySessionStore{cache: cache}, nil
}

func (m *MemorySessionStore) Load(_ context.Context, conversationID string) (*resolution.State, error) {
	if st, ok := m.cache.Get(conversationID); ok {
		return st.Clone(), nil
	}
	return resolution.NewState(), nil
}

func (m *MemorySessionStore) Save(_ context.Context, conversationID string, state *resolution.State) error {
	m.cache.Add(conversationID, state.Clone())
	return nil
}

// ConversationState is the persisted snapshot of one conversation.
type ConversationState struct {
	bun.BaseModel `bun:"table:conversation_states,alias:cs"`

	ConversationID string            `bun:"conversation_id,pk"`
	State          *resolution.State `bun:"state,type:jsonb,notnull"`
	UpdatedAt      time.Time         `bun:"updated_at,notnull,default:current_timestamp"`
}

// BunSessionStore keeps states in Postgres with an LRU read-through cache.
// The cache is only correct while this process is the single writer for the
// conversations it serves.
type BunSessionStore struct {
	db    *bun.DB
	cache *lru.Cache[string, *resolution.State]
}

func NewBunSessionStore(db *bun.DB, cacheSize int) (*BunSessionStore, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultSessionCacheSize
	}
	cache, err := lru.New[string, *resolution.State](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create session cache: %w", err)
	}
	return &BunSessionStore{db: db, cache: cache}, nil
}

// EnsureSchema creates the state table when missing.
func (b *BunSessionStore) EnsureSchema(ctx context.Context) error {
	_, err := b.db.NewCreateTable().
		Model((*ConversationState)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create conversation_states: %w", err)
	}
	return nil
}

func (b *BunSessionStore) Load(ctx context.Context, conversationID string) (*resolution.State, error) {
	if st, ok := b.cache.Get(conversationID); ok {
		return st.Clone(), nil
	}

	row := new(ConversationState)
	err := b.db.NewSelect().
		Model(row).
		Where("conversation_id = ?", conversationID).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return resolution.NewState(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation %s: %w", conversationID, err)
	}
	if row.State == nil {
		row.State = resolution.NewState()
	}

	b.cache.Add(conversationID, row.State)
	return row.State.Clone(), nil
}

func (b *BunSessionStore) Save(ctx context.Context, conversationID string, state *resolution.State) error {
	row := &ConversationState{
		ConversationID: conversationID,
		State:          state.Clone(),
		UpdatedAt:      time.Now(),
	}
	_, err := b.db.NewInsert().
		Model(row).
		On("CONFLICT (conversation_id) DO UPDATE").
		Set("state = EXCLUDED.state").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		b.cache.Remove(conversationID)
		return fmt.Errorf("failed to save conversation %s: %w", conversationID, err)
	}

	b.cache.Add(conversationID, row.State)
	return nil
}
