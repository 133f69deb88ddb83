// Package session keeps the per-chat conversation state of the bot.
package session

import (
	"context"
	"sync"
)

// State is a chat's conversation state. The zero value is Idle.
type State struct {
	// AwaitingFaceID is the face whose name the chat was asked for.
	AwaitingFaceID string `json:"awaiting_face_id,omitempty"`
}

func (s State) Idle() bool { return s.AwaitingFaceID == "" }

func Awaiting(faceID string) State { return State{AwaitingFaceID: faceID} }

// Store persists State per chat. Loading an unknown chat yields Idle.
type Store interface {
	Load(ctx context.Context, chatID string) (State, error)
	Save(ctx context.Context, chatID string, s State) error
	Ping(ctx context.Context) error
}

// MemoryStore keeps sessions in process memory; they are lost on restart.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]State
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]State)}
}

func (m *MemoryStore) Load(_ context.Context, chatID string) (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[chatID], nil
}

func (m *MemoryStore) Save(_ context.Context, chatID string, s State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.Idle() {
		delete(m.sessions, chatID)
		return nil
	}
	m.sessions[chatID] = s
	return nil
}

func (m *MemoryStore) Ping(context.Context) error { return nil }
