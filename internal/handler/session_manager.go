package handler

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"novel-client/internal/creator"
	"novel-client/internal/engine"
	"novel-client/internal/interfaces"
	"novel-client/internal/loader"
	"novel-client/internal/models"
	"novel-client/internal/saves"
)

// Session bundles one play session's collaborators. Everything hangs
// off the engine; the creator layer and autoplay are built per session
// because they hold per-session state.
type Session struct {
	ID       uuid.UUID
	Engine   *engine.Engine
	Creator  *creator.Layer
	Autoplay *engine.Autoplay

	// ctx outlives individual requests; background work like autoplay
	// runs under it and dies with the session.
	ctx    context.Context
	cancel context.CancelFunc

	stream *stateStream
}

// Context returns the session-scoped context, canceled on close.
func (s *Session) Context() context.Context { return s.ctx }

// SessionOptions tune a new session.
type SessionOptions struct {
	CreatorMode         bool
	AdvanceDebounce     time.Duration
	AutoAdvanceInterval time.Duration
}

// SessionManager owns the live sessions of this process.
type SessionManager struct {
	log    *zap.Logger
	client interfaces.StoryAPIClient
	loader *loader.Loader
	saves  *saves.Adapter

	mu       sync.RWMutex
	sessions map[uuid.UUID]*Session
}

func NewSessionManager(client interfaces.StoryAPIClient, ldr *loader.Loader, savesAdapter *saves.Adapter, logger *zap.Logger) *SessionManager {
	return &SessionManager{
		log:      logger.Named("SessionManager"),
		client:   client,
		loader:   ldr,
		saves:    savesAdapter,
		sessions: make(map[uuid.UUID]*Session),
	}
}

// CreateSession fetches the work, builds an engine around it and plays
// chapter 1. The returned session is registered and ready to serve.
func (m *SessionManager) CreateSession(ctx context.Context, workID string, opts SessionOptions) (*Session, error) {
	work, err := m.client.GetWork(ctx, workID)
	if err != nil {
		return nil, err
	}

	eng := engine.NewEngine(*work, m.loader, m.log, engine.Options{
		CreatorMode:     opts.CreatorMode,
		AdvanceDebounce: opts.AdvanceDebounce,
	})
	if err := eng.Start(ctx); err != nil {
		return nil, err
	}

	sctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		ID:       uuid.New(),
		Engine:   eng,
		Creator:  creator.NewLayer(eng, m.loader, m.log),
		Autoplay: engine.NewAutoplay(eng, opts.AutoAdvanceInterval, m.log),
		ctx:      sctx,
		cancel:   cancel,
		stream:   newStateStream(),
	}
	eng.SetOnChange(func() {
		s.stream.publish(s.projectedView())
	})

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()

	m.log.Info("Session created",
		zap.String("sessionID", s.ID.String()),
		zap.String("workID", workID),
		zap.Bool("creatorMode", opts.CreatorMode))
	return s, nil
}

// GetSession returns a registered session or models.ErrNotFound.
func (m *SessionManager) GetSession(id uuid.UUID) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return s, nil
}

// CloseSession stops autoplay, drops stream subscribers and forgets the
// session.
func (m *SessionManager) CloseSession(id uuid.UUID) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	m.mu.Unlock()
	if !ok {
		return models.ErrNotFound
	}
	s.cancel()
	s.Autoplay.Stop()
	s.stream.closeAll()
	m.log.Info("Session closed", zap.String("sessionID", id.String()))
	return nil
}

// Count reports the number of live sessions.
func (m *SessionManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Saves exposes the save/restore adapter shared by all sessions.
func (m *SessionManager) Saves() *saves.Adapter { return m.saves }

// projectedView is the engine view with the session's creator overrides
// applied. This is what every transport (REST and websocket) serves.
func (s *Session) projectedView() engine.View {
	v := s.Engine.View()
	if v.Scene == nil {
		return v
	}
	scene := s.Creator.Apply(*v.Scene)
	v.Scene = &scene
	if v.DialogueIndex >= 0 && v.DialogueIndex < len(scene.Dialogues) {
		d := scene.Dialogues[v.DialogueIndex]
		v.Dialogue = &d
	}
	return v
}
