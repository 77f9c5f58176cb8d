// Package session persists live game sessions in the shared key-value
// backend. The backend, not any one server process, is authoritative:
// every mutation is a load-modify-save round trip, and concurrent writers
// from different instances race with last-writer-wins semantics. Game
// outcomes must therefore never depend on sub-second cross-process write
// order; anything order-sensitive is timestamped at arrival instead.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/knowandlove/classquiz-go/kv"
	"github.com/knowandlove/classquiz-go/logger"
	"github.com/knowandlove/classquiz-go/models"
)

// Key layout in the backend
const (
	sessionKeyPrefix  = "session:"
	joinCodeKeyPrefix = "joincode:"
	playerKeyPrefix   = "player:"
	activeRegistryKey = "sessions:active"
)

// Status-dependent time-to-live: generous while the game can still be
// played, short once it is over. The TTL must outlive the current phase
// and shrink as the session advances toward finished.
const (
	lobbyTTL    = 2 * time.Hour
	activeTTL   = 1 * time.Hour
	finishedTTL = 5 * time.Minute
)

// maxCodeAttempts bounds how many join codes Create tries before giving
// up; the code space is large enough that hitting this means the backend
// is in serious trouble
const maxCodeAttempts = 5

// Store reads and writes sessions through the shared backend
type Store struct {
	backend kv.Store

	// newCode is swappable so tests can force join-code collisions
	newCode func() string
}

// NewStore creates a session store over the given backend
func NewStore(backend kv.Store) *Store {
	return &Store{
		backend: backend,
		newCode: models.NewJoinCode,
	}
}

func sessionKey(id string) string      { return sessionKeyPrefix + id }
func joinCodeKey(code string) string   { return joinCodeKeyPrefix + strings.ToUpper(code) }
func playerKey(playerID string) string { return playerKeyPrefix + playerID }

func ttlFor(status string) time.Duration {
	switch status {
	case models.StatusActive:
		return activeTTL
	case models.StatusFinished:
		return finishedTTL
	default:
		return lobbyTTL
	}
}

// Create allocates a new lobby session under a join code no live session
// holds. The code is claimed with an atomic set-if-absent before anything
// else is written, so two instances drawing the same code cannot both
// publish it; the loser redraws. A code stays claimed until the session's
// mapping expires or is removed, which keeps it resolving to at most one
// non-finished session at a time.
func (s *Store) Create(ctx context.Context) (*models.GameSession, error) {
	sess := models.NewGameSession()

	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		sess.JoinCode = s.newCode()

		claimed, err := s.backend.SetNX(ctx, joinCodeKey(sess.JoinCode), sess.ID, ttlFor(sess.Status))
		if err != nil {
			return nil, fmt.Errorf("claim join code: %w", err)
		}
		if !claimed {
			continue
		}

		if err := s.Save(ctx, sess); err != nil {
			// Free the claim rather than stranding the code until TTL
			if delErr := s.backend.Del(ctx, joinCodeKey(sess.JoinCode)); delErr != nil {
				logger.L.Warn("releasing claimed join code failed",
					zap.String("join_code", sess.JoinCode), zap.Error(delErr))
			}
			return nil, err
		}

		return sess, nil
	}

	return nil, fmt.Errorf("no free join code after %d attempts", maxCodeAttempts)
}

// Save persists the session and republishes its secondary mappings
// (join-code and per-player lookups). The primary record is written
// first; if it fails, no mapping is published. Registration in the
// active-session registry is additive and idempotent.
func (s *Store) Save(ctx context.Context, sess *models.GameSession) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshal session %s: %w", sess.ID, err)
	}

	ttl := ttlFor(sess.Status)

	if err := s.backend.SetEX(ctx, sessionKey(sess.ID), string(data), ttl); err != nil {
		return fmt.Errorf("save session %s: %w", sess.ID, err)
	}

	if err := s.backend.SetEX(ctx, joinCodeKey(sess.JoinCode), sess.ID, ttl); err != nil {
		return fmt.Errorf("save join code mapping %s: %w", sess.JoinCode, err)
	}

	for playerID := range sess.Players {
		if err := s.backend.SetEX(ctx, playerKey(playerID), sess.ID, ttl); err != nil {
			return fmt.Errorf("save player mapping %s: %w", playerID, err)
		}
	}

	if err := s.backend.SAdd(ctx, activeRegistryKey, sess.ID); err != nil {
		return fmt.Errorf("register session %s: %w", sess.ID, err)
	}

	return nil
}

// Load returns the session for id, or ErrSessionNotFound
func (s *Store) Load(ctx context.Context, id string) (*models.GameSession, error) {
	data, ok := s.backend.Get(ctx, sessionKey(id))
	if !ok {
		return nil, models.ErrSessionNotFound
	}

	var sess models.GameSession
	if err := json.Unmarshal([]byte(data), &sess); err != nil {
		return nil, fmt.Errorf("unmarshal session %s: %w", id, err)
	}

	return &sess, nil
}

// ResolveByJoinCode returns the session id for a join code,
// case-insensitively, or ErrSessionNotFound
func (s *Store) ResolveByJoinCode(ctx context.Context, code string) (string, error) {
	id, ok := s.backend.Get(ctx, joinCodeKey(code))
	if !ok {
		return "", models.ErrSessionNotFound
	}
	return id, nil
}

// ResolveByPlayerID returns the session id a player belongs to,
// or ErrSessionNotFound
func (s *Store) ResolveByPlayerID(ctx context.Context, playerID string) (string, error) {
	id, ok := s.backend.Get(ctx, playerKey(playerID))
	if !ok {
		return "", models.ErrSessionNotFound
	}
	return id, nil
}

// Remove deletes the session, every secondary mapping derived from its
// current player set, and its registry entry. Safe to call repeatedly;
// already-missing mappings are not an error.
func (s *Store) Remove(ctx context.Context, sess *models.GameSession) error {
	keys := []string{sessionKey(sess.ID), joinCodeKey(sess.JoinCode)}
	for playerID := range sess.Players {
		keys = append(keys, playerKey(playerID))
	}

	if err := s.backend.Del(ctx, keys...); err != nil {
		return fmt.Errorf("remove session %s: %w", sess.ID, err)
	}

	if err := s.backend.SRem(ctx, activeRegistryKey, sess.ID); err != nil {
		return fmt.Errorf("deregister session %s: %w", sess.ID, err)
	}

	return nil
}

// RemovePlayerMapping drops the player→session lookup for a player who
// has left. Save only republishes mappings for current players, so
// without this the departed player's mapping would linger until its TTL.
func (s *Store) RemovePlayerMapping(ctx context.Context, playerID string) error {
	if err := s.backend.Del(ctx, playerKey(playerID)); err != nil {
		return fmt.Errorf("remove player mapping %s: %w", playerID, err)
	}
	return nil
}

// UpdatePlayer applies a mutation to one player via load-modify-save.
// Concurrent writers to the same session from different processes can
// still lose updates; see the package comment.
func (s *Store) UpdatePlayer(ctx context.Context, sessionID, playerID string, update func(*models.Player)) error {
	sess, err := s.Load(ctx, sessionID)
	if err != nil {
		return err
	}

	player, ok := sess.Players[playerID]
	if !ok {
		return models.ErrPlayerNotFound
	}

	update(player)

	return s.Save(ctx, sess)
}

// ListActiveIDs returns the active-registry contents. Background
// maintenance only; never consulted for per-request correctness.
func (s *Store) ListActiveIDs(ctx context.Context) ([]string, error) {
	return s.backend.SMembers(ctx, activeRegistryKey)
}

// ReapExpired removes registry entries whose session record the backend
// has already evicted. Returns the number reaped. Meant to run on an
// interval, not on the hot path.
func (s *Store) ReapExpired(ctx context.Context) int {
	ids, err := s.backend.SMembers(ctx, activeRegistryKey)
	if err != nil {
		logger.L.Warn("reap: listing active sessions failed", zap.Error(err))
		return 0
	}

	reaped := 0
	for _, id := range ids {
		if _, ok := s.backend.Get(ctx, sessionKey(id)); ok {
			continue
		}
		if err := s.backend.SRem(ctx, activeRegistryKey, id); err != nil {
			logger.L.Warn("reap: deregister failed", zap.String("session_id", id), zap.Error(err))
			continue
		}
		reaped++
	}

	return reaped
}
