package models

import (
	"crypto/rand"
	"time"

	"github.com/google/uuid"
)

// Alphabet for join codes; ambiguous characters (0/O, 1/I/L) are excluded
const joinCodeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

// JoinCodeLength is the fixed length of a game join code
const JoinCodeLength = 4

// NewJoinCode generates a random human-typeable join code
func NewJoinCode() string {
	b := make([]byte, JoinCodeLength)
	_, _ = rand.Read(b)
	for i := range b {
		b[i] = joinCodeAlphabet[int(b[i])%len(joinCodeAlphabet)]
	}
	return string(b)
}

// NewGameSession creates a new session in the lobby phase
func NewGameSession() *GameSession {
	return &GameSession{
		ID:          uuid.New().String(),
		JoinCode:    NewJoinCode(),
		Status:      StatusLobby,
		Players:     make(map[string]*Player),
		PlayerOrder: make([]string, 0),
		CreatedAt:   time.Now().UTC(),
	}
}

// AddPlayer adds a new player to the session
func (s *GameSession) AddPlayer(id, name string) bool {
	if _, exists := s.Players[id]; exists {
		return false
	}

	now := time.Now().UTC()
	s.Players[id] = &Player{
		ID:        id,
		Name:      name,
		Connected: true,
		Answers:   make(map[string]Answer),
		JoinedAt:  now,
		LastSeen:  now,
	}
	s.PlayerOrder = append(s.PlayerOrder, id)

	return true
}

// RemovePlayer removes a player from the session
func (s *GameSession) RemovePlayer(id string) bool {
	if _, exists := s.Players[id]; !exists {
		return false
	}

	delete(s.Players, id)
	for i, pid := range s.PlayerOrder {
		if pid == id {
			s.PlayerOrder = append(s.PlayerOrder[:i], s.PlayerOrder[i+1:]...)
			break
		}
	}

	return true
}

// MarkDisconnected flags a player as disconnected without removing them,
// so they can reconnect later
func (s *GameSession) MarkDisconnected(id string) bool {
	player, exists := s.Players[id]
	if !exists {
		return false
	}

	player.Connected = false
	player.LastSeen = time.Now().UTC()

	return true
}

// SetReady marks a player as ready in the lobby
func (s *GameSession) SetReady(id string) bool {
	player, exists := s.Players[id]
	if !exists {
		return false
	}

	player.Ready = true

	return true
}

// SubmitAnswer records a player's answer for the current question,
// timestamped at arrival so answer order never depends on write order
func (s *GameSession) SubmitAnswer(playerID, questionID, answerID string, at time.Time) bool {
	player, exists := s.Players[playerID]
	if !exists || s.Status != StatusActive {
		return false
	}

	// First answer wins; repeats within the same question are ignored
	if _, answered := player.Answers[questionID]; answered {
		return true
	}

	player.Answers[questionID] = Answer{AnswerID: answerID, ReceivedAt: at}
	player.LastSeen = at

	return true
}

// Start moves the session from lobby to active
func (s *GameSession) Start() bool {
	if s.Status != StatusLobby {
		return false
	}

	now := time.Now().UTC()
	s.Status = StatusActive
	s.StartedAt = now
	s.QuestionStartedAt = now
	s.CurrentQuestion = 0

	return true
}

// Advance moves the session to the next question
func (s *GameSession) Advance() bool {
	if s.Status != StatusActive {
		return false
	}

	s.CurrentQuestion++
	s.QuestionStartedAt = time.Now().UTC()

	return true
}

// Finish moves the session to its terminal state
func (s *GameSession) Finish() bool {
	if s.Status == StatusFinished {
		return false
	}

	s.Status = StatusFinished
	s.FinishedAt = time.Now().UTC()

	return true
}

// OrderedPlayers returns players in join order
func (s *GameSession) OrderedPlayers() []*Player {
	players := make([]*Player, 0, len(s.PlayerOrder))
	for _, id := range s.PlayerOrder {
		if p, ok := s.Players[id]; ok {
			players = append(players, p)
		}
	}
	return players
}
