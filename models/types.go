package models

import (
	"time"
)

// Player represents a participant in a live quiz session
type Player struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	Score     int               `json:"score"`
	Ready     bool              `json:"ready"`
	Connected bool              `json:"connected"`
	Answers   map[string]Answer `json:"answers"`
	JoinedAt  time.Time         `json:"joinedAt"`
	LastSeen  time.Time         `json:"lastSeen"`
}

// Answer records a player's pick for one question, timestamped at arrival
type Answer struct {
	AnswerID   string    `json:"answerId"`
	ReceivedAt time.Time `json:"receivedAt"`
}

// GameSession represents a live quiz game and its players
type GameSession struct {
	ID                string             `json:"id"`
	JoinCode          string             `json:"joinCode"`
	Status            string             `json:"status"`
	Players           map[string]*Player `json:"players"`
	PlayerOrder       []string           `json:"playerOrder"`
	CurrentQuestion   int                `json:"currentQuestion"`
	CreatedAt         time.Time          `json:"createdAt"`
	StartedAt         time.Time          `json:"startedAt,omitzero"`
	FinishedAt        time.Time          `json:"finishedAt,omitzero"`
	QuestionStartedAt time.Time          `json:"questionStartedAt,omitzero"`
}

// Ticket is a short-lived, single-use credential authorizing a
// WebSocket upgrade
type Ticket struct {
	Token     string    `json:"token"`
	SubjectID string    `json:"subjectId,omitempty"`
	SessionID string    `json:"sessionId,omitempty"`
	ExpiresAt time.Time `json:"expiresAt"`
	Used      bool      `json:"-"`
}

// Job is a unit of asynchronous computation keyed by (kind, input key)
type Job struct {
	ID         string    `json:"id"`
	Kind       string    `json:"kind"`
	InputKey   string    `json:"inputKey"`
	Status     string    `json:"status"`
	Result     []byte    `json:"result,omitempty"`
	Error      string    `json:"error,omitempty"`
	Attempts   int       `json:"attempts"`
	CreatedAt  time.Time `json:"createdAt"`
	FinishedAt time.Time `json:"finishedAt,omitzero"`
}

// Event represents a message pushed to connected clients
type Event struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}
