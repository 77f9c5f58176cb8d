// Package db provides read-only access to durable participant records.
// The coordination layer only ever needs pairing-input data: who is in a
// group and what personality type each participant tested as. Everything
// else about the relational store belongs to the CRUD API, not here.
package db

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

// Participant is one member of a group, with the classification attribute
// the pairing computation scores against
type Participant struct {
	ID     string `db:"id" json:"id"`
	Name   string `db:"name" json:"name"`
	Animal string `db:"animal_type" json:"animalType"`
}

// ParticipantSource is the durable-store collaborator: keyed lookup of a
// group's participants. Implementations return an ordered slice, empty
// when the group is unknown, never nil.
type ParticipantSource interface {
	ListByGroup(ctx context.Context, groupID string) ([]Participant, error)
}

// Store reads participants from the relational database
type Store struct {
	db *sqlx.DB
}

// Open connects to the sqlite database at path
func Open(path string) (*Store, error) {
	conn, err := sqlx.Connect("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", path, err)
	}
	return &Store{db: conn}, nil
}

// Close releases the underlying connection
func (s *Store) Close() error {
	return s.db.Close()
}

// ListByGroup returns a group's participants ordered by name
func (s *Store) ListByGroup(ctx context.Context, groupID string) ([]Participant, error) {
	participants := []Participant{}
	err := s.db.SelectContext(ctx, &participants,
		`SELECT id, name, animal_type FROM students WHERE class_id = ? ORDER BY name`, groupID)
	if err != nil {
		return nil, fmt.Errorf("list participants for group %s: %w", groupID, err)
	}
	return participants, nil
}

// MemorySource is an in-process ParticipantSource for tests and local
// runs without a database
type MemorySource struct {
	Groups map[string][]Participant
}

// ListByGroup returns the configured participants for a group
func (m *MemorySource) ListByGroup(_ context.Context, groupID string) ([]Participant, error) {
	participants := m.Groups[groupID]
	if participants == nil {
		return []Participant{}, nil
	}
	return participants, nil
}
