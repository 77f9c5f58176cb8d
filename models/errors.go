package models

import "errors"

// Common errors
var (
	ErrSessionNotFound   = errors.New("session not found")
	ErrPlayerNotFound    = errors.New("player not found in session")
	ErrPlayerExists      = errors.New("player already exists in session")
	ErrGameNotJoinable   = errors.New("game is not accepting players")
	ErrInvalidJoinCode   = errors.New("invalid join code")
	ErrInvalidPlayerName = errors.New("invalid player name")
	ErrJobNotFound       = errors.New("job not found")
)
