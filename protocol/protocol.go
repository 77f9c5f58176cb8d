// Package protocol gates every inbound real-time message. The transport
// carries arbitrary client-supplied JSON, so each message must pass an
// explicit allow-list of shapes before it reaches game logic; there is no
// trust boundary between "connected" and "well-formed".
package protocol

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/knowandlove/classquiz-go/models"
)

// MaxNameLength caps player display names
const MaxNameLength = 30

// maxIDLength caps question and answer identifiers
const maxIDLength = 64

// Envelope is the wire shape of every client message
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Message is a validated, normalized client message. Payload holds the
// typed payload for the message type, or nil for control messages.
type Message struct {
	Type    string
	Payload interface{}
}

// JoinGamePayload carries a join request
type JoinGamePayload struct {
	GameCode   string `json:"gameCode"`
	PlayerName string `json:"playerName"`
}

// SubmitAnswerPayload carries an answer submission
type SubmitAnswerPayload struct {
	QuestionID string `json:"questionId"`
	AnswerID   string `json:"answerId"`
}

// payloadFunc validates and normalizes a payload; nil means the type
// takes no payload
type payloadFunc func(json.RawMessage) (interface{}, error)

var messageTypes = map[string]payloadFunc{
	models.MsgJoinGame:     parseJoinGame,
	models.MsgSubmitAnswer: parseSubmitAnswer,
	models.MsgPlayerReady:  nil,
	models.MsgStartGame:    nil,
	models.MsgNextQuestion: nil,
	models.MsgLeaveGame:    nil,
	models.MsgHeartbeat:    nil,
}

// Validate checks the envelope, the declared type, and the payload shape.
// Unknown types are rejected explicitly, never silently dropped. The
// returned error is a user-presentable reason naming the offending field.
func Validate(raw []byte) (*Message, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("malformed message envelope")
	}
	if env.Type == "" {
		return nil, fmt.Errorf("message type is required")
	}

	parse, known := messageTypes[env.Type]
	if !known {
		return nil, fmt.Errorf("unknown message type %q", env.Type)
	}

	if parse == nil {
		if len(env.Data) > 0 && string(env.Data) != "null" {
			return nil, fmt.Errorf("%s: unexpected payload", env.Type)
		}
		return &Message{Type: env.Type}, nil
	}

	if len(env.Data) == 0 {
		return nil, fmt.Errorf("%s: payload is required", env.Type)
	}

	payload, err := parse(env.Data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", env.Type, err)
	}

	return &Message{Type: env.Type, Payload: payload}, nil
}

func parseJoinGame(data json.RawMessage) (interface{}, error) {
	var p JoinGamePayload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("malformed payload")
	}

	p.GameCode = strings.ToUpper(strings.TrimSpace(p.GameCode))
	if !ValidGameCode(p.GameCode) {
		return nil, fmt.Errorf("gameCode must be %d alphanumeric characters", models.JoinCodeLength)
	}

	p.PlayerName = SanitizeText(p.PlayerName, MaxNameLength)
	if p.PlayerName == "" {
		return nil, fmt.Errorf("playerName is required")
	}

	return &p, nil
}

func parseSubmitAnswer(data json.RawMessage) (interface{}, error) {
	var p SubmitAnswerPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("malformed payload")
	}

	if !ValidID(p.QuestionID) {
		return nil, fmt.Errorf("questionId is missing or malformed")
	}
	if !ValidID(p.AnswerID) {
		return nil, fmt.Errorf("answerId is missing or malformed")
	}

	return &p, nil
}

var (
	gameCodeRe = regexp.MustCompile(`^[A-Z0-9]+$`)
	idRe       = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
	markupRe   = regexp.MustCompile(`<[^>]*>?`)
)

// SanitizeText trims whitespace, strips markup-like sequences, and
// enforces a hard length cap. Usable on any free-text field before it is
// stored or echoed to other clients.
func SanitizeText(s string, max int) string {
	s = markupRe.ReplaceAllString(s, "")
	s = strings.TrimSpace(s)

	if utf8.RuneCountInString(s) > max {
		runes := []rune(s)
		s = strings.TrimSpace(string(runes[:max]))
	}

	return s
}

// ValidGameCode reports whether s is a well-formed join code
func ValidGameCode(s string) bool {
	return len(s) == models.JoinCodeLength && gameCodeRe.MatchString(s)
}

// ValidID reports whether s is a bounded-length identifier
func ValidID(s string) bool {
	return s != "" && len(s) <= maxIDLength && idRe.MatchString(s)
}
