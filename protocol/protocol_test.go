package protocol

import (
	"strings"
	"testing"

	"github.com/knowandlove/classquiz-go/models"
)

func TestValidateJoinGame(t *testing.T) {
	msg, err := Validate([]byte(`{"type":"join-game","data":{"gameCode":"AB12","playerName":"Sam"}}`))
	if err != nil {
		t.Fatalf("valid join rejected: %v", err)
	}

	payload, ok := msg.Payload.(*JoinGamePayload)
	if !ok {
		t.Fatalf("wrong payload type %T", msg.Payload)
	}
	if payload.GameCode != "AB12" || payload.PlayerName != "Sam" {
		t.Fatalf("payload not normalized: %+v", payload)
	}
}

func TestValidateNormalizesJoinFields(t *testing.T) {
	msg, err := Validate([]byte(`{"type":"join-game","data":{"gameCode":" ab12 ","playerName":"  <b>Sam</b> "}}`))
	if err != nil {
		t.Fatalf("normalizable join rejected: %v", err)
	}

	payload := msg.Payload.(*JoinGamePayload)
	if payload.GameCode != "AB12" {
		t.Fatalf("game code not upcased/trimmed: %q", payload.GameCode)
	}
	if payload.PlayerName != "Sam" {
		t.Fatalf("player name not sanitized: %q", payload.PlayerName)
	}
}

func TestValidateRejectsWithFieldReason(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"short code", `{"type":"join-game","data":{"gameCode":"AB1","playerName":"Sam"}}`, "gameCode"},
		{"empty name", `{"type":"join-game","data":{"gameCode":"AB12","playerName":"<>"}}`, "playerName"},
		{"missing payload", `{"type":"join-game"}`, "payload is required"},
		{"bad answer id", `{"type":"submit-answer","data":{"questionId":"q1","answerId":"!!"}}`, "answerId"},
		{"missing question id", `{"type":"submit-answer","data":{"answerId":"a1"}}`, "questionId"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Validate([]byte(tt.raw))
			if err == nil {
				t.Fatal("expected rejection")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("reason %q does not reference %q", err.Error(), tt.want)
			}
		})
	}
}

func TestValidateRejectsUnknownType(t *testing.T) {
	_, err := Validate([]byte(`{"type":"unknown-thing"}`))
	if err == nil {
		t.Fatal("unknown type must be rejected")
	}
	if !strings.Contains(err.Error(), "unknown-thing") {
		t.Fatalf("reason should name the type: %v", err)
	}
}

func TestValidateRejectsMalformedEnvelope(t *testing.T) {
	for _, raw := range []string{`not json`, `{"data":{}}`, `42`} {
		if _, err := Validate([]byte(raw)); err == nil {
			t.Fatalf("envelope %q must be rejected", raw)
		}
	}
}

func TestControlMessagesTakeNoPayload(t *testing.T) {
	msg, err := Validate([]byte(`{"type":"heartbeat"}`))
	if err != nil {
		t.Fatalf("bare heartbeat rejected: %v", err)
	}
	if msg.Type != models.MsgHeartbeat || msg.Payload != nil {
		t.Fatalf("unexpected message: %+v", msg)
	}

	if _, err := Validate([]byte(`{"type":"start-game","data":{"x":1}}`)); err == nil {
		t.Fatal("control message with payload must be rejected")
	}

	// An explicit null payload counts as absent
	if _, err := Validate([]byte(`{"type":"player-ready","data":null}`)); err != nil {
		t.Fatalf("null payload should be accepted: %v", err)
	}
}

func TestSanitizeText(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"  Sam  ", 30, "Sam"},
		{"<script>alert(1)</script>Sam", 30, "alert(1)Sam"},
		{"Sam<img src=x", 30, "Sam"},
		{"abcdefghij", 5, "abcde"},
		{"", 30, ""},
	}

	for _, tt := range tests {
		if got := SanitizeText(tt.in, tt.max); got != tt.want {
			t.Fatalf("SanitizeText(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
		}
	}
}

func TestValidGameCode(t *testing.T) {
	valid := []string{"AB12", "ZZZZ", "1234"}
	invalid := []string{"", "AB1", "AB123", "ab12", "AB!2"}

	for _, code := range valid {
		if !ValidGameCode(code) {
			t.Fatalf("%q should be valid", code)
		}
	}
	for _, code := range invalid {
		if ValidGameCode(code) {
			t.Fatalf("%q should be invalid", code)
		}
	}
}

func TestValidID(t *testing.T) {
	if !ValidID("q-12_b") {
		t.Fatal("well-formed id rejected")
	}
	if ValidID("") || ValidID(strings.Repeat("a", 65)) || ValidID("a b") {
		t.Fatal("malformed id accepted")
	}
}
