package models

// Session statuses
const (
	StatusLobby    = "lobby"
	StatusActive   = "active"
	StatusFinished = "finished"
)

// Client message types
const (
	MsgJoinGame     = "join-game"
	MsgSubmitAnswer = "submit-answer"
	MsgPlayerReady  = "player-ready"
	MsgStartGame    = "start-game"
	MsgNextQuestion = "next-question"
	MsgLeaveGame    = "leave-game"
	MsgHeartbeat    = "heartbeat"
)

// Event types pushed to clients
const (
	EventTypeJoined           = "joined"
	EventTypePlayerJoined     = "player_joined"
	EventTypePlayerLeft       = "player_left"
	EventTypePlayerReady      = "player_ready"
	EventTypeGameStarted      = "game_started"
	EventTypeQuestionAdvanced = "question_advanced"
	EventTypeGameFinished     = "game_finished"
	EventTypeAnswerReceived   = "answer_received"
	EventTypeError            = "error"
)

// Job kinds
const (
	JobKindPairing = "pairing"
	JobKindInsight = "insight"
)

// Job statuses
const (
	JobWaiting   = "waiting"
	JobActive    = "active"
	JobCompleted = "completed"
	JobFailed    = "failed"
)
