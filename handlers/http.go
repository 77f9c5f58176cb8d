package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/knowandlove/classquiz-go/admission"
	"github.com/knowandlove/classquiz-go/logger"
	"github.com/knowandlove/classquiz-go/models"
	"github.com/knowandlove/classquiz-go/protocol"
	"github.com/knowandlove/classquiz-go/queue"
	"github.com/knowandlove/classquiz-go/session"
	"github.com/knowandlove/classquiz-go/ticket"
)

// standardResponse sends a consistent JSON response
func standardResponse(c *gin.Context, code int, status string, data interface{}, err string) {
	response := gin.H{"status": status}

	if data != nil {
		response["data"] = data
	}

	if err != "" {
		response["error"] = err
	}

	c.JSON(code, response)
}

// Handler wires the coordination components into the HTTP surface
type Handler struct {
	sessions    *session.Store
	tickets     *ticket.Authenticator
	admission   *admission.Controller
	queue       queue.Queue
	idleTimeout time.Duration
}

// Options collects the collaborators a Handler needs
type Options struct {
	Sessions    *session.Store
	Tickets     *ticket.Authenticator
	Admission   *admission.Controller
	Queue       queue.Queue
	IdleTimeout time.Duration
}

// New creates a Handler
func New(opts Options) *Handler {
	return &Handler{
		sessions:    opts.Sessions,
		tickets:     opts.Tickets,
		admission:   opts.Admission,
		queue:       opts.Queue,
		idleTimeout: opts.IdleTimeout,
	}
}

// CreateSession handles session creation requests from a host
func (h *Handler) CreateSession(c *gin.Context) {
	sess, err := h.sessions.Create(c.Request.Context())
	if err != nil {
		logger.L.Error("create session failed", zap.Error(err))
		standardResponse(c, http.StatusServiceUnavailable, "error", nil, "could not create session")
		return
	}

	standardResponse(c, http.StatusCreated, "created", gin.H{
		"sessionId": sess.ID,
		"joinCode":  sess.JoinCode,
	}, "")
}

// IssueTicket handles upgrade-ticket requests
func (h *Handler) IssueTicket(c *gin.Context) {
	var req struct {
		SubjectID string `json:"subjectId"`
		SessionID string `json:"sessionId"`
	}

	// An empty body is fine; both bindings are optional
	_ = c.ShouldBindJSON(&req)

	t := h.tickets.Issue(req.SubjectID, req.SessionID)

	standardResponse(c, http.StatusCreated, "created", gin.H{
		"token":     t.Token,
		"expiresAt": t.ExpiresAt,
	}, "")
}

// EnqueueJob handles requests to start a pairing or insight computation
// for a group
func (h *Handler) EnqueueJob(c *gin.Context) {
	groupID := c.Param("id")
	kind := c.DefaultQuery("kind", models.JobKindPairing)

	if !protocol.ValidID(groupID) {
		standardResponse(c, http.StatusBadRequest, "error", nil, "invalid group id")
		return
	}
	if kind != models.JobKindPairing && kind != models.JobKindInsight {
		standardResponse(c, http.StatusBadRequest, "error", nil, "unknown job kind")
		return
	}

	job, err := h.queue.Enqueue(c.Request.Context(), kind, groupID)
	if err != nil {
		logger.L.Error("enqueue failed",
			zap.String("kind", kind),
			zap.String("group_id", groupID),
			zap.Error(err),
		)
		standardResponse(c, http.StatusServiceUnavailable, "error", nil, "could not enqueue job")
		return
	}

	standardResponse(c, http.StatusAccepted, "accepted", job, "")
}

// PollJob handles result-polling requests for a previously enqueued job
func (h *Handler) PollJob(c *gin.Context) {
	groupID := c.Param("id")
	kind := c.DefaultQuery("kind", models.JobKindPairing)

	if !protocol.ValidID(groupID) {
		standardResponse(c, http.StatusBadRequest, "error", nil, "invalid group id")
		return
	}

	result := h.queue.PollResult(c.Request.Context(), kind, groupID)

	switch result.State {
	case queue.PollCached:
		c.Data(http.StatusOK, "application/json", result.Result)
	case queue.PollProcessing:
		standardResponse(c, http.StatusAccepted, "processing", result.Job, "")
	default:
		standardResponse(c, http.StatusNotFound, "error", nil, "no result; enqueue first")
	}
}
