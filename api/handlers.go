package api

import (
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/stasishq/stasis/pkg/dump"
	"github.com/stasishq/stasis/pkg/launch"
	"github.com/stasishq/stasis/pkg/slot"
)

// ErrorResponse is the error body every non-2xx response carries.
type ErrorResponse struct {
	Error string `json:"error"`
}

// SessionResponse is one live session as exposed over the API. The API key
// stays server-side; UI clients talk to stasis, never to llama-server.
type SessionResponse struct {
	SessionID string    `json:"session_id"`
	ModelID   string    `json:"model_id"`
	PID       int       `json:"pid"`
	Port      int       `json:"port"`
	StartedAt time.Time `json:"started_at"`
}

// SaveDumpRequest is the save body the chat UI sends. Field names match the
// dump document wire format.
type SaveDumpRequest struct {
	ModelID          string               `json:"modelId"`
	Messages         []dump.ChatMessage   `json:"messages"`
	AssistantContext json.RawMessage      `json:"assistantContext,omitempty"`
	InferenceContext json.RawMessage      `json:"inferenceContext,omitempty"`
	RuntimeContext   *dump.RuntimeContext `json:"runtimeContext,omitempty"`
}

// RestoreDumpRequest asks for a dump to be restored for a model.
type RestoreDumpRequest struct {
	ModelID string `json:"modelId"`
}

// RestoreDumpResponse returns the restored messages plus what the restore
// had to change to get there.
type RestoreDumpResponse struct {
	Messages              []dump.ChatMessage `json:"messages"`
	SlotID                int                `json:"slotId"`
	Relaunched            bool               `json:"relaunched"`
	DriftDetected         bool               `json:"driftDetected"`
	MissingRuntimeContext bool               `json:"missingRuntimeContext"`
}

// JournalEntryResponse is one journaled slot action.
type JournalEntryResponse struct {
	ModelID    string    `json:"model_id"`
	DumpName   string    `json:"dump_name"`
	Action     string    `json:"action"`
	StatusCode int       `json:"status_code"`
	Error      string    `json:"error,omitempty"`
	RecordedAt time.Time `json:"recorded_at"`
}

// handlePing returns a simple health check response.
func (s *Server) handlePing(c *fiber.Ctx) error {
	return c.JSON("pong")
}

// handleListSessions returns the live sessions, one per model.
func (s *Server) handleListSessions(c *fiber.Ctx) error {
	sessions, err := s.sessions.List()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "failed to list sessions"})
	}

	out := make([]SessionResponse, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, SessionResponse{
			SessionID: sess.SessionID,
			ModelID:   sess.ModelID,
			PID:       sess.PID,
			Port:      sess.Port,
			StartedAt: sess.StartedAt,
		})
	}

	return c.JSON(map[string]any{
		"count":    len(out),
		"sessions": out,
	})
}

// handleListDumps returns the names of all stored dumps.
func (s *Server) handleListDumps(c *fiber.Ctx) error {
	names := s.store.List()
	if names == nil {
		names = []string{}
	}

	return c.JSON(map[string]any{
		"count": len(names),
		"dumps": names,
	})
}

// handleGetDump returns a single dump document by name.
func (s *Server) handleGetDump(c *fiber.Ctx) error {
	name := c.Params("name")

	doc, err := s.store.Read(name)
	if err != nil {
		return s.errorJSON(c, err)
	}

	return c.JSON(doc)
}

// handleSaveDump snapshots the KV cache and persists a new dump document.
func (s *Server) handleSaveDump(c *fiber.Ctx) error {
	name := c.Params("name")

	var req SaveDumpRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "invalid request body"})
	}
	if req.ModelID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "modelId is required"})
	}
	if len(req.Messages) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "messages are required"})
	}

	doc := &dump.Dump{
		ModelID:          req.ModelID,
		Messages:         req.Messages,
		AssistantContext: req.AssistantContext,
		InferenceContext: req.InferenceContext,
		RuntimeContext:   req.RuntimeContext,
	}

	// When the caller does not supply a runtime context, snapshot one from
	// the live session so the dump can be drift-checked on restore.
	if doc.RuntimeContext == nil {
		if desc, err := s.sessions.FindByModel(req.ModelID); err == nil && desc != nil {
			doc.RuntimeContext = launch.CaptureRuntimeContext(desc, s.config.ModelsDir)
		}
	}

	if err := s.store.Save(c.Context(), name, doc); err != nil {
		s.logger.Warn("dump save failed",
			zap.String("name", name),
			zap.Error(err),
		)
		return s.errorJSON(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(doc)
}

// handleRestoreDump runs the full restore sequence for a dump.
func (s *Server) handleRestoreDump(c *fiber.Ctx) error {
	name := c.Params("name")

	var req RestoreDumpRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "invalid request body"})
	}
	if req.ModelID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "modelId is required"})
	}

	messages, report, err := s.restorer.Restore(c.Context(), req.ModelID, name)
	if err != nil {
		s.logger.Warn("dump restore failed",
			zap.String("name", name),
			zap.String("model", req.ModelID),
			zap.Error(err),
		)
		return s.errorJSON(c, err)
	}

	return c.JSON(RestoreDumpResponse{
		Messages:              messages,
		SlotID:                report.SlotID,
		Relaunched:            report.Relaunched,
		DriftDetected:         report.DriftDetected,
		MissingRuntimeContext: report.MissingRuntimeContext,
	})
}

// handleDeleteDump removes a dump document and its cache blob.
func (s *Server) handleDeleteDump(c *fiber.Ctx) error {
	if err := s.store.Delete(c.Params("name")); err != nil {
		return s.errorJSON(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// handleJournal returns the most recent slot-action journal entries.
func (s *Server) handleJournal(c *fiber.Ctx) error {
	if s.journal == nil {
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{Error: "journal is disabled"})
	}

	limit, _ := strconv.Atoi(c.Query("limit", "50"))

	entries, err := s.journal.Recent(c.Context(), limit)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "failed to read journal"})
	}

	out := make([]JournalEntryResponse, 0, len(entries))
	for _, entry := range entries {
		out = append(out, JournalEntryResponse{
			ModelID:    entry.ModelID,
			DumpName:   entry.DumpName,
			Action:     entry.Action,
			StatusCode: entry.StatusCode,
			Error:      entry.Error,
			RecordedAt: entry.RecordedAt,
		})
	}

	return c.JSON(map[string]any{
		"count":   len(out),
		"entries": out,
	})
}

// errorJSON maps domain errors onto HTTP statuses. Server-side failures of
// the llama-server control surface surface as 502 so the UI can tell "your
// request was wrong" apart from "the backend is gone".
func (s *Server) errorJSON(c *fiber.Ctx, err error) error {
	var (
		notFound    dump.ErrNotFound
		invalid     dump.ErrInvalidFormat
		noSession   slot.ErrNoSession
		dead        slot.ErrProcessDead
		unreachable slot.ErrUnreachable
		actionErr   slot.ErrSlotAction
		noIdle      slot.ErrNoIdleSlot
	)

	status := fiber.StatusInternalServerError
	switch {
	case errors.As(err, &notFound):
		status = fiber.StatusNotFound
	case errors.As(err, &invalid):
		status = fiber.StatusUnprocessableEntity
	case errors.As(err, &noSession):
		status = fiber.StatusConflict
	case errors.As(err, &dead), errors.As(err, &unreachable), errors.As(err, &actionErr):
		status = fiber.StatusBadGateway
	case errors.As(err, &noIdle):
		status = fiber.StatusServiceUnavailable
	}

	return c.Status(status).JSON(ErrorResponse{Error: err.Error()})
}
