package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/changesmith/internal/api/auth"
	"github.com/changesmith/internal/conversation"
	"github.com/changesmith/internal/llm"
	"github.com/changesmith/internal/stats"
)

// ChatEngine is the slice of the conversation engine the handlers need.
type ChatEngine interface {
	HandleMessage(ctx context.Context, threadID, participant, text string, image *llm.Image) (*conversation.Reply, error)
	Threads(ctx context.Context) ([]*conversation.Conversation, error)
	Thread(ctx context.Context, id string) (*conversation.Conversation, error)
	DeleteThread(ctx context.Context, id string) error
}

// ActivitySource reports change-request activity for the stats endpoint.
type ActivitySource interface {
	Activity() ([]stats.Record, error)
}

// ChatRequest is the body of POST /api/v1/chat. ThreadID is optional; a new
// thread is created when it is empty.
type ChatRequest struct {
	Message  string     `json:"message"`
	ThreadID string     `json:"thread_id,omitempty"`
	Image    *ChatImage `json:"image,omitempty"`
}

// ChatImage is an optional inline image attachment.
type ChatImage struct {
	Data   []byte `json:"data"`
	Format string `json:"format"`
}

func (s *Server) handleChat(c echo.Context) error {
	var req ChatRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}
	if req.Message == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "message is required")
	}

	threadID := req.ThreadID
	if threadID == "" {
		threadID = uuid.New().String()
	}

	var image *llm.Image
	if req.Image != nil && len(req.Image.Data) > 0 {
		image = &llm.Image{Data: req.Image.Data, Format: req.Image.Format}
	}

	reply, err := s.engine.HandleMessage(c.Request().Context(), threadID, auth.GetSubject(c), req.Message, image)
	if err != nil {
		var svcErr *llm.ExternalServiceError
		if errors.As(err, &svcErr) {
			return echo.NewHTTPError(http.StatusBadGateway, svcErr.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	return c.JSON(http.StatusOK, reply)
}

func (s *Server) listThreads(c echo.Context) error {
	threads, err := s.engine.Threads(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to list threads")
	}

	type threadSummary struct {
		ID        string `json:"id"`
		Task      string `json:"task"`
		Status    string `json:"status"`
		Messages  int    `json:"messages"`
		UpdatedAt string `json:"updated_at"`
	}
	summaries := make([]threadSummary, 0, len(threads))
	for _, t := range threads {
		summaries = append(summaries, threadSummary{
			ID:        t.ID,
			Task:      t.InitialTask,
			Status:    string(t.Status),
			Messages:  len(t.Messages),
			UpdatedAt: t.UpdatedAt.Format("2006-01-02T15:04:05Z07:00"),
		})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"threads": summaries})
}

func (s *Server) getThread(c echo.Context) error {
	conv, err := s.engine.Thread(c.Request().Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, conversation.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "Thread not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to load thread")
	}
	return c.JSON(http.StatusOK, conv)
}

func (s *Server) deleteThread(c echo.Context) error {
	if err := s.engine.DeleteThread(c.Request().Context(), c.Param("id")); err != nil {
		if errors.Is(err, conversation.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "Thread not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to delete thread")
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) getStats(c echo.Context) error {
	records, err := s.activity.Activity()
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to load activity")
	}

	created, merged, reverted := len(records), 0, 0
	for _, r := range records {
		if r.Merged {
			merged++
		}
		if r.Reverted {
			reverted++
		}
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"created":  created,
		"merged":   merged,
		"reverted": reverted,
		"records":  records,
	})
}
