package api

import (
	"context"
	"errors"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/gin-gonic/gin"

	"github.com/groundline/groundline/pkg/models"
	"github.com/groundline/groundline/pkg/services"
)

// wsWriteTimeout bounds each event write so one dead client cannot
// wedge the stream goroutine.
const wsWriteTimeout = 10 * time.Second

// handleAgentEvents upgrades to WebSocket and streams compilation
// progress for the agent's current job. The stream closes after a
// terminal event.
func (s *Server) handleAgentEvents(c *gin.Context) {
	agent, err := s.agents.GetAgent(c.Request.Context(), tenant(c), c.Param("name"))
	if err != nil {
		writeServiceError(c, err)
		return
	}

	opts := &websocket.AcceptOptions{OriginPatterns: s.cfg.AllowedWSOrigins}
	if len(s.cfg.AllowedWSOrigins) == 0 {
		// Same-origin only: Accept's default check applies.
		opts = nil
	}
	conn, err := websocket.Accept(c.Writer, c.Request, opts)
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusInternalError, "stream aborted")

	ctx := c.Request.Context()

	job, err := s.jobs.LatestJob(ctx, agent.ID)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			// No compilation has ever run; report agent state and close.
			_ = writeEvent(ctx, conn, models.ProgressEvent{
				AgentID:   agent.ID,
				Status:    agent.Status,
				Timestamp: time.Now().UTC(),
			})
			conn.Close(websocket.StatusNormalClosure, "no active compilation")
			return
		}
		conn.Close(websocket.StatusInternalError, "failed to load job")
		return
	}

	stream, cancel := s.bus.Subscribe(job.ID)
	defer cancel()

	// Snapshot after subscribing: a job that goes terminal between the
	// lookup and the subscription publishes to nobody, so the fresh
	// channel would never close. The re-read sees that transition.
	job, err = s.jobs.GetJob(ctx, tenant(c), job.ID)
	if err != nil {
		conn.Close(websocket.StatusInternalError, "failed to load job")
		return
	}

	snapshot := models.ProgressEvent{
		JobID:       job.ID,
		AgentID:     job.AgentID,
		Status:      job.Status,
		Progress:    job.Progress,
		CurrentStep: job.CurrentStep,
		Error:       job.ErrorMessage,
		Timestamp:   time.Now().UTC(),
	}
	if err := writeEvent(ctx, conn, snapshot); err != nil {
		return
	}
	if snapshot.Terminal() {
		conn.Close(websocket.StatusNormalClosure, "compilation finished")
		return
	}

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusGoingAway, "client context ended")
			return
		case event, ok := <-stream:
			if !ok {
				conn.Close(websocket.StatusNormalClosure, "compilation finished")
				return
			}
			if err := writeEvent(ctx, conn, event); err != nil {
				return
			}
			if event.Terminal() {
				conn.Close(websocket.StatusNormalClosure, "compilation finished")
				return
			}
		}
	}
}

func writeEvent(ctx context.Context, conn *websocket.Conn, event models.ProgressEvent) error {
	writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return wsjson.Write(writeCtx, conn, event)
}
