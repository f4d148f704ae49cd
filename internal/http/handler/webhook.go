package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"basegraph.app/forge/internal/http/dto"
	"basegraph.app/forge/internal/service"
)

// WebhookHandler receives GitLab issue webhooks and feeds them to the ingest
// pipeline.
type WebhookHandler struct {
	ingest service.IngestService
	secret string
}

func NewWebhookHandler(ingest service.IngestService, secret string) *WebhookHandler {
	return &WebhookHandler{ingest: ingest, secret: secret}
}

func (h *WebhookHandler) HandleGitLab(c *gin.Context) {
	ctx := c.Request.Context()

	if h.secret != "" && c.GetHeader("X-Gitlab-Token") != h.secret {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid webhook token"})
		return
	}

	var event dto.GitLabIssueEvent
	if err := c.ShouldBindJSON(&event); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	if event.ObjectKind != "issue" {
		c.JSON(http.StatusOK, gin.H{"status": "ignored", "reason": "not an issue event"})
		return
	}

	result, err := h.ingest.HandleIssueEvent(ctx, event.ToIssueEventParams())
	if err != nil {
		switch {
		case errors.Is(err, service.ErrProjectNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "project not registered"})
		case errors.Is(err, service.ErrProjectDisabled):
			c.JSON(http.StatusOK, gin.H{"status": "ignored", "reason": "project disabled"})
		default:
			slog.ErrorContext(ctx, "failed to ingest issue event", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to process event"})
		}
		return
	}

	if result.Skipped {
		c.JSON(http.StatusOK, gin.H{"status": "ignored", "reason": result.Reason})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"status":  "queued",
		"task_id": result.Task.ID,
	})
}
