package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"

	"github.com/gin-gonic/gin"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"basegraph.app/forge/internal/http/handler"
	"basegraph.app/forge/internal/model"
	"basegraph.app/forge/internal/service"
)

type fakeIngest struct {
	params service.IssueEventParams
	result *service.IngestResult
	err    error
	called bool
}

func (f *fakeIngest) HandleIssueEvent(_ context.Context, params service.IssueEventParams) (*service.IngestResult, error) {
	f.called = true
	f.params = params
	return f.result, f.err
}

var _ = Describe("WebhookHandler", func() {
	var (
		ingest *fakeIngest
		router *gin.Engine
		secret string
	)

	issuePayload := func(action string, labels ...string) []byte {
		labelObjs := make([]map[string]string, 0, len(labels))
		for _, label := range labels {
			labelObjs = append(labelObjs, map[string]string{"title": label})
		}

		body := map[string]any{
			"object_kind": "issue",
			"project": map[string]any{
				"path_with_namespace": "acme/widget",
				"web_url":             "https://gitlab.com/acme/widget",
			},
			"object_attributes": map[string]any{
				"iid":         42,
				"title":       "Crash when config is empty",
				"description": "The server panics on startup.",
				"action":      action,
				"url":         "https://gitlab.com/acme/widget/-/issues/42",
			},
			"labels": labelObjs,
		}
		if action == "update" {
			body["changes"] = map[string]any{
				"labels": map[string]any{"current": labelObjs},
			}
		}

		raw, err := json.Marshal(body)
		Expect(err).NotTo(HaveOccurred())
		return raw
	}

	post := func(payload []byte, token string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/webhooks/gitlab", bytes.NewReader(payload))
		req.Header.Set("Content-Type", "application/json")
		if token != "" {
			req.Header.Set("X-Gitlab-Token", token)
		}
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	BeforeEach(func() {
		secret = "hook-secret"
		ingest = &fakeIngest{
			result: &service.IngestResult{
				Task: &model.Task{ID: 7, Status: model.TaskStatusPending},
			},
		}

		router = gin.New()
		router.POST("/webhooks/gitlab", handler.NewWebhookHandler(ingest, secret).HandleGitLab)
	})

	It("queues a labeled issue event", func() {
		rec := post(issuePayload("update", "ai-ready"), secret)

		Expect(rec.Code).To(Equal(http.StatusAccepted))
		Expect(rec.Body.String()).To(ContainSubstring(`"task_id":7`))

		Expect(ingest.called).To(BeTrue())
		Expect(ingest.params.Action).To(Equal("labeled"))
		Expect(ingest.params.RepoOwner).To(Equal("acme"))
		Expect(ingest.params.RepoName).To(Equal("widget"))
		Expect(ingest.params.Issue.Number).To(Equal(42))
		Expect(ingest.params.Issue.Labels).To(ConsistOf("ai-ready"))
	})

	It("rejects requests with a wrong token", func() {
		rec := post(issuePayload("update", "ai-ready"), "wrong")

		Expect(rec.Code).To(Equal(http.StatusUnauthorized))
		Expect(ingest.called).To(BeFalse())
	})

	It("ignores non-issue events", func() {
		rec := post([]byte(`{"object_kind":"push"}`), secret)

		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Body.String()).To(ContainSubstring("not an issue event"))
		Expect(ingest.called).To(BeFalse())
	})

	It("reports skipped events as ignored", func() {
		ingest.result = &service.IngestResult{Skipped: true, Reason: "trigger label not present"}

		rec := post(issuePayload("update", "bug"), secret)

		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Body.String()).To(ContainSubstring("trigger label not present"))
	})

	It("maps an unknown project to 404", func() {
		ingest.result = nil
		ingest.err = service.ErrProjectNotFound

		rec := post(issuePayload("update", "ai-ready"), secret)

		Expect(rec.Code).To(Equal(http.StatusNotFound))
	})

	It("answers 200 for disabled projects so the provider stops retrying", func() {
		ingest.result = nil
		ingest.err = service.ErrProjectDisabled

		rec := post(issuePayload("update", "ai-ready"), secret)

		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Body.String()).To(ContainSubstring("project disabled"))
	})

	It("rejects malformed payloads", func() {
		rec := post([]byte(`{not json`), secret)

		Expect(rec.Code).To(Equal(http.StatusBadRequest))
	})
})
