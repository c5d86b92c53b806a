package api

import (
	"bytes"
	"context"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/groundline/groundline/pkg/config"
	"github.com/groundline/groundline/pkg/llm"
	"github.com/groundline/groundline/pkg/reason"
	"github.com/groundline/groundline/pkg/services"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestSecurityHeaders(t *testing.T) {
	router := gin.New()
	router.Use(securityHeaders())
	router.GET("/probe", func(c *gin.Context) { c.Status(http.StatusOK) })

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/probe", nil))

	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "strict-origin-when-cross-origin", rec.Header().Get("Referrer-Policy"))
}

func TestTenantMiddleware(t *testing.T) {
	s := &Server{cfg: config.ServerConfig{DefaultTenant: "default"}}

	router := gin.New()
	router.Use(s.tenantMiddleware())
	router.GET("/probe", func(c *gin.Context) {
		c.String(http.StatusOK, tenant(c))
	})

	tests := []struct {
		name   string
		header string
		want   string
	}{
		{name: "header wins", header: "acme", want: "acme"},
		{name: "falls back to default", header: "", want: "default"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/probe", nil)
			if tt.header != "" {
				req.Header.Set("X-Tenant-ID", tt.header)
			}
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Body.String())
		})
	}
}

func TestWriteServiceError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{name: "validation", err: services.NewValidationError("name", "is required"), wantStatus: http.StatusBadRequest},
		{name: "not ready", err: &reason.NotReadyError{Name: "chef", Status: "compiling"}, wantStatus: http.StatusConflict},
		{name: "not found", err: services.ErrNotFound, wantStatus: http.StatusNotFound},
		{name: "already exists", err: services.ErrAlreadyExists, wantStatus: http.StatusConflict},
		{name: "compilation in progress", err: services.ErrCompilationInProgress, wantStatus: http.StatusConflict},
		{name: "embedding mismatch", err: reason.ErrEmbeddingModelMismatch, wantStatus: http.StatusConflict},
		{name: "unexpected", err: errors.New("boom"), wantStatus: http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(rec)
			writeServiceError(c, tt.err)
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Contains(t, rec.Body.String(), "error")
		})
	}
}

func TestHandleChatRejectsBlankQuery(t *testing.T) {
	s := &Server{cfg: config.ServerConfig{MaxUploadBytes: 1 << 20}}
	router := gin.New()
	router.POST("/agents/:name/chat", s.handleChat)

	t.Run("json missing query", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/agents/chef/chat",
			strings.NewReader(`{"multimodal_context":"x"}`))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("multipart whitespace query", func(t *testing.T) {
		var body bytes.Buffer
		mw := multipart.NewWriter(&body)
		require.NoError(t, mw.WriteField("query", "   "))
		require.NoError(t, mw.Close())

		req := httptest.NewRequest(http.MethodPost, "/agents/chef/chat", &body)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestHandleStuckJobsRejectsBadThreshold(t *testing.T) {
	s := &Server{}
	router := gin.New()
	router.GET("/diagnostics/stuck-jobs", s.handleStuckJobs)

	for _, raw := range []string{"sideways", "-5m", "0s"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/diagnostics/stuck-jobs?older_than="+raw, nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code, "older_than=%s", raw)
	}
}

// fakeLLM records transcription and vision calls for media tests.
type fakeLLM struct {
	transcript string
	caption    string
	lastImage  string
	err        error
}

func (f *fakeLLM) Complete(_ context.Context, _ llm.Request) (string, error) {
	return "", errors.New("not used")
}

func (f *fakeLLM) Transcribe(_ context.Context, _ string, _ []byte) (string, error) {
	return f.transcript, f.err
}

func (f *fakeLLM) DescribeImage(_ context.Context, imageDataURL string) (string, error) {
	f.lastImage = imageDataURL
	return f.caption, f.err
}

func mediaForm(t *testing.T, filename string, content []byte) (*gin.Context, []*multipart.FileHeader) {
	t.Helper()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("media", filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/chat", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	require.NoError(t, req.ParseMultipartForm(1<<20))

	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = req
	return c, req.MultipartForm.File["media"]
}

func TestDescribeMedia(t *testing.T) {
	t.Run("audio is transcribed", func(t *testing.T) {
		s := &Server{llm: &fakeLLM{transcript: "add the garlic now"}}
		c, files := mediaForm(t, "note.mp3", []byte("audio-bytes"))

		got, err := s.describeMedia(c, files)
		require.NoError(t, err)
		assert.Equal(t, "[Audio: note.mp3] add the garlic now", got)
	})

	t.Run("image is captioned as data url", func(t *testing.T) {
		fake := &fakeLLM{caption: "a bowl of soup"}
		s := &Server{llm: fake}
		c, files := mediaForm(t, "dish.png", []byte{0x89, 0x50})

		got, err := s.describeMedia(c, files)
		require.NoError(t, err)
		assert.Equal(t, "[Image: dish.png] a bowl of soup", got)
		assert.True(t, strings.HasPrefix(fake.lastImage, "data:image/png;base64,"))
	})

	t.Run("unsupported extension fails", func(t *testing.T) {
		s := &Server{llm: &fakeLLM{}}
		c, files := mediaForm(t, "notes.exe", []byte("nope"))

		_, err := s.describeMedia(c, files)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unsupported media type")
	})

	t.Run("provider error propagates", func(t *testing.T) {
		s := &Server{llm: &fakeLLM{err: errors.New("whisper down")}}
		c, files := mediaForm(t, "note.wav", []byte("audio"))

		_, err := s.describeMedia(c, files)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "note.wav")
	})
}

func TestJoinSections(t *testing.T) {
	assert.Equal(t, "b", joinSections("", "b"))
	assert.Equal(t, "a", joinSections("a", ""))
	assert.Equal(t, "a\nb", joinSections("a", "b"))
}
