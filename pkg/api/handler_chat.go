package api

import (
	"encoding/base64"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
)

type chatRequest struct {
	Query             string `json:"query" binding:"required"`
	MultimodalContext string `json:"multimodal_context"`
}

var audioExtensions = map[string]bool{
	".mp3": true, ".wav": true, ".m4a": true, ".ogg": true, ".flac": true,
}

var imageMIMEByExtension = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".webp": "image/webp",
}

// handleChat answers one query against a compiled agent. Accepts
// either a JSON body or a multipart form with media files; uploaded
// audio is transcribed and images are captioned into the multimodal
// context before reasoning.
func (s *Server) handleChat(c *gin.Context) {
	var query, multimodal string

	if strings.HasPrefix(c.ContentType(), "multipart/") {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.cfg.MaxUploadBytes)
		form, err := c.MultipartForm()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid multipart form: %v", err)})
			return
		}
		query = c.PostForm("query")
		multimodal = c.PostForm("multimodal_context")

		mediaContext, err := s.describeMedia(c, form.File["media"])
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		multimodal = joinSections(multimodal, mediaContext)
	} else {
		var req chatRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		query = req.Query
		multimodal = req.MultimodalContext
	}

	if strings.TrimSpace(query) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query is required"})
		return
	}

	answer, err := s.engine.Reason(c.Request.Context(), tenant(c), c.Param("name"), query, multimodal)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, answer)
}

// describeMedia turns uploaded audio and image files into labeled text
// sections for the multimodal context.
func (s *Server) describeMedia(c *gin.Context, files []*multipart.FileHeader) (string, error) {
	var sections []string
	for _, f := range files {
		ext := strings.ToLower(filepath.Ext(f.Filename))
		switch {
		case audioExtensions[ext]:
			data, err := readUpload(f)
			if err != nil {
				return "", fmt.Errorf("reading %s: %w", f.Filename, err)
			}
			text, err := s.llm.Transcribe(c.Request.Context(), f.Filename, data)
			if err != nil {
				return "", fmt.Errorf("transcribing %s: %w", f.Filename, err)
			}
			sections = append(sections, fmt.Sprintf("[Audio: %s] %s", f.Filename, text))
		case imageMIMEByExtension[ext] != "":
			data, err := readUpload(f)
			if err != nil {
				return "", fmt.Errorf("reading %s: %w", f.Filename, err)
			}
			dataURL := fmt.Sprintf("data:%s;base64,%s",
				imageMIMEByExtension[ext], base64.StdEncoding.EncodeToString(data))
			caption, err := s.llm.DescribeImage(c.Request.Context(), dataURL)
			if err != nil {
				return "", fmt.Errorf("describing %s: %w", f.Filename, err)
			}
			sections = append(sections, fmt.Sprintf("[Image: %s] %s", f.Filename, caption))
		default:
			return "", fmt.Errorf("unsupported media type: %s", f.Filename)
		}
	}
	return strings.Join(sections, "\n"), nil
}

func readUpload(f *multipart.FileHeader) ([]byte, error) {
	file, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer func() { _ = file.Close() }()
	return io.ReadAll(file)
}

func joinSections(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	default:
		return a + "\n" + b
	}
}
