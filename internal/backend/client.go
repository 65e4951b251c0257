package backend

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"firewatch/internal/models"

	"github.com/goccy/go-json"
)

// ErrNotFound matches a 404 from the analysis server
var ErrNotFound = errors.New("analysis server resource not found")

// StatusError is a non-2xx response
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
}

func (e *StatusError) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == http.StatusNotFound
}

// Client talks to the analysis backend's request/response endpoints
type Client struct {
	baseURL string
	client  *http.Client
}

func NewClient(cfg models.BackendConfig) *Client {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.URL, "/"),
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

// MediaURL resolves a media path returned by the backend against its base URL
func (c *Client) MediaURL(videoURL string) string {
	if u, err := url.Parse(videoURL); err == nil && u.IsAbs() {
		return videoURL
	}
	if !strings.HasPrefix(videoURL, "/") {
		videoURL = "/" + videoURL
	}
	return c.baseURL + videoURL
}

// Upload sends a video file as multipart form field "file"
func (c *Client) Upload(ctx context.Context, path string) (models.UploadResponse, error) {
	var out models.UploadResponse

	f, err := os.Open(path)
	if err != nil {
		return out, fmt.Errorf("failed to open video: %w", err)
	}
	defer f.Close()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	name := filepath.Base(path)
	contentType := mime.TypeByExtension(filepath.Ext(name))
	if !strings.HasPrefix(contentType, "video/") {
		contentType = "video/mp4"
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, name))
	h.Set("Content-Type", contentType)

	part, err := writer.CreatePart(h)
	if err != nil {
		return out, fmt.Errorf("create form part: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return out, fmt.Errorf("copy video: %w", err)
	}
	if err := writer.Close(); err != nil {
		return out, fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/upload", &buf)
	if err != nil {
		return out, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	if err := c.do(req, &out); err != nil {
		return out, err
	}
	if out.JobID == "" {
		return out, fmt.Errorf("upload response has no job_id")
	}
	return out, nil
}

// Restart asks the backend to re-run analysis of a job from frame zero
func (c *Client) Restart(ctx context.Context, jobID string) error {
	return c.post(ctx, "/jobs/"+url.PathEscape(jobID)+"/restart", nil, nil)
}

// Control pauses or resumes analysis of a job
func (c *Client) Control(ctx context.Context, jobID string, cmd models.ControlCommand) error {
	return c.post(ctx, "/jobs/"+url.PathEscape(jobID)+"/control", models.ControlRequest{Cmd: cmd}, nil)
}

// SendEmergencyEmail returns the backend's confirmation message. A rejection carries
// the response detail.
func (c *Client) SendEmergencyEmail(ctx context.Context, req models.EmergencyEmailRequest) (string, error) {
	var out models.EmergencyEmailResponse
	err := c.post(ctx, "/send-emergency-email", req, &out)
	if err != nil {
		var se *StatusError
		if errors.As(err, &se) {
			var body models.EmergencyEmailResponse
			if json.Unmarshal([]byte(se.Body), &body) == nil && body.Detail != "" {
				return "", fmt.Errorf("emergency email failed: %s", body.Detail)
			}
		}
		return "", fmt.Errorf("emergency email failed: %w", err)
	}
	return out.Message, nil
}

func (c *Client) post(ctx context.Context, path string, body, out interface{}) error {
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		r = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, r)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out interface{}) error {
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request %s failed: %w", req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
