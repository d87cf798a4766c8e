// Package callback implements the worker's result-delivery protocol: an
// inline POST for small payloads, an upload-then-notify S3 path for
// oversized ones, and a summary-only inline fallback when even the S3 path
// fails, so the backend always hears back.
package callback

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/haasonsaas/wizardd/internal/backoff"
	"github.com/haasonsaas/wizardd/internal/observability"
	"github.com/haasonsaas/wizardd/pkg/wire"
)

// deliveryAttempts bounds each POST in the delivery chain. Retries cover
// transient network failures only; an HTTP 413 switches paths instead of
// retrying.
const deliveryAttempts = 3

// DefaultThresholdBytes is the inline/S3 size cutoff when Sender is built
// without an explicit override (5 MiB).
const DefaultThresholdBytes int64 = 5 << 20

// ErrCallbackTooLarge signals the inline endpoint's HTTP 413 response.
var ErrCallbackTooLarge = errors.New("callback: content too large")

// ErrCallbackFailed wraps any other non-2xx response from the inline or
// notify endpoints.
var ErrCallbackFailed = errors.New("callback: request failed")

// Sender delivers one task's terminal result to the backend.
type Sender struct {
	http           *http.Client
	baseURL        string
	thresholdBytes int64
	metrics        *observability.Metrics
}

// SetMetrics enables per-path delivery counters on this sender.
func (s *Sender) SetMetrics(m *observability.Metrics) { s.metrics = m }

func (s *Sender) recordPath(path string, err error) {
	if s.metrics == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	s.metrics.RecordCallback(path, status)
}

// NewSender builds a Sender. thresholdBytes <= 0 uses DefaultThresholdBytes.
func NewSender(baseURL string, httpClient *http.Client, thresholdBytes int64) *Sender {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if thresholdBytes <= 0 {
		thresholdBytes = DefaultThresholdBytes
	}
	return &Sender{http: httpClient, baseURL: baseURL, thresholdBytes: thresholdBytes}
}

// Send delivers task's terminal state. It always attempts some form of
// callback, falling back to a summary-only notification rather than
// returning silently.
func (s *Sender) Send(ctx context.Context, task *wire.Task) error {
	payload := wire.CallbackPayload{ID: task.ID, Exception: task.Exception, Output: task.Output, Status: task.Status}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("callback: marshal payload: %w", err)
	}

	if int64(len(body)) <= s.thresholdBytes {
		err := s.postInline(ctx, body)
		if err == nil {
			s.recordPath("inline", nil)
			return nil
		}
		if !errors.Is(err, ErrCallbackTooLarge) {
			s.recordPath("inline", err)
			return err
		}
		// HTTP 413: fall through to the S3 path below.
	}

	if err := s.sendViaS3(ctx, task.ID, body); err != nil {
		s.recordPath("s3", err)
		summaryErr := s.postSummaryOnly(ctx, task, err)
		s.recordPath("summary_only", summaryErr)
		return summaryErr
	}
	s.recordPath("s3", nil)
	return nil
}

func (s *Sender) postInline(ctx context.Context, body []byte) error {
	return backoff.Retry(ctx, backoff.DefaultPolicy(), deliveryAttempts, func(int) error {
		err := s.post(ctx, "/internal/api/v1/wizard/callback", body)
		if errors.Is(err, ErrCallbackTooLarge) {
			// Retrying the same oversized body cannot succeed; surface it
			// so Send switches to the S3 path.
			return backoff.Permanent(err)
		}
		return err
	})
}

// sendViaS3 runs the upload-then-notify sequence: request a presigned PUT
// URL, upload the compact payload, then signal the backend to fetch it.
func (s *Sender) sendViaS3(ctx context.Context, taskID string, body []byte) error {
	uploadURL, err := s.requestUploadURL(ctx, taskID)
	if err != nil {
		return fmt.Errorf("callback: request upload url: %w", err)
	}
	if err := s.putObject(ctx, uploadURL, body); err != nil {
		return fmt.Errorf("callback: put object: %w", err)
	}
	if err := s.notifyS3Callback(ctx, taskID); err != nil {
		return fmt.Errorf("callback: notify s3 callback: %w", err)
	}
	return nil
}

func (s *Sender) requestUploadURL(ctx context.Context, taskID string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/internal/api/v1/wizard/tasks/"+taskID+"/upload", nil)
	if err != nil {
		return "", err
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		b, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("%w: status %d: %s", ErrCallbackFailed, resp.StatusCode, b)
	}
	var decoded wire.UploadURLResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("decode upload url response: %w", err)
	}
	return decoded.URL, nil
}

func (s *Sender) putObject(ctx context.Context, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%w: status %d: %s", ErrCallbackFailed, resp.StatusCode, b)
	}
	return nil
}

func (s *Sender) notifyS3Callback(ctx context.Context, taskID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/internal/api/v1/wizard/tasks/"+taskID+"/callback", nil)
	if err != nil {
		return err
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%w: status %d: %s", ErrCallbackFailed, resp.StatusCode, b)
	}
	return nil
}

// summaryException is the reduced shape sent when even the S3 path fails:
// the backend learns that something went wrong and whether a result existed
// at all, without the payload itself.
type summaryException struct {
	Message string      `json:"message"`
	Task    summaryTask `json:"task"`
}

type summaryTask struct {
	HasException bool `json:"has_exception"`
	HasOutput    bool `json:"has_output"`
}

type summaryPayload struct {
	ID        string           `json:"id"`
	Exception summaryException `json:"exception"`
}

func (s *Sender) postSummaryOnly(ctx context.Context, task *wire.Task, cause error) error {
	payload := summaryPayload{
		ID: task.ID,
		Exception: summaryException{
			Message: cause.Error(),
			Task: summaryTask{
				HasException: task.Exception != nil,
				HasOutput:    len(task.Output) > 0,
			},
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("callback: marshal summary payload: %w", err)
	}
	return s.post(ctx, "/internal/api/v1/wizard/callback", body)
}

func (s *Sender) post(ctx context.Context, path string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.http.Do(req)
	if err != nil {
		return fmt.Errorf("callback: post %s: %w", path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusRequestEntityTooLarge:
		return ErrCallbackTooLarge
	case resp.StatusCode/100 != 2:
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%w: status %d: %s", ErrCallbackFailed, resp.StatusCode, b)
	default:
		return nil
	}
}
