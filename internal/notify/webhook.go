package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

const (
	readyPath      = "api/v1/ready"
	contentType    = "application/json"
	DefaultTimeout = 5 * time.Second
)

var ErrClosed = errors.New("webhook closed")

// Webhook is a readiness authority which tells a remote UI that a sensor is
// ready for the operation identified by cookie. The UI answers by promoting
// the cookie through the control API.
//
// Requests are sent from their own goroutines: NotifyReadyForCookie never
// waits for the network.
type Webhook struct {
	requestURL *url.URL
	client     *http.Client
	timeout    time.Duration

	mx     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

type readyRequest struct {
	Sensor int `json:"sensor"`
	Cookie int `json:"cookie"`
}

func NewWebhook(serverURL string, timeout time.Duration) (*Webhook, error) {
	parsedURL, err := url.Parse(serverURL)
	if err != nil {
		return nil, err
	}
	parsedURL.Path = strings.TrimRight(parsedURL.Path, "/")

	if parsedURL.Scheme == "" || parsedURL.Host == "" || parsedURL.Path != "" {
		return nil, errors.New("please define the webhook url with a scheme and without path, e.g. `http://some-url.com`")
	}
	parsedURL.Path = readyPath

	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Webhook{
		requestURL: parsedURL,
		client:     &http.Client{},
		timeout:    timeout,
	}, nil
}

func (w *Webhook) URL() string {
	return w.requestURL.String()
}

// NotifyReadyForCookie schedules the notification. The only error it returns
// is ErrClosed, delivery failures are logged.
func (w *Webhook) NotifyReadyForCookie(ctx context.Context, sensorID, cookie int) error {
	w.mx.Lock()
	defer w.mx.Unlock()
	if w.closed {
		return ErrClosed
	}

	ctx = context.WithoutCancel(ctx)
	w.wg.Go(func() {
		ctx, cancel := context.WithTimeout(ctx, w.timeout)
		defer cancel()
		if err := w.Post(ctx, sensorID, cookie); err != nil {
			slog.ErrorContext(ctx, "readiness webhook failed",
				slog.Int("sensor", sensorID),
				slog.Int("cookie", cookie),
				slog.String("error", err.Error()))
		}
	})
	return nil
}

// Post sends one notification and waits for the answer.
func (w *Webhook) Post(ctx context.Context, sensorID, cookie int) error {
	raw, err := json.Marshal(readyRequest{Sensor: sensorID, Cookie: cookie})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.requestURL.String(), bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if err := decodeResponse(resp); err != nil {
		return err
	}
	slog.DebugContext(ctx, "readiness delivered",
		slog.Int("sensor", sensorID),
		slog.Int("cookie", cookie))
	return nil
}

// Close stops accepting notifications and waits for those in flight.
func (w *Webhook) Close() error {
	w.mx.Lock()
	w.closed = true
	w.mx.Unlock()
	w.wg.Wait()
	return nil
}

func decodeResponse(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	ct, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if ct == "application/problem+json" {
		var problemDetail struct {
			Detail string `json:"detail"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&problemDetail); err != nil {
			return fmt.Errorf("decoding json response failed: %w", err)
		}
		return fmt.Errorf("status code: %d, detail: %s", resp.StatusCode, problemDetail.Detail)
	}

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return err
	}
	return fmt.Errorf("unknown error, status: %d, body: %s", resp.StatusCode, string(respBody))
}
