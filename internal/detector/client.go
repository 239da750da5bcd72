package detector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Verdict - вердикт оракула подлинности изображений
type Verdict struct {
	IsFake     bool    `json:"is_fake"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`
}

// Client отправляет изображения внешнему AI-сервису детекции подделок.
// Сервис потребляет только вердикт: сама классификация - внешняя забота.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *logrus.Logger
}

func NewClient(baseURL string, timeout time.Duration, logger *logrus.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// CheckImage отправляет файл оракулу и возвращает вердикт.
// Не-изображения пропускаются без проверки. Недоступность оракула
// деградирует до вердикта "не подделка", чтобы не блокировать прием
// инцидентов; причина фиксируется в вердикте.
func (c *Client) CheckImage(ctx context.Context, fileName, mimeType string, content io.Reader) (*Verdict, error) {
	if !strings.HasPrefix(mimeType, "image/") {
		return &Verdict{
			IsFake:     false,
			Confidence: 1.0,
			Reason:     "Not an image, skipped AI check.",
		}, nil
	}

	log := c.logger.WithFields(logrus.Fields{
		"component": "detector",
		"file_name": fileName,
	})

	if c.baseURL == "" {
		log.Warn("Detector URL is not configured, skipping fake image check")
		return &Verdict{IsFake: false, Confidence: 0, Reason: "detector not configured"}, nil
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", fileName)
	if err != nil {
		return nil, fmt.Errorf("failed to create multipart form: %w", err)
	}
	if _, err := io.Copy(part, content); err != nil {
		return nil, fmt.Errorf("failed to copy file content: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize multipart form: %w", err)
	}

	url := c.baseURL + "/detect-fake-image"
	req, err := http.NewRequestWithContext(ctx, "POST", url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create detector request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.WithError(err).Error("Failed to reach fake image detector")
		return &Verdict{
			IsFake:     false,
			Confidence: 0,
			Reason:     fmt.Sprintf("AI service connection failed: %v", err),
		}, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		log.Warnf("Fake image detector returned status %d", resp.StatusCode)
		return &Verdict{
			IsFake:     false,
			Confidence: 0,
			Reason:     fmt.Sprintf("AI service error: Status %d - %s", resp.StatusCode, string(respBody)),
		}, nil
	}

	verdict := &Verdict{}
	if err := json.NewDecoder(resp.Body).Decode(verdict); err != nil {
		return nil, fmt.Errorf("failed to decode detector response: %w", err)
	}
	return verdict, nil
}
