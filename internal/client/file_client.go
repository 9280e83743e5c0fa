package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// MaxFileSize bounds attachment downloads (Telegram bots cannot fetch files
// above 20 MB).
const MaxFileSize = 20 * 1024 * 1024

type FileClient struct {
	client *http.Client
}

func NewFileClient(timeout time.Duration) *FileClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &FileClient{
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

// Download fetches url and returns its body and content type.
func (c *FileClient) Download(ctx context.Context, url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, "", fmt.Errorf("unexpected status code: %d body=%q", resp.StatusCode, string(body))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxFileSize+1))
	if err != nil {
		return nil, "", fmt.Errorf("failed to read body: %w", err)
	}
	if len(body) > MaxFileSize {
		return nil, "", fmt.Errorf("file exceeds %d bytes", MaxFileSize)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(body)
	}
	return body, contentType, nil
}
