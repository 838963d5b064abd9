package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"time"
)

// File is an attachment uploaded alongside the webhook payload. When an
// embed references it (`attachment://<name>`), the reference must equal
// Name exactly.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// webhookPayload is the body Discord expects on webhook execution.
// Mentions are always disabled so a notification can never ping anyone.
type webhookPayload struct {
	Embeds          []*Embed        `json:"embeds"`
	AllowedMentions allowedMentions `json:"allowed_mentions"`
}

type allowedMentions struct {
	Parse []string `json:"parse"`
}

// RelayError reports a non-success response from the Discord webhook.
type RelayError struct {
	StatusCode int
	Detail     interface{}
}

func (e *RelayError) Error() string {
	return fmt.Sprintf("discord webhook failed (%d): %v", e.StatusCode, e.Detail)
}

// Client executes a Discord incoming webhook. One attempt per call, no
// retries.
type Client struct {
	webhookURL string
	httpClient *http.Client
	logger     *log.Logger
}

func NewClient(webhookURL string, timeout time.Duration, logger *log.Logger) *Client {
	if logger == nil {
		logger = log.Default()
	}
	return &Client{
		webhookURL: webhookURL,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// Execute posts the embed to the webhook, as plain JSON or, when a file
// is attached, as multipart form data with the JSON in a payload_json
// part. 200 and 204 both count as success; anything else returns a
// *RelayError carrying the response body as detail.
func (c *Client) Execute(ctx context.Context, embed *Embed, file *File) error {
	payload, err := json.Marshal(webhookPayload{
		Embeds:          []*Embed{embed},
		AllowedMentions: allowedMentions{Parse: []string{}},
	})
	if err != nil {
		return err
	}

	var req *http.Request
	if file != nil {
		req, err = c.multipartRequest(ctx, payload, file)
	} else {
		req, err = http.NewRequestWithContext(ctx, http.MethodPost, c.webhookURL, bytes.NewReader(payload))
		if req != nil {
			req.Header.Set("Content-Type", "application/json")
		}
	}
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusNoContent {
		return nil
	}

	body, _ := io.ReadAll(resp.Body)
	var detail interface{}
	if err := json.Unmarshal(body, &detail); err != nil {
		detail = string(body)
	}
	c.logger.Printf("discord webhook failed (%d): %v", resp.StatusCode, detail)
	return &RelayError{StatusCode: resp.StatusCode, Detail: detail}
}

func (c *Client) multipartRequest(ctx context.Context, payload []byte, file *File) (*http.Request, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	jsonHeader := textproto.MIMEHeader{}
	jsonHeader.Set("Content-Disposition", `form-data; name="payload_json"`)
	jsonHeader.Set("Content-Type", "application/json")
	jsonPart, err := writer.CreatePart(jsonHeader)
	if err != nil {
		return nil, err
	}
	if _, err := jsonPart.Write(payload); err != nil {
		return nil, err
	}

	fileHeader := textproto.MIMEHeader{}
	fileHeader.Set("Content-Disposition", fmt.Sprintf(`form-data; name="files[0]"; filename=%q`, file.Name))
	fileHeader.Set("Content-Type", file.ContentType)
	filePart, err := writer.CreatePart(fileHeader)
	if err != nil {
		return nil, err
	}
	if _, err := filePart.Write(file.Data); err != nil {
		return nil, err
	}

	if err := writer.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webhookURL, &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req, nil
}
