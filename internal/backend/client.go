package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/loqalabs/voicechat/internal/protocol"
)

// ErrMalformedReply is returned when a success response lacks a required field.
var ErrMalformedReply = errors.New("backend reply is malformed")

// APIError is a non-success HTTP response from the relay.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("backend returned status %d %s", e.Status, http.StatusText(e.Status))
}

// Reply is a decoded exchange response.
type Reply struct {
	Text        string
	AudioBase64 string
}

// File is an attachment for a file exchange.
type File struct {
	Name string
	Data []byte
}

// Client talks to the relay's HTTP API.
type Client struct {
	baseURL string
	http    *http.Client
}

func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

// SendText posts a text exchange.
func (c *Client) SendText(ctx context.Context, text string) (Reply, error) {
	body, err := json.Marshal(protocol.ChatRequest{Text: text})
	if err != nil {
		return Reply{}, err
	}
	var resp protocol.ChatResponse
	if err := c.do(ctx, "/api/chat", "application/json", bytes.NewReader(body), &resp); err != nil {
		return Reply{}, err
	}
	return replyFrom(resp)
}

// SendFile posts a multipart file exchange.
func (c *Client) SendFile(ctx context.Context, file File, question string) (Reply, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile(protocol.FieldFile, file.Name)
	if err != nil {
		return Reply{}, err
	}
	if _, err := part.Write(file.Data); err != nil {
		return Reply{}, err
	}
	if err := mw.WriteField(protocol.FieldQuestion, question); err != nil {
		return Reply{}, err
	}
	if err := mw.Close(); err != nil {
		return Reply{}, err
	}
	var resp protocol.ChatResponse
	if err := c.do(ctx, "/api/chat/file", mw.FormDataContentType(), &buf, &resp); err != nil {
		return Reply{}, err
	}
	return replyFrom(resp)
}

// Transcribe uploads a WAV clip for speech recognition.
func (c *Client) Transcribe(ctx context.Context, wav []byte) (string, error) {
	var resp protocol.Transcript
	if err := c.do(ctx, "/api/transcribe", "audio/wav", bytes.NewReader(wav), &resp); err != nil {
		return "", err
	}
	return resp.Text, nil
}

// Capabilities reports which relay features are enabled.
func (c *Client) Capabilities(ctx context.Context) (protocol.Capabilities, error) {
	var caps protocol.Capabilities
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/capabilities", nil)
	if err != nil {
		return caps, err
	}
	return caps, c.roundTrip(req, &caps)
}

func (c *Client) do(ctx context.Context, path, contentType string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentType)
	return c.roundTrip(req, out)
}

func (c *Client) roundTrip(req *http.Request, out any) error {
	req.Header.Set("Accept", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("backend request: %w", err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read backend response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		var e protocol.ErrorResponse
		if json.Unmarshal(data, &e) == nil {
			apiErr.Message = e.Error
		}
		return apiErr
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedReply, err)
	}
	return nil
}

func replyFrom(resp protocol.ChatResponse) (Reply, error) {
	if resp.ReplyText == nil || resp.AudioBase64 == nil {
		return Reply{}, ErrMalformedReply
	}
	return Reply{Text: *resp.ReplyText, AudioBase64: *resp.AudioBase64}, nil
}
