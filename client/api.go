package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	v1 "chitchat/shared/contracts/realtime/v1"

	"github.com/google/uuid"
)

// HeaderRequestID matches the server's request correlation header.
const HeaderRequestID = "X-Request-ID"

// Attachment is an optional binary payload sent with a message.
type Attachment struct {
	Name string
	Data []byte
}

// SendRequest is one outgoing message.
type SendRequest struct {
	RecipientID string
	Text        string
	Attachment  *Attachment
}

// APIError is a non-2xx response from the message API.
type APIError struct {
	Status    int
	Code      string
	Message   string
	RequestID string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("api: status %d", e.Status)
	}
	return fmt.Sprintf("api: status %d: %s: %s", e.Status, e.Code, e.Message)
}

// API talks to the HTTP message endpoints.
type API struct {
	// BaseURL is the server root, e.g. http://127.0.0.1:8080.
	BaseURL string
	UserID  string
	Token   string

	HTTPClient *http.Client
}

// Send persists a message and returns the canonical record. The recipient need not be online.
func (a *API) Send(ctx context.Context, req SendRequest) (v1.Message, error) {
	recipient := strings.TrimSpace(req.RecipientID)
	if recipient == "" {
		return v1.Message{}, errors.New("api: recipient required")
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if req.Text != "" {
		if err := mw.WriteField("text", req.Text); err != nil {
			return v1.Message{}, err
		}
	}
	if req.Attachment != nil {
		name := req.Attachment.Name
		if name == "" {
			name = "attachment"
		}
		fw, err := mw.CreateFormFile("media", name)
		if err != nil {
			return v1.Message{}, err
		}
		if _, err := fw.Write(req.Attachment.Data); err != nil {
			return v1.Message{}, err
		}
	}
	if err := mw.Close(); err != nil {
		return v1.Message{}, err
	}

	r, err := a.newRequest(ctx, http.MethodPost, "/api/v1/message/send/"+url.PathEscape(recipient), nil, &body)
	if err != nil {
		return v1.Message{}, err
	}
	r.Header.Set("Content-Type", mw.FormDataContentType())

	var m v1.Message
	if err := a.do(r, http.StatusCreated, &m); err != nil {
		return v1.Message{}, err
	}
	return m, nil
}

// History returns the most recent messages with counterpart, oldest first.
// limit <= 0 uses the server default.
func (a *API) History(ctx context.Context, counterpart string, limit int) ([]v1.Message, error) {
	counterpart = strings.TrimSpace(counterpart)
	if counterpart == "" {
		return nil, errors.New("api: counterpart required")
	}

	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}

	r, err := a.newRequest(ctx, http.MethodGet, "/api/v1/message/"+url.PathEscape(counterpart), q, nil)
	if err != nil {
		return nil, err
	}

	var out struct {
		Messages []v1.Message `json:"messages"`
	}
	if err := a.do(r, http.StatusOK, &out); err != nil {
		return nil, err
	}
	return out.Messages, nil
}

func (a *API) newRequest(ctx context.Context, method, path string, q url.Values, body io.Reader) (*http.Request, error) {
	u, err := url.Parse(strings.TrimRight(strings.TrimSpace(a.BaseURL), "/") + path)
	if err != nil {
		return nil, fmt.Errorf("api: base url: %w", err)
	}
	if q == nil {
		q = url.Values{}
	}
	if a.Token == "" && a.UserID != "" {
		q.Set("userId", a.UserID)
	}
	u.RawQuery = q.Encode()

	r, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, err
	}
	r.Header.Set("Accept", "application/json")
	r.Header.Set(HeaderRequestID, uuid.NewString())
	if a.Token != "" {
		r.Header.Set("Authorization", "Bearer "+a.Token)
	}
	return r, nil
}

func (a *API) do(r *http.Request, want int, dst any) error {
	hc := a.HTTPClient
	if hc == nil {
		hc = http.DefaultClient
	}

	resp, err := hc.Do(r)
	if err != nil {
		return fmt.Errorf("api: %s %s: %w", r.Method, r.URL.Path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != want {
		apiErr := &APIError{Status: resp.StatusCode, RequestID: resp.Header.Get(HeaderRequestID)}
		var body struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&body) == nil {
			apiErr.Code = body.Error.Code
			apiErr.Message = body.Error.Message
		}
		return apiErr
	}

	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("api: decode response: %w", err)
	}
	return nil
}
