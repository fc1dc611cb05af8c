package message

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	v1 "chitchat/shared/contracts/realtime/v1"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingNotifier struct {
	mu   sync.Mutex
	msgs []v1.Message
}

func (n *recordingNotifier) MessagePersisted(_ context.Context, m v1.Message) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.msgs = append(n.msgs, m)
}

func (n *recordingNotifier) all() []v1.Message {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]v1.Message(nil), n.msgs...)
}

type handlerHarness struct {
	mux      *http.ServeMux
	store    *InMemoryStore
	notifier *recordingNotifier
}

func newHandlerHarness(t *testing.T, withMedia bool) *handlerHarness {
	t.Helper()

	h := &handlerHarness{
		mux:      http.NewServeMux(),
		store:    NewInMemoryStore(),
		notifier: &recordingNotifier{},
	}

	opts := []HandlerOption{WithNotifier(h.notifier)}
	if withMedia {
		media, err := NewDiskMediaStore(t.TempDir(), "/media")
		require.NoError(t, err)
		opts = append(opts, WithMediaStore(media))
	}

	handler, err := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), h.store, nil, opts...)
	require.NoError(t, err)
	handler.Register(h.mux)
	return h
}

func multipartBody(t *testing.T, text string, media []byte) (*bytes.Buffer, string) {
	t.Helper()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if text != "" {
		require.NoError(t, w.WriteField(formText, text))
	}
	if media != nil {
		part, err := w.CreateFormFile(formMedia, "upload.png")
		require.NoError(t, err)
		_, err = part.Write(media)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func (h *handlerHarness) send(t *testing.T, from, to, text string, media []byte) *httptest.ResponseRecorder {
	t.Helper()

	body, ctype := multipartBody(t, text, media)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/message/send/"+to+"?userId="+from, body)
	req.Header.Set("Content-Type", ctype)

	rec := httptest.NewRecorder()
	h.mux.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()

	var out errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out.Error.Code
}

func TestHandler_SendPersistsAndNotifiesOnce(t *testing.T) {
	h := newHandlerHarness(t, false)

	rec := h.send(t, "alice", "bob", "hello bob", nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var m v1.Message
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m))
	assert.Equal(t, "alice", m.SenderID)
	assert.Equal(t, "bob", m.RecipientID)
	assert.Equal(t, "hello bob", m.Text)
	assert.NotEmpty(t, m.ID)

	notified := h.notifier.all()
	require.Len(t, notified, 1)
	assert.Equal(t, m.ID, notified[0].ID)

	hist, err := h.store.History(context.Background(), "alice", "bob", HistoryQuery{})
	require.NoError(t, err)
	require.Len(t, hist, 1)
}

func TestHandler_SendWithMedia(t *testing.T) {
	h := newHandlerHarness(t, true)

	rec := h.send(t, "alice", "bob", "", pngBytes)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var m v1.Message
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m))
	require.NotNil(t, m.Media)
	assert.Equal(t, "image/png", m.Media.ContentType)
	assert.Empty(t, m.Text)
}

func TestHandler_SendValidation(t *testing.T) {
	cases := []struct {
		name   string
		from   string
		to     string
		text   string
		media  []byte
		status int
		code   string
	}{
		{name: "no identity", to: "bob", text: "x", status: http.StatusUnauthorized, code: "unauthorized"},
		{name: "self", from: "alice", to: "alice", text: "x", status: http.StatusBadRequest, code: "invalid_request"},
		{name: "empty", from: "alice", to: "bob", status: http.StatusBadRequest, code: "invalid_request"},
		{name: "too long", from: "alice", to: "bob", text: strings.Repeat("é", MaxTextChars+1), status: http.StatusBadRequest, code: "invalid_request"},
		{name: "media disabled", from: "alice", to: "bob", media: pngBytes, status: http.StatusBadRequest, code: "invalid_media"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHandlerHarness(t, false)

			rec := h.send(t, tc.from, tc.to, tc.text, tc.media)
			require.Equal(t, tc.status, rec.Code, rec.Body.String())
			assert.Equal(t, tc.code, decodeError(t, rec))
			assert.Empty(t, h.notifier.all())
		})
	}
}

func TestHandler_SendMaxRunesAccepted(t *testing.T) {
	h := newHandlerHarness(t, false)

	rec := h.send(t, "alice", "bob", strings.Repeat("é", MaxTextChars), nil)
	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func TestHandler_SendRequiresMultipart(t *testing.T) {
	h := newHandlerHarness(t, false)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/message/send/bob?userId=alice", strings.NewReader(`{"text":"hi"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_form", decodeError(t, rec))
}

func TestHandler_History(t *testing.T) {
	h := newHandlerHarness(t, false)

	require.Equal(t, http.StatusCreated, h.send(t, "alice", "bob", "one", nil).Code)
	require.Equal(t, http.StatusCreated, h.send(t, "bob", "alice", "two", nil).Code)
	require.Equal(t, http.StatusCreated, h.send(t, "alice", "carol", "elsewhere", nil).Code)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/message/alice?userId=bob", nil)
	rec := httptest.NewRecorder()
	h.mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var out historyResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Len(t, out.Messages, 2)
	assert.Equal(t, "one", out.Messages[0].Text)
	assert.Equal(t, "two", out.Messages[1].Text)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/message/alice?userId=bob&limit=zero", nil)
	rec = httptest.NewRecorder()
	h.mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/message/alice", nil)
	rec = httptest.NewRecorder()
	h.mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandler_HistoryEmptyIsArray(t *testing.T) {
	h := newHandlerHarness(t, false)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/message/bob?userId=alice", nil)
	rec := httptest.NewRecorder()
	h.mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"messages":[]}`, rec.Body.String())
}
