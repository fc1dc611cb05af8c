package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"
	"time"

	"chitchat/cmd/internal/app"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunSmoke_AgainstInProcessServer(t *testing.T) {
	t.Setenv("CHITCHAT_WS_ORIGIN_REQUIRED", "false")
	t.Setenv("CHITCHAT_AUTH_PUBLIC_KEY_HEX", "")
	t.Setenv("CHITCHAT_AUTH_SECRET_KEY_HEX", "")

	cfg := app.Config{StoreKind: app.StoreMemory, MediaDir: t.TempDir()}
	a, err := app.New(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	defer a.Close(context.Background())

	srv := httptest.NewServer(a.Handler())
	defer srv.Close()

	var out bytes.Buffer
	err = runSmoke(context.Background(), &out, smokeOptions{
		baseURL: srv.URL,
		from:    "smoke-a",
		to:      "smoke-b",
		text:    "ping",
		timeout: 3 * time.Second,
	})
	require.NoError(t, err)
	assert.Contains(t, out.String(), "OK: from=smoke-a to=smoke-b")
}

func TestRunSmoke_RejectsBadInput(t *testing.T) {
	ctx := context.Background()

	err := runSmoke(ctx, io.Discard, smokeOptions{baseURL: "ws://127.0.0.1:1", from: "a", to: "b"})
	require.ErrorContains(t, err, "--url")

	err = runSmoke(ctx, io.Discard, smokeOptions{baseURL: "http://127.0.0.1:1", origin: "ftp://x", from: "a", to: "b"})
	require.ErrorContains(t, err, "--origin")

	err = runSmoke(ctx, io.Discard, smokeOptions{baseURL: "http://127.0.0.1:1", from: "a", to: "a"})
	require.ErrorContains(t, err, "distinct")
}

func TestValidateOrigin(t *testing.T) {
	assert.NoError(t, validateOrigin(""))
	assert.NoError(t, validateOrigin("https://chat.example.com"))
	assert.Error(t, validateOrigin("https://"))
	assert.Error(t, validateOrigin("ws://chat.example.com"))
}
