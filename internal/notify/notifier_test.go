package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type recordingSender struct {
	titles []string
	err    error
}

func (s *recordingSender) Send(_ context.Context, title, _ string) error {
	s.titles = append(s.titles, title)
	return s.err
}

func (s *recordingSender) Name() string { return "recording" }

func TestNotifierAllowList(t *testing.T) {
	s := &recordingSender{}
	n := NewNotifier([]Sender{s}, []string{EventFill, EventRiskExit}, testLogger())

	n.Notify(context.Background(), EventFill, "Order filled", "BUY 75")
	n.Notify(context.Background(), EventSchedule, "Session start", "")
	n.Notify(context.Background(), EventRiskExit, "Stop loss", "SELL 75")

	assert.Equal(t, []string{"Order filled", "Stop loss"}, s.titles)
}

func TestNotifierEmptyAllowListPassesEverything(t *testing.T) {
	s := &recordingSender{}
	n := NewNotifier([]Sender{s}, nil, testLogger())

	n.Notify(context.Background(), EventSchedule, "Session start", "")
	n.Notify(context.Background(), "anything", "Custom", "")

	assert.Len(t, s.titles, 2)
}

func TestNotifierSenderErrorsAreSwallowed(t *testing.T) {
	bad := &recordingSender{err: errors.New("webhook down")}
	good := &recordingSender{}
	n := NewNotifier([]Sender{bad, good}, nil, testLogger())

	n.Notify(context.Background(), EventFill, "Order filled", "")

	assert.Len(t, bad.titles, 1)
	assert.Len(t, good.titles, 1, "one broken sender does not stop the rest")
}

func TestDiscordSender(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	s := NewDiscordSender(srv.URL)
	require.NoError(t, s.Send(context.Background(), "Order filled", "BUY 75 NIFTY24AUGFUT @ 25000"))
	assert.Equal(t, "**Order filled**\nBUY 75 NIFTY24AUGFUT @ 25000", got["content"])
}

func TestPostJSONRejectsBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte("rate limited"))
	}))
	defer srv.Close()

	err := postJSON(context.Background(), srv.Client(), "discord", srv.URL, map[string]string{"content": "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
	assert.Contains(t, err.Error(), "rate limited")
}

func TestSenderNames(t *testing.T) {
	assert.Equal(t, "telegram", NewTelegramSender("t", "c").Name())
	assert.Equal(t, "discord", NewDiscordSender("u").Name())
}
