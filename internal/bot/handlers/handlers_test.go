package handlers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf16"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgard/nightguide/internal/config"
	"github.com/edgard/nightguide/internal/database"
	"github.com/edgard/nightguide/internal/session"
)

type fakeSender struct {
	mu      sync.Mutex
	sent    []*bot.SendMessageParams
	actions int
	err     error
}

func (f *fakeSender) SendMessage(_ context.Context, p *bot.SendMessageParams) (*models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.sent = append(f.sent, p)
	return &models.Message{ID: len(f.sent)}, nil
}

func (f *fakeSender) SendChatAction(_ context.Context, _ *bot.SendChatActionParams) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.actions++
	return true, nil
}

func (f *fakeSender) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.sent))
	for _, p := range f.sent {
		out = append(out, p.Text)
	}
	return out
}

type fakeConversation struct {
	ready      bool
	reply      string
	replyErr   error
	resetErr   error
	refreshErr error

	gotChat, gotUser int64
	gotText          string
	refreshed        int
}

func (c *fakeConversation) Ready() bool { return c.ready }

func (c *fakeConversation) Reply(_ context.Context, chatID, userID int64, text string) (string, error) {
	c.gotChat, c.gotUser, c.gotText = chatID, userID, text
	return c.reply, c.replyErr
}

func (c *fakeConversation) Reset(_ context.Context, chatID int64) (int64, error) {
	c.gotChat = chatID
	return 2, c.resetErr
}

func (c *fakeConversation) Refresh(context.Context) error {
	c.refreshed++
	return c.refreshErr
}

type fakeStore struct {
	database.Store
	artifacts []database.Artifact
	err       error
}

func (s fakeStore) ListArtifacts(context.Context) ([]database.Artifact, error) {
	return s.artifacts, s.err
}

func testDeps(t *testing.T, conv *fakeConversation, store database.Store) HandlerDeps {
	t.Helper()

	cfg := &config.Config{}
	cfg.Telegram.AdminUserID = 1
	cfg.Telegram.BotInfo = &models.User{ID: 999, Username: "nightguide_bot", IsBot: true}
	cfg.Gemini.RequestTimeout = time.Second
	cfg.Messages = config.MessagesConfig{
		Welcome:               "Hi, I'm @botname",
		Help:                  "Ask @botname anything",
		WarmingUpMsg:          "warming up",
		ErrorGeneralMsg:       "general error",
		ErrorUnauthorizedMsg:  "unauthorized",
		EmptyReplyFallbackMsg: "no suggestion",
		ResetConfirmMsg:       "cleared",
		ResetErrorMsg:         "reset failed",
		ResetTimeoutMsg:       "reset timed out",
		NoArtifactsMsg:        "no documents",
		ArtifactsHeader:       "Documents:",
		RefreshProgressMsg:    "refreshing",
		RefreshDoneMsg:        "refreshed",
		RefreshErrorMsg:       "refresh failed",
	}

	return HandlerDeps{
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		Config:  cfg,
		Store:   store,
		Session: conv,
	}
}

func textUpdate(userID int64, text string) *models.Update {
	return &models.Update{
		ID: 1,
		Message: &models.Message{
			ID:   42,
			Chat: models.Chat{ID: 100},
			From: &models.User{ID: userID},
			Text: text,
		},
	}
}

func TestStartAndHelpUseBotName(t *testing.T) {
	t.Parallel()

	deps := testDeps(t, &fakeConversation{}, nil)
	s := &fakeSender{}

	startHandler{deps}.handle(context.Background(), s, textUpdate(5, "/start"))
	helpHandler{deps}.handle(context.Background(), s, textUpdate(5, "/help"))
	helpHandler{deps}.handle(context.Background(), s, &models.Update{ID: 2})

	assert.Equal(t, []string{"Hi, I'm @nightguide_bot", "Ask @nightguide_bot anything"}, s.texts())
}

func TestRelay(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		conv     *fakeConversation
		text     string
		want     []string
		wantText string
	}{
		{
			name:     "answers",
			conv:     &fakeConversation{ready: true, reply: "Go to Cova."},
			text:     "  where tonight?  ",
			want:     []string{"Go to Cova."},
			wantText: "where tonight?",
		},
		{
			name:     "markdown flattened",
			conv:     &fakeConversation{ready: true, reply: "Try **Cova**:\n\n- jazz\n- late bar"},
			text:     "ideas?",
			want:     []string{"Try Cova:\n\n• jazz\n• late bar"},
			wantText: "ideas?",
		},
		{
			name: "warming up",
			conv: &fakeConversation{ready: false},
			text: "hi",
			want: []string{"warming up"},
		},
		{
			name: "empty reply",
			conv: &fakeConversation{ready: true, replyErr: session.ErrEmptyReply},
			text: "hi",
			want: []string{"no suggestion"},
		},
		{
			name: "generator failure",
			conv: &fakeConversation{ready: true, replyErr: errors.New("quota exceeded")},
			text: "hi",
			want: []string{"general error"},
		},
		{
			name: "unknown command ignored",
			conv: &fakeConversation{ready: true, reply: "x"},
			text: "/dance",
			want: []string{},
		},
		{
			name: "blank ignored",
			conv: &fakeConversation{ready: true, reply: "x"},
			text: "   ",
			want: []string{},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			s := &fakeSender{}
			relayHandler{testDeps(t, tc.conv, nil)}.handle(context.Background(), s, textUpdate(7, tc.text))

			assert.Equal(t, tc.want, s.texts())
			if tc.wantText != "" {
				assert.Equal(t, tc.wantText, tc.conv.gotText)
				assert.EqualValues(t, 100, tc.conv.gotChat)
				assert.EqualValues(t, 7, tc.conv.gotUser)
				assert.Equal(t, 1, s.actions)
				require.NotNil(t, s.sent[0].ReplyParameters)
				assert.Equal(t, 42, s.sent[0].ReplyParameters.MessageID)
			}
		})
	}
}

func TestRelaySplitsLongReplies(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("a", MaxMessageLength-10) + "\n" + strings.Repeat("b", 100)
	conv := &fakeConversation{ready: true, reply: long}
	s := &fakeSender{}

	relayHandler{testDeps(t, conv, nil)}.handle(context.Background(), s, textUpdate(7, "list everything"))

	require.Len(t, s.sent, 2)
	assert.NotNil(t, s.sent[0].ReplyParameters)
	assert.Nil(t, s.sent[1].ReplyParameters)
	assert.Equal(t, strings.Repeat("b", 100), s.sent[1].Text)
}

func TestReset(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		err  error
		want string
	}{
		{"cleared", nil, "cleared"},
		{"failed", errors.New("locked"), "reset failed"},
		{"timeout", context.DeadlineExceeded, "reset timed out"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			conv := &fakeConversation{resetErr: tc.err}
			s := &fakeSender{}
			resetHandler{testDeps(t, conv, nil)}.handle(context.Background(), s, textUpdate(7, "/reset"))

			assert.Equal(t, []string{tc.want}, s.texts())
			assert.EqualValues(t, 100, conv.gotChat)
		})
	}
}

func TestAdminOnly(t *testing.T) {
	t.Parallel()

	deps := testDeps(t, &fakeConversation{}, nil)
	s := &fakeSender{}

	assert.False(t, allowAdmin(context.Background(), s, deps, textUpdate(7, "/artifacts")))
	assert.Equal(t, []string{"unauthorized"}, s.texts())

	assert.True(t, allowAdmin(context.Background(), s, deps, textUpdate(1, "/artifacts")))
	assert.Len(t, s.sent, 1)
}

func TestArtifacts(t *testing.T) {
	t.Parallel()

	t.Run("empty", func(t *testing.T) {
		t.Parallel()
		s := &fakeSender{}
		artifactsHandler{testDeps(t, &fakeConversation{}, fakeStore{})}.handle(context.Background(), s, textUpdate(1, "/artifacts"))
		assert.Equal(t, []string{"no documents"}, s.texts())
	})

	t.Run("listed", func(t *testing.T) {
		t.Parallel()
		store := fakeStore{artifacts: []database.Artifact{
			{RemoteID: "files/abc", Label: "guide.pdf", Kind: "application/pdf", Status: "READY", Provider: "gemini"},
			{RemoteID: "files/def", Label: "extra.pdf", Status: "READY", Optional: true},
		}}
		s := &fakeSender{}
		artifactsHandler{testDeps(t, &fakeConversation{}, store)}.handle(context.Background(), s, textUpdate(1, "/artifacts"))

		require.Len(t, s.sent, 1)
		text := s.sent[0].Text
		assert.True(t, strings.HasPrefix(text, "Documents:"))
		assert.Contains(t, text, "1. guide.pdf [READY] files/abc (application/pdf)")
		assert.Contains(t, text, "2. extra.pdf [READY] files/def optional")
		assert.Contains(t, text, "via gemini")
	})

	t.Run("store error", func(t *testing.T) {
		t.Parallel()
		s := &fakeSender{}
		artifactsHandler{testDeps(t, &fakeConversation{}, fakeStore{err: errors.New("closed")})}.handle(context.Background(), s, textUpdate(1, "/artifacts"))
		assert.Equal(t, []string{"general error"}, s.texts())
	})
}

func TestRefresh(t *testing.T) {
	t.Parallel()

	conv := &fakeConversation{}
	s := &fakeSender{}
	refreshHandler{testDeps(t, conv, nil)}.handle(context.Background(), s, textUpdate(1, "/refresh"))
	assert.Equal(t, []string{"refreshing", "refreshed"}, s.texts())
	assert.Equal(t, 1, conv.refreshed)

	conv = &fakeConversation{refreshErr: errors.New("timeout")}
	s = &fakeSender{}
	refreshHandler{testDeps(t, conv, nil)}.handle(context.Background(), s, textUpdate(1, "/refresh"))
	assert.Equal(t, []string{"refreshing", "refresh failed"}, s.texts())
}

func TestRegisterAllCommands(t *testing.T) {
	t.Parallel()

	registered := RegisterAllCommands(testDeps(t, &fakeConversation{}, nil))

	for _, cmd := range []string{"/start", "/help", "/reset", "/artifacts", "/refresh"} {
		h, ok := registered[cmd]
		require.True(t, ok, cmd)
		assert.Equal(t, strings.TrimPrefix(cmd, "/"), h.Pattern)
		assert.NotNil(t, h.Handler)
	}
	assert.Len(t, registered["/artifacts"].Middleware, 1)
	assert.Empty(t, registered["/reset"].Middleware)
}

func TestSplitMessage(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name  string
		text  string
		limit int
		want  []string
	}{
		{"fits", "short", 10, []string{"short"}},
		{"prefers newline", "one two\nthree four", 12, []string{"one two", "three four"}},
		{"falls back to space", "alpha beta gamma", 11, []string{"alpha beta", "gamma"}},
		{"hard cut", "abcdefghij", 4, []string{"abcd", "efgh", "ij"}},
		{"rune safe", "ñññññ", 2, []string{"ññ", "ññ", "ñ"}},
		{"emoji count twice", "🍸🍸🍸", 4, []string{"🍸🍸", "🍸"}},
		{"emoji wider than limit", "🍸🍸", 1, []string{"🍸", "🍸"}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, SplitMessage(tc.text, tc.limit))
		})
	}
}

func TestSplitMessageRespectsUTF16Limit(t *testing.T) {
	t.Parallel()

	text := strings.Repeat("🍸 bar ", 1000) + strings.Repeat("🇫🇷", 3000)
	chunks := SplitMessage(text, MaxMessageLength)

	require.Greater(t, len(chunks), 1)
	for i, chunk := range chunks {
		assert.LessOrEqual(t, len(utf16.Encode([]rune(chunk))), MaxMessageLength, "chunk %d", i)
	}
	assert.Equal(t, strings.ReplaceAll(strings.TrimSpace(text), " ", ""), strings.ReplaceAll(strings.Join(chunks, ""), " ", ""))
}
