package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/killallgit/chatnote/pkg/api"
	"github.com/killallgit/chatnote/pkg/chat"
	"github.com/killallgit/chatnote/pkg/config"
	"github.com/killallgit/chatnote/pkg/reflection"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeServer is an in-memory chatnote API
type fakeServer struct {
	*httptest.Server

	mu       sync.Mutex
	requests []api.ChatRequest
	cards    []api.Card
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	f := &fakeServer{}
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/chat", func(w http.ResponseWriter, r *http.Request) {
		var req api.ChatRequest
		json.NewDecoder(r.Body).Decode(&req)
		f.mu.Lock()
		f.requests = append(f.requests, req)
		f.mu.Unlock()

		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"delta\":{\"content\":\"Hello \"}}\n\n")
		fmt.Fprint(w, "data: {\"delta\":{\"content\":\"there\"}}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	})
	mux.HandleFunc("GET /api/chat/getMessageListById/{id}", func(w http.ResponseWriter, r *http.Request) {
		var history []api.HistoryMessage
		if r.PathValue("id") == "old" {
			history = []api.HistoryMessage{
				{ID: "m1", Role: api.RoleUser, Content: "what is a goroutine?"},
				{ID: "m2", Role: api.RoleAssistant, Content: "a lightweight thread"},
			}
		}
		envelope(w, history)
	})
	mux.HandleFunc("GET /api/chat/list", func(w http.ResponseWriter, r *http.Request) {
		envelope(w, map[string]interface{}{"chats": []api.Session{{ID: "old", Title: "Goroutines"}}})
	})
	mux.HandleFunc("GET /api/cards", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		envelope(w, f.cards)
	})
	mux.HandleFunc("POST /api/cards", func(w http.ResponseWriter, r *http.Request) {
		var in api.CardInput
		json.NewDecoder(r.Body).Decode(&in)
		f.mu.Lock()
		card := api.Card{ID: fmt.Sprintf("card-%d", len(f.cards)+1), Title: in.Title, Content: in.Content}
		f.cards = append(f.cards, card)
		f.mu.Unlock()
		envelope(w, card)
	})
	mux.HandleFunc("GET /api/qa_question/{id}", func(w http.ResponseWriter, r *http.Request) {
		envelope(w, api.Question{ID: r.PathValue("id"), Question: "What did I learn?", Frequency: api.FrequencyDaily})
	})
	mux.HandleFunc("POST /api/qa_answer/question-answers", func(w http.ResponseWriter, r *http.Request) {
		envelope(w, []api.Answer{
			{ID: "a2", ParentID: "a1", Content: "and channels"},
			{ID: "a1", Content: "select statements"},
		})
	})
	mux.HandleFunc("POST /api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"token": "fresh-token"})
	})

	f.Server = httptest.NewServer(mux)
	t.Cleanup(f.Close)
	return f
}

func (f *fakeServer) lastRequest() api.ChatRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

func envelope(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"code": 200, "data": data, "message": "ok"})
}

type cli struct {
	t      *testing.T
	dir    string
	config string
}

func newCLI(t *testing.T, server *fakeServer) *cli {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.yaml")
	settings := fmt.Sprintf(`api:
  base_url: %s/api
  timeout: 5s
drafts:
  watch_dir: ""
logging:
  level: debug
reminders:
  enabled: false
`, server.URL)
	require.NoError(t, os.WriteFile(path, []byte(settings), 0644))
	return &cli{t: t, dir: dir, config: path}
}

func (c *cli) run(stdin string, args ...string) (string, error) {
	c.t.Helper()
	defer resetFlags(rootCmd)

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(append([]string{"--config", c.config}, args...))
	err := rootCmd.Execute()
	return out.String(), err
}

func (c *cli) state() config.State {
	c.t.Helper()
	st, err := config.LoadState(filepath.Join(c.dir, config.StateFile))
	require.NoError(c.t, err)
	return st
}

// resetFlags restores every flag to its default between runs
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, sub := range cmd.Commands() {
		resetFlags(sub)
	}
}

func TestAsk(t *testing.T) {
	server := newFakeServer(t)
	c := newCLI(t, server)

	out, err := c.run("", "ask", "--system", "be brief", "say", "hi")
	require.NoError(t, err)
	assert.Contains(t, out, "Hello there")

	req := server.lastRequest()
	require.Len(t, req.Messages, 2)
	assert.Equal(t, api.RoleSystem, req.Messages[0].Role)
	assert.Equal(t, "say hi", req.Messages[1].Content)
	assert.Equal(t, "deepseek-chat", req.Model)
}

func TestChatOneShot(t *testing.T) {
	server := newFakeServer(t)
	c := newCLI(t, server)

	out, err := c.run("", "chat", "--new", "hello")
	require.NoError(t, err)
	assert.Contains(t, out, "assistant: Hello there")

	id := c.state().LastConversationID
	require.NotEmpty(t, id)
	req := server.lastRequest()
	assert.Equal(t, id, req.ID)
	assert.Equal(t, []api.ChatMessage{{Role: api.RoleUser, Content: "hello"}}, req.Messages)

	_, err = c.run("", "chat", "again")
	require.NoError(t, err)
	assert.Equal(t, id, server.lastRequest().ID, "the remembered conversation continues")
}

func TestChatResumesHistory(t *testing.T) {
	server := newFakeServer(t)
	c := newCLI(t, server)

	out, err := c.run("next question\n/quit\n", "chat", "--id", "old")
	require.NoError(t, err)
	assert.Contains(t, out, "you: what is a goroutine?")
	assert.Contains(t, out, "assistant: a lightweight thread")

	req := server.lastRequest()
	require.Len(t, req.Messages, 3)
	assert.Equal(t, "next question", req.Messages[2].Content)

	out, err = c.run("", "history")
	require.NoError(t, err)
	assert.Contains(t, out, "what is a goroutine?")

	out, err = c.run("", "sessions")
	require.NoError(t, err)
	assert.Contains(t, out, "* old Goroutines")
}

func TestChatSendsRestoredDraft(t *testing.T) {
	server := newFakeServer(t)
	c := newCLI(t, server)

	out, err := c.run("", "draft", "save", "c1", "unsent", "words")
	require.NoError(t, err)
	assert.Contains(t, out, "(local)")

	out, err = c.run("", "draft", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "c1")
	assert.Contains(t, out, "unsent words")

	out, err = c.run("\n/quit\n", "chat", "--id", "c1")
	require.NoError(t, err)
	assert.Contains(t, out, "restored draft")
	assert.Equal(t, "unsent words", server.lastRequest().Messages[0].Content)

	out, err = c.run("", "draft", "show", "c1")
	require.NoError(t, err)
	assert.Contains(t, out, "no draft", "a sent draft is cleared")
}

func TestMultilineInputIsDrafted(t *testing.T) {
	server := newFakeServer(t)
	c := newCLI(t, server)

	_, err := c.run("first line\\\n", "chat", "--id", "c2")
	require.NoError(t, err)

	out, err := c.run("", "draft", "show", "c2")
	require.NoError(t, err)
	assert.Contains(t, out, "first line", "unsent input survives the session")

	_, err = c.run("", "draft", "clear", "c2")
	require.NoError(t, err)
	out, err = c.run("", "draft", "show", "c2")
	require.NoError(t, err)
	assert.Contains(t, out, "no draft")
}

func TestReflectAnswers(t *testing.T) {
	server := newFakeServer(t)
	c := newCLI(t, server)

	out, err := c.run("", "reflect", "answers", "q1")
	require.NoError(t, err)
	assert.Contains(t, out, "What did I learn?")
	assert.Contains(t, out, "- select statements")
	assert.Contains(t, out, "  - and channels")
}

func TestCards(t *testing.T) {
	server := newFakeServer(t)
	c := newCLI(t, server)

	_, err := c.run("", "cards", "add", "Bread", "flour water salt")
	require.NoError(t, err)
	_, err = c.run("", "cards", "add", "Go", "goroutines channels")
	require.NoError(t, err)

	out, err := c.run("", "cards", "search", "-k", "1", "channels")
	require.NoError(t, err)
	assert.Contains(t, out, "Go")
	assert.NotContains(t, out, "Bread")
}

func TestLogin(t *testing.T) {
	server := newFakeServer(t)
	c := newCLI(t, server)

	out, err := c.run("hunter2\n", "login", "--email", "me@example.com")
	require.NoError(t, err)
	assert.Contains(t, out, "logged in as me@example.com")
	assert.Equal(t, "fresh-token", c.state().Token)

	_, err = c.run("", "logout")
	require.NoError(t, err)
	assert.Empty(t, c.state().Token)
}

func TestReplyPrinter(t *testing.T) {
	var out bytes.Buffer
	p := newReplyPrinter(&out)

	conv := chat.NewConversation("c", "m")
	conv = chat.AddMessage(conv, chat.NewUserMessage("hi"))
	reply := chat.NewAssistantMessage("")
	conv = chat.AddMessage(conv, reply)
	p.observe(conv)
	p.observe(chat.ReplaceContent(conv, reply.ID, "Hel"))
	p.observe(chat.ReplaceContent(conv, reply.ID, "Hello"))
	p.finish()

	assert.Equal(t, "assistant: Hello\n", out.String())

	out.Reset()
	p.mute = true
	p.observe(chat.ReplaceContent(conv, reply.ID, "ignored"))
	assert.Empty(t, out.String())
}

func TestPrintTree(t *testing.T) {
	var out bytes.Buffer
	printTree(&out, reflection.FlatToTree([]api.Answer{
		{ID: "a", Content: "root"},
		{ID: "b", ParentID: "a", Content: "child", Author: "sam"},
	}))
	assert.Equal(t, "- root [a]\n  - child [b sam]\n", out.String())
}

func TestFirstLine(t *testing.T) {
	assert.Equal(t, "one", firstLine("one"))
	assert.Equal(t, "one ...", firstLine("one\ntwo"))
}
