package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/killallgit/chatnote/pkg/api"
	"github.com/killallgit/chatnote/pkg/stream"
	"github.com/killallgit/chatnote/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
)

var helloStream = testutil.SSE("Hel", "lo")

func TestGenerateContent(t *testing.T) {
	t.Run("should map roles and return the full reply", func(t *testing.T) {
		opener := testutil.NewFakeChatBackend(helloStream)
		model := NewStreamModel(opener, "gpt-test", WithConversation("c1"))

		resp, err := model.GenerateContent(context.Background(), []llms.MessageContent{
			llms.TextParts(llms.ChatMessageTypeSystem, "be brief"),
			llms.TextParts(llms.ChatMessageTypeHuman, "hi"),
			llms.TextParts(llms.ChatMessageTypeAI, "hello"),
			llms.TextParts(llms.ChatMessageTypeTool, "ignored"),
			llms.TextParts(llms.ChatMessageTypeHuman, "again"),
		})
		require.NoError(t, err)
		require.Len(t, resp.Choices, 1)
		assert.Equal(t, "Hello", resp.Choices[0].Content)
		assert.Equal(t, "stop", resp.Choices[0].StopReason)

		assert.Equal(t, "c1", opener.LastRequest().ID)
		assert.Equal(t, "gpt-test", opener.LastRequest().Model)
		assert.Equal(t, []api.ChatMessage{
			{Role: api.RoleSystem, Content: "be brief"},
			{Role: api.RoleUser, Content: "hi"},
			{Role: api.RoleAssistant, Content: "hello"},
			{Role: api.RoleUser, Content: "again"},
		}, opener.LastRequest().Messages)
	})

	t.Run("should stream fragments in order", func(t *testing.T) {
		opener := testutil.NewFakeChatBackend(helloStream)
		model := NewStreamModel(opener, "gpt-test", WithIngestor(stream.NewIngestor(stream.Options{ChunkSize: 3})))

		var chunks []string
		out, err := model.Call(context.Background(), "hi",
			llms.WithModel("other"),
			llms.WithStreamingFunc(func(ctx context.Context, chunk []byte) error {
				chunks = append(chunks, string(chunk))
				return nil
			}))
		require.NoError(t, err)
		assert.Equal(t, "Hello", out)
		assert.Equal(t, []string{"Hel", "lo"}, chunks)
		assert.Equal(t, "other", opener.LastRequest().Model)
		assert.NotEmpty(t, opener.LastRequest().ID, "a fresh conversation gets an ID")
	})

	t.Run("should stop when the streaming func fails", func(t *testing.T) {
		model := NewStreamModel(testutil.NewFakeChatBackend(helloStream), "m")
		boom := errors.New("boom")
		_, err := model.Call(context.Background(), "hi",
			llms.WithStreamingFunc(func(ctx context.Context, chunk []byte) error { return boom }))
		assert.ErrorIs(t, err, boom)
	})

	t.Run("should surface stream failures", func(t *testing.T) {
		model := NewStreamModel(testutil.NewFakeChatBackend("data: {oops\n\n"), "m")
		_, err := model.Call(context.Background(), "hi")
		assert.ErrorIs(t, err, stream.ErrStreamFailure)

		refusing := testutil.NewFakeChatBackend()
		refusing.OpenErr = stream.NewOpenError(errors.New("refused"))
		model = NewStreamModel(refusing, "m")
		_, err = model.Call(context.Background(), "hi")
		assert.ErrorIs(t, err, stream.ErrStreamFailure)
	})

	t.Run("should keep streamed fragments when the body breaks", func(t *testing.T) {
		backend := testutil.NewFakeChatBackend()
		backend.Bodies = append(backend.Bodies, testutil.NewStreamBody(helloStream,
			testutil.WithChunkSize(len(testutil.Event("Hel"))),
			testutil.WithFailAfter(1)))

		var chunks []string
		_, err := NewStreamModel(backend, "m").Call(context.Background(), "hi",
			llms.WithStreamingFunc(func(ctx context.Context, chunk []byte) error {
				chunks = append(chunks, string(chunk))
				return nil
			}))
		assert.ErrorIs(t, err, stream.ErrStreamFailure)
		assert.ErrorIs(t, err, testutil.ErrInjected)
		assert.Equal(t, []string{"Hel"}, chunks)
	})

	t.Run("should refuse empty input", func(t *testing.T) {
		model := NewStreamModel(testutil.NewFakeChatBackend(helloStream), "m")
		_, err := model.GenerateContent(context.Background(), nil)
		assert.ErrorIs(t, err, ErrNoMessages)
	})

	t.Run("should report cancellation", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		model := NewStreamModel(testutil.NewFakeChatBackend(helloStream), "m")
		_, err := model.Call(ctx, "hi")
		assert.ErrorIs(t, err, context.Canceled)
	})
}
