package chat_test

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"

	"github.com/killallgit/chatnote/pkg/api"
	"github.com/killallgit/chatnote/pkg/chat"
	"github.com/killallgit/chatnote/pkg/stream"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type fakeBackend struct {
	mu       sync.Mutex
	body     func() io.ReadCloser
	openErr  error
	requests []api.ChatRequest
	history  map[string][]api.HistoryMessage
	sessions []api.Session
}

func (f *fakeBackend) OpenChatStream(ctx context.Context, req api.ChatRequest) (io.ReadCloser, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	if f.openErr != nil {
		return nil, f.openErr
	}
	return f.body(), nil
}

func (f *fakeBackend) Sessions(ctx context.Context) ([]api.Session, error) {
	return f.sessions, nil
}

func (f *fakeBackend) History(ctx context.Context, id string) ([]api.HistoryMessage, error) {
	h, ok := f.history[id]
	if !ok {
		return nil, &api.RequestError{Status: 404, Message: "no such chat"}
	}
	return h, nil
}

type fakeDrafts struct {
	cleared []string
}

func (d *fakeDrafts) Clear(id string) {
	d.cleared = append(d.cleared, id)
}

func sseBody(events ...string) func() io.ReadCloser {
	return func() io.ReadCloser {
		var b strings.Builder
		for _, e := range events {
			b.WriteString("data: " + e + "\n\n")
		}
		return io.NopCloser(strings.NewReader(b.String()))
	}
}

var _ = Describe("Session", func() {
	var (
		backend   *fakeBackend
		drafts    *fakeDrafts
		snapshots []chat.Conversation
		session   *chat.Session
	)

	BeforeEach(func() {
		backend = &fakeBackend{history: map[string][]api.HistoryMessage{}}
		drafts = &fakeDrafts{}
		snapshots = nil
		session = chat.NewSession(backend, "conv-1", chat.SessionOptions{
			Model:    "deepseek-chat",
			Drafts:   drafts,
			Ingestor: stream.NewIngestor(stream.Options{}),
			Observer: func(c chat.Conversation) { snapshots = append(snapshots, c) },
		})
	})

	Describe("Send", func() {
		It("should stream the reply into one assistant message", func() {
			backend.body = sseBody(`{"delta":{"content":"Hel"}}`, `{"delta":{"content":"lo"}}`, "[DONE]")

			Expect(session.Send(context.Background(), "  hi there ")).To(Succeed())

			messages := session.Messages()
			Expect(messages).To(HaveLen(2))
			Expect(messages[0].Role).To(Equal(chat.RoleUser))
			Expect(messages[0].Content).To(Equal("hi there"))
			Expect(messages[1].Role).To(Equal(chat.RoleAssistant))
			Expect(messages[1].Content).To(Equal("Hello"))

			By("keeping the placeholder id fixed for the whole stream")
			var contents []string
			for _, snap := range snapshots {
				msg, ok := chat.GetMessage(snap, messages[1].ID)
				if ok {
					contents = append(contents, msg.Content)
				}
			}
			Expect(contents).To(Equal([]string{"", "Hel", "Hello"}))

			By("sending the transcript with the conversation id")
			Expect(backend.requests).To(HaveLen(1))
			Expect(backend.requests[0].ID).To(Equal("conv-1"))
			Expect(backend.requests[0].Model).To(Equal("deepseek-chat"))
			Expect(backend.requests[0].Messages).To(Equal([]api.ChatMessage{{Role: api.RoleUser, Content: "hi there"}}))

			Expect(drafts.cleared).To(Equal([]string{"conv-1"}))
			Expect(session.Conversation().Title).To(Equal("hi there"))
			Expect(session.Streaming()).To(BeFalse())
		})

		It("should include earlier turns in the next request", func() {
			backend.body = sseBody(`{"delta":{"content":"one"}}`)
			Expect(session.Send(context.Background(), "first")).To(Succeed())
			Expect(session.Send(context.Background(), "second")).To(Succeed())

			Expect(backend.requests[1].Messages).To(Equal([]api.ChatMessage{
				{Role: api.RoleUser, Content: "first"},
				{Role: api.RoleAssistant, Content: "one"},
				{Role: api.RoleUser, Content: "second"},
			}))
		})

		It("should reject empty input", func() {
			Expect(session.Send(context.Background(), "   ")).To(MatchError(chat.ErrEmptyMessage))
			Expect(backend.requests).To(BeEmpty())
		})

		It("should keep partial content and append a fallback on a malformed event", func() {
			backend.body = sseBody(`{"delta":{"content":"par"}}`, `{oops`, `{"delta":{"content":"never"}}`)

			err := session.Send(context.Background(), "go")
			Expect(errors.Is(err, stream.ErrStreamFailure)).To(BeTrue())

			messages := session.Messages()
			Expect(messages).To(HaveLen(3))
			Expect(messages[1].Content).To(Equal("par"))
			Expect(messages[2].Content).To(Equal(chat.DefaultFallbackMessage))
			Expect(drafts.cleared).To(BeEmpty())
		})

		It("should report open failures once", func() {
			backend.openErr = api.ErrUnauthorized

			err := session.Send(context.Background(), "go")
			Expect(err).To(MatchError(api.ErrUnauthorized))
			Expect(session.Messages()).To(HaveLen(3))
		})

		It("should stop quietly when cancelled", func() {
			pr, pw := io.Pipe()
			backend.body = func() io.ReadCloser { return pr }
			ctx, cancel := context.WithCancel(context.Background())

			go func() {
				defer GinkgoRecover()
				pw.Write([]byte("data: {\"delta\":{\"content\":\"partial\"}}\n\n"))
				Eventually(session.Messages).Should(ContainElement(HaveField("Content", "partial")))
				cancel()
			}()

			Expect(session.Send(ctx, "go")).To(Succeed())
			messages := session.Messages()
			Expect(messages).To(HaveLen(2))
			Expect(messages[1].Content).To(Equal("partial"))
			Expect(drafts.cleared).To(BeEmpty())
		})

		It("should refuse a second send while streaming", func() {
			pr, pw := io.Pipe()
			backend.body = func() io.ReadCloser { return pr }

			done := make(chan error, 1)
			go func() { done <- session.Send(context.Background(), "first") }()
			Eventually(session.Streaming).Should(BeTrue())

			Expect(session.Send(context.Background(), "second")).To(MatchError(chat.ErrStreamInProgress))
			Expect(session.Select(context.Background(), "other")).To(MatchError(chat.ErrStreamInProgress))

			pw.Write([]byte("data: [DONE]\n\n"))
			Eventually(done).Should(Receive(BeNil()))
		})
	})

	Describe("Select", func() {
		It("should reset the transcript and load history", func() {
			backend.body = sseBody(`{"delta":{"content":"x"}}`)
			Expect(session.Send(context.Background(), "old")).To(Succeed())

			backend.history["conv-2"] = []api.HistoryMessage{
				{Role: api.RoleUser, Content: "earlier", CreatedAt: "2024-03-01T09:00:00Z"},
				{ID: "srv-2", Role: api.RoleAssistant, Content: "reply"},
			}

			Expect(session.Select(context.Background(), "conv-2")).To(Succeed())
			Expect(session.ID()).To(Equal("conv-2"))

			messages := session.Messages()
			Expect(messages).To(HaveLen(2))
			Expect(messages[0].ID).ToNot(BeEmpty())
			Expect(messages[0].CreatedAt.Hour()).To(Equal(9))
			Expect(messages[1].ID).To(Equal("srv-2"))
		})

		It("should leave an empty transcript when history fails", func() {
			Expect(session.Select(context.Background(), "missing")).To(HaveOccurred())
			Expect(session.ID()).To(Equal("missing"))
			Expect(session.Messages()).To(BeEmpty())
		})
	})

	Describe("Sessions", func() {
		It("should pass through the server index", func() {
			backend.sessions = []api.Session{{ID: "a", Title: "Alpha"}}
			sessions, err := session.Sessions(context.Background())
			Expect(err).ToNot(HaveOccurred())
			Expect(sessions).To(HaveLen(1))
		})
	})
})
