package chat_test

import (
	"github.com/killallgit/chatnote/pkg/chat"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Conversation", func() {
	Describe("AddMessage", func() {
		It("should add message to conversation immutably", func() {
			original := chat.NewConversation("c1", "deepseek-chat")
			updated := chat.AddMessage(original, chat.NewUserMessage("  hello  "))

			Expect(chat.IsEmpty(original)).To(BeTrue())
			Expect(chat.GetMessageCount(updated)).To(Equal(1))

			msg, ok := chat.GetLastMessage(updated)
			Expect(ok).To(BeTrue())
			Expect(msg.Content).To(Equal("hello"))
			Expect(msg.ID).ToNot(BeEmpty())
			Expect(updated.ID).To(Equal("c1"))
		})
	})

	Describe("ReplaceContent", func() {
		It("should replace content by id without touching the original", func() {
			placeholder := chat.NewAssistantMessage("")
			conv := chat.AddMessage(chat.NewConversation("c1", "m"), chat.NewUserMessage("hi"))
			conv = chat.AddMessage(conv, placeholder)

			updated := chat.ReplaceContent(conv, placeholder.ID, "Hello")

			got, ok := chat.GetMessage(updated, placeholder.ID)
			Expect(ok).To(BeTrue())
			Expect(got.Content).To(Equal("Hello"))

			old, _ := chat.GetMessage(conv, placeholder.ID)
			Expect(old.Content).To(BeEmpty())
		})
	})

	Describe("GetLastAssistantMessage", func() {
		It("should return false when no assistant messages", func() {
			conv := chat.AddMessage(chat.NewConversation("c", "m"), chat.NewUserMessage("hi"))
			_, ok := chat.GetLastAssistantMessage(conv)
			Expect(ok).To(BeFalse())
		})
	})

	Describe("ResolveConversationID", func() {
		It("should prefer the explicit id", func() {
			Expect(chat.ResolveConversationID("url-id", "remembered")).To(Equal("url-id"))
		})

		It("should fall back to the remembered id", func() {
			Expect(chat.ResolveConversationID("", "remembered")).To(Equal("remembered"))
		})

		It("should generate a fresh id otherwise", func() {
			a := chat.ResolveConversationID("", "")
			b := chat.ResolveConversationID("", "")
			Expect(a).To(HaveLen(36))
			Expect(a).ToNot(Equal(b))
		})
	})
})
