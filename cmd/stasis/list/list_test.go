package listcmder

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/stasishq/stasis/pkg/dump"
)

var _ = Describe("transcriptPreview", func() {
	It("returns empty for an empty conversation", func() {
		Expect(transcriptPreview(nil)).To(Equal(""))
	})

	It("collapses whitespace in the first message", func() {
		messages := []dump.ChatMessage{
			{Role: "user", Content: "plan a\nroad trip\t along the coast"},
		}
		Expect(transcriptPreview(messages)).To(Equal("plan a road trip along the coast"))
	})

	It("truncates long messages with an ellipsis", func() {
		long := ""
		for range 20 {
			long += "wordy "
		}
		messages := []dump.ChatMessage{{Role: "user", Content: long}}

		preview := transcriptPreview(messages)
		Expect(preview).To(HaveSuffix("..."))
		Expect(preview).To(HaveLen(63))
	})
})
