package savecmder

import (
	"os"
	"path/filepath"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("readTranscript", func() {
	It("errors when no transcript was given", func() {
		cmder := &saveCommander{}
		_, err := cmder.readTranscript(strings.NewReader(""))
		Expect(err).To(MatchError(ContainSubstring("transcript is required")))
	})

	It("errors on an empty message array", func() {
		cmder := &saveCommander{transcript: "-"}
		_, err := cmder.readTranscript(strings.NewReader("[]"))
		Expect(err).To(MatchError(ContainSubstring("no messages")))
	})

	It("parses a transcript from stdin", func() {
		cmder := &saveCommander{transcript: "-"}
		messages, err := cmder.readTranscript(strings.NewReader(`[{"role":"user","content":"hi"}]`))
		Expect(err).NotTo(HaveOccurred())
		Expect(messages).To(HaveLen(1))
		Expect(messages[0].Role).To(Equal("user"))
	})

	It("parses a transcript file", func() {
		tmpDir, err := os.MkdirTemp("", "stasis-save-*")
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(func() { os.RemoveAll(tmpDir) })

		path := filepath.Join(tmpDir, "transcript.json")
		Expect(os.WriteFile(path, []byte(`[{"role":"user","content":"hi"},{"role":"assistant","content":"hello"}]`), 0o600)).To(Succeed())

		cmder := &saveCommander{transcript: path}
		messages, err := cmder.readTranscript(strings.NewReader(""))
		Expect(err).NotTo(HaveOccurred())
		Expect(messages).To(HaveLen(2))
	})

	It("rejects malformed JSON", func() {
		cmder := &saveCommander{transcript: "-"}
		_, err := cmder.readTranscript(strings.NewReader("not json"))
		Expect(err).To(MatchError(ContainSubstring("parsing transcript")))
	})
})
