package logscmder

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// syncBuffer guards concurrent writes from the follower goroutine.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

var _ = Describe("followLog", func() {
	var tmpDir string

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "stasis-logs-*")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		Expect(os.RemoveAll(tmpDir)).To(Succeed())
	})

	It("returns an error when the file does not exist", func() {
		err := followLog(context.Background(), filepath.Join(tmpDir, "missing.log"), &bytes.Buffer{})
		Expect(err).To(HaveOccurred())
	})

	It("streams appended lines without replaying existing content", func() {
		logPath := filepath.Join(tmpDir, "server.log")
		Expect(os.WriteFile(logPath, []byte("old line\n"), 0o600)).To(Succeed())

		ctx, cancel := context.WithCancel(context.Background())
		DeferCleanup(cancel)

		out := &syncBuffer{}
		done := make(chan error, 1)
		go func() {
			done <- followLog(ctx, logPath, out)
		}()

		// Give the watcher a moment to attach before appending.
		time.Sleep(100 * time.Millisecond)

		f, err := os.OpenFile(logPath, os.O_APPEND|os.O_WRONLY, 0o600)
		Expect(err).NotTo(HaveOccurred())
		_, err = f.WriteString("new line\n")
		Expect(err).NotTo(HaveOccurred())
		Expect(f.Close()).To(Succeed())

		Eventually(out.String, time.Second, 10*time.Millisecond).Should(ContainSubstring("new line"))
		Expect(out.String()).NotTo(ContainSubstring("old line"))

		cancel()
		Eventually(done, time.Second).Should(Receive(MatchError(context.Canceled)))
	})

	It("stops when the context is cancelled", func() {
		logPath := filepath.Join(tmpDir, "server.log")
		Expect(os.WriteFile(logPath, nil, 0o600)).To(Succeed())

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() {
			done <- followLog(ctx, logPath, &syncBuffer{})
		}()

		cancel()
		Eventually(done, time.Second).Should(Receive(MatchError(context.Canceled)))
	})
})
