package logger_test

import (
	"bytes"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/stasishq/stasis/pkg/logger"
)

var _ = Describe("NewLoggerWithWriters", func() {
	It("writes info logs to the provided writer", func() {
		var buf bytes.Buffer
		l := logger.NewLoggerWithWriters(false, &buf)

		l.Info("hello from test")
		Expect(l.Sync()).To(Succeed())

		Expect(buf.String()).To(ContainSubstring("hello from test"))
		Expect(buf.String()).To(ContainSubstring("INFO"))
	})

	It("suppresses debug logs when debug is off", func() {
		var buf bytes.Buffer
		l := logger.NewLoggerWithWriters(false, &buf)

		l.Debug("invisible")
		Expect(l.Sync()).To(Succeed())

		Expect(buf.String()).NotTo(ContainSubstring("invisible"))
	})

	It("emits debug logs when debug is on", func() {
		var buf bytes.Buffer
		l := logger.NewLoggerWithWriters(true, &buf)

		l.Debug("visible")
		Expect(l.Sync()).To(Succeed())

		Expect(buf.String()).To(ContainSubstring("visible"))
	})

	It("fans out to multiple writers", func() {
		var a, b bytes.Buffer
		l := logger.NewLoggerWithWriters(false, &a, &b)

		l.Info("both")
		Expect(l.Sync()).To(Succeed())

		Expect(strings.Contains(a.String(), "both")).To(BeTrue())
		Expect(strings.Contains(b.String(), "both")).To(BeTrue())
	})
})
