package utils_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/stasishq/stasis/pkg/utils"
)

var _ = Describe("Truncate", func() {
	It("returns short strings unchanged", func() {
		Expect(utils.Truncate("hello", 10)).To(Equal("hello"))
	})

	It("truncates long strings with an ellipsis", func() {
		Expect(utils.Truncate("hello world", 5)).To(Equal("hello..."))
	})

	It("returns strings at the limit unchanged", func() {
		Expect(utils.Truncate("hello", 5)).To(Equal("hello"))
	})
})
