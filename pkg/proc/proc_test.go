package proc_test

import (
	"os"
	"os/exec"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/stasishq/stasis/pkg/proc"
)

var _ = Describe("Alive", func() {
	It("reports the current process as alive", func() {
		Expect(proc.Alive(os.Getpid())).To(BeTrue())
	})

	It("reports a reaped child as dead", func() {
		cmd := exec.Command("true")
		Expect(cmd.Start()).To(Succeed())
		pid := cmd.Process.Pid
		Expect(cmd.Wait()).To(Succeed())

		Expect(proc.Alive(pid)).To(BeFalse())
	})

	It("rejects non-positive pids", func() {
		Expect(proc.Alive(0)).To(BeFalse())
		Expect(proc.Alive(-7)).To(BeFalse())
	})
})
