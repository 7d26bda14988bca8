package session_test

import (
	"os"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/stasishq/stasis/pkg/session"
)

var _ = Describe("Registry", func() {
	var tempDir string
	var registry *session.Registry

	// everythingAlive treats all positive pids as running so tests control
	// liveness explicitly.
	everythingAlive := func(pid int) bool { return pid > 0 }

	BeforeEach(func() {
		var err error
		tempDir, err = os.MkdirTemp("", "stasis-session-*")
		Expect(err).NotTo(HaveOccurred())

		registry, err = session.NewRegistry(tempDir)
		Expect(err).NotTo(HaveOccurred())
		registry.SetAliveFunc(everythingAlive)
	})

	AfterEach(func() {
		if tempDir != "" {
			Expect(os.RemoveAll(tempDir)).To(Succeed())
		}
	})

	It("registers and finds a session by model", func() {
		Expect(registry.Register(session.Descriptor{
			SessionID: "s-1",
			ModelID:   "m1",
			PID:       123,
			Port:      3000,
			APIKey:    "k",
		})).To(Succeed())

		found, err := registry.FindByModel("m1")
		Expect(err).NotTo(HaveOccurred())
		Expect(found).NotTo(BeNil())
		Expect(found.PID).To(Equal(123))
		Expect(found.Port).To(Equal(3000))
		Expect(found.APIKey).To(Equal("k"))
	})

	It("returns nil for an unknown model", func() {
		found, err := registry.FindByModel("missing")
		Expect(err).NotTo(HaveOccurred())
		Expect(found).To(BeNil())
	})

	It("replaces the existing session for a model on register", func() {
		Expect(registry.Register(session.Descriptor{ModelID: "m1", PID: 100, Port: 3000})).To(Succeed())
		Expect(registry.Register(session.Descriptor{ModelID: "m1", PID: 200, Port: 3001})).To(Succeed())

		sessions, err := registry.List()
		Expect(err).NotTo(HaveOccurred())
		Expect(sessions).To(HaveLen(1))
		Expect(sessions[0].PID).To(Equal(200))
	})

	It("prunes sessions whose process has died", func() {
		Expect(registry.Register(session.Descriptor{ModelID: "m1", PID: 100})).To(Succeed())
		Expect(registry.Register(session.Descriptor{ModelID: "m2", PID: 200})).To(Succeed())

		registry.SetAliveFunc(func(pid int) bool { return pid == 200 })

		found, err := registry.FindByModel("m1")
		Expect(err).NotTo(HaveOccurred())
		Expect(found).To(BeNil())

		// The prune persists: even with the permissive check restored,
		// the dead entry is gone from the table.
		registry.SetAliveFunc(everythingAlive)
		sessions, err := registry.List()
		Expect(err).NotTo(HaveOccurred())
		Expect(sessions).To(HaveLen(1))
		Expect(sessions[0].ModelID).To(Equal("m2"))
	})

	It("unregisters by pid", func() {
		Expect(registry.Register(session.Descriptor{ModelID: "m1", PID: 100})).To(Succeed())
		Expect(registry.Unregister(100)).To(Succeed())

		sessions, err := registry.List()
		Expect(err).NotTo(HaveOccurred())
		Expect(sessions).To(BeEmpty())
	})

	It("lists nothing before any registration", func() {
		sessions, err := registry.List()
		Expect(err).NotTo(HaveOccurred())
		Expect(sessions).To(BeEmpty())
	})

	It("locks and releases", func() {
		lock, err := registry.Lock()
		Expect(err).NotTo(HaveOccurred())
		Expect(lock).NotTo(BeNil())
		Expect(lock.Release()).To(Succeed())
	})
})
