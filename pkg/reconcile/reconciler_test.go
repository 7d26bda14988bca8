package reconcile_test

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/stasishq/stasis/pkg/dump"
	"github.com/stasishq/stasis/pkg/reconcile"
	"github.com/stasishq/stasis/pkg/session"
	"github.com/stasishq/stasis/pkg/slot"
)

type fakeReader struct {
	doc *dump.Dump
	err error
}

func (f *fakeReader) Read(string) (*dump.Dump, error) {
	return f.doc, f.err
}

type fakeEnsurer struct {
	desc    *session.Descriptor
	changed bool
	err     error

	wanted *dump.RuntimeContext
	calls  int
}

func (f *fakeEnsurer) Ensure(_ context.Context, _ string, wanted *dump.RuntimeContext) (*session.Descriptor, bool, error) {
	f.calls++
	f.wanted = wanted
	return f.desc, f.changed, f.err
}

type fakeSlots struct {
	idleID     int
	idleErr    error
	restoreErr error

	restoredSlot int
	restoreCalls int
}

func (f *fakeSlots) IdleSlot(context.Context, string) (int, error) {
	return f.idleID, f.idleErr
}

func (f *fakeSlots) Restore(_ context.Context, _, _ string, slotID int) error {
	if f.restoreErr != nil {
		return f.restoreErr
	}
	f.restoredSlot = slotID
	f.restoreCalls++
	return nil
}

var _ = Describe("Reconciler", func() {
	var (
		reader   *fakeReader
		launcher *fakeEnsurer
		slots    *fakeSlots
		rec      *reconcile.Reconciler

		msgs = []dump.ChatMessage{{Role: "user", Content: "hi"}}
		rc   = &dump.RuntimeContext{Args: []string{"--ctx-size", "8192"}}
	)

	BeforeEach(func() {
		reader = &fakeReader{doc: &dump.Dump{
			ModelID:        "m1",
			Messages:       msgs,
			RuntimeContext: rc,
		}}
		launcher = &fakeEnsurer{desc: &session.Descriptor{ModelID: "m1", PID: 4242}}
		slots = &fakeSlots{idleID: 2}
		rec = reconcile.NewReconciler(reader, launcher, slots, zap.NewNop())
	})

	It("restores into the idle slot with no drift when the server already matches", func() {
		restored, report, err := rec.Restore(context.Background(), "m1", "s1")
		Expect(err).NotTo(HaveOccurred())
		Expect(restored).To(Equal(msgs))

		Expect(report.SlotID).To(Equal(2))
		Expect(report.DriftDetected).To(BeFalse())
		Expect(report.Relaunched).To(BeFalse())
		Expect(report.MissingRuntimeContext).To(BeFalse())

		Expect(launcher.wanted).To(Equal(rc))
		Expect(slots.restoredSlot).To(Equal(2))
	})

	It("reports drift when the server had to be relaunched", func() {
		launcher.changed = true

		_, report, err := rec.Restore(context.Background(), "m1", "s1")
		Expect(err).NotTo(HaveOccurred())
		Expect(report.Relaunched).To(BeTrue())
		Expect(report.DriftDetected).To(BeTrue())
	})

	It("reports unverifiable drift for dumps without a runtime context", func() {
		reader.doc.RuntimeContext = nil

		_, report, err := rec.Restore(context.Background(), "m1", "s1")
		Expect(err).NotTo(HaveOccurred())
		Expect(report.MissingRuntimeContext).To(BeTrue())
		Expect(report.DriftDetected).To(BeTrue())
		Expect(launcher.wanted).To(BeNil())
	})

	It("aborts before touching the server when the dump is missing", func() {
		reader.doc = nil
		reader.err = dump.ErrNotFound{Name: "s1"}

		_, _, err := rec.Restore(context.Background(), "m1", "s1")

		var notFound dump.ErrNotFound
		Expect(err).To(BeAssignableToTypeOf(notFound))
		Expect(launcher.calls).To(BeZero())
		Expect(slots.restoreCalls).To(BeZero())
	})

	It("aborts when the server cannot be converged", func() {
		launcher.err = errors.New("binary not found")

		_, _, err := rec.Restore(context.Background(), "m1", "s1")
		Expect(err).To(MatchError(ContainSubstring("binary not found")))
		Expect(slots.restoreCalls).To(BeZero())
	})

	It("propagates a busy server without attempting the restore", func() {
		slots.idleErr = slot.ErrNoIdleSlot{ModelID: "m1"}

		_, _, err := rec.Restore(context.Background(), "m1", "s1")

		var noIdle slot.ErrNoIdleSlot
		Expect(err).To(BeAssignableToTypeOf(noIdle))
		Expect(slots.restoreCalls).To(BeZero())
	})

	It("propagates slot restore failures", func() {
		slots.restoreErr = slot.ErrSlotAction{Action: "restore", StatusCode: 500}

		_, _, err := rec.Restore(context.Background(), "m1", "s1")

		var actionErr slot.ErrSlotAction
		Expect(err).To(BeAssignableToTypeOf(actionErr))
	})
})
