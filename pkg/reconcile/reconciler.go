// Package reconcile restores a conversation dump end to end: it brings the
// server for the dump's model into the recorded configuration, finds an idle
// slot, restores the KV cache into it, and reports what it had to change.
package reconcile

import (
	"context"

	"go.uber.org/zap"

	"github.com/stasishq/stasis/pkg/dump"
	"github.com/stasishq/stasis/pkg/session"
)

// DumpReader loads and validates a dump document without side effects.
type DumpReader interface {
	Read(name string) (*dump.Dump, error)
}

// Ensurer converges a model's server onto a wanted runtime context.
type Ensurer interface {
	Ensure(ctx context.Context, modelID string, wanted *dump.RuntimeContext) (*session.Descriptor, bool, error)
}

// SlotRestorer performs the KV-cache side of the restore.
type SlotRestorer interface {
	IdleSlot(ctx context.Context, modelID string) (int, error)
	Restore(ctx context.Context, modelID, dumpName string, slotID int) error
}

// Report describes what a restore found and did.
type Report struct {
	// Relaunched is true when the server had to be started or restarted to
	// match the dump's recorded configuration.
	Relaunched bool

	// MissingRuntimeContext is true for dumps written before runtime
	// contexts existed. The restore proceeds, but against whatever
	// configuration the server happens to run with.
	MissingRuntimeContext bool

	// DriftDetected is true when the running configuration could not be
	// confirmed to match the dump: either it differed (and was corrected by
	// a relaunch) or the dump carries nothing to compare against.
	DriftDetected bool

	// SlotID is the slot the KV cache was restored into.
	SlotID int
}

// Reconciler drives the full restore sequence.
type Reconciler struct {
	store    DumpReader
	launcher Ensurer
	slots    SlotRestorer
	logger   *zap.Logger
}

func NewReconciler(store DumpReader, launcher Ensurer, slots SlotRestorer, logger *zap.Logger) *Reconciler {
	return &Reconciler{
		store:    store,
		launcher: launcher,
		slots:    slots,
		logger:   logger,
	}
}

// Restore converges the server onto the dump's runtime context and restores
// its KV cache into an idle slot. Any step failing aborts the whole restore
// with the server left as the failed step found it; nothing is rolled back
// because no step before the slot action mutates conversation state.
func (r *Reconciler) Restore(ctx context.Context, modelID, name string) ([]dump.ChatMessage, *Report, error) {
	doc, err := r.store.Read(name)
	if err != nil {
		return nil, nil, err
	}

	report := &Report{}

	wanted := doc.RuntimeContext
	if !doc.HasRuntimeContext() {
		report.MissingRuntimeContext = true
		report.DriftDetected = true
		r.logger.Warn("dump has no runtime context, configuration cannot be verified",
			zap.String("name", name),
		)
	}

	_, relaunched, err := r.launcher.Ensure(ctx, modelID, wanted)
	if err != nil {
		return nil, nil, err
	}
	if relaunched {
		report.Relaunched = true
		report.DriftDetected = true
	}

	slotID, err := r.slots.IdleSlot(ctx, modelID)
	if err != nil {
		return nil, nil, err
	}
	report.SlotID = slotID

	if err := r.slots.Restore(ctx, modelID, name, slotID); err != nil {
		return nil, nil, err
	}

	r.logger.Info("restored conversation dump",
		zap.String("model", modelID),
		zap.String("name", name),
		zap.Int("slot", slotID),
		zap.Bool("relaunched", report.Relaunched),
	)

	return doc.Messages, report, nil
}
