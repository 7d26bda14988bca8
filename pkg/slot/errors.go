package slot

import "fmt"

// ErrNoSession is returned when no running server serves the requested model.
type ErrNoSession struct {
	ModelID string
}

func (e ErrNoSession) Error() string {
	return fmt.Sprintf("no running server for model %q", e.ModelID)
}

// ErrProcessDead is returned when a session exists but its process is gone.
// The session table is pruned by the registry, so seeing this means the
// process died between lookup and use.
type ErrProcessDead struct {
	ModelID string
	PID     int
}

func (e ErrProcessDead) Error() string {
	return fmt.Sprintf("server process %d for model %q has crashed", e.PID, e.ModelID)
}

// ErrUnreachable is returned when the process is alive but the health probe
// failed. The listener may not be up yet, or the server is wedged.
type ErrUnreachable struct {
	ModelID string
	Err     error
}

func (e ErrUnreachable) Error() string {
	return fmt.Sprintf("server for model %q is unreachable, model appears to have crashed: %v", e.ModelID, e.Err)
}

func (e ErrUnreachable) Unwrap() error {
	return e.Err
}

// ErrSlotAction is returned when the server is reachable but rejected the
// save or restore action. The HTTP status is preserved verbatim because
// callers key off the exact code.
type ErrSlotAction struct {
	Action     string
	StatusCode int
}

func (e ErrSlotAction) Error() string {
	return fmt.Sprintf("KV cache %s failed with status %d", e.Action, e.StatusCode)
}

// ErrNoIdleSlot is returned when every slot on the session is busy.
// Restoring into a busy slot would corrupt its cache, so the caller must
// surface this instead of picking one.
type ErrNoIdleSlot struct {
	ModelID string
}

func (e ErrNoIdleSlot) Error() string {
	return fmt.Sprintf("no idle slot available on server for model %q", e.ModelID)
}
