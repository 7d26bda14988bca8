// Package slot drives the KV-cache slot actions of a running llama-server
// over its HTTP control surface.
//
// Every operation follows the same fail-fast gate: resolve the session,
// check the process is alive, probe /health, and only then issue the slot
// action. Exactly one slot action is sent per call; retrying is the caller's
// decision.
package slot

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/stasishq/stasis/pkg/proc"
	"github.com/stasishq/stasis/pkg/session"
)

const (
	// ActionSave and ActionRestore name the server-side slot actions.
	ActionSave    = "save"
	ActionRestore = "restore"

	// saveSlotID is the slot a plain save targets. The chat client drives a
	// single conversation per server, which llama-server serves from slot 0.
	saveSlotID = 0
)

// SessionFinder resolves the live session for a model. The registry must be
// queried on every call; a cached descriptor could point at a dead server.
type SessionFinder interface {
	FindByModel(modelID string) (*session.Descriptor, error)
}

// Recorder receives a journal entry per attempted slot action. Recording is
// best-effort; implementations must not block for long.
type Recorder interface {
	Record(ctx context.Context, modelID, dumpName, action string, statusCode int, opErr error)
}

// Config holds the slot manager timeouts and target host.
type Config struct {
	// Host is the address spawned servers listen on.
	Host string

	// HealthTimeout bounds the /health probe.
	HealthTimeout time.Duration

	// ActionTimeout bounds the slot save/restore call. Slot files can be
	// multiple gigabytes, so this is much larger than the health timeout.
	ActionTimeout time.Duration
}

func (c *Config) applyDefaults() {
	if c.Host == "" {
		c.Host = "127.0.0.1"
	}
	if c.HealthTimeout == 0 {
		c.HealthTimeout = 2 * time.Second
	}
	if c.ActionTimeout == 0 {
		c.ActionTimeout = 2 * time.Minute
	}
}

// Manager performs KV-cache snapshot and restore against running servers.
type Manager struct {
	config   Config
	finder   SessionFinder
	recorder Recorder
	logger   *zap.Logger

	// alive is the process liveness check, injectable for tests.
	alive func(pid int) bool

	healthClient *http.Client
	actionClient *http.Client

	// slotLocks serializes actions per (model, slot). The server itself has
	// no cross-request ordering for a slot, so two concurrent restores would
	// otherwise race with undefined results.
	mu        sync.Mutex
	slotLocks map[string]*sync.Mutex
}

func NewManager(config Config, finder SessionFinder, logger *zap.Logger) *Manager {
	config.applyDefaults()

	return &Manager{
		config:       config,
		finder:       finder,
		logger:       logger,
		alive:        proc.Alive,
		healthClient: &http.Client{Timeout: config.HealthTimeout},
		actionClient: &http.Client{Timeout: config.ActionTimeout},
		slotLocks:    make(map[string]*sync.Mutex),
	}
}

// SetRecorder attaches a journal recorder. A nil recorder disables journaling.
func (m *Manager) SetRecorder(r Recorder) {
	m.recorder = r
}

// SetAliveFunc overrides the process liveness check. Tests use this to
// simulate crashed servers.
func (m *Manager) SetAliveFunc(alive func(pid int) bool) {
	m.alive = alive
}

// Save snapshots the KV cache of the server serving modelID into
// <dumpName>.bin under the server's slot-save path.
func (m *Manager) Save(ctx context.Context, modelID, dumpName string) error {
	return m.slotAction(ctx, modelID, dumpName, ActionSave, saveSlotID)
}

// Restore loads <dumpName>.bin back into the given slot of the server
// serving modelID.
func (m *Manager) Restore(ctx context.Context, modelID, dumpName string, slotID int) error {
	return m.slotAction(ctx, modelID, dumpName, ActionRestore, slotID)
}

// IdleSlot returns the id of a slot not currently processing on the server
// serving modelID. Returns ErrNoIdleSlot when every slot is busy.
func (m *Manager) IdleSlot(ctx context.Context, modelID string) (int, error) {
	sess, err := m.gateSession(ctx, modelID)
	if err != nil {
		return 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.baseURL(sess)+"/slots", nil)
	if err != nil {
		return 0, fmt.Errorf("building slots request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+sess.APIKey)

	resp, err := m.healthClient.Do(req)
	if err != nil {
		return 0, ErrUnreachable{ModelID: modelID, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("slot listing failed with status %d", resp.StatusCode)
	}

	var slots []struct {
		ID           int  `json:"id"`
		IsProcessing bool `json:"is_processing"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&slots); err != nil {
		return 0, fmt.Errorf("parsing slot listing: %w", err)
	}

	for _, s := range slots {
		if !s.IsProcessing {
			return s.ID, nil
		}
	}
	return 0, ErrNoIdleSlot{ModelID: modelID}
}

// slotAction runs the full gate-then-act sequence for one save or restore.
func (m *Manager) slotAction(ctx context.Context, modelID, dumpName, action string, slotID int) error {
	unlock := m.lockSlot(modelID, slotID)
	defer unlock()

	err := m.doSlotAction(ctx, modelID, dumpName, action, slotID)

	if m.recorder != nil {
		statusCode := 0
		var actionErr ErrSlotAction
		if errors.As(err, &actionErr) {
			statusCode = actionErr.StatusCode
		} else if err == nil {
			statusCode = http.StatusOK
		}
		m.recorder.Record(ctx, modelID, dumpName, action, statusCode, err)
	}

	return err
}

func (m *Manager) doSlotAction(ctx context.Context, modelID, dumpName, action string, slotID int) error {
	sess, err := m.gateSession(ctx, modelID)
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/slots/%d?action=%s", m.baseURL(sess), slotID, action)
	body, err := json.Marshal(map[string]string{
		"filename": CacheFilename(dumpName),
	})
	if err != nil {
		return fmt.Errorf("encoding slot action body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building slot action request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+sess.APIKey)

	m.logger.Debug("issuing slot action",
		zap.String("model", modelID),
		zap.String("action", action),
		zap.Int("slot", slotID),
		zap.String("filename", CacheFilename(dumpName)),
	)

	resp, err := m.actionClient.Do(req)
	if err != nil {
		return ErrUnreachable{ModelID: modelID, Err: err}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return ErrSlotAction{Action: action, StatusCode: resp.StatusCode}
	}

	return nil
}

// gateSession resolves the session and runs the liveness and health gates.
// The liveness check must precede any network call: a crashed process can
// briefly hold its port open, which would turn a crash into a confusing
// network error.
func (m *Manager) gateSession(ctx context.Context, modelID string) (*session.Descriptor, error) {
	sess, err := m.finder.FindByModel(modelID)
	if err != nil {
		return nil, fmt.Errorf("resolving session: %w", err)
	}
	if sess == nil {
		return nil, ErrNoSession{ModelID: modelID}
	}

	if !m.alive(sess.PID) {
		return nil, ErrProcessDead{ModelID: modelID, PID: sess.PID}
	}

	if err := m.health(ctx, sess); err != nil {
		return nil, ErrUnreachable{ModelID: modelID, Err: err}
	}

	return sess, nil
}

// health probes GET /health. Any transport error or non-success status means
// the server cannot be trusted with a slot action.
func (m *Manager) health(ctx context.Context, sess *session.Descriptor) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.baseURL(sess)+"/health", nil)
	if err != nil {
		return fmt.Errorf("building health request: %w", err)
	}

	resp, err := m.healthClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health probe returned status %d", resp.StatusCode)
	}
	return nil
}

func (m *Manager) baseURL(sess *session.Descriptor) string {
	return fmt.Sprintf("http://%s:%d", m.config.Host, sess.Port)
}

func (m *Manager) lockSlot(modelID string, slotID int) func() {
	key := fmt.Sprintf("%s/%d", modelID, slotID)

	m.mu.Lock()
	lock, ok := m.slotLocks[key]
	if !ok {
		lock = &sync.Mutex{}
		m.slotLocks[key] = lock
	}
	m.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}

// CacheFilename maps a dump name to its paired KV-cache blob name. The
// mapping is deterministic and collision-free by construction: the dump
// store uses the same base name with a .json extension.
func CacheFilename(dumpName string) string {
	return dumpName + ".bin"
}
