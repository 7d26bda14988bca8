// Package launch spawns and supervises llama-server processes, one per
// model, and keeps the session registry in step with what is actually
// running.
package launch

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/stasishq/stasis/pkg/dump"
	"github.com/stasishq/stasis/pkg/proc"
	"github.com/stasishq/stasis/pkg/session"
)

const healthPollInterval = 300 * time.Millisecond

// Spec describes one server launch: which model to serve and how.
type Spec struct {
	ModelID string

	// Args are extra llama-server arguments, passed through verbatim before
	// the launcher's own flags.
	Args []string

	// ModelRelPath and MMProjRelPath are resolved against the models
	// directory unless absolute.
	ModelRelPath  *string
	MMProjRelPath *string
}

// Config holds launcher settings, typically sourced from config.toml.
type Config struct {
	// Binary is the llama-server executable name or path.
	Binary string

	// Host is the interface spawned servers bind to.
	Host string

	// ModelsDir is the base directory relative model paths resolve against.
	ModelsDir string

	// DumpsDir is passed as --slot-save-path so the server writes KV-cache
	// blobs next to the dump documents.
	DumpsDir string

	// LogsDir receives one <model>.log file per spawned server.
	LogsDir string

	// StartTimeout bounds how long a fresh server may take to answer its
	// first health probe.
	StartTimeout time.Duration
}

func (c *Config) applyDefaults() {
	if c.Binary == "" {
		c.Binary = "llama-server"
	}
	if c.Host == "" {
		c.Host = "127.0.0.1"
	}
	if c.StartTimeout == 0 {
		c.StartTimeout = 15 * time.Second
	}
}

// Registrar is the slice of the session registry the launcher needs.
type Registrar interface {
	FindByModel(modelID string) (*session.Descriptor, error)
	Register(desc session.Descriptor) error
	Unregister(pid int) error
}

// Launcher starts, checks, and stops llama-server sessions.
type Launcher struct {
	config   Config
	registry Registrar
	logger   *zap.Logger

	// alive is the process liveness check, injectable for tests.
	alive func(pid int) bool

	healthClient *http.Client
}

func NewLauncher(config Config, registry Registrar, logger *zap.Logger) *Launcher {
	config.applyDefaults()

	return &Launcher{
		config:       config,
		registry:     registry,
		logger:       logger,
		alive:        proc.Alive,
		healthClient: &http.Client{Timeout: 2 * time.Second},
	}
}

// SetAliveFunc overrides the process liveness check. Tests use this to
// simulate crashed servers.
func (l *Launcher) SetAliveFunc(alive func(pid int) bool) {
	l.alive = alive
}

// Launch spawns a server per the given Spec, waits for it to become healthy, and
// registers the session. Any existing session for the model is replaced in
// the registry but not stopped; callers that want a clean swap use Ensure.
func (l *Launcher) Launch(ctx context.Context, spec Spec) (*session.Descriptor, error) {
	port, err := l.freePort()
	if err != nil {
		return nil, fmt.Errorf("allocating port: %w", err)
	}

	modelPath := l.resolvePath(spec.ModelRelPath)
	if modelPath == "" {
		return nil, fmt.Errorf("launch spec for model %q has no model path", spec.ModelID)
	}
	mmprojPath := l.resolvePath(spec.MMProjRelPath)

	apiKey := uuid.NewString()
	args := l.buildArgs(spec.Args, modelPath, mmprojPath, port, apiKey)

	logPath, err := l.openLogTarget(spec.ModelID)
	if err != nil {
		return nil, err
	}

	pid, err := l.spawn(ctx, args, logPath)
	if err != nil {
		return nil, err
	}

	l.logger.Info("spawned llama-server",
		zap.String("model", spec.ModelID),
		zap.Int("pid", pid),
		zap.Int("port", port),
	)

	if err := l.waitHealthy(ctx, pid, port); err != nil {
		l.killQuietly(pid)
		return nil, err
	}

	desc := session.Descriptor{
		SessionID:  uuid.NewString(),
		ModelID:    spec.ModelID,
		PID:        pid,
		Port:       port,
		APIKey:     apiKey,
		Args:       append([]string(nil), spec.Args...),
		ModelPath:  modelPath,
		MMProjPath: mmprojPath,
		LogPath:    logPath,
		StartedAt:  time.Now(),
	}
	if err := l.registry.Register(desc); err != nil {
		l.killQuietly(pid)
		return nil, err
	}

	return &desc, nil
}

// Ensure returns a live session for the model whose configuration matches
// the wanted runtime context, launching or relaunching as needed. The
// changed result reports whether a (re)launch happened.
//
// A nil wanted context means "any configuration": an existing session is
// accepted as-is, and with no session there is nothing to launch from.
func (l *Launcher) Ensure(ctx context.Context, modelID string, wanted *dump.RuntimeContext) (*session.Descriptor, bool, error) {
	existing, err := l.registry.FindByModel(modelID)
	if err != nil {
		return nil, false, err
	}

	if existing != nil && (wanted == nil || l.Matches(existing, wanted)) {
		return existing, false, nil
	}

	if wanted == nil {
		return nil, false, fmt.Errorf("no running server for model %q and no launch configuration to start one", modelID)
	}

	if existing != nil {
		l.logger.Info("session configuration differs, relaunching",
			zap.String("model", modelID),
			zap.Int("pid", existing.PID),
		)
		if err := l.Stop(ctx, existing); err != nil {
			return nil, false, err
		}
	}

	desc, err := l.Launch(ctx, Spec{
		ModelID:       modelID,
		Args:          wanted.Args,
		ModelRelPath:  wanted.ModelRelPath,
		MMProjRelPath: wanted.MMProjRelPath,
	})
	if err != nil {
		return nil, false, err
	}
	return desc, true, nil
}

// Matches reports whether a running session was launched with the given
// runtime context. Argument order matters: llama-server flags are
// positional-sensitive in places, so a reordered list is a different launch.
func (l *Launcher) Matches(desc *session.Descriptor, rc *dump.RuntimeContext) bool {
	if len(desc.Args) != len(rc.Args) {
		return false
	}
	for i := range desc.Args {
		if desc.Args[i] != rc.Args[i] {
			return false
		}
	}

	if desc.ModelPath != l.resolvePath(rc.ModelRelPath) {
		return false
	}
	return desc.MMProjPath == l.resolvePath(rc.MMProjRelPath)
}

// Stop terminates the session's process and removes it from the registry.
// SIGTERM first, SIGKILL if the server has not exited after a grace period.
func (l *Launcher) Stop(ctx context.Context, desc *session.Descriptor) error {
	process, err := os.FindProcess(desc.PID)
	if err == nil {
		_ = process.Signal(syscall.SIGTERM)

		deadline := time.After(5 * time.Second)
	wait:
		for l.alive(desc.PID) {
			select {
			case <-ctx.Done():
				break wait
			case <-deadline:
				_ = process.Signal(syscall.SIGKILL)
				break wait
			case <-time.After(100 * time.Millisecond):
			}
		}
	}

	l.logger.Info("stopped llama-server",
		zap.String("model", desc.ModelID),
		zap.Int("pid", desc.PID),
	)

	return l.registry.Unregister(desc.PID)
}

// resolvePath maps an optional dump-relative path to an absolute one.
func (l *Launcher) resolvePath(rel *string) string {
	if rel == nil || *rel == "" {
		return ""
	}
	if filepath.IsAbs(*rel) {
		return *rel
	}
	return filepath.Join(l.config.ModelsDir, *rel)
}

// buildArgs assembles the full llama-server argument list. Spec args come
// first so the launcher's own flags win on conflict.
func (l *Launcher) buildArgs(specArgs []string, modelPath, mmprojPath string, port int, apiKey string) []string {
	args := append([]string(nil), specArgs...)
	args = append(args, "--model", modelPath)
	if mmprojPath != "" {
		args = append(args, "--mmproj", mmprojPath)
	}
	args = append(args,
		"--host", l.config.Host,
		"--port", strconv.Itoa(port),
		"--api-key", apiKey,
		"--slot-save-path", l.config.DumpsDir,
	)
	return args
}

func (l *Launcher) openLogTarget(modelID string) (string, error) {
	if l.config.LogsDir == "" {
		return "", nil
	}
	if err := os.MkdirAll(l.config.LogsDir, 0o755); err != nil {
		return "", fmt.Errorf("creating logs directory: %w", err)
	}
	return filepath.Join(l.config.LogsDir, sanitizeModelID(modelID)+".log"), nil
}

func (l *Launcher) spawn(ctx context.Context, args []string, logPath string) (int, error) {
	// #nosec G204 -- the binary comes from local configuration, not input.
	cmd := exec.CommandContext(ctx, l.config.Binary, args...)

	if logPath != "" {
		logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			return 0, fmt.Errorf("opening server log file: %w", err)
		}
		cmd.Stdout = logFile
		cmd.Stderr = logFile
		defer logFile.Close()
	}

	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("starting %s: %w", l.config.Binary, err)
	}

	// Reap in the background so a crashed server never lingers as a zombie.
	go func() {
		_ = cmd.Wait()
	}()

	return cmd.Process.Pid, nil
}

// waitHealthy polls /health until the server answers 200, the process dies,
// or the start timeout elapses.
func (l *Launcher) waitHealthy(ctx context.Context, pid, port int) error {
	url := fmt.Sprintf("http://%s:%d/health", l.config.Host, port)
	deadline := time.After(l.config.StartTimeout)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline:
			return fmt.Errorf("server did not become healthy within %s", l.config.StartTimeout)
		default:
		}

		if !l.alive(pid) {
			return fmt.Errorf("server process %d exited during startup", pid)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return fmt.Errorf("building health request: %w", err)
		}
		resp, err := l.healthClient.Do(req)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}

		time.Sleep(healthPollInterval)
	}
}

func (l *Launcher) freePort() (int, error) {
	listener, err := net.Listen("tcp", net.JoinHostPort(l.config.Host, "0"))
	if err != nil {
		return 0, err
	}
	defer listener.Close()

	addr, ok := listener.Addr().(*net.TCPAddr)
	if !ok {
		return 0, fmt.Errorf("unexpected listener address %T", listener.Addr())
	}
	return addr.Port, nil
}

func (l *Launcher) killQuietly(pid int) {
	if process, err := os.FindProcess(pid); err == nil {
		_ = process.Signal(syscall.SIGKILL)
	}
}

// CaptureRuntimeContext records a session's launch configuration in dump
// form. Paths under modelsDir are stored relative so dumps stay portable
// across machines that share a model layout.
func CaptureRuntimeContext(desc *session.Descriptor, modelsDir string) *dump.RuntimeContext {
	rc := &dump.RuntimeContext{
		Args: append([]string(nil), desc.Args...),
	}
	if desc.ModelPath != "" {
		p := relativize(desc.ModelPath, modelsDir)
		rc.ModelRelPath = &p
	}
	if desc.MMProjPath != "" {
		p := relativize(desc.MMProjPath, modelsDir)
		rc.MMProjRelPath = &p
	}
	return rc
}

func relativize(path, base string) string {
	if base == "" {
		return path
	}
	rel, err := filepath.Rel(base, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return path
	}
	return rel
}

// sanitizeModelID makes a model id safe to use as a file name.
func sanitizeModelID(modelID string) string {
	out := make([]rune, 0, len(modelID))
	for _, r := range modelID {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '-', r == '_', r == '.':
			out = append(out, r)
		default:
			out = append(out, '_')
		}
	}
	return string(out)
}
