package launch_test

import (
	"context"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/stasishq/stasis/pkg/dump"
	"github.com/stasishq/stasis/pkg/launch"
	"github.com/stasishq/stasis/pkg/session"
)

// fakeRegistry is an in-memory Registrar for tests.
type fakeRegistry struct {
	sessions map[string]session.Descriptor
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{sessions: map[string]session.Descriptor{}}
}

func (f *fakeRegistry) FindByModel(modelID string) (*session.Descriptor, error) {
	if desc, ok := f.sessions[modelID]; ok {
		return &desc, nil
	}
	return nil, nil
}

func (f *fakeRegistry) Register(desc session.Descriptor) error {
	f.sessions[desc.ModelID] = desc
	return nil
}

func (f *fakeRegistry) Unregister(pid int) error {
	for id, desc := range f.sessions {
		if desc.PID == pid {
			delete(f.sessions, id)
		}
	}
	return nil
}

func strptr(s string) *string { return &s }

var _ = Describe("Launcher", func() {
	var (
		registry *fakeRegistry
		launcher *launch.Launcher
	)

	BeforeEach(func() {
		registry = newFakeRegistry()
		launcher = launch.NewLauncher(launch.Config{
			ModelsDir: "/models",
		}, registry, zap.NewNop())
	})

	Describe("Matches", func() {
		var desc *session.Descriptor

		BeforeEach(func() {
			desc = &session.Descriptor{
				ModelID:    "m1",
				Args:       []string{"--ctx-size", "8192", "--flash-attn"},
				ModelPath:  filepath.Join("/models", "llama-3.gguf"),
				MMProjPath: "",
			}
		})

		It("accepts an identical runtime context", func() {
			rc := &dump.RuntimeContext{
				Args:         []string{"--ctx-size", "8192", "--flash-attn"},
				ModelRelPath: strptr("llama-3.gguf"),
			}
			Expect(launcher.Matches(desc, rc)).To(BeTrue())
		})

		It("accepts an absolute model path that resolves to the same file", func() {
			rc := &dump.RuntimeContext{
				Args:         []string{"--ctx-size", "8192", "--flash-attn"},
				ModelRelPath: strptr("/models/llama-3.gguf"),
			}
			Expect(launcher.Matches(desc, rc)).To(BeTrue())
		})

		It("rejects different argument values", func() {
			rc := &dump.RuntimeContext{
				Args:         []string{"--ctx-size", "4096", "--flash-attn"},
				ModelRelPath: strptr("llama-3.gguf"),
			}
			Expect(launcher.Matches(desc, rc)).To(BeFalse())
		})

		It("rejects reordered arguments", func() {
			rc := &dump.RuntimeContext{
				Args:         []string{"--flash-attn", "--ctx-size", "8192"},
				ModelRelPath: strptr("llama-3.gguf"),
			}
			Expect(launcher.Matches(desc, rc)).To(BeFalse())
		})

		It("rejects a different model file", func() {
			rc := &dump.RuntimeContext{
				Args:         []string{"--ctx-size", "8192", "--flash-attn"},
				ModelRelPath: strptr("mistral.gguf"),
			}
			Expect(launcher.Matches(desc, rc)).To(BeFalse())
		})

		It("rejects a runtime context that adds an mmproj", func() {
			rc := &dump.RuntimeContext{
				Args:          []string{"--ctx-size", "8192", "--flash-attn"},
				ModelRelPath:  strptr("llama-3.gguf"),
				MMProjRelPath: strptr("mmproj.gguf"),
			}
			Expect(launcher.Matches(desc, rc)).To(BeFalse())
		})
	})

	Describe("Ensure", func() {
		It("returns the existing session unchanged when it matches", func() {
			registry.sessions["m1"] = session.Descriptor{
				ModelID:   "m1",
				PID:       4242,
				Args:      []string{"--ctx-size", "8192"},
				ModelPath: "/models/llama-3.gguf",
			}

			rc := &dump.RuntimeContext{
				Args:         []string{"--ctx-size", "8192"},
				ModelRelPath: strptr("llama-3.gguf"),
			}

			desc, changed, err := launcher.Ensure(context.Background(), "m1", rc)
			Expect(err).NotTo(HaveOccurred())
			Expect(changed).To(BeFalse())
			Expect(desc.PID).To(Equal(4242))
		})

		It("accepts any existing session when no context is wanted", func() {
			registry.sessions["m1"] = session.Descriptor{ModelID: "m1", PID: 4242}

			desc, changed, err := launcher.Ensure(context.Background(), "m1", nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(changed).To(BeFalse())
			Expect(desc.PID).To(Equal(4242))
		})

		It("fails when there is no session and no context to launch from", func() {
			_, _, err := launcher.Ensure(context.Background(), "m1", nil)
			Expect(err).To(MatchError(ContainSubstring("no running server")))
		})
	})

	Describe("CaptureRuntimeContext", func() {
		It("round-trips through Matches", func() {
			desc := &session.Descriptor{
				ModelID:   "m1",
				Args:      []string{"--ctx-size", "8192"},
				ModelPath: "/models/llama-3.gguf",
			}

			rc := launch.CaptureRuntimeContext(desc, "/models")
			Expect(rc.Args).To(Equal([]string{"--ctx-size", "8192"}))
			Expect(*rc.ModelRelPath).To(Equal("llama-3.gguf"))
			Expect(rc.MMProjRelPath).To(BeNil())

			Expect(launcher.Matches(desc, rc)).To(BeTrue())
		})

		It("keeps paths outside the models directory absolute", func() {
			desc := &session.Descriptor{
				ModelID:   "m1",
				ModelPath: "/srv/shared/llama-3.gguf",
			}

			rc := launch.CaptureRuntimeContext(desc, "/models")
			Expect(*rc.ModelRelPath).To(Equal("/srv/shared/llama-3.gguf"))
		})
	})

	Describe("Launch", func() {
		It("rejects a spec without a model path", func() {
			_, err := launcher.Launch(context.Background(), launch.Spec{ModelID: "m1"})
			Expect(err).To(MatchError(ContainSubstring("no model path")))
		})
	})
})
