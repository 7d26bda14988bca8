package config_test

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/stasishq/stasis/pkg/config"
)

var _ = Describe("Configer", func() {
	var tmpDir string

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "stasis-config-*")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		os.RemoveAll(tmpDir)
	})

	It("returns defaults when no config file exists", func() {
		cfger, err := config.NewConfiger(tmpDir)
		Expect(err).NotTo(HaveOccurred())

		cfg, err := cfger.LoadConfig()
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.Server.Binary).To(Equal("llama-server"))
		Expect(cfg.Server.Host).To(Equal("127.0.0.1"))
		Expect(cfg.HTTP.HealthTimeoutMS).To(Equal(2000))
		Expect(cfg.HTTP.ActionTimeoutMS).To(Equal(120000))
		Expect(cfg.API.Listen).To(Equal(":8091"))
	})

	It("round-trips a saved config", func() {
		cfger, err := config.NewConfiger(tmpDir)
		Expect(err).NotTo(HaveOccurred())

		cfg := config.NewDefaultConfig()
		cfg.Server.Binary = "/opt/llama/llama-server"
		cfg.Dumps.Dir = "/tmp/dumps"
		Expect(cfger.SaveConfig(cfg)).To(Succeed())

		loaded, err := cfger.LoadConfig()
		Expect(err).NotTo(HaveOccurred())
		Expect(loaded.Server.Binary).To(Equal("/opt/llama/llama-server"))
		Expect(loaded.Dumps.Dir).To(Equal("/tmp/dumps"))
	})

	It("fills missing fields with defaults on load", func() {
		path := filepath.Join(tmpDir, "config.toml")
		Expect(os.WriteFile(path, []byte("[server]\nbinary = \"custom-server\"\n"), 0o600)).To(Succeed())

		cfger, err := config.NewConfiger(tmpDir)
		Expect(err).NotTo(HaveOccurred())

		cfg, err := cfger.LoadConfig()
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.Server.Binary).To(Equal("custom-server"))
		Expect(cfg.Server.Host).To(Equal("127.0.0.1"))
		Expect(cfg.HTTP.ActionTimeoutMS).To(Equal(120000))
	})

	Describe("SetConfigValue and GetConfigValue", func() {
		It("sets and gets a string key", func() {
			cfger, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			Expect(cfger.SetConfigValue("server.host", "0.0.0.0")).To(Succeed())

			got, err := cfger.GetConfigValue("server.host")
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(Equal("0.0.0.0"))
		})

		It("rejects unknown keys", func() {
			cfger, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			Expect(cfger.SetConfigValue("nope.nothing", "x")).NotTo(Succeed())
		})

		It("keeps an explicit false for boolean keys across unrelated writes", func() {
			cfger, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			Expect(cfger.SetConfigValue("journal.enabled", "false")).To(Succeed())
			Expect(cfger.SetConfigValue("models.dir", "/srv/models")).To(Succeed())

			got, err := cfger.GetConfigValue("journal.enabled")
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(Equal("false"))
		})

		It("does not disable journaling when setting an unrelated key", func() {
			cfger, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			Expect(cfger.SetConfigValue("models.dir", "/srv/models")).To(Succeed())

			got, err := cfger.GetConfigValue("journal.enabled")
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(Equal("true"))
		})

		It("rejects non-numeric timeout values", func() {
			cfger, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			Expect(cfger.SetConfigValue("http.action_timeout_ms", "soon")).NotTo(Succeed())
		})
	})

	Describe("ParseConfigTOML", func() {
		It("rejects unsupported versions", func() {
			_, err := config.ParseConfigTOML([]byte("version = 99\n"))
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("ValidConfigKeys", func() {
		It("contains every supported key exactly once", func() {
			keys := config.ValidConfigKeys()
			seen := map[string]bool{}
			for _, k := range keys {
				Expect(seen[k]).To(BeFalse(), "duplicate key %s", k)
				seen[k] = true
				Expect(config.IsValidConfigKey(k)).To(BeTrue())
			}
			Expect(keys).To(ContainElement("server.binary"))
			Expect(keys).To(ContainElement("http.action_timeout_ms"))
		})
	})
})
