package config_test

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/spf13/cobra"

	"github.com/papercomputeco/swarm/pkg/config"
)

var _ = Describe("Configer config", func() {
	var tmpDir string

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "config-test-*")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		os.RemoveAll(tmpDir)
	})

	Describe("LoadConfig", func() {
		It("returns default config when no config file exists", func() {
			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			cfg, err := c.LoadConfig()
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg).To(Equal(config.NewDefaultConfig()))
			Expect(cfg.API.Listen).To(Equal(":3777"))
			Expect(cfg.Auth.AdminToken).To(Equal("swarm-admin-dev"))
			Expect(cfg.Embedding.Provider).To(BeEmpty())
			Expect(cfg.Enrich.Workers).To(Equal(uint(3)))
		})

		It("loads a valid config file and fills in defaults", func() {
			data := `version = 0

[storage]
postgres_dsn = "postgres://swarm@localhost/swarm"

[embedding]
provider = "ollama"
target = "http://localhost:11434"

[events]
kafka_brokers = ["k1:9092", "k2:9092"]
`
			Expect(os.WriteFile(filepath.Join(tmpDir, "config.toml"), []byte(data), 0o600)).To(Succeed())

			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			cfg, err := c.LoadConfig()
			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.Storage.PostgresDSN).To(Equal("postgres://swarm@localhost/swarm"))
			Expect(cfg.Embedding.Provider).To(Equal("ollama"))
			Expect(cfg.Embedding.Model).To(Equal("text-embedding-3-small"))
			Expect(cfg.Events.KafkaBrokers).To(Equal([]string{"k1:9092", "k2:9092"}))
			Expect(cfg.Events.KafkaTopic).To(Equal("swarm.audit"))
		})

		It("rejects unsupported versions", func() {
			Expect(os.WriteFile(filepath.Join(tmpDir, "config.toml"), []byte("version = 9\n"), 0o600)).To(Succeed())

			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			_, err = c.LoadConfig()
			Expect(err).To(MatchError(ContainSubstring("unsupported config version 9")))
		})

		It("rejects malformed TOML", func() {
			Expect(os.WriteFile(filepath.Join(tmpDir, "config.toml"), []byte("[api\n"), 0o600)).To(Succeed())

			c, err := config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			_, err = c.LoadConfig()
			Expect(err).To(MatchError(ContainSubstring("parsing config TOML")))
		})
	})

	Describe("SetConfigValue and GetConfigValue", func() {
		var c *config.Configer

		BeforeEach(func() {
			var err error
			c, err = config.NewConfiger(tmpDir)
			Expect(err).NotTo(HaveOccurred())
		})

		It("round trips every valid key through the file", func() {
			values := map[string]string{
				"storage.sqlite_path":  "/tmp/swarm.db",
				"storage.postgres_dsn": "postgres://localhost/swarm",
				"api.listen":           ":9000",
				"auth.admin_token":     "s3cret",
				"auth.jwt_secret":      "signing-key",
				"auth.jwt_ttl":         "24h",
				"embedding.provider":   "openai",
				"embedding.target":     "https://api.openai.com/v1",
				"embedding.model":      "text-embedding-3-large",
				"embedding.api_key":    "sk-embed",
				"embedding.timeout":    "30s",
				"enrich.workers":       "5",
				"enrich.queue_size":    "64",
				"reflection.provider":  "anthropic",
				"reflection.target":    "https://api.anthropic.com",
				"reflection.model":     "claude-haiku-4-5-20251001",
				"reflection.api_key":   "sk-ant",
				"cleanup.schedule":     "*/15 * * * *",
				"events.kafka_brokers": "k1:9092,k2:9092",
				"events.kafka_topic":   "audit",
			}
			Expect(config.ValidConfigKeys()).To(HaveLen(len(values)))

			for _, key := range config.ValidConfigKeys() {
				Expect(c.SetConfigValue(key, values[key])).To(Succeed(), key)
			}
			for _, key := range config.ValidConfigKeys() {
				got, err := c.GetConfigValue(key)
				Expect(err).NotTo(HaveOccurred())
				Expect(got).To(Equal(values[key]), key)
			}
		})

		It("rejects unknown keys", func() {
			Expect(c.SetConfigValue("proxy.upstream", "x")).To(MatchError(ContainSubstring("unknown config key")))
			_, err := c.GetConfigValue("proxy.upstream")
			Expect(err).To(HaveOccurred())
		})

		It("validates typed values", func() {
			Expect(c.SetConfigValue("enrich.workers", "many")).To(MatchError(ContainSubstring("enrich.workers")))
			Expect(c.SetConfigValue("auth.jwt_ttl", "a week")).To(MatchError(ContainSubstring("auth.jwt_ttl")))
		})

		It("marks credentials as secret", func() {
			Expect(config.IsSecretKey("auth.admin_token")).To(BeTrue())
			Expect(config.IsSecretKey("embedding.api_key")).To(BeTrue())
			Expect(config.IsSecretKey("api.listen")).To(BeFalse())
		})
	})

	Describe("RandomSecret", func() {
		It("returns distinct 64 character hex secrets", func() {
			a, err := config.RandomSecret()
			Expect(err).NotTo(HaveOccurred())
			b, err := config.RandomSecret()
			Expect(err).NotTo(HaveOccurred())
			Expect(a).To(MatchRegexp(`^[0-9a-f]{64}$`))
			Expect(a).NotTo(Equal(b))
		})
	})
})

var _ = Describe("InitViper", func() {
	var tmpDir string

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "config-viper-test-*")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		os.RemoveAll(tmpDir)
	})

	It("uses defaults without a config file", func() {
		v, err := config.InitViper(tmpDir)
		Expect(err).NotTo(HaveOccurred())
		Expect(v.GetString("api.listen")).To(Equal(":3777"))
		Expect(v.GetUint("enrich.queue_size")).To(Equal(uint(256)))
	})

	It("lets environment variables override the file", func() {
		Expect(os.WriteFile(filepath.Join(tmpDir, "config.toml"), []byte("[api]\nlisten = \":5555\"\n"), 0o600)).To(Succeed())
		GinkgoT().Setenv("SWARM_API_LISTEN", ":6666")

		v, err := config.InitViper(tmpDir)
		Expect(err).NotTo(HaveOccurred())
		Expect(v.GetString("api.listen")).To(Equal(":6666"))
	})

	It("binds cobra flags to viper keys via registry", func() {
		v, err := config.InitViper(tmpDir)
		Expect(err).NotTo(HaveOccurred())

		cmd := &cobra.Command{Use: "test"}
		var listen string
		config.AddStringFlag(cmd, config.ServeFlags, config.FlagListen, &listen)

		Expect(cmd.Flags().Set("listen", ":7777")).To(Succeed())
		config.BindRegisteredFlags(v, cmd, config.ServeFlags, []string{config.FlagListen})

		Expect(v.GetString("api.listen")).To(Equal(":7777"))
	})

	It("falls through to config when flag not set", func() {
		Expect(os.WriteFile(filepath.Join(tmpDir, "config.toml"), []byte("[cleanup]\nschedule = \"@hourly\"\n"), 0o600)).To(Succeed())

		v, err := config.InitViper(tmpDir)
		Expect(err).NotTo(HaveOccurred())

		cmd := &cobra.Command{Use: "test"}
		var schedule string
		config.AddStringFlag(cmd, config.ServeFlags, config.FlagCleanupSchedule, &schedule)
		config.BindRegisteredFlags(v, cmd, config.ServeFlags, []string{config.FlagCleanupSchedule})

		Expect(v.GetString("cleanup.schedule")).To(Equal("@hourly"))
	})

	It("skips bindings for nonexistent registry keys", func() {
		v, err := config.InitViper(tmpDir)
		Expect(err).NotTo(HaveOccurred())

		cmd := &cobra.Command{Use: "test"}
		config.BindRegisteredFlags(v, cmd, config.FlagSet{}, []string{"nonexistent"})

		Expect(v.GetString("auth.admin_token")).To(Equal("swarm-admin-dev"))
	})

	It("AddStringFlag pulls name, shorthand, default and description from FlagSet", func() {
		cmd := &cobra.Command{Use: "test"}
		var listen string
		config.AddStringFlag(cmd, config.ServeFlags, config.FlagListen, &listen)

		f := cmd.Flags().Lookup("listen")
		Expect(f).NotTo(BeNil())
		Expect(f.Shorthand).To(Equal("l"))
		Expect(f.DefValue).To(Equal(":3777"))
		Expect(f.Usage).To(Equal(config.ServeFlags[config.FlagListen].Description))
	})

	It("AddUintFlag works for enrich-workers", func() {
		cmd := &cobra.Command{Use: "test"}
		var workers uint
		config.AddUintFlag(cmd, config.ServeFlags, config.FlagEnrichWorkers, &workers)

		f := cmd.Flags().Lookup("enrich-workers")
		Expect(f).NotTo(BeNil())
		Expect(f.DefValue).To(Equal("3"))
	})
})
