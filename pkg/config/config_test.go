package config

import (
	"context"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/papercomputeco/studyflow/pkg/provider"
	"github.com/papercomputeco/studyflow/pkg/tool/search"
)

const sample = `
[server]
listen = "127.0.0.1:9000"
db_path = "runs.db"

[model]
backend = "gemini"
model = "gemini-2.0-flash"
timeout = "90s"
rpm = 30

[options]
temperature = 0.3

[search]
backend = "canned"
fallback = "Nothing here."

[[search.rules]]
keyword = "exam"
answer = "The exam is on Friday."
`

func noEnv(string) string { return "" }

func writeFile(dir, body string) string {
	path := filepath.Join(dir, "studyflow.toml")
	gomega.Expect(os.WriteFile(path, []byte(body), 0o644)).To(gomega.Succeed())
	return path
}

var _ = Describe("Load", func() {
	It("returns the defaults without a file", func() {
		cfg, err := load("", noEnv)
		gomega.Expect(err).NotTo(gomega.HaveOccurred())
		gomega.Expect(cfg).To(gomega.Equal(Default()))
		gomega.Expect(cfg.CannedRules()).To(gomega.Equal(search.DefaultRules))
	})

	It("returns the defaults when the file does not exist", func() {
		cfg, err := load(filepath.Join(GinkgoT().TempDir(), "missing.toml"), noEnv)
		gomega.Expect(err).NotTo(gomega.HaveOccurred())
		gomega.Expect(cfg.Server.Listen).To(gomega.Equal(":8080"))
	})

	It("decodes every section", func() {
		cfg, err := load(writeFile(GinkgoT().TempDir(), sample), noEnv)
		gomega.Expect(err).NotTo(gomega.HaveOccurred())

		gomega.Expect(cfg.Server.Listen).To(gomega.Equal("127.0.0.1:9000"))
		gomega.Expect(cfg.Server.DBPath).To(gomega.Equal("runs.db"))
		gomega.Expect(cfg.Model.Backend).To(gomega.Equal(provider.Gemini))
		gomega.Expect(cfg.Model.Timeout).To(gomega.Equal(90 * time.Second))
		gomega.Expect(cfg.Model.RPM).To(gomega.Equal(30))
		gomega.Expect(cfg.Options.Temperature).To(gomega.HaveValue(gomega.BeNumerically("~", 0.3)))
		gomega.Expect(cfg.Search.Fallback).To(gomega.Equal("Nothing here."))
		gomega.Expect(cfg.CannedRules()).To(gomega.ConsistOf(search.Rule{Keyword: "exam", Answer: "The exam is on Friday."}))
	})

	It("rejects unknown keys", func() {
		_, err := load(writeFile(GinkgoT().TempDir(), "[model]\nbackedn = \"openai\"\n"), noEnv)
		gomega.Expect(err).To(gomega.MatchError(gomega.ContainSubstring("unknown keys: model.backedn")))
	})

	It("rejects malformed TOML", func() {
		_, err := load(writeFile(GinkgoT().TempDir(), "[model\n"), noEnv)
		gomega.Expect(err).To(gomega.HaveOccurred())
	})

	It("applies environment overrides over the file", func() {
		env := map[string]string{
			"STUDYFLOW_API_KEY": "secret",
			"STUDYFLOW_BACKEND": "anthropic",
			"STUDYFLOW_DEBUG":   "true",
			"STUDYFLOW_RPM":     "10",
		}
		cfg, err := load(writeFile(GinkgoT().TempDir(), sample), func(k string) string { return env[k] })
		gomega.Expect(err).NotTo(gomega.HaveOccurred())

		gomega.Expect(cfg.Model.APIKey).To(gomega.Equal("secret"))
		gomega.Expect(cfg.Model.Backend).To(gomega.Equal(provider.Anthropic))
		gomega.Expect(cfg.Model.Model).To(gomega.Equal("gemini-2.0-flash"))
		gomega.Expect(cfg.Server.Debug).To(gomega.BeTrue())
		gomega.Expect(cfg.Model.RPM).To(gomega.Equal(10))
	})

	It("rejects malformed numeric overrides", func() {
		_, err := load("", func(k string) string {
			if k == "STUDYFLOW_RPM" {
				return "lots"
			}
			return ""
		})
		gomega.Expect(err).To(gomega.MatchError(gomega.ContainSubstring("STUDYFLOW_RPM")))
	})
})

var _ = Describe("Watch", func() {
	It("hands a reloaded configuration to the callback", func() {
		dir := GinkgoT().TempDir()
		path := writeFile(dir, sample)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		reloaded := make(chan *Config, 4)
		done := make(chan error, 1)
		go func() {
			defer GinkgoRecover()
			done <- Watch(ctx, path, zap.NewNop(), func(c *Config) {
				select {
				case reloaded <- c:
				default:
				}
			})
		}()

		// give the watcher time to register
		time.Sleep(100 * time.Millisecond)
		writeFile(dir, "[search]\nfallback = \"Updated.\"\n")

		// a write may surface as several events, the first on a truncated file
		gomega.Eventually(func() string {
			select {
			case c := <-reloaded:
				return c.Search.Fallback
			default:
				return ""
			}
		}, 5*time.Second).Should(gomega.Equal("Updated."))

		cancel()
		gomega.Eventually(done, time.Second).Should(gomega.Receive(gomega.BeNil()))
	})
})
