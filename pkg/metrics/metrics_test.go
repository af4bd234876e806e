package metrics_test

import (
	"errors"
	"io"
	"net/http/httptest"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/papercomputeco/swarm/pkg/metrics"
)

var _ = Describe("Collectors", func() {
	It("is a no-op when nil", func() {
		var c *metrics.Collectors
		Expect(func() {
			c.Observe("memory.write", time.Now(), nil)
			c.EmbeddingJob("stored")
			c.Reflection("rules")
			c.Expired(3)
		}).NotTo(Panic())
	})

	It("counts operations by outcome", func() {
		c := metrics.New()
		c.Observe("memory.write", time.Now(), nil)
		c.Observe("memory.write", time.Now(), errors.New("boom"))
		c.Observe("memory.write", time.Now(), nil)

		n, err := testutil.GatherAndCount(c.Registry(), "swarm_operations_total")
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(Equal(2))

		n, err = testutil.GatherAndCount(c.Registry(), "swarm_operation_duration_seconds")
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(Equal(1))
	})

	It("serves the exposition format", func() {
		c := metrics.New()
		c.EmbeddingJob("stored")
		c.Reflection("llm")
		c.Expired(2)

		rec := httptest.NewRecorder()
		c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
		body, err := io.ReadAll(rec.Body)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(body)).To(ContainSubstring(`swarm_embedding_jobs_total{outcome="stored"} 1`))
		Expect(string(body)).To(ContainSubstring(`swarm_reflection_runs_total{method="llm"} 1`))
		Expect(string(body)).To(ContainSubstring(`swarm_profile_entries_expired_total 2`))
	})
})
