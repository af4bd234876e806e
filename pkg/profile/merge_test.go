package profile_test

import (
	"encoding/json"
	"math/rand"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/swarm/pkg/profile"
)

func raw(v any) json.RawMessage {
	b, err := json.Marshal(v)
	Expect(err).NotTo(HaveOccurred())
	return b
}

var _ = Describe("Merge", func() {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	It("inserts the candidate as-is when nothing is stored", func() {
		merged := profile.Merge(nil, profile.Candidate{Value: raw("Rust"), Confidence: 0.4, Source: "a1"}, now)
		Expect(merged.Value).To(MatchJSON(`"Rust"`))
		Expect(merged.Confidence).To(Equal(0.4))
		Expect(merged.Source).To(Equal("a1"))
		Expect(merged.UpdatedAt).To(Equal(now))
	})

	It("replaces value and source only on strictly greater confidence", func() {
		existing := &profile.Entry{Value: raw("Go"), Confidence: 0.9, Source: "a1"}

		equal := profile.Merge(existing, profile.Candidate{Value: raw("Zig"), Confidence: 0.9, Source: "a2"}, now)
		Expect(equal.Value).To(MatchJSON(`"Go"`))
		Expect(equal.Source).To(Equal("a1"))

		higher := profile.Merge(existing, profile.Candidate{Value: raw("Zig"), Confidence: 0.95, Source: "a2"}, now)
		Expect(higher.Value).To(MatchJSON(`"Zig"`))
		Expect(higher.Source).To(Equal("a2"))
		Expect(higher.Confidence).To(Equal(0.95))
	})

	It("never lowers the stored confidence", func() {
		existing := &profile.Entry{Value: raw("Go"), Confidence: 0.9}
		merged := profile.Merge(existing, profile.Candidate{Value: raw("Python"), Confidence: 0.3}, now)
		Expect(merged.Confidence).To(Equal(0.9))
		Expect(merged.Value).To(MatchJSON(`"Go"`))
	})

	It("coalesces tags and expiry", func() {
		expires := now.Add(time.Hour)
		existing := &profile.Entry{Value: raw(1), Confidence: 0.5, Tags: []string{"old"}, ExpiresAt: &expires}

		kept := profile.Merge(existing, profile.Candidate{Value: raw(2), Confidence: 0.1}, now)
		Expect(kept.Tags).To(Equal([]string{"old"}))
		Expect(kept.ExpiresAt).To(Equal(&expires))

		later := now.Add(2 * time.Hour)
		replaced := profile.Merge(existing, profile.Candidate{Value: raw(2), Confidence: 0.1, Tags: []string{"new"}, ExpiresAt: &later}, now)
		Expect(replaced.Tags).To(Equal([]string{"new"}))
		Expect(*replaced.ExpiresAt).To(Equal(later))
		Expect(replaced.Value).To(MatchJSON(`1`))
	})

	It("keeps the value of the highest confidence seen across any sequence", func() {
		r := rand.New(rand.NewSource(7))
		for round := 0; round < 50; round++ {
			var (
				stored    *profile.Entry
				bestConf  = -1.0
				bestValue int
			)
			for i := 0; i < 20; i++ {
				conf := float64(r.Intn(10)) / 10
				merged := profile.Merge(stored, profile.Candidate{Value: raw(i), Confidence: conf}, now)
				stored = &merged

				if conf > bestConf {
					bestConf = conf
					bestValue = i
				}
				Expect(stored.Confidence).To(Equal(bestConf))
				Expect(stored.Value).To(MatchJSON(raw(bestValue)))
			}
		}
	})
})

var _ = Describe("MergeReflection", func() {
	It("stamps the reflect source even when the value is kept", func() {
		existing := &profile.Entry{Value: raw("dark"), Confidence: 0.9, Source: "a1"}
		merged := profile.MergeReflection(existing, profile.Candidate{Value: raw("light"), Confidence: 0.6, Source: "ignored"}, time.Now())
		Expect(merged.Value).To(MatchJSON(`"dark"`))
		Expect(merged.Source).To(Equal(profile.SourceReflect))
		Expect(merged.Confidence).To(Equal(0.9))
	})
})

var _ = Describe("ObservationCandidate", func() {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	It("defaults layer, confidence and context expiry", func() {
		layer, c := profile.ObservationCandidate(profile.Observation{Key: "mood", Value: raw("focused")}, "a1", now)
		Expect(layer).To(Equal(profile.LayerContext))
		Expect(c.Confidence).To(Equal(profile.DefaultObservationConfidence))
		Expect(c.ExpiresAt).NotTo(BeNil())
		Expect(*c.ExpiresAt).To(Equal(now.Add(24 * time.Hour)))
	})

	It("leaves other layers without expiry", func() {
		layer, c := profile.ObservationCandidate(profile.Observation{Layer: "preferences", Key: "lang", Value: raw("Go")}, "a1", now)
		Expect(layer).To(Equal("preferences"))
		Expect(c.ExpiresAt).To(BeNil())
	})

	It("keeps an explicit expiry", func() {
		explicit := now.Add(time.Hour)
		_, c := profile.ObservationCandidate(profile.Observation{Key: "mood", Value: raw("x"), ExpiresAt: &explicit}, "a1", now)
		Expect(*c.ExpiresAt).To(Equal(explicit))
	})
})
