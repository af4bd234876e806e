package reflection

import (
	"encoding/json"
	"fmt"
	"regexp"
	"slices"

	"github.com/papercomputeco/swarm/pkg/memory"
)

// Confidences assigned by the rule-based extractor.
const (
	PreferenceConfidence  = 0.6
	FactConfidence        = 0.7
	TechMentionConfidence = 0.5
	ProjectConfidence     = 0.6
)

var techWords = []string{
	"typescript", "react", "next.js", "python", "rust", "go", "vue", "svelte", "tailwind", "node",
}

var techPatterns = func() []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(techWords))
	for i, w := range techWords {
		out[i] = regexp.MustCompile(`(?i)(^|[^\p{L}\p{N}_])` + regexp.QuoteMeta(w) + `($|[^\p{L}\p{N}_])`)
	}
	return out
}()

// ExtractRules derives candidates from typed and tagged memories:
//
//   - type or tag "preference" becomes preferences/<key or pref_<id>>
//   - type or tag "fact" becomes identity/<key or fact_<id>>
//   - known technology words become preferences/tech_mentions
//   - tag "project" on a keyed memory becomes context/project_<key>
func ExtractRules(memories []memory.Memory) []Candidate {
	var out []Candidate
	for _, m := range memories {
		content := mustJSON(m.Content)

		if m.Type == memory.TypePreference || slices.Contains(m.Tags, memory.TypePreference) {
			out = append(out, Candidate{
				Layer:      "preferences",
				Key:        keyOr(m, "pref"),
				Value:      content,
				Confidence: PreferenceConfidence,
			})
		}

		if m.Type == memory.TypeFact || slices.Contains(m.Tags, memory.TypeFact) {
			out = append(out, Candidate{
				Layer:      "identity",
				Key:        keyOr(m, "fact"),
				Value:      content,
				Confidence: FactConfidence,
			})
		}

		if mentioned := techMentions(m.Content); len(mentioned) > 0 {
			out = append(out, Candidate{
				Layer:      "preferences",
				Key:        "tech_mentions",
				Value:      mustJSON(mentioned),
				Confidence: TechMentionConfidence,
			})
		}

		if m.Key != "" && slices.Contains(m.Tags, "project") {
			out = append(out, Candidate{
				Layer:      "context",
				Key:        "project_" + m.Key,
				Value:      content,
				Confidence: ProjectConfidence,
			})
		}
	}
	return out
}

func techMentions(content string) []string {
	var out []string
	for i, re := range techPatterns {
		if re.MatchString(content) {
			out = append(out, techWords[i])
		}
	}
	return out
}

func keyOr(m memory.Memory, prefix string) string {
	if m.Key != "" {
		return m.Key
	}
	return fmt.Sprintf("%s_%d", prefix, m.ID)
}

func mustJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}
