package profile

import "time"

// Merge applies the confidence gate to an incoming candidate. existing is
// the stored entry, expired or not, and nil when nothing is stored.
//
// The value and source change only when the candidate is strictly more
// confident; the stored confidence becomes the maximum of both. Tags and
// expiry take the candidate's when supplied and keep the stored ones
// otherwise. The update time always advances to now.
func Merge(existing *Entry, in Candidate, now time.Time) Entry {
	if existing == nil {
		return Entry{
			Value:      in.Value,
			Confidence: in.Confidence,
			Source:     in.Source,
			Tags:       in.Tags,
			ExpiresAt:  in.ExpiresAt,
			UpdatedAt:  now,
		}
	}

	merged := *existing
	if in.Confidence > existing.Confidence {
		merged.Value = in.Value
		merged.Source = in.Source
		merged.Confidence = in.Confidence
	}
	if in.Tags != nil {
		merged.Tags = in.Tags
	}
	if in.ExpiresAt != nil {
		merged.ExpiresAt = in.ExpiresAt
	}
	merged.UpdatedAt = now

	return merged
}

// MergeReflection is Merge with the source stamped SourceReflect whether or
// not the value changed, so reflected provenance stays visible.
func MergeReflection(existing *Entry, in Candidate, now time.Time) Entry {
	merged := Merge(existing, in, now)
	merged.Source = SourceReflect
	return merged
}

// ObservationCandidate normalizes an observation: default layer, default
// confidence and the context layer's default expiry.
func ObservationCandidate(o Observation, source string, now time.Time) (layer string, c Candidate) {
	layer = o.Layer
	if layer == "" {
		layer = LayerContext
	}

	c = Candidate{
		Value:      o.Value,
		Confidence: DefaultObservationConfidence,
		Source:     source,
		Tags:       o.Tags,
		ExpiresAt:  o.ExpiresAt,
	}
	if o.Confidence != nil {
		c.Confidence = *o.Confidence
	}
	if c.ExpiresAt == nil && layer == LayerContext {
		expires := now.Add(ContextTTL)
		c.ExpiresAt = &expires
	}

	return layer, c
}
