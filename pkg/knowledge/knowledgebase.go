/*
Copyright 2026 The Incident Core Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package knowledge implements C3, the KnowledgeBase: a static-plus-learned
// catalogue of IncidentPatterns and the weighted symptom/signal match
// scoring algorithm used to rank them against an incident's evidence.
package knowledge

import (
	"context"
	"sort"
	"strings"

	"go.uber.org/zap"
	sigsyaml "sigs.k8s.io/yaml"

	"github.com/ai-autopilot/incident-core/pkg/shared/logging"
	"github.com/ai-autopilot/incident-core/pkg/store"
	"github.com/ai-autopilot/incident-core/pkg/types"
)

// DefaultMinConfidence is the match-scoring cutoff below which a pattern is
// not reported as a candidate.
const DefaultMinConfidence = 50.0

// MaxMatchedPatterns bounds how many candidates IncidentAnalyzer receives
// per incident.
const MaxMatchedPatterns = 5

const learnedPatternPrefix = "knowledge:pattern:"

// TotalMatchesLookup lets the KnowledgeBase break confidence ties using
// C4's totalMatches without importing the learning package directly.
type TotalMatchesLookup interface {
	TotalMatches(patternID string) int
}

// Base is the read-only in-memory pattern catalogue. It is populated once
// at startup from the built-in catalogue plus any learned patterns
// persisted in the store, and is never mutated afterward.
type Base struct {
	patterns map[string]types.IncidentPattern
	order    []string
	log      *zap.Logger
}

// NewBase builds a catalogue from the built-in set plus any additional
// patterns (e.g. hydrated from the store by the caller). Duplicate
// patternIDs in extra override the built-in entry, matching how a
// learned/user-added pattern is expected to supersede a stock one.
func NewBase(extra []types.IncidentPattern, log *zap.Logger) *Base {
	if log == nil {
		log = zap.NewNop()
	}
	b := &Base{patterns: make(map[string]types.IncidentPattern), log: log}
	for _, p := range BuiltinCatalogue() {
		b.add(p)
	}
	for _, p := range extra {
		b.add(p)
	}
	return b
}

func (b *Base) add(p types.IncidentPattern) {
	if _, exists := b.patterns[p.PatternID]; !exists {
		b.order = append(b.order, p.PatternID)
	}
	b.patterns[p.PatternID] = p
}

// Load reads the built-in catalogue plus any user-added patterns persisted
// under the learnedPatternPrefix in s. Overlays are accepted in either
// JSON or YAML — operators pasting a pattern by hand reliably reach for
// YAML, and sigs.k8s.io/yaml decodes both through the same struct tags.
func Load(ctx context.Context, s store.KeyValueStore, log *zap.Logger) (*Base, error) {
	if log == nil {
		log = zap.NewNop()
	}
	keys, err := s.Keys(ctx, learnedPatternPrefix)
	if err != nil {
		return nil, err
	}
	var extra []types.IncidentPattern
	for _, k := range keys {
		raw, err := s.Get(ctx, k)
		if err != nil || raw == nil {
			continue
		}
		var p types.IncidentPattern
		if decodeErr := sigsyaml.Unmarshal(raw, &p); decodeErr != nil {
			log.Warn("skipping malformed learned pattern", logging.NewFields().
				Component("knowledge").Operation("load").Resource("pattern", k).Error(decodeErr).Zap()...)
			continue
		}
		extra = append(extra, p)
	}
	return NewBase(extra, log), nil
}

// Get returns the pattern with the given ID, if loaded.
func (b *Base) Get(patternID string) (types.IncidentPattern, bool) {
	p, ok := b.patterns[patternID]
	return p, ok
}

// Len reports how many patterns are loaded.
func (b *Base) Len() int {
	return len(b.patterns)
}

// Evidence bundles the signals a pattern is scored against.
type Evidence struct {
	Anomalies []types.Anomaly
	Logs      []string
}

// Match scores every loaded pattern against ev and returns those at or
// above minConfidence (DefaultMinConfidence if <= 0), sorted by confidence
// descending and, on a tie, by the tie-break's totalMatches descending
// when tb is non-nil.
func (b *Base) Match(ev Evidence, minConfidence float64, tb TotalMatchesLookup) []types.PatternMatch {
	if minConfidence <= 0 {
		minConfidence = DefaultMinConfidence
	}
	logBuf := strings.ToLower(strings.Join(ev.Logs, " "))

	matches := make([]types.PatternMatch, 0, len(b.patterns))
	for _, id := range b.order {
		p := b.patterns[id]
		c := scorePattern(p, ev.Anomalies, logBuf)
		if c >= minConfidence {
			matches = append(matches, types.PatternMatch{PatternID: p.PatternID, Confidence: c})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Confidence != matches[j].Confidence {
			return matches[i].Confidence > matches[j].Confidence
		}
		if tb == nil {
			return false
		}
		return tb.TotalMatches(matches[i].PatternID) > tb.TotalMatches(matches[j].PatternID)
	})

	if len(matches) > MaxMatchedPatterns {
		matches = matches[:MaxMatchedPatterns]
	}
	return matches
}
