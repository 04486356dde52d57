package tiers

import (
	"errors"
	"fmt"
	"strings"

	"scribe/internal/config"
)

// Tier is one catalogue entry.
type Tier struct {
	Name            string `json:"name"`
	Model           string `json:"modelTier"`
	MinAudioQuality int    `json:"minAudioQuality"`
	Description     string `json:"description"`
}

// Plan reasons.
const (
	ReasonFiltered   = "filtered_by_audio_quality"
	ReasonUnfiltered = "below_every_floor_using_full_catalogue"
	ReasonManual     = "manual_override"
)

// Plan is the ordered candidate list for one run.
type Plan struct {
	Candidates []Tier `json:"candidates"`
	Reason     string `json:"reason"`
	Score      int    `json:"audioScore"`
}

// Names returns the candidate names in order.
func (p Plan) Names() []string {
	names := make([]string, 0, len(p.Candidates))
	for _, t := range p.Candidates {
		names = append(names, t.Name)
	}
	return names
}

var defaultTiers = []Tier{
	{Name: "tiny", Model: "tiny", MinAudioQuality: 70, Description: "fastest model for clean, loud speech"},
	{Name: "base", Model: "base", MinAudioQuality: 50, Description: "fast general purpose model"},
	{Name: "small", Model: "small", MinAudioQuality: 30, Description: "balanced speed and robustness"},
	{Name: "medium", Model: "medium", MinAudioQuality: 20, Description: "robust model for noisy audio"},
	{Name: "large-v3", Model: "large-v3", MinAudioQuality: 0, Description: "most accurate model, slowest"},
}

// Catalogue is an ordered, read-only list of tiers.
type Catalogue struct {
	tiers []Tier
}

// Default returns the built-in catalogue.
func Default() Catalogue {
	c, _ := New(defaultTiers)
	return c
}

// New validates tiers and builds a catalogue preserving their order.
func New(tiers []Tier) (Catalogue, error) {
	if len(tiers) == 0 {
		return Catalogue{}, errors.New("tier catalogue is empty")
	}
	seen := make(map[string]struct{}, len(tiers))
	out := make([]Tier, 0, len(tiers))
	for i, t := range tiers {
		t.Name = strings.TrimSpace(t.Name)
		t.Model = strings.TrimSpace(t.Model)
		if t.Name == "" {
			return Catalogue{}, fmt.Errorf("tier %d: name required", i)
		}
		if t.Model == "" {
			t.Model = t.Name
		}
		if t.MinAudioQuality < 0 || t.MinAudioQuality > 100 {
			return Catalogue{}, fmt.Errorf("tier %q: min audio quality %d outside 0..100", t.Name, t.MinAudioQuality)
		}
		key := strings.ToLower(t.Name)
		if _, dup := seen[key]; dup {
			return Catalogue{}, fmt.Errorf("tier %q: duplicate name", t.Name)
		}
		seen[key] = struct{}{}
		out = append(out, t)
	}
	return Catalogue{tiers: out}, nil
}

// FromConfig builds the catalogue from configuration, using the built-in
// catalogue when none is configured.
func FromConfig(cfg []config.Tier) (Catalogue, error) {
	if len(cfg) == 0 {
		return Default(), nil
	}
	tiers := make([]Tier, 0, len(cfg))
	for _, t := range cfg {
		tiers = append(tiers, Tier{
			Name:            t.Name,
			Model:           t.Model,
			MinAudioQuality: t.MinAudioQuality,
			Description:     t.Description,
		})
	}
	return New(tiers)
}

// Tiers returns a copy of the catalogue in order.
func (c Catalogue) Tiers() []Tier {
	return append([]Tier(nil), c.tiers...)
}

// Names returns the tier names in order.
func (c Catalogue) Names() []string {
	return Plan{Candidates: c.tiers}.Names()
}

// Len returns the number of tiers.
func (c Catalogue) Len() int {
	return len(c.tiers)
}

// Lookup finds a tier by name or model, case-insensitively.
func (c Catalogue) Lookup(name string) (Tier, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return Tier{}, false
	}
	for _, t := range c.tiers {
		if strings.ToLower(t.Name) == name {
			return t, true
		}
	}
	for _, t := range c.tiers {
		if strings.ToLower(t.Model) == name {
			return t, true
		}
	}
	return Tier{}, false
}

// Filter returns the tiers whose floor is at or below score, in catalogue order.
func (c Catalogue) Filter(score int) []Tier {
	out := make([]Tier, 0, len(c.tiers))
	for _, t := range c.tiers {
		if t.MinAudioQuality <= score {
			out = append(out, t)
		}
	}
	return out
}

// Plan selects the candidates for an audio score.
func (c Catalogue) Plan(score int) Plan {
	filtered := c.Filter(score)
	if len(filtered) == 0 {
		return Plan{Candidates: c.Tiers(), Reason: ReasonUnfiltered, Score: score}
	}
	return Plan{Candidates: filtered, Reason: ReasonFiltered, Score: score}
}

// Manual returns a single-candidate plan for name.
func (c Catalogue) Manual(name string, score int) (Plan, error) {
	t, ok := c.Lookup(name)
	if !ok {
		return Plan{}, fmt.Errorf("unknown tier %q", name)
	}
	return Plan{Candidates: []Tier{t}, Reason: ReasonManual, Score: score}, nil
}
