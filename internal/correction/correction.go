package correction

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"scribe/internal/language"
	"scribe/internal/logging"
	"scribe/internal/services"
	"scribe/internal/services/llm"
	"scribe/internal/transcript"
)

const (
	// DefaultBatchSize caps the segments sent per request.
	DefaultBatchSize = 40
	// maxBatchChars keeps a batch within the model's token budget.
	maxBatchChars = 6000
)

// ErrNoSegments reports a correction request without any non-empty segment.
var ErrNoSegments = errors.New("correction: no segments to correct")

// Completer abstracts the structured LLM completion for testability. It
// decodes the reply into target and returns the raw content, which is
// non-empty when only decoding failed.
type Completer interface {
	CompleteStructured(ctx context.Context, systemPrompt, userPrompt string, target any) (string, error)
}

var _ Completer = (*llm.Client)(nil)

// Segment is one corrected segment.
type Segment struct {
	ID            int      `json:"id"`
	Start         float64  `json:"start"`
	End           float64  `json:"end"`
	OriginalText  string   `json:"originalText"`
	CorrectedText string   `json:"correctedText"`
	Changes       []string `json:"changes"`
}

// Statistics summarises what the pass changed.
type Statistics struct {
	TotalSegments     int `json:"totalSegments"`
	CorrectedSegments int `json:"correctedSegments"`
	TotalChanges      int `json:"totalChanges"`
	Batches           int `json:"batches"`
}

// Result is the correction artifact stored alongside the transcript.
type Result struct {
	Segments   []Segment  `json:"segments"`
	Summary    string     `json:"summary"`
	Statistics Statistics `json:"statistics"`
	Language   string     `json:"language,omitempty"`
}

// Text joins the corrected segment texts.
func (r *Result) Text() string {
	if r == nil {
		return ""
	}
	parts := make([]string, 0, len(r.Segments))
	for _, seg := range r.Segments {
		if text := strings.TrimSpace(seg.CorrectedText); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " ")
}

// Apply returns a copy of t with corrected segment texts substituted by id.
func (r *Result) Apply(t transcript.Transcript) transcript.Transcript {
	if r == nil || len(r.Segments) == 0 {
		return t
	}
	byID := make(map[int]string, len(r.Segments))
	for _, seg := range r.Segments {
		byID[seg.ID] = seg.CorrectedText
	}
	out := t
	out.Segments = make([]transcript.Segment, len(t.Segments))
	copy(out.Segments, t.Segments)
	for i := range out.Segments {
		if text, ok := byID[out.Segments[i].ID]; ok {
			out.Segments[i].Text = text
		}
	}
	out.Text = ""
	out.Text = out.PlainText()
	return out
}

// Engine corrects transcript segments through an LLM.
type Engine struct {
	client    Completer
	logger    *slog.Logger
	batchSize int
}

// Option customises an Engine.
type Option func(*Engine)

// WithBatchSize overrides DefaultBatchSize.
func WithBatchSize(size int) Option {
	return func(e *Engine) {
		if size > 0 {
			e.batchSize = size
		}
	}
}

// NewEngine constructs a correction engine.
func NewEngine(client Completer, logger *slog.Logger, opts ...Option) *Engine {
	e := &Engine{
		client:    client,
		logger:    logging.NewComponentLogger(logger, "correction"),
		batchSize: DefaultBatchSize,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Correct sends the non-empty segments to the model and assembles the result.
// Any failed batch fails the whole call; partial corrections are never returned.
func (e *Engine) Correct(ctx context.Context, segments []transcript.Segment, lang string) (*Result, error) {
	if e == nil || e.client == nil {
		return nil, services.Wrap(services.ErrConfiguration, "correction", "correct", "LLM client not configured", nil)
	}
	cleaned := cleanSegments(segments)
	if len(cleaned) == 0 {
		return nil, services.Wrap(services.ErrValidation, "correction", "correct", "nothing to correct", ErrNoSegments)
	}

	result := &Result{
		Segments: make([]Segment, 0, len(cleaned)),
		Language: language.ToISO2(lang),
	}
	var summaries []string
	for _, batch := range e.batches(cleaned) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		reply, err := e.correctBatch(ctx, batch, lang)
		if err != nil {
			return nil, err
		}
		result.Segments = append(result.Segments, merge(batch, reply)...)
		if summary := strings.TrimSpace(reply.Summary); summary != "" {
			summaries = append(summaries, summary)
		}
		result.Statistics.Batches++
	}
	result.Summary = strings.Join(summaries, " ")
	result.Statistics.TotalSegments = len(result.Segments)
	for _, seg := range result.Segments {
		if seg.CorrectedText != seg.OriginalText || len(seg.Changes) > 0 {
			result.Statistics.CorrectedSegments++
		}
		result.Statistics.TotalChanges += len(seg.Changes)
	}

	e.logger.Info("transcript correction complete",
		logging.Int("segments", result.Statistics.TotalSegments),
		logging.Int("corrected_segments", result.Statistics.CorrectedSegments),
		logging.Int("changes", result.Statistics.TotalChanges),
		logging.Int("batches", result.Statistics.Batches),
	)
	return result, nil
}

func (e *Engine) correctBatch(ctx context.Context, batch []transcript.Segment, lang string) (batchReply, error) {
	userPrompt, err := buildUserPrompt(batch, lang)
	if err != nil {
		return batchReply{}, services.Wrap(services.ErrValidation, "correction", "build prompt", "encode segments", err)
	}
	var reply batchReply
	raw, err := e.client.CompleteStructured(ctx, SystemPrompt, userPrompt, &reply)
	if err != nil {
		if raw != "" {
			return batchReply{}, services.Wrap(services.ErrExternalTool, "correction", "decode", "invalid LLM response", err)
		}
		return batchReply{}, services.Wrap(services.ErrExternalTool, "correction", "complete", "LLM call failed", err)
	}
	if len(reply.Segments) < len(batch) {
		logging.WarnWithContext(e.logger, "correction reply missing segments", "correction_partial_reply",
			logging.Int("requested", len(batch)),
			logging.Int("returned", len(reply.Segments)),
			logging.String(logging.FieldErrorHint, "model skipped segments; originals kept"),
			logging.String(logging.FieldImpact, "some segments remain uncorrected"),
		)
	}
	return reply, nil
}

func (e *Engine) batches(segments []transcript.Segment) [][]transcript.Segment {
	var out [][]transcript.Segment
	var current []transcript.Segment
	chars := 0
	for _, seg := range segments {
		if len(current) > 0 && (len(current) >= e.batchSize || chars+len(seg.Text) > maxBatchChars) {
			out = append(out, current)
			current = nil
			chars = 0
		}
		current = append(current, seg)
		chars += len(seg.Text)
	}
	if len(current) > 0 {
		out = append(out, current)
	}
	return out
}

func cleanSegments(segments []transcript.Segment) []transcript.Segment {
	out := make([]transcript.Segment, 0, len(segments))
	for _, seg := range segments {
		text := strings.Join(strings.Fields(seg.Text), " ")
		if text == "" {
			continue
		}
		seg.Text = text
		out = append(out, seg)
	}
	return out
}

func buildUserPrompt(batch []transcript.Segment, lang string) (string, error) {
	type promptSegment struct {
		ID   int    `json:"id"`
		Text string `json:"text"`
	}
	items := make([]promptSegment, 0, len(batch))
	for _, seg := range batch {
		items = append(items, promptSegment{ID: seg.ID, Text: seg.Text})
	}
	encoded, err := json.Marshal(map[string]any{"segments": items})
	if err != nil {
		return "", err
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Language: %s\n\n", language.DisplayName(lang))
	b.Write(encoded)
	return b.String(), nil
}

func merge(batch []transcript.Segment, reply batchReply) []Segment {
	type corrected struct {
		text    string
		changes []string
	}
	byID := make(map[int]corrected, len(reply.Segments))
	for _, seg := range reply.Segments {
		byID[seg.ID] = corrected{text: strings.TrimSpace(seg.Text), changes: seg.Changes}
	}
	out := make([]Segment, 0, len(batch))
	for _, seg := range batch {
		entry := Segment{
			ID:            seg.ID,
			Start:         seg.Start,
			End:           seg.End,
			OriginalText:  seg.Text,
			CorrectedText: seg.Text,
			Changes:       []string{},
		}
		if fix, ok := byID[seg.ID]; ok && fix.text != "" {
			entry.CorrectedText = fix.text
			for _, change := range fix.changes {
				if change = strings.TrimSpace(change); change != "" {
					entry.Changes = append(entry.Changes, change)
				}
			}
		}
		out = append(out, entry)
	}
	return out
}
