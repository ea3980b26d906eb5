// Package answer grounds language model answers in retrieved book content.
package answer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mike-a-ellis/bookrag/internal/storage"
)

const (
	SystemMessage = "You are a helpful assistant who answers based on book content."

	answerPrompt    = "Answer the question based on the following book content:\n\n%s\n\nQuestion: %s"
	summarizePrompt = "Summarize the following book content, focusing on: %s\n\n%s"
)

// Synthesizer builds a bounded context from ranked chunks and asks the
// generator to answer from it.
type Synthesizer struct {
	generator       Generator
	maxContextChars int
	logger          *slog.Logger
}

// NewSynthesizer creates a Synthesizer. maxContextChars <= 0 uses
// DefaultMaxContextChars.
func NewSynthesizer(generator Generator, maxContextChars int, logger *slog.Logger) *Synthesizer {
	if maxContextChars <= 0 {
		maxContextChars = DefaultMaxContextChars
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Synthesizer{
		generator:       generator,
		maxContextChars: maxContextChars,
		logger:          logger,
	}
}

// Prompt returns the user prompt for question over results.
func (s *Synthesizer) Prompt(question string, results []storage.ScoredChunk) string {
	return fmt.Sprintf(answerPrompt, s.buildContext(results), question)
}

// Answer asks the model to answer question from results and returns its
// output unmodified. Model failures are reported as ErrGeneration.
func (s *Synthesizer) Answer(ctx context.Context, question string, results []storage.ScoredChunk) (string, error) {
	out, err := s.generator.Complete(ctx, SystemMessage, s.Prompt(question, results))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrGeneration, err)
	}
	return out, nil
}

// Summarize asks the model for a summary of results focused on topic.
func (s *Synthesizer) Summarize(ctx context.Context, topic string, results []storage.ScoredChunk) (string, error) {
	prompt := fmt.Sprintf(summarizePrompt, topic, s.buildContext(results))
	out, err := s.generator.Complete(ctx, SystemMessage, prompt)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrGeneration, err)
	}
	return out, nil
}

func (s *Synthesizer) buildContext(results []storage.ScoredChunk) string {
	grounding, used := BuildContext(results, s.maxContextChars)
	if used < len(results) {
		s.logger.Warn("Context limit reached, dropping lower-ranked chunks",
			"kept", used,
			"dropped", len(results)-used,
			"max_chars", s.maxContextChars,
		)
	}
	return grounding
}
