// Package agent exposes the book to tool-calling models through a fixed set
// of capabilities.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mike-a-ellis/bookrag/internal/storage"
)

// Capability is a tool the agent can invoke.
type Capability int

const (
	CapabilitySearch Capability = iota + 1
	CapabilitySummarize
)

func (c Capability) String() string {
	switch c {
	case CapabilitySearch:
		return "search"
	case CapabilitySummarize:
		return "summarize"
	default:
		return fmt.Sprintf("capability(%d)", int(c))
	}
}

// ParseCapability maps a tool name to a Capability.
func ParseCapability(name string) (Capability, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "search":
		return CapabilitySearch, nil
	case "summarize":
		return CapabilitySummarize, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownCapability, name)
	}
}

// NoResults is the output of a call that found nothing relevant.
const NoResults = "No relevant content found."

// DefaultK is the number of chunks retrieved when a call does not set K.
const DefaultK = 5

// Call is one tool invocation.
type Call struct {
	Capability Capability
	Query      string
	K          int
}

// Retriever finds ranked chunks for a query.
type Retriever interface {
	Retrieve(ctx context.Context, query string, k int) ([]storage.ScoredChunk, error)
}

// Summarizer condenses retrieved chunks with a language model.
type Summarizer interface {
	Summarize(ctx context.Context, topic string, results []storage.ScoredChunk) (string, error)
}

type state int

const (
	stateValidate state = iota
	stateRetrieve
	stateFormat
	stateGenerate
	stateDone
)

// Dispatcher runs calls through validate, retrieve, then format (search) or
// generate (summarize). Search output depends only on the retrieved chunks.
type Dispatcher struct {
	retriever  Retriever
	summarizer Summarizer
	defaultK   int
	logger     *slog.Logger
}

// NewDispatcher creates a Dispatcher. summarizer may be nil, in which case
// summarize calls fail with ErrCapabilityUnavailable.
func NewDispatcher(retriever Retriever, summarizer Summarizer, defaultK int, logger *slog.Logger) *Dispatcher {
	if defaultK <= 0 {
		defaultK = DefaultK
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		retriever:  retriever,
		summarizer: summarizer,
		defaultK:   defaultK,
		logger:     logger,
	}
}

// Dispatch executes call and returns its text output.
func (d *Dispatcher) Dispatch(ctx context.Context, call Call) (string, error) {
	var (
		results []storage.ScoredChunk
		output  string
		err     error
	)

	for st := stateValidate; st != stateDone; {
		switch st {
		case stateValidate:
			switch call.Capability {
			case CapabilitySearch:
			case CapabilitySummarize:
				if d.summarizer == nil {
					return "", fmt.Errorf("%w: %s", ErrCapabilityUnavailable, call.Capability)
				}
			default:
				return "", fmt.Errorf("%w: %s", ErrUnknownCapability, call.Capability)
			}
			if call.K <= 0 {
				call.K = d.defaultK
			}
			st = stateRetrieve

		case stateRetrieve:
			results, err = d.retriever.Retrieve(ctx, call.Query, call.K)
			if err != nil {
				return "", fmt.Errorf("%s: %w", call.Capability, err)
			}
			if call.Capability == CapabilitySummarize && len(results) > 0 {
				st = stateGenerate
			} else {
				st = stateFormat
			}

		case stateFormat:
			output = FormatResults(results)
			st = stateDone

		case stateGenerate:
			output, err = d.summarizer.Summarize(ctx, call.Query, results)
			if err != nil {
				return "", fmt.Errorf("%s: %w", call.Capability, err)
			}
			st = stateDone
		}
	}

	d.logger.Debug("Dispatched tool call",
		"capability", call.Capability.String(),
		"k", call.K,
		"results", len(results),
	)
	return output, nil
}

// FormatResults renders ranked chunks as numbered blocks:
//
//	[1] Page 3 (relevance 0.8123): text
func FormatResults(results []storage.ScoredChunk) string {
	if len(results) == 0 {
		return NoResults
	}
	blocks := make([]string, len(results))
	for i, r := range results {
		blocks[i] = fmt.Sprintf("[%d] Page %d (relevance %s): %s",
			i+1, r.Chunk.PageID, r.Relevance, r.Chunk.Text)
	}
	return strings.Join(blocks, "\n\n")
}
