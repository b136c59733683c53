package compact

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/Swarm-Code/ceregrep-client-sub000/message"
	"github.com/Swarm-Code/ceregrep-client-sub000/provider"
)

// sectionBudget caps the response size of each extraction call.
const sectionBudget = 1024

const extractionSystem = "You are extracting structured notes from a " +
	"conversation between a user and a coding agent. Answer with only the " +
	"extracted content for the requested category, as terse bullet points. " +
	"If the conversation contains nothing relevant, answer with the single " +
	"word: none."

// extraction pairs a section title with the prompt that fills it.
type extraction struct {
	title  string
	prompt string
}

var extractions = []extraction{
	{"Technical Environment", "Extract every detail about the technical " +
		"environment: languages, frameworks, build tools, runtime versions, " +
		"operating system, and repository layout."},
	{"Code Changes", "Extract every code change made or proposed, with file " +
		"paths and line references where mentioned. Note which changes were " +
		"applied and which remain pending."},
	{"Errors and Resolutions", "Extract every error, failure, or warning " +
		"encountered and how each was resolved. Keep exact error text where " +
		"it appears and note anything still unresolved."},
	{"Decisions and Rationale", "Extract every design or implementation " +
		"decision and the rationale given for it, including alternatives " +
		"that were rejected."},
	{"Performance Metrics", "Extract any performance measurements, " +
		"benchmarks, token counts, timings, or resource figures mentioned."},
	{"Dependencies and Integrations", "Extract every dependency, library, " +
		"external service, or integration discussed, with versions where " +
		"given."},
	{"User Preferences", "Extract the user's stated preferences about " +
		"style, workflow, formatting, and communication."},
	{"Current Status", "Extract the current completion status: what is " +
		"done, what is in progress, and what remains."},
}

// autoCompact fans the entire history out to independent extraction calls,
// one per section, then concatenates every section into a single synthetic
// assistant message that replaces the whole conversation.
//
// The join waits for all sections to settle. A failed section becomes an
// [EXTRACTION FAILED: reason] placeholder and never cancels its siblings;
// the shared client's pacer is what bounds the burst against provider
// limits.
func (c *Compactor) autoCompact(ctx context.Context, history []message.Message) (*Result, error) {
	sections := make([]Section, len(extractions))

	var wg sync.WaitGroup
	for i, ex := range extractions {
		wg.Add(1)
		go func(idx int, ex extraction) {
			defer wg.Done()
			sections[idx] = c.extract(ctx, history, ex)
		}(i, ex)
	}
	wg.Wait()

	failed := 0
	for _, s := range sections {
		if s.Failed {
			failed++
		}
	}
	if failed == len(sections) {
		return nil, fmt.Errorf("compact: all %d extraction passes failed", len(sections))
	}

	merged := mergeSections(sections)
	return &Result{
		Messages: []message.Message{merged},
		Summary:  &merged,
		Sections: sections,
		Removed:  len(history),
	}, nil
}

func (c *Compactor) extract(ctx context.Context, history []message.Message, ex extraction) Section {
	req := provider.Request{
		Model:     c.cfg.Model,
		System:    extractionSystem,
		Messages:  append(cloneHistory(history), message.NewUserText(ex.prompt)),
		MaxTokens: sectionBudget,
	}
	resp, err := c.completer.Complete(ctx, req)
	if err != nil {
		c.logger.Warn("extraction pass failed", "section", ex.title, "error", err)
		return Section{
			Title:   ex.title,
			Content: fmt.Sprintf("[EXTRACTION FAILED: %v]", err),
			Failed:  true,
		}
	}
	text := strings.TrimSpace(resp.Message.Text())
	if text == "" {
		text = "none"
	}
	return Section{Title: ex.title, Content: text}
}

// mergeSections renders every section under its own header, in extraction
// order, producing the one message that stands in for the conversation.
func mergeSections(sections []Section) message.Message {
	var b strings.Builder
	b.WriteString("[Conversation compacted. Earlier messages were replaced by this summary.]\n")
	for _, s := range sections {
		b.WriteString("\n## ")
		b.WriteString(s.Title)
		b.WriteString("\n\n")
		b.WriteString(s.Content)
		b.WriteString("\n")
	}
	return message.NewAssistantText(b.String())
}
