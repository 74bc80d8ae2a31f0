// Package strategy holds the extraction strategy state machine. Escalation
// is monotone in cost: a Document never revisits a cheaper strategy, and
// every path ends in Exhausted after a bounded number of transitions.
package strategy

import (
	"fmt"
	"sync"
	"time"
)

type Strategy string

const (
	// LLMDirect passes images straight to the language model.
	LLMDirect Strategy = "llm_direct"
	// OCRThenLLM extracts text first and structures it with the model.
	OCRThenLLM Strategy = "ocr_llm"
	// PreprocessOCRLLM runs OCR on enhanced images before structuring.
	PreprocessOCRLLM Strategy = "pp_ocr_llm"
	// Exhausted is terminal; no further attempts are made.
	Exhausted Strategy = "exhausted"
)

// escalationOrder is the cost ladder, cheapest first.
var escalationOrder = []Strategy{LLMDirect, OCRThenLLM, PreprocessOCRLLM}

// Cost returns the position on the ladder; Exhausted sorts above all.
func Cost(s Strategy) int {
	for i, st := range escalationOrder {
		if st == s {
			return i
		}
	}
	return len(escalationOrder)
}

func Parse(s string) (Strategy, error) {
	switch Strategy(s) {
	case LLMDirect, OCRThenLLM, PreprocessOCRLLM:
		return Strategy(s), nil
	default:
		return "", fmt.Errorf("unknown strategy %q, valid: llm_direct, ocr_llm, pp_ocr_llm", s)
	}
}

// Transition records one escalation for diagnostics.
type Transition struct {
	From   Strategy
	To     Strategy
	Reason string
	At     time.Time
}

// Selector tracks one Document's position on the ladder. Safe for
// concurrent use, though a Document is owned by a single worker.
type Selector struct {
	mu      sync.Mutex
	current Strategy
	history []Transition
}

func NewSelector(initial Strategy) (*Selector, error) {
	if _, err := Parse(string(initial)); err != nil {
		return nil, err
	}
	return &Selector{current: initial}, nil
}

func (s *Selector) Current() Strategy {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Escalate moves to the next more expensive strategy on a recoverable
// failure, or to Exhausted when the ladder is spent. Escalating from
// Exhausted stays Exhausted.
func (s *Selector) Escalate(reason string) Strategy {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == Exhausted {
		return Exhausted
	}

	next := Exhausted
	if i := Cost(s.current); i+1 < len(escalationOrder) {
		next = escalationOrder[i+1]
	}
	s.record(next, reason)
	return next
}

// Abort jumps straight to Exhausted on an unrecoverable failure; no
// intermediate strategies are attempted.
func (s *Selector) Abort(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == Exhausted {
		return
	}
	s.record(Exhausted, reason)
}

func (s *Selector) IsExhausted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current == Exhausted
}

// History returns a copy of the transitions taken so far.
func (s *Selector) History() []Transition {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Transition, len(s.history))
	copy(out, s.history)
	return out
}

func (s *Selector) record(to Strategy, reason string) {
	s.history = append(s.history, Transition{
		From:   s.current,
		To:     to,
		Reason: reason,
		At:     time.Now().UTC(),
	})
	s.current = to
}
