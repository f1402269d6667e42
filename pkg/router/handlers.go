package router

// CalculatorHandler and MemoryHandler are the two built-in content-dispatch
// targets named in spec 4.4: numeric-operation lexemes route to the
// calculator, storage lexemes route to memory. Both are trivial enough that
// no third-party expression/parsing library earns its keep here — the
// retrieval pack carries none for single binary-operator arithmetic.

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/theapemachine/a2a-coordinator/memory"
	"github.com/theapemachine/a2a-coordinator/pkg/a2a"
)

// CalculatorKeywords are the numeric-operation lexemes a content rule should
// match against to route here.
var CalculatorKeywords = []string{"+", "-", "*", "/", "plus", "minus", "times", "divided"}

var arithmeticPattern = regexp.MustCompile(`(-?\d+(?:\.\d+)?)\s*([+\-*/])\s*(-?\d+(?:\.\d+)?)`)

// CalculatorHandler evaluates the first `<number> <op> <number>` expression
// found in the message's text, where op is one of + - * /.
type CalculatorHandler struct{}

func NewCalculatorHandler() *CalculatorHandler {
	return &CalculatorHandler{}
}

func (h *CalculatorHandler) Handle(ctx context.Context, msg a2a.Message, skillID string) (a2a.Message, error) {
	text := firstText(msg)
	match := arithmeticPattern.FindStringSubmatch(text)
	if match == nil {
		return a2a.Message{}, fmt.Errorf("calculator: no arithmetic expression found in %q", text)
	}

	lhs, err := strconv.ParseFloat(match[1], 64)
	if err != nil {
		return a2a.Message{}, fmt.Errorf("calculator: invalid operand %q: %w", match[1], err)
	}
	rhs, err := strconv.ParseFloat(match[3], 64)
	if err != nil {
		return a2a.Message{}, fmt.Errorf("calculator: invalid operand %q: %w", match[3], err)
	}

	var result float64
	switch match[2] {
	case "+":
		result = lhs + rhs
	case "-":
		result = lhs - rhs
	case "*":
		result = lhs * rhs
	case "/":
		if rhs == 0 {
			return a2a.Message{}, fmt.Errorf("calculator: division by zero")
		}
		result = lhs / rhs
	}

	return *a2a.NewTextMessage("agent", strconv.FormatFloat(result, 'g', -1, 64)), nil
}

// MemoryKeywords are the storage lexemes a content rule should match
// against to route here.
var MemoryKeywords = []string{"remember", "recall", "search", "store"}

// MemoryHandler wraps the root memory.Store façade: "remember <text>" puts a
// document, anything else is treated as a search query against it.
type MemoryHandler struct {
	store *memory.Store
}

func NewMemoryHandler(store *memory.Store) *MemoryHandler {
	if store == nil {
		store = memory.New()
	}
	return &MemoryHandler{store: store}
}

func (h *MemoryHandler) Handle(ctx context.Context, msg a2a.Message, skillID string) (a2a.Message, error) {
	text := firstText(msg)
	lower := strings.ToLower(text)

	if strings.HasPrefix(lower, "remember") {
		content := strings.TrimSpace(text[len("remember"):])
		id := h.store.Put("vector", content, nil)
		return *a2a.NewTextMessage("agent", fmt.Sprintf("stored as %s", id)), nil
	}

	query := text
	for _, prefix := range []string{"recall", "search", "store"} {
		if strings.HasPrefix(lower, prefix) {
			query = strings.TrimSpace(text[len(prefix):])
			break
		}
	}

	ids := h.store.Search(query, "", 10)
	if len(ids) == 0 {
		return *a2a.NewTextMessage("agent", "no matching memories"), nil
	}

	var found []string
	for _, id := range ids {
		if doc, ok := h.store.Get(id); ok {
			found = append(found, doc.Content)
		}
	}
	return *a2a.NewTextMessage("agent", strings.Join(found, "; ")), nil
}
