package router

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/theapemachine/a2a-coordinator/memory"
	"github.com/theapemachine/a2a-coordinator/pkg/a2a"
)

func echoHandler() HandlerFunc {
	return func(ctx context.Context, msg a2a.Message, skillID string) (a2a.Message, error) {
		return *a2a.NewTextMessage("agent", "echo: "+firstText(msg)), nil
	}
}

func textMsg(text string) a2a.Message {
	return *a2a.NewTextMessage("user", text)
}

func TestExplicitDispatchBypassesContentRules(t *testing.T) {
	r := NewRouter(echoHandler())
	r.RegisterAgent("calculator", NewCalculatorHandler())
	r.AddRule(Rule{Name: "calculator", Keywords: CalculatorKeywords, Handler: NewCalculatorHandler()})

	specific := HandlerFunc(func(ctx context.Context, msg a2a.Message, skillID string) (a2a.Message, error) {
		return *a2a.NewTextMessage("agent", "named-agent-reply"), nil
	})
	r.RegisterAgent("named", specific)

	reply, err := r.Route(context.Background(), textMsg("2 + 2"), "", "named")
	require.NoError(t, err)
	require.Equal(t, "named-agent-reply", reply.Parts[0].Text)
}

func TestUnknownExplicitAgentFallsThroughToContentRules(t *testing.T) {
	r := NewRouter(echoHandler())
	r.AddRule(Rule{Name: "calculator", Keywords: CalculatorKeywords, Handler: NewCalculatorHandler()})

	reply, err := r.Route(context.Background(), textMsg("4 * 5"), "", "does-not-exist")
	require.NoError(t, err)
	require.Equal(t, "20", reply.Parts[0].Text)
}

func TestContentBasedDispatchRoutesToCalculator(t *testing.T) {
	r := NewRouter(echoHandler())
	r.AddRule(Rule{Name: "calculator", Keywords: CalculatorKeywords, Handler: NewCalculatorHandler()})
	r.AddRule(Rule{Name: "memory", Keywords: MemoryKeywords, Handler: NewMemoryHandler(memory.New())})

	reply, err := r.Handle(context.Background(), textMsg("what is 10 / 2"), "")
	require.NoError(t, err)
	require.Equal(t, "5", reply.Parts[0].Text)
}

func TestContentBasedDispatchRoutesToMemory(t *testing.T) {
	store := memory.New()
	r := NewRouter(echoHandler())
	r.AddRule(Rule{Name: "calculator", Keywords: CalculatorKeywords, Handler: NewCalculatorHandler()})
	r.AddRule(Rule{Name: "memory", Keywords: MemoryKeywords, Handler: NewMemoryHandler(store)})

	_, err := r.Handle(context.Background(), textMsg("remember the launch code is 1234"), "")
	require.NoError(t, err)

	reply, err := r.Handle(context.Background(), textMsg("recall launch code"), "")
	require.NoError(t, err)
	require.Contains(t, reply.Parts[0].Text, "1234")
}

func TestNoRuleMatchFallsBackToEcho(t *testing.T) {
	r := NewRouter(echoHandler())
	r.AddRule(Rule{Name: "calculator", Keywords: CalculatorKeywords, Handler: NewCalculatorHandler()})

	reply, err := r.Handle(context.Background(), textMsg("hello there"), "")
	require.NoError(t, err)
	require.Equal(t, "echo: hello there", reply.Parts[0].Text)
}

func TestCalculatorHandlerErrorsOnMissingExpression(t *testing.T) {
	h := NewCalculatorHandler()
	_, err := h.Handle(context.Background(), textMsg("no numbers here"), "")
	require.Error(t, err)
}

func TestCalculatorHandlerErrorsOnDivisionByZero(t *testing.T) {
	h := NewCalculatorHandler()
	_, err := h.Handle(context.Background(), textMsg("5 / 0"), "")
	require.Error(t, err)
}
