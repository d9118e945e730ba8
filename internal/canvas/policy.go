package canvas

import (
	"fmt"
	"strings"

	exprlang "github.com/expr-lang/expr"
	exprvm "github.com/expr-lang/expr/vm"
)

// Policy decides whether a draft holds data worth migrating, claiming or
// pushing to the remote store.
type Policy interface {
	Meaningful(Document) bool
}

// DefaultPolicy treats a draft as meaningful once it has a subject or
// evaluator, or any dimension carries a score, notes or evidence.
type DefaultPolicy struct{}

func (DefaultPolicy) Meaningful(doc Document) bool {
	if strings.TrimSpace(doc.Meta.Subject) != "" || strings.TrimSpace(doc.Meta.Evaluator) != "" {
		return true
	}
	for _, dim := range Catalogue {
		state := doc.Dimensions[dim.ID]
		if state.Score != nil || strings.TrimSpace(state.Notes) != "" || strings.TrimSpace(state.Evidence) != "" {
			return true
		}
	}
	return false
}

// ExprPolicy evaluates a boolean expr-lang expression over a flattened view
// of the document. The environment exposes subject, evaluator and date
// (trimmed strings), filled (number of scored dimensions) and the
// catalogue-ordered lists scores (0 when unanswered), notes and evidence.
type ExprPolicy struct {
	expression string
	program    *exprvm.Program
	fallback   Policy
}

// NewExprPolicy compiles expression. Runtime evaluation errors fall back to
// DefaultPolicy.
func NewExprPolicy(expression string) (*ExprPolicy, error) {
	if strings.TrimSpace(expression) == "" {
		return nil, fmt.Errorf("policy expression must not be empty")
	}
	program, err := exprlang.Compile(expression,
		exprlang.Env(policyEnv(Document{Dimensions: NewDimensions()})),
		exprlang.AsBool(),
	)
	if err != nil {
		return nil, fmt.Errorf("compile policy %q: %w", expression, err)
	}
	return &ExprPolicy{expression: expression, program: program, fallback: DefaultPolicy{}}, nil
}

func (p *ExprPolicy) Meaningful(doc Document) bool {
	result, err := exprlang.Run(p.program, policyEnv(doc))
	if err != nil {
		return p.fallback.Meaningful(doc)
	}
	meaningful, ok := result.(bool)
	if !ok {
		return p.fallback.Meaningful(doc)
	}
	return meaningful
}

func (p *ExprPolicy) String() string {
	return p.expression
}

// PolicyFromExpression returns DefaultPolicy for a blank expression.
func PolicyFromExpression(expression string) (Policy, error) {
	if strings.TrimSpace(expression) == "" {
		return DefaultPolicy{}, nil
	}
	return NewExprPolicy(expression)
}

func policyEnv(doc Document) map[string]any {
	scores := make([]int, 0, len(Catalogue))
	notes := make([]string, 0, len(Catalogue))
	evidence := make([]string, 0, len(Catalogue))
	for _, dim := range Catalogue {
		state := doc.Dimensions[dim.ID]
		value := 0
		if state.Score != nil {
			value = *state.Score
		}
		scores = append(scores, value)
		notes = append(notes, strings.TrimSpace(state.Notes))
		evidence = append(evidence, strings.TrimSpace(state.Evidence))
	}
	return map[string]any{
		"subject":   strings.TrimSpace(doc.Meta.Subject),
		"evaluator": strings.TrimSpace(doc.Meta.Evaluator),
		"date":      strings.TrimSpace(doc.Meta.Date),
		"filled":    doc.FilledCount(),
		"scores":    scores,
		"notes":     notes,
		"evidence":  evidence,
	}
}
