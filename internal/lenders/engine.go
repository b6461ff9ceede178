// Package lenders filters lender profiles down to the institutions that may
// still extend credit to a subject. Each profile compiles to a CEL program.
package lenders

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"

	"github.com/opensource-finance/creditlens/internal/domain"
)

// Engine is the CEL-based eligibility engine.
type Engine struct {
	mu       sync.RWMutex
	env      *cel.Env
	compiled map[string]*CompiledProfile
}

// CompiledProfile holds a pre-compiled CEL program.
type CompiledProfile struct {
	Profile    *domain.LenderProfile
	Expression string
	Program    cel.Program
}

// Input is the subject view a profile is evaluated against.
type Input struct {
	Bureau             domain.Bureau
	Grade              domain.Grade
	Score              float64
	DefaultProbability float64
	CreditWorthy       bool
	RiskLevel          domain.RiskLevel
	Utilization        float64
}

// NewEngine creates an eligibility engine with no profiles loaded.
func NewEngine() (*Engine, error) {
	env, err := cel.NewEnv(
		cel.Variable("grade", cel.StringType),
		cel.Variable("grade_rank", cel.IntType),
		cel.Variable("score", cel.DoubleType),
		cel.Variable("default_probability", cel.DoubleType),
		cel.Variable("credit_worthy", cel.BoolType),
		cel.Variable("risk_level", cel.StringType),
		cel.Variable("utilization", cel.DoubleType),
		cel.Variable("bureau", cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Engine{
		env:      env,
		compiled: make(map[string]*CompiledProfile),
	}, nil
}

// NewDefaultEngine creates an engine preloaded with DefaultProfiles.
func NewDefaultEngine() (*Engine, error) {
	e, err := NewEngine()
	if err != nil {
		return nil, err
	}
	if err := e.LoadProfiles(DefaultProfiles()); err != nil {
		return nil, err
	}
	return e, nil
}

// ProfileExpression returns the CEL expression evaluated for p: its own
// expression when set, otherwise one built from the floor fields.
func ProfileExpression(p *domain.LenderProfile) string {
	if strings.TrimSpace(p.Expression) != "" {
		return p.Expression
	}

	clauses := []string{}
	if rank := p.MinGrade.Rank(); rank > 0 {
		clauses = append(clauses, "grade_rank >= "+strconv.Itoa(rank))
	}
	if p.MaxDefaultProbability > 0 {
		clauses = append(clauses, "default_probability <= "+celDouble(p.MaxDefaultProbability))
	}
	if p.RequiresCreditWorthy {
		clauses = append(clauses, "credit_worthy")
	}
	if len(clauses) == 0 {
		return "true"
	}
	return strings.Join(clauses, " && ")
}

// celDouble renders v as a CEL double literal.
func celDouble(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.ContainsAny(s, ".e") {
		s += ".0"
	}
	return s
}

// ValidateProfile compiles a profile without loading it.
func (e *Engine) ValidateProfile(p *domain.LenderProfile) error {
	if p == nil {
		return fmt.Errorf("lender profile is required")
	}
	if p.ID == "" {
		return fmt.Errorf("lender profile id is required")
	}
	if p.MinGrade != "" && p.MinGrade.Rank() < 0 {
		return fmt.Errorf("lender %s: unknown grade %q", p.ID, p.MinGrade)
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	_, err := e.compile(p)
	return err
}

// LoadProfile compiles and loads a profile, replacing any with the same ID.
func (e *Engine) LoadProfile(p *domain.LenderProfile) error {
	if err := e.ValidateProfile(p); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	compiled, err := e.compile(p)
	if err != nil {
		return err
	}
	e.compiled[p.ID] = compiled
	return nil
}

// LoadProfiles compiles and loads every enabled profile.
func (e *Engine) LoadProfiles(profiles []*domain.LenderProfile) error {
	for _, p := range profiles {
		if !p.Enabled {
			continue
		}
		if err := e.LoadProfile(p); err != nil {
			return err
		}
	}
	return nil
}

// ReloadProfiles atomically replaces the loaded profiles with the built-in
// defaults overlaid by custom. A custom profile with a default's ID replaces
// it; a disabled custom profile removes it.
func (e *Engine) ReloadProfiles(custom []*domain.LenderProfile) error {
	merged := make(map[string]*domain.LenderProfile)
	for _, p := range DefaultProfiles() {
		merged[p.ID] = p
	}
	for _, p := range custom {
		merged[p.ID] = p
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	next := make(map[string]*CompiledProfile, len(merged))
	for id, p := range merged {
		if !p.Enabled {
			continue
		}
		compiled, err := e.compile(p)
		if err != nil {
			return err
		}
		next[id] = compiled
	}
	e.compiled = next
	return nil
}

// Eligible returns the institutions whose profile accepts in, ordered by
// tier then ID. Profiles that fail to evaluate are skipped.
func (e *Engine) Eligible(in Input) []domain.Institution {
	activation := map[string]any{
		"grade":               string(in.Grade),
		"grade_rank":          int64(in.Grade.Rank()),
		"score":               in.Score,
		"default_probability": in.DefaultProbability,
		"credit_worthy":       in.CreditWorthy,
		"risk_level":          string(in.RiskLevel),
		"utilization":         in.Utilization,
		"bureau":              string(in.Bureau),
	}

	out := []domain.Institution{}
	for _, c := range e.snapshot() {
		val, _, err := c.Program.Eval(activation)
		if err != nil {
			continue
		}
		if ok, isBool := val.(types.Bool); !isBool || !bool(ok) {
			continue
		}
		p := c.Profile
		out = append(out, domain.Institution{
			ID:       p.ID,
			Name:     p.Name,
			Tier:     p.Tier,
			Category: p.Category,
			Products: p.Products,
			Reason:   c.Expression,
		})
	}
	return out
}

// Profiles returns the loaded profiles ordered by tier then ID.
func (e *Engine) Profiles() []*domain.LenderProfile {
	compiled := e.snapshot()
	out := make([]*domain.LenderProfile, len(compiled))
	for i, c := range compiled {
		out[i] = c.Profile
	}
	return out
}

// ProfilesCount returns the number of loaded profiles.
func (e *Engine) ProfilesCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.compiled)
}

func (e *Engine) snapshot() []*CompiledProfile {
	e.mu.RLock()
	list := make([]*CompiledProfile, 0, len(e.compiled))
	for _, c := range e.compiled {
		list = append(list, c)
	}
	e.mu.RUnlock()

	sort.Slice(list, func(i, j int) bool {
		if list[i].Profile.Tier != list[j].Profile.Tier {
			return list[i].Profile.Tier < list[j].Profile.Tier
		}
		return list[i].Profile.ID < list[j].Profile.ID
	})
	return list
}

func (e *Engine) compile(p *domain.LenderProfile) (*CompiledProfile, error) {
	expr := ProfileExpression(p)
	ast, issues := e.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile lender %s: %w", p.ID, issues.Err())
	}
	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("lender %s: expression must return bool, got %s", p.ID, ast.OutputType())
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for lender %s: %w", p.ID, err)
	}

	return &CompiledProfile{Profile: p, Expression: expr, Program: program}, nil
}
