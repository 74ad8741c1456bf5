package policy

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/open-policy-agent/opa/ast"
	"github.com/open-policy-agent/opa/rego"
	"github.com/rs/zerolog"

	"github.com/devforge/devforge/pkg/engine"
)

// Engine compiles and evaluates Rego policies against role plans and
// archive requests. Built-in policies load at construction; more can be
// loaded from .rego files and hot-reloaded through the loader.
type Engine struct {
	mu       sync.RWMutex
	policies map[string]*compiledPolicy
	logger   zerolog.Logger
}

// compiledPolicy is a policy whose Rego has been parsed.
type compiledPolicy struct {
	policy   *Policy
	module   *ast.Module
	compiled time.Time
}

// NewEngine creates a policy engine with the built-in policies loaded.
func NewEngine(logger zerolog.Logger) (*Engine, error) {
	e := &Engine{
		policies: make(map[string]*compiledPolicy),
		logger:   logger.With().Str("component", "policy-engine").Logger(),
	}

	builtins := BuiltinPolicies()
	for i := range builtins {
		if err := e.compileAndStore(&builtins[i]); err != nil {
			return nil, fmt.Errorf("failed to compile built-in policy %s: %w", builtins[i].Name, err)
		}
	}

	e.logger.Debug().Int("count", len(builtins)).Msg("Built-in policies loaded")

	return e, nil
}

// EvaluateRole evaluates all enabled policies against a role plan.
func (e *Engine) EvaluateRole(ctx context.Context, role *engine.Role, host string) (*Result, error) {
	return e.evaluate(ctx, &Input{
		Role: NewRoleInput(role),
		Context: &Context{
			Operation: "apply",
			Host:      host,
			Timestamp: time.Now(),
		},
	})
}

// EvaluateArchive evaluates all enabled policies against an archive
// request.
func (e *Engine) EvaluateArchive(ctx context.Context, archive *ArchiveInput) (*Result, error) {
	return e.evaluate(ctx, &Input{
		Archive: archive,
		Context: &Context{
			Operation: "archive",
			Timestamp: time.Now(),
		},
	})
}

func (e *Engine) evaluate(ctx context.Context, input *Input) (*Result, error) {
	start := time.Now()
	e.mu.RLock()
	defer e.mu.RUnlock()

	result := &Result{
		Allowed:     true,
		EvaluatedAt: start,
	}

	for _, cp := range e.policies {
		if !cp.policy.Enabled {
			continue
		}

		result.EvaluatedPolicies = append(result.EvaluatedPolicies, cp.policy.Name)

		violations, err := e.evaluatePolicy(ctx, cp, input)
		if err != nil {
			return nil, fmt.Errorf("policy %s evaluation failed: %w", cp.policy.Name, err)
		}

		for _, v := range violations {
			if v.Severity == SeverityError {
				result.Allowed = false
				result.Violations = append(result.Violations, v)
			} else {
				result.Warnings = append(result.Warnings, v)
			}
		}
	}

	result.Duration = time.Since(start)

	e.logger.Debug().
		Str("operation", input.Context.Operation).
		Int("violations", len(result.Violations)).
		Int("warnings", len(result.Warnings)).
		Dur("duration", result.Duration).
		Msg("Policy evaluation completed")

	return result, nil
}

// evaluatePolicy queries the policy's deny set against the input.
func (e *Engine) evaluatePolicy(ctx context.Context, cp *compiledPolicy, input *Input) ([]Violation, error) {
	query := fmt.Sprintf("data.%s.deny", packagePath(cp.module))

	r := rego.New(
		rego.Module(cp.policy.Name, cp.policy.Rego),
		rego.Query(query),
		rego.Input(input),
	)

	results, err := r.Eval(ctx)
	if err != nil {
		return nil, fmt.Errorf("rego evaluation error: %w", err)
	}

	var violations []Violation
	for _, result := range results {
		for _, expr := range result.Expressions {
			denySet, ok := expr.Value.([]interface{})
			if !ok {
				continue
			}
			for _, d := range denySet {
				violations = append(violations, e.toViolation(cp.policy, d))
			}
		}
	}

	return violations, nil
}

// toViolation converts a deny result into a Violation.
func (e *Engine) toViolation(policy *Policy, result interface{}) Violation {
	violation := Violation{
		Policy:   policy.Name,
		Severity: policy.Severity,
	}

	switch v := result.(type) {
	case string:
		violation.Message = v
	case map[string]interface{}:
		if msg, ok := v["message"].(string); ok {
			violation.Message = msg
		}
		if sev, ok := v["severity"].(string); ok {
			violation.Severity = Severity(sev)
		}
		if subject, ok := v["subject"].(string); ok {
			violation.Subject = subject
		}
	default:
		violation.Message = fmt.Sprintf("%v", result)
	}

	return violation
}

// LoadPolicies loads and compiles policies from files or directories.
func (e *Engine) LoadPolicies(ctx context.Context, paths []string) error {
	loader := NewLoader(e.logger)
	policies, err := loader.LoadFromPaths(ctx, paths)
	if err != nil {
		return fmt.Errorf("failed to load policies: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	for i := range policies {
		if err := e.compileAndStore(&policies[i]); err != nil {
			return fmt.Errorf("failed to compile policy %s: %w", policies[i].Name, err)
		}
	}

	e.logger.Info().Int("count", len(policies)).Msg("Policies loaded")

	return nil
}

// ReplacePolicies swaps in a reloaded policy set, keeping the built-ins.
// Used as the reload callback for the loader's file watcher.
func (e *Engine) ReplacePolicies(policies []Policy) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.policies = make(map[string]*compiledPolicy)

	builtins := BuiltinPolicies()
	for i := range builtins {
		if err := e.compileAndStore(&builtins[i]); err != nil {
			return fmt.Errorf("failed to compile built-in policy %s: %w", builtins[i].Name, err)
		}
	}

	for i := range policies {
		if err := e.compileAndStore(&policies[i]); err != nil {
			return fmt.Errorf("failed to compile policy %s: %w", policies[i].Name, err)
		}
	}

	e.logger.Info().Int("count", len(policies)).Msg("Policies reloaded")

	return nil
}

// compileAndStore parses a policy's Rego and registers it. Caller holds
// the write lock.
func (e *Engine) compileAndStore(policy *Policy) error {
	module, err := ast.ParseModule(policy.Name, policy.Rego)
	if err != nil {
		return fmt.Errorf("failed to parse policy: %w", err)
	}

	e.policies[policy.Name] = &compiledPolicy{
		policy:   policy,
		module:   module,
		compiled: time.Now(),
	}

	return nil
}

// GetPolicy returns a policy by name.
func (e *Engine) GetPolicy(name string) (*Policy, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	cp, exists := e.policies[name]
	if !exists {
		return nil, fmt.Errorf("policy not found: %s", name)
	}

	return cp.policy, nil
}

// ListPolicies returns all loaded policies.
func (e *Engine) ListPolicies() []Policy {
	e.mu.RLock()
	defer e.mu.RUnlock()

	policies := make([]Policy, 0, len(e.policies))
	for _, cp := range e.policies {
		policies = append(policies, *cp.policy)
	}

	return policies
}

// SetEnabled enables or disables a policy by name.
func (e *Engine) SetEnabled(name string, enabled bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	cp, exists := e.policies[name]
	if !exists {
		return fmt.Errorf("policy not found: %s", name)
	}

	cp.policy.Enabled = enabled
	e.logger.Info().Str("policy", name).Bool("enabled", enabled).Msg("Policy toggled")

	return nil
}

// packagePath returns the Rego package path without the data prefix.
func packagePath(module *ast.Module) string {
	return strings.TrimPrefix(module.Package.Path.String(), "data.")
}
