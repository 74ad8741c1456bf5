package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Parser loads playbooks and inventories from YAML or CUE files. CUE files
// get schema validation through unification; both formats are validated
// with struct tags afterwards.
type Parser struct {
	ctx            *cue.Context
	schemaRegistry *SchemaRegistry
	validator      *validator.Validate
}

// NewParser creates a parser with the built-in schemas registered.
func NewParser() *Parser {
	return &Parser{
		ctx:            cuecontext.New(),
		schemaRegistry: NewSchemaRegistry(),
		validator:      validator.New(),
	}
}

// SchemaRegistry returns the schema registry.
func (p *Parser) SchemaRegistry() *SchemaRegistry {
	return p.schemaRegistry
}

// Validator returns the struct validator, shared so role vars validate with
// the same instance.
func (p *Parser) Validator() *validator.Validate {
	return p.validator
}

// LoadPlaybook loads and validates a playbook file.
func (p *Parser) LoadPlaybook(path string) (*ParsedPlaybook, error) {
	parsed := &ParsedPlaybook{
		SourceFiles: []string{path},
		ParsedAt:    time.Now(),
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read playbook: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".cue":
		errs := p.decodeCUE(path, string(content), "playbook", &parsed.Playbook)
		parsed.Errors = append(parsed.Errors, errs...)
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(content, &parsed.Playbook); err != nil {
			parsed.Errors = append(parsed.Errors, yamlError(path, err))
		}
	default:
		return nil, fmt.Errorf("unsupported playbook format: %s", path)
	}

	if len(parsed.Errors) > 0 {
		return parsed, nil
	}

	if err := p.validator.Struct(&parsed.Playbook); err != nil {
		parsed.Errors = append(parsed.Errors, structErrors(path, err)...)
	}

	return parsed, nil
}

// LoadInventory loads and validates an inventory file.
func (p *Parser) LoadInventory(path string) (*InventoryConfig, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read inventory: %w", err)
	}

	var inventory InventoryConfig

	switch strings.ToLower(filepath.Ext(path)) {
	case ".cue":
		if errs := p.decodeCUE(path, string(content), "inventory", &inventory); len(errs) > 0 {
			return nil, fmt.Errorf("invalid inventory %s: %s", path, errs[0].Message)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(content, &inventory); err != nil {
			return nil, fmt.Errorf("failed to parse inventory %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("unsupported inventory format: %s", path)
	}

	if err := p.validator.Struct(&inventory); err != nil {
		return nil, fmt.Errorf("invalid inventory %s: %w", path, err)
	}

	seen := make(map[string]bool, len(inventory.Hosts))
	for _, host := range inventory.Hosts {
		if seen[host.Name] {
			return nil, fmt.Errorf("invalid inventory %s: duplicate host %q", path, host.Name)
		}
		seen[host.Name] = true
	}

	return &inventory, nil
}

// decodeCUE compiles CUE content, unifies it with the named schema, and
// decodes it into out.
func (p *Parser) decodeCUE(path, content, schemaName string, out any) []ValidationError {
	val := p.ctx.CompileString(content, cue.Filename(path))
	if err := val.Err(); err != nil {
		return convertCUEErrors(err)
	}

	// Schemas are compiled in the registry's context, so rebuild in ours
	// before unifying.
	if src, ok := p.schemaRegistry.Source(schemaName); ok {
		schema := p.ctx.CompileString(src)
		unified := schema.Unify(val)
		if err := unified.Validate(cue.Concrete(true)); err != nil {
			return convertCUEErrors(err)
		}
		val = unified
	}

	if err := val.Decode(out); err != nil {
		return convertCUEErrors(err)
	}

	return nil
}

// convertCUEErrors converts CUE errors to positioned validation errors.
func convertCUEErrors(err error) []ValidationError {
	var validationErrors []ValidationError

	errs := errors.Errors(err)
	for _, e := range errs {
		pos := errors.Positions(e)
		var file string
		var line, column int

		if len(pos) > 0 {
			file = pos[0].Filename()
			line = pos[0].Line()
			column = pos[0].Column()
		}

		validationErrors = append(validationErrors, ValidationError{
			File:     file,
			Line:     line,
			Column:   column,
			Message:  errors.Details(e, nil),
			Severity: "error",
		})
	}

	return validationErrors
}

// yamlError wraps a YAML parse error, pulling the line number when the
// library exposes one.
func yamlError(path string, err error) ValidationError {
	return ValidationError{
		File:     path,
		Message:  err.Error(),
		Severity: "error",
	}
}

// structErrors converts validator field errors to validation errors.
func structErrors(path string, err error) []ValidationError {
	fieldErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return []ValidationError{{File: path, Message: err.Error(), Severity: "error"}}
	}

	result := make([]ValidationError, len(fieldErrs))
	for i, fe := range fieldErrs {
		result[i] = ValidationError{
			File:     path,
			Path:     fe.Namespace(),
			Message:  fmt.Sprintf("field %s failed %q validation", fe.Field(), fe.Tag()),
			Severity: "error",
		}
	}
	return result
}
