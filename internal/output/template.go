// Package output implements delivery of execution results to filesystem and
// webhook destinations, with the variable-substitution template engine both
// destination kinds use for paths/URLs/bodies.
package output

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

var variablePattern = regexp.MustCompile(`\{\{([a-zA-Z_][a-zA-Z0-9_]*)\}\}`)

// TemplateEngine renders `{{identifier}}` placeholders against a variable
// map, grounded on original_source/ratchet-lib/src/output/template.rs.
type TemplateEngine struct{}

// NewTemplateEngine builds a TemplateEngine; stateless, kept as a type so
// call sites read like the teacher's service-struct style.
func NewTemplateEngine() *TemplateEngine {
	return &TemplateEngine{}
}

// Render substitutes every `{{identifier}}` occurrence in template with
// variables[identifier], failing on the first variable with no entry in the
// map (template.rs's render: fail-fast, not partial substitution).
func (e *TemplateEngine) Render(template string, variables map[string]string) (string, error) {
	var missing string
	result := variablePattern.ReplaceAllStringFunc(template, func(match string) string {
		if missing != "" {
			return match
		}
		name := variablePattern.FindStringSubmatch(match)[1]
		if v, ok := variables[name]; ok {
			return v
		}
		missing = name
		return match
	})
	if missing != "" {
		return "", fmt.Errorf("template variable %q has no value", missing)
	}
	return result, nil
}

// Validate reports a syntax error in template: unmatched/single braces or an
// empty/invalid variable name, mirroring template.rs's validate().
func (e *TemplateEngine) Validate(template string) error {
	braceDepth := 0
	runes := []rune(template)
	for i := 0; i < len(runes); {
		switch {
		case i+1 < len(runes) && runes[i] == '{' && runes[i+1] == '{':
			braceDepth++
			i += 2
		case i+1 < len(runes) && runes[i] == '}' && runes[i+1] == '}':
			if braceDepth == 0 {
				return fmt.Errorf("unmatched closing braces }} at position %d", i)
			}
			braceDepth--
			i += 2
		case runes[i] == '{' || runes[i] == '}':
			return fmt.Errorf("single brace %q not allowed, use {{ or }}", runes[i])
		default:
			i++
		}
	}
	if braceDepth != 0 {
		return fmt.Errorf("unmatched template braces")
	}

	for _, m := range emptyVarPattern.FindAllString(template, -1) {
		if !variablePattern.MatchString(m) {
			return fmt.Errorf("invalid template variable: %s", m)
		}
	}
	return nil
}

var emptyVarPattern = regexp.MustCompile(`\{\{[^}]*\}\}`)

// ExtractVariables returns every identifier referenced in template, in
// order of first appearance, duplicates included.
func (e *TemplateEngine) ExtractVariables(template string) []string {
	matches := variablePattern.FindAllStringSubmatch(template, -1)
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, m[1])
	}
	return out
}

// HasVariables reports whether template references any `{{identifier}}`.
func (e *TemplateEngine) HasVariables(template string) bool {
	return variablePattern.MatchString(template)
}

// BuildVariables assembles the full recognised variable set available to
// every destination template: job/execution/task identity, the UTC
// delivery timestamp (both as a single `YYYYMMDD_HHMMSS` field and broken
// into its year/month/day/hour/minute parts) and the deployment environment.
func BuildVariables(jobID, executionID, taskID, taskName, taskVersion, env string, at time.Time) map[string]string {
	at = at.UTC()
	return map[string]string{
		"job_id":       jobID,
		"execution_id": executionID,
		"task_id":      taskID,
		"task_name":    taskName,
		"task_version": taskVersion,
		"env":          env,
		"timestamp":    at.Format("20060102_150405"),
		"year":         fmt.Sprintf("%04d", at.Year()),
		"month":        fmt.Sprintf("%02d", at.Month()),
		"day":          fmt.Sprintf("%02d", at.Day()),
		"hour":         fmt.Sprintf("%02d", at.Hour()),
		"minute":       fmt.Sprintf("%02d", at.Minute()),
	}
}

// SanitizePathSegment strips path separators from a template variable value
// destined for a filesystem path, so a malicious/careless variable value
// cannot escape the configured output directory.
func SanitizePathSegment(s string) string {
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, "\\", "_")
	s = strings.ReplaceAll(s, "..", "_")
	return s
}
