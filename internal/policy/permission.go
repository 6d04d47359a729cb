// Package policy implements the tool-call permission pipeline: a set of
// deny/ask/allow rules, totally ordered by source priority, that gates
// every tool invocation before (and alongside) a tool's own
// check_permission logic.
package policy

import (
	"sort"
	"strings"

	"github.com/cocodeai/cocode/pkg/models"
)

// RuleSource identifies where a PermissionRule came from. Sources are
// totally ordered by priority: lower Priority() wins ties between
// equally-specific rules.
type RuleSource string

const (
	SourceSession RuleSource = "session"
	SourceCommand RuleSource = "command"
	SourceProject RuleSource = "project"
	SourcePlugin  RuleSource = "plugin"
	SourceUser    RuleSource = "user"
)

// sourcePriority ranks rule sources from most to least authoritative.
// A rule from a higher-ranked source wins a tie against one from a
// lower-ranked source at the same action severity.
var sourcePriority = map[RuleSource]int{
	SourceSession: 0,
	SourceCommand: 1,
	SourceProject: 2,
	SourcePlugin:  3,
	SourceUser:    4,
}

// PermissionSourcePriority returns the priority rank of a rule source.
// Unknown sources sort last.
func PermissionSourcePriority(source string) int {
	if p, ok := sourcePriority[RuleSource(source)]; ok {
		return p
	}
	return len(sourcePriority)
}

// Decision is the outcome of evaluating a tool call against the
// permission rule set.
type Decision struct {
	Behavior models.PermissionBehavior
	Reason   string
	Rule     *models.PermissionRule
}

// Allowed reports whether the decision lets the tool proceed without
// further confirmation.
func (d Decision) Allowed() bool {
	return d.Behavior == models.PermissionAllow
}

// NeedsApproval reports whether the decision requires interactive
// confirmation before the tool proceeds.
func (d Decision) NeedsApproval() bool {
	return d.Behavior == models.PermissionAsk
}

// Denied reports whether the decision blocks the tool outright.
func (d Decision) Denied() bool {
	return d.Behavior == models.PermissionDeny
}

// ToolPermissionChecker is the subset of the agent's Tool interface the
// evaluator consults during the pipeline's middle pass.
type ToolPermissionChecker interface {
	CheckPermission(input []byte) Decision
}

// PermissionEvaluator runs the three-phase deny -> ask -> tool-check ->
// allow pipeline described by the permission rule set. It holds no
// mutable state beyond the rules themselves and is safe for concurrent
// read access once built.
type PermissionEvaluator struct {
	rules []models.PermissionRule
}

// NewPermissionEvaluator builds an evaluator from an explicit rule set.
// Rules are typically assembled from CLI flags, project settings, and
// user settings, each tagged with the RuleSource that produced them.
func NewPermissionEvaluator(rules []models.PermissionRule) *PermissionEvaluator {
	clone := make([]models.PermissionRule, len(rules))
	copy(clone, rules)
	return &PermissionEvaluator{rules: clone}
}

// AddRule appends a single rule to the evaluator's rule set.
func (e *PermissionEvaluator) AddRule(rule models.PermissionRule) {
	e.rules = append(e.rules, rule)
}

// Rules returns a copy of the evaluator's current rule set.
func (e *PermissionEvaluator) Rules() []models.PermissionRule {
	out := make([]models.PermissionRule, len(e.rules))
	copy(out, e.rules)
	return out
}

// Evaluate runs the full three-phase pipeline for a tool call: deny
// rules, then ask rules, then the tool's own check_permission, then
// allow rules. The first pass to produce a match decides the outcome.
// checker may be nil, in which case the middle pass is skipped.
func (e *PermissionEvaluator) Evaluate(tool, file, cmd string, input []byte, checker ToolPermissionChecker) Decision {
	if rule := e.evaluateBehavior(tool, file, cmd, models.PermissionDeny); rule != nil {
		return Decision{Behavior: models.PermissionDeny, Reason: denyReason(*rule, tool), Rule: rule}
	}
	if rule := e.evaluateBehavior(tool, file, cmd, models.PermissionAsk); rule != nil {
		return Decision{Behavior: models.PermissionAsk, Reason: askReason(*rule, tool), Rule: rule}
	}
	if checker != nil {
		if d := checker.CheckPermission(input); d.Behavior != "" {
			return d
		}
	}
	if rule := e.evaluateBehavior(tool, file, cmd, models.PermissionAllow); rule != nil {
		return Decision{Behavior: models.PermissionAllow, Reason: allowReason(*rule, tool), Rule: rule}
	}
	return Decision{Behavior: models.PermissionAsk, Reason: "no rule matched; defaulting to ask"}
}

// EvaluateBehavior returns the highest-priority rule of the given
// behavior that matches (tool, file, cmd), or nil if none match. Ties
// between equal-priority sources are broken deterministically: lower
// RuleSource priority wins, then lower PermissionRule.Priority, then
// lexical Source, giving a stable total order regardless of slice
// iteration order.
func (e *PermissionEvaluator) EvaluateBehavior(tool, file, cmd string, behavior models.PermissionBehavior) *models.PermissionRule {
	return e.evaluateBehavior(tool, file, cmd, behavior)
}

func (e *PermissionEvaluator) evaluateBehavior(tool, file, cmd string, behavior models.PermissionBehavior) *models.PermissionRule {
	var matches []models.PermissionRule
	for _, r := range e.rules {
		if r.Behavior != behavior {
			continue
		}
		if !matchesToolPattern(r.Tool, r.Pattern, tool, cmd) {
			continue
		}
		if !matchesFilePattern(filePatternOf(r), file) {
			continue
		}
		matches = append(matches, r)
	}
	if len(matches) == 0 {
		return nil
	}
	sort.SliceStable(matches, func(i, j int) bool {
		pi, pj := PermissionSourcePriority(matches[i].Source), PermissionSourcePriority(matches[j].Source)
		if pi != pj {
			return pi < pj
		}
		if matches[i].Priority != matches[j].Priority {
			return matches[i].Priority > matches[j].Priority
		}
		return matches[i].Source < matches[j].Source
	})
	return &matches[0]
}

// filePatternOf extracts a rule's file glob. A rule's Pattern field
// serves double duty as a command pattern ("Tool:git *") when embedded
// in Tool, or a bare file glob when Tool carries no ":"/"(" suffix and
// Pattern itself looks like a glob. Rules that encode a command pattern
// via Tool don't also constrain by file.
func filePatternOf(r models.PermissionRule) string {
	if strings.Contains(r.Tool, ":") || (strings.Contains(r.Tool, "(") && strings.HasSuffix(r.Tool, ")")) {
		return ""
	}
	return r.Pattern
}

// matchesToolPattern checks pattern (as stored in a rule's Tool field,
// optionally carrying an embedded command pattern) against the actual
// tool name and, if present, the literal command being run.
//
// Supported forms:
//   - "*"                  matches any tool
//   - "Bash"               matches tool name "Bash"
//   - "Bash:git *"         matches tool "Bash" when cmd starts with "git "
//   - "Bash(npm run *)"    parenthesized form, equivalent to the colon form
func matchesToolPattern(toolField, pattern, toolName, cmd string) bool {
	if toolField == "*" {
		return true
	}

	toolPart, cmdPattern := toolField, ""
	hasCmdPattern := false
	if idx := strings.Index(toolField, ":"); idx >= 0 {
		toolPart, cmdPattern = toolField[:idx], toolField[idx+1:]
		hasCmdPattern = true
	} else if strings.HasSuffix(toolField, ")") {
		if idx := strings.Index(toolField, "("); idx >= 0 {
			toolPart, cmdPattern = toolField[:idx], toolField[idx+1:len(toolField)-1]
			hasCmdPattern = true
		}
	}
	if !hasCmdPattern && pattern != "" && looksLikeCommandPattern(pattern) {
		cmdPattern, hasCmdPattern = pattern, true
	}

	if toolPart != toolName {
		return false
	}
	if !hasCmdPattern {
		return true
	}
	if cmd == "" {
		// Pattern present but nothing to check against: tool-name match
		// alone is sufficient (the rule still narrows by tool).
		return true
	}
	return matchesCommandPattern(cmdPattern, cmd)
}

// looksLikeCommandPattern distinguishes a bare command glob passed via
// PermissionRule.Pattern from a file glob; command globs are raw
// argument strings, typically containing a space and a trailing "*".
func looksLikeCommandPattern(pattern string) bool {
	return strings.HasSuffix(pattern, "*") && strings.Contains(pattern, " ")
}

// matchesCommandPattern supports a trailing "*" wildcard over whole
// command strings: "git *" matches "git status" and "git" exactly is
// not matched by it (a trailing-wildcard pattern requires the prefix to
// be followed by a space, or to equal the prefix exactly).
func matchesCommandPattern(pattern, cmd string) bool {
	if pattern == "*" {
		return true
	}
	if strings.HasSuffix(pattern, " *") {
		prefix := strings.TrimSuffix(pattern, " *")
		return cmd == prefix || strings.HasPrefix(cmd, prefix+" ")
	}
	if strings.HasSuffix(pattern, "*") {
		return strings.HasPrefix(cmd, strings.TrimSuffix(pattern, "*"))
	}
	return cmd == pattern
}

// matchesFilePattern supports "*", extension globs ("*.go"), double-star
// globs ("src/**/*.ts"), and a substring fallback. An empty pattern
// matches any file (including none); a non-empty pattern with no file
// to check against does not match.
func matchesFilePattern(pattern, file string) bool {
	if pattern == "" {
		return true
	}
	if file == "" {
		return false
	}
	if pattern == "*" {
		return true
	}
	if strings.HasPrefix(pattern, "*.") {
		return strings.HasSuffix(file, pattern[1:])
	}
	if strings.Contains(pattern, "**") {
		parts := strings.SplitN(pattern, "**", 2)
		if len(parts) == 2 {
			prefix := strings.TrimSuffix(parts[0], "/")
			suffix := strings.TrimPrefix(parts[1], "/")
			prefixOK := prefix == "" || strings.HasPrefix(file, prefix)
			suffixOK := true
			switch {
			case suffix == "":
				suffixOK = true
			case strings.HasPrefix(suffix, "*."):
				suffixOK = strings.HasSuffix(file, suffix[1:])
			default:
				suffixOK = strings.HasSuffix(file, suffix)
			}
			return prefixOK && suffixOK
		}
	}
	return strings.Contains(file, pattern)
}

func denyReason(rule models.PermissionRule, tool string) string {
	return "denied by " + rule.Source + " rule for " + tool
}

func askReason(rule models.PermissionRule, tool string) string {
	return "approval required by " + rule.Source + " rule for " + tool
}

func allowReason(rule models.PermissionRule, tool string) string {
	return "allowed by " + rule.Source + " rule for " + tool
}
