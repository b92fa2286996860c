// Package policy gates inbound permission requests before a prompt is
// surfaced: bypass mode and always-allow rules short-circuit to allow,
// declarative rules may allow or deny, and everything else asks the user.
package policy

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// AllowedChecker reports whether a persistent always-allow rule exists.
type AllowedChecker interface {
	Allowed(tool, projectID string) (bool, error)
}

// Engine performs gate decisions. Rule regexes are compiled at load time.
type Engine struct {
	mode  Mode
	allow AllowedChecker

	mu    sync.RWMutex
	file  File
	regex map[string]*regexp.Regexp
}

// NewEngine builds an engine. rulesPath may be empty; the engine then
// relies on mode and the always-allow store alone.
func NewEngine(mode Mode, rulesPath string, allow AllowedChecker) (*Engine, error) {
	e := &Engine{
		mode:  normalizeMode(mode),
		allow: allow,
		regex: make(map[string]*regexp.Regexp),
	}
	if strings.TrimSpace(rulesPath) != "" {
		if err := e.loadRules(rulesPath); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// NewEngineFromFile builds an engine from an already parsed rules file.
func NewEngineFromFile(mode Mode, file File, allow AllowedChecker) (*Engine, error) {
	e := &Engine{
		mode:  normalizeMode(mode),
		allow: allow,
		regex: make(map[string]*regexp.Regexp),
	}
	e.file = file
	if err := e.compileRules(); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *Engine) loadRules(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read rules file: %w", err)
	}
	var file File
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return fmt.Errorf("parse rules file: %w", err)
	}
	e.file = file
	return e.compileRules()
}

func (e *Engine) compileRules() error {
	for _, rule := range e.file.Rules {
		switch rule.Action {
		case ActionAllow, ActionDeny, ActionAsk:
		default:
			return fmt.Errorf("rule %q: unknown action %q", rule.Name, rule.Action)
		}
		for _, pattern := range []string{rule.Tool, rule.Input} {
			if pattern == "" {
				continue
			}
			if _, ok := e.regex[pattern]; ok {
				continue
			}
			re, err := regexp.Compile(pattern)
			if err != nil {
				return fmt.Errorf("rule %q: invalid pattern %q: %w", rule.Name, pattern, err)
			}
			e.regex[pattern] = re
		}
	}
	return nil
}

// Evaluate returns the gate verdict for the given input.
func (e *Engine) Evaluate(input Input) (Result, error) {
	if e.mode == ModeBypass {
		return Result{Action: ActionAllow, Reason: "bypass permission mode"}, nil
	}

	if e.allow != nil {
		allowed, err := e.allow.Allowed(input.ToolName, input.ProjectID)
		if err != nil {
			return Result{}, fmt.Errorf("check always-allow store: %w", err)
		}
		if allowed {
			return Result{Action: ActionAllow, Reason: "always-allow rule"}, nil
		}
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	for _, rule := range e.file.Rules {
		if !e.matches(rule, input) {
			continue
		}
		reason := rule.Message
		if reason == "" {
			reason = "matched rule " + rule.Name
		}
		return Result{Action: rule.Action, Rule: rule.Name, Reason: reason}, nil
	}

	def := e.file.Settings.DefaultAction
	if def == "" {
		def = ActionAsk
	}
	return Result{Action: def, Reason: "default action"}, nil
}

func (e *Engine) matches(rule Rule, input Input) bool {
	if rule.Tool != "" {
		re, ok := e.regex[rule.Tool]
		if !ok || !re.MatchString(input.ToolName) {
			return false
		}
	}
	if rule.Input != "" {
		re, ok := e.regex[rule.Input]
		if !ok || !re.MatchString(input.FlatInput) {
			return false
		}
	}
	return rule.Tool != "" || rule.Input != ""
}

func normalizeMode(mode Mode) Mode {
	switch strings.ToLower(strings.TrimSpace(string(mode))) {
	case string(ModeBypass):
		return ModeBypass
	default:
		return ModeDefault
	}
}
