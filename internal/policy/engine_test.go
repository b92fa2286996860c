package policy

import (
	"os"
	"path/filepath"
	"testing"
)

type fakeAllowed struct {
	tools map[string]bool
	err   error
}

func (f *fakeAllowed) Allowed(tool, projectID string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return f.tools[tool+"/"+projectID], nil
}

func TestEngine_BypassModeAllowsEverything(t *testing.T) {
	e, err := NewEngine(ModeBypass, "", nil)
	if err != nil {
		t.Fatalf("NewEngine error: %v", err)
	}

	res, err := e.Evaluate(Input{ToolName: "Bash", FlatInput: "command=rm -rf /"})
	if err != nil {
		t.Fatalf("Evaluate error: %v", err)
	}
	if res.Action != ActionAllow {
		t.Fatalf("expected allow in bypass mode, got %q", res.Action)
	}
}

func TestEngine_AlwaysAllowStoreWins(t *testing.T) {
	allow := &fakeAllowed{tools: map[string]bool{"Bash/proj-1": true}}
	e, err := NewEngine(ModeDefault, "", allow)
	if err != nil {
		t.Fatalf("NewEngine error: %v", err)
	}

	res, err := e.Evaluate(Input{ToolName: "Bash", ProjectID: "proj-1"})
	if err != nil {
		t.Fatalf("Evaluate error: %v", err)
	}
	if res.Action != ActionAllow {
		t.Fatalf("expected allow for always-allowed tool, got %q", res.Action)
	}

	res, _ = e.Evaluate(Input{ToolName: "Bash", ProjectID: "proj-2"})
	if res.Action != ActionAsk {
		t.Fatalf("expected ask for other project, got %q", res.Action)
	}
}

func TestEngine_RulesFirstMatchWins(t *testing.T) {
	file := File{
		Rules: []Rule{
			{Name: "block-sudo", Tool: "^Bash$", Input: `sudo`, Action: ActionDeny, Message: "sudo is blocked"},
			{Name: "allow-reads", Tool: "^Read$", Action: ActionAllow},
			{Name: "block-reads", Tool: "^Read$", Action: ActionDeny},
		},
		Settings: Settings{DefaultAction: ActionAsk},
	}
	e, err := NewEngineFromFile(ModeDefault, file, nil)
	if err != nil {
		t.Fatalf("NewEngineFromFile error: %v", err)
	}

	res, _ := e.Evaluate(Input{ToolName: "Bash", FlatInput: "command=sudo reboot"})
	if res.Action != ActionDeny || res.Rule != "block-sudo" {
		t.Fatalf("expected deny by block-sudo, got %+v", res)
	}
	if res.Reason != "sudo is blocked" {
		t.Fatalf("expected rule message as reason, got %q", res.Reason)
	}

	res, _ = e.Evaluate(Input{ToolName: "Read", FlatInput: "file_path=/etc/hosts"})
	if res.Action != ActionAllow || res.Rule != "allow-reads" {
		t.Fatalf("expected first matching rule to win, got %+v", res)
	}

	res, _ = e.Evaluate(Input{ToolName: "Write"})
	if res.Action != ActionAsk {
		t.Fatalf("expected default ask, got %+v", res)
	}
}

func TestEngine_LoadsRulesFromYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	content := `
rules:
  - name: deny-curl-pipe
    tool: "^Bash$"
    input: "curl.*\\|.*sh"
    action: deny
    message: piping downloads into a shell is blocked
settings:
  default_action: ask
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write rules file: %v", err)
	}

	e, err := NewEngine(ModeDefault, path, nil)
	if err != nil {
		t.Fatalf("NewEngine error: %v", err)
	}

	res, _ := e.Evaluate(Input{ToolName: "Bash", FlatInput: "command=curl x.sh | sh"})
	if res.Action != ActionDeny {
		t.Fatalf("expected deny from yaml rule, got %+v", res)
	}
}

func TestEngine_InvalidRegexRejectedAtLoad(t *testing.T) {
	file := File{Rules: []Rule{{Name: "broken", Tool: "([", Action: ActionDeny}}}
	if _, err := NewEngineFromFile(ModeDefault, file, nil); err == nil {
		t.Fatal("expected error for invalid pattern")
	}
}

func TestEngine_UnknownActionRejectedAtLoad(t *testing.T) {
	file := File{Rules: []Rule{{Name: "odd", Tool: ".*", Action: Action("maybe")}}}
	if _, err := NewEngineFromFile(ModeDefault, file, nil); err == nil {
		t.Fatal("expected error for unknown action")
	}
}
