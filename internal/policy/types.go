package policy

// Action is the gate decision for an inbound permission request.
type Action string

const (
	ActionAllow Action = "allow"
	ActionDeny  Action = "deny"
	ActionAsk   Action = "ask"
)

// Mode controls gate behavior for a session.
type Mode string

const (
	// ModeDefault surfaces a prompt unless a rule or always-allow entry
	// decides first.
	ModeDefault Mode = "default"
	// ModeBypass suppresses all prompts and allows every tool.
	ModeBypass Mode = "bypass"
)

// Rule is one declarative gate rule. Tool and Input are regular
// expressions matched against the tool name and the flattened input.
type Rule struct {
	Name    string `yaml:"name"`
	Tool    string `yaml:"tool"`
	Input   string `yaml:"input,omitempty"`
	Action  Action `yaml:"action"`
	Message string `yaml:"message,omitempty"`
}

// Settings holds file-level gate settings.
type Settings struct {
	DefaultAction Action `yaml:"default_action"`
}

// File is a parsed rules file. Rules are evaluated first-match-wins.
type File struct {
	Rules    []Rule   `yaml:"rules"`
	Settings Settings `yaml:"settings"`
}

// Input is the evaluation context for one permission request.
type Input struct {
	ToolName  string
	ProjectID string
	FlatInput string
}

// Result is the gate verdict.
type Result struct {
	Action Action
	Rule   string
	Reason string
}
