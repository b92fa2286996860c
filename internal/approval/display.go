package approval

import "strings"

// DisplayTitle returns a short human-readable title for the request.
func (r Request) DisplayTitle() string {
	switch strings.ToLower(strings.TrimSpace(r.ToolName)) {
	case "bash":
		return "Run command"
	case "read":
		return "Read file"
	case "write":
		return "Write file"
	case "edit", "multiedit":
		return "Edit file"
	case "webfetch":
		return "Fetch URL"
	case "exitplanmode":
		return "Approve plan"
	default:
		name := strings.TrimSpace(r.ToolName)
		if name == "" {
			return "Tool permission"
		}
		return "Use " + name
	}
}

// DisplayDescription returns the most meaningful input value for the
// request, falling back to the flattened parameter list.
func (r Request) DisplayDescription() string {
	for _, key := range []string{"command", "file_path", "path", "url", "plan", "pattern"} {
		if v, ok := r.Param(key); ok && strings.TrimSpace(v) != "" {
			return v
		}
	}
	return r.FlatInput()
}

// ToolIcon returns a symbolic icon name for the requesting tool.
func (r Request) ToolIcon() string {
	switch strings.ToLower(strings.TrimSpace(r.ToolName)) {
	case "bash":
		return "terminal"
	case "read":
		return "doc"
	case "write", "edit", "multiedit":
		return "pencil"
	case "webfetch":
		return "globe"
	case "exitplanmode":
		return "list"
	default:
		return "wrench"
	}
}
