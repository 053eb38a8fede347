package command

import (
	"fmt"
	"strings"

	"github.com/cairnlabs/cairn/pkg/types"
)

// Kind discriminates the command variants
type Kind string

const (
	KindQueue      Kind = "queue"
	KindAccept     Kind = "accept"
	KindReject     Kind = "reject"
	KindStatus     Kind = "status"
	KindListAgents Kind = "list_agents"
)

// Command is the one normalized command form. Every adapter (CLI,
// signal files, tests) funnels through Parse, so semantically
// equivalent inputs always produce equal Command values.
type Command struct {
	Kind     Kind
	Task     string
	Priority types.TaskPriority
	AgentID  string
}

// Parse normalizes a type tag plus payload into a Command.
//
// Tags are case-insensitive and dashes fold to underscores. "spawn" is
// an alias for "queue" that changes the default priority from normal
// to high; an explicit priority in the payload always wins. Malformed
// input fails with ErrInvalidCommand.
func Parse(typeTag string, payload map[string]any) (*Command, error) {
	tag := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(typeTag), "-", "_"))

	switch tag {
	case "queue", "spawn":
		task := stringField(payload, "task")
		if task == "" {
			return nil, fmt.Errorf("%w: %s requires a task", types.ErrInvalidCommand, tag)
		}
		def := types.PriorityNormal
		if tag == "spawn" {
			def = types.PriorityHigh
		}
		priority, err := priorityField(payload, def)
		if err != nil {
			return nil, err
		}
		return &Command{Kind: KindQueue, Task: task, Priority: priority}, nil

	case "accept", "reject", "status":
		agentID := stringField(payload, "agent_id")
		if agentID == "" {
			return nil, fmt.Errorf("%w: %s requires an agent_id", types.ErrInvalidCommand, tag)
		}
		var kind Kind
		switch tag {
		case "accept":
			kind = KindAccept
		case "reject":
			kind = KindReject
		case "status":
			kind = KindStatus
		}
		return &Command{Kind: kind, AgentID: agentID}, nil

	case "list_agents":
		return &Command{Kind: KindListAgents}, nil

	default:
		return nil, fmt.Errorf("%w: unknown type %q", types.ErrInvalidCommand, typeTag)
	}
}

// Tag returns the canonical type tag
func (c *Command) Tag() string {
	return string(c.Kind)
}

// Payload returns the canonical payload map. Parse(c.Tag(),
// c.Payload()) reconstructs an equal command.
func (c *Command) Payload() map[string]any {
	p := make(map[string]any)
	switch c.Kind {
	case KindQueue:
		p["task"] = c.Task
		p["priority"] = c.Priority.String()
	case KindAccept, KindReject, KindStatus:
		p["agent_id"] = c.AgentID
	}
	return p
}

// String renders the command for logs
func (c *Command) String() string {
	switch c.Kind {
	case KindQueue:
		return fmt.Sprintf("queue(priority=%s)", c.Priority)
	case KindListAgents:
		return "list_agents"
	default:
		return fmt.Sprintf("%s(%s)", c.Kind, c.AgentID)
	}
}

// stringField extracts a trimmed string value, or "" when absent or
// not a string.
func stringField(payload map[string]any, key string) string {
	if payload == nil {
		return ""
	}
	v, ok := payload[key]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return strings.TrimSpace(s)
}

// priorityField resolves the payload's priority, accepting both names
// ("high") and numeric levels (3, or 3.0 after JSON decoding).
func priorityField(payload map[string]any, def types.TaskPriority) (types.TaskPriority, error) {
	if payload == nil {
		return def, nil
	}
	v, ok := payload["priority"]
	if !ok || v == nil {
		return def, nil
	}

	switch p := v.(type) {
	case string:
		pr, err := types.ParsePriority(p)
		if err != nil {
			return 0, fmt.Errorf("%w: %v", types.ErrInvalidCommand, err)
		}
		return pr, nil
	case float64:
		pr := types.TaskPriority(int(p))
		if !pr.Valid() {
			return 0, fmt.Errorf("%w: priority %v out of range", types.ErrInvalidCommand, p)
		}
		return pr, nil
	case int:
		pr := types.TaskPriority(p)
		if !pr.Valid() {
			return 0, fmt.Errorf("%w: priority %d out of range", types.ErrInvalidCommand, p)
		}
		return pr, nil
	case types.TaskPriority:
		if !p.Valid() {
			return 0, fmt.Errorf("%w: priority %d out of range", types.ErrInvalidCommand, int(p))
		}
		return p, nil
	default:
		return 0, fmt.Errorf("%w: unsupported priority type %T", types.ErrInvalidCommand, v)
	}
}
