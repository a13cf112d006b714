package invoke

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
)

// Echo renders its arguments back as JSON. Mostly useful for smoke-testing a
// store end to end without any real side effect.
func Echo(ctx context.Context, args map[string]any) (string, error) {
	_ = ctx
	if msg, ok := args["msg"].(string); ok && len(args) == 1 {
		return msg, nil
	}
	b, err := json.Marshal(args)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Run executes a subprocess described by the arguments:
//
//	{"command": "git", "args": ["pull"], "dir": "/srv/repo"}
//
// Stdout and stderr are combined into the result. The caller's context
// bounds the process lifetime.
func Run(ctx context.Context, args map[string]any) (string, error) {
	command, _ := args["command"].(string)
	command = strings.TrimSpace(command)
	if command == "" {
		return "", fmt.Errorf("run: \"command\" argument is required")
	}

	var argv []string
	if raw, ok := args["args"].([]any); ok {
		argv = make([]string, 0, len(raw))
		for _, a := range raw {
			argv = append(argv, fmt.Sprint(a))
		}
	}

	cmd := exec.CommandContext(ctx, command, argv...)
	if dir, ok := args["dir"].(string); ok && strings.TrimSpace(dir) != "" {
		cmd.Dir = dir
	}

	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("run %s: %w: %s", command, err, strings.TrimSpace(string(out)))
	}
	return strings.TrimSpace(string(out)), nil
}
