package main

import (
	"context"
	"os"
	"os/signal"
	"strings"

	"taskboard/internal/cli"
	"taskboard/internal/ids"
)

func isTaskID(s string) bool {
	s = strings.TrimSpace(s)
	prefix := ids.TaskPrefix + "-"
	return strings.HasPrefix(s, prefix) && len(s) > len(prefix)
}

// rewriteDirectTaskLookupArgs makes `taskboard <task-id>` work like
// `taskboard show <task-id>`. Cobra treats the first positional token as a
// subcommand, so argv is rewritten before parsing.
func rewriteDirectTaskLookupArgs(argv []string) []string {
	if len(argv) < 2 {
		return argv
	}

	// Persistent flags that take a value; their value must not be mistaken for the id.
	valueFlags := map[string]bool{
		"--config":    true,
		"--format":    true,
		"--base-url":  true,
		"--log-level": true,
	}

	insert := func(at int) []string {
		out := make([]string, 0, len(argv)+1)
		out = append(out, argv[:at]...)
		out = append(out, "show")
		return append(out, argv[at:]...)
	}

	for i := 1; i < len(argv); i++ {
		a := strings.TrimSpace(argv[i])
		if a == "" {
			continue
		}
		if a == "--" {
			if i+1 < len(argv) && isTaskID(argv[i+1]) {
				return insert(i + 1)
			}
			return argv
		}
		if strings.HasPrefix(a, "-") {
			if !strings.Contains(a, "=") && valueFlags[a] {
				i++
			}
			continue
		}
		if isTaskID(a) {
			return insert(i)
		}
		return argv
	}
	return argv
}

func main() {
	os.Args = rewriteDirectTaskLookupArgs(os.Args)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cmd := cli.NewRootCmd()
	cmd.SetArgs(os.Args[1:])
	if err := cmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
