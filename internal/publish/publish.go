// Package publish exports tasks as markdown files.
package publish

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"taskboard/internal/model"
)

type WriteOptions struct {
	Title     string
	Overwrite bool
}

type WriteResult struct {
	Written []string `json:"written"`
}

// WriteBoard writes index.md plus one tasks/<id>.md page per task under toDir.
func WriteBoard(tasks []model.Task, toDir string, opt WriteOptions) (WriteResult, error) {
	toDir = strings.TrimSpace(toDir)
	if toDir == "" {
		return WriteResult{}, errors.New("missing --to")
	}
	toDir = filepath.Clean(toDir)

	tasksDir := filepath.Join(toDir, "tasks")
	if err := os.MkdirAll(tasksDir, 0o755); err != nil {
		return WriteResult{}, err
	}

	indexPath := filepath.Join(toDir, "index.md")
	if err := writeFile(indexPath, []byte(RenderBoardMarkdown(opt.Title, tasks, true)), opt.Overwrite); err != nil {
		return WriteResult{}, err
	}

	// Stop on the first error; files already written stay.
	written := []string{indexPath}
	for _, t := range tasks {
		p := filepath.Join(tasksDir, t.ID+".md")
		if err := writeFile(p, []byte(RenderTaskMarkdown(t)), opt.Overwrite); err != nil {
			return WriteResult{Written: written}, err
		}
		written = append(written, p)
	}
	return WriteResult{Written: written}, nil
}

func writeFile(path string, b []byte, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return errors.New("file exists (use --overwrite): " + path)
		}
	}
	return os.WriteFile(path, b, 0o644)
}
