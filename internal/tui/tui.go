// Package tui is the interactive task board.
package tui

import (
	"context"

	"taskboard/internal/listcache"
	"taskboard/internal/model"
	"taskboard/internal/optimistic"

	tea "github.com/charmbracelet/bubbletea"
)

// Controller is the part of the optimistic manager the board drives.
type Controller interface {
	QuickAdd(bucket, title string, active model.TaskFilter, extra optimistic.Fields) (string, error)
	Retry(localID string) bool
	Cancel(localID string) bool
}

// Run shows the board for filter until the user quits or ctx is canceled.
// The view for filter must already be loaded into cache.
func Run(ctx context.Context, cache *listcache.Store, ctl Controller, filter model.TaskFilter) error {
	applyThemePreference()
	applyColorProfilePreference()

	m := newBoardModel(cache, ctl, filter)
	defer m.unsubscribe()
	_, err := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	return err
}
