package system

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/julianstephens/routineo/internal/cli"
	"github.com/julianstephens/routineo/internal/instance"
	"github.com/julianstephens/routineo/internal/items"
	"github.com/julianstephens/routineo/internal/logger"
	"github.com/julianstephens/routineo/internal/tui"
)

type TuiCmd struct {
	All bool `help:"Start on every day instead of today."`
}

func (c *TuiCmd) Run(ctx *cli.Context) error {
	release, err := instance.Register(ctx.ConfigDir, "tui")
	if err != nil {
		logger.Warn("Failed to register instance", "error", err)
	} else {
		defer release()
	}

	gate, err := ctx.Gate()
	if err != nil {
		return err
	}
	local, err := ctx.LocalStore()
	if err != nil {
		return err
	}

	mode := items.ModeToday
	if c.All {
		mode = items.ModeAll
	}
	m := tui.NewModel(tui.Deps{
		Store:   ctx.Store,
		Local:   local,
		Gate:    gate,
		Options: ctx.AppOptions(mode),
	})

	final, err := tea.NewProgram(m, tea.WithAltScreen()).Run()
	if fm, ok := final.(tui.Model); ok {
		fm.Close()
	} else {
		m.Close()
	}
	if err != nil {
		return fmt.Errorf("tui exited: %w", err)
	}
	return nil
}
