package system

import (
	"encoding/json"
	"fmt"

	"github.com/julianstephens/routineo/internal/cli"
	"github.com/julianstephens/routineo/internal/constants"
)

type DebugCmd struct {
	DBPath       DebugDBPathCmd       `cmd:"" help:"Show database path."`
	DumpItem     DebugDumpItemCmd     `cmd:"" help:"Dump an item document as JSON."`
	DumpSettings DebugDumpSettingsCmd `cmd:"" help:"Dump the signed-in user's settings as JSON."`
	DumpMarker   DebugDumpMarkerCmd   `cmd:"" help:"Dump this device's reset marker as JSON."`
}

func printJSON(v any) error {
	jsonBytes, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	fmt.Println(string(jsonBytes))
	return nil
}

type DebugDBPathCmd struct{}

func (cmd *DebugDBPathCmd) Run(ctx *cli.Context) error {
	return printJSON(map[string]string{
		"path":    ctx.Store.Path(),
		"dialect": string(ctx.Store.Dialect()),
	})
}

type DebugDumpItemCmd struct {
	ID string `arg:"" help:"ID of the item to dump."`
}

func (cmd *DebugDumpItemCmd) Run(ctx *cli.Context) error {
	s, err := ctx.Session()
	if err != nil {
		return err
	}
	item, err := s.Items.Get(ctx.Background(), cmd.ID)
	if err != nil {
		return err
	}
	return printJSON(item)
}

type DebugDumpSettingsCmd struct{}

func (cmd *DebugDumpSettingsCmd) Run(ctx *cli.Context) error {
	s, err := ctx.Session()
	if err != nil {
		return err
	}
	settings, ok, err := s.Settings.Get(ctx.Background())
	if err != nil {
		return fmt.Errorf("failed to get settings: %w", err)
	}
	if !ok {
		return fmt.Errorf("no settings stored, set a reset time with '%s settings --reset-time HH:MM'", constants.AppName)
	}
	return printJSON(settings)
}

type DebugDumpMarkerCmd struct{}

func (cmd *DebugDumpMarkerCmd) Run(ctx *cli.Context) error {
	s, err := ctx.Session()
	if err != nil {
		return err
	}
	marker, err := s.Evaluator.Marker()
	if err != nil {
		return err
	}
	if marker == nil {
		return printJSON(map[string]any{"marker": nil})
	}
	return printJSON(marker)
}
