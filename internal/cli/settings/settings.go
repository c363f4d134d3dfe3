package settings

import (
	"fmt"
	"time"

	"github.com/julianstephens/routineo/internal/cli"
	"github.com/julianstephens/routineo/internal/constants"
	"github.com/julianstephens/routineo/internal/reset"
	"github.com/julianstephens/routineo/internal/validation"
)

type SettingsCmd struct {
	List      bool    `help:"List current settings."`
	ResetTime *string `help:"Daily reset time (HH:MM, 24h, local time)." name:"reset-time"`
}

func (c *SettingsCmd) Run(ctx *cli.Context) error {
	s, err := ctx.Session()
	if err != nil {
		return err
	}

	if c.ResetTime != nil {
		rt, err := validation.ParseResetTime(*c.ResetTime)
		if err != nil {
			return err
		}
		if err := s.Settings.SetResetTime(ctx.Background(), rt); err != nil {
			return fmt.Errorf("failed to save settings: %w", err)
		}
		fmt.Printf("Reset time set to %s.\n", rt)
		if !c.List {
			return nil
		}
	}

	current, ok, err := s.Settings.Get(ctx.Background())
	if err != nil {
		return fmt.Errorf("failed to get settings: %w", err)
	}
	if !c.List && c.ResetTime == nil && !ok {
		fmt.Println("No settings yet. Use --reset-time HH:MM to configure the daily reset.")
		return nil
	}

	fmt.Println("Current Settings:")
	fmt.Printf("  Account:    %s\n", s.User.Email)
	if current.ResetTime != nil {
		fmt.Printf("  Reset Time: %s\n", current.ResetTime)
	} else {
		fmt.Println("  Reset Time: not set (items never reset automatically)")
	}
	return nil
}

// ResetCmd runs or inspects the daily reset pass.
type ResetCmd struct {
	Status bool `help:"Show the reset state without changing anything."`
	Force  bool `help:"Forget today's reset marker and evaluate again."`
}

func (c *ResetCmd) Run(ctx *cli.Context) error {
	if c.Status && c.Force {
		return fmt.Errorf("--status and --force cannot be combined")
	}
	s, err := ctx.Session()
	if err != nil {
		return err
	}

	if c.Status {
		st, err := s.Evaluator.Status(ctx.Background())
		if err != nil {
			return err
		}
		printStatus(st)
		return nil
	}

	if c.Force {
		if err := s.Evaluator.ForgetMarker(); err != nil {
			return err
		}
	}
	res, err := s.Evaluator.Evaluate(ctx.Background())
	if err != nil {
		return err
	}
	switch res.Outcome {
	case reset.OutcomeReset:
		fmt.Printf("✓ Reset %d item(s).\n", res.Cleared)
	case reset.OutcomeNothingToReset:
		fmt.Println("✓ Nothing to reset today.")
	case reset.OutcomeAlreadyReset:
		fmt.Println("Already reset today. Use --force to run again.")
	case reset.OutcomeNotConfigured:
		fmt.Println("No reset time configured. Use 'routineo settings --reset-time HH:MM'.")
	case reset.OutcomeBeforeResetTime:
		fmt.Printf("Not yet: today's reset is at %s.\n", res.ResetAt.Format(constants.TimeFormat))
	case reset.OutcomeMarkerAhead:
		fmt.Println("⚠ The last reset is dated in the future. Check the system clock.")
	}
	return nil
}

func printStatus(st reset.Status) {
	fmt.Println("Daily Reset:")
	if st.ResetTime != nil {
		fmt.Printf("  Reset Time: %s\n", st.ResetTime)
	} else {
		fmt.Println("  Reset Time: not set")
	}
	if st.Marker != nil {
		fmt.Printf("  Last Reset: %s\n", st.Marker.LastReset.Local().Format(time.RFC1123))
	} else {
		fmt.Println("  Last Reset: never on this device")
	}
	fmt.Printf("  State:      %s\n", st.Outcome)
	if !st.NextReset.IsZero() {
		if st.Due {
			fmt.Println("  Next Reset: now (runs on the next 'today', 'reset' or TUI start)")
		} else {
			fmt.Printf("  Next Reset: %s\n", st.NextReset.Format("Mon 2006-01-02 15:04"))
		}
	}
}
