package account

import (
	"errors"
	"fmt"

	"github.com/charmbracelet/huh"

	"github.com/julianstephens/routineo/internal/cli"
	"github.com/julianstephens/routineo/internal/constants"
)

// credentials prompts for whatever was not given on the command line.
func credentials(email, password string, confirm bool) (string, string, error) {
	if email != "" && password != "" {
		return email, password, nil
	}

	var again string
	fields := []huh.Field{}
	if email == "" {
		fields = append(fields, huh.NewInput().Title("Email").Value(&email))
	}
	if password == "" {
		fields = append(fields, huh.NewInput().Title("Password").EchoMode(huh.EchoModePassword).Value(&password))
		if confirm {
			fields = append(fields, huh.NewInput().Title("Confirm password").EchoMode(huh.EchoModePassword).Value(&again))
		}
	}
	if err := huh.NewForm(huh.NewGroup(fields...)).Run(); err != nil {
		return "", "", err
	}
	if confirm && again != password {
		return "", "", errors.New("passwords do not match")
	}
	return email, password, nil
}

type SignupCmd struct {
	Email    string `arg:"" optional:"" help:"Account email."`
	Password string `help:"Password (prompted when omitted)." env:"ROUTINEO_PASSWORD"`
}

func (c *SignupCmd) Run(ctx *cli.Context) error {
	email, password, err := credentials(c.Email, c.Password, true)
	if err != nil {
		return err
	}
	gate, err := ctx.Gate()
	if err != nil {
		return err
	}
	user, err := gate.SignUp(ctx.Background(), email, password)
	if err != nil {
		return err
	}
	fmt.Printf("✓ Account created and signed in as %s\n", user.Email)
	fmt.Printf("  Set a daily reset time with: %s settings --reset-time %s\n", constants.AppName, constants.DefaultResetTime)
	return nil
}

type LoginCmd struct {
	Email    string `arg:"" optional:"" help:"Account email."`
	Password string `help:"Password (prompted when omitted)." env:"ROUTINEO_PASSWORD"`
}

func (c *LoginCmd) Run(ctx *cli.Context) error {
	email, password, err := credentials(c.Email, c.Password, false)
	if err != nil {
		return err
	}
	gate, err := ctx.Gate()
	if err != nil {
		return err
	}
	user, err := gate.SignIn(ctx.Background(), email, password)
	if err != nil {
		return err
	}
	fmt.Printf("✓ Signed in as %s\n", user.Email)
	return nil
}

type LogoutCmd struct{}

func (c *LogoutCmd) Run(ctx *cli.Context) error {
	gate, err := ctx.Gate()
	if err != nil {
		return err
	}
	if err := gate.SignOut(ctx.Background()); err != nil {
		return err
	}
	fmt.Println("Signed out.")
	return nil
}

type WhoamiCmd struct{}

func (c *WhoamiCmd) Run(ctx *cli.Context) error {
	user, err := ctx.RequireUser()
	if err != nil {
		return err
	}
	fmt.Printf("%s (ID: %s)\n", user.Email, user.ID)
	return nil
}
