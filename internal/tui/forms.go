package tui

import (
	"errors"
	"time"

	"github.com/charmbracelet/huh"

	"github.com/julianstephens/routineo/internal/models"
	"github.com/julianstephens/routineo/internal/validation"
)

const (
	authSignIn = "signin"
	authSignUp = "signup"
)

type SignInFormModel struct {
	Action   string
	Email    string
	Password string
}

type ItemFormModel struct {
	Name  string
	Parts []models.PartOfDay
	Days  []time.Weekday
}

type SettingsFormModel struct {
	ResetTime string
}

func newSignInForm(f *SignInFormModel) *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Routineo").
				Options(
					huh.NewOption("Sign in", authSignIn),
					huh.NewOption("Create account", authSignUp),
				).
				Value(&f.Action),
			huh.NewInput().
				Title("Email").
				Value(&f.Email).
				Validate(func(s string) error {
					if s == "" {
						return errors.New("email is required")
					}
					return nil
				}),
			huh.NewInput().
				Title("Password").
				EchoMode(huh.EchoModePassword).
				Value(&f.Password).
				Validate(func(s string) error {
					if s == "" {
						return errors.New("password is required")
					}
					return nil
				}),
		),
	).WithShowHelp(true)
}

func newItemForm(f *ItemFormModel, title string) *huh.Form {
	partOptions := make([]huh.Option[models.PartOfDay], 0, len(models.AllParts))
	for _, p := range models.AllParts {
		partOptions = append(partOptions, huh.NewOption(string(p), p).Selected(containsPart(f.Parts, p)))
	}
	dayOptions := make([]huh.Option[time.Weekday], 0, len(models.AllDays))
	for _, d := range models.AllDays {
		dayOptions = append(dayOptions, huh.NewOption(d.String(), d).Selected(containsDay(f.Days, d)))
	}

	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title(title).
				Placeholder("Item name").
				Value(&f.Name).
				Validate(func(s string) error {
					return validation.ValidateDraft(models.ItemDraft{
						Name:      s,
						PartOfDay: models.PartSet{models.Morning},
						DayOfWeek: models.DaySet{time.Monday},
					})
				}),
			huh.NewMultiSelect[models.PartOfDay]().
				Title("Part of day").
				Options(partOptions...).
				Value(&f.Parts).
				Validate(func(p []models.PartOfDay) error {
					if len(p) == 0 {
						return errors.New("pick at least one part of the day")
					}
					return nil
				}),
			huh.NewMultiSelect[time.Weekday]().
				Title("Days").
				Options(dayOptions...).
				Value(&f.Days).
				Validate(func(d []time.Weekday) error {
					if len(d) == 0 {
						return errors.New("pick at least one day")
					}
					return nil
				}),
		),
	).WithShowHelp(true)
}

func newSettingsForm(f *SettingsFormModel) *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Daily reset time (HH:MM)").
				Value(&f.ResetTime).
				Validate(func(s string) error {
					_, err := validation.ParseResetTime(s)
					return err
				}),
		),
	).WithShowHelp(true)
}

// draft converts the form into an item draft.
func (f *ItemFormModel) draft() models.ItemDraft {
	return models.ItemDraft{
		Name:      f.Name,
		PartOfDay: models.NewPartSet(f.Parts...),
		DayOfWeek: models.NewDaySet(f.Days...),
	}
}

// patch returns only the fields that differ from item.
func (f *ItemFormModel) patch(item models.RoutineItem) models.ItemPatch {
	var p models.ItemPatch
	if f.Name != item.Name {
		name := f.Name
		p.Name = &name
	}
	if parts := models.NewPartSet(f.Parts...); parts.String() != item.PartOfDay.String() {
		p.PartOfDay = parts
	}
	if days := models.NewDaySet(f.Days...); days.String() != item.DayOfWeek.String() {
		p.DayOfWeek = days
	}
	return p
}

func containsPart(parts []models.PartOfDay, p models.PartOfDay) bool {
	for _, x := range parts {
		if x == p {
			return true
		}
	}
	return false
}

func containsDay(days []time.Weekday, d time.Weekday) bool {
	for _, x := range days {
		if x == d {
			return true
		}
	}
	return false
}
