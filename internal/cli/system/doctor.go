package system

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/julianstephens/routineo/internal/cli"
	"github.com/julianstephens/routineo/internal/constants"
	"github.com/julianstephens/routineo/internal/docstore"
	"github.com/julianstephens/routineo/internal/instance"
	"github.com/julianstephens/routineo/internal/items"
	"github.com/julianstephens/routineo/internal/keyring"
	"github.com/julianstephens/routineo/internal/models"
	"github.com/julianstephens/routineo/internal/validation"
)

type DoctorCmd struct{}

type check struct {
	name string
	// needsDB checks are skipped when the database is unreachable.
	needsDB bool
	// warn checks never fail the run.
	warn bool
	run  func(ctx *cli.Context) error
}

var doctorChecks = []check{
	{name: "Schema version", needsDB: true, run: checkSchemaVersion},
	{name: "Migrations complete", needsDB: true, run: checkMigrationsComplete},
	{name: "Data validation", needsDB: true, run: checkValidation},
	{name: "Item shapes", needsDB: true, warn: true, run: checkLegacyItems},
	{name: "Item owners", needsDB: true, warn: true, run: checkOrphanedItems},
	{name: "Clock/timezone", run: checkClockTimezone},
	{name: "Local store", warn: true, run: checkLocalStore},
	{name: "Other instances", warn: true, run: checkOtherInstances},
}

func (cmd *DoctorCmd) Run(ctx *cli.Context) error {
	fmt.Println("Running diagnostics...")
	fmt.Println()

	hasError := false
	dbReachable := true

	if err := checkDBReachable(ctx); err != nil {
		fmt.Printf("❌ Database reachable: FAIL\n")
		fmt.Printf("   Error: %v\n", err)
		hasError = true
		dbReachable = false
	} else {
		fmt.Printf("✓ Database reachable: OK\n")
	}

	for _, c := range doctorChecks {
		if c.needsDB && !dbReachable {
			fmt.Printf("⊘ %s: SKIPPED (database not reachable)\n", c.name)
			continue
		}
		err := c.run(ctx)
		switch {
		case err == nil:
			fmt.Printf("✓ %s: OK\n", c.name)
		case c.warn:
			fmt.Printf("⚠ %s: WARNING\n", c.name)
			fmt.Printf("   %v\n", err)
		default:
			fmt.Printf("❌ %s: FAIL\n", c.name)
			fmt.Printf("   Error: %v\n", err)
			hasError = true
		}
	}

	fmt.Println()
	if hasError {
		fmt.Println("Diagnostics completed with errors.")
		return fmt.Errorf("one or more health checks failed")
	}

	fmt.Println("All diagnostics passed!")
	return nil
}

func checkDBReachable(ctx *cli.Context) error {
	if err := ctx.Store.Open(); err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	if err := ctx.Store.Ping(ctx.Background()); err != nil {
		return fmt.Errorf("failed to query database: %w", err)
	}
	return nil
}

func checkSchemaVersion(ctx *cli.Context) error {
	current, latest, err := ctx.Store.SchemaVersion()
	if err != nil {
		return err
	}
	if current > latest {
		return fmt.Errorf("database schema version (%d) is newer than supported version (%d)", current, latest)
	}
	return nil
}

func checkMigrationsComplete(ctx *cli.Context) error {
	current, latest, err := ctx.Store.SchemaVersion()
	if err != nil {
		return err
	}
	if current < latest {
		return fmt.Errorf("migrations incomplete: current version %d, latest version %d (run '%s migrate')", current, latest, constants.AppName)
	}
	return nil
}

// storedItems reads every item document grouped by owner. Documents that do
// not decode are returned by id.
func storedItems(ctx *cli.Context) (map[string][]models.RoutineItem, []string, error) {
	docs, err := ctx.Store.Query(ctx.Background(), constants.CollectionItems)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read items: %w", err)
	}
	byOwner := make(map[string][]models.RoutineItem)
	var broken []string
	for _, doc := range docs {
		decoded, err := items.Decode([]docstore.Document{doc})
		if err != nil {
			broken = append(broken, doc.ID)
			continue
		}
		item := decoded[0]
		byOwner[item.UserID] = append(byOwner[item.UserID], item)
	}
	return byOwner, broken, nil
}

func checkValidation(ctx *cli.Context) error {
	byOwner, broken, err := storedItems(ctx)
	if err != nil {
		return err
	}
	if len(broken) > 0 {
		return fmt.Errorf("%d item document(s) cannot be read: %s", len(broken), strings.Join(broken, ", "))
	}

	owners := make([]string, 0, len(byOwner))
	for owner := range byOwner {
		owners = append(owners, owner)
	}
	sort.Strings(owners)

	validator := validation.New()
	conflicts := 0
	for _, owner := range owners {
		result := validator.ValidateItems(owner, byOwner[owner])
		conflicts += len(result.Conflicts)
	}
	if conflicts > 0 {
		return fmt.Errorf("found %d conflict(s) across %d user(s), run '%s validate' while signed in for details", conflicts, len(owners), constants.AppName)
	}
	return nil
}

func checkLegacyItems(ctx *cli.Context) error {
	n, err := items.CountLegacy(ctx.Background(), ctx.Store)
	if err != nil {
		return err
	}
	if n > 0 {
		return fmt.Errorf("%d item(s) use a legacy schedule shape, run '%s migrate --normalize'", n, constants.AppName)
	}
	return nil
}

func checkOrphanedItems(ctx *cli.Context) error {
	accounts, err := ctx.Store.Query(ctx.Background(), constants.CollectionAccounts)
	if err != nil {
		return fmt.Errorf("failed to read accounts: %w", err)
	}
	known := make(map[string]bool, len(accounts))
	for _, doc := range accounts {
		var acct models.Account
		if err := doc.Decode(&acct); err == nil {
			known[acct.UserID] = true
		}
	}

	byOwner, _, err := storedItems(ctx)
	if err != nil {
		return err
	}
	orphaned := 0
	for owner, list := range byOwner {
		if !known[owner] {
			orphaned += len(list)
		}
	}
	if orphaned > 0 {
		return fmt.Errorf("%d item(s) belong to no local account", orphaned)
	}
	return nil
}

func checkClockTimezone(ctx *cli.Context) error {
	now := time.Now()
	if now.Year() < 2020 || now.Year() > 2100 {
		return fmt.Errorf("system time appears incorrect: %s", now.Format(time.RFC3339))
	}
	if ctx.Config != nil {
		if _, err := ctx.Config.Location(); err != nil {
			return err
		}
	}
	return nil
}

func checkLocalStore(ctx *cli.Context) error {
	if _, err := ctx.LocalStore(); err != nil {
		return err
	}
	if ctx.Config != nil && ctx.Config.LocalStore == constants.LocalStoreFile {
		return nil
	}
	if !keyring.IsAvailable() {
		return fmt.Errorf("OS keyring unavailable, sessions and reset markers are kept in %s", constants.LocalStoreFileName)
	}
	return nil
}

func checkOtherInstances(ctx *cli.Context) error {
	if ctx.ConfigDir == "" {
		return nil
	}
	others, err := instance.Others(ctx.ConfigDir)
	if err != nil {
		return err
	}
	if len(others) == 0 {
		return nil
	}
	pids := make([]string, 0, len(others))
	for _, o := range others {
		pids = append(pids, fmt.Sprintf("%d (%s since %s)", o.PID, o.Command, o.StartedAt.Format(constants.TimeFormat)))
	}
	return fmt.Errorf("other %s processes are running: %s", constants.AppName, strings.Join(pids, ", "))
}
