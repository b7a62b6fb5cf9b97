package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/astroward/nightwatch/internal/astro"
	"github.com/astroward/nightwatch/internal/config"
	"github.com/astroward/nightwatch/internal/safety"
	"github.com/astroward/nightwatch/internal/store"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the unit's last safety check and recent state changes",
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().Int("transitions", 10, "how many recent transitions to show")

	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx := cmd.Context()
	db, err := store.Open(ctx, cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	printSafety(cmd, db, cfg)

	limit, _ := cmd.Flags().GetInt("transitions")
	return printTransitions(cmd, db, limit)
}

func printSafety(cmd *cobra.Command, db *store.Store, cfg config.Config) {
	cmd.Println(styleHeading.Render("Safety"))

	payload, recordedAt, err := db.GetCurrent(cmd.Context(), "safety")
	if errors.Is(err, store.ErrNoRecord) {
		cmd.Println(styleMuted.Render("  no safety check recorded yet"))
	} else if err != nil {
		cmd.Println(styleUnsafe.Render("  " + err.Error()))
	} else {
		var res safety.Result
		if err := json.Unmarshal(payload, &res); err != nil {
			cmd.Println(styleUnsafe.Render("  unreadable safety record"))
		} else {
			printSafetyResult(cmd, res, recordedAt)
		}
	}

	site := astro.Site{
		Latitude:  cfg.Site.Latitude,
		Longitude: cfg.Site.Longitude,
		Elevation: cfg.Site.Elevation,
	}
	alt := site.SunAltitude(time.Now())
	cmd.Printf("  sun altitude %s\n", styleAccent.Render(fmt.Sprintf("%.1f°", alt)))
	cmd.Println()
}

func printSafetyResult(cmd *cobra.Command, res safety.Result, recordedAt time.Time) {
	age := time.Since(recordedAt).Round(time.Second)
	if res.Safe {
		cmd.Printf("  %s %s\n", styleSafe.Render(iconOK+" safe"),
			styleMuted.Render(fmt.Sprintf("checked %s ago", age)))
	} else {
		cmd.Printf("  %s %s\n",
			styleUnsafe.Render(fmt.Sprintf("%s unsafe (%s)", iconFailed, res.Failed)),
			styleMuted.Render(fmt.Sprintf("checked %s ago", age)))
	}

	names := make([]string, 0, len(res.Values))
	for name := range res.Values {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		icon := styleSafe.Render(iconOK)
		if !res.Values[name] {
			icon = styleUnsafe.Render(iconFailed)
		}
		cmd.Printf("    %-8s %s\n", name, icon)
	}
}

func printTransitions(cmd *cobra.Command, db *store.Store, limit int) error {
	cmd.Println(styleHeading.Render("Recent transitions"))

	transitions, err := db.RecentTransitions(cmd.Context(), limit)
	if err != nil {
		return fmt.Errorf("read transitions: %w", err)
	}
	if len(transitions) == 0 {
		cmd.Println(styleMuted.Render("  none recorded"))
		return nil
	}
	for _, tr := range transitions {
		cmd.Printf("  %s  %s -> %s\n",
			styleMuted.Render(tr.At.Local().Format("2006-01-02 15:04:05")),
			tr.From, styleAccent.Render(tr.To))
	}
	return nil
}
