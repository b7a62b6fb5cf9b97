package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/astroward/nightwatch/internal/config"
	"github.com/astroward/nightwatch/internal/scheduler"
)

var fieldsCmd = &cobra.Command{
	Use:   "fields",
	Short: "Inspect the target catalog",
}

var fieldsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List catalog entries",
	RunE:  runFieldsList,
}

var fieldsValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check every catalog entry and report violations",
	RunE:  runFieldsValidate,
}

func init() {
	fieldsCmd.PersistentFlags().String("fields", "", "catalog path (default from config)")

	fieldsCmd.AddCommand(fieldsListCmd)
	fieldsCmd.AddCommand(fieldsValidateCmd)
	rootCmd.AddCommand(fieldsCmd)
}

// readCatalog loads the raw catalog records without validating them, so
// validate can report every bad entry instead of stopping at the first.
func readCatalog(cmd *cobra.Command) ([]scheduler.ObservationConfig, string, error) {
	path, _ := cmd.Flags().GetString("fields")
	if path == "" {
		cfg, err := config.Load()
		if err != nil {
			return nil, "", fmt.Errorf("load config: %w", err)
		}
		path = cfg.Scheduler.FieldsFile
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, path, fmt.Errorf("read catalog: %w", err)
	}
	var configs []scheduler.ObservationConfig
	if err := yaml.Unmarshal(data, &configs); err != nil {
		return nil, path, fmt.Errorf("parse catalog %s: %w", path, err)
	}
	return configs, path, nil
}

func runFieldsList(cmd *cobra.Command, args []string) error {
	configs, path, err := readCatalog(cmd)
	if err != nil {
		return err
	}

	cmd.Println(styleHeading.Render(path))
	for _, c := range configs {
		obs, err := scheduler.NewObservation(c)
		if err != nil {
			cmd.Printf("  %s %s  %s\n", styleUnsafe.Render(iconFailed), c.Name,
				styleMuted.Render(err.Error()))
			continue
		}
		cmd.Printf("  %s %-24s %s  priority %s  %s\n",
			styleSafe.Render(iconOK),
			obs.Name(),
			obs.Field.Position.String(),
			styleAccent.Render(fmt.Sprintf("%.0f", obs.Priority)),
			styleMuted.Render(fmt.Sprintf("%d x %.0fs", obs.MinNExp, obs.ExpTime.Seconds())))
	}
	return nil
}

func runFieldsValidate(cmd *cobra.Command, args []string) error {
	configs, path, err := readCatalog(cmd)
	if err != nil {
		return err
	}

	bad := 0
	for _, c := range configs {
		if _, err := scheduler.NewObservation(c); err != nil {
			bad++
			cmd.Printf("%s %s: %v\n", styleUnsafe.Render(iconFailed), c.Name, err)
		}
	}
	if bad > 0 {
		return fmt.Errorf("%d of %d catalog entries invalid in %s", bad, len(configs), path)
	}
	cmd.Printf("%s %d entries valid in %s\n", styleSafe.Render(iconOK), len(configs), path)
	return nil
}
