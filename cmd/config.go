package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/surge-downloader/trickle/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show the effective settings",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := json.MarshalIndent(settings, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "# %s\n%s\n", config.GetSettingsPath(), data)
		return nil
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the settings file path",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), config.GetSettingsPath())
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Change one setting and save it",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		// Start from the file, not the env-adjusted settings, so overrides are not persisted
		s, err := config.LoadSettingsFile()
		if err != nil {
			return err
		}
		if err := config.SetValue(s, args[0], args[1]); err != nil {
			return err
		}
		if err := config.SaveSettings(s); err != nil {
			return fmt.Errorf("failed to save settings: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s = %s\n", args[0], args[1])
		return nil
	},
}

var configKeysCmd = &cobra.Command{
	Use:   "keys",
	Short: "List setting keys with their descriptions",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		metadata := config.GetSettingsMetadata()
		for _, category := range config.CategoryOrder() {
			fmt.Fprintf(cmd.OutOrStdout(), "%s:\n", category)
			for _, meta := range metadata[category] {
				fmt.Fprintf(cmd.OutOrStdout(), "  %-26s %-9s %s\n", meta.Key, meta.Type, meta.Description)
			}
		}
	},
}

func init() {
	configCmd.AddCommand(configPathCmd, configSetCmd, configKeysCmd)
	rootCmd.AddCommand(configCmd)
}
