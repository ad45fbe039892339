package commands

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/voxlate/voxlate/pkg/mode"
	"github.com/voxlate/voxlate/pkg/settings"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show and change settings",
	Long: `Show and change voxlate settings.

Examples:
  voxlate config list
  voxlate config get target_language
  voxlate config set target_language ja
  voxlate config set api_key sk-...
  voxlate config set mode ambient`,
}

var configListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List all settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, s, err := loadSettings()
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		for _, key := range settings.Keys() {
			val, err := s.Get(key)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "%s\t%s\n", styles.Label.Render(key), val)
		}
		w.Flush()
		return nil
	},
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Print one setting",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, s, err := loadSettings()
		if err != nil {
			return err
		}
		val, err := s.Get(args[0])
		if err != nil {
			return err
		}
		fmt.Println(val)
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Change one setting",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, s, err := loadSettings()
		if err != nil {
			return err
		}
		key, value := args[0], args[1]
		if key == "mode" {
			if _, err := mode.Parse(value); err != nil {
				return err
			}
		}
		if err := s.Set(key, value); err != nil {
			return err
		}
		if err := store.Save(s); err != nil {
			return err
		}
		shown, _ := s.Get(key)
		fmt.Printf("%s = %s\n", key, shown)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configListCmd, configGetCmd, configSetCmd)
	rootCmd.AddCommand(configCmd)
}
