package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/voxlate/voxlate/pkg/history"
	"github.com/voxlate/voxlate/pkg/kv"
)

var historyClear bool

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show past translations",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := getStore()
		if err != nil {
			return err
		}
		if _, err := os.Stat(store.StateDir()); os.IsNotExist(err) {
			fmt.Println("No history yet.")
			return nil
		}
		kvStore, err := kv.NewBadger(kv.BadgerOptions{Dir: store.StateDir()})
		if err != nil {
			return fmt.Errorf("open state store: %w", err)
		}
		defer kvStore.Close()

		log := history.New(kvStore)
		ctx := cmd.Context()

		if historyClear {
			if err := log.Clear(ctx); err != nil {
				return err
			}
			fmt.Println("History cleared.")
			return nil
		}

		entries, err := log.Entries(ctx)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Println("No history yet.")
			return nil
		}
		for _, e := range entries {
			fmt.Printf("%s %s\n", styles.Dim.Render(e.Timestamp.Local().Format("2006-01-02 15:04")),
				styles.Dim.Render(e.Source+"→"+e.Target))
			fmt.Printf("  %s\n", styles.Value.Render(e.Original))
			fmt.Printf("  %s\n", styles.Label.Render(e.Translated))
		}
		return nil
	},
}

func init() {
	historyCmd.Flags().BoolVar(&historyClear, "clear", false, "delete all history entries")
	rootCmd.AddCommand(historyCmd)
}
