package commands

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/voxlate/voxlate/pkg/audio/device/portaudio"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List audio devices",
	RunE: func(cmd *cobra.Command, args []string) error {
		host, err := portaudio.NewHost()
		if err != nil {
			return fmt.Errorf("initialize audio: %w", err)
		}
		defer host.Close()

		devices, err := host.Devices()
		if err != nil {
			return err
		}
		if len(devices) == 0 {
			fmt.Println("No audio devices found.")
			return nil
		}

		fmt.Println(styles.Title.Render("Audio devices"))
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "\tNAME\tDIRECTION\tCLASS\tFORMAT")
		for _, d := range devices {
			def := ""
			if d.Default {
				def = "*"
			}
			dir := ""
			switch {
			case d.Input && d.Output:
				dir = "in+out"
			case d.Input:
				dir = "in"
			case d.Output:
				dir = "out"
			}
			class := ""
			if d.Input {
				class = d.Class.String()
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d Hz, %dch\n",
				def, d.Name, dir, class, d.Format.SampleRate, d.Format.Channels)
		}
		w.Flush()
		fmt.Println(styles.Dim.Render("* default device"))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(devicesCmd)
}
