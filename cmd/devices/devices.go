// Package devices provides the subcommand that lists capture devices.
package devices

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/voicewire/voicewire-go/internal/audio"
)

// Command creates the device listing command.
func Command() *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List available audio capture devices",
		RunE: func(cmd *cobra.Command, args []string) error {
			devices, err := audio.ListDevices()
			if err != nil {
				return err
			}
			if len(devices) == 0 {
				fmt.Println("No capture devices found")
				return nil
			}
			for _, d := range devices {
				marker := " "
				if d.Default {
					marker = "*"
				}
				fmt.Printf("%s [%d] %s\n", marker, d.Index, d.Name)
			}
			return nil
		},
	}
}
