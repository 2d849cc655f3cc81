// Package benchmark provides the subcommand that measures pipeline
// throughput and latency with synthetic utterances.
package benchmark

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/voicewire/voicewire-go/internal/conf"
	"github.com/voicewire/voicewire-go/internal/pipeline"
)

// Command creates the pipeline benchmark command.
func Command(settings *conf.Settings) *cobra.Command {
	var cycles int

	cmd := &cobra.Command{
		Use:   "benchmark",
		Short: "Benchmark the pipeline with synthetic utterances",
		Long:  "Run synthetic wake-to-transcript cycles through the stub stages and report latency statistics against the 150ms p95 budget.",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf("Running %d synthetic pipeline cycles...\n", cycles)

			stats, err := pipeline.Benchmark(context.Background(), settings, cycles)
			if err != nil {
				return err
			}

			fmt.Printf("Completed cycles:   %d\n", stats.TranscriptsCompleted)
			fmt.Printf("State transitions:  %d\n", stats.StateTransitions)
			fmt.Printf("Errors:             %d\n", stats.Errors)
			fmt.Printf("Latency mean:       %.2f ms\n", stats.LatencyMeanMs)
			fmt.Printf("Latency p95:        %.2f ms\n", stats.LatencyP95Ms)

			if stats.LatencyP95Ms < 150.0 {
				fmt.Println("Latency budget:     PASS (p95 < 150ms)")
			} else {
				fmt.Println("Latency budget:     FAIL (p95 >= 150ms)")
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&cycles, "cycles", 100, "Number of synthetic cycles to run")
	return cmd
}
