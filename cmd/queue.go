package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/frahmantamala/paygate/internal/queue"
)

var queueOutput string

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Inspect and repair job queues",
}

var queueStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print job counts per queue",
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := initializeDependencies()
		if err != nil {
			return err
		}
		defer deps.Close()

		stats := make(map[string]queue.Stats, len(queue.Names))
		for _, name := range queue.Names {
			s, err := deps.Queue.Stats(cmd.Context(), name)
			if err != nil {
				return err
			}
			stats[name] = s
		}

		switch queueOutput {
		case "yaml":
			return yaml.NewEncoder(os.Stdout).Encode(stats)
		case "json":
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(stats)
		default:
			tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "QUEUE\tWAITING\tACTIVE\tCOMPLETED\tFAILED")
			for _, name := range queue.Names {
				s := stats[name]
				fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\n", name, s.Waiting, s.Active, s.Completed, s.Failed)
			}
			return tw.Flush()
		}
	},
}

var queueRecoverCmd = &cobra.Command{
	Use:   "recover [queue]",
	Short: "Move jobs stranded in a queue's active list back to waiting",
	Long: `Move jobs left in the active list by a crashed worker back to waiting.
Run it only while no worker is consuming the queue.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := initializeDependencies()
		if err != nil {
			return err
		}
		defer deps.Close()

		rq, ok := deps.Queue.(*queue.RedisQueue)
		if !ok {
			return fmt.Errorf("recover needs the redis queue backend")
		}
		moved, err := rq.Recover(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Printf("moved %d job(s) back to %s\n", moved, args[0])
		return nil
	},
}

func init() {
	queueStatsCmd.Flags().StringVarP(&queueOutput, "output", "o", "table", "output format: table, yaml or json")

	queueCmd.AddCommand(queueStatsCmd)
	queueCmd.AddCommand(queueRecoverCmd)
}
