package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/jmehdipour/loyalty-gateway/internal/app"
	"github.com/jmehdipour/loyalty-gateway/internal/counter"
)

var counterForce bool

var counterCmd = &cobra.Command{
	Use:   "counter",
	Short: "Inspect or adjust the customer code counter",
}

var counterShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the last issued counter value",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := app.LoadConfig(cmd)
		if err != nil {
			return err
		}
		a := counter.NewFileAllocator(cfg.Counter.Path, cfg.Counter.Width)
		n, err := a.Current()
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %d (next code %0*d)\n", cfg.Counter.Path, n, cfg.Counter.Width, n+1)
		return nil
	},
}

var counterSetCmd = &cobra.Command{
	Use:   "set <value>",
	Short: "Set the counter, e.g. after restoring from a backup",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil || n < 0 {
			return fmt.Errorf("counter value must be a non-negative integer, got %q", args[0])
		}
		cfg, err := app.LoadConfig(cmd)
		if err != nil {
			return err
		}
		a := counter.NewFileAllocator(cfg.Counter.Path, cfg.Counter.Width)
		if err := a.Set(n, counterForce); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "counter set to %d\n", n)
		return nil
	},
}

func init() {
	counterSetCmd.Flags().BoolVar(&counterForce, "force", false, "allow moving the counter backwards")
	counterCmd.AddCommand(counterShowCmd)
	counterCmd.AddCommand(counterSetCmd)
}
