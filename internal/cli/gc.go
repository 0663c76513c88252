package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var gcExecute bool

var gcCmd = &cobra.Command{
	Use:   "gc",
	Short: "Run a garbage-collection cycle",
	Long:  "Rescore every node, apply tier transitions, enforce the golden soft cap, move dust to trash, and sweep expired trash. Dry run unless --execute is given.",
	RunE:  runGC,
}

func init() {
	gcCmd.Flags().BoolVar(&gcExecute, "execute", false, "Apply changes (default is dry run)")
}

func runGC(cmd *cobra.Command, args []string) error {
	_, _, _, eng, err := setup()
	if err != nil {
		return err
	}

	fmt.Printf("Running garbage collection (dry run: %v)...\n", !gcExecute)
	report, err := eng.RunGC(context.Background(), gcExecute)
	if err != nil {
		return fmt.Errorf("gc: %w", err)
	}

	if report.SafetyTriggered {
		fmt.Println("Safety net triggered: cycle aborted, no changes made.")
	}
	fmt.Printf("  scanned:        %d\n", report.Scanned)
	fmt.Printf("  demoted:        %d\n", report.Demoted)
	fmt.Printf("  marked dust:    %d\n", report.MarkedDust)
	fmt.Printf("  trashed:        %d\n", report.Trashed)
	fmt.Printf("  cleaned trash:  %d\n", report.CleanedTrash)
	if report.Errors > 0 {
		fmt.Printf("  errors:         %d\n", report.Errors)
	}
	if report.NotifyFailures > 0 {
		fmt.Printf("  notify failed:  %d\n", report.NotifyFailures)
	}
	return nil
}
