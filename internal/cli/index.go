package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/nerv00kaworu/Sacred-Essence-Viking/internal/index"
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Manage the local search index",
}

var indexLimit int

func init() {
	indexCmd.AddCommand(indexSyncCmd)
	indexCmd.AddCommand(indexQueryCmd)
	indexCmd.AddCommand(indexVSearchCmd)
	indexCmd.AddCommand(indexStatusCmd)

	indexQueryCmd.Flags().IntVarP(&indexLimit, "limit", "n", 5, "Maximum number of results")
	indexVSearchCmd.Flags().IntVarP(&indexLimit, "limit", "n", 5, "Maximum number of results")
}

var indexSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Re-index every node in the store",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, st, idx, _, err := setup()
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()

		synced, err := idx.SyncAll(ctx, st)
		if err != nil {
			return fmt.Errorf("index sync: %w", err)
		}
		fmt.Printf("Synced %d nodes to index.\n", synced)
		return nil
	},
}

var indexQueryCmd = &cobra.Command{
	Use:   "query [text]",
	Short: "Keyword search over indexed nodes",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, _, idx, _, err := setup()
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		results, err := idx.Query(ctx, strings.Join(args, " "), indexLimit)
		if err != nil {
			return fmt.Errorf("query: %w", err)
		}
		printResults(results)
		return nil
	},
}

var indexVSearchCmd = &cobra.Command{
	Use:   "vsearch [text]",
	Short: "Vector similarity search over indexed nodes",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, _, idx, _, err := setup()
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		results, err := idx.VSearch(ctx, strings.Join(args, " "), indexLimit)
		if err != nil {
			return fmt.Errorf("vsearch: %w", err)
		}
		printResults(results)
		return nil
	},
}

var indexStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show index status",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, _, idx, _, err := setup()
		if err != nil {
			return err
		}

		st, err := idx.GetStatus()
		if err != nil {
			return fmt.Errorf("index status: %w", err)
		}
		fmt.Printf("index: %s\n", st.Path)
		fmt.Printf("  docs:    %d\n", st.Docs)
		fmt.Printf("  vectors: %d\n", st.Vectors)
		fmt.Printf("  model:   %s\n", st.Model)
		return nil
	},
}

func printResults(results []index.Result) {
	if len(results) == 0 {
		fmt.Println("No results found.")
		return
	}
	for i, r := range results {
		fmt.Printf("%d. [%.3f] %s/%s - %s [%s]\n", i+1, r.Score, r.Doc.Topic, r.Doc.NodeID, r.Doc.Title, r.Doc.Tier)
		if r.Doc.Abstract != "" {
			fmt.Printf("   %s\n", r.Doc.Abstract)
		}
	}
}
