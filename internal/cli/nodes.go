package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/nerv00kaworu/Sacred-Essence-Viking/internal/engine"
	"github.com/nerv00kaworu/Sacred-Essence-Viking/internal/store"
)

// --- encode command ---

var (
	encodeTopic      string
	encodeTitle      string
	encodeContent    string
	encodeAbstract   string
	encodeOverview   string
	encodeProvenance string
)

var encodeCmd = &cobra.Command{
	Use:   "encode",
	Short: "Encode a new memory node",
	RunE:  runEncode,
}

func init() {
	encodeCmd.Flags().StringVar(&encodeTopic, "topic", "", "Topic name")
	encodeCmd.Flags().StringVar(&encodeTitle, "title", "", "Node title")
	encodeCmd.Flags().StringVar(&encodeContent, "content", "", "Full content (L2)")
	encodeCmd.Flags().StringVar(&encodeAbstract, "abstract", "", "One-line abstract (L0)")
	encodeCmd.Flags().StringVar(&encodeOverview, "overview", "", "Short overview (L1)")
	encodeCmd.Flags().StringVar(&encodeProvenance, "provenance", "world", "Node provenance: user, role, or world")
	encodeCmd.MarkFlagRequired("topic")
	encodeCmd.MarkFlagRequired("title")
	encodeCmd.MarkFlagRequired("content")

	listCmd.Flags().StringVar(&listTopic, "topic", "", "Filter by topic")

	projectCmd.Flags().StringVar(&projectTopic, "topic", "", "Topic name")
	projectCmd.Flags().StringVar(&projectID, "id", "", "Node id")
	projectCmd.MarkFlagRequired("topic")
	projectCmd.MarkFlagRequired("id")
}

func runEncode(cmd *cobra.Command, args []string) error {
	_, _, _, eng, err := setup()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	node, merged, err := eng.Encode(ctx, engine.EncodeRequest{
		Topic:      encodeTopic,
		Title:      encodeTitle,
		Content:    encodeContent,
		Abstract:   encodeAbstract,
		Overview:   encodeOverview,
		Provenance: store.Provenance(encodeProvenance),
	})
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}

	if merged {
		fmt.Printf("Merged into existing node: %s/%s - %s\n", node.Topic, node.ID, node.Title)
		return nil
	}
	fmt.Printf("Encoded: %s/%s - %s\n", node.Topic, node.ID, node.Title)
	return nil
}

// --- list command ---

var listTopic string

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List nodes with their current scores",
	RunE:  runList,
}

func runList(cmd *cobra.Command, args []string) error {
	_, st, _, eng, err := setup()
	if err != nil {
		return err
	}

	var nodes []*store.Node
	if listTopic != "" {
		nodes, err = st.ListTopic(listTopic)
	} else {
		nodes, err = st.ListAll()
	}
	if err != nil {
		return fmt.Errorf("list nodes: %w", err)
	}

	fmt.Printf("Found %d nodes.\n", len(nodes))
	for _, n := range nodes {
		fmt.Printf("[%s] %s/%s - %s (Score: %.2f)\n", n.Tier, n.Topic, n.ID, n.Title, eng.Score(n))
	}
	return nil
}

// --- project command ---

var (
	projectTopic string
	projectID    string
)

var projectCmd = &cobra.Command{
	Use:   "project",
	Short: "Project the context mask for a node",
	RunE:  runProject,
}

func runProject(cmd *cobra.Command, args []string) error {
	_, _, _, eng, err := setup()
	if err != nil {
		return err
	}

	proj, err := eng.ProjectContext(projectTopic, projectID)
	if err != nil {
		return fmt.Errorf("project: %w", err)
	}
	fmt.Println(proj.Render())
	return nil
}
