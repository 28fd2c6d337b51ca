package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/weave-logic-ai/weft/internal/memory"
	"github.com/weave-logic-ai/weft/internal/memory/embeddings"
	"github.com/weave-logic-ai/weft/internal/memory/vectorstore"
	"github.com/weave-logic-ai/weft/pkg/models"
)

const memoryVectorDims = 256

func memoryDir(agentID string) string {
	return filepath.Join(".", "data", "agents", agentID, "memory")
}

func openManager(agentID string) (*memory.Manager, error) {
	dir := memoryDir(agentID)
	store, err := vectorstore.New(agentID, filepath.Join(dir, "vectors"))
	if err != nil {
		return nil, fmt.Errorf("weft: open vector store: %w", err)
	}
	embedder := embeddings.NewHashEmbedder(memoryVectorDims)
	return memory.NewManager(dir, embedder, store, memory.Config{}, nil)
}

// buildMemoryCmd creates the "memory" command group.
func buildMemoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "memory",
		Short: "Inspect and edit an agent's stored memory entries",
	}
	cmd.AddCommand(
		buildMemoryShowCmd(),
		buildMemoryHistoryCmd(),
		buildMemorySearchCmd(),
		buildMemoryExportCmd(),
		buildMemoryImportCmd(),
	)
	return cmd
}

func buildMemoryShowCmd() *cobra.Command {
	var agentID string
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the number of entries still waiting for vector indexing",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := openManager(agentID)
			if err != nil {
				return err
			}
			defer m.Close()
			fmt.Fprintf(cmd.OutOrStdout(), "pending: %d\n", m.PendingCount())
			return nil
		},
	}
	cmd.Flags().StringVar(&agentID, "agent", "default", "agent id")
	return cmd
}

func buildMemoryHistoryCmd() *cobra.Command {
	var agentID string
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print every stored memory entry's indexing status",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := openManager(agentID)
			if err != nil {
				return err
			}
			defer m.Close()
			results := m.SearchKeyword("", 0)
			for _, r := range results {
				status, _ := m.Status(r.Entry.ID)
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", r.Entry.ID, status, r.Entry.Content)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&agentID, "agent", "default", "agent id")
	return cmd
}

func buildMemorySearchCmd() *cobra.Command {
	var agentID string
	var vector bool
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search stored memory (keyword by default, --vector for the ANN layer)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := openManager(agentID)
			if err != nil {
				return err
			}
			defer m.Close()
			if vector {
				results, err := m.SearchVector(cmd.Context(), args[0], 10)
				if err != nil {
					return err
				}
				return printJSON(cmd, results)
			}
			return printJSON(cmd, m.SearchKeyword(args[0], 10))
		},
	}
	cmd.Flags().StringVar(&agentID, "agent", "default", "agent id")
	cmd.Flags().BoolVar(&vector, "vector", false, "search the vector (ANN) layer instead of keyword")
	return cmd
}

func buildMemoryExportCmd() *cobra.Command {
	var agentID string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Dump all memory entries as newline-delimited JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := openManager(agentID)
			if err != nil {
				return err
			}
			defer m.Close()
			enc := json.NewEncoder(cmd.OutOrStdout())
			for _, r := range m.SearchKeyword("", 0) {
				if err := enc.Encode(r.Entry); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&agentID, "agent", "default", "agent id")
	return cmd
}

func buildMemoryImportCmd() *cobra.Command {
	var agentID string
	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Load memory entries from a newline-delimited JSON file produced by export",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := openManager(agentID)
			if err != nil {
				return err
			}
			defer m.Close()

			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("weft: open %s: %w", args[0], err)
			}
			defer f.Close()

			scanner := bufio.NewScanner(f)
			count := 0
			for scanner.Scan() {
				line := scanner.Bytes()
				if len(line) == 0 {
					continue
				}
				var entry models.MemoryEntry
				if err := json.Unmarshal(line, &entry); err != nil {
					return fmt.Errorf("weft: parse entry %d: %w", count+1, err)
				}
				if entry.ID == "" {
					entry.ID = uuid.NewString()
				}
				if entry.AgentID == "" {
					entry.AgentID = agentID
				}
				if entry.CreatedAt.IsZero() {
					entry.CreatedAt = time.Now()
				}
				if err := m.Store(cmd.Context(), entry); err != nil {
					return err
				}
				count++
			}
			if err := scanner.Err(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d entries\n", count)
			return nil
		},
	}
	cmd.Flags().StringVar(&agentID, "agent", "default", "agent id")
	return cmd
}
