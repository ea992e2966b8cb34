// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/sigil-dev/chunkstore/internal/knowledge"
	"github.com/sigil-dev/chunkstore/internal/store"
	chunkerr "github.com/sigil-dev/chunkstore/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newDocumentsCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "documents",
		Aliases: []string{"ls"},
		Short:   "List stored documents, oldest first",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			asJSON, _ := cmd.Flags().GetBool("json")

			app, err := openApp(cmd.Context(), v)
			if err != nil {
				return err
			}
			defer func() { _ = app.Close() }()

			docs := app.Store.Documents()
			out := cmd.OutOrStdout()

			if asJSON {
				return writeJSON(out, documentSummaries(docs))
			}
			if len(docs) == 0 {
				_, err := fmt.Fprintln(out, "No documents stored.")
				return err
			}
			_, err = fmt.Fprintln(out, renderDocuments(docs))
			return err
		},
	}

	cmd.Flags().Bool("json", false, "print documents as JSON")

	return cmd
}

type documentSummary struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	CreatedAt   time.Time         `json:"created_at"`
	TotalTokens int               `json:"total_tokens"`
	Chunks      int               `json:"chunks"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	Preview     string            `json:"preview"`
}

func documentSummaries(docs []store.Document) []documentSummary {
	out := make([]documentSummary, len(docs))
	for i, d := range docs {
		out[i] = documentSummary{
			ID:          d.ID,
			Name:        d.Name,
			CreatedAt:   d.CreatedAt,
			TotalTokens: d.TotalTokens,
			Chunks:      len(d.ChunkIDs),
			Metadata:    d.Metadata,
			Preview:     d.Preview,
		}
	}
	return out
}

func renderDocuments(docs []store.Document) string {
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(dimStyle).
		Headers("ID", "NAME", "TOKENS", "CHUNKS", "CREATED").
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return titleStyle.Padding(0, 1)
			}
			return lipgloss.NewStyle().Padding(0, 1)
		})

	for _, d := range docs {
		t.Row(
			d.ID,
			d.Name,
			strconv.Itoa(d.TotalTokens),
			strconv.Itoa(len(d.ChunkIDs)),
			d.CreatedAt.Local().Format(time.DateTime),
		)
	}
	return t.String()
}

func newStatsCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show token budget usage and subsystem health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			asJSON, _ := cmd.Flags().GetBool("json")

			app, err := openApp(cmd.Context(), v)
			if err != nil {
				return err
			}
			defer func() { _ = app.Close() }()

			stats := app.Store.Stats()
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), stats)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), renderStats(stats))
			return err
		},
	}

	cmd.Flags().Bool("json", false, "print stats as JSON")

	return cmd
}

func renderStats(s knowledge.Stats) string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("chunkstore") + "\n\n")
	row := func(label, value string) {
		fmt.Fprintf(&b, "%-14s %s\n", label, value)
	}

	row("documents", strconv.Itoa(s.Documents))
	row("chunks", strconv.Itoa(s.Chunks))
	row("tokens", fmt.Sprintf("%d / %d (%.1f%%)", s.CurrentTokens, s.MaxTokens, s.UsagePercent))
	row("encryption", onOff(s.EncryptionEnabled, "on", "off"))
	row("tokenizer", onOff(s.TokenizerDegraded, warnStyle.Render("estimated"), "exact"))

	switch {
	case !s.EmbeddingAvailable && s.Embedding == nil:
		row("embedding", warnStyle.Render("disabled"))
	case s.Embedding != nil && !s.Embedding.Available:
		detail := fmt.Sprintf("%s cooling down after %s (%d timeouts, %d upstream errors)",
			s.Embedding.Gateway, s.Embedding.LastFailure, s.Embedding.Timeouts, s.Embedding.UpstreamErrors)
		row("embedding", errorStyle.Render(detail))
	case s.Embedding != nil:
		row("embedding", successStyle.Render(s.Embedding.Gateway+" available"))
	default:
		row("embedding", successStyle.Render("available"))
	}

	return boxStyle.Render(strings.TrimRight(b.String(), "\n"))
}

func onOff(cond bool, yes, no string) string {
	if cond {
		return yes
	}
	return no
}

func newClearCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every stored document",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if yes, _ := cmd.Flags().GetBool("yes"); !yes {
				return chunkerr.New(chunkerr.CodeCLIInputInvalid, "refusing to clear without --yes")
			}

			app, err := openApp(cmd.Context(), v)
			if err != nil {
				return err
			}
			defer func() { _ = app.Close() }()

			removed := len(app.Store.Documents())
			if err := app.Store.ClearAll(cmd.Context()); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d documents.\n", removed)
			return err
		},
	}

	cmd.Flags().Bool("yes", false, "confirm deletion")

	return cmd
}
