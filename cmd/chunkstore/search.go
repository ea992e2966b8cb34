// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"fmt"
	"strings"

	"github.com/sigil-dev/chunkstore/internal/retrieval"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// snippetRunes bounds the chunk text printed per search result.
const snippetRunes = 200

func newSearchCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Find the chunks most similar to a query",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd, v, strings.Join(args, " "))
		},
	}

	cmd.Flags().IntP("k", "k", 5, "number of results")
	cmd.Flags().StringSlice("document", nil, "restrict results to these document ids")
	cmd.Flags().Bool("json", false, "print results as JSON")
	cmd.Flags().Bool("full", false, "print whole chunks instead of snippets")

	return cmd
}

func runSearch(cmd *cobra.Command, v *viper.Viper, query string) error {
	k, _ := cmd.Flags().GetInt("k")
	docIDs, _ := cmd.Flags().GetStringSlice("document")
	asJSON, _ := cmd.Flags().GetBool("json")
	full, _ := cmd.Flags().GetBool("full")

	app, err := openApp(cmd.Context(), v)
	if err != nil {
		return err
	}
	defer func() { _ = app.Close() }()

	results, err := app.Engine.Search(cmd.Context(), query, k, retrieval.Scope{DocumentIDs: docIDs})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if asJSON {
		return writeJSON(out, results)
	}

	if len(results) == 0 {
		_, err := fmt.Fprintln(out, retrieval.NoContextFound)
		return err
	}

	for i, r := range results {
		name := r.DocumentName
		if name == "" {
			name = r.DocumentID
		}
		header := fmt.Sprintf("%d. %s (chunk %d, distance %.4f)", i+1, name, r.ChunkIndex, r.Distance)
		text := r.Content
		if !full {
			text = snippet(text, snippetRunes)
		}
		if _, err := fmt.Fprintf(out, "%s\n   %s\n", titleStyle.Render(header), text); err != nil {
			return err
		}
	}
	return nil
}

func newContextCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "context <query>",
		Short: "Print source-attributed context for a query",
		Long:  "Print the best matching chunks, each prefixed with its source document and chunk index, ready to paste into a prompt.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			maxChunks, _ := cmd.Flags().GetInt("max-chunks")

			app, err := openApp(cmd.Context(), v)
			if err != nil {
				return err
			}
			defer func() { _ = app.Close() }()

			text, err := app.Engine.Context(cmd.Context(), strings.Join(args, " "), maxChunks)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), text)
			return err
		},
	}

	cmd.Flags().Int("max-chunks", 5, "maximum number of chunks to include")

	return cmd
}

// snippet collapses whitespace and cuts text to at most n runes.
func snippet(text string, n int) string {
	flat := strings.Join(strings.Fields(text), " ")
	runes := []rune(flat)
	if len(runes) <= n {
		return flat
	}
	return string(runes[:n]) + "…"
}
