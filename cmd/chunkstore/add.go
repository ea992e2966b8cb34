// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"fmt"
	"io"
	"maps"
	"os"
	"path/filepath"
	"strings"

	"github.com/sigil-dev/chunkstore/internal/knowledge"
	chunkerr "github.com/sigil-dev/chunkstore/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

func newAddCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add <file>...",
		Short: "Store text documents",
		Long: `Read each file as UTF-8 text and store it. Use "-" to read from stdin.

Identical content under the same name is stored once. When the token budget is
full the oldest documents are evicted to make room.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAdd(cmd, v, args)
		},
	}

	cmd.Flags().String("name", "", "document name (single file only; defaults to the file name)")
	cmd.Flags().StringArray("meta", nil, "metadata entry as key=value (repeatable)")
	cmd.Flags().String("meta-file", "", "YAML file with a flat map of metadata")

	return cmd
}

func runAdd(cmd *cobra.Command, v *viper.Viper, args []string) error {
	name, _ := cmd.Flags().GetString("name")
	if name != "" && len(args) > 1 {
		return chunkerr.New(chunkerr.CodeCLIInputInvalid, "--name can only be used with a single file")
	}

	metaFile, _ := cmd.Flags().GetString("meta-file")
	pairs, _ := cmd.Flags().GetStringArray("meta")
	metadata, err := buildMetadata(metaFile, pairs)
	if err != nil {
		return err
	}

	app, err := openApp(cmd.Context(), v)
	if err != nil {
		return err
	}
	defer func() { _ = app.Close() }()

	out := cmd.OutOrStdout()
	for _, path := range args {
		content, err := readDocument(cmd.InOrStdin(), path)
		if err != nil {
			return err
		}

		docName := name
		if docName == "" {
			docName = documentName(path)
		}

		res, err := app.Store.AddDocument(cmd.Context(), content, docName, metadata)
		if err != nil {
			return chunkerr.With(err, chunkerr.Field("file", path))
		}
		printAddResult(out, docName, res)
	}

	return nil
}

func printAddResult(w io.Writer, name string, res knowledge.AddResult) {
	if res.Status == knowledge.StatusDuplicate {
		_, _ = fmt.Fprintf(w, "%s already stored as %s\n", name, res.DocumentID)
		return
	}

	_, _ = fmt.Fprintf(w, "stored %s as %s (%d chunks, %d tokens)\n", name, res.DocumentID, res.ChunksCreated, res.TokensAdded)
	for _, id := range res.Evicted {
		_, _ = fmt.Fprintf(w, "  evicted %s\n", id)
	}
}

func readDocument(stdin io.Reader, path string) (string, error) {
	if path == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", chunkerr.Errorf(chunkerr.CodeCLIInputInvalid, "reading stdin: %w", err)
		}
		return string(data), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", chunkerr.Errorf(chunkerr.CodeCLIInputInvalid, "reading %s: %w", path, err)
	}
	return string(data), nil
}

func documentName(path string) string {
	if path == "-" {
		return "stdin"
	}
	return filepath.Base(path)
}

// buildMetadata merges the YAML metadata file with key=value flags. Flags win.
func buildMetadata(metaFile string, pairs []string) (map[string]string, error) {
	metadata := map[string]string{}

	if metaFile != "" {
		data, err := os.ReadFile(metaFile)
		if err != nil {
			return nil, chunkerr.Errorf(chunkerr.CodeCLIInputInvalid, "reading metadata file: %w", err)
		}
		var fromFile map[string]string
		if err := yaml.Unmarshal(data, &fromFile); err != nil {
			return nil, chunkerr.Errorf(chunkerr.CodeCLIInputInvalid, "parsing metadata file %s: %w", metaFile, err)
		}
		maps.Copy(metadata, fromFile)
	}

	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, chunkerr.Errorf(chunkerr.CodeCLIInputInvalid, "invalid --meta %q: expected key=value", pair)
		}
		metadata[key] = value
	}

	if len(metadata) == 0 {
		return nil, nil
	}
	return metadata, nil
}
