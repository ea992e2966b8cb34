// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"errors"
	"log/slog"
	"slices"

	"github.com/sigil-dev/chunkstore/internal/config"
	"github.com/sigil-dev/chunkstore/internal/secrets"
	chunkerr "github.com/sigil-dev/chunkstore/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// secretStoreFactory creates the secrets.Store used for keyring:// config
// values and the secret subcommands. Tests substitute a mock.
var secretStoreFactory = func() secrets.Store {
	return secrets.NewKeyringStore()
}

// annotationNoBootstrap marks commands that must not write the default config.
const annotationNoBootstrap = "chunkstore/no-bootstrap"

// NewRootCmd creates the root chunkstore command with all subcommands
// registered. Each root owns its own viper instance.
func NewRootCmd() *cobra.Command {
	v := viper.New()

	root := &cobra.Command{
		Use:           "chunkstore",
		Short:         "chunkstore: token-bounded semantic document store",
		Long:          "chunkstore splits documents into overlapping token windows, keeps them under a global token budget, and serves similarity search over the stored chunks.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return initViper(cmd, v)
		},
	}

	root.PersistentFlags().StringP("config", "c", "", "path to config file")
	root.PersistentFlags().String("data-dir", "", "path to data directory")
	root.PersistentFlags().BoolP("verbose", "v", false, "enable debug logging")

	root.AddCommand(
		newInitCmd(),
		newAddCmd(v),
		newSearchCmd(v),
		newContextCmd(v),
		newDocumentsCmd(v),
		newStatsCmd(v),
		newClearCmd(v),
		newServeCmd(v),
		newSecretCmd(),
		newDoctorCmd(v),
		newVersionCmd(),
	)

	return root
}

// initViper applies defaults, env bindings, the config file and flag bindings
// so the usual precedence (flag > env > file > defaults) holds, then resolves
// keyring:// references.
func initViper(cmd *cobra.Command, v *viper.Viper) error {
	config.SetDefaults(v)
	config.SetupEnv(v)

	if cfgFile, _ := cmd.Flags().GetString("config"); cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return chunkerr.Errorf(chunkerr.CodeConfigLoadReadFailure, "reading config file: %w", err)
		}
		config.WarnInsecurePermissions(cfgFile)
	} else {
		// SetConfigType is left unset so viper does not match the
		// ./chunkstore binary as an extensionless config file.
		v.SetConfigName("chunkstore")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/chunkstore")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return chunkerr.Errorf(chunkerr.CodeConfigLoadReadFailure, "reading config: %w", err)
			}
			if _, noBootstrap := cmd.Annotations[annotationNoBootstrap]; !noBootstrap {
				if path := config.BootstrapConfig(); path != "" {
					v.SetConfigFile(path)
					if err := v.ReadInConfig(); err != nil {
						return chunkerr.Errorf(chunkerr.CodeConfigLoadReadFailure, "reading bootstrapped config: %w", err)
					}
				}
			}
		}
	}

	if err := v.BindPFlag("data_dir", cmd.Root().PersistentFlags().Lookup("data-dir")); err != nil {
		return chunkerr.Errorf(chunkerr.CodeCLISetupFailure, "binding data-dir flag: %w", err)
	}
	if err := v.BindPFlag("verbose", cmd.Root().PersistentFlags().Lookup("verbose")); err != nil {
		return chunkerr.Errorf(chunkerr.CodeCLISetupFailure, "binding verbose flag: %w", err)
	}

	setupLogging(cmd, v.GetBool("verbose"))

	if hasKeyringRefs(v) {
		if err := secrets.ResolveViperSecrets(v, secretStoreFactory()); err != nil {
			slog.Warn("unresolved keyring references in config", "error", err)
		}
	}

	return nil
}

func setupLogging(cmd *cobra.Command, verbose bool) {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})))
}

func hasKeyringRefs(v *viper.Viper) bool {
	return slices.ContainsFunc(v.AllKeys(), func(key string) bool {
		return secrets.IsKeyringURI(v.GetString(key))
	})
}
