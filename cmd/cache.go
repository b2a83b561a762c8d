// SPDX-FileCopyrightText: 2025 Deutsche Telekom IT GmbH
//
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/telekom/tracelens/internal/logger"
	"github.com/telekom/tracelens/pkg/cache"
)

// NewCmdCache creates a new cache command
func NewCmdCache() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the enrichment cache",
	}
	cmd.AddCommand(newCmdCachePath())
	cmd.AddCommand(newCmdCacheClear())
	return cmd
}

func newCmdCachePath() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the cache file location",
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, err := cachePath()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
}

func newCmdCacheClear() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Drop all cached enrichment data",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := logger.NewContextWithLogger(cmd.Context())
			defer cancel()

			path, err := cachePath()
			if err != nil {
				return err
			}
			if err = cache.New(ctx, path).Clear(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Cleared enrichment cache at", path)
			return nil
		},
	}
}

// cachePath resolves the configured cache location, falling back to
// the default under the user's home directory.
func cachePath() (string, error) {
	if path := viper.GetString("cachePath"); path != "" {
		return path, nil
	}
	return cache.DefaultPath()
}
