// SPDX-FileCopyrightText: 2025 Deutsche Telekom IT GmbH
//
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/telekom/tracelens/internal/logger"
	"github.com/telekom/tracelens/pkg/tracelens"
	"github.com/telekom/tracelens/pkg/tracelens/metrics"
)

// startupConfig is the full configuration read from file, environment
// and flags. Telemetry stays a command concern and is not passed down.
type startupConfig struct {
	tracelens.Config `mapstructure:",squash"`
	Telemetry        metrics.Config `yaml:"telemetry" mapstructure:"telemetry"`
}

// NewCmdTrace creates a new trace command
func NewCmdTrace(version string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trace <target>",
		Short: "Trace the network path to a target",
		Long: "Trace sweeps the TTL range towards the target, enriches every responding hop\n" +
			"with reverse DNS, origin AS and geolocation data, and analyzes the path for\n" +
			"filtering, latency jumps, jitter and spikes.",
		Example: "  tracelens trace example.com\n" +
			"  tracelens trace -P tcp --port 443 example.com\n" +
			"  tracelens trace --json example.com > trace.json",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(cmd, args[0], version)
		},
	}

	flags := cmd.Flags()
	flags.StringP("protocol", "P", "icmp", "probe protocol, one of icmp, tcp or udp")
	flags.Uint16("port", 0, "destination port for tcp and udp probes")
	flags.IntP("max-hops", "m", 30, "maximum number of hops to probe")
	flags.IntP("probes", "q", 3, "number of probes sent per hop")
	flags.Float64P("timeout", "w", 2, "probe timeout in seconds")
	flags.Int("max-timeouts", 0, "stop after this many consecutive silent hops, 0 keeps probing")
	flags.String("tcp-reached", "", "tcp replies counted as reached, one of any or synack")
	flags.Bool("dns", true, "enrich hops with reverse dns and origin as data")
	flags.Bool("geo", true, "enrich hops with geolocation data")
	flags.Bool("no-cache", false, "do not read or persist the enrichment cache")
	flags.Bool("json", false, "print the result as json instead of a table")
	flags.StringP("output", "o", "", "write the result as json to the given file")
	flags.String("metrics-file", "", "write the collected metrics to the given file in prometheus text format")

	_ = viper.BindPFlag("protocol", flags.Lookup("protocol"))
	_ = viper.BindPFlag("port", flags.Lookup("port"))
	_ = viper.BindPFlag("maxHops", flags.Lookup("max-hops"))
	_ = viper.BindPFlag("probesPerHop", flags.Lookup("probes"))
	_ = viper.BindPFlag("maxTimeouts", flags.Lookup("max-timeouts"))
	_ = viper.BindPFlag("tcpReached", flags.Lookup("tcp-reached"))
	_ = viper.BindPFlag("enableDns", flags.Lookup("dns"))
	_ = viper.BindPFlag("enableGeo", flags.Lookup("geo"))

	return cmd
}

func runTrace(cmd *cobra.Command, target, version string) error {
	ctx, cancel := logger.NewContextWithLogger(cmd.Context())
	defer cancel()
	log := logger.FromContext(ctx)

	cfg, err := parseConfig(cmd, target, version)
	if err != nil {
		return err
	}

	provider := metrics.New(cfg.Telemetry)
	if cfg.Telemetry.Enabled {
		if err = cfg.Telemetry.Validate(ctx); err != nil {
			return err
		}
		if err = provider.InitTracing(ctx); err != nil {
			return fmt.Errorf("failed to initialize tracing: %w", err)
		}
		defer func() {
			if sErr := provider.Shutdown(context.Background()); sErr != nil {
				log.Error("Failed to shutdown tracing", "error", sErr)
			}
		}()
	}

	if version != "" {
		tracelens.Version = version
	}
	tracer, err := tracelens.New(ctx, &cfg.Config)
	if err != nil {
		return err
	}

	registry := provider.GetRegistry()
	if err = metrics.RegisterBuildInfo(registry, tracelens.Version); err != nil {
		return fmt.Errorf("failed to register build info: %w", err)
	}
	registry.MustRegister(tracer.GetMetricCollectors()...)

	result, err := tracer.Run(ctx)
	if err != nil {
		var privErr tracelens.ErrPrivilege
		if errors.As(err, &privErr) {
			log.ErrorContext(ctx, "Raw socket access denied",
				"hint", fmt.Sprintf("sudo setcap cap_net_raw+ep %s", os.Args[0]))
		}
		return err
	}

	flags := cmd.Flags()
	if asJSON, _ := flags.GetBool("json"); asJSON {
		if err = writeJSON(cmd.OutOrStdout(), result); err != nil {
			return err
		}
	} else {
		renderTable(cmd.OutOrStdout(), result)
	}

	if path, _ := flags.GetString("output"); path != "" {
		if err = writeResultFile(path, result); err != nil {
			return err
		}
		log.InfoContext(ctx, "Wrote trace result", "path", path)
	}
	if path, _ := flags.GetString("metrics-file"); path != "" {
		if err = writeMetricsFile(path, registry); err != nil {
			return err
		}
		log.InfoContext(ctx, "Wrote metrics", "path", path)
	}
	return nil
}

// parseConfig layers the configuration sources. Defaults are overlaid
// by the config file and environment, explicit flags win.
func parseConfig(cmd *cobra.Command, target, version string) (*startupConfig, error) {
	cfg := &startupConfig{Config: *tracelens.DefaultConfig()}
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}
	cfg.Target = target
	cfg.Telemetry.ServiceVersion = version

	flags := cmd.Flags()
	if flags.Changed("timeout") {
		secs, err := flags.GetFloat64("timeout")
		if err != nil {
			return nil, err
		}
		cfg.Timeout = time.Duration(secs * float64(time.Second))
	}
	if noCache, err := flags.GetBool("no-cache"); err == nil && noCache {
		cfg.UseCache = false
	}
	return cfg, nil
}
