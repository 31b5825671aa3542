package cmd

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/cobra"

	"github.com/rafaeljc/mimir/internal/cache"
	"github.com/rafaeljc/mimir/internal/config"
	"github.com/rafaeljc/mimir/internal/source"
)

type pushOptions struct {
	redisURL string
	key      string
	channel  string
	dryRun   bool
}

func newPushCmd(root *rootOptions) *cobra.Command {
	opts := &pushOptions{}

	cmd := &cobra.Command{
		Use:   "push FILE",
		Short: "Validate a rule document and publish it to Redis",
		Long: `push compiles FILE, stores it under the document key and announces it on
the update channel so running mimir-data instances reload it.

Connection settings come from the MIMIR_REDIS_* environment variables unless
--redis-url is given.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log := root.logger(cmd)

			data, bundle, err := loadFile(log, args[0])
			if err != nil {
				return err
			}
			if opts.dryRun {
				fmt.Fprintf(cmd.OutOrStdout(), "would publish %s to %s (fingerprint %s)\n", args[0], opts.key, bundle.Fingerprint)
				return nil
			}

			var redisCfg config.RedisConfig
			if err := envconfig.Process(config.EnvPrefix+"_REDIS", &redisCfg); err != nil {
				return fmt.Errorf("failed to read redis settings: %w", err)
			}
			if opts.redisURL != "" {
				redisCfg.URL = opts.redisURL
			}

			client, err := cache.NewRedisClient(cmd.Context(), &redisCfg)
			if err != nil {
				return err
			}
			defer client.Close()

			if err := source.Publish(cmd.Context(), client, opts.key, opts.channel, data, bundle.Fingerprint); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "published %s to %s (fingerprint %s)\n", args[0], opts.key, bundle.Fingerprint)
			return nil
		},
	}

	var defaults config.SourceConfig
	_ = envconfig.Process(config.EnvPrefix+"_SOURCE", &defaults)

	cmd.Flags().StringVar(&opts.redisURL, "redis-url", "", "redis URL, e.g. redis://localhost:6379/0")
	cmd.Flags().StringVar(&opts.key, "key", defaults.RedisKey, "redis key holding the document")
	cmd.Flags().StringVar(&opts.channel, "channel", defaults.RedisChannel, "pub/sub channel announcing updates")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "validate only, do not publish")

	return cmd
}
