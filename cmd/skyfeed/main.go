package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"skyfeed/internal/cmdlog"
	"skyfeed/internal/config"
	"skyfeed/internal/jobs"
	"skyfeed/internal/logging"
	"skyfeed/internal/model"
	"skyfeed/internal/theme"
	"skyfeed/internal/timeline"
	"skyfeed/internal/util"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var cfgPath string
	var cfg config.Config

	root := &cobra.Command{
		Use:           "skyfeed",
		Short:         "Timeline ranking service",
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "init" {
				return nil
			}
			var err error
			if cfg, err = config.Load(cfgPath); err != nil {
				return err
			}
			logging.Init(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format, Caller: cfg.Logging.Caller, Output: os.Stderr})
			return nil
		},
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", "./skyfeed.yaml", "config path")

	cfgFn := func() config.Config { return cfg }
	root.AddCommand(
		newInitCmd(),
		newServeCmd(cfgFn),
		newRankCmd(cfgFn),
		newFollowingCmd(cfgFn),
		newTrendingCmd(cfgFn),
		newHotnessCmd(cfgFn),
		newSeedCmd(cfgFn),
	)
	return root
}

func newInitCmd() *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		RunE: cmdlog.Wrap("init", func(cmd *cobra.Command, _ []string) error {
			if err := config.Save(path, config.Default()); err != nil {
				return err
			}
			abs, _ := filepath.Abs(path)
			theme.PrintBanner(cmd.OutOrStdout())
			fmt.Fprintln(cmd.OutOrStdout(), "Config written to:", abs)
			return nil
		}),
	}
	cmd.Flags().StringVar(&path, "path", "./skyfeed.yaml", "path to write config")
	return cmd
}

func newServeCmd(cfg func() config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API with background hotness maintenance",
		RunE: cmdlog.Wrap("serve", func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			a, err := newApp(ctx, cfg())
			if err != nil {
				return err
			}
			defer a.Close()
			theme.PrintBanner(cmd.ErrOrStderr())
			err = a.supervise().Serve(ctx)
			if ctx.Err() != nil {
				return nil
			}
			return err
		}),
	}
}

type feedFlags struct {
	user   string
	cursor string
	limit  int
	asJSON bool
}

func (f *feedFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.user, "user", "", "viewer user id")
	cmd.Flags().StringVar(&f.cursor, "cursor", "", "continuation token from a previous page")
	cmd.Flags().IntVar(&f.limit, "limit", 0, "page size (0 = configured default)")
	cmd.Flags().BoolVar(&f.asJSON, "json", false, "print JSON")
	_ = cmd.MarkFlagRequired("user")
}

// withApp opens the app for a one-shot command.
func withApp(ctx context.Context, cfg config.Config, f func(ctx context.Context, a *app) error) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	return f(ctx, a)
}

func newRankCmd(cfg func() config.Config) *cobra.Command {
	var ff feedFlags
	cmd := &cobra.Command{
		Use:   "rank",
		Short: "Print the next page of a user's For You feed",
		RunE: cmdlog.Wrap("rank", func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), cfg(), func(ctx context.Context, a *app) error {
				p, err := a.feeds.ForYou(ctx, ff.user, ff.cursor, ff.limit)
				if err != nil {
					return err
				}
				return printPage(cmd.OutOrStdout(), p, ff.asJSON)
			})
		}),
	}
	ff.register(cmd)
	return cmd
}

func newFollowingCmd(cfg func() config.Config) *cobra.Command {
	var ff feedFlags
	cmd := &cobra.Command{
		Use:   "following",
		Short: "Print a page of a user's chronological Following feed",
		RunE: cmdlog.Wrap("following", func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), cfg(), func(ctx context.Context, a *app) error {
				p, err := a.feeds.Following(ctx, ff.user, ff.cursor, ff.limit)
				if err != nil {
					return err
				}
				return printPage(cmd.OutOrStdout(), p, ff.asJSON)
			})
		}),
	}
	ff.register(cmd)
	return cmd
}

func newTrendingCmd(cfg func() config.Config) *cobra.Command {
	var (
		category string
		limit    int
		asJSON   bool
	)
	cmd := &cobra.Command{
		Use:   "trending",
		Short: "Print the hottest tweets, optionally in one category",
		RunE: cmdlog.Wrap("trending", func(cmd *cobra.Command, _ []string) error {
			c, err := model.ParseCategory(category)
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), cfg(), func(ctx context.Context, a *app) error {
				p, err := a.feeds.Trending(ctx, c, limit)
				if err != nil {
					return err
				}
				return printPage(cmd.OutOrStdout(), p, asJSON)
			})
		}),
	}
	cmd.Flags().StringVar(&category, "category", string(model.CategoryAll), "category or \"all\"")
	cmd.Flags().IntVar(&limit, "limit", 0, "number of tweets (0 = configured default)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func newHotnessCmd(cfg func() config.Config) *cobra.Command {
	cmd := &cobra.Command{Use: "hotness", Short: "Hotness maintenance"}
	cmd.AddCommand(&cobra.Command{
		Use:   "sweep",
		Short: "Recompute every live hotness score and expire stale ones",
		RunE: cmdlog.Wrap("hotness_sweep", func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), cfg(), func(ctx context.Context, a *app) error {
				return jobs.RunHotnessSweepOnce(ctx, a.recomputer)
			})
		}),
	})
	return cmd
}

func newSeedCmd(cfg func() config.Config) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load authors, follows, interests and tweets from a YAML fixture",
		RunE: cmdlog.Wrap("seed", func(cmd *cobra.Command, _ []string) error {
			fx, err := loadFixture(file)
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), cfg(), func(ctx context.Context, a *app) error {
				n, err := applyFixture(ctx, a.db, fx, time.Now().UTC())
				if err != nil {
					return err
				}
				if _, err := a.recomputer.Sweep(ctx); err != nil {
					return fmt.Errorf("initial hotness sweep: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "seeded %d tweets\n", n)
				return nil
			})
		}),
	}
	cmd.Flags().StringVar(&file, "file", "", "fixture path")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func printPage(w io.Writer, p timeline.Page, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{"data": p.Items, "next_cursor": p.NextCursor, "has_more": p.HasMore})
	}
	for i, it := range p.Items {
		handle := it.Author.Handle
		if handle == "" {
			handle = it.Author.ID
		}
		fmt.Fprintf(w, "%2d. %-12s @%-14s score=%8.2f %-14s %s\n", i+1, it.Tweet.ID, handle, it.Score, it.Source, util.Truncate(it.Tweet.Content, 60))
	}
	if p.HasMore {
		fmt.Fprintf(w, "next cursor: %s\n", p.NextCursor)
	}
	return nil
}
