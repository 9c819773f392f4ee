package main

import (
	"context"
	stderrors "errors"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/vango-dev/replay/internal/config"
	"github.com/vango-dev/replay/internal/errors"
	"github.com/vango-dev/replay/pkg/journal"
)

func journalCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Inspect persisted replay journals",
	}
	cmd.AddCommand(journalShowCmd(flags), journalCleanupCmd(flags))
	return cmd
}

func journalShowCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "show <page-id>",
		Short: "Print the journal of a page as NDJSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := configuredStore(flags)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			entries, err := store.Load(ctx, args[0])
			if stderrors.Is(err, journal.ErrNotFound) {
				return errors.New("E241").WithDetail("No journal for page " + args[0])
			}
			if err != nil {
				return errors.New("E240").Wrap(err)
			}
			return journal.Encode(os.Stdout, entries)
		},
	}
}

func journalCleanupCmd(flags *globalFlags) *cobra.Command {
	var maxAge time.Duration

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete journals older than the retention",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			store, err := storeFor(cfg)
			if err != nil {
				return err
			}
			if maxAge <= 0 {
				maxAge = cfg.Journal.MaxAgeDuration()
			}
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
			defer cancel()
			if err := store.Cleanup(ctx, maxAge); err != nil {
				return errors.New("E240").Wrap(err)
			}
			success("Removed %s journals older than %s", cfg.Journal.Sink, maxAge)
			return nil
		},
	}
	cmd.Flags().DurationVar(&maxAge, "max-age", 0, "Retention (default from config)")
	return cmd
}

func configuredStore(flags *globalFlags) (journal.Store, error) {
	cfg, err := loadConfig(flags)
	if err != nil {
		return nil, err
	}
	return storeFor(cfg)
}

// storeFor opens the persistent store, refusing sinks that keep nothing.
func storeFor(cfg *config.Config) (journal.Store, error) {
	if s := cfg.Journal.Sink; s == config.SinkNone || s == config.SinkMemory {
		return nil, errors.New("E206").
			WithDetail("The " + s + " journal sink keeps nothing between runs").
			WithSuggestion("Configure journal.sink as disk or s3")
	}
	return openJournal(cfg.Journal)
}
