package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/animus-labs/flowq/internal/app"
	"github.com/animus-labs/flowq/internal/broker"
	"github.com/animus-labs/flowq/internal/collection"
	"github.com/animus-labs/flowq/internal/flow"
	"github.com/animus-labs/flowq/internal/inspect"
	"github.com/animus-labs/flowq/internal/platform/idgen"
	"github.com/animus-labs/flowq/internal/storage/memory"
)

func readDocument(path string) (flow.Document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return flow.Document{}, err
	}
	return flow.ParseDocument(raw)
}

func newPlanCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "plan <file>",
		Short: "Validate a composition document and print the messages it builds",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := readDocument(args[0])
			if err != nil {
				return err
			}
			newID, err := idgen.FromName(c.cfg.IDFormat)
			if err != nil {
				return configError{err}
			}
			// A detached broker: building never enqueues, and cancel_on_error
			// groups need a cancel store to exist.
			planner := broker.NewLocal(broker.WithLogger(c.logger), broker.WithCancelBackend(memory.NewCancelStore()))
			root, err := flow.NewComposer(planner, newID).Compose(cmd.Context(), doc)
			if err != nil {
				return err
			}
			p, err := buildPlan(cmd.Context(), root)
			if err != nil {
				return err
			}
			return writeJSON(c.stdout, p)
		},
	}
}

func newSimulateCommand(c *cli) *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "simulate <file>",
		Short: "Run a composition document through the local broker with echo handlers",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := readDocument(args[0])
			if err != nil {
				return err
			}
			a, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			sim, err := a.Simulate(cmd.Context(), doc, nil, app.Echo, collection.GetOptions{Timeout: timeout})
			if sim.Root != nil {
				c.logger.Info("simulation finished", "processed", sim.Processed, "collected", len(sim.Outcomes))
				if werr := writeJSON(c.stdout, simulationView{
					Processed: sim.Processed,
					Results:   outcomeViews(sim.Outcomes),
				}); werr != nil {
					return werr
				}
			}
			return err
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", collection.DefaultTimeout, "how long to wait for results")
	return cmd
}

func pageFlags(cmd *cobra.Command, page *inspect.Page, sortable bool) {
	flags := cmd.Flags()
	flags.IntVar(&page.Offset, "offset", 0, "records to skip")
	flags.IntVar(&page.Size, "size", inspect.DefaultPageSize, "page size")
	if sortable {
		flags.StringVar(&page.SearchValue, "search", "", "substring matched against ids, names and arguments")
		flags.StringVar(&page.SortColumn, "sort", "", "column to sort by")
		flags.StringVar(&page.SortDirection, "direction", "asc", "sort direction (asc, desc)")
	}
}

// withDurable runs fn against a database backed runtime.
func (c *cli) withDurable(ctx context.Context, fn func(*app.App) error) error {
	if !c.cfg.Database.Enabled() {
		return configError{fmt.Errorf("%w: set FLOWQ_DATABASE_URL or --database-url", app.ErrNoDatabase)}
	}
	a, err := c.open(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()
	return fn(a)
}

func newStatesCommand(c *cli) *cobra.Command {
	var page inspect.Page
	cmd := &cobra.Command{
		Use:   "states",
		Short: "List message states",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := page.Validate(); err != nil {
				return configError{err}
			}
			return c.withDurable(cmd.Context(), func(a *app.App) error {
				out, err := inspect.States(cmd.Context(), a.States, page)
				if err != nil {
					return err
				}
				return writeJSON(c.stdout, out)
			})
		},
	}
	pageFlags(cmd, &page, true)
	return cmd
}

func newStateCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "state <message-id>",
		Short: "Show the state of one message",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withDurable(cmd.Context(), func(a *app.App) error {
				out, err := inspect.State(cmd.Context(), a.States, args[0])
				if err != nil {
					return err
				}
				return writeJSON(c.stdout, out)
			})
		},
	}
}

func newGroupsCommand(c *cli) *cobra.Command {
	var page inspect.Page
	cmd := &cobra.Command{
		Use:   "groups",
		Short: "List message states by group, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := page.Validate(); err != nil {
				return configError{err}
			}
			return c.withDurable(cmd.Context(), func(a *app.App) error {
				out, err := inspect.Groups(cmd.Context(), a.States, page)
				if err != nil {
					return err
				}
				return writeJSON(c.stdout, out)
			})
		},
	}
	pageFlags(cmd, &page, false)
	return cmd
}

func newCancelCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <message-or-group-id>...",
		Short: "Mark messages or groups as canceled",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withDurable(cmd.Context(), func(a *app.App) error {
				if err := a.Cancels.Cancel(cmd.Context(), args); err != nil {
					return err
				}
				c.logger.Info("canceled", "count", len(args))
				return nil
			})
		},
	}
}

func newPurgeCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "purge",
		Short: "Delete expired message states",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withDurable(cmd.Context(), func(a *app.App) error {
				n, err := a.PurgeExpired(cmd.Context())
				if err != nil {
					return err
				}
				return writeJSON(c.stdout, map[string]int64{"purged": n})
			})
		},
	}
}

func newResultsCommand(c *cli) *cobra.Command {
	var opts collection.GetOptions
	cmd := &cobra.Command{
		Use:   "results <message-id>...",
		Short: "Fetch stored results of messages",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !c.cfg.Objects.Enabled() {
				return configError{fmt.Errorf("%w: set FLOWQ_MINIO_ENDPOINT or --minio-endpoint", app.ErrNoObjectStore)}
			}
			a, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			handles := make([]collection.Handle, 0, len(args))
			for _, id := range args {
				handles = append(handles, collection.Result{MessageID: id})
			}
			outcomes, err := collection.New(a.Results, handles...).Collect(cmd.Context(), opts)
			if len(outcomes) > 0 {
				if werr := writeJSON(c.stdout, outcomeViews(outcomes)); werr != nil {
					return werr
				}
			}
			var stored *collection.ErrorStored
			if errors.As(err, &stored) {
				return fmt.Errorf("message failed: %w", err)
			}
			return err
		},
	}
	flags := cmd.Flags()
	flags.BoolVar(&opts.Block, "block", false, "wait for results to be stored")
	flags.DurationVar(&opts.Timeout, "timeout", collection.DefaultTimeout, "how long to wait with --block")
	flags.BoolVar(&opts.RaiseOnError, "raise", false, "fail when a stored result is an error")
	flags.BoolVar(&opts.Forget, "forget", false, "delete results once read")
	return cmd
}
