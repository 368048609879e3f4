package main

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/brojonat/txledger/service/db"
	"github.com/brojonat/txledger/service/temporal"
	"github.com/urfave/cli/v2"
	"go.temporal.io/sdk/client"
)

func listSchedulesCommand() *cli.Command {
	return &cli.Command{
		Name:    "list-schedules",
		Usage:   "List all Temporal schedules",
		Aliases: []string{"ls"},
		Action: func(c *cli.Context) error {
			temporalClient, err := getTemporalClient(c)
			if err != nil {
				return err
			}
			defer temporalClient.Close()

			ids, err := listScheduleIDs(c, temporalClient)
			if err != nil {
				return err
			}

			if c.Bool("json") {
				return outputJSON(c.App.Writer, ids)
			}

			// Pretty table output
			w := tabwriter.NewWriter(c.App.Writer, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "SCHEDULE ID\tWALLET")
			for _, id := range ids {
				walletID, ok := temporal.WalletIDFromScheduleID(id)
				if !ok {
					walletID = "-"
				}
				fmt.Fprintf(w, "%s\t%s\n", id, walletID)
			}
			w.Flush()

			fmt.Fprintf(c.App.ErrWriter, "\nTotal: %d schedules\n", len(ids))
			return nil
		},
	}
}

func describeScheduleCommand() *cli.Command {
	return &cli.Command{
		Name:      "describe-schedule",
		Usage:     "Describe a Temporal schedule",
		Aliases:   []string{"desc"},
		ArgsUsage: "<schedule-id>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: schedule ID")
			}

			scheduleID := c.Args().First()
			temporalClient, err := getTemporalClient(c)
			if err != nil {
				return err
			}
			defer temporalClient.Close()

			ctx := c.Context
			handle := temporalClient.ScheduleClient().GetHandle(ctx, scheduleID)
			desc, err := handle.Describe(ctx)
			if err != nil {
				return fmt.Errorf("failed to describe schedule: %w", err)
			}

			// Pretty output
			out := c.App.Writer
			fmt.Fprintf(out, "Schedule ID:    %s\n", scheduleID)
			fmt.Fprintf(out, "State Note:     %s\n", desc.Schedule.State.Note)
			fmt.Fprintf(out, "Paused:         %v\n", desc.Schedule.State.Paused)

			if wa, ok := desc.Schedule.Action.(*client.ScheduleWorkflowAction); ok {
				fmt.Fprintf(out, "\nWorkflow:\n")
				fmt.Fprintf(out, "  Workflow:     %v\n", wa.Workflow)
				fmt.Fprintf(out, "  Task Queue:   %s\n", wa.TaskQueue)
				fmt.Fprintf(out, "  Args:         %v\n", wa.Args)
			}

			if len(desc.Schedule.Spec.Intervals) > 0 {
				fmt.Fprintf(out, "\nSchedule Spec:\n")
				for i, interval := range desc.Schedule.Spec.Intervals {
					fmt.Fprintf(out, "  Interval %d:   Every %v\n", i+1, interval.Every)
				}
			}

			fmt.Fprintf(out, "\nRecent Actions: %d\n", len(desc.Info.RecentActions))
			if n := len(desc.Info.RecentActions); n > 0 {
				fmt.Fprintf(out, "Last Action:  %s\n", desc.Info.RecentActions[n-1].ActualTime.Format(time.RFC3339))
			}
			return nil
		},
	}
}

func pauseScheduleCommand() *cli.Command {
	return &cli.Command{
		Name:      "pause-schedule",
		Usage:     "Pause a Temporal schedule",
		ArgsUsage: "<schedule-id>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "note",
				Usage: "Note explaining why schedule is paused",
				Value: "Paused via txledger CLI",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: schedule ID")
			}

			scheduleID := c.Args().First()
			note := c.String("note")

			temporalClient, err := getTemporalClient(c)
			if err != nil {
				return err
			}
			defer temporalClient.Close()

			ctx := c.Context
			handle := temporalClient.ScheduleClient().GetHandle(ctx, scheduleID)
			if err := handle.Pause(ctx, client.SchedulePauseOptions{Note: note}); err != nil {
				return fmt.Errorf("failed to pause schedule: %w", err)
			}

			fmt.Fprintf(c.App.Writer, "✓ Schedule paused: %s\n", scheduleID)
			if note != "" {
				fmt.Fprintf(c.App.Writer, "  Note: %s\n", note)
			}
			return nil
		},
	}
}

func resumeScheduleCommand() *cli.Command {
	return &cli.Command{
		Name:      "resume-schedule",
		Usage:     "Resume a paused Temporal schedule",
		ArgsUsage: "<schedule-id>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "note",
				Usage: "Note explaining why schedule is resumed",
				Value: "Resumed via txledger CLI",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: schedule ID")
			}

			scheduleID := c.Args().First()
			note := c.String("note")

			temporalClient, err := getTemporalClient(c)
			if err != nil {
				return err
			}
			defer temporalClient.Close()

			ctx := c.Context
			handle := temporalClient.ScheduleClient().GetHandle(ctx, scheduleID)
			if err := handle.Unpause(ctx, client.ScheduleUnpauseOptions{Note: note}); err != nil {
				return fmt.Errorf("failed to resume schedule: %w", err)
			}

			fmt.Fprintf(c.App.Writer, "✓ Schedule resumed: %s\n", scheduleID)
			if note != "" {
				fmt.Fprintf(c.App.Writer, "  Note: %s\n", note)
			}
			return nil
		},
	}
}

func deleteScheduleCommand() *cli.Command {
	return &cli.Command{
		Name:      "delete-schedule",
		Usage:     "Delete a Temporal schedule (use for orphaned schedules)",
		ArgsUsage: "<schedule-id>",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "force",
				Usage: "Skip confirmation prompt",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: schedule ID")
			}

			scheduleID := c.Args().First()

			// Confirm deletion unless --force
			if !c.Bool("force") && !confirm(c.App.Reader, c.App.Writer, fmt.Sprintf("Are you sure you want to delete schedule %s?", scheduleID)) {
				fmt.Fprintln(c.App.Writer, "Cancelled")
				return nil
			}

			temporalClient, err := getTemporalClient(c)
			if err != nil {
				return err
			}
			defer temporalClient.Close()

			ctx := c.Context
			handle := temporalClient.ScheduleClient().GetHandle(ctx, scheduleID)
			if err := handle.Delete(ctx); err != nil {
				return fmt.Errorf("failed to delete schedule: %w", err)
			}

			fmt.Fprintf(c.App.Writer, "✓ Schedule deleted: %s\n", scheduleID)
			return nil
		},
	}
}

// confirm asks a yes/no question on out and reads the answer from in.
func confirm(in io.Reader, out io.Writer, question string) bool {
	fmt.Fprintf(out, "%s (yes/no): ", question)
	line, _ := bufio.NewReader(in).ReadString('\n')
	return strings.TrimSpace(line) == "yes"
}

func reconcileCommand() *cli.Command {
	return &cli.Command{
		Name:  "reconcile",
		Usage: "Check for inconsistencies between database and Temporal schedules",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "fix",
				Usage: "Automatically fix inconsistencies (creates missing schedules, deletes orphaned ones)",
			},
		},
		Action: func(c *cli.Context) error {
			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			scheduler, err := temporal.NewClient(
				c.String("temporal-host"),
				c.String("temporal-namespace"),
				c.String("temporal-task-queue"),
				slog.New(slog.NewTextHandler(c.App.ErrWriter, &slog.HandlerOptions{Level: slog.LevelWarn})),
			)
			if err != nil {
				return err
			}
			defer scheduler.Close()

			ctx := c.Context
			wallets, err := store.ListWallets(ctx)
			if err != nil {
				return fmt.Errorf("failed to list wallets: %w", err)
			}
			scheduleIDs, err := listScheduleIDs(c, scheduler.SDKClient())
			if err != nil {
				return err
			}

			report := reconcileSchedules(wallets, scheduleIDs)

			out := c.App.Writer
			fmt.Fprintf(out, "Reconciliation Report:\n")
			fmt.Fprintf(out, "  Wallets in DB: %d\n", len(wallets))
			fmt.Fprintf(out, "  Schedules in Temporal: %d\n\n", len(scheduleIDs))
			report.print(out)

			if !report.inconsistent() {
				return nil
			}
			if !c.Bool("fix") {
				fmt.Fprintf(out, "\nTo fix these issues, run: txledger temporal reconcile --fix\n")
				return nil
			}

			fmt.Fprintf(out, "\nFixing inconsistencies (task queue %s)...\n", scheduler.TaskQueue())

			for _, w := range report.Missing {
				if err := scheduler.UpsertWalletSchedule(ctx, w.ID, w.SyncInterval); err != nil {
					fmt.Fprintf(out, "  ✗ Failed to create schedule for %s: %v\n", w.ID, err)
					continue
				}
				fmt.Fprintf(out, "  ✓ Created schedule for %s (every %s)\n", w.ID, w.SyncInterval)
			}
			for _, walletID := range report.Orphaned {
				if err := scheduler.DeleteWalletSchedule(ctx, walletID); err != nil {
					fmt.Fprintf(out, "  ✗ Failed to delete schedule for %s: %v\n", walletID, err)
					continue
				}
				fmt.Fprintf(out, "  ✓ Deleted orphaned schedule for %s\n", walletID)
			}

			fmt.Fprintf(out, "\nReconciliation complete!\n")
			return nil
		},
	}
}

// reconcileReport lists active wallets without a schedule and wallet
// schedules whose wallet no longer exists.
type reconcileReport struct {
	Missing  []*db.Wallet
	Orphaned []string // wallet ids
}

func (r reconcileReport) inconsistent() bool {
	return len(r.Missing) > 0 || len(r.Orphaned) > 0
}

func (r reconcileReport) print(out io.Writer) {
	if len(r.Missing) > 0 {
		fmt.Fprintf(out, "⚠ Wallets missing schedules (%d):\n", len(r.Missing))
		for _, w := range r.Missing {
			fmt.Fprintf(out, "  - %s (%s)\n", w.ID, w.Network)
		}
	} else {
		fmt.Fprintf(out, "✓ All active wallets have schedules\n")
	}

	if len(r.Orphaned) > 0 {
		fmt.Fprintf(out, "\n⚠ Orphaned schedules (%d):\n", len(r.Orphaned))
		for _, id := range r.Orphaned {
			fmt.Fprintf(out, "  - %s\n", id)
		}
	} else {
		fmt.Fprintf(out, "✓ No orphaned schedules\n")
	}
}

// reconcileSchedules compares wallets with schedule ids. Schedules not owned
// by this service are ignored. Paused wallets need no schedule but keep
// theirs.
func reconcileSchedules(wallets []*db.Wallet, scheduleIDs []string) reconcileReport {
	scheduled := make(map[string]bool, len(scheduleIDs))
	for _, id := range scheduleIDs {
		if walletID, ok := temporal.WalletIDFromScheduleID(id); ok {
			scheduled[walletID] = true
		}
	}

	known := make(map[string]bool, len(wallets))
	var report reconcileReport
	for _, w := range wallets {
		known[w.ID] = true
		if w.Status == db.WalletStatusActive && !scheduled[w.ID] {
			report.Missing = append(report.Missing, w)
		}
	}
	for walletID := range scheduled {
		if !known[walletID] {
			report.Orphaned = append(report.Orphaned, walletID)
		}
	}
	slices.Sort(report.Orphaned)
	return report
}

func listScheduleIDs(c *cli.Context, temporalClient client.Client) ([]string, error) {
	iter, err := temporalClient.ScheduleClient().List(c.Context, client.ScheduleListOptions{
		PageSize: 1000,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list schedules: %w", err)
	}

	var ids []string
	for iter.HasNext() {
		schedule, err := iter.Next()
		if err != nil {
			return nil, fmt.Errorf("failed to iterate schedules: %w", err)
		}
		ids = append(ids, schedule.ID)
	}
	return ids, nil
}

// Helper function to connect to Temporal
func getTemporalClient(c *cli.Context) (client.Client, error) {
	temporalClient, err := client.Dial(client.Options{
		HostPort:  c.String("temporal-host"),
		Namespace: c.String("temporal-namespace"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Temporal: %w", err)
	}
	return temporalClient, nil
}
