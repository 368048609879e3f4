package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	natspkg "github.com/brojonat/txledger/service/nats"
	"github.com/urfave/cli/v2"
)

// subscribeCommand streams ledger events for one wallet or all of them.
func subscribeCommand() *cli.Command {
	return &cli.Command{
		Name:      "subscribe",
		Usage:     "Subscribe to ledger events",
		ArgsUsage: "[wallet_id]",
		Description: `Subscribe to real-time ledger events published to NATS JetStream.

Sync workers publish to ledger.{wallet_id}.updated after writing transactions;
servers publish to ledger.{wallet_id}.annotation when a note is saved.
Without a wallet id, events of every wallet are shown.

Example:
  txledger nats subscribe savings --json`,
		Action: func(c *cli.Context) error {
			filter := natspkg.WalletSubjects(c.Args().First())
			jsonOutput := c.Bool("json")
			out := c.App.Writer

			logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
			sub, err := natspkg.NewSubscriber(c.String("nats-url"), logger)
			if err != nil {
				return err
			}
			defer sub.Close()

			if !jsonOutput {
				fmt.Fprintf(c.App.ErrWriter, "📡 Subscribing to: %s\n", filter)
				fmt.Fprintf(c.App.ErrWriter, "   NATS: %s\n", c.String("nats-url"))
				fmt.Fprintf(c.App.ErrWriter, "\nWaiting for events... (Ctrl-C to exit)\n\n")
			}

			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			var count atomic.Int64
			err = sub.Subscribe(ctx, filter, eventPrinter(out, jsonOutput, &count))
			if !jsonOutput {
				fmt.Fprintf(c.App.ErrWriter, "\n✅ Received %d events\n", count.Load())
			}
			return err
		},
	}
}

// eventPrinter returns a handler writing each event to out.
func eventPrinter(out io.Writer, jsonOutput bool, count *atomic.Int64) natspkg.HandlerFuncs {
	emit := func(v any) {
		if jsonOutput {
			data, _ := json.Marshal(v)
			fmt.Fprintln(out, string(data))
		}
	}
	return natspkg.HandlerFuncs{
		LedgerUpdated: func(ctx context.Context, e *natspkg.LedgerUpdatedEvent) {
			n := count.Add(1)
			if jsonOutput {
				emit(e)
				return
			}
			fmt.Fprintf(out, "#%d ledger updated  wallet=%s written=%d latest_slot=%d synced=%s\n",
				n, e.WalletID, e.Written, e.LatestSlot, e.SyncedAt.Format(time.RFC3339))
		},
		AnnotationSaved: func(ctx context.Context, e *natspkg.AnnotationSavedEvent) {
			n := count.Add(1)
			if jsonOutput {
				emit(e)
				return
			}
			fmt.Fprintf(out, "#%d note saved      wallet=%s tx=%s address=%s note=%q\n",
				n, e.WalletID, e.TxID, e.Address, e.Note)
		},
	}
}

// inspectStreamCommand shows information about the NATS JetStream stream.
func inspectStreamCommand() *cli.Command {
	return &cli.Command{
		Name:  "inspect-stream",
		Usage: "Inspect the LEDGER JetStream stream",
		Description: `Show information about the JetStream stream including:
- Message count
- Consumers
- Storage usage
- Stream configuration

Example:
  txledger nats inspect-stream`,
		Action: func(c *cli.Context) error {
			nc, js, err := natspkg.Connect(c.String("nats-url"), "txledger-cli")
			if err != nil {
				return err
			}
			defer nc.Close()

			ctx := c.Context
			stream, err := js.Stream(ctx, natspkg.StreamName)
			if err != nil {
				return fmt.Errorf("failed to get stream: %w", err)
			}

			info, err := stream.Info(ctx)
			if err != nil {
				return fmt.Errorf("failed to get stream info: %w", err)
			}

			out := c.App.Writer
			if c.Bool("json") {
				return outputJSON(out, info)
			}

			fmt.Fprintf(out, "Stream: %s\n", info.Config.Name)
			fmt.Fprintf(out, "─────────────────────────────────────────────────────\n")
			fmt.Fprintf(out, "Description:  %s\n", info.Config.Description)
			fmt.Fprintf(out, "Subjects:     %v\n", info.Config.Subjects)
			fmt.Fprintf(out, "Messages:     %d\n", info.State.Msgs)
			fmt.Fprintf(out, "Bytes:        %d\n", info.State.Bytes)
			fmt.Fprintf(out, "First Seq:    %d\n", info.State.FirstSeq)
			fmt.Fprintf(out, "Last Seq:     %d\n", info.State.LastSeq)
			fmt.Fprintf(out, "Consumers:    %d\n", info.State.Consumers)
			fmt.Fprintf(out, "Max Age:      %s\n", info.Config.MaxAge)
			fmt.Fprintf(out, "Storage:      %s\n", info.Config.Storage)
			return nil
		},
	}
}
