package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/brojonat/txledger/client"
	"github.com/dustin/go-humanize"
	"github.com/itchyny/gojq"
	"github.com/urfave/cli/v2"
)

func walletCommands() *cli.Command {
	return &cli.Command{
		Name:  "wallet",
		Usage: "Register and manage synced wallets",
		Subcommands: []*cli.Command{
			walletAddCommand(),
			walletRemoveCommand(),
			walletGetCommand(),
			walletListCommand(),
			walletSyncCommand(),
		},
	}
}

func jqFlag() cli.Flag {
	return &cli.StringFlag{
		Name:  "jq",
		Usage: "jq expression applied to the JSON output (implies --json)",
	}
}

func walletAddCommand() *cli.Command {
	return &cli.Command{
		Name:      "add",
		Aliases:   []string{"register"},
		Usage:     "Register a wallet for syncing",
		ArgsUsage: "WALLET_ID",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:     "address",
				Aliases:  []string{"a"},
				Usage:    "Owned address (repeatable)",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "network",
				Usage: "mainnet or devnet (server default: mainnet)",
			},
			&cli.DurationFlag{
				Name:    "sync-interval",
				Aliases: []string{"i"},
				Usage:   "How often to sync new transactions (e.g., 30s, 1m); 0 uses the server default",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return fmt.Errorf("wallet id is required")
			}

			cl := apiClient(c)
			wallet, err := cl.Register(c.Context, client.RegisterParams{
				ID:           c.Args().Get(0),
				Network:      c.String("network"),
				Addresses:    c.StringSlice("address"),
				SyncInterval: c.Duration("sync-interval"),
			})
			if err != nil {
				return fmt.Errorf("failed to register wallet: %w", err)
			}

			out := c.App.Writer
			if c.Bool("json") {
				return outputJSON(out, wallet)
			}
			fmt.Fprintf(out, "✓ Wallet registered successfully\n")
			fmt.Fprintf(out, "  ID:            %s\n", wallet.ID)
			fmt.Fprintf(out, "  Network:       %s\n", wallet.Network)
			fmt.Fprintf(out, "  Addresses:     %d\n", len(wallet.Addresses))
			fmt.Fprintf(out, "  Sync Interval: %s\n", wallet.SyncInterval)
			return nil
		},
	}
}

func walletRemoveCommand() *cli.Command {
	return &cli.Command{
		Name:      "remove",
		Aliases:   []string{"rm", "delete", "unregister"},
		Usage:     "Unregister a wallet and drop its ledger",
		ArgsUsage: "WALLET_ID",
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return fmt.Errorf("wallet id is required")
			}

			id := c.Args().Get(0)
			if err := apiClient(c).Unregister(c.Context, id); err != nil {
				return fmt.Errorf("failed to unregister wallet: %w", err)
			}

			out := c.App.Writer
			if c.Bool("json") {
				return outputJSON(out, map[string]string{
					"id":     id,
					"status": "unregistered",
				})
			}
			fmt.Fprintf(out, "✓ Wallet unregistered successfully\n")
			fmt.Fprintf(out, "  ID: %s\n", id)
			return nil
		},
	}
}

func walletGetCommand() *cli.Command {
	return &cli.Command{
		Name:      "get",
		Aliases:   []string{"show"},
		Usage:     "Get details for a specific wallet",
		ArgsUsage: "WALLET_ID",
		Flags:     []cli.Flag{jqFlag()},
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return fmt.Errorf("wallet id is required")
			}

			wallet, err := apiClient(c).Get(c.Context, c.Args().Get(0))
			if err != nil {
				return fmt.Errorf("failed to get wallet: %w", err)
			}

			out := c.App.Writer
			if expr := c.String("jq"); expr != "" {
				return outputJQ(out, wallet, expr)
			}
			if c.Bool("json") {
				return outputJSON(out, wallet)
			}
			printWallet(out, wallet, time.Now())
			return nil
		},
	}
}

func walletListCommand() *cli.Command {
	return &cli.Command{
		Name:    "list",
		Aliases: []string{"ls"},
		Usage:   "List all registered wallets",
		Flags:   []cli.Flag{jqFlag()},
		Action: func(c *cli.Context) error {
			wallets, err := apiClient(c).List(c.Context)
			if err != nil {
				return fmt.Errorf("failed to list wallets: %w", err)
			}

			out := c.App.Writer
			if expr := c.String("jq"); expr != "" {
				return outputJQ(out, wallets, expr)
			}
			if c.Bool("json") {
				return outputJSON(out, wallets)
			}

			now := time.Now()
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNETWORK\tADDRESSES\tSTATUS\tSYNC INTERVAL\tLAST SYNC")
			for _, wallet := range wallets {
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\t%s\n",
					wallet.ID,
					wallet.Network,
					len(wallet.Addresses),
					wallet.Status,
					wallet.SyncInterval,
					lastSync(wallet.LastSyncTime, now),
				)
			}
			w.Flush()

			fmt.Fprintf(c.App.ErrWriter, "\nTotal: %d wallets\n", len(wallets))
			return nil
		},
	}
}

func walletSyncCommand() *cli.Command {
	return &cli.Command{
		Name:      "sync",
		Usage:     "Sync a wallet now instead of waiting for its schedule",
		ArgsUsage: "WALLET_ID",
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return fmt.Errorf("wallet id is required")
			}

			id := c.Args().Get(0)
			if err := apiClient(c).TriggerSync(c.Context, id); err != nil {
				return fmt.Errorf("failed to trigger sync: %w", err)
			}
			fmt.Fprintf(c.App.Writer, "✓ Sync triggered for %s\n", id)
			return nil
		},
	}
}

func printWallet(out io.Writer, wallet *client.Wallet, now time.Time) {
	fmt.Fprintf(out, "ID:            %s\n", wallet.ID)
	fmt.Fprintf(out, "Network:       %s\n", wallet.Network)
	fmt.Fprintf(out, "Status:        %s\n", wallet.Status)
	fmt.Fprintf(out, "Sync Interval: %s\n", wallet.SyncInterval)
	fmt.Fprintf(out, "Last Sync:     %s\n", lastSync(wallet.LastSyncTime, now))
	fmt.Fprintf(out, "Created:       %s\n", wallet.CreatedAt.Format(time.RFC3339))
	fmt.Fprintf(out, "Addresses:\n")
	for _, addr := range wallet.Addresses {
		fmt.Fprintf(out, "  %s\n", addr)
	}
}

func lastSync(t *time.Time, now time.Time) string {
	if t == nil {
		return "never"
	}
	return humanize.RelTime(*t, now, "ago", "from now")
}

// apiClient builds an HTTP client for the --server-url of the invocation.
func apiClient(c *cli.Context) *client.Client {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError, // Only errors to stderr
	}))
	return client.NewClient(c.String("server-url"), nil, logger)
}

// compileJQ parses and compiles a jq expression.
func compileJQ(expr string) (*gojq.Code, error) {
	query, err := gojq.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse jq filter %q: %w", expr, err)
	}
	code, err := gojq.Compile(query)
	if err != nil {
		return nil, fmt.Errorf("failed to compile jq filter %q: %w", expr, err)
	}
	return code, nil
}

// jqInput converts v to the plain maps and slices gojq operates on.
func jqInput(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// runJQ evaluates code against v and collects every result.
func runJQ(ctx context.Context, code *gojq.Code, v any) ([]any, error) {
	input, err := jqInput(v)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare jq input: %w", err)
	}

	var results []any
	iter := code.RunWithContext(ctx, input)
	for {
		result, ok := iter.Next()
		if !ok {
			break
		}
		if err, ok := result.(error); ok {
			return nil, fmt.Errorf("jq evaluation failed: %w", err)
		}
		results = append(results, result)
	}
	return results, nil
}

// outputJQ prints each result of expr applied to v as a JSON line.
func outputJQ(out io.Writer, v any, expr string) error {
	code, err := compileJQ(expr)
	if err != nil {
		return err
	}
	results, err := runJQ(context.Background(), code, v)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(out)
	for _, r := range results {
		if err := enc.Encode(r); err != nil {
			return err
		}
	}
	return nil
}
