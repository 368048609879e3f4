package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/brojonat/txledger/service/db"
	"github.com/brojonat/txledger/service/ledger"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/urfave/cli/v2"
)

func listWalletsCommand() *cli.Command {
	return &cli.Command{
		Name:    "list-wallets",
		Usage:   "List all registered wallets",
		Aliases: []string{"ls"},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "status",
				Aliases: []string{"s"},
				Usage:   "Filter by status (active, paused)",
			},
		},
		Action: func(c *cli.Context) error {
			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			var wallets []*db.Wallet
			if c.String("status") == db.WalletStatusActive {
				// Least recently synced first.
				wallets, err = store.ListActiveWallets(c.Context)
			} else {
				wallets, err = store.ListWallets(c.Context)
			}
			if err != nil {
				return fmt.Errorf("failed to list wallets: %w", err)
			}
			wallets = filterWalletsByStatus(wallets, c.String("status"))

			if c.Bool("json") {
				return outputJSON(c.App.Writer, wallets)
			}

			// Pretty table output
			w := tabwriter.NewWriter(c.App.Writer, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNETWORK\tADDRESSES\tSTATUS\tSYNC INTERVAL\tLAST SYNC\tCREATED")
			for _, wallet := range wallets {
				lastSync := "never"
				if wallet.LastSyncTime != nil {
					lastSync = wallet.LastSyncTime.Format(time.RFC3339)
				}
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%v\t%s\t%s\n",
					wallet.ID,
					wallet.Network,
					len(wallet.Addresses),
					wallet.Status,
					wallet.SyncInterval,
					lastSync,
					wallet.CreatedAt.Format(time.RFC3339),
				)
			}
			w.Flush()

			fmt.Fprintf(c.App.ErrWriter, "\nTotal: %d wallets\n", len(wallets))
			return nil
		},
	}
}

func filterWalletsByStatus(wallets []*db.Wallet, status string) []*db.Wallet {
	if status == "" {
		return wallets
	}
	filtered := make([]*db.Wallet, 0, len(wallets))
	for _, w := range wallets {
		if w.Status == status {
			filtered = append(filtered, w)
		}
	}
	return filtered
}

func getWalletCommand() *cli.Command {
	return &cli.Command{
		Name:      "get-wallet",
		Usage:     "Get wallet details",
		Aliases:   []string{"get"},
		ArgsUsage: "<wallet-id>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: wallet id")
			}

			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			ctx := c.Context
			wallet, err := store.GetWallet(ctx, c.Args().First())
			if err != nil {
				return fmt.Errorf("failed to get wallet: %w", err)
			}
			count, err := store.CountTransactions(ctx, wallet.ID)
			if err != nil {
				return fmt.Errorf("failed to count transactions: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(c.App.Writer, struct {
					*db.Wallet
					Transactions int64
				}{wallet, count})
			}

			out := c.App.Writer
			fmt.Fprintf(out, "ID:            %s\n", wallet.ID)
			fmt.Fprintf(out, "Network:       %s\n", wallet.Network)
			fmt.Fprintf(out, "Status:        %s\n", wallet.Status)
			fmt.Fprintf(out, "Sync Interval: %v\n", wallet.SyncInterval)
			if wallet.LastSyncTime != nil {
				fmt.Fprintf(out, "Last Sync:     %s\n", wallet.LastSyncTime.Format(time.RFC3339))
			} else {
				fmt.Fprintf(out, "Last Sync:     never\n")
			}
			fmt.Fprintf(out, "Transactions:  %d\n", count)
			fmt.Fprintf(out, "Created:       %s\n", wallet.CreatedAt.Format(time.RFC3339))
			fmt.Fprintf(out, "Updated:       %s\n", wallet.UpdatedAt.Format(time.RFC3339))
			fmt.Fprintf(out, "Addresses:\n")
			for _, addr := range wallet.Addresses {
				fmt.Fprintf(out, "  %s\n", addr)
			}
			return nil
		},
	}
}

func listTransactionsCommand() *cli.Command {
	return &cli.Command{
		Name:    "list-transactions",
		Usage:   "List stored transactions of a wallet, newest first",
		Aliases: []string{"txs"},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "wallet",
				Aliases:  []string{"w"},
				Usage:    "Wallet id",
				Required: true,
			},
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"n"},
				Usage:   "Limit number of transactions (0 for all)",
				Value:   50,
			},
			&cli.StringFlag{
				Name:  "format",
				Usage: "Output format: json (default) or human",
				Value: "json",
			},
		},
		Action: func(c *cli.Context) error {
			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			txs, err := store.ListTransactions(c.Context, c.String("wallet"), c.Int("limit"))
			if err != nil {
				return fmt.Errorf("failed to get transactions: %w", err)
			}

			// Default to JSON output (stdout = JSON)
			if c.String("format") == "json" {
				return outputJSON(c.App.Writer, txs)
			}

			printTransactions(c.App.Writer, txs)
			fmt.Fprintf(c.App.ErrWriter, "\nTotal: %d transactions\n", len(txs))
			return nil
		},
	}
}

func printTransactions(out io.Writer, txs []*ledger.Transaction) {
	if len(txs) == 0 {
		fmt.Fprintln(out, "No transactions found")
		return
	}

	const rule = "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━"
	for i, tx := range txs {
		if i > 0 {
			fmt.Fprintln(out, rule)
		}

		fmt.Fprintf(out, "Signature:      %s\n", tx.ID)
		if tx.BlockTime != nil {
			fmt.Fprintf(out, "Block Time:     %s\n", tx.BlockTime.Format(time.RFC3339))
		} else {
			fmt.Fprintf(out, "Block Time:     (pending)\n")
		}
		fmt.Fprintf(out, "Slot:           %d\n", tx.Slot)
		fmt.Fprintf(out, "Fees:           %s SOL\n", tx.Fees)
		fmt.Fprintf(out, "Confirmations:  %d\n", tx.Confirmations)
		for _, in := range tx.Inputs {
			fmt.Fprintf(out, "  in   %-44s %s\n", in.Address, in.Amount)
		}
		for _, o := range tx.Outputs {
			fmt.Fprintf(out, "  out  %-44s %s\n", o.Address, o.Amount)
		}
	}
	fmt.Fprintln(out, rule)
}

func listAnnotationsCommand() *cli.Command {
	return &cli.Command{
		Name:    "list-annotations",
		Usage:   "List the notes saved for a wallet's transactions",
		Aliases: []string{"notes"},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "wallet",
				Aliases:  []string{"w"},
				Usage:    "Wallet id",
				Required: true,
			},
		},
		Action: func(c *cli.Context) error {
			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			notes, err := store.ListAnnotationsByWallet(c.Context, c.String("wallet"))
			if err != nil {
				return fmt.Errorf("failed to list annotations: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(c.App.Writer, notes)
			}

			w := tabwriter.NewWriter(c.App.Writer, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "TX\tADDRESS\tNOTE\tUPDATED")
			for _, n := range notes {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", n.TxID, n.Address, n.Note, n.UpdatedAt.Format(time.RFC3339))
			}
			w.Flush()

			fmt.Fprintf(c.App.ErrWriter, "\nTotal: %d annotations\n", len(notes))
			return nil
		},
	}
}

// Helper function to connect to database
func getStore(c *cli.Context) (*db.Store, func(), error) {
	dbURL := c.String("database-url")
	if dbURL == "" {
		// Try environment variable directly if flag not found
		dbURL = os.Getenv("DATABASE_URL")
	}
	if dbURL == "" {
		return nil, nil, fmt.Errorf("database-url is required (set DATABASE_URL env var or use --database-url)")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := db.NewStore(pool, nil)
	closer := func() { pool.Close() }

	return store, closer, nil
}

// Helper function to output JSON
func outputJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
