package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/brojonat/txledger/client"
	"github.com/itchyny/gojq"
	"github.com/urfave/cli/v2"
)

func ledgerCommands() *cli.Command {
	return &cli.Command{
		Name:  "ledger",
		Usage: "Browse, filter and annotate a wallet's ledger",
		Subcommands: []*cli.Command{
			ledgerShowCommand(),
			ledgerFilterCommand(),
			ledgerWindowCommand(),
			ledgerAnnotateCommand(),
			ledgerWatchCommand(),
		},
	}
}

func ledgerShowCommand() *cli.Command {
	return &cli.Command{
		Name:      "show",
		Usage:     "Show the current window of a wallet's ledger",
		ArgsUsage: "WALLET_ID",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "offset",
				Usage: "First row of the window (moves the window when set)",
			},
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"n"},
				Usage:   "Rows in the window (moves the window when set)",
			},
			jqFlag(),
		},
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return fmt.Errorf("wallet id is required")
			}

			var window *client.Window
			if c.IsSet("offset") || c.IsSet("limit") {
				window = &client.Window{Offset: c.Int("offset"), Limit: c.Int("limit")}
				if !c.IsSet("limit") {
					window.Limit = 50
				}
			}

			page, err := apiClient(c).Ledger(c.Context, c.Args().Get(0), window)
			if err != nil {
				return fmt.Errorf("failed to get ledger: %w", err)
			}
			return outputPage(c, page)
		},
	}
}

func ledgerFilterCommand() *cli.Command {
	return &cli.Command{
		Name:      "filter",
		Usage:     "Filter a wallet's ledger by direction and text",
		ArgsUsage: "WALLET_ID",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "direction",
				Aliases: []string{"d"},
				Usage:   "all, sent or received",
				Value:   "all",
			},
			&cli.StringFlag{
				Name:    "text",
				Aliases: []string{"t"},
				Usage:   "Case-insensitive pattern matched against tx id, address and note",
			},
			jqFlag(),
		},
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return fmt.Errorf("wallet id is required")
			}

			page, err := apiClient(c).SetFilter(c.Context, c.Args().Get(0), c.String("direction"), c.String("text"))
			if err != nil {
				return fmt.Errorf("failed to set filter: %w", err)
			}
			return outputPage(c, page)
		},
	}
}

func ledgerWindowCommand() *cli.Command {
	return &cli.Command{
		Name:      "window",
		Usage:     "Move the live window of a wallet's ledger",
		ArgsUsage: "WALLET_ID",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "offset",
				Usage: "First row of the window",
			},
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"n"},
				Usage:   "Rows in the window",
				Value:   50,
			},
			jqFlag(),
		},
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return fmt.Errorf("wallet id is required")
			}

			page, err := apiClient(c).SetWindow(c.Context, c.Args().Get(0), client.Window{
				Offset: c.Int("offset"),
				Limit:  c.Int("limit"),
			})
			if err != nil {
				return fmt.Errorf("failed to set window: %w", err)
			}
			return outputPage(c, page)
		},
	}
}

func ledgerAnnotateCommand() *cli.Command {
	return &cli.Command{
		Name:      "annotate",
		Aliases:   []string{"note"},
		Usage:     "Attach a note to a ledger row (an empty note clears it)",
		ArgsUsage: "WALLET_ID TX_ID ADDRESS NOTE",
		Action: func(c *cli.Context) error {
			if c.NArg() < 3 {
				return fmt.Errorf("wallet id, tx id and address are required")
			}

			walletID, txID, address := c.Args().Get(0), c.Args().Get(1), c.Args().Get(2)
			note := c.Args().Get(3)
			if err := apiClient(c).Annotate(c.Context, walletID, txID, address, note); err != nil {
				return fmt.Errorf("failed to save annotation: %w", err)
			}

			out := c.App.Writer
			if c.Bool("json") {
				return outputJSON(out, map[string]string{
					"wallet_id": walletID,
					"tx_id":     txID,
					"address":   address,
					"note":      note,
				})
			}
			if note == "" {
				fmt.Fprintf(out, "✓ Note cleared for %s/%s\n", txID, address)
			} else {
				fmt.Fprintf(out, "✓ Note saved for %s/%s\n", txID, address)
			}
			return nil
		},
	}
}

func ledgerWatchCommand() *cli.Command {
	return &cli.Command{
		Name:      "watch",
		Usage:     "Stream ledger changes of a wallet",
		ArgsUsage: "WALLET_ID",
		Description: `Follow the ledger of a wallet over Server-Sent Events. Each change is
printed as it arrives. With --until the command exits after the first event
whose data makes the jq expression true.

Example:
  txledger ledger watch --until '.kind == "confirmation" and .confirmation.regime == "confirmed"' savings`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "until",
				Usage: "jq expression; exit once an event's data evaluates to true",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return fmt.Errorf("wallet id is required")
			}
			walletID := c.Args().Get(0)

			var until *gojq.Code
			if expr := c.String("until"); expr != "" {
				code, err := compileJQ(expr)
				if err != nil {
					return err
				}
				until = code
			}

			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			out := c.App.Writer
			jsonOutput := c.Bool("json")
			if !jsonOutput {
				fmt.Fprintf(c.App.ErrWriter, "📡 Watching ledger of %s (Ctrl-C to exit)\n\n", walletID)
			}

			err := apiClient(c).Stream(ctx, walletID, func(e *client.Event) error {
				if err := printEvent(out, e, jsonOutput); err != nil {
					return err
				}
				if until != nil && e.Name != "connected" {
					ok, err := eventMatches(ctx, until, e)
					if err != nil {
						return err
					}
					if ok {
						return client.ErrStopStream
					}
				}
				return nil
			})
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
}

// eventMatches reports whether code evaluates to true for the event data.
func eventMatches(ctx context.Context, code *gojq.Code, e *client.Event) (bool, error) {
	var data any
	if err := json.Unmarshal(e.Data, &data); err != nil {
		return false, nil
	}
	results, err := runJQ(ctx, code, data)
	if err != nil {
		return false, err
	}
	return len(results) > 0 && results[0] == true, nil
}

func printEvent(out io.Writer, e *client.Event, jsonOutput bool) error {
	if jsonOutput {
		return json.NewEncoder(out).Encode(e)
	}

	if e.Name == "connected" {
		var hello struct {
			RowCount int `json:"row_count"`
		}
		_ = json.Unmarshal(e.Data, &hello)
		fmt.Fprintf(out, "connected: %d rows\n", hello.RowCount)
		return nil
	}

	ch, err := e.Change()
	if err != nil {
		return err
	}
	switch ch.Kind {
	case "rows":
		fmt.Fprintf(out, "rows: %d rows\n", ch.RowCount)
	case "confirmation":
		if ch.Confirmation != nil {
			fmt.Fprintf(out, "confirmation: %s/%s %s (%d/%d)\n",
				ch.Key.TxID, ch.Key.Address,
				ch.Confirmation.Regime,
				ch.Confirmation.Confirmations, ch.Confirmation.Recommended,
			)
		}
	default:
		fmt.Fprintf(out, "%s: %s/%s\n", ch.Kind, ch.Key.TxID, ch.Key.Address)
	}
	return nil
}

func outputPage(c *cli.Context, page *client.LedgerPage) error {
	out := c.App.Writer
	if expr := c.String("jq"); expr != "" {
		return outputJQ(out, page, expr)
	}
	if c.Bool("json") {
		return outputJSON(out, page)
	}
	printPage(out, page)
	return nil
}

// printPage renders a ledger window as a table, with a day separator above
// the first row of each day.
func printPage(out io.Writer, page *client.LedgerPage) {
	if page.RowCount == 0 {
		switch page.EmptyState {
		case "no_match":
			fmt.Fprintln(out, "No transactions match the filter")
		case "loading":
			fmt.Fprintln(out, "Loading...")
		default:
			fmt.Fprintln(out, "No transactions yet")
		}
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "#\tTIME\tTX\tADDRESS\tCHANGE\tSTATUS\tLABEL")
	for _, row := range page.Rows {
		if row.DaySummary != nil {
			fmt.Fprintf(w, "── %s\tfee %s\t\t\t\t\t\n", row.DaySummary.Date, row.DaySummary.Fee)
		}
		txID := row.TxID
		if row.Batched {
			txID = "  ↳"
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			row.Index,
			row.Time,
			shorten(txID),
			shorten(row.Address),
			row.BalanceChange,
			row.Status,
			row.Label,
		)
	}
	w.Flush()

	fmt.Fprintf(out, "\nRows %d-%d of %d (filter: %s %q)\n",
		page.Offset, page.Offset+len(page.Rows), page.RowCount,
		page.Filter.Direction, page.Filter.Text,
	)
}

func shorten(s string) string {
	if len(s) <= 16 {
		return s
	}
	return s[:6] + "…" + s[len(s)-6:]
}
