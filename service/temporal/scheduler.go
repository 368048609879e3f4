package temporal

import (
	"context"
	"strings"
	"time"
)

// Scheduler manages Temporal schedules for wallet syncing.
// Each wallet gets its own schedule that triggers the SyncWalletWorkflow.
type Scheduler interface {
	// UpsertWalletSchedule creates the wallet's schedule or updates its interval.
	UpsertWalletSchedule(ctx context.Context, walletID string, interval time.Duration) error

	// DeleteWalletSchedule deletes the schedule for a wallet.
	// This stops the wallet from being synced.
	DeleteWalletSchedule(ctx context.Context, walletID string) error

	// TriggerWalletSync runs the wallet's scheduled sync immediately.
	TriggerWalletSync(ctx context.Context, walletID string) error
}

// ScheduleIDPrefix prefixes the Temporal schedule ID of every wallet.
const ScheduleIDPrefix = "sync-wallet-"

// scheduleID returns the Temporal schedule ID for a wallet.
func scheduleID(walletID string) string {
	return ScheduleIDPrefix + walletID
}

// WalletIDFromScheduleID reverses scheduleID. ok is false for schedules this
// service does not own.
func WalletIDFromScheduleID(id string) (walletID string, ok bool) {
	walletID, ok = strings.CutPrefix(id, ScheduleIDPrefix)
	return walletID, ok && walletID != ""
}
