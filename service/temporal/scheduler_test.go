package temporal

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWalletIDFromScheduleID(t *testing.T) {
	tests := []struct {
		id     string
		want   string
		wantOK bool
	}{
		{scheduleID("savings"), "savings", true},
		{"sync-wallet-", "", false},
		{"poll-wallet-mainnet-abc", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			got, ok := WalletIDFromScheduleID(tt.id)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMockScheduler(t *testing.T) {
	ctx := context.Background()
	m := NewMockScheduler()

	require.NoError(t, m.UpsertWalletSchedule(ctx, "savings", time.Minute))
	require.NoError(t, m.UpsertWalletSchedule(ctx, "savings", 2*time.Minute))
	assert.Equal(t, 1, m.ScheduleCount())

	interval, ok := m.GetScheduleInterval("savings")
	require.True(t, ok)
	assert.Equal(t, 2*time.Minute, interval)

	require.NoError(t, m.TriggerWalletSync(ctx, "savings"))
	assert.Equal(t, 1, m.TriggerCount("savings"))

	require.NoError(t, m.DeleteWalletSchedule(ctx, "savings"))
	assert.False(t, m.ScheduleExists("savings"))
	assert.Error(t, m.TriggerWalletSync(ctx, "savings"))
}
