package main

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/cartsync/internal/domain"
	"github.com/vladislavdragonenkov/cartsync/internal/messaging/kafka"
)

// resetFlags возвращает флаги всех команд к значениям по умолчанию:
// cobra хранит их в глобальных командах между вызовами Execute.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, child := range cmd.Commands() {
		resetFlags(child)
	}
}

func useSQLite(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cart.db")
	t.Setenv("CART_STORAGE_DRIVER", "sqlite")
	t.Setenv("CART_SQLITE_PATH", path)
	t.Setenv("CART_KAFKA_BROKERS", "")
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := rootCmd.ExecuteContext(ctx)
	return out.String(), err
}

func TestCartctl_EmptyCart(t *testing.T) {
	useSQLite(t)

	out, err := execute(t, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "Cart is empty.")
}

func TestCartctl_MutationsPersistAcrossRuns(t *testing.T) {
	useSQLite(t)

	_, err := execute(t, "add", "1", "--title", "Phone", "--price", "499.5")
	require.NoError(t, err)
	_, err = execute(t, "add", "2", "--title", "Case")
	require.NoError(t, err)
	_, err = execute(t, "add", "1", "--title", "Phone")
	require.NoError(t, err)

	out, err := execute(t, "dec", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "TOTAL")

	out, err = execute(t, "list", "--json")
	require.NoError(t, err)

	var items domain.CartState
	require.NoError(t, json.Unmarshal([]byte(out), &items))
	require.Len(t, items, 2)
	assert.Equal(t, "1", items[0].ID)
	assert.Equal(t, 2, items[0].Quantity)
	assert.InDelta(t, 499.5, items[0].Price, 0.001)
	assert.Equal(t, "2", items[1].ID)
	assert.Equal(t, 0, items[1].Quantity)

	out, err = execute(t, "inc", "unknown")
	require.NoError(t, err)
	assert.Contains(t, out, "Phone")
}

func TestCartctl_NamespaceIsolation(t *testing.T) {
	useSQLite(t)

	_, err := execute(t, "--namespace", "shop-a", "add", "1", "--title", "Phone")
	require.NoError(t, err)

	out, err := execute(t, "--namespace", "shop-b", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "Cart is empty.")

	out, err = execute(t, "--namespace", "shop-a", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "Phone")
}

func TestCartctl_FlagOverridesDriver(t *testing.T) {
	useSQLite(t)

	out, err := execute(t, "--driver", "memory", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "Cart is empty.")

	_, err = execute(t, "--driver", "cassandra", "list")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported storage driver")
}

func TestCartctl_AddValidation(t *testing.T) {
	useSQLite(t)

	_, err := execute(t, "add", "1")
	require.Error(t, err, "title is required")

	_, err = execute(t, "add", "  ", "--title", "Blank")
	require.ErrorIs(t, err, domain.ErrItemIDRequired)
}

func TestCartctl_WatchRequiresBrokers(t *testing.T) {
	useSQLite(t)

	_, err := execute(t, "watch")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "KAFKA_BROKERS")
}

func TestCartctl_Version(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "cartctl version="), out)
}

func TestSnapshotPrinter(t *testing.T) {
	var out bytes.Buffer
	printer := &snapshotPrinter{out: &out}

	msg := kafka.NewSnapshotMessage(domain.SnapshotEvent{
		SessionID: "s-1",
		Key:       "@GoMarketplace",
		Revision:  3,
		Items:     domain.CartState{{ID: "1", Title: "Phone", Quantity: 2}},
		SavedAt:   time.Date(2024, 10, 18, 12, 0, 0, 0, time.UTC),
	})
	require.NoError(t, printer.handle(context.Background(), msg))
	assert.Equal(t, "2024-10-18T12:00:00Z session=s-1 key=@GoMarketplace revision=3 items=1 total=2\n", out.String())

	out.Reset()
	printer.json = true
	require.NoError(t, printer.handle(context.Background(), msg))
	assert.Contains(t, out.String(), `"session_id":"s-1"`)
}
