package migrate

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingMigrator struct {
	name string
	ran  *[]string
	err  error
}

func (m recordingMigrator) Name() string { return m.name }

func (m recordingMigrator) Migrate(context.Context) error {
	*m.ran = append(*m.ran, m.name)
	return m.err
}

func withPlugins(t *testing.T, ps ...Plugin) {
	t.Helper()
	saved := plugins
	plugins = ps
	t.Cleanup(func() { plugins = saved })
}

func TestRunAllFollowsOrder(t *testing.T) {
	var ran []string
	withPlugins(t,
		Plugin{Order: 200, Migrator: recordingMigrator{name: "keys", ran: &ran}},
		Plugin{Order: OrderStoreSchema, Migrator: recordingMigrator{name: "schema", ran: &ran}},
		Plugin{Order: 200, Migrator: recordingMigrator{name: "backfill", ran: &ran}},
	)

	require.NoError(t, RunAll(context.Background()))
	assert.Equal(t, []string{"schema", "keys", "backfill"}, ran)
	assert.Equal(t, ran, Names())
}

func TestRunAllStopsAtFirstFailure(t *testing.T) {
	var ran []string
	boom := errors.New("index build failed")
	withPlugins(t,
		Plugin{Order: 1, Migrator: recordingMigrator{name: "schema", ran: &ran, err: boom}},
		Plugin{Order: 2, Migrator: recordingMigrator{name: "later", ran: &ran}},
	)

	err := RunAll(context.Background())
	require.ErrorIs(t, err, boom)
	assert.ErrorContains(t, err, "migration schema failed")
	assert.Equal(t, []string{"schema"}, ran)
}
