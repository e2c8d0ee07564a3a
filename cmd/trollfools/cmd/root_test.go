package cmd

import (
	"testing"

	"github.com/HuuDungg/TrollFools-Framework-Selected/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDriverFlag(t *testing.T) {
	f := rootCmd.PersistentFlags().Lookup("driver")
	require.NotNil(t, f)
	for _, driver := range []string{config.DriverSqlite, config.DriverPostgres, config.DriverMemory} {
		assert.Contains(t, f.Usage, driver)
	}
}

func TestSubcommands(t *testing.T) {
	for _, name := range []string{"dummy", "inject", "eject", "status", "config"} {
		c, _, err := rootCmd.Find([]string{name})
		require.NoError(t, err)
		assert.Equal(t, name, c.Name())
	}
}
