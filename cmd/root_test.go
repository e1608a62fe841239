package cmd

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommands(t *testing.T) {
	t.Parallel()

	root := newRootCmd()
	for _, name := range []string{"serve", "output", "watch"} {
		sub, _, err := root.Find([]string{name})
		require.NoError(t, err)
		assert.Equal(t, name, sub.Name())
	}
	assert.NotNil(t, root.PersistentFlags().Lookup("log-level"))
}

func TestBindFlags(t *testing.T) {
	t.Parallel()

	cmd := newServeCmd()
	require.NoError(t, cmd.Flags().Parse([]string{"--address", ":9999"}))

	v := viper.New()
	v.SetDefault("server.address", ":8000")
	require.NoError(t, bindFlags(v, cmd.Flags(), map[string]string{"server.address": "address"}))
	assert.Equal(t, ":9999", v.GetString("server.address"))

	assert.Error(t, bindFlags(v, cmd.Flags(), map[string]string{"server.missing": "no-such-flag"}))
}
