package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/flow-engine/config"
)

func TestRootCmd_Subcommands(t *testing.T) {
	root := newRootCmd()

	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"version", "worker", "migrate", "assign", "interact", "transition", "delete", "progress", "assignments", "deadline"} {
		assert.Contains(t, names, want)
	}
}

func TestVersionCmd(t *testing.T) {
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version"})

	require.Equal(t, 0, execute(root))
	assert.True(t, strings.HasPrefix(out.String(), "flowd dev"))
}

func TestMigrateCmd_RequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")

	for _, sub := range []string{"up", "down", "status"} {
		t.Run(sub, func(t *testing.T) {
			root := newRootCmd()
			var errOut bytes.Buffer
			root.SetErr(&errOut)
			root.SetArgs([]string{"migrate", sub})

			assert.Equal(t, 1, execute(root))
			assert.Contains(t, errOut.String(), "database URL is required")
		})
	}
}

func TestAssignCmd_FlagBinding(t *testing.T) {
	cmd := newAssignCmd()
	require.NoError(t, cmd.ParseFlags([]string{"--user", "u1", "--flow", "f1", "--by", "m1", "--buddy", "m1,m2", "--deadline-days", "3"}))

	buddies, err := cmd.Flags().GetStringSlice("buddy")
	require.NoError(t, err)
	assert.Equal(t, []string{"m1", "m2"}, buddies)
}

func TestInteractCmd_RejectsInvalidData(t *testing.T) {
	root := newRootCmd()
	var errOut bytes.Buffer
	root.SetErr(&errOut)
	root.SetArgs([]string{"interact", "--assignment", "a1", "--user", "u1", "--component", "c1", "--action", "SUBMIT", "--data", "{"})

	assert.Equal(t, 1, execute(root))
	assert.Contains(t, errOut.String(), "not valid JSON")
}

func TestRedisConfigMapping(t *testing.T) {
	rc := redisConfig(config.RedisConfig{Host: "cache", Port: 6380, DB: 2, PoolSize: 4})
	assert.Equal(t, "cache:6380", rc.Addr())
	assert.Equal(t, 2, rc.DB)
	assert.Equal(t, 4, rc.PoolSize)
}
