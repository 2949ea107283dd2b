package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionArg(t *testing.T) {
	v, err := versionArg([]string{"5"})
	require.NoError(t, err)
	assert.Equal(t, uint(5), v)

	_, err = versionArg(nil)
	assert.EqualError(t, err, "missing version")

	_, err = versionArg([]string{"-1"})
	assert.Error(t, err)
}

func TestTargetFromEnv(t *testing.T) {
	t.Setenv("DB_USER", "ops")
	t.Setenv("DB_PASSWORD", "pw")
	t.Setenv("DB_HOST", "mysql")
	t.Setenv("DB_PORT", "3307")
	t.Setenv("DB_NAME", "votes")

	target := targetFromEnv()
	assert.Equal(t, "mysql://ops:pw@tcp(mysql:3307)/votes?multiStatements=true", target.url())
	assert.Equal(t, "ops@mysql:3307/votes", target.String())
	assert.NotContains(t, target.String(), "pw")
}
