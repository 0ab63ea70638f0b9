package db

import (
	"context"
	"testing"
	"time"

	"github.com/smallbiznis/zeltra/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDialect(t *testing.T) {
	for _, kind := range []string{"postgres", "mysql", "sqlite"} {
		d, err := Dialect(config.Config{DBType: kind, DBPath: "test.db"})
		require.NoError(t, err, kind)
		assert.Equal(t, kind, d.Name())
	}

	_, err := Dialect(config.Config{DBType: "oracle"})
	assert.Error(t, err)
}

func TestTimeoutDefaults(t *testing.T) {
	ctx, cancel := Timeout(0).WithTimeout(context.Background())
	defer cancel()

	deadline, ok := ctx.Deadline()
	require.True(t, ok)
	assert.WithinDuration(t, time.Now().Add(DefaultQueryTimeout), deadline, time.Second)
}
