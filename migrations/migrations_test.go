package migrations

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingExecer struct {
	scripts []string
	failOn  int
}

func (r *recordingExecer) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	r.scripts = append(r.scripts, sql)
	if r.failOn > 0 && len(r.scripts) == r.failOn {
		return pgconn.CommandTag{}, errors.New("boom")
	}
	return pgconn.CommandTag{}, nil
}

func TestApplyRunsScriptsInOrder(t *testing.T) {
	names, err := Names()
	require.NoError(t, err)
	require.NotEmpty(t, names)
	assert.Equal(t, "001_journal.sql", names[0])

	exec := &recordingExecer{}
	applied, err := Apply(context.Background(), exec)
	require.NoError(t, err)
	assert.Equal(t, names, applied)
	require.Len(t, exec.scripts, len(names))
	assert.True(t, strings.Contains(exec.scripts[0], "handshake_journal"))
}

func TestApplyStopsOnFailure(t *testing.T) {
	exec := &recordingExecer{failOn: 1}
	_, err := Apply(context.Background(), exec)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "001_journal.sql")
	assert.Len(t, exec.scripts, 1)
}
