package lifecycle

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func makeIndexDir(t *testing.T) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "v20260826T120000")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "manifest.json"), []byte("{}"), 0o644))
	return dir
}

func TestCleanupManager_SweepDeletesUnreferenced(t *testing.T) {
	tr := NewQueryTracker()
	cm := NewCleanupManager(tr, time.Second)

	dir := makeIndexDir(t)
	cm.Schedule(dir)
	cm.Sweep()

	_, err := os.Stat(dir)
	assert.True(t, os.IsNotExist(err))
	assert.Empty(t, cm.Pending())
}

func TestCleanupManager_SweepDefersWhileReferenced(t *testing.T) {
	tr := NewQueryTracker()
	cm := NewCleanupManager(tr, time.Second)

	dir := makeIndexDir(t)
	tr.Increment(dir)
	cm.Schedule(dir)
	cm.Sweep()

	_, err := os.Stat(dir)
	assert.NoError(t, err, "held directory must survive the sweep")
	assert.Equal(t, []string{dir}, cm.Pending())

	require.NoError(t, tr.Decrement(dir))
	cm.Sweep()

	_, err = os.Stat(dir)
	assert.True(t, os.IsNotExist(err))
	assert.Empty(t, cm.Pending())
}

func TestCleanupManager_ScheduleIsIdempotent(t *testing.T) {
	cm := NewCleanupManager(NewQueryTracker(), time.Second)

	cm.Schedule("/v1")
	cm.Schedule("/v1")
	cm.Schedule("")

	assert.Equal(t, []string{"/v1"}, cm.Pending())
}

func TestCleanupManager_StartStop(t *testing.T) {
	defer goleak.VerifyNone(t)

	tr := NewQueryTracker()
	cm := NewCleanupManager(tr, 10*time.Millisecond)

	dir := makeIndexDir(t)
	cm.Schedule(dir)

	cm.Start()
	cm.Start() // second Start is a no-op

	assert.Eventually(t, func() bool {
		_, err := os.Stat(dir)
		return os.IsNotExist(err)
	}, 2*time.Second, 10*time.Millisecond)

	cm.Stop()
	cm.Stop() // second Stop is a no-op
}
