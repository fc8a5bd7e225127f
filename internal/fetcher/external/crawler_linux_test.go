//go:build linux

package external

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/leadgraph-enricher/internal/lead"
)

// processAlive treats zombies as dead; they hold no resources beyond the pid.
func processAlive(pid int) bool {
	raw, err := os.ReadFile(fmt.Sprintf("/proc/%d/stat", pid))
	if err != nil {
		return false
	}
	stat := string(raw)
	idx := strings.LastIndex(stat, ")")
	if idx < 0 || idx+2 >= len(stat) {
		return false
	}
	state := stat[idx+2]
	return state != 'Z' && state != 'X'
}

func TestCrawl_KillsProcessGroupAfterDeadline(t *testing.T) {
	t.Parallel()

	pidFile := filepath.Join(t.TempDir(), "child.pid")
	c := newHelperCrawler(t, helperConfig("hang", "probe-ok", "HELPER_PID_FILE="+pidFile))
	var started int
	c.onStart = func(pid int) { started = pid }

	timeout := 300 * time.Millisecond
	begin := time.Now()
	res := c.Crawl(context.Background(), "https://acme.example/", timeout)
	elapsed := time.Since(begin)

	require.False(t, res.Success)
	require.ErrorIs(t, res.Err, lead.ErrTransient)
	require.ErrorContains(t, res.Err, "timed out")
	require.GreaterOrEqual(t, elapsed, timeout+c.cfg.Grace)
	require.Less(t, elapsed, timeout+c.cfg.Grace+1500*time.Millisecond)

	require.NotZero(t, started)
	require.False(t, processAlive(started))

	raw, err := os.ReadFile(pidFile)
	if errors.Is(err, os.ErrNotExist) {
		t.Skip("helper did not spawn a grandchild before the deadline")
	}
	require.NoError(t, err)
	child, err := strconv.Atoi(string(raw))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return !processAlive(child) }, 2*time.Second, 20*time.Millisecond)
}

func TestCrawl_CanceledRunLeavesNoProcess(t *testing.T) {
	t.Parallel()

	c := newHelperCrawler(t, helperConfig("hang", "probe-ok"))
	var started int
	c.onStart = func(pid int) { started = pid }

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(100*time.Millisecond, cancel)
	res := c.Crawl(ctx, "https://acme.example/", 30*time.Second)

	require.False(t, res.Success)
	require.NotZero(t, started)
	require.False(t, processAlive(started))
}
