package daemon

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func waitChange(t *testing.T, m *Monitor) {
	t.Helper()
	select {
	case <-m.Changes():
	case <-time.After(3 * time.Second):
		t.Fatal("no change notification")
	}
}

func TestMonitorDetectsNewLog(t *testing.T) {
	root := t.TempDir()
	project := filepath.Join(root, "p")
	require.NoError(t, os.MkdirAll(project, 0755))

	m := NewMonitor(root, 50*time.Millisecond, 10*time.Millisecond, nil)
	m.Start()
	defer m.Stop()

	require.NoError(t, os.WriteFile(filepath.Join(project, "s.jsonl"), []byte("{}\n"), 0644))
	waitChange(t, m)
}

func TestMonitorDetectsAppend(t *testing.T) {
	root := t.TempDir()
	project := filepath.Join(root, "p")
	require.NoError(t, os.MkdirAll(project, 0755))
	path := filepath.Join(project, "s.jsonl")
	require.NoError(t, os.WriteFile(path, []byte("{}\n"), 0644))

	m := NewMonitor(root, 50*time.Millisecond, 10*time.Millisecond, nil)
	m.Start()
	defer m.Stop()

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	require.NoError(t, err)
	_, err = f.WriteString("{}\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	waitChange(t, m)
}

func TestMonitorIgnoresOtherFiles(t *testing.T) {
	root := t.TempDir()
	project := filepath.Join(root, "p")
	require.NoError(t, os.MkdirAll(project, 0755))

	m := NewMonitor(root, 50*time.Millisecond, 10*time.Millisecond, nil)
	m.Start()
	defer m.Stop()

	require.NoError(t, os.WriteFile(filepath.Join(project, "notes.txt"), []byte("x"), 0644))

	select {
	case <-m.Changes():
		t.Fatal("unexpected change notification")
	case <-time.After(300 * time.Millisecond):
	}
}

func TestMonitorMissingRoot(t *testing.T) {
	m := NewMonitor(filepath.Join(t.TempDir(), "missing"), 20*time.Millisecond, 0, nil)
	m.Start()
	time.Sleep(60 * time.Millisecond)
	m.Stop()
}

func TestMonitorSignalsDuringSteadyAppends(t *testing.T) {
	root := t.TempDir()
	project := filepath.Join(root, "p")
	require.NoError(t, os.MkdirAll(project, 0755))
	path := filepath.Join(project, "s.jsonl")
	require.NoError(t, os.WriteFile(path, []byte("{}\n"), 0644))

	m := NewMonitor(root, 200*time.Millisecond, 300*time.Millisecond, nil)
	m.Start()
	defer m.Stop()

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
				if err != nil {
					return
				}
				_, _ = f.WriteString("{}\n")
				_ = f.Close()
			}
		}
	}()
	defer func() {
		close(stop)
		<-done
	}()

	waitChange(t, m)
}
