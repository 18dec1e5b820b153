package workspace

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/runbox/pkg/events"
)

func TestOpenMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "main.c")

	src, err := Open(path, nil)
	require.NoError(t, err)
	assert.Equal(t, "", src.Text())
	assert.True(t, filepath.IsAbs(src.Path()))
}

func TestOpenExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "main.c")
	require.NoError(t, os.WriteFile(path, []byte("int main(){}"), 0644))

	src, err := Open(path, nil)
	require.NoError(t, err)
	assert.Equal(t, "int main(){}", src.Text())
}

func TestSave(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "main.c")

	src, err := Open(path, nil)
	require.NoError(t, err)
	require.NoError(t, src.Save("int main(){ return 1; }"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "int main(){ return 1; }", string(data))
	assert.Equal(t, "int main(){ return 1; }", src.Text())

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(DefaultFileMode), info.Mode().Perm())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".tmp-", "temp file left behind")
	}
}

func TestConcurrentSaves(t *testing.T) {
	path := filepath.Join(t.TempDir(), "main.c")
	a, err := Open(path, nil)
	require.NoError(t, err)
	b, err := Open(path, nil)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() { defer wg.Done(); assert.NoError(t, a.Save("aaaa")) }()
		go func() { defer wg.Done(); assert.NoError(t, b.Save("bbbb")) }()
	}
	wg.Wait()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, []string{"aaaa", "bbbb"}, string(data))
}

func TestSaveIntoMissingDirectoryFails(t *testing.T) {
	src, err := Open(filepath.Join(t.TempDir(), "nope", "main.c"), nil)
	require.NoError(t, err)
	assert.Error(t, src.Save("x"))
}

func TestWatchReloadsExternalEdits(t *testing.T) {
	bus := events.NewEventBus()
	defer bus.Shutdown()

	reloaded := make(chan events.Event, 8)
	bus.Subscribe(events.SourceReloaded, func(e events.Event) { reloaded <- e })

	path := filepath.Join(t.TempDir(), "main.c")
	require.NoError(t, os.WriteFile(path, []byte("v1"), 0644))

	src, err := Open(path, bus)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, src.Watch(ctx))
	defer src.Close()
	assert.Error(t, src.Watch(ctx), "second watch is rejected")

	// An external editor writes a new version.
	require.NoError(t, os.WriteFile(path, []byte("v2"), 0644))

	select {
	case e := <-reloaded:
		assert.Equal(t, "v2", e.String("text"))
		assert.Equal(t, src.Path(), e.String("path"))
	case <-time.After(5 * time.Second):
		t.Fatal("no reload event")
	}
	assert.Equal(t, "v2", src.Text())
}

func TestWatchIgnoresOwnSaves(t *testing.T) {
	bus := events.NewEventBus()
	defer bus.Shutdown()

	var mu sync.Mutex
	var texts []string
	bus.Subscribe(events.SourceReloaded, func(e events.Event) {
		mu.Lock()
		texts = append(texts, e.String("text"))
		mu.Unlock()
	})

	dir := t.TempDir()
	path := filepath.Join(dir, "main.c")
	src, err := Open(path, bus)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, src.Watch(ctx))
	defer src.Close()

	require.NoError(t, src.Save("mine"))
	// Unrelated files in the directory are ignored.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.c"), []byte("x"), 0644))

	time.Sleep(200 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Empty(t, texts)
}

func TestCloseWithoutWatch(t *testing.T) {
	src, err := Open(filepath.Join(t.TempDir(), "a.c"), nil)
	require.NoError(t, err)
	assert.NoError(t, src.Close())
}
