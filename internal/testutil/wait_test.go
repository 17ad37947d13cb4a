package testutil

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

func TestWaitFor_ImmediateSuccess(t *testing.T) {
	t.Parallel()
	if !WaitFor(t, func() bool { return true }, WithTimeout(time.Second)) {
		t.Error("expected WaitFor to return true for immediate success")
	}
}

func TestWaitFor_EventualSuccess(t *testing.T) {
	t.Parallel()
	counter := 0
	result := WaitFor(t, func() bool {
		counter++
		return counter >= 3
	}, WithTimeout(time.Second), WithInterval(5*time.Millisecond))

	if !result {
		t.Error("expected WaitFor to return true for eventual success")
	}
	if counter != 3 {
		t.Errorf("expected 3 checks, got %d", counter)
	}
}

func TestWaitFor_Timeout(t *testing.T) {
	t.Parallel()
	start := time.Now()
	result := WaitFor(t, func() bool { return false },
		WithTimeout(50*time.Millisecond), WithInterval(10*time.Millisecond))

	if result {
		t.Error("expected WaitFor to return false on timeout")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("expected to give up near the timeout, took %v", elapsed)
	}
}

func TestWaitFor_ConcurrentWriter(t *testing.T) {
	t.Parallel()
	var flag atomic.Bool
	go func() {
		time.Sleep(20 * time.Millisecond)
		flag.Store(true)
	}()

	MustWaitFor(t, flag.Load, WithTimeout(time.Second), WithInterval(5*time.Millisecond))
}

func TestWriteFile(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	path := WriteFile(t, root, "src/classes/Foo.cls", "public class Foo {}")

	if path != filepath.Join(root, "src", "classes", "Foo.cls") {
		t.Errorf("unexpected path %s", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "public class Foo {}" {
		t.Errorf("unexpected content %q", data)
	}
}
