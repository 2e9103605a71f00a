package hookrun

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestRunHookWritesTitleAndBodyToStdin(t *testing.T) {
	dir := t.TempDir()
	marker := filepath.Join(dir, "out")

	r := &Runner{}
	r.RunHook([]string{"cat > " + marker}, "new mail", "3 messages")

	data, err := os.ReadFile(marker)
	if err != nil {
		t.Fatalf("hook did not write marker: %v", err)
	}
	if string(data) != "new mail\n3 messages\n" {
		t.Errorf("marker contents = %q", data)
	}
}

func TestRunHookEmptyArgvIsNoop(t *testing.T) {
	r := &Runner{}
	done := make(chan struct{})
	go func() {
		r.RunHook(nil, "t", "b")
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("RunHook(nil, ...) should return immediately")
	}
}

func TestNotifyDesktopNoopWithoutNotifier(t *testing.T) {
	r := &Runner{}
	r.NotifyDesktop("mail", "inboxctl", "t", "b")
}
