package deliver

import (
	"context"
	"errors"
	"log/slog"
	"os/exec"
	"time"
)

// MDA delivers each message by spawning the configured shell command
// and streaming header then body to its standard input, per message
// (spec.md §4.5's External MDA: no batching, since the command owns
// whatever storage semantics it implements).
type MDA struct {
	Command string
	Timeout time.Duration
	Logger  *slog.Logger
}

func (m *MDA) logger() *slog.Logger {
	if m.Logger != nil {
		return m.Logger
	}
	return slog.Default()
}

// DeliverBatch runs the command once per message; a broken pipe or
// non-zero exit marks that UID undelivered without affecting the rest
// of the batch.
func (m *MDA) DeliverBatch(msgs []Message) (delivered, undelivered []uint32) {
	for _, msg := range msgs {
		if m.deliverOne(msg) {
			delivered = append(delivered, msg.UID)
		} else {
			undelivered = append(undelivered, msg.UID)
		}
	}
	return delivered, undelivered
}

func (m *MDA) deliverOne(msg Message) bool {
	timeout := m.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "sh", "-c", m.Command)
	stdin, err := cmd.StdinPipe()
	if err == nil {
		err = cmd.Start()
	}
	if err != nil {
		m.logger().Warn("MDA delivery failed", "uid", msg.UID, "error", err)
		return false
	}
	_, werr := stdin.Write(msg.Header)
	if werr == nil {
		_, werr = stdin.Write(msg.Body)
	}
	cerr := stdin.Close()
	if err := errors.Join(werr, cerr, cmd.Wait()); err != nil {
		m.logger().Warn("MDA delivery failed", "uid", msg.UID, "error", err)
		return false
	}
	return true
}
