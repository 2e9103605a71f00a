package deliver

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// Maildir delivers a batch bit-exactly per spec.md §4.5: every message
// in the batch is written to a uniquely named temp file and fsynced,
// then the whole batch is renamed into D/new under a single directory
// lock and a single directory fsync. A directory-fsync failure at the
// end demotes every UID in the batch back to undelivered, since nothing
// is durable until that fsync succeeds.
type Maildir struct {
	Root     string
	Hostname string // overridable for tests; empty means os.Hostname()
	Logger   *slog.Logger

	once sync.Once
}

func (m *Maildir) logger() *slog.Logger {
	if m.Logger != nil {
		return m.Logger
	}
	return slog.Default()
}

func (m *Maildir) hostname() string {
	if m.Hostname != "" {
		return m.Hostname
	}
	h, err := os.Hostname()
	if err != nil {
		return "localhost"
	}
	return h
}

// ensureDirs creates D/tmp, D/new, D/cur if they do not already exist.
// This function only reports the error; DeliverBatch logs it and
// reports every message of the batch undelivered. No Catastrophic-scoped
// error is raised for it.
func (m *Maildir) ensureDirs() error {
	for _, sub := range []string{"tmp", "new", "cur"} {
		if err := os.MkdirAll(filepath.Join(m.Root, sub), 0o750); err != nil {
			return fmt.Errorf("create maildir %s: %w", sub, err)
		}
	}
	return nil
}

type writtenTemp struct {
	uid  uint32
	path string
	hash string
	size int
}

// DeliverBatch implements Deliverer.
func (m *Maildir) DeliverBatch(msgs []Message) (delivered, undelivered []uint32) {
	if err := m.ensureDirs(); err != nil {
		m.logger().Error("maildir setup failed", "root", m.Root, "error", err)
		for _, msg := range msgs {
			undelivered = append(undelivered, msg.UID)
		}
		return nil, undelivered
	}

	var temps []writtenTemp
	for _, msg := range msgs {
		t, err := m.writeTemp(msg)
		if err != nil {
			m.logger().Warn("maildir temp write failed", "uid", msg.UID, "error", err)
			undelivered = append(undelivered, msg.UID)
			continue
		}
		temps = append(temps, t)
	}

	for i := range temps {
		f, err := os.OpenFile(temps[i].path, os.O_WRONLY, 0)
		if err != nil {
			undelivered = append(undelivered, temps[i].uid)
			os.Remove(temps[i].path)
			temps[i].uid = 0
			continue
		}
		err = f.Sync()
		closeErr := f.Close()
		if err != nil || closeErr != nil {
			undelivered = append(undelivered, temps[i].uid)
			os.Remove(temps[i].path)
			temps[i].uid = 0
		}
	}

	live := temps[:0]
	for _, t := range temps {
		if t.uid != 0 {
			live = append(live, t)
		}
	}
	temps = live
	if len(temps) == 0 {
		return delivered, undelivered
	}

	renamed, renameFail, err := m.renameBatch(temps)
	if err != nil {
		m.logger().Error("maildir directory fsync failed, demoting batch to undelivered", "root", m.Root, "error", err)
		for _, t := range temps {
			undelivered = append(undelivered, t.uid)
		}
		return delivered, undelivered
	}

	delivered = append(delivered, renamed...)
	undelivered = append(undelivered, renameFail...)
	return delivered, undelivered
}

// writeTemp opens D/tmp/IAP_<pid>_<epoch-ms>_<n>.<hostname>,S=<S>.part
// with exclusive-create semantics, retrying with an incremented n on
// collision, and writes header then body.
func (m *Maildir) writeTemp(msg Message) (writtenTemp, error) {
	size := len(msg.Header) + len(msg.Body)
	sum := sha256.Sum256(append(append([]byte{}, msg.Header...), msg.Body...))
	hash := hex.EncodeToString(sum[:])
	pid := os.Getpid()
	epochMS := time.Now().UnixMilli()

	for n := 0; ; n++ {
		name := fmt.Sprintf("IAP_%d_%d_%d.%s,S=%d.part", pid, epochMS, n, m.hostname(), size)
		path := filepath.Join(m.Root, "tmp", name)

		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
		if os.IsExist(err) {
			continue
		}
		if err != nil {
			return writtenTemp{}, err
		}

		_, werr := f.Write(msg.Header)
		if werr == nil {
			_, werr = f.Write(msg.Body)
		}
		closeErr := f.Close()
		if werr != nil || closeErr != nil {
			os.Remove(path)
			if werr == nil {
				werr = closeErr
			}
			return writtenTemp{}, werr
		}

		return writtenTemp{uid: msg.UID, path: path, hash: hash, size: size}, nil
	}
}

// renameBatch locks D/new, renames every temp file to its final
// IAH_<hash>_<m> name, fsyncs the directory, and releases the lock.
func (m *Maildir) renameBatch(temps []writtenTemp) (renamed, failed []uint32, dirErr error) {
	newDir := filepath.Join(m.Root, "new")
	dirFile, err := os.Open(newDir)
	if err != nil {
		removeTemps(temps)
		return nil, nil, fmt.Errorf("open %s: %w", newDir, err)
	}
	defer dirFile.Close()

	if err := unix.Flock(int(dirFile.Fd()), unix.LOCK_EX); err != nil {
		removeTemps(temps)
		return nil, nil, fmt.Errorf("lock %s: %w", newDir, err)
	}
	defer unix.Flock(int(dirFile.Fd()), unix.LOCK_UN)

	for _, t := range temps {
		finalName, err := m.reserveFinalName(newDir, t.hash, t.size)
		if err != nil {
			failed = append(failed, t.uid)
			os.Remove(t.path)
			continue
		}
		if err := os.Rename(t.path, filepath.Join(newDir, finalName)); err != nil {
			failed = append(failed, t.uid)
			os.Remove(t.path)
			continue
		}
		renamed = append(renamed, t.uid)
	}

	if err := dirFile.Sync(); err != nil {
		return nil, nil, fmt.Errorf("fsync %s: %w", newDir, err)
	}
	return renamed, failed, nil
}

// removeTemps unlinks every temp file already written under D/tmp when
// renameBatch can't proceed to the rename step at all, so a lock or
// open failure doesn't orphan them there.
func removeTemps(temps []writtenTemp) {
	for _, t := range temps {
		os.Remove(t.path)
	}
}

// reserveFinalName finds the smallest m >= 0 whose
// IAH_<hash>_<m>.<hostname>,S=<S> does not already exist in dir.
func (m *Maildir) reserveFinalName(dir, hash string, size int) (string, error) {
	for i := 0; ; i++ {
		name := fmt.Sprintf("IAH_%s_%d.%s,S=%d", hash, i, m.hostname(), size)
		if _, err := os.Stat(filepath.Join(dir, name)); os.IsNotExist(err) {
			return name, nil
		} else if err != nil {
			return "", err
		}
	}
}
