package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
)

// monitorCooldown mirrors main.py:monitor_mode's COOLDOWN: a newly-seen
// stream file is left alone until this long has passed since its last
// write, so a capture still in progress isn't read mid-write.
const monitorCooldown = 2 * time.Second

var monitorCmd = &cobra.Command{
	Use:   "monitor <root>",
	Short: "Watch a directory tree for new flux captures and reconstruct them as they arrive",
	Long: "monitor replaces polling a directory tree for new stream files with an\n" +
		"fsnotify watch: every subdirectory under <root> is treated as one\n" +
		"medium, and each one is (re-)processed shortly after a *.raw file\n" +
		"inside it stops changing.",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMonitor(args[0])
	},
}

func init() {
	rootCmd.AddCommand(monitorCmd)
}

// monitorScheduler debounces the streams belonging to each medium directory:
// every Write/Create event on a *.raw file inside it (re)starts that
// directory's timer, and only once the timer fires uninterrupted does the
// directory actually get processed. This also serializes repeated
// processing of the same directory, since a directory's timer callback
// can't overlap with a still-pending reset of the same timer.
type monitorScheduler struct {
	mu    sync.Mutex
	timer map[string]*time.Timer
}

func newMonitorScheduler() *monitorScheduler {
	return &monitorScheduler{timer: map[string]*time.Timer{}}
}

func (s *monitorScheduler) schedule(dir string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.timer[dir]; ok {
		t.Stop()
	}
	s.timer[dir] = time.AfterFunc(monitorCooldown, func() {
		monitorOnce(dir)
	})
}

func runMonitor(root string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer watcher.Close()

	sched := newMonitorScheduler()
	if err := addTreeToWatcher(watcher, root, sched); err != nil {
		return err
	}
	log.Info("watching directory tree", "root", root)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	for {
		select {
		case sig := <-sigCh:
			log.Info("stopping monitor", "signal", sig)
			return nil
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Error("watch error", "err", err)
		case e, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if e.Has(fsnotify.Create) {
				if info, statErr := os.Stat(e.Name); statErr == nil && info.IsDir() {
					if err := addTreeToWatcher(watcher, e.Name, sched); err != nil {
						log.Warn("failed to watch new directory", "dir", e.Name, "err", err)
					}
					continue
				}
			}
			if !e.Has(fsnotify.Create) && !e.Has(fsnotify.Write) {
				continue
			}
			if !strings.HasSuffix(e.Name, ".raw") {
				continue
			}
			sched.schedule(filepath.Dir(e.Name))
		}
	}
}

// addTreeToWatcher adds root and every directory beneath it to watcher, and
// immediately schedules any medium directory that already has *.raw files
// sitting in it (covers files that arrived before monitor started watching,
// or an already-populated directory created in one burst).
func addTreeToWatcher(watcher *fsnotify.Watcher, root string, sched *monitorScheduler) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if err := watcher.Add(path); err != nil {
			return fmt.Errorf("watching %s: %w", path, err)
		}
		files, err := streamFiles(path)
		if err != nil {
			return err
		}
		if len(files) > 0 {
			sched.schedule(path)
		}
		return nil
	})
}

// monitorOnce runs one incremental recon pass over dir's stream files,
// relying on the directory's own cache to skip anything already decoded.
func monitorOnce(dir string) {
	files, err := streamFiles(dir)
	if err != nil {
		log.Warn("listing streams", "dir", dir, "err", err)
		return
	}
	if len(files) == 0 {
		return
	}

	m, err := processMedium(dir, files, cfg, processOptions{})
	if err != nil {
		log.Error("processing medium", "dir", dir, "err", err)
		return
	}
	log.Info("medium updated", "dir", dir, "summary", m.Summary())
	for _, msg := range m.Messages() {
		log.Warn("medium message", "dir", dir, "message", msg)
	}
}
