package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/jpillora/backoff"
	"github.com/rs/zerolog"

	"github.com/alefaraci/GoRaster/internal/logging"
	"github.com/alefaraci/GoRaster/internal/oops"
	"github.com/alefaraci/GoRaster/internal/raster"
)

// pathLocker provides per-path mutual exclusion. Entries are dropped once no
// goroutine holds or waits for them.
type pathLocker struct {
	mu    sync.Mutex
	locks map[string]*pathLock
}

type pathLock struct {
	mu   sync.Mutex
	refs int
}

func newPathLocker() *pathLocker {
	return &pathLocker{locks: make(map[string]*pathLock)}
}

func (pl *pathLocker) Lock(path string) {
	pl.mu.Lock()
	l, ok := pl.locks[path]
	if !ok {
		l = &pathLock{}
		pl.locks[path] = l
	}
	l.refs++
	pl.mu.Unlock()
	l.mu.Lock()
}

func (pl *pathLocker) Unlock(path string) {
	pl.mu.Lock()
	l, ok := pl.locks[path]
	if !ok {
		pl.mu.Unlock()
		return
	}
	l.refs--
	if l.refs == 0 {
		delete(pl.locks, path)
	}
	pl.mu.Unlock()
	l.mu.Unlock()
}

// debouncer coalesces rapid event bursts into a single callback per file.
// After stop returns no callback is running and none will start.
type debouncer struct {
	mu      sync.Mutex
	timers  map[string]*time.Timer
	delay   time.Duration
	onFire  func(path string)
	stopped bool
	running sync.WaitGroup
}

func newDebouncer(delay time.Duration, onFire func(path string)) *debouncer {
	return &debouncer{
		timers: make(map[string]*time.Timer),
		delay:  delay,
		onFire: onFire,
	}
}

func (d *debouncer) trigger(path string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	if t, ok := d.timers[path]; ok {
		t.Reset(d.delay)
		return
	}
	d.timers[path] = time.AfterFunc(d.delay, func() {
		d.mu.Lock()
		if d.stopped {
			d.mu.Unlock()
			return
		}
		delete(d.timers, path)
		d.running.Add(1)
		d.mu.Unlock()

		defer d.running.Done()
		d.onFire(path)
	})
}

func (d *debouncer) stop() {
	d.mu.Lock()
	d.stopped = true
	for path, t := range d.timers {
		t.Stop()
		delete(d.timers, path)
	}
	d.mu.Unlock()
	d.running.Wait()
}

func runWatchMode(ctx context.Context, cfg *Config) error {
	log := logging.GlobalLogger().With().Str("module", "watch").Logger()
	ctx = logging.AttachLoggerToContext(&log, ctx)

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return oops.New(err, "failed to create watcher")
	}
	defer w.Close()

	for _, dir := range cfg.Watch.InputDirs() {
		if err := watchRecursive(w, dir); err != nil {
			return oops.New(err, "failed to watch %s", dir)
		}
		log.Info().Str("dir", dir).Msg("watching")
	}

	outLock := newPathLocker()

	sem := make(chan struct{}, runtime.GOMAXPROCS(0))
	var wg sync.WaitGroup

	db := newDebouncer(500*time.Millisecond, func(path string) {
		j := classifyEvent(path, cfg)
		if j == nil || ctx.Err() != nil {
			return
		}
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer func() { <-sem; wg.Done() }()
			defer logging.LogPanics(&log)
			outLock.Lock(j.output)
			defer outLock.Unlock(j.output)
			if recheck := classifyEvent(path, cfg); recheck == nil {
				return
			}
			convertJob(ctx, *j, cfg)
		}()
	})

	initialScan(ctx, cfg, outLock)

	log.Info().Msg("daemon ready, waiting for file changes")

	// Polling fallback for network/virtual filesystems where inotify/kqueue doesn't fire
	go pollLoop(ctx, cfg, cfg.Watch.PollDuration(), func(path string) {
		db.trigger(path)
	}, func(path string) {
		handleDeletion(ctx, path, cfg)
	})

	eventLoop(ctx, w, db, cfg)
	db.stop()

	log.Info().Msg("waiting for in-flight conversions")
	wg.Wait()
	log.Info().Msg("shutdown complete")
	return nil
}

func watchRecursive(w *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			return w.Add(path)
		}
		return nil
	})
}

// initialScan converts stale images in watched directories.
// Jobs are deduplicated by output path to prevent concurrent writes.
func initialScan(ctx context.Context, cfg *Config, outLock *pathLocker) {
	syncOrphanedOutputs(ctx, cfg)

	jobs := make(map[string]convJob)

	for _, dir := range cfg.Watch.InputDirs() {
		filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
			if err != nil || d.IsDir() {
				return nil
			}
			if j := classifyEvent(path, cfg); j != nil {
				jobs[j.output] = *j
			}
			return nil
		})
	}

	sem := make(chan struct{}, runtime.GOMAXPROCS(0))
	var wg sync.WaitGroup
	for _, j := range jobs {
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer func() { <-sem; wg.Done() }()
			outLock.Lock(j.output)
			defer outLock.Unlock(j.output)
			convertJob(ctx, j, cfg)
		}()
	}
	wg.Wait()
}

func eventLoop(ctx context.Context, w *fsnotify.Watcher, db *debouncer, cfg *Config) {
	log := logging.ExtractLogger(ctx)
	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if ev.Has(fsnotify.Remove) {
				if isSourceImage(ev.Name) {
					handleDeletion(ctx, ev.Name, cfg)
				}
				continue
			}
			if ev.Has(fsnotify.Create) {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					watchRecursive(w, ev.Name)
					continue
				}
			}
			// Atomic file replacement: verify the renamed path still exists
			// and re-add the parent for inode tracking.
			if ev.Has(fsnotify.Rename) {
				if _, err := os.Stat(ev.Name); err != nil {
					continue
				}
				w.Add(filepath.Dir(ev.Name))
			}
			db.trigger(ev.Name)

		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			log.Error().Err(err).Msg("watcher error")
		}
	}
}

// pollLoop walks input directories at a fixed interval to detect mtime changes
// that the filesystem never reported.
func pollLoop(ctx context.Context, cfg *Config, interval time.Duration, onChanged func(path string), onDeleted func(path string)) {
	mtimes := make(map[string]time.Time)
	prevSources := make(map[string]bool)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		sources := make(map[string]bool)
		for _, dir := range cfg.Watch.InputDirs() {
			filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
				if err != nil || d.IsDir() || !isSourceImage(path) {
					return nil
				}
				sources[path] = true
				info, err := d.Info()
				if err != nil {
					return nil
				}
				mt := info.ModTime()
				if prev, ok := mtimes[path]; !ok || !mt.Equal(prev) {
					mtimes[path] = mt
					onChanged(path)
				}
				return nil
			})
		}

		for path := range prevSources {
			if !sources[path] {
				onDeleted(path)
			}
		}
		prevSources = sources

		for path := range sources {
			out := outputPathForSource(path, cfg)
			if out == "" {
				continue
			}
			if _, err := os.Stat(bmpPath(out)); err != nil {
				onChanged(path)
			}
		}

		for path := range mtimes {
			if !sources[path] {
				delete(mtimes, path)
			}
		}
	}
}

// classifyEvent returns the conversion a changed path calls for, or nil when
// the path is not a source image or its output is current.
func classifyEvent(path string, cfg *Config) *convJob {
	if !isSourceImage(path) {
		return nil
	}
	out := outputPathForSource(path, cfg)
	if out == "" {
		return nil
	}
	if isUpToDate(path, bmpPath(out)) {
		return nil
	}
	return &convJob{input: path, output: out}
}

// convertJob converts one file, retrying while the source looks truncated.
// A file that is still being copied into a watched directory parses as a
// truncated stream until the writer finishes.
func convertJob(ctx context.Context, j convJob, cfg *Config) {
	log := logging.ExtractLogger(ctx)

	if dir := filepath.Dir(j.output); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			log.Error().Err(err).Str("dir", dir).Msg("failed to create directory")
			return
		}
	}

	boff := backoff.Backoff{
		Min:    250 * time.Millisecond,
		Max:    cfg.Watch.RetryDuration(),
		Factor: 2,
	}

	start := time.Now()
	for {
		written, err := ConvertFile(j.input, j.output, cfg)
		if err == nil {
			log.Info().
				Str("input", filepath.Base(j.input)).
				Str("output", filepath.Base(written)).
				Dur("took", time.Since(start)).
				Msg("converted")
			return
		}

		if !errors.Is(err, raster.ErrTruncatedStream) || time.Since(start) > cfg.Watch.RetryDuration() {
			logConversionError(log, j.input, err)
			return
		}

		dur := boff.Duration()
		log.Debug().Err(err).Str("input", j.input).Dur("retrying after", dur).Msg("source looks incomplete")

		timer := time.NewTimer(dur)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func logConversionError(log *zerolog.Logger, input string, err error) {
	log.Error().
		Err(err).
		Str("input", input).
		Int64("offset", raster.OffsetOf(err)).
		Msg("conversion failed")
}

func sourceDir(path string, cfg *Config) string {
	for _, dir := range cfg.Watch.InputDirs() {
		if isUnderDir(path, dir) {
			return dir
		}
	}
	return ""
}

func isUnderDir(path, dir string) bool {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return false
	}
	return strings.HasPrefix(absPath, absDir+string(filepath.Separator)) || absPath == absDir
}

// outputPathForSource maps a source under a watched directory to its output
// name (without the .bmp suffix) under the watch location.
func outputPathForSource(path string, cfg *Config) string {
	srcDir := sourceDir(path, cfg)
	if srcDir == "" {
		return ""
	}
	rel, err := filepath.Rel(srcDir, path)
	if err != nil {
		return ""
	}
	return filepath.Join(cfg.Watch.Location, defaultOutputName(rel))
}

// handleDeletion removes the output for a deleted source file and cleans up
// empty parent directories up to the output root.
func handleDeletion(ctx context.Context, path string, cfg *Config) {
	log := logging.ExtractLogger(ctx)

	out := outputPathForSource(path, cfg)
	if out == "" {
		return
	}
	out = bmpPath(out)
	if _, err := os.Stat(out); err != nil {
		return
	}
	if err := os.Remove(out); err != nil {
		log.Error().Err(err).Str("output", out).Msg("failed to remove output")
		return
	}
	log.Info().Str("output", filepath.Base(out)).Msg("removed output, source deleted")
	removeEmptyParents(filepath.Dir(out), cfg.Watch.Location)
}

func removeEmptyParents(dir, stopDir string) {
	absStop, err := filepath.Abs(stopDir)
	if err != nil {
		return
	}
	for {
		absDir, err := filepath.Abs(dir)
		if err != nil || absDir == absStop {
			return
		}
		if !strings.HasPrefix(absDir, absStop+string(filepath.Separator)) {
			return
		}
		entries, err := os.ReadDir(dir)
		if err != nil || len(entries) > 0 {
			return
		}
		if err := os.Remove(dir); err != nil {
			return
		}
		dir = filepath.Dir(dir)
	}
}

// syncOrphanedOutputs deletes bitmaps in the watch location whose source is gone.
func syncOrphanedOutputs(ctx context.Context, cfg *Config) {
	log := logging.ExtractLogger(ctx)

	outDir := cfg.Watch.Location
	if outDir == "" {
		return
	}
	filepath.WalkDir(outDir, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if !hasSuffixFold(path, ".bmp") {
			return nil
		}
		if !hasSourceFile(path, cfg) {
			if err := os.Remove(path); err != nil {
				log.Error().Err(err).Str("output", path).Msg("failed to remove orphaned output")
			} else {
				log.Info().Str("output", filepath.Base(path)).Msg("removed orphaned output")
				removeEmptyParents(filepath.Dir(path), outDir)
			}
		}
		return nil
	})
}

// hasSourceFile reports whether any input directory holds an image that
// converts to outputBMP, whatever the case of its extension.
func hasSourceFile(outputBMP string, cfg *Config) bool {
	rel, err := filepath.Rel(cfg.Watch.Location, outputBMP)
	if err != nil {
		return false
	}
	base := defaultOutputName(rel)
	for _, dir := range cfg.Watch.InputDirs() {
		entries, err := os.ReadDir(filepath.Join(dir, filepath.Dir(base)))
		if err != nil {
			continue
		}
		for _, e := range entries {
			if e.IsDir() || !isSourceImage(e.Name()) {
				continue
			}
			if defaultOutputName(e.Name()) == filepath.Base(base) {
				return true
			}
		}
	}
	return false
}
