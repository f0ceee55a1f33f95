package cmd

import (
	"fmt"
	"path/filepath"
	"sort"

	"github.com/charmbracelet/log"

	"github.com/sergev/fluxrecon/internal/config"
	"github.com/sergev/fluxrecon/internal/format"
	"github.com/sergev/fluxrecon/internal/kryoflux"
	"github.com/sergev/fluxrecon/internal/media"
)

// cacheFileName is the incremental cache this tool writes alongside a
// medium's stream files, recording which streams have already contributed
// their sectors so a rerun only reads what's new.
const cacheFileName = "_.fluxrecon.cache"

func cachePathFor(dir string) string {
	return filepath.Join(dir, cacheFileName)
}

// streamFiles returns the sorted *.raw files directly inside dir.
func streamFiles(dir string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.raw"))
	if err != nil {
		return nil, fmt.Errorf("globbing %s: %w", dir, err)
	}
	sort.Strings(matches)
	return matches, nil
}

// processOptions controls how processMedium treats the incremental cache.
type processOptions struct {
	ignoreCache bool // -a: re-read every stream, even already-cached ones
	noCache     bool // -n: just try, write nothing back to disk
}

// processMedium reconstructs one medium directory's sectors from files,
// loading and appending to the directory's incremental cache as opts
// allows, and pinning the winning recognizer's default geometry (if
// internal/config has one for it) the first time a recognizer succeeds.
func processMedium(dir string, files []string, cfg *config.Config, opts processOptions) (*media.Media, error) {
	m := media.NewMedia(filepath.Base(dir))
	cachePath := cachePathFor(dir)

	done := map[string]bool{}
	if !opts.ignoreCache {
		loaded, err := m.LoadCache(cachePath)
		if err != nil {
			return nil, fmt.Errorf("loading cache for %s: %w", dir, err)
		}
		done = loaded
	}

	var cache *media.CacheFile
	if !opts.noCache {
		var err error
		cache, err = media.OpenCacheFileAppend(cachePath)
		if err != nil {
			return nil, fmt.Errorf("opening cache for %s: %w", dir, err)
		}
		defer cache.Close()
		m.SetCacheFile(cache)
	}

	geometrySet := false
	for _, path := range files {
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			rel = filepath.Base(path)
		}
		if done[rel] {
			continue
		}

		stream, err := kryoflux.Open(path)
		if err != nil {
			log.Warn("skipping stream", "file", rel, "err", err)
			continue
		}

		r, ok := format.ProcessStream(stream, m)
		if ok && !geometrySet {
			m.SetFormat(r.Name())
			if geom, found := cfg.GeometryFor(r.Name()); found {
				m.DefineGeometry(
					media.CHS{Cylinder: geom.FirstCylinder, Head: geom.FirstHead, Sector: geom.FirstSector},
					media.CHS{Cylinder: geom.LastCylinder, Head: geom.LastHead, Sector: geom.LastSector},
					geom.SectorLength,
				)
			}
			geometrySet = true
		}

		if cache != nil {
			if err := cache.WriteFile(rel); err != nil {
				return nil, fmt.Errorf("writing cache for %s: %w", dir, err)
			}
		}

		log.Info("processed stream", "dir", m.Name, "file", rel, "format", recognizerName(r), "summary", m.Summary())
	}

	return m, nil
}

func recognizerName(r format.Recognizer) string {
	if r == nil {
		return "-"
	}
	return r.Name()
}

// printResult renders a medium's picture, summary and missing-sector list to
// stdout, mirroring main.py's end-of-run report.
func printResult(m *media.Media) {
	for _, line := range m.Picture() {
		fmt.Println(line)
	}
	fmt.Println(m.Summary())
	for _, entry := range m.Missing() {
		fmt.Printf("\t%c %d,%d,%d\n", entry.Glyph, entry.CHS.Cylinder, entry.CHS.Head, entry.CHS.Sector)
	}
	for _, msg := range m.Messages() {
		fmt.Println("\t" + msg)
	}
}
