package abiregistry

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/log"
)

const maxArtifactSize = 5 * 1024 * 1024 // 5 MB, per discovery rules

var skipDirs = map[string]bool{
	"node_modules": true,
	"target":       true,
	"dist":         true,
	"build-cache":  true,
}

// Registry is an immutable snapshot of one ABI scan generation (spec
// §4.C "append-only within a scan generation"). The zero value is an
// empty, usable registry.
type Registry struct {
	generation int
	byFunction map[[4]byte][]FunctionEntry
	byEvent    map[[32]byte][]EventEntry
	conflicts  []string // informational notes about selector collisions
}

// FunctionsFor returns every registered function entry for a selector,
// first-seen first (spec §4.C "keep all colliding entries in a
// multimap, render first match").
func (r *Registry) FunctionsFor(selector [4]byte) []FunctionEntry {
	if r == nil {
		return nil
	}
	return r.byFunction[selector]
}

// EventsFor mirrors FunctionsFor for event topic0s.
func (r *Registry) EventsFor(topic0 [32]byte) []EventEntry {
	if r == nil {
		return nil
	}
	return r.byEvent[topic0]
}

// Conflicts lists informational selector-collision notes produced
// during the scan that built this snapshot.
func (r *Registry) Conflicts() []string {
	if r == nil {
		return nil
	}
	return r.conflicts
}

// Generation identifies which scan produced this snapshot; it
// increases by one on every Scan/reload.
func (r *Registry) Generation() int {
	if r == nil {
		return 0
	}
	return r.generation
}

// scanJob is one candidate artifact file found by the directory walk.
type scanJob struct {
	path string
}

// scanResult is the outcome of parsing one artifact.
type scanResult struct {
	path      string
	functions []FunctionEntry
	events    []EventEntry
	err       error
}

// Scan walks root looking for contract-artifact JSON (spec §4.C
// "Discovery rules"), parses matches with a fixed-size worker pool, and
// returns a fresh, fully-built Registry. It never returns an error for
// a single bad file; parse failures are logged and the file is
// skipped, mirroring the decoder's "surface raw hex; do not throw"
// philosophy at the file level.
func Scan(root string, prevGeneration int, workers int) (*Registry, error) {
	if workers <= 0 {
		workers = 4
	}

	jobs := make(chan scanJob)
	results := make(chan scanResult)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				functions, events, err := scanOne(j.path)
				results <- scanResult{path: j.path, functions: functions, events: events, err: err}
			}
		}()
	}

	walkErrCh := make(chan error, 1)
	go func() {
		defer close(jobs)
		walkErrCh <- walkCandidates(root, jobs)
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	reg := &Registry{
		generation: prevGeneration + 1,
		byFunction: make(map[[4]byte][]FunctionEntry),
		byEvent:    make(map[[32]byte][]EventEntry),
	}
	for res := range results {
		if res.err != nil {
			log.Debug("abi artifact skipped", "path", res.path, "err", res.err)
			continue
		}
		reg.merge(res)
	}

	if err := <-walkErrCh; err != nil {
		return reg, fmt.Errorf("walk %s: %w", root, err)
	}
	return reg, nil
}

// merge folds one artifact's parsed entries into the registry, keeping
// every entry and recording a collision note each time an entry's
// signature differs from the first one kept for its selector or topic0.
func (r *Registry) merge(res scanResult) {
	for _, fe := range res.functions {
		existing := r.byFunction[fe.Selector]
		if len(existing) > 0 && existing[0].Signature != fe.Signature {
			r.conflicts = append(r.conflicts, fmt.Sprintf(
				"selector %x: %q and %q collide (first seen wins)",
				fe.Selector, existing[0].Signature, fe.Signature))
		}
		r.byFunction[fe.Selector] = append(existing, fe)
	}
	for _, ee := range res.events {
		existing := r.byEvent[ee.Topic0]
		if len(existing) > 0 && existing[0].Signature != ee.Signature {
			r.conflicts = append(r.conflicts, fmt.Sprintf(
				"topic0 %x: %q and %q collide (first seen wins)",
				ee.Topic0, existing[0].Signature, ee.Signature))
		}
		r.byEvent[ee.Topic0] = append(existing, ee)
	}
}

func scanOne(path string) ([]FunctionEntry, []EventEntry, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, nil, err
	}
	if info.Size() > maxArtifactSize {
		return nil, nil, fmt.Errorf("artifact too large (%d bytes)", info.Size())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}
	return parseArtifact(data)
}

// walkCandidates walks root and pushes every matching artifact path
// onto jobs, per the discovery rules: path must contain an "out" or
// "artifacts" path segment, name must end in ".json", hidden and
// known build/cache directories are skipped entirely.
func walkCandidates(root string, jobs chan<- scanJob) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // best-effort: a stat error on one entry shouldn't kill the scan
		}
		if d.IsDir() {
			name := d.Name()
			if name != "." && (strings.HasPrefix(name, ".") || skipDirs[name]) {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(d.Name(), ".json") {
			return nil
		}
		if !pathHasArtifactSegment(path) {
			return nil
		}
		jobs <- scanJob{path: path}
		return nil
	})
}

func pathHasArtifactSegment(path string) bool {
	for _, seg := range strings.Split(filepath.ToSlash(path), "/") {
		if seg == "out" || seg == "artifacts" {
			return true
		}
	}
	return false
}
