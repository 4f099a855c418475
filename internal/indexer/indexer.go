// SPDX-License-Identifier: AGPL-3.0-or-later

// Package indexer discovers job directories under the jobs root.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/flowd-org/simctl/internal/job"
	"golang.org/x/sync/errgroup"
)

// ModelsDir holds built executables under the jobs root; it is never a job.
const ModelsDir = "MODELS"

// Kind tells jobs from empty folders.
type Kind string

const (
	KindJob    Kind = "JOB"
	KindFolder Kind = "FOLDER"
)

// Entry is one discovered job or empty folder.
// ID is the slash-separated path relative to the jobs root.
type Entry struct {
	ID   string `json:"id"`
	Kind Kind   `json:"kind"`
	Path string `json:"path"`
}

// DiscoveryError captures a directory that could not be read.
type DiscoveryError struct {
	Path string `json:"path"`
	Err  string `json:"error"`
}

// Result bundles discovered entries and any errors encountered.
type Result struct {
	Jobs    []Entry          `json:"jobs"`
	Folders []Entry          `json:"folders,omitempty"`
	Errors  []DiscoveryError `json:"errors,omitempty"`
}

// Discover walks root for job directories. A directory holding
// config/config is a job and is not descended into; other directories are
// folders that may nest jobs. Empty folders are reported so they can be
// shown. A missing root yields an empty result.
func Discover(root string) (Result, error) {
	var res Result

	info, err := os.Stat(root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return res, nil
		}
		return res, fmt.Errorf("stat root: %w", err)
	}
	if !info.IsDir() {
		return res, fmt.Errorf("root %s is not a directory", root)
	}

	models := filepath.Join(root, ModelsDir)
	walkErr := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			res.Errors = append(res.Errors, DiscoveryError{Path: path, Err: err.Error()})
			return nil
		}
		if !d.IsDir() || path == root {
			return nil
		}
		if path == models {
			return filepath.SkipDir
		}
		if isJob(path) {
			res.Jobs = append(res.Jobs, Entry{ID: deriveID(root, path), Kind: KindJob, Path: path})
			return filepath.SkipDir
		}
		if empty, err := isEmpty(path); err == nil && empty {
			res.Folders = append(res.Folders, Entry{ID: deriveID(root, path), Kind: KindFolder, Path: path})
		}
		return nil
	})
	if walkErr != nil {
		return res, fmt.Errorf("walk root: %w", walkErr)
	}
	sort.Slice(res.Jobs, func(i, j int) bool { return res.Jobs[i].ID < res.Jobs[j].ID })
	return res, nil
}

func isJob(dir string) bool {
	info, err := os.Stat(job.Layout(dir).Config())
	return err == nil && info.Mode().IsRegular()
}

func isEmpty(dir string) (bool, error) {
	f, err := os.Open(dir)
	if err != nil {
		return false, err
	}
	defer f.Close()
	names, err := f.Readdirnames(1)
	if len(names) == 0 && err != nil {
		return true, nil
	}
	return false, nil
}

func deriveID(root, dir string) string {
	rel, err := filepath.Rel(root, dir)
	if err != nil {
		return filepath.ToSlash(dir)
	}
	return strings.Trim(filepath.ToSlash(rel), "/")
}

// Collect calls fn for every job with at most limit calls in flight and
// returns the results in job order. The first error cancels the rest.
func Collect[T any](ctx context.Context, jobs []Entry, limit int, fn func(context.Context, Entry) (T, error)) ([]T, error) {
	out := make([]T, len(jobs))
	g, ctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, e := range jobs {
		g.Go(func() error {
			v, err := fn(ctx, e)
			if err != nil {
				return fmt.Errorf("%s: %w", e.ID, err)
			}
			out[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
