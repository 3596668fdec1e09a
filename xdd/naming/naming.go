// Package naming implements the recursive naming engine (spec §4.2): it
// derives destination directories, files, and symlinks from a source tree
// using the same rules as the POSIX cp utility. Adapted from aistore's
// fs/walkbck.go walk-with-callbacks idiom, generalized to emit the three
// destination-pair lists the transfer manager needs instead of visiting a
// bucket's object store.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package naming

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// Status codes mirror the Flow-style "no exceptions cross the boundary"
// contract used throughout the orchestrator.
const (
	StatusOK = iota
	StatusNotFound
	StatusWalkError
)

type (
	DirPair  struct{ Src, Dst string }
	FilePair struct{ Src, Dst string }
	// LinkEntry: (source link, destination link path, raw link target).
	LinkEntry struct {
		Src, Dst, Target string
	}

	// WalkResult is the (dirs, files, links) triple from spec §3.
	WalkResult struct {
		Status int
		Dirs   []DirPair
		Files  []FilePair
		Links  []LinkEntry
	}

	// Strategy mirrors the teacher's NamingStrategy/PosixNamingStrategy
	// split: BuildLink is the one hook the "Plus" variant overrides.
	Strategy interface {
		BuildDirsFilesLinks(source, target string, targetExists, targetIsDir bool) (WalkResult, error)
	}

	posix struct {
		buildLink func(source, target, sourcePrefix, targetPrefix string) (string, string, error)
	}
)

// Posix returns the strategy that reproduces `cp -r` naming exactly,
// storing raw (unrewritten) symlink targets.
func Posix() Strategy {
	p := &posix{}
	p.buildLink = p.rawLink
	return p
}

// PosixPlus returns the stricter variant (spec §4.2 "A stricter variant")
// that rewrites absolute symlink targets whose prefix matches the source
// tree onto the destination tree, leaving relative targets untouched.
func PosixPlus() Strategy {
	p := &posix{}
	p.buildLink = p.rewrittenLink
	return p
}

func (p *posix) rawLink(source, target, _, _ string) (string, string, error) {
	value, err := os.Readlink(source)
	if err != nil {
		return "", "", err
	}
	return target, value, nil
}

func (p *posix) rewrittenLink(source, target, sourcePrefix, targetPrefix string) (string, string, error) {
	value, err := os.Readlink(source)
	if err != nil {
		return "", "", err
	}
	if !filepath.IsAbs(value) {
		return target, value, nil
	}
	rel, err := filepath.Rel(sourcePrefix, value)
	if err != nil || rel == ".." || strings.HasPrefix(rel, "../") {
		// Target escapes the source prefix entirely: leave it as-is.
		return target, value, nil
	}
	return target, filepath.Join(targetPrefix, rel), nil
}

func (p *posix) BuildDirsFilesLinks(source, target string, targetExists, targetIsDir bool) (WalkResult, error) {
	info, err := os.Lstat(source)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return WalkResult{Status: StatusNotFound}, nil
	case err != nil:
		return WalkResult{Status: StatusWalkError}, err
	}

	switch {
	case info.Mode()&os.ModeSymlink != 0:
		return p.buildSymlinkResult(source, target, targetIsDir)
	case info.IsDir() && (targetIsDir || !targetExists):
		return p.buildDirResult(source, target, targetExists)
	default:
		// Regular, block, or character special file.
		tname := target
		if targetIsDir {
			tname = filepath.Join(target, filepath.Base(source))
		}
		return WalkResult{Status: StatusOK, Files: []FilePair{{Src: source, Dst: tname}}}, nil
	}
}

func (p *posix) buildSymlinkResult(source, target string, targetIsDir bool) (WalkResult, error) {
	tname := target
	if targetIsDir {
		tname = filepath.Join(target, filepath.Base(source))
	}
	dst, linkTarget, err := p.buildLink(source, tname, filepath.Dir(source), filepath.Dir(tname))
	if err != nil {
		return WalkResult{Status: StatusWalkError}, err
	}
	return WalkResult{Status: StatusOK, Links: []LinkEntry{{Src: source, Dst: dst, Target: linkTarget}}}, nil
}

func (p *posix) buildDirResult(source, target string, targetExists bool) (WalkResult, error) {
	// hasTrailingSlash: the source path's basename is empty, i.e. the
	// caller wrote "src/" rather than "src".
	hasTrailingSlash := isTrailingSlash(source)

	targetPrefix := target
	if targetExists && !hasTrailingSlash {
		targetPrefix = filepath.Join(target, filepath.Base(filepath.Clean(source)))
	}

	var out WalkResult
	if !targetExists || !hasTrailingSlash {
		out.Dirs = append(out.Dirs, DirPair{Src: source, Dst: targetPrefix})
	}

	srcClean := filepath.Clean(source)
	err := filepath.WalkDir(srcClean, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == srcClean {
			return nil
		}
		rel, relErr := filepath.Rel(srcClean, path)
		if relErr != nil {
			return relErr
		}
		tname := filepath.Join(targetPrefix, rel)

		info, infoErr := d.Info()
		if infoErr != nil {
			return infoErr
		}
		if info.Mode()&os.ModeSymlink != 0 {
			dst, linkTarget, lerr := p.buildLink(path, tname, srcClean, targetPrefix)
			if lerr != nil {
				return lerr
			}
			// filepath.WalkDir never descends into symlinks on its own,
			// matching os.walk(..., followlinks=False).
			out.Links = append(out.Links, LinkEntry{Src: path, Dst: dst, Target: linkTarget})
			return nil
		}
		if d.IsDir() {
			out.Dirs = append(out.Dirs, DirPair{Src: path, Dst: tname})
			return nil
		}
		out.Files = append(out.Files, FilePair{Src: path, Dst: tname})
		return nil
	})
	if err != nil {
		return WalkResult{Status: StatusWalkError}, err
	}
	out.Status = StatusOK
	return out, nil
}

func isTrailingSlash(p string) bool {
	return len(p) > 0 && os.IsPathSeparator(p[len(p)-1])
}
