// Copyright 2026 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package bundle packages a directory into a reproducible tar.gz archive.
// The same directory contents always produce the same bytes, so the archive
// digest can be used as a content address.
package bundle

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/moby/patternmatcher"
	"github.com/moby/patternmatcher/ignorefile"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

// IgnoreFileName is read from the root of the packaged directory.
const IgnoreFileName = ".dockerignore"

// DefaultIgnorePatterns are excluded from every bundle.
var DefaultIgnorePatterns = []string{
	".git",
	"**/.venv",
	"**/__pycache__",
	"**/*.pyc",
	"**/.DS_Store",
}

var epoch = time.Unix(0, 0).UTC()

// Bundle is a packaged directory.
type Bundle struct {
	SourceDir string
	Archive   []byte
	Digest    string // hex-encoded SHA-256 of Archive
	Files     int

	// RemoteURI is set once the archive has been uploaded.
	RemoteURI string
}

// Reader returns a reader over the archive bytes.
func (b *Bundle) Reader() io.Reader {
	return bytes.NewReader(b.Archive)
}

// Size is the archive length in bytes.
func (b *Bundle) Size() int64 {
	return int64(len(b.Archive))
}

// ObjectKey returns "<prefix>/<basename>_<digest prefix>.tar.gz".
func (b *Bundle) ObjectKey(prefix, basename string) string {
	short := b.Digest
	if len(short) > 16 {
		short = short[:16]
	}
	return path.Join(prefix, fmt.Sprintf("%s_%s.tar.gz", basename, short))
}

// Create archives sourceDir from fsys, skipping DefaultIgnorePatterns, the
// extra patterns and anything listed in the directory's .dockerignore.
func Create(fsys afero.Fs, sourceDir string, extraPatterns ...string) (*Bundle, error) {
	info, err := fsys.Stat(sourceDir)
	if err != nil {
		return nil, fmt.Errorf("failed to stat source directory %q: %w", sourceDir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("source %q is not a directory", sourceDir)
	}

	defaults := append(append([]string{}, DefaultIgnorePatterns...), extraPatterns...)
	ignoreMatcher, err := ReadDockerignorePatterns(fsys, sourceDir, defaults)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	files, err := writeFilteredTar(&buf, fsys, sourceDir, ignoreMatcher)
	if err != nil {
		return nil, err
	}

	sum := sha256.Sum256(buf.Bytes())
	b := &Bundle{
		SourceDir: sourceDir,
		Archive:   buf.Bytes(),
		Digest:    hex.EncodeToString(sum[:]),
		Files:     files,
	}
	logrus.Debugf("Packaged %d files from %s (%d bytes, sha256:%s)", files, sourceDir, len(b.Archive), b.Digest)
	return b, nil
}

// ReadDockerignorePatterns combines defaultPatterns with the patterns of an
// optional .dockerignore in dir.
func ReadDockerignorePatterns(fsys afero.Fs, dir string, defaultPatterns []string) (*patternmatcher.PatternMatcher, error) {
	dockerignorePath := filepath.Join(dir, IgnoreFileName)

	patterns := make([]string, len(defaultPatterns))
	copy(patterns, defaultPatterns)

	file, err := fsys.Open(dockerignorePath)
	switch {
	case err == nil:
		defer file.Close()
		filePatterns, err := ignorefile.ReadAll(file)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s file %q: %w", IgnoreFileName, dockerignorePath, err)
		}
		patterns = append(patterns, filePatterns...)
		logrus.Debugf("Found %d patterns in %s at %q", len(filePatterns), IgnoreFileName, dockerignorePath)
	case !os.IsNotExist(err):
		return nil, fmt.Errorf("failed to open %s file %q: %w", IgnoreFileName, dockerignorePath, err)
	}

	matcher, err := patternmatcher.New(patterns)
	if err != nil {
		return nil, fmt.Errorf("failed to create pattern matcher: %w", err)
	}
	return matcher, nil
}

func writeFilteredTar(w io.Writer, fsys afero.Fs, sourceDir string, ignoreMatcher *patternmatcher.PatternMatcher) (int, error) {
	// gzip.Writer leaves the header ModTime zero, which keeps the output stable.
	gzipWriter := gzip.NewWriter(w)
	tarWriter := tar.NewWriter(gzipWriter)

	files := 0
	walkErr := afero.Walk(fsys, sourceDir, func(p string, info fs.FileInfo, err error) error {
		added, err := processTarEntry(tarWriter, fsys, sourceDir, ignoreMatcher, p, info, err)
		if added {
			files++
		}
		return err
	})
	if walkErr != nil {
		return 0, walkErr
	}

	if err := tarWriter.Close(); err != nil {
		return 0, fmt.Errorf("failed to close tar writer: %w", err)
	}
	if err := gzipWriter.Close(); err != nil {
		return 0, fmt.Errorf("failed to close gzip writer: %w", err)
	}
	return files, nil
}

// processTarEntry writes one walked path. It reports whether a regular file was added.
func processTarEntry(tarWriter *tar.Writer, fsys afero.Fs, sourceDir string, ignoreMatcher *patternmatcher.PatternMatcher, p string, info fs.FileInfo, errFromWalk error) (bool, error) {
	if errFromWalk != nil {
		return false, errFromWalk
	}

	relPath, err := filepath.Rel(sourceDir, p)
	if err != nil {
		return false, fmt.Errorf("failed to get relative path for %q: %w", p, err)
	}
	if relPath == "." {
		return false, nil
	}

	// Directories need a trailing slash for "dir/" patterns to match them.
	relPathSlash := filepath.ToSlash(relPath)
	if info.IsDir() && !strings.HasSuffix(relPathSlash, "/") {
		relPathSlash += "/"
	}

	ignored, err := ignoreMatcher.MatchesOrParentMatches(relPathSlash)
	if err != nil {
		return false, fmt.Errorf("failed to check ignore patterns for %q: %w", p, err)
	}
	if ignored {
		if info.IsDir() {
			logrus.Debugf("Ignoring directory %q", relPath)
			return false, filepath.SkipDir
		}
		logrus.Debugf("Ignoring file %q", relPath)
		return false, nil
	}

	header := &tar.Header{
		Name:    filepath.ToSlash(relPath),
		Mode:    int64(info.Mode().Perm()),
		ModTime: epoch,
	}
	switch {
	case info.IsDir():
		header.Typeflag = tar.TypeDir
		header.Name += "/"
	case info.Mode().IsRegular():
		header.Typeflag = tar.TypeReg
		header.Size = info.Size()
	default:
		logrus.Debugf("Skipping non-regular file %q", relPath)
		return false, nil
	}

	if err := tarWriter.WriteHeader(header); err != nil {
		return false, fmt.Errorf("failed to write tar header for %q: %w", p, err)
	}
	if header.Typeflag != tar.TypeReg {
		return false, nil
	}

	file, err := fsys.Open(p)
	if err != nil {
		return false, fmt.Errorf("failed to open file %q: %w", p, err)
	}
	defer file.Close()

	if _, err := io.Copy(tarWriter, file); err != nil {
		return false, fmt.Errorf("failed to write file content for %q: %w", p, err)
	}
	return true, nil
}
