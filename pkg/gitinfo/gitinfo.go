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

// Package gitinfo reads the commit the launcher is run from, so submitted
// jobs can be traced back to source.
package gitinfo

import (
	"errors"
	"fmt"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
)

var (
	ErrNotRepository = errors.New("not inside a git repository")
	ErrNoCommits     = errors.New("repository has no commits")
)

// Revision returns the HEAD commit hash of the repository containing dir.
func Revision(dir string) (string, error) {
	repo, err := git.PlainOpenWithOptions(dir, &git.PlainOpenOptions{DetectDotGit: true})
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return "", ErrNotRepository
	}
	if err != nil {
		return "", fmt.Errorf("failed to open repository at %q: %w", dir, err)
	}

	head, err := repo.Head()
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return "", ErrNoCommits
	}
	if err != nil {
		return "", fmt.Errorf("failed to resolve HEAD: %w", err)
	}
	return head.Hash().String(), nil
}
