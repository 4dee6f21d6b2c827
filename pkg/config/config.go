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

// Package config reads the launcher settings from the process environment.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws/arn"
	"github.com/google/go-containerregistry/pkg/name"
)

// Environment variable names.
const (
	BucketEnvVar     = "AWS_S3_BUCKET"
	RoleARNEnvVar    = "AWS_SM_EXECUTION_ROLE_ARN"
	RepositoryEnvVar = "AWS_ECR_REPOSITORY"
	ImageTagEnvVar   = "IMAGE_TAG"
	RunIDEnvVar      = "RUN_ID"
)

// DefaultImageTag is used when IMAGE_TAG is unset or empty.
const DefaultImageTag = "latest"

// runIDLayout renders as YYYYMMDDTHHMMSS.ffffff; the dot is dropped.
const runIDLayout = "20060102T150405.000000"

var now = time.Now

// LookupFunc has the signature of os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// ImageReference identifies the container image a training job runs.
type ImageReference struct {
	Repository string
	Tag        string
}

// String returns the image URI, e.g. 123.dkr.ecr.us-east-1.amazonaws.com/train:v1.
func (r ImageReference) String() string {
	return r.Repository + ":" + r.Tag
}

// Settings is the launcher configuration. It is built once by Load and not
// modified afterwards.
type Settings struct {
	Bucket     string
	RoleARN    string
	Repository string
	ImageTag   string
	RunID      string
}

// Image returns the reference built from the repository and tag.
func (s *Settings) Image() ImageReference {
	return ImageReference{Repository: s.Repository, Tag: s.ImageTag}
}

// Load reads settings through lookup. All missing required variables are
// reported together in a *MissingError.
func Load(lookup LookupFunc) (*Settings, error) {
	get := func(key string) string {
		v, _ := lookup(key)
		return strings.TrimSpace(v)
	}

	s := &Settings{
		Bucket:     get(BucketEnvVar),
		RoleARN:    get(RoleARNEnvVar),
		Repository: get(RepositoryEnvVar),
		ImageTag:   get(ImageTagEnvVar),
		RunID:      get(RunIDEnvVar),
	}

	var missing []string
	for _, req := range []struct {
		key, value string
	}{
		{BucketEnvVar, s.Bucket},
		{RoleARNEnvVar, s.RoleARN},
		{RepositoryEnvVar, s.Repository},
	} {
		if req.value == "" {
			missing = append(missing, req.key)
		}
	}
	if len(missing) > 0 {
		return nil, &MissingError{Keys: missing}
	}

	if s.ImageTag == "" {
		s.ImageTag = DefaultImageTag
	}
	if s.RunID == "" {
		s.RunID = NewRunID()
	}

	if err := s.validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// NewRunID returns a timestamp-based run identifier.
func NewRunID() string {
	return strings.Replace(now().Format(runIDLayout), ".", "", 1)
}

func (s *Settings) validate() error {
	parsed, err := arn.Parse(s.RoleARN)
	if err != nil {
		return &InvalidError{Key: RoleARNEnvVar, Value: s.RoleARN, Err: err}
	}
	if parsed.Service != "iam" {
		return &InvalidError{Key: RoleARNEnvVar, Value: s.RoleARN, Err: fmt.Errorf("expected an iam role ARN, got service %q", parsed.Service)}
	}

	if _, err := name.NewRepository(s.Repository, name.StrictValidation); err != nil {
		return &InvalidError{Key: RepositoryEnvVar, Value: s.Repository, Err: err}
	}
	if _, err := name.NewTag(s.Image().String(), name.StrictValidation); err != nil {
		return &InvalidError{Key: ImageTagEnvVar, Value: s.ImageTag, Err: err}
	}
	return nil
}

// MissingError lists required environment variables that were unset or empty.
type MissingError struct {
	Keys []string
}

func (e *MissingError) Error() string {
	return fmt.Sprintf("missing required environment variable(s): %s", strings.Join(e.Keys, ", "))
}

// InvalidError reports an environment variable whose value cannot be used.
type InvalidError struct {
	Key   string
	Value string
	Err   error
}

func (e *InvalidError) Error() string {
	return fmt.Sprintf("invalid %s %q: %v", e.Key, e.Value, e.Err)
}

func (e *InvalidError) Unwrap() error {
	return e.Err
}

// IsConfigError reports whether err is a MissingError or an InvalidError.
func IsConfigError(err error) bool {
	var missing *MissingError
	var invalid *InvalidError
	return errors.As(err, &missing) || errors.As(err, &invalid)
}
