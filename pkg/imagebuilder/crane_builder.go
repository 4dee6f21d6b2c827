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

// Package imagebuilder builds the training image with Docker and publishes
// it to a registry with crane.
package imagebuilder

import (
	"context"
	"fmt"

	"github.com/google/go-containerregistry/pkg/authn"
	"github.com/google/go-containerregistry/pkg/crane"
	"github.com/google/go-containerregistry/pkg/name"
	v1 "github.com/google/go-containerregistry/pkg/v1"
	"github.com/google/go-containerregistry/pkg/v1/daemon"
	"github.com/sirupsen/logrus"
)

// ImageSource loads a locally built image.
type ImageSource func(ctx context.Context, ref name.Reference) (v1.Image, error)

// DaemonImage reads an image from the local Docker daemon.
func DaemonImage(ctx context.Context, ref name.Reference) (v1.Image, error) {
	return daemon.Image(ref, daemon.WithContext(ctx))
}

// CranePusher uploads images from the local daemon to a remote registry.
type CranePusher struct {
	source ImageSource
	push   func(img v1.Image, dst string, opts ...crane.Option) error
}

func NewCranePusher() *CranePusher {
	return &CranePusher{source: DaemonImage, push: crane.Push}
}

// Push uploads imageURI using auth.
func (p *CranePusher) Push(ctx context.Context, imageURI string, auth authn.Authenticator) error {
	ref, err := name.ParseReference(imageURI, name.StrictValidation)
	if err != nil {
		return fmt.Errorf("failed to parse image reference %q: %w", imageURI, err)
	}

	img, err := p.source(ctx, ref)
	if err != nil {
		return fmt.Errorf("failed to load image %q from the local daemon: %w", imageURI, err)
	}

	logrus.Infof("Uploading Container Image to %s", ref.Name())
	if err := p.push(img, ref.Name(), crane.WithAuth(auth), crane.WithContext(ctx)); err != nil {
		return fmt.Errorf("failed to push image %q: %w", imageURI, err)
	}

	logrus.Infof("Image %s uploaded successfully.", ref.Name())
	return nil
}
