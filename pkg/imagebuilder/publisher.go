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

package imagebuilder

import (
	"context"
	"fmt"

	"trainer-launcher/pkg/config"
	"trainer-launcher/pkg/registry"

	"github.com/google/go-containerregistry/pkg/authn"
	"github.com/google/go-containerregistry/pkg/name"
	"github.com/sirupsen/logrus"
)

// Builder produces a local image tagged imageURI.
type Builder interface {
	Build(ctx context.Context, imageURI string) error
}

// Pusher uploads a local image to its registry.
type Pusher interface {
	Push(ctx context.Context, imageURI string, auth authn.Authenticator) error
}

// Authenticator obtains registry credentials.
type Authenticator interface {
	Login(ctx context.Context) (registry.Credentials, error)
}

// Publisher runs login, build and push in that order. The first failure
// stops the sequence; nothing is retried.
type Publisher struct {
	auth    Authenticator
	builder Builder
	pusher  Pusher
}

func NewPublisher(auth Authenticator, builder Builder, pusher Pusher) *Publisher {
	return &Publisher{auth: auth, builder: builder, pusher: pusher}
}

// Publish builds and pushes ref and returns the pushed image URI.
func (p *Publisher) Publish(ctx context.Context, ref config.ImageReference) (string, error) {
	imageURI := ref.String()

	creds, err := p.auth.Login(ctx)
	if err != nil {
		return "", fmt.Errorf("registry login: %w", err)
	}
	if tag, err := name.NewTag(imageURI); err == nil && tag.RegistryStr() != creds.Registry {
		logrus.Warnf("Image registry %s differs from the authenticated registry %s", tag.RegistryStr(), creds.Registry)
	}

	if err := p.builder.Build(ctx, imageURI); err != nil {
		return "", fmt.Errorf("image build: %w", err)
	}

	if err := p.pusher.Push(ctx, imageURI, creds.Authenticator()); err != nil {
		return "", fmt.Errorf("image push: %w", err)
	}
	return imageURI, nil
}
