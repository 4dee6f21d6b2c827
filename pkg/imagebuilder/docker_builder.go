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
	"io"

	"trainer-launcher/pkg/bundle"
	"trainer-launcher/pkg/logging"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/jsonmessage"
	v1 "github.com/google/go-containerregistry/pkg/v1"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

// DockerPlatform represents the target platform for a Docker image.
type DockerPlatform string

// LinuxAMD64 is the platform SageMaker training instances run.
const LinuxAMD64 DockerPlatform = "linux/amd64"

// DefaultDockerfile is resolved inside the build context.
const DefaultDockerfile = "Dockerfile"

// BuildAPI is the subset of the Docker Engine client used to build images.
type BuildAPI interface {
	ImageBuild(ctx context.Context, buildContext io.Reader, options types.ImageBuildOptions) (types.ImageBuildResponse, error)
}

// DockerBuilder builds images with the local Docker daemon.
type DockerBuilder struct {
	client     BuildAPI
	fs         afero.Fs
	contextDir string
	dockerfile string
	platform   DockerPlatform
}

// NewDockerBuilder returns a builder for contextDir. The Dockerfile path is
// relative to contextDir.
func NewDockerBuilder(c BuildAPI, fs afero.Fs, contextDir, dockerfile string, platform DockerPlatform) *DockerBuilder {
	if dockerfile == "" {
		dockerfile = DefaultDockerfile
	}
	if platform == "" {
		platform = LinuxAMD64
	}
	return &DockerBuilder{
		client:     c,
		fs:         fs,
		contextDir: contextDir,
		dockerfile: dockerfile,
		platform:   platform,
	}
}

// NewDockerClient connects to the daemon named by DOCKER_HOST and friends.
func NewDockerClient() (*client.Client, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create Docker client: %w", err)
	}
	return cli, nil
}

// Build packages the build context and builds imageURI from the Dockerfile.
func (b *DockerBuilder) Build(ctx context.Context, imageURI string) error {
	if _, err := v1.ParsePlatform(string(b.platform)); err != nil {
		return fmt.Errorf("invalid platform %q: %w", b.platform, err)
	}
	if _, err := b.fs.Stat(b.dockerfilePath()); err != nil {
		return fmt.Errorf("dockerfile %q not found: %w", b.dockerfilePath(), err)
	}

	buildContext, err := bundle.Create(b.fs, b.contextDir)
	if err != nil {
		return fmt.Errorf("failed to create build context: %w", err)
	}

	logrus.Infof("Building %s from %s (%s, %d files)", imageURI, b.dockerfilePath(), b.platform, buildContext.Files)
	resp, err := b.client.ImageBuild(ctx, buildContext.Reader(), types.ImageBuildOptions{
		Tags:       []string{imageURI},
		Dockerfile: b.dockerfile,
		Platform:   string(b.platform),
		Remove:     true,
	})
	if err != nil {
		return fmt.Errorf("docker build of %s failed: %w", imageURI, err)
	}
	defer resp.Body.Close()

	out := logging.Logger().WriterLevel(logrus.DebugLevel)
	defer out.Close()
	if err := jsonmessage.DisplayJSONMessagesStream(resp.Body, out, 0, false, nil); err != nil {
		return fmt.Errorf("docker build of %s failed: %w", imageURI, err)
	}

	logrus.Infof("Image %s built successfully.", imageURI)
	return nil
}

func (b *DockerBuilder) dockerfilePath() string {
	if b.contextDir == "" || b.contextDir == "." {
		return b.dockerfile
	}
	return b.contextDir + "/" + b.dockerfile
}
