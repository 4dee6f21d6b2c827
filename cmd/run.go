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

package cmd

import (
	"context"
	"fmt"
	"os"

	"trainer-launcher/pkg/gitinfo"
	"trainer-launcher/pkg/imagebuilder"
	"trainer-launcher/pkg/logging"
	"trainer-launcher/pkg/orchestrator/sagemaker"
	"trainer-launcher/pkg/registry"
	"trainer-launcher/pkg/run"
	"trainer-launcher/pkg/storage"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

var buildImage bool

var (
	lookupEnv       = os.LookupEnv
	newDependencies = awsDependencies
)

func init() {
	rootCmd.Flags().BoolVar(&buildImage, "build-image", false, "Build the training image with Docker and push it to ECR before submitting.")
}

func runLaunchCmd(cmd *cobra.Command, args []string) {
	jobName, err := launch(cmd.Context(), buildMode())
	if err != nil {
		logging.Fatal("%v", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), jobName)
}

func buildMode() run.BuildMode {
	if buildImage {
		return run.BuildAndPushImage
	}
	return run.UsePrebuiltImage
}

// launch validates the configuration before any client is created, so a
// configuration error never reaches AWS or Docker.
func launch(ctx context.Context, mode run.BuildMode) (string, error) {
	opts := run.Options{BuildMode: mode, FS: afero.NewOsFs(), SourceRevision: sourceRevision()}
	plan, err := run.Prepare(lookupEnv, opts)
	if err != nil {
		return "", err
	}

	deps, err := newDependencies(ctx, mode)
	if err != nil {
		return "", err
	}

	res, err := run.Execute(ctx, plan, deps)
	if err != nil {
		return "", err
	}
	return res.JobName, nil
}

func sourceRevision() string {
	rev, err := gitinfo.Revision(".")
	if err != nil {
		logging.Debug("not tagging job with a source revision: %v", err)
		return ""
	}
	return rev
}

func awsDependencies(ctx context.Context, mode run.BuildMode) (run.Dependencies, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return run.Dependencies{}, fmt.Errorf("failed to load AWS configuration: %w", err)
	}

	deps := run.Dependencies{
		Uploader:  storage.NewS3UploaderFromConfig(cfg),
		Submitter: sagemaker.NewSageMakerOrchestratorFromConfig(cfg),
	}
	if mode != run.BuildAndPushImage {
		return deps, nil
	}

	docker, err := imagebuilder.NewDockerClient()
	if err != nil {
		return run.Dependencies{}, err
	}
	builder := imagebuilder.NewDockerBuilder(docker, afero.NewOsFs(), ".", imagebuilder.DefaultDockerfile, imagebuilder.LinuxAMD64)
	deps.Publisher = imagebuilder.NewPublisher(registry.NewECRAuthenticatorFromConfig(cfg), builder, imagebuilder.NewCranePusher())
	return deps, nil
}
