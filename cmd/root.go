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

// Package cmd defines the trainer-launcher command line.
package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"trainer-launcher/pkg/logging"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "trainer-launcher",
	Short: "Packages the trainer directory and submits a SageMaker training job.",
	Long: `trainer-launcher uploads the local trainer directory to S3 and submits a
SageMaker training job that runs it. With --build-image the training image is
first built with Docker and pushed to ECR.

Settings are read from the environment: AWS_S3_BUCKET,
AWS_SM_EXECUTION_ROLE_ARN and AWS_ECR_REPOSITORY are required; IMAGE_TAG,
RUN_ID and LOG_LEVEL are optional. The job shape is read from config.yaml
when present.

On success the training job name is printed to stdout.`,
	Args:          cobra.NoArgs,
	Run:           runLaunchCmd,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := logging.SetLevel(os.Getenv(logging.LevelEnvVar)); err != nil {
		logging.Warn("%v; using info", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		logging.Error("%v", err)
		stop()
		os.Exit(1)
	}
}
