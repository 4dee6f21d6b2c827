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

package orchestrator

import "context"

// JobDefinition holds all the parameters needed to submit a training job.
// It is independent of the managed service; orchestrator implementations
// translate it into their own request.
type JobDefinition struct {
	// BaseJobName and RunID are combined into the service's job name.
	BaseJobName    string
	RunID          string
	ImageURI       string
	RoleARN        string
	SourceURI      string // packaged trainer code, e.g. s3://bucket/code/trainer_<digest>.tar.gz
	EntryPoint     string
	OutputPath     string
	InstanceType   string
	InstanceCount  int
	VolumeSizeGB   int
	UseSpot        bool
	MaxRunSeconds  int
	MaxWaitSeconds int

	// Hyperparameters are already JSON-encoded.
	Hyperparameters map[string]string
	Tags            map[string]string
}

// Submission identifies a job accepted by the training service.
type Submission struct {
	JobName string
	JobARN  string
}

// Orchestrator defines the interface for submitting jobs to a training service.
type Orchestrator interface {
	// SubmitJob registers the job and returns without waiting for it to run.
	SubmitJob(ctx context.Context, job JobDefinition) (*Submission, error)
}
