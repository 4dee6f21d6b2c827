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

// Package sagemaker submits training jobs to Amazon SageMaker.
package sagemaker

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"slices"
	"sort"
	"strings"

	"trainer-launcher/pkg/orchestrator"

	"github.com/aws/aws-sdk-go-v2/aws"
	sm "github.com/aws/aws-sdk-go-v2/service/sagemaker"
	"github.com/aws/aws-sdk-go-v2/service/sagemaker/types"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Hyperparameters the SageMaker training toolkit reads to locate and run the
// user's code. User hyperparameters may not use these names.
const (
	ProgramHyperparameter           = "sagemaker_program"
	SubmitDirectoryHyperparameter   = "sagemaker_submit_directory"
	ContainerLogLevelHyperparameter = "sagemaker_container_log_level"
	JobNameHyperparameter           = "sagemaker_job_name"
	RegionHyperparameter            = "sagemaker_region"
)

// ReservedHyperparameters are set by SubmitJob and may not be supplied by the user.
var ReservedHyperparameters = []string{
	ProgramHyperparameter,
	SubmitDirectoryHyperparameter,
	ContainerLogLevelHyperparameter,
	JobNameHyperparameter,
	RegionHyperparameter,
}

// containerLogLevel is Python's logging.INFO.
const containerLogLevel = 20

const maxJobNameLength = 63

var (
	jobNamePattern = regexp.MustCompile(`^[a-zA-Z0-9](-*[a-zA-Z0-9]){0,62}$`)
	invalidNameRun = regexp.MustCompile(`[^a-zA-Z0-9]+`)
)

// CreateTrainingJobAPI is the subset of the SageMaker client used here.
type CreateTrainingJobAPI interface {
	CreateTrainingJob(ctx context.Context, params *sm.CreateTrainingJobInput, optFns ...func(*sm.Options)) (*sm.CreateTrainingJobOutput, error)
}

// SageMakerOrchestrator implements orchestrator.Orchestrator with CreateTrainingJob.
type SageMakerOrchestrator struct {
	client CreateTrainingJobAPI
	region string
}

var _ orchestrator.Orchestrator = (*SageMakerOrchestrator)(nil)

// NewSageMakerOrchestrator creates an orchestrator for region.
func NewSageMakerOrchestrator(client CreateTrainingJobAPI, region string) *SageMakerOrchestrator {
	return &SageMakerOrchestrator{client: client, region: region}
}

// NewSageMakerOrchestratorFromConfig uses the region of cfg.
func NewSageMakerOrchestratorFromConfig(cfg aws.Config) *SageMakerOrchestrator {
	return NewSageMakerOrchestrator(sm.NewFromConfig(cfg), cfg.Region)
}

// JobName joins base and runID into a valid training job name of at most 63
// characters. The run id is kept whole; the base is shortened if needed.
func JobName(base, runID string) string {
	clean := func(s string) string {
		return strings.Trim(invalidNameRun.ReplaceAllString(s, "-"), "-")
	}
	base, runID = clean(base), clean(runID)
	if len(runID) > 32 {
		runID = runID[:32]
	}
	if runID == "" {
		return truncate(base, maxJobNameLength)
	}
	if base == "" {
		return runID
	}
	base = strings.TrimRight(truncate(base, maxJobNameLength-len(runID)-1), "-")
	return base + "-" + runID
}

// ValidateJobName returns JobName(base, runID), or an error when the result is
// not a name SageMaker accepts.
func ValidateJobName(base, runID string) (string, error) {
	jobName := JobName(base, runID)
	if !jobNamePattern.MatchString(jobName) {
		return "", fmt.Errorf("invalid training job name %q from base %q and run id %q", jobName, base, runID)
	}
	return jobName, nil
}

// CheckHyperparameterNames rejects names listed in ReservedHyperparameters.
func CheckHyperparameterNames(names []string) error {
	for _, n := range names {
		if slices.Contains(ReservedHyperparameters, n) {
			return fmt.Errorf("hyperparameter %q is reserved", n)
		}
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

// SubmitJob creates the training job and returns as soon as SageMaker accepts it.
func (o *SageMakerOrchestrator) SubmitJob(ctx context.Context, job orchestrator.JobDefinition) (*orchestrator.Submission, error) {
	input, err := o.BuildRequest(job)
	if err != nil {
		return nil, err
	}
	jobName := aws.ToString(input.TrainingJobName)

	logrus.Infof("Creating training job %s (image %s, %d x %s)", jobName, job.ImageURI, job.InstanceCount, job.InstanceType)
	out, err := o.client.CreateTrainingJob(ctx, input)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create training job %s", jobName)
	}

	return &orchestrator.Submission{
		JobName: jobName,
		JobARN:  aws.ToString(out.TrainingJobArn),
	}, nil
}

// BuildRequest translates job into a CreateTrainingJob request. The result is
// a pure function of job and the orchestrator's region.
func (o *SageMakerOrchestrator) BuildRequest(job orchestrator.JobDefinition) (*sm.CreateTrainingJobInput, error) {
	jobName, err := ValidateJobName(job.BaseJobName, job.RunID)
	if err != nil {
		return nil, err
	}
	if err := validate(jobName, job); err != nil {
		return nil, err
	}

	hyperparameters, err := o.hyperparameters(jobName, job)
	if err != nil {
		return nil, err
	}

	stopping := &types.StoppingCondition{
		MaxRuntimeInSeconds: aws.Int32(int32(job.MaxRunSeconds)),
	}
	if job.UseSpot {
		stopping.MaxWaitTimeInSeconds = aws.Int32(int32(job.MaxWaitSeconds))
	}

	return &sm.CreateTrainingJobInput{
		TrainingJobName: aws.String(jobName),
		RoleArn:         aws.String(job.RoleARN),
		AlgorithmSpecification: &types.AlgorithmSpecification{
			TrainingImage:     aws.String(job.ImageURI),
			TrainingInputMode: types.TrainingInputModeFile,
		},
		OutputDataConfig: &types.OutputDataConfig{
			S3OutputPath: aws.String(job.OutputPath),
		},
		ResourceConfig: &types.ResourceConfig{
			InstanceType:   types.TrainingInstanceType(job.InstanceType),
			InstanceCount:  aws.Int32(int32(job.InstanceCount)),
			VolumeSizeInGB: aws.Int32(int32(job.VolumeSizeGB)),
		},
		StoppingCondition:         stopping,
		EnableManagedSpotTraining: aws.Bool(job.UseSpot),
		HyperParameters:           hyperparameters,
		Tags:                      tags(job.Tags),
	}, nil
}

func (o *SageMakerOrchestrator) hyperparameters(jobName string, job orchestrator.JobDefinition) (map[string]string, error) {
	framework := map[string]interface{}{
		ProgramHyperparameter:           job.EntryPoint,
		SubmitDirectoryHyperparameter:   job.SourceURI,
		ContainerLogLevelHyperparameter: containerLogLevel,
		JobNameHyperparameter:           jobName,
		RegionHyperparameter:            o.region,
	}

	out := make(map[string]string, len(job.Hyperparameters)+len(framework))
	for k, v := range job.Hyperparameters {
		if err := CheckHyperparameterNames([]string{k}); err != nil {
			return nil, err
		}
		out[k] = v
	}
	for k, v := range framework {
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s: %w", k, err)
		}
		out[k] = string(b)
	}
	return out, nil
}

func tags(m map[string]string) []types.Tag {
	if len(m) == 0 {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]types.Tag, 0, len(keys))
	for _, k := range keys {
		out = append(out, types.Tag{Key: aws.String(k), Value: aws.String(m[k])})
	}
	return out
}

func validate(jobName string, job orchestrator.JobDefinition) error {
	required := []struct {
		field, value string
	}{
		{"image", job.ImageURI},
		{"role ARN", job.RoleARN},
		{"source URI", job.SourceURI},
		{"entry point", job.EntryPoint},
		{"output path", job.OutputPath},
		{"instance type", job.InstanceType},
	}
	for _, r := range required {
		if r.value == "" {
			return fmt.Errorf("training job %s: %s is required", jobName, r.field)
		}
	}
	if job.InstanceCount < 1 {
		return fmt.Errorf("training job %s: instance count must be at least 1", jobName)
	}
	for _, f := range []struct {
		field string
		value int
	}{
		{"instance count", job.InstanceCount},
		{"volume size", job.VolumeSizeGB},
		{"max run", job.MaxRunSeconds},
		{"max wait", job.MaxWaitSeconds},
	} {
		if f.value > math.MaxInt32 {
			return fmt.Errorf("training job %s: %s %d is out of range", jobName, f.field, f.value)
		}
	}
	if job.UseSpot && job.MaxWaitSeconds < job.MaxRunSeconds {
		return fmt.Errorf("training job %s: max wait (%d) must be >= max run (%d) for spot training", jobName, job.MaxWaitSeconds, job.MaxRunSeconds)
	}
	return nil
}
