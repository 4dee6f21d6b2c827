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

package sagemaker

import (
	"context"
	"errors"
	"strings"
	"testing"

	"trainer-launcher/pkg/orchestrator"

	"github.com/aws/aws-sdk-go-v2/aws"
	sm "github.com/aws/aws-sdk-go-v2/service/sagemaker"
	"github.com/aws/aws-sdk-go-v2/service/sagemaker/types"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

type fakeSageMaker struct {
	inputs []*sm.CreateTrainingJobInput
	err    error
}

func (f *fakeSageMaker) CreateTrainingJob(_ context.Context, params *sm.CreateTrainingJobInput, _ ...func(*sm.Options)) (*sm.CreateTrainingJobOutput, error) {
	f.inputs = append(f.inputs, params)
	if f.err != nil {
		return nil, f.err
	}
	return &sm.CreateTrainingJobOutput{
		TrainingJobArn: aws.String("arn:aws:sagemaker:us-east-1:123:training-job/" + aws.ToString(params.TrainingJobName)),
	}, nil
}

func testJob() orchestrator.JobDefinition {
	return orchestrator.JobDefinition{
		BaseJobName:     "trainer",
		RunID:           "20261019T080509123456",
		ImageURI:        "123.dkr.ecr.us-east-1.amazonaws.com/train:v1",
		RoleARN:         "arn:aws:iam::123:role/x",
		SourceURI:       "s3://bkt/code/trainer_0123456789abcdef.tar.gz",
		EntryPoint:      "train.py",
		OutputPath:      "s3://bkt/output",
		InstanceType:    "ml.m5.large",
		InstanceCount:   1,
		VolumeSizeGB:    30,
		MaxRunSeconds:   86400,
		Hyperparameters: map[string]string{"param": "1"},
		Tags:            map[string]string{"run-id": "20261019T080509123456", "project": "demo"},
	}
}

func TestBuildRequest(t *testing.T) {
	o := NewSageMakerOrchestrator(&fakeSageMaker{}, "us-east-1")

	got, err := o.BuildRequest(testJob())
	if err != nil {
		t.Fatalf("BuildRequest() returned error: %v", err)
	}

	want := &sm.CreateTrainingJobInput{
		TrainingJobName: aws.String("trainer-20261019T080509123456"),
		RoleArn:         aws.String("arn:aws:iam::123:role/x"),
		AlgorithmSpecification: &types.AlgorithmSpecification{
			TrainingImage:     aws.String("123.dkr.ecr.us-east-1.amazonaws.com/train:v1"),
			TrainingInputMode: types.TrainingInputModeFile,
		},
		OutputDataConfig: &types.OutputDataConfig{S3OutputPath: aws.String("s3://bkt/output")},
		ResourceConfig: &types.ResourceConfig{
			InstanceType:   types.TrainingInstanceType("ml.m5.large"),
			InstanceCount:  aws.Int32(1),
			VolumeSizeInGB: aws.Int32(30),
		},
		StoppingCondition:         &types.StoppingCondition{MaxRuntimeInSeconds: aws.Int32(86400)},
		EnableManagedSpotTraining: aws.Bool(false),
		HyperParameters: map[string]string{
			"param":                         "1",
			"sagemaker_program":             `"train.py"`,
			"sagemaker_submit_directory":    `"s3://bkt/code/trainer_0123456789abcdef.tar.gz"`,
			"sagemaker_container_log_level": "20",
			"sagemaker_job_name":            `"trainer-20261019T080509123456"`,
			"sagemaker_region":              `"us-east-1"`,
		},
		Tags: []types.Tag{
			{Key: aws.String("project"), Value: aws.String("demo")},
			{Key: aws.String("run-id"), Value: aws.String("20261019T080509123456")},
		},
	}
	if diff := cmp.Diff(want, got, cmpopts.IgnoreUnexported(sm.CreateTrainingJobInput{}, types.AlgorithmSpecification{}, types.OutputDataConfig{}, types.ResourceConfig{}, types.StoppingCondition{}, types.Tag{})); diff != "" {
		t.Errorf("BuildRequest() mismatch (-want +got):\n%s", diff)
	}

	again, err := o.BuildRequest(testJob())
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(got, again, cmpopts.IgnoreUnexported(sm.CreateTrainingJobInput{}, types.AlgorithmSpecification{}, types.OutputDataConfig{}, types.ResourceConfig{}, types.StoppingCondition{}, types.Tag{})); diff != "" {
		t.Errorf("BuildRequest() is not deterministic (-first +second):\n%s", diff)
	}
}

func TestBuildRequestSpot(t *testing.T) {
	job := testJob()
	job.UseSpot = true
	job.MaxRunSeconds = 3600
	job.MaxWaitSeconds = 7200

	got, err := NewSageMakerOrchestrator(&fakeSageMaker{}, "eu-west-1").BuildRequest(job)
	if err != nil {
		t.Fatalf("BuildRequest() returned error: %v", err)
	}
	if !aws.ToBool(got.EnableManagedSpotTraining) {
		t.Error("EnableManagedSpotTraining = false, want true")
	}
	if aws.ToInt32(got.StoppingCondition.MaxRuntimeInSeconds) != 3600 {
		t.Errorf("MaxRuntimeInSeconds = %d, want 3600", aws.ToInt32(got.StoppingCondition.MaxRuntimeInSeconds))
	}
	if aws.ToInt32(got.StoppingCondition.MaxWaitTimeInSeconds) != 7200 {
		t.Errorf("MaxWaitTimeInSeconds = %d, want 7200", aws.ToInt32(got.StoppingCondition.MaxWaitTimeInSeconds))
	}
	if got.HyperParameters[RegionHyperparameter] != `"eu-west-1"` {
		t.Errorf("region hyperparameter = %s", got.HyperParameters[RegionHyperparameter])
	}
}

func TestBuildRequestValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*orchestrator.JobDefinition)
		wantErr string
	}{
		{"empty job name", func(j *orchestrator.JobDefinition) { j.BaseJobName, j.RunID = "__", "" }, "invalid training job name"},
		{"missing image", func(j *orchestrator.JobDefinition) { j.ImageURI = "" }, "image is required"},
		{"missing source", func(j *orchestrator.JobDefinition) { j.SourceURI = "" }, "source URI is required"},
		{"zero instances", func(j *orchestrator.JobDefinition) { j.InstanceCount = 0 }, "instance count"},
		{"reserved hyperparameter", func(j *orchestrator.JobDefinition) {
			j.Hyperparameters = map[string]string{ProgramHyperparameter: `"other.py"`}
		}, "reserved"},
		{"instance count overflows", func(j *orchestrator.JobDefinition) { j.InstanceCount = 1<<32 + 1 }, "instance count 4294967297 is out of range"},
		{"max run overflows", func(j *orchestrator.JobDefinition) { j.MaxRunSeconds = 1<<32 + 100 }, "max run 4294967396 is out of range"},
		{"spot wait too short", func(j *orchestrator.JobDefinition) {
			j.UseSpot = true
			j.MaxWaitSeconds = 10
		}, "max wait"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := testJob()
			tt.mutate(&job)
			_, err := NewSageMakerOrchestrator(&fakeSageMaker{}, "us-east-1").BuildRequest(job)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("BuildRequest() error = %v, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestSubmitJob(t *testing.T) {
	fake := &fakeSageMaker{}
	o := NewSageMakerOrchestrator(fake, "us-east-1")

	sub, err := o.SubmitJob(context.Background(), testJob())
	if err != nil {
		t.Fatalf("SubmitJob() returned error: %v", err)
	}
	want := &orchestrator.Submission{
		JobName: "trainer-20261019T080509123456",
		JobARN:  "arn:aws:sagemaker:us-east-1:123:training-job/trainer-20261019T080509123456",
	}
	if diff := cmp.Diff(want, sub); diff != "" {
		t.Errorf("SubmitJob() mismatch (-want +got):\n%s", diff)
	}
	if len(fake.inputs) != 1 {
		t.Errorf("CreateTrainingJob called %d times, want 1", len(fake.inputs))
	}
}

func TestSubmitJobErrors(t *testing.T) {
	cause := errors.New("ResourceLimitExceeded")
	fake := &fakeSageMaker{err: cause}
	_, err := NewSageMakerOrchestrator(fake, "us-east-1").SubmitJob(context.Background(), testJob())
	if !errors.Is(err, cause) {
		t.Errorf("SubmitJob() error = %v, want it to wrap %v", err, cause)
	}

	invalid := testJob()
	invalid.RoleARN = ""
	fake = &fakeSageMaker{}
	if _, err := NewSageMakerOrchestrator(fake, "us-east-1").SubmitJob(context.Background(), invalid); err == nil {
		t.Error("SubmitJob() with an invalid job succeeded")
	}
	if len(fake.inputs) != 0 {
		t.Errorf("CreateTrainingJob called %d times for an invalid job, want 0", len(fake.inputs))
	}
}

func TestJobName(t *testing.T) {
	tests := []struct {
		base, runID, want string
	}{
		{"trainer", "20261019T080509123456", "trainer-20261019T080509123456"},
		{"my_model.v2", "run 1", "my-model-v2-run-1"},
		{"trainer", "", "trainer"},
		{"", "abc", "abc"},
		{strings.Repeat("b", 80), "20261019T080509123456", strings.Repeat("b", 41) + "-20261019T080509123456"},
		{"x", strings.Repeat("r", 40), "x-" + strings.Repeat("r", 32)},
	}

	for _, tt := range tests {
		got := JobName(tt.base, tt.runID)
		if got != tt.want {
			t.Errorf("JobName(%q, %q) = %q, want %q", tt.base, tt.runID, got, tt.want)
		}
		if len(got) > maxJobNameLength || !jobNamePattern.MatchString(got) {
			t.Errorf("JobName(%q, %q) = %q is not a valid job name", tt.base, tt.runID, got)
		}
	}
}

func TestValidateJobName(t *testing.T) {
	name, err := ValidateJobName("my_model", "run1")
	if err != nil || name != "my-model-run1" {
		t.Errorf("ValidateJobName() = %q, %v; want my-model-run1", name, err)
	}
	if _, err := ValidateJobName("__", "!!"); err == nil || !strings.Contains(err.Error(), "invalid training job name") {
		t.Errorf("ValidateJobName() error = %v, want invalid training job name", err)
	}
}

func TestCheckHyperparameterNames(t *testing.T) {
	if err := CheckHyperparameterNames([]string{"epochs", "lr"}); err != nil {
		t.Errorf("CheckHyperparameterNames() error = %v", err)
	}
	for _, reserved := range ReservedHyperparameters {
		err := CheckHyperparameterNames([]string{"epochs", reserved})
		if err == nil || !strings.Contains(err.Error(), reserved) {
			t.Errorf("CheckHyperparameterNames(%q) error = %v, want reserved", reserved, err)
		}
	}
}
