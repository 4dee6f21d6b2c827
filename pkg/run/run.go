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

// Package run is the launch pipeline: load configuration, optionally build
// and push the training image, upload the trainer code, submit the job.
// Steps run strictly in sequence and the first failure ends the run.
package run

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"trainer-launcher/pkg/bundle"
	"trainer-launcher/pkg/config"
	"trainer-launcher/pkg/estimator"
	"trainer-launcher/pkg/logging"
	"trainer-launcher/pkg/orchestrator"
	"trainer-launcher/pkg/orchestrator/sagemaker"
	"trainer-launcher/pkg/storage"

	"github.com/spf13/afero"
)

// Pipeline defaults and job tag keys.
const (
	DefaultTrainerDir   = "trainer"
	DefaultCodePrefix   = "code"
	DefaultCodeBasename = "trainer"
	DefaultOutputPrefix = "output"
	RunIDTag            = "run-id"
	GitCommitTag        = "git-commit"
)

// BuildMode selects whether the image is built before submission.
type BuildMode int

const (
	// UsePrebuiltImage submits with the configured image tag as-is.
	UsePrebuiltImage BuildMode = iota
	// BuildAndPushImage builds the image, pushes it, then submits.
	BuildAndPushImage
)

func (m BuildMode) String() string {
	switch m {
	case UsePrebuiltImage:
		return "prebuilt"
	case BuildAndPushImage:
		return "build"
	default:
		return fmt.Sprintf("BuildMode(%d)", int(m))
	}
}

// Uploader stores the packaged trainer code and returns its URI.
type Uploader interface {
	Upload(ctx context.Context, bucket, key string, body io.Reader, size int64) (string, error)
}

// ImagePublisher builds and pushes an image and returns the pushed URI.
type ImagePublisher interface {
	Publish(ctx context.Context, ref config.ImageReference) (string, error)
}

// JobSubmitter submits a training job.
type JobSubmitter interface {
	SubmitJob(ctx context.Context, job orchestrator.JobDefinition) (*orchestrator.Submission, error)
}

// Dependencies are the external services the pipeline calls. Publisher is
// only required for BuildAndPushImage.
type Dependencies struct {
	Uploader  Uploader
	Publisher ImagePublisher
	Submitter JobSubmitter
}

// Options holds the parameters for a launch.
type Options struct {
	BuildMode  BuildMode
	TrainerDir string
	ConfigFile string

	// SourceRevision, when set, is attached to the job as GitCommitTag.
	SourceRevision string

	// FS is the filesystem holding the trainer directory and config file.
	// Defaults to the OS filesystem.
	FS afero.Fs
}

func (o Options) withDefaults() Options {
	if o.TrainerDir == "" {
		o.TrainerDir = DefaultTrainerDir
	}
	if o.ConfigFile == "" {
		o.ConfigFile = estimator.DefaultConfigFile
	}
	if o.FS == nil {
		o.FS = afero.NewOsFs()
	}
	return o
}

// Plan is the validated input of a launch. Building one performs no
// external calls.
type Plan struct {
	Settings  *config.Settings
	Estimator *estimator.Config
	Options   Options

	// JobName and Hyperparameters are resolved while preparing so a bad
	// config.yaml never reaches the registry or the bucket.
	JobName         string
	Hyperparameters map[string]string
}

// Result describes a submitted job.
type Result struct {
	RunID      string
	ImageURI   string
	ImageBuilt bool
	CodeURI    string
	JobName    string
	JobARN     string
}

// Stage names a pipeline step for error reporting.
type Stage string

const (
	StageConfig Stage = "config"
	StageBuild  Stage = "build"
	StageUpload Stage = "upload"
	StageSubmit Stage = "submit"
)

// StageError is returned by the pipeline; Err is the underlying cause.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// StageOf returns the stage of a pipeline error, or "" for other errors.
func StageOf(err error) Stage {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return ""
}

func stageErr(stage Stage, err error) error {
	return &StageError{Stage: stage, Err: err}
}

// Launch prepares a plan from lookup and executes it.
func Launch(ctx context.Context, lookup config.LookupFunc, opts Options, deps Dependencies) (*Result, error) {
	plan, err := Prepare(lookup, opts)
	if err != nil {
		return nil, err
	}
	return Execute(ctx, plan, deps)
}

// Prepare reads the settings and the estimator config and checks the trainer
// directory.
func Prepare(lookup config.LookupFunc, opts Options) (*Plan, error) {
	opts = opts.withDefaults()

	settings, err := config.Load(lookup)
	if err != nil {
		return nil, stageErr(StageConfig, err)
	}

	est, err := estimator.Load(opts.FS, opts.ConfigFile)
	if err != nil {
		return nil, stageErr(StageConfig, err)
	}

	info, err := opts.FS.Stat(opts.TrainerDir)
	if err != nil {
		return nil, stageErr(StageConfig, fmt.Errorf("trainer directory %q: %w", opts.TrainerDir, err))
	}
	if !info.IsDir() {
		return nil, stageErr(StageConfig, fmt.Errorf("trainer directory %q is not a directory", opts.TrainerDir))
	}

	entryPoint := filepath.Join(opts.TrainerDir, est.EntryPoint)
	if _, err := opts.FS.Stat(entryPoint); err != nil {
		if os.IsNotExist(err) {
			return nil, stageErr(StageConfig, fmt.Errorf("entry point %q not found in %q", est.EntryPoint, opts.TrainerDir))
		}
		return nil, stageErr(StageConfig, fmt.Errorf("entry point %q: %w", entryPoint, err))
	}

	hyperparameters, err := est.EncodedHyperparameters()
	if err != nil {
		return nil, stageErr(StageConfig, err)
	}
	if err := sagemaker.CheckHyperparameterNames(est.HyperparameterNames()); err != nil {
		return nil, stageErr(StageConfig, err)
	}
	jobName, err := sagemaker.ValidateJobName(est.BaseJobName, settings.RunID)
	if err != nil {
		return nil, stageErr(StageConfig, err)
	}

	return &Plan{
		Settings:        settings,
		Estimator:       est,
		Options:         opts,
		JobName:         jobName,
		Hyperparameters: hyperparameters,
	}, nil
}

// Execute runs the pipeline for plan.
func Execute(ctx context.Context, plan *Plan, deps Dependencies) (*Result, error) {
	s := plan.Settings
	opts := plan.Options.withDefaults()
	logging.Info("Run ID: %s", s.RunID)

	res := &Result{RunID: s.RunID}

	imageURI, err := prepareImage(ctx, s, opts.BuildMode, deps.Publisher)
	if err != nil {
		return nil, stageErr(StageBuild, err)
	}
	res.ImageURI = imageURI
	res.ImageBuilt = opts.BuildMode == BuildAndPushImage

	trainer, err := uploadTrainer(ctx, s, opts, deps.Uploader)
	if err != nil {
		return nil, stageErr(StageUpload, err)
	}
	res.CodeURI = trainer.RemoteURI

	job := jobDefinition(plan, imageURI, trainer.RemoteURI)
	if opts.SourceRevision != "" {
		job.Tags[GitCommitTag] = opts.SourceRevision
	}

	logging.Info("Start training job %s", plan.JobName)
	sub, err := deps.Submitter.SubmitJob(ctx, job)
	if err != nil {
		return nil, stageErr(StageSubmit, err)
	}
	res.JobName = sub.JobName
	res.JobARN = sub.JobARN

	logging.Info("Training job %s submitted (%s)", sub.JobName, sub.JobARN)
	return res, nil
}

func prepareImage(ctx context.Context, s *config.Settings, mode BuildMode, publisher ImagePublisher) (string, error) {
	ref := s.Image()
	switch mode {
	case UsePrebuiltImage:
		logging.Info("Using pre-existing image: %s", ref)
		return ref.String(), nil
	case BuildAndPushImage:
		if publisher == nil {
			return "", errors.New("no image publisher configured")
		}
		logging.Info("Building and pushing image %s", ref)
		return publisher.Publish(ctx, ref)
	default:
		return "", fmt.Errorf("unknown build mode %v", mode)
	}
}

func uploadTrainer(ctx context.Context, s *config.Settings, opts Options, uploader Uploader) (*bundle.Bundle, error) {
	trainer, err := bundle.Create(opts.FS, opts.TrainerDir)
	if err != nil {
		return nil, fmt.Errorf("failed to package %s: %w", opts.TrainerDir, err)
	}

	key := trainer.ObjectKey(DefaultCodePrefix, DefaultCodeBasename)
	logging.Info("Packaged %d files from %s as %s", trainer.Files, opts.TrainerDir, key)

	uri, err := uploader.Upload(ctx, s.Bucket, key, trainer.Reader(), trainer.Size())
	if err != nil {
		return nil, err
	}
	trainer.RemoteURI = uri
	return trainer, nil
}

func jobDefinition(plan *Plan, imageURI, sourceURI string) orchestrator.JobDefinition {
	s, est := plan.Settings, plan.Estimator
	hyperparameters := make(map[string]string, len(plan.Hyperparameters))
	for _, k := range est.HyperparameterNames() {
		hyperparameters[k] = plan.Hyperparameters[k]
		logging.Debug("hyperparameter %s=%s", k, hyperparameters[k])
	}

	return orchestrator.JobDefinition{
		BaseJobName:     est.BaseJobName,
		RunID:           s.RunID,
		ImageURI:        imageURI,
		RoleARN:         s.RoleARN,
		SourceURI:       sourceURI,
		EntryPoint:      est.EntryPoint,
		OutputPath:      storage.URI(s.Bucket, DefaultOutputPrefix),
		InstanceType:    est.InstanceType,
		InstanceCount:   est.InstanceCount,
		VolumeSizeGB:    est.VolumeSize,
		UseSpot:         est.UseSpotInstances,
		MaxRunSeconds:   est.MaxRunSeconds(),
		MaxWaitSeconds:  est.MaxWaitSeconds(),
		Hyperparameters: hyperparameters,
		Tags:            map[string]string{RunIDTag: s.RunID},
	}
}
