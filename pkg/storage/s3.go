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

// Package storage uploads training code archives to Amazon S3.
package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// ContentType of uploaded archives.
const ContentType = "application/gzip"

// PutObjectAPI is the subset of the S3 client the uploader needs.
type PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Uploader writes objects with a single PutObject call.
type S3Uploader struct {
	client PutObjectAPI
}

// NewS3Uploader creates an uploader around an S3 client.
func NewS3Uploader(client PutObjectAPI) *S3Uploader {
	return &S3Uploader{client: client}
}

// NewS3UploaderFromConfig creates an uploader from an AWS config.
func NewS3UploaderFromConfig(cfg aws.Config) *S3Uploader {
	return NewS3Uploader(s3.NewFromConfig(cfg))
}

// URI formats an S3 location as s3://bucket/key.
func URI(bucket, key string) string {
	return fmt.Sprintf("s3://%s/%s", bucket, key)
}

// Upload stores body under bucket/key and returns its s3:// URI.
func (u *S3Uploader) Upload(ctx context.Context, bucket, key string, body io.Reader, size int64) (string, error) {
	uri := URI(bucket, key)
	logrus.Infof("Uploading %d bytes to %s", size, uri)

	_, err := u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(key),
		Body:          body,
		ContentLength: aws.Int64(size),
		ContentType:   aws.String(ContentType),
	})
	if err != nil {
		return "", errors.Wrapf(err, "failed to upload %s", uri)
	}
	return uri, nil
}
