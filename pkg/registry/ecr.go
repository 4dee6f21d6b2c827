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

// Package registry obtains push credentials for Amazon ECR.
package registry

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ecr"
	"github.com/google/go-containerregistry/pkg/authn"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// AuthorizationTokenAPI is the subset of the ECR client used for login.
type AuthorizationTokenAPI interface {
	GetAuthorizationToken(ctx context.Context, params *ecr.GetAuthorizationTokenInput, optFns ...func(*ecr.Options)) (*ecr.GetAuthorizationTokenOutput, error)
}

// LoginError is returned when ECR answers without usable credentials.
type LoginError struct {
	Reason string
}

func (e *LoginError) Error() string {
	return "ECR login failed: " + e.Reason
}

// Credentials are registry login details decoded from an ECR token.
type Credentials struct {
	Username string
	Password string
	Registry string
}

// Authenticator returns the credentials in the form crane expects.
func (c Credentials) Authenticator() authn.Authenticator {
	return authn.FromConfig(authn.AuthConfig{
		Username: c.Username,
		Password: c.Password,
	})
}

// ECRAuthenticator logs in to the account's private registry.
type ECRAuthenticator struct {
	client AuthorizationTokenAPI
}

func NewECRAuthenticator(client AuthorizationTokenAPI) *ECRAuthenticator {
	return &ECRAuthenticator{client: client}
}

func NewECRAuthenticatorFromConfig(cfg aws.Config) *ECRAuthenticator {
	return NewECRAuthenticator(ecr.NewFromConfig(cfg))
}

// Login fetches and decodes an authorization token.
func (a *ECRAuthenticator) Login(ctx context.Context) (Credentials, error) {
	out, err := a.client.GetAuthorizationToken(ctx, &ecr.GetAuthorizationTokenInput{})
	if err != nil {
		return Credentials{}, errors.Wrap(err, "failed to get ECR authorization token")
	}
	if len(out.AuthorizationData) == 0 {
		return Credentials{}, &LoginError{Reason: "no authorization data in response"}
	}
	data := out.AuthorizationData[0]

	token := aws.ToString(data.AuthorizationToken)
	if token == "" {
		return Credentials{}, &LoginError{Reason: "no authorizationToken in response"}
	}
	username, password, err := decodeToken(token)
	if err != nil {
		return Credentials{}, err
	}

	endpoint := aws.ToString(data.ProxyEndpoint)
	if endpoint == "" {
		return Credentials{}, &LoginError{Reason: "no proxyEndpoint in response"}
	}

	logrus.Infof("Logging in to %s", endpoint)
	return Credentials{
		Username: username,
		Password: password,
		Registry: strings.TrimPrefix(strings.TrimPrefix(endpoint, "https://"), "http://"),
	}, nil
}

func decodeToken(token string) (string, string, error) {
	raw, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return "", "", &LoginError{Reason: fmt.Sprintf("authorization token is not valid base64: %v", err)}
	}
	username, password, ok := strings.Cut(string(raw), ":")
	if !ok {
		return "", "", &LoginError{Reason: "authorization token is not in user:password form"}
	}
	return username, password, nil
}
