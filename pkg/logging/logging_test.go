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

package logging

import (
	"bytes"
	"os"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestSetLevel(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    logrus.Level
		wantErr bool
	}{
		{name: "empty defaults to info", input: "", want: logrus.InfoLevel},
		{name: "debug", input: "debug", want: logrus.DebugLevel},
		{name: "mixed case", input: "WARN", want: logrus.WarnLevel},
		{name: "surrounding spaces", input: " error ", want: logrus.ErrorLevel},
		{name: "unknown", input: "chatty", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Cleanup(func() { log.SetLevel(logrus.InfoLevel) })
			err := SetLevel(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("SetLevel(%q) succeeded, want error", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("SetLevel(%q) returned error: %v", tt.input, err)
			}
			if got := log.GetLevel(); got != tt.want {
				t.Errorf("level = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestInfoWritesToConfiguredOutput(t *testing.T) {
	var buf bytes.Buffer
	Configure(&buf)
	t.Cleanup(func() { Configure(os.Stderr) })

	Info("uploading %s", "trainer")
	Debug("hidden at info level")

	out := buf.String()
	if !strings.Contains(out, "uploading trainer") {
		t.Errorf("output %q does not contain the info message", out)
	}
	if strings.Contains(out, "hidden") {
		t.Errorf("output %q contains a debug message at info level", out)
	}
}

func TestFatalExitsWithStatusOne(t *testing.T) {
	var buf bytes.Buffer
	Configure(&buf)
	var code int
	exitFunc = func(c int) { code = c }
	t.Cleanup(func() {
		exitFunc = os.Exit
		Configure(os.Stderr)
	})

	Fatal("missing %s", "AWS_S3_BUCKET")

	if code != 1 {
		t.Errorf("exit code = %d, want 1", code)
	}
	if got := buf.String(); !strings.Contains(got, "Error: missing AWS_S3_BUCKET") {
		t.Errorf("fatal output = %q", got)
	}
}

func TestErrorWritesErrorEntry(t *testing.T) {
	var buf bytes.Buffer
	Configure(&buf)
	t.Cleanup(func() { Configure(os.Stderr) })

	Error("push of %s failed", "train:v1")

	out := buf.String()
	if !strings.Contains(out, "push of train:v1 failed") || !strings.Contains(out, "error") {
		t.Errorf("output %q does not contain the error entry", out)
	}
}

func TestLoggerSharesLevel(t *testing.T) {
	t.Cleanup(func() { log.SetLevel(logrus.InfoLevel) })

	if Logger().IsLevelEnabled(logrus.DebugLevel) {
		t.Fatal("debug enabled at the default level")
	}
	if err := SetLevel("debug"); err != nil {
		t.Fatal(err)
	}
	if !Logger().IsLevelEnabled(logrus.DebugLevel) {
		t.Error("Logger() does not follow SetLevel")
	}
}
