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

// Package logging is the launcher's printf-style logger. It writes
// human-readable lines to stderr so that stdout only carries the result.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
)

// LevelEnvVar selects the log level (debug, info, warn, error).
const LevelEnvVar = "LOG_LEVEL"

var log = logrus.StandardLogger()

var (
	fatalOut io.Writer = os.Stderr
	exitFunc           = os.Exit
)

func init() {
	Configure(os.Stderr)
}

// Configure points the logger at out and enables colors when out is a terminal.
func Configure(out io.Writer) {
	log.SetOutput(out)
	fatalOut = out

	colors := false
	if f, ok := out.(*os.File); ok {
		colors = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	color.NoColor = !colors
	log.SetFormatter(&logrus.TextFormatter{
		DisableTimestamp:       true,
		ForceColors:            colors,
		DisableColors:          !colors,
		DisableLevelTruncation: true,
		PadLevelText:           true,
	})
}

// SetLevel parses name (case-insensitive) and applies it. An empty name means info.
func SetLevel(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		log.SetLevel(logrus.InfoLevel)
		return nil
	}
	lvl, err := logrus.ParseLevel(name)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", LevelEnvVar, name, err)
	}
	log.SetLevel(lvl)
	return nil
}

// Logger exposes the underlying logrus logger for packages that stream tool output.
func Logger() *logrus.Logger {
	return log
}

func Debug(format string, args ...interface{}) {
	log.Debugf(format, args...)
}

func Info(format string, args ...interface{}) {
	log.Infof(format, args...)
}

func Warn(format string, args ...interface{}) {
	log.Warnf(format, args...)
}

func Error(format string, args ...interface{}) {
	log.Errorf(format, args...)
}

// Fatal prints the message in red and exits with status 1.
func Fatal(format string, args ...interface{}) {
	color.New(color.FgRed, color.Bold).Fprintf(fatalOut, "Error: "+format+"\n", args...)
	exitFunc(1)
}
