/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package logging

import (
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/friendsincode/grimnir_ambience/internal/logbuffer"
)

// Setup configures zerolog for the process.
func Setup(environment string) zerolog.Logger {
	return SetupWithWriter(environment, os.Stdout)
}

// SetupWithWriter configures zerolog to write to out. Development gets a
// console writer at debug level; any other environment gets JSON at info.
func SetupWithWriter(environment string, out io.Writer) zerolog.Logger {
	return install(environment, output(environment, out))
}

// SetupCaptured is Setup with every line also kept in buf.
func SetupCaptured(environment string, out io.Writer, buf *logbuffer.Buffer) zerolog.Logger {
	// The buffer parses JSON, so it sits in front of the console formatter.
	return install(environment, logbuffer.NewWriter(buf, output(environment, out)))
}

func output(environment string, out io.Writer) io.Writer {
	if environment == "development" {
		return zerolog.ConsoleWriter{Out: out, NoColor: out != os.Stdout}
	}
	return out
}

func install(environment string, writer io.Writer) zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	level := zerolog.InfoLevel
	if environment == "development" {
		level = zerolog.DebugLevel
	}

	logger := zerolog.New(writer).With().Timestamp().Str("service", "ambienced").Logger().Level(level)
	log.Logger = logger
	return logger
}
