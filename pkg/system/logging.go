// SPDX-FileCopyrightText: 2025 Deutsche Telekom AG
//
// SPDX-License-Identifier: Apache-2.0

package system

import (
	"io"
	"net/url"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewCLILogger returns a console logger for command line tools. Output goes to
// w (stderr when nil) so it never mixes with command results on stdout. The
// level is warn unless verbose is set, in which case request traces at debug
// level are emitted as well.
func NewCLILogger(w io.Writer, verbose bool) *zap.Logger {
	if w == nil {
		w = os.Stderr
	}
	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.TimeKey = ""
	encCfg.CallerKey = ""
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder

	level := zapcore.WarnLevel
	if verbose {
		level = zapcore.DebugLevel
	}
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.AddSync(w), level)
	return zap.New(core)
}

// RedactURL returns u without user info and query string. Authorization
// requests carry code challenges and states in the query, tokens never show
// up in logs this way.
func RedactURL(u *url.URL) string {
	if u == nil {
		return ""
	}
	clean := *u
	clean.User = nil
	clean.RawQuery = ""
	clean.Fragment = ""
	return clean.String()
}

// RequestFields returns the key/value pairs logged for an outgoing HTTP call.
func RequestFields(method string, u *url.URL, requestID string) []interface{} {
	return []interface{}{"method", method, "url", RedactURL(u), "requestID", requestID}
}
