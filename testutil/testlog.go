// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package testutil

import (
	"io"
	"log"
	"strings"
	"testing"
)

// TestLogger returns a *log.Logger that writes through t.Log (this module
// logs with the standard library's log package throughout, not hclog).
func TestLogger(t testing.TB) *log.Logger {
	return log.New(&testWriter{t}, "", 0)
}

func TestWriter(t testing.TB) io.Writer {
	return &testWriter{t}
}

type testWriter struct {
	t testing.TB
}

func (tw *testWriter) Write(p []byte) (n int, err error) {
	tw.t.Helper()
	tw.t.Log(strings.TrimSpace(string(p)))
	return len(p), nil
}
