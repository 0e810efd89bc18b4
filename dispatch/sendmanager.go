// Copyright (c) 2024 The Batchline Project and its Contributors
//
// Permission is hereby granted, free of charge, to any person obtaining a copy of
// this software and associated documentation files (the "Software"), to deal in
// the Software without restriction, including without limitation the rights to
// use, copy, modify, merge, publish, distribute, sublicense, and/or sell copies
// of the Software, and to permit persons to whom the Software is furnished to do
// so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

package dispatch

import (
	"fmt"
	"log/slog"

	"github.com/batchline/batchline/config"
)

// the result of one backend's attempt to deliver one file
type SendResult struct {
	Backend     string
	Success     bool
	Destination string
	Error       string
}

// This type fans a file out to every backend enabled in a folder's
// configuration. A failing backend never prevents the remaining backends
// from being attempted.
type SendManager struct {
	backends map[string]Backend
}

// creates a send manager over the given backend set
func NewSendManager(backends map[string]Backend) *SendManager {
	return &SendManager{backends: backends}
}

// EnabledBackends returns the names of the backends the folder enables, in
// delivery order, skipping any name with no registered implementation.
func (m *SendManager) EnabledBackends(folder config.Folder) []string {
	enabled := make([]string, 0, len(backendOrder))
	for _, name := range backendOrder {
		if !backendEnabled(folder, name) {
			continue
		}
		if _, registered := m.backends[name]; !registered {
			slog.Error(fmt.Sprintf("No implementation registered for backend '%s'", name))
			continue
		}
		enabled = append(enabled, name)
	}
	return enabled
}

// SendAll delivers the file through every enabled backend and reports one
// result per backend.
func (m *SendManager) SendAll(folder config.Folder, settings config.SettingsConfig, path string) []SendResult {
	results := make([]SendResult, 0)
	for _, name := range m.EnabledBackends(folder) {
		backend := m.backends[name]
		result := SendResult{
			Backend:     name,
			Destination: backend.Destination(folder),
		}
		slog.Debug(fmt.Sprintf("Sending %s to %s with the %s backend", path, result.Destination, name))
		if err := backend.Send(folder, settings, path); err != nil {
			slog.Error(fmt.Sprintf("Backend %s failed for %s: %s", name, path, err))
			result.Error = err.Error()
		} else {
			result.Success = true
		}
		results = append(results, result)
	}
	return results
}

// Validate checks the folder configuration against each enabled backend's
// requirements, returning one message per problem found.
func (m *SendManager) Validate(folder config.Folder) []string {
	problems := make([]string, 0)
	for _, name := range m.EnabledBackends(folder) {
		problems = append(problems, m.backends[name].Validate(folder)...)
	}
	return problems
}

// AllSucceeded reports whether every attempted delivery succeeded (false when
// none were attempted).
func AllSucceeded(results []SendResult) bool {
	if len(results) == 0 {
		return false
	}
	for _, result := range results {
		if !result.Success {
			return false
		}
	}
	return true
}

// FailedBackends lists the names of backends that failed.
func FailedBackends(results []SendResult) []string {
	failed := make([]string, 0)
	for _, result := range results {
		if !result.Success {
			failed = append(failed, result.Backend)
		}
	}
	return failed
}
