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
	"github.com/batchline/batchline/config"
)

// This type represents a delivery backend: a sink to which a processed file
// is sent. The production backends are copy, ftp, and email; tests plug in
// mocks through the same contract.
type Backend interface {
	// returns the backend's name as used in folder configuration toggles
	Name() string
	// returns the destination the backend would deliver to for the folder
	Destination(folder config.Folder) string
	// delivers the file at the given local path
	Send(folder config.Folder, settings config.SettingsConfig, path string) error
	// checks the folder configuration for the fields this backend requires
	Validate(folder config.Folder) []string
}

// backend names in the order deliveries are attempted
var backendOrder = []string{"copy", "ftp", "email"}

// DefaultBackends returns the production backend set.
func DefaultBackends() map[string]Backend {
	return map[string]Backend{
		"copy":  &CopyBackend{},
		"ftp":   &FtpBackend{},
		"email": &EmailBackend{},
	}
}

// reports whether the named backend is enabled for the folder
func backendEnabled(folder config.Folder, name string) bool {
	switch name {
	case "copy":
		return folder.ProcessBackendCopy
	case "ftp":
		return folder.ProcessBackendFtp
	case "email":
		return folder.ProcessBackendEmail
	}
	return false
}
