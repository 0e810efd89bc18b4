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

package remotefs

import (
	"fmt"
)

// This error type is returned when a file system cannot be constructed from
// the given protocol and parameters.
type ConfigError struct {
	Protocol, Message string
}

func (e ConfigError) Error() string {
	if e.Protocol != "" {
		return fmt.Sprintf("Invalid %s file system configuration: %s", e.Protocol, e.Message)
	}
	return fmt.Sprintf("Invalid file system configuration: %s", e.Message)
}

// indicates that a file could not be read or written where the caller needs
// to distinguish failure from absence
type IOError struct {
	Path, Message string
}

func (e IOError) Error() string {
	return fmt.Sprintf("I/O error on '%s': %s", e.Path, e.Message)
}

// indicates that a connection to a remote host could not be established
type ConnectionError struct {
	Protocol, Host, Message string
}

func (e ConnectionError) Error() string {
	return fmt.Sprintf("Failed to connect to %s server '%s': %s", e.Protocol, e.Host, e.Message)
}
