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

// This package contains testing utilities for the batch processing engine.
package bltest

import (
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/batchline/batchline/config"
)

// Enables DEBUG log messages for the engine's structured log (slog).
func EnableDebugLogging() {
	logLevel := new(slog.LevelVar)
	logLevel.Set(slog.LevelDebug)
	h := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})
	slog.SetDefault(slog.New(h))
}

//-------------------------
// Delivery Backend Fixture
//-------------------------

// a single recorded call to the mock backend
type MockSend struct {
	FolderId int64
	Path     string
	// the payload's content at send time (the file may be a temporary
	// that no longer exists once the run finishes)
	Content string
}

// This type implements a delivery backend test fixture. It records every
// Send call and can be told to fail.
type MockBackend struct {
	// name reported to the send manager ("copy" by default)
	BackendName string
	// when set, every Send fails with this message
	FailWith string
	// required configuration problems reported by Validate
	Problems []string

	mutex sync.Mutex
	sends []MockSend
}

func NewMockBackend(name string) *MockBackend {
	return &MockBackend{BackendName: name}
}

func (b *MockBackend) Name() string {
	return b.BackendName
}

func (b *MockBackend) Destination(folder config.Folder) string {
	return fmt.Sprintf("mock://%s", b.BackendName)
}

func (b *MockBackend) Send(folder config.Folder, settings config.SettingsConfig, path string) error {
	content, _ := os.ReadFile(path)
	b.mutex.Lock()
	defer b.mutex.Unlock()
	b.sends = append(b.sends, MockSend{
		FolderId: folder.Id,
		Path:     path,
		Content:  string(content),
	})
	if b.FailWith != "" {
		return fmt.Errorf("%s", b.FailWith)
	}
	return nil
}

func (b *MockBackend) Validate(folder config.Folder) []string {
	return b.Problems
}

// Sends returns the calls recorded so far.
func (b *MockBackend) Sends() []MockSend {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	sends := make([]MockSend, len(b.sends))
	copy(sends, b.sends)
	return sends
}
