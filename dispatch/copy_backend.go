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
	"io"
	"os"
	"path/filepath"

	"github.com/batchline/batchline/config"
)

// This backend copies the file into a destination directory on a file system
// visible to the engine.

type CopyBackend struct{}

func (b *CopyBackend) Name() string {
	return "copy"
}

func (b *CopyBackend) Destination(folder config.Folder) string {
	return folder.CopyToDirectory
}

func (b *CopyBackend) Send(folder config.Folder, settings config.SettingsConfig, path string) error {
	destinationDir := folder.CopyToDirectory
	if destinationDir == "" {
		return fmt.Errorf("No copy destination configured for folder '%s'", folder.Name())
	}
	if err := os.MkdirAll(destinationDir, 0755); err != nil {
		return err
	}
	source, err := os.Open(path)
	if err != nil {
		return err
	}
	defer source.Close()
	destination, err := os.Create(filepath.Join(destinationDir, filepath.Base(path)))
	if err != nil {
		return err
	}
	defer destination.Close()
	_, err = io.Copy(destination, source)
	return err
}

func (b *CopyBackend) Validate(folder config.Folder) []string {
	var problems []string
	if folder.CopyToDirectory == "" {
		problems = append(problems, "copy_to_directory is required when the copy backend is enabled")
	}
	return problems
}
