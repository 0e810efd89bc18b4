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
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

// This file implements a file system rooted at a local base path. All paths
// are joined beneath the base. Symbolic links are followed.

type localFileSystem struct {
	basePath string
}

func newLocalFileSystem(basePath string) (FileSystem, error) {
	info, err := os.Stat(basePath)
	if err != nil || !info.IsDir() {
		return nil, &ConfigError{
			Protocol: "local",
			Message:  fmt.Sprintf("Base path does not exist: %s", basePath),
		}
	}
	return &localFileSystem{basePath: basePath}, nil
}

func (fs *localFileSystem) resolve(path string) string {
	return filepath.Join(fs.basePath, path)
}

func (fs *localFileSystem) List(path string) []Entry {
	entries := make([]Entry, 0)
	dirEntries, err := os.ReadDir(fs.resolve(path))
	if err != nil {
		slog.Error(fmt.Sprintf("Couldn't list local directory '%s': %s", path, err))
		return entries
	}
	for _, dirEntry := range dirEntries {
		// follow symlinks so a linked file reports its target's metadata
		info, err := os.Stat(filepath.Join(fs.resolve(path), dirEntry.Name()))
		if err != nil || info.IsDir() {
			continue
		}
		entries = append(entries, Entry{
			Name:     dirEntry.Name(),
			Size:     info.Size(),
			Modified: info.ModTime(),
		})
	}
	return entries
}

func (fs *localFileSystem) FileExists(path string) bool {
	info, err := os.Stat(fs.resolve(path))
	return err == nil && !info.IsDir()
}

func (fs *localFileSystem) DirExists(path string) bool {
	info, err := os.Stat(fs.resolve(path))
	return err == nil && info.IsDir()
}

func (fs *localFileSystem) FileInfo(path string) (Entry, error) {
	info, err := os.Stat(fs.resolve(path))
	if err != nil {
		return Entry{}, &IOError{Path: path, Message: err.Error()}
	}
	return Entry{Name: info.Name(), Size: info.Size(), Modified: info.ModTime()}, nil
}

func (fs *localFileSystem) Download(remotePath, localPath string) bool {
	return copyFile(fs.resolve(remotePath), localPath)
}

func (fs *localFileSystem) Upload(localPath, remotePath string) bool {
	destination := fs.resolve(remotePath)
	if err := os.MkdirAll(filepath.Dir(destination), 0755); err != nil {
		slog.Error(fmt.Sprintf("Couldn't create directory for '%s': %s", remotePath, err))
		return false
	}
	return copyFile(localPath, destination)
}

func (fs *localFileSystem) DeleteFile(path string) bool {
	if !fs.FileExists(path) {
		return false
	}
	if err := os.Remove(fs.resolve(path)); err != nil {
		slog.Error(fmt.Sprintf("Couldn't delete '%s': %s", path, err))
		return false
	}
	return true
}

func (fs *localFileSystem) MakeDir(path string) bool {
	if err := os.MkdirAll(fs.resolve(path), 0755); err != nil {
		slog.Error(fmt.Sprintf("Couldn't create directory '%s': %s", path, err))
		return false
	}
	return true
}

func (fs *localFileSystem) DeleteDir(path string) bool {
	if !fs.DirExists(path) {
		return false
	}
	if err := os.RemoveAll(fs.resolve(path)); err != nil {
		slog.Error(fmt.Sprintf("Couldn't delete directory '%s': %s", path, err))
		return false
	}
	return true
}

func (fs *localFileSystem) UploadDir(localDir, remoteDir string) bool {
	if !fs.MakeDir(remoteDir) {
		return false
	}
	entries, err := os.ReadDir(localDir)
	if err != nil {
		slog.Error(fmt.Sprintf("Couldn't read local directory '%s': %s", localDir, err))
		return false
	}
	ok := true
	for _, entry := range entries { // ReadDir sorts lexicographically
		localPath := filepath.Join(localDir, entry.Name())
		remotePath := filepath.Join(remoteDir, entry.Name())
		if entry.IsDir() {
			ok = fs.UploadDir(localPath, remotePath) && ok
		} else {
			ok = fs.Upload(localPath, remotePath) && ok
		}
	}
	return ok
}

func (fs *localFileSystem) DownloadDir(remoteDir, localDir string) bool {
	if err := os.MkdirAll(localDir, 0755); err != nil {
		slog.Error(fmt.Sprintf("Couldn't create local directory '%s': %s", localDir, err))
		return false
	}
	entries, err := os.ReadDir(fs.resolve(remoteDir))
	if err != nil {
		slog.Error(fmt.Sprintf("Couldn't read directory '%s': %s", remoteDir, err))
		return false
	}
	ok := true
	for _, entry := range entries {
		remotePath := filepath.Join(remoteDir, entry.Name())
		localPath := filepath.Join(localDir, entry.Name())
		if entry.IsDir() {
			ok = fs.DownloadDir(remotePath, localPath) && ok
		} else {
			ok = fs.Download(remotePath, localPath) && ok
		}
	}
	return ok
}

func (fs *localFileSystem) Hash(path, algorithm string) (string, error) {
	hasher, err := newHasher(algorithm)
	if err != nil {
		return "", &IOError{Path: path, Message: err.Error()}
	}
	file, err := os.Open(fs.resolve(path))
	if err != nil {
		return "", &IOError{Path: path, Message: err.Error()}
	}
	defer file.Close()
	if _, err := io.Copy(hasher, file); err != nil {
		return "", &IOError{Path: path, Message: err.Error()}
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

func (fs *localFileSystem) Close() error {
	return nil
}

// copies a single file, preserving nothing but content
func copyFile(sourcePath, destinationPath string) bool {
	source, err := os.Open(sourcePath)
	if err != nil {
		slog.Error(fmt.Sprintf("Couldn't open '%s': %s", sourcePath, err))
		return false
	}
	defer source.Close()
	destination, err := os.Create(destinationPath)
	if err != nil {
		slog.Error(fmt.Sprintf("Couldn't create '%s': %s", destinationPath, err))
		return false
	}
	defer destination.Close()
	if _, err := io.Copy(destination, source); err != nil {
		slog.Error(fmt.Sprintf("Couldn't copy '%s' to '%s': %s", sourcePath, destinationPath, err))
		return false
	}
	return true
}
