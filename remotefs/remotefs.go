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

// This package provides a uniform capability surface over local, SMB, SFTP,
// and FTP storage. File systems are created by the New factory from a
// protocol name and a parameter map, connect lazily on first use, and hold
// their connection open until Close.
package remotefs

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"fmt"
	"hash"
	"strconv"
	"strings"
	"time"
)

// a directory entry on a file system. Modified is an opaque wall-clock value;
// SMB and FTP servers report times whose timezone is not guaranteed.
type Entry struct {
	Name     string
	Size     int64
	Modified time.Time
}

// This type represents a file system reachable over one of the supported
// protocols. Individual operations report failure by returning false or an
// empty result and logging the cause; Hash and FileInfo return an *IOError
// because their callers need to distinguish absence from read failure.
type FileSystem interface {
	// lists the files in the given directory (directories are omitted)
	List(path string) []Entry
	// returns true if a file exists at the given path
	FileExists(path string) bool
	// returns true if a directory exists at the given path
	DirExists(path string) bool
	// retrieves metadata for the file at the given path
	FileInfo(path string) (Entry, error)
	// copies a remote file to a local path
	Download(remotePath, localPath string) bool
	// copies a local file to a remote path
	Upload(localPath, remotePath string) bool
	// removes the file at the given path
	DeleteFile(path string) bool
	// creates a directory (and any missing parents) at the given path
	MakeDir(path string) bool
	// removes the directory at the given path
	DeleteDir(path string) bool
	// recursively copies a local directory tree to a remote directory
	UploadDir(localDir, remoteDir string) bool
	// recursively copies a remote directory tree to a local directory
	DownloadDir(remoteDir, localDir string) bool
	// computes the hex digest of the file's content with the given
	// algorithm ("md5", "sha1", or "sha256")
	Hash(path, algorithm string) (string, error)
	// releases the connection (safe to call on an unconnected file system)
	Close() error
}

// Parameters for constructing a file system. Required keys per protocol:
//   - local: base_path
//   - smb:   host, username, password, share (optional port, default 445)
//   - sftp:  host, username, password (optional port, default 22, and
//     private_key_path, preferred over the password when present)
//   - ftp:   host, username, password (optional port, default 21, and
//     use_tls, default true)
type Params map[string]any

// fetches a required string parameter
func (p Params) str(key string) (string, error) {
	value, found := p[key]
	if !found {
		return "", fmt.Errorf("Missing required parameter: %s", key)
	}
	s, ok := value.(string)
	if !ok || s == "" {
		return "", fmt.Errorf("Missing required parameter: %s", key)
	}
	return s, nil
}

// fetches an optional string parameter
func (p Params) strDefault(key, fallback string) string {
	if value, found := p[key]; found {
		if s, ok := value.(string); ok {
			return s
		}
	}
	return fallback
}

// fetches an optional integer parameter, accepting numeric strings
func (p Params) intDefault(key string, fallback int) int {
	value, found := p[key]
	if !found {
		return fallback
	}
	switch v := value.(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case string:
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

// fetches an optional boolean parameter, accepting "true"/"false" strings
func (p Params) boolDefault(key string, fallback bool) bool {
	value, found := p[key]
	if !found {
		return fallback
	}
	switch v := value.(type) {
	case bool:
		return v
	case string:
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

// creates a file system for the given protocol, validating the parameter map.
// An unknown protocol or a missing required parameter produces a *ConfigError.
func New(protocol string, params Params) (FileSystem, error) {
	switch strings.ToLower(protocol) {
	case "local":
		basePath, err := params.str("base_path")
		if err != nil {
			return nil, &ConfigError{Protocol: "local", Message: err.Error()}
		}
		return newLocalFileSystem(basePath)
	case "smb":
		var missing []string
		cfg := smbConfig{port: params.intDefault("port", 445)}
		for _, required := range []struct {
			key  string
			dest *string
		}{
			{"host", &cfg.host},
			{"username", &cfg.username},
			{"password", &cfg.password},
			{"share", &cfg.share},
		} {
			value, err := params.str(required.key)
			if err != nil {
				missing = append(missing, required.key)
				continue
			}
			*required.dest = value
		}
		if len(missing) > 0 {
			return nil, &ConfigError{
				Protocol: "smb",
				Message:  fmt.Sprintf("Missing required parameter: %s", strings.Join(missing, ", ")),
			}
		}
		return newSMBFileSystem(cfg), nil
	case "sftp":
		var missing []string
		cfg := sftpConfig{
			port:           params.intDefault("port", 22),
			privateKeyPath: params.strDefault("private_key_path", ""),
		}
		for _, required := range []struct {
			key  string
			dest *string
		}{
			{"host", &cfg.host},
			{"username", &cfg.username},
			{"password", &cfg.password},
		} {
			value, err := params.str(required.key)
			if err != nil {
				missing = append(missing, required.key)
				continue
			}
			*required.dest = value
		}
		if len(missing) > 0 {
			return nil, &ConfigError{
				Protocol: "sftp",
				Message:  fmt.Sprintf("Missing required parameter: %s", strings.Join(missing, ", ")),
			}
		}
		return newSFTPFileSystem(cfg), nil
	case "ftp":
		var missing []string
		cfg := ftpConfig{
			port:   params.intDefault("port", 21),
			useTLS: params.boolDefault("use_tls", true),
		}
		for _, required := range []struct {
			key  string
			dest *string
		}{
			{"host", &cfg.host},
			{"username", &cfg.username},
			{"password", &cfg.password},
		} {
			value, err := params.str(required.key)
			if err != nil {
				missing = append(missing, required.key)
				continue
			}
			*required.dest = value
		}
		if len(missing) > 0 {
			return nil, &ConfigError{
				Protocol: "ftp",
				Message:  fmt.Sprintf("Missing required parameter: %s", strings.Join(missing, ", ")),
			}
		}
		return newFTPFileSystem(cfg), nil
	default:
		return nil, &ConfigError{Message: fmt.Sprintf("Invalid connection type: %s", protocol)}
	}
}

// TestConnection creates a file system for the given protocol and parameters,
// lists its current directory, and closes it, returning the number of files
// seen. Used by the connection-test command to verify credentials before a
// folder is put into service.
func TestConnection(protocol string, params Params) (int, error) {
	fs, err := New(protocol, params)
	if err != nil {
		return 0, err
	}
	defer fs.Close()
	if !fs.DirExists(".") {
		return 0, &ConnectionError{
			Protocol: protocol,
			Host:     params.strDefault("host", params.strDefault("base_path", "")),
			Message:  "unable to list directory",
		}
	}
	return len(fs.List(".")), nil
}

// returns a hash constructor for the named algorithm
func newHasher(algorithm string) (hash.Hash, error) {
	switch strings.ToLower(algorithm) {
	case "md5":
		return md5.New(), nil
	case "sha1":
		return sha1.New(), nil
	case "sha256":
		return sha256.New(), nil
	default:
		return nil, fmt.Errorf("Unsupported hash algorithm: %s", algorithm)
	}
}
