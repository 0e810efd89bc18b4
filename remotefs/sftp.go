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
	"path"
	"sort"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

// This file implements a file system over SFTP. When a private key path is
// configured it is offered ahead of the password in the same handshake.
// Paths use forward slashes; absolute paths pass through to the server.

type sftpConfig struct {
	host, username, password string
	port                     int
	privateKeyPath           string
}

type sftpFileSystem struct {
	config sftpConfig
	ssh    *ssh.Client
	client *sftp.Client
}

func newSFTPFileSystem(config sftpConfig) FileSystem {
	return &sftpFileSystem{config: config}
}

// establishes the connection if it hasn't been already
func (fs *sftpFileSystem) connect() error {
	if fs.client != nil {
		return nil
	}

	auth := make([]ssh.AuthMethod, 0, 2)
	if fs.config.privateKeyPath != "" {
		keyBytes, err := os.ReadFile(fs.config.privateKeyPath)
		if err != nil {
			return &ConnectionError{Protocol: "sftp", Host: fs.config.host, Message: err.Error()}
		}
		signer, err := ssh.ParsePrivateKey(keyBytes)
		if err != nil {
			return &ConnectionError{Protocol: "sftp", Host: fs.config.host, Message: err.Error()}
		}
		auth = append(auth, ssh.PublicKeys(signer))
	}
	auth = append(auth, ssh.Password(fs.config.password))

	sshConfig := &ssh.ClientConfig{
		User:            fs.config.username,
		Auth:            auth,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
	}
	address := fmt.Sprintf("%s:%d", fs.config.host, fs.config.port)
	sshClient, err := ssh.Dial("tcp", address, sshConfig)
	if err != nil {
		return &ConnectionError{Protocol: "sftp", Host: fs.config.host, Message: err.Error()}
	}
	client, err := sftp.NewClient(sshClient)
	if err != nil {
		sshClient.Close()
		return &ConnectionError{Protocol: "sftp", Host: fs.config.host, Message: err.Error()}
	}
	fs.ssh = sshClient
	fs.client = client
	slog.Debug(fmt.Sprintf("Connected to SFTP server %s", fs.config.host))
	return nil
}

func (fs *sftpFileSystem) List(dirPath string) []Entry {
	entries := make([]Entry, 0)
	if err := fs.connect(); err != nil {
		slog.Error(err.Error())
		return entries
	}
	infos, err := fs.client.ReadDir(dirPath)
	if err != nil {
		slog.Error(fmt.Sprintf("Couldn't list SFTP directory '%s': %s", dirPath, err))
		return entries
	}
	for _, info := range infos {
		if info.IsDir() {
			continue
		}
		entries = append(entries, Entry{
			Name:     info.Name(),
			Size:     info.Size(),
			Modified: info.ModTime(),
		})
	}
	return entries
}

func (fs *sftpFileSystem) FileExists(filePath string) bool {
	if err := fs.connect(); err != nil {
		slog.Error(err.Error())
		return false
	}
	info, err := fs.client.Stat(filePath)
	return err == nil && !info.IsDir()
}

func (fs *sftpFileSystem) DirExists(dirPath string) bool {
	if err := fs.connect(); err != nil {
		slog.Error(err.Error())
		return false
	}
	info, err := fs.client.Stat(dirPath)
	return err == nil && info.IsDir()
}

func (fs *sftpFileSystem) FileInfo(filePath string) (Entry, error) {
	if err := fs.connect(); err != nil {
		return Entry{}, &IOError{Path: filePath, Message: err.Error()}
	}
	info, err := fs.client.Stat(filePath)
	if err != nil {
		return Entry{}, &IOError{Path: filePath, Message: err.Error()}
	}
	return Entry{Name: info.Name(), Size: info.Size(), Modified: info.ModTime()}, nil
}

func (fs *sftpFileSystem) Download(remotePath, localPath string) bool {
	if err := fs.connect(); err != nil {
		slog.Error(err.Error())
		return false
	}
	remote, err := fs.client.Open(remotePath)
	if err != nil {
		slog.Error(fmt.Sprintf("Couldn't open SFTP file '%s': %s", remotePath, err))
		return false
	}
	defer remote.Close()
	local, err := os.Create(localPath)
	if err != nil {
		slog.Error(fmt.Sprintf("Couldn't create '%s': %s", localPath, err))
		return false
	}
	defer local.Close()
	if _, err := io.Copy(local, remote); err != nil {
		slog.Error(fmt.Sprintf("Couldn't download '%s': %s", remotePath, err))
		return false
	}
	return true
}

func (fs *sftpFileSystem) Upload(localPath, remotePath string) bool {
	if err := fs.connect(); err != nil {
		slog.Error(err.Error())
		return false
	}
	local, err := os.Open(localPath)
	if err != nil {
		slog.Error(fmt.Sprintf("Couldn't open '%s': %s", localPath, err))
		return false
	}
	defer local.Close()
	remote, err := fs.client.Create(remotePath)
	if err != nil {
		slog.Error(fmt.Sprintf("Couldn't create SFTP file '%s': %s", remotePath, err))
		return false
	}
	defer remote.Close()
	if _, err := io.Copy(remote, local); err != nil {
		slog.Error(fmt.Sprintf("Couldn't upload to '%s': %s", remotePath, err))
		return false
	}
	return true
}

func (fs *sftpFileSystem) DeleteFile(filePath string) bool {
	if err := fs.connect(); err != nil {
		slog.Error(err.Error())
		return false
	}
	if err := fs.client.Remove(filePath); err != nil {
		slog.Error(fmt.Sprintf("Couldn't delete SFTP file '%s': %s", filePath, err))
		return false
	}
	return true
}

func (fs *sftpFileSystem) MakeDir(dirPath string) bool {
	if err := fs.connect(); err != nil {
		slog.Error(err.Error())
		return false
	}
	if err := fs.client.MkdirAll(dirPath); err != nil {
		slog.Error(fmt.Sprintf("Couldn't create SFTP directory '%s': %s", dirPath, err))
		return false
	}
	return true
}

func (fs *sftpFileSystem) DeleteDir(dirPath string) bool {
	if err := fs.connect(); err != nil {
		slog.Error(err.Error())
		return false
	}
	if err := fs.client.RemoveDirectory(dirPath); err != nil {
		slog.Error(fmt.Sprintf("Couldn't delete SFTP directory '%s': %s", dirPath, err))
		return false
	}
	return true
}

func (fs *sftpFileSystem) UploadDir(localDir, remoteDir string) bool {
	if !fs.MakeDir(remoteDir) {
		return false
	}
	entries, err := os.ReadDir(localDir)
	if err != nil {
		slog.Error(fmt.Sprintf("Couldn't read local directory '%s': %s", localDir, err))
		return false
	}
	ok := true
	for _, entry := range entries {
		localPath := path.Join(localDir, entry.Name())
		remotePath := path.Join(remoteDir, entry.Name())
		if entry.IsDir() {
			ok = fs.UploadDir(localPath, remotePath) && ok
		} else {
			ok = fs.Upload(localPath, remotePath) && ok
		}
	}
	return ok
}

func (fs *sftpFileSystem) DownloadDir(remoteDir, localDir string) bool {
	if err := fs.connect(); err != nil {
		slog.Error(err.Error())
		return false
	}
	if err := os.MkdirAll(localDir, 0755); err != nil {
		slog.Error(fmt.Sprintf("Couldn't create local directory '%s': %s", localDir, err))
		return false
	}
	infos, err := fs.client.ReadDir(remoteDir)
	if err != nil {
		slog.Error(fmt.Sprintf("Couldn't list SFTP directory '%s': %s", remoteDir, err))
		return false
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name() < infos[j].Name() })
	ok := true
	for _, info := range infos {
		remotePath := path.Join(remoteDir, info.Name())
		localPath := path.Join(localDir, info.Name())
		if info.IsDir() {
			ok = fs.DownloadDir(remotePath, localPath) && ok
		} else {
			ok = fs.Download(remotePath, localPath) && ok
		}
	}
	return ok
}

func (fs *sftpFileSystem) Hash(filePath, algorithm string) (string, error) {
	hasher, err := newHasher(algorithm)
	if err != nil {
		return "", &IOError{Path: filePath, Message: err.Error()}
	}
	if err := fs.connect(); err != nil {
		return "", &IOError{Path: filePath, Message: err.Error()}
	}
	remote, err := fs.client.Open(filePath)
	if err != nil {
		return "", &IOError{Path: filePath, Message: err.Error()}
	}
	defer remote.Close()
	if _, err := io.Copy(hasher, remote); err != nil {
		return "", &IOError{Path: filePath, Message: err.Error()}
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

func (fs *sftpFileSystem) Close() error {
	var err error
	if fs.client != nil {
		err = fs.client.Close()
		fs.client = nil
	}
	if fs.ssh != nil {
		if sshErr := fs.ssh.Close(); err == nil {
			err = sshErr
		}
		fs.ssh = nil
	}
	return err
}
