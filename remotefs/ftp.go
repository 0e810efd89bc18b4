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
	"crypto/tls"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"sort"
	"time"

	"github.com/jlaffaye/ftp"
)

// This file implements a file system over FTP. When use_tls is set the
// connection is attempted with explicit TLS first and falls back to plain
// FTP if the TLS negotiation fails, in that order only.

type ftpConfig struct {
	host, username, password string
	port                     int
	useTLS                   bool
}

type ftpFileSystem struct {
	config ftpConfig
	conn   *ftp.ServerConn
}

const ftpDialTimeout = 30 * time.Second

func newFTPFileSystem(config ftpConfig) FileSystem {
	return &ftpFileSystem{config: config}
}

func (fs *ftpFileSystem) connect() error {
	if fs.conn != nil {
		return nil
	}

	address := fmt.Sprintf("%s:%d", fs.config.host, fs.config.port)
	var conn *ftp.ServerConn
	var err error
	if fs.config.useTLS {
		tlsConfig := &tls.Config{InsecureSkipVerify: true, ServerName: fs.config.host}
		conn, err = ftp.Dial(address,
			ftp.DialWithTimeout(ftpDialTimeout),
			ftp.DialWithExplicitTLS(tlsConfig))
		if err != nil {
			slog.Info(fmt.Sprintf("TLS negotiation with %s failed, falling back to plain FTP", fs.config.host))
			conn, err = ftp.Dial(address, ftp.DialWithTimeout(ftpDialTimeout))
		}
	} else {
		conn, err = ftp.Dial(address, ftp.DialWithTimeout(ftpDialTimeout))
	}
	if err != nil {
		return &ConnectionError{Protocol: "ftp", Host: fs.config.host, Message: err.Error()}
	}
	if err := conn.Login(fs.config.username, fs.config.password); err != nil {
		conn.Quit()
		return &ConnectionError{Protocol: "ftp", Host: fs.config.host, Message: err.Error()}
	}
	fs.conn = conn
	slog.Debug(fmt.Sprintf("Connected to FTP server %s", fs.config.host))
	return nil
}

func (fs *ftpFileSystem) List(dirPath string) []Entry {
	entries := make([]Entry, 0)
	if err := fs.connect(); err != nil {
		slog.Error(err.Error())
		return entries
	}
	listing, err := fs.conn.List(dirPath)
	if err != nil {
		slog.Error(fmt.Sprintf("Couldn't list FTP directory '%s': %s", dirPath, err))
		return entries
	}
	for _, item := range listing {
		if item.Type != ftp.EntryTypeFile {
			continue
		}
		entries = append(entries, Entry{
			Name:     item.Name,
			Size:     int64(item.Size),
			Modified: item.Time,
		})
	}
	return entries
}

func (fs *ftpFileSystem) FileExists(filePath string) bool {
	if err := fs.connect(); err != nil {
		slog.Error(err.Error())
		return false
	}
	_, err := fs.conn.FileSize(filePath)
	return err == nil
}

func (fs *ftpFileSystem) DirExists(dirPath string) bool {
	if err := fs.connect(); err != nil {
		slog.Error(err.Error())
		return false
	}
	current, err := fs.conn.CurrentDir()
	if err != nil {
		return false
	}
	if err := fs.conn.ChangeDir(dirPath); err != nil {
		return false
	}
	fs.conn.ChangeDir(current)
	return true
}

func (fs *ftpFileSystem) FileInfo(filePath string) (Entry, error) {
	if err := fs.connect(); err != nil {
		return Entry{}, &IOError{Path: filePath, Message: err.Error()}
	}
	size, err := fs.conn.FileSize(filePath)
	if err != nil {
		return Entry{}, &IOError{Path: filePath, Message: err.Error()}
	}
	// MDTM support varies by server, so the modification time is best-effort
	modified, _ := fs.conn.GetTime(filePath)
	return Entry{Name: path.Base(filePath), Size: size, Modified: modified}, nil
}

func (fs *ftpFileSystem) Download(remotePath, localPath string) bool {
	if err := fs.connect(); err != nil {
		slog.Error(err.Error())
		return false
	}
	response, err := fs.conn.Retr(remotePath)
	if err != nil {
		slog.Error(fmt.Sprintf("Couldn't retrieve FTP file '%s': %s", remotePath, err))
		return false
	}
	defer response.Close()
	local, err := os.Create(localPath)
	if err != nil {
		slog.Error(fmt.Sprintf("Couldn't create '%s': %s", localPath, err))
		return false
	}
	defer local.Close()
	if _, err := io.Copy(local, response); err != nil {
		slog.Error(fmt.Sprintf("Couldn't download '%s': %s", remotePath, err))
		return false
	}
	return true
}

func (fs *ftpFileSystem) Upload(localPath, remotePath string) bool {
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
	if err := fs.conn.Stor(remotePath, local); err != nil {
		slog.Error(fmt.Sprintf("Couldn't upload to '%s': %s", remotePath, err))
		return false
	}
	return true
}

func (fs *ftpFileSystem) DeleteFile(filePath string) bool {
	if err := fs.connect(); err != nil {
		slog.Error(err.Error())
		return false
	}
	if err := fs.conn.Delete(filePath); err != nil {
		slog.Error(fmt.Sprintf("Couldn't delete FTP file '%s': %s", filePath, err))
		return false
	}
	return true
}

func (fs *ftpFileSystem) MakeDir(dirPath string) bool {
	if err := fs.connect(); err != nil {
		slog.Error(err.Error())
		return false
	}
	// create any missing parents first, one level at a time
	if parent := path.Dir(dirPath); parent != "." && parent != "/" && !fs.DirExists(parent) {
		if !fs.MakeDir(parent) {
			return false
		}
	}
	if err := fs.conn.MakeDir(dirPath); err != nil {
		slog.Error(fmt.Sprintf("Couldn't create FTP directory '%s': %s", dirPath, err))
		return false
	}
	return true
}

func (fs *ftpFileSystem) DeleteDir(dirPath string) bool {
	if err := fs.connect(); err != nil {
		slog.Error(err.Error())
		return false
	}
	if err := fs.conn.RemoveDir(dirPath); err != nil {
		slog.Error(fmt.Sprintf("Couldn't delete FTP directory '%s': %s", dirPath, err))
		return false
	}
	return true
}

func (fs *ftpFileSystem) UploadDir(localDir, remoteDir string) bool {
	if err := fs.connect(); err != nil {
		slog.Error(err.Error())
		return false
	}
	fs.conn.MakeDir(remoteDir) // may already exist
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

func (fs *ftpFileSystem) DownloadDir(remoteDir, localDir string) bool {
	if err := fs.connect(); err != nil {
		slog.Error(err.Error())
		return false
	}
	if err := os.MkdirAll(localDir, 0755); err != nil {
		slog.Error(fmt.Sprintf("Couldn't create local directory '%s': %s", localDir, err))
		return false
	}
	listing, err := fs.conn.List(remoteDir)
	if err != nil {
		slog.Error(fmt.Sprintf("Couldn't list FTP directory '%s': %s", remoteDir, err))
		return false
	}
	sort.Slice(listing, func(i, j int) bool { return listing[i].Name < listing[j].Name })
	ok := true
	for _, item := range listing {
		if item.Name == "." || item.Name == ".." {
			continue
		}
		remotePath := path.Join(remoteDir, item.Name)
		localPath := path.Join(localDir, item.Name)
		if item.Type == ftp.EntryTypeFolder {
			ok = fs.DownloadDir(remotePath, localPath) && ok
		} else {
			ok = fs.Download(remotePath, localPath) && ok
		}
	}
	return ok
}

func (fs *ftpFileSystem) Hash(filePath, algorithm string) (string, error) {
	hasher, err := newHasher(algorithm)
	if err != nil {
		return "", &IOError{Path: filePath, Message: err.Error()}
	}
	if err := fs.connect(); err != nil {
		return "", &IOError{Path: filePath, Message: err.Error()}
	}
	response, err := fs.conn.Retr(filePath)
	if err != nil {
		return "", &IOError{Path: filePath, Message: err.Error()}
	}
	defer response.Close()
	if _, err := io.Copy(hasher, response); err != nil {
		return "", &IOError{Path: filePath, Message: err.Error()}
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

func (fs *ftpFileSystem) Close() error {
	if fs.conn != nil {
		err := fs.conn.Quit()
		fs.conn = nil
		return err
	}
	return nil
}
