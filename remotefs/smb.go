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
	"net"
	"os"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/hirochachacha/go-smb2"
)

// This file implements a file system over SMB. Paths are forward-slash
// relative within the mounted share; the share name is part of the
// connection parameters.

type smbConfig struct {
	host, username, password, share string
	port                            int
}

type smbFileSystem struct {
	config  smbConfig
	netConn net.Conn
	session *smb2.Session
	mount   *smb2.Share
}

const smbDialTimeout = 30 * time.Second

func newSMBFileSystem(config smbConfig) FileSystem {
	return &smbFileSystem{config: config}
}

// translates a forward-slash path into the share's separator
func smbPath(p string) string {
	if p == "." || p == "/" {
		return ""
	}
	return strings.ReplaceAll(strings.TrimPrefix(p, "/"), "/", `\`)
}

func (fs *smbFileSystem) connect() error {
	if fs.mount != nil {
		return nil
	}

	address := fmt.Sprintf("%s:%d", fs.config.host, fs.config.port)
	netConn, err := net.DialTimeout("tcp", address, smbDialTimeout)
	if err != nil {
		return &ConnectionError{Protocol: "smb", Host: fs.config.host, Message: err.Error()}
	}
	dialer := &smb2.Dialer{
		Initiator: &smb2.NTLMInitiator{
			User:     fs.config.username,
			Password: fs.config.password,
		},
	}
	session, err := dialer.Dial(netConn)
	if err != nil {
		netConn.Close()
		return &ConnectionError{Protocol: "smb", Host: fs.config.host, Message: err.Error()}
	}
	mount, err := session.Mount(fs.config.share)
	if err != nil {
		session.Logoff()
		netConn.Close()
		return &ConnectionError{Protocol: "smb", Host: fs.config.host, Message: err.Error()}
	}
	fs.netConn = netConn
	fs.session = session
	fs.mount = mount
	slog.Debug(fmt.Sprintf("Connected to SMB share %s on %s", fs.config.share, fs.config.host))
	return nil
}

func (fs *smbFileSystem) List(dirPath string) []Entry {
	entries := make([]Entry, 0)
	if err := fs.connect(); err != nil {
		slog.Error(err.Error())
		return entries
	}
	infos, err := fs.mount.ReadDir(smbPath(dirPath))
	if err != nil {
		slog.Error(fmt.Sprintf("Couldn't list SMB directory '%s': %s", dirPath, err))
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

func (fs *smbFileSystem) FileExists(filePath string) bool {
	if err := fs.connect(); err != nil {
		slog.Error(err.Error())
		return false
	}
	info, err := fs.mount.Stat(smbPath(filePath))
	return err == nil && !info.IsDir()
}

func (fs *smbFileSystem) DirExists(dirPath string) bool {
	if err := fs.connect(); err != nil {
		slog.Error(err.Error())
		return false
	}
	if dirPath == "." || dirPath == "" || dirPath == "/" {
		// the share root always exists once mounted
		return true
	}
	info, err := fs.mount.Stat(smbPath(dirPath))
	return err == nil && info.IsDir()
}

func (fs *smbFileSystem) FileInfo(filePath string) (Entry, error) {
	if err := fs.connect(); err != nil {
		return Entry{}, &IOError{Path: filePath, Message: err.Error()}
	}
	info, err := fs.mount.Stat(smbPath(filePath))
	if err != nil {
		return Entry{}, &IOError{Path: filePath, Message: err.Error()}
	}
	return Entry{Name: info.Name(), Size: info.Size(), Modified: info.ModTime()}, nil
}

func (fs *smbFileSystem) Download(remotePath, localPath string) bool {
	if err := fs.connect(); err != nil {
		slog.Error(err.Error())
		return false
	}
	remote, err := fs.mount.Open(smbPath(remotePath))
	if err != nil {
		slog.Error(fmt.Sprintf("Couldn't open SMB file '%s': %s", remotePath, err))
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

func (fs *smbFileSystem) Upload(localPath, remotePath string) bool {
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
	remote, err := fs.mount.Create(smbPath(remotePath))
	if err != nil {
		slog.Error(fmt.Sprintf("Couldn't create SMB file '%s': %s", remotePath, err))
		return false
	}
	defer remote.Close()
	if _, err := io.Copy(remote, local); err != nil {
		slog.Error(fmt.Sprintf("Couldn't upload to '%s': %s", remotePath, err))
		return false
	}
	return true
}

func (fs *smbFileSystem) DeleteFile(filePath string) bool {
	if err := fs.connect(); err != nil {
		slog.Error(err.Error())
		return false
	}
	if err := fs.mount.Remove(smbPath(filePath)); err != nil {
		slog.Error(fmt.Sprintf("Couldn't delete SMB file '%s': %s", filePath, err))
		return false
	}
	return true
}

func (fs *smbFileSystem) MakeDir(dirPath string) bool {
	if err := fs.connect(); err != nil {
		slog.Error(err.Error())
		return false
	}
	if err := fs.mount.MkdirAll(smbPath(dirPath), 0755); err != nil {
		slog.Error(fmt.Sprintf("Couldn't create SMB directory '%s': %s", dirPath, err))
		return false
	}
	return true
}

func (fs *smbFileSystem) DeleteDir(dirPath string) bool {
	if err := fs.connect(); err != nil {
		slog.Error(err.Error())
		return false
	}
	if err := fs.mount.Remove(smbPath(dirPath)); err != nil {
		slog.Error(fmt.Sprintf("Couldn't delete SMB directory '%s': %s", dirPath, err))
		return false
	}
	return true
}

func (fs *smbFileSystem) UploadDir(localDir, remoteDir string) bool {
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

func (fs *smbFileSystem) DownloadDir(remoteDir, localDir string) bool {
	if err := fs.connect(); err != nil {
		slog.Error(err.Error())
		return false
	}
	if err := os.MkdirAll(localDir, 0755); err != nil {
		slog.Error(fmt.Sprintf("Couldn't create local directory '%s': %s", localDir, err))
		return false
	}
	infos, err := fs.mount.ReadDir(smbPath(remoteDir))
	if err != nil {
		slog.Error(fmt.Sprintf("Couldn't list SMB directory '%s': %s", remoteDir, err))
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

func (fs *smbFileSystem) Hash(filePath, algorithm string) (string, error) {
	hasher, err := newHasher(algorithm)
	if err != nil {
		return "", &IOError{Path: filePath, Message: err.Error()}
	}
	if err := fs.connect(); err != nil {
		return "", &IOError{Path: filePath, Message: err.Error()}
	}
	remote, err := fs.mount.Open(smbPath(filePath))
	if err != nil {
		return "", &IOError{Path: filePath, Message: err.Error()}
	}
	defer remote.Close()
	if _, err := io.Copy(hasher, remote); err != nil {
		return "", &IOError{Path: filePath, Message: err.Error()}
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

func (fs *smbFileSystem) Close() error {
	var err error
	if fs.mount != nil {
		err = fs.mount.Umount()
		fs.mount = nil
	}
	if fs.session != nil {
		if logoffErr := fs.session.Logoff(); err == nil {
			err = logoffErr
		}
		fs.session = nil
	}
	if fs.netConn != nil {
		if closeErr := fs.netConn.Close(); err == nil {
			err = closeErr
		}
		fs.netConn = nil
	}
	return err
}
