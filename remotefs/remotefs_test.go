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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRejectsUnknownProtocol(t *testing.T) {
	assert := assert.New(t)

	_, err := New("gopher", Params{})
	assert.NotNil(err)
	var configErr *ConfigError
	assert.ErrorAs(err, &configErr)
	assert.Contains(err.Error(), "Invalid connection type")
}

func TestNewRequiresParameters(t *testing.T) {
	assert := assert.New(t)

	cases := []struct {
		protocol string
		params   Params
		missing  string
	}{
		{"smb", Params{"host": "nas", "username": "u", "password": "p"}, "share"},
		{"sftp", Params{"host": "box", "username": "u"}, "password"},
		{"ftp", Params{"username": "u", "password": "p"}, "host"},
		{"local", Params{}, "base_path"},
	}
	for _, c := range cases {
		_, err := New(c.protocol, c.params)
		assert.NotNil(err, c.protocol)
		var configErr *ConfigError
		assert.ErrorAs(err, &configErr)
		assert.Contains(err.Error(), c.missing)
	}
}

func TestNewAcceptsStringPorts(t *testing.T) {
	assert := assert.New(t)

	fs, err := New("sftp", Params{
		"host": "box", "username": "u", "password": "p", "port": "2222",
	})
	assert.Nil(err)
	assert.Equal(2222, fs.(*sftpFileSystem).config.port)

	fs, err = New("ftp", Params{
		"host": "box", "username": "u", "password": "p", "use_tls": "false",
	})
	assert.Nil(err)
	assert.False(fs.(*ftpFileSystem).config.useTLS)
	assert.Equal(21, fs.(*ftpFileSystem).config.port)
}

func TestLocalFileSystemRequiresExistingBase(t *testing.T) {
	assert := assert.New(t)

	_, err := New("local", Params{"base_path": "/no/such/directory/anywhere"})
	assert.NotNil(err)
	assert.Contains(err.Error(), "Base path does not exist")
}

func newTestTree(t *testing.T) (string, FileSystem) {
	dir := t.TempDir()
	require.Nil(t, os.WriteFile(filepath.Join(dir, "b.txt"), []byte("bravo"), 0644))
	require.Nil(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("alpha"), 0644))
	require.Nil(t, os.Mkdir(filepath.Join(dir, "sub"), 0755))
	require.Nil(t, os.WriteFile(filepath.Join(dir, "sub", "c.txt"), []byte("charlie"), 0644))
	fs, err := New("local", Params{"base_path": dir})
	require.Nil(t, err)
	return dir, fs
}

func TestLocalList(t *testing.T) {
	assert := assert.New(t)

	_, fs := newTestTree(t)
	entries := fs.List(".")
	assert.Len(entries, 2) // directories are omitted
	assert.Equal("a.txt", entries[0].Name)
	assert.Equal("b.txt", entries[1].Name)
	assert.Equal(int64(5), entries[0].Size)
	assert.False(entries[0].Modified.IsZero())
}

func TestLocalExistence(t *testing.T) {
	assert := assert.New(t)

	_, fs := newTestTree(t)
	assert.True(fs.FileExists("a.txt"))
	assert.False(fs.FileExists("missing.txt"))
	assert.False(fs.FileExists("sub")) // a directory is not a file
	assert.True(fs.DirExists("sub"))
	assert.False(fs.DirExists("a.txt"))
}

func TestLocalDownloadUpload(t *testing.T) {
	assert := assert.New(t)

	_, fs := newTestTree(t)
	scratch := t.TempDir()

	local := filepath.Join(scratch, "copy.txt")
	assert.True(fs.Download("a.txt", local))
	content, err := os.ReadFile(local)
	assert.Nil(err)
	assert.Equal("alpha", string(content))

	assert.True(fs.Upload(local, "nested/dir/copy.txt"))
	assert.True(fs.FileExists("nested/dir/copy.txt"))

	assert.False(fs.Download("missing.txt", filepath.Join(scratch, "nope.txt")))
}

func TestLocalDeleteAndDirs(t *testing.T) {
	assert := assert.New(t)

	_, fs := newTestTree(t)
	assert.True(fs.DeleteFile("a.txt"))
	assert.False(fs.DeleteFile("a.txt")) // already gone
	assert.True(fs.MakeDir("made/deeply"))
	assert.True(fs.DirExists("made/deeply"))
	assert.True(fs.DeleteDir("made"))
	assert.False(fs.DirExists("made"))
}

func TestLocalDirectoryRoundTrip(t *testing.T) {
	assert := assert.New(t)

	_, fs := newTestTree(t)
	scratch := t.TempDir()

	assert.True(fs.DownloadDir("sub", filepath.Join(scratch, "sub")))
	content, err := os.ReadFile(filepath.Join(scratch, "sub", "c.txt"))
	assert.Nil(err)
	assert.Equal("charlie", string(content))

	assert.True(fs.UploadDir(filepath.Join(scratch, "sub"), "sub2"))
	assert.True(fs.FileExists("sub2/c.txt"))
}

func TestLocalHash(t *testing.T) {
	assert := assert.New(t)

	_, fs := newTestTree(t)

	// md5("alpha")
	digest, err := fs.Hash("a.txt", "md5")
	assert.Nil(err)
	assert.Equal("2c1743a391305fbf367df8e4f069f9f9", digest)

	_, err = fs.Hash("missing.txt", "md5")
	assert.NotNil(err)
	var ioErr *IOError
	assert.ErrorAs(err, &ioErr)

	_, err = fs.Hash("a.txt", "crc1234")
	assert.NotNil(err)
}

func TestLocalFileInfo(t *testing.T) {
	assert := assert.New(t)

	_, fs := newTestTree(t)
	info, err := fs.FileInfo("b.txt")
	assert.Nil(err)
	assert.Equal("b.txt", info.Name)
	assert.Equal(int64(5), info.Size)

	_, err = fs.FileInfo("missing.txt")
	var ioErr *IOError
	assert.ErrorAs(err, &ioErr)
}

func TestTestConnectionLocal(t *testing.T) {
	assert := assert.New(t)

	dir, _ := newTestTree(t)
	count, err := TestConnection("local", Params{"base_path": dir})
	assert.Nil(err)
	assert.Equal(2, count)

	_, err = TestConnection("carrier-pigeon", Params{})
	assert.NotNil(err)
}
