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
	"crypto/md5"
	"encoding/hex"
	"io"
	"os"
	"time"

	"github.com/batchline/batchline/retry"
)

// Checksum retry profile: a file being written by another process can fail to
// open or read; we back off quadratically (1s, 4s, 9s, ...) before giving up.
var hashRetryBase = 1 * time.Second

const hashMaxRetries = 5

// HashFile computes the lower-hex MD5 of the file's content, retrying
// transient read failures. MD5 is a content fingerprint against a trusted
// ledger, not a security measure.
func HashFile(path string) (string, error) {
	var checksum string
	err := retry.DoQuadratic(func() error {
		file, err := os.Open(path)
		if err != nil {
			return err
		}
		defer file.Close()
		hasher := md5.New()
		if _, err := io.Copy(hasher, file); err != nil {
			return err
		}
		checksum = hex.EncodeToString(hasher.Sum(nil))
		return nil
	}, hashRetryBase, hashMaxRetries)
	if err != nil {
		return "", err
	}
	return checksum, nil
}

// ShouldSend consults the per-folder match structures and decides whether a
// file with the given checksum is due for delivery: it is sent when it has
// never been seen, or when its ledger entry is flagged for resend.
func ShouldSend(checksum string, names map[string]string, resend map[string]bool) (bool, bool) {
	_, matchFound := names[checksum]
	shouldSend := !matchFound || resend[checksum]
	return matchFound, shouldSend
}
