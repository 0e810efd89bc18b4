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

package retry

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDoSucceedsFirstTry(t *testing.T) {
	assert := assert.New(t)

	calls := 0
	err := Do(func() error {
		calls++
		return nil
	}, 4, time.Millisecond, 2)
	assert.Nil(err)
	assert.Equal(1, calls)
}

func TestDoStopsAfterMaxAttempts(t *testing.T) {
	assert := assert.New(t)

	calls := 0
	err := Do(func() error {
		calls++
		return fmt.Errorf("boom %d", calls)
	}, 4, time.Millisecond, 2)
	assert.NotNil(err)
	assert.Equal("boom 4", err.Error())
	assert.Equal(4, calls)
}

func TestDoEventualSuccess(t *testing.T) {
	assert := assert.New(t)

	calls := 0
	err := Do(func() error {
		calls++
		if calls < 3 {
			return fmt.Errorf("not yet")
		}
		return nil
	}, 4, time.Millisecond, 2)
	assert.Nil(err)
	assert.Equal(3, calls)
}

func TestDoQuadraticAttemptBound(t *testing.T) {
	assert := assert.New(t)

	calls := 0
	err := DoQuadratic(func() error {
		calls++
		return fmt.Errorf("unreadable")
	}, time.Millisecond, 5)
	assert.NotNil(err)
	assert.Equal(6, calls) // 1 + 5 retries
}

func TestQuadraticDelays(t *testing.T) {
	assert := assert.New(t)

	b := &quadraticBackOff{base: time.Second}
	assert.Equal(1*time.Second, b.NextBackOff())
	assert.Equal(4*time.Second, b.NextBackOff())
	assert.Equal(9*time.Second, b.NextBackOff())
	b.Reset()
	assert.Equal(1*time.Second, b.NextBackOff())
}
