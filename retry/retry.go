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

// This package provides explicit retry helpers for operations that touch
// flaky media (remote file systems, files being written by another process).
// Retry policies live at the call site rather than hiding behind decorators.
package retry

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Do invokes op until it succeeds or maxAttempts invocations have been made.
// The delay before attempt N+1 is initial * multiplier^(N-1). The last error
// is returned when all attempts fail.
func Do(op func() error, maxAttempts uint64, initial time.Duration, multiplier float64) error {
	if maxAttempts == 0 {
		maxAttempts = 1
	}
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = initial
	policy.Multiplier = multiplier
	policy.RandomizationFactor = 0 // deterministic delays
	policy.MaxInterval = 1 * time.Hour
	policy.MaxElapsedTime = 0 // bounded by attempt count, not wall clock
	policy.Reset()
	return backoff.Retry(op, backoff.WithMaxRetries(policy, maxAttempts-1))
}

// DoQuadratic invokes op until it succeeds or maxRetries retries have been
// spent. The delay after the Nth failed attempt is base * N * N, matching the
// checksum retry profile (1s, 4s, 9s, ...).
func DoQuadratic(op func() error, base time.Duration, maxRetries uint64) error {
	policy := &quadraticBackOff{base: base}
	return backoff.Retry(op, backoff.WithMaxRetries(policy, maxRetries))
}

// quadraticBackOff implements backoff.BackOff with delay base * attempt^2.
type quadraticBackOff struct {
	base    time.Duration
	attempt uint64
}

func (b *quadraticBackOff) NextBackOff() time.Duration {
	b.attempt++
	return b.base * time.Duration(b.attempt*b.attempt)
}

func (b *quadraticBackOff) Reset() {
	b.attempt = 0
}
