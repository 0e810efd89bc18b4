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

package pipeline

// This file implements the control node handlers.

// handleDelay suspends the executor for the configured duration, then
// passes its input through unchanged. The sleep is a genuine suspension;
// cancellation takes effect only after it ends.
func (e *Executor) handleDelay(node *Node, ctx *Context) error {
	config := node.Config.(DelayConfig)
	e.sleep(config.Duration)
	ctx.SetOutput(node.Id, e.upstreamValue(node, ctx))
	return nil
}

// handleCache passes its input through. Within a single run the node output
// map already memoizes every node's result, so the cache node exists for
// pipeline shape compatibility; its ttl config is accepted and unused.
func (e *Executor) handleCache(node *Node, ctx *Context) error {
	ctx.SetOutput(node.Id, e.upstreamValue(node, ctx))
	return nil
}
