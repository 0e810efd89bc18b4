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

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustEval(t *testing.T, text string, record Record) any {
	expr, err := ParseExpr(text)
	require.Nil(t, err, text)
	result, err := expr.Eval(record)
	require.Nil(t, err, text)
	return result
}

func TestExprArithmetic(t *testing.T) {
	assert := assert.New(t)

	record := Record{"price": 10.0, "qty": 3.0}
	assert.Equal(30.0, mustEval(t, "price * qty", record))
	assert.Equal(13.0, mustEval(t, "price + qty", record))
	assert.Equal(7.0, mustEval(t, "price - qty", record))
	assert.Equal(1.0, mustEval(t, "price % qty", record))
	assert.Equal(-10.0, mustEval(t, "-price", record))
	assert.Equal(16.0, mustEval(t, "(price + qty) + qty", record))
	assert.Equal(19.0, mustEval(t, "price + qty * 3", record)) // precedence
}

func TestExprComparisonAndLogic(t *testing.T) {
	assert := assert.New(t)

	record := Record{"amount": 150.0, "status": "open"}
	assert.Equal(true, mustEval(t, "amount > 100", record))
	assert.Equal(false, mustEval(t, "amount <= 100", record))
	assert.Equal(true, mustEval(t, "status == 'open'", record))
	assert.Equal(true, mustEval(t, "amount > 100 and status == 'open'", record))
	assert.Equal(true, mustEval(t, "amount > 1000 or status == 'open'", record))
	assert.Equal(false, mustEval(t, "not (status == 'open')", record))
	assert.Equal(true, mustEval(t, "amount != 100 && status != 'closed'", record))
}

func TestExprStringFunctions(t *testing.T) {
	assert := assert.New(t)

	record := Record{"name": "  widget  ", "code": "ab12"}
	assert.Equal("AB12", mustEval(t, "upper(code)", record))
	assert.Equal("widget", mustEval(t, "trim(name)", record))
	assert.Equal(4.0, mustEval(t, "len(code)", record))
	assert.Equal("ab12-x", mustEval(t, "concat(code, '-', 'x')", record))
	assert.Equal(3.0, mustEval(t, "round(2.6)", record))
	assert.Equal(2.0, mustEval(t, "min(5, 2, 3)", record))
	assert.Equal(42.0, mustEval(t, "num('42')", record))
}

func TestExprStringConcatenationWithPlus(t *testing.T) {
	assert := assert.New(t)

	record := Record{"first": "ada", "last": "lovelace"}
	assert.Equal("adalovelace", mustEval(t, "first + last", record))
}

func TestExprErrors(t *testing.T) {
	assert := assert.New(t)

	// parse-time failures
	for _, text := range []string{"", "1 +", "foo(", "open(1)", "a ~ b", "'unterminated"} {
		_, err := ParseExpr(text)
		assert.NotNil(err, text)
	}

	// eval-time failures
	expr, err := ParseExpr("missing + 1")
	assert.Nil(err)
	_, err = expr.Eval(Record{"present": 1.0})
	assert.NotNil(err)

	expr, err = ParseExpr("amount / zero")
	assert.Nil(err)
	_, err = expr.Eval(Record{"amount": 1.0, "zero": 0.0})
	assert.NotNil(err)
}

func TestExprNoGeneralInterpreter(t *testing.T) {
	assert := assert.New(t)

	// names outside the record and unknown functions must not resolve
	_, err := ParseExpr("__import__('os')")
	assert.NotNil(err)

	expr, err := ParseExpr("os_system")
	assert.Nil(err) // parses as a field reference
	_, err = expr.Eval(Record{})
	assert.NotNil(err) // but fields not in the record do not exist
}
