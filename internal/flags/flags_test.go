// Copyright 2025 The etherealog Authors
// This file is part of the etherealog library.
//
// The etherealog library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The etherealog library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the etherealog library. If not, see <http://www.gnu.org/licenses/>.

package flags

import (
	"flag"
	"math/big"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPathExpansion(t *testing.T) {
	home := HomeDir()
	tests := map[string]string{
		"/home/someuser/tmp": "/home/someuser/tmp",
		"~/tmp":              home + "/tmp",
		"~thisOtherUser/b/":  "~thisOtherUser/b",
		"$DDDXXX/a/b":        "/tmp/a/b",
		"/a/b/":              "/a/b",
	}
	os.Setenv("DDDXXX", "/tmp")
	for test, expected := range tests {
		got := expandPath(test)
		if got != expected {
			t.Errorf(`test %s, got %s, expected %s\n`, test, got, expected)
		}
	}
}

func TestBigFlag(t *testing.T) {
	f := &BigFlag{Name: "evm.basefee", Value: big.NewInt(7)}
	set := flag.NewFlagSet("test", flag.ContinueOnError)
	require.NoError(t, f.Apply(set))
	assert.Equal(t, "7", f.GetDefaultText())
	assert.Equal(t, int64(7), f.Value.Int64())

	require.NoError(t, set.Parse([]string{"--evm.basefee", "0x10"}))
	assert.Equal(t, int64(16), f.Value.Int64())
	assert.Equal(t, "7", f.GetDefaultText())

	// A second application starts over from the default.
	require.NoError(t, f.Apply(flag.NewFlagSet("again", flag.ContinueOnError)))
	assert.Equal(t, int64(7), f.Value.Int64())

	set = flag.NewFlagSet("test", flag.ContinueOnError)
	set.SetOutput(nopWriter{})
	require.NoError(t, (&BigFlag{Name: "x"}).Apply(set))
	assert.Error(t, set.Parse([]string{"--x", "ten"}))
}

func TestWordWrap(t *testing.T) {
	assert.Equal(t, "aaa bbb\nccc", wordWrap("aaa bbb ccc", 8))
	assert.Equal(t, "short", wordWrap("short", 80))
}

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) { return len(p), nil }
