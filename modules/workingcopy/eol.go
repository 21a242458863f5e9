// Copyright ©️ Strata contributors. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

// Package workingcopy implements the engine-facing edge of the on-disk
// working copy: EOL normalization, the large-file guard, the tree state
// with per-file conflict marker lengths, and the snapshot/checkout lock.
package workingcopy

import (
	"bytes"
	"fmt"
	"runtime"
)

// EOLMode controls end-of-line conversion at the working-copy boundary.
type EOLMode int

const (
	// EOLNone stores and checks out bytes as-is.
	EOLNone EOLMode = iota
	// EOLInput converts CRLF and CR to LF on snapshot, checks out as-is.
	EOLInput
	// EOLInputOutput additionally converts LF to the platform EOL on
	// checkout.
	EOLInputOutput
)

func ParseEOLMode(s string) (EOLMode, error) {
	switch s {
	case "", "none":
		return EOLNone, nil
	case "input":
		return EOLInput, nil
	case "input-output":
		return EOLInputOutput, nil
	}
	return EOLNone, fmt.Errorf("strata: unknown eol mode '%s'", s)
}

const textSniffLen = 8000

// IsText reports whether content looks like text: no NUL byte in the
// leading window. EOL conversion only ever touches text files.
func IsText(data []byte) bool {
	n := len(data)
	if n > textSniffLen {
		n = textSniffLen
	}
	return !bytes.ContainsRune(data[:n], 0)
}

// NormalizeInput converts line endings for storage. Conflict markers are
// stored with LF like everything else.
func NormalizeInput(data []byte, mode EOLMode) []byte {
	if mode == EOLNone || !IsText(data) {
		return data
	}
	out := make([]byte, 0, len(data))
	for i := 0; i < len(data); i++ {
		c := data[i]
		if c == '\r' {
			if i+1 < len(data) && data[i+1] == '\n' {
				i++
			}
			out = append(out, '\n')
			continue
		}
		out = append(out, c)
	}
	return out
}

// PlatformEOL is what EOLInputOutput checks files out with.
func PlatformEOL() string {
	if runtime.GOOS == "windows" {
		return "\r\n"
	}
	return "\n"
}

// ConvertOutput converts stored LF content for checkout. Marker lines
// convert together with the content; nothing in the working copy keeps
// bare LF when the platform EOL differs.
func ConvertOutput(data []byte, mode EOLMode, eol string) []byte {
	if mode != EOLInputOutput || eol == "\n" || !IsText(data) {
		return data
	}
	return bytes.ReplaceAll(data, []byte("\n"), []byte(eol))
}

// LargeFileGuardSkips decides whether the snapshotter skips a file:
// only files over the limit that are newly seen and not explicitly
// tracked are skipped; zero means unlimited.
func LargeFileGuardSkips(size, maxNewFileSize int64, newlySeen, explicitlyTracked bool) bool {
	if maxNewFileSize == 0 || size <= maxNewFileSize {
		return false
	}
	return newlySeen && !explicitlyTracked
}
