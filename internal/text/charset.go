// Package text converts input strings into the character-index sequences the
// acoustic model consumes. Index 0 is reserved for padding; the attention
// mask depends on that reservation.
package text

import (
	"strings"
)

// charset is the ordered model alphabet. Position in this string (offset by
// one for the pad index) is the character's index.
const charset = "abcdefghijklmnopqrstuvwxyz0123456789 !'(),-.:;?"

// PadIndex is the reserved padding index. The attention module zeroes scores
// wherever the input sequence holds this value.
const PadIndex = 0

var charToIndex = buildIndex()

func buildIndex() map[rune]int64 {
	m := make(map[rune]int64, len(charset))
	for i, r := range charset {
		m[r] = int64(i + 1)
	}

	return m
}

// NumChars returns the alphabet size including the pad index, i.e. the
// embedding-table row count.
func NumChars() int64 {
	return int64(len(charset)) + 1
}

// ToSequence maps s to character indices. Input is lowercased; runes outside
// the alphabet are dropped.
func ToSequence(s string) []int64 {
	s = strings.ToLower(s)
	out := make([]int64, 0, len(s))

	for _, r := range s {
		if idx, ok := charToIndex[r]; ok {
			out = append(out, idx)
		}
	}

	return out
}

// Pad1D right-pads seq with PadIndex to length n. Sequences already at or
// beyond n are returned unchanged (copied).
func Pad1D(seq []int64, n int) []int64 {
	if len(seq) >= n {
		return append([]int64(nil), seq...)
	}

	out := make([]int64, n)
	copy(out, seq)

	return out
}

// PadBatch right-pads every sequence to the longest length and returns the
// [batch, maxLen] index matrix row by row.
func PadBatch(seqs [][]int64) [][]int64 {
	maxLen := 0
	for _, s := range seqs {
		if len(s) > maxLen {
			maxLen = len(s)
		}
	}

	out := make([][]int64, len(seqs))
	for i, s := range seqs {
		out[i] = Pad1D(s, maxLen)
	}

	return out
}
