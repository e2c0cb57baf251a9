package text

import (
	"slices"
	"testing"
)

func TestToSequenceMapsAndLowercases(t *testing.T) {
	got := ToSequence("Ab c")
	want := []int64{1, 2, 37, 3}

	if !slices.Equal(got, want) {
		t.Fatalf("ToSequence = %v, want %v", got, want)
	}
}

func TestToSequenceDropsUnknownRunes(t *testing.T) {
	got := ToSequence("a#b\tc")
	want := []int64{1, 2, 3}

	if !slices.Equal(got, want) {
		t.Fatalf("ToSequence = %v, want %v", got, want)
	}
}

func TestToSequenceNeverEmitsPadIndex(t *testing.T) {
	for _, idx := range ToSequence("the quick brown fox, 42!") {
		if idx == PadIndex {
			t.Fatal("mapped a real character to the pad index")
		}
	}
}

func TestPad1D(t *testing.T) {
	got := Pad1D([]int64{5, 6}, 4)
	want := []int64{5, 6, 0, 0}

	if !slices.Equal(got, want) {
		t.Fatalf("Pad1D = %v, want %v", got, want)
	}

	if got := Pad1D([]int64{1, 2, 3}, 2); !slices.Equal(got, []int64{1, 2, 3}) {
		t.Fatalf("Pad1D over-length = %v", got)
	}
}

func TestPadBatch(t *testing.T) {
	got := PadBatch([][]int64{{1}, {2, 3, 4}, {5, 6}})

	if len(got) != 3 {
		t.Fatalf("PadBatch rows = %d", len(got))
	}

	for i, row := range got {
		if len(row) != 3 {
			t.Fatalf("row %d has length %d, want 3", i, len(row))
		}
	}

	if !slices.Equal(got[0], []int64{1, 0, 0}) {
		t.Fatalf("row 0 = %v", got[0])
	}
}

func TestNumCharsCoversAllIndices(t *testing.T) {
	seen := map[int64]bool{}
	for _, r := range charset {
		seen[charToIndex[r]] = true
	}

	if int64(len(seen))+1 != NumChars() {
		t.Fatalf("index collision: %d distinct indices for %d chars", len(seen), NumChars()-1)
	}

	for idx := range seen {
		if idx <= 0 || idx >= NumChars() {
			t.Fatalf("index %d out of embedding range [1, %d)", idx, NumChars())
		}
	}
}
