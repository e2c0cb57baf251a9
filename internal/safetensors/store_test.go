package safetensors

import (
	"path/filepath"
	"strings"
	"testing"
)

func encodeFixture(t *testing.T) []byte {
	t.Helper()

	data, err := EncodeTensors([]Tensor{
		{Name: "model_state.proj.weight", Shape: []int64{2, 2}, Data: []float32{1, 2, 3, 4}},
		{Name: "model_state.proj.bias", Shape: []int64{2}, Data: []float32{0.5, -0.5}},
		{Name: "optimizer_state.step", Shape: []int64{1}, Data: []float32{42}},
	})
	if err != nil {
		t.Fatalf("EncodeTensors: %v", err)
	}

	return data
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	store, err := OpenStoreFromBytes(encodeFixture(t), StoreOptions{})
	if err != nil {
		t.Fatalf("OpenStoreFromBytes: %v", err)
	}
	defer store.Close()

	if got := len(store.Names()); got != 3 {
		t.Fatalf("store has %d tensors, want 3", got)
	}

	w, err := store.TensorWithShape("model_state.proj.weight", []int64{2, 2})
	if err != nil {
		t.Fatalf("Tensor: %v", err)
	}

	want := []float32{1, 2, 3, 4}
	for i, v := range w.Data {
		if v != want[i] {
			t.Fatalf("decoded data = %v, want %v", w.Data, want)
		}
	}
}

func TestKeyMapperSelectsSection(t *testing.T) {
	store, err := OpenStoreFromBytes(encodeFixture(t), StoreOptions{
		KeyMapper: func(name string) (string, bool) {
			rest, ok := strings.CutPrefix(name, "model_state.")
			return rest, ok
		},
	})
	if err != nil {
		t.Fatalf("OpenStoreFromBytes: %v", err)
	}
	defer store.Close()

	if store.Has("optimizer_state.step") || store.Has("step") {
		t.Fatal("key mapper kept a tensor outside the selected section")
	}

	if !store.Has("proj.weight") || !store.Has("proj.bias") {
		t.Fatalf("key mapper missed section tensors: %v", store.Names())
	}
}

func TestKeyMapperMayDropEverything(t *testing.T) {
	store, err := OpenStoreFromBytes(encodeFixture(t), StoreOptions{
		KeyMapper: func(string) (string, bool) { return "", false },
	})
	if err != nil {
		t.Fatalf("OpenStoreFromBytes: %v", err)
	}
	defer store.Close()

	if got := len(store.Names()); got != 0 {
		t.Fatalf("store has %d tensors, want 0", got)
	}
}

func TestMetadataRoundTrip(t *testing.T) {
	data, err := EncodeTensorsWithMetadata(
		[]Tensor{{Name: "w", Shape: []int64{1}, Data: []float32{1}}},
		map[string]string{"reduction": "2"},
	)
	if err != nil {
		t.Fatalf("EncodeTensorsWithMetadata: %v", err)
	}

	store, err := OpenStoreFromBytes(data, StoreOptions{})
	if err != nil {
		t.Fatalf("OpenStoreFromBytes: %v", err)
	}
	defer store.Close()

	md := store.Metadata()
	if md["reduction"] != "2" {
		t.Fatalf("metadata = %v, want reduction=2", md)
	}

	if !store.Has("w") {
		t.Fatal("tensor lost alongside metadata")
	}
}

func TestEncodeRejectsReservedName(t *testing.T) {
	_, err := EncodeTensors([]Tensor{{Name: "__metadata__", Shape: []int64{1}, Data: []float32{1}}})
	if err == nil {
		t.Fatal("reserved tensor name did not fail")
	}
}

func TestTensorWithShapeMismatch(t *testing.T) {
	store, err := OpenStoreFromBytes(encodeFixture(t), StoreOptions{})
	if err != nil {
		t.Fatalf("OpenStoreFromBytes: %v", err)
	}
	defer store.Close()

	if _, err := store.TensorWithShape("model_state.proj.bias", []int64{3}); err == nil {
		t.Fatal("shape mismatch did not fail")
	}
}

func TestEncodeRejectsBadInput(t *testing.T) {
	if _, err := EncodeTensors(nil); err == nil {
		t.Fatal("encoding zero tensors did not fail")
	}

	_, err := EncodeTensors([]Tensor{{Name: "x", Shape: []int64{3}, Data: []float32{1}}})
	if err == nil {
		t.Fatal("encoding element count mismatch did not fail")
	}

	_, err = EncodeTensors([]Tensor{
		{Name: "x", Shape: []int64{1}, Data: []float32{1}},
		{Name: "x", Shape: []int64{1}, Data: []float32{2}},
	})
	if err == nil {
		t.Fatal("duplicate tensor name did not fail")
	}
}

func TestOpenStoreRejectsTruncatedFile(t *testing.T) {
	data := encodeFixture(t)

	if _, err := OpenStoreFromBytes(data[:len(data)-4], StoreOptions{}); err == nil {
		t.Fatal("truncated payload did not fail")
	}

	if _, err := OpenStoreFromBytes(data[:4], StoreOptions{}); err == nil {
		t.Fatal("short header did not fail")
	}
}

func TestWriteFileAndOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ckpt.safetensors")

	err := WriteFile(path, []Tensor{{Name: "w", Shape: []int64{2}, Data: []float32{1, 2}}})
	if err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	store, err := OpenStore(path, StoreOptions{})
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	defer store.Close()

	if !store.Has("w") {
		t.Fatalf("store names = %v, want [w]", store.Names())
	}
}
