package secret

import "testing"

func TestFromCopiesSource(t *testing.T) {
	src := []byte{1, 2, 3}
	b := From(src)
	src[0] = 9
	if b.Bytes()[0] != 1 {
		t.Error("buffer shares storage with its source")
	}
	if b.Len() != 3 {
		t.Errorf("Len = %d, want 3", b.Len())
	}
}

func TestWipeZeroizesBeforeRelease(t *testing.T) {
	b := From([]byte{1, 2, 3})
	alias := b.Bytes()

	b.Wipe()

	for i, v := range alias {
		if v != 0 {
			t.Fatalf("byte %d = %d after wipe", i, v)
		}
	}
	if b.Len() != 0 {
		t.Errorf("Len = %d after wipe, want 0", b.Len())
	}

	// Wiping twice or wiping nil must be safe
	b.Wipe()
	var nilBuf *Buffer
	nilBuf.Wipe()
}

func TestEqual(t *testing.T) {
	b := From([]byte("1234"))
	if !b.Equal([]byte("1234")) {
		t.Error("Equal = false for identical content")
	}
	if b.Equal([]byte("1235")) || b.Equal([]byte("123")) {
		t.Error("Equal = true for different content")
	}

	var nilBuf *Buffer
	if !nilBuf.Equal(nil) {
		t.Error("nil buffer must equal empty content")
	}
	if nilBuf.Equal([]byte{1}) {
		t.Error("nil buffer must not equal non-empty content")
	}
}

func TestZero(t *testing.T) {
	buf := []byte{1, 2, 3}
	Zero(buf)
	for _, v := range buf {
		if v != 0 {
			t.Fatal("Zero left data behind")
		}
	}
}
