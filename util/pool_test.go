package util

import "testing"

func TestChunkPool_RoundTrip(t *testing.T) {
	p := NewChunkPool(512)
	buf := p.Get()
	if buf == nil {
		t.Fatal("Get returned nil")
	}
	if len(*buf) != 512 {
		t.Errorf("buffer size = %d, want 512", len(*buf))
	}
	(*buf)[0] = 0xFF
	p.Put(buf)

	buf2 := p.Get()
	if len(*buf2) != 512 {
		t.Errorf("second buffer size = %d, want 512", len(*buf2))
	}
	p.Put(buf2)
}

func TestChunkPool_PutForeign(t *testing.T) {
	p := NewChunkPool(64)
	// Neither should panic or poison the pool.
	p.Put(nil)
	wrong := make([]byte, 32)
	p.Put(&wrong)

	for i := 0; i < 8; i++ {
		if got := len(*p.Get()); got != 64 {
			t.Fatalf("buffer size = %d, want 64", got)
		}
	}
}

func TestChunkPoolFor_Shared(t *testing.T) {
	a := ChunkPoolFor(DefaultBufSize)
	b := ChunkPoolFor(DefaultBufSize)
	if a != b {
		t.Error("same size should share one pool")
	}
	if c := ChunkPoolFor(1024); c == a || c.Size() != 1024 {
		t.Errorf("1024-byte pool: %p size %d", c, c.Size())
	}
}
