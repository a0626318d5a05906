package rootset

import "testing"

type fakeRoot struct {
	id     int
	offset uint64
}

func (f *fakeRoot) SetRootOffset(offset uint64) { f.offset = offset }

func TestShardAddAssignsIncreasingOffsets(t *testing.T) {
	s := NewShard()
	a := &fakeRoot{id: 1}
	b := &fakeRoot{id: 2}

	offA := s.Add(a)
	offB := s.Add(b)

	if offA == 0 || offB == 0 || offA == offB {
		t.Fatalf("expected distinct nonzero offsets, got %d and %d", offA, offB)
	}
	if a.offset != offA || b.offset != offB {
		t.Fatal("Add must record the assigned offset on the root")
	}
	if s.Size() != 2 {
		t.Fatalf("expected size 2, got %d", s.Size())
	}
}

func TestShardRemoveSwapsWithTail(t *testing.T) {
	s := NewShard()
	a := &fakeRoot{id: 1}
	b := &fakeRoot{id: 2}
	c := &fakeRoot{id: 3}
	offA := s.Add(a)
	s.Add(b)
	s.Add(c)

	s.Remove(offA) // removes the head slot; c (current tail) should move into offA's slot

	if s.Size() != 2 {
		t.Fatalf("expected size 2 after removal, got %d", s.Size())
	}
	if c.offset != offA {
		t.Fatalf("expected tail element's offset fixed up to %d, got %d", offA, c.offset)
	}
}

func TestShardSpansMultipleBlocks(t *testing.T) {
	s := NewShard()
	roots := make([]*fakeRoot, blockSize+10)
	for i := range roots {
		roots[i] = &fakeRoot{id: i}
		s.Add(roots[i])
	}
	if s.Size() != uint64(len(roots)) {
		t.Fatalf("expected %d roots, got %d", len(roots), s.Size())
	}
	if len(s.blocks) != 2 {
		t.Fatalf("expected allocation to span 2 blocks, got %d", len(s.blocks))
	}
}

func TestShardSnapshotOmitsRemoved(t *testing.T) {
	s := NewShard()
	a := &fakeRoot{id: 1}
	offA := s.Add(a)
	s.Add(&fakeRoot{id: 2})
	s.Remove(offA)

	snap := s.Snapshot()
	for _, r := range snap {
		if r == Root(a) {
			t.Fatal("removed root must not appear in snapshot")
		}
	}
	if len(snap) != 1 {
		t.Fatalf("expected 1 surviving root, got %d", len(snap))
	}
}
