package rootset

import "testing"

func TestRootSetAddRemoveSameGoroutine(t *testing.T) {
	rs := New(4)
	a := &fakeRoot{id: 1}

	shardIdx, offset := rs.Add(a)
	if rs.Size() != 1 {
		t.Fatalf("expected size 1, got %d", rs.Size())
	}

	rs.Remove(a, shardIdx, offset)
	if rs.Size() != 0 {
		t.Fatalf("expected size 0 after remove, got %d", rs.Size())
	}
}

func TestRootSetRemoveFallsBackAcrossShards(t *testing.T) {
	rs := New(4)
	a := &fakeRoot{id: 1}
	realShard, offset := rs.Add(a)

	// simulate the handle having migrated goroutines: removal is
	// attempted against the wrong shard first.
	wrongShard := (realShard + 1) % rs.ShardCount()
	rs.Remove(a, wrongShard, offset)

	if rs.Size() != 0 {
		t.Fatalf("expected the fallback linear scan to find and remove the root, size=%d", rs.Size())
	}
}

func TestRootSetSnapshotAcrossShards(t *testing.T) {
	rs := New(4)
	for i := 0; i < 50; i++ {
		rs.Add(&fakeRoot{id: i})
	}
	if got := len(rs.Snapshot()); got != 50 {
		t.Fatalf("expected 50 roots in the snapshot, got %d", got)
	}
}
