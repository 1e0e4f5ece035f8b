package site

import "testing"

func TestPlanNearEqualLargerFirst(t *testing.T) {
	blocks := Plan(10, 3)
	if len(blocks) != 3 {
		t.Fatalf("expected 3 blocks, got %d", len(blocks))
	}
	if blocks[0].Count != 4 || blocks[1].Count != 3 || blocks[2].Count != 3 {
		t.Fatalf("expected sizes 4,3,3, got %v", blocks)
	}
	if blocks[0].Start != 0 || blocks[1].Start != 4 || blocks[2].Start != 7 {
		t.Fatalf("unexpected start offsets: %v", blocks)
	}
}

func TestPlanMoreBlocksThanSites(t *testing.T) {
	blocks := Plan(3, 10)
	if len(blocks) != 3 {
		t.Fatalf("expected blocks to be capped at site count, got %d", len(blocks))
	}
	for _, b := range blocks {
		if b.Count != 1 {
			t.Fatalf("expected every block to hold exactly one site, got %+v", b)
		}
	}
}

func TestPlanBySizeLastBlockShort(t *testing.T) {
	blocks := PlanBySize(7, 3)
	if len(blocks) != 3 {
		t.Fatalf("expected 3 blocks, got %d", len(blocks))
	}
	if blocks[0].Count != 3 || blocks[1].Count != 3 || blocks[2].Count != 1 {
		t.Fatalf("unexpected sizes: %v", blocks)
	}
	if blocks[2].End() != 7 {
		t.Fatalf("expected last block to end at 7, got %d", blocks[2].End())
	}
}

func TestSliceIndexShapeFromFirstSite(t *testing.T) {
	sites := []Site{
		{Likelihoods{1, 0, 0}, Likelihoods{1, 0}},
		{Likelihoods{0, 1, 0}, Likelihoods{0, 1}},
	}
	idx, err := NewSliceIndex(sites)
	if err != nil {
		t.Fatalf("NewSliceIndex: %v", err)
	}
	if idx.Len() != 2 {
		t.Fatalf("expected length 2, got %d", idx.Len())
	}
	shape := idx.Shape()
	if len(shape) != 2 || shape[0] != 3 || shape[1] != 2 {
		t.Fatalf("unexpected shape: %v", shape)
	}
	got := idx.Slice(1, 1)
	if len(got) != 1 {
		t.Fatalf("expected one site from Slice, got %d", len(got))
	}
}
