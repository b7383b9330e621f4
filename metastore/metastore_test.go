package metastore

import (
	"context"
	"errors"
	"testing"

	"github.com/danthegoodman1/pqframe/footer"
	"github.com/danthegoodman1/pqframe/part"
	"github.com/danthegoodman1/pqframe/utils"
)

func TestMemoryMetaStore(t *testing.T) {
	ctx := context.Background()
	ms := NewMemoryMetaStore()

	a := part.NewFragment("ds", "p=b")
	b := part.NewFragment("ds", "p=a")
	if err := ms.InsertFragments(ctx, []part.Fragment{a, b}); err != nil {
		t.Fatal(err)
	}
	if err := ms.InsertFragments(ctx, []part.Fragment{part.NewFragment("ds", "p=c"), a}); !errors.Is(err, ErrDuplicateFragment) {
		t.Fatalf("expected duplicate, got %v", err)
	}

	frags, err := ms.ListFragments(ctx, "ds")
	if err != nil {
		t.Fatal(err)
	}
	if len(frags) != 2 || frags[0].ID != b.ID || frags[1].ID != a.ID {
		t.Fatalf("unexpected order %+v", frags)
	}

	if err := ms.SetAlive(ctx, "ds", []string{b.ID}, false); err != nil {
		t.Fatal(err)
	}
	frags, _ = ms.ListFragments(ctx, "ds")
	if len(frags) != 1 || frags[0].ID != a.ID {
		t.Fatalf("dead fragment listed %+v", frags)
	}
}

func TestMergeFragmentsEmpty(t *testing.T) {
	_, _, err := MergeFragments(context.Background(), NewMemoryMetaStore(), "none")
	if !errors.Is(err, utils.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestMergeFragmentsSkipsEmptyFooters(t *testing.T) {
	ctx := context.Background()
	ms := NewMemoryMetaStore()
	f := part.NewFragment("ds", "")
	f.Footer = footer.Blob{}
	if err := ms.InsertFragments(ctx, []part.Fragment{f}); err != nil {
		t.Fatal(err)
	}
	merged, frags, err := MergeFragments(ctx, ms, "ds")
	if err != nil {
		t.Fatal(err)
	}
	if len(merged) != 0 || len(frags) != 1 {
		t.Fatalf("unexpected merge %d %d", len(merged), len(frags))
	}
}
