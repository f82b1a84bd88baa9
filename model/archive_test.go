package model

import (
	"errors"
	"slices"
	"testing"
)

func maskWith(w, h int, pts ...[2]int) Mask {
	m := NewMask(w, h)
	for _, p := range pts {
		m.Set(p[0], p[1], true)
	}
	return m
}

func TestNewArchiveMismatch(t *testing.T) {
	_, err := NewArchive([]Mask{NewMask(2, 2)}, nil)
	if !errors.Is(err, ErrLabelMismatch) {
		t.Fatalf("NewArchive() error = %v, want ErrLabelMismatch", err)
	}
}

func TestArchiveNilSafe(t *testing.T) {
	var a *Archive
	if a.Len() != 0 {
		t.Errorf("Len() = %d, want 0", a.Len())
	}
	if got := a.Entries(); len(got) != 0 {
		t.Errorf("Entries() = %v, want empty", got)
	}
	if _, err := a.Entry(0); !errors.Is(err, ErrIndexRange) {
		t.Errorf("Entry(0) error = %v, want ErrIndexRange", err)
	}
}

func TestArchiveEntriesAreCopies(t *testing.T) {
	a, err := NewArchive([]Mask{NewMask(1, 1)}, []string{"cat"})
	if err != nil {
		t.Fatal(err)
	}
	entries := a.Entries()
	entries[0].Label = "dog"
	if got := a.Labels()[0]; got != "cat" {
		t.Errorf("label changed through copy: %q", got)
	}
}

func TestFillLabels(t *testing.T) {
	tests := []struct {
		name   string
		labels []string
		n      int
		want   []string
	}{
		{"exact", []string{"a", "b"}, 2, []string{"a", "b"}},
		{"pad with last", []string{"a", "b"}, 4, []string{"a", "b", "b", "b"}},
		{"none", nil, 2, []string{"x", "x"}},
		{"truncate", []string{"a", "b", "c"}, 1, []string{"a"}},
		{"zero", []string{"a"}, 0, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FillLabels(tt.labels, tt.n, "x")
			if !slices.Equal(got, tt.want) {
				t.Errorf("FillLabels() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEditBatchPrepend(t *testing.T) {
	var b EditBatch
	m1 := maskWith(2, 2, [2]int{0, 0})
	m2 := maskWith(2, 2, [2]int{1, 1})

	b.Prepend(m1, "a")
	b.Prepend(m2, "b")

	if b.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", b.Len())
	}
	if !b.Masks[0].Equal(m2) || !b.Masks[1].Equal(m1) {
		t.Error("newest mask should be at index 0")
	}
	if !slices.Equal(b.Labels, []string{"b", "a"}) {
		t.Errorf("Labels = %v, want [b a]", b.Labels)
	}
}

func TestEditBatchPrependPadsShortLabels(t *testing.T) {
	b := EditBatch{
		Masks:  []Mask{NewMask(1, 1), NewMask(1, 1)},
		Labels: []string{"a"},
	}
	b.Prepend(NewMask(1, 1), "c")
	if !slices.Equal(b.Labels, []string{"c", "a", "a"}) {
		t.Errorf("Labels = %v, want [c a a]", b.Labels)
	}
}

func TestEditBatchMoveToFront(t *testing.T) {
	m := []Mask{
		maskWith(3, 1, [2]int{0, 0}),
		maskWith(3, 1, [2]int{1, 0}),
		maskWith(3, 1, [2]int{2, 0}),
	}
	b := EditBatch{Masks: slices.Clone(m), Labels: []string{"a", "b", "c"}}

	if err := b.MoveToFront(2); err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(b.Labels, []string{"c", "a", "b"}) {
		t.Errorf("Labels = %v, want [c a b]", b.Labels)
	}
	if !b.Masks[0].Equal(m[2]) || !b.Masks[1].Equal(m[0]) || !b.Masks[2].Equal(m[1]) {
		t.Error("masks not reordered with labels")
	}

	if err := b.MoveToFront(3); !errors.Is(err, ErrIndexRange) {
		t.Errorf("MoveToFront(3) error = %v, want ErrIndexRange", err)
	}
}
