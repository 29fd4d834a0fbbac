package gpu

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"
)

func supportOnly(families ...int) func(int) (bool, error) {
	return func(idx int) (bool, error) {
		for _, f := range families {
			if f == idx {
				return true, nil
			}
		}
		return false, nil
	}
}

func TestFindQueueFamilies(t *testing.T) {
	graphics := core1_0.QueueGraphics | core1_0.QueueCompute | core1_0.QueueTransfer
	transfer := core1_0.QueueTransfer

	tests := []struct {
		name     string
		families []QueueFamily
		present  func(int) (bool, error)
		want     [3]int
		valid    bool
	}{
		{
			name:     "single family does everything",
			families: []QueueFamily{{Flags: graphics, QueueCount: 1}},
			present:  supportOnly(0),
			want:     [3]int{0, 0, 0},
			valid:    true,
		},
		{
			name:     "dedicated transfer family",
			families: []QueueFamily{{Flags: graphics, QueueCount: 16}, {Flags: transfer, QueueCount: 2}},
			present:  supportOnly(0),
			want:     [3]int{0, 0, 1},
			valid:    true,
		},
		{
			name:     "present on a separate family",
			families: []QueueFamily{{Flags: graphics, QueueCount: 1}, {Flags: core1_0.QueueCompute, QueueCount: 1}},
			present:  supportOnly(1),
			want:     [3]int{0, 1, 0},
			valid:    true,
		},
		{
			name:     "present prefers the graphics family",
			families: []QueueFamily{{Flags: transfer, QueueCount: 1}, {Flags: graphics, QueueCount: 1}},
			present:  supportOnly(0, 1),
			want:     [3]int{1, 1, 0},
			valid:    true,
		},
		{
			name:     "empty families are skipped",
			families: []QueueFamily{{Flags: graphics, QueueCount: 0}, {Flags: graphics, QueueCount: 1}},
			present:  supportOnly(0, 1),
			want:     [3]int{1, 1, 1},
			valid:    true,
		},
		{
			name:     "no present support",
			families: []QueueFamily{{Flags: graphics, QueueCount: 1}},
			present:  supportOnly(),
			valid:    false,
		},
		{
			name:     "no graphics",
			families: []QueueFamily{{Flags: transfer, QueueCount: 1}},
			present:  supportOnly(0),
			valid:    false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			indices, err := FindQueueFamilies(tt.families, tt.present)
			if err != nil {
				t.Fatalf("FindQueueFamilies: %v", err)
			}
			err = indices.Validate()
			if !tt.valid {
				if !errors.Is(err, ErrNoQueueFamily) {
					t.Fatalf("expected ErrNoQueueFamily, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Validate: %v", err)
			}
			got := [3]int{*indices.Graphics, *indices.Present, *indices.Transfer}
			if got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFindQueueFamiliesPropagatesQueryError(t *testing.T) {
	boom := errors.New("boom")
	_, err := FindQueueFamilies([]QueueFamily{{Flags: core1_0.QueueGraphics, QueueCount: 1}}, func(int) (bool, error) {
		return false, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped query error, got %v", err)
	}
}

func TestQueueFamilyIndicesUnique(t *testing.T) {
	g, p, tr := 0, 2, 0
	indices := QueueFamilyIndices{Graphics: &g, Present: &p, Transfer: &tr}
	unique := indices.Unique()
	if len(unique) != 2 || unique[0] != 0 || unique[1] != 2 {
		t.Errorf("Unique() = %v", unique)
	}
	if !indices.Concurrent() {
		t.Error("graphics and present differ, expected concurrent")
	}

	p = 0
	if indices.Concurrent() {
		t.Error("aliased families must not be concurrent")
	}
}
