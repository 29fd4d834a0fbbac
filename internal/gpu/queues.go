package gpu

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"
)

// QueueFamily is the part of the queue family properties used for selection.
type QueueFamily struct {
	Flags      core1_0.QueueFlags
	QueueCount int
}

type QueueFamilyIndices struct {
	Graphics *int
	Present  *int
	Transfer *int
}

func (i QueueFamilyIndices) IsComplete() bool {
	return i.Graphics != nil && i.Present != nil && i.Transfer != nil
}

// Validate fails unless every family resolved to some index. Device creation
// must not proceed otherwise.
func (i QueueFamilyIndices) Validate() error {
	var missing []string
	if i.Graphics == nil {
		missing = append(missing, "graphics")
	}
	if i.Present == nil {
		missing = append(missing, "present")
	}
	if i.Transfer == nil {
		missing = append(missing, "transfer")
	}
	if len(missing) > 0 {
		return errors.Wrapf(ErrNoQueueFamily, "missing %v", missing)
	}
	return nil
}

// Unique returns the distinct family indices in graphics, present, transfer order.
func (i QueueFamilyIndices) Unique() []int {
	var unique []int
	for _, idx := range []*int{i.Graphics, i.Present, i.Transfer} {
		if idx == nil {
			continue
		}
		seen := false
		for _, u := range unique {
			if u == *idx {
				seen = true
				break
			}
		}
		if !seen {
			unique = append(unique, *idx)
		}
	}
	return unique
}

// Concurrent reports whether graphics and present live in different families,
// in which case presentable images are shared concurrently between them.
func (i QueueFamilyIndices) Concurrent() bool {
	return i.Graphics != nil && i.Present != nil && *i.Graphics != *i.Present
}

// FindQueueFamilies resolves each family independently. The present family
// prefers the graphics family when it can present; transfer prefers a family
// without graphics and falls back to the graphics family, which always
// supports transfers.
func FindQueueFamilies(families []QueueFamily, presentSupport func(family int) (bool, error)) (QueueFamilyIndices, error) {
	var indices QueueFamilyIndices

	for idx, family := range families {
		if family.QueueCount == 0 {
			continue
		}

		if indices.Graphics == nil && family.Flags&core1_0.QueueGraphics != 0 {
			indices.Graphics = intPtr(idx)
		}

		if indices.Transfer == nil && family.Flags&core1_0.QueueTransfer != 0 && family.Flags&core1_0.QueueGraphics == 0 {
			indices.Transfer = intPtr(idx)
		}

		supported, err := presentSupport(idx)
		if err != nil {
			return indices, errors.Wrapf(err, "query present support for family %d", idx)
		}
		if supported && (indices.Present == nil || (indices.Graphics != nil && idx == *indices.Graphics)) {
			indices.Present = intPtr(idx)
		}
	}

	if indices.Transfer == nil && indices.Graphics != nil {
		indices.Transfer = intPtr(*indices.Graphics)
	}

	return indices, nil
}

func intPtr(i int) *int {
	return &i
}
