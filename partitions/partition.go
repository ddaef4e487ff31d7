package partitions

import (
	"fmt"
)

// Partition is a block of elements of one container assembled together by a
// single worker into its own triplet list
type Partition struct {
	// Unique identifier for this partition
	ID int

	// Element membership
	Elements    []int // Container element indices in this partition, ascending
	NumElements int   // Actual number of elements
}

// PartitionLayout manages the decomposition of one element container
type PartitionLayout struct {
	// All partitions in the container
	Partitions []Partition

	// Global sizing information
	KpartMax      int // max(NumElements) across all partitions
	TotalElements int // Sum of all actual elements across partitions
	NumPartitions int

	// Element to partition mapping
	EToP []int // Length TotalElements: element k belongs to partition EToP[k]
}

// GetPartition returns the partition containing element k
func (pl *PartitionLayout) GetPartition(elementID int) int {
	if elementID < 0 || elementID >= len(pl.EToP) {
		return -1
	}
	return pl.EToP[elementID]
}

// ValidateLayout checks partition consistency: every element belongs to
// exactly one partition and KpartMax is the true maximum
func (pl *PartitionLayout) ValidateLayout() error {
	if len(pl.Partitions) != pl.NumPartitions {
		return fmt.Errorf("layout has %d partitions, NumPartitions=%d",
			len(pl.Partitions), pl.NumPartitions)
	}
	actualMax, total := 0, 0
	seen := make([]bool, pl.TotalElements)
	for _, p := range pl.Partitions {
		if p.NumElements != len(p.Elements) {
			return fmt.Errorf("partition %d: NumElements %d != len(Elements) %d",
				p.ID, p.NumElements, len(p.Elements))
		}
		if p.NumElements > actualMax {
			actualMax = p.NumElements
		}
		total += p.NumElements
		for _, k := range p.Elements {
			if k < 0 || k >= pl.TotalElements {
				return fmt.Errorf("partition %d: element %d out of range", p.ID, k)
			}
			if seen[k] {
				return fmt.Errorf("partition %d: element %d assigned twice", p.ID, k)
			}
			if pl.EToP[k] != p.ID {
				return fmt.Errorf("partition %d: element %d mapped to partition %d",
					p.ID, k, pl.EToP[k])
			}
			seen[k] = true
		}
	}
	if total != pl.TotalElements {
		return fmt.Errorf("partitions hold %d elements, expected %d", total, pl.TotalElements)
	}
	if actualMax != pl.KpartMax {
		return fmt.Errorf("computed KpartMax %d != stored KpartMax %d",
			actualMax, pl.KpartMax)
	}
	return nil
}
