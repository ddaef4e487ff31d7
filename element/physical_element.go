package element

import "fmt"

// Container is a homogeneous, contiguous collection of elements of one topology.
// It owns no node data, only indices into the mesh node set.
type Container struct {
	Type     ElementGeometry
	Elements []Element
}

// NewContainer builds a container from connectivity rows and per-element tags
func NewContainer(g ElementGeometry, connectivity [][]int, physical, geometrical []int) (*Container, error) {
	props, err := GetProperties(g)
	if err != nil {
		return nil, err
	}
	K := len(connectivity)
	if len(physical) != K || len(geometrical) != K {
		return nil, fmt.Errorf("%s container: %d elements but %d physical and %d geometrical tags",
			g, K, len(physical), len(geometrical))
	}

	c := &Container{
		Type:     g,
		Elements: make([]Element, K),
	}
	for k, row := range connectivity {
		if len(row) != props.Np {
			return nil, fmt.Errorf("%s element %d: expected %d nodes, got %d", g, k, props.Np, len(row))
		}
		ids := make([]int, props.Np)
		copy(ids, row)
		c.Elements[k] = NewElement(ids, physical[k], geometrical[k])
	}
	return c, nil
}

// Len returns the number of elements in the container
func (c *Container) Len() int { return len(c.Elements) }

// At returns a pointer to element k, valid until the container is resized
func (c *Container) At(k int) *Element { return &c.Elements[k] }

// SetGroup applies the monotonic override to element k
func (c *Container) SetGroup(kind GroupKind, k, value int) bool {
	return c.Elements[k].SetGroup(kind, value)
}

// Connectivity returns a copy of the element-to-node table
func (c *Container) Connectivity() [][]int {
	EToV := make([][]int, len(c.Elements))
	for k := range c.Elements {
		EToV[k] = append([]int(nil), c.Elements[k].NodeIDs...)
	}
	return EToV
}
