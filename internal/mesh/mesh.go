// Package mesh holds the vertex layout the pipeline consumes and the meshes
// drawn with it.
package mesh

import (
	"bytes"
	"encoding/binary"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
)

// Vertex is a 2D position and an RGB color, tightly packed.
type Vertex struct {
	Pos   mgl32.Vec2
	Color mgl32.Vec3
}

// Mesh is an indexed triangle list with 16-bit indices.
type Mesh struct {
	Vertices []Vertex
	Indices  []uint16
}

func Quad() Mesh {
	return Mesh{
		Vertices: []Vertex{
			{Pos: mgl32.Vec2{-0.5, -0.5}, Color: mgl32.Vec3{1, 0, 0}},
			{Pos: mgl32.Vec2{0.5, -0.5}, Color: mgl32.Vec3{0, 1, 0}},
			{Pos: mgl32.Vec2{0.5, 0.5}, Color: mgl32.Vec3{0, 0, 1}},
			{Pos: mgl32.Vec2{-0.5, 0.5}, Color: mgl32.Vec3{1, 1, 1}},
		},
		Indices: []uint16{0, 1, 2, 2, 3, 0},
	}
}

func Triangle() Mesh {
	return Mesh{
		Vertices: []Vertex{
			{Pos: mgl32.Vec2{0, -0.5}, Color: mgl32.Vec3{1, 0, 0}},
			{Pos: mgl32.Vec2{0.5, 0.5}, Color: mgl32.Vec3{0, 1, 0}},
			{Pos: mgl32.Vec2{-0.5, 0.5}, Color: mgl32.Vec3{0, 0, 1}},
		},
		Indices: []uint16{0, 1, 2},
	}
}

func Bindings() []core1_0.VertexInputBindingDescription {
	v := Vertex{}
	return []core1_0.VertexInputBindingDescription{
		{
			Binding:   0,
			Stride:    int(unsafe.Sizeof(v)),
			InputRate: core1_0.VertexInputRateVertex,
		},
	}
}

func Attributes() []core1_0.VertexInputAttributeDescription {
	v := Vertex{}
	return []core1_0.VertexInputAttributeDescription{
		{
			Binding:  0,
			Location: 0,
			Format:   core1_0.FormatR32G32SignedFloat,
			Offset:   int(unsafe.Offsetof(v.Pos)),
		},
		{
			Binding:  0,
			Location: 1,
			Format:   core1_0.FormatR32G32B32SignedFloat,
			Offset:   int(unsafe.Offsetof(v.Color)),
		},
	}
}

func (m Mesh) Validate() error {
	if len(m.Vertices) == 0 {
		return errors.New("mesh has no vertices")
	}
	if len(m.Indices) == 0 || len(m.Indices)%3 != 0 {
		return errors.Newf("mesh has %d indices, want a non-empty multiple of 3", len(m.Indices))
	}
	for i, idx := range m.Indices {
		if int(idx) >= len(m.Vertices) {
			return errors.Newf("index %d refers to vertex %d of %d", i, idx, len(m.Vertices))
		}
	}
	return nil
}

// VertexBytes returns the vertices in the layout described by Bindings and
// Attributes.
func (m Mesh) VertexBytes() ([]byte, error) {
	return encode(m.Vertices)
}

func (m Mesh) IndexBytes() ([]byte, error) {
	return encode(m.Indices)
}

func encode(data any) ([]byte, error) {
	buf := &bytes.Buffer{}
	if err := binary.Write(buf, common.ByteOrder, data); err != nil {
		return nil, errors.Wrap(err, "encode mesh data")
	}
	return buf.Bytes(), nil
}
