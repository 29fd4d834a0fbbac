package mesh

import (
	"io"
	"math"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/g3n/engine/loader/obj"
	"github.com/go-gl/mathgl/mgl32"
)

var ErrTooManyVertices = errors.New("mesh needs more vertices than 16-bit indices can address")

// LoadOBJ decodes a Wavefront OBJ model. Faces are triangulated as fans and
// positions are projected onto the XY plane; every vertex is white. mtl may
// be nil.
func LoadOBJ(objFile, mtlFile io.Reader) (Mesh, error) {
	if mtlFile == nil {
		mtlFile = strings.NewReader("")
	}
	decoder, err := obj.DecodeReader(objFile, mtlFile)
	if err != nil {
		return Mesh{}, errors.Wrap(err, "decode obj")
	}

	var m Mesh
	uniqueVertices := make(map[int]uint16)
	addVertex := func(vertInd int) error {
		if index, ok := uniqueVertices[vertInd]; ok {
			m.Indices = append(m.Indices, index)
			return nil
		}
		if vertInd < 0 || vertInd*3+2 >= len(decoder.Vertices) {
			return errors.Newf("face refers to missing vertex %d", vertInd)
		}
		if len(m.Vertices) > math.MaxUint16 {
			return errors.Wrapf(ErrTooManyVertices, "more than %d", math.MaxUint16+1)
		}

		index := uint16(len(m.Vertices))
		m.Vertices = append(m.Vertices, Vertex{
			Pos:   mgl32.Vec2{decoder.Vertices[vertInd*3], decoder.Vertices[vertInd*3+1]},
			Color: mgl32.Vec3{1, 1, 1},
		})
		uniqueVertices[vertInd] = index
		m.Indices = append(m.Indices, index)
		return nil
	}

	for _, decodedObj := range decoder.Objects {
		for _, face := range decodedObj.Faces {
			for i := 2; i < len(face.Vertices); i++ {
				for _, corner := range []int{0, i - 1, i} {
					if err := addVertex(face.Vertices[corner]); err != nil {
						return Mesh{}, err
					}
				}
			}
		}
	}

	if err := m.Validate(); err != nil {
		return Mesh{}, errors.Wrap(err, "obj")
	}
	return m, nil
}
