package assets

import (
	"bytes"
	"context"
	"encoding/binary"
	"image"
	"image/color"
	"image/png"
	"io/fs"
	"testing"
	"testing/fstest"

	"github.com/cockroachdb/errors"

	"github.com/vkngwrapper/quad/internal/config"
	"github.com/vkngwrapper/quad/internal/mesh"
	"github.com/vkngwrapper/quad/internal/pipeline"
)

func spirv() []byte {
	b := binary.LittleEndian.AppendUint32(nil, 0x07230203)
	return binary.LittleEndian.AppendUint32(b, 0x00010000)
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	img.SetRGBA(0, 0, color.RGBA{R: 200, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func testFS(t *testing.T) fstest.MapFS {
	return fstest.MapFS{
		"shaders/vert.spv": {Data: spirv()},
		"shaders/frag.spv": {Data: spirv()},
		"textures/a.png":   {Data: pngBytes(t, 8, 4)},
		"meshes/tri.obj":   {Data: []byte("o tri\nv 0 0 0\nv 1 0 0\nv 0 1 0\nf 1 2 3\n")},
	}
}

func TestLoadDefaults(t *testing.T) {
	a, err := Load(context.Background(), testFS(t), config.Default(), 0, nil)
	if err != nil {
		t.Fatalf("Load: %+v", err)
	}
	if len(a.VertexShader) != 2 || len(a.FragmentShader) != 2 {
		t.Errorf("shaders = %d, %d words", len(a.VertexShader), len(a.FragmentShader))
	}
	if b := a.Texture.Bounds(); b.Dx() != 1 || b.Dy() != 1 {
		t.Errorf("default texture = %v", b)
	}
	if len(a.Mesh.Indices) != len(mesh.Quad().Indices) {
		t.Errorf("default mesh is not the quad: %+v", a.Mesh)
	}
}

func TestLoadConfigured(t *testing.T) {
	cfg := config.Default()
	cfg.Texture = "textures/a.png"
	cfg.Mesh = "meshes/tri.obj"

	a, err := Load(context.Background(), testFS(t), cfg, 4, nil)
	if err != nil {
		t.Fatalf("Load: %+v", err)
	}
	if b := a.Texture.Bounds(); b.Dx() != 4 || b.Dy() != 2 {
		t.Errorf("texture = %v, want 4x2 after scaling", b)
	}
	if len(a.Mesh.Vertices) != 3 || len(a.Mesh.Indices) != 3 {
		t.Errorf("mesh = %+v", a.Mesh)
	}
}

func TestLoadFailures(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*config.Config, fstest.MapFS)
		want   error
	}{
		{"missing vertex shader", func(c *config.Config, _ fstest.MapFS) { c.VertexShader = "nope.spv" }, fs.ErrNotExist},
		{"misaligned fragment shader", func(_ *config.Config, m fstest.MapFS) {
			m["shaders/frag.spv"] = &fstest.MapFile{Data: []byte{3, 2, 0x23}}
		}, pipeline.ErrMisalignedShader},
		{"missing texture", func(c *config.Config, _ fstest.MapFS) { c.Texture = "textures/b.png" }, fs.ErrNotExist},
		{"missing mesh", func(c *config.Config, _ fstest.MapFS) { c.Mesh = "meshes/none.obj" }, fs.ErrNotExist},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			fsys := testFS(t)
			tt.modify(cfg, fsys)
			if _, err := Load(context.Background(), fsys, cfg, 0, nil); !errors.Is(err, tt.want) {
				t.Fatalf("Load() = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestLoadCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	cfg := config.Default()
	cfg.Texture = "textures/a.png"
	if _, err := Load(ctx, testFS(t), cfg, 0, nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("Load() = %v, want context.Canceled", err)
	}
}
