// Package assets loads everything the renderer reads from disk at startup.
package assets

import (
	"context"
	"image"
	"image/color"
	"io/fs"
	"log/slog"

	"github.com/cockroachdb/errors"
	"golang.org/x/sync/errgroup"

	"github.com/vkngwrapper/quad/internal/config"
	"github.com/vkngwrapper/quad/internal/mesh"
	"github.com/vkngwrapper/quad/internal/pipeline"
	"github.com/vkngwrapper/quad/internal/texture"
)

type Assets struct {
	VertexShader   []uint32
	FragmentShader []uint32
	Texture        *image.RGBA
	Mesh           mesh.Mesh
}

// Load reads shaders, texture and mesh from fsys concurrently. The first
// failure cancels the remaining loads. Textures larger than maxTextureDim are
// scaled down.
func Load(ctx context.Context, fsys fs.FS, cfg *config.Config, maxTextureDim int, logger *slog.Logger) (*Assets, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	a := &Assets{}
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		var err error
		a.VertexShader, err = loadShader(ctx, fsys, cfg.VertexShader)
		return err
	})
	g.Go(func() error {
		var err error
		a.FragmentShader, err = loadShader(ctx, fsys, cfg.FragmentShader)
		return err
	})
	g.Go(func() error {
		if cfg.Texture == "" {
			a.Texture = texture.Solid(color.RGBA{R: 255, G: 255, B: 255, A: 255})
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		f, err := fsys.Open(cfg.Texture)
		if err != nil {
			return errors.Wrap(err, "open texture")
		}
		defer f.Close()
		a.Texture, err = texture.Decode(f, maxTextureDim)
		return errors.Wrapf(err, "texture %s", cfg.Texture)
	})
	g.Go(func() error {
		if cfg.Mesh == "" {
			a.Mesh = mesh.Quad()
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		f, err := fsys.Open(cfg.Mesh)
		if err != nil {
			return errors.Wrap(err, "open mesh")
		}
		defer f.Close()
		a.Mesh, err = mesh.LoadOBJ(f, nil)
		return errors.Wrapf(err, "mesh %s", cfg.Mesh)
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	b := a.Texture.Bounds()
	logger.Debug("assets loaded",
		slog.Int("vertex_words", len(a.VertexShader)),
		slog.Int("fragment_words", len(a.FragmentShader)),
		slog.Int("texture_width", b.Dx()),
		slog.Int("texture_height", b.Dy()),
		slog.Int("vertices", len(a.Mesh.Vertices)),
		slog.Int("indices", len(a.Mesh.Indices)))
	return a, nil
}

func loadShader(ctx context.Context, fsys fs.FS, path string) ([]uint32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return pipeline.LoadShader(fsys, path)
}
