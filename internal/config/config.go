// Package config holds the settings every component reads. A Config is built
// once at startup and passed by pointer; nothing here is global.
package config

import (
	"flag"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
)

type Config struct {
	// Root is the project root. Shader, texture, mesh and cache paths are
	// relative to it.
	Root string

	VertexShader   string
	FragmentShader string
	// Texture is optional. Without one the fragment shader samples a single
	// white texel.
	Texture string
	// Mesh is an optional OBJ file replacing the built-in quad.
	Mesh string
	// PipelineCache is an optional file the pipeline cache is loaded from and
	// saved to.
	PipelineCache string

	Title  string
	Width  int
	Height int

	Validation     bool
	FramesInFlight int
	ClearColor     [4]float32
	// FrameLimit caps frames per second. Zero renders as fast as presentation allows.
	FrameLimit int
	// Spin pushes a rotating model matrix to the vertex stage.
	Spin bool

	LogLevel      slog.Level
	StatsInterval time.Duration
}

func Default() *Config {
	return &Config{
		Root:           ".",
		VertexShader:   "shaders/vert.spv",
		FragmentShader: "shaders/frag.spv",
		Title:          "Vulkan",
		Width:          800,
		Height:         600,
		FramesInFlight: 2,
		ClearColor:     [4]float32{0, 0, 0, 1},
		LogLevel:       slog.LevelInfo,
		StatsInterval:  5 * time.Second,
	}
}

// Parse applies command line flags on top of Default. The output writer gets
// usage text on -h.
func Parse(args []string, output io.Writer) (*Config, error) {
	cfg := Default()

	flags := flag.NewFlagSet("quad", flag.ContinueOnError)
	flags.SetOutput(output)

	flags.StringVar(&cfg.Root, "root", cfg.Root, "project root all asset paths resolve against")
	flags.StringVar(&cfg.VertexShader, "vert", cfg.VertexShader, "vertex shader SPIR-V blob")
	flags.StringVar(&cfg.FragmentShader, "frag", cfg.FragmentShader, "fragment shader SPIR-V blob")
	flags.StringVar(&cfg.Texture, "texture", cfg.Texture, "optional texture image (png, jpeg, gif, bmp, tiff, webp)")
	flags.StringVar(&cfg.Mesh, "mesh", cfg.Mesh, "optional OBJ mesh, replaces the built-in quad")
	flags.StringVar(&cfg.PipelineCache, "pipeline-cache", cfg.PipelineCache, "optional pipeline cache file")
	flags.StringVar(&cfg.Title, "title", cfg.Title, "window title")
	flags.IntVar(&cfg.Width, "width", cfg.Width, "initial window width")
	flags.IntVar(&cfg.Height, "height", cfg.Height, "initial window height")
	flags.BoolVar(&cfg.Validation, "validation", cfg.Validation, "enable VK_LAYER_KHRONOS_validation and the debug messenger")
	flags.IntVar(&cfg.FramesInFlight, "frames", cfg.FramesInFlight, "frames in flight")
	flags.IntVar(&cfg.FrameLimit, "fps", cfg.FrameLimit, "frame rate cap, 0 for none")
	flags.BoolVar(&cfg.Spin, "spin", cfg.Spin, "rotate the mesh with a push constant")
	flags.DurationVar(&cfg.StatsInterval, "stats", cfg.StatsInterval, "frame statistics interval, 0 disables")
	flags.Func("clear", "clear color as r,g,b,a", func(s string) error {
		c, err := parseColor(s)
		if err != nil {
			return err
		}
		cfg.ClearColor = c
		return nil
	})
	flags.Func("log-level", "debug, info, warn or error", func(s string) error {
		return cfg.LogLevel.UnmarshalText([]byte(s))
	})

	if err := flags.Parse(args); err != nil {
		return nil, err
	}
	if flags.NArg() > 0 {
		return nil, errors.Newf("unrecognized argument %q", flags.Arg(0))
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch {
	case c.VertexShader == "" || c.FragmentShader == "":
		return errors.New("config: both shader paths are required")
	case c.Width <= 0 || c.Height <= 0:
		return errors.Newf("config: window size %dx%d", c.Width, c.Height)
	case c.FramesInFlight < 1:
		return errors.Newf("config: frames in flight must be at least 1, got %d", c.FramesInFlight)
	case c.FrameLimit < 0:
		return errors.Newf("config: negative frame limit %d", c.FrameLimit)
	}
	return nil
}

// FS returns the project root as a file system. Asset paths are slash
// separated and relative to it.
func (c *Config) FS() fs.FS {
	return os.DirFS(c.Root)
}

// Path resolves a root-relative path for code that needs a real file name.
func (c *Config) Path(rel string) string {
	if filepath.IsAbs(rel) {
		return rel
	}
	return filepath.Join(c.Root, filepath.FromSlash(rel))
}

// FrameInterval is the minimum time between frames, zero when uncapped.
func (c *Config) FrameInterval() time.Duration {
	if c.FrameLimit <= 0 {
		return 0
	}
	return time.Second / time.Duration(c.FrameLimit)
}

func parseColor(s string) ([4]float32, error) {
	var c [4]float32
	parts := strings.Split(s, ",")
	if len(parts) != 3 && len(parts) != 4 {
		return c, errors.Newf("want 3 or 4 components, got %d", len(parts))
	}
	c[3] = 1
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil {
			return c, err
		}
		if v < 0 || v > 1 {
			return c, errors.Newf("component %d out of range: %g", i, v)
		}
		c[i] = float32(v)
	}
	return c, nil
}
