// Command quad opens a window and draws a textured quad with Vulkan.
package main

//go:generate glslc ../../shaders/shader.vert -o ../../shaders/vert.spv
//go:generate glslc ../../shaders/shader.frag -o ../../shaders/frag.spv

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"

	"github.com/cockroachdb/errors"

	"github.com/vkngwrapper/quad/internal/app"
	"github.com/vkngwrapper/quad/internal/config"
)

func main() {
	// SDL and the window surface must stay on the main thread.
	runtime.LockOSThread()

	cfg, err := config.Parse(os.Args[1:], os.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "quad: %v\n", err)
		os.Exit(2)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	err = app.New(cfg, logger).Run(ctx)
	if err != nil {
		stop()
		fmt.Fprintf(os.Stderr, "%+v\n", err)
		os.Exit(1)
	}
}
