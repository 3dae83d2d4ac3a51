package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/cwbudde/offloadtest/internal/device"
	"github.com/cwbudde/offloadtest/internal/image"
	"github.com/cwbudde/offloadtest/internal/pipeline"
	"github.com/spf13/cobra"
)

// warpDescription is the adapter name of the DirectX software rasterizer
const warpDescription = "Microsoft Basic Render Driver"

type execOptions struct {
	api      string
	output   string
	resource string
	quiet    bool
	warp     bool
	timeout  time.Duration
}

var execOpts execOptions

var execCmd = &cobra.Command{
	Use:   "exec <pipeline.yaml> <program>",
	Short: "Execute a compiled GPU program against a pipeline description",
	Long: `Loads a pipeline description and a compiled program, picks the GPU API
from --api or the program header (DXBC, SPIR-V, MTLB), and runs it on the
first matching device. Afterwards the pipeline with its result data is
written as YAML, or the resource named by -r is written as an image.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		registry := device.Default()
		if err := registry.Initialize(cmd.Context()); err != nil {
			return err
		}
		return execProgram(cmd.Context(), args[0], args[1], execOpts, cmd.OutOrStdout(), registry)
	},
}

func init() {
	execCmd.Flags().StringVar(&execOpts.api, "api", "", "GPU API to use: dx, vk, mtl (default: detect)")
	execCmd.Flags().StringVarP(&execOpts.output, "output", "o", "-", "Output file (- for stdout)")
	execCmd.Flags().StringVarP(&execOpts.resource, "resource", "r", "", "Resource name to write as an image")
	execCmd.Flags().BoolVar(&execOpts.quiet, "quiet", false, "Suppress printing the pipeline")
	execCmd.Flags().BoolVar(&execOpts.warp, "warp", false, "Use the DirectX WARP software device")
	execCmd.Flags().DurationVar(&execOpts.timeout, "timeout", 0, "Abort execution after this duration (0 = no limit)")

	rootCmd.AddCommand(execCmd)
}

func execProgram(ctx context.Context, pipelinePath, programPath string, opts execOptions, out io.Writer, registry *device.Registry) error {
	if ctx == nil {
		ctx = context.Background()
	}
	program, err := os.ReadFile(programPath)
	if err != nil {
		return fmt.Errorf("failed to read program: %w", err)
	}

	api, err := device.ParseAPI(opts.api)
	if err != nil {
		return err
	}
	if api == device.Unknown {
		if api, err = device.DetectAPI(program); err != nil {
			return err
		}
		slog.Info("Detected GPU API", "api", api.String())
	}
	if opts.warp && api != device.DirectX {
		return fmt.Errorf("WARP requires the DirectX API, got %s", api)
	}

	p, err := pipeline.Load(pipelinePath)
	if err != nil {
		return err
	}

	dev, err := selectDevice(registry, api, opts.warp)
	if err != nil {
		return err
	}

	if opts.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.timeout)
		defer cancel()
	}

	start := time.Now()
	if err := dev.ExecuteProgram(ctx, program, p); err != nil {
		return fmt.Errorf("%s: %w", dev.Description(), err)
	}
	slog.Info("Program executed",
		"device", dev.Description(),
		"dispatch", p.DispatchSize,
		"descriptors", p.DescriptorCount(),
		"elapsed", time.Since(start),
	)

	if opts.quiet {
		return nil
	}
	if opts.resource != "" {
		return writeResourceImage(p, opts.resource, opts.output)
	}
	return writePipeline(p, opts.output, out)
}

// selectDevice opens the first device for api. WARP is only reachable
// through its adapter name, so it is searched for explicitly.
func selectDevice(registry *device.Registry, api device.API, warp bool) (device.Device, error) {
	if !warp {
		return registry.Open(api)
	}
	for _, d := range registry.Devices() {
		if d.API() == api && d.Description() == warpDescription {
			return d, nil
		}
	}
	return nil, fmt.Errorf("%w: no WARP device available", device.ErrBackendUnavailable)
}

func writeResourceImage(p *pipeline.Pipeline, name, output string) error {
	if output == "-" {
		return fmt.Errorf("writing resource %q as an image requires -o <file>", name)
	}
	res, err := p.FindResource(name)
	if err != nil {
		return err
	}
	ref, err := image.FromResource(res)
	if err != nil {
		return fmt.Errorf("resource %q: %w", name, err)
	}
	return image.Write(ref, output)
}

func writePipeline(p *pipeline.Pipeline, output string, stdout io.Writer) error {
	data, err := p.Marshal()
	if err != nil {
		return err
	}
	if output == "-" {
		_, err = stdout.Write(data)
		return err
	}
	if err := os.WriteFile(output, data, 0644); err != nil {
		return fmt.Errorf("failed to write pipeline: %w", err)
	}
	return nil
}
