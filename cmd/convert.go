package main

import (
	"fmt"
	"log/slog"

	"github.com/cwbudde/offloadtest/internal/image"
	"github.com/spf13/cobra"
)

var (
	convertOut      string
	convertDepth    uint8
	convertChannels uint8
	convertFloat    bool
)

var convertCmd = &cobra.Command{
	Use:   "convert <input>",
	Short: "Translate an image to another pixel format",
	Long: `Decodes a PNG or TIFF image, translates it to the requested depth,
channel count and number kind, and writes it in the container matching the
output extension. Float and 32/64-bit results are stored as 16-bit.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return convertImage(args[0], convertOut, convertDepth, convertChannels, convertFloat)
	},
}

func init() {
	convertCmd.Flags().StringVarP(&convertOut, "output", "o", "", "Output image path (.png, .tif, .tiff)")
	convertCmd.Flags().Uint8Var(&convertDepth, "depth", 1, "Bytes per channel: 1, 2, 4, 8")
	convertCmd.Flags().Uint8Var(&convertChannels, "channels", 4, "Channels: 3 or 4")
	convertCmd.Flags().BoolVar(&convertFloat, "float", false, "Store channels as floating point")

	convertCmd.MarkFlagRequired("output")
	rootCmd.AddCommand(convertCmd)
}

func convertImage(in, out string, depth, channels uint8, float bool) error {
	src, err := image.Load(in)
	if err != nil {
		return err
	}

	dst, err := image.Translate(src.Ref, depth, channels, float)
	if err != nil {
		return err
	}

	if err := image.Write(dst.Ref, out); err != nil {
		return err
	}

	slog.Info("Converted image",
		"input", in,
		"output", out,
		"format", dst.Format().String(),
		"container", string(image.ContainerFor(out)),
	)
	fmt.Printf("Wrote %s (%dx%d %s)\n", out, dst.Width(), dst.Height(), dst.Format())
	return nil
}
