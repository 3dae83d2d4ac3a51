package main

import (
	"fmt"
	"io"

	"github.com/cwbudde/offloadtest/internal/device"
	"github.com/spf13/cobra"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List the GPU devices available to exec",
	RunE: func(cmd *cobra.Command, args []string) error {
		registry := device.Default()
		if err := registry.Initialize(cmd.Context()); err != nil {
			return err
		}
		return listDevices(cmd.OutOrStdout(), registry.Devices())
	},
}

func init() {
	rootCmd.AddCommand(devicesCmd)
}

func listDevices(out io.Writer, devices []device.Device) error {
	if len(devices) == 0 {
		apis := device.SupportedAPIs()
		_, err := fmt.Fprintf(out, "No GPU backends in this build (supported APIs: %v)\n", apis)
		return err
	}

	fmt.Fprintln(out, "Devices:")
	for _, d := range devices {
		fmt.Fprintf(out, "- API: %s\n", d.API())
		if _, err := fmt.Fprintf(out, "  Description: %s\n", d.Description()); err != nil {
			return err
		}
	}
	return nil
}
