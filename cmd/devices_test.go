package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/cwbudde/offloadtest/internal/device"
)

func TestListDevices(t *testing.T) {
	var out bytes.Buffer
	devices := []device.Device{
		&fillDevice{api: device.Vulkan, description: "Test GPU"},
		&fillDevice{api: device.DirectX, description: warpDescription},
	}
	if err := listDevices(&out, devices); err != nil {
		t.Fatal(err)
	}

	want := "Devices:\n" +
		"- API: Vulkan\n  Description: Test GPU\n" +
		"- API: DirectX\n  Description: Microsoft Basic Render Driver\n"
	if out.String() != want {
		t.Errorf("got:\n%s\nwant:\n%s", out.String(), want)
	}
}

func TestListDevices_Empty(t *testing.T) {
	var out bytes.Buffer
	if err := listDevices(&out, nil); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "[DirectX Vulkan Metal]") {
		t.Errorf("unexpected output: %q", out.String())
	}
}
