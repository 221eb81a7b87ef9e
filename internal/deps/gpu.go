package deps

import (
	"context"
	"os/exec"
	"strings"
)

// GPU describes a detected accelerator.
type GPU struct {
	Name string
}

// DetectGPU probes for an NVIDIA GPU via nvidia-smi. A nil result with a nil
// error means no usable GPU was found; engines fall back to CPU decoding.
func DetectGPU(ctx context.Context) (*GPU, error) {
	if _, err := exec.LookPath("nvidia-smi"); err != nil {
		return nil, nil
	}
	out, err := exec.CommandContext(ctx, "nvidia-smi", "--query-gpu=name", "--format=csv,noheader").Output()
	if err != nil {
		return nil, nil
	}
	name := strings.TrimSpace(strings.SplitN(string(out), "\n", 2)[0])
	if name == "" {
		return nil, nil
	}
	return &GPU{Name: name}, nil
}
