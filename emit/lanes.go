// Copyright 2025 The GoGPU Authors
// SPDX-License-Identifier: MIT

package emit

import (
	"os"
	"strconv"

	"golang.org/x/sys/cpu"
)

// LanesEnv overrides DefaultLanes when set to a positive integer.
const LanesEnv = "WIDESHADE_LANES"

// DefaultLanes returns the batch width matching the widest float32 vector
// unit of the host: 16 with AVX-512, 8 with AVX2, 4 with NEON, and 8
// otherwise.
func DefaultLanes() int {
	if s := os.Getenv(LanesEnv); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return hostLanes()
}

func hostLanes() int {
	switch {
	case cpu.X86.HasAVX512F:
		return 16
	case cpu.X86.HasAVX2:
		return 8
	case cpu.ARM64.HasASIMD:
		return 4
	default:
		return 8
	}
}
