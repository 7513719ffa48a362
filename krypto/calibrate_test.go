package krypto_test

import (
	"context"
	"testing"
	"time"

	"github.com/lockbox-sh/lockbox/krypto"
)

func smallBounds() krypto.CalibrationBounds {
	return krypto.CalibrationBounds{
		MinMemoryKB:   8,
		MaxMemoryKB:   64,
		MinIterations: 1,
		MaxIterations: 8,
		Parallelism:   1,
	}
}

func TestCalibrateStaysWithinBounds(t *testing.T) {
	b := smallBounds()

	// An unreachable target forces the search to its ceilings.
	params, err := krypto.Calibrate(context.Background(), time.Hour, b)
	if err != nil {
		t.Fatalf("Calibrate returned error: %v", err)
	}
	if params.Iterations < b.MinIterations || params.Iterations > b.MaxIterations {
		t.Fatalf("iterations %d outside [%d, %d]", params.Iterations, b.MinIterations, b.MaxIterations)
	}
	if params.MemoryKB < b.MinMemoryKB || params.MemoryKB > b.MaxMemoryKB {
		t.Fatalf("memory %d outside [%d, %d]", params.MemoryKB, b.MinMemoryKB, b.MaxMemoryKB)
	}
	if params.Parallelism != b.Parallelism {
		t.Fatalf("parallelism %d, want %d", params.Parallelism, b.Parallelism)
	}
}

func TestCalibrateTrivialTarget(t *testing.T) {
	params, err := krypto.Calibrate(context.Background(), time.Nanosecond, smallBounds())
	if err != nil {
		t.Fatalf("Calibrate returned error: %v", err)
	}
	if params.Iterations != 1 || params.MemoryKB != 8 {
		t.Fatalf("already-met target should keep minimum bounds, got %+v", params)
	}
}

func TestCalibrateHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := krypto.Calibrate(ctx, time.Hour, smallBounds()); err == nil {
		t.Fatal("expected cancellation error")
	}
}
