package krypto

import (
	"context"
	"time"

	"golang.org/x/crypto/argon2"
)

// Calibration targets for the two derivation profiles. The slow profile
// gates the password-derived master key; the fast profile only gates the
// wrap/unwrap of an already-proven key, so it can afford to be cheaper.
const (
	SlowTarget = 400 * time.Millisecond
	FastTarget = 120 * time.Millisecond
)

// CalibrationBounds limit the doubling search so it terminates on any
// hardware.
type CalibrationBounds struct {
	MinMemoryKB   uint32
	MaxMemoryKB   uint32
	MinIterations uint32
	MaxIterations uint32
	Parallelism   uint8
}

// DefaultSlowBounds returns search bounds for the master-key profile.
func DefaultSlowBounds() CalibrationBounds {
	return CalibrationBounds{
		MinMemoryKB:   32 * 1024,
		MaxMemoryKB:   256 * 1024,
		MinIterations: 1,
		MaxIterations: 1 << 10,
		Parallelism:   1,
	}
}

// DefaultFastBounds returns search bounds for the fast-unlock profile.
func DefaultFastBounds() CalibrationBounds {
	return CalibrationBounds{
		MinMemoryKB:   8 * 1024,
		MaxMemoryKB:   64 * 1024,
		MinIterations: 1,
		MaxIterations: 1 << 10,
		Parallelism:   1,
	}
}

// memoryEscalationAfter is the iteration count beyond which slow progress
// doubles memory instead of burning further iterations.
const memoryEscalationAfter = 8

// Calibrate benchmarks argon2id on the current device and returns cost
// parameters whose single derivation meets or exceeds target. It performs
// real CPU- and memory-bound work for up to a few multiples of target, so it
// must not run on an interactive path. The search starts at minimum bounds
// and doubles iterations while below target; once iterations have grown past
// a threshold with less than 2x progress per step, memory is doubled instead,
// up to the configured cap. The iteration ceiling guarantees termination.
func Calibrate(ctx context.Context, target time.Duration, b CalibrationBounds) (Params, error) {
	p := Params{
		MemoryKB:    b.MinMemoryKB,
		Iterations:  b.MinIterations,
		Parallelism: b.Parallelism,
	}
	if p.Parallelism == 0 {
		p.Parallelism = 1
	}
	if p.MemoryKB == 0 {
		p.MemoryKB = 8 * 1024
	}
	if p.Iterations == 0 {
		p.Iterations = 1
	}

	throwawayPassword := []byte("calibration-probe")
	throwawaySalt := make([]byte, SaltLength)

	elapsed := timeDerivation(throwawayPassword, throwawaySalt, p)
	for elapsed < target && p.Iterations < b.MaxIterations {
		if err := ctx.Err(); err != nil {
			return Params{}, err
		}

		prev := elapsed
		p.Iterations *= 2
		elapsed = timeDerivation(throwawayPassword, throwawaySalt, p)

		// Doubling iterations past the threshold without doubling the cost
		// means iterations alone have stalled; grow memory instead.
		if elapsed < target && p.Iterations > memoryEscalationAfter &&
			elapsed < prev*2 && p.MemoryKB*2 <= b.MaxMemoryKB {
			p.MemoryKB *= 2
			elapsed = timeDerivation(throwawayPassword, throwawaySalt, p)
		}
	}

	return p, nil
}

func timeDerivation(password, salt []byte, p Params) time.Duration {
	start := time.Now()
	out := argon2.IDKey(password, salt, p.Iterations, p.MemoryKB, p.Parallelism, KeyLength)
	Zeroize(out)
	return time.Since(start)
}
