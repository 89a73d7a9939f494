// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package uds

import (
	"math/rand"
	"os"
	"strconv"
	"testing"
	"time"
)

// getFuzzRounds returns the number of fuzz rounds from FUZZ_ROUNDS env var, default 1000
func getFuzzRounds() int {
	if envRounds := os.Getenv("FUZZ_ROUNDS"); envRounds != "" {
		if rounds, err := strconv.Atoi(envRounds); err == nil && rounds > 0 {
			return rounds
		}
	}
	return 1000
}

// newFuzzRng creates a random number generator and logs the seed for reproducibility
func newFuzzRng(t *testing.T) *rand.Rand {
	seed := time.Now().UnixNano()
	if envSeed := os.Getenv("FUZZ_SEED"); envSeed != "" {
		if s, err := strconv.ParseInt(envSeed, 10, 64); err == nil {
			seed = s
		}
	}
	t.Logf("Seed: %d (reproduce with FUZZ_SEED=%d)", seed, seed)
	return rand.New(rand.NewSource(seed))
}

func randomBytes(rng *rand.Rand, n int) []byte {
	b := make([]byte, n)
	rng.Read(b)
	return b
}

func TestFuzz_DecodeRoundTrip(t *testing.T) {
	rng := newFuzzRng(t)
	rounds := getFuzzRounds()

	for i := 0; i < rounds; i++ {
		typ := ScalarTypes[rng.Intn(len(ScalarTypes))]
		data := randomBytes(rng, typ.Width())

		v, ok := Decode(data, typ)
		if !ok {
			t.Fatalf("round %d: Decode(% X, %v) failed", i, data, typ)
		}
		if v.Type() != typ {
			t.Fatalf("round %d: variant %v, want %v", i, v.Type(), typ)
		}
		again, _ := Decode(encodeBE(v), typ)
		if again != v {
			t.Fatalf("round %d: re-encode mismatch for %v: %v != %v", i, typ, again, v)
		}
	}
}

func TestFuzz_InterpretRandomFrames(t *testing.T) {
	rng := newFuzzRng(t)
	rounds := getFuzzRounds()

	for i := 0; i < rounds; i++ {
		resp := randomBytes(rng, rng.Intn(16))
		// Bias toward well-formed headers
		if len(resp) > 0 && rng.Intn(2) == 0 {
			resp[0] = SIDReadDataByIdentifierResponse
		}
		typ := ScalarTypes[rng.Intn(len(ScalarTypes))]
		out := Interpret(resp, uint16(rng.Intn(0x10000)), typ, InterpretOptions{StrictIdentifier: rng.Intn(2) == 0})

		if out.Kind == Value && out.Value.Type() != typ {
			t.Fatalf("round %d: value variant %v, want %v (resp % X)", i, out.Value.Type(), typ, resp)
		}
		if out.Kind == Value && len(resp) < ReadDataByIdentifierHeaderLength+typ.Width() {
			t.Fatalf("round %d: value decoded from short frame % X", i, resp)
		}
	}
}
