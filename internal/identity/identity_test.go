package identity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSpanIDStable(t *testing.T) {
	a := SpanID("src/lib.rs", 10, 20)
	b := SpanID("src/lib.rs", 10, 20)
	assert.Equal(t, a, b, "span_id must be identical across runs for the same tuple")
	assert.Len(t, a, 16, "span_id is the first 8 bytes of SHA-256, hex-encoded")
}

func TestSpanIDVariesWithInputs(t *testing.T) {
	base := SpanID("src/lib.rs", 10, 20)
	assert.NotEqual(t, base, SpanID("src/main.rs", 10, 20))
	assert.NotEqual(t, base, SpanID("src/lib.rs", 11, 20))
	assert.NotEqual(t, base, SpanID("src/lib.rs", 10, 21))
}

func TestSymbolIDStable(t *testing.T) {
	span := SpanID("src/lib.rs", 10, 20)
	a := SymbolID("rust", "crate::foo", span)
	b := SymbolID("rust", "crate::foo", span)
	assert.Equal(t, a, b)
}

func TestMatchIDRoundTripsByteIdentical(t *testing.T) {
	a := MatchID("foo", "src/main.rs", 42)
	b := MatchID("foo", "src/main.rs", 42)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, MatchID("foo", "src/main.rs", 43))
}

func TestMatchIDAndSymbolIDAreDistinctFamilies(t *testing.T) {
	// The two families differ by construction: match_id is a 64-bit
	// xxhash, symbol_id an 8-byte SHA-256 prefix. Both render as 16 hex
	// chars, which is what this test pins.
	m := MatchID("foo", "src/lib.rs", 10)
	s := SymbolID("rust", "foo", "src/lib.rs")
	assert.Len(t, m, 16)
	assert.Len(t, s, 16)
}

func TestExecutionIDFormat(t *testing.T) {
	ts := time.Unix(1700000000, 0)
	id := ExecutionIDAt(ts, 4242)
	assert.Len(t, id, 17) // 8 hex + '-' + 8 hex
	assert.Equal(t, "-", string(id[8]))
}
