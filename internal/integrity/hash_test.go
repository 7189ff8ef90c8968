package integrity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalCanonical_SortedKeys(t *testing.T) {
	payload := map[string]any{
		"zeta":  "z",
		"alpha": "a",
		"mid":   int64(5),
	}

	out, err := MarshalCanonical(payload)
	require.NoError(t, err)
	assert.Equal(t, `{"alpha":"a","mid":5,"zeta":"z"}`, string(out))
}

func TestMarshalCanonical_StableAcrossMapOrder(t *testing.T) {
	// Один и тот же набор полей, собранный в разном порядке,
	// обязан давать одинаковые байты.
	a := map[string]any{"amount": "42.50", "category": "groceries", "type": "expense"}
	b := map[string]any{"type": "expense", "amount": "42.50", "category": "groceries"}

	outA, err := MarshalCanonical(a)
	require.NoError(t, err)
	outB, err := MarshalCanonical(b)
	require.NoError(t, err)

	assert.Equal(t, outA, outB)
}

func TestMarshalCanonical_NFCNormalization(t *testing.T) {
	// "é" как единый код-пойнт U+00E9 и как "e" + U+0301 (combining accent)
	// должны сериализоваться одинаково.
	composed := map[string]any{"note": "café"}
	decomposed := map[string]any{"note": "café"}

	outComposed, err := MarshalCanonical(composed)
	require.NoError(t, err)
	outDecomposed, err := MarshalCanonical(decomposed)
	require.NoError(t, err)

	assert.Equal(t, outComposed, outDecomposed)
}

func TestMarshalCanonical_NoHTMLEscaping(t *testing.T) {
	out, err := MarshalCanonical(map[string]any{"note": "a<b>&c"})
	require.NoError(t, err)
	assert.Equal(t, `{"note":"a<b>&c"}`, string(out))
}

func TestMarshalCanonical_RejectsFloats(t *testing.T) {
	_, err := MarshalCanonical(map[string]any{"amount": 42.5})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "floats are forbidden")
}

func TestMarshalCanonical_RejectsNull(t *testing.T) {
	_, err := MarshalCanonical(map[string]any{"note": nil})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "null is forbidden")
}

func TestMarshalCanonical_NestedStructures(t *testing.T) {
	payload := map[string]any{
		"clock":    map[string]uint64{"server": 2, "device-1": 1},
		"tags":     []string{"b", "a"},
		"deleted":  false,
		"sequence": int64(7),
	}

	out, err := MarshalCanonical(payload)
	require.NoError(t, err)
	assert.Equal(t,
		`{"clock":{"device-1":1,"server":2},"deleted":false,"sequence":7,"tags":["b","a"]}`,
		string(out))
}

func TestHashWithDomain_Deterministic(t *testing.T) {
	data := []byte(`{"amount":"100.00"}`)

	first := HashWithDomain(DomainRecord, data)
	second := HashWithDomain(DomainRecord, data)

	assert.Equal(t, first, second)
	assert.Len(t, first, 64, "sha256 hex must be 64 characters")
}

func TestHashWithDomain_DomainSeparation(t *testing.T) {
	data := []byte(`{"amount":"100.00"}`)

	recordHash := HashWithDomain(DomainRecord, data)
	snapshotHash := HashWithDomain(DomainSnapshot, data)

	assert.NotEqual(t, recordHash, snapshotHash,
		"Same payload in different domains must hash differently")
}

func TestHashCanonical(t *testing.T) {
	a := map[string]any{"amount": "42.50", "type": "expense"}
	b := map[string]any{"type": "expense", "amount": "42.50"}

	hashA, err := HashCanonical(DomainRecord, a)
	require.NoError(t, err)
	hashB, err := HashCanonical(DomainRecord, b)
	require.NoError(t, err)

	assert.Equal(t, hashA, hashB)

	changed, err := HashCanonical(DomainRecord, map[string]any{"amount": "42.51", "type": "expense"})
	require.NoError(t, err)
	assert.NotEqual(t, hashA, changed, "Different content must produce a different hash")
}

func TestHashCanonical_MarshalError(t *testing.T) {
	_, err := HashCanonical(DomainRecord, map[string]any{"bad": 1.5})
	require.Error(t, err)
}

func BenchmarkHashCanonical(b *testing.B) {
	payload := map[string]any{
		"type":       "expense",
		"amount":     "42.50",
		"currency":   "USD",
		"category":   "groceries",
		"account":    "cash",
		"note":       "weekly shopping",
		"occurredAt": "2025-11-03T12:00:00Z",
		"deleted":    false,
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := HashCanonical(DomainRecord, payload); err != nil {
			b.Fatal(err)
		}
	}
}
