package ir

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFingerprintDeterminism(t *testing.T) {
	record := IRObject{
		"name":   IRString("CSS Grid"),
		"status": IRObject{"baseline": IRString("high"), "baseline_low_date": IRString("2020-01-15")},
		"usage":  IRFloat(0.83),
	}

	fp1, err := Fingerprint(record)
	require.NoError(t, err)

	fp2, err := Fingerprint(record)
	require.NoError(t, err)

	assert.Equal(t, fp1, fp2, "Fingerprint must be deterministic")
	assert.Len(t, fp1, FingerprintLen, "SHA-256 hex is 64 characters")
	assert.True(t, IsFingerprint(fp1))
}

func TestFingerprintKnownVectors(t *testing.T) {
	// SHA256("baselinewatch/feature/v1" || 0x00 || canonical)
	tests := []struct {
		name     string
		record   any
		expected string
	}{
		{
			"single field",
			IRObject{"name": IRString("Grid")},
			"3b8385f6ace60f9aa48a82a1c1bd791eadb7076dfdd98b2c41fce38432915c61",
		},
		{
			"key order does not matter",
			map[string]any{"name": "CSS Grid", "baseline": "high"},
			"3cd4d82c8df5a47822e3e08c192c21a790519a48fce6316778e1cdc2708d95a4",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, MustFingerprint(tt.record))
		})
	}
}

func TestFingerprintSensitivity(t *testing.T) {
	base := IRObject{
		"name":   IRString("Nesting"),
		"status": IRObject{"baseline": IRString("low")},
	}
	variants := []IRObject{
		{"name": IRString("Nesting "), "status": IRObject{"baseline": IRString("low")}},
		{"name": IRString("Nesting"), "status": IRObject{"baseline": IRString("high")}},
		{"name": IRString("Nesting"), "status": IRObject{"baseline": IRBool(false)}},
		{"name": IRString("Nesting"), "status": IRObject{"baseline": IRString("low")}, "usage": IRNull{}},
		{"name": IRString("Nesting")},
	}

	baseFP := MustFingerprint(base)
	seen := map[string]bool{baseFP: true}
	for i, v := range variants {
		fp := MustFingerprint(v)
		assert.NotEqual(t, baseFP, fp, "variant %d should change the fingerprint", i)
		assert.False(t, seen[fp], "variant %d collides with an earlier variant", i)
		seen[fp] = true
	}
}

func TestFingerprintDistinguishesUnicodeForms(t *testing.T) {
	composed := "caf\u00e9"
	decomposed := "cafe\u0301"
	require.NotEqual(t, composed, decomposed)

	a := MustFingerprint(IRObject{"description": IRString(composed)})
	b := MustFingerprint(IRObject{"description": IRString(decomposed)})
	assert.NotEqual(t, a, b, "re-encoding a field is a change")
}

func TestFingerprintDistinguishesStringFromNumber(t *testing.T) {
	a := MustFingerprint(IRObject{"v": IRString("1")})
	b := MustFingerprint(IRObject{"v": IRInt(1)})
	assert.NotEqual(t, a, b)
}

func TestFingerprintSameForEquivalentDecodings(t *testing.T) {
	fromJSON, err := UnmarshalRecord([]byte(`{"status": {"baseline": "low"}, "name": "Popover"}`))
	require.NoError(t, err)

	fromMap := map[string]any{"name": "Popover", "status": map[string]any{"baseline": "low"}}

	assert.Equal(t, MustFingerprint(fromMap), MustFingerprint(fromJSON))
}

func TestFingerprintLowercaseHex(t *testing.T) {
	fp := MustFingerprint(IRString("x"))
	assert.Equal(t, strings.ToLower(fp), fp)
}

func TestFingerprintSerializationError(t *testing.T) {
	_, err := Fingerprint(map[string]any{"bad": make(chan struct{})})
	require.Error(t, err)
	assert.True(t, IsSerializationError(err))
	assert.Contains(t, err.Error(), "fingerprint")
}

func TestMustFingerprintPanics(t *testing.T) {
	assert.Panics(t, func() {
		MustFingerprint(make(chan int))
	})
}

func TestIsFingerprint(t *testing.T) {
	assert.False(t, IsFingerprint(""))
	assert.False(t, IsFingerprint(strings.Repeat("A", FingerprintLen)))
	assert.False(t, IsFingerprint(strings.Repeat("a", FingerprintLen-1)))
	assert.True(t, IsFingerprint(strings.Repeat("0f", FingerprintLen/2)))
}
