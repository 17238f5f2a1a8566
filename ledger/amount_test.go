// +build unit

package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseUnits(t *testing.T) {
	units, err := ParseUnits("20.00", 6)
	assert.NoError(t, err)
	assert.Equal(t, uint64(20000000), units)

	units, err = ParseUnits("20", 6)
	assert.NoError(t, err)
	assert.Equal(t, uint64(20000000), units)

	units, err = ParseUnits("0.000001", 6)
	assert.NoError(t, err)
	assert.Equal(t, uint64(1), units)

	units, err = ParseUnits(".5", 2)
	assert.NoError(t, err)
	assert.Equal(t, uint64(50), units)

	units, err = ParseUnits("1.25", 0)
	assert.NoError(t, err)
	assert.Equal(t, uint64(1), units)
}

func TestParseUnitsTruncatesTowardZero(t *testing.T) {
	// sub-precision digits are dropped, never rounded up
	units, err := ParseUnits("1.2399", 2)
	assert.NoError(t, err)
	assert.Equal(t, uint64(123), units)

	units, err = ParseUnits("0.9999999", 6)
	assert.NoError(t, err)
	assert.Equal(t, uint64(999999), units)
}

func TestParseUnitsRejectsMalformedAmounts(t *testing.T) {
	for _, amount := range []string{"", "-1", "1.2.3", "abc", "1,00", "1.0e3"} {
		_, err := ParseUnits(amount, 6)
		assert.Error(t, err, "amount %q parsed", amount)
	}
}

func TestApplyMultiplier(t *testing.T) {
	units, err := ApplyMultiplier(20000000, 1, 2)
	assert.NoError(t, err)
	assert.Equal(t, uint64(10000000), units)

	units, err = ApplyMultiplier(5, 1, 2)
	assert.NoError(t, err)
	assert.Equal(t, uint64(2), units)

	units, err = ApplyMultiplier(12345, 1, 1)
	assert.NoError(t, err)
	assert.Equal(t, uint64(12345), units)

	_, err = ApplyMultiplier(1, 1, 0)
	assert.Error(t, err)
}

func TestFormatUnits(t *testing.T) {
	assert.Equal(t, "20.000000", FormatUnits(20000000, 6))
	assert.Equal(t, "0.000001", FormatUnits(1, 6))
	assert.Equal(t, "0.50", FormatUnits(50, 2))
	assert.Equal(t, "42", FormatUnits(42, 0))
}
