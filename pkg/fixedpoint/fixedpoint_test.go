package fixedpoint

import (
	"strings"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToBaseFromBaseRoundTrips(t *testing.T) {
	cases := []string{
		"0",
		"1",
		"1.5",
		"0.000000000000000001",
		"123456789.987654321",
		"1000000",
		"0.1",
	}
	for _, decimal := range cases {
		t.Run(decimal, func(t *testing.T) {
			v, err := ToBase(decimal)
			require.NoError(t, err)
			assert.Equal(t, decimal, v.FromBase())
		})
	}
}

func TestToBaseTrimsTrailingZerosOnRoundTrip(t *testing.T) {
	v, err := ToBase("1.500000000000000000")
	require.NoError(t, err)
	assert.Equal(t, "1.5", v.FromBase())
}

func TestToBaseRejectsNegative(t *testing.T) {
	_, err := ToBase("-1")
	assert.Error(t, err)
}

func TestToBaseRejectsEmpty(t *testing.T) {
	_, err := ToBase("")
	assert.Error(t, err)
	_, err = ToBase("   ")
	assert.Error(t, err)
}

func TestToBaseRejectsTooManyFractionalDigits(t *testing.T) {
	_, err := ToBase("1." + strings.Repeat("1", BaseDecimals+1))
	assert.Error(t, err)
}

func TestToBaseAcceptsExactlyBaseDecimalsFractionalDigits(t *testing.T) {
	v, err := ToBase("1." + strings.Repeat("1", BaseDecimals))
	require.NoError(t, err)
	assert.Equal(t, "1."+strings.Repeat("1", BaseDecimals), v.FromBase())
}

func TestRawFromStringRoundTripsWithRaw(t *testing.T) {
	v, err := ToBase("42.5")
	require.NoError(t, err)
	reconstructed, err := RawFromString(v.Raw())
	require.NoError(t, err)
	assert.True(t, v.Eq(reconstructed))
}

func TestMulOverBaseComputesScaledProduct(t *testing.T) {
	price, err := ToBase("100")
	require.NoError(t, err)
	qty, err := ToBase("2.5")
	require.NoError(t, err)
	quote, err := MulOverBase(price, qty)
	require.NoError(t, err)
	assert.Equal(t, "250", quote.FromBase())
}

func TestDivOverBaseRecoversPriceFromQuoteAndQuantity(t *testing.T) {
	quote, err := ToBase("250")
	require.NoError(t, err)
	qty, err := ToBase("2.5")
	require.NoError(t, err)
	price, err := DivOverBase(quote, qty)
	require.NoError(t, err)
	assert.Equal(t, "100", price.FromBase())
}

func TestMulDivRejectsDivisionByZero(t *testing.T) {
	a, _ := ToBase("1")
	_, err := MulDiv(a, a, Zero())
	assert.Error(t, err)
}

// TestMulDivDoesNotOverflowAtTheUint256Boundary exercises spec.md §8's
// mul_div non-overflow property: a*b can exceed 256 bits as an
// intermediate product yet still fit once divided back down, and MulDiv
// must return that value rather than report a spurious overflow.
func TestMulDivDoesNotOverflowAtTheUint256Boundary(t *testing.T) {
	maxUint256 := UInt{v: new(uint256.Int).SetAllOne()}
	one := FromU64(1)

	result, err := MulDiv(maxUint256, one, one)
	require.NoError(t, err)
	assert.True(t, result.Eq(maxUint256))

	half := UInt{v: new(uint256.Int).Rsh(maxUint256.int(), 1)}
	result, err = MulDiv(maxUint256, half, maxUint256)
	require.NoError(t, err)
	assert.True(t, result.Eq(half))
}

// TestMulDivReportsGenuineOverflow confirms a product that cannot fit back
// into 256 bits after division is rejected rather than silently wrapped.
func TestMulDivReportsGenuineOverflow(t *testing.T) {
	maxUint256 := UInt{v: new(uint256.Int).SetAllOne()}
	two := FromU64(2)
	_, err := MulDiv(maxUint256, maxUint256, two)
	assert.Error(t, err)
}

func TestFeeBpsComputesFlooredBasisPoints(t *testing.T) {
	amount, err := ToBase("1000")
	require.NoError(t, err)
	fee, err := FeeBps(amount, 10) // 0.10%
	require.NoError(t, err)
	assert.Equal(t, "1", fee.FromBase())
}

func TestFeeBpsRejectsNegativeBps(t *testing.T) {
	amount, _ := ToBase("1000")
	_, err := FeeBps(amount, -1)
	assert.Error(t, err)
}

func TestSubPanicsOnUnderflow(t *testing.T) {
	a, _ := ToBase("1")
	b, _ := ToBase("2")
	assert.Panics(t, func() { a.Sub(b) })
}

func TestComparisons(t *testing.T) {
	a, _ := ToBase("1")
	b, _ := ToBase("2")
	assert.True(t, a.LT(b))
	assert.True(t, a.LTE(b))
	assert.True(t, b.GT(a))
	assert.True(t, b.GTE(a))
	assert.True(t, a.Eq(a))
	assert.False(t, a.Eq(b))
	assert.Equal(t, -1, a.Cmp(b))
	assert.Equal(t, 1, b.Cmp(a))
	assert.Equal(t, 0, a.Cmp(a))
}

func TestMinReturnsTheSmallerValue(t *testing.T) {
	a, _ := ToBase("1")
	b, _ := ToBase("2")
	assert.True(t, Min(a, b).Eq(a))
	assert.True(t, Min(b, a).Eq(a))
}

func TestZeroValueIsZero(t *testing.T) {
	var u UInt
	assert.True(t, u.IsZero())
	assert.Equal(t, "0", u.FromBase())
	assert.Equal(t, "0", u.Raw())
}
