package device

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func strPtr(s string) *string { return &s }

func TestIdentityEqualIgnoresName(t *testing.T) {
	a := New("Front counter", "1a2b", "0001")
	b := New("Kitchen", "1A2B", "0x0001")

	assert.True(t, a.Equal(b))
	assert.Equal(t, a.Key(), b.Key())
	assert.NotEqual(t, a.Name, b.Name)
}

func TestIdentityDifferentProduct(t *testing.T) {
	a := New("", "1a2b", "0001")
	b := New("", "1a2b", "0002")

	assert.False(t, a.Equal(b))
}

func TestFromRawNormalizesMissingFields(t *testing.T) {
	id := FromRaw(Raw{VendorID: strPtr("04B8")})

	assert.Equal(t, "", id.Name)
	assert.Equal(t, "04b8", id.VendorID)
	assert.Equal(t, "", id.ProductID)
	assert.False(t, id.IsZero())

	assert.True(t, FromRaw(Raw{}).IsZero())
}

func TestIdentityString(t *testing.T) {
	assert.Equal(t, "1a2b:0001", New("", "1a2b", "0001").String())
	assert.Equal(t, "TM-T20 (04b8:0e15)", New("TM-T20", "04b8", "0e15").String())
}
