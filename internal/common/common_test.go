package common

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMakeRandHexString(t *testing.T) {
	s, err := MakeRandHexString(8)
	require.NoError(t, err)
	assert.Len(t, s, 16)
	_, err = hex.DecodeString(s)
	require.NoError(t, err)

	other, err := MakeRandHexString(8)
	require.NoError(t, err)
	assert.NotEqual(t, s, other)

	empty, err := MakeRandHexString(0)
	require.NoError(t, err)
	assert.Equal(t, "", empty)
}

func TestValidIdentifier(t *testing.T) {
	for _, ok := range []string{"patients", "lab_tests", "patientId", "_x1"} {
		assert.True(t, ValidIdentifier(ok), ok)
	}
	for _, bad := range []string{"", "1abc", "a-b", "a.b", "x'); DROP TABLE records;--", "name space"} {
		assert.False(t, ValidIdentifier(bad), bad)
	}
}

func TestCatalogue(t *testing.T) {
	cat, err := NewCatalogue(HospitalCollections)
	require.NoError(t, err)

	assert.Equal(t, []string{"patients", "doctors", "appointments", "assessments", "medications", "lab_tests", "invoices"}, cat.Names())
	assert.Len(t, cat.All(), 7)

	col, err := cat.Lookup("appointments")
	require.NoError(t, err)
	assert.True(t, col.HasIndex("patientId"))
	assert.False(t, col.HasIndex("name"))

	_, err = cat.Lookup("wards")
	require.ErrorIs(t, err, ErrUnknownCollection)
}

func TestNewCatalogue_Rejects(t *testing.T) {
	tests := []struct {
		name string
		list []Collection
	}{
		{name: "bad name", list: []Collection{{Name: "bad-name"}}},
		{name: "duplicate", list: []Collection{{Name: "a"}, {Name: "a"}}},
		{name: "bad index", list: []Collection{{Name: "a", Indexes: []string{"x.y"}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewCatalogue(tt.list)
			require.Error(t, err)
		})
	}
}
