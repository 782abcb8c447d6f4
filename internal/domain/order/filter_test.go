package order

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSortField(t *testing.T) {
	tests := []struct {
		in      string
		want    SortField
		wantErr bool
	}{
		{"", SortCreatedAt, false},
		{"createdAt", SortCreatedAt, false},
		{"created_at", SortCreatedAt, false},
		{"totalPrice", SortTotal, false},
		{"status", SortStatus, false},
		{"name; DROP TABLE orders", "", true},
	}

	for _, tt := range tests {
		got, err := ParseSortField(tt.in)
		if tt.wantErr {
			require.ErrorIs(t, err, ErrInvalidFilter, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}
}

func TestFilter_Normalize(t *testing.T) {
	from := time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	_, err := Filter{CreatedFrom: &from, CreatedTo: &to}.Normalize()
	require.ErrorIs(t, err, ErrInvalidFilter)

	_, err = Filter{SortBy: "price"}.Normalize()
	require.ErrorIs(t, err, ErrInvalidFilter)

	f, err := Filter{Skip: -1}.Normalize()
	require.NoError(t, err)
	assert.Equal(t, 0, f.Skip)
	assert.Equal(t, DefaultPageSize, f.Limit)
	assert.False(t, f.Ascending)
}

func TestStatus(t *testing.T) {
	assert.True(t, Done.IsTerminal())
	assert.True(t, Rejected.IsTerminal())
	assert.False(t, Pending.IsTerminal())
	assert.False(t, Processing.IsTerminal())

	s, err := ParseStatus("Processing")
	require.NoError(t, err)
	assert.Equal(t, Processing, s)

	_, err = ParseStatus("processing")
	require.ErrorIs(t, err, ErrInvalidStatus)
}

func TestAdmissionWindow_Allows(t *testing.T) {
	w := AdmissionWindow{OpenHour: 7, CloseHour: 22, DeliveryCloseHour: 22}
	at := func(h, m int) time.Time { return time.Date(2024, 1, 1, h, m, 0, 0, time.UTC) }

	assert.True(t, w.Allows(at(22, 0), false))
	assert.False(t, w.Allows(at(22, 5), false))
	assert.False(t, w.Allows(at(6, 59), true))
	assert.True(t, w.Allows(at(7, 0), true))
}
