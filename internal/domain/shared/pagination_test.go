package shared

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFilter_OffsetAndLimit(t *testing.T) {
	tests := []struct {
		name   string
		filter Filter
		offset int
		limit  int
	}{
		{"defaults", DefaultFilter(), 0, 20},
		{"third page", Filter{Page: 3, PageSize: 10}, 20, 10},
		{"zero page size", Filter{Page: 2}, 20, 20},
		{"capped page size", Filter{Page: 1, PageSize: 500}, 0, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.offset, tt.filter.Offset())
			assert.Equal(t, tt.limit, tt.filter.Limit())
		})
	}
}

func TestNewPaginated(t *testing.T) {
	p := NewPaginated([]string{"a", "b"}, 21, 1, 10)
	assert.Equal(t, 3, p.TotalPages)
	assert.Equal(t, int64(21), p.Total)
	assert.Len(t, p.Items, 2)

	empty := NewPaginated([]string{}, 0, 1, 10)
	assert.Equal(t, 0, empty.TotalPages)
}
