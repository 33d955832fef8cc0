package repository

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewPagination(t *testing.T) {
	assert.Equal(t, Pagination{Page: 1, PageSize: 20}, NewPagination(0, 0))
	assert.Equal(t, Pagination{Page: 3, PageSize: 100}, NewPagination(3, 1000))
	assert.Equal(t, 40, NewPagination(3, 20).Offset())
}

func TestPaginate(t *testing.T) {
	all := []string{"a", "b", "c", "d", "e"}

	p := Paginate(all, NewPagination(2, 2))
	assert.Equal(t, []string{"c", "d"}, p.Items)
	assert.Equal(t, int64(5), p.Total)
	assert.Equal(t, 3, p.TotalPages)

	p = Paginate(all, NewPagination(3, 2))
	assert.Equal(t, []string{"e"}, p.Items)

	p = Paginate(all, NewPagination(9, 2))
	assert.Empty(t, p.Items)
	assert.Equal(t, 3, p.TotalPages)
}
