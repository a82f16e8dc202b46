package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSortedUniqueIDs(t *testing.T) {
	assert.Equal(t, []int64{1, 2, 5}, SortedUniqueIDs([]int64{5, 1, 2, 5, 1}))
	assert.Equal(t, []int64{3, 9}, SortedUniqueIDs([]int64{9, 3}))
	assert.Equal(t, []int64{4}, SortedUniqueIDs([]int64{4, 4}))
	assert.Empty(t, SortedUniqueIDs(nil))
}
