package model

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskStatus_NextCycle(t *testing.T) {
	t.Parallel()

	assert.Equal(t, TaskInProgress, TaskPending.Next())
	assert.Equal(t, TaskCompleted, TaskInProgress.Next())
	assert.Equal(t, TaskPending, TaskCompleted.Next())

	for _, start := range []TaskStatus{TaskPending, TaskInProgress, TaskCompleted} {
		assert.Equal(t, start, start.Next().Next().Next(), "three toggles from %s", start)
	}
}

func TestParseTaskStatus(t *testing.T) {
	t.Parallel()

	s, err := ParseTaskStatus(" in_progress ")
	require.NoError(t, err)
	assert.Equal(t, TaskInProgress, s)

	_, err = ParseTaskStatus("DONE")
	assert.Error(t, err)
}

func TestTaskFilter_NormalizeEquivalence(t *testing.T) {
	t.Parallel()

	base := TaskFilter{Page: 2, Limit: 5, SortBy: SortByTitle, SortOrder: SortAsc}

	variants := []TaskFilter{
		{Page: 2, Limit: 5, SortBy: SortByTitle, SortOrder: SortAsc, Search: ""},
		{Page: 2, Limit: 5, SortBy: SortByTitle, SortOrder: SortAsc, Search: "   \t"},
		{Page: 2, Limit: 5, SortBy: SortByTitle, SortOrder: "ASC", Status: " "},
	}
	for _, v := range variants {
		assert.Equal(t, base.Normalize(), v.Normalize())
	}
}

func TestTaskFilter_NormalizeDefaults(t *testing.T) {
	t.Parallel()

	f := TaskFilter{}.Normalize()
	assert.Equal(t, TaskFilter{
		Page:      DefaultPage,
		Limit:     DefaultLimit,
		SortBy:    SortByCreatedAt,
		SortOrder: SortDesc,
	}, f)
	require.NoError(t, f.Validate())
	assert.Equal(t, 0, f.Offset())
}

func TestTaskFilter_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		filter TaskFilter
		ok     bool
	}{
		{"defaults", TaskFilter{}, true},
		{"negative page", TaskFilter{Page: -1}, false},
		{"limit too large", TaskFilter{Limit: MaxLimit + 1}, false},
		{"limit at max", TaskFilter{Limit: MaxLimit}, true},
		{"bad status", TaskFilter{Status: "DONE"}, false},
		{"lower-case status", TaskFilter{Status: "pending"}, true},
		{"bad sort field", TaskFilter{SortBy: "priority"}, false},
		{"bad sort order", TaskFilter{SortOrder: "up"}, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.filter.Normalize().Validate()
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestNewPagination(t *testing.T) {
	t.Parallel()

	p := NewPagination(3, 10, 25)
	assert.Equal(t, 3, p.TotalPages)
	assert.False(t, p.HasNext)
	assert.True(t, p.HasPrev)

	p = NewPagination(1, 10, 0)
	assert.Equal(t, 0, p.TotalPages)
	assert.False(t, p.HasNext)
	assert.False(t, p.HasPrev)

	p = NewPagination(1, 10, 10)
	assert.Equal(t, 1, p.TotalPages)
	assert.False(t, p.HasNext)
}

func TestRefreshToken_Expired(t *testing.T) {
	t.Parallel()

	now := time.Now()
	rt := RefreshToken{ExpiresAt: now}
	assert.True(t, rt.Expired(now))
	assert.False(t, rt.Expired(now.Add(-time.Second)))
}

func TestTaskFilter_OffsetSaturates(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 20, TaskFilter{Page: 3, Limit: 10}.Offset())
	assert.Equal(t, 0, TaskFilter{Page: 0, Limit: 10}.Offset())
	assert.Equal(t, math.MaxInt, TaskFilter{Page: 1 << 62, Limit: 4}.Offset())
	assert.Equal(t, math.MaxInt, TaskFilter{Page: math.MaxInt, Limit: MaxLimit}.Offset())
}
