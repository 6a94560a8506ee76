package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDuplicateGroupSize(t *testing.T) {
	t.Parallel()

	masterOnly := DuplicateGroup{MasterID: "a"}
	assert.Equal(t, 1, masterOnly.Size())

	pair := DuplicateGroup{
		MasterID: "a",
		Members:  []GroupMember{{ID: "b", MatchType: MatchDirect, MatchScore: 0.95}},
	}
	assert.Equal(t, 2, pair.Size())

	// A member row for the master itself must not double-count.
	withMasterRow := DuplicateGroup{
		MasterID: "a",
		Members: []GroupMember{
			{ID: "a", MatchType: MatchDirect, MatchScore: 1.0},
			{ID: "b", MatchType: MatchPartial, MatchScore: 0.82},
			{ID: "c", MatchType: MatchDirect, MatchScore: 0.91},
		},
	}
	assert.Equal(t, 3, withMasterRow.Size())
}
