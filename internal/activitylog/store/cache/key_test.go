package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"catalogue/internal/activitylog/models"
)

func TestSearchKey(t *testing.T) {
	base := models.Query{
		VersionIDs:   []string{"v1", "v2"},
		LogCategory:  models.CategoryDataRequest,
		AudienceType: models.AudienceApplicant,
	}

	t.Run("ignores version order", func(t *testing.T) {
		reordered := base
		reordered.VersionIDs = []string{"v2", "v1"}
		assert.Equal(t, searchKey(base), searchKey(reordered))
	})

	t.Run("does not mutate the query", func(t *testing.T) {
		q := base
		q.VersionIDs = []string{"v2", "v1"}
		searchKey(q)
		assert.Equal(t, []string{"v2", "v1"}, q.VersionIDs)
	})

	t.Run("audience and category change the key", func(t *testing.T) {
		other := base
		other.AudienceType = models.AudienceCustodian
		assert.NotEqual(t, searchKey(base), searchKey(other))

		other = base
		other.LogCategory = models.CategoryDataset
		assert.NotEqual(t, searchKey(base), searchKey(other))
	})
}
