package extracts

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ers "github.com/Badsworth/pfml-scripts-sub004/pub/errors"
)

func TestHeaderIndexes(t *testing.T) {
	target := stagingTargets[feedClaimDetails]

	indexes, extra, err := headerIndexes(target, feedClaimDetails,
		[]string{"PEINDEXID", "PECLASSID", "ABSENCECASENU"})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 0, 2}, indexes)
	assert.Empty(t, extra)
}

func TestHeaderIndexesReportsExtraColumns(t *testing.T) {
	target := stagingTargets[feedClaimDetails]

	_, extra, err := headerIndexes(target, feedClaimDetails,
		[]string{"PECLASSID", "PEINDEXID", "ABSENCECASENU", "NEWCOLUMN"})
	require.NoError(t, err)
	assert.Equal(t, []string{"NEWCOLUMN"}, extra)
}

func TestHeaderIndexesMissingColumnIsFatal(t *testing.T) {
	target := stagingTargets[feedClaimDetails]

	_, _, err := headerIndexes(target, feedClaimDetails,
		[]string{"PECLASSID", "ABSENCECASENU"})
	require.Error(t, err)

	var missingErr *ers.MissingRequiredColumns
	require.ErrorAs(t, err, &missingErr)
	assert.Equal(t, feedClaimDetails, missingErr.FileName)
	assert.Equal(t, []string{"PEINDEXID"}, missingErr.Columns)
}

func TestEveryFamilyFeedHasAStagingTarget(t *testing.T) {
	for _, feed := range DefaultFamily().Feeds {
		target, ok := stagingTargets[feed]
		require.True(t, ok, feed)
		assert.NotEmpty(t, target.table, feed)
		assert.NotEmpty(t, target.columns, feed)
	}
}
