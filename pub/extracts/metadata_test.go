package extracts

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ers "github.com/Badsworth/pfml-scripts-sub004/pub/errors"
)

func TestParseExtractFilename(t *testing.T) {
	m, err := parseExtractFilename("2021-01-15-12-00-00-vpei.csv")
	require.NoError(t, err)
	assert.Equal(t, "2021-01-15-12-00-00", m.prefix)
	assert.Equal(t, "vpei.csv", m.feedName)
	assert.Equal(t, time.Date(2021, 1, 15, 12, 0, 0, 0, time.UTC), m.timestamp)

	_, err = parseExtractFilename("vpei.csv")
	assert.EqualError(t, err, "invalid filename for extract file: vpei.csv")

	_, err = parseExtractFilename("2021-13-45-99-00-00-vpei.csv")
	assert.Error(t, err)
}

func TestGroupByTimestampNewestFirst(t *testing.T) {
	newer, err := parseExtractFilename("2021-01-16-01-00-00-vpei.csv")
	require.NoError(t, err)
	older1, err := parseExtractFilename("2021-01-15-12-00-00-vpei.csv")
	require.NoError(t, err)
	older2, err := parseExtractFilename("2021-01-15-12-00-00-Employee_feed.csv")
	require.NoError(t, err)

	groups := groupByTimestamp([]extractFileMetadata{older1, newer, older2})
	require.Len(t, groups, 2)
	assert.Equal(t, "2021-01-16-01-00-00", groups[0].prefix)
	assert.Len(t, groups[0].files, 1)
	assert.Equal(t, "2021-01-15-12-00-00", groups[1].prefix)
	assert.Len(t, groups[1].files, 2)
}

func TestMissingFeeds(t *testing.T) {
	family := DefaultFamily()

	group := &dateGroup{files: map[string]extractFileMetadata{}}
	for _, feed := range family.Feeds {
		group.files[feed] = extractFileMetadata{feedName: feed}
	}
	assert.Empty(t, group.missingFeeds(family))

	delete(group.files, feedPaymentDetails)
	assert.Equal(t, []string{feedPaymentDetails}, group.missingFeeds(family))
}

func TestGroupComplete(t *testing.T) {
	family := DefaultFamily()

	group := &dateGroup{prefix: "2021-01-15-12-00-00", files: map[string]extractFileMetadata{}}
	for _, feed := range family.Feeds {
		group.files[feed] = extractFileMetadata{feedName: feed}
	}
	assert.NoError(t, group.complete(family))

	delete(group.files, feedPaymentDetails)
	err := group.complete(family)
	require.Error(t, err)
	var incomplete *ers.ExtractGroupIncomplete
	require.ErrorAs(t, err, &incomplete)
	assert.Equal(t, "2021-01-15-12-00-00", incomplete.Timestamp)
	assert.Equal(t, []string{feedPaymentDetails}, incomplete.Missing)
}
