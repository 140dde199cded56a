package extracts

import (
	"fmt"
	"regexp"
	"sort"
	"time"

	"github.com/Badsworth/pfml-scripts-sub004/pub/constants"
	ers "github.com/Badsworth/pfml-scripts-sub004/pub/errors"
)

// Every file in a claims-system extract drop is named
// <YYYY-MM-DD-HH-MM-SS>-<feed name>; the shared timestamp prefix is the date
// group identity.
var extractFilePattern = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2}-\d{2}-\d{2}-\d{2})-(.+)$`)

type extractFileMetadata struct {
	timestamp time.Time
	prefix    string
	feedName  string
	location  string
}

func (m extractFileMetadata) String() string {
	return fmt.Sprintf("extract file %s (group %s)", m.feedName, m.prefix)
}

func parseExtractFilename(name string) (extractFileMetadata, error) {
	parts := extractFilePattern.FindStringSubmatch(name)
	if parts == nil {
		return extractFileMetadata{}, fmt.Errorf("invalid filename for extract file: %s", name)
	}

	timestamp, err := time.Parse(constants.ExtractTimestampFormat, parts[1])
	if err != nil {
		return extractFileMetadata{}, fmt.Errorf("failed to parse timestamp from extract filename %s: %s", name, err)
	}

	return extractFileMetadata{
		timestamp: timestamp,
		prefix:    parts[1],
		feedName:  parts[2],
	}, nil
}

// dateGroup is one co-timestamped set of extract files.
type dateGroup struct {
	prefix    string
	timestamp time.Time
	files     map[string]extractFileMetadata
}

// missingFeeds names the family feeds absent from the group.
func (g *dateGroup) missingFeeds(family Family) []string {
	var missing []string
	for _, feed := range family.Feeds {
		if _, ok := g.files[feed]; !ok {
			missing = append(missing, feed)
		}
	}
	return missing
}

// complete returns nil when every family feed is present in the group.
func (g *dateGroup) complete(family Family) error {
	if missing := g.missingFeeds(family); len(missing) > 0 {
		return &ers.ExtractGroupIncomplete{Timestamp: g.prefix, Missing: missing}
	}
	return nil
}

// groupByTimestamp buckets parsed files by their timestamp prefix and returns
// the groups newest first.
func groupByTimestamp(metadata []extractFileMetadata) []*dateGroup {
	byPrefix := make(map[string]*dateGroup)
	for _, m := range metadata {
		group, ok := byPrefix[m.prefix]
		if !ok {
			group = &dateGroup{
				prefix:    m.prefix,
				timestamp: m.timestamp,
				files:     make(map[string]extractFileMetadata),
			}
			byPrefix[m.prefix] = group
		}
		group.files[m.feedName] = m
	}

	groups := make([]*dateGroup, 0, len(byPrefix))
	for _, group := range byPrefix {
		groups = append(groups, group)
	}
	sort.Slice(groups, func(i, j int) bool {
		return groups[i].timestamp.After(groups[j].timestamp)
	})

	return groups
}
