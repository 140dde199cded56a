package extracts

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFamilyDefault(t *testing.T) {
	family, err := LoadFamily("")
	require.NoError(t, err)
	assert.Equal(t, DefaultFamily(), family)
}

func TestLoadFamilyFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "family.yaml")
	content := `name: payments-only
feeds:
  - vpei.csv
  - vpeipaymentdetails.csv
  - vpeiclaimdetails.csv
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	family, err := LoadFamily(path)
	require.NoError(t, err)
	assert.Equal(t, "payments-only", family.Name)
	assert.Equal(t, []string{feedPaymentLines, feedPaymentDetails, feedClaimDetails}, family.Feeds)
}

func TestLoadFamilyRejectsUnknownFeed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "family.yaml")
	content := `name: bad
feeds:
  - mystery.csv
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	_, err := LoadFamily(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown feed mystery.csv")
}

func TestLoadFamilyRejectsEmptyDefinition(t *testing.T) {
	path := filepath.Join(t.TempDir(), "family.yaml")
	require.NoError(t, os.WriteFile(path, []byte("name: empty\n"), 0600))

	_, err := LoadFamily(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least one feed")
}
