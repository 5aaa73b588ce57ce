package scanning

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSeverity_Rank(t *testing.T) {
	t.Parallel()

	ordered := []Severity{SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow, SeverityInfo}
	for i := 1; i < len(ordered); i++ {
		assert.Less(t, ordered[i-1].Rank(), ordered[i].Rank(),
			"%s must rank before %s", ordered[i-1], ordered[i])
	}

	assert.Greater(t, Severity("bogus").Rank(), SeverityInfo.Rank())
	assert.False(t, Severity("bogus").Valid())
	assert.True(t, SeverityMedium.Valid())
}

func TestCategory_Valid(t *testing.T) {
	t.Parallel()

	for _, c := range []Category{CategorySecret, CategoryInsecureCall, CategoryWeakCrypto, CategoryMisconfig} {
		assert.True(t, c.Valid(), "category %s", c)
	}
	assert.False(t, Category("malware").Valid())
}
