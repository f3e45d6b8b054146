package funding

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/skalibog/perpsentry/pkg/models"
)

func TestTag(t *testing.T) {
	a := NewAnalyzer(0.001)

	tag, ok := a.Tag([]models.FundingRate{{Rate: -0.002}, {Rate: 0.0015}})
	assert.True(t, ok)
	assert.Equal(t, TagHot, tag)

	tag, ok = a.Tag([]models.FundingRate{{Rate: -0.001}})
	assert.True(t, ok)
	assert.Equal(t, TagCold, tag)

	_, ok = a.Tag([]models.FundingRate{{Rate: 0.0001}})
	assert.False(t, ok)

	_, ok = a.Tag(nil)
	assert.False(t, ok)
}

func TestAverageAndExtreme(t *testing.T) {
	rates := []models.FundingRate{{Rate: 0.0001}, {Rate: -0.0005}, {Rate: 0.0002}}
	assert.InDelta(t, -0.0000666, Average(rates), 1e-6)
	assert.Equal(t, -0.0005, Extreme(rates))
	assert.Equal(t, 0.0, Average(nil))
}
