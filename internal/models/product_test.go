package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSearchCriteriaValidate(t *testing.T) {
	tests := []struct {
		name     string
		criteria SearchCriteria
		wantErr  bool
	}{
		{"keyword only", SearchCriteria{Keyword: "camera", MaxResults: 20}, false},
		{"category only", SearchCriteria{CategoryID: "625", MaxResults: 20}, false},
		{"missing keyword and category", SearchCriteria{MaxResults: 20}, true},
		{"zero max results", SearchCriteria{Keyword: "camera"}, true},
		{"max results too high", SearchCriteria{Keyword: "camera", MaxResults: 101}, true},
		{"negative min price", SearchCriteria{Keyword: "camera", MaxResults: 10, MinPrice: -1}, true},
		{"min above max", SearchCriteria{Keyword: "camera", MaxResults: 10, MinPrice: 50, MaxPrice: 20}, true},
		{"valid price band", SearchCriteria{Keyword: "camera", MaxResults: 10, MinPrice: 20, MaxPrice: 50}, false},
		{"min price without max", SearchCriteria{Keyword: "camera", MaxResults: 10, MinPrice: 20}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.criteria.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestProfitMarginPercent(t *testing.T) {
	assert.InDelta(t, 100.0, ProfitMarginPercent(20, 10), 0.001)
	assert.InDelta(t, 130.82, ProfitMarginPercent(59.99, 25.99), 0.005)
	assert.InDelta(t, -50.0, ProfitMarginPercent(10, 20), 0.001)
	assert.Zero(t, ProfitMarginPercent(20, 0))
	assert.Zero(t, ProfitMarginPercent(20, -5))
}

func TestScanResultSuccess(t *testing.T) {
	assert.True(t, (&ScanResult{Status: StatusCompleted, Products: []EbayProduct{{}}}).Success())
	assert.False(t, (&ScanResult{Status: StatusCompleted}).Success())
	assert.False(t, (&ScanResult{Status: StatusFailed, Products: []EbayProduct{{}}}).Success())
}
