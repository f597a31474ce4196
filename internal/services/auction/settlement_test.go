package auction

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSettle(t *testing.T) {
	tests := []struct {
		name      string
		bidders   Ledger
		minLoss   int64
		chitValue int64
		want      *Winner
	}{
		{
			name:      "no bids",
			bidders:   Ledger{},
			minLoss:   30000,
			chitValue: 600000,
			want:      nil,
		},
		{
			name:      "top bidder wins",
			bidders:   Ledger{{UserID: "A", Name: "Anita", Loss: 2500}, {UserID: "B", Name: "Kiran", Loss: 2000}},
			minLoss:   30000,
			chitValue: 600000,
			want:      &Winner{UserID: "A", Name: "Anita", WinnerLoss: 2500, FinalLoss: 32500, MonthInHand: 567500},
		},
		{
			name:      "month in hand floored at zero",
			bidders:   Ledger{{UserID: "A", Name: "Anita", Loss: 900}},
			minLoss:   200,
			chitValue: 1000,
			want:      &Winner{UserID: "A", Name: "Anita", WinnerLoss: 900, FinalLoss: 1100, MonthInHand: 0},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Settle(tt.bidders, tt.minLoss, tt.chitValue)
			if tt.want == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, *tt.want, *got)
		})
	}
}
