package auction

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// MinLoss is the house commission: floor(chitValue * commissionRate / 100).
// The product is computed in decimal so fractional rates such as 2.5 floor
// exactly instead of drifting through float rounding.
func MinLoss(chitValue int64, commissionRate float64) int64 {
	return decimal.NewFromInt(chitValue).
		Mul(decimal.NewFromFloat(commissionRate)).
		Div(hundred).
		Floor().
		IntPart()
}

// derive recomputes the fields that are never taken from input.
func (c *Config) derive() {
	c.MinLoss = MinLoss(c.ChitValue, c.CommissionRate)
	c.JoinedUsers = len(c.JoinedUsersList)
}
