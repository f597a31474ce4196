package auction

// Winner is the outcome of a settled round.
type Winner struct {
	UserID      string `json:"user_id"`
	Name        string `json:"name"`
	WinnerLoss  int64  `json:"winner_loss"`
	FinalLoss   int64  `json:"final_loss"`    // commission + winning loss
	MonthInHand int64  `json:"month_in_hand"` // chit value - final loss, floored at 0
}

// Settle computes the round outcome from the final ranking. It returns nil
// when nobody bid.
func Settle(bidders Ledger, minLoss, chitValue int64) *Winner {
	if len(bidders) == 0 {
		return nil
	}
	top := bidders[0]
	finalLoss := minLoss + top.Loss
	return &Winner{
		UserID:      top.UserID,
		Name:        top.Name,
		WinnerLoss:  top.Loss,
		FinalLoss:   finalLoss,
		MonthInHand: max(chitValue-finalLoss, 0),
	}
}
