package auctionhandler

import (
	"chitbidgo/internal/services/auction"
)

type PutConfigBody struct {
	DateMonth      string  `json:"date_month"      example:"2025-11"`
	StartMonth     string  `json:"start_month"     example:"Jan 2025"`
	EndMonth       string  `json:"end_month"       example:"Dec 2026"`
	RunningMonth   string  `json:"running_month"   example:"Nov 2025"`
	Term           int     `json:"term"            binding:"gte=0"         example:"24"`
	ChitValue      int64   `json:"chit_value"      binding:"gte=0"         example:"600000"`
	LastBid        int64   `json:"last_bid"        binding:"gte=0"         example:"0"`
	CommissionRate float64 `json:"commission_rate" binding:"gte=0,lte=100" example:"5"`
	MonthlyPayment int64   `json:"monthly_payment" binding:"gte=0"         example:"25000"`
	Ticker         string  `json:"ticker"          example:"Round closes 16:10"`
	RoomCode       string  `json:"room_code"       binding:"required"      example:"GK-123456"`
	BatchID        string  `json:"batch_id"        example:"GK-A1"`
} // @name PutConfigRequest

func (b PutConfigBody) toConfig() auction.Config {
	return auction.Config{
		DateMonth:      b.DateMonth,
		StartMonth:     b.StartMonth,
		EndMonth:       b.EndMonth,
		RunningMonth:   b.RunningMonth,
		Term:           b.Term,
		ChitValue:      b.ChitValue,
		LastBid:        b.LastBid,
		CommissionRate: b.CommissionRate,
		MonthlyPayment: b.MonthlyPayment,
		Ticker:         b.Ticker,
		RoomCode:       b.RoomCode,
		BatchID:        b.BatchID,
	}
}

type JoinBody struct {
	RoomCode string `json:"room_code" binding:"required" example:"GK-123456"`
} // @name JoinRequest

type JoinResponse struct {
	Joined bool `json:"joined"`
} // @name JoinResponse

type PlaceBidBody struct {
	UserID    string `json:"user_id"   binding:"required"      example:"GK2025-0012"`
	RoomCode  string `json:"room_code" binding:"required"      example:"GK-123456"`
	Increment int64  `json:"increment" example:"1000"`
} // @name PlaceBidRequest

type FinalizeResponse struct {
	Winner *auction.Winner `json:"winner"`
} // @name FinalizeResponse

type CanBidResponse struct {
	UserID  string `json:"user_id"`
	BatchID string `json:"batch_id,omitempty"`
	CanBid  bool   `json:"can_bid"`
} // @name CanBidResponse

type ErrorResponse struct {
	Error string `json:"error"`
} // @name ErrorResponse

type ListBidsQuery struct {
	Limit int `form:"limit,default=20" binding:"gte=1,lte=500"`
} // @name ListBidsQuery

type CanBidQuery struct {
	BatchID string `form:"batch_id"`
} // @name CanBidQuery
