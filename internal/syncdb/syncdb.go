package syncdb

import (
	"context"
	"time"

	"chitbidgo/internal/finance"
	"chitbidgo/internal/services/auction"

	"go.uber.org/zap"
)

const writeTimeout = 1500 * time.Millisecond

// Subscriber is the part of the auction service the write-back listens on.
type Subscriber interface {
	Subscribe(fn func(auction.Event)) (cancel func())
}

// Run mirrors every round settled by this instance into the finance
// records: the winner's chit is marked won and the month row stored.
// Settlements merged from other viewers are skipped; the instance that
// settled the round writes it.
func Run(ctx context.Context, svc Subscriber, dir finance.Directory) error {
	settled := make(chan auction.Event, 16)
	cancel := svc.Subscribe(func(e auction.Event) {
		if e.Kind != auction.EventSettled || e.Remote || e.State.Winner == nil {
			return
		}
		select {
		case settled <- e:
		case <-ctx.Done():
		}
	})
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return nil
		case e := <-settled:
			syncOnce(ctx, dir, e)
		}
	}
}

func syncOnce(ctx context.Context, dir finance.Directory, e auction.Event) {
	w := e.State.Winner
	row := MonthRow(e.Config, w)

	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if err := dir.RecordWin(ctx, w.UserID, e.Config.BatchID, row); err != nil {
		zap.L().Error("syncdb.record_win",
			zap.String("round_id", e.State.RoundID),
			zap.String("user_id", w.UserID),
			zap.Error(err))
		return
	}
	zap.L().Info("syncdb.recorded",
		zap.String("round_id", e.State.RoundID),
		zap.String("user_id", w.UserID),
		zap.Int64("month_in_hand", row.MonthInHand))
}

// MonthRow is the settlement summary shown on the winner's finance page.
func MonthRow(cfg auction.Config, w *auction.Winner) finance.MonthRow {
	return finance.MonthRow{
		Name:           w.Name,
		ChitValue:      cfg.ChitValue,
		MonthLoss:      w.FinalLoss,
		MonthInHand:    w.MonthInHand,
		MonthlyPayment: cfg.MonthlyPayment,
		RunningMonth:   cfg.RunningMonth,
	}
}
