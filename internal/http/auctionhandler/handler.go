package auctionhandler

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"chitbidgo/internal/bidjournal"
	"chitbidgo/internal/finance"
	"chitbidgo/internal/services/auction"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const adminHeader = "X-Admin-Token"

type Options struct {
	// AdminToken guards the admin routes when set.
	AdminToken         string
	RequireEligibility bool
}

type Handler struct {
	svc     auction.IAuctionService
	dir     finance.Directory
	journal bidjournal.Journal
	opts    Options
}

func New(svc auction.IAuctionService, dir finance.Directory, journal bidjournal.Journal, opts Options) *Handler {
	return &Handler{svc: svc, dir: dir, journal: journal, opts: opts}
}

func (h *Handler) Register(r gin.IRoutes) {
	r.GET("/auction/config", h.getConfig)
	r.GET("/auction/state", h.getState)
	r.GET("/auction/bids", h.listBids)
	r.POST("/auction/join", h.join)
	r.POST("/auction/bid", h.bid)
	r.GET("/users/:id/can-bid", h.canBid)
	r.GET("/users/:id/live", h.liveRow)

	r.PUT("/auction/config", h.admin, h.putConfig)
	r.POST("/auction/start", h.admin, h.start)
	r.POST("/auction/stop", h.admin, h.stop)
	r.POST("/auction/reset", h.admin, h.reset)
	r.POST("/auction/finalize", h.admin, h.finalize)
	r.POST("/auction/roster/refresh", h.admin, h.refreshRoster)
}

// admin aborts with 401 unless the request carries the admin token. With no
// token configured every caller is admin.
func (h *Handler) admin(c *gin.Context) {
	if h.opts.AdminToken == "" {
		return
	}
	got := c.GetHeader(adminHeader)
	if subtle.ConstantTimeCompare([]byte(got), []byte(h.opts.AdminToken)) != 1 {
		c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: "admin token required"})
	}
}

// statusFor maps auction rejections to HTTP codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, auction.ErrInvalidIncrement),
		errors.Is(err, auction.ErrBidBelowIncrement),
		errors.Is(err, auction.ErrIncrementNotAllowed),
		errors.Is(err, auction.ErrIncrementTooLarge),
		errors.Is(err, auction.ErrInvalidConfig):
		return http.StatusBadRequest
	case errors.Is(err, auction.ErrRoomCodeMismatch),
		errors.Is(err, auction.ErrNotEligible):
		return http.StatusForbidden
	case errors.Is(err, finance.ErrUserNotFound):
		return http.StatusNotFound
	case errors.Is(err, auction.ErrAuctionNotRunning),
		errors.Is(err, auction.ErrAlreadyTopBidder),
		errors.Is(err, auction.ErrAlreadyRunning),
		errors.Is(err, auction.ErrAuctionFinished):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func fail(c *gin.Context, err error) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		zap.L().Error("http.internal", zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.JSON(code, ErrorResponse{Error: err.Error()})
}

// @Summary		Get auction config
// @Tags			Auction
// @Success		200	{object}	auction.Config
// @Router			/auction/config [get]
func (h *Handler) getConfig(c *gin.Context) {
	c.JSON(http.StatusOK, h.svc.GetConfig(c.Request.Context()))
}

// @Summary		Update auction config
// @Description	Replaces the admin fields. min_loss and joined_users are derived.
// @Tags			Admin
// @Param			X-Admin-Token	header		string			false	"Admin token"
// @Param			body			body		PutConfigBody	true	"Config payload"
// @Success		200				{object}	auction.Config
// @Failure		400				{object}	ErrorResponse
// @Failure		401				{object}	ErrorResponse
// @Router			/auction/config [put]
func (h *Handler) putConfig(c *gin.Context) {
	var body PutConfigBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	cfg, err := h.svc.SetConfig(c.Request.Context(), body.toConfig())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, cfg)
}

// @Summary		Start the round
// @Description	Fixes the round deadline on first start; a restart keeps it.
// @Tags			Admin
// @Param			X-Admin-Token	header	string	false	"Admin token"
// @Success		202
// @Failure		409	{object}	ErrorResponse
// @Router			/auction/start [post]
func (h *Handler) start(c *gin.Context) {
	if err := h.svc.Start(c.Request.Context()); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusAccepted)
}

// @Summary		Stop the round
// @Tags			Admin
// @Param			X-Admin-Token	header	string	false	"Admin token"
// @Success		202
// @Failure		409	{object}	ErrorResponse
// @Router			/auction/stop [post]
func (h *Handler) stop(c *gin.Context) {
	if err := h.svc.Stop(c.Request.Context()); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusAccepted)
}

// @Summary		Reset the round
// @Tags			Admin
// @Param			X-Admin-Token	header	string	false	"Admin token"
// @Success		202
// @Router			/auction/reset [post]
func (h *Handler) reset(c *gin.Context) {
	if err := h.svc.Reset(c.Request.Context()); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusAccepted)
}

// @Summary		Settle the round now
// @Tags			Admin
// @Param			X-Admin-Token	header		string	false	"Admin token"
// @Success		200				{object}	FinalizeResponse
// @Router			/auction/finalize [post]
func (h *Handler) finalize(c *gin.Context) {
	c.JSON(http.StatusOK, FinalizeResponse{Winner: h.svc.Finalize(c.Request.Context())})
}

// @Summary		Reload the member roster
// @Tags			Admin
// @Param			X-Admin-Token	header		string	false	"Admin token"
// @Success		200				{object}	auction.Config
// @Failure		500				{object}	ErrorResponse
// @Router			/auction/roster/refresh [post]
func (h *Handler) refreshRoster(c *gin.Context) {
	if err := h.svc.RefreshRoster(c.Request.Context()); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, h.svc.GetConfig(c.Request.Context()))
}

// @Summary		Get auction state
// @Tags			Auction
// @Success		200	{object}	auction.State
// @Router			/auction/state [get]
func (h *Handler) getState(c *gin.Context) {
	c.JSON(http.StatusOK, h.svc.GetState(c.Request.Context()))
}

// @Summary		Recent accepted bids
// @Description	Newest first.
// @Tags			Auction
// @Param			limit	query		int	false	"Max entries"	minimum(1)	maximum(500)	default(20)
// @Success		200		{array}		bidjournal.Entry
// @Failure		400		{object}	ErrorResponse
// @Router			/auction/bids [get]
func (h *Handler) listBids(c *gin.Context) {
	var q ListBidsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	out, err := h.journal.Recent(c.Request.Context(), q.Limit)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// @Summary		Check a room code
// @Tags			Auction
// @Param			body	body		JoinBody	true	"Room code"
// @Success		200		{object}	JoinResponse
// @Failure		403		{object}	ErrorResponse
// @Router			/auction/join [post]
func (h *Handler) join(c *gin.Context) {
	var body JoinBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	if !h.svc.JoinRoom(c.Request.Context(), body.RoomCode) {
		fail(c, auction.ErrRoomCodeMismatch)
		return
	}
	c.JSON(http.StatusOK, JoinResponse{Joined: true})
}

// @Summary		Place a bid
// @Description	Raises the bidder's cumulative loss by increment.
// @Tags			Auction
// @Param			body	body	PlaceBidBody	true	"Bid payload"
// @Success		202
// @Failure		400	{object}	ErrorResponse
// @Failure		403	{object}	ErrorResponse
// @Failure		404	{object}	ErrorResponse
// @Failure		409	{object}	ErrorResponse
// @Router			/auction/bid [post]
func (h *Handler) bid(c *gin.Context) {
	var body PlaceBidBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	ctx := c.Request.Context()

	if !h.svc.JoinRoom(ctx, body.RoomCode) {
		fail(c, auction.ErrRoomCodeMismatch)
		return
	}
	user, err := h.dir.GetUser(ctx, strings.TrimSpace(body.UserID))
	if err != nil {
		fail(c, err)
		return
	}
	if h.opts.RequireEligibility {
		ok, err := h.svc.CanBid(ctx, user.ID, "")
		if err != nil {
			fail(c, err)
			return
		}
		if !ok {
			fail(c, auction.ErrNotEligible)
			return
		}
	}
	if err := h.svc.PlaceBid(ctx, user.ID, user.Name, body.Increment); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusAccepted)
}

// @Summary		Bid eligibility
// @Description	True iff the user holds an active, not yet won chit in the batch. Defaults to the configured batch.
// @Tags			Users
// @Param			id			path		string	true	"User ID"	default(GK2025-0012)
// @Param			batch_id	query		string	false	"Batch ID"
// @Success		200			{object}	CanBidResponse
// @Router			/users/{id}/can-bid [get]
func (h *Handler) canBid(c *gin.Context) {
	var q CanBidQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	userID := c.Param("id")
	ok, err := h.svc.CanBid(c.Request.Context(), userID, q.BatchID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, CanBidResponse{UserID: userID, BatchID: q.BatchID, CanBid: ok})
}

// @Summary		Settlement month row
// @Tags			Users
// @Param			id	path		string	true	"User ID"	default(GK2025-0012)
// @Success		200	{object}	finance.MonthRow
// @Failure		404	{object}	ErrorResponse
// @Router			/users/{id}/live [get]
func (h *Handler) liveRow(c *gin.Context) {
	row, ok, err := h.dir.LiveRow(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "no settlement recorded"})
		return
	}
	c.JSON(http.StatusOK, row)
}
