// Package pointdelivery manages delivery layer of user points.
package pointdelivery

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/go-petr/pet-points/internal/domain"
	"github.com/go-petr/pet-points/pkg/errorspkg"
	"github.com/go-petr/pet-points/pkg/web"
)

// ErrInvalidID indicates that the path id is not an integer.
var ErrInvalidID = errors.New("id must be an integer")

// Service provides service layer interface needed by point delivery layer.
//
//go:generate mockgen -source http.go -destination http_mock.go -package pointdelivery
type Service interface {
	Open(ctx context.Context, userID int64) (domain.UserPoint, error)
	Get(ctx context.Context, userID int64) (domain.UserPoint, error)
	History(ctx context.Context, userID int64) ([]domain.PointHistory, error)
	Charge(ctx context.Context, userID, amount int64) (domain.UserPoint, error)
	Use(ctx context.Context, userID, amount int64) (domain.UserPoint, error)
}

// Handler facilitates point delivery layer logic.
type Handler struct {
	service Service
}

// NewHandler returns point handler.
func NewHandler(ps Service) Handler {
	return Handler{service: ps}
}

type data struct {
	UserPoint domain.UserPoint `json:"user_point"`
}

type response struct {
	Data data `json:"data,omitempty"`
}

type dataHistories struct {
	Histories []domain.PointHistory `json:"histories"`
}

type responseHistories struct {
	Data dataHistories `json:"data,omitempty"`
}

// The id is not range checked here: a non-positive id is reported by the service,
// after the amount, so the order of checks stays the same over HTTP.
func bindID(gctx *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(gctx.Param("id"), 10, 64)
	if err != nil {
		zerolog.Ctx(gctx.Request.Context()).Info().Err(err).Send()
		gctx.JSON(http.StatusBadRequest, web.Error(ErrInvalidID))

		return 0, false
	}

	return id, true
}

type amountRequest struct {
	Amount *int64 `json:"amount" binding:"required"`
}

func bindAmount(gctx *gin.Context) (int64, bool) {
	var req amountRequest
	if err := gctx.ShouldBindJSON(&req); err != nil {
		var (
			ve     validator.ValidationErrors
			errMsg = "invalid request body"
		)

		if errors.As(err, &ve) {
			field := ve[0]
			errMsg = field.Field() + web.GetErrorMsg(field)
		}

		zerolog.Ctx(gctx.Request.Context()).Info().Err(err).Send()
		gctx.JSON(http.StatusBadRequest, web.Response{Error: errMsg})

		return 0, false
	}

	return *req.Amount, true
}

func writeError(gctx *gin.Context, err error) {
	l := zerolog.Ctx(gctx.Request.Context())

	switch {
	case errors.Is(err, domain.ErrInvalidArgument):
		gctx.JSON(http.StatusBadRequest, web.Error(err))
	case errors.Is(err, domain.ErrUserNotFound):
		gctx.JSON(http.StatusNotFound, web.Error(err))
	case errors.Is(err, domain.ErrUserAlreadyExists):
		gctx.JSON(http.StatusConflict, web.Error(err))
	case errors.Is(err, domain.ErrInsufficientBalance):
		gctx.JSON(http.StatusUnprocessableEntity, web.Error(err))
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		l.Info().Err(err).Send()
		gctx.JSON(http.StatusRequestTimeout, web.Error(err))
	case errors.Is(err, errorspkg.ErrStoreUnavailable):
		l.Error().Err(err).Send()
		gctx.JSON(http.StatusServiceUnavailable, web.Error(err))
	default:
		l.Error().Err(err).Send()
		gctx.JSON(http.StatusInternalServerError, web.Error(errorspkg.ErrInternal))
	}
}

// Open handles http request to register a user with zero points.
func (h *Handler) Open(gctx *gin.Context) {
	id, ok := bindID(gctx)
	if !ok {
		return
	}

	up, err := h.service.Open(gctx.Request.Context(), id)
	if err != nil {
		writeError(gctx, err)
		return
	}

	gctx.JSON(http.StatusCreated, response{Data: data{up}})
}

// Get handles http request to get user points.
func (h *Handler) Get(gctx *gin.Context) {
	id, ok := bindID(gctx)
	if !ok {
		return
	}

	up, err := h.service.Get(gctx.Request.Context(), id)
	if err != nil {
		writeError(gctx, err)
		return
	}

	gctx.JSON(http.StatusOK, response{Data: data{up}})
}

// History handles http request to list user point histories.
func (h *Handler) History(gctx *gin.Context) {
	id, ok := bindID(gctx)
	if !ok {
		return
	}

	histories, err := h.service.History(gctx.Request.Context(), id)
	if err != nil {
		writeError(gctx, err)
		return
	}

	gctx.JSON(http.StatusOK, responseHistories{Data: dataHistories{histories}})
}

// Charge handles http request to charge user points.
func (h *Handler) Charge(gctx *gin.Context) {
	id, ok := bindID(gctx)
	if !ok {
		return
	}

	amount, ok := bindAmount(gctx)
	if !ok {
		return
	}

	up, err := h.service.Charge(gctx.Request.Context(), id, amount)
	if err != nil {
		writeError(gctx, err)
		return
	}

	gctx.JSON(http.StatusOK, response{Data: data{up}})
}

// Use handles http request to use user points.
func (h *Handler) Use(gctx *gin.Context) {
	id, ok := bindID(gctx)
	if !ok {
		return
	}

	amount, ok := bindAmount(gctx)
	if !ok {
		return
	}

	up, err := h.service.Use(gctx.Request.Context(), id, amount)
	if err != nil {
		writeError(gctx, err)
		return
	}

	gctx.JSON(http.StatusOK, response{Data: data{up}})
}
