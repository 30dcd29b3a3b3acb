package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/serenitycare/server/internal/models"
	"github.com/serenitycare/server/internal/services"
)

func CreateReservation(bs *services.BookingService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req services.ReserveRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, models.ErrorResponse("Invalid request body: "+err.Error()))
			return
		}

		res, err := bs.Reserve(c.Request.Context(), req)
		if err != nil {
			switch {
			case errors.Is(err, services.ErrSlotUnavailable):
				c.JSON(http.StatusConflict, models.ErrorResponse("Slot no longer available. Please select another time."))
			case errors.Is(err, services.ErrTherapistNotFound):
				c.JSON(http.StatusNotFound, models.ErrorResponse("Therapist not found"))
			case errors.Is(err, services.ErrTherapistNotBookable):
				c.JSON(http.StatusConflict, models.ErrorResponse("Therapist is not accepting bookings"))
			case errors.Is(err, services.ErrGateway):
				c.JSON(http.StatusBadGateway, models.ErrorResponse("Payment service unavailable. Please try again."))
			default:
				c.JSON(http.StatusBadRequest, models.ErrorResponse(err.Error()))
			}
			return
		}

		c.JSON(http.StatusCreated, models.SuccessResponse(res, "Reservation created"))
	}
}

func VerifyPayment(bs *services.BookingService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req services.VerifyRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, models.ErrorResponse("Invalid request body: "+err.Error()))
			return
		}

		res, err := bs.VerifyPayment(c.Request.Context(), req)
		if err != nil {
			switch {
			case errors.Is(err, services.ErrInvalidSignature):
				c.JSON(http.StatusBadRequest, models.ErrorResponse("Invalid payment signature"))
			case errors.Is(err, services.ErrBookingNotFound):
				c.JSON(http.StatusNotFound, models.ErrorResponse("Booking not found"))
			case errors.Is(err, services.ErrGateway):
				c.JSON(http.StatusBadGateway, models.ErrorResponse("Payment service error. Please retry."))
			default:
				c.JSON(http.StatusBadRequest, models.ErrorResponse(err.Error()))
			}
			return
		}

		if res.Refunded {
			c.JSON(http.StatusConflict, models.ErrorResponse("Slot was already booked by another client. Refund initiated."))
			return
		}
		c.JSON(http.StatusOK, models.SuccessResponse(res, "Booking confirmed"))
	}
}

// PaymentWebhook handles the gateway's asynchronous completion path. A 200
// stops gateway retries, so it is returned for every recognized outcome,
// duplicates included; only retryable failures get a 5xx.
func PaymentWebhook(bs *services.BookingService, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := c.GetRawData()
		if err != nil {
			c.JSON(http.StatusBadRequest, models.ErrorResponse("Unable to read request body"))
			return
		}
		signature := c.GetHeader("X-Razorpay-Signature")

		res, err := bs.ProcessWebhook(c.Request.Context(), body, signature)
		if err != nil {
			switch {
			case errors.Is(err, services.ErrInvalidSignature):
				c.JSON(http.StatusBadRequest, models.ErrorResponse("Invalid signature"))
			case errors.Is(err, services.ErrInvalidPayload):
				c.JSON(http.StatusBadRequest, models.ErrorResponse("Invalid payload"))
			case errors.Is(err, services.ErrRecoveryImpossible):
				// Retrying cannot create the missing metadata; log loudly and
				// stop the gateway from re-delivering.
				logger.Error("webhook recovery impossible, manual intervention required", "error", err)
				c.JSON(http.StatusBadRequest, models.ErrorResponse("Cannot recover booking"))
			default:
				// Retryable: the gateway will re-deliver the event.
				c.JSON(http.StatusInternalServerError, models.ErrorResponse("Webhook processing failed"))
			}
			return
		}

		switch {
		case res.Ignored:
			c.JSON(http.StatusOK, models.SuccessResponse(nil, "Event ignored"))
		case res.Duplicate:
			c.JSON(http.StatusOK, models.SuccessResponse(res, "Already processed"))
		case res.Refunded:
			c.JSON(http.StatusOK, models.SuccessResponse(res, "Race condition detected, refund issued"))
		default:
			c.JSON(http.StatusOK, models.SuccessResponse(res, "Webhook processed"))
		}
	}
}

func ListBookings(bs *services.BookingService) gin.HandlerFunc {
	return func(c *gin.Context) {
		page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

		bookings, total, err := bs.ListBookings(c.Request.Context(), page, limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, models.ErrorResponse(err.Error()))
			return
		}

		c.JSON(http.StatusOK, models.PaginatedResponse(bookings, page, limit, int(total)))
	}
}
