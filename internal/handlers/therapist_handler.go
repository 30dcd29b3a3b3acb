package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/serenitycare/server/internal/helpers"
	"github.com/serenitycare/server/internal/models"
	"github.com/serenitycare/server/internal/services"
)

func ListTherapists(ts *services.TherapistService) gin.HandlerFunc {
	return func(c *gin.Context) {
		page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

		therapists, total, err := ts.ListTherapists(c.Request.Context(), page, limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, models.ErrorResponse(err.Error()))
			return
		}

		c.JSON(http.StatusOK, models.PaginatedResponse(therapists, page, limit, int(total)))
	}
}

func GetTherapistByID(ts *services.TherapistService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := helpers.StringTrim(c.Param("id"))

		therapist, err := ts.GetTherapist(c.Request.Context(), id)
		if err != nil {
			if errors.Is(err, services.ErrTherapistNotFound) {
				c.JSON(http.StatusNotFound, models.ErrorResponse("Therapist not found"))
				return
			}
			c.JSON(http.StatusInternalServerError, models.ErrorResponse(err.Error()))
			return
		}

		c.JSON(http.StatusOK, models.SuccessResponse(therapist, ""))
	}
}

func GetAvailableSlots(ts *services.TherapistService) gin.HandlerFunc {
	return func(c *gin.Context) {
		therapistID := c.Query("therapist_id")
		date := c.Query("date")
		if therapistID == "" || date == "" {
			c.JSON(http.StatusBadRequest, models.ErrorResponse("therapist_id and date are required"))
			return
		}

		slots, err := ts.AvailableSlots(c.Request.Context(), therapistID, date)
		if err != nil {
			if errors.Is(err, services.ErrTherapistNotFound) {
				c.JSON(http.StatusNotFound, models.ErrorResponse("Therapist not found"))
				return
			}
			c.JSON(http.StatusBadRequest, models.ErrorResponse(err.Error()))
			return
		}

		c.JSON(http.StatusOK, models.SuccessResponse(slots, ""))
	}
}
