package routes

import (
	"errors"
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/satchelwallet/satchel/api/cashu"
)

type postSpendRequest struct {
	Amount uint64 `json:"amount" binding:"required"`
}

type putReserveConfigRequest struct {
	TargetAmount          *uint64 `json:"target_amount"`
	TargetLevel           *string `json:"target_level"`
	AutoRefill            *bool   `json:"auto_refill"`
	AlertThresholdPercent *int    `json:"alert_threshold_percent"`
}

func v1ReserveRoutes(r *gin.Engine, wallet *Wallet) {
	v1 := r.Group("/v1")

	v1.GET("/reserve/config", func(c *gin.Context) {
		config, err := wallet.Reserve.Config(c.Request.Context())
		if err != nil {
			wallet.Logger.Error("wallet.Reserve.Config", slog.Any("error", err))
			c.JSON(500, "Server side error")
			return
		}
		c.JSON(200, config)
	})

	// each field updates independently, absent fields keep their value
	v1.PUT("/reserve/config", func(c *gin.Context) {
		var request putReserveConfigRequest
		if err := c.BindJSON(&request); err != nil {
			c.JSON(400, "Malformed body request")
			return
		}

		ctx := c.Request.Context()

		if request.TargetLevel != nil {
			level, err := cashu.ReserveLevelFromString(*request.TargetLevel)
			if err != nil {
				c.JSON(400, err.Error())
				return
			}
			if err := wallet.Reserve.SetTargetLevel(ctx, level); err != nil {
				c.JSON(400, err.Error())
				return
			}
		}
		if request.TargetAmount != nil {
			if err := wallet.Reserve.SetTargetAmount(ctx, *request.TargetAmount); err != nil {
				c.JSON(400, err.Error())
				return
			}
		}
		if request.AutoRefill != nil {
			if err := wallet.Reserve.SetAutoRefill(ctx, *request.AutoRefill); err != nil {
				c.JSON(400, err.Error())
				return
			}
		}
		if request.AlertThresholdPercent != nil {
			if err := wallet.Reserve.SetAlertThreshold(ctx, *request.AlertThresholdPercent); err != nil {
				c.JSON(400, err.Error())
				return
			}
		}

		config, err := wallet.Reserve.Config(ctx)
		if err != nil {
			wallet.Logger.Error("wallet.Reserve.Config", slog.Any("error", err))
			c.JSON(500, "Server side error")
			return
		}
		c.JSON(200, config)
	})

	v1.GET("/mints/:id/reserve/status", func(c *gin.Context) {
		status, err := wallet.Reserve.Status(c.Request.Context(), c.Param("id"))
		if err != nil {
			if errors.Is(err, cashu.ErrMintNotFound) {
				c.JSON(404, cashu.ErrMintNotFound.Error())
				return
			}
			wallet.Logger.Error("wallet.Reserve.Status", slog.Any("error", err))
			c.JSON(500, "Server side error")
			return
		}
		c.JSON(200, status)
	})

	v1.GET("/mints/:id/reserve/health", func(c *gin.Context) {
		health, err := wallet.Reserve.HealthCheck(c.Request.Context(), c.Param("id"))
		if err != nil {
			if errors.Is(err, cashu.ErrMintNotFound) {
				c.JSON(404, cashu.ErrMintNotFound.Error())
				return
			}
			wallet.Logger.Error("wallet.Reserve.HealthCheck", slog.Any("error", err))
			c.JSON(500, "Server side error")
			return
		}
		c.JSON(200, health)
	})

	v1.POST("/mints/:id/reserve/refill", func(c *gin.Context) {
		result, err := wallet.Reserve.Refill(c.Request.Context(), c.Param("id"))
		if err != nil {
			if errors.Is(err, cashu.ErrMintNotFound) {
				c.JSON(404, cashu.ErrMintNotFound.Error())
				return
			}
			wallet.Logger.Error("wallet.Reserve.Refill", slog.Any("error", err))
			c.JSON(500, "Server side error")
			return
		}
		c.JSON(200, result)
	})

	v1.POST("/mints/:id/reserve/spend", func(c *gin.Context) {
		var request postSpendRequest
		if err := c.BindJSON(&request); err != nil {
			c.JSON(400, "Malformed body request")
			return
		}

		spend, err := wallet.Reserve.SpendFromReserve(c.Request.Context(), c.Param("id"), request.Amount)
		if err != nil {
			wallet.Logger.Error("wallet.Reserve.SpendFromReserve", slog.Any("error", err))
			c.JSON(500, "Server side error")
			return
		}
		if spend == nil {
			// fall back to an online payment or a smaller amount
			c.JSON(409, gin.H{"covered": false})
			return
		}

		c.JSON(200, spend)
	})
}
