package routes

import (
	"errors"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/satchelwallet/satchel/api/cashu"
)

type postMintRequest struct {
	Url        string `json:"url" binding:"required"`
	TrustLevel string `json:"trust_level"`
}

type putMintTrustRequest struct {
	TrustLevel string `json:"trust_level" binding:"required"`
}

type postQuoteRequest struct {
	Amount uint64 `json:"amount" binding:"required"`
}

type postRedeemRequest struct {
	Quote  string `json:"quote" binding:"required"`
	Amount uint64 `json:"amount" binding:"required"`
}

// getMint resolves the :id path param or writes the error response itself.
func getMint(c *gin.Context, wallet *Wallet) (cashu.Mint, error) {
	ctx := c.Request.Context()
	tx, err := wallet.DB.GetTx(ctx)
	if err != nil {
		wallet.Logger.Error("wallet.DB.GetTx(ctx)", slog.Any("error", err))
		c.JSON(500, "Server side error")
		return cashu.Mint{}, err
	}
	defer wallet.DB.Rollback(ctx, tx)

	mint, err := wallet.DB.GetMintById(tx, c.Param("id"))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			c.JSON(404, cashu.ErrMintNotFound.Error())
			return mint, err
		}
		wallet.Logger.Error("wallet.DB.GetMintById(tx, c.Param(\"id\"))", slog.Any("error", err))
		c.JSON(500, "Server side error")
		return mint, err
	}
	if err := wallet.DB.Commit(ctx, tx); err != nil {
		wallet.Logger.Error("wallet.DB.Commit(ctx, tx)", slog.Any("error", err))
		c.JSON(500, "Server side error")
		return mint, err
	}
	return mint, nil
}

func v1MintRoutes(r *gin.Engine, wallet *Wallet) {
	v1 := r.Group("/v1")

	v1.GET("/mints", func(c *gin.Context) {
		tx, err := wallet.DB.GetTx(c.Request.Context())
		if err != nil {
			wallet.Logger.Error("wallet.DB.GetTx(c.Request.Context())", slog.Any("error", err))
			c.JSON(500, "Server side error")
			return
		}
		defer wallet.DB.Rollback(c.Request.Context(), tx)

		mints, err := wallet.DB.GetAllMints(tx)
		if err != nil {
			wallet.Logger.Error("wallet.DB.GetAllMints(tx)", slog.Any("error", err))
			c.JSON(500, "Server side error")
			return
		}
		if err := wallet.DB.Commit(c.Request.Context(), tx); err != nil {
			wallet.Logger.Error("wallet.DB.Commit(c.Request.Context(), tx)", slog.Any("error", err))
			c.JSON(500, "Server side error")
			return
		}

		c.JSON(200, mints)
	})

	v1.POST("/mints", func(c *gin.Context) {
		var request postMintRequest
		if err := c.BindJSON(&request); err != nil {
			c.JSON(400, "Malformed body request")
			return
		}

		trustLevel := cashu.TrustUntrusted
		if request.TrustLevel != "" {
			parsed, err := cashu.TrustLevelFromString(request.TrustLevel)
			if err != nil {
				c.JSON(400, err.Error())
				return
			}
			trustLevel = parsed
		}

		ctx := c.Request.Context()
		tx, err := wallet.DB.GetTx(ctx)
		if err != nil {
			wallet.Logger.Error("wallet.DB.GetTx(ctx)", slog.Any("error", err))
			c.JSON(500, "Server side error")
			return
		}
		defer wallet.DB.Rollback(ctx, tx)

		if existing, err := wallet.DB.GetMintByUrl(tx, request.Url); err == nil {
			c.JSON(200, existing)
			return
		} else if !errors.Is(err, pgx.ErrNoRows) {
			wallet.Logger.Error("wallet.DB.GetMintByUrl(tx, request.Url)", slog.Any("error", err))
			c.JSON(500, "Server side error")
			return
		}

		mint := cashu.Mint{
			Id:         uuid.NewString(),
			Url:        request.Url,
			TrustLevel: trustLevel,
		}
		if err := wallet.DB.SaveMint(tx, mint); err != nil {
			wallet.Logger.Error("wallet.DB.SaveMint(tx, mint)", slog.Any("error", err))
			c.JSON(500, "Server side error")
			return
		}

		// record the mint's active keyset while we are online
		keys, err := wallet.Client.ActiveKeys(ctx, mint.Url)
		if err != nil {
			wallet.Logger.Warn("could not fetch mint keys, keyset sync deferred",
				slog.String("url", mint.Url), slog.Any("error", err))
		} else {
			keyset := cashu.Keyset{
				Id:               uuid.NewString(),
				MintId:           mint.Id,
				ExternalKeysetId: keys.Id,
				Active:           true,
				CreatedAt:        time.Now().Unix(),
			}
			if err := wallet.DB.SaveKeyset(tx, keyset); err != nil {
				wallet.Logger.Error("wallet.DB.SaveKeyset(tx, keyset)", slog.Any("error", err))
				c.JSON(500, "Server side error")
				return
			}
			if err := wallet.DB.UpdateMintLastSynced(tx, mint.Id, time.Now().Unix()); err != nil {
				wallet.Logger.Error("wallet.DB.UpdateMintLastSynced(tx, mint.Id, time.Now().Unix())", slog.Any("error", err))
				c.JSON(500, "Server side error")
				return
			}
		}

		if err := wallet.DB.Commit(ctx, tx); err != nil {
			wallet.Logger.Error("wallet.DB.Commit(ctx, tx)", slog.Any("error", err))
			c.JSON(500, "Server side error")
			return
		}

		c.JSON(201, mint)
	})

	v1.PUT("/mints/:id/trust", func(c *gin.Context) {
		var request putMintTrustRequest
		if err := c.BindJSON(&request); err != nil {
			c.JSON(400, "Malformed body request")
			return
		}

		trustLevel, err := cashu.TrustLevelFromString(request.TrustLevel)
		if err != nil {
			c.JSON(400, err.Error())
			return
		}

		ctx := c.Request.Context()
		tx, err := wallet.DB.GetTx(ctx)
		if err != nil {
			wallet.Logger.Error("wallet.DB.GetTx(ctx)", slog.Any("error", err))
			c.JSON(500, "Server side error")
			return
		}
		defer wallet.DB.Rollback(ctx, tx)

		mintId := c.Param("id")
		if _, err := wallet.DB.GetMintById(tx, mintId); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				c.JSON(404, cashu.ErrMintNotFound.Error())
				return
			}
			wallet.Logger.Error("wallet.DB.GetMintById(tx, mintId)", slog.Any("error", err))
			c.JSON(500, "Server side error")
			return
		}

		if err := wallet.DB.UpdateMintTrust(tx, mintId, trustLevel); err != nil {
			wallet.Logger.Error("wallet.DB.UpdateMintTrust(tx, mintId, trustLevel)", slog.Any("error", err))
			c.JSON(500, "Server side error")
			return
		}
		if err := wallet.DB.Commit(ctx, tx); err != nil {
			wallet.Logger.Error("wallet.DB.Commit(ctx, tx)", slog.Any("error", err))
			c.JSON(500, "Server side error")
			return
		}

		c.JSON(200, gin.H{"id": mintId, "trust_level": trustLevel})
	})

	// sync refreshes the mint's keysets; a rotated keyset deactivates its
	// predecessors
	v1.POST("/mints/:id/sync", func(c *gin.Context) {
		ctx := c.Request.Context()
		mint, err := getMint(c, wallet)
		if err != nil {
			return
		}

		keys, err := wallet.Client.ActiveKeys(ctx, mint.Url)
		if err != nil {
			wallet.Logger.Error("wallet.Client.ActiveKeys", slog.Any("error", err))
			c.JSON(502, err.Error())
			return
		}

		tx, err := wallet.DB.GetTx(ctx)
		if err != nil {
			wallet.Logger.Error("wallet.DB.GetTx(ctx)", slog.Any("error", err))
			c.JSON(500, "Server side error")
			return
		}
		defer wallet.DB.Rollback(ctx, tx)

		keysets, err := wallet.DB.GetKeysetsByMint(tx, mint.Id)
		if err != nil {
			wallet.Logger.Error("wallet.DB.GetKeysetsByMint(tx, mint.Id)", slog.Any("error", err))
			c.JSON(500, "Server side error")
			return
		}

		active := cashu.Keyset{}
		for _, keyset := range keysets {
			if keyset.ExternalKeysetId == keys.Id {
				active = keyset
				break
			}
		}
		if active.Id == "" {
			active = cashu.Keyset{
				Id:               uuid.NewString(),
				MintId:           mint.Id,
				ExternalKeysetId: keys.Id,
				CreatedAt:        time.Now().Unix(),
			}
			if err := wallet.DB.SaveKeyset(tx, active); err != nil {
				wallet.Logger.Error("wallet.DB.SaveKeyset(tx, active)", slog.Any("error", err))
				c.JSON(500, "Server side error")
				return
			}
		}

		if err := wallet.DB.ActivateKeyset(tx, mint.Id, active.Id); err != nil {
			wallet.Logger.Error("wallet.DB.ActivateKeyset(tx, mint.Id, active.Id)", slog.Any("error", err))
			c.JSON(500, "Server side error")
			return
		}
		if err := wallet.DB.UpdateMintLastSynced(tx, mint.Id, time.Now().Unix()); err != nil {
			wallet.Logger.Error("wallet.DB.UpdateMintLastSynced(tx, mint.Id, time.Now().Unix())", slog.Any("error", err))
			c.JSON(500, "Server side error")
			return
		}
		if err := wallet.DB.Commit(ctx, tx); err != nil {
			wallet.Logger.Error("wallet.DB.Commit(ctx, tx)", slog.Any("error", err))
			c.JSON(500, "Server side error")
			return
		}

		c.JSON(200, gin.H{"keyset": keys.Id})
	})

	// funding: request a quote, pay its invoice out of band, then redeem it
	v1.POST("/mints/:id/quote", func(c *gin.Context) {
		var request postQuoteRequest
		if err := c.BindJSON(&request); err != nil {
			c.JSON(400, "Malformed body request")
			return
		}

		ctx := c.Request.Context()
		mint, err := getMint(c, wallet)
		if err != nil {
			return
		}

		quote, err := wallet.Client.RequestMintQuote(ctx, mint.Url, request.Amount)
		if err != nil {
			wallet.Logger.Error("wallet.Client.RequestMintQuote", slog.Any("error", err))
			c.JSON(502, err.Error())
			return
		}

		c.JSON(200, quote)
	})

	v1.POST("/mints/:id/mint", func(c *gin.Context) {
		var request postRedeemRequest
		if err := c.BindJSON(&request); err != nil {
			c.JSON(400, "Malformed body request")
			return
		}

		ctx := c.Request.Context()
		mint, err := getMint(c, wallet)
		if err != nil {
			return
		}

		data, err := wallet.Client.MintProofs(ctx, mint.Url, request.Quote, request.Amount)
		if err != nil {
			var errorResponse cashu.ErrorResponse
			if errors.As(err, &errorResponse) {
				c.JSON(400, errorResponse)
				return
			}
			wallet.Logger.Error("wallet.Client.MintProofs", slog.Any("error", err))
			c.JSON(502, err.Error())
			return
		}

		proofs, err := wallet.Ledger.Create(ctx, mint.Id, data, false)
		if err != nil {
			wallet.Logger.Error("wallet.Ledger.Create", slog.Any("error", err))
			c.JSON(500, "Server side error")
			return
		}

		c.JSON(201, gin.H{"proofs": proofs, "amount": proofs.Amount()})
	})

	v1.GET("/mints/:id/keysets", func(c *gin.Context) {
		ctx := c.Request.Context()
		tx, err := wallet.DB.GetTx(ctx)
		if err != nil {
			wallet.Logger.Error("wallet.DB.GetTx(ctx)", slog.Any("error", err))
			c.JSON(500, "Server side error")
			return
		}
		defer wallet.DB.Rollback(ctx, tx)

		keysets, err := wallet.DB.GetKeysetsByMint(tx, c.Param("id"))
		if err != nil {
			wallet.Logger.Error("wallet.DB.GetKeysetsByMint(tx, c.Param(\"id\"))", slog.Any("error", err))
			c.JSON(500, "Server side error")
			return
		}
		if err := wallet.DB.Commit(ctx, tx); err != nil {
			wallet.Logger.Error("wallet.DB.Commit(ctx, tx)", slog.Any("error", err))
			c.JSON(500, "Server side error")
			return
		}

		c.JSON(200, keysets)
	})
}
