package routes

import (
	"errors"
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/satchelwallet/satchel/api/cashu"
	"github.com/satchelwallet/satchel/internal/ledger"
)

type postProofsRequest struct {
	Proofs   []cashu.ProofData `json:"proofs" binding:"required"`
	Reserved bool              `json:"reserved"`
}

type postClaimRequest struct {
	Ids     []string `json:"ids" binding:"required"`
	Purpose string   `json:"purpose" binding:"required"`
}

type postFinalizeRequest struct {
	Outcome string `json:"outcome" binding:"required"`
}

func v1LedgerRoutes(r *gin.Engine, wallet *Wallet) {
	v1 := r.Group("/v1")

	v1.GET("/balance", func(c *gin.Context) {
		balances, err := wallet.Ledger.BalanceByMint(c.Request.Context())
		if err != nil {
			wallet.Logger.Error("wallet.Ledger.BalanceByMint(c.Request.Context())", slog.Any("error", err))
			c.JSON(500, "Server side error")
			return
		}

		total := uint64(0)
		for _, balance := range balances {
			total += balance.Balance
		}

		c.JSON(200, gin.H{"total": total, "mints": balances})
	})

	v1.GET("/mints/:id/proofs", func(c *gin.Context) {
		var state *cashu.ProofState
		if value := c.Query("state"); value != "" {
			parsed, err := cashu.ProofStateFromString(value)
			if err != nil {
				c.JSON(400, err.Error())
				return
			}
			state = &parsed
		}
		var reserved *bool
		switch c.Query("reserved") {
		case "true":
			value := true
			reserved = &value
		case "false":
			value := false
			reserved = &value
		}

		proofs, err := wallet.Ledger.ProofsByMint(c.Request.Context(), c.Param("id"), state, reserved)
		if err != nil {
			wallet.Logger.Error("wallet.Ledger.ProofsByMint", slog.Any("error", err))
			c.JSON(500, "Server side error")
			return
		}

		c.JSON(200, gin.H{"proofs": proofs, "amount": proofs.Amount()})
	})

	// import proofs received out of band, a token someone handed us
	v1.POST("/mints/:id/proofs", func(c *gin.Context) {
		var request postProofsRequest
		if err := c.BindJSON(&request); err != nil {
			c.JSON(400, "Malformed body request")
			return
		}

		proofs, err := wallet.Ledger.Create(c.Request.Context(), c.Param("id"), request.Proofs, request.Reserved)
		if err != nil {
			switch {
			case errors.Is(err, cashu.ErrDuplicateSecret):
				c.JSON(409, cashu.ErrDuplicateSecret.Error())
			case errors.Is(err, cashu.ErrMintNotFound):
				c.JSON(404, cashu.ErrMintNotFound.Error())
			default:
				wallet.Logger.Error("wallet.Ledger.Create", slog.Any("error", err))
				c.JSON(500, "Server side error")
			}
			return
		}

		c.JSON(201, gin.H{"proofs": proofs, "amount": proofs.Amount()})
	})

	// claim locks proofs for a send or swap; the transport layer finalizes
	// once the transfer resolves
	v1.POST("/mints/:id/claim", func(c *gin.Context) {
		var request postClaimRequest
		if err := c.BindJSON(&request); err != nil {
			c.JSON(400, "Malformed body request")
			return
		}

		var to cashu.ProofState
		switch request.Purpose {
		case "send":
			to = cashu.PROOF_PENDING_SEND
		case "swap":
			to = cashu.PROOF_PENDING_SWAP
		default:
			c.JSON(400, cashu.ErrNotPendingState.Error())
			return
		}

		owner, claimed, err := wallet.Ledger.Claim(c.Request.Context(), request.Ids, to)
		if err != nil {
			wallet.Logger.Error("wallet.Ledger.Claim", slog.Any("error", err))
			c.JSON(500, "Server side error")
			return
		}
		if !claimed {
			c.JSON(409, gin.H{"claimed": false})
			return
		}

		c.JSON(200, gin.H{"claimed": true, "owner": owner})
	})

	v1.POST("/transactions/:owner/finalize", func(c *gin.Context) {
		var request postFinalizeRequest
		if err := c.BindJSON(&request); err != nil {
			c.JSON(400, "Malformed body request")
			return
		}

		var outcome ledger.Outcome
		switch request.Outcome {
		case "committed":
			outcome = ledger.Committed
		case "aborted":
			outcome = ledger.Aborted
		default:
			c.JSON(400, "Outcome must be committed or aborted")
			return
		}

		released, err := wallet.Ledger.Finalize(c.Request.Context(), c.Param("owner"), outcome)
		if err != nil {
			wallet.Logger.Error("wallet.Ledger.Finalize", slog.Any("error", err))
			c.JSON(500, "Server side error")
			return
		}

		c.JSON(200, gin.H{"released": released})
	})
}
