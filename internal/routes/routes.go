package routes

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/satchelwallet/satchel/internal/database"
	"github.com/satchelwallet/satchel/internal/ledger"
	"github.com/satchelwallet/satchel/internal/mintclient"
	"github.com/satchelwallet/satchel/internal/reserve"
)

// Wallet bundles the services the HTTP surface exposes.
type Wallet struct {
	Ledger  *ledger.Ledger
	Reserve *reserve.Manager
	Client  mintclient.MintClient
	DB      database.WalletDB
	Logger  *slog.Logger
}

func V1Routes(r *gin.Engine, wallet *Wallet) {
	v1MintRoutes(r, wallet)
	v1LedgerRoutes(r, wallet)
	v1ReserveRoutes(r, wallet)
}
