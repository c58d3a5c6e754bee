// Package v1 provides HTTP API version 1.
package v1

import (
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"

	"lotledger/internal/domain/allocation"
	"lotledger/internal/domain/catalog"
	"lotledger/internal/domain/damage"
	"lotledger/internal/domain/ledger"
	"lotledger/internal/domain/lot"
	"lotledger/internal/domain/receipt"
	"lotledger/internal/domain/serial"
	"lotledger/internal/domain/stockcount"
	"lotledger/internal/infrastructure/http/v1/handlers"
	"lotledger/internal/infrastructure/http/v1/middleware"
	"lotledger/internal/infrastructure/storage/postgres"
	"lotledger/internal/infrastructure/storage/postgres/catalog_repo"
	"lotledger/internal/infrastructure/storage/postgres/document_repo"
	"lotledger/internal/infrastructure/storage/postgres/inventory_repo"
	"lotledger/pkg/logger"
	"lotledger/pkg/numerator"
)

// RouterConfig holds router dependencies.
type RouterConfig struct {
	// Pool is the database connection pool (health checks, numerator).
	Pool *pgxpool.Pool

	// TxManager manages database transactions for all repositories.
	TxManager *postgres.TxManager

	// Logger for request logging.
	Logger *logger.Logger

	// Numerator for document number generation.
	Numerator *numerator.Service

	// Audit records document mutations. Optional.
	Audit *postgres.AuditService
}

// NewRouter creates and configures the Gin router.
func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	// Global middleware (order matters!)
	router.Use(middleware.Recovery())
	router.Use(middleware.Trace())
	router.Use(middleware.ActorContext())
	router.Use(middleware.Logger(cfg.Logger))
	router.Use(middleware.ErrorHandler())

	// Health endpoints
	healthHandler := handlers.NewHealthHandler(cfg.Pool)
	healthHandler.RegisterRoutes(router.Group("/health"))

	// Repositories
	productRepo := catalog_repo.NewProductRepo(cfg.TxManager)
	lotRepo := inventory_repo.NewLotRepo(cfg.TxManager)
	ledgerRepo := inventory_repo.NewLedgerRepo(cfg.TxManager)
	serialRepo := inventory_repo.NewSerialRepo(cfg.TxManager)
	damageRepo := inventory_repo.NewDamageRepo(cfg.TxManager)
	receiptRepo := document_repo.NewReceiptRepo(cfg.TxManager)
	allocationRepo := document_repo.NewAllocationRepo(cfg.TxManager)
	stockCountRepo := document_repo.NewStockCountRepo(cfg.TxManager)

	// Services. The allocation service doubles as the return order creator
	// for damage aggregation and receipt damage synthesis.
	catalogService := catalog.NewService(productRepo)
	lotService := lot.NewService(lotRepo, cfg.TxManager)
	ledgerService := ledger.NewService(ledgerRepo)
	serialService := serial.NewService(serialRepo)
	allocationService := allocation.NewService(
		allocationRepo, lotRepo, serialService, ledgerService,
		productRepo, cfg.Numerator, cfg.TxManager,
	)
	damageService := damage.NewService(damageRepo, allocationService, cfg.TxManager)
	receiptService := receipt.NewService(
		receiptRepo, lotRepo, serialService, ledgerService, productRepo,
		damageService, allocationService, cfg.Numerator, cfg.TxManager,
	)
	stockCountService := stockcount.NewService(
		stockCountRepo, lotRepo, ledgerService, productRepo,
		damageService, cfg.Numerator, cfg.TxManager,
	)

	// API v1
	base := handlers.NewBaseHandler()
	api := router.Group("/api/v1")
	{
		handlers.NewProductHandler(base, catalogService).
			RegisterRoutes(api.Group("/products"))
		handlers.NewReceiptHandler(base, receiptService, cfg.Audit).
			RegisterRoutes(api.Group("/receipts"))
		handlers.NewAllocationHandler(base, allocationService, cfg.Audit).
			RegisterRoutes(api.Group("/allocations"))
		handlers.NewStockCountHandler(base, stockCountService, cfg.Audit).
			RegisterRoutes(api.Group("/stock-counts"))
		handlers.NewDamageHandler(base, damageService).
			RegisterRoutes(api.Group("/damage"))
		handlers.NewInventoryHandler(base, ledgerService, lotService).
			RegisterRoutes(api.Group("/inventory"))

		if cfg.Audit != nil {
			handlers.NewAuditHandler(base, cfg.Audit).
				RegisterRoutes(api.Group("/audit"))
		}
	}

	return router
}
