package api

import (
	"database/sql"
	"fmt"
	"log"
	"net/http"

	db "github.com/CastPay/CastPay-Backend/db/sqlc"
	"github.com/CastPay/CastPay-Backend/models"
	"github.com/CastPay/CastPay-Backend/services/gateway"
	"github.com/CastPay/CastPay-Backend/services/ledger"
	"github.com/CastPay/CastPay-Backend/services/monitoring/logging"
	"github.com/CastPay/CastPay-Backend/services/notification"
	"github.com/CastPay/CastPay-Backend/services/redis"
	"github.com/CastPay/CastPay-Backend/services/security"
	"github.com/CastPay/CastPay-Backend/services/statistics"
	"github.com/CastPay/CastPay-Backend/services/wallet"
	"github.com/CastPay/CastPay-Backend/utils"
	"github.com/gin-gonic/gin"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

// / If there's a better place to access this
// / TODO, I feel the config should be the one accessible like this
var TokenController *utils.JWTToken

type Server struct {
	router     *gin.Engine
	config     *utils.Config
	logger     *logging.Logger
	wallet     *wallet.WalletService
	statistics *statistics.StatisticsService
}

func NewServer(c *utils.Config) *Server {
	conn, err := sql.Open(c.DBDriver, utils.GetDBSource(c, c.DBName))
	if err != nil {
		panic(fmt.Sprintf("Could not load DB: %v", err))
	}

	m, err := migrate.New(
		"file://db/migrations",
		utils.GetDBSource(c, c.DBName),
	)
	if err != nil {
		log.Fatalf("Unable to instantiate the database schema migrator - %v", err)
	}

	if err := m.Up(); err != nil {
		if err != migrate.ErrNoChange {
			log.Fatalf("Unable to migrate up to the latest database schema - %v", err)
		}
	}

	l := logging.NewLogger(c)
	store := ledger.NewSQLStore(db.NewStore(conn))

	gatewayClient := gateway.NewClient(gateway.Config{
		BaseURL:      c.GatewayBaseURL,
		MerchantCode: c.GatewayMerchantCode,
		SecretKey:    c.GatewaySecretKey,
		ReturnURL:    c.GatewayReturnURL,
		ExpiryWindow: c.GatewayExpiry(),
	})

	refs, err := utils.NewReferenceGenerator(c.SigningKey)
	if err != nil {
		panic(fmt.Sprintf("Could not initialise reference generator: %v", err))
	}

	notifier := notification.NewNotificationService(
		l,
		notification.NewPlunk(c),
		notification.NewTwilioSender(c),
	)

	// The balance cache is best-effort: an unreachable Redis only
	// removes the cache, it never blocks startup.
	var cache wallet.BalanceCache
	if redisService, err := redis.NewRedisService(c); err != nil {
		l.Warnf("redis unavailable, balance caching disabled: %v", err)
	} else {
		cache = redis.NewBalanceCache(redisService)
	}

	walletService, err := wallet.NewWalletService(
		store,
		gatewayClient,
		refs,
		notifier,
		cache,
		security.NewAttemptLimiter(),
		l,
		c,
	)
	if err != nil {
		panic(fmt.Sprintf("Could not initialise wallet service: %v", err))
	}

	g := gin.Default()
	g.Use(CORSMiddleware())
	g.Use(l.LoggingMiddleWare())
	registerValidators()

	TokenController = utils.NewJWTToken(c)

	return &Server{
		router:     g,
		config:     c,
		logger:     l,
		wallet:     walletService,
		statistics: statistics.NewStatisticsService(store),
	}
}

func (s *Server) Start() {

	dr := models.SuccessResponse{
		Status:  "success",
		Message: "Welcome to CastPay!",
		Version: utils.REVISION,
	}

	s.router.GET("/", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, dr)
	})

	/// Register Object Routers Below
	Wallet{}.router(s)
	Payment{}.router(s)

	s.router.Run(fmt.Sprintf(":%v", s.config.ServerPort))
}
