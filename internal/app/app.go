// Package app boots the ledger engine: configuration, logging, storage,
// services, HTTP surface, and background workers.
package app

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mps-suite/mps-engine/internal/binding"
	"github.com/mps-suite/mps-engine/internal/config"
	"github.com/mps-suite/mps-engine/internal/db"
	internalhttp "github.com/mps-suite/mps-engine/internal/http"
	"github.com/mps-suite/mps-engine/internal/http/api/common"
	"github.com/mps-suite/mps-engine/internal/ledger"
	"github.com/mps-suite/mps-engine/internal/models"
	"github.com/mps-suite/mps-engine/internal/policy"
	"github.com/mps-suite/mps-engine/internal/qrtoken"
	"github.com/mps-suite/mps-engine/internal/security"
	"github.com/mps-suite/mps-engine/internal/settlement"
	"github.com/mps-suite/mps-engine/internal/txengine"
	"github.com/mps-suite/mps-engine/internal/util"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
	"gorm.io/gorm"
)

// Migrate opens the database and runs schema migrations.
func Migrate(ctx context.Context, configPath string) error {
	cfg, errLoad := config.Load(configPath)
	if errLoad != nil {
		return errLoad
	}
	conn, errOpen := db.Open(cfg.DatabaseDSN)
	if errOpen != nil {
		return errOpen
	}
	return db.Migrate(conn)
}

// RunServer boots the engine and serves until ctx is cancelled.
func RunServer(ctx context.Context, configPath string) error {
	cfg, errLoad := config.Load(configPath)
	if errLoad != nil {
		return errLoad
	}
	setupLogging(cfg.Log)
	log.Debugf("session signing secret %s", util.MaskSecret(cfg.JWT.Secret))

	conn, errOpen := db.Open(cfg.DatabaseDSN)
	if errOpen != nil {
		return errOpen
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		return errMigrate
	}
	if errSeed := seedAdmin(ctx, conn, cfg); errSeed != nil {
		return errSeed
	}

	policy.SetDefaults(policy.Defaults{
		QRSingleUse:          cfg.Policy.QRSingleUse,
		RechargeAwardsPoints: cfg.Policy.RechargeAwardsPoints,
	})
	if errRefresh := policy.Refresh(ctx, conn); errRefresh != nil {
		return errRefresh
	}

	rdb := openRedis(ctx, cfg.Redis)
	if rdb != nil {
		defer func() { _ = rdb.Close() }()
	}

	cardLedger := ledger.New(conn)
	tokens := qrtoken.NewManager(conn, rdb)
	engine := txengine.New(conn, cardLedger, tokens)
	bindings := binding.NewManager(conn)
	settlements := settlement.NewService(conn)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	internalhttp.Register(router, common.Deps{
		DB:          conn,
		JWT:         cfg.JWT,
		QR:          cfg.QR,
		Engine:      engine,
		Ledger:      cardLedger,
		Tokens:      tokens,
		Bindings:    bindings,
		Settlements: settlements,
	})

	if sweeper := qrtoken.NewSweeper(tokens, cfg.QR.SweepInterval, cfg.QR.SweepTTL); sweeper != nil {
		sweeper.Start(ctx)
	}

	server := &http.Server{Addr: cfg.ListenAddr, Handler: router}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	log.Infof("ledger engine listening on %s (db=%s)", cfg.ListenAddr, db.DialectName(conn))
	if errServe := server.ListenAndServe(); errServe != nil && !errors.Is(errServe, http.ErrServerClosed) {
		return errServe
	}
	return nil
}

// setupLogging configures logrus level and optional rotating file
// output.
func setupLogging(cfg config.LogConfig) {
	level, errParse := log.ParseLevel(strings.TrimSpace(cfg.Level))
	if errParse != nil {
		level = log.InfoLevel
	}
	log.SetLevel(level)
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	if strings.TrimSpace(cfg.File) != "" {
		rotator := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    100, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
			Compress:   true,
		}
		log.SetOutput(io.MultiWriter(os.Stderr, rotator))
	}
}

// seedAdmin creates the bootstrap administrator when none exists.
func seedAdmin(ctx context.Context, conn *gorm.DB, cfg *config.Config) error {
	username := strings.TrimSpace(cfg.AdminUsername)
	password := strings.TrimSpace(cfg.AdminPassword)
	if username == "" || password == "" {
		return nil
	}

	var count int64
	if errCount := conn.WithContext(ctx).Model(&models.Admin{}).Count(&count).Error; errCount != nil {
		return errCount
	}
	if count > 0 {
		return nil
	}

	hash, errHash := security.HashPassword(password)
	if errHash != nil {
		return errHash
	}
	admin := models.Admin{Username: username, Password: hash}
	if errCreate := conn.WithContext(ctx).Create(&admin).Error; errCreate != nil {
		return errCreate
	}
	log.Infof("seeded bootstrap admin %q", username)
	return nil
}

// openRedis connects the optional QR token mirror. Failures degrade to
// database-only validation instead of aborting startup.
func openRedis(ctx context.Context, cfg config.RedisConfig) *redis.Client {
	if strings.TrimSpace(cfg.Addr) == "" {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if errPing := client.Ping(pingCtx).Err(); errPing != nil {
		log.Warnf("redis unavailable, qr token mirror disabled: %v", errPing)
		_ = client.Close()
		return nil
	}
	return client
}
