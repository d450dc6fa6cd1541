package main

import (
	"context"
	"crypto/rand"
	"errors"
	"math/big"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/zerynth/lib-quectel-ug96/internal/api"
	"github.com/zerynth/lib-quectel-ug96/internal/auth"
	"github.com/zerynth/lib-quectel-ug96/internal/config"
	"github.com/zerynth/lib-quectel-ug96/internal/logic"
	"github.com/zerynth/lib-quectel-ug96/internal/mccmnc"
	"github.com/zerynth/lib-quectel-ug96/internal/modem"
	"github.com/zerynth/lib-quectel-ug96/internal/repository"
	"github.com/zerynth/lib-quectel-ug96/internal/worker"
	"github.com/zerynth/lib-quectel-ug96/pkg/logger"
)

func main() {
	config.LoadConfig()
	cfg := config.AppConfig

	logger.InitLogger(cfg.Log.Level)
	logger.Log.Info("Starting UG96 gateway...")

	if err := mccmnc.LoadOperators("mcc_mnc.json"); err != nil {
		logger.Log.Warnf("Failed to load MCC/MNC data: %v", err)
	}

	db, err := repository.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		logger.Log.Fatal(err)
	}
	modems := repository.NewModemRepository(db)
	smsRepo := repository.NewSMSRepository(db)
	hooks := repository.NewWebhookRepository(db)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	drv, err := modem.New(ctx, cfg.Driver())
	if err != nil {
		logger.Log.Fatalf("Failed to open modem: %v", err)
	}
	defer drv.Close()
	if err := drv.Start(ctx); err != nil {
		logger.Log.Fatalf("Modem did not answer: %v", err)
	}
	if cfg.Modem.AttachOnStart {
		if err := drv.Attach(ctx, cfg.Modem.AccessPoint(), cfg.Modem.AttachTimeout); err != nil {
			logger.Log.Errorf("Attach to %q failed: %v", cfg.Modem.APN, err)
		}
	}

	w := worker.NewModemWorker(drv, modems, smsRepo, logic.NewWebhookService(hooks), worker.Options{
		PortName:     cfg.Serial.Port,
		ScanInterval: cfg.Worker.ScanInterval,
		DeleteRead:   cfg.Worker.DeleteRead,
	})
	w.Start()

	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := api.NewRouter(api.Deps{
		Modem:         drv,
		Status:        w,
		Issuer:        newIssuer(cfg.Auth),
		Modems:        modems,
		SMS:           smsRepo,
		Webhooks:      hooks,
		APN:           cfg.Modem.AccessPoint(),
		AttachTimeout: cfg.Modem.AttachTimeout,
	})

	srv := &http.Server{Addr: cfg.Server.Port, Handler: router}
	go func() {
		logger.Log.Infof("Server listening on %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Log.Errorf("Server failed: %v", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Log.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Log.Warnf("HTTP shutdown: %v", err)
	}
	w.Stop()
	if err := modems.MarkAllOffline(); err != nil {
		logger.Log.Warnf("Mark modems offline: %v", err)
	}
}

func randomString(n int) string {
	const chars = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	ret := make([]byte, n)
	for i := range ret {
		num, err := rand.Int(rand.Reader, big.NewInt(int64(len(chars))))
		if err != nil {
			logger.Log.Fatalf("Failed to generate random string: %v", err)
		}
		ret[i] = chars[num.Int64()]
	}
	return string(ret)
}

// newIssuer builds the token issuer. Without configured users a random admin
// password is generated and logged once.
func newIssuer(ac config.AuthConfig) *auth.Issuer {
	secret := []byte(ac.JWTSecret)
	if len(secret) == 0 {
		secret = []byte(randomString(32))
		logger.Log.Warn("auth.jwt_secret not set, tokens will not survive a restart")
	}

	accounts := make([]auth.Account, 0, len(ac.Users))
	for _, u := range ac.Users {
		accounts = append(accounts, auth.Account{Username: u.Username, PasswordHash: u.PasswordHash, Role: u.Role})
	}
	if len(accounts) == 0 {
		randPw := randomString(12)
		hash, err := auth.HashPassword(randPw)
		if err != nil {
			logger.Log.Fatalf("Failed to hash password: %v", err)
		}
		accounts = append(accounts, auth.Account{Username: "admin", PasswordHash: hash, Role: "admin"})
		logger.Log.Warnf("INITIAL ADMIN CREATED. Username: admin, Password: %s", randPw)
	}
	return auth.NewIssuer(secret, ac.TokenTTL, accounts)
}
