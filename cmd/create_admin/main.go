// Command create_admin bootstraps the first admin account.
//
//	create_admin -email admin@example.com -first Awa -last Diop
//
// The password is read from ADMIN_PASSWORD, or from -password.
package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/xelth-com/commissariat/internal/auth"
	"github.com/xelth-com/commissariat/internal/config"
	"github.com/xelth-com/commissariat/internal/database"
	"github.com/xelth-com/commissariat/internal/logger"
	"github.com/xelth-com/commissariat/internal/services/accounts"
	"github.com/xelth-com/commissariat/internal/store"
)

func main() {
	email := flag.String("email", "", "admin email (required)")
	first := flag.String("first", "Admin", "first name")
	last := flag.String("last", "Commissariat", "last name")
	password := flag.String("password", os.Getenv("ADMIN_PASSWORD"), "admin password, defaults to $ADMIN_PASSWORD")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}
	lg := logger.New("create_admin", cfg.LogLevel)
	log := lg.Component("bootstrap")

	if *email == "" || *password == "" {
		flag.Usage()
		os.Exit(2)
	}

	db, err := database.Connect(cfg.Database, lg)
	if err != nil {
		log.WithError(err).Fatal("Failed to connect to database")
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		log.WithError(err).Fatal("Migration failed")
	}

	// The token service is never used for issuing here
	svc := accounts.NewService(store.NewGorm(db.DB), auth.NewHasher(cfg.Auth.BcryptCost), auth.NewTokenService(cfg.Auth, nil), lg)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	a, err := svc.Bootstrap(ctx, accounts.RegisterInput{
		FirstName: *first,
		LastName:  *last,
		Email:     *email,
		Password:  *password,
	})
	if err != nil {
		log.WithError(err).Error("Admin not created")
		db.Close()
		os.Exit(1)
	}
	log.WithFields(logrus.Fields{"account_id": a.ID, "email": a.Email}).Info("Admin account created")
}
