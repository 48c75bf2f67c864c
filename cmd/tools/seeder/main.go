package main

import (
	"context"
	"errors"
	"log"
	"os"
	"strings"
	"time"

	"github.com/alexedwards/argon2id"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/bibek-sh/backend-pasal/internal/auth"
	dbpkg "github.com/bibek-sh/backend-pasal/internal/db"
	"github.com/bibek-sh/backend-pasal/internal/money"
	"github.com/bibek-sh/backend-pasal/internal/promo"
	"github.com/bibek-sh/backend-pasal/internal/settings"
)

// Seeds an admin account, the default settings documents, and a couple of
// starter promo codes so a fresh deployment is usable immediately.
func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := dbpkg.Migrate(dbURL); err != nil {
		log.Fatalf("Failed to apply migrations: %v", err)
	}

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		log.Fatalf("Failed to open DB: %v", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		log.Fatalf("Failed to ping DB: %v", err)
	}

	seedAdmin(ctx, pool)
	seedSettings(ctx, pool)
	seedPromos(ctx, pool)

	log.Println("Seeding completed successfully!")
}

func seedAdmin(ctx context.Context, pool *pgxpool.Pool) {
	email := strings.TrimSpace(os.Getenv("SEED_ADMIN_EMAIL"))
	if email == "" {
		email = "admin@pasal.local"
	}
	password := os.Getenv("SEED_ADMIN_PASSWORD")
	if password == "" {
		log.Println("SEED_ADMIN_PASSWORD not set, skipping admin account")
		return
	}

	store := &auth.Store{DB: pool}
	if _, err := store.AdminByEmail(ctx, email); err == nil {
		log.Printf("Admin %s already exists", email)
		return
	} else if !errors.Is(err, auth.ErrAccountMissing) {
		log.Fatalf("Failed to look up admin: %v", err)
	}

	hash, err := argon2id.CreateHash(password, argon2id.DefaultParams)
	if err != nil {
		log.Fatalf("Failed to hash password: %v", err)
	}
	if _, err := store.CreateAdmin(ctx, email, hash); err != nil {
		log.Fatalf("Failed to create admin: %v", err)
	}
	log.Printf("Created admin %s", email)
}

func seedSettings(ctx context.Context, pool *pgxpool.Pool) {
	store := &settings.Store{DB: pool}
	for key, value := range settings.Defaults() {
		if err := store.Put(ctx, key, value); err != nil {
			log.Fatalf("Failed to seed settings %q: %v", key, err)
		}
	}
	log.Println("Seeded default settings")
}

func seedPromos(ctx context.Context, pool *pgxpool.Pool) {
	store := &promo.Store{DB: pool}
	welcome := promo.Promo{
		Code:           "WELCOME10",
		Description:    "10% off your first order",
		Kind:           promo.KindPercentage,
		PercentBps:     money.BpsFromPercent(10),
		FirstOrderOnly: true,
		Active:         true,
	}
	dashain := promo.Promo{
		Code:        "DASHAIN100",
		Description: "Rs 100 off orders over Rs 1000",
		Kind:        promo.KindFixed,
		Value:       money.FromRupees(100),
		MinOrder:    money.FromRupees(1000),
		Active:      true,
	}
	for _, p := range []promo.Promo{welcome, dashain} {
		if _, err := store.Create(ctx, p); err != nil {
			if dbpkg.IsUniqueViolation(err) {
				log.Printf("Promo %s already exists", p.Code)
				continue
			}
			log.Fatalf("Failed to seed promo %s: %v", p.Code, err)
		}
		log.Printf("Seeded promo %s", p.Code)
	}
}
