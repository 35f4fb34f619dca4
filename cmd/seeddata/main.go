package main

import (
	"context"
	"database/sql"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"go.uber.org/zap"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/pelino250/safeboda/internal/rider/domain"
	"github.com/pelino250/safeboda/internal/rider/repository"
	"github.com/pelino250/safeboda/pkg/observability"
)

// Kigali city centre; seeded riders are scattered around it.
const (
	baseLat = -1.9441
	baseLng = 30.0619
)

var statuses = []domain.VerificationStatus{
	domain.VerificationPending,
	domain.VerificationApproved,
	domain.VerificationRejected,
	domain.VerificationSuspended,
}

var firstNames = []string{"Eric", "Claudine", "Jean", "Aline", "Patrick", "Diane", "Emmanuel", "Grace", "Olivier", "Chantal"}
var lastNames = []string{"Uwimana", "Mukamana", "Niyonzima", "Ingabire", "Habimana", "Uwase", "Ndayisaba", "Mutesi"}

func main() {
	logger := observability.SetupLogger("seed-data")
	defer logger.Sync() //nolint:errcheck

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		logger.Fatal("POSTGRES_DSN is required")
	}
	count := 25
	if v := os.Getenv("SEED_RIDERS"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			count = parsed
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		logger.Fatal("postgres connect", zap.Error(err))
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		logger.Fatal("postgres ping", zap.Error(err))
	}

	if os.Getenv("MIGRATE") == "true" {
		if err := applySchema(ctx, db); err != nil {
			logger.Fatal("apply schema", zap.Error(err))
		}
		logger.Info("schema applied")
	}

	repo := repository.NewPostgresRepository(db, "rider.events")
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	approved, listed := 0, 0
	for i := 0; i < count; i++ {
		rider := randomRider(rng, i)
		if _, err := repo.CreateRider(ctx, rider); err != nil {
			logger.Fatal("create rider", zap.Error(err))
		}
		if rider.VerificationStatus == domain.VerificationApproved {
			approved++
			if rider.Available {
				listed++
			}
		}
	}

	logger.Info("seed complete",
		zap.Int("riders", count),
		zap.Int("approved", approved),
		zap.Int("available_approved", listed))
}

func randomRider(rng *rand.Rand, i int) domain.Rider {
	// ~0.09 degrees is roughly 10 km; keeps everyone inside greater Kigali.
	loc := domain.GeoPoint{
		Lat: baseLat + (rng.Float64()-0.5)*0.18,
		Lng: baseLng + (rng.Float64()-0.5)*0.18,
	}
	return domain.Rider{
		FirstName:          firstNames[rng.Intn(len(firstNames))],
		LastName:           lastNames[rng.Intn(len(lastNames))],
		PhoneNumber:        fmt.Sprintf("+2507888%05d", i),
		LicenseNumber:      fmt.Sprintf("RW-LIC-%06d", rng.Intn(1000000)),
		VerificationStatus: statuses[rng.Intn(len(statuses))],
		Available:          rng.Intn(2) == 0,
		Location:           &loc,
		AverageRating:      3.0 + rng.Float64()*2.0,
		TotalRides:         int64(rng.Intn(500)),
	}
}

func applySchema(ctx context.Context, db *sql.DB) error {
	ddl, err := os.ReadFile(filepath.Join("migrations", "001_create_users.sql"))
	if err != nil {
		return fmt.Errorf("read migration: %w", err)
	}
	if _, err := db.ExecContext(ctx, string(ddl)); err != nil {
		return fmt.Errorf("exec migration: %w", err)
	}
	return nil
}
