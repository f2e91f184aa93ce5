package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/prmjagdish/schedula/internal/config"
	"github.com/prmjagdish/schedula/internal/db"
	"github.com/prmjagdish/schedula/internal/logging"
)

const batchSize = 500

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load error")
	}
	logging.Init("seed", cfg.Env, cfg.LogLevel)
	log.Info().Msg("seed starting")

	doctors := getInt("SEED_DOCTORS", 50)
	patients := getInt("SEED_PATIENTS", 5000)
	days := getInt("SEED_SLOT_DAYS", 14)
	slotsPerDay := getInt("SEED_SLOTS_PER_DAY", 8)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN, 4)
	if err != nil {
		log.Fatal().Err(err).Msg("connect postgres")
	}
	defer pool.Close()

	if _, err := db.NewMigrator(pool).Up(ctx); err != nil {
		log.Fatal().Err(err).Msg("apply migrations")
	}

	faker := gofakeit.New(uint64(time.Now().UnixNano()))

	doctorIDs, err := seedDoctors(ctx, pool, faker, doctors)
	if err != nil {
		log.Fatal().Err(err).Msg("seed doctors")
	}
	if err := seedPatients(ctx, pool, faker, patients); err != nil {
		log.Fatal().Err(err).Msg("seed patients")
	}
	if err := seedSlots(ctx, pool, faker, doctorIDs, days, slotsPerDay); err != nil {
		log.Fatal().Err(err).Msg("seed slots")
	}

	log.Info().Msg("seed complete")
}

// insertInBatches runs insert for every index in [0, count), committing
// every batchSize rows.
func insertInBatches(ctx context.Context, pool *pgxpool.Pool, what string, count int, insert func(tx pgx.Tx, i int) error) error {
	for offset := 0; offset < count; offset += batchSize {
		end := min(offset+batchSize, count)

		err := db.WithTx(ctx, pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
			for i := offset; i < end; i++ {
				if err := insert(tx, i); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("insert %s: %w", what, err)
		}

		log.Info().Int("done", end).Int("total", count).Msgf("%s seeded", what)
	}
	return nil
}

func insertUser(ctx context.Context, tx pgx.Tx, faker *gofakeit.Faker, role string) (uuid.UUID, error) {
	id := uuid.New()
	_, err := tx.Exec(ctx, `
		INSERT INTO users (id, email, role) VALUES ($1, $2, $3)
	`, id, id.String()[:8]+"."+faker.Email(), role)
	return id, err
}

func seedDoctors(ctx context.Context, pool *pgxpool.Pool, faker *gofakeit.Faker, count int) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, count)

	err := insertInBatches(ctx, pool, "doctors", count, func(tx pgx.Tx, i int) error {
		userID, err := insertUser(ctx, tx, faker, "DOCTOR")
		if err != nil {
			return err
		}
		ids[i] = uuid.New()
		_, err = tx.Exec(ctx, `
			INSERT INTO doctor_profiles (id, user_id, full_name, experience_years, consultation_fee)
			VALUES ($1, $2, $3, $4, $5)
		`, ids[i], userID, "Dr. "+faker.Name(), faker.Number(1, 35), faker.Number(3, 20)*100)
		return err
	})
	return ids, err
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, faker *gofakeit.Faker, count int) error {
	return insertInBatches(ctx, pool, "patients", count, func(tx pgx.Tx, i int) error {
		userID, err := insertUser(ctx, tx, faker, "PATIENT")
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO patient_profiles (id, user_id, full_name) VALUES ($1, $2, $3)
		`, uuid.New(), userID, faker.Name())
		return err
	})
}

func seedSlots(ctx context.Context, pool *pgxpool.Pool, faker *gofakeit.Faker, doctorIDs []uuid.UUID, days, perDay int) error {
	today := time.Now().UTC().Truncate(24 * time.Hour)
	perDoctor := days * perDay

	return insertInBatches(ctx, pool, "slots", len(doctorIDs)*perDoctor, func(tx pgx.Tx, i int) error {
		doctorID := doctorIDs[i/perDoctor]
		n := i % perDoctor
		date := today.AddDate(0, 0, 1+n/perDay)
		start := date.Add(9*time.Hour + time.Duration(n%perDay)*30*time.Minute)

		_, err := tx.Exec(ctx, `
			INSERT INTO slots (id, doctor_id, date, start_time, end_time, max_capacity)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT ON CONSTRAINT slots_unique_tuple DO NOTHING
		`, uuid.New(), doctorID, date, start, start.Add(30*time.Minute), faker.Number(1, 5))
		return err
	})
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
