package main

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"net/http"
	"os"
	"slices"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/prmjagdish/schedula/internal/auth"
	"github.com/prmjagdish/schedula/internal/config"
	"github.com/prmjagdish/schedula/internal/db"
	"github.com/prmjagdish/schedula/internal/logging"
)

type SimConfig struct {
	APIBaseURL   string
	Duration     time.Duration
	Workers      int
	BookingRatio float64
	CancelRatio  float64
	ReadRatio    float64
	HotSlots     int
	PatientLimit int
	IdemReplay   float64 // share of bookings sent twice with the same Idempotency-Key
}

type principal struct {
	userID uuid.UUID
	token  string
}

type DataPool struct {
	Patients []principal
	Doctors  []principal
	Slots    []uuid.UUID

	mu           sync.Mutex
	appointments map[uuid.UUID]principal
}

func (dp *DataPool) AddAppointment(id uuid.UUID, owner principal) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.appointments[id] = owner
}

// TakeAppointment removes and returns a random appointment.
func (dp *DataPool) TakeAppointment(rng *rand.Rand) (uuid.UUID, principal, bool) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	if len(dp.appointments) == 0 {
		return uuid.Nil, principal{}, false
	}
	skip := rng.IntN(len(dp.appointments))
	for id, owner := range dp.appointments {
		if skip == 0 {
			delete(dp.appointments, id)
			return id, owner, true
		}
		skip--
	}
	return uuid.Nil, principal{}, false
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Rejected  int64 // expected business rejections: slot_full, already_cancelled
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, success, rejected bool) {
	atomic.AddInt64(&om.Total, 1)
	switch {
	case success:
		atomic.AddInt64(&om.Success, 1)
	case rejected:
		atomic.AddInt64(&om.Rejected, 1)
	default:
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, p50, p95, p99, maxLatency time.Duration) {
	om.mu.Lock()
	latencies := slices.Clone(om.Latencies)
	om.mu.Unlock()

	if len(latencies) == 0 {
		return 0, 0, 0, 0, 0
	}
	slices.Sort(latencies)

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}
	pct := func(p int) time.Duration {
		return latencies[min(len(latencies)*p/100, len(latencies)-1)]
	}
	return sum / time.Duration(len(latencies)), pct(50), pct(95), pct(99), latencies[len(latencies)-1]
}

type Metrics struct {
	Booking     OperationMetrics
	Replay      OperationMetrics
	Cancel      OperationMetrics
	ListMine    OperationMetrics
	ListSlots   OperationMetrics
	replayDrift atomic.Int64
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	metrics Metrics
}

func main() {
	baseCfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load base config")
	}
	logging.Init("simulate", baseCfg.Env, baseCfg.LogLevel)

	cfg := loadConfig()
	if err := validateConfig(cfg); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}
	log.Info().
		Dur("duration", cfg.Duration).
		Int("workers", cfg.Workers).
		Int("hot_slots", cfg.HotSlots).
		Float64("booking", cfg.BookingRatio).
		Float64("cancel", cfg.CancelRatio).
		Float64("read", cfg.ReadRatio).
		Msg("simulator starting")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, baseCfg.PostgresDSN, 4)
	if err != nil {
		log.Fatal().Err(err).Msg("connect postgres")
	}
	defer pgPool.Close()

	tokens := auth.NewTokens(baseCfg.JWTSecret, cfg.Duration+time.Hour)
	dataPool, err := loadDataPool(ctx, pgPool, tokens, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("load data pool")
	}
	log.Info().Int("patients", len(dataPool.Patients)).Int("slots", len(dataPool.Slots)).Msg("data pool loaded")

	sim := &Simulator{
		config: cfg,
		pool:   dataPool,
		client: &http.Client{Timeout: 10 * time.Second},
	}

	sim.Run()
	sim.PrintReport()

	violations, err := verifyCapacity(context.Background(), pgPool, dataPool.Slots)
	if err != nil {
		log.Fatal().Err(err).Msg("verify capacity")
	}
	if len(violations) > 0 {
		for _, v := range violations {
			fmt.Println("  VIOLATION:", v)
		}
		os.Exit(1)
	}
	fmt.Println("No simulated slot exceeds its capacity.")
}

func loadConfig() SimConfig {
	cfg := SimConfig{
		APIBaseURL:   getEnv("SIM_API_BASE_URL", "http://localhost:8080"),
		Duration:     getDuration("SIM_DURATION", 30*time.Second),
		Workers:      getInt("SIM_WORKERS", 20),
		BookingRatio: getFloat("SIM_BOOKING_RATIO", 0.5),
		CancelRatio:  getFloat("SIM_CANCEL_RATIO", 0.2),
		ReadRatio:    getFloat("SIM_READ_RATIO", 0.3),
		HotSlots:     getInt("SIM_HOT_SLOTS", 5),
		PatientLimit: getInt("SIM_PATIENT_LIMIT", 2000),
		IdemReplay:   getFloat("SIM_IDEMPOTENT_REPLAY", 0.1),
	}

	total := cfg.BookingRatio + cfg.CancelRatio + cfg.ReadRatio
	if total > 0 {
		cfg.BookingRatio /= total
		cfg.CancelRatio /= total
		cfg.ReadRatio /= total
	}
	return cfg
}

func validateConfig(cfg SimConfig) error {
	if cfg.Workers <= 0 {
		return fmt.Errorf("SIM_WORKERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("SIM_DURATION must be > 0")
	}
	if cfg.HotSlots <= 0 {
		return fmt.Errorf("SIM_HOT_SLOTS must be > 0")
	}
	return nil
}

func loadPrincipals(ctx context.Context, pool *pgxpool.Pool, tokens *auth.Tokens, table string, role auth.Role, limit int) ([]principal, error) {
	rows, err := pool.Query(ctx, `SELECT user_id FROM `+table+` ORDER BY random() LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", table, err)
	}
	defer rows.Close()

	var out []principal
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		tok, err := tokens.Issue(id, role)
		if err != nil {
			return nil, err
		}
		out = append(out, principal{userID: id, token: tok})
	}
	return out, rows.Err()
}

// loadDataPool picks a few low-capacity future slots so bookers collide.
func loadDataPool(ctx context.Context, pool *pgxpool.Pool, tokens *auth.Tokens, cfg SimConfig) (*DataPool, error) {
	dp := &DataPool{appointments: make(map[uuid.UUID]principal)}

	var err error
	if dp.Patients, err = loadPrincipals(ctx, pool, tokens, "patient_profiles", auth.RolePatient, cfg.PatientLimit); err != nil {
		return nil, err
	}
	if dp.Doctors, err = loadPrincipals(ctx, pool, tokens, "doctor_profiles", auth.RoleDoctor, 50); err != nil {
		return nil, err
	}

	rows, err := pool.Query(ctx, `
		SELECT id FROM slots
		WHERE start_time > now()
		ORDER BY max_capacity ASC, start_time ASC
		LIMIT $1
	`, cfg.HotSlots)
	if err != nil {
		return nil, fmt.Errorf("load slots: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		dp.Slots = append(dp.Slots, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(dp.Patients) == 0 {
		return nil, fmt.Errorf("no patients loaded, run cmd/seed first")
	}
	if len(dp.Slots) == 0 {
		return nil, fmt.Errorf("no future slots loaded, run cmd/seed first")
	}
	return dp, nil
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	log.Info().Dur("duration", s.config.Duration).Int("workers", s.config.Workers).Msg("starting simulation")

	var wg sync.WaitGroup
	for i := range s.config.Workers {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}

	wg.Wait()
	log.Info().Msg("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), uint64(workerID)))
	faker := gofakeit.New(uint64(workerID) + 1)

	for ctx.Err() == nil {
		r := rng.Float64()
		switch {
		case r < s.config.BookingRatio:
			s.doBooking(ctx, rng, faker)
		case r < s.config.BookingRatio+s.config.CancelRatio:
			s.doCancel(ctx, rng)
		case rng.IntN(2) == 0:
			s.doListMine(ctx, rng)
		default:
			s.doListSlots(ctx, rng)
		}
	}
}

func (s *Simulator) send(ctx context.Context, method, path, token string, header map[string]string) (int, []byte, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, method, s.config.APIBaseURL+path, nil)
	if err != nil {
		return 0, nil, 0, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	for k, v := range header {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := s.client.Do(req)
	latency := time.Since(start)
	if err != nil {
		return 0, nil, latency, err
	}
	defer resp.Body.Close()

	var body json.RawMessage
	_ = json.NewDecoder(resp.Body).Decode(&body)
	return resp.StatusCode, body, latency, nil
}

func errorCode(body []byte) string {
	var e struct {
		Error string `json:"error"`
	}
	_ = json.Unmarshal(body, &e)
	return e.Error
}

func (s *Simulator) doBooking(ctx context.Context, rng *rand.Rand, faker *gofakeit.Faker) {
	slotID := s.pool.Slots[rng.IntN(len(s.pool.Slots))]
	patient := s.pool.Patients[rng.IntN(len(s.pool.Patients))]
	path := "/api/v1/appointments/" + slotID.String()

	replay := rng.Float64() < s.config.IdemReplay
	header := map[string]string{}
	if replay {
		header["Idempotency-Key"] = faker.UUID()
	}

	status, body, latency, err := s.send(ctx, http.MethodPost, path, patient.token, header)
	if err != nil {
		if ctx.Err() == nil {
			s.metrics.Booking.Record(latency, false, false)
		}
		return
	}

	var appt struct {
		ID uuid.UUID `json:"id"`
	}
	success := status == http.StatusCreated
	if success {
		_ = json.Unmarshal(body, &appt)
		s.pool.AddAppointment(appt.ID, patient)
	}
	rejected := status == http.StatusBadRequest && errorCode(body) == "slot_full"
	s.metrics.Booking.Record(latency, success, rejected)

	if !replay || !success {
		return
	}

	status, body, latency, err = s.send(ctx, http.MethodPost, path, patient.token, header)
	if err != nil {
		return
	}
	var again struct {
		ID uuid.UUID `json:"id"`
	}
	_ = json.Unmarshal(body, &again)
	ok := status == http.StatusCreated && again.ID == appt.ID
	if status == http.StatusCreated && again.ID != appt.ID {
		s.metrics.replayDrift.Add(1)
	}
	s.metrics.Replay.Record(latency, ok, status == http.StatusConflict)
}

func (s *Simulator) doCancel(ctx context.Context, rng *rand.Rand) {
	apptID, owner, ok := s.pool.TakeAppointment(rng)
	if !ok {
		return
	}

	status, body, latency, err := s.send(ctx, http.MethodDelete, "/api/v1/appointments/"+apptID.String(), owner.token, nil)
	if err != nil {
		return
	}
	rejected := status == http.StatusBadRequest && errorCode(body) == "already_cancelled"
	s.metrics.Cancel.Record(latency, status == http.StatusOK, rejected)
}

func (s *Simulator) doListMine(ctx context.Context, rng *rand.Rand) {
	patient := s.pool.Patients[rng.IntN(len(s.pool.Patients))]

	status, _, latency, err := s.send(ctx, http.MethodGet, "/api/v1/appointments/me", patient.token, nil)
	if err != nil {
		return
	}
	s.metrics.ListMine.Record(latency, status == http.StatusOK, false)
}

func (s *Simulator) doListSlots(ctx context.Context, rng *rand.Rand) {
	if len(s.pool.Doctors) == 0 {
		return
	}
	doctor := s.pool.Doctors[rng.IntN(len(s.pool.Doctors))]

	status, _, latency, err := s.send(ctx, http.MethodGet, "/api/v1/slots", doctor.token, nil)
	if err != nil {
		return
	}
	s.metrics.ListSlots.Record(latency, status == http.StatusOK, false)
}

// verifyCapacity reads committed counts straight from Postgres.
func verifyCapacity(ctx context.Context, pool *pgxpool.Pool, slotIDs []uuid.UUID) ([]string, error) {
	rows, err := pool.Query(ctx, `
		SELECT s.id, s.max_capacity, COUNT(a.id) FILTER (WHERE a.status = 'CONFIRMED')
		FROM slots s
		LEFT JOIN appointments a ON a.slot_id = s.id
		WHERE s.id = ANY($1)
		GROUP BY s.id
	`, slotIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var violations []string
	for rows.Next() {
		var id uuid.UUID
		var capacity, confirmed int
		if err := rows.Scan(&id, &capacity, &confirmed); err != nil {
			return nil, err
		}
		fmt.Printf("  slot %s: %d/%d confirmed\n", id, confirmed, capacity)
		if confirmed > capacity {
			violations = append(violations, fmt.Sprintf("slot %s has %d confirmed for capacity %d", id, confirmed, capacity))
		}
	}
	return violations, rows.Err()
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Printf("Hot slots: %d\n", len(s.pool.Slots))
	fmt.Println()

	printOperationReport("Booking", &s.metrics.Booking)
	printOperationReport("Idempotent replay", &s.metrics.Replay)
	printOperationReport("Cancel", &s.metrics.Cancel)
	printOperationReport("List my appointments", &s.metrics.ListMine)
	printOperationReport("List slots", &s.metrics.ListSlots)

	if drift := s.metrics.replayDrift.Load(); drift > 0 {
		fmt.Printf("WARNING: %d idempotent replays returned a different appointment\n\n", drift)
	}
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	success := atomic.LoadInt64(&om.Success)
	rejected := atomic.LoadInt64(&om.Rejected)
	errs := atomic.LoadInt64(&om.Error)
	avg, p50, p95, p99, maxLatency := om.Stats()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, float64(success)/float64(total)*100)
	if rejected > 0 {
		fmt.Printf("  Rejected: %d (%.1f%%)\n", rejected, float64(rejected)/float64(total)*100)
	}
	if errs > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", errs, float64(errs)/float64(total)*100)
	}
	fmt.Printf("  Latency: avg=%s p50=%s p95=%s p99=%s max=%s\n",
		avg.Round(time.Millisecond), p50.Round(time.Millisecond), p95.Round(time.Millisecond),
		p99.Round(time.Millisecond), maxLatency.Round(time.Millisecond))
	fmt.Println()
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}
