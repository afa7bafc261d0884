package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-scheduling/internal/access"
	"github.com/hackgods/clinic-scheduling/internal/api"
	"github.com/hackgods/clinic-scheduling/internal/availability"
	"github.com/hackgods/clinic-scheduling/internal/config"
	"github.com/hackgods/clinic-scheduling/internal/db"
	"github.com/hackgods/clinic-scheduling/internal/logging"
)

// SimConfig drives the load generator. Each round picks one open slot and
// lets Contenders patients race for it; at most one may win.
type SimConfig struct {
	APIBaseURL   string
	Duration     time.Duration
	Workers      int
	Contenders   int
	ConfirmRatio float64
	PatientLimit int
	DoctorLimit  int
	Horizon      int // days ahead to look for open slots
}

type actorPool struct {
	Doctors  []access.Actor
	Patients []access.Actor
	tokens   map[uuid.UUID]string
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, status int) {
	atomic.AddInt64(&om.Total, 1)
	switch {
	case status >= 200 && status < 300:
		atomic.AddInt64(&om.Success, 1)
	case status == http.StatusConflict:
		atomic.AddInt64(&om.Conflict, 1)
	default:
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, p50, p95, max time.Duration) {
	om.mu.Lock()
	latencies := append([]time.Duration(nil), om.Latencies...)
	om.mu.Unlock()

	if len(latencies) == 0 {
		return 0, 0, 0, 0
	}
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}
	pick := func(pct int) time.Duration {
		idx := len(latencies) * pct / 100
		if idx >= len(latencies) {
			idx = len(latencies) - 1
		}
		return latencies[idx]
	}
	return sum / time.Duration(len(latencies)), pick(50), pick(95), latencies[len(latencies)-1]
}

type Metrics struct {
	Slots   OperationMetrics
	Booking OperationMetrics
	Confirm OperationMetrics
}

type Simulator struct {
	config  SimConfig
	actors  *actorPool
	client  *http.Client
	metrics Metrics
	log     zerolog.Logger

	rounds    int64
	doubleWin int64
}

func main() {
	baseCfg, err := config.Load()
	if err != nil {
		l := logging.New("prod", "info", "simulate")
		l.Fatal().Err(err).Msg("config load error")
	}
	log := logging.New(baseCfg.Env, baseCfg.LogLevel, "simulate")

	cfg := loadConfig()
	if err := validateConfig(cfg); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}
	log.Info().
		Dur("duration", cfg.Duration).
		Int("workers", cfg.Workers).
		Int("contenders", cfg.Contenders).
		Msg("simulator starting")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, baseCfg.PostgresDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("connect postgres")
	}
	defer pgPool.Close()

	actors, err := loadActors(ctx, pgPool, cfg, api.AuthConfig{Secret: baseCfg.JWTSecret, Issuer: baseCfg.JWTIssuer})
	if err != nil {
		log.Fatal().Err(err).Msg("load actors")
	}
	log.Info().Int("doctors", len(actors.Doctors)).Int("patients", len(actors.Patients)).Msg("actors loaded")

	sim := &Simulator{
		config: cfg,
		actors: actors,
		client: &http.Client{Timeout: 10 * time.Second},
		log:    log,
	}
	sim.Run()

	overlaps, err := countOverlaps(context.Background(), pgPool)
	if err != nil {
		log.Error().Err(err).Msg("overlap check failed")
	}
	sim.PrintReport(overlaps)
	if overlaps > 0 || sim.doubleWin > 0 {
		os.Exit(1)
	}
}

func loadConfig() SimConfig {
	return SimConfig{
		APIBaseURL:   getEnv("SIM_API_BASE_URL", "http://localhost:8080"),
		Duration:     getDuration("SIM_DURATION", 30*time.Second),
		Workers:      getInt("SIM_WORKERS", 4),
		Contenders:   getInt("SIM_CONTENDERS", 8),
		ConfirmRatio: getFloat("SIM_CONFIRM_RATIO", 0.5),
		PatientLimit: getInt("SIM_PATIENT_LIMIT", 500),
		DoctorLimit:  getInt("SIM_DOCTOR_LIMIT", 20),
		Horizon:      getInt("SIM_HORIZON_DAYS", 14),
	}
}

func validateConfig(cfg SimConfig) error {
	if cfg.Workers <= 0 {
		return fmt.Errorf("SIM_WORKERS must be > 0")
	}
	if cfg.Contenders < 2 {
		return fmt.Errorf("SIM_CONTENDERS must be >= 2")
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("SIM_DURATION must be > 0")
	}
	return nil
}

// loadActors reads approved doctors and patients and signs a token for each.
func loadActors(ctx context.Context, pool *pgxpool.Pool, cfg SimConfig, auth api.AuthConfig) (*actorPool, error) {
	load := func(role access.Role, limit int) ([]access.Actor, error) {
		rows, err := pool.Query(ctx, `
			SELECT id, role, approved, disabled FROM actors
			WHERE role = $1 AND approved AND NOT disabled
			LIMIT $2
		`, role, limit)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", role, err)
		}
		return pgx.CollectRows(rows, func(row pgx.CollectableRow) (access.Actor, error) {
			var a access.Actor
			err := row.Scan(&a.ID, &a.Role, &a.Approved, &a.Disabled)
			return a, err
		})
	}

	doctors, err := load(access.RoleDoctor, cfg.DoctorLimit)
	if err != nil {
		return nil, err
	}
	patients, err := load(access.RolePatient, cfg.PatientLimit)
	if err != nil {
		return nil, err
	}
	if len(doctors) == 0 || len(patients) < cfg.Contenders {
		return nil, fmt.Errorf("need at least one doctor and %d patients, run clinicctl seed", cfg.Contenders)
	}

	p := &actorPool{Doctors: doctors, Patients: patients, tokens: make(map[uuid.UUID]string)}
	for _, a := range append(append([]access.Actor{}, doctors...), patients...) {
		token, err := api.IssueToken(auth, a, cfg.Duration+time.Hour)
		if err != nil {
			return nil, err
		}
		p.tokens[a.ID] = token
	}
	return p, nil
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}
	wg.Wait()
	s.log.Info().Int64("rounds", s.rounds).Msg("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))
	for ctx.Err() == nil {
		s.round(ctx, rng)
	}
}

// round races Contenders distinct patients for one open slot of one doctor.
func (s *Simulator) round(ctx context.Context, rng *rand.Rand) {
	doctor := s.actors.Doctors[rng.Intn(len(s.actors.Doctors))]
	looker := s.actors.Patients[rng.Intn(len(s.actors.Patients))]

	slots, ok := s.openSlots(ctx, looker, doctor.ID)
	if !ok || len(slots) == 0 {
		return
	}
	slot := slots[rng.Intn(len(slots))]

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners []uuid.UUID
	)
	for _, idx := range rng.Perm(len(s.actors.Patients))[:s.config.Contenders] {
		patient := s.actors.Patients[idx]
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, ok := s.book(ctx, patient, doctor.ID, slot)
			if ok {
				mu.Lock()
				winners = append(winners, id)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	atomic.AddInt64(&s.rounds, 1)
	if len(winners) > 1 {
		atomic.AddInt64(&s.doubleWin, 1)
		s.log.Error().
			Str("doctor_id", doctor.ID.String()).
			Time("start", slot.Start).
			Int("winners", len(winners)).
			Msg("slot booked more than once")
	}
	if len(winners) == 1 && rng.Float64() < s.config.ConfirmRatio {
		s.confirm(ctx, doctor, winners[0])
	}
}

func (s *Simulator) openSlots(ctx context.Context, as access.Actor, doctorID uuid.UUID) ([]availability.Slot, bool) {
	from := availability.DateOf(time.Now().UTC()).AddDays(1)
	to := from.AddDays(s.config.Horizon - 1)
	url := fmt.Sprintf("%s/doctors/%s/slots?from=%s&to=%s", s.config.APIBaseURL, doctorID, from, to)

	var resp api.SlotsResponse
	status, latency := s.call(ctx, as, http.MethodGet, url, nil, &resp)
	s.metrics.Slots.Record(latency, status)
	return resp.Slots, status == http.StatusOK
}

func (s *Simulator) book(ctx context.Context, patient access.Actor, doctorID uuid.UUID, slot availability.Slot) (uuid.UUID, bool) {
	req := api.BookAppointmentRequest{
		DoctorID:        doctorID.String(),
		Start:           slot.Start,
		DurationMinutes: int(slot.End.Sub(slot.Start) / time.Minute),
		Reason:          "simulated visit",
	}
	var appt struct {
		ID uuid.UUID `json:"id"`
	}
	status, latency := s.call(ctx, patient, http.MethodPost, s.config.APIBaseURL+"/appointments", req, &appt)
	s.metrics.Booking.Record(latency, status)
	return appt.ID, status == http.StatusCreated
}

func (s *Simulator) confirm(ctx context.Context, doctor access.Actor, id uuid.UUID) {
	url := fmt.Sprintf("%s/appointments/%s/confirm", s.config.APIBaseURL, id)
	status, latency := s.call(ctx, doctor, http.MethodPost, url, nil, nil)
	s.metrics.Confirm.Record(latency, status)
}

// call returns the HTTP status (0 on transport errors) and the latency.
func (s *Simulator) call(ctx context.Context, as access.Actor, method, url string, body, out any) (int, time.Duration) {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return 0, 0
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.actors.tokens[as.ID])

	start := time.Now()
	resp, err := s.client.Do(req)
	latency := time.Since(start)
	if err != nil {
		return 0, latency
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode < 300 {
		_ = json.NewDecoder(resp.Body).Decode(out)
	}
	return resp.StatusCode, latency
}

// countOverlaps checks the store directly for two active appointments of one
// doctor sharing any instant.
func countOverlaps(ctx context.Context, pool *pgxpool.Pool) (int, error) {
	var n int
	err := pool.QueryRow(ctx, `
		SELECT count(*)
		FROM appointments a
		JOIN appointments b
		  ON a.doctor_id = b.doctor_id
		 AND a.id < b.id
		 AND tstzrange(a.start_time, a.end_time, '[)') && tstzrange(b.start_time, b.end_time, '[)')
		WHERE a.status <> 'CANCELLED' AND b.status <> 'CANCELLED'
	`).Scan(&n)
	return n, err
}

func (s *Simulator) PrintReport(overlaps int) {
	fmt.Println(strings.Repeat("=", 72))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 72))
	printOperationReport("Open slots", &s.metrics.Slots)
	printOperationReport("Booking", &s.metrics.Booking)
	printOperationReport("Confirm", &s.metrics.Confirm)
	fmt.Println(strings.Repeat("-", 72))
	fmt.Printf("rounds: %d  double wins: %d  overlapping appointments in store: %d\n",
		s.rounds, s.doubleWin, overlaps)
}

func printOperationReport(name string, om *OperationMetrics) {
	avg, p50, p95, max := om.Stats()
	fmt.Printf("%-12s total=%-6d ok=%-6d conflict=%-6d error=%-6d avg=%-10s p50=%-10s p95=%-10s max=%s\n",
		name, om.Total, om.Success, om.Conflict, om.Error,
		avg.Round(time.Microsecond), p50.Round(time.Microsecond), p95.Round(time.Microsecond), max.Round(time.Microsecond))
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
