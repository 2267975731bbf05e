package postgres

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"lief/clock-service/internal/store"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

func TestClockInOutRoundtrip(t *testing.T) {
	ctx := context.Background()
	st, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	workerID := uuid.NewString()
	clockInAt := time.Now().UTC().Truncate(time.Second)

	record, err := st.ClockIn(ctx, store.ClockInInput{
		WorkerID:   workerID,
		WorkerName: "Ana",
		Lat:        51.5,
		Lng:        -0.12,
		Note:       "morning",
		ClockInAt:  clockInAt,
	})
	if err != nil {
		t.Fatalf("clock in: %v", err)
	}
	if !record.Open() {
		t.Fatalf("expected open record, got %+v", record)
	}

	found, ok, err := st.FindOpenSession(ctx, workerID, clockInAt.Add(-time.Minute), 10)
	if err != nil || !ok || found.RecordID != record.RecordID {
		t.Fatalf("expected the open session back, got %+v ok=%v err=%v", found, ok, err)
	}

	lat := 51.51
	lng := -0.13
	closed, err := st.ClockOut(ctx, store.ClockOutInput{
		RecordID:   record.RecordID,
		WorkerID:   workerID,
		Lat:        &lat,
		Lng:        &lng,
		Note:       "evening",
		ClockOutAt: clockInAt.Add(8 * time.Hour),
	})
	if err != nil {
		t.Fatalf("clock out: %v", err)
	}
	if closed.ClockOutAt == nil || closed.ClockOutNote != "evening" {
		t.Fatalf("unexpected closed record: %+v", closed)
	}
	if closed.ClockOutLat == nil || *closed.ClockOutLat != lat {
		t.Fatalf("expected clock-out location to persist, got %+v", closed)
	}
	if closed.ClockInNote != "morning" {
		t.Fatalf("clock-in note must survive the update, got %+v", closed)
	}

	if _, ok, err := st.FindOpenSession(ctx, workerID, clockInAt.Add(-time.Minute), 10); err != nil || ok {
		t.Fatalf("expected no open session after clock out, got ok=%v err=%v", ok, err)
	}
}

func TestClockInDuplicateOpenSession(t *testing.T) {
	ctx := context.Background()
	st, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	workerID := uuid.NewString()
	input := store.ClockInInput{
		WorkerID:   workerID,
		WorkerName: "Ana",
		Lat:        51.5,
		Lng:        -0.12,
		ClockInAt:  time.Now().UTC(),
	}

	if _, err := st.ClockIn(ctx, input); err != nil {
		t.Fatalf("first clock in: %v", err)
	}
	if _, err := st.ClockIn(ctx, input); !errors.Is(err, store.ErrOpenSessionExists) {
		t.Fatalf("expected ErrOpenSessionExists, got %v", err)
	}
}

func TestClockInConcurrentSingleWinner(t *testing.T) {
	ctx := context.Background()
	st, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	workerID := uuid.NewString()
	var wg sync.WaitGroup
	results := make(chan error, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := st.ClockIn(ctx, store.ClockInInput{
				WorkerID:   workerID,
				WorkerName: "Ana",
				Lat:        51.5,
				Lng:        -0.12,
				ClockInAt:  time.Now().UTC(),
			})
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	succeeded := 0
	for err := range results {
		if err == nil {
			succeeded++
			continue
		}
		if !errors.Is(err, store.ErrOpenSessionExists) {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if succeeded != 1 {
		t.Fatalf("expected exactly one winner, got %d", succeeded)
	}
}

func TestClockOutOwnership(t *testing.T) {
	ctx := context.Background()
	st, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	workerID := uuid.NewString()
	record, err := st.ClockIn(ctx, store.ClockInInput{
		WorkerID:   workerID,
		WorkerName: "Ana",
		Lat:        51.5,
		Lng:        -0.12,
		ClockInAt:  time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("clock in: %v", err)
	}

	_, err = st.ClockOut(ctx, store.ClockOutInput{
		RecordID:   record.RecordID,
		WorkerID:   uuid.NewString(),
		ClockOutAt: time.Now().UTC().Add(time.Hour),
	})
	if !errors.Is(err, store.ErrRecordNotFound) {
		t.Fatalf("expected ErrRecordNotFound for foreign record, got %v", err)
	}
}

func TestClockOutTwice(t *testing.T) {
	ctx := context.Background()
	st, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	workerID := uuid.NewString()
	record, err := st.ClockIn(ctx, store.ClockInInput{
		WorkerID:   workerID,
		WorkerName: "Ana",
		Lat:        51.5,
		Lng:        -0.12,
		ClockInAt:  time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("clock in: %v", err)
	}

	input := store.ClockOutInput{
		RecordID:   record.RecordID,
		WorkerID:   workerID,
		ClockOutAt: time.Now().UTC().Add(time.Hour),
	}
	if _, err := st.ClockOut(ctx, input); err != nil {
		t.Fatalf("first clock out: %v", err)
	}
	if _, err := st.ClockOut(ctx, input); !errors.Is(err, store.ErrRecordClosed) {
		t.Fatalf("expected ErrRecordClosed, got %v", err)
	}
}

func TestFindOpenSessionBounded(t *testing.T) {
	ctx := context.Background()
	st, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	workerID := uuid.NewString()
	base := time.Now().UTC().Add(-6 * time.Hour)

	open, err := st.ClockIn(ctx, store.ClockInInput{
		WorkerID:   workerID,
		WorkerName: "Ana",
		Lat:        51.5,
		Lng:        -0.12,
		ClockInAt:  base,
	})
	if err != nil {
		t.Fatalf("clock in: %v", err)
	}

	found, ok, err := st.FindOpenSession(ctx, workerID, base.Add(-time.Hour), 10)
	if err != nil {
		t.Fatalf("find open session: %v", err)
	}
	if !ok || found.RecordID != open.RecordID {
		t.Fatalf("expected open session %s, got %+v ok=%v", open.RecordID, found, ok)
	}

	// A window that starts after the clock-in must not see the session.
	if _, ok, err := st.FindOpenSession(ctx, workerID, base.Add(time.Hour), 10); err != nil || ok {
		t.Fatalf("expected no session after the window start, got ok=%v err=%v", ok, err)
	}
}

func TestHistoryNewestFirst(t *testing.T) {
	ctx := context.Background()
	st, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	workerID := uuid.NewString()
	base := time.Now().UTC().Add(-48 * time.Hour)
	for i := 0; i < 3; i++ {
		record, err := st.ClockIn(ctx, store.ClockInInput{
			WorkerID:   workerID,
			WorkerName: "Ana",
			Lat:        51.5,
			Lng:        -0.12,
			ClockInAt:  base.Add(time.Duration(i) * 12 * time.Hour),
		})
		if err != nil {
			t.Fatalf("clock in %d: %v", i, err)
		}
		if i < 2 {
			if _, err := st.ClockOut(ctx, store.ClockOutInput{
				RecordID:   record.RecordID,
				WorkerID:   workerID,
				ClockOutAt: base.Add(time.Duration(i)*12*time.Hour + 8*time.Hour),
			}); err != nil {
				t.Fatalf("clock out %d: %v", i, err)
			}
		}
	}

	records, err := st.History(ctx, workerID, 2)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if !records[0].ClockInAt.After(records[1].ClockInAt) {
		t.Fatalf("expected newest first, got %v then %v", records[0].ClockInAt, records[1].ClockInAt)
	}
}

func TestPerimeterCRUD(t *testing.T) {
	ctx := context.Background()
	st, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	created, err := st.CreatePerimeter(ctx, store.CreatePerimeterInput{
		Name:      "Clinic",
		Latitude:  51.5,
		Longitude: -0.12,
		RadiusKm:  2,
	})
	if err != nil {
		t.Fatalf("create perimeter: %v", err)
	}

	perimeters, err := st.ListPerimeters(ctx)
	if err != nil {
		t.Fatalf("list perimeters: %v", err)
	}
	if len(perimeters) != 1 || perimeters[0].PerimeterID != created.PerimeterID {
		t.Fatalf("unexpected perimeters: %+v", perimeters)
	}

	if err := st.DeletePerimeter(ctx, created.PerimeterID); err != nil {
		t.Fatalf("delete perimeter: %v", err)
	}
	if err := st.DeletePerimeter(ctx, created.PerimeterID); !errors.Is(err, store.ErrPerimeterNotFound) {
		t.Fatalf("expected ErrPerimeterNotFound, got %v", err)
	}
}

func TestSignUpLoginSession(t *testing.T) {
	ctx := context.Background()
	st, cleanup := setupTestStore(t, ctx)
	t.Cleanup(cleanup)

	email := uuid.NewString() + "@example.com"
	user, session, err := st.SignUp(ctx, store.SignUpInput{
		Email:       email,
		Password:    "hunter22",
		DisplayName: "Ana",
		Role:        "worker",
	})
	if err != nil {
		t.Fatalf("sign up: %v", err)
	}
	if session.SessionID == "" {
		t.Fatal("expected a session from sign up")
	}

	if _, _, err := st.SignUp(ctx, store.SignUpInput{
		Email:       email,
		Password:    "other",
		DisplayName: "Dup",
		Role:        "worker",
	}); !errors.Is(err, store.ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}

	if _, _, err := st.Login(ctx, store.LoginInput{Email: email, Password: "wrong"}); !errors.Is(err, store.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}

	_, loginSession, err := st.Login(ctx, store.LoginInput{Email: email, Password: "hunter22"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	gotSession, gotUser, err := st.GetSession(ctx, loginSession.SessionID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if gotUser.UserID != user.UserID || gotSession.SessionID != loginSession.SessionID {
		t.Fatalf("unexpected session lookup: %+v %+v", gotSession, gotUser)
	}

	if _, _, err := st.GetSession(ctx, uuid.NewString()); !errors.Is(err, store.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func setupTestStore(t *testing.T, ctx context.Context) (*Store, func()) {
	t.Helper()
	dsn := os.Getenv("TEST_DB_DSN")
	if dsn == "" {
		dsn = os.Getenv("DB_DSN")
	}
	if dsn == "" {
		t.Skip("TEST_DB_DSN or DB_DSN is required for integration tests")
	}

	schema := "test_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	if err := createSchema(ctx, dsn, schema); err != nil {
		t.Fatalf("create schema: %v", err)
	}

	pool, err := newPoolWithSchema(ctx, dsn, schema)
	if err != nil {
		t.Fatalf("open pool: %v", err)
	}

	if err := applyMigrations(ctx, pool); err != nil {
		pool.Close()
		t.Fatalf("apply migrations: %v", err)
	}

	st := NewStore(pool, Options{SessionTTL: time.Hour})
	cleanup := func() {
		pool.Close()
		_ = dropSchema(context.Background(), dsn, schema)
	}
	return st, cleanup
}

func createSchema(ctx context.Context, dsn, schema string) error {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return err
	}
	defer conn.Close(ctx)
	_, err = conn.Exec(ctx, "CREATE SCHEMA "+schema)
	return err
}

func dropSchema(ctx context.Context, dsn, schema string) error {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return err
	}
	defer conn.Close(ctx)
	_, err = conn.Exec(ctx, "DROP SCHEMA "+schema+" CASCADE")
	return err
}

func newPoolWithSchema(ctx context.Context, dsn, schema string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	cfg.ConnConfig.RuntimeParams["search_path"] = schema
	return pgxpool.NewWithConfig(ctx, cfg)
}

func applyMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	dir := filepath.Join("..", "..", "..", "migrations")
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	var files []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		files = append(files, entry.Name())
	}
	sort.Strings(files)
	for _, name := range files {
		content, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return err
		}
		if strings.TrimSpace(string(content)) == "" {
			continue
		}
		if _, err := pool.Exec(ctx, string(content)); err != nil {
			return err
		}
	}
	return nil
}
