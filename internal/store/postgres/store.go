package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"lief/clock-service/internal/models"
	"lief/clock-service/internal/store"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"
)

const uniqueViolation = "23505"

type Store struct {
	pool       *pgxpool.Pool
	sessionTTL time.Duration
}

type Options struct {
	SessionTTL time.Duration
}

func NewStore(pool *pgxpool.Pool, options Options) *Store {
	ttl := options.SessionTTL
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &Store{pool: pool, sessionTTL: ttl}
}

const recordColumns = `record_id, worker_id, worker_name, clock_in_at, clock_in_lat, clock_in_lng,
	clock_in_note, clock_out_at, clock_out_lat, clock_out_lng, clock_out_note`

func (s *Store) ClockIn(ctx context.Context, input store.ClockInInput) (models.ClockRecord, error) {
	clockInAt := input.ClockInAt
	if clockInAt.IsZero() {
		clockInAt = time.Now().UTC()
	}

	// The partial unique index on (worker_id) WHERE clock_out_at IS NULL makes
	// the one-open-session invariant atomic: a duplicate clock-in loses the
	// conflict instead of racing past a read-then-write check.
	row := s.pool.QueryRow(ctx, `
		INSERT INTO clock_records (
			record_id, worker_id, worker_name, clock_in_at, clock_in_lat, clock_in_lng, clock_in_note
		) VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (worker_id) WHERE clock_out_at IS NULL DO NOTHING
		RETURNING `+recordColumns,
		uuid.NewString(), input.WorkerID, input.WorkerName, clockInAt, input.Lat, input.Lng, input.Note)

	record, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.ClockRecord{}, store.ErrOpenSessionExists
		}
		return models.ClockRecord{}, err
	}
	return record, nil
}

func (s *Store) ClockOut(ctx context.Context, input store.ClockOutInput) (models.ClockRecord, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.ClockRecord{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	var ownerID string
	var closedAt sql.NullTime
	row := tx.QueryRow(ctx, `
		SELECT worker_id, clock_out_at FROM clock_records WHERE record_id = $1 FOR UPDATE
	`, input.RecordID)
	if err = row.Scan(&ownerID, &closedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = store.ErrRecordNotFound
		}
		return models.ClockRecord{}, err
	}
	if input.WorkerID != "" && ownerID != input.WorkerID {
		err = store.ErrRecordNotFound
		return models.ClockRecord{}, err
	}

	state := store.StateOpen
	if closedAt.Valid {
		state = store.StateNone
	}
	if !store.ValidTransition(store.ActionClockOut, state) {
		err = store.ErrRecordClosed
		return models.ClockRecord{}, err
	}

	clockOutAt := input.ClockOutAt
	if clockOutAt.IsZero() {
		clockOutAt = time.Now().UTC()
	}

	// Partial update: absent fields keep their stored values.
	row = tx.QueryRow(ctx, `
		UPDATE clock_records
		SET clock_out_at = $2,
			clock_out_lat = COALESCE($3, clock_out_lat),
			clock_out_lng = COALESCE($4, clock_out_lng),
			clock_out_note = CASE WHEN $5 <> '' THEN $5 ELSE clock_out_note END
		WHERE record_id = $1
		RETURNING `+recordColumns,
		input.RecordID, clockOutAt, input.Lat, input.Lng, input.Note)

	record, err := scanRecord(row)
	if err != nil {
		return models.ClockRecord{}, err
	}

	if err = tx.Commit(ctx); err != nil {
		return models.ClockRecord{}, err
	}
	return record, nil
}

func (s *Store) FindOpenSession(ctx context.Context, workerID string, since time.Time, limit int) (models.ClockRecord, bool, error) {
	if limit <= 0 {
		limit = 10
	}

	// The open-record filter runs in Go over a bounded window rather than in
	// SQL, matching the query shape of the original store. An open session
	// buried under more than limit newer same-day records is missed.
	rows, err := s.pool.Query(ctx, `
		SELECT `+recordColumns+`
		FROM clock_records
		WHERE worker_id = $1 AND clock_in_at >= $2
		ORDER BY clock_in_at DESC
		LIMIT $3
	`, workerID, since, limit)
	if err != nil {
		return models.ClockRecord{}, false, err
	}
	defer rows.Close()

	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return models.ClockRecord{}, false, err
		}
		if record.Open() {
			return record, true, nil
		}
	}
	if err := rows.Err(); err != nil {
		return models.ClockRecord{}, false, err
	}
	return models.ClockRecord{}, false, nil
}

func (s *Store) History(ctx context.Context, workerID string, limit int) ([]models.ClockRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+recordColumns+`
		FROM clock_records
		WHERE worker_id = $1
		ORDER BY clock_in_at DESC
		LIMIT $2
	`, workerID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRecords(rows)
}

func (s *Store) SnapshotRecords(ctx context.Context, since time.Time) ([]models.ClockRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+recordColumns+`
		FROM clock_records
		WHERE clock_in_at >= $1
		ORDER BY clock_in_at DESC
	`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRecords(rows)
}

func (s *Store) ListPerimeters(ctx context.Context) ([]models.Perimeter, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT perimeter_id, name, latitude, longitude, radius_km
		FROM perimeters
		ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var perimeters []models.Perimeter
	for rows.Next() {
		var p models.Perimeter
		if err := rows.Scan(&p.PerimeterID, &p.Name, &p.Latitude, &p.Longitude, &p.RadiusKm); err != nil {
			return nil, err
		}
		perimeters = append(perimeters, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return perimeters, nil
}

func (s *Store) CreatePerimeter(ctx context.Context, input store.CreatePerimeterInput) (models.Perimeter, error) {
	perimeter := models.Perimeter{
		PerimeterID: uuid.NewString(),
		Name:        input.Name,
		Latitude:    input.Latitude,
		Longitude:   input.Longitude,
		RadiusKm:    input.RadiusKm,
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO perimeters (perimeter_id, name, latitude, longitude, radius_km, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, perimeter.PerimeterID, perimeter.Name, perimeter.Latitude, perimeter.Longitude, perimeter.RadiusKm, time.Now().UTC())
	if err != nil {
		return models.Perimeter{}, err
	}
	return perimeter, nil
}

func (s *Store) DeletePerimeter(ctx context.Context, perimeterID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM perimeters WHERE perimeter_id = $1`, perimeterID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrPerimeterNotFound
	}
	return nil
}

func (s *Store) SignUp(ctx context.Context, input store.SignUpInput) (models.User, models.Session, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return models.User{}, models.Session{}, err
	}

	user := models.User{
		UserID:      uuid.NewString(),
		Email:       input.Email,
		DisplayName: input.DisplayName,
		Role:        input.Role,
		CreatedAt:   time.Now().UTC(),
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO users (user_id, email, display_name, role, password_hash, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, user.UserID, user.Email, user.DisplayName, user.Role, string(hash), user.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return models.User{}, models.Session{}, store.ErrEmailTaken
		}
		return models.User{}, models.Session{}, err
	}

	session, err := s.createSession(ctx, user.UserID)
	if err != nil {
		return models.User{}, models.Session{}, err
	}
	return user, session, nil
}

func (s *Store) Login(ctx context.Context, input store.LoginInput) (models.User, models.Session, error) {
	var user models.User
	var passwordHash string
	row := s.pool.QueryRow(ctx, `
		SELECT user_id, email, display_name, role, password_hash, created_at
		FROM users WHERE email = $1
	`, input.Email)
	if err := row.Scan(&user.UserID, &user.Email, &user.DisplayName, &user.Role, &passwordHash, &user.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, models.Session{}, store.ErrInvalidCredentials
		}
		return models.User{}, models.Session{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(passwordHash), []byte(input.Password)); err != nil {
		return models.User{}, models.Session{}, store.ErrInvalidCredentials
	}

	session, err := s.createSession(ctx, user.UserID)
	if err != nil {
		return models.User{}, models.Session{}, err
	}
	return user, session, nil
}

func (s *Store) GetSession(ctx context.Context, sessionID string) (models.Session, models.User, error) {
	var session models.Session
	var user models.User
	// A session whose user profile is gone is invalid, not an internal error.
	row := s.pool.QueryRow(ctx, `
		SELECT s.session_id, s.user_id, s.expires_at, u.email, u.display_name, u.role, u.created_at
		FROM sessions s
		JOIN users u ON u.user_id = s.user_id
		WHERE s.session_id = $1
	`, sessionID)
	err := row.Scan(&session.SessionID, &session.UserID, &session.ExpiresAt,
		&user.Email, &user.DisplayName, &user.Role, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Session{}, models.User{}, store.ErrSessionNotFound
		}
		return models.Session{}, models.User{}, err
	}
	if time.Now().UTC().After(session.ExpiresAt) {
		return models.Session{}, models.User{}, store.ErrSessionNotFound
	}
	user.UserID = session.UserID
	return session, user, nil
}

func (s *Store) createSession(ctx context.Context, userID string) (models.Session, error) {
	session := models.Session{
		SessionID: uuid.NewString(),
		UserID:    userID,
		ExpiresAt: time.Now().UTC().Add(s.sessionTTL),
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO sessions (session_id, user_id, expires_at, created_at)
		VALUES ($1,$2,$3,$4)
	`, session.SessionID, session.UserID, session.ExpiresAt, time.Now().UTC())
	if err != nil {
		return models.Session{}, err
	}
	return session, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row rowScanner) (models.ClockRecord, error) {
	var record models.ClockRecord
	var outAt sql.NullTime
	var outLat, outLng sql.NullFloat64
	err := row.Scan(&record.RecordID, &record.WorkerID, &record.WorkerName,
		&record.ClockInAt, &record.ClockInLat, &record.ClockInLng, &record.ClockInNote,
		&outAt, &outLat, &outLng, &record.ClockOutNote)
	if err != nil {
		return models.ClockRecord{}, err
	}
	if outAt.Valid {
		t := outAt.Time
		record.ClockOutAt = &t
	}
	if outLat.Valid {
		v := outLat.Float64
		record.ClockOutLat = &v
	}
	if outLng.Valid {
		v := outLng.Float64
		record.ClockOutLng = &v
	}
	return record, nil
}

func collectRecords(rows pgx.Rows) ([]models.ClockRecord, error) {
	var records []models.ClockRecord
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}
