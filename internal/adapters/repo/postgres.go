package repo

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"brodi-nudge/internal/domain"
	"brodi-nudge/internal/infra/metrics"
)

// Postgres реализует репозитории на основе pgxpool.
type Postgres struct {
	pool *pgxpool.Pool
}

var _ domain.PreferencesRepo = (*Postgres)(nil)
var _ domain.InteractionRepo = (*Postgres)(nil)
var _ domain.NudgeHistoryRepo = (*Postgres)(nil)
var _ domain.PatternRepo = (*Postgres)(nil)
var _ domain.NudgeJobStatusRepo = (*Postgres)(nil)

// NewPostgres создаёт адаптер БД.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) connCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 5*time.Second)
}

func (p *Postgres) connCtxWithParent(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		return p.connCtx()
	}
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, 5*time.Second)
}

// GetPreferences возвращает настройки пользователя. Отсутствие записи —
// не ошибка: действуют значения по умолчанию (normal, без тихих часов).
func (p *Postgres) GetPreferences(ctx context.Context, userID string) (domain.UserPreferences, bool, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	var (
		prefs      domain.UserPreferences
		quietStart sql.NullInt32
		quietEnd   sql.NullInt32
		frequency  string
		tzValue    sql.NullString
	)
	start := time.Now()
	err := p.pool.QueryRow(ctx, `
SELECT user_id, quiet_start_hour, quiet_end_hour, frequency, tz, proactive_nudges, updated_at
FROM user_preferences WHERE user_id=$1
`, userID).Scan(&prefs.UserID, &quietStart, &quietEnd, &frequency, &tzValue, &prefs.ProactiveNudges, &prefs.UpdatedAt)
	metrics.ObserveNetworkRequest("postgres", "preferences_get", "user_preferences", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.UserPreferences{UserID: userID, Frequency: domain.FrequencyNormal}, false, nil
	}
	if err != nil {
		return domain.UserPreferences{}, false, err
	}
	prefs.Frequency = domain.ParseFrequencyPreference(frequency)
	if quietStart.Valid && quietEnd.Valid {
		s := int(quietStart.Int32)
		e := int(quietEnd.Int32)
		prefs.QuietStartHour = &s
		prefs.QuietEndHour = &e
	}
	if tzValue.Valid {
		prefs.Timezone = tzValue.String
	}
	return prefs, true, nil
}

// ListProactiveUsers возвращает пользователей с включёнными проактивными сообщениями.
func (p *Postgres) ListProactiveUsers(ctx context.Context) ([]domain.UserPreferences, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT user_id, quiet_start_hour, quiet_end_hour, frequency, tz, proactive_nudges, updated_at
FROM user_preferences WHERE proactive_nudges
`)
	metrics.ObserveNetworkRequest("postgres", "preferences_list_proactive", "user_preferences", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var users []domain.UserPreferences
	for rows.Next() {
		var (
			prefs      domain.UserPreferences
			quietStart sql.NullInt32
			quietEnd   sql.NullInt32
			frequency  string
			tzValue    sql.NullString
		)
		if err := rows.Scan(&prefs.UserID, &quietStart, &quietEnd, &frequency, &tzValue, &prefs.ProactiveNudges, &prefs.UpdatedAt); err != nil {
			return nil, err
		}
		prefs.Frequency = domain.ParseFrequencyPreference(frequency)
		if quietStart.Valid && quietEnd.Valid {
			s := int(quietStart.Int32)
			e := int(quietEnd.Int32)
			prefs.QuietStartHour = &s
			prefs.QuietEndHour = &e
		}
		if tzValue.Valid {
			prefs.Timezone = tzValue.String
		}
		users = append(users, prefs)
	}
	return users, rows.Err()
}

// ListRecentInteractions возвращает последние записи журнала указанного типа.
func (p *Postgres) ListRecentInteractions(ctx context.Context, userID string, t domain.InteractionType, limit int) ([]domain.InteractionRecord, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT id, user_id, interaction_type, occurred_at, effectiveness
FROM interaction_history
WHERE user_id=$1 AND interaction_type=$2
ORDER BY occurred_at DESC
LIMIT $3
`, userID, t, limit)
	metrics.ObserveNetworkRequest("postgres", "interactions_list_recent", "interaction_history", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var records []domain.InteractionRecord
	for rows.Next() {
		var (
			rec           domain.InteractionRecord
			effectiveness sql.NullFloat64
		)
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.Type, &rec.OccurredAt, &effectiveness); err != nil {
			return nil, err
		}
		if effectiveness.Valid {
			v := effectiveness.Float64
			rec.Effectiveness = &v
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// AppendInteraction добавляет запись журнала.
func (p *Postgres) AppendInteraction(ctx context.Context, rec domain.InteractionRecord) (domain.InteractionRecord, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	if rec.OccurredAt.IsZero() {
		rec.OccurredAt = time.Now().UTC()
	}
	var effectiveness sql.NullFloat64
	if rec.Effectiveness != nil {
		effectiveness = sql.NullFloat64{Float64: *rec.Effectiveness, Valid: true}
	}

	start := time.Now()
	err := p.pool.QueryRow(ctx, `
INSERT INTO interaction_history (user_id, interaction_type, occurred_at, effectiveness)
VALUES ($1, $2, $3, $4)
RETURNING id
`, rec.UserID, rec.Type, rec.OccurredAt, effectiveness).Scan(&rec.ID)
	metrics.ObserveNetworkRequest("postgres", "interactions_insert", "interaction_history", start, err)
	if err != nil {
		return domain.InteractionRecord{}, err
	}
	return rec, nil
}

// ListRecentNudges возвращает решения пользователя начиная с since.
func (p *Postgres) ListRecentNudges(ctx context.Context, userID string, since time.Time) ([]domain.NudgeHistoryEntry, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT id, user_id, nudge_type, scheduled_at, context_score, created_at
FROM nudge_history
WHERE user_id=$1 AND scheduled_at >= $2
ORDER BY scheduled_at DESC
`, userID, since)
	metrics.ObserveNetworkRequest("postgres", "nudges_list_recent", "nudge_history", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []domain.NudgeHistoryEntry
	for rows.Next() {
		var entry domain.NudgeHistoryEntry
		if err := rows.Scan(&entry.ID, &entry.UserID, &entry.NudgeType, &entry.ScheduledAt, &entry.ContextScore, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// AppendNudge сохраняет принятое решение планирования.
func (p *Postgres) AppendNudge(ctx context.Context, entry domain.NudgeHistoryEntry) (domain.NudgeHistoryEntry, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	err := p.pool.QueryRow(ctx, `
INSERT INTO nudge_history (user_id, nudge_type, scheduled_at, context_score)
VALUES ($1, $2, $3, $4)
RETURNING id, created_at
`, entry.UserID, entry.NudgeType, entry.ScheduledAt, entry.ContextScore).Scan(&entry.ID, &entry.CreatedAt)
	metrics.ObserveNetworkRequest("postgres", "nudges_insert", "nudge_history", start, err)
	if err != nil {
		return domain.NudgeHistoryEntry{}, err
	}
	return entry, nil
}

// ListPatterns возвращает паттерны пользователя по убыванию уверенности.
func (p *Postgres) ListPatterns(ctx context.Context, userID string) ([]domain.PatternAnalysis, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT user_id, pattern_type, confidence, payload, computed_at
FROM pattern_analysis
WHERE user_id=$1
ORDER BY confidence DESC
`, userID)
	metrics.ObserveNetworkRequest("postgres", "patterns_list", "pattern_analysis", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var patterns []domain.PatternAnalysis
	for rows.Next() {
		var (
			pattern domain.PatternAnalysis
			payload []byte
		)
		if err := rows.Scan(&pattern.UserID, &pattern.Type, &pattern.Confidence, &payload, &pattern.ComputedAt); err != nil {
			return nil, err
		}
		if len(payload) > 0 {
			pattern.Payload = make([]byte, len(payload))
			copy(pattern.Payload, payload)
		}
		patterns = append(patterns, pattern)
	}
	return patterns, rows.Err()
}

// EnsureNudgeJob регистрирует попытку обработки задачи доставки.
func (p *Postgres) EnsureNudgeJob(ctx context.Context, jobID string) (bool, int, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	var (
		delivered sql.NullTime
		attempts  int
	)
	start := time.Now()
	err := p.pool.QueryRow(ctx, `
INSERT INTO nudge_job_statuses (job_id, attempts, updated_at)
VALUES ($1, 1, now())
ON CONFLICT (job_id) DO UPDATE
    SET attempts = nudge_job_statuses.attempts + 1,
        updated_at = now()
RETURNING delivered_at, attempts
`, jobID).Scan(&delivered, &attempts)
	metrics.ObserveNetworkRequest("postgres", "nudge_job_statuses_upsert", "nudge_job_statuses", start, err)
	if err != nil {
		return false, 0, err
	}
	return delivered.Valid, attempts, nil
}

// MarkNudgeJobDelivered помечает задачу как доставленную.
func (p *Postgres) MarkNudgeJobDelivered(ctx context.Context, jobID string) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
UPDATE nudge_job_statuses
SET delivered_at = COALESCE(delivered_at, now()),
    updated_at = now()
WHERE job_id = $1
`, jobID)
	metrics.ObserveNetworkRequest("postgres", "nudge_job_statuses_mark_delivered", "nudge_job_statuses", start, err)
	return err
}
