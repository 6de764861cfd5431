package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"slack-summarizer/internal/domain"
	"slack-summarizer/internal/infra/metrics"
)

// Postgres реализует репозитории на основе pgxpool.
type Postgres struct {
	pool *pgxpool.Pool
}

var (
	_ domain.MessageRepo     = (*Postgres)(nil)
	_ domain.SummaryRepo     = (*Postgres)(nil)
	_ domain.PreferencesRepo = (*Postgres)(nil)
)

// NewPostgres создаёт адаптер БД.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) connCtxWithParent(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		return context.WithTimeout(context.Background(), 5*time.Second)
	}
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, 5*time.Second)
}

// SaveMessage реализует domain.MessageRepo. Конфликт по id — no-op:
// повторная доставка не перетирает уже сохранённое сообщение.
func (p *Postgres) SaveMessage(ctx context.Context, msg domain.Message) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
INSERT INTO messages (id, channel_id, channel_name, author_id, author_name, body, posted_at, thread_id, created_at)
VALUES ($1, $2, NULLIF($3,''), $4, NULLIF($5,''), $6, $7, NULLIF($8,''), $9)
ON CONFLICT (id) DO NOTHING
`, msg.ID, msg.ChannelID, msg.ChannelName, msg.AuthorID, msg.AuthorName, msg.Text, msg.PostedAt, msg.ThreadID, msg.CreatedAt)
	metrics.ObserveNetworkRequest("postgres", "messages_insert", "messages", start, err)
	return err
}

// ListMessages возвращает сообщения окна [start, end) в хронологическом
// порядке; при равных posted_at порядок стабилизируется по id.
func (p *Postgres) ListMessages(ctx context.Context, channelIDs []string, from, to time.Time) ([]domain.Message, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	query := `
SELECT id, channel_id, COALESCE(channel_name,''), author_id, COALESCE(author_name,''), body, posted_at, COALESCE(thread_id,''), created_at
FROM messages
WHERE posted_at >= $1 AND posted_at < $2`
	args := []any{from, to}
	if len(channelIDs) > 0 {
		query += ` AND channel_id = ANY($3)`
		args = append(args, channelIDs)
	}
	query += ` ORDER BY posted_at, id`

	start := time.Now()
	rows, err := p.pool.Query(ctx, query, args...)
	metrics.ObserveNetworkRequest("postgres", "messages_list", "messages", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []domain.Message
	for rows.Next() {
		var msg domain.Message
		if err := rows.Scan(&msg.ID, &msg.ChannelID, &msg.ChannelName, &msg.AuthorID, &msg.AuthorName, &msg.Text, &msg.PostedAt, &msg.ThreadID, &msg.CreatedAt); err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// DeleteMessagesBefore удаляет сообщения старше отметки и возвращает число
// удалённых строк.
func (p *Postgres) DeleteMessagesBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	tag, err := p.pool.Exec(ctx, `DELETE FROM messages WHERE posted_at < $1`, cutoff)
	metrics.ObserveNetworkRequest("postgres", "messages_prune", "messages", start, err)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// CreateSummary сохраняет сводку и возвращает её с заполненными полями.
func (p *Postgres) CreateSummary(ctx context.Context, summary domain.Summary) (domain.Summary, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	if summary.ID == "" {
		summary.ID = uuid.NewString()
	}
	if summary.CreatedAt.IsZero() {
		summary.CreatedAt = time.Now().UTC()
	}
	if summary.RenderStatus == "" {
		summary.RenderStatus = domain.RenderPending
	}

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
INSERT INTO summaries (id, summary_type, range_start, range_end, channel_ids, message_count, dropped_count, body, render_status, render_handle, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NULLIF($10,''), $11)
`, summary.ID, summary.Type, summary.RangeStart, summary.RangeEnd, summary.ChannelIDs, summary.MessageCount, summary.DroppedCount, summary.BodyText, summary.RenderStatus, summary.RenderHandle, summary.CreatedAt)
	metrics.ObserveNetworkRequest("postgres", "summaries_insert", "summaries", start, err)
	if err != nil {
		return domain.Summary{}, err
	}
	return summary, nil
}

const summaryColumns = `id, summary_type, range_start, range_end, channel_ids, message_count, dropped_count, body, render_status, COALESCE(render_handle,''), created_at`

// GetSummary возвращает сводку по идентификатору.
func (p *Postgres) GetSummary(ctx context.Context, id string) (domain.Summary, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	row := p.pool.QueryRow(ctx, `SELECT `+summaryColumns+` FROM summaries WHERE id = $1`, id)
	summary, err := scanSummary(row)
	metrics.ObserveNetworkRequest("postgres", "summaries_get", "summaries", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Summary{}, domain.ErrSummaryNotFound
	}
	if err != nil {
		return domain.Summary{}, err
	}
	return summary, nil
}

// ListSummaries возвращает сводки от новых к старым.
func (p *Postgres) ListSummaries(ctx context.Context, limit, offset int) ([]domain.Summary, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT `+summaryColumns+`
FROM summaries
ORDER BY created_at DESC
LIMIT $1 OFFSET $2
`, limit, offset)
	metrics.ObserveNetworkRequest("postgres", "summaries_list", "summaries", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var summaries []domain.Summary
	for rows.Next() {
		summary, err := scanSummary(rows)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, summary)
	}
	return summaries, rows.Err()
}

// UpdateRenderStatus меняет только статус рендеринга и handle документа.
// Текст сводки при этом не затрагивается.
func (p *Postgres) UpdateRenderStatus(ctx context.Context, id string, status domain.RenderStatus, handle string) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	tag, err := p.pool.Exec(ctx, `
UPDATE summaries SET render_status = $2, render_handle = NULLIF($3,'') WHERE id = $1
`, id, status, handle)
	metrics.ObserveNetworkRequest("postgres", "summaries_render_status", "summaries", start, err)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrSummaryNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSummary(row rowScanner) (domain.Summary, error) {
	var summary domain.Summary
	err := row.Scan(&summary.ID, &summary.Type, &summary.RangeStart, &summary.RangeEnd, &summary.ChannelIDs, &summary.MessageCount, &summary.DroppedCount, &summary.BodyText, &summary.RenderStatus, &summary.RenderHandle, &summary.CreatedAt)
	return summary, err
}

// GetPreferences возвращает настройки рабочего пространства, при
// отсутствии записи — значения по умолчанию.
func (p *Postgres) GetPreferences(ctx context.Context) (domain.Preferences, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	row := p.pool.QueryRow(ctx, `
SELECT summary_style, include_threads, filter_channels, COALESCE(notification_channel,''), updated_at
FROM preferences WHERE id = 1
`)
	var prefs domain.Preferences
	err := row.Scan(&prefs.SummaryStyle, &prefs.IncludeThreads, &prefs.FilterChannels, &prefs.NotificationChannel, &prefs.UpdatedAt)
	metrics.ObserveNetworkRequest("postgres", "preferences_get", "preferences", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Preferences{
			SummaryStyle:   domain.StyleTechnical,
			IncludeThreads: true,
		}, nil
	}
	if err != nil {
		return domain.Preferences{}, err
	}
	return prefs, nil
}

// SavePreferences сохраняет настройки. Запись всегда одна.
func (p *Postgres) SavePreferences(ctx context.Context, prefs domain.Preferences) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
INSERT INTO preferences (id, summary_style, include_threads, filter_channels, notification_channel, updated_at)
VALUES (1, $1, $2, $3, NULLIF($4,''), now())
ON CONFLICT (id) DO UPDATE SET summary_style = EXCLUDED.summary_style, include_threads = EXCLUDED.include_threads, filter_channels = EXCLUDED.filter_channels, notification_channel = EXCLUDED.notification_channel, updated_at = now()
`, prefs.SummaryStyle, prefs.IncludeThreads, prefs.FilterChannels, prefs.NotificationChannel)
	metrics.ObserveNetworkRequest("postgres", "preferences_upsert", "preferences", start, err)
	return err
}
