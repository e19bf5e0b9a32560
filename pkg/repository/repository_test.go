package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/jgirmay/circle_realtime/pkg/database"
	"github.com/jgirmay/circle_realtime/pkg/models"
)

// setupTestDB creates an in-memory SQLite database for testing
func setupTestDB(t *testing.T) *gorm.DB {
	db, err := database.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() {
		sqlDB, _ := db.DB()
		sqlDB.Close()
	})
	return db
}

func openRecord(t *testing.T, repo PresenceRepository, userID, connID string, connectedAt time.Time) *models.PresenceRecord {
	record := &models.PresenceRecord{
		ID:           uuid.New().String(),
		UserID:       userID,
		ConnectionID: connID,
		ConnectedAt:  models.FormatTimestamp(connectedAt),
		CreatedAt:    connectedAt.UTC(),
		UpdatedAt:    connectedAt.UTC(),
	}
	require.NoError(t, repo.Create(context.Background(), record))
	return record
}

func TestPresenceCloseOnlyOnce(t *testing.T) {
	db := setupTestDB(t)
	repo := NewPresenceRepository(db)
	ctx := context.Background()
	start := time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)

	openRecord(t, repo, "u1", "c1", start)

	closed, err := repo.CloseOpenByConnection(ctx, "c1", start.Add(time.Minute), 60)
	require.NoError(t, err)
	assert.Equal(t, int64(1), closed)

	closed, err = repo.CloseOpenByConnection(ctx, "c1", start.Add(2*time.Minute), 120)
	require.NoError(t, err)
	assert.Equal(t, int64(0), closed, "second close must not touch a closed row")

	records, err := repo.ListByUser(ctx, "u1", 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.NotNil(t, records[0].DurationSeconds)
	assert.Equal(t, 60.0, *records[0].DurationSeconds)
	assert.Equal(t, models.FormatTimestamp(start.Add(time.Minute)), *records[0].DisconnectedAt)
}

func TestPresenceCloseUnknownConnection(t *testing.T) {
	repo := NewPresenceRepository(setupTestDB(t))

	closed, err := repo.CloseOpenByConnection(context.Background(), "ghost", time.Now(), 1)
	require.NoError(t, err)
	assert.Equal(t, int64(0), closed)
}

func TestPresenceStaleAndActiveQueries(t *testing.T) {
	db := setupTestDB(t)
	repo := NewPresenceRepository(db)
	ctx := context.Background()
	now := time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC)

	openRecord(t, repo, "u1", "old", now.Add(-61*time.Minute))
	openRecord(t, repo, "u2", "fresh", now.Add(-10*time.Minute))

	stale, err := repo.ListOpenUpdatedBefore(ctx, now.Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, "old", stale[0].ConnectionID)

	active, err := repo.ListOpenUpdatedSince(ctx, now.Add(-30*time.Minute))
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "fresh", active[0].ConnectionID)

	// a touch makes the old record fresh again
	require.NoError(t, repo.Touch(ctx, "old", now))
	stale, err = repo.ListOpenUpdatedBefore(ctx, now.Add(-time.Hour))
	require.NoError(t, err)
	assert.Empty(t, stale)
}

func TestPresenceSummary(t *testing.T) {
	db := setupTestDB(t)
	repo := NewPresenceRepository(db)
	ctx := context.Background()
	now := time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC)

	openRecord(t, repo, "u1", "c1", now.Add(-2*time.Hour))
	openRecord(t, repo, "u1", "c2", now.Add(-90*time.Minute))
	openRecord(t, repo, "u2", "c3", now.Add(-5*time.Minute))

	_, err := repo.CloseOpenByConnection(ctx, "c1", now.Add(-110*time.Minute), 600)
	require.NoError(t, err)
	_, err = repo.CloseOpenByConnection(ctx, "c2", now.Add(-80*time.Minute), 300)
	require.NoError(t, err)

	summary, err := repo.Summary(ctx, now.Add(-30*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(3), summary.Total)
	assert.Equal(t, int64(1), summary.Active)
	assert.InDelta(t, 450.0, summary.AverageDuration, 0.001)
	assert.Equal(t, int64(2), summary.UniqueUsers)
}

func TestPresenceListConnectedBetween(t *testing.T) {
	repo := NewPresenceRepository(setupTestDB(t))
	base := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)

	openRecord(t, repo, "u1", "before", base.Add(-time.Minute))
	openRecord(t, repo, "u1", "inside", base.Add(time.Hour))
	openRecord(t, repo, "u2", "edge", base.Add(24*time.Hour))
	openRecord(t, repo, "u2", "after", base.Add(25*time.Hour))

	records, err := repo.ListConnectedBetween(context.Background(), base, base.Add(24*time.Hour))
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "inside", records[0].ConnectionID)
	assert.Equal(t, "edge", records[1].ConnectionID)
}

func TestPreferencesGetOrCreateDefaults(t *testing.T) {
	repo := NewPreferenceRepository(setupTestDB(t))
	ctx := context.Background()

	_, err := repo.Get(ctx, "u1")
	assert.ErrorIs(t, err, ErrNotFound)

	prefs, err := repo.GetOrCreate(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, models.FrequencyImmediate, prefs.MentionEmail)
	assert.Equal(t, models.FrequencyDaily, prefs.LikeEmail)
	assert.Equal(t, models.FrequencyImmediate, prefs.ReplyEmail)

	again, err := repo.GetOrCreate(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, prefs.ID, again.ID)
}

func TestPreferencesUpdate(t *testing.T) {
	repo := NewPreferenceRepository(setupTestDB(t))
	ctx := context.Background()

	weekly := models.FrequencyWeekly
	none := models.FrequencyNone
	prefs, err := repo.Update(ctx, "u1", PreferenceUpdate{LikeEmail: &weekly, ReplyEmail: &none})
	require.NoError(t, err)
	assert.Equal(t, models.FrequencyImmediate, prefs.MentionEmail)
	assert.Equal(t, models.FrequencyWeekly, prefs.LikeEmail)
	assert.Equal(t, models.FrequencyNone, prefs.ReplyEmail)
}

func TestNotificationSoftDelete(t *testing.T) {
	repo := NewNotificationRepository(setupTestDB(t))
	ctx := context.Background()

	keep := &models.Notification{ID: uuid.New().String(), RecipientID: "u1", SenderID: "u2", Type: models.NotificationLike,
		Data: models.JSONMap{"post_id": "p1", "content": "hello"}}
	gone := &models.Notification{ID: uuid.New().String(), RecipientID: "u1", SenderID: "u3", Type: models.NotificationMention}
	require.NoError(t, repo.Create(ctx, keep))
	require.NoError(t, repo.Create(ctx, gone))
	require.NoError(t, repo.Delete(ctx, gone.ID))

	found, err := repo.GetByIDs(ctx, []string{keep.ID, gone.ID, "missing"})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "p1", found[keep.ID].Data.String("post_id"))

	_, err = repo.GetByID(ctx, gone.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	list, err := repo.ListByRecipient(ctx, "u1", 10)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestPendingDigestDueAndMarkSent(t *testing.T) {
	repo := NewPendingDigestRepository(setupTestDB(t))
	ctx := context.Background()
	now := time.Date(2024, 3, 5, 8, 0, 0, 0, time.UTC)

	due := &models.PendingDigestItem{ID: uuid.New().String(), UserID: "u1", NotificationID: "n1",
		NotificationType: models.NotificationLike, Frequency: models.FrequencyDaily, ScheduledFor: now}
	future := &models.PendingDigestItem{ID: uuid.New().String(), UserID: "u1", NotificationID: "n2",
		NotificationType: models.NotificationLike, Frequency: models.FrequencyDaily, ScheduledFor: now.Add(24 * time.Hour)}
	weekly := &models.PendingDigestItem{ID: uuid.New().String(), UserID: "u1", NotificationID: "n3",
		NotificationType: models.NotificationReply, Frequency: models.FrequencyWeekly, ScheduledFor: now.Add(-time.Hour)}
	for _, item := range []*models.PendingDigestItem{due, future, weekly} {
		require.NoError(t, repo.Create(ctx, item))
	}

	items, err := repo.ListDue(ctx, models.FrequencyDaily, now)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, due.ID, items[0].ID)

	marked, err := repo.MarkSent(ctx, []string{due.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(1), marked)

	marked, err = repo.MarkSent(ctx, []string{due.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(0), marked)

	items, err = repo.ListDue(ctx, models.FrequencyDaily, now)
	require.NoError(t, err)
	assert.Empty(t, items)

	assert.NoError(t, repo.Ping(ctx))
}

func TestUserLookup(t *testing.T) {
	db := setupTestDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	require.NoError(t, db.Create(&models.User{ID: "u1", Username: "ada", Email: "ada@example.com"}).Error)

	user, err := repo.GetByID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "ada", user.Username)

	_, err = repo.GetByID(ctx, "nobody")
	assert.ErrorIs(t, err, ErrNotFound)

	users, err := repo.GetByIDs(ctx, []string{"u1", "nobody"})
	require.NoError(t, err)
	assert.Len(t, users, 1)
}

func TestJobLockLease(t *testing.T) {
	db := setupTestDB(t)
	repo := NewJobLockRepository(db).(*JobLockRepositoryImpl)
	ctx := context.Background()
	now := time.Date(2024, 3, 5, 8, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return now }

	ok, err := repo.Acquire(ctx, "digest:daily", "a", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.Acquire(ctx, "digest:daily", "b", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "lease is held by a")

	ok, err = repo.Acquire(ctx, "digest:daily", "a", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "owner renews its own lease")

	released, err := repo.Release(ctx, "digest:daily", "b")
	require.NoError(t, err)
	assert.False(t, released)

	// lease expires
	repo.now = func() time.Time { return now.Add(2 * time.Minute) }
	ok, err = repo.Acquire(ctx, "digest:daily", "b", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	released, err = repo.Release(ctx, "digest:daily", "b")
	require.NoError(t, err)
	assert.True(t, released)
}
