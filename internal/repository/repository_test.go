package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"fanhub/internal/model"
	"fanhub/pkg/utils"
)

func TestUserRepository_GetByID(t *testing.T) {
	db, mock := setupTestDB(t)
	repo := NewUserRepository(db)

	mock.ExpectQuery("SELECT \\* FROM `users` WHERE id = \\?").
		WithArgs(uint64(1), 1).
		WillReturnRows(sqlmock.NewRows([]string{"id", "username", "balance", "status"}).
			AddRow(1, "fan", 10000, model.UserStatusNormal))
	mock.ExpectQuery("SELECT \\* FROM `users` WHERE id = \\?").
		WithArgs(uint64(2), 1).
		WillReturnError(gorm.ErrRecordNotFound)

	u, err := repo.GetByID(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, int64(10000), u.Balance)
	assert.True(t, u.IsActive())

	_, err = repo.GetByID(context.Background(), 2)
	assert.ErrorIs(t, err, utils.ErrNotFound)
}

func TestPerformerRepository(t *testing.T) {
	ctx := context.Background()

	t.Run("RemoveCategory", func(t *testing.T) {
		db, mock := setupTestDB(t)
		repo := NewPerformerRepository(db)

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT `id`,`category_ids` FROM `performers` WHERE JSON_CONTAINS\\(category_ids, \\?\\) LIMIT \\? FOR UPDATE").
			WithArgs("7", 2).
			WillReturnRows(sqlmock.NewRows([]string{"id", "category_ids"}).
				AddRow(1, "[3,7]").
				AddRow(2, "[7]"))
		mock.ExpectExec("UPDATE `performers` SET `category_ids`=\\?.* WHERE id = \\?").
			WithArgs("[3]", sqlmock.AnyArg(), uint64(1)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("UPDATE `performers` SET `category_ids`=\\?.* WHERE id = \\?").
			WithArgs("[]", sqlmock.AnyArg(), uint64(2)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT `id`,`category_ids` FROM `performers`").
			WillReturnRows(sqlmock.NewRows([]string{"id", "category_ids"}))
		mock.ExpectCommit()

		changed, err := repo.RemoveCategory(ctx, 7, 2)
		require.NoError(t, err)
		assert.Equal(t, int64(2), changed)
	})
}

func TestCatalogRepository(t *testing.T) {
	ctx := context.Background()

	t.Run("ApplyLike", func(t *testing.T) {
		db, mock := setupTestDB(t)
		repo := NewCatalogRepository(db)

		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO `reaction_counts`").WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectExec("UPDATE `videos` SET `total_likes`=total_likes \\+ \\? WHERE id = \\?").
			WithArgs(int64(1), uint64(9)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("UPDATE `performers` SET `total_likes`=total_likes \\+ \\? WHERE id = \\?").
			WithArgs(int64(1), uint64(2)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		applied, err := repo.ApplyLike(ctx, LikeChange{
			ReactionID: 5, Event: "Created", ObjectType: model.ReactionObjectVideo, ObjectID: 9, PerformerID: 2, Delta: 1,
		})
		require.NoError(t, err)
		assert.True(t, applied)
	})

	t.Run("UnlikeNeverNegative", func(t *testing.T) {
		db, mock := setupTestDB(t)
		repo := NewCatalogRepository(db)

		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO `reaction_counts`").WillReturnResult(sqlmock.NewResult(2, 1))
		mock.ExpectExec("UPDATE `feeds` SET `total_likes`=total_likes \\+ \\? WHERE id = \\? AND total_likes >= \\?").
			WithArgs(int64(-1), uint64(9), int64(1)).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectCommit()

		applied, err := repo.ApplyLike(ctx, LikeChange{
			ReactionID: 5, Event: "Deleted", ObjectType: model.ReactionObjectFeed, ObjectID: 9, Delta: -1,
		})
		require.NoError(t, err)
		assert.True(t, applied)
	})

	t.Run("RepeatedEventMovesNothing", func(t *testing.T) {
		db, mock := setupTestDB(t)
		repo := NewCatalogRepository(db)

		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO `reaction_counts`").
			WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry"})
		mock.ExpectCommit()

		applied, err := repo.ApplyLike(ctx, LikeChange{
			ReactionID: 5, Event: "Created", ObjectType: model.ReactionObjectVideo, ObjectID: 9, PerformerID: 2, Delta: 1,
		})
		require.NoError(t, err)
		assert.False(t, applied)
	})

	t.Run("PerformerFailureRollsBackBoth", func(t *testing.T) {
		db, mock := setupTestDB(t)
		repo := NewCatalogRepository(db)

		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO `reaction_counts`").WillReturnResult(sqlmock.NewResult(3, 1))
		mock.ExpectExec("UPDATE `videos`").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("UPDATE `performers`").WillReturnError(errors.New("lock wait timeout"))
		mock.ExpectRollback()

		applied, err := repo.ApplyLike(ctx, LikeChange{
			ReactionID: 6, Event: "Created", ObjectType: model.ReactionObjectVideo, ObjectID: 9, PerformerID: 2, Delta: 1,
		})
		assert.Error(t, err)
		assert.False(t, applied)
	})

	t.Run("UnknownObject", func(t *testing.T) {
		db, _ := setupTestDB(t)
		_, err := NewCatalogRepository(db).ApplyLike(ctx, LikeChange{ReactionID: 7, Event: "Created", ObjectType: "comment", ObjectID: 9, Delta: 1})
		assert.ErrorIs(t, err, utils.ErrInvalidParam)
	})

	t.Run("StopStreaming", func(t *testing.T) {
		db, mock := setupTestDB(t)
		repo := NewCatalogRepository(db)

		mock.ExpectBegin()
		mock.ExpectExec("UPDATE `streams` SET `is_streaming`=\\?,`updated_at`=\\? WHERE performer_id = \\? AND is_streaming = \\?").
			WithArgs(false, sqlmock.AnyArg(), uint64(2), true).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		n, err := repo.StopStreaming(ctx, 2)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
	})

	t.Run("MissingVideo", func(t *testing.T) {
		db, mock := setupTestDB(t)
		repo := NewCatalogRepository(db)

		mock.ExpectQuery("SELECT \\* FROM `videos` WHERE id = \\?").
			WillReturnError(gorm.ErrRecordNotFound)

		_, err := repo.GetVideo(ctx, 9)
		assert.ErrorIs(t, err, utils.ErrNotFound)
	})

	t.Run("NoConversation", func(t *testing.T) {
		db, mock := setupTestDB(t)
		repo := NewCatalogRepository(db)

		mock.ExpectQuery("SELECT \\* FROM `conversations` WHERE user_id = \\? AND performer_id = \\?").
			WithArgs(uint64(1), uint64(2), 1).
			WillReturnError(gorm.ErrRecordNotFound)

		c, err := repo.GetConversation(ctx, 1, 2)
		require.NoError(t, err)
		assert.Nil(t, c)
	})
}

func TestCouponRepository_GetByCode(t *testing.T) {
	db, mock := setupTestDB(t)
	repo := NewCouponRepository(db)

	mock.ExpectQuery("SELECT \\* FROM `coupons` WHERE code = \\?").
		WithArgs("NOPE", 1).
		WillReturnError(gorm.ErrRecordNotFound)

	c, err := repo.GetByCode(context.Background(), "NOPE")
	require.NoError(t, err)
	assert.Nil(t, c)
}

func TestPayoutRepository_Complete(t *testing.T) {
	ctx := context.Background()

	t.Run("Applies", func(t *testing.T) {
		db, mock := setupTestDB(t)
		repo := NewPayoutRepository(db)

		mock.ExpectBegin()
		mock.ExpectExec("UPDATE `payout_requests` SET `balance_deducted`=\\?,`updated_at`=\\? WHERE id = \\? AND status = \\? AND balance_deducted = \\?").
			WithArgs(true, sqlmock.AnyArg(), uint64(4), model.PayoutStatusDone, false).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery("SELECT \\* FROM `payout_requests` WHERE id = \\?").
			WillReturnRows(sqlmock.NewRows([]string{"id", "performer_id", "request_tokens", "status", "balance_deducted"}).
				AddRow(4, 2, 5000, model.PayoutStatusDone, true))
		mock.ExpectExec("UPDATE `performers` SET `balance`=balance \\+ \\? WHERE id = \\? AND balance >= \\?").
			WithArgs(int64(-5000), uint64(2), int64(5000)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		applied, err := repo.Complete(ctx, 4)
		require.NoError(t, err)
		assert.True(t, applied)
	})

	t.Run("AlreadyDeducted", func(t *testing.T) {
		db, mock := setupTestDB(t)
		repo := NewPayoutRepository(db)

		mock.ExpectBegin()
		mock.ExpectExec("UPDATE `payout_requests`").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectCommit()

		applied, err := repo.Complete(ctx, 4)
		require.NoError(t, err)
		assert.False(t, applied)
	})
}

func TestScheduledRepository(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	t.Run("FindDue", func(t *testing.T) {
		db, mock := setupTestDB(t)
		repo := NewScheduledFeedRepository(db)
		assert.Equal(t, "feed", repo.Entity())

		mock.ExpectQuery("SELECT `id`,`performer_id`,`status`,`scheduled_at` FROM `feeds` WHERE is_schedule = \\? AND scheduled_at <= \\? ORDER BY scheduled_at ASC LIMIT \\?").
			WithArgs(true, now, 50).
			WillReturnRows(sqlmock.NewRows([]string{"id", "performer_id", "status", "scheduled_at"}).
				AddRow(5, 2, model.StatusScheduled, now.Add(-time.Second)))

		items, err := repo.FindDue(ctx, now, 50)
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.Equal(t, uint64(5), items[0].ID)
		assert.Equal(t, model.StatusScheduled, items[0].Status)
	})

	t.Run("ActivateOnce", func(t *testing.T) {
		db, mock := setupTestDB(t)
		repo := NewScheduledStreamRepository(db)

		mock.ExpectBegin()
		mock.ExpectExec("UPDATE `streams` SET `is_schedule`=\\?,`status`=\\?,`updated_at`=\\? WHERE id = \\? AND is_schedule = \\?").
			WithArgs(false, model.StatusActive, now, uint64(5), true).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()
		mock.ExpectBegin()
		mock.ExpectExec("UPDATE `streams`").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectCommit()

		ok, err := repo.Activate(ctx, 5, now)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = repo.Activate(ctx, 5, now)
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestPurchasedItemRepository(t *testing.T) {
	db, mock := setupTestDB(t)
	repo := NewPurchasedItemRepository(db)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `purchased_items` .* ON DUPLICATE KEY UPDATE").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()
	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM `purchased_items` WHERE transaction_id = \\?").
		WithArgs(uint64(1001)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.Grant(ctx, &model.PurchasedItem{
		BuyerID:       1,
		TargetType:    model.TransactionTypeVideo,
		TargetID:      9,
		TransactionID: 1001,
	}))

	n, err := repo.Revoke(ctx, 1001)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestSubscriptionRepository_Apply(t *testing.T) {
	ctx := context.Background()
	expires := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
	grant := SubscriptionGrant{
		UserID:           1,
		PerformerID:      2,
		SubscriptionType: model.SubscriptionMonthly,
		ExpiresAt:        expires,
		TransactionID:    1001,
	}

	t.Run("Create", func(t *testing.T) {
		db, mock := setupTestDB(t)
		repo := NewSubscriptionRepository(db)

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT \\* FROM `subscriptions` WHERE user_id = \\? AND performer_id = \\?.* FOR UPDATE").
			WillReturnError(gorm.ErrRecordNotFound)
		mock.ExpectExec("INSERT INTO `subscriptions`").WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectCommit()

		applied, err := repo.Apply(ctx, grant)
		require.NoError(t, err)
		assert.True(t, applied)
	})

	t.Run("SameTransactionTwice", func(t *testing.T) {
		db, mock := setupTestDB(t)
		repo := NewSubscriptionRepository(db)

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT \\* FROM `subscriptions`").
			WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "performer_id", "subscription_type", "expired_at", "last_transaction_id"}).
				AddRow(1, 1, 2, model.SubscriptionMonthly, expires, 1001))
		mock.ExpectCommit()

		applied, err := repo.Apply(ctx, grant)
		require.NoError(t, err)
		assert.False(t, applied)
	})

	t.Run("ExtendKeepsLaterExpiry", func(t *testing.T) {
		db, mock := setupTestDB(t)
		repo := NewSubscriptionRepository(db)

		later := expires.AddDate(1, 0, 0)
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT \\* FROM `subscriptions`").
			WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "performer_id", "subscription_type", "expired_at", "last_transaction_id"}).
				AddRow(1, 1, 2, model.SubscriptionYearly, later, 900))
		mock.ExpectExec("UPDATE `subscriptions` SET `expired_at`=\\?,`last_transaction_id`=\\?,`subscription_type`=\\?,`updated_at`=\\? WHERE id = \\?").
			WithArgs(later, uint64(1001), model.SubscriptionMonthly, sqlmock.AnyArg(), uint64(1)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		applied, err := repo.Apply(ctx, grant)
		require.NoError(t, err)
		assert.True(t, applied)
	})
}
