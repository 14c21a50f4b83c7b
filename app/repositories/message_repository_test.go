package repositories

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/darcho/darcho/app/models"
	"github.com/darcho/darcho/internal/dbtest"
)

func TestThreadsGroupsByCounterpart(t *testing.T) {
	db := dbtest.Setup(t)
	ctx := context.Background()

	for _, m := range []models.Message{
		{SenderID: 2, RecipientID: 1, Body: "is the Guji lot still open?"},
		{SenderID: 1, RecipientID: 2, Body: "yes, 300 kg"},
		{SenderID: 3, RecipientID: 1, Body: "sample please"},
		{SenderID: 4, RecipientID: 5, Body: "not ours"},
	} {
		require.NoError(t, db.Create(&m).Error)
	}

	rows, err := NewMessageRepository().Threads(ctx, 1)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, ThreadRow{OtherID: 3, LastID: 3, Unread: 1}, rows[0])
	assert.Equal(t, ThreadRow{OtherID: 2, LastID: 2, Unread: 1}, rows[1])
}

func TestThreadsGroupsByExpressionNotAlias(t *testing.T) {
	dbtest.Setup(t)

	var rows []ThreadRow
	stmt := threadsQuery(context.Background(), 7).
		Session(&gorm.Session{DryRun: true}).
		Find(&rows).Statement
	sql := stmt.SQL.String()

	assert.Contains(t, sql, "GROUP BY CASE WHEN sender_id = 7 THEN recipient_id ELSE sender_id END")
	assert.NotContains(t, sql, "GROUP BY other_id")
}
