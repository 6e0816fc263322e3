package database

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bridgecall/bridgecall/pkg/database"
	"github.com/bridgecall/bridgecall/pkg/models"
	"github.com/bridgecall/bridgecall/pkg/store"
)

func person(uid models.Uid) models.Person {
	return models.Person{ID: uid, Name: "Dana", Sex: models.Female, Opinion: models.Con}
}

func TestMigrationsProduceEmptyStateTable(t *testing.T) {
	client := NewTestClient(t)

	states, err := client.LoadStates(context.Background())
	require.NoError(t, err)
	assert.Empty(t, states)
}

func TestWriterRoundtrip(t *testing.T) {
	client := NewTestClient(t)
	ctx := context.Background()

	w := database.NewWriter(client.DB(), 8)
	w.Start()

	seeded := []models.UserState{
		models.Waiting{Person: person(2), SearchingUntil: 160, NextRefresh: 105},
		models.Inactive{Person: person(1), SurveyAt: 200},
	}
	require.NoError(t, w.CommitBatch(seeded, []store.LogEvent{
		{TS: 100, Kind: "match", Data: map[string]any{"a": 1, "b": 2}},
	}))
	require.NoError(t, w.Stop())

	states, err := client.LoadStates(ctx)
	require.NoError(t, err)
	require.Len(t, states, 2)
	// LoadStates returns uid order regardless of write order.
	assert.Equal(t, models.Inactive{Person: person(1), SurveyAt: 200}, states[0])
	assert.Equal(t, models.Waiting{Person: person(2), SearchingUntil: 160, NextRefresh: 105}, states[1])

	var kind string
	var ts time.Time
	err = client.DB().QueryRowContext(ctx, "SELECT kind, ts FROM logs").Scan(&kind, &ts)
	require.NoError(t, err)
	assert.Equal(t, "match", kind)
	assert.Equal(t, int64(100), ts.Unix())
}

func TestWriterUpsertsLatestState(t *testing.T) {
	client := NewTestClient(t)
	ctx := context.Background()

	w := database.NewWriter(client.DB(), 8)
	w.Start()
	require.NoError(t, w.CommitBatch(
		[]models.UserState{models.Active{Person: person(1), Since: 50}}, nil))
	require.NoError(t, w.CommitBatch(
		[]models.UserState{models.Inactive{Person: person(1)}}, nil))
	require.NoError(t, w.Stop())

	states, err := client.LoadStates(ctx)
	require.NoError(t, err)
	require.Len(t, states, 1)
	assert.Equal(t, models.Inactive{Person: person(1)}, states[0])
}

func TestLoadStatesRejectsUnknownTag(t *testing.T) {
	client := NewTestClient(t)
	ctx := context.Background()

	_, err := client.DB().ExecContext(ctx,
		`INSERT INTO states (uid, state) VALUES (5, '{"tag":"hibernating","uid":5}')`)
	require.NoError(t, err)

	_, err = client.LoadStates(ctx)
	require.Error(t, err, "a partial load would leave dangling links, refuse to boot")
	assert.Contains(t, err.Error(), "uid 5")
}

func TestLoadStatesRejectsUidMismatch(t *testing.T) {
	client := NewTestClient(t)
	ctx := context.Background()

	encoded, err := models.EncodeState(models.Inactive{Person: person(5)})
	require.NoError(t, err)
	_, err = client.DB().ExecContext(ctx,
		"INSERT INTO states (uid, state) VALUES (6, $1)", encoded)
	require.NoError(t, err)

	_, err = client.LoadStates(ctx)
	require.Error(t, err)
}
