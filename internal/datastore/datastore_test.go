package datastore

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voicewire/voicewire-go/internal/conf"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	settings := &conf.Settings{}
	settings.Output.SQLite.Enabled = true
	settings.Output.SQLite.Path = filepath.Join(t.TempDir(), "voicewire.db")

	store := &SQLiteStore{Settings: settings}
	require.NoError(t, store.Open())
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func testRecord(text string) *TranscriptRecord {
	return &TranscriptRecord{
		ID:               uuid.NewString(),
		Timestamp:        time.Now(),
		Transcript:       text,
		Language:         "en",
		Sentiment:        "neutral",
		Confidence:       0.9,
		ProcessingTimeMs: 42.5,
	}
}

func TestNewRequiresEnabledOutput(t *testing.T) {
	settings := &conf.Settings{}
	_, err := New(settings)
	assert.Error(t, err)

	settings.Output.SQLite.Enabled = true
	store, err := New(settings)
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, store)
}

func TestSaveAndGet(t *testing.T) {
	store := openTestStore(t)

	record := testRecord("turn on the lights")
	require.NoError(t, store.Save(record))

	got, err := store.Get(record.ID)
	require.NoError(t, err)
	assert.Equal(t, record.Transcript, got.Transcript)
	assert.Equal(t, record.Sentiment, got.Sentiment)
	assert.InDelta(t, record.Confidence, got.Confidence, 1e-9)
}

func TestGetMissing(t *testing.T) {
	store := openTestStore(t)
	_, err := store.Get(uuid.NewString())
	assert.Error(t, err)
}

func TestDelete(t *testing.T) {
	store := openTestStore(t)

	record := testRecord("delete me")
	require.NoError(t, store.Save(record))
	require.NoError(t, store.Delete(record.ID))

	_, err := store.Get(record.ID)
	assert.Error(t, err)

	assert.Error(t, store.Delete(record.ID), "double delete must report not found")
}

func TestGetLastOrdering(t *testing.T) {
	store := openTestStore(t)

	base := time.Now()
	for i := 0; i < 5; i++ {
		record := testRecord("utterance")
		record.Timestamp = base.Add(time.Duration(i) * time.Second)
		require.NoError(t, store.Save(record))
	}

	records, err := store.GetLast(3)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.True(t, records[0].Timestamp.After(records[1].Timestamp))
	assert.True(t, records[1].Timestamp.After(records[2].Timestamp))
}

func TestSearch(t *testing.T) {
	store := openTestStore(t)

	require.NoError(t, store.Save(testRecord("play some music")))
	require.NoError(t, store.Save(testRecord("stop the music")))
	require.NoError(t, store.Save(testRecord("what time is it")))

	records, err := store.Search("music", 10, 0)
	require.NoError(t, err)
	assert.Len(t, records, 2)

	records, err = store.Search("nothing here", 10, 0)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestCount(t *testing.T) {
	store := openTestStore(t)

	count, err := store.Count()
	require.NoError(t, err)
	assert.Zero(t, count)

	require.NoError(t, store.Save(testRecord("one")))
	require.NoError(t, store.Save(testRecord("two")))

	count, err = store.Count()
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)
}

func TestOperationsBeforeOpen(t *testing.T) {
	var ds DataStore
	assert.Error(t, ds.Save(testRecord("x")))
	_, err := ds.Get("id")
	assert.Error(t, err)
	_, err = ds.Count()
	assert.Error(t, err)
	assert.NoError(t, ds.Close())
}
