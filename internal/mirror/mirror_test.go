package mirror

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sixtyapp/engagement-engine/internal/dispatch"
	"github.com/sixtyapp/engagement-engine/internal/store"
)

type fakeWriter struct {
	rows    []Row
	failErr error
}

func (f *fakeWriter) Write(ctx context.Context, row Row) error {
	if f.failErr != nil {
		return f.failErr
	}
	f.rows = append(f.rows, row)
	return nil
}

func TestMirrorFuncWritesRowOnSuccess(t *testing.T) {
	w := &fakeWriter{}
	m := New(w)

	candidate := dispatch.Candidate{UserID: "U1", OrgID: "org-1", Feature: "meeting_prep", EntityID: "call-1"}
	model := dispatch.MessageModel{Title: "Meeting prep ready", Summary: "Acme call in 30 min", Category: "prep", Type: "meeting_prep"}
	rec := store.SentRecord{SlackTS: "1234.5"}

	err := m.Func()(context.Background(), candidate, model, rec)

	assert.NoError(t, err)
	assert.Len(t, w.rows, 1)
	assert.Equal(t, "U1", w.rows[0].UserID)
	assert.Equal(t, "Meeting prep ready", w.rows[0].Title)
	assert.Equal(t, "1234.5", w.rows[0].Metadata["slackTs"])
}

func TestMirrorFuncReturnsErrorWithoutPanicOnWriteFailure(t *testing.T) {
	w := &fakeWriter{failErr: errors.New("db down")}
	m := New(w)

	err := m.Func()(context.Background(), dispatch.Candidate{}, dispatch.MessageModel{}, store.SentRecord{})

	assert.Error(t, err)
}
