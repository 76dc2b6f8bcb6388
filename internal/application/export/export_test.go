package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pollworker/internal/application/models"
	"pollworker/internal/application/store"
	id "pollworker/pkg/domain"
)

type staticNames map[id.UserID]string

func (n staticNames) NamesByIDs(_ context.Context, ids []id.UserID) (map[id.UserID]string, error) {
	out := map[id.UserID]string{}
	for _, userID := range ids {
		if name, ok := n[userID]; ok {
			out[userID] = name
		}
	}
	return out, nil
}

type failingSource struct{}

func (failingSource) ListAllForExport(context.Context) ([]*models.Application, error) {
	return nil, errors.New("database unavailable")
}

func seed(t *testing.T) (*store.InMemory, id.UserID, time.Time) {
	t.Helper()
	ctx := context.Background()
	s := store.NewInMemory()
	now := time.Date(2026, 3, 1, 9, 30, 15, 0, time.UTC)
	admin := id.NewUserID()

	older := models.NewApplication(id.NewApplicationID(),
		models.ApplicantInput{Name: "Grace, Hopper", Email: "grace@example.com", StreetAddress: "2 Elm St"}, "t1", now.Add(-time.Hour))
	require.NoError(t, s.Create(ctx, older))

	newer := models.NewApplication(id.NewApplicationID(),
		models.ApplicantInput{Name: "Ada", Email: "ada@example.com", StreetAddress: "1 Main St"}, "t2", now)
	newer.ApplyVerification(id.NewUserID(), now)
	newer.ApplyResidency(models.ResidencyApproved, admin, now)
	newer.ApplyParty(models.PartyDemocrat, admin, now)
	require.NoError(t, s.Create(ctx, newer))
	return s, admin, now
}

func TestProjection_Rows(t *testing.T) {
	s, admin, now := seed(t)
	p := NewProjection(s, staticNames{admin: "Registrar Clerk"})

	var rows []Row
	for row, err := range p.Rows(context.Background()) {
		require.NoError(t, err)
		rows = append(rows, row)
	}
	require.Len(t, rows, 2)

	first := rows[0]
	require.Len(t, first, len(Header))
	assert.Equal(t, "Ada", first[1])
	assert.Equal(t, "Yes", first[4])
	assert.Equal(t, now.Format("2006-01-02 15:04:05"), first[5])
	assert.Equal(t, "approved", first[6])
	assert.Equal(t, "Registrar Clerk", first[8])
	assert.Equal(t, "democrat", first[9])
	assert.Equal(t, "Registrar Clerk", first[11])

	second := rows[1]
	assert.Equal(t, "No", second[4])
	assert.Equal(t, "", second[5])
	assert.Equal(t, "pending", second[6])
	assert.Equal(t, "", second[8])
	assert.Equal(t, "", second[9])
	assert.Equal(t, "2026-03-01 08:30:15", second[12])
}

func TestProjection_RowsIsRestartable(t *testing.T) {
	s, admin, now := seed(t)
	p := NewProjection(s, staticNames{admin: "Clerk"})
	rows := p.Rows(context.Background())

	count := func() int {
		n := 0
		for range rows {
			n++
		}
		return n
	}
	assert.Equal(t, 2, count())

	third := models.NewApplication(id.NewApplicationID(),
		models.ApplicantInput{Name: "Joan", Email: "joan@example.com", StreetAddress: "3 Oak St"}, "t3", now)
	require.NoError(t, s.Create(context.Background(), third))
	assert.Equal(t, 3, count(), "a second pass sees the new application")
}

func TestWriteCSV(t *testing.T) {
	s, admin, _ := seed(t)
	var buf bytes.Buffer

	require.NoError(t, WriteCSV(&buf, NewProjection(s, staticNames{admin: "Clerk"}).Rows(context.Background())))

	records, err := csv.NewReader(strings.NewReader(buf.String())).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, Header, records[0])
	assert.Equal(t, "Grace, Hopper", records[2][1], "fields with commas survive quoting")
}

func TestWriteCSV_SourceError(t *testing.T) {
	err := WriteCSV(io.Discard, NewProjection(failingSource{}, staticNames{}).Rows(context.Background()))
	assert.ErrorContains(t, err, "database unavailable")
}

func TestFilename(t *testing.T) {
	assert.Equal(t, "poll-workers-2026-11-03.csv", Filename(time.Date(2026, 11, 3, 23, 59, 0, 0, time.UTC)))
}

type recordingPutter struct {
	input *s3.PutObjectInput
	body  string
}

func (r *recordingPutter) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	r.input = in
	raw, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	r.body = string(raw)
	return &s3.PutObjectOutput{}, nil
}

func TestS3Archiver_Archive(t *testing.T) {
	s, admin, now := seed(t)
	putter := &recordingPutter{}

	key, err := NewS3Archiver(putter, "registrar-exports").
		Archive(context.Background(), NewProjection(s, staticNames{admin: "Clerk"}).Rows(context.Background()), now)
	require.NoError(t, err)

	assert.Equal(t, "exports/20260301T093015Z-poll-workers-2026-03-01.csv", key)
	assert.Equal(t, "registrar-exports", *putter.input.Bucket)
	assert.Equal(t, key, *putter.input.Key)
	assert.True(t, strings.HasPrefix(putter.body, "ID,Name,Email,Street Address"))
}
