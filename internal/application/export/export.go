// Package export projects applications into the CSV handed to the registrar.
package export

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"iter"
	"time"

	"pollworker/internal/application/models"
	id "pollworker/pkg/domain"
)

const timeLayout = "2006-01-02 15:04:05"

// Header is the exact column order of the export.
var Header = []string{
	"ID",
	"Name",
	"Email",
	"Street Address",
	"Email Verified",
	"Email Verified At",
	"Residency Status",
	"Residency Validated At",
	"Residency Validated By",
	"Party Affiliation",
	"Party Assigned At",
	"Party Assigned By",
	"Created At",
	"Updated At",
}

// Row is one exported application, already formatted.
type Row []string

// Source lists every application, newest first.
type Source interface {
	ListAllForExport(ctx context.Context) ([]*models.Application, error)
}

// NameResolver maps reviewer ids to display names.
type NameResolver interface {
	NamesByIDs(ctx context.Context, ids []id.UserID) (map[id.UserID]string, error)
}

// Projection turns the application table into export rows.
type Projection struct {
	source Source
	names  NameResolver
}

func NewProjection(source Source, names NameResolver) *Projection {
	return &Projection{source: source, names: names}
}

// Rows yields one row per application. Each range over the sequence reads
// the store afresh, so the sequence can be iterated more than once.
func (p *Projection) Rows(ctx context.Context) iter.Seq2[Row, error] {
	return func(yield func(Row, error) bool) {
		apps, err := p.source.ListAllForExport(ctx)
		if err != nil {
			yield(nil, fmt.Errorf("list applications for export: %w", err))
			return
		}
		names, err := p.reviewerNames(ctx, apps)
		if err != nil {
			yield(nil, err)
			return
		}
		for _, app := range apps {
			if !yield(toRow(app, names), nil) {
				return
			}
		}
	}
}

func (p *Projection) reviewerNames(ctx context.Context, apps []*models.Application) (map[id.UserID]string, error) {
	seen := map[id.UserID]struct{}{}
	var ids []id.UserID
	for _, app := range apps {
		for _, actor := range []*id.UserID{app.ResidencyValidatedBy, app.PartyAssignedBy} {
			if actor == nil {
				continue
			}
			if _, ok := seen[*actor]; !ok {
				seen[*actor] = struct{}{}
				ids = append(ids, *actor)
			}
		}
	}
	if len(ids) == 0 {
		return map[id.UserID]string{}, nil
	}
	names, err := p.names.NamesByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("resolve reviewer names: %w", err)
	}
	return names, nil
}

func toRow(app *models.Application, names map[id.UserID]string) Row {
	verified := "No"
	if app.IsVerified() {
		verified = "Yes"
	}
	party := ""
	if app.PartyAffiliation != nil {
		party = app.PartyAffiliation.String()
	}
	return Row{
		app.ID.String(),
		app.Name,
		app.Email,
		app.StreetAddress,
		verified,
		formatTime(app.EmailVerifiedAt),
		app.ResidencyStatus.String(),
		formatTime(app.ResidencyValidatedAt),
		nameOf(app.ResidencyValidatedBy, names),
		party,
		formatTime(app.PartyAssignedAt),
		nameOf(app.PartyAssignedBy, names),
		app.CreatedAt.Format(timeLayout),
		app.UpdatedAt.Format(timeLayout),
	}
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(timeLayout)
}

func nameOf(actor *id.UserID, names map[id.UserID]string) string {
	if actor == nil {
		return ""
	}
	return names[*actor]
}

// WriteCSV writes the header and every row to w, stopping at the first error.
func WriteCSV(w io.Writer, rows iter.Seq2[Row, error]) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for row, err := range rows {
		if err != nil {
			return err
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

// Filename is the download name for an export taken at now.
func Filename(now time.Time) string {
	return "poll-workers-" + now.Format("2006-01-02") + ".csv"
}
