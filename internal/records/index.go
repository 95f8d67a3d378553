// Package records reads bibliographic records from the search index's
// field table. Writes never go through here; see package upload.
package records

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/Masterminds/squirrel"
	"github.com/dimitrije/communities/internal/database"
	"github.com/dimitrije/communities/internal/marc"
	"github.com/georgysavva/scany/v2/pgxscan"
)

var ErrEmptyPattern = errors.New("search pattern is required")

// Field paths used across the service.
const (
	FieldDOI          = "0247_a"
	FieldSystemNumber = "035__a"
	FieldSystemInst   = "035__9"
	FieldContactEmail = "8560_f"
	FieldCollection   = "980__a"
	FieldTitle        = "245__a"

	CollectionTag = "980"
)

const (
	rangeSeparator    = "->"
	wildcard          = "*"
	recordFieldsTable = "record_fields"
)

type Index interface {
	Search(ctx context.Context, pattern, field string) ([]int, error)
	FieldValues(ctx context.Context, recid int, field string) ([]string, error)
	BulkFieldValues(ctx context.Context, recids []int, field string) (map[int][]string, error)
	Fields(ctx context.Context, recid int, tag string) ([]marc.DataField, error)
}

type PostgresIndex struct {
	db *database.DB
	sb squirrel.StatementBuilderType
}

func NewPostgresIndex(db *database.DB) *PostgresIndex {
	return &PostgresIndex{
		db: db,
		sb: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// Search returns the ids of records with a value of field matching pattern,
// ascending. Patterns: "a->b" is an inclusive range, "*" is a wildcard,
// anything else is an exact match.
func (i *PostgresIndex) Search(ctx context.Context, pattern, field string) ([]int, error) {
	if _, err := marc.ParseFieldPath(field); err != nil {
		return nil, err
	}
	if strings.TrimSpace(pattern) == "" {
		return nil, ErrEmptyPattern
	}

	q := i.sb.Select("DISTINCT recid").
		From(recordFieldsTable).
		Where(squirrel.Eq{"tag": field}).
		Where(patternCond(pattern)).
		OrderBy("recid")

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build search query: %w", err)
	}

	var ids []int
	if err := pgxscan.Select(ctx, i.db.Pool, &ids, sql, args...); err != nil {
		return nil, fmt.Errorf("search %s for %q: %w", field, pattern, err)
	}
	return ids, nil
}

func patternCond(pattern string) squirrel.Sqlizer {
	if lo, hi, ok := strings.Cut(pattern, rangeSeparator); ok {
		return squirrel.Expr("value BETWEEN ? AND ?", strings.TrimSpace(lo), strings.TrimSpace(hi))
	}
	if strings.Contains(pattern, wildcard) {
		return squirrel.Like{"value": strings.ReplaceAll(likeEscaper.Replace(pattern), wildcard, "%")}
	}
	return squirrel.Eq{"value": pattern}
}

// LIKE metacharacters other than the wildcard match literally. Backslash is
// the default escape character in PostgreSQL.
var likeEscaper = strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)

// FieldValues returns the values of one field of a record in index order.
// A record without the field yields an empty slice.
func (i *PostgresIndex) FieldValues(ctx context.Context, recid int, field string) ([]string, error) {
	if _, err := marc.ParseFieldPath(field); err != nil {
		return nil, err
	}

	sql, args, err := i.sb.Select("value").
		From(recordFieldsTable).
		Where(squirrel.Eq{"recid": recid, "tag": field}).
		OrderBy("position").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build field query: %w", err)
	}

	var values []string
	if err := pgxscan.Select(ctx, i.db.Pool, &values, sql, args...); err != nil {
		return nil, fmt.Errorf("read %s of record %d: %w", field, recid, err)
	}
	return values, nil
}

type fieldRow struct {
	RecID int    `db:"recid"`
	Value string `db:"value"`
}

// BulkFieldValues is FieldValues for many records in one round trip.
func (i *PostgresIndex) BulkFieldValues(ctx context.Context, recids []int, field string) (map[int][]string, error) {
	if _, err := marc.ParseFieldPath(field); err != nil {
		return nil, err
	}
	out := make(map[int][]string, len(recids))
	if len(recids) == 0 {
		return out, nil
	}

	ids := append([]int(nil), recids...)
	sort.Ints(ids)

	sql, args, err := i.sb.Select("recid", "value").
		From(recordFieldsTable).
		Where(squirrel.Eq{"tag": field}).
		Where(squirrel.Eq{"recid": ids}).
		OrderBy("recid", "position").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build bulk field query: %w", err)
	}

	var rows []fieldRow
	if err := pgxscan.Select(ctx, i.db.Pool, &rows, sql, args...); err != nil {
		return nil, fmt.Errorf("read %s of %d records: %w", field, len(ids), err)
	}
	for _, r := range rows {
		out[r.RecID] = append(out[r.RecID], r.Value)
	}
	return out, nil
}

type subfieldRow struct {
	Tag      string `db:"tag"`
	Position int    `db:"position"`
	Value    string `db:"value"`
}

// Fields returns the data fields of a record carrying the three character
// tag. Subfield rows that share a position and indicators belong to one
// field; fields come back in position order.
func (i *PostgresIndex) Fields(ctx context.Context, recid int, tag string) ([]marc.DataField, error) {
	if len(tag) != 3 {
		return nil, fmt.Errorf("%w: tag %q", marc.ErrInvalidFieldPath, tag)
	}

	sql, args, err := i.sb.Select("tag", "position", "value").
		From(recordFieldsTable).
		Where(squirrel.Eq{"recid": recid}).
		Where(squirrel.Like{"tag": tag + "___"}).
		OrderBy("position", "tag").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build fields query: %w", err)
	}

	var rows []subfieldRow
	if err := pgxscan.Select(ctx, i.db.Pool, &rows, sql, args...); err != nil {
		return nil, fmt.Errorf("read %s fields of record %d: %w", tag, recid, err)
	}

	var fields []marc.DataField
	slots := make(map[string]int)
	for _, r := range rows {
		path, err := marc.ParseFieldPath(r.Tag)
		if err != nil {
			continue
		}
		key := fmt.Sprintf("%d|%s|%s", r.Position, path.Ind1, path.Ind2)
		n, ok := slots[key]
		if !ok {
			n = len(fields)
			slots[key] = n
			fields = append(fields, marc.DataField{Tag: path.Tag, Ind1: path.Ind1, Ind2: path.Ind2})
		}
		fields[n].Subfields = append(fields[n].Subfields, marc.Sub(path.Code, r.Value))
	}
	return fields, nil
}
