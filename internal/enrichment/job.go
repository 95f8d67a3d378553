// Package enrichment links records that carry a DOI to their Altmetric
// entry by writing an 035 system number back through the upload pipeline.
package enrichment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/dimitrije/communities/internal/altmetric"
	"github.com/dimitrije/communities/internal/marc"
	"github.com/dimitrije/communities/internal/records"
	"github.com/dimitrije/communities/internal/upload"
)

const (
	// Institute name stored in 035__9 for Altmetric identifiers.
	SystemName = "Altmetric"
	doiPattern = "0->Z"
)

var ErrServiceUnavailable = errors.New("altmetric service is not available")

type MetricsLookup interface {
	LookupDOI(ctx context.Context, doi string) (*altmetric.Citation, error)
}

// Reporter receives per-record failures. alertAdmin marks the ones an
// operator should hear about.
type Reporter interface {
	Report(ctx context.Context, err error, alertAdmin bool)
}

type Result struct {
	Total         int
	AlreadyLinked int
	MissingDOI    int
	NotFound      int
	Updated       int
	Failed        int
	Duration      time.Duration
}

type Job struct {
	index    records.Index
	metrics  MetricsLookup
	uploader upload.Submitter
	reporter Reporter
	log      *slog.Logger
}

// NewJob wires the job. metrics may be nil when no Altmetric endpoint is
// configured; CheckAvailable reports that once and Run refuses to scan.
func NewJob(index records.Index, metrics MetricsLookup, uploader upload.Submitter, reporter Reporter, logger *slog.Logger) *Job {
	return &Job{
		index:    index,
		metrics:  metrics,
		uploader: uploader,
		reporter: reporter,
		log:      logger.With("component", "altmetric_enrichment"),
	}
}

// CheckAvailable raises the admin alert for a job without a metrics
// client. Call it once at startup.
func (j *Job) CheckAvailable(ctx context.Context) error {
	if j.metrics == nil {
		j.reporter.Report(ctx, ErrServiceUnavailable, true)
		return ErrServiceUnavailable
	}
	return nil
}

// Run makes one pass over every record with a DOI. Failures on a single
// record are reported and counted; only a failed initial search or a
// cancelled context stop the pass. Failures that need an operator are
// summarised in a single admin alert at the end of the pass.
func (j *Job) Run(ctx context.Context) (Result, error) {
	var res Result
	start := time.Now()

	if j.metrics == nil {
		return res, ErrServiceUnavailable
	}

	recids, err := j.index.Search(ctx, doiPattern, records.FieldDOI)
	if err != nil {
		return res, fmt.Errorf("search records with doi: %w", err)
	}
	res.Total = len(recids)
	j.log.InfoContext(ctx, "altmetric pass started", slog.Int("records", res.Total))

	var (
		alerts  int
		lastErr error
	)
	for _, recid := range recids {
		if err := ctx.Err(); err != nil {
			j.log.WarnContext(ctx, "altmetric pass interrupted", slog.Int("recid", recid))
			res.Duration = time.Since(start)
			return res, err
		}

		outcome, err := j.process(ctx, recid)
		if err != nil {
			res.Failed++
			err = fmt.Errorf("record %d: %w", recid, err)
			j.reporter.Report(ctx, err, false)
			var herr *altmetric.HTTPError
			if !errors.As(err, &herr) {
				alerts++
				lastErr = err
			}
			continue
		}

		switch outcome {
		case outcomeLinked:
			res.AlreadyLinked++
		case outcomeNoDOI:
			res.MissingDOI++
		case outcomeNotFound:
			res.NotFound++
		case outcomeUpdated:
			res.Updated++
		}
	}

	if alerts > 0 {
		j.reporter.Report(ctx, fmt.Errorf("%d of %d records failed, last: %w", alerts, res.Total, lastErr), true)
	}

	res.Duration = time.Since(start)
	j.log.InfoContext(ctx, "altmetric pass finished",
		slog.Int("total", res.Total),
		slog.Int("updated", res.Updated),
		slog.Int("already_linked", res.AlreadyLinked),
		slog.Int("not_found", res.NotFound),
		slog.Int("failed", res.Failed),
		slog.Duration("duration", res.Duration),
	)
	return res, nil
}

type outcome int

const (
	outcomeLinked outcome = iota
	outcomeNoDOI
	outcomeNotFound
	outcomeUpdated
)

func (j *Job) process(ctx context.Context, recid int) (outcome, error) {
	institutes, err := j.index.FieldValues(ctx, recid, records.FieldSystemInst)
	if err != nil {
		return 0, err
	}
	if marc.Contains(institutes, SystemName) {
		return outcomeLinked, nil
	}

	dois, err := j.index.FieldValues(ctx, recid, records.FieldDOI)
	if err != nil {
		return 0, err
	}
	if len(dois) == 0 || dois[0] == "" {
		return outcomeNoDOI, nil
	}

	citation, err := j.metrics.LookupDOI(ctx, dois[0])
	if err != nil {
		return 0, err
	}
	if citation == nil {
		return outcomeNotFound, nil
	}

	delta := marc.NewDelta(recid).AddField("035", "", "",
		marc.Sub("a", strconv.FormatInt(citation.AltmetricID, 10)),
		marc.Sub("9", SystemName),
	)
	if err := j.uploader.Submit(ctx, delta, upload.ModeCorrect); err != nil {
		return 0, err
	}

	j.log.DebugContext(ctx, "altmetric id attached",
		slog.Int("recid", recid),
		slog.Int64("altmetric_id", citation.AltmetricID),
	)
	return outcomeUpdated, nil
}
