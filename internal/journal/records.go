package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Salamek/netkeeper/internal/probe"
)

const defaultHistoryLimit = 20

const tickColumns = "seq, started_at, elapsed_ms, fail_pct, breached, results_json"

const incidentColumns = "id, tick_seq, created_at, reboot_requested, reboot_skipped, modem_alive, wait_elapsed_ms, services_json, err"

// RecordTick persists one monitoring tick. Ticks are written before any
// incident that references them.
func (s *Store) RecordTick(ctx context.Context, rec TickRecord) error {
	results := rec.Results
	if results == nil {
		results = []probe.Result{}
	}
	resultsJSON, err := json.Marshal(results)
	if err != nil {
		return fmt.Errorf("marshal tick results: %w", err)
	}

	err = s.execWithRetry(
		ctx,
		`INSERT INTO ticks (seq, started_at, elapsed_ms, fail_pct, breached, results_json)
        VALUES (?, ?, ?, ?, ?, ?)`,
		rec.Seq,
		rec.StartedAt.UTC().Format(time.RFC3339Nano),
		rec.Elapsed.Milliseconds(),
		rec.FailPct,
		boolToInt(rec.Breached),
		string(resultsJSON),
	)
	if err != nil {
		return fmt.Errorf("insert tick %d: %w", rec.Seq, err)
	}
	return nil
}

// RecordIncident persists one recovery run keyed by incident id.
func (s *Store) RecordIncident(ctx context.Context, rec IncidentRecord) error {
	services := rec.Services
	if services == nil {
		services = []ServiceRestart{}
	}
	servicesJSON, err := json.Marshal(services)
	if err != nil {
		return fmt.Errorf("marshal incident services: %w", err)
	}

	err = s.execWithRetry(
		ctx,
		`INSERT INTO incidents (
            id, tick_seq, created_at, reboot_requested, reboot_skipped,
            modem_alive, wait_elapsed_ms, services_json, err
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID,
		rec.TickSeq,
		rec.CreatedAt.UTC().Format(time.RFC3339Nano),
		boolToInt(rec.RebootRequested),
		boolToInt(rec.RebootSkipped),
		boolToInt(rec.ModemAlive),
		rec.WaitElapsed.Milliseconds(),
		string(servicesJSON),
		rec.Err,
	)
	if err != nil {
		return fmt.Errorf("insert incident %s: %w", rec.ID, err)
	}
	return nil
}

// RecentTicks returns up to limit ticks, newest first.
func (s *Store) RecentTicks(ctx context.Context, limit int) ([]TickRecord, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	rows, err := s.db.QueryContext(
		ensureContext(ctx),
		`SELECT `+tickColumns+` FROM ticks ORDER BY seq DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query recent ticks: %w", err)
	}
	defer rows.Close()

	var records []TickRecord
	for rows.Next() {
		rec, err := scanTick(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// RecentIncidents returns up to limit incidents, newest first.
func (s *Store) RecentIncidents(ctx context.Context, limit int) ([]IncidentRecord, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	rows, err := s.db.QueryContext(
		ensureContext(ctx),
		`SELECT `+incidentColumns+` FROM incidents ORDER BY created_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query recent incidents: %w", err)
	}
	defer rows.Close()

	var records []IncidentRecord
	for rows.Next() {
		rec, err := scanIncident(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// RebootsSince counts incidents that requested a reboot at or after t.
// The holdoff window check uses this before power-cycling the modem.
func (s *Store) RebootsSince(ctx context.Context, t time.Time) (int, error) {
	var count int
	err := s.db.QueryRowContext(
		ensureContext(ctx),
		`SELECT COUNT(1) FROM incidents WHERE reboot_requested = 1 AND created_at >= ?`,
		t.UTC().Format(time.RFC3339Nano),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count reboots: %w", err)
	}
	return count, nil
}

// LastTickSeq returns the highest tick sequence in the journal, or zero
// when no ticks are recorded. The monitor seeds its counter from this so
// a restarted daemon appends after the previous run instead of colliding
// with its rows.
func (s *Store) LastTickSeq(ctx context.Context) (uint64, error) {
	ctx = ensureContext(ctx)
	var seq sql.NullInt64
	err := s.db.QueryRowContext(ctx, `SELECT MAX(seq) FROM ticks`).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("last tick seq: %w", err)
	}
	if !seq.Valid || seq.Int64 < 0 {
		return 0, nil
	}
	return uint64(seq.Int64), nil
}

// PruneBefore deletes ticks and incidents older than cutoff and reports
// how many rows were removed.
func (s *Store) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	ctx = ensureContext(ctx)
	stamp := cutoff.UTC().Format(time.RFC3339Nano)

	var removed int64
	res, err := s.db.ExecContext(ctx, `DELETE FROM incidents WHERE created_at < ?`, stamp)
	if err != nil {
		return 0, fmt.Errorf("prune incidents: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil {
		removed += n
	}

	res, err = s.db.ExecContext(ctx, `DELETE FROM ticks WHERE started_at < ?
        AND seq NOT IN (SELECT tick_seq FROM incidents)`, stamp)
	if err != nil {
		return removed, fmt.Errorf("prune ticks: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil {
		removed += n
	}
	return removed, nil
}

func scanTick(scanner interface{ Scan(dest ...any) error }) (TickRecord, error) {
	var (
		seq        int64
		startedRaw string
		elapsedMS  int64
		failPct    int
		breached   sql.NullInt64
		resultsRaw sql.NullString
	)
	if err := scanner.Scan(&seq, &startedRaw, &elapsedMS, &failPct, &breached, &resultsRaw); err != nil {
		return TickRecord{}, fmt.Errorf("scan tick: %w", err)
	}

	rec := TickRecord{
		Seq:      uint64(seq),
		Elapsed:  time.Duration(elapsedMS) * time.Millisecond,
		FailPct:  failPct,
		Breached: breached.Int64 != 0,
	}
	if started, err := parseTimeString(startedRaw); err == nil {
		rec.StartedAt = started
	}
	if resultsRaw.Valid && resultsRaw.String != "" {
		if err := json.Unmarshal([]byte(resultsRaw.String), &rec.Results); err != nil {
			return TickRecord{}, fmt.Errorf("decode tick results: %w", err)
		}
	}
	return rec, nil
}

func scanIncident(scanner interface{ Scan(dest ...any) error }) (IncidentRecord, error) {
	var (
		id              string
		tickSeq         int64
		createdRaw      string
		rebootRequested sql.NullInt64
		rebootSkipped   sql.NullInt64
		modemAlive      sql.NullInt64
		waitElapsedMS   int64
		servicesRaw     sql.NullString
		errMsg          sql.NullString
	)
	if err := scanner.Scan(&id, &tickSeq, &createdRaw, &rebootRequested, &rebootSkipped,
		&modemAlive, &waitElapsedMS, &servicesRaw, &errMsg); err != nil {
		return IncidentRecord{}, fmt.Errorf("scan incident: %w", err)
	}

	rec := IncidentRecord{
		ID:              id,
		TickSeq:         uint64(tickSeq),
		RebootRequested: rebootRequested.Int64 != 0,
		RebootSkipped:   rebootSkipped.Int64 != 0,
		ModemAlive:      modemAlive.Int64 != 0,
		WaitElapsed:     time.Duration(waitElapsedMS) * time.Millisecond,
		Err:             errMsg.String,
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		rec.CreatedAt = created
	}
	if servicesRaw.Valid && servicesRaw.String != "" {
		if err := json.Unmarshal([]byte(servicesRaw.String), &rec.Services); err != nil {
			return IncidentRecord{}, fmt.Errorf("decode incident services: %w", err)
		}
	}
	return rec, nil
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}
