package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Strob0t/LeaseForge/internal/domain"
	"github.com/Strob0t/LeaseForge/internal/domain/lease"
)

// Store implements database.Store using PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new Store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Ping checks connectivity to the database.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

const leaseColumns = `id::text, property_id, landlord_id, tenant_id, status, terms,
	landlord_signature, tenant_signature, requested_changes, version, created_at, updated_at`

// --- Leases ---

func (s *Store) CreateLease(ctx context.Context, l *lease.Lease) error {
	id, err := uuid.Parse(l.ID)
	if err != nil {
		return fmt.Errorf("create lease: id %q: %w", l.ID, domain.ErrValidation)
	}
	row, err := marshalLease(l)
	if err != nil {
		return fmt.Errorf("create lease: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	_, err = tx.Exec(ctx,
		`INSERT INTO leases (id, property_id, landlord_id, tenant_id, status, start_date, end_date,
		                     rent_amount, security_deposit, terms, landlord_signature, tenant_signature,
		                     requested_changes, version, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8::numeric, $9::numeric, $10, $11, $12, $13, $14, $15, $16)`,
		id, l.PropertyID, l.LandlordID, l.TenantID, string(l.Status),
		l.StartDate.Time, l.EndDate.Time, l.RentAmount.String(), l.SecurityDeposit.String(),
		row.terms, row.landlordSig, row.tenantSig, row.changes, l.Version, l.CreatedAt, l.UpdatedAt)
	if err != nil {
		return constraintWrap(err, "insert lease %s", l.ID)
	}

	if err := insertHistory(ctx, tx, id, 0, l.StatusHistory); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit lease %s: %w", l.ID, err)
	}
	return nil
}

func (s *Store) GetLease(ctx context.Context, id string) (*lease.Lease, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("get lease %s: %w", id, domain.ErrNotFound)
	}

	l, err := scanLease(s.pool.QueryRow(ctx, `SELECT `+leaseColumns+` FROM leases WHERE id = $1`, uid))
	if err != nil {
		return nil, notFoundWrap(err, "get lease %s", id)
	}

	history, err := s.loadHistory(ctx, []uuid.UUID{uid})
	if err != nil {
		return nil, err
	}
	l.StatusHistory = orEmpty(history[l.ID])
	return &l, nil
}

func (s *Store) LeaseVersion(ctx context.Context, id string) (int, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return 0, fmt.Errorf("lease version %s: %w", id, domain.ErrNotFound)
	}
	var version int
	if err := s.pool.QueryRow(ctx, `SELECT version FROM leases WHERE id = $1`, uid).Scan(&version); err != nil {
		return 0, notFoundWrap(err, "lease version %s", id)
	}
	return version, nil
}

func (s *Store) ListLeases(ctx context.Context, filter lease.ListFilter) ([]lease.Lease, error) {
	var (
		conds []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	switch filter.Role {
	case lease.RoleLandlord:
		conds = append(conds, "landlord_id = "+arg(filter.ActorID))
	case lease.RoleTenant:
		conds = append(conds, "tenant_id = "+arg(filter.ActorID))
	}
	if filter.Status != "" {
		conds = append(conds, "status = "+arg(string(filter.Status)))
	}
	if filter.PropertyID != "" {
		conds = append(conds, "property_id = "+arg(filter.PropertyID))
	}

	query := `SELECT ` + leaseColumns + ` FROM leases`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY updated_at DESC, id DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ` + arg(filter.Limit)
	}
	if filter.Offset > 0 {
		query += ` OFFSET ` + arg(filter.Offset)
	}

	return s.queryLeases(ctx, "list leases", query, args...)
}

func (s *Store) UpdateLease(ctx context.Context, l *lease.Lease, appended []lease.StatusChange) error {
	id, err := uuid.Parse(l.ID)
	if err != nil {
		return fmt.Errorf("update lease %s: %w", l.ID, domain.ErrNotFound)
	}
	row, err := marshalLease(l)
	if err != nil {
		return fmt.Errorf("update lease %s: %w", l.ID, err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	tag, err := tx.Exec(ctx,
		`UPDATE leases SET status = $2, start_date = $3, end_date = $4,
		        rent_amount = $5::numeric, security_deposit = $6::numeric, terms = $7,
		        landlord_signature = $8, tenant_signature = $9, requested_changes = $10,
		        updated_at = $11, version = version + 1
		 WHERE id = $1 AND version = $12`,
		id, string(l.Status), l.StartDate.Time, l.EndDate.Time,
		l.RentAmount.String(), l.SecurityDeposit.String(), row.terms,
		row.landlordSig, row.tenantSig, row.changes, l.UpdatedAt, l.Version)
	if err != nil {
		return constraintWrap(err, "update lease %s", l.ID)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM leases WHERE id = $1)`, id).Scan(&exists); err != nil {
			return fmt.Errorf("update lease %s: %w", l.ID, err)
		}
		if !exists {
			return fmt.Errorf("update lease %s: %w", l.ID, domain.ErrNotFound)
		}
		return fmt.Errorf("update lease %s at version %d: %w", l.ID, l.Version, domain.ErrConflict)
	}

	start := len(l.StatusHistory) - len(appended)
	if err := insertHistory(ctx, tx, id, start, appended); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit lease %s: %w", l.ID, err)
	}
	l.Version++
	return nil
}

func (s *Store) ListExpirable(ctx context.Context, now time.Time, limit int) ([]lease.Lease, error) {
	return s.queryLeases(ctx, "list expirable leases",
		`SELECT `+leaseColumns+` FROM leases
		 WHERE status = $1 AND end_date < $2::date
		 ORDER BY end_date, id LIMIT $3`,
		string(lease.StatusFullyExecuted), lease.DateOf(now).Time, limit)
}

func (s *Store) queryLeases(ctx context.Context, op, query string, args ...any) ([]lease.Lease, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var leases []lease.Lease
	for rows.Next() {
		l, err := scanLease(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		leases = append(leases, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if len(leases) == 0 {
		return []lease.Lease{}, nil
	}

	ids := make([]uuid.UUID, len(leases))
	for i := range leases {
		ids[i] = uuid.MustParse(leases[i].ID)
	}
	history, err := s.loadHistory(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range leases {
		leases[i].StatusHistory = orEmpty(history[leases[i].ID])
	}
	return leases, nil
}

func (s *Store) loadHistory(ctx context.Context, ids []uuid.UUID) (map[string][]lease.StatusChange, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT lease_id::text, status, changed_at, changed_by, actor_role, reason
		 FROM lease_status_history WHERE lease_id = ANY($1::uuid[]) ORDER BY lease_id, seq`, ids)
	if err != nil {
		return nil, fmt.Errorf("load lease history: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]lease.StatusChange, len(ids))
	for rows.Next() {
		var (
			leaseID, status, role string
			h                     lease.StatusChange
		)
		if err := rows.Scan(&leaseID, &status, &h.ChangedAt, &h.ChangedBy, &role, &h.Reason); err != nil {
			return nil, fmt.Errorf("scan lease history: %w", err)
		}
		h.Status = lease.Status(status)
		h.ActorRole = lease.Role(role)
		out[leaseID] = append(out[leaseID], h)
	}
	return out, rows.Err()
}

func insertHistory(ctx context.Context, tx pgx.Tx, leaseID uuid.UUID, startSeq int, entries []lease.StatusChange) error {
	for i, h := range entries {
		_, err := tx.Exec(ctx,
			`INSERT INTO lease_status_history (lease_id, seq, status, changed_at, changed_by, actor_role, reason)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			leaseID, startSeq+i, string(h.Status), h.ChangedAt, h.ChangedBy, string(h.ActorRole), h.Reason)
		if err != nil {
			return constraintWrap(err, "insert history for lease %s", leaseID)
		}
	}
	return nil
}

type leaseRow struct {
	terms       []byte
	landlordSig []byte
	tenantSig   []byte
	changes     []byte
}

func marshalLease(l *lease.Lease) (leaseRow, error) {
	var (
		r   leaseRow
		err error
	)
	if r.terms, err = json.Marshal(l.Terms); err != nil {
		return r, fmt.Errorf("marshal terms: %w", err)
	}
	if r.landlordSig, err = jsonOrNull(l.LandlordSignature); err != nil {
		return r, fmt.Errorf("marshal landlord signature: %w", err)
	}
	if r.tenantSig, err = jsonOrNull(l.TenantSignature); err != nil {
		return r, fmt.Errorf("marshal tenant signature: %w", err)
	}
	if r.changes, err = json.Marshal(orEmpty(l.RequestedChanges)); err != nil {
		return r, fmt.Errorf("marshal requested changes: %w", err)
	}
	return r, nil
}

func scanLease(row scannable) (lease.Lease, error) {
	var (
		l                                   lease.Lease
		status                              string
		terms, landlordSig, tenantSig, chgs []byte
	)
	err := row.Scan(&l.ID, &l.PropertyID, &l.LandlordID, &l.TenantID, &status, &terms,
		&landlordSig, &tenantSig, &chgs, &l.Version, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return l, err
	}
	l.Status = lease.Status(status)

	if err := json.Unmarshal(terms, &l.Terms); err != nil {
		return l, fmt.Errorf("unmarshal terms: %w", err)
	}
	if l.LandlordSignature, err = unmarshalNullable[lease.Signature](landlordSig); err != nil {
		return l, fmt.Errorf("unmarshal landlord signature: %w", err)
	}
	if l.TenantSignature, err = unmarshalNullable[lease.Signature](tenantSig); err != nil {
		return l, fmt.Errorf("unmarshal tenant signature: %w", err)
	}
	if len(chgs) > 0 {
		if err := json.Unmarshal(chgs, &l.RequestedChanges); err != nil {
			return l, fmt.Errorf("unmarshal requested changes: %w", err)
		}
	}
	l.RequestedChanges = orEmpty(l.RequestedChanges)
	return l, nil
}
