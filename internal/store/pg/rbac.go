package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"storegate.org/internal/auth"
	"storegate.org/internal/ids"
)

const (
	pgErrUniqueViolation     = "23505"
	pgErrForeignKeyViolation = "23503"
)

var _ auth.Store = (*Store)(nil)

const userColumns = `id, email, password_hash, status, is_verified, mfa_enabled, last_login, failed_login_attempts, created_at, updated_at`

// CreateUser inserts the user row, the default role membership and the grant
// audit record in one transaction, so a half-registered account (user exists,
// role missing) is never observable.
func (s *Store) CreateUser(ctx context.Context, email, passwordHash, defaultRole, reason string) (auth.User, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return auth.User{}, err
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `
		insert into users (id, email, password_hash, status)
		values ($1, $2, $3, $4)
		returning `+userColumns+`
	`, ids.New(), email, passwordHash, auth.UserStatusActive)
	user, err := scanUser(row)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return auth.User{}, auth.ErrConflict
		}
		return auth.User{}, err
	}

	roleID, err := roleIDByName(ctx, tx, defaultRole)
	if err != nil {
		return auth.User{}, err
	}
	if _, err := tx.ExecContext(ctx, `
		insert into user_roles (user_id, role_id)
		values ($1, $2)
	`, user.ID, roleID); err != nil {
		return auth.User{}, err
	}
	if err := appendAudit(ctx, tx, auth.AuditRecord{
		ID:        ids.New(),
		ActorID:   user.ID,
		Action:    auth.AuditActionGrant,
		SubjectID: user.ID,
		RoleID:    roleID,
		RoleName:  defaultRole,
		Reason:    reason,
	}); err != nil {
		return auth.User{}, err
	}
	if err := tx.Commit(); err != nil {
		return auth.User{}, err
	}
	return user, nil
}

func (s *Store) FindUser(ctx context.Context, id string) (auth.User, error) {
	row := s.db.QueryRowContext(ctx, `select `+userColumns+` from users where id = $1`, id)
	user, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.User{}, auth.ErrNotFound
	}
	if err != nil {
		return auth.User{}, err
	}
	return user, nil
}

func (s *Store) FindUserByEmail(ctx context.Context, email string) (auth.User, error) {
	row := s.db.QueryRowContext(ctx, `select `+userColumns+` from users where email = $1`, email)
	user, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.User{}, auth.ErrNotFound
	}
	if err != nil {
		return auth.User{}, err
	}
	return user, nil
}

func (s *Store) ListUsers(ctx context.Context, limit int) ([]auth.User, error) {
	rows, err := s.db.QueryContext(ctx, `
		select `+userColumns+` from users
		order by created_at desc, id desc
		limit $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []auth.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

func (s *Store) SetUserStatus(ctx context.Context, userID, status string) error {
	res, err := s.db.ExecContext(ctx, `
		update users set status = $2, updated_at = now() where id = $1
	`, userID, status)
	if err != nil {
		return err
	}
	return requireRowsAffected(res)
}

func (s *Store) RecordLoginSuccess(ctx context.Context, userID string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		update users set last_login = $2, failed_login_attempts = 0, updated_at = now()
		where id = $1
	`, userID, at)
	if err != nil {
		return err
	}
	return requireRowsAffected(res)
}

func (s *Store) RecordLoginFailure(ctx context.Context, userID string) error {
	res, err := s.db.ExecContext(ctx, `
		update users set failed_login_attempts = failed_login_attempts + 1, updated_at = now()
		where id = $1
	`, userID)
	if err != nil {
		return err
	}
	return requireRowsAffected(res)
}

// GrantRole inserts the membership row and the audit record in one
// transaction. The user row is locked first so concurrent grants and revokes
// of the same (subject, role) pair serialize; audit order then reflects
// commit order.
func (s *Store) GrantRole(ctx context.Context, g auth.RoleGrant) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var dummy int
	if err := tx.QueryRowContext(ctx, `select 1 from users where id = $1 for update`, g.UserID).Scan(&dummy); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return auth.ErrNotFound
		}
		return err
	}

	roleID, err := roleIDByName(ctx, tx, g.RoleName)
	if err != nil {
		return err
	}

	// Idempotent on membership; the audit record is appended per call.
	if _, err := tx.ExecContext(ctx, `
		insert into user_roles (user_id, role_id)
		values ($1, $2)
		on conflict do nothing
	`, g.UserID, roleID); err != nil {
		return err
	}

	if err := appendAudit(ctx, tx, auth.AuditRecord{
		ID:        ids.New(),
		ActorID:   g.ActorID,
		Action:    auth.AuditActionGrant,
		SubjectID: g.UserID,
		RoleID:    roleID,
		RoleName:  g.RoleName,
		Reason:    g.Reason,
	}); err != nil {
		return err
	}
	return tx.Commit()
}

// RevokeRole deletes the membership row and appends the audit record in one
// transaction. A role the subject does not hold yields ErrNotFound and the
// rollback discards any audit write.
func (s *Store) RevokeRole(ctx context.Context, g auth.RoleGrant) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var dummy int
	if err := tx.QueryRowContext(ctx, `select 1 from users where id = $1 for update`, g.UserID).Scan(&dummy); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return auth.ErrNotFound
		}
		return err
	}

	roleID, err := roleIDByName(ctx, tx, g.RoleName)
	if err != nil {
		return err
	}

	res, err := tx.ExecContext(ctx, `
		delete from user_roles where user_id = $1 and role_id = $2
	`, g.UserID, roleID)
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return auth.ErrNotFound
	}

	if err := appendAudit(ctx, tx, auth.AuditRecord{
		ID:        ids.New(),
		ActorID:   g.ActorID,
		Action:    auth.AuditActionRevoke,
		SubjectID: g.UserID,
		RoleID:    roleID,
		RoleName:  g.RoleName,
		Reason:    g.Reason,
	}); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) RolesForUser(ctx context.Context, userID string) ([]auth.Role, error) {
	rows, err := s.db.QueryContext(ctx, `
		select r.id, r.name, r.description, r.created_at, r.updated_at
		from user_roles ur
		join roles r on r.id = ur.role_id
		where ur.user_id = $1
		order by r.name
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []auth.Role
	for rows.Next() {
		var (
			role auth.Role
			desc sql.NullString
		)
		if err := rows.Scan(&role.ID, &role.Name, &desc, &role.CreatedAt, &role.UpdatedAt); err != nil {
			return nil, err
		}
		if desc.Valid {
			role.Description = desc.String
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

// EffectivePermissions resolves the closure over directly assigned roles and
// every role reachable through parent→child hierarchy edges. The query always
// reads current state; there is no cache, so a revoke takes effect on the
// very next request.
func (s *Store) EffectivePermissions(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		with recursive reachable as (
			select ur.role_id from user_roles ur where ur.user_id = $1
			union
			select rh.child_role_id
			from role_hierarchy rh
			join reachable re on rh.parent_role_id = re.role_id
		)
		select distinct p.key
		from reachable re
		join role_permissions rp on rp.role_id = re.role_id
		join permissions p on p.id = rp.permission_id
		order by p.key
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var perms []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		perms = append(perms, key)
	}
	return perms, rows.Err()
}

// AddHierarchyEdge inserts a parent→child edge after proving the reverse path
// does not exist. The check and the insert share a serializable transaction
// so two concurrent inserts cannot close a cycle between them.
func (s *Store) AddHierarchyEdge(ctx context.Context, parentRole, childRole string) (auth.HierarchyEdge, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return auth.HierarchyEdge{}, err
	}
	defer func() { _ = tx.Rollback() }()

	parentID, err := roleIDByName(ctx, tx, parentRole)
	if err != nil {
		return auth.HierarchyEdge{}, err
	}
	childID, err := roleIDByName(ctx, tx, childRole)
	if err != nil {
		return auth.HierarchyEdge{}, err
	}
	if parentID == childID {
		return auth.HierarchyEdge{}, fmt.Errorf("%w: role cannot be its own child", auth.ErrInvariant)
	}

	// Reject the edge if parent is already reachable from child: inserting
	// parent→child would then close a cycle.
	var reachable int
	err = tx.QueryRowContext(ctx, `
		with recursive reach as (
			select child_role_id as role_id from role_hierarchy where parent_role_id = $1
			union
			select rh.child_role_id
			from role_hierarchy rh
			join reach on rh.parent_role_id = reach.role_id
		)
		select 1 from reach where role_id = $2
	`, childID, parentID).Scan(&reachable)
	if err == nil {
		return auth.HierarchyEdge{}, fmt.Errorf("%w: edge %s -> %s would create a cycle", auth.ErrInvariant, parentRole, childRole)
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return auth.HierarchyEdge{}, err
	}

	var edge auth.HierarchyEdge
	err = tx.QueryRowContext(ctx, `
		insert into role_hierarchy (parent_role_id, child_role_id)
		values ($1, $2)
		returning parent_role_id, child_role_id, created_at
	`, parentID, childID).Scan(&edge.ParentRoleID, &edge.ChildRoleID, &edge.CreatedAt)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return auth.HierarchyEdge{}, auth.ErrConflict
		}
		return auth.HierarchyEdge{}, err
	}
	if err := tx.Commit(); err != nil {
		return auth.HierarchyEdge{}, err
	}
	return edge, nil
}

func (s *Store) EnsurePermissions(ctx context.Context, perms []auth.Permission) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, p := range perms {
		if _, err := tx.ExecContext(ctx, `
			insert into permissions (id, key, description)
			values ($1, $2, $3)
			on conflict (key) do nothing
		`, ids.New(), p.Key, p.Description); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) ListAuditRecords(ctx context.Context, limit int) ([]auth.AuditRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, actor_id, action, subject_id, role_id, role_name, coalesce(reason, ''), occurred_at
		from audit_records
		order by occurred_at desc, id desc
		limit $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []auth.AuditRecord
	for rows.Next() {
		var rec auth.AuditRecord
		if err := rows.Scan(&rec.ID, &rec.ActorID, &rec.Action, &rec.SubjectID, &rec.RoleID, &rec.RoleName, &rec.Reason, &rec.OccurredAt); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// --- helpers ---

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func roleIDByName(ctx context.Context, q querier, name string) (string, error) {
	var id string
	err := q.QueryRowContext(ctx, `select id from roles where name = $1`, name).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: role %s", auth.ErrNotFound, name)
	}
	if err != nil {
		return "", err
	}
	return id, nil
}

func appendAudit(ctx context.Context, tx *sql.Tx, rec auth.AuditRecord) error {
	_, err := tx.ExecContext(ctx, `
		insert into audit_records (id, actor_id, action, subject_id, role_id, role_name, reason)
		values ($1, $2, $3, $4, $5, $6, nullif($7, ''))
	`, rec.ID, rec.ActorID, rec.Action, rec.SubjectID, rec.RoleID, rec.RoleName, rec.Reason)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (auth.User, error) {
	var (
		user      auth.User
		lastLogin sql.NullTime
	)
	err := row.Scan(
		&user.ID, &user.Email, &user.PasswordHash, &user.Status,
		&user.Verified, &user.MFAEnabled, &lastLogin,
		&user.FailedLoginAttempts, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return auth.User{}, err
	}
	if lastLogin.Valid {
		t := lastLogin.Time
		user.LastLogin = &t
	}
	return user, nil
}

func requireRowsAffected(res sql.Result) error {
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return auth.ErrNotFound
	}
	return nil
}

func maybePgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}
