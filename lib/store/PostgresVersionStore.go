package store

import (
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"
	"github.com/vellumhq/vellum-go/lib/exception"
	"github.com/vellumhq/vellum-go/lib/models/version"
	"github.com/vellumhq/vellum-go/lib/store/migrations"
	"go.uber.org/zap"
)

type PostgresVersionStore struct {
	options PostgresOptions
	sqlDB   *sql.DB
}

type PostgresOptions struct {
	Username string
	Password string
	Port     int
	Host     string
	Database string
}

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// ============== VERSION METHODS ==============

func (d PostgresVersionStore) SaveVersion(v *version.ContentVersion, expectedHeadID string) error {
	parentIDs, changes, authorJSON, err := marshalVersionColumns(v)
	if err != nil {
		return err
	}

	tx, err := d.sqlDB.Begin()
	if err != nil {
		return wrapPostgresError("begin save version", err)
	}
	defer tx.Rollback()

	headSQL, headArgs, err := psql.
		Select("head_version_id").
		From("branch").
		Where(sq.Eq{"content_path": v.ContentPath}).
		Where(sq.Eq{"id": v.BranchID}).
		Suffix("FOR UPDATE").
		ToSql()
	if err != nil {
		return err
	}

	var currentHead string
	err = tx.QueryRow(headSQL, headArgs...).Scan(&currentHead)
	if errors.Is(err, sql.ErrNoRows) {
		return exception.NewBranchNotFoundError(v.ContentPath, v.BranchID)
	}
	if err != nil {
		return wrapPostgresError("read branch head", err)
	}
	if currentHead != expectedHeadID {
		return exception.NewStaleParentVersionError(v.ContentPath, expectedHeadID, currentHead)
	}

	insertSQL, insertArgs, err := psql.
		Insert("content_version").
		Columns("content_path", "id", "branch_id", "parent_ids", "content",
			"changes", "author", "status", "created_at").
		Values(v.ContentPath, v.ID, v.BranchID, parentIDs, v.Content,
			changes, authorJSON, string(v.Status), v.CreatedAt).
		ToSql()
	if err != nil {
		return err
	}
	if _, err := tx.Exec(insertSQL, insertArgs...); err != nil {
		return wrapPostgresError("insert version", err)
	}

	updateSQL, updateArgs, err := psql.
		Update("branch").
		Set("head_version_id", v.ID).
		Where(sq.Eq{"content_path": v.ContentPath}).
		Where(sq.Eq{"id": v.BranchID}).
		Where(sq.Eq{"head_version_id": expectedHeadID}).
		ToSql()
	if err != nil {
		return err
	}

	result, err := tx.Exec(updateSQL, updateArgs...)
	if err != nil {
		return wrapPostgresError("advance branch head", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return wrapPostgresError("advance branch head", err)
	}
	if rowsAffected == 0 {
		return exception.NewStaleParentVersionError(v.ContentPath, expectedHeadID, currentHead)
	}

	if err := tx.Commit(); err != nil {
		return wrapPostgresError("commit save version", err)
	}
	return nil
}

func (d PostgresVersionStore) GetVersion(contentPath string, versionID string) (*version.ContentVersion, error) {
	resultedSQL, args, err := psql.
		Select("content_path", "id", "branch_id", "parent_ids", "content",
			"changes", "author", "status", "created_at").
		From("content_version").
		Where(sq.Eq{"content_path": contentPath}).
		Where(sq.Eq{"id": versionID}).
		ToSql()
	if err != nil {
		return nil, err
	}

	row := d.sqlDB.QueryRow(resultedSQL, args...)
	found, err := readToContentVersion(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, exception.NewVersionNotFoundError(contentPath, versionID)
	}
	if err != nil {
		return nil, wrapPostgresError("read version", err)
	}
	return found, nil
}

func (d PostgresVersionStore) GetVersions(contentPath string) ([]*version.ContentVersion, error) {
	resultedSQL, args, err := psql.
		Select("content_path", "id", "branch_id", "parent_ids", "content",
			"changes", "author", "status", "created_at").
		From("content_version").
		Where(sq.Eq{"content_path": contentPath}).
		OrderBy("seq ASC").
		ToSql()
	if err != nil {
		return nil, err
	}

	query, err := d.sqlDB.Query(resultedSQL, args...)
	if err != nil {
		return nil, wrapPostgresError("read versions", err)
	}
	defer query.Close()

	var versions []*version.ContentVersion
	for query.Next() {
		found, err := readToContentVersion(query)
		if err != nil {
			return nil, wrapPostgresError("scan version", err)
		}
		versions = append(versions, found)
	}
	if err := query.Err(); err != nil {
		return nil, wrapPostgresError("read versions", err)
	}

	if len(versions) == 0 {
		return nil, exception.NewContentNotFoundError(contentPath)
	}
	return versions, nil
}

func (d PostgresVersionStore) DoesContentExist(contentPath string) (bool, error) {
	resultedSQL, args, err := psql.
		Select("1").
		From("content_version").
		Where(sq.Eq{"content_path": contentPath}).
		Limit(1).
		ToSql()
	if err != nil {
		return false, err
	}

	row := d.sqlDB.QueryRow(resultedSQL, args...)
	var exists int
	err = row.Scan(&exists)

	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, wrapPostgresError("check content", err)
	}
	return true, nil
}

// ============== BRANCH METHODS ==============

func (d PostgresVersionStore) SaveBranch(b *version.Branch) error {
	resultedSQL, args, err := psql.
		Insert("branch").
		Columns("content_path", "id", "name", "description",
			"base_version_id", "head_version_id", "created_by", "created_at").
		Values(b.ContentPath, b.ID, b.Name, b.Description,
			b.BaseVersionID, b.HeadVersionID, b.CreatedBy, b.CreatedAt).
		Suffix(`ON CONFLICT(content_path, id) DO UPDATE SET
			description = excluded.description,
			head_version_id = excluded.head_version_id`).
		ToSql()
	if err != nil {
		return err
	}

	if _, err := d.sqlDB.Exec(resultedSQL, args...); err != nil {
		if isPostgresUniqueViolation(err) {
			return exception.NewDuplicateBranchNameError(b.ContentPath, b.Name)
		}
		return wrapPostgresError("save branch", err)
	}
	return nil
}

func (d PostgresVersionStore) GetBranch(contentPath string, branchID string) (*version.Branch, error) {
	return d.getBranchWhere(contentPath, sq.Eq{"id": branchID}, branchID)
}

func (d PostgresVersionStore) GetBranchByName(contentPath string, name string) (*version.Branch, error) {
	return d.getBranchWhere(contentPath, sq.Eq{"name": name}, name)
}

func (d PostgresVersionStore) getBranchWhere(contentPath string, cond sq.Eq, label string) (*version.Branch, error) {
	resultedSQL, args, err := psql.
		Select("content_path", "id", "name", "description",
			"base_version_id", "head_version_id", "created_by", "created_at").
		From("branch").
		Where(sq.Eq{"content_path": contentPath}).
		Where(cond).
		ToSql()
	if err != nil {
		return nil, err
	}

	row := d.sqlDB.QueryRow(resultedSQL, args...)
	found, err := readToBranch(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, exception.NewBranchNotFoundError(contentPath, label)
	}
	if err != nil {
		return nil, wrapPostgresError("read branch", err)
	}
	return found, nil
}

func (d PostgresVersionStore) GetBranches(contentPath string) ([]*version.Branch, error) {
	resultedSQL, args, err := psql.
		Select("content_path", "id", "name", "description",
			"base_version_id", "head_version_id", "created_by", "created_at").
		From("branch").
		Where(sq.Eq{"content_path": contentPath}).
		OrderBy("created_at ASC, name ASC").
		ToSql()
	if err != nil {
		return nil, err
	}

	query, err := d.sqlDB.Query(resultedSQL, args...)
	if err != nil {
		return nil, wrapPostgresError("read branches", err)
	}
	defer query.Close()

	var branches []*version.Branch
	for query.Next() {
		found, err := readToBranch(query)
		if err != nil {
			return nil, wrapPostgresError("scan branch", err)
		}
		branches = append(branches, found)
	}
	return branches, query.Err()
}

func (d PostgresVersionStore) GetHead(contentPath string, branchID string) (string, error) {
	resultedSQL, args, err := psql.
		Select("head_version_id").
		From("branch").
		Where(sq.Eq{"content_path": contentPath}).
		Where(sq.Eq{"id": branchID}).
		ToSql()
	if err != nil {
		return "", err
	}

	row := d.sqlDB.QueryRow(resultedSQL, args...)
	var head string
	err = row.Scan(&head)

	if errors.Is(err, sql.ErrNoRows) {
		return "", exception.NewBranchNotFoundError(contentPath, branchID)
	}
	if err != nil {
		return "", wrapPostgresError("read branch head", err)
	}
	return head, nil
}

// ============== PUBLISH METHODS ==============

func (d PostgresVersionStore) SetPublished(contentPath string, versionID string) error {
	tx, err := d.sqlDB.Begin()
	if err != nil {
		return wrapPostgresError("begin publish", err)
	}
	defer tx.Rollback()

	clearSQL, clearArgs, err := psql.
		Update("content_version").
		Set("status", string(version.StatusDraft)).
		Where(sq.Eq{"content_path": contentPath}).
		Where(sq.Eq{"status": string(version.StatusPublished)}).
		ToSql()
	if err != nil {
		return err
	}
	if _, err := tx.Exec(clearSQL, clearArgs...); err != nil {
		return wrapPostgresError("clear published status", err)
	}

	markSQL, markArgs, err := psql.
		Update("content_version").
		Set("status", string(version.StatusPublished)).
		Where(sq.Eq{"content_path": contentPath}).
		Where(sq.Eq{"id": versionID}).
		ToSql()
	if err != nil {
		return err
	}
	result, err := tx.Exec(markSQL, markArgs...)
	if err != nil {
		return wrapPostgresError("mark published status", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return wrapPostgresError("mark published status", err)
	}
	if rowsAffected == 0 {
		return exception.NewVersionNotFoundError(contentPath, versionID)
	}

	pointerSQL, pointerArgs, err := psql.
		Insert("published_content").
		Columns("content_path", "version_id").
		Values(contentPath, versionID).
		Suffix(`ON CONFLICT(content_path) DO UPDATE SET
			version_id = excluded.version_id,
			updated_at = CURRENT_TIMESTAMP`).
		ToSql()
	if err != nil {
		return err
	}
	if _, err := tx.Exec(pointerSQL, pointerArgs...); err != nil {
		return wrapPostgresError("save published pointer", err)
	}

	if err := tx.Commit(); err != nil {
		return wrapPostgresError("commit publish", err)
	}
	return nil
}

func (d PostgresVersionStore) GetPublished(contentPath string) (string, error) {
	resultedSQL, args, err := psql.
		Select("version_id").
		From("published_content").
		Where(sq.Eq{"content_path": contentPath}).
		ToSql()
	if err != nil {
		return "", err
	}

	row := d.sqlDB.QueryRow(resultedSQL, args...)
	var versionID string
	err = row.Scan(&versionID)

	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", wrapPostgresError("read published pointer", err)
	}
	return versionID, nil
}

// ============== ERROR HELPERS ==============

func isPostgresUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

func wrapPostgresError(op string, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		// class 08 is connection failure, 57P01 is admin shutdown
		if pqErr.Code.Class() == "08" || pqErr.Code == "57P01" {
			return exception.NewTransientStorageError(op, err)
		}
	}
	return exception.NewStorageError(op, err)
}

// ============== LIFECYCLE ==============

func (d PostgresVersionStore) Ping() error {
	return d.sqlDB.Ping()
}

func (d PostgresVersionStore) Close() error {
	return d.sqlDB.Close()
}

// NewPostgresVersionStore connects to Postgres and runs pending migrations.
func NewPostgresVersionStore(options PostgresOptions, logger *zap.SugaredLogger) (*PostgresVersionStore, error) {
	dbUrl := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		options.Username, options.Password, options.Host, options.Port, options.Database)
	sqlDb, err := sql.Open("postgres", dbUrl)
	if err != nil {
		return nil, err
	}

	if err := sqlDb.Ping(); err != nil {
		sqlDb.Close()
		return nil, fmt.Errorf("failed to reach postgres: %w", err)
	}

	migrationManager := migrations.NewMigrationManager(sqlDb, migrations.DialectPostgres, logger)
	if err := migrationManager.Run(); err != nil {
		sqlDb.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &PostgresVersionStore{
		options: options,
		sqlDB:   sqlDb,
	}, nil
}

var _ VersionStore = (*PostgresVersionStore)(nil)
