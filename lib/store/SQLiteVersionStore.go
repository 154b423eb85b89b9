package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/vellumhq/vellum-go/lib/exception"
	"github.com/vellumhq/vellum-go/lib/models/version"
	"github.com/vellumhq/vellum-go/lib/store/migrations"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

type SQLiteVersionStore struct {
	path  string
	sqlDB *sql.DB
}

type rowScanner interface {
	Scan(dest ...any) error
}

// ============== VERSION METHODS ==============

func (d SQLiteVersionStore) SaveVersion(v *version.ContentVersion, expectedHeadID string) error {
	parentIDs, changes, authorJSON, err := marshalVersionColumns(v)
	if err != nil {
		return err
	}

	tx, err := d.sqlDB.Begin()
	if err != nil {
		return wrapSQLiteError("begin save version", err)
	}
	defer tx.Rollback()

	headSQL, headArgs, err := sq.
		Select("head_version_id").
		From("branch").
		Where(sq.Eq{"content_path": v.ContentPath}).
		Where(sq.Eq{"id": v.BranchID}).
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
		return wrapSQLiteError("read branch head", err)
	}
	if currentHead != expectedHeadID {
		return exception.NewStaleParentVersionError(v.ContentPath, expectedHeadID, currentHead)
	}

	insertSQL, insertArgs, err := sq.
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
		return wrapSQLiteError("insert version", err)
	}

	updateSQL, updateArgs, err := sq.
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
		return wrapSQLiteError("advance branch head", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return wrapSQLiteError("advance branch head", err)
	}
	if rowsAffected == 0 {
		return exception.NewStaleParentVersionError(v.ContentPath, expectedHeadID, currentHead)
	}

	if err := tx.Commit(); err != nil {
		return wrapSQLiteError("commit save version", err)
	}
	return nil
}

func (d SQLiteVersionStore) GetVersion(contentPath string, versionID string) (*version.ContentVersion, error) {
	resultedSQL, args, err := sq.
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
		return nil, wrapSQLiteError("read version", err)
	}
	return found, nil
}

func (d SQLiteVersionStore) GetVersions(contentPath string) ([]*version.ContentVersion, error) {
	resultedSQL, args, err := sq.
		Select("content_path", "id", "branch_id", "parent_ids", "content",
			"changes", "author", "status", "created_at").
		From("content_version").
		Where(sq.Eq{"content_path": contentPath}).
		OrderBy("rowid ASC").
		ToSql()
	if err != nil {
		return nil, err
	}

	query, err := d.sqlDB.Query(resultedSQL, args...)
	if err != nil {
		return nil, wrapSQLiteError("read versions", err)
	}
	defer query.Close()

	var versions []*version.ContentVersion
	for query.Next() {
		found, err := readToContentVersion(query)
		if err != nil {
			return nil, wrapSQLiteError("scan version", err)
		}
		versions = append(versions, found)
	}
	if err := query.Err(); err != nil {
		return nil, wrapSQLiteError("read versions", err)
	}

	if len(versions) == 0 {
		return nil, exception.NewContentNotFoundError(contentPath)
	}
	return versions, nil
}

func (d SQLiteVersionStore) DoesContentExist(contentPath string) (bool, error) {
	resultedSQL, args, err := sq.
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
		return false, wrapSQLiteError("check content", err)
	}
	return true, nil
}

// ============== BRANCH METHODS ==============

func (d SQLiteVersionStore) SaveBranch(b *version.Branch) error {
	resultedSQL, args, err := sq.
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
		if isUniqueViolation(err) {
			return exception.NewDuplicateBranchNameError(b.ContentPath, b.Name)
		}
		return wrapSQLiteError("save branch", err)
	}
	return nil
}

func (d SQLiteVersionStore) GetBranch(contentPath string, branchID string) (*version.Branch, error) {
	return d.getBranchWhere(contentPath, sq.Eq{"id": branchID}, branchID)
}

func (d SQLiteVersionStore) GetBranchByName(contentPath string, name string) (*version.Branch, error) {
	return d.getBranchWhere(contentPath, sq.Eq{"name": name}, name)
}

func (d SQLiteVersionStore) getBranchWhere(contentPath string, cond sq.Eq, label string) (*version.Branch, error) {
	resultedSQL, args, err := sq.
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
		return nil, wrapSQLiteError("read branch", err)
	}
	return found, nil
}

func (d SQLiteVersionStore) GetBranches(contentPath string) ([]*version.Branch, error) {
	resultedSQL, args, err := sq.
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
		return nil, wrapSQLiteError("read branches", err)
	}
	defer query.Close()

	var branches []*version.Branch
	for query.Next() {
		found, err := readToBranch(query)
		if err != nil {
			return nil, wrapSQLiteError("scan branch", err)
		}
		branches = append(branches, found)
	}
	return branches, query.Err()
}

func (d SQLiteVersionStore) GetHead(contentPath string, branchID string) (string, error) {
	resultedSQL, args, err := sq.
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
		return "", wrapSQLiteError("read branch head", err)
	}
	return head, nil
}

// ============== PUBLISH METHODS ==============

func (d SQLiteVersionStore) SetPublished(contentPath string, versionID string) error {
	tx, err := d.sqlDB.Begin()
	if err != nil {
		return wrapSQLiteError("begin publish", err)
	}
	defer tx.Rollback()

	clearSQL, clearArgs, err := sq.
		Update("content_version").
		Set("status", string(version.StatusDraft)).
		Where(sq.Eq{"content_path": contentPath}).
		Where(sq.Eq{"status": string(version.StatusPublished)}).
		ToSql()
	if err != nil {
		return err
	}
	if _, err := tx.Exec(clearSQL, clearArgs...); err != nil {
		return wrapSQLiteError("clear published status", err)
	}

	markSQL, markArgs, err := sq.
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
		return wrapSQLiteError("mark published status", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return wrapSQLiteError("mark published status", err)
	}
	if rowsAffected == 0 {
		return exception.NewVersionNotFoundError(contentPath, versionID)
	}

	pointerSQL, pointerArgs, err := sq.
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
		return wrapSQLiteError("save published pointer", err)
	}

	if err := tx.Commit(); err != nil {
		return wrapSQLiteError("commit publish", err)
	}
	return nil
}

func (d SQLiteVersionStore) GetPublished(contentPath string) (string, error) {
	resultedSQL, args, err := sq.
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
		return "", wrapSQLiteError("read published pointer", err)
	}
	return versionID, nil
}

// ============== SCAN HELPERS ==============

func readToContentVersion(row rowScanner) (*version.ContentVersion, error) {
	var v version.ContentVersion
	var status string
	var parentIDs, changes, authorJSON sql.NullString
	var createdAt sql.NullTime

	err := row.Scan(
		&v.ContentPath, &v.ID, &v.BranchID, &parentIDs, &v.Content,
		&changes, &authorJSON, &status, &createdAt,
	)
	if err != nil {
		return nil, err
	}

	v.Status = version.VersionStatus(status)
	if createdAt.Valid {
		v.CreatedAt = createdAt.Time
	}

	if parentIDs.Valid && parentIDs.String != "" {
		if err := json.Unmarshal([]byte(parentIDs.String), &v.ParentIDs); err != nil {
			return nil, fmt.Errorf("error unmarshaling parent ids: %w", err)
		}
	}
	if authorJSON.Valid && authorJSON.String != "" {
		if err := json.Unmarshal([]byte(authorJSON.String), &v.Author); err != nil {
			return nil, fmt.Errorf("error unmarshaling author: %w", err)
		}
	}
	if changes.Valid {
		parsed, err := version.UnmarshalChanges([]byte(changes.String))
		if err != nil {
			return nil, err
		}
		v.Changes = parsed
	}

	return &v, nil
}

func readToBranch(row rowScanner) (*version.Branch, error) {
	var b version.Branch
	var description, createdBy sql.NullString
	var createdAt sql.NullTime

	err := row.Scan(
		&b.ContentPath, &b.ID, &b.Name, &description,
		&b.BaseVersionID, &b.HeadVersionID, &createdBy, &createdAt,
	)
	if err != nil {
		return nil, err
	}

	if description.Valid {
		b.Description = description.String
	}
	if createdBy.Valid {
		b.CreatedBy = createdBy.String
	}
	if createdAt.Valid {
		b.CreatedAt = createdAt.Time
	}
	return &b, nil
}

func marshalVersionColumns(v *version.ContentVersion) (string, string, string, error) {
	parentIDs, err := json.Marshal(v.ParentIDs)
	if err != nil {
		return "", "", "", fmt.Errorf("error marshaling parent ids: %w", err)
	}

	changes, err := version.MarshalChanges(v.Changes)
	if err != nil {
		return "", "", "", fmt.Errorf("error marshaling changes: %w", err)
	}

	authorJSON, err := json.Marshal(v.Author)
	if err != nil {
		return "", "", "", fmt.Errorf("error marshaling author: %w", err)
	}

	return string(parentIDs), string(changes), string(authorJSON), nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func wrapSQLiteError(op string, err error) error {
	if strings.Contains(err.Error(), "SQLITE_BUSY") || strings.Contains(err.Error(), "database is locked") {
		return exception.NewTransientStorageError(op, err)
	}
	return exception.NewStorageError(op, err)
}

// ============== LIFECYCLE ==============

func (d SQLiteVersionStore) Ping() error {
	return d.sqlDB.Ping()
}

func (d SQLiteVersionStore) Close() error {
	return d.sqlDB.Close()
}

// NewSQLiteVersionStore opens (and migrates) a SQLite-backed version store.
func NewSQLiteVersionStore(path string, logger *zap.SugaredLogger) (*SQLiteVersionStore, error) {
	if path == ":memory" {
		path = "file::memory:?cache=shared"
	}

	sqlDb, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	if strings.Contains(path, ":memory:") {
		sqlDb.SetMaxOpenConns(1)
	}

	if _, err = sqlDb.Exec("PRAGMA journal_mode = WAL"); err != nil {
		sqlDb.Close()
		return nil, err
	}
	if _, err = sqlDb.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		sqlDb.Close()
		return nil, err
	}
	if _, err = sqlDb.Exec("PRAGMA foreign_keys = ON"); err != nil {
		sqlDb.Close()
		return nil, err
	}

	migrationManager := migrations.NewMigrationManager(sqlDb, migrations.DialectSQLite, logger)
	if err := migrationManager.Run(); err != nil {
		sqlDb.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &SQLiteVersionStore{
		path:  path,
		sqlDB: sqlDb,
	}, nil
}

var _ VersionStore = (*SQLiteVersionStore)(nil)
