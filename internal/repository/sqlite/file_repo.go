package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/prn-tf/barrett-share/internal/domain"
	"github.com/prn-tf/barrett-share/internal/repository"
)

// fileRepository implements repository.FileRepository for SQLite.
type fileRepository struct {
	db *DB
}

// NewFileRepository creates a new SQLite file repository.
func NewFileRepository(db *DB) repository.FileRepository {
	return &fileRepository{db: db}
}

const fileColumns = `
	f.id, f.owner_id, u.username, f.original_filename, f.content_type,
	f.size, f.upload_time, f.link_id, f.permission, f.password_hash, f.storage_ref
`

// scanFile scans a single file row including the joined owner username.
func scanFile(row interface{ Scan(...interface{}) error }) (*domain.FileRecord, error) {
	file := &domain.FileRecord{}
	var uploadTime string
	var passwordHash sql.NullString
	var permission string

	err := row.Scan(
		&file.ID,
		&file.OwnerID,
		&file.OwnerUsername,
		&file.OriginalFilename,
		&file.ContentType,
		&file.Size,
		&uploadTime,
		&file.LinkID,
		&permission,
		&passwordHash,
		&file.StorageRef,
	)
	if err != nil {
		return nil, err
	}

	file.UploadTime, _ = time.Parse(time.RFC3339, uploadTime)
	file.Permission = domain.Permission(permission)
	if passwordHash.Valid {
		file.PasswordHash = &passwordHash.String
	}

	return file, nil
}

// Create creates a new file record.
// Link id uniqueness is enforced against both live and retired link ids so
// an id retired by a delete can never come back into circulation.
func (r *fileRepository) Create(ctx context.Context, file *domain.FileRecord) error {
	return r.db.WithTx(ctx, func(tx *sql.Tx) error {
		var retired int
		err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM retired_link_ids WHERE link_id = ?`, file.LinkID,
		).Scan(&retired)
		if err != nil {
			return fmt.Errorf("failed to check retired link ids: %w", err)
		}
		if retired > 0 {
			return domain.ErrLinkIDCollision
		}

		var passwordHash sql.NullString
		if file.PasswordHash != nil {
			passwordHash = sql.NullString{String: *file.PasswordHash, Valid: true}
		}

		result, err := tx.ExecContext(ctx, `
			INSERT INTO files (owner_id, original_filename, content_type, size,
				upload_time, link_id, permission, password_hash, storage_ref)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			file.OwnerID,
			file.OriginalFilename,
			file.ContentType,
			file.Size,
			file.UploadTime.Format(time.RFC3339),
			file.LinkID,
			string(file.Permission),
			passwordHash,
			file.StorageRef,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return domain.ErrLinkIDCollision
			}
			return fmt.Errorf("failed to create file record: %w", err)
		}

		id, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get last insert ID: %w", err)
		}
		file.ID = id

		return nil
	})
}

// GetByID retrieves a file record by internal ID.
func (r *fileRepository) GetByID(ctx context.Context, id int64) (*domain.FileRecord, error) {
	query := `
		SELECT ` + fileColumns + `
		FROM files f
		JOIN users u ON u.id = f.owner_id
		WHERE f.id = ?
	`

	file, err := scanFile(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if isNoRows(err) {
			return nil, domain.ErrFileNotFound
		}
		return nil, fmt.Errorf("failed to get file by ID: %w", err)
	}

	return file, nil
}

// GetByLinkID retrieves a file record by its public link id.
func (r *fileRepository) GetByLinkID(ctx context.Context, linkID string) (*domain.FileRecord, error) {
	query := `
		SELECT ` + fileColumns + `
		FROM files f
		JOIN users u ON u.id = f.owner_id
		WHERE f.link_id = ?
	`

	file, err := scanFile(r.db.QueryRowContext(ctx, query, linkID))
	if err != nil {
		if isNoRows(err) {
			return nil, domain.ErrLinkNotFound
		}
		return nil, fmt.Errorf("failed to get file by link id: %w", err)
	}

	return file, nil
}

// ListByOwner returns all file records owned by the given user, newest first.
func (r *fileRepository) ListByOwner(ctx context.Context, ownerID int64) ([]*domain.FileRecord, error) {
	query := `
		SELECT ` + fileColumns + `
		FROM files f
		JOIN users u ON u.id = f.owner_id
		WHERE f.owner_id = ?
		ORDER BY f.upload_time DESC, f.id DESC
	`

	rows, err := r.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list files by owner: %w", err)
	}
	defer rows.Close()

	var files []*domain.FileRecord
	for rows.Next() {
		file, err := scanFile(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan file: %w", err)
		}
		files = append(files, file)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating files: %w", err)
	}

	return files, nil
}

// UpdatePermission atomically sets permission and password hash together.
func (r *fileRepository) UpdatePermission(ctx context.Context, id int64, permission domain.Permission, passwordHash *string) error {
	var hash sql.NullString
	if passwordHash != nil {
		hash = sql.NullString{String: *passwordHash, Valid: true}
	}

	result, err := r.db.ExecContext(ctx,
		`UPDATE files SET permission = ?, password_hash = ? WHERE id = ?`,
		string(permission), hash, id,
	)
	if err != nil {
		return fmt.Errorf("failed to update permission: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return domain.ErrFileNotFound
	}

	return nil
}

// Delete deletes a file record by ID, retiring its link id.
func (r *fileRepository) Delete(ctx context.Context, id int64) error {
	return r.db.WithTx(ctx, func(tx *sql.Tx) error {
		var linkID string
		err := tx.QueryRowContext(ctx, `SELECT link_id FROM files WHERE id = ?`, id).Scan(&linkID)
		if err != nil {
			if isNoRows(err) {
				return domain.ErrFileNotFound
			}
			return fmt.Errorf("failed to get link id for delete: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM files WHERE id = ?`, id); err != nil {
			return fmt.Errorf("failed to delete file record: %w", err)
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO retired_link_ids (link_id, retired_at) VALUES (?, ?)`,
			linkID, time.Now().UTC().Format(time.RFC3339),
		)
		if err != nil {
			return fmt.Errorf("failed to retire link id: %w", err)
		}

		return nil
	})
}

// CountByOwner returns the number of records owned by the given user.
func (r *fileRepository) CountByOwner(ctx context.Context, ownerID int64) (int64, error) {
	var count int64
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM files WHERE owner_id = ?`, ownerID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count files by owner: %w", err)
	}
	return count, nil
}

// List returns all file records with pagination.
func (r *fileRepository) List(ctx context.Context, opts repository.ListOptions) (*repository.ListResult[domain.FileRecord], error) {
	var total int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM files`).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count files: %w", err)
	}

	query := `
		SELECT ` + fileColumns + `
		FROM files f
		JOIN users u ON u.id = f.owner_id
		ORDER BY f.upload_time DESC, f.id DESC
		LIMIT ? OFFSET ?
	`

	rows, err := r.db.QueryContext(ctx, query, opts.Limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}
	defer rows.Close()

	var files []*domain.FileRecord
	for rows.Next() {
		file, err := scanFile(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan file: %w", err)
		}
		files = append(files, file)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating files: %w", err)
	}

	return &repository.ListResult[domain.FileRecord]{
		Items:  files,
		Total:  total,
		Offset: opts.Offset,
		Limit:  opts.Limit,
	}, nil
}

// Ensure fileRepository implements repository.FileRepository.
var _ repository.FileRepository = (*fileRepository)(nil)
