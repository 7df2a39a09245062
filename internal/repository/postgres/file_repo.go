package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/prn-tf/barrett-share/internal/domain"
	"github.com/prn-tf/barrett-share/internal/repository"
)

// fileRepository implements repository.FileRepository for PostgreSQL.
type fileRepository struct {
	db *DB
}

// NewFileRepository creates a new PostgreSQL file repository.
func NewFileRepository(db *DB) repository.FileRepository {
	return &fileRepository{db: db}
}

const fileColumns = `
	f.id, f.owner_id, u.username, f.original_filename, f.content_type,
	f.size, f.upload_time, f.link_id, f.permission, f.password_hash, f.storage_ref
`

// scanFile scans a single file row including the joined owner username.
func scanFile(row pgx.Row) (*domain.FileRecord, error) {
	file := &domain.FileRecord{}
	var permission string

	err := row.Scan(
		&file.ID,
		&file.OwnerID,
		&file.OwnerUsername,
		&file.OriginalFilename,
		&file.ContentType,
		&file.Size,
		&file.UploadTime,
		&file.LinkID,
		&permission,
		&file.PasswordHash,
		&file.StorageRef,
	)
	if err != nil {
		return nil, err
	}

	file.Permission = domain.Permission(permission)
	return file, nil
}

// Create creates a new file record.
// Link id uniqueness is enforced against both live and retired link ids.
func (r *fileRepository) Create(ctx context.Context, file *domain.FileRecord) error {
	return r.db.WithTx(ctx, pgx.TxOptions{}, func(tx pgx.Tx) error {
		var retired bool
		err := tx.QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM retired_link_ids WHERE link_id = $1)`, file.LinkID,
		).Scan(&retired)
		if err != nil {
			return fmt.Errorf("failed to check retired link ids: %w", err)
		}
		if retired {
			return domain.ErrLinkIDCollision
		}

		err = tx.QueryRow(ctx, `
			INSERT INTO files (owner_id, original_filename, content_type, size,
				upload_time, link_id, permission, password_hash, storage_ref)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			RETURNING id
		`,
			file.OwnerID,
			file.OriginalFilename,
			file.ContentType,
			file.Size,
			file.UploadTime,
			file.LinkID,
			string(file.Permission),
			file.PasswordHash,
			file.StorageRef,
		).Scan(&file.ID)

		if err != nil {
			if isUniqueViolation(err) {
				return domain.ErrLinkIDCollision
			}
			return fmt.Errorf("failed to create file record: %w", err)
		}

		return nil
	})
}

// GetByID retrieves a file record by internal ID.
func (r *fileRepository) GetByID(ctx context.Context, id int64) (*domain.FileRecord, error) {
	query := `
		SELECT ` + fileColumns + `
		FROM files f
		JOIN users u ON u.id = f.owner_id
		WHERE f.id = $1
	`

	file, err := scanFile(r.db.Pool.QueryRow(ctx, query, id))
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
		WHERE f.link_id = $1
	`

	file, err := scanFile(r.db.Pool.QueryRow(ctx, query, linkID))
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
		WHERE f.owner_id = $1
		ORDER BY f.upload_time DESC, f.id DESC
	`

	rows, err := r.db.Pool.Query(ctx, query, ownerID)
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
	tag, err := r.db.Pool.Exec(ctx,
		`UPDATE files SET permission = $1, password_hash = $2 WHERE id = $3`,
		string(permission), passwordHash, id,
	)
	if err != nil {
		return fmt.Errorf("failed to update permission: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return domain.ErrFileNotFound
	}

	return nil
}

// Delete deletes a file record by ID, retiring its link id.
func (r *fileRepository) Delete(ctx context.Context, id int64) error {
	return r.db.WithTx(ctx, pgx.TxOptions{}, func(tx pgx.Tx) error {
		var linkID string
		err := tx.QueryRow(ctx, `SELECT link_id FROM files WHERE id = $1`, id).Scan(&linkID)
		if err != nil {
			if isNoRows(err) {
				return domain.ErrFileNotFound
			}
			return fmt.Errorf("failed to get link id for delete: %w", err)
		}

		if _, err := tx.Exec(ctx, `DELETE FROM files WHERE id = $1`, id); err != nil {
			return fmt.Errorf("failed to delete file record: %w", err)
		}

		_, err = tx.Exec(ctx,
			`INSERT INTO retired_link_ids (link_id, retired_at) VALUES ($1, $2)`,
			linkID, time.Now().UTC(),
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
	err := r.db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM files WHERE owner_id = $1`, ownerID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count files by owner: %w", err)
	}
	return count, nil
}

// List returns all file records with pagination.
func (r *fileRepository) List(ctx context.Context, opts repository.ListOptions) (*repository.ListResult[domain.FileRecord], error) {
	var total int64
	if err := r.db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM files`).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count files: %w", err)
	}

	query := `
		SELECT ` + fileColumns + `
		FROM files f
		JOIN users u ON u.id = f.owner_id
		ORDER BY f.upload_time DESC, f.id DESC
		LIMIT $1 OFFSET $2
	`

	rows, err := r.db.Pool.Query(ctx, query, opts.Limit, opts.Offset)
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
