package sqlite

const (
	queryUpsertToken = `
INSERT INTO tokens (id, access_token, refresh_token, updated_at)
VALUES (1, ?, ?, CURRENT_TIMESTAMP)
ON CONFLICT(id) DO UPDATE SET
    access_token = excluded.access_token,
    refresh_token = excluded.refresh_token,
    updated_at = excluded.updated_at`

	queryLoadToken = `SELECT access_token, refresh_token FROM tokens WHERE id = 1`

	queryUpsertDir = `
INSERT INTO cached_dirs (path, file_id)
VALUES (?, ?)
ON CONFLICT(path) DO UPDATE SET file_id = excluded.file_id`

	queryLoadDirs = `SELECT path, file_id FROM cached_dirs`

	queryUpsertFile = `
INSERT INTO cached_files (file_id, parent_id, filename, is_dir, size, pick_code)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(file_id) DO UPDATE SET
    parent_id = excluded.parent_id,
    filename = excluded.filename,
    is_dir = excluded.is_dir,
    size = excluded.size,
    pick_code = excluded.pick_code`

	queryDeleteFile = `DELETE FROM cached_files WHERE parent_id = ? AND filename = ?`

	queryLoadFiles = `SELECT file_id, parent_id, filename, is_dir, size, pick_code FROM cached_files`
)
