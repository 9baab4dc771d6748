// Package dataset pulls the published sales dataset out of object storage
// into a local DuckDB file before the service starts answering questions.
package dataset

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/parquet-go/parquet-go"

	"github.com/salesdesk/salesdesk/internal/query/duckdb"
	"github.com/salesdesk/salesdesk/internal/storage"
)

// Source names the objects to fetch. ObjectKey, when set, is a complete DuckDB
// database and TableKeys is ignored.
type Source struct {
	ObjectKey string
	TableKeys map[string]string
}

type TableInfo struct {
	Name string
	Key  string
	Rows int64
}

type Result struct {
	DatabasePath string
	Objects      []storage.ObjectInfo
	Tables       []TableInfo
}

// Fetch downloads source and builds the DuckDB file at databasePath, which
// the query engine then opens read-only. Parquet tables are staged in the
// same directory.
func Fetch(ctx context.Context, store storage.ObjectStore, source Source, databasePath string, logger *slog.Logger) (Result, error) {
	if store == nil {
		return Result{}, fmt.Errorf("object store is required")
	}
	if databasePath == "" {
		return Result{}, fmt.Errorf("database path is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	dir := filepath.Dir(databasePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Result{}, fmt.Errorf("create dataset dir: %w", err)
	}

	if source.ObjectKey != "" {
		info, err := download(ctx, store, source.ObjectKey, databasePath)
		if err != nil {
			return Result{}, err
		}
		logger.Info("dataset database fetched", "key", info.Key, "bytes", info.Size, "path", databasePath)
		return Result{DatabasePath: databasePath, Objects: []storage.ObjectInfo{info}}, nil
	}
	if len(source.TableKeys) == 0 {
		return Result{}, fmt.Errorf("dataset source has neither an object key nor table keys")
	}

	names := make([]string, 0, len(source.TableKeys))
	for name := range source.TableKeys {
		if err := storage.ValidateTableName(name); err != nil {
			return Result{}, err
		}
		names = append(names, name)
	}
	sort.Strings(names)

	result := Result{DatabasePath: databasePath}
	local := make(map[string]string, len(names))
	for _, name := range names {
		key := source.TableKeys[name]
		target := filepath.Join(dir, name+".parquet")
		info, err := download(ctx, store, key, target)
		if err != nil {
			return Result{}, err
		}
		rows, err := countRows(target)
		if err != nil {
			return Result{}, fmt.Errorf("table %q: %w", name, err)
		}
		local[name] = target
		result.Objects = append(result.Objects, info)
		result.Tables = append(result.Tables, TableInfo{Name: name, Key: info.Key, Rows: rows})
		logger.Info("dataset table fetched", "table", name, "key", info.Key, "rows", rows)
	}

	// The database is rebuilt from scratch so tables dropped from the source
	// do not linger.
	if err := os.Remove(databasePath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Result{}, fmt.Errorf("remove stale database: %w", err)
	}
	if err := duckdb.ImportParquet(ctx, databasePath, local); err != nil {
		return Result{}, err
	}
	return result, nil
}

func download(ctx context.Context, store storage.ObjectStore, key, target string) (storage.ObjectInfo, error) {
	info, err := store.Stat(ctx, key)
	if err != nil {
		return storage.ObjectInfo{}, fmt.Errorf("stat dataset object %q: %w", key, err)
	}
	reader, err := store.Get(ctx, key)
	if err != nil {
		return storage.ObjectInfo{}, fmt.Errorf("get dataset object %q: %w", key, err)
	}
	defer func() { _ = reader.Close() }()

	tmp, err := os.CreateTemp(filepath.Dir(target), filepath.Base(target)+".*.tmp")
	if err != nil {
		return storage.ObjectInfo{}, fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	written, err := io.Copy(tmp, reader)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return storage.ObjectInfo{}, fmt.Errorf("download dataset object %q: %w", key, err)
	}
	if info.Size > 0 && written != info.Size {
		return storage.ObjectInfo{}, fmt.Errorf("download dataset object %q: got %d bytes, want %d", key, written, info.Size)
	}
	if err := os.Rename(tmpName, target); err != nil {
		return storage.ObjectInfo{}, fmt.Errorf("move dataset object into place: %w", err)
	}
	return info, nil
}

func countRows(path string) (int64, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer func() { _ = file.Close() }()
	stat, err := file.Stat()
	if err != nil {
		return 0, err
	}
	parquetFile, err := parquet.OpenFile(file, stat.Size())
	if err != nil {
		return 0, fmt.Errorf("read parquet footer: %w", err)
	}
	return parquetFile.NumRows(), nil
}
