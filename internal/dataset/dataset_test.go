package dataset

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/salesdesk/salesdesk/internal/query"
	"github.com/salesdesk/salesdesk/internal/query/duckdb"
	"github.com/salesdesk/salesdesk/internal/storage"
)

type accountRow struct {
	AccountID int64  `parquet:"account_id"`
	Account   string `parquet:"account"`
	Sector    string `parquet:"sector"`
}

type pipelineRow struct {
	OpportunityID string `parquet:"opportunity_id"`
	SalesAgent    string `parquet:"sales_agent"`
	Product       string `parquet:"product"`
	Account       string `parquet:"account"`
	AccountID     int64  `parquet:"account_id"`
	DealStage     string `parquet:"deal_stage"`
	EngageDate    string `parquet:"engage_date"`
	CloseDate     string `parquet:"close_date"`
}

type interactionRow struct {
	InteractionID int64  `parquet:"interaction_id"`
	AccountID     int64  `parquet:"account_id"`
	ActivityType  string `parquet:"activity_type"`
	Status        string `parquet:"status"`
	Timestamp     string `parquet:"timestamp"`
}

func encode[T any](t *testing.T, rows []T) []byte {
	t.Helper()
	buf := bytes.NewBuffer(nil)
	writer := parquet.NewGenericWriter[T](buf)
	if _, err := writer.Write(rows); err != nil {
		t.Fatalf("write parquet: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close parquet writer: %v", err)
	}
	return buf.Bytes()
}

func put(t *testing.T, store *storage.MemoryStore, key string, body []byte) {
	t.Helper()
	if err := store.PutBytes(key, body); err != nil {
		t.Fatalf("PutBytes(%q) error = %v", key, err)
	}
}

func TestFetchImportsParquetTables(t *testing.T) {
	store := storage.NewMemoryStore()
	today := time.Now()
	put(t, store, "raw/accounts.parquet", encode(t, []accountRow{
		{AccountID: 1, Account: "Acme Corporation", Sector: "technolgy"},
		{AccountID: 2, Account: "Betasoloin", Sector: "medical"},
	}))
	put(t, store, "raw/sales_pipeline.parquet", encode(t, []pipelineRow{{
		OpportunityID: "OPP1", SalesAgent: "Darcel Schlecht", Product: "GTX Pro", Account: "Acme Corporation",
		AccountID: 1, DealStage: "Engaging", EngageDate: today.AddDate(0, 0, -2).Format(time.DateOnly),
	}}))
	put(t, store, "raw/interactions.parquet", encode(t, []interactionRow{{
		InteractionID: 1, AccountID: 1, ActivityType: "Email", Status: "Completed",
		Timestamp: today.AddDate(0, 0, -1).Format(time.DateTime),
	}}))

	target := filepath.Join(t.TempDir(), "crm.duckdb")
	result, err := Fetch(context.Background(), store, Source{TableKeys: map[string]string{
		"accounts":       "raw/accounts.parquet",
		"sales_pipeline": "raw/sales_pipeline.parquet",
		"interactions":   "raw/interactions.parquet",
	}}, target, nil)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if result.DatabasePath != target {
		t.Fatalf("DatabasePath = %q", result.DatabasePath)
	}
	if len(result.Tables) != 3 || result.Tables[0].Name != "accounts" || result.Tables[0].Rows != 2 {
		t.Fatalf("Tables = %+v", result.Tables)
	}

	engine, err := duckdb.Open(context.Background(), duckdb.Config{Path: result.DatabasePath})
	if err != nil {
		t.Fatalf("duckdb.Open() error = %v", err)
	}
	defer func() { _ = engine.Close() }()

	rows, err := engine.Execute(context.Background(), query.Request{SQL: "SELECT sales_agent, activity_type FROM v_open_work"})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if rows.Len() != 1 || rows.Rows[0][0] != "Darcel Schlecht" || rows.Rows[0][1] != "Email" {
		t.Fatalf("open work rows = %#v", rows.Rows)
	}
}

func TestFetchCopiesDatabaseObject(t *testing.T) {
	store := storage.NewMemoryStore()
	put(t, store, "prod/sales.duckdb", []byte("not really a database"))

	target := filepath.Join(t.TempDir(), "nested", "east.duckdb")
	result, err := Fetch(context.Background(), store, Source{ObjectKey: "prod/sales.duckdb"}, target, nil)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if result.DatabasePath != target {
		t.Fatalf("DatabasePath = %q, want %q", result.DatabasePath, target)
	}
	body, err := os.ReadFile(result.DatabasePath)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if string(body) != "not really a database" {
		t.Fatalf("database body = %q", body)
	}
	if len(result.Objects) != 1 || result.Objects[0].Key != "prod/sales.duckdb" {
		t.Fatalf("Objects = %+v", result.Objects)
	}
}

func TestFetchMissingObject(t *testing.T) {
	_, err := Fetch(context.Background(), storage.NewMemoryStore(), Source{ObjectKey: "missing.duckdb"}, filepath.Join(t.TempDir(), "sales.duckdb"), nil)
	if !errors.Is(err, storage.ErrObjectNotFound) {
		t.Fatalf("Fetch() error = %v, want ErrObjectNotFound", err)
	}
}

func TestFetchRejectsBadSources(t *testing.T) {
	store := storage.NewMemoryStore()
	if _, err := Fetch(context.Background(), store, Source{}, filepath.Join(t.TempDir(), "sales.duckdb"), nil); err == nil {
		t.Fatal("expected error for empty source")
	}
	if _, err := Fetch(context.Background(), store, Source{TableKeys: map[string]string{"drop table x": "a.parquet"}}, filepath.Join(t.TempDir(), "sales.duckdb"), nil); err == nil {
		t.Fatal("expected error for invalid table name")
	}
	if _, err := Fetch(context.Background(), nil, Source{ObjectKey: "x"}, t.TempDir(), nil); err == nil {
		t.Fatal("expected error for nil store")
	}
	if _, err := Fetch(context.Background(), store, Source{ObjectKey: "x"}, "", nil); err == nil {
		t.Fatal("expected error for empty database path")
	}
}

func TestFetchRejectsNonParquetTable(t *testing.T) {
	store := storage.NewMemoryStore()
	put(t, store, "raw/accounts.parquet", []byte("csv,pretending"))
	_, err := Fetch(context.Background(), store, Source{TableKeys: map[string]string{"accounts": "raw/accounts.parquet"}}, filepath.Join(t.TempDir(), "sales.duckdb"), nil)
	if err == nil {
		t.Fatal("expected parquet footer error")
	}
}
