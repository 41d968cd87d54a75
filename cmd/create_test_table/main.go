package main

import (
	"database/sql"
	"encoding/csv"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"time"

	_ "github.com/marcboeker/go-duckdb"
	"github.com/spf13/cobra"
)

// Creates a DuckDB target table and a CSV file that overlaps it, for trying
// out incremental loads by hand:
//
//	create_test_table --database test.db --dir ./landing
//	sqlload load --type duckdb --database test.db --source ./landing/events.csv \
//	  --target events --overlap id --column id:INTEGER --column name:VARCHAR --column created_at:TIMESTAMP
func main() {
	var (
		dbPath string
		dir    string
		rows   int
	)

	cmd := &cobra.Command{
		Use:   "create_test_table",
		Short: "Create a test target table and an overlapping CSV file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := createTable(dbPath, rows); err != nil {
				return err
			}
			path := filepath.Join(dir, "events.csv")
			if err := writeCSV(path, rows/2+1, rows+rows/2); err != nil {
				return err
			}
			fmt.Printf("Created table events with %d rows in %s and %s\n", rows, dbPath, path)
			return nil
		},
	}
	cmd.Flags().StringVar(&dbPath, "database", "test.db", "DuckDB database file")
	cmd.Flags().StringVar(&dir, "dir", ".", "Directory the CSV file is written to")
	cmd.Flags().IntVar(&rows, "rows", 10, "Rows in the target table")

	if err := cmd.Execute(); err != nil {
		log.Fatal(err)
	}
}

func createTable(path string, rows int) error {
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	_, err = db.Exec(`
		CREATE OR REPLACE TABLE events AS
		SELECT i::INTEGER AS id,
		       'event' || i AS name,
		       TIMESTAMP '2024-01-01' + to_days(i::INTEGER) AS created_at
		FROM range(1, ? + 1) t(i)
	`, rows)
	if err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}
	return nil
}

// writeCSV writes ids from..to. Ids up to the table's row count overlap it.
func writeCSV(path string, from, to int) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	w.Write([]string{"id", "name", "created_at"})
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := from; i <= to; i++ {
		w.Write([]string{
			strconv.Itoa(i),
			"updated" + strconv.Itoa(i),
			start.AddDate(0, 0, i).Format("2006-01-02 15:04:05"),
		})
	}
	w.Flush()
	return w.Error()
}
