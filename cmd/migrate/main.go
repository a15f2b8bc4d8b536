package main

import (
	"database/sql"
	"fmt"
	"log"
	"os"

	"github.com/ignite/gads-reporter/internal/queue"
	"github.com/ignite/gads-reporter/internal/settings"

	_ "github.com/lib/pq"
)

func main() {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL is required")
	}

	listOnly := len(os.Args) > 1 && os.Args[1] == "--list"

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		log.Fatalf("connect: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Fatalf("ping: %v", err)
	}
	log.Println("Connected to database")

	if listOnly {
		rows, err := db.Query("SELECT tablename FROM pg_tables WHERE schemaname='public' AND (tablename = 'report_jobs' OR tablename = 'reporter_settings') ORDER BY tablename")
		if err != nil {
			log.Fatal(err)
		}
		defer rows.Close()
		n := 0
		for rows.Next() {
			var t string
			rows.Scan(&t)
			fmt.Println(" ", t)
			n++
		}
		fmt.Printf("Total: %d tables\n", n)
		return
	}

	schemas := []struct {
		name string
		ddl  string
	}{
		{"reporter_settings", settings.Schema},
		{"report_jobs", queue.Schema},
	}

	for _, s := range schemas {
		if _, err := db.Exec(s.ddl); err != nil {
			log.Fatalf("applying %s schema: %v", s.name, err)
		}
		log.Printf("Applied schema: %s", s.name)
	}

	log.Println("Migration complete")
}
