package main

import (
	"database/sql"
	"fmt"
	"log"
	"os"

	_ "github.com/lib/pq"

	"github.com/arkmail/dispatch/internal/repository/postgres"
)

func main() {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL is required")
	}

	listOnly := false
	for _, a := range os.Args[1:] {
		if a == "--list" {
			listOnly = true
		}
	}

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
		n := 0
		for _, table := range postgres.Tables {
			var exists bool
			err := db.QueryRow("SELECT to_regclass($1) IS NOT NULL", table).Scan(&exists)
			if err != nil {
				log.Fatalf("check %s: %v", table, err)
			}
			state := "missing"
			if exists {
				state = "ok"
				n++
			}
			fmt.Printf("  %-20s %s\n", table, state)
		}
		fmt.Printf("Total: %d of %d tables present\n", n, len(postgres.Tables))
		return
	}

	var okCount, errCount int
	for _, m := range postgres.Migrations {
		fmt.Printf("  %s ... ", m.Name)

		tx, err := db.Begin()
		if err != nil {
			fmt.Printf("BEGIN ERROR: %v\n", err)
			errCount++
			continue
		}
		if _, err := tx.Exec(m.SQL); err != nil {
			tx.Rollback()
			fmt.Printf("ERROR: %v\n", err)
			errCount++
		} else {
			tx.Commit()
			fmt.Println("OK")
			okCount++
		}
	}
	log.Printf("Done: %d OK, %d errors", okCount, errCount)
}
