// Command audit_verify checks a populated audit table against the invariants
// the bootstrap job promises: at most one CREATED and one INITIAL row per
// enrolment, every current enrolment covered, and DELETED rows carrying the
// assumed active status. Run it after a backfill before opening the report
// to administrators.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

type check struct {
	name     string
	query    string
	breaking bool
}

var checks = []check{
	{
		name: "enrolments with more than one CREATED row",
		query: `SELECT COUNT(*) FROM (
			SELECT enrolment_id FROM enrolment_audit
			WHERE change_kind = 'CREATED'
			GROUP BY enrolment_id HAVING COUNT(*) > 1) d`,
		breaking: true,
	},
	{
		name: "enrolments with more than one INITIAL row",
		query: `SELECT COUNT(*) FROM (
			SELECT enrolment_id FROM enrolment_audit
			WHERE change_kind = 'INITIAL'
			GROUP BY enrolment_id HAVING COUNT(*) > 1) d`,
		breaking: true,
	},
	{
		name: "current enrolments missing any audit coverage",
		query: `SELECT COUNT(*) FROM enrolments e
			WHERE NOT EXISTS (
				SELECT 1 FROM enrolment_audit re WHERE re.enrolment_id = e.id)`,
		breaking: true,
	},
	{
		name: "DELETED rows not recorded as active",
		query: `SELECT COUNT(*) FROM enrolment_audit
			WHERE change_kind = 'DELETED' AND status <> 'active'`,
		breaking: false,
	},
	{
		name: "audit rows referencing unknown change kinds",
		query: `SELECT COUNT(*) FROM enrolment_audit
			WHERE change_kind NOT IN ('INITIAL','CREATED','UPDATED','STATUS_SUSPENDED','STATUS_ACTIVE','DELETED')`,
		breaking: true,
	},
}

func main() {
	var dsn string
	flag.StringVar(&dsn, "dsn", os.Getenv("DATABASE_URL"), "PostgreSQL connection string")
	flag.Parse()

	if dsn == "" {
		log.Fatal("provide -dsn or set DATABASE_URL")
	}

	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		log.Fatalf("connect: %v", err)
	}
	defer db.Close()

	breaking := 0
	for _, c := range checks {
		var count int
		if err := db.Get(&count, c.query); err != nil {
			log.Fatalf("check %q failed: %v", c.name, err)
		}
		status := "ok"
		if count > 0 {
			status = "VIOLATION"
			if c.breaking {
				breaking++
			} else {
				status = "warning"
			}
		}
		fmt.Printf("%-55s %-10s %d\n", c.name, status, count)
	}

	if breaking > 0 {
		fmt.Printf("\n%d breaking violation(s) found\n", breaking)
		os.Exit(1)
	}
	fmt.Println("\nall invariants hold")
}
