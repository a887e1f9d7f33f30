package main

import (
	"flag"
	"fmt"
	"log"

	"main/internal/archive"
	"main/pkg/conn"
)

func main() {
	journal := flag.String("journal", "alaris_events.bin", "Journal file to archive")
	connString := flag.String("conn", "", "Postgres connection string (overrides host/user flags)")
	host := flag.String("host", "localhost", "Postgres host")
	port := flag.Int("port", 5432, "Postgres port")
	user := flag.String("user", "alaris", "Postgres user")
	password := flag.String("password", "", "Postgres password")
	database := flag.String("database", "alaris", "Postgres database")
	batch := flag.Int("batch", 500, "Insert batch size")
	flag.Parse()

	client, err := conn.New(conn.Option{
		Host:       *host,
		Port:       *port,
		User:       *user,
		Password:   *password,
		Database:   *database,
		ConnString: *connString,
	})
	if err != nil {
		log.Fatalf("postgres connect failed: %v", err)
	}
	defer client.Close()

	archiver, err := archive.NewArchiver(client.DB(), *batch)
	if err != nil {
		log.Fatalf("archiver setup failed: %v", err)
	}
	if err := archiver.ArchiveFile(*journal); err != nil {
		log.Fatalf("archive failed: %v", err)
	}
	fmt.Printf("archived %d frames from %s\n", archiver.Stored(), *journal)
}
