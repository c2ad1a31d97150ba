// Command c4check probes the connect4d dependencies and, when C4_BASE_URL is
// set, the running API.
package main

import (
	"context"
	"database/sql"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"github.com/akshatjain2002sept/connect-4-multi/internal/apiclient"
	"github.com/akshatjain2002sept/connect-4-multi/internal/leaderboard"
)

func main() {
	_ = godotenv.Load()

	dbURL := os.Getenv("DATABASE_URL")
	redisURL := os.Getenv("REDIS_URL")
	baseURL := os.Getenv("C4_BASE_URL")
	token := os.Getenv("C4_TOKEN")

	failed := false

	if dbURL == "" {
		log.Println("DATABASE_URL not set; skipping database check")
	} else if err := checkDB(dbURL); err != nil {
		log.Printf("database error: %v", err)
		failed = true
	} else {
		log.Println("database ok")
	}

	if redisURL == "" {
		log.Println("REDIS_URL not set; skipping redis check")
	} else {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		rdb, err := leaderboard.Connect(ctx, redisURL)
		cancel()
		if err != nil {
			log.Printf("redis error: %v", err)
			failed = true
		} else {
			log.Println("redis ok")
			_ = rdb.Close()
		}
	}

	if baseURL == "" {
		log.Println("C4_BASE_URL not set; skipping API check")
	} else {
		client := apiclient.NewClient(baseURL,
			apiclient.WithToken(token),
			apiclient.WithTimeout(8*time.Second),
			apiclient.WithRetry(1),
		)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		h, err := client.Health(ctx)
		switch {
		case h != nil:
			log.Printf("/healthz status=%s checks=%v", h.Status, h.Checks)
		case err != nil:
			log.Printf("/healthz error: %v", err)
		}
		if err != nil {
			failed = true
		}
		if token != "" {
			if me, err := client.Me(ctx); err != nil {
				log.Printf("/api/me error: %v", err)
				failed = true
			} else {
				log.Printf("/api/me ok: id=%s rating=%d games=%d", me.ID, me.Rating, me.GamesPlayed)
			}
		}
		cancel()
	}

	if failed {
		os.Exit(1)
	}
}

func checkDB(dsn string) error {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return err
	}
	defer db.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return db.PingContext(ctx)
}
