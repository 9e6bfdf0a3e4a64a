package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"shelterchat/backend/internal/config"
	"shelterchat/backend/internal/storage"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func usage() {
	fmt.Println("Usage: admin <command> [args]")
	fmt.Println("  inspect-room <room_id>   show members, read positions and sequence state")
	fmt.Println("  reseed-seq <room_id>     raise the Redis sequence counter to the stored maximum")
	os.Exit(1)
}

func main() {
	if len(os.Args) != 3 {
		usage()
	}
	roomID, err := strconv.ParseInt(os.Args[2], 10, 64)
	if err != nil || roomID <= 0 {
		fmt.Println("Invalid room ID. Please provide a positive integer.")
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if cfg.StoreBackend == config.BackendMemory {
		log.Fatalf("the admin CLI needs a durable STORE_BACKEND, got %q", cfg.StoreBackend)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := storage.OpenPostgres(cfg.DatabaseDSN, false)
	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}
	rooms := storage.NewPostgresRoomStore(db)
	var messages storage.MessageStore = storage.NewPostgresMessageStore(db)
	if cfg.StoreBackend == config.BackendMongo {
		client, err := storage.ConnectMongo(ctx, cfg.MongoURI)
		if err != nil {
			log.Fatalf("failed to connect mongo: %v", err)
		}
		defer client.Disconnect(context.Background())
		if messages, err = storage.NewMongoMessageStore(ctx, client.Database(cfg.MongoDatabase)); err != nil {
			log.Fatalf("open message store: %v", err)
		}
	}

	var seq *storage.RedisAllocator
	if cfg.UsesRedis() {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		defer rdb.Close()
		seq = storage.NewRedisAllocator(rdb, messages, zap.NewNop())
	}

	switch os.Args[1] {
	case "inspect-room":
		if err := inspectRoom(ctx, rooms, messages, seq, roomID); err != nil {
			log.Fatalf("Error inspecting room: %v", err)
		}
	case "reseed-seq":
		if seq == nil {
			log.Fatal("REDIS_ADDR is not configured")
		}
		next, err := seq.Reseed(ctx, roomID)
		if err != nil {
			log.Fatalf("Error reseeding room %d: %v", roomID, err)
		}
		fmt.Printf("Room %d sequence counter is now %d.\n", roomID, next)
	default:
		fmt.Println("Unknown command")
		usage()
	}
}

func inspectRoom(ctx context.Context, rooms storage.RoomStore, messages storage.MessageStore, seq *storage.RedisAllocator, roomID int64) error {
	room, err := rooms.FindRoom(ctx, roomID)
	if err != nil {
		return err
	}
	stored, err := messages.LatestSeq(ctx, roomID)
	if err != nil {
		return err
	}

	fmt.Printf("Room %d (%s), created %s\n", room.ID, room.Type, room.CreatedAt.Format(time.RFC3339))
	if room.LastMessageAt != nil && room.LastMessagePreview != nil {
		fmt.Printf("Last message %s: %q\n", room.LastMessageAt.Format(time.RFC3339), *room.LastMessagePreview)
	}
	fmt.Printf("Latest stored seq: %d\n", stored)
	if seq != nil {
		counter, err := seq.LatestSeq(ctx, roomID)
		if err != nil {
			return err
		}
		fmt.Printf("Redis counter:     %d\n", counter)
		if counter < stored {
			fmt.Println("WARNING: counter is behind the log, run reseed-seq")
		}
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "MEMBER\tJOINED\tLAST READ\tUNREAD")
	for _, m := range room.Members {
		fmt.Fprintf(w, "%d\t%s\t%d\t%d\n", m.MemberID, m.JoinedAt.Format(time.RFC3339), m.LastReadSeq, m.UnreadCount(stored))
	}
	return w.Flush()
}
