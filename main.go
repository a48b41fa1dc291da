package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"kanban-board/api"
	"kanban-board/domain"
	"kanban-board/notify"
	"kanban-board/storage"
)

func main() {
	if dbg, err := strconv.ParseBool(os.Getenv("DEBUG")); err == nil && dbg {
		log.SetLevel(log.DebugLevel)
	}
	logger := log.StandardLogger()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	boardID := envString("BOARD_ID", "default")
	origin := uuid.NewString()

	var store domain.TaskStore
	switch backend := envString("STORE_BACKEND", "memory"); backend {
	case "memory":
		store = storage.NewMemoryStore()
	case "sqlite":
		s, err := storage.NewSQLiteStore(envString("SQLITE_PATH", "board.db"))
		if err != nil {
			log.Fatalf("sqlite: %v", err)
		}
		defer s.Close()
		store = s
	case "tables":
		connStr := os.Getenv("STORAGE_CONNECTION_STRING")
		tasksTable := os.Getenv("TASKS_TABLE")
		if connStr == "" || tasksTable == "" {
			log.Fatal("missing storage config")
		}
		s, err := storage.NewTableStore(connStr, tasksTable, boardID)
		if err != nil {
			log.Fatalf("storage: %v", err)
		}
		store = s
	default:
		log.Fatalf("invalid STORE_BACKEND: %q", backend)
	}

	broker := notify.NewBroker()
	defer broker.Close()
	boardNotifiers := domain.Notifiers{broker}
	boardOpts := []domain.Option{
		domain.WithLogger(logger),
		domain.WithOrigin(origin),
		domain.WithRetries(envInt("MUTATION_RETRIES", 3)),
		domain.WithColumns(envList("BOARD_COLUMNS")...),
	}

	if queueName := os.Getenv("CHANGES_QUEUE"); queueName != "" {
		connStr := os.Getenv("STORAGE_CONNECTION_STRING")
		if connStr == "" {
			log.Fatal("missing STORAGE_CONNECTION_STRING for CHANGES_QUEUE")
		}
		feed, err := storage.NewChangeFeed(connStr, queueName, storage.FeedConfig{
			Workers:        envInt("FEED_WORKERS", 4),
			Buffer:         envInt("FEED_BUFFER", 1024),
			EnqueueTimeout: envDur("FEED_ENQUEUE_TIMEOUT", 60*time.Second),
			HandoffTimeout: envDur("FEED_HANDOFF_TIMEOUT", 15*time.Millisecond),
		}, logger)
		if err != nil {
			log.Fatalf("change feed: %v", err)
		}
		defer feed.Close()
		boardNotifiers = append(boardNotifiers, feed)
	}

	var deduper api.Deduper
	if redisConn := os.Getenv("REDIS_CONNECTION_STRING"); redisConn != "" {
		rc := redis.NewClient(parseRedisOptions(redisConn))
		defer rc.Close()

		store = storage.NewCache(store, rc, boardID, envDur("CACHE_TTL", 10*time.Minute), logger)
		boardOpts = append(boardOpts, domain.WithVersionTracker(storage.NewRedisVersions(rc, boardID)))

		channel := envString("BOARD_CHANNEL", "board-updates")
		boardNotifiers = append(boardNotifiers, notify.NewRedisPublisher(rc, channel))
		go notify.SubscribeUpdates(ctx, logger, rc, channel, origin, broker)

		deduper = api.NewRedisDeduper(rc, envDur("DEDUPER_TTL", 24*time.Hour))
	}
	boardOpts = append(boardOpts, domain.WithNotifier(boardNotifiers))

	board := domain.NewBoard(store, boardOpts...)
	history := domain.NewHistory(
		domain.WithLimit(envInt("HISTORY_LIMIT", 0)),
		domain.WithHistoryNotifier(broker),
		domain.WithHistoryLogger(logger),
	)

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderContentEncoding, "Idempotency-Key"},
	}))
	e.Use(api.ObservabilityMiddleware(logger))
	e.Use(api.RequestBodyMiddleware(0))

	api.Register(e, api.Deps{
		Board:         board,
		History:       history,
		Changes:       broker,
		Deduper:       deduper,
		BoardID:       boardID,
		ExactMoveUndo: envBool("EXACT_MOVE_UNDO", false),
		Logger:        logger,
		KeepAlive:     envDur("STREAM_KEEPALIVE", 30*time.Second),
	})

	listenAddr := ":" + envString("PORT", "8080")
	go func() {
		if err := e.Start(listenAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server: %v", err)
		}
	}()
	logger.WithFields(log.Fields{"addr": listenAddr, "board": boardID, "columns": strings.Join(board.Statuses(), ",")}).Info("board server started")

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("shutdown")
	}
}
