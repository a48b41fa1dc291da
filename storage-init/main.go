// Command storage-init provisions the Azure table holding board tasks and
// the optional change feed queue. It is safe to run repeatedly.
package main

import (
	"context"
	"errors"
	"os"
	"strconv"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	log "github.com/sirupsen/logrus"
)

func main() {
	if dbg, err := strconv.ParseBool(os.Getenv("DEBUG")); err == nil && dbg {
		log.SetLevel(log.DebugLevel)
	}
	connStr := os.Getenv("STORAGE_CONNECTION_STRING")
	tasksTable := os.Getenv("TASKS_TABLE")
	if connStr == "" || tasksTable == "" {
		log.Fatal("missing STORAGE_CONNECTION_STRING or TASKS_TABLE")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if err := ensureTable(ctx, connStr, tasksTable); err != nil {
		log.Fatalf("create table %s: %v", tasksTable, err)
	}
	if queue := os.Getenv("CHANGES_QUEUE"); queue != "" {
		if err := ensureQueue(ctx, connStr, queue); err != nil {
			log.Fatalf("create queue %s: %v", queue, err)
		}
	}
	log.WithFields(log.Fields{"table": tasksTable, "queue": os.Getenv("CHANGES_QUEUE")}).Info("board storage ready")
}

func ensureTable(ctx context.Context, connStr, name string) error {
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, nil)
	if err != nil {
		return err
	}
	if _, err := svc.NewClient(name).CreateTable(ctx, nil); err != nil && !hasErrorCode(err, string(aztables.TableAlreadyExists)) {
		return err
	}
	log.WithField("table", name).Debug("table present")
	return nil
}

func ensureQueue(ctx context.Context, connStr, name string) error {
	q, err := azqueue.NewQueueClientFromConnectionString(connStr, name, nil)
	if err != nil {
		return err
	}
	if _, err := q.Create(ctx, nil); err != nil && !hasErrorCode(err, "QueueAlreadyExists") {
		return err
	}
	log.WithField("queue", name).Debug("queue present")
	return nil
}

func hasErrorCode(err error, code string) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.ErrorCode == code
}
