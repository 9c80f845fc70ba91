package contract

import (
	"context"
	"reflect"

	"fitgent/domain"
)

type WorkerName string

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker initialization
// or lifecycle events, avoiding the need for manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

// NotificationSink is the single entry point every domain write path uses
// to raise notifications. The sink validates and stores; callers fire and
// forget, so a sink failure must never fail the triggering operation.
type NotificationSink interface {
	Notify(ctx context.Context, notifications ...domain.Notification) error
}
