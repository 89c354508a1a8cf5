// Package audit records executions of the exchange command to an append-only
// destination such as a local file or a Redis list.
package audit

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// EventExchangeCommand is the event name recorded for every rate query.
const EventExchangeCommand = "exchange_command"

// TimestampLayout is the layout of the timestamp prefix written on each line.
const TimestampLayout = "2006-01-02 15:04:05"

// ErrClosed is returned by Append once the sink has been closed.
var ErrClosed = errors.New("audit sink closed")

// Record is a single audit entry.
type Record struct {
	At    time.Time
	Event string
}

// NewRecord returns a Record for an exchange command executed at t.
func NewRecord(t time.Time) Record {
	return Record{At: t, Event: EventExchangeCommand}
}

// Line renders the record in its persisted form, including the trailing newline.
func (r Record) Line() string {
	return fmt.Sprintf("%s: 'exchange' command executed\n", r.At.Format(TimestampLayout))
}

//go:generate mockgen -destination=../mocks/sink.go -package=mocks github.com/Tyrowin/relaychat/internal/audit Sink

// Sink is an append-only audit destination. Append must be safe for concurrent
// use and must write each record atomically with respect to other appends.
type Sink interface {
	Append(ctx context.Context, rec Record) error
	Close() error
}

// NopSink discards every record.
type NopSink struct{}

// Append implements Sink.
func (NopSink) Append(context.Context, Record) error { return nil }

// Close implements Sink.
func (NopSink) Close() error { return nil }
