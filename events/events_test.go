package events

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestBuffer_StampsAndFlushesInOrder(t *testing.T) {
	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	buf := NewBuffer("sunnyflow").WithClock(func() time.Time { return at })
	ctx := context.Background()

	_ = buf.Emit(ctx, Agreement("a1"))
	_ = buf.Emit(ctx, Transfer("owner", "insurer", 18))
	if buf.Len() != 2 {
		t.Fatalf("expected 2 buffered events, got %d", buf.Len())
	}

	for _, ev := range buf.Events() {
		if _, err := uuid.Parse(ev.ID); err != nil {
			t.Fatalf("expected uuid id, got %q", ev.ID)
		}
		if ev.Source != "sunnyflow" || !ev.Timestamp.Equal(at) {
			t.Fatalf("unexpected envelope %+v", ev)
		}
	}

	rec := &Recorder{}
	buf.Flush(ctx, rec, nil)
	if buf.Len() != 0 {
		t.Fatalf("flush should empty the buffer")
	}
	names := rec.Names()
	if len(names) != 2 || names[0] != NameAgreement || names[1] != NameTransfer {
		t.Fatalf("unexpected order %v", names)
	}
	if got := rec.Events()[1].Data["amount"]; got != int64(18) {
		t.Fatalf("expected amount 18, got %v", got)
	}
}

type failingSink struct{ calls int }

func (f *failingSink) Emit(context.Context, Event) error {
	f.calls++
	return errors.New("sink down")
}

func TestBuffer_FlushSurvivesSinkErrors(t *testing.T) {
	buf := NewBuffer("test")
	ctx := context.Background()
	_ = buf.Emit(ctx, PayOut("a"))
	_ = buf.Emit(ctx, Delete("a"))

	sink := &failingSink{}
	buf.Flush(ctx, sink, nil)
	if sink.calls != 2 {
		t.Fatalf("expected every event attempted, got %d", sink.calls)
	}
}

func TestFanout_JoinsErrors(t *testing.T) {
	rec := &Recorder{}
	f := Fanout{rec, &failingSink{}, LogSink{}}
	err := f.Emit(context.Background(), RefundAll("k"))
	if err == nil || !strings.Contains(err.Error(), "sink down") {
		t.Fatalf("expected joined sink error, got %v", err)
	}
	if len(rec.Events()) != 1 {
		t.Fatalf("healthy sink should still receive the event")
	}
}

type fakeExecer struct {
	sqls []string
	args [][]any
	err  error
}

func (f *fakeExecer) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.sqls = append(f.sqls, sql)
	f.args = append(f.args, args)
	return pgconn.CommandTag{}, f.err
}

func TestPGOutbox_Emit(t *testing.T) {
	db := &fakeExecer{}
	out := NewPGOutbox(db)
	ctx := context.Background()

	if err := out.EnsureSchema(ctx); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}
	if err := out.Emit(ctx, ResultNotice("k", 80, 1)); err == nil {
		t.Fatalf("expected missing id to be rejected")
	}

	ev := ResultNotice("k", 80, 1)
	ev.ID = uuid.NewString()
	if err := out.Emit(ctx, ev); err != nil {
		t.Fatalf("emit: %v", err)
	}
	if len(db.sqls) != 2 || !strings.Contains(db.sqls[1], "INSERT INTO outbox") {
		t.Fatalf("unexpected statements %v", db.sqls)
	}
	args := db.args[1]
	if args[0] != ev.ID || args[1] != "sunnyflow.result-notice" {
		t.Fatalf("unexpected args %v", args)
	}
	if !strings.Contains(args[2].(string), `"weather_param":80`) {
		t.Fatalf("payload missing weather param: %v", args[2])
	}

	db.err = errors.New("conn reset")
	if err := out.Emit(ctx, ev); err == nil || !strings.Contains(err.Error(), "enqueue outbox") {
		t.Fatalf("expected wrapped exec error, got %v", err)
	}
}
