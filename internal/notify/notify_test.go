package notify

import (
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"deliverySync/models"
)

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestFailure_KindFromDomainError(t *testing.T) {
	cases := []struct {
		err  error
		want Kind
	}{
		{fmt.Errorf("assign: %w", models.ErrNoAgentsAvailable), KindNoAgents},
		{models.ErrOrderNotReady, KindBlocked},
		{models.ErrInvalidTransition, KindBlocked},
		{fmt.Errorf("http 503"), KindFailure},
	}
	for _, c := range cases {
		if got := Failure("x", c.err).Kind; got != c.want {
			t.Fatalf("Failure(%v).Kind=%s want %s", c.err, got, c.want)
		}
	}
	if n := Failure("Pickup", models.ErrOrderNotReady); n.Title != "Order Not Ready" {
		t.Fatalf("title=%q", n.Title)
	}
}

type recorder struct{ got []Notification }

func (r *recorder) Notify(n Notification) { r.got = append(r.got, n) }

func TestFeed_StampsCapsAndForwards(t *testing.T) {
	rec := &recorder{}
	f := NewFeed(2, quietLogger(), rec)
	f.Notify(Success("a", ""))
	f.Notify(Success("b", ""))
	f.Notify(Success("c", ""))
	all := f.Since(time.Time{})
	if len(all) != 2 || all[0].Title != "b" || all[1].Title != "c" {
		t.Fatalf("feed=%+v", all)
	}
	if all[0].ID == "" || all[0].At.IsZero() {
		t.Fatalf("notification not stamped: %+v", all[0])
	}
	if len(rec.got) != 3 {
		t.Fatalf("forwarded=%d", len(rec.got))
	}
}

func TestFeed_SinceHidesCleared(t *testing.T) {
	f := NewFeed(10, quietLogger())
	t0 := time.Now()
	f.Notify(Notification{Kind: KindSuccess, Title: "old", At: t0.Add(-time.Second)})
	f.Notify(Notification{Kind: KindSuccess, Title: "new", At: t0.Add(time.Second)})
	got := f.Since(t0)
	if len(got) != 1 || got[0].Title != "new" {
		t.Fatalf("since=%+v", got)
	}
	if last, ok := f.Last(); !ok || last.Title != "new" {
		t.Fatalf("last=%+v", last)
	}
}
