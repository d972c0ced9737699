package auditk_test

import (
	"context"
	"testing"

	"gitlab.com/auditker/auditk"
)

func TestContext(t *testing.T) {
	c := auditk.NewContext(context.Background(), &auditk.TrafficEvent{})
	count := 5
	hnd := make([]auditk.EventHandler, count)
	called := 0
	for i := 0; i < count; i++ {
		hnd[i] = func(c *auditk.Context) {
			called++
			if called == 3 {
				c.Abort()
			}
		}
	}

	c.AddHandler(hnd...)
	c.Next()
	if called != 3 {
		t.Fatalf("expected abort to kill at 3, got called: %d\n", called)
	}
	if !c.IsAborted() {
		t.Fatalf("expected context to report aborted")
	}
}

func TestContextFinish(t *testing.T) {
	c := auditk.NewContext(context.Background(), &auditk.TrafficEvent{})
	reached := false
	c.AddHandler(func(c *auditk.Context) {
		c.Finish(auditk.ActNotWatched, auditk.Success("not in watch list"))
	}, func(c *auditk.Context) {
		reached = true
	})
	c.Next()
	if reached {
		t.Fatalf("handler after Finish should not run")
	}
	if c.Result.Action != auditk.ActNotWatched {
		t.Fatalf("expected not watched got %s\n", c.Result.Action)
	}
}
