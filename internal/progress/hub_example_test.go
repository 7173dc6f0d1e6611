package progress

import (
	"context"
	"fmt"
	"time"
)

type sinkFunc func(context.Context, []Event) error

func (f sinkFunc) Consume(ctx context.Context, batch []Event) error {
	return f(ctx, batch)
}

func (sinkFunc) Close(context.Context) error {
	return nil
}

// ExampleHub_Emit totals captured bytes across a run.
func ExampleHub_Emit() {
	var total int64
	hub := NewHub(Config{
		BufferSize:     4,
		MaxBatchEvents: 1,
		MaxBatchWait:   time.Second,
	}, sinkFunc(func(_ context.Context, batch []Event) error {
		for _, evt := range batch {
			total += evt.Bytes
		}
		return nil
	}))

	for _, vp := range []string{"mobile", "desktop"} {
		hub.Emit(Event{
			RunKey:      "run-1",
			TS:          time.Unix(0, 0),
			Stage:       StageCaptureDone,
			Viewport:    vp,
			StatusClass: Status2xx,
			Bytes:       512,
		})
	}
	if err := hub.Close(context.Background()); err != nil {
		panic(err)
	}

	fmt.Printf("bytes captured: %d\n", total)
	// Output:
	// bytes captured: 1024
}
