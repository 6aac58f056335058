package session

import (
	"sync"
	"testing"

	"go.uber.org/zap"
)

func TestStoreDispatchIsSerialised(t *testing.T) {
	store := NewStore(zap.NewNop())
	store.Dispatch(ModelLoadStarted{})
	store.Dispatch(ModelLoaded{})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			store.Dispatch(ImageSelected{Image: Image{Ref: "img"}})
		}()
	}
	wg.Wait()

	if got := store.Snapshot().Generation; got != 50 {
		t.Fatalf("expected generation 50, got %d", got)
	}
}
