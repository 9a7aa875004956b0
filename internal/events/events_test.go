package events

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"filepool/pkg/models"
)

func TestFileEventRoundTrip(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, err := bus.SubscribeFiles(ctx)
	require.NoError(t, err)

	published := FileEvent{
		SiteID: "site1",
		FileID: "file1",
		Action: ActionDownloaded,
		Links: []models.FileLink{
			{FileID: "file1", Component: "mod_resource", ComponentID: "42"},
		},
	}
	require.NoError(t, bus.PublishFile(published))

	select {
	case got := <-events:
		require.Equal(t, published, got)
	case <-time.After(time.Second):
		t.Fatal("file event never arrived")
	}
}

func TestPackageEventRoundTrip(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, err := bus.SubscribePackages(ctx)
	require.NoError(t, err)

	published := PackageEvent{
		SiteID:      "site1",
		Component:   "mod_resource",
		ComponentID: "42",
		Status:      models.StatusDownloading,
	}
	require.NoError(t, bus.PublishPackage(published))

	select {
	case got := <-events:
		require.Equal(t, published, got)
	case <-time.After(time.Second):
		t.Fatal("package event never arrived")
	}
}

func TestMultipleSubscribersEachReceive(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	first, err := bus.SubscribeFiles(ctx)
	require.NoError(t, err)
	second, err := bus.SubscribeFiles(ctx)
	require.NoError(t, err)

	require.NoError(t, bus.PublishFile(FileEvent{SiteID: "site1", FileID: "file1", Action: ActionOutdated}))

	for _, events := range []<-chan FileEvent{first, second} {
		select {
		case got := <-events:
			require.Equal(t, ActionOutdated, got.Action)
		case <-time.After(time.Second):
			t.Fatal("subscriber missed the event")
		}
	}
}

func TestSubscriptionEndsOnContextCancel(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())

	events, err := bus.SubscribeFiles(ctx)
	require.NoError(t, err)

	cancel()

	select {
	case _, open := <-events:
		require.False(t, open)
	case <-time.After(time.Second):
		t.Fatal("subscription channel never closed")
	}
}
