// Package events delivers change notifications about pool files and packages
// over an in-process pub/sub bus, so UI layers and other observers can react
// without polling the stores.
package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"filepool/pkg/models"
)

const (
	filesTopic    = "filepool.files"
	packagesTopic = "filepool.packages"
)

// FileAction names what happened to a file.
type FileAction string

const (
	ActionDownloading   FileAction = "downloading"
	ActionDownloaded    FileAction = "downloaded"
	ActionDownloadError FileAction = "download-error"
	ActionOutdated      FileAction = "outdated"
	ActionDeleted       FileAction = "deleted"
)

// FileEvent describes a state change of one pool file.
type FileEvent struct {
	SiteID string            `json:"site_id"`
	FileID string            `json:"file_id"`
	Action FileAction        `json:"action"`
	Links  []models.FileLink `json:"links,omitempty"`
}

// PackageEvent describes a status change of one package.
type PackageEvent struct {
	SiteID      string                `json:"site_id"`
	Component   string                `json:"component"`
	ComponentID string                `json:"component_id"`
	Status      models.DownloadStatus `json:"status"`
}

// Bus is the in-process change-notification bus. Subscribers each receive
// every published event.
type Bus struct {
	pubsub *gochannel.GoChannel
}

// NewBus creates the bus with a small output buffer so slow subscribers do
// not stall publishers immediately.
func NewBus() *Bus {
	pubsub := gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer: 64,
	}, watermill.NopLogger{})

	return &Bus{pubsub: pubsub}
}

// PublishFile emits a file event.
func (b *Bus) PublishFile(event FileEvent) error {
	return b.publish(filesTopic, event)
}

// PublishPackage emits a package event.
func (b *Bus) PublishPackage(event PackageEvent) error {
	return b.publish(packagesTopic, event)
}

func (b *Bus) publish(topic string, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to serialize event: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	if err := b.pubsub.Publish(topic, msg); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	return nil
}

// SubscribeFiles delivers file events until the context is canceled.
func (b *Bus) SubscribeFiles(ctx context.Context) (<-chan FileEvent, error) {
	messages, err := b.pubsub.Subscribe(ctx, filesTopic)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to file events: %w", err)
	}

	events := make(chan FileEvent)
	go decodeLoop(messages, events)

	return events, nil
}

// SubscribePackages delivers package events until the context is canceled.
func (b *Bus) SubscribePackages(ctx context.Context) (<-chan PackageEvent, error) {
	messages, err := b.pubsub.Subscribe(ctx, packagesTopic)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to package events: %w", err)
	}

	events := make(chan PackageEvent)
	go decodeLoop(messages, events)

	return events, nil
}

func decodeLoop[T any](messages <-chan *message.Message, events chan<- T) {
	defer close(events)

	for msg := range messages {
		var event T
		if err := json.Unmarshal(msg.Payload, &event); err != nil {
			msg.Nack()
			continue
		}

		msg.Ack()
		events <- event
	}
}

// Close shuts the bus down, closing all subscriber channels.
func (b *Bus) Close() error {
	return b.pubsub.Close()
}
