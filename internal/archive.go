package internal

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmamqp "github.com/ThreeDotsLabs/watermill-amqp/pkg/amqp"
	wmhttp "github.com/ThreeDotsLabs/watermill-http/v2/pkg/http"
	wmkafka "github.com/ThreeDotsLabs/watermill-kafka/pkg/kafka"
	wmnats "github.com/ThreeDotsLabs/watermill-nats/pkg/nats"
	wmsql "github.com/ThreeDotsLabs/watermill-sql/pkg/sql"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	stan "github.com/nats-io/stan.go"
)

// Archiver records raw inbound payloads to one or more write-only sinks.
// Archiving is best effort: failures are counted and logged by the caller
// but never affect the notification relay. Nothing in the service reads
// archived payloads back.
type Archiver interface {
	Archive(ctx context.Context, topic string, ev *Event) error
	Close() error
}

type watermillArchiver struct {
	publisher message.Publisher
	closeFn   func() error
}

// ArchiveDriverFactory builds a watermill publisher for a named archive
// driver. Extra drivers can be registered before NewArchiver is called.
type ArchiveDriverFactory func(cfg ArchiveConfig, logger watermill.LoggerAdapter) (message.Publisher, func() error, error)

var archiveDriverFactories = map[string]ArchiveDriverFactory{
	"file":      buildFileArchive,
	"gochannel": buildGoChannelArchive,
}

func RegisterArchiveDriver(name string, factory ArchiveDriverFactory) {
	if name == "" || factory == nil {
		return
	}
	archiveDriverFactories[strings.ToLower(name)] = factory
}

// NewArchiver builds the archive fan-out from configuration. Driver
// "none" (the default) disables archiving. Drivers that fail to
// initialize are skipped; only an empty result is an error.
func NewArchiver(cfg ArchiveConfig) (Archiver, error) {
	logger := watermill.NewStdLogger(false, false)

	drivers := cfg.Drivers
	if len(drivers) == 0 && cfg.Driver != "" {
		drivers = []string{cfg.Driver}
	}
	if len(drivers) == 0 {
		return nopArchiver{}, nil
	}

	sinks := make(map[string]Archiver, len(drivers))
	for _, driver := range drivers {
		key := strings.ToLower(driver)
		if key == "none" {
			continue
		}
		sink, err := retryArchiverBuild(func() (Archiver, error) {
			return newSingleArchiver(cfg, key)
		})
		if err != nil {
			logger.Error("archive sink init failed, skipping driver", err, watermill.LogFields{
				"driver": key,
			})
			continue
		}
		sinks[key] = sink
	}
	if len(sinks) == 0 {
		if len(drivers) == 1 && strings.EqualFold(drivers[0], "none") {
			return nopArchiver{}, nil
		}
		return nil, errors.New("no archive sinks available")
	}
	return &archiverMux{sinks: sinks}, nil
}

func newSingleArchiver(cfg ArchiveConfig, driver string) (Archiver, error) {
	logger := watermill.NewStdLogger(false, false)

	switch driver {
	case "http":
		targetMode := strings.ToLower(cfg.HTTP.Mode)
		if targetMode != "topic_url" && targetMode != "base_url" {
			return nil, fmt.Errorf("unsupported http mode: %s", cfg.HTTP.Mode)
		}
		if targetMode == "base_url" && cfg.HTTP.BaseURL == "" {
			return nil, fmt.Errorf("http base_url is required for base_url mode")
		}
		pub, err := wmhttp.NewPublisher(wmhttp.PublisherConfig{
			MarshalMessageFunc: func(topic string, msg *message.Message) (*http.Request, error) {
				target, err := httpTargetURL(cfg.HTTP, topic)
				if err != nil {
					return nil, err
				}
				return wmhttp.DefaultMarshalMessageFunc(target, msg)
			},
		}, logger)
		if err != nil {
			return nil, err
		}
		return &watermillArchiver{publisher: pub}, nil
	case "kafka":
		if len(cfg.Kafka.Brokers) == 0 {
			return nil, fmt.Errorf("kafka brokers are required")
		}
		pub, err := wmkafka.NewPublisher(cfg.Kafka.Brokers, wmkafka.DefaultMarshaler{}, nil, logger)
		if err != nil {
			return nil, err
		}
		return &watermillArchiver{publisher: pub}, nil
	case "nats":
		if cfg.NATS.ClusterID == "" || cfg.NATS.ClientID == "" {
			return nil, fmt.Errorf("nats cluster_id and client_id are required")
		}
		natsCfg := wmnats.StreamingPublisherConfig{
			ClusterID: cfg.NATS.ClusterID,
			ClientID:  cfg.NATS.ClientID,
			Marshaler: wmnats.GobMarshaler{},
		}
		if cfg.NATS.URL != "" {
			natsCfg.StanOptions = append(natsCfg.StanOptions, stan.NatsURL(cfg.NATS.URL))
		}
		pub, err := wmnats.NewStreamingPublisher(natsCfg, logger)
		if err != nil {
			return nil, err
		}
		return &watermillArchiver{publisher: pub}, nil
	case "amqp":
		if cfg.AMQP.URL == "" {
			return nil, fmt.Errorf("amqp url is required")
		}
		amqpCfg, err := amqpConfigFromMode(cfg.AMQP.URL, cfg.AMQP.Mode)
		if err != nil {
			return nil, err
		}
		pub, err := wmamqp.NewPublisher(amqpCfg, logger)
		if err != nil {
			return nil, err
		}
		return &watermillArchiver{publisher: pub}, nil
	case "sql":
		if cfg.SQL.Driver == "" || cfg.SQL.DSN == "" {
			return nil, fmt.Errorf("sql driver and dsn are required")
		}
		schemaAdapter, err := sqlSchemaAdapter(cfg.SQL.Dialect)
		if err != nil {
			return nil, err
		}
		db, err := sql.Open(cfg.SQL.Driver, cfg.SQL.DSN)
		if err != nil {
			return nil, err
		}
		autoInit := cfg.SQL.AutoInitializeSchema || cfg.SQL.InitializeSchema
		pub, err := wmsql.NewPublisher(db, wmsql.PublisherConfig{
			SchemaAdapter:        schemaAdapter,
			AutoInitializeSchema: autoInit,
		}, logger)
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		return &watermillArchiver{
			publisher: pub,
			closeFn:   db.Close,
		}, nil
	default:
		if factory, ok := archiveDriverFactories[driver]; ok {
			pub, closeFn, err := factory(cfg, logger)
			if err != nil {
				return nil, err
			}
			return &watermillArchiver{publisher: pub, closeFn: closeFn}, nil
		}
		return nil, fmt.Errorf("unsupported archive driver: %s", driver)
	}
}

func retryArchiverBuild(build func() (Archiver, error)) (Archiver, error) {
	const attempts = 3
	const delay = 500 * time.Millisecond

	var lastErr error
	for i := 0; i < attempts; i++ {
		sink, err := build()
		if err == nil {
			return sink, nil
		}
		lastErr = err
		time.Sleep(delay)
	}
	return nil, lastErr
}

func (a *watermillArchiver) Archive(ctx context.Context, topic string, ev *Event) error {
	payload := ev.RawPayload
	if len(payload) == 0 {
		marshaled, err := json.Marshal(ev)
		if err != nil {
			return err
		}
		payload = marshaled
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set("event", ev.Category)
	msg.Metadata.Set("action", ev.Action)
	return a.publisher.Publish(topic, msg)
}

func (a *watermillArchiver) Close() error {
	if a.publisher == nil {
		return nil
	}
	err := a.publisher.Close()
	if a.closeFn != nil {
		return errors.Join(err, a.closeFn())
	}
	return err
}

type archiverMux struct {
	sinks map[string]Archiver
}

func (m *archiverMux) Archive(ctx context.Context, topic string, ev *Event) error {
	var err error
	for driver, sink := range m.sinks {
		if archiveErr := sink.Archive(ctx, topic, ev); archiveErr != nil {
			IncArchiveError(driver)
			err = errors.Join(err, fmt.Errorf("%s: %w", driver, archiveErr))
		}
	}
	return err
}

func (m *archiverMux) Close() error {
	var err error
	for _, sink := range m.sinks {
		err = errors.Join(err, sink.Close())
	}
	return err
}

type nopArchiver struct{}

func (nopArchiver) Archive(context.Context, string, *Event) error { return nil }
func (nopArchiver) Close() error                                  { return nil }

func buildGoChannelArchive(cfg ArchiveConfig, logger watermill.LoggerAdapter) (message.Publisher, func() error, error) {
	pub := gochannel.NewGoChannel(
		gochannel.Config{
			OutputChannelBuffer:            cfg.GoChannel.OutputChannelBuffer,
			Persistent:                     cfg.GoChannel.Persistent,
			BlockPublishUntilSubscriberAck: cfg.GoChannel.BlockPublishUntilSubscriberAck,
		},
		logger,
	)
	return pub, nil, nil
}

// filePublisher mirrors the historical behavior of dumping every payload
// into a directory of timestamped JSON files.
type filePublisher struct {
	dir string
}

func buildFileArchive(cfg ArchiveConfig, logger watermill.LoggerAdapter) (message.Publisher, func() error, error) {
	if cfg.File.Dir == "" {
		return nil, nil, fmt.Errorf("file archive dir is required")
	}
	if err := os.MkdirAll(cfg.File.Dir, 0o755); err != nil {
		return nil, nil, err
	}
	return &filePublisher{dir: cfg.File.Dir}, nil, nil
}

func (p *filePublisher) Publish(topic string, msgs ...*message.Message) error {
	var err error
	for _, msg := range msgs {
		name := time.Now().UTC().Format("20060102T150405.000000000") + "Z.json"
		body := msg.Payload
		var indented bytes.Buffer
		if indentErr := json.Indent(&indented, body, "", "  "); indentErr == nil {
			body = indented.Bytes()
		}
		err = errors.Join(err, os.WriteFile(filepath.Join(p.dir, name), body, 0o644))
	}
	return err
}

func (p *filePublisher) Close() error { return nil }

func amqpConfigFromMode(url, mode string) (wmamqp.Config, error) {
	switch strings.ToLower(mode) {
	case "", "durable_queue":
		return wmamqp.NewDurableQueueConfig(url), nil
	case "nondurable_queue":
		return wmamqp.NewNonDurableQueueConfig(url), nil
	case "durable_pubsub":
		return wmamqp.NewDurablePubSubConfig(url, nil), nil
	case "nondurable_pubsub":
		return wmamqp.NewNonDurablePubSubConfig(url, nil), nil
	default:
		return wmamqp.Config{}, fmt.Errorf("unsupported amqp mode: %s", mode)
	}
}

func sqlSchemaAdapter(dialect string) (wmsql.SchemaAdapter, error) {
	switch strings.ToLower(dialect) {
	case "postgres", "postgresql":
		return wmsql.DefaultPostgreSQLSchema{}, nil
	case "mysql":
		return wmsql.DefaultMySQLSchema{}, nil
	default:
		return nil, fmt.Errorf("unsupported sql dialect: %s", dialect)
	}
}

func httpTargetURL(cfg HTTPConfig, topic string) (string, error) {
	switch strings.ToLower(cfg.Mode) {
	case "topic_url":
		if topic == "" {
			return "", fmt.Errorf("http topic url is empty")
		}
		return topic, nil
	case "base_url":
		if cfg.BaseURL == "" {
			return "", fmt.Errorf("http base_url is empty")
		}
		if topic == "" {
			return strings.TrimRight(cfg.BaseURL, "/"), nil
		}
		return strings.TrimRight(cfg.BaseURL, "/") + "/" + strings.TrimLeft(topic, "/"), nil
	default:
		return "", fmt.Errorf("unsupported http mode: %s", cfg.Mode)
	}
}
