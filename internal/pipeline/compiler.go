package pipeline

import (
	"fmt"
	"time"

	"codeshift/internal/config"
	"codeshift/internal/manifest"
	"codeshift/sink"
	sinkkafka "codeshift/sink/kafka"
	"codeshift/sink/stdout"
	"codeshift/source/kafka"
)

// Compile builds a runner from the pipeline file at path.
func Compile(path string, stage Stage) (*Runner, error) {
	cfg, confPath, err := config.LoadPipelineSpec(path)
	if err != nil {
		return nil, err
	}
	r := NewRunner(stage, cfg.Compile)
	if err := wire(cfg, confPath, r); err != nil {
		_ = r.Close()
		return nil, err
	}
	return r, nil
}

// wire attaches the source and sinks cfg declares to r.
func wire(cfg manifest.File, confPath string, r *Runner) error {
	if cfg.Source.Kind != "kafka" {
		return fmt.Errorf("unsupported source %q", cfg.Source.Kind)
	}
	kc, err := config.LoadKafkaConfig(confPath)
	if err != nil {
		return err
	}
	src, err := kafka.NewAdapter(cfg.Source.Driver)
	if err != nil {
		return err
	}
	if err = src.Configure(kc); err != nil {
		return err
	}
	r.SetSource(src)
	if aw, ok := src.(kafka.AckAware); ok {
		r.SubscribeAck(aw.OnAck)
	}

	for _, name := range cfg.Sinks {
		sDrv, err := sink.NewAdapter(name)
		if err != nil {
			return err
		}

		switch name {
		case "stdout":
			delay := time.Duration(cfg.Debug.PerFrameDelayMS) * time.Millisecond
			err = sDrv.Configure(stdout.Config{
				DelayMS:       int(delay / time.Millisecond),
				PrintCounter:  cfg.Debug.PrintCounter,
				BatchSize:     cfg.Debug.AckBatchSize,
				FlushMS:       cfg.Debug.AckFlushMS,
				PrintValue:    cfg.SinkConfigs.Stdout.PrintValue,
				ValueMaxBytes: cfg.SinkConfigs.Stdout.ValueMaxBytes,
			})
		case "kafka":
			kcfg := cfg.SinkConfigs.Kafka
			err = sDrv.Configure(sinkkafka.Config{Brokers: kcfg.Brokers, Topic: kcfg.Topic, Acks: -1})
		default:
			err = fmt.Errorf("no config block for sink %q", name)
		}
		if err != nil {
			return err
		}

		if ackAware, ok := sDrv.(sink.AckAware); ok {
			r.BindAck(ackAware)
		}
		r.AddSink(sDrv)
	}
	return nil
}
