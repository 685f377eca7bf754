package manifest

type sinkConfigs struct {
	Kafka  KafkaSinkSpec  `yaml:"kafka"`
	Stdout StdoutSinkSpec `yaml:"stdout"`
}

type KafkaSinkSpec struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

type StdoutSinkSpec struct {
	PrintValue    bool `yaml:"print_value"`
	ValueMaxBytes int  `yaml:"value_max_bytes"`
}

type debugSection struct {
	PerFrameDelayMS int  `yaml:"per_frame_delay_ms"`
	PrintCounter    bool `yaml:"print_counter"`
	AckBatchSize    int  `yaml:"ack_batch_size"`
	AckFlushMS      int  `yaml:"ack_flush_ms"`
}

// CompileSpec configures the compile stage between source and sinks. From
// and To apply to records that do not name their own pair.
type CompileSpec struct {
	From        string `yaml:"from"`
	To          string `yaml:"to"`
	Provider    string `yaml:"provider"`
	TimeoutMS   int    `yaml:"timeout_ms"`
	MaxInFlight int    `yaml:"max_in_flight"`
}

// File is a worker pipeline: a source of compile requests, the compile stage
// and the sinks receiving the outcomes.
type File struct {
	SchemaVersion string `yaml:"schema_version"`

	Source struct {
		Kind   string `yaml:"kind"`
		Driver string `yaml:"driver"`
		Config string `yaml:"config"`
	} `yaml:"source"`

	Compile CompileSpec `yaml:"compile"`

	Sinks       []string     `yaml:"sinks"`
	SinkConfigs sinkConfigs  `yaml:"sink_configs"`
	Debug       debugSection `yaml:"debug"`
}
