package config

import (
	"codeshift/source/kafka"
)

// LoadKafkaConfig reads the source config a pipeline file points at. An empty
// path yields the env-only config.
func LoadKafkaConfig(path string) (kafka.Config, error) {
	return kafka.LoadConfig(path)
}
