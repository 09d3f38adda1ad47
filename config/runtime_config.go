package config

// RuntimeConfig is the subset of the configuration that can be changed
// through the web API while the node runs. Network credentials and
// hardware settings are left out.
type RuntimeConfig struct {
	Node    NodeConfig    `yaml:"Node" json:"Node"`
	Tasks   TasksConfig   `yaml:"Tasks" json:"Tasks"`
	Logging LoggingConfig `yaml:"Logging" json:"Logging"`
}
