package config

// Projectfile is the structure of compak.yaml.
type Projectfile struct {
	Registry string     `yaml:"registry,omitempty"`
	Compose  ComposeDTO `yaml:"compose,omitempty"`
	Workers  int        `yaml:"workers,omitempty" validate:"gte=0,lte=256"`
	// Timeout is a Go duration such as "30s".
	Timeout string  `yaml:"registry_timeout,omitempty"`
	Retries *int    `yaml:"registry_retries,omitempty" validate:"omitempty,gte=0,lte=20"`
	Rate    float64 `yaml:"registry_rate,omitempty" validate:"gte=0"`
}

// ComposeDTO names the Compose files of the project.
type ComposeDTO struct {
	Base     string `yaml:"base,omitempty" validate:"omitempty,max=255"`
	Override string `yaml:"override,omitempty" validate:"omitempty,max=255,nefield=Base"`
}
