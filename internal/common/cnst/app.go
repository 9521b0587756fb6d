package cnst

const (
	AppName     = "webconsole"
	CommandName = "webconsole"
)

const (
	// ConsoleYaml is the default configuration file name
	ConsoleYaml = "webconsole.yaml"
)
