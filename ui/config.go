package ui

// Config contains TUI-specific configuration.
type Config struct {
	// Path of the book being read.
	Path string

	EnableMouse bool
	PageWidth   uint `env:"READALOUD_WIDTH" envDefault:"80"`

	// GlamourStyle renders the page when nothing is being highlighted.
	// "auto" picks a dark or light style from the terminal.
	GlamourStyle   string `env:"GLAMOUR_STYLE" envDefault:"auto"`
	GlamourEnabled bool   `env:"READALOUD_ENABLE_GLAMOUR" envDefault:"true"`

	// Selection starts the first reading at the segment containing it.
	Selection string
	// AutoStart begins reading as soon as the reader opens.
	AutoStart bool `env:"READALOUD_AUTOSTART" envDefault:"false"`
}
