// Package main provides the entry point for the readaloud CLI application.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"strings"
	"syscall"

	"github.com/atotto/clipboard"
	"github.com/caarlos0/env/v11"
	"github.com/charmbracelet/glamour/styles"
	"github.com/charmbracelet/log"
	"github.com/muesli/gitcha"
	gap "github.com/muesli/go-app-paths"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/dgnsrekt/readaloud/internal/document"
	"github.com/dgnsrekt/readaloud/tts"
	"github.com/dgnsrekt/readaloud/ui"
	"github.com/dgnsrekt/readaloud/utils"
)

var (
	// Version as provided by goreleaser.
	Version = ""
	// CommitSHA as provided by goreleaser.
	CommitSHA = ""

	readmeNames   = []string{"README.md", "README", "Readme.md", "Readme", "readme.md", "readme"}
	configFile    string
	plain         bool
	style         string
	width         uint
	mouse         bool
	debug         bool
	pageSize      int
	includeCode   bool
	voiceQuery    string
	speed         float64
	from          string
	fromClipboard bool

	rootCmd = &cobra.Command{
		Use:   "readaloud [SOURCE|DIR]",
		Short: "Read books aloud in the terminal",
		Long: paragraph(
			fmt.Sprintf("\nRead markdown and text books %s, page by page.", keyword("aloud")),
		),
		SilenceErrors:    false,
		SilenceUsage:     true,
		TraverseChildren: true,
		Args:             cobra.MaximumNArgs(1),
		ValidArgsFunction: func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
			return nil, cobra.ShellCompDirectiveDefault
		},
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return validateOptions(cmd)
		},
		RunE: execute,
	}
)

// source is a readable book.
type source struct {
	reader io.ReadCloser
	path   string
}

// sourceFromArg resolves an argument to a book. A directory yields its
// README, or else the first readable file in it.
func sourceFromArg(arg string) (*source, error) {
	// from stdin
	if arg == "-" {
		return &source{reader: os.Stdin}, nil
	}

	if len(arg) == 0 {
		// use the current working dir if no argument was supplied
		arg = "."
	}
	st, err := os.Stat(arg)
	if err == nil && st.IsDir() {
		path, err := findBook(arg)
		if err != nil {
			return nil, err
		}
		arg = path
	}

	r, err := os.Open(arg)
	if err != nil {
		return nil, fmt.Errorf("unable to open file: %w", err)
	}
	u, err := filepath.Abs(arg)
	if err != nil {
		_ = r.Close()
		return nil, fmt.Errorf("unable to get absolute path: %w", err)
	}
	return &source{r, u}, nil
}

// findBook picks the book to read in dir.
func findBook(dir string) (string, error) {
	ch, err := gitcha.FindFilesExcept(dir, utils.ReadableExtensions, nil)
	if err != nil {
		return "", fmt.Errorf("unable to search %s: %w", dir, err)
	}
	var found []string
	for res := range ch {
		found = append(found, res.Path)
	}
	if len(found) == 0 {
		return "", errors.New("missing book source")
	}
	slices.Sort(found)

	for _, path := range found {
		for _, v := range readmeNames {
			if strings.EqualFold(filepath.Base(path), v) {
				return path, nil
			}
		}
	}
	return found[0], nil
}

// validateStyle checks if the style is a default style, if not, checks that
// the custom style exists.
func validateStyle(style string) error {
	if style != "auto" && styles.DefaultStyles[style] == nil {
		style = utils.ExpandPath(style)
		if _, err := os.Stat(style); errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("specified style does not exist: %s", style)
		} else if err != nil {
			return fmt.Errorf("unable to stat file: %w", err)
		}
	}
	return nil
}

func validateOptions(cmd *cobra.Command) error {
	// grab config values from Viper
	width = viper.GetUint("width")
	mouse = viper.GetBool("mouse")
	plain = viper.GetBool("plain")
	debug = viper.GetBool("debug")
	pageSize = viper.GetInt("page_size")
	includeCode = viper.GetBool("include_code")

	if debug {
		log.SetLevel(log.DebugLevel)
	}
	if pageSize < 0 {
		return fmt.Errorf("page size must not be negative, got %d", pageSize)
	}
	if cmd.Flags().Changed("speed") && (speed < tts.MinSpeed || speed > tts.MaxSpeed) {
		return fmt.Errorf("speed must be between %s and %s", tts.FormatSpeed(tts.MinSpeed), tts.FormatSpeed(tts.MaxSpeed))
	}
	if from != "" && fromClipboard {
		return errors.New("cannot use both --from and --from-clipboard")
	}

	// validate the glamour style
	style = viper.GetString("style")
	if err := validateStyle(style); err != nil {
		return err
	}

	isTerminal := term.IsTerminal(int(os.Stdout.Fd()))
	// Without a terminal there is nothing to draw on
	if !isTerminal {
		plain = true
		if !cmd.Flags().Changed("style") {
			style = "notty"
		}
	}

	// Detect terminal width
	if !cmd.Flags().Changed("width") {
		if isTerminal && width == 0 {
			w, _, err := term.GetSize(int(os.Stdout.Fd()))
			if err == nil {
				width = uint(w) //nolint:gosec
			}

			if width > 120 {
				width = 120
			}
		}
		if width == 0 {
			width = 80
		}
	}
	return nil
}

func stdinIsPipe() (bool, error) {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false, fmt.Errorf("unable to open file: %w", err)
	}
	if stat.Mode()&os.ModeCharDevice == 0 || stat.Size() > 0 {
		return true, nil
	}
	return false, nil
}

func execute(cmd *cobra.Command, args []string) error {
	arg := ""
	if len(args) > 0 {
		arg = args[0]
	}

	// if stdin is a pipe then read the book from it. note that you can also
	// explicitly use a - to read from stdin.
	if yes, err := stdinIsPipe(); err != nil {
		return err
	} else if yes && arg == "" {
		arg = "-"
	}
	if arg == "-" {
		// keys can't be read while the book comes through stdin
		plain = true
	}

	src, err := sourceFromArg(arg)
	if err != nil {
		return err
	}
	doc, book, err := openBook(src)
	_ = src.reader.Close()
	if err != nil {
		return err
	}
	return read(cmd, doc, book, src.path)
}

// openBook parses src into a paged document.
func openBook(src *source) (*document.Document, tts.Book, error) {
	opts := document.Options{
		PageSize:     pageSize,
		ParseOptions: document.ParseOptions{IncludeCode: includeCode},
	}
	if src.path != "" {
		return document.Open(src.path, opts)
	}

	b, err := io.ReadAll(src.reader)
	if err != nil {
		return nil, tts.Book{}, fmt.Errorf("unable to read from reader: %w", err)
	}
	opts.Format = tts.FormatMarkdown
	book := tts.Book{Key: "stdin", Title: "stdin", Format: opts.Format}
	return document.New(b, opts), book, nil
}

func read(cmd *cobra.Command, doc *document.Document, book tts.Book, path string) error {
	ctx := cmd.Context()

	st, err := openStore()
	if err != nil {
		return err
	}
	var pos tts.Position
	if ok, err := st.ObjectConfig(book.Key, tts.CategoryLocation, &pos); err != nil {
		log.Warn("Could not restore reading position", "book", book.Key, "err", err)
	} else if ok {
		doc.Seek(pos)
	}

	cfg, err := tts.LoadConfig(viper.GetViper())
	if err != nil {
		return err
	}

	eng, err := newEngine(ctx, cfg, doc, book, st)
	if err != nil {
		return err
	}
	defer func() { _ = eng.Close() }()

	if cmd.Flags().Changed("speed") {
		if err := eng.controller.SetSpeed(speed); err != nil {
			return err
		}
	}
	if voiceQuery != "" {
		if err := selectVoice(ctx, eng, voiceQuery); err != nil {
			return err
		}
	}

	selection := from
	if fromClipboard {
		selection, err = clipboard.ReadAll()
		if err != nil {
			return fmt.Errorf("unable to read clipboard: %w", err)
		}
	}

	if plain {
		return runPlain(ctx, os.Stdout, eng.controller, selection, int(width)) //nolint:gosec
	}
	return runTUI(ctx, eng, doc, path, selection)
}

func runTUI(ctx context.Context, eng *engine, doc *document.Document, path, selection string) error {
	// Read environment to get debugging stuff
	cfg, err := env.ParseAs[ui.Config]()
	if err != nil {
		return fmt.Errorf("error parsing config: %v", err)
	}

	// use style set in env, or the flag if unset
	if _, ok := os.LookupEnv("GLAMOUR_STYLE"); !ok || validateStyle(cfg.GlamourStyle) != nil {
		cfg.GlamourStyle = style
	}

	cfg.Path = path
	cfg.PageWidth = width
	cfg.EnableMouse = mouse
	cfg.Selection = selection

	// Run Bubble Tea program
	if _, err := ui.NewProgram(ctx, cfg, eng.controller, doc).Run(); err != nil {
		return fmt.Errorf("unable to run tui program: %w", err)
	}
	return nil
}

func main() {
	closer, err := setupLog()
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err = rootCmd.ExecuteContext(ctx)
	stop()
	_ = closer()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	tryLoadConfigFromDefaultPlaces()
	if len(CommitSHA) >= 7 {
		vt := rootCmd.VersionTemplate()
		rootCmd.SetVersionTemplate(vt[:len(vt)-1] + " (" + CommitSHA[0:7] + ")\n")
	}
	if Version == "" {
		Version = "unknown (built from source)"
	}
	rootCmd.Version = Version
	rootCmd.InitDefaultCompletionCmd()

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", fmt.Sprintf("config file (default %s)", viper.GetViper().ConfigFileUsed()))
	rootCmd.PersistentFlags().StringP("server", "S", "", "speech service URL")
	rootCmd.PersistentFlags().String("token", "", "speech service token")
	rootCmd.PersistentFlags().Bool("desktop", false, "use on-device and plugin voices only")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "log debug output")

	rootCmd.Flags().BoolVarP(&plain, "plain", "p", false, "print segments as they are read instead of the TUI")
	rootCmd.Flags().StringVarP(&style, "style", "s", styles.AutoStyle, "style name or JSON path")
	rootCmd.Flags().UintVarP(&width, "width", "w", 0, "word-wrap at width (set to 0 to disable)")
	rootCmd.Flags().BoolVarP(&mouse, "mouse", "m", false, "enable mouse wheel (TUI-mode only)")
	_ = rootCmd.Flags().MarkHidden("mouse")
	rootCmd.Flags().IntVar(&pageSize, "page-size", document.DefaultPageSize, "blocks per page")
	rootCmd.Flags().BoolVar(&includeCode, "code", false, "read code blocks aloud")
	rootCmd.Flags().StringVar(&voiceQuery, "voice", "", "voice to read with (fuzzy matched)")
	rootCmd.Flags().Float64Var(&speed, "speed", tts.DefaultSpeed, "reading speed")
	rootCmd.Flags().StringVar(&from, "from", "", "start reading at this text")
	rootCmd.Flags().BoolVar(&fromClipboard, "from-clipboard", false, "start reading at the clipboard text")

	// Config bindings
	_ = viper.BindPFlag("plain", rootCmd.Flags().Lookup("plain"))
	_ = viper.BindPFlag("style", rootCmd.Flags().Lookup("style"))
	_ = viper.BindPFlag("width", rootCmd.Flags().Lookup("width"))
	_ = viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	_ = viper.BindPFlag("mouse", rootCmd.Flags().Lookup("mouse"))
	_ = viper.BindPFlag("page_size", rootCmd.Flags().Lookup("page-size"))
	_ = viper.BindPFlag("include_code", rootCmd.Flags().Lookup("code"))
	_ = viper.BindPFlag("tts.remote.url", rootCmd.PersistentFlags().Lookup("server"))
	_ = viper.BindPFlag("tts.remote.token", rootCmd.PersistentFlags().Lookup("token"))
	_ = viper.BindPFlag("tts.desktop", rootCmd.PersistentFlags().Lookup("desktop"))

	viper.SetDefault("style", styles.AutoStyle)
	viper.SetDefault("width", 0)
	viper.SetDefault("page_size", document.DefaultPageSize)

	rootCmd.AddCommand(configCmd, manCmd, voicesCmd, cacheCmd)
}

func tryLoadConfigFromDefaultPlaces() {
	scope := gap.NewScope(gap.User, "readaloud")
	dirs, err := scope.ConfigDirs()
	if err != nil {
		fmt.Println("Could not load find configuration directory.")
		os.Exit(1)
	}

	if c := os.Getenv("XDG_CONFIG_HOME"); c != "" {
		dirs = append([]string{filepath.Join(c, "readaloud")}, dirs...)
	}

	if c := os.Getenv("READALOUD_CONFIG_HOME"); c != "" {
		dirs = append([]string{c}, dirs...)
	}

	for _, v := range dirs {
		viper.AddConfigPath(v)
	}

	viper.SetConfigName("readaloud")
	viper.SetConfigType("yaml")
	viper.SetEnvPrefix("readaloud")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			log.Warn("Could not parse configuration file", "err", err)
		}
	}

	if used := viper.ConfigFileUsed(); used != "" {
		log.Debug("Using configuration file", "path", viper.ConfigFileUsed())
		return
	}

	configFile = filepath.Join(dirs[0], "readaloud.yml")
	if err := ensureConfigFile(); err != nil {
		log.Error("Could not create default configuration", "error", err)
	}
}
