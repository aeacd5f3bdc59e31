package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/dyluth/dbuilder/pkg/config"
	"github.com/dyluth/dbuilder/pkg/docker"
	"github.com/dyluth/dbuilder/pkg/orchestrator"
	"github.com/dyluth/dbuilder/pkg/ui"
)

const defaultConfigFile = "dbuilder.yml"

// Build-time variables injected via linker flags
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		reportError(os.Stderr, err)
		os.Exit(1)
	}
}

// reportError prints err unless it was already shown as an error event
func reportError(w io.Writer, err error) {
	if _, ok := orchestrator.StageOf(err); ok {
		return
	}
	fmt.Fprintf(w, "Error: %v\n", err)
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dbuilder",
		Short: "Build a Docker image and run a single container from it",
		Long: `dbuilder builds an image from a Dockerfile, replaces any container left over
from a previous build, and starts a fresh container with the configured name,
port binding and environment.

Settings are read from dbuilder.yml, dbuilder.yaml or dbuilder.json in the
current directory and can be overridden with flags.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().Bool("verbose", false, "Enable verbose logging")
	cmd.PersistentFlags().StringP("config", "c", "", "Path to a dbuilder config file")

	cmd.AddCommand(newUpCmd())
	cmd.AddCommand(newBuildCmd())
	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newDownCmd())
	cmd.AddCommand(newPsCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newCompletionCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

func newUpCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "up",
		Short: "Build the image and run the container",
		Long: `Build the image, remove containers created from a previous build of it,
then create, attach to and start the container.

Examples:
  dbuilder up                                    # Use dbuilder.yml
  dbuilder up --name api --port 8080 --exposed 80 --image ./Dockerfile
  dbuilder up -e DB_HOST=db -e DEBUG=1 --follow  # Override env and keep streaming`,
		RunE: upCmdHandler,
	}
	addContainerFlags(cmd)
	cmd.Flags().Bool("pump", false, "Print the raw image build output")
	cmd.Flags().BoolP("follow", "f", false, "Keep streaming container output until it ends")
	return cmd
}

func newBuildCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build the image and remove containers from previous builds",
		RunE:  buildCmdHandler,
	}
	addContainerFlags(cmd)
	cmd.Flags().Bool("pump", false, "Print the raw image build output")
	return cmd
}

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the container from an already built image",
		RunE:  runCmdHandler,
	}
	addContainerFlags(cmd)
	cmd.Flags().BoolP("follow", "f", false, "Keep streaming container output until it ends")
	return cmd
}

func newDownCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "down",
		Short: "Stop and remove the container",
		RunE:  downCmdHandler,
	}
	addContainerFlags(cmd)
	cmd.Flags().Bool("rmi", false, "Also remove the built image")
	return cmd
}

func newPsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ps",
		Short: "List containers created from the image",
		RunE:  psCmdHandler,
	}
	addContainerFlags(cmd)
	return cmd
}

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or edit the dbuilder config file",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the resolved configuration",
		RunE:  configShowHandler,
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a value in the config file",
		Long: `Set a value in the config file. Keys are name, image, port, exposed,
maxConflictRetries and envs.<NAME>.`,
		Args: cobra.ExactArgs(2),
		RunE: configSetHandler,
	})

	return cmd
}

func newCompletionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "completion [bash|zsh|fish]",
		Short: "Generate shell completion scripts",
		Long: `Generate completion scripts for your shell.

  # Bash
  source <(dbuilder completion bash)

  # Zsh
  source <(dbuilder completion zsh)

  # Fish
  dbuilder completion fish | source`,
		Args:                  cobra.ExactArgs(1),
		ValidArgs:             []string{"bash", "zsh", "fish"},
		RunE:                  completionHandler,
		DisableFlagsInUseLine: true,
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long:  "Display version, build date, and git commit information",
		Run:   versionHandler,
	}
}

// addContainerFlags registers the flags that override config file values
func addContainerFlags(cmd *cobra.Command) {
	cmd.Flags().String("name", "", "Image tag and container name")
	cmd.Flags().Int("port", 0, "Host port")
	cmd.Flags().Int("exposed", 0, "Container port, should match the Dockerfile EXPOSE")
	cmd.Flags().String("image", "", "Dockerfile or build context directory")
	cmd.Flags().StringToStringP("env", "e", nil, "Container environment (KEY=VALUE), can be used multiple times")
	cmd.Flags().Int("max-conflict-retries", 0, "Name conflicts to resolve before giving up")
}

// Command handlers
func upCmdHandler(cmd *cobra.Command, args []string) error {
	s, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.orch.Up(cmd.Context()); err != nil {
		return err
	}
	return s.follow(cmd)
}

func buildCmdHandler(cmd *cobra.Command, args []string) error {
	s, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	return s.orch.Build(cmd.Context())
}

func runCmdHandler(cmd *cobra.Command, args []string) error {
	s, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.orch.Run(cmd.Context()); err != nil {
		return err
	}
	return s.follow(cmd)
}

func downCmdHandler(cmd *cobra.Command, args []string) error {
	s, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.orch.StopAndRemove(cmd.Context(), s.cfg.Name); err != nil {
		return err
	}

	if rmi, _ := cmd.Flags().GetBool("rmi"); rmi {
		if err := s.service.RemoveImage(cmd.Context(), s.cfg.Name); err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Removed image %s\n", s.cfg.Name)
	}
	return nil
}

func psCmdHandler(cmd *cobra.Command, args []string) error {
	opts, err := resolveOptions(cmd)
	if err != nil {
		return err
	}
	if err := config.ValidateName(opts.Name); err != nil {
		return err
	}

	service, err := connect(cmd.Context())
	if err != nil {
		return err
	}
	defer func() {
		if err := service.Close(); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Warning: failed to close Docker service: %v\n", err)
		}
	}()

	containers, err := service.ListContainers(cmd.Context())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	table := ui.NewTable(ui.PaletteFor(out), "CONTAINER ID", "NAME", "STATUS", "IMAGE")
	for _, c := range containers {
		if c.Image != opts.Name && c.Name != opts.Name {
			continue
		}
		table.AddRow(shortID(c.ID), c.Name, string(c.Status), c.Image)
	}

	if table.Len() == 0 {
		fmt.Fprintf(out, "No containers found for %s.\n", opts.Name)
		fmt.Fprintln(out, "Run 'dbuilder up' to build and start one.")
		return nil
	}
	return table.Render(out)
}

func configShowHandler(cmd *cobra.Command, args []string) error {
	opts, err := resolveOptions(cmd)
	if err != nil {
		return err
	}
	cfg, err := config.New(opts)
	if err != nil {
		return err
	}

	data, err := yaml.Marshal(struct {
		Name               string   `yaml:"name"`
		Image              string   `yaml:"image"`
		Port               string   `yaml:"port"`
		Exposed            string   `yaml:"exposed"`
		Env                []string `yaml:"env"`
		MaxConflictRetries int      `yaml:"maxConflictRetries"`
	}{cfg.Name, cfg.Image, cfg.Port, cfg.Exposed, cfg.Env, cfg.MaxConflictRetries})
	if err != nil {
		return fmt.Errorf("failed to render configuration: %w", err)
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}

func configSetHandler(cmd *cobra.Command, args []string) error {
	key, value := args[0], args[1]

	path, err := configPath(cmd)
	if err != nil {
		return err
	}
	if path == "" {
		path = defaultConfigFile
	}

	if err := config.SetValue(path, key, value); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Set %s = %s\n", key, value)
	return nil
}

func versionHandler(cmd *cobra.Command, args []string) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "dbuilder version %s\n", Version)
	fmt.Fprintf(out, "Git commit: %s\n", GitCommit)
	fmt.Fprintf(out, "Build date: %s\n", BuildDate)
}

func completionHandler(cmd *cobra.Command, args []string) error {
	shell := args[0]
	out := cmd.OutOrStdout()

	switch shell {
	case "bash":
		return cmd.Root().GenBashCompletion(out)
	case "zsh":
		return cmd.Root().GenZshCompletion(out)
	case "fish":
		return cmd.Root().GenFishCompletion(out, true)
	default:
		return fmt.Errorf("unsupported shell: %s. Supported shells: bash, zsh, fish", shell)
	}
}

// session ties one command invocation to the Docker daemon
type session struct {
	cfg     *config.Config
	service *docker.Service
	orch    *orchestrator.Orchestrator
	logger  *zap.Logger
	stderr  io.Writer
}

func openSession(cmd *cobra.Command) (*session, error) {
	opts, err := resolveOptions(cmd)
	if err != nil {
		return nil, err
	}
	cfg, err := config.New(opts)
	if err != nil {
		return nil, err
	}

	verbose, _ := cmd.Flags().GetBool("verbose")
	logger, err := newLogger(verbose)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	service, err := connect(cmd.Context())
	if err != nil {
		_ = logger.Sync()
		return nil, err
	}

	orch := orchestrator.New(cfg, service, orchestrator.WithLogger(logger))
	if pump, _ := cmd.Flags().GetBool("pump"); pump {
		orch.Pump(cmd.OutOrStdout())
	}

	out := cmd.OutOrStdout()
	ui.NewPrinter(out, cmd.ErrOrStderr(), cfg.Name, ui.PaletteFor(out)).Attach(orch.Events())

	return &session{
		cfg:     cfg,
		service: service,
		orch:    orch,
		logger:  logger,
		stderr:  cmd.ErrOrStderr(),
	}, nil
}

// follow blocks until the container output ends when --follow is set.
// Ctrl-C detaches without an error.
func (s *session) follow(cmd *cobra.Command) error {
	if follow, _ := cmd.Flags().GetBool("follow"); !follow {
		return nil
	}
	if err := s.orch.Wait(cmd.Context()); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func (s *session) Close() {
	if err := s.orch.Close(); err != nil {
		s.logger.Debug("failed to detach from container", zap.Error(err))
	}
	if err := s.service.Close(); err != nil {
		fmt.Fprintf(s.stderr, "Warning: failed to close Docker service: %v\n", err)
	}
	_ = s.logger.Sync()
}

func connect(ctx context.Context) (*docker.Service, error) {
	service, err := docker.NewService()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Docker service: %w", err)
	}
	if err := service.CheckHealth(ctx); err != nil {
		_ = service.Close()
		return nil, fmt.Errorf("docker daemon not available: %w", err)
	}
	return service, nil
}

// configPath returns --config, or the config file found in the working
// directory, or "" if there is none
func configPath(cmd *cobra.Command) (string, error) {
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		return path, nil
	}
	path, found, err := config.FindConfigFile("")
	if err != nil || !found {
		return "", err
	}
	return path, nil
}

// resolveOptions merges the config file with the flags set on cmd
func resolveOptions(cmd *cobra.Command) (config.Options, error) {
	var base config.Options

	path, err := configPath(cmd)
	if err != nil {
		return base, err
	}
	if path != "" {
		loaded, err := config.LoadOptions(path)
		if err != nil {
			return base, err
		}
		base = *loaded
	}

	return config.Merge(base, flagOptions(cmd)), nil
}

// flagOptions collects the container flags that were explicitly set
func flagOptions(cmd *cobra.Command) config.Options {
	var opts config.Options
	flags := cmd.Flags()

	if flags.Changed("name") {
		opts.Name, _ = flags.GetString("name")
	}
	if flags.Changed("port") {
		opts.Port, _ = flags.GetInt("port")
	}
	if flags.Changed("exposed") {
		opts.Exposed, _ = flags.GetInt("exposed")
	}
	if flags.Changed("image") {
		opts.Image, _ = flags.GetString("image")
	}
	if flags.Changed("env") {
		opts.Envs, _ = flags.GetStringToString("env")
	}
	if flags.Changed("max-conflict-retries") {
		opts.MaxConflictRetries, _ = flags.GetInt("max-conflict-retries")
	}

	return opts
}

func newLogger(verbose bool) (*zap.Logger, error) {
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	cfg.DisableStacktrace = true
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
		cfg.DisableStacktrace = false
	}
	return cfg.Build()
}

func shortID(id string) string {
	id = strings.TrimPrefix(id, "sha256:")
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
