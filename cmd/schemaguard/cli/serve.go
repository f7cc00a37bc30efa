package cli

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	fmcp "github.com/faucetdb/schemaguard/internal/mcp"
	"github.com/faucetdb/schemaguard/internal/server"
	"github.com/faucetdb/schemaguard/internal/service"
)

func newServeCmd() *cobra.Command {
	var (
		background bool
		mcpAddr    string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the schemaguard API server",
		Long: `Start the HTTP server that validates uploaded files against the configured
reference sources and serves snapshot history and drift reports.`,
		Example: `  schemaguard serve
  schemaguard serve --port 9090 --background
  schemaguard serve --mcp-addr :3001  # also serve MCP over HTTP`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if background {
				return startBackground()
			}
			return runServe(cmd, mcpAddr)
		},
	}

	cmd.Flags().IntP("port", "p", 8080, "HTTP listen port")
	cmd.Flags().String("host", "0.0.0.0", "HTTP listen host")
	cmd.Flags().BoolVarP(&background, "background", "d", false, "Run the server in the background")
	cmd.Flags().StringVar(&mcpAddr, "mcp-addr", "", "Also serve MCP over Streamable HTTP on this address")

	viper.BindPFlag("server.port", cmd.Flags().Lookup("port"))
	viper.BindPFlag("server.host", cmd.Flags().Lookup("host"))

	return cmd
}

func runServe(cmd *cobra.Command, mcpAddr string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	e, err := openEnv(ctx)
	if err != nil {
		return err
	}
	defer e.Close()
	log := e.log

	connected := e.connectAll(ctx)

	secret, err := e.jwtSecret(ctx)
	if err != nil {
		return fmt.Errorf("resolve jwt secret: %w", err)
	}
	authSvc := service.NewAuthService(e.store, secret)

	hasAdmin, err := e.store.HasAnyAdmin(ctx)
	if err != nil {
		log.Warnw("failed to check for admin", "error", err)
	}
	if !hasAdmin {
		log.Warn("no admin account found - run: schemaguard admin create")
	}

	srvCfg := server.ConfigFromYAML(e.cfg)
	srvCfg.Version = versionString()
	srv := server.New(srvCfg, e.deps(), authSvc)

	if mcpAddr != "" {
		mcpSrv := fmcp.NewMCPServer(e.deps(), versionString())
		go func() {
			if err := mcpSrv.ServeHTTP(mcpAddr); err != nil {
				log.Errorw("MCP HTTP server stopped", "error", err)
			}
		}()
	}

	if err := writePID(os.Getpid()); err != nil {
		log.Warnw("failed to write PID file", "path", pidFilePath(), "error", err)
	}
	defer removePID()

	scheme := "http"
	if e.cfg.Server.TLS.Enabled {
		scheme = "https"
	}
	base := fmt.Sprintf("%s://%s:%d", scheme, srvCfg.Host, srvCfg.Port)
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s %s\n", headingStyle.Render("schemaguard"), versionString())
	printResult(out, []resultField{
		{Label: "Listening", Value: base},
		{Label: "OpenAPI", Value: base + "/openapi.json"},
		{Label: "Health", Value: base + "/healthz"},
		{Label: "Sources", Value: fmt.Sprintf("%d connected", connected)},
		{Label: "Data dir", Value: e.dataDir},
	}, "")
	fmt.Fprintln(out)

	return srv.Run(ctx)
}

// startBackground re-executes the serve command detached from the terminal,
// with output going to the log file.
func startBackground() error {
	if pid, err := readPID(); err == nil && isProcessRunning(pid) {
		return fmt.Errorf("server already running (PID %d)", pid)
	}

	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("locate executable: %w", err)
	}
	var args []string
	for _, a := range os.Args[1:] {
		if a == "--background" || a == "-d" || a == "--background=true" {
			continue
		}
		args = append(args, a)
	}

	if err := os.MkdirAll(resolveDataDir(), 0755); err != nil {
		return err
	}
	logFile, err := os.OpenFile(logFilePath(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer logFile.Close()

	child := exec.Command(exe, args...)
	child.Stdout = logFile
	child.Stderr = logFile
	setSysProcAttr(child)
	if err := child.Start(); err != nil {
		return fmt.Errorf("start server: %w", err)
	}
	if err := writePID(child.Process.Pid); err != nil {
		return err
	}

	fmt.Printf("Server started in background (PID %d)\n", child.Process.Pid)
	fmt.Printf("  Logs: %s\n", logFilePath())
	fmt.Println("  Stop: schemaguard stop")
	return child.Process.Release()
}
