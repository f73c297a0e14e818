package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	sqlgate "github.com/rickchristie/sqlgate"
	"github.com/rickchristie/sqlgate/internal/configure"
	"github.com/rickchristie/sqlgate/internal/meta"
)

const (
	mcpPath         = "/mcp"
	shutdownTimeout = 10 * time.Second
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the gateway HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func runServe(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load .env: %w", err)
	}

	// 1. Load ServerConfig
	serverConfig, err := loadServerConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if serverConfig.Server.Port <= 0 {
		panic("sqlgate: server.port must be > 0")
	}

	// 2. Setup logger
	logger := setupLogger(serverConfig.Logging)
	if isTTY(os.Stderr.Fd()) {
		printBanner(os.Stderr, true)
	}

	// 3. Resolve secrets
	serverConfig.Auth.Token = resolveToken(serverConfig.Auth)
	if serverConfig.Auth.Token == "" && !serverConfig.Auth.OpenMode {
		return fmt.Errorf("no API token: set SQLGATE_API_TOKEN, run 'sqlgate secret set %s', or enable auth.open_mode", keyAPIToken)
	}
	if serverConfig.Auth.OpenMode {
		logger.Warn().Msg("auth.open_mode is enabled, requests are not authenticated")
	}
	connString := resolveConnString(serverConfig)

	// 4. Create the gateway
	g, err := sqlgate.New(connString, serverConfig.Config, logger)
	if err != nil {
		return fmt.Errorf("failed to create gateway: %w", err)
	}
	defer g.Close()

	// 5. Test database connection
	logger.Info().Str("driver", serverConfig.Database.Driver).Msg("testing database connection")
	pingCtx, cancel := context.WithTimeout(ctx, time.Duration(serverConfig.Database.ConnectTimeoutSeconds+5)*time.Second)
	err = g.Ping(pingCtx)
	cancel()
	if err != nil {
		logger.Error().Err(err).Msg("database connection test failed")
		return fmt.Errorf("database connection test failed: %w", err)
	}
	logger.Info().Msg("database connection test successful")

	// 6. Build routes
	gin.SetMode(gin.ReleaseMode)
	routerConfig := sqlgate.RouterConfig{HealthCheckPath: serverConfig.Server.HealthCheckPath}
	if serverConfig.Server.MetricsEnabled {
		routerConfig.MetricsPath = serverConfig.Server.MetricsPath
		if routerConfig.MetricsPath == "" {
			routerConfig.MetricsPath = "/metrics"
		}
	}
	if serverConfig.Server.MCPEnabled {
		routerConfig.MCPHandler = newMCPHandler(g, logger)
		routerConfig.MCPPath = mcpPath
	}

	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", serverConfig.Server.Port),
		Handler:           sqlgate.NewRouter(g, routerConfig),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// 7. Serve until SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info().
			Int("port", serverConfig.Server.Port).
			Str("version", meta.Version).
			Bool("mcp", serverConfig.Server.MCPEnabled).
			Bool("metrics", serverConfig.Server.MetricsEnabled).
			Msg("starting sqlgate server")
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}

// newMCPHandler builds the streamable MCP endpoint exposing the sql tool.
func newMCPHandler(g *sqlgate.Gateway, logger zerolog.Logger) http.Handler {
	hooks := &server.Hooks{}
	hooks.AddAfterInitialize(func(ctx context.Context, id any, req *mcp.InitializeRequest, result *mcp.InitializeResult) {
		logger.Info().
			Str("client_name", req.Params.ClientInfo.Name).
			Str("client_version", req.Params.ClientInfo.Version).
			Msg("MCP client connected")
	})

	mcpServer := server.NewMCPServer("sqlgate", meta.Version,
		server.WithToolCapabilities(true),
		server.WithHooks(hooks),
	)
	sqlgate.RegisterMCPTools(mcpServer, g)

	return server.NewStreamableHTTPServer(mcpServer,
		server.WithEndpointPath(mcpPath),
		server.WithStateLess(true),
		server.WithHTTPContextFunc(sqlgate.MCPContextFunc(g)),
	)
}

func loadServerConfig() (*sqlgate.ServerConfig, error) {
	return configure.Load(resolveConfigPath())
}

// resolveToken prefers SQLGATE_API_TOKEN, then auth.token, then the
// keychain. Open mode never picks up a token from the environment.
func resolveToken(auth sqlgate.AuthConfig) string {
	if auth.OpenMode {
		return auth.Token
	}
	if t := os.Getenv("SQLGATE_API_TOKEN"); t != "" {
		return t
	}
	if auth.Token != "" {
		return auth.Token
	}
	return lookupSecret("SQLGATE_API_TOKEN", keyAPIToken)
}

// resolveConnString uses SQLGATE_CONNSTRING or the stored connstring when
// present, otherwise builds one from the connection fields and prompts for
// missing credentials.
func resolveConnString(cfg *sqlgate.ServerConfig) string {
	if cs := lookupSecret("SQLGATE_CONNSTRING", keyConnString); cs != "" {
		return cs
	}
	driver := cfg.Database.Driver
	if driver == "" {
		driver = "sqlserver"
	}
	if driver == "sqlite" || cfg.Connection.Trusted {
		return buildConnString(driver, cfg.Connection, "", "")
	}

	username := cfg.Connection.User
	if username == "" {
		username = promptInput("Username: ")
	}
	password := lookupSecret("SQLGATE_DB_PASSWORD", keyDBPassword)
	if password == "" {
		password = promptPassword("Password: ")
	}
	return buildConnString(driver, cfg.Connection, username, password)
}

// buildConnString renders conn in the format each driver expects.
func buildConnString(driver string, conn sqlgate.ConnectionConfig, username, password string) string {
	switch driver {
	case "sqlite":
		return conn.DBName
	case "postgres":
		return buildPostgresConnString(conn, username, password)
	default:
		return buildSQLServerConnString(conn, username, password)
	}
}

func buildSQLServerConnString(conn sqlgate.ConnectionConfig, username, password string) string {
	u := &url.URL{Scheme: "sqlserver", Host: conn.Host}
	if conn.Port > 0 {
		u.Host = net.JoinHostPort(conn.Host, strconv.Itoa(conn.Port))
	}
	if !conn.Trusted && username != "" {
		if password != "" {
			u.User = url.UserPassword(username, password)
		} else {
			u.User = url.User(username)
		}
	}
	q := url.Values{}
	if conn.DBName != "" {
		q.Set("database", conn.DBName)
	}
	if conn.Encrypt != "" {
		q.Set("encrypt", conn.Encrypt)
	}
	if conn.AppName != "" {
		q.Set("app name", conn.AppName)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func buildPostgresConnString(conn sqlgate.ConnectionConfig, username, password string) string {
	parts := []string{}
	if conn.Host != "" {
		parts = append(parts, fmt.Sprintf("host=%s", conn.Host))
	}
	if conn.Port > 0 {
		parts = append(parts, fmt.Sprintf("port=%d", conn.Port))
	}
	if conn.DBName != "" {
		parts = append(parts, fmt.Sprintf("dbname=%s", conn.DBName))
	}
	if username != "" {
		parts = append(parts, fmt.Sprintf("user=%s", username))
	}
	if password != "" {
		parts = append(parts, fmt.Sprintf("password=%s", quotePostgresValue(password)))
	}
	if conn.SSLMode != "" {
		parts = append(parts, fmt.Sprintf("sslmode=%s", conn.SSLMode))
	}
	if conn.AppName != "" {
		parts = append(parts, fmt.Sprintf("application_name=%s", quotePostgresValue(conn.AppName)))
	}
	return strings.Join(parts, " ")
}

// quotePostgresValue single-quotes v when it holds spaces, quotes or backslashes.
func quotePostgresValue(v string) string {
	if v != "" && !strings.ContainsAny(v, ` '\`) {
		return v
	}
	r := strings.NewReplacer(`\`, `\\`, `'`, `\'`)
	return "'" + r.Replace(v) + "'"
}

func setupLogger(config sqlgate.LoggingConfig) zerolog.Logger {
	level := zerolog.InfoLevel
	switch strings.ToLower(config.Level) {
	case "debug":
		level = zerolog.DebugLevel
	case "warn":
		level = zerolog.WarnLevel
	case "error":
		level = zerolog.ErrorLevel
	}

	var output io.Writer = os.Stderr
	if config.Output == "stdout" {
		output = os.Stdout
	} else if config.Output != "" && config.Output != "stderr" {
		f, err := os.OpenFile(config.Output, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err == nil {
			output = f
		}
	}

	if config.Format == "text" {
		output = zerolog.ConsoleWriter{Out: output}
	}

	return zerolog.New(output).Level(level).With().Timestamp().Logger()
}

func promptInput(prompt string) string {
	fmt.Fprint(os.Stderr, prompt)
	var input string
	fmt.Scanln(&input)
	return input
}

func promptPassword(prompt string) string {
	fmt.Fprint(os.Stderr, prompt)
	password, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return ""
	}
	return string(password)
}
